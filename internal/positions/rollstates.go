package positions

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"futuresexec/internal/logger"
	"futuresexec/internal/models"
	"futuresexec/internal/rollstate"
)

// RollState returns the stored state, rollstate.Default when none is set.
func (s *Service) RollState(ctx context.Context, instrument string) (rollstate.State, error) {
	item, err := s.repo.GetRollState(ctx, instrument)
	if err != nil {
		return "", err
	}
	if item == nil {
		return rollstate.Default, nil
	}
	return rollstate.Parse(item.State)
}

// AllowedNextStates evaluates the transition table against the current
// state and priced position.
func (s *Service) AllowedNextStates(ctx context.Context, instrument string) (rollstate.State, []rollstate.State, int64, error) {
	current, err := s.RollState(ctx, instrument)
	if err != nil {
		return "", nil, 0, err
	}
	pos, err := s.PricedPosition(ctx, instrument)
	if err != nil {
		return current, nil, 0, err
	}
	allowed, err := rollstate.AllowedNextStates(current, pos)
	return current, allowed, pos, err
}

// SetRollState writes a new state after validating it against the table.
func (s *Service) SetRollState(ctx context.Context, instrument string, to rollstate.State) error {
	if !to.Valid() {
		return fmt.Errorf("%w: %q", rollstate.ErrUnknownState, to)
	}
	from, allowed, pos, err := s.AllowedNextStates(ctx, instrument)
	if err != nil {
		return err
	}
	if !contains(allowed, to) {
		return &rollstate.TransitionError{Instrument: instrument, From: from, To: to, PricedPosition: pos, Allowed: allowed}
	}
	return s.writeRollState(ctx, instrument, from, to)
}

// CompleteRollAdjusted reverts Roll_Adjusted to No_Roll once the roll has
// been booked.
func (s *Service) CompleteRollAdjusted(ctx context.Context, instrument string) error {
	current, err := s.RollState(ctx, instrument)
	if err != nil {
		return err
	}
	if current != rollstate.RollAdjusted {
		return fmt.Errorf("%s: roll state is %s, not %s", instrument, current, rollstate.RollAdjusted)
	}
	return s.SetRollState(ctx, instrument, rollstate.NoRoll)
}

// CheckAndAutoUpdateRollState resets a state that would generate roll
// orders to Passive once the priced position is flat.
func (s *Service) CheckAndAutoUpdateRollState(ctx context.Context, instrument string) (bool, error) {
	current, err := s.RollState(ctx, instrument)
	if err != nil {
		return false, err
	}
	if !current.RequiresOrderGeneration() {
		return false, nil
	}
	pos, err := s.PricedPosition(ctx, instrument)
	if errors.Is(err, ErrNoContracts) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if pos != 0 {
		return false, nil
	}
	if err := s.writeRollState(ctx, instrument, current, rollstate.Passive); err != nil {
		return false, err
	}
	lc := logger.InstrumentContext{Instrument: instrument}
	if err := s.notifier.Critical(ctx, "roll state reset to Passive: priced position is zero",
		lc.With(zap.String("from", current.String()))...); err != nil {
		s.logger.Warn("roll state alert failed", lc.With(zap.Error(err))...)
	}
	return true, nil
}

func (s *Service) writeRollState(ctx context.Context, instrument string, from, to rollstate.State) error {
	if err := s.repo.UpsertRollState(ctx, &models.RollStateRecord{InstrumentCode: instrument, State: to.String()}); err != nil {
		return fmt.Errorf("set roll state %s: %w", instrument, err)
	}
	s.logger.Info("roll state changed",
		zap.String("instrument", instrument), zap.String("from", from.String()), zap.String("to", to.String()))
	return nil
}

// RollStateView is one instrument's roll state as shown to operators.
type RollStateView struct {
	Instrument     string            `json:"instrument"`
	State          rollstate.State   `json:"state"`
	Explanation    string            `json:"explanation"`
	PricedPosition int64             `json:"priced_position"`
	Allowed        []rollstate.State `json:"allowed_next_states"`
}

func (s *Service) RollStateView(ctx context.Context, instrument string) (RollStateView, error) {
	current, allowed, pos, err := s.AllowedNextStates(ctx, instrument)
	if err != nil && !errors.Is(err, ErrNoContracts) {
		return RollStateView{}, err
	}
	return RollStateView{
		Instrument:     instrument,
		State:          current,
		Explanation:    current.Explain(),
		PricedPosition: pos,
		Allowed:        allowed,
	}, nil
}

// ListRollStateViews covers every instrument with contracts configured.
func (s *Service) ListRollStateViews(ctx context.Context) ([]RollStateView, error) {
	items, err := s.repo.ListInstrumentContracts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RollStateView, 0, len(items))
	for _, item := range items {
		view, err := s.RollStateView(ctx, item.InstrumentCode)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

func contains(items []rollstate.State, s rollstate.State) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}
