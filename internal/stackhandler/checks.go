package stackhandler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"futuresexec/internal/logger"
	"futuresexec/internal/order"
)

// CheckStuckLocks reports orders locked for longer than the sanity
// threshold, once per lock. They are never unlocked here; a stuck lock
// usually means a placement died halfway and an operator has to look at the
// children.
func (h *Handler) CheckStuckLocks(ctx context.Context) error {
	now := h.now()
	for _, s := range h.stacks.All() {
		orders, err := s.AllOrders(ctx)
		if err != nil {
			return fmt.Errorf("list %s orders: %w", s.Name(), err)
		}
		for _, o := range orders {
			if !o.Locked || o.LockedAt == nil || o.StuckAlertedAt != nil {
				continue
			}
			age := now.Sub(*o.LockedAt)
			if age <= h.cfg.LockSanityThreshold {
				continue
			}
			lc := logger.ForOrder(s.Name(), o)
			h.critical(ctx, "order locked beyond sanity threshold, needs manual review",
				lc.With(zap.Duration("locked_for", age), zap.String("tx_state", string(o.TxState)))...)
			if _, err := s.UpdateOrder(ctx, o.ID, func(cur *order.Order) error {
				if cur.Locked {
					cur.StuckAlertedAt = &now
				}
				return nil
			}); err != nil {
				h.logger.Warn("mark stuck lock alerted failed", lc.With(zap.Error(err))...)
			}
		}
	}
	return nil
}

// CheckInternalBreaks compares contract and strategy position totals.
func (h *Handler) CheckInternalBreaks(ctx context.Context) error {
	breaks, err := h.positions.ListBreaksBetweenContractAndStrategyPositions(ctx)
	if err != nil {
		return err
	}
	for _, b := range breaks {
		h.critical(ctx, "position break between contract and strategy totals",
			logger.InstrumentContext{Instrument: b.Instrument}.With(
				zap.Int64("contract_total", b.ContractTotal), zap.Int64("strategy_total", b.StrategyTotal))...)
	}
	return nil
}

// CheckExternalPositionBreak compares recorded contract positions with the
// venue's.
func (h *Handler) CheckExternalPositionBreak(ctx context.Context) error {
	live, err := h.broker.Positions(ctx)
	if err != nil {
		return fmt.Errorf("venue positions: %w", err)
	}
	breaks, err := h.positions.ExternalBreaks(ctx, live)
	if err != nil {
		return err
	}
	for _, b := range breaks {
		h.critical(ctx, "position break between venue and recorded positions",
			logger.InstrumentContext{Instrument: b.Instrument, Contract: b.Contract}.With(
				zap.Int64("venue", b.Venue), zap.Int64("recorded", b.Recorded))...)
	}
	return nil
}

// CheckRollStates runs the roll state safety rule for every instrument
// with a stored state.
func (h *Handler) CheckRollStates(ctx context.Context) error {
	views, err := h.positions.ListRollStateViews(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, v := range views {
		if _, err := h.positions.CheckAndAutoUpdateRollState(ctx, v.Instrument); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", v.Instrument, err))
		}
	}
	return errors.Join(errs...)
}
