// Package positions owns contract and strategy position bookkeeping, roll
// states and the break diagnostics between them.
package positions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"futuresexec/internal/broker"
	"futuresexec/internal/logger"
	"futuresexec/internal/models"
	"futuresexec/internal/notify"
	"futuresexec/internal/repository"
)

var (
	ErrNoContracts        = errors.New("no priced/forward contracts configured")
	ErrNoStrategyPosition = errors.New("no strategy holds a position")
)

type Repo interface {
	repository.PositionRepository
	repository.RollStateRepository
	repository.InstrumentRepository
}

type Service struct {
	repo     Repo
	notifier notify.Notifier
	logger   *zap.Logger
}

func New(repo Repo, notifier notify.Notifier, log *zap.Logger) *Service {
	log = logger.OrNop(log)
	if notifier == nil {
		notifier = notify.NewLog(log)
	}
	return &Service{repo: repo, notifier: notifier, logger: log}
}

// UpdateContractPosition adds delta to the contract position in one atomic
// statement. A zero delta is a no-op.
func (s *Service) UpdateContractPosition(ctx context.Context, instrument, contract string, delta int64) error {
	if delta == 0 {
		return nil
	}
	if err := s.repo.AddContractPosition(ctx, instrument, contract, delta); err != nil {
		return fmt.Errorf("update contract position %s/%s by %d: %w", instrument, contract, delta, err)
	}
	s.logger.Info("contract position updated",
		logger.InstrumentContext{Instrument: instrument, Contract: contract}.With(zap.Int64("delta", delta))...)
	return nil
}

func (s *Service) UpdateStrategyPosition(ctx context.Context, strategy, instrument string, delta int64) error {
	if delta == 0 {
		return nil
	}
	if err := s.repo.AddStrategyPosition(ctx, strategy, instrument, delta); err != nil {
		return fmt.Errorf("update strategy position %s/%s by %d: %w", strategy, instrument, delta, err)
	}
	s.logger.Info("strategy position updated",
		logger.InstrumentContext{Instrument: instrument, Strategy: strategy}.With(zap.Int64("delta", delta))...)
	return nil
}

func (s *Service) PositionForContract(ctx context.Context, instrument, contract string) (int64, error) {
	return s.repo.GetContractPosition(ctx, instrument, contract)
}

func (s *Service) PositionForStrategy(ctx context.Context, strategy, instrument string) (int64, error) {
	return s.repo.GetStrategyPosition(ctx, strategy, instrument)
}

// InstrumentsWithPositions lists instruments with any non-zero contract
// position, sorted.
func (s *Service) InstrumentsWithPositions(ctx context.Context) ([]string, error) {
	items, err := s.allContractPositions(ctx, repository.ListPositionsParams{NonZero: true})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.InstrumentCode]; ok {
			continue
		}
		seen[item.InstrumentCode] = struct{}{}
		out = append(out, item.InstrumentCode)
	}
	sort.Strings(out)
	return out, nil
}

// StrategyWithLargestAbsPosition breaks ties by taking the strategy name
// that sorts first.
func (s *Service) StrategyWithLargestAbsPosition(ctx context.Context, instrument string) (string, int64, error) {
	items, err := s.allStrategyPositions(ctx, repository.ListPositionsParams{Instrument: &instrument, NonZero: true})
	if err != nil {
		return "", 0, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].StrategyName < items[j].StrategyName })
	var (
		best    string
		bestPos int64
	)
	for _, item := range items {
		if abs(item.Position) > abs(bestPos) {
			best, bestPos = item.StrategyName, item.Position
		}
	}
	if best == "" {
		return "", 0, fmt.Errorf("%w in %s", ErrNoStrategyPosition, instrument)
	}
	return best, bestPos, nil
}

func (s *Service) PricedContractID(ctx context.Context, instrument string) (string, error) {
	ic, err := s.contracts(ctx, instrument)
	if err != nil {
		return "", err
	}
	return ic.PricedContractID, nil
}

func (s *Service) ForwardContractID(ctx context.Context, instrument string) (string, error) {
	ic, err := s.contracts(ctx, instrument)
	if err != nil {
		return "", err
	}
	return ic.ForwardContractID, nil
}

func (s *Service) contracts(ctx context.Context, instrument string) (*models.InstrumentContracts, error) {
	ic, err := s.repo.GetInstrumentContracts(ctx, instrument)
	if err != nil {
		return nil, err
	}
	if ic == nil || strings.TrimSpace(ic.PricedContractID) == "" {
		return nil, fmt.Errorf("%s: %w", instrument, ErrNoContracts)
	}
	return ic, nil
}

// PricedPosition is the position held in the instrument's priced contract.
func (s *Service) PricedPosition(ctx context.Context, instrument string) (int64, error) {
	priced, err := s.PricedContractID(ctx, instrument)
	if err != nil {
		return 0, err
	}
	return s.repo.GetContractPosition(ctx, instrument, priced)
}

// Break is a mismatch between the sum over contracts and the sum over
// strategies for one instrument.
type Break struct {
	Instrument    string `json:"instrument"`
	ContractTotal int64  `json:"contract_total"`
	StrategyTotal int64  `json:"strategy_total"`
}

// ListBreaksBetweenContractAndStrategyPositions is read-only; breaks are
// reported, never corrected.
func (s *Service) ListBreaksBetweenContractAndStrategyPositions(ctx context.Context) ([]Break, error) {
	contracts, err := s.repo.ContractPositionTotals(ctx)
	if err != nil {
		return nil, err
	}
	strategies, err := s.repo.StrategyPositionTotals(ctx)
	if err != nil {
		return nil, err
	}
	byContract := make(map[string]int64, len(contracts))
	for _, c := range contracts {
		byContract[c.InstrumentCode] += c.Position
	}
	byStrategy := make(map[string]int64, len(strategies))
	for _, st := range strategies {
		byStrategy[st.InstrumentCode] += st.Position
	}
	instruments := unionKeys(byContract, byStrategy)
	out := make([]Break, 0)
	for _, instrument := range instruments {
		if byContract[instrument] != byStrategy[instrument] {
			out = append(out, Break{Instrument: instrument, ContractTotal: byContract[instrument], StrategyTotal: byStrategy[instrument]})
		}
	}
	return out, nil
}

// ExternalBreak is a mismatch between the venue and recorded positions.
type ExternalBreak struct {
	Instrument string `json:"instrument"`
	Contract   string `json:"contract"`
	Venue      int64  `json:"venue"`
	Recorded   int64  `json:"recorded"`
}

func (s *Service) ExternalBreaks(ctx context.Context, live []broker.Position) ([]ExternalBreak, error) {
	recorded, err := s.allContractPositions(ctx, repository.ListPositionsParams{})
	if err != nil {
		return nil, err
	}
	mine := map[[2]string]int64{}
	for _, r := range recorded {
		mine[[2]string{r.InstrumentCode, r.ContractID}] += r.Position
	}
	theirs := map[[2]string]int64{}
	for _, p := range live {
		theirs[[2]string{p.Instrument, p.Contract}] += p.Position
	}
	keys := make([][2]string, 0, len(mine)+len(theirs))
	for k := range mine {
		keys = append(keys, k)
	}
	for k := range theirs {
		if _, ok := mine[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	out := make([]ExternalBreak, 0)
	for _, k := range keys {
		if mine[k] != theirs[k] {
			out = append(out, ExternalBreak{Instrument: k[0], Contract: k[1], Venue: theirs[k], Recorded: mine[k]})
		}
	}
	return out, nil
}

// pageSize matches the repository's list cap.
const pageSize = 500

func (s *Service) allContractPositions(ctx context.Context, params repository.ListPositionsParams) ([]models.ContractPosition, error) {
	asc := true
	params.OrderBy, params.Asc, params.Limit = "id", &asc, pageSize
	var out []models.ContractPosition
	for offset := 0; ; offset += pageSize {
		params.Offset = offset
		page, err := s.repo.ListContractPositions(ctx, params)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < pageSize {
			return out, nil
		}
	}
}

func (s *Service) allStrategyPositions(ctx context.Context, params repository.ListPositionsParams) ([]models.StrategyPosition, error) {
	asc := true
	params.OrderBy, params.Asc, params.Limit = "id", &asc, pageSize
	var out []models.StrategyPosition
	for offset := 0; ; offset += pageSize {
		params.Offset = offset
		page, err := s.repo.ListStrategyPositions(ctx, params)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < pageSize {
			return out, nil
		}
	}
}

func unionKeys(a, b map[string]int64) []string {
	out := make([]string, 0, len(a)+len(b))
	for k := range a {
		out = append(out, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
