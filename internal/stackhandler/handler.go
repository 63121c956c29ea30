// Package stackhandler runs the periodic operations that move orders down
// the instrument, contract and broker stacks and book their fills.
package stackhandler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"futuresexec/internal/algo"
	"futuresexec/internal/broker"
	"futuresexec/internal/logger"
	"futuresexec/internal/notify"
	"futuresexec/internal/stack"
)

type Config struct {
	LockSanityThreshold  time.Duration
	CancelAfter          time.Duration
	CancelConfirmTimeout time.Duration
	MaxPriceDeviationBps float64
	StaleOrderAge        time.Duration
}

func (c Config) withDefaults() Config {
	if c.LockSanityThreshold <= 0 {
		c.LockSanityThreshold = 5 * time.Minute
	}
	if c.CancelAfter <= 0 {
		c.CancelAfter = 10 * time.Minute
	}
	if c.CancelConfirmTimeout <= 0 {
		c.CancelConfirmTimeout = time.Minute
	}
	if c.StaleOrderAge <= 0 {
		c.StaleOrderAge = 30 * time.Minute
	}
	return c
}

type Deps struct {
	Stacks    stack.Set
	Positions PositionBook
	Prices    PriceDiag
	Contracts ContractDiag
	Allocator algo.Allocator
	Broker    broker.Broker
	Notifier  notify.Notifier

	// Optional.
	Fills     FillRecorder
	Sampler   PriceRecorder
	Logger    *zap.Logger
	Now       func() time.Time
	NewRef    func() string
	PollEvery time.Duration
}

type Handler struct {
	stacks    stack.Set
	positions PositionBook
	prices    PriceDiag
	contracts ContractDiag
	allocator algo.Allocator
	broker    broker.Broker
	notifier  notify.Notifier
	fills     FillRecorder
	sampler   PriceRecorder
	logger    *zap.Logger
	now       func() time.Time
	newRef    func() string
	pollEvery time.Duration
	cfg       Config
}

func New(deps Deps, cfg Config) *Handler {
	log := logger.OrNop(deps.Logger)
	h := &Handler{
		stacks:    deps.Stacks,
		positions: deps.Positions,
		prices:    deps.Prices,
		contracts: deps.Contracts,
		allocator: deps.Allocator,
		broker:    deps.Broker,
		notifier:  deps.Notifier,
		fills:     deps.Fills,
		sampler:   deps.Sampler,
		logger:    log,
		now:       deps.Now,
		newRef:    deps.NewRef,
		pollEvery: deps.PollEvery,
		cfg:       cfg.withDefaults(),
	}
	if h.notifier == nil {
		h.notifier = notify.NewLog(log)
	}
	if h.allocator == nil {
		h.allocator = algo.NewStatic("", "")
	}
	if h.now == nil {
		h.now = func() time.Time { return time.Now().UTC() }
	}
	if h.newRef == nil {
		h.newRef = uuid.NewString
	}
	if h.pollEvery <= 0 {
		h.pollEvery = time.Second
	}
	return h
}

// critical notifies and logs; a notifier failure is logged only.
func (h *Handler) critical(ctx context.Context, msg string, fields ...zap.Field) {
	if err := h.notifier.Critical(ctx, msg, fields...); err != nil {
		h.logger.Warn("critical notification failed", append(fields, zap.String("message", msg), zap.Error(err))...)
	}
}

// Operation names, shared by cron, feature switches and the ops API.
const (
	OpCheckExternalBreaks = "check_external_breaks"
	OpSpawnChildren       = "spawn_children"
	OpGenerateForceRolls  = "generate_force_rolls"
	OpCreateBrokerOrders  = "create_broker_orders"
	OpCancelAndModify     = "cancel_and_modify"
	OpProcessFills        = "process_fills"
	OpHandleCompletions   = "handle_completions"
	OpCheckStuckLocks     = "check_stuck_locks"
	OpCheckInternalBreaks = "check_internal_breaks"
	OpCheckRollStates     = "check_roll_states"
	OpRefreshSampling     = "refresh_sampling"
	OpSafeStackRemoval    = "safe_stack_removal"
)

// Operations maps each operation name to its implementation.
func (h *Handler) Operations() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		OpCheckExternalBreaks: h.CheckExternalPositionBreak,
		OpSpawnChildren:       h.SpawnChildrenFromInstrumentOrders,
		OpGenerateForceRolls:  h.GenerateForceRollOrders,
		OpCreateBrokerOrders:  h.CreateBrokerOrdersFromContractOrders,
		OpCancelAndModify:     h.CancelAndModify,
		OpProcessFills:        h.ProcessFills,
		OpHandleCompletions: func(ctx context.Context) error {
			return h.HandleCompletedOrders(ctx, false, false)
		},
		OpCheckStuckLocks:     h.CheckStuckLocks,
		OpCheckInternalBreaks: h.CheckInternalBreaks,
		OpCheckRollStates:     h.CheckRollStates,
		OpRefreshSampling:     h.RefreshAdditionalSampling,
		OpSafeStackRemoval:    h.SafeStackRemoval,
	}
}

func OperationNames() []string {
	names := make([]string, 0, 12)
	for name := range (&Handler{}).Operations() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunOperation runs one named operation once.
func (h *Handler) RunOperation(ctx context.Context, name string) error {
	op, ok := h.Operations()[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}
	start := h.now()
	err := op(ctx)
	h.logger.Debug("stack handler operation finished",
		zap.String("op", name), zap.Duration("took", h.now().Sub(start)), zap.Error(err))
	return err
}

// SafeStackRemoval is the end-of-day cleanup and the only place orders are
// physically deleted.
func (h *Handler) SafeStackRemoval(ctx context.Context) error {
	h.logger.Info("running safe stack removal")
	if err := h.CancelAndConfirmAllBrokerOrders(ctx, h.cfg.CancelConfirmTimeout); err != nil {
		h.logger.Warn("cancel and confirm failed", zap.Error(err))
	}
	if err := h.ProcessFills(ctx); err != nil {
		h.logger.Warn("process fills failed", zap.Error(err))
	}
	if err := h.HandleCompletedOrders(ctx, true, true); err != nil {
		h.logger.Warn("handle completions failed", zap.Error(err))
	}
	return h.RemoveAllDeactivatedOrders(ctx)
}

func (h *Handler) RemoveAllDeactivatedOrders(ctx context.Context) error {
	for _, s := range h.stacks.All() {
		n, err := s.RemoveAllDeactivated(ctx)
		if err != nil {
			return fmt.Errorf("remove deactivated from %s stack: %w", s.Name(), err)
		}
		h.logger.Info("removed deactivated orders", zap.String("stack", s.Name()), zap.Int("removed", n))
	}
	return nil
}

func (h *Handler) AllStacksEmpty(ctx context.Context) (bool, error) {
	var total int64
	for _, s := range h.stacks.All() {
		n, err := s.CountOrders(ctx)
		if err != nil {
			return false, err
		}
		total += n
	}
	return total == 0, nil
}
