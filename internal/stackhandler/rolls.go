package stackhandler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"futuresexec/internal/logger"
	"futuresexec/internal/order"
	"futuresexec/internal/rollstate"
)

// RollPseudoStrategy owns flat roll orders, which move a position between
// contracts without changing any real strategy's position.
const RollPseudoStrategy = "_ROLL_PSEUDO_STRATEGY"

type rollType int

const (
	flatRoll rollType = iota
	closeNearContract
)

func rollTypeFor(state rollstate.State) rollType {
	if state == rollstate.Close {
		return closeNearContract
	}
	return flatRoll
}

type RollSpreadInformation struct {
	Instrument        string
	PricedContractID  string
	ForwardContractID string
	PositionInPriced  int64
	PricedReference   decimal.Decimal
	ForwardReference  decimal.Decimal
	ReferenceDatetime time.Time
}

// Spread is priced minus forward.
func (r RollSpreadInformation) Spread() decimal.Decimal {
	return r.PricedReference.Sub(r.ForwardReference)
}

func (h *Handler) GenerateForceRollOrders(ctx context.Context) error {
	instruments, err := h.positions.InstrumentsWithPositions(ctx)
	if err != nil {
		return fmt.Errorf("list instruments with positions: %w", err)
	}
	var errs []error
	for _, instrument := range instruments {
		if err := h.GenerateForceRollOrdersForInstrument(ctx, instrument); err != nil {
			h.logger.Warn("force roll generation failed", zap.String("instrument", instrument), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Handler) GenerateForceRollOrdersForInstrument(ctx context.Context, instrument string) error {
	lc := logger.InstrumentContext{Instrument: instrument}
	state, err := h.positions.RollState(ctx, instrument)
	if err != nil {
		return err
	}
	if !state.RequiresOrderGeneration() {
		return nil
	}
	safe, err := h.safeToAddRollOrder(ctx, instrument, lc)
	if err != nil || !safe {
		return err
	}

	info, err := h.rollSpreadInformation(ctx, instrument)
	if err != nil {
		return err
	}
	if info.PositionInPriced == 0 {
		h.logger.Debug("no position in priced contract, nothing to roll", lc.Fields()...)
		return nil
	}
	kind := rollTypeFor(state)
	parent, err := h.instrumentRollOrder(ctx, info, kind)
	if err != nil {
		return err
	}
	children, err := contractRollOrders(info, parent, state)
	if errors.Is(err, ErrUnexpectedRollState) {
		h.logger.Warn("roll state is unexpected, might have changed", lc.With(zap.String("state", state.String()))...)
		return nil
	}
	if err != nil {
		return err
	}
	if len(children) == 0 {
		return nil
	}
	children, err = h.allocator.AllocateAlgoToOrders(ctx, children, parent)
	if err != nil {
		return fmt.Errorf("allocate algo: %w", err)
	}
	placed, err := h.PlaceParentAndChildren(ctx, h.stacks.Instrument, h.stacks.Contract, parent, children, PlaceOptions{ParentAllowZero: true})
	if err != nil {
		return fmt.Errorf("place roll orders for %s: %w", instrument, err)
	}
	h.logger.Info("force roll orders placed", lc.With(
		zap.String("state", state.String()),
		zap.Uint64("instrument_order_id", placed.ParentID),
		zap.Uint64s("contract_order_ids", placed.ChildIDs),
		zap.String("spread", info.Spread().String()),
	)...)
	return nil
}

// safeToAddRollOrder is false while a roll order for the instrument is
// already on the stack, or while any strategy has instrument orders for it.
// The second case notifies, since the operator may have to step in.
func (h *Handler) safeToAddRollOrder(ctx context.Context, instrument string, lc logger.InstrumentContext) (bool, error) {
	existing, err := h.stacks.Instrument.OrdersForStrategyAndInstrument(ctx, RollPseudoStrategy, instrument)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}
	strategies, err := h.stacks.Instrument.StrategiesWithOrdersForInstrument(ctx, instrument)
	if err != nil {
		return false, err
	}
	if len(strategies) > 0 {
		h.critical(ctx, "cannot force roll: other orders for instrument already on stack",
			lc.With(zap.Strings("strategies", strategies))...)
		return false, nil
	}
	return true, nil
}

func (h *Handler) rollSpreadInformation(ctx context.Context, instrument string) (RollSpreadInformation, error) {
	priced, err := h.contracts.PricedContractID(ctx, instrument)
	if err != nil {
		return RollSpreadInformation{}, err
	}
	forward, err := h.contracts.ForwardContractID(ctx, instrument)
	if err != nil {
		return RollSpreadInformation{}, err
	}
	pos, err := h.positions.PositionForContract(ctx, instrument, priced)
	if err != nil {
		return RollSpreadInformation{}, err
	}
	at, refs, err := h.prices.LastMatchedDateAndPrices(ctx, instrument, []string{priced, forward})
	if err != nil {
		return RollSpreadInformation{}, err
	}
	return RollSpreadInformation{
		Instrument:        instrument,
		PricedContractID:  priced,
		ForwardContractID: forward,
		PositionInPriced:  pos,
		PricedReference:   refs[0],
		ForwardReference:  refs[1],
		ReferenceDatetime: at,
	}, nil
}

func (h *Handler) instrumentRollOrder(ctx context.Context, info RollSpreadInformation, kind rollType) (*order.Order, error) {
	o := &order.Order{
		Grain:             order.GrainInstrument,
		InstrumentCode:    info.Instrument,
		RollOrder:         true,
		ReferencePrice:    order.DecimalPtr(info.Spread()),
		ReferenceContract: RollPseudoStrategy,
		ReferenceDatetime: info.ReferenceDatetime,
	}
	if kind == flatRoll {
		o.StrategyName = RollPseudoStrategy
		o.Trade = order.NewTrade(0)
		o.OrderType = order.TypeZeroRoll
		return o, nil
	}
	strategy, _, err := h.positions.StrategyWithLargestAbsPosition(ctx, info.Instrument)
	if err != nil {
		return nil, err
	}
	o.StrategyName = strategy
	o.Trade = order.NewTrade(-info.PositionInPriced)
	o.OrderType = order.TypeBest
	return o, nil
}

// contractRollOrders returns no orders when the priced position is flat.
func contractRollOrders(info RollSpreadInformation, parent *order.Order, state rollstate.State) ([]*order.Order, error) {
	if info.PositionInPriced == 0 {
		return nil, nil
	}
	pos := info.PositionInPriced
	leg := func(strategy string, contracts []string, trade order.TradeQuantity, ref decimal.Decimal) *order.Order {
		return &order.Order{
			Grain:          order.GrainContract,
			StrategyName:   strategy,
			InstrumentCode: info.Instrument,
			ContractIDs:    contracts,
			Trade:          trade,
			OrderType:      order.TypeMarket,
			ReferencePrice: order.DecimalPtr(ref),
			RollOrder:      true,
		}
	}
	switch state {
	case rollstate.Close:
		return []*order.Order{
			leg(parent.StrategyName, []string{info.PricedContractID}, order.NewTrade(-pos), info.PricedReference),
		}, nil
	case rollstate.Force:
		return []*order.Order{
			leg(RollPseudoStrategy, []string{info.PricedContractID, info.ForwardContractID}, order.NewTrade(-pos, pos), info.Spread()),
		}, nil
	case rollstate.ForceOutright:
		return []*order.Order{
			leg(RollPseudoStrategy, []string{info.PricedContractID}, order.NewTrade(-pos), info.PricedReference),
			leg(RollPseudoStrategy, []string{info.ForwardContractID}, order.NewTrade(pos), info.ForwardReference),
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnexpectedRollState, state)
}
