package stackhandler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"futuresexec/internal/logger"
	"futuresexec/internal/order"
	"futuresexec/internal/prices"
	"futuresexec/internal/rollstate"
)

// SpawnChildrenFromInstrumentOrders splits every un-spawned instrument
// order into contract orders.
func (h *Handler) SpawnChildrenFromInstrumentOrders(ctx context.Context) error {
	orders, err := h.stacks.Instrument.ActiveOrders(ctx)
	if err != nil {
		return fmt.Errorf("list instrument orders: %w", err)
	}
	var errs []error
	for _, o := range orders {
		if o.Locked || o.HasChildren() || o.Trade.IsZero() {
			continue
		}
		if err := h.spawnContractOrders(ctx, o); err != nil {
			h.logger.Warn("spawn contract orders failed", logger.ForOrder(h.stacks.Instrument.Name(), o).With(zap.Error(err))...)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Handler) spawnContractOrders(ctx context.Context, parent *order.Order) error {
	lc := logger.ForOrder(h.stacks.Instrument.Name(), parent)
	children, err := h.contractOrdersFromInstrumentOrder(ctx, parent)
	if err != nil {
		return err
	}
	if len(children) == 0 {
		h.logger.Warn("instrument order produced no contract orders", lc.Fields()...)
		return nil
	}
	children, err = h.allocator.AllocateAlgoToOrders(ctx, children, parent)
	if err != nil {
		return fmt.Errorf("allocate algo: %w", err)
	}
	_, err = h.SpawnChildrenForExisting(ctx, h.stacks.Instrument, h.stacks.Contract, parent.ID, children)
	return err
}

// contractOrdersFromInstrumentOrder applies the roll state to decide which
// contracts take the trade.
func (h *Handler) contractOrdersFromInstrumentOrder(ctx context.Context, parent *order.Order) ([]*order.Order, error) {
	instrument := parent.InstrumentCode
	state, err := h.positions.RollState(ctx, instrument)
	if err != nil {
		return nil, err
	}
	priced, err := h.contracts.PricedContractID(ctx, instrument)
	if err != nil {
		return nil, err
	}
	trade := parent.Trade[0]

	switch state {
	case rollstate.Passive, rollstate.NoOpen:
		forward, err := h.contracts.ForwardContractID(ctx, instrument)
		if err != nil {
			return nil, err
		}
		pos, err := h.positions.PositionForContract(ctx, instrument, priced)
		if err != nil {
			return nil, err
		}
		closing, opening := splitClosing(trade, pos)
		if state == rollstate.NoOpen && opening != 0 {
			h.logger.Warn("dropping opening trade, instrument is not opening",
				logger.ForOrder(h.stacks.Instrument.Name(), parent).With(zap.Int64("dropped", opening))...)
			opening = 0
		}
		var out []*order.Order
		if closing != 0 {
			out = append(out, h.contractChild(ctx, parent, priced, closing))
		}
		if opening != 0 {
			out = append(out, h.contractChild(ctx, parent, forward, opening))
		}
		return out, nil
	}
	return []*order.Order{h.contractChild(ctx, parent, priced, trade)}, nil
}

// splitClosing divides trade into the part that reduces position towards
// zero and the remainder.
func splitClosing(trade, position int64) (closing, opening int64) {
	if position == 0 || (trade > 0) == (position > 0) {
		return 0, trade
	}
	if abs64(trade) <= abs64(position) {
		return trade, 0
	}
	return -position, trade + position
}

func (h *Handler) contractChild(ctx context.Context, parent *order.Order, contract string, qty int64) *order.Order {
	c := &order.Order{
		Grain:             order.GrainContract,
		StrategyName:      parent.StrategyName,
		InstrumentCode:    parent.InstrumentCode,
		ContractIDs:       []string{contract},
		Trade:             order.NewTrade(qty),
		OrderType:         parent.OrderType,
		LimitPrice:        parent.LimitPrice,
		ReferenceDatetime: parent.ReferenceDatetime,
		ReferenceContract: contract,
		RollOrder:         parent.RollOrder,
	}
	if c.OrderType == order.TypeBest || c.OrderType == "" {
		c.OrderType = order.TypeMarket
	}
	if price, err := h.prices.CurrentPrice(ctx, parent.InstrumentCode, contract); err == nil {
		c.ReferencePrice = order.DecimalPtr(price)
	} else if !errors.Is(err, prices.ErrNoPrice) {
		h.logger.Debug("no reference price for contract order",
			logger.InstrumentContext{Instrument: parent.InstrumentCode, Contract: contract}.With(zap.Error(err))...)
	}
	return c
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
