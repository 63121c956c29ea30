package stackhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"futuresexec/internal/broker"
	"futuresexec/internal/logger"
	"futuresexec/internal/models"
	"futuresexec/internal/order"
	"futuresexec/internal/stack"
)

// ProcessFills pulls venue fills onto broker orders and rolls them up.
// Every level stores its cumulative fill, and positions move by the change
// in that total, so a rerun after a crash books nothing twice.
func (h *Handler) ProcessFills(ctx context.Context) error {
	var errs []error
	if err := h.pullBrokerFills(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := h.rollUpContractFills(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := h.rollUpInstrumentFills(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (h *Handler) pullBrokerFills(ctx context.Context) error {
	orders, err := h.stacks.Broker.ActiveOrders(ctx)
	if err != nil {
		return fmt.Errorf("list broker orders: %w", err)
	}
	var errs []error
	for _, o := range orders {
		if o.Locked || o.BrokerRef == "" {
			continue
		}
		lc := logger.ForOrder(h.stacks.Broker.Name(), o)
		if locked, err := ParentLocked(ctx, h.stacks.Contract, o); err != nil || locked {
			if err != nil {
				errs = append(errs, err)
			}
			continue
		}
		execs, err := h.broker.FillsFor(ctx, o.BrokerRef)
		if errors.Is(err, broker.ErrUnknownOrder) {
			h.logger.Warn("venue does not know broker order", lc.Fields()...)
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("fills for broker order %d: %w", o.ID, err))
			continue
		}
		qty, price, at := broker.TotalFilled(execs, len(o.Trade))
		if qty.Equal(o.Fill.ZeroPad(len(o.Trade))) {
			continue
		}
		var delta order.TradeQuantity
		updated, err := h.stacks.Broker.UpdateOrder(ctx, o.ID, func(cur *order.Order) error {
			delta = cur.SetFill(qty, price, at)
			return nil
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		h.logger.Info("broker fill", lc.With(zap.Int64s("delta", delta), zap.Int64s("filled", updated.Fill))...)
		h.recordFill(ctx, updated, delta, price, at, lc)
	}
	return errors.Join(errs...)
}

func (h *Handler) recordFill(ctx context.Context, o *order.Order, delta order.TradeQuantity, price *decimal.Decimal, at time.Time, lc logger.OrderContext) {
	if h.fills == nil || delta.IsZero() {
		return
	}
	contracts, _ := json.Marshal(o.ContractIDs)
	qty, _ := json.Marshal(delta)
	if at.IsZero() {
		at = h.now()
	}
	item := &models.FillRecord{
		BrokerOrderID:   o.ID,
		ContractOrderID: o.Parent,
		BrokerRef:       o.BrokerRef,
		StrategyName:    o.StrategyName,
		InstrumentCode:  o.InstrumentCode,
		ContractIDs:     datatypes.JSON(contracts),
		Qty:             datatypes.JSON(qty),
		Price:           price,
		FilledAt:        at,
	}
	if err := h.fills.InsertFill(ctx, item); err != nil {
		h.logger.Warn("record fill failed", lc.With(zap.Error(err))...)
	}
}

// rollUpContractFills sets each contract order's fill to the sum of its
// broker children and moves contract positions by the change.
func (h *Handler) rollUpContractFills(ctx context.Context) error {
	orders, err := h.stacks.Contract.ActiveOrders(ctx)
	if err != nil {
		return fmt.Errorf("list contract orders: %w", err)
	}
	var errs []error
	for _, o := range orders {
		if o.Locked || !o.HasChildren() {
			continue
		}
		if locked, err := ParentLocked(ctx, h.stacks.Instrument, o); err != nil || locked {
			if err != nil {
				errs = append(errs, err)
			}
			continue
		}
		children, err := childOrders(ctx, h.stacks.Broker, o.Children)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		qty, price, at := sumChildFills(children, len(o.Trade), false)
		if qty.Equal(o.Fill.ZeroPad(len(o.Trade))) {
			continue
		}
		var delta order.TradeQuantity
		if _, err := h.stacks.Contract.UpdateOrder(ctx, o.ID, func(cur *order.Order) error {
			delta = cur.SetFill(qty, price, at)
			return nil
		}); err != nil {
			errs = append(errs, err)
			continue
		}
		for i, d := range delta {
			if d == 0 {
				continue
			}
			if err := h.positions.UpdateContractPosition(ctx, o.InstrumentCode, o.ContractIDs[i], d); err != nil {
				h.logger.Warn("contract position update failed, will show as a break",
					logger.ForOrder(h.stacks.Contract.Name(), o).With(zap.String("contract", o.ContractIDs[i]), zap.Int64("delta", d), zap.Error(err))...)
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// rollUpInstrumentFills does the same one level up. A contract child
// contributes its net quantity, so a calendar spread adds nothing, and roll
// pseudo orders stay at zero.
func (h *Handler) rollUpInstrumentFills(ctx context.Context) error {
	orders, err := h.stacks.Instrument.ActiveOrders(ctx)
	if err != nil {
		return fmt.Errorf("list instrument orders: %w", err)
	}
	var errs []error
	for _, o := range orders {
		if o.Locked || !o.HasChildren() || o.OrderType == order.TypeZeroRoll {
			continue
		}
		children, err := childOrders(ctx, h.stacks.Contract, o.Children)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		qty, price, at := sumChildFills(children, 1, true)
		if qty.Equal(o.Fill.ZeroPad(1)) {
			continue
		}
		var delta order.TradeQuantity
		if _, err := h.stacks.Instrument.UpdateOrder(ctx, o.ID, func(cur *order.Order) error {
			delta = cur.SetFill(qty, price, at)
			return nil
		}); err != nil {
			errs = append(errs, err)
			continue
		}
		if delta[0] == 0 {
			continue
		}
		if err := h.positions.UpdateStrategyPosition(ctx, o.StrategyName, o.InstrumentCode, delta[0]); err != nil {
			h.logger.Warn("strategy position update failed, will show as a break",
				logger.ForOrder(h.stacks.Instrument.Name(), o).With(zap.Int64("delta", delta[0]), zap.Error(err))...)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// childOrders skips children that are already gone from the stack.
func childOrders(ctx context.Context, s stack.Stack, ids []uint64) ([]*order.Order, error) {
	out := make([]*order.Order, 0, len(ids))
	for _, id := range ids {
		c, err := s.GetOrder(ctx, id)
		if errors.Is(err, stack.ErrOrderNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// sumChildFills adds up child fills per leg with a quantity weighted
// price. With net set each child counts as one leg holding its total.
func sumChildFills(children []*order.Order, legs int, net bool) (order.TradeQuantity, *decimal.Decimal, time.Time) {
	total := make(order.TradeQuantity, legs)
	var priced []order.Fill
	var last time.Time
	for _, c := range children {
		qty := c.Fill.ZeroPad(len(c.Trade))
		if net {
			qty = order.NewTrade(qty.Total())
		}
		total = total.Add(qty.ZeroPad(legs))
		if c.FillDatetime != nil && c.FillDatetime.After(last) {
			last = *c.FillDatetime
		}
		if c.FilledPrice != nil && !qty.IsZero() {
			priced = append(priced, order.Fill{Qty: qty, Price: *c.FilledPrice})
		}
	}
	_, price, _ := order.MergeFills(priced)
	return total.ZeroPad(legs), price, last
}
