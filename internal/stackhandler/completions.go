package stackhandler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"futuresexec/internal/logger"
	"futuresexec/internal/order"
	"futuresexec/internal/stack"
)

// HandleCompletedOrders deactivates finished orders from the broker stack
// upward. A parent is considered only once none of its children is active.
// allowPartial completes orders with some fill, allowZero cancels orders
// with none; both are meant for end of day.
func (h *Handler) HandleCompletedOrders(ctx context.Context, allowPartial, allowZero bool) error {
	var errs []error
	if err := h.completeBrokerOrders(ctx, allowPartial, allowZero); err != nil {
		errs = append(errs, err)
	}
	if err := h.completeParents(ctx, h.stacks.Contract, h.stacks.Broker, allowPartial, allowZero); err != nil {
		errs = append(errs, err)
	}
	if err := h.completeParents(ctx, h.stacks.Instrument, h.stacks.Contract, allowPartial, allowZero); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (h *Handler) completeBrokerOrders(ctx context.Context, allowPartial, allowZero bool) error {
	orders, err := h.stacks.Broker.ActiveOrders(ctx)
	if err != nil {
		return fmt.Errorf("list broker orders: %w", err)
	}
	var errs []error
	for _, o := range orders {
		if o.Locked {
			continue
		}
		locked, err := ParentLocked(ctx, h.stacks.Contract, o)
		if err != nil || locked {
			continue
		}
		done := o.FullyFilled()
		if !done && o.CancelRequestedAt != nil && o.BrokerRef != "" {
			st, err := h.broker.LookupOrder(ctx, o.BrokerRef)
			done = err == nil && (st == nil || st.Status.Done())
		}
		status, ok := finalStatus(o, done, allowPartial, allowZero)
		if !ok {
			continue
		}
		if err := h.deactivate(ctx, h.stacks.Broker, o, status); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Handler) completeParents(ctx context.Context, parents, children stack.Stack, allowPartial, allowZero bool) error {
	orders, err := parents.ActiveOrders(ctx)
	if err != nil {
		return fmt.Errorf("list %s orders: %w", parents.Name(), err)
	}
	var errs []error
	for _, o := range orders {
		if o.Locked {
			continue
		}
		if !o.HasChildren() {
			// Never spawned; only end of day clears these.
			if allowZero && o.FillIsZero() {
				if err := h.deactivate(ctx, parents, o, order.StatusCancelled); err != nil {
					errs = append(errs, err)
				}
			}
			continue
		}
		active, err := children.AnyActive(ctx, o.Children)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if active {
			continue
		}
		kids, err := childOrders(ctx, children, o.Children)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		status, ok := finalStatus(o, o.FullyFilled(), allowPartial, allowZero)
		if allFilled(kids) {
			// Spawning may trade less than the parent asked for.
			status, ok = order.StatusCompleted, true
		}
		if !ok {
			continue
		}
		if err := h.deactivate(ctx, parents, o, status); err != nil {
			errs = append(errs, err)
			continue
		}
		if o.Grain == order.GrainInstrument && o.RollOrder {
			if _, err := h.positions.CheckAndAutoUpdateRollState(ctx, o.InstrumentCode); err != nil {
				h.logger.Warn("roll state check after roll failed", logger.ForOrder(parents.Name(), o).With(zap.Error(err))...)
			}
		}
	}
	return errors.Join(errs...)
}

func allFilled(children []*order.Order) bool {
	if len(children) == 0 {
		return false
	}
	for _, c := range children {
		if !c.FullyFilled() {
			return false
		}
	}
	return true
}

// finalStatus decides whether o can be deactivated and with which status.
// done means the order will not fill further.
func finalStatus(o *order.Order, done, allowPartial, allowZero bool) (order.Status, bool) {
	switch {
	case o.FullyFilled():
		return order.StatusCompleted, true
	case o.FillIsZero():
		if done || allowZero {
			return order.StatusCancelled, true
		}
	case done || allowPartial:
		return order.StatusCompleted, true
	}
	return "", false
}

func (h *Handler) deactivate(ctx context.Context, s stack.Stack, o *order.Order, status order.Status) error {
	_, err := s.UpdateOrder(ctx, o.ID, func(cur *order.Order) error {
		if !cur.IsActive() {
			return nil
		}
		cur.Status = status
		return nil
	})
	if err != nil {
		return fmt.Errorf("deactivate %s order %d: %w", s.Name(), o.ID, err)
	}
	h.logger.Info("order deactivated", logger.ForOrder(s.Name(), o).With(
		zap.String("status", string(status)), zap.Int64s("filled", o.Fill))...)
	return nil
}
