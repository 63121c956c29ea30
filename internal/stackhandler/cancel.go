package stackhandler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"futuresexec/internal/broker"
	"futuresexec/internal/logger"
	"futuresexec/internal/order"
)

var bpsPerUnit = decimal.NewFromInt(10000)

// CancelAndModify cancels broker orders that have been working too long
// and reprices or cancels those whose reference has drifted from the market.
func (h *Handler) CancelAndModify(ctx context.Context) error {
	orders, err := h.workingBrokerOrders(ctx)
	if err != nil {
		return err
	}
	now := h.now()
	var errs []error
	for _, o := range orders {
		if o.CancelRequestedAt != nil {
			continue
		}
		lc := logger.ForOrder(h.stacks.Broker.Name(), o)
		if o.SubmittedAt != nil && now.Sub(*o.SubmittedAt) > h.cfg.CancelAfter {
			if err := h.requestCancel(ctx, o, "working too long", lc); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		mid, deviated, err := h.priceDeviated(ctx, o)
		if err != nil {
			h.logger.Debug("price deviation check skipped", lc.With(zap.Error(err))...)
			continue
		}
		if !deviated {
			continue
		}
		if o.OrderType == order.TypeLimit {
			if err := h.modifyLimit(ctx, o, mid, lc); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if err := h.requestCancel(ctx, o, "price moved away", lc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// workingBrokerOrders are active submitted orders with quantity left.
func (h *Handler) workingBrokerOrders(ctx context.Context) ([]*order.Order, error) {
	orders, err := h.stacks.Broker.ActiveOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list broker orders: %w", err)
	}
	out := orders[:0]
	for _, o := range orders {
		if o.Locked || o.BrokerRef == "" || o.FullyFilled() {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (h *Handler) priceDeviated(ctx context.Context, o *order.Order) (decimal.Decimal, bool, error) {
	if h.cfg.MaxPriceDeviationBps <= 0 {
		return decimal.Zero, false, nil
	}
	ref := o.ReferencePrice
	if o.OrderType == order.TypeLimit {
		ref = o.LimitPrice
	}
	if ref == nil || ref.IsZero() {
		return decimal.Zero, false, nil
	}
	q, err := h.broker.Quote(ctx, o.InstrumentCode, o.ContractIDs)
	if err != nil {
		return decimal.Zero, false, err
	}
	bps := q.Mid.Sub(*ref).Abs().Div(ref.Abs()).Mul(bpsPerUnit)
	return q.Mid, bps.GreaterThan(decimal.NewFromFloat(h.cfg.MaxPriceDeviationBps)), nil
}

func (h *Handler) modifyLimit(ctx context.Context, o *order.Order, price decimal.Decimal, lc logger.OrderContext) error {
	if _, err := h.broker.Modify(ctx, o.BrokerRef, price); err != nil {
		if errors.Is(err, broker.ErrRejected) {
			return h.requestCancel(ctx, o, "modify rejected", lc)
		}
		return fmt.Errorf("modify broker order %d: %w", o.ID, err)
	}
	if _, err := h.stacks.Broker.UpdateOrder(ctx, o.ID, func(cur *order.Order) error {
		cur.LimitPrice = order.DecimalPtr(price)
		return nil
	}); err != nil {
		return err
	}
	h.logger.Info("broker order repriced", lc.With(zap.String("limit", price.String()))...)
	return nil
}

// requestCancel asks the venue to cancel and marks the order so later
// ticks do not ask again.
func (h *Handler) requestCancel(ctx context.Context, o *order.Order, reason string, lc logger.OrderContext) error {
	if _, err := h.broker.Cancel(ctx, o.BrokerRef); err != nil && !errors.Is(err, broker.ErrUnknownOrder) {
		return fmt.Errorf("cancel broker order %d: %w", o.ID, err)
	}
	now := h.now()
	if _, err := h.stacks.Broker.UpdateOrder(ctx, o.ID, func(cur *order.Order) error {
		cur.CancelRequestedAt = &now
		return nil
	}); err != nil {
		return err
	}
	h.logger.Info("broker order cancel requested", lc.With(zap.String("reason", reason))...)
	return nil
}

// CancelAndConfirmAllBrokerOrders cancels every working broker order and
// waits up to timeout for the venue to report each one finished.
func (h *Handler) CancelAndConfirmAllBrokerOrders(ctx context.Context, timeout time.Duration) error {
	orders, err := h.workingBrokerOrders(ctx)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		return nil
	}
	pending := make(map[uint64]*order.Order, len(orders))
	for _, o := range orders {
		lc := logger.ForOrder(h.stacks.Broker.Name(), o)
		if o.CancelRequestedAt == nil {
			if err := h.requestCancel(ctx, o, "end of day", lc); err != nil {
				h.logger.Warn("end of day cancel failed", lc.With(zap.Error(err))...)
			}
		}
		pending[o.ID] = o
	}

	deadline := time.Now().Add(timeout)
	for {
		for id, o := range pending {
			st, err := h.broker.LookupOrder(ctx, o.BrokerRef)
			if err != nil {
				continue
			}
			if st == nil || st.Status.Done() {
				delete(pending, id)
			}
		}
		if len(pending) == 0 || !time.Now().Before(deadline) {
			break
		}
		if err := sleepCtx(ctx, h.pollEvery); err != nil {
			break
		}
	}
	for _, o := range pending {
		h.critical(ctx, "broker order cancel not confirmed",
			logger.ForOrder(h.stacks.Broker.Name(), o).With(zap.Duration("waited", timeout))...)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
