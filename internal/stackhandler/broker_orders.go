package stackhandler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"futuresexec/internal/broker"
	"futuresexec/internal/logger"
	"futuresexec/internal/order"
)

// CreateBrokerOrdersFromContractOrders submits every un-spawned contract
// order to the venue and records the broker order beneath it.
func (h *Handler) CreateBrokerOrdersFromContractOrders(ctx context.Context) error {
	orders, err := h.stacks.Contract.ActiveOrders(ctx)
	if err != nil {
		return fmt.Errorf("list contract orders: %w", err)
	}
	var errs []error
	for _, o := range orders {
		if o.Locked || o.HasChildren() || o.Escalated || o.Remaining().IsZero() {
			continue
		}
		locked, err := ParentLocked(ctx, h.stacks.Instrument, o)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if locked {
			continue
		}
		if err := h.createBrokerOrder(ctx, o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// createBrokerOrder stores the client reference on the contract order
// before submitting, so a submission whose outcome is lost is looked up
// under the same reference next time rather than sent twice.
func (h *Handler) createBrokerOrder(ctx context.Context, o *order.Order) error {
	lc := logger.ForOrder(h.stacks.Contract.Name(), o)
	ref := o.BrokerRef
	if ref == "" {
		ref = h.newRef()
		if _, err := h.stacks.Contract.UpdateOrder(ctx, o.ID, func(cur *order.Order) error {
			cur.BrokerRef = ref
			return nil
		}); err != nil {
			return fmt.Errorf("reserve client ref: %w", err)
		}
		lc.BrokerRef = ref
	}

	req := broker.SubmitRequestFor(o, ref)
	req.Qty = o.Remaining()

	state, err := h.submitOrRecover(ctx, req, o.BrokerRef != "", lc)
	if err == nil && state.Status == broker.StatusRejected {
		err = fmt.Errorf("%w: %s", broker.ErrRejected, state.Reason)
	}
	if err != nil {
		return h.submitFailed(ctx, o, err, lc)
	}

	child := &order.Order{
		Grain:             order.GrainBroker,
		StrategyName:      o.StrategyName,
		InstrumentCode:    o.InstrumentCode,
		ContractIDs:       append([]string(nil), o.ContractIDs...),
		Trade:             req.Qty,
		OrderType:         o.OrderType,
		LimitPrice:        o.LimitPrice,
		ReferencePrice:    o.ReferencePrice,
		ReferenceDatetime: o.ReferenceDatetime,
		ReferenceContract: o.ReferenceContract,
		RollOrder:         o.RollOrder,
		Algo:              o.Algo,
		BrokerRef:         ref,
	}
	submitted := state.SubmittedAt
	if submitted.IsZero() {
		submitted = h.now()
	}
	child.SubmittedAt = &submitted

	ids, err := h.SpawnChildrenForExisting(ctx, h.stacks.Contract, h.stacks.Broker, o.ID, []*order.Order{child})
	if err != nil {
		if _, cerr := h.broker.Cancel(ctx, ref); cerr != nil {
			h.critical(ctx, "broker order live at venue but not recorded, cancel failed",
				lc.With(zap.Error(err), zap.NamedError("cancel_error", cerr))...)
		} else {
			h.critical(ctx, "broker order live at venue but not recorded, cancelled",
				lc.With(zap.Error(err))...)
		}
		h.clearRef(ctx, o.ID, lc)
		return err
	}
	h.logger.Info("broker order created", lc.With(
		zap.Uint64s("broker_order_ids", ids),
		zap.Int64s("qty", req.Qty),
		zap.String("algo", o.Algo),
		zap.String("venue_status", string(state.Status)),
	)...)
	return nil
}

// submitOrRecover submits req. A previous attempt under the same reference,
// or a timeout on this one, is resolved against the venue's own record.
func (h *Handler) submitOrRecover(ctx context.Context, req broker.SubmitRequest, retry bool, lc logger.OrderContext) (broker.OrderState, error) {
	if retry {
		st, err := h.broker.LookupOrder(ctx, req.ClientRef)
		if err != nil {
			return broker.OrderState{}, fmt.Errorf("look up earlier submission: %w", err)
		}
		if st != nil {
			h.logger.Info("found earlier submission at venue", lc.With(zap.String("venue_id", st.VenueID))...)
			return *st, nil
		}
	}
	state, err := h.broker.Submit(ctx, req)
	if !errors.Is(err, broker.ErrTimeout) {
		return state, err
	}
	h.logger.Warn("submit timed out, querying venue", lc.Fields()...)
	st, lerr := h.broker.LookupOrder(ctx, req.ClientRef)
	if lerr != nil {
		return broker.OrderState{}, errors.Join(err, lerr)
	}
	if st == nil {
		return broker.OrderState{}, err
	}
	return *st, nil
}

func (h *Handler) submitFailed(ctx context.Context, o *order.Order, err error, lc logger.OrderContext) error {
	if errors.Is(err, broker.ErrRejected) {
		h.clearRef(ctx, o.ID, lc)
	}
	age := h.now().Sub(o.CreatedAt)
	if o.CreatedAt.IsZero() || age < h.cfg.StaleOrderAge {
		h.logger.Warn("broker submission failed, will retry", lc.With(
			zap.Error(err), zap.Bool("retryable", broker.Retryable(err)))...)
		return err
	}
	if _, uerr := h.stacks.Contract.UpdateOrder(ctx, o.ID, func(cur *order.Order) error {
		cur.Escalated = true
		return nil
	}); uerr != nil {
		return errors.Join(err, uerr)
	}
	h.critical(ctx, "contract order could not be submitted and is stale, escalated",
		lc.With(zap.Duration("age", age), zap.Error(err))...)
	return err
}

// clearRef drops a client reference the venue either refused or that now
// belongs to a cancelled order.
func (h *Handler) clearRef(ctx context.Context, id uint64, lc logger.OrderContext) {
	if _, err := h.stacks.Contract.UpdateOrder(ctx, id, func(cur *order.Order) error {
		cur.BrokerRef = ""
		return nil
	}); err != nil {
		h.logger.Warn("clear client ref failed", lc.With(zap.Error(err))...)
	}
}
