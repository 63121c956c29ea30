package stackhandler

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"futuresexec/internal/logger"
	"futuresexec/internal/prices"
)

const samplingSource = "venue_quote"

// RefreshAdditionalSampling records venue quotes for the priced and forward
// contracts of every instrument with active orders, all under one
// timestamp so the two prices match for roll valuation.
func (h *Handler) RefreshAdditionalSampling(ctx context.Context) error {
	if h.sampler == nil {
		return nil
	}
	instruments, err := h.instrumentsWithActiveOrders(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, instrument := range instruments {
		if err := h.sampleInstrument(ctx, instrument); err != nil {
			h.logger.Warn("price sampling failed", logger.InstrumentContext{Instrument: instrument}.With(zap.Error(err))...)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Handler) sampleInstrument(ctx context.Context, instrument string) error {
	priced, err := h.contracts.PricedContractID(ctx, instrument)
	if err != nil {
		return err
	}
	forward, err := h.contracts.ForwardContractID(ctx, instrument)
	if err != nil {
		return err
	}
	at := h.now()
	samples := make([]prices.Sample, 0, 2)
	for _, contract := range uniqueStrings(priced, forward) {
		q, err := h.broker.Quote(ctx, instrument, []string{contract})
		if err != nil {
			return fmt.Errorf("quote %s %s: %w", instrument, contract, err)
		}
		if q.Mid.IsZero() {
			return fmt.Errorf("quote %s %s: no mid price", instrument, contract)
		}
		samples = append(samples, prices.Sample{Contract: contract, Price: q.Mid})
	}
	return h.sampler.Record(ctx, instrument, at, samplingSource, samples)
}

func (h *Handler) instrumentsWithActiveOrders(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	for _, s := range h.stacks.All() {
		orders, err := s.ActiveOrders(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s orders: %w", s.Name(), err)
		}
		for _, o := range orders {
			seen[o.InstrumentCode] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func uniqueStrings(items ...string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		dup := false
		for _, o := range out {
			if o == item {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, item)
		}
	}
	return out
}
