package broker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"futuresexec/internal/order"
)

// Paper is an in-process venue. With AutoFill on (the default) market and
// best orders fill immediately at the quote and limit orders at their
// limit price. Multi-leg prices are expressed as first leg minus the rest.
type Paper struct {
	mu        sync.Mutex
	autoFill  bool
	prices    map[string]decimal.Decimal // instrument|contract
	orders    map[string]*paperOrder
	positions map[string]int64 // instrument|contract
	now       func() time.Time
}

type paperOrder struct {
	req   SubmitRequest
	state OrderState
	fills []Execution
}

func NewPaper() *Paper {
	return &Paper{
		autoFill:  true,
		prices:    make(map[string]decimal.Decimal),
		orders:    make(map[string]*paperOrder),
		positions: make(map[string]int64),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (p *Paper) SetAutoFill(on bool) {
	p.mu.Lock()
	p.autoFill = on
	p.mu.Unlock()
}

func (p *Paper) SetPrice(instrument, contract string, price decimal.Decimal) {
	p.mu.Lock()
	p.prices[paperKey(instrument, contract)] = price
	p.mu.Unlock()
}

func (p *Paper) Submit(_ context.Context, req SubmitRequest) (OrderState, error) {
	if strings.TrimSpace(req.ClientRef) == "" {
		return OrderState{}, fmt.Errorf("%w: missing client ref", ErrRejected)
	}
	if len(req.Qty) == 0 || len(req.Qty) != len(req.Contracts) {
		return OrderState{}, fmt.Errorf("%w: %d legs for %d contracts", ErrRejected, len(req.Qty), len(req.Contracts))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.orders[req.ClientRef]; ok {
		return existing.state, nil
	}
	po := &paperOrder{
		req: req,
		state: OrderState{
			ClientRef:   req.ClientRef,
			VenueID:     "paper-" + uuid.NewString(),
			Status:      StatusWorking,
			Filled:      make(order.TradeQuantity, len(req.Qty)),
			SubmittedAt: p.now(),
		},
	}
	p.orders[req.ClientRef] = po
	if p.autoFill {
		if err := p.fillLocked(po, req.Qty); err != nil {
			delete(p.orders, req.ClientRef)
			return OrderState{}, err
		}
	}
	return po.state, nil
}

// FillResting fills qty of a working order at its current price. Used when
// AutoFill is off.
func (p *Paper) FillResting(clientRef string, qty order.TradeQuantity) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	po, ok := p.orders[clientRef]
	if !ok {
		return ErrUnknownOrder
	}
	if po.state.Status.Done() {
		return fmt.Errorf("%w: order %s is %s", ErrRejected, clientRef, po.state.Status)
	}
	return p.fillLocked(po, qty)
}

func (p *Paper) fillLocked(po *paperOrder, qty order.TradeQuantity) error {
	price, err := p.priceLocked(po.req)
	if err != nil {
		return err
	}
	exec := Execution{
		ID:        fmt.Sprintf("%s-%d", po.req.ClientRef, len(po.fills)+1),
		ClientRef: po.req.ClientRef,
		Qty:       qty.Clone(),
		Price:     price,
		At:        p.now(),
	}
	po.fills = append(po.fills, exec)
	for i, c := range po.req.Contracts {
		p.positions[paperKey(po.req.Instrument, c)] += qty[i]
	}
	filled, avg, _ := TotalFilled(po.fills, len(po.req.Qty))
	po.state.Filled = filled
	po.state.AvgPrice = avg
	if filled.Equal(po.req.Qty) {
		po.state.Status = StatusFilled
	}
	return nil
}

func (p *Paper) priceLocked(req SubmitRequest) (decimal.Decimal, error) {
	if req.OrderType == order.TypeLimit && req.LimitPrice != nil {
		return *req.LimitPrice, nil
	}
	return p.combinedLocked(req.Instrument, req.Contracts)
}

func (p *Paper) combinedLocked(instrument string, contracts []string) (decimal.Decimal, error) {
	var out decimal.Decimal
	for i, c := range contracts {
		px, ok := p.prices[paperKey(instrument, c)]
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: no paper price for %s %s", ErrRejected, instrument, c)
		}
		if i == 0 {
			out = px
		} else {
			out = out.Sub(px)
		}
	}
	return out, nil
}

func (p *Paper) Cancel(_ context.Context, clientRef string) (OrderState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	po, ok := p.orders[clientRef]
	if !ok {
		return OrderState{}, ErrUnknownOrder
	}
	if !po.state.Status.Done() {
		po.state.Status = StatusCancelled
	}
	return po.state, nil
}

func (p *Paper) Modify(_ context.Context, clientRef string, limit decimal.Decimal) (OrderState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	po, ok := p.orders[clientRef]
	if !ok {
		return OrderState{}, ErrUnknownOrder
	}
	if po.state.Status.Done() {
		return po.state, fmt.Errorf("%w: order %s is %s", ErrRejected, clientRef, po.state.Status)
	}
	l := limit
	po.req.LimitPrice = &l
	po.req.OrderType = order.TypeLimit
	return po.state, nil
}

func (p *Paper) FillsFor(_ context.Context, clientRef string) ([]Execution, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	po, ok := p.orders[clientRef]
	if !ok {
		return nil, ErrUnknownOrder
	}
	out := make([]Execution, len(po.fills))
	copy(out, po.fills)
	return out, nil
}

func (p *Paper) LookupOrder(_ context.Context, clientRef string) (*OrderState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	po, ok := p.orders[clientRef]
	if !ok {
		return nil, nil
	}
	st := po.state
	st.Filled = po.state.Filled.Clone()
	return &st, nil
}

func (p *Paper) Positions(_ context.Context) ([]Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Position, 0, len(p.positions))
	for key, pos := range p.positions {
		instrument, contract, _ := strings.Cut(key, "|")
		out = append(out, Position{Instrument: instrument, Contract: contract, Position: pos})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Instrument != out[j].Instrument {
			return out[i].Instrument < out[j].Instrument
		}
		return out[i].Contract < out[j].Contract
	})
	return out, nil
}

func (p *Paper) Quote(_ context.Context, instrument string, contracts []string) (Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mid, err := p.combinedLocked(instrument, contracts)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Instrument: instrument,
		Contracts:  append([]string(nil), contracts...),
		Bid:        mid,
		Ask:        mid,
		Mid:        mid,
		At:         p.now(),
	}, nil
}

func paperKey(instrument, contract string) string {
	return instrument + "|" + contract
}
