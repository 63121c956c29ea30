package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"futuresexec/internal/client/venue"
	"futuresexec/internal/order"
)

// Venue adapts the venue REST client to Broker. It maps client references
// to venue ids, caching what it learns and falling back to lookup.
type Venue struct {
	client  *venue.Client
	account string
	logger  *zap.Logger

	mu       sync.RWMutex
	venueIDs map[string]string
	streamed map[string]map[string]Execution // client ref -> fill id -> fill
}

func NewVenue(client *venue.Client, account string, logger *zap.Logger) *Venue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Venue{
		client:   client,
		account:  account,
		logger:   logger,
		venueIDs: make(map[string]string),
		streamed: make(map[string]map[string]Execution),
	}
}

func (v *Venue) Submit(ctx context.Context, req SubmitRequest) (OrderState, error) {
	out, err := v.client.PlaceOrder(ctx, venue.PlaceOrderRequest{
		ClientRef:  req.ClientRef,
		Account:    v.account,
		Instrument: req.Instrument,
		Contracts:  req.Contracts,
		Qty:        req.Qty,
		OrderType:  string(req.OrderType),
		LimitPrice: req.LimitPrice,
		Algo:       req.Algo,
	})
	if err != nil {
		return OrderState{}, mapVenueError(err)
	}
	v.remember(req.ClientRef, out.OrderID)
	return stateFromVenue(out, len(req.Qty)), nil
}

func (v *Venue) Cancel(ctx context.Context, clientRef string) (OrderState, error) {
	id, err := v.venueID(ctx, clientRef)
	if err != nil {
		return OrderState{}, err
	}
	out, err := v.client.CancelOrder(ctx, id)
	if err != nil {
		return OrderState{}, mapVenueError(err)
	}
	return stateFromVenue(out, len(out.FilledQty)), nil
}

func (v *Venue) Modify(ctx context.Context, clientRef string, limit decimal.Decimal) (OrderState, error) {
	id, err := v.venueID(ctx, clientRef)
	if err != nil {
		return OrderState{}, err
	}
	l := limit
	out, err := v.client.ModifyOrder(ctx, id, venue.ModifyOrderRequest{LimitPrice: &l})
	if err != nil {
		return OrderState{}, mapVenueError(err)
	}
	return stateFromVenue(out, len(out.FilledQty)), nil
}

// FillsFor polls the venue. If the poll fails for connectivity reasons
// and the fill stream has delivered fills for the order, those are used.
func (v *Venue) FillsFor(ctx context.Context, clientRef string) ([]Execution, error) {
	id, err := v.venueID(ctx, clientRef)
	if err != nil {
		return nil, err
	}
	fills, err := v.client.ListFills(ctx, id)
	if err != nil {
		mapped := mapVenueError(err)
		if errors.Is(mapped, ErrConnectivity) {
			if cached := v.streamedFills(clientRef); len(cached) > 0 {
				v.logger.Warn("venue fill poll failed, using streamed fills",
					zap.String("client_ref", clientRef), zap.Error(err))
				return cached, nil
			}
		}
		return nil, mapped
	}
	out := make([]Execution, 0, len(fills))
	for _, f := range fills {
		out = append(out, executionFromVenue(f, clientRef))
	}
	return out, nil
}

func (v *Venue) LookupOrder(ctx context.Context, clientRef string) (*OrderState, error) {
	out, err := v.client.GetOrderByClientRef(ctx, clientRef)
	if err != nil {
		return nil, mapVenueError(err)
	}
	if out == nil {
		return nil, nil
	}
	v.remember(clientRef, out.OrderID)
	st := stateFromVenue(out, len(out.FilledQty))
	return &st, nil
}

func (v *Venue) Positions(ctx context.Context) ([]Position, error) {
	items, err := v.client.ListPositions(ctx, v.account)
	if err != nil {
		return nil, mapVenueError(err)
	}
	out := make([]Position, 0, len(items))
	for _, p := range items {
		out = append(out, Position{Instrument: p.Instrument, Contract: p.Contract, Position: p.Position})
	}
	return out, nil
}

func (v *Venue) Quote(ctx context.Context, instrument string, contracts []string) (Quote, error) {
	q, err := v.client.GetQuote(ctx, instrument, contracts)
	if err != nil {
		return Quote{}, mapVenueError(err)
	}
	return Quote{
		Instrument: instrument,
		Contracts:  append([]string(nil), contracts...),
		Bid:        q.Bid,
		Ask:        q.Ask,
		Mid:        q.Mid(),
		At:         q.At,
	}, nil
}

// ObserveFill records a streamed fill. Pass it as the FillStream callback.
func (v *Venue) ObserveFill(f venue.Fill) {
	ref := f.ClientRef
	if ref == "" {
		ref = v.refForVenueID(f.OrderID)
	}
	if ref == "" || f.FillID == "" {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	byID, ok := v.streamed[ref]
	if !ok {
		byID = make(map[string]Execution)
		v.streamed[ref] = byID
	}
	byID[f.FillID] = executionFromVenue(f, ref)
}

func (v *Venue) streamedFills(clientRef string) []Execution {
	v.mu.RLock()
	defer v.mu.RUnlock()
	byID := v.streamed[clientRef]
	out := make([]Execution, 0, len(byID))
	for _, e := range byID {
		out = append(out, e)
	}
	return out
}

func (v *Venue) venueID(ctx context.Context, clientRef string) (string, error) {
	v.mu.RLock()
	id, ok := v.venueIDs[clientRef]
	v.mu.RUnlock()
	if ok {
		return id, nil
	}
	st, err := v.LookupOrder(ctx, clientRef)
	if err != nil {
		return "", err
	}
	if st == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownOrder, clientRef)
	}
	return st.VenueID, nil
}

func (v *Venue) refForVenueID(id string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for ref, vid := range v.venueIDs {
		if vid == id {
			return ref
		}
	}
	return ""
}

func (v *Venue) remember(clientRef, venueID string) {
	if clientRef == "" || venueID == "" {
		return
	}
	v.mu.Lock()
	v.venueIDs[clientRef] = venueID
	v.mu.Unlock()
}

func stateFromVenue(o *venue.Order, legs int) OrderState {
	st := OrderState{
		ClientRef: o.ClientRef,
		VenueID:   o.OrderID,
		Status:    normalizeStatus(o.Status),
		Filled:    order.TradeQuantity(o.FilledQty).ZeroPad(legs),
		AvgPrice:  o.AvgPrice,
		Reason:    o.Failure,
	}
	if o.SubmittedAt != nil {
		st.SubmittedAt = *o.SubmittedAt
	}
	return st
}

func executionFromVenue(f venue.Fill, clientRef string) Execution {
	return Execution{
		ID:        f.FillID,
		ClientRef: clientRef,
		Qty:       order.TradeQuantity(f.Qty).Clone(),
		Price:     f.Price,
		At:        f.FilledAt,
	}
}

func mapVenueError(err error) error {
	if err == nil {
		return nil
	}
	if wait, ok := venue.IsPacing(err); ok {
		return &PacingError{RetryAfter: wait, Cause: err}
	}
	if venue.IsRejected(err) {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	if venue.IsNotFound(err) {
		return fmt.Errorf("%w: %v", ErrUnknownOrder, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrConnectivity, err)
}
