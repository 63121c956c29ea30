// Package broker is the boundary to the execution venue. Orders are
// identified by the client reference the handler generates before
// submission, so a lost response can always be resolved by lookup.
package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"futuresexec/internal/order"
)

var (
	ErrPacing       = errors.New("broker pacing violation")
	ErrConnectivity = errors.New("broker connectivity")
	ErrRejected     = errors.New("broker rejected order")
	ErrTimeout      = errors.New("broker call timed out")
	ErrUnknownOrder = errors.New("broker does not know order")
)

// PacingError is a rate-limit response. RetryAfter is the venue hint, zero
// if none was given.
type PacingError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *PacingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%v (retry after %s): %v", ErrPacing, e.RetryAfter, e.Cause)
	}
	return fmt.Sprintf("%v (retry after %s)", ErrPacing, e.RetryAfter)
}

func (e *PacingError) Unwrap() error { return ErrPacing }

// Retryable reports whether err is worth retrying on a later tick.
func Retryable(err error) bool {
	return errors.Is(err, ErrPacing) || errors.Is(err, ErrConnectivity) || errors.Is(err, ErrTimeout)
}

type SubmitRequest struct {
	ClientRef  string
	Instrument string
	Contracts  []string
	Qty        order.TradeQuantity
	OrderType  order.OrderType
	LimitPrice *decimal.Decimal
	Algo       string
}

func SubmitRequestFor(o *order.Order, clientRef string) SubmitRequest {
	return SubmitRequest{
		ClientRef:  clientRef,
		Instrument: o.InstrumentCode,
		Contracts:  append([]string(nil), o.ContractIDs...),
		Qty:        o.Trade.Clone(),
		OrderType:  o.OrderType,
		LimitPrice: o.LimitPrice,
		Algo:       o.Algo,
	}
}

type Status string

const (
	StatusWorking   Status = "working"
	StatusFilled    Status = "filled"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
)

func (s Status) Done() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// OrderState is the venue's view of one order.
type OrderState struct {
	ClientRef   string
	VenueID     string
	Status      Status
	Filled      order.TradeQuantity
	AvgPrice    *decimal.Decimal
	Reason      string
	SubmittedAt time.Time
}

// Execution is one venue fill. Qty is per leg.
type Execution struct {
	ID        string
	ClientRef string
	Qty       order.TradeQuantity
	Price     decimal.Decimal
	At        time.Time
}

type Position struct {
	Instrument string
	Contract   string
	Position   int64
}

type Quote struct {
	Instrument string
	Contracts  []string
	Bid        decimal.Decimal
	Ask        decimal.Decimal
	Mid        decimal.Decimal
	At         time.Time
}

type Broker interface {
	Submit(ctx context.Context, req SubmitRequest) (OrderState, error)
	Cancel(ctx context.Context, clientRef string) (OrderState, error)
	Modify(ctx context.Context, clientRef string, limit decimal.Decimal) (OrderState, error)
	// FillsFor returns every fill for the order to date.
	FillsFor(ctx context.Context, clientRef string) ([]Execution, error)
	// LookupOrder returns nil, nil if the venue never saw clientRef.
	LookupOrder(ctx context.Context, clientRef string) (*OrderState, error)
	Positions(ctx context.Context) ([]Position, error)
	Quote(ctx context.Context, instrument string, contracts []string) (Quote, error)
}

// TotalFilled sums executions per leg, padded to legs.
func TotalFilled(execs []Execution, legs int) (order.TradeQuantity, *decimal.Decimal, time.Time) {
	fills := make([]order.Fill, 0, len(execs))
	for _, e := range execs {
		fills = append(fills, order.Fill{Date: e.At, Qty: e.Qty.ZeroPad(legs), Price: e.Price})
	}
	qty, price, at := order.MergeFills(fills)
	return qty.ZeroPad(legs), price, at
}

func normalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "filled", "done":
		return StatusFilled
	case "cancelled", "canceled", "expired":
		return StatusCancelled
	case "rejected", "failed":
		return StatusRejected
	default:
		return StatusWorking
	}
}
