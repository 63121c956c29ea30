package order

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// TradeQuantity holds one signed quantity per leg.
type TradeQuantity []int64

func NewTrade(legs ...int64) TradeQuantity {
	return TradeQuantity(append([]int64(nil), legs...))
}

func (t TradeQuantity) Clone() TradeQuantity {
	if t == nil {
		return nil
	}
	return append(TradeQuantity(nil), t...)
}

func (t TradeQuantity) IsZero() bool {
	for _, v := range t {
		if v != 0 {
			return false
		}
	}
	return true
}

func (t TradeQuantity) Total() int64 {
	var sum int64
	for _, v := range t {
		sum += v
	}
	return sum
}

func (t TradeQuantity) TotalAbs() int64 {
	var sum int64
	for _, v := range t {
		sum += abs64(v)
	}
	return sum
}

func (t TradeQuantity) Equal(other TradeQuantity) bool {
	if len(t) != len(other) {
		return false
	}
	for i := range t {
		if t[i] != other[i] {
			return false
		}
	}
	return true
}

// ZeroPad returns a copy of length n, padding missing legs with zero.
func (t TradeQuantity) ZeroPad(n int) TradeQuantity {
	out := make(TradeQuantity, n)
	copy(out, t)
	return out
}

func (t TradeQuantity) Add(other TradeQuantity) TradeQuantity {
	n := len(t)
	if len(other) > n {
		n = len(other)
	}
	out := t.ZeroPad(n)
	for i, v := range other {
		out[i] += v
	}
	return out
}

func (t TradeQuantity) Sub(other TradeQuantity) TradeQuantity {
	return t.Add(other.Neg())
}

func (t TradeQuantity) Neg() TradeQuantity {
	out := make(TradeQuantity, len(t))
	for i, v := range t {
		out[i] = -v
	}
	return out
}

// Fill is one execution report against a broker order.
type Fill struct {
	Date  time.Time
	Qty   TradeQuantity
	Price decimal.Decimal
}

var ErrMultiLegFill = errors.New("fill price for multi-leg order is ambiguous")

// MergeFills sums quantities and returns the quantity weighted average price.
// The price is nil when nothing has filled.
func MergeFills(fills []Fill) (TradeQuantity, *decimal.Decimal, time.Time) {
	var (
		total    TradeQuantity
		notional = decimal.Zero
		weight   int64
		last     time.Time
	)
	for _, f := range fills {
		total = total.Add(f.Qty)
		w := f.Qty.TotalAbs()
		notional = notional.Add(f.Price.Mul(decimal.NewFromInt(w)))
		weight += w
		if f.Date.After(last) {
			last = f.Date
		}
	}
	if weight == 0 {
		return total, nil, last
	}
	avg := notional.Div(decimal.NewFromInt(weight))
	return total, &avg, last
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// FillFromOrder reads the cumulative fill of a single-leg order.
func FillFromOrder(o *Order) (Fill, error) {
	if o == nil {
		return Fill{}, ErrInvalidOrder
	}
	if len(o.Trade) != 1 {
		return Fill{}, ErrMultiLegFill
	}
	f := Fill{Qty: o.Fill.ZeroPad(1)}
	if o.FilledPrice != nil {
		f.Price = *o.FilledPrice
	}
	if o.FillDatetime != nil {
		f.Date = *o.FillDatetime
	}
	return f, nil
}
