// Package algo picks the execution algorithm for contract orders.
package algo

import (
	"context"
	"strings"

	"futuresexec/internal/order"
)

const (
	Market      = "market"
	Limit       = "limit"
	SpreadLimit = "spread_limit"
)

type Allocator interface {
	// AllocateAlgoToOrders returns the orders with Algo set. The parent is
	// the instrument order the contract orders were split from.
	AllocateAlgoToOrders(ctx context.Context, orders []*order.Order, parent *order.Order) ([]*order.Order, error)
}

// Static allocates by order shape: an explicit limit order keeps the limit
// algo, spreads get Spread, everything else gets Outright. Orders that
// already carry an algo are left alone.
type Static struct {
	Outright string
	Spread   string
}

func NewStatic(outright, spread string) *Static {
	outright = strings.TrimSpace(outright)
	if outright == "" {
		outright = Market
	}
	spread = strings.TrimSpace(spread)
	if spread == "" {
		spread = SpreadLimit
	}
	return &Static{Outright: outright, Spread: spread}
}

func (s *Static) AllocateAlgoToOrders(_ context.Context, orders []*order.Order, _ *order.Order) ([]*order.Order, error) {
	out := make([]*order.Order, 0, len(orders))
	for _, o := range orders {
		c := o.Clone()
		if strings.TrimSpace(c.Algo) == "" {
			c.Algo = s.pick(c)
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Static) pick(o *order.Order) string {
	switch {
	case o.OrderType == order.TypeLimit:
		return Limit
	case o.IsSpread():
		return s.Spread
	default:
		return s.Outright
	}
}
