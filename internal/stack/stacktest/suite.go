// Package stacktest runs the same behavioural checks against every
// stack.Stack implementation.
package stacktest

import (
	"context"
	"errors"
	"testing"

	"futuresexec/internal/order"
	"futuresexec/internal/stack"
)

// Factory returns a fresh, empty set of stacks linked parent to child.
type Factory func(t *testing.T) stack.Set

func Run(t *testing.T, newSet Factory) {
	t.Run("PutAssignsIDsAndRejectsDuplicates", func(t *testing.T) { putAndDuplicate(t, newSet(t)) })
	t.Run("ZeroTradeNeedsAllowZero", func(t *testing.T) { zeroTrade(t, newSet(t)) })
	t.Run("LockIsIdempotent", func(t *testing.T) { lockIdempotent(t, newSet(t)) })
	t.Run("MissingOrder", func(t *testing.T) { missing(t, newSet(t)) })
	t.Run("AddChildrenOnce", func(t *testing.T) { addChildrenOnce(t, newSet(t)) })
	t.Run("RemoveGuards", func(t *testing.T) { removeGuards(t, newSet(t)) })
	t.Run("Queries", func(t *testing.T) { queries(t, newSet(t)) })
	t.Run("RemoveAllDeactivated", func(t *testing.T) { removeAllDeactivated(t, newSet(t)) })
	t.Run("UpdateOrderRoundTrip", func(t *testing.T) { updateRoundTrip(t, newSet(t)) })
}

func instrumentOrder(strategy, instrument string, qty int64) *order.Order {
	return &order.Order{
		Grain:          order.GrainInstrument,
		StrategyName:   strategy,
		InstrumentCode: instrument,
		Trade:          order.NewTrade(qty),
		OrderType:      order.TypeBest,
	}
}

func contractOrder(parent uint64, instrument string, contract string, qty int64) *order.Order {
	return &order.Order{
		Grain:          order.GrainContract,
		StrategyName:   "s1",
		InstrumentCode: instrument,
		ContractIDs:    []string{contract},
		Trade:          order.NewTrade(qty),
		OrderType:      order.TypeMarket,
		Parent:         parent,
	}
}

func putAndDuplicate(t *testing.T, set stack.Set) {
	ctx := context.Background()
	id1, err := set.Instrument.PutOrder(ctx, instrumentOrder("s1", "CRUDE_W", 5), stack.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	id2, err := set.Instrument.PutOrder(ctx, instrumentOrder("s1", "GOLD", 1), stack.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if id1 == 0 || id2 == 0 || id1 == id2 {
		t.Fatalf("ids=%d,%d want distinct non-zero", id1, id2)
	}
	_, err = set.Instrument.PutOrder(ctx, instrumentOrder("s1", "CRUDE_W", 2), stack.PutOptions{})
	var dup *stack.DuplicateOrderError
	if !errors.As(err, &dup) {
		t.Fatalf("err=%v want DuplicateOrderError", err)
	}
	if dup.ExistingID != id1 {
		t.Fatalf("existing=%d want %d", dup.ExistingID, id1)
	}

	// A completed order no longer blocks a new one with the same key.
	if _, err := set.Instrument.UpdateOrder(ctx, id1, func(o *order.Order) error {
		o.Status = order.StatusCompleted
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := set.Instrument.PutOrder(ctx, instrumentOrder("s1", "CRUDE_W", 2), stack.PutOptions{}); err != nil {
		t.Fatalf("put after completion: %v", err)
	}
}

func zeroTrade(t *testing.T, set stack.Set) {
	ctx := context.Background()
	_, err := set.Instrument.PutOrder(ctx, instrumentOrder("s1", "CRUDE_W", 0), stack.PutOptions{})
	if !errors.Is(err, order.ErrInvalidOrder) {
		t.Fatalf("err=%v want ErrInvalidOrder", err)
	}
	if _, err := set.Instrument.PutOrder(ctx, instrumentOrder("s1", "CRUDE_W", 0), stack.PutOptions{AllowZero: true}); err != nil {
		t.Fatalf("put with allow zero: %v", err)
	}
}

func lockIdempotent(t *testing.T, set stack.Set) {
	ctx := context.Background()
	id, err := set.Instrument.PutOrder(ctx, instrumentOrder("s1", "CRUDE_W", 5), stack.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := set.Instrument.LockOrder(ctx, id); err != nil {
			t.Fatalf("lock %d: %v", i, err)
		}
	}
	got, err := set.Instrument.GetOrder(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Locked || got.LockedAt == nil {
		t.Fatalf("locked=%v locked_at=%v want locked", got.Locked, got.LockedAt)
	}
	for i := 0; i < 2; i++ {
		if err := set.Instrument.UnlockOrder(ctx, id); err != nil {
			t.Fatalf("unlock %d: %v", i, err)
		}
	}
	got, _ = set.Instrument.GetOrder(ctx, id)
	if got.Locked || got.LockedAt != nil {
		t.Fatalf("locked=%v want unlocked", got.Locked)
	}
}

func missing(t *testing.T, set stack.Set) {
	ctx := context.Background()
	if _, err := set.Contract.GetOrder(ctx, 999); !errors.Is(err, stack.ErrOrderNotFound) {
		t.Fatalf("get err=%v want ErrOrderNotFound", err)
	}
	if err := set.Contract.LockOrder(ctx, 999); !errors.Is(err, stack.ErrOrderNotFound) {
		t.Fatalf("lock err=%v want ErrOrderNotFound", err)
	}
	if err := set.Contract.UnlockOrder(ctx, 999); !errors.Is(err, stack.ErrOrderNotFound) {
		t.Fatalf("unlock err=%v want ErrOrderNotFound", err)
	}
	if err := set.Contract.RemoveOrder(ctx, 999); !errors.Is(err, stack.ErrOrderNotFound) {
		t.Fatalf("remove err=%v want ErrOrderNotFound", err)
	}
}

func addChildrenOnce(t *testing.T, set stack.Set) {
	ctx := context.Background()
	id, err := set.Instrument.PutOrder(ctx, instrumentOrder("s1", "CRUDE_W", 5), stack.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := set.Instrument.AddChildren(ctx, id, []uint64{7, 8}); err != nil {
		t.Fatalf("add children: %v", err)
	}
	if err := set.Instrument.AddChildren(ctx, id, []uint64{9}); !errors.Is(err, stack.ErrChildrenAlreadySet) {
		t.Fatalf("err=%v want ErrChildrenAlreadySet", err)
	}
	got, _ := set.Instrument.GetOrder(ctx, id)
	if len(got.Children) != 2 || got.Children[0] != 7 || got.Children[1] != 8 {
		t.Fatalf("children=%v want [7 8]", got.Children)
	}
}

func removeGuards(t *testing.T, set stack.Set) {
	ctx := context.Background()
	parentID, err := set.Instrument.PutOrder(ctx, instrumentOrder("s1", "CRUDE_W", 5), stack.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	childID, err := set.Contract.PutOrder(ctx, contractOrder(parentID, "CRUDE_W", "202409", 5), stack.PutOptions{})
	if err != nil {
		t.Fatalf("put child: %v", err)
	}
	if err := set.Instrument.AddChildren(ctx, parentID, []uint64{childID}); err != nil {
		t.Fatalf("add children: %v", err)
	}

	if err := set.Instrument.LockOrder(ctx, parentID); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := set.Instrument.RemoveOrder(ctx, parentID); !errors.Is(err, stack.ErrOrderLocked) {
		t.Fatalf("err=%v want ErrOrderLocked", err)
	}
	_ = set.Instrument.UnlockOrder(ctx, parentID)
	if err := set.Instrument.RemoveOrder(ctx, parentID); !errors.Is(err, stack.ErrActiveChildren) {
		t.Fatalf("err=%v want ErrActiveChildren", err)
	}

	if _, err := set.Contract.UpdateOrder(ctx, childID, func(o *order.Order) error {
		o.Status = order.StatusCancelled
		return nil
	}); err != nil {
		t.Fatalf("update child: %v", err)
	}
	if err := set.Instrument.RemoveOrder(ctx, parentID); err != nil {
		t.Fatalf("remove with terminal children: %v", err)
	}
	if _, err := set.Instrument.GetOrder(ctx, parentID); !errors.Is(err, stack.ErrOrderNotFound) {
		t.Fatalf("err=%v want removed", err)
	}
}

func queries(t *testing.T, set stack.Set) {
	ctx := context.Background()
	for _, o := range []*order.Order{
		instrumentOrder("s1", "CRUDE_W", 1),
		instrumentOrder("s2", "CRUDE_W", -1),
		instrumentOrder("s1", "GOLD", 1),
	} {
		if _, err := set.Instrument.PutOrder(ctx, o, stack.PutOptions{}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	names, err := set.Instrument.StrategiesWithOrdersForInstrument(ctx, "CRUDE_W")
	if err != nil {
		t.Fatalf("strategies: %v", err)
	}
	if len(names) != 2 || names[0] != "s1" || names[1] != "s2" {
		t.Fatalf("strategies=%v want [s1 s2]", names)
	}
	items, err := set.Instrument.OrdersForStrategyAndInstrument(ctx, "s1", "GOLD")
	if err != nil {
		t.Fatalf("orders: %v", err)
	}
	if len(items) != 1 || items[0].InstrumentCode != "GOLD" {
		t.Fatalf("orders=%v want one GOLD order", items)
	}
	n, err := set.Instrument.CountOrders(ctx)
	if err != nil || n != 3 {
		t.Fatalf("count=%d err=%v want 3", n, err)
	}
	active, _ := set.Instrument.ActiveOrders(ctx)
	if len(active) != 3 || active[0].ID > active[1].ID {
		t.Fatalf("active=%v want 3 in id order", active)
	}
}

func removeAllDeactivated(t *testing.T, set stack.Set) {
	ctx := context.Background()
	done, _ := set.Instrument.PutOrder(ctx, instrumentOrder("s1", "A", 1), stack.PutOptions{})
	live, _ := set.Instrument.PutOrder(ctx, instrumentOrder("s1", "B", 1), stack.PutOptions{})
	locked, _ := set.Instrument.PutOrder(ctx, instrumentOrder("s1", "C", 1), stack.PutOptions{})
	for _, id := range []uint64{done, locked} {
		if _, err := set.Instrument.UpdateOrder(ctx, id, func(o *order.Order) error {
			o.Status = order.StatusCompleted
			return nil
		}); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	_ = set.Instrument.LockOrder(ctx, locked)

	n, err := set.Instrument.RemoveAllDeactivated(ctx)
	if err != nil {
		t.Fatalf("remove all: %v", err)
	}
	if n != 1 {
		t.Fatalf("removed=%d want 1", n)
	}
	for _, id := range []uint64{live, locked} {
		if _, err := set.Instrument.GetOrder(ctx, id); err != nil {
			t.Fatalf("order %d removed: %v", id, err)
		}
	}
}

func updateRoundTrip(t *testing.T, set stack.Set) {
	ctx := context.Background()
	o := contractOrder(3, "CRUDE_W", "202409", 4)
	o.ContractIDs = []string{"202409", "202412"}
	o.Trade = order.NewTrade(-4, 4)
	id, err := set.Contract.PutOrder(ctx, o, stack.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := set.Contract.UpdateOrder(ctx, id, func(o *order.Order) error {
		o.Fill = order.NewTrade(-1, 1)
		o.Algo = "market"
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !got.Fill.Equal(order.NewTrade(-1, 1)) || got.Algo != "market" {
		t.Fatalf("got fill=%v algo=%s", got.Fill, got.Algo)
	}
	again, _ := set.Contract.GetOrder(ctx, id)
	if again.Parent != 3 || len(again.ContractIDs) != 2 || !again.Trade.Equal(order.NewTrade(-4, 4)) {
		t.Fatalf("stored=%v", again)
	}

	sentinel := errors.New("boom")
	if _, err := set.Contract.UpdateOrder(ctx, id, func(o *order.Order) error {
		o.Algo = "changed"
		return sentinel
	}); !errors.Is(err, sentinel) {
		t.Fatalf("err=%v want sentinel", err)
	}
	again, _ = set.Contract.GetOrder(ctx, id)
	if again.Algo != "market" {
		t.Fatalf("algo=%s want unchanged after failed update", again.Algo)
	}
}
