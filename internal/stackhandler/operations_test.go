package stackhandler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"futuresexec/internal/broker"
	"futuresexec/internal/order"
	"futuresexec/internal/repository"
	"futuresexec/internal/stack"
)

// timeoutBroker submits to the paper venue and then reports a timeout, as
// if the response was lost.
type timeoutBroker struct {
	*broker.Paper
	submits int
}

func (b *timeoutBroker) Submit(ctx context.Context, req broker.SubmitRequest) (broker.OrderState, error) {
	b.submits++
	if _, err := b.Paper.Submit(ctx, req); err != nil {
		return broker.OrderState{}, err
	}
	return broker.OrderState{}, broker.ErrTimeout
}

type countingBroker struct {
	*broker.Paper
	cancels int
}

func (b *countingBroker) Cancel(ctx context.Context, ref string) (broker.OrderState, error) {
	b.cancels++
	return b.Paper.Cancel(ctx, ref)
}

func TestSplitClosing(t *testing.T) {
	cases := []struct {
		trade, position  int64
		closing, opening int64
	}{
		{trade: -5, position: 3, closing: -3, opening: -2},
		{trade: -2, position: 3, closing: -2, opening: 0},
		{trade: 4, position: 3, closing: 0, opening: 4},
		{trade: 4, position: 0, closing: 0, opening: 4},
		{trade: 6, position: -6, closing: 6, opening: 0},
	}
	for _, tc := range cases {
		c, o := splitClosing(tc.trade, tc.position)
		if c != tc.closing || o != tc.opening {
			t.Fatalf("split(%d,%d)=(%d,%d) want=(%d,%d)", tc.trade, tc.position, c, o, tc.closing, tc.opening)
		}
	}
}

func TestSpawnChildren_PassiveSplitsAcrossContracts(t *testing.T) {
	th := newHarness(t)
	ctx := context.Background()
	th.setRollState(t, "Passive")
	_ = th.pos.UpdateContractPosition(ctx, "CRUDE_W", "202409", 3)
	id, err := th.set.Instrument.PutOrder(ctx, parentOrder(-5), stack.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := th.h.SpawnChildrenFromInstrumentOrders(ctx); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	got := map[string]int64{}
	for _, c := range activeOrders(t, th.set.Contract) {
		if c.Parent != id || c.OrderType != order.TypeMarket {
			t.Fatalf("child=%+v want market child of %d", c, id)
		}
		got[c.ContractIDs[0]] = c.Trade[0]
	}
	if len(got) != 2 || got["202409"] != -3 || got["202412"] != -2 {
		t.Fatalf("children=%v want 202409:-3 202412:-2", got)
	}

	// Spawned orders are not spawned again.
	if err := th.h.SpawnChildrenFromInstrumentOrders(ctx); err != nil {
		t.Fatalf("spawn again: %v", err)
	}
	if n, _ := th.set.Contract.CountOrders(ctx); n != 2 {
		t.Fatalf("contract orders=%d want=2", n)
	}
}

func TestSpawnChildren_NoOpenDropsOpening(t *testing.T) {
	th := newHarness(t)
	ctx := context.Background()
	th.setRollState(t, "No_Open")
	_ = th.pos.UpdateContractPosition(ctx, "CRUDE_W", "202409", 3)
	_, _ = th.set.Instrument.PutOrder(ctx, parentOrder(-5), stack.PutOptions{})

	if err := th.h.SpawnChildrenFromInstrumentOrders(ctx); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	children := activeOrders(t, th.set.Contract)
	if len(children) != 1 || children[0].ContractIDs[0] != "202409" || children[0].Trade[0] != -3 {
		t.Fatalf("children=%v want only -3 in 202409", children)
	}
}

func TestHandleCompletions_NoOpenParentCompletesWhenChildrenFilled(t *testing.T) {
	th := newHarness(t)
	ctx := context.Background()
	th.setRollState(t, "No_Open")
	th.paper.SetPrice("CRUDE_W", "202409", decimal.RequireFromString("72.5"))
	_ = th.pos.UpdateContractPosition(ctx, "CRUDE_W", "202409", 3)
	_ = th.pos.UpdateStrategyPosition(ctx, "carry", "CRUDE_W", 3)
	id, _ := th.set.Instrument.PutOrder(ctx, parentOrder(-5), stack.PutOptions{})

	if err := th.h.SpawnChildrenFromInstrumentOrders(ctx); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if err := th.h.CreateBrokerOrdersFromContractOrders(ctx); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := th.h.ProcessFills(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := th.h.HandleCompletedOrders(ctx, false, false); err != nil {
		t.Fatalf("complete: %v", err)
	}

	parent, _ := th.set.Instrument.GetOrder(ctx, id)
	if parent.IsActive() || parent.Status != order.StatusCompleted {
		t.Fatalf("instrument order status=%s fill=%v want completed", parent.Status, parent.Fill)
	}
	if _, err := th.set.Instrument.PutOrder(ctx, parentOrder(2), stack.PutOptions{}); err != nil {
		t.Fatalf("next order for strategy: %v", err)
	}
}

func spawnedContractOrder(t *testing.T, th *harness, qty int64) *order.Order {
	t.Helper()
	ctx := context.Background()
	if _, err := th.set.Instrument.PutOrder(ctx, parentOrder(qty), stack.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := th.h.SpawnChildrenFromInstrumentOrders(ctx); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	children := activeOrders(t, th.set.Contract)
	if len(children) != 1 {
		t.Fatalf("contract orders=%d want=1", len(children))
	}
	return children[0]
}

func TestCreateBrokerOrders_Idempotent(t *testing.T) {
	th := newHarness(t)
	ctx := context.Background()
	th.paper.SetAutoFill(false)
	c := spawnedContractOrder(t, th, 5)

	for i := 0; i < 2; i++ {
		if err := th.h.CreateBrokerOrdersFromContractOrders(ctx); err != nil {
			t.Fatalf("create run %d: %v", i, err)
		}
	}
	orders := activeOrders(t, th.set.Broker)
	if len(orders) != 1 {
		t.Fatalf("broker orders=%d want=1", len(orders))
	}
	b := orders[0]
	if b.Parent != c.ID || b.BrokerRef == "" || b.SubmittedAt == nil || !b.Trade.Equal(order.NewTrade(5)) {
		t.Fatalf("broker order=%+v want submitted child of %d", b, c.ID)
	}
	st, err := th.paper.LookupOrder(ctx, b.BrokerRef)
	if err != nil || st == nil {
		t.Fatalf("venue state=%v err=%v want known order", st, err)
	}
}

func TestCreateBrokerOrders_TimeoutResolvedByLookup(t *testing.T) {
	tb := &timeoutBroker{Paper: broker.NewPaper()}
	tb.SetAutoFill(false)
	th := newHarness(t, withBroker(tb))
	ctx := context.Background()
	spawnedContractOrder(t, th, 5)

	if err := th.h.CreateBrokerOrdersFromContractOrders(ctx); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := th.h.CreateBrokerOrdersFromContractOrders(ctx); err != nil {
		t.Fatalf("create again: %v", err)
	}
	if tb.submits != 1 {
		t.Fatalf("submits=%d want=1", tb.submits)
	}
	if n, _ := th.set.Broker.CountOrders(ctx); n != 1 {
		t.Fatalf("broker orders=%d want=1", n)
	}
}

func TestCreateBrokerOrders_StaleRejectionEscalates(t *testing.T) {
	th := newHarness(t)
	ctx := context.Background()
	c := childOrder("202409", 5)
	c.CreatedAt = th.now.Add(-time.Hour)
	id, err := th.set.Contract.PutOrder(ctx, c, stack.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	// No paper price, so the venue rejects.
	if err := th.h.CreateBrokerOrdersFromContractOrders(ctx); err == nil {
		t.Fatalf("want rejection error")
	}
	got, _ := th.set.Contract.GetOrder(ctx, id)
	if !got.Escalated || got.BrokerRef != "" || got.HasChildren() {
		t.Fatalf("order=%+v want escalated, no ref, no children", got)
	}
	if th.notes.count() != 1 {
		t.Fatalf("notes=%v want one critical", th.notes.msgs)
	}
	if err := th.h.CreateBrokerOrdersFromContractOrders(ctx); err != nil {
		t.Fatalf("escalated orders are skipped, got %v", err)
	}
	if th.notes.count() != 1 {
		t.Fatalf("notes=%v want no repeat", th.notes.msgs)
	}
}

func TestCreateBrokerOrders_FreshRejectionRetries(t *testing.T) {
	th := newHarness(t)
	ctx := context.Background()
	c := childOrder("202409", 5)
	c.CreatedAt = th.now.Add(-time.Minute)
	id, _ := th.set.Contract.PutOrder(ctx, c, stack.PutOptions{})

	_ = th.h.CreateBrokerOrdersFromContractOrders(ctx)
	if got, _ := th.set.Contract.GetOrder(ctx, id); got.Escalated {
		t.Fatalf("fresh order escalated")
	}
	th.paper.SetPrice("CRUDE_W", "202409", decimal.RequireFromString("72.5"))
	if err := th.h.CreateBrokerOrdersFromContractOrders(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if n, _ := th.set.Broker.CountOrders(ctx); n != 1 {
		t.Fatalf("broker orders=%d want=1", n)
	}
}

func TestSafeStackRemoval_FilledBrokerOrder(t *testing.T) {
	th := newHarness(t)
	ctx := context.Background()
	th.paper.SetPrice("CRUDE_W", "202409", decimal.RequireFromString("72.5"))
	spawnedContractOrder(t, th, 5)
	if err := th.h.CreateBrokerOrdersFromContractOrders(ctx); err != nil {
		t.Fatalf("create: %v", err)
	}
	b := activeOrders(t, th.set.Broker)[0]
	if !b.FillIsZero() {
		t.Fatalf("fill should not be booked before processing")
	}

	if err := th.h.SafeStackRemoval(ctx); err != nil {
		t.Fatalf("safe removal: %v", err)
	}
	empty, err := th.h.AllStacksEmpty(ctx)
	if err != nil || !empty {
		t.Fatalf("empty=%v err=%v want all stacks empty", empty, err)
	}
	if pos, _ := th.pos.PositionForContract(ctx, "CRUDE_W", "202409"); pos != 5 {
		t.Fatalf("contract position=%d want=5", pos)
	}
	if pos, _ := th.pos.PositionForStrategy(ctx, "carry", "CRUDE_W"); pos != 5 {
		t.Fatalf("strategy position=%d want=5", pos)
	}
	fills, err := th.store.ListFills(ctx, repository.ListFillsParams{Limit: 10})
	if err != nil || len(fills) != 1 {
		t.Fatalf("fills=%v err=%v want one row", fills, err)
	}
	if breaks, _ := th.pos.ListBreaksBetweenContractAndStrategyPositions(ctx); len(breaks) != 0 {
		t.Fatalf("breaks=%v want none", breaks)
	}
}

func TestProcessFills_Idempotent(t *testing.T) {
	th := newHarness(t)
	ctx := context.Background()
	th.paper.SetPrice("CRUDE_W", "202409", decimal.RequireFromString("72.5"))
	th.paper.SetAutoFill(false)
	spawnedContractOrder(t, th, 5)
	_ = th.h.CreateBrokerOrdersFromContractOrders(ctx)
	b := activeOrders(t, th.set.Broker)[0]
	if err := th.paper.FillResting(b.BrokerRef, order.NewTrade(2)); err != nil {
		t.Fatalf("fill: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := th.h.ProcessFills(ctx); err != nil {
			t.Fatalf("process run %d: %v", i, err)
		}
	}
	if pos, _ := th.pos.PositionForContract(ctx, "CRUDE_W", "202409"); pos != 2 {
		t.Fatalf("contract position=%d want=2", pos)
	}
	parent := activeOrders(t, th.set.Instrument)[0]
	if !parent.Fill.Equal(order.NewTrade(2)) || parent.FilledPrice == nil || !parent.FilledPrice.Equal(decimal.RequireFromString("72.5")) {
		t.Fatalf("instrument fill=%v price=%v want 2 @ 72.5", parent.Fill, parent.FilledPrice)
	}

	// Partial fills stay active until end of day.
	if err := th.h.HandleCompletedOrders(ctx, false, false); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(activeOrders(t, th.set.Broker)) != 1 {
		t.Fatalf("partially filled broker order completed early")
	}
}

func TestProcessFills_SkipsChildrenOfLockedParents(t *testing.T) {
	th := newHarness(t)
	ctx := context.Background()
	th.paper.SetPrice("CRUDE_W", "202409", decimal.RequireFromString("72.5"))
	th.paper.SetAutoFill(false)
	c := spawnedContractOrder(t, th, 5)
	_ = th.h.CreateBrokerOrdersFromContractOrders(ctx)
	b := activeOrders(t, th.set.Broker)[0]
	if err := th.paper.FillResting(b.BrokerRef, order.NewTrade(5)); err != nil {
		t.Fatalf("fill: %v", err)
	}

	if err := th.set.Contract.LockOrder(ctx, c.ID); err != nil {
		t.Fatalf("lock contract: %v", err)
	}
	if err := th.h.ProcessFills(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	got, _ := th.set.Broker.GetOrder(ctx, b.ID)
	if !got.Fill.ZeroPad(1).IsZero() {
		t.Fatalf("broker fill=%v want untouched while contract parent is locked", got.Fill)
	}
	if pos, _ := th.pos.PositionForContract(ctx, "CRUDE_W", "202409"); pos != 0 {
		t.Fatalf("contract position=%d want=0", pos)
	}

	_ = th.set.Contract.UnlockOrder(ctx, c.ID)
	parent := activeOrders(t, th.set.Instrument)[0]
	_ = th.set.Instrument.LockOrder(ctx, parent.ID)
	if err := th.h.ProcessFills(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	cur, _ := th.set.Contract.GetOrder(ctx, c.ID)
	if !cur.Fill.ZeroPad(1).IsZero() {
		t.Fatalf("contract fill=%v want untouched while instrument parent is locked", cur.Fill)
	}

	_ = th.set.Instrument.UnlockOrder(ctx, parent.ID)
	if err := th.h.ProcessFills(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	if pos, _ := th.pos.PositionForContract(ctx, "CRUDE_W", "202409"); pos != 5 {
		t.Fatalf("contract position=%d want=5 after unlock", pos)
	}
}

func TestRollFillsLeaveStrategyPositions(t *testing.T) {
	th := newHarness(t)
	ctx := context.Background()
	th.setRollState(t, "Force")
	th.seedPrices(t, "72.50", "71.80")
	th.paper.SetPrice("CRUDE_W", "202409", decimal.RequireFromString("72.5"))
	th.paper.SetPrice("CRUDE_W", "202412", decimal.RequireFromString("71.8"))
	_ = th.pos.UpdateContractPosition(ctx, "CRUDE_W", "202409", -10)
	_ = th.pos.UpdateStrategyPosition(ctx, "carry", "CRUDE_W", -10)

	if err := th.h.GenerateForceRollOrders(ctx); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := th.h.CreateBrokerOrdersFromContractOrders(ctx); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := th.h.ProcessFills(ctx); err != nil {
		t.Fatalf("fills: %v", err)
	}
	if err := th.h.HandleCompletedOrders(ctx, false, false); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if pos, _ := th.pos.PositionForContract(ctx, "CRUDE_W", "202409"); pos != 0 {
		t.Fatalf("priced position=%d want=0", pos)
	}
	if pos, _ := th.pos.PositionForContract(ctx, "CRUDE_W", "202412"); pos != -10 {
		t.Fatalf("forward position=%d want=-10", pos)
	}
	if pos, _ := th.pos.PositionForStrategy(ctx, "carry", "CRUDE_W"); pos != -10 {
		t.Fatalf("strategy position=%d want=-10", pos)
	}
	if n := len(activeOrders(t, th.set.Instrument)); n != 0 {
		t.Fatalf("active instrument orders=%d want=0", n)
	}
	state, _ := th.pos.RollState(ctx, "CRUDE_W")
	if state.String() != "Passive" {
		t.Fatalf("roll state=%s want Passive after roll", state)
	}
}

func TestCancelAndModify_CancelsOnceWhenStale(t *testing.T) {
	cb := &countingBroker{Paper: broker.NewPaper()}
	cb.SetAutoFill(false)
	th := newHarness(t, withBroker(cb))
	ctx := context.Background()
	cid, _ := th.set.Contract.PutOrder(ctx, childOrder("202409", 5), stack.PutOptions{})
	req := broker.SubmitRequest{ClientRef: "ref-1", Instrument: "CRUDE_W", Contracts: []string{"202409"}, Qty: order.NewTrade(5), OrderType: order.TypeMarket}
	if _, err := cb.Paper.Submit(ctx, req); err != nil {
		t.Fatalf("submit: %v", err)
	}
	submitted := th.now.Add(-time.Hour)
	b := &order.Order{
		Grain: order.GrainBroker, StrategyName: "carry", InstrumentCode: "CRUDE_W",
		ContractIDs: []string{"202409"}, Trade: order.NewTrade(5), OrderType: order.TypeMarket,
		Parent: cid, BrokerRef: "ref-1", SubmittedAt: &submitted,
	}
	bid, err := th.set.Broker.PutOrder(ctx, b, stack.PutOptions{})
	if err != nil {
		t.Fatalf("put broker: %v", err)
	}
	_ = th.set.Contract.AddChildren(ctx, cid, []uint64{bid})

	for i := 0; i < 2; i++ {
		if err := th.h.CancelAndModify(ctx); err != nil {
			t.Fatalf("cancel run %d: %v", i, err)
		}
	}
	if cb.cancels != 1 {
		t.Fatalf("cancels=%d want=1", cb.cancels)
	}
	got, _ := th.set.Broker.GetOrder(ctx, bid)
	if got.CancelRequestedAt == nil {
		t.Fatalf("cancel request not recorded")
	}

	// The venue confirmed, so the unfilled order is cleared.
	if err := th.h.HandleCompletedOrders(ctx, false, false); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, _ = th.set.Broker.GetOrder(ctx, bid)
	if got.Status != order.StatusCancelled {
		t.Fatalf("status=%s want cancelled", got.Status)
	}
}

func TestCheckExternalPositionBreak(t *testing.T) {
	th := newHarness(t)
	ctx := context.Background()
	th.paper.SetPrice("CRUDE_W", "202409", decimal.RequireFromString("72.5"))
	_, _ = th.paper.Submit(ctx, broker.SubmitRequest{ClientRef: "x", Instrument: "CRUDE_W", Contracts: []string{"202409"}, Qty: order.NewTrade(3)})
	if err := th.h.CheckExternalPositionBreak(ctx); err != nil {
		t.Fatalf("check: %v", err)
	}
	if th.notes.count() != 1 {
		t.Fatalf("notes=%v want one break", th.notes.msgs)
	}
}

func TestRefreshAdditionalSampling_RecordsMatchedPrices(t *testing.T) {
	th := newHarness(t)
	ctx := context.Background()
	th.paper.SetPrice("CRUDE_W", "202409", decimal.RequireFromString("72.5"))
	th.paper.SetPrice("CRUDE_W", "202412", decimal.RequireFromString("71.8"))
	_, _ = th.set.Instrument.PutOrder(ctx, parentOrder(1), stack.PutOptions{})

	if err := th.h.RefreshAdditionalSampling(ctx); err != nil {
		t.Fatalf("sample: %v", err)
	}
	at, px, err := th.h.prices.LastMatchedDateAndPrices(ctx, "CRUDE_W", []string{"202409", "202412"})
	if err != nil {
		t.Fatalf("matched: %v", err)
	}
	if !at.Equal(th.now) || !px[0].Sub(px[1]).Equal(decimal.RequireFromString("0.7")) {
		t.Fatalf("at=%v prices=%v want spread 0.7 at %v", at, px, th.now)
	}
}
