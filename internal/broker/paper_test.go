package broker

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"futuresexec/internal/order"
)

func newPaperWithCrude() *Paper {
	p := NewPaper()
	p.SetPrice("CRUDE_W", "202409", decimal.RequireFromString("72.50"))
	p.SetPrice("CRUDE_W", "202412", decimal.RequireFromString("71.80"))
	return p
}

func TestPaper_SpreadFillsAtQuotedSpread(t *testing.T) {
	p := newPaperWithCrude()
	ctx := context.Background()
	st, err := p.Submit(ctx, SubmitRequest{
		ClientRef:  "ref-1",
		Instrument: "CRUDE_W",
		Contracts:  []string{"202409", "202412"},
		Qty:        order.NewTrade(10, -10),
		OrderType:  order.TypeMarket,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if st.Status != StatusFilled || !st.Filled.Equal(order.NewTrade(10, -10)) {
		t.Fatalf("state=%+v", st)
	}
	if st.AvgPrice == nil || !st.AvgPrice.Equal(decimal.RequireFromString("0.70")) {
		t.Fatalf("avg=%v want=0.70", st.AvgPrice)
	}
	positions, _ := p.Positions(ctx)
	if len(positions) != 2 || positions[0].Position != 10 || positions[1].Position != -10 {
		t.Fatalf("positions=%+v", positions)
	}
}

func TestPaper_SubmitIsIdempotentOnClientRef(t *testing.T) {
	p := newPaperWithCrude()
	ctx := context.Background()
	req := SubmitRequest{ClientRef: "ref-1", Instrument: "CRUDE_W", Contracts: []string{"202409"}, Qty: order.NewTrade(2), OrderType: order.TypeMarket}
	_, _ = p.Submit(ctx, req)
	_, _ = p.Submit(ctx, req)
	fills, _ := p.FillsFor(ctx, "ref-1")
	if len(fills) != 1 {
		t.Fatalf("fills=%d want=1", len(fills))
	}
}

func TestPaper_RestingOrderCancel(t *testing.T) {
	p := newPaperWithCrude()
	p.SetAutoFill(false)
	ctx := context.Background()
	_, err := p.Submit(ctx, SubmitRequest{ClientRef: "ref-2", Instrument: "CRUDE_W", Contracts: []string{"202409"}, Qty: order.NewTrade(4), OrderType: order.TypeMarket})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := p.FillResting("ref-2", order.NewTrade(1)); err != nil {
		t.Fatalf("partial fill: %v", err)
	}
	st, _ := p.Cancel(ctx, "ref-2")
	if st.Status != StatusCancelled || !st.Filled.Equal(order.NewTrade(1)) {
		t.Fatalf("state=%+v", st)
	}
	if _, err := p.Modify(ctx, "ref-2", decimal.NewFromInt(70)); !errors.Is(err, ErrRejected) {
		t.Fatalf("modify cancelled err=%v want ErrRejected", err)
	}
	missing, err := p.LookupOrder(ctx, "nope")
	if missing != nil || err != nil {
		t.Fatalf("lookup missing=%v err=%v", missing, err)
	}
}

func TestPaper_NoPriceRejects(t *testing.T) {
	p := NewPaper()
	_, err := p.Submit(context.Background(), SubmitRequest{ClientRef: "r", Instrument: "GOLD", Contracts: []string{"202412"}, Qty: order.NewTrade(1)})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("err=%v want ErrRejected", err)
	}
}
