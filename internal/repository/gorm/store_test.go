package gormrepository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"futuresexec/internal/db/dbtest"
	"futuresexec/internal/models"
	"futuresexec/internal/repository"
	"futuresexec/internal/stack"
	"futuresexec/internal/stack/stacktest"
)

func TestOrderStack(t *testing.T) {
	stacktest.Run(t, func(t *testing.T) stack.Set {
		return New(dbtest.Open(t)).Stacks()
	})
}

func TestAddContractPosition_Accumulates(t *testing.T) {
	store := New(dbtest.Open(t))
	ctx := context.Background()
	for _, delta := range []int64{5, -2, -3, 4} {
		if err := store.AddContractPosition(ctx, "CRUDE_W", "202409", delta); err != nil {
			t.Fatalf("add %d: %v", delta, err)
		}
	}
	pos, err := store.GetContractPosition(ctx, "CRUDE_W", "202409")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if pos != 4 {
		t.Fatalf("position=%d want=4", pos)
	}
	if other, _ := store.GetContractPosition(ctx, "CRUDE_W", "202412"); other != 0 {
		t.Fatalf("untouched contract=%d want=0", other)
	}
	items, err := store.ListContractPositions(ctx, repository.ListPositionsParams{NonZero: true})
	if err != nil || len(items) != 1 {
		t.Fatalf("items=%v err=%v want one row", items, err)
	}
}

func TestAddStrategyPosition_Accumulates(t *testing.T) {
	store := New(dbtest.Open(t))
	ctx := context.Background()
	_ = store.AddStrategyPosition(ctx, "carry", "CRUDE_W", -10)
	_ = store.AddStrategyPosition(ctx, "carry", "CRUDE_W", 3)
	_ = store.AddStrategyPosition(ctx, "trend", "CRUDE_W", 1)
	pos, err := store.GetStrategyPosition(ctx, "carry", "CRUDE_W")
	if err != nil || pos != -7 {
		t.Fatalf("position=%d err=%v want=-7", pos, err)
	}
	strategy := "trend"
	items, _ := store.ListStrategyPositions(ctx, repository.ListPositionsParams{Strategy: &strategy})
	if len(items) != 1 || items[0].Position != 1 {
		t.Fatalf("items=%v want trend=1", items)
	}
}

func TestLastMatchedPrices_SkipsUnmatchedSamples(t *testing.T) {
	store := New(dbtest.Open(t))
	ctx := context.Background()
	t0 := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	err := store.InsertContractPrices(ctx, []models.ContractPrice{
		{InstrumentCode: "CRUDE_W", ContractID: "202409", Price: decimal.RequireFromString("72.5"), SampledAt: t0},
		{InstrumentCode: "CRUDE_W", ContractID: "202412", Price: decimal.RequireFromString("71.8"), SampledAt: t0},
		{InstrumentCode: "CRUDE_W", ContractID: "202409", Price: decimal.RequireFromString("73"), SampledAt: t1},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	at, prices, found, err := store.LastMatchedPrices(ctx, "CRUDE_W", []string{"202409", "202412"})
	if err != nil || !found {
		t.Fatalf("found=%v err=%v", found, err)
	}
	if !at.Equal(t0) {
		t.Fatalf("at=%v want=%v", at, t0)
	}
	if !prices["202409"].Equal(decimal.RequireFromString("72.5")) || !prices["202412"].Equal(decimal.RequireFromString("71.8")) {
		t.Fatalf("prices=%v", prices)
	}
	if _, _, found, _ := store.LastMatchedPrices(ctx, "CRUDE_W", []string{"202409", "203001"}); found {
		t.Fatalf("found match for contract without prices")
	}
}

func TestRollStateUpsert(t *testing.T) {
	store := New(dbtest.Open(t))
	ctx := context.Background()
	if err := store.UpsertRollState(ctx, &models.RollStateRecord{InstrumentCode: "CRUDE_W", State: "Passive"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.UpsertRollState(ctx, &models.RollStateRecord{InstrumentCode: "CRUDE_W", State: "Force"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	item, err := store.GetRollState(ctx, "CRUDE_W")
	if err != nil || item == nil || item.State != "Force" {
		t.Fatalf("item=%v err=%v want Force", item, err)
	}
	missing, err := store.GetRollState(ctx, "GOLD")
	if err != nil || missing != nil {
		t.Fatalf("missing=%v err=%v want nil,nil", missing, err)
	}
}

func TestAcknowledgeAlert(t *testing.T) {
	store := New(dbtest.Open(t))
	ctx := context.Background()
	alert := &models.OperatorAlert{Level: "critical", Source: "stack_handler", Message: "stuck lock"}
	if err := store.InsertAlert(ctx, alert); err != nil {
		t.Fatalf("insert: %v", err)
	}
	n, _ := store.CountAlerts(ctx, repository.ListAlertsParams{Unacknowledged: true})
	if n != 1 {
		t.Fatalf("unacknowledged=%d want=1", n)
	}
	ok, err := store.AcknowledgeAlert(ctx, alert.ID, time.Now())
	if err != nil || !ok {
		t.Fatalf("ack ok=%v err=%v", ok, err)
	}
	ok, _ = store.AcknowledgeAlert(ctx, alert.ID, time.Now())
	if ok {
		t.Fatalf("second ack should be a no-op")
	}
	n, _ = store.CountAlerts(ctx, repository.ListAlertsParams{Unacknowledged: true})
	if n != 0 {
		t.Fatalf("unacknowledged=%d want=0", n)
	}
}
