package positions

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"futuresexec/internal/broker"
	"futuresexec/internal/db/dbtest"
	"futuresexec/internal/models"
	gormrepository "futuresexec/internal/repository/gorm"
	"futuresexec/internal/rollstate"
)

type notifierStub struct {
	msgs []string
	err  error
}

func (n *notifierStub) Critical(_ context.Context, msg string, _ ...zap.Field) error {
	n.msgs = append(n.msgs, msg)
	return n.err
}

func newTestService(t *testing.T) (*Service, *gormrepository.Store, *notifierStub) {
	t.Helper()
	store := gormrepository.New(dbtest.Open(t))
	n := &notifierStub{}
	svc := New(store, n, nil)
	err := store.UpsertInstrumentContracts(context.Background(), &models.InstrumentContracts{
		InstrumentCode: "CRUDE_W", PricedContractID: "202409", ForwardContractID: "202412",
	})
	if err != nil {
		t.Fatalf("seed contracts: %v", err)
	}
	return svc, store, n
}

func TestStrategyWithLargestAbsPosition_TieTakesFirstSorted(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_ = svc.UpdateStrategyPosition(ctx, "trend", "CRUDE_W", 5)
	_ = svc.UpdateStrategyPosition(ctx, "carry", "CRUDE_W", -5)
	_ = svc.UpdateStrategyPosition(ctx, "value", "CRUDE_W", 2)
	name, pos, err := svc.StrategyWithLargestAbsPosition(ctx, "CRUDE_W")
	if err != nil || name != "carry" || pos != -5 {
		t.Fatalf("name=%s pos=%d err=%v want carry,-5", name, pos, err)
	}
	if _, _, err := svc.StrategyWithLargestAbsPosition(ctx, "GOLD"); !errors.Is(err, ErrNoStrategyPosition) {
		t.Fatalf("err=%v want ErrNoStrategyPosition", err)
	}
}

func TestListBreaks(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_ = svc.UpdateContractPosition(ctx, "CRUDE_W", "202409", -10)
	_ = svc.UpdateStrategyPosition(ctx, "carry", "CRUDE_W", -10)
	_ = svc.UpdateContractPosition(ctx, "GOLD", "202412", 3)
	_ = svc.UpdateStrategyPosition(ctx, "trend", "GOLD", 2)
	breaks, err := svc.ListBreaksBetweenContractAndStrategyPositions(ctx)
	if err != nil {
		t.Fatalf("breaks: %v", err)
	}
	if len(breaks) != 1 || breaks[0].Instrument != "GOLD" || breaks[0].ContractTotal != 3 || breaks[0].StrategyTotal != 2 {
		t.Fatalf("breaks=%+v want one GOLD break 3 vs 2", breaks)
	}
}

func TestExternalBreaks(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_ = svc.UpdateContractPosition(ctx, "CRUDE_W", "202409", -10)
	live := []broker.Position{
		{Instrument: "CRUDE_W", Contract: "202409", Position: -10},
		{Instrument: "CRUDE_W", Contract: "202412", Position: 1},
	}
	breaks, err := svc.ExternalBreaks(ctx, live)
	if err != nil || len(breaks) != 1 || breaks[0].Contract != "202412" || breaks[0].Venue != 1 || breaks[0].Recorded != 0 {
		t.Fatalf("breaks=%+v err=%v", breaks, err)
	}
}

func TestSetRollState_ValidatesAgainstTable(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	// Flat priced position: Force is not reachable from No_Roll.
	err := svc.SetRollState(ctx, "CRUDE_W", rollstate.Force)
	var te *rollstate.TransitionError
	if !errors.As(err, &te) || te.From != rollstate.NoRoll || te.PricedPosition != 0 {
		t.Fatalf("err=%v want TransitionError from No_Roll", err)
	}
	_ = svc.UpdateContractPosition(ctx, "CRUDE_W", "202409", -10)
	if err := svc.SetRollState(ctx, "CRUDE_W", rollstate.Force); err != nil {
		t.Fatalf("set Force: %v", err)
	}
	state, _ := svc.RollState(ctx, "CRUDE_W")
	if state != rollstate.Force {
		t.Fatalf("state=%s want=Force", state)
	}
	if err := svc.SetRollState(ctx, "CRUDE_W", rollstate.RollAdjusted); !errors.As(err, &te) {
		t.Fatalf("Roll_Adjusted with position err=%v want TransitionError", err)
	}
}

func TestCheckAndAutoUpdateRollState_ResetsFlatForce(t *testing.T) {
	svc, store, n := newTestService(t)
	ctx := context.Background()
	_ = store.UpsertRollState(ctx, &models.RollStateRecord{InstrumentCode: "CRUDE_W", State: string(rollstate.Force)})
	changed, err := svc.CheckAndAutoUpdateRollState(ctx, "CRUDE_W")
	if err != nil || !changed {
		t.Fatalf("changed=%v err=%v want true", changed, err)
	}
	state, _ := svc.RollState(ctx, "CRUDE_W")
	if state != rollstate.Passive {
		t.Fatalf("state=%s want=Passive", state)
	}
	if len(n.msgs) != 1 {
		t.Fatalf("notifications=%d want=1", len(n.msgs))
	}
	changed, _ = svc.CheckAndAutoUpdateRollState(ctx, "CRUDE_W")
	if changed {
		t.Fatalf("second check should not change Passive")
	}
}

func TestCompleteRollAdjusted(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	if err := svc.CompleteRollAdjusted(ctx, "CRUDE_W"); err == nil {
		t.Fatalf("expected error when not Roll_Adjusted")
	}
	_ = store.UpsertRollState(ctx, &models.RollStateRecord{InstrumentCode: "CRUDE_W", State: string(rollstate.RollAdjusted)})
	if err := svc.CompleteRollAdjusted(ctx, "CRUDE_W"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	state, _ := svc.RollState(ctx, "CRUDE_W")
	if state != rollstate.NoRoll {
		t.Fatalf("state=%s want=No_Roll", state)
	}
}

func TestInstrumentsWithPositions(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_ = svc.UpdateContractPosition(ctx, "GOLD", "202412", 1)
	_ = svc.UpdateContractPosition(ctx, "CRUDE_W", "202409", 2)
	_ = svc.UpdateContractPosition(ctx, "CRUDE_W", "202412", 2)
	_ = svc.UpdateContractPosition(ctx, "BUND", "202409", 1)
	_ = svc.UpdateContractPosition(ctx, "BUND", "202409", -1)
	got, err := svc.InstrumentsWithPositions(ctx)
	if err != nil || len(got) != 2 || got[0] != "CRUDE_W" || got[1] != "GOLD" {
		t.Fatalf("got=%v err=%v", got, err)
	}
}

func TestBreaks_ConsistentBookBeyondOnePage(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	var live []broker.Position
	for i := 0; i < 300; i++ {
		instrument := fmt.Sprintf("I%03d", i)
		_ = store.AddContractPosition(ctx, instrument, "202409", 4)
		_ = store.AddContractPosition(ctx, instrument, "202406", 2)
		_ = store.AddContractPosition(ctx, instrument, "202406", -2)
		_ = store.AddStrategyPosition(ctx, "carry", instrument, 4)
		live = append(live, broker.Position{Instrument: instrument, Contract: "202409", Position: 4})
	}

	breaks, err := svc.ListBreaksBetweenContractAndStrategyPositions(ctx)
	if err != nil || len(breaks) != 0 {
		t.Fatalf("breaks=%d err=%v want=0", len(breaks), err)
	}
	external, err := svc.ExternalBreaks(ctx, live)
	if err != nil || len(external) != 0 {
		t.Fatalf("external=%d err=%v want=0", len(external), err)
	}
	instruments, err := svc.InstrumentsWithPositions(ctx)
	if err != nil || len(instruments) != 300 {
		t.Fatalf("instruments=%d err=%v want=300", len(instruments), err)
	}
	_ = store.AddStrategyPosition(ctx, "trend", "I000", 1)
	breaks, _ = svc.ListBreaksBetweenContractAndStrategyPositions(ctx)
	if len(breaks) != 1 || breaks[0].Instrument != "I000" || breaks[0].ContractTotal != 4 || breaks[0].StrategyTotal != 5 {
		t.Fatalf("breaks=%+v want one I000 break 4 vs 5", breaks)
	}
}

func TestCheckAndAutoUpdateRollState_LogsFailedAlert(t *testing.T) {
	store := gormrepository.New(dbtest.Open(t))
	ctx := context.Background()
	_ = store.UpsertInstrumentContracts(ctx, &models.InstrumentContracts{
		InstrumentCode: "CRUDE_W", PricedContractID: "202409", ForwardContractID: "202412",
	})
	_ = store.UpsertRollState(ctx, &models.RollStateRecord{InstrumentCode: "CRUDE_W", State: string(rollstate.Force)})
	core, logs := observer.New(zapcore.WarnLevel)
	svc := New(store, &notifierStub{err: errors.New("paas down")}, zap.New(core))

	changed, err := svc.CheckAndAutoUpdateRollState(ctx, "CRUDE_W")
	if err != nil || !changed {
		t.Fatalf("changed=%v err=%v want true", changed, err)
	}
	if got := logs.FilterMessage("roll state alert failed").Len(); got != 1 {
		t.Fatalf("warn logs=%d want=1", got)
	}
}
