package stackhandler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"futuresexec/internal/broker"
	"futuresexec/internal/db/dbtest"
	"futuresexec/internal/models"
	"futuresexec/internal/order"
	"futuresexec/internal/positions"
	"futuresexec/internal/prices"
	gormrepository "futuresexec/internal/repository/gorm"
	"futuresexec/internal/stack"
)

type notesStub struct {
	mu   sync.Mutex
	msgs []string
}

func (n *notesStub) Critical(_ context.Context, msg string, _ ...zap.Field) error {
	n.mu.Lock()
	n.msgs = append(n.msgs, msg)
	n.mu.Unlock()
	return nil
}

func (n *notesStub) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.msgs)
}

// flakyStack fails the failPutAt-th PutOrder and, with failRemove, every
// RemoveOrder.
type flakyStack struct {
	stack.Stack
	puts       int
	failPutAt  int
	failRemove bool
}

func (f *flakyStack) PutOrder(ctx context.Context, o *order.Order, opts stack.PutOptions) (uint64, error) {
	f.puts++
	if f.failPutAt > 0 && f.puts == f.failPutAt {
		return 0, errors.New("insert failed")
	}
	return f.Stack.PutOrder(ctx, o, opts)
}

func (f *flakyStack) RemoveOrder(ctx context.Context, id uint64) error {
	if f.failRemove {
		return errors.New("remove failed")
	}
	return f.Stack.RemoveOrder(ctx, id)
}

type harness struct {
	h     *Handler
	set   stack.Set
	store *gormrepository.Store
	pos   *positions.Service
	paper *broker.Paper
	notes *notesStub
	now   time.Time
}

type harnessOption func(*Deps)

func withBroker(b broker.Broker) harnessOption {
	return func(d *Deps) { d.Broker = b }
}

func withContractStack(wrap func(stack.Stack) stack.Stack) harnessOption {
	return func(d *Deps) { d.Stacks.Contract = wrap(d.Stacks.Contract) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	store := gormrepository.New(dbtest.Open(t))
	notes := &notesStub{}
	pos := positions.New(store, notes, nil)
	paper := broker.NewPaper()

	brokerStack := stack.NewMemory(stack.NameBroker, nil)
	contractStack := stack.NewMemory(stack.NameContract, brokerStack)
	instrumentStack := stack.NewMemory(stack.NameInstrument, contractStack)

	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	deps := Deps{
		Stacks:    stack.Set{Instrument: instrumentStack, Contract: contractStack, Broker: brokerStack},
		Positions: pos,
		Prices:    prices.New(store),
		Contracts: pos,
		Broker:    paper,
		Notifier:  notes,
		Fills:     store,
		Sampler:   prices.New(store),
		Now:       func() time.Time { return now },
		PollEvery: time.Millisecond,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	err := store.UpsertInstrumentContracts(context.Background(), &models.InstrumentContracts{
		InstrumentCode: "CRUDE_W", PricedContractID: "202409", ForwardContractID: "202412",
	})
	if err != nil {
		t.Fatalf("seed contracts: %v", err)
	}
	return &harness{
		h:     New(deps, Config{CancelConfirmTimeout: 50 * time.Millisecond}),
		set:   deps.Stacks,
		store: store,
		pos:   pos,
		paper: paper,
		notes: notes,
		now:   now,
	}
}

func (th *harness) seedPrices(t *testing.T, priced, forward string) {
	t.Helper()
	err := th.store.InsertContractPrices(context.Background(), []models.ContractPrice{
		{InstrumentCode: "CRUDE_W", ContractID: "202409", Price: decimal.RequireFromString(priced), SampledAt: th.now.Add(-time.Hour)},
		{InstrumentCode: "CRUDE_W", ContractID: "202412", Price: decimal.RequireFromString(forward), SampledAt: th.now.Add(-time.Hour)},
	})
	if err != nil {
		t.Fatalf("seed prices: %v", err)
	}
}

func (th *harness) setRollState(t *testing.T, state string) {
	t.Helper()
	if err := th.store.UpsertRollState(context.Background(), &models.RollStateRecord{InstrumentCode: "CRUDE_W", State: state}); err != nil {
		t.Fatalf("seed roll state: %v", err)
	}
}

func activeOrders(t *testing.T, s stack.Stack) []*order.Order {
	t.Helper()
	items, err := s.ActiveOrders(context.Background())
	if err != nil {
		t.Fatalf("list %s: %v", s.Name(), err)
	}
	return items
}

func TestRunOperation_Unknown(t *testing.T) {
	th := newHarness(t)
	if err := th.h.RunOperation(context.Background(), "nope"); !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("err=%v want ErrUnknownOperation", err)
	}
	if got := len(OperationNames()); got != 12 {
		t.Fatalf("operations=%d want=12", got)
	}
}
