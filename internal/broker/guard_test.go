package broker

import (
	"context"
	"errors"
	"testing"
	"time"
)

type pacingStub struct {
	Broker
	failures int
	calls    int
	retry    time.Duration
}

func (s *pacingStub) Positions(ctx context.Context) ([]Position, error) {
	s.calls++
	if s.calls <= s.failures {
		return nil, &PacingError{RetryAfter: s.retry}
	}
	return []Position{{Instrument: "CRUDE_W", Contract: "202409", Position: 3}}, nil
}

type slowStub struct {
	Broker
}

func (slowStub) Quote(ctx context.Context, instrument string, contracts []string) (Quote, error) {
	<-ctx.Done()
	return Quote{}, ctx.Err()
}

func newTestGuard(next Broker, maxWait time.Duration) (*Guarded, *[]time.Duration) {
	g := NewGuarded(next, GuardOptions{Timeout: time.Second, PacingMaxWait: maxWait, BaseBackoff: time.Second})
	var slept []time.Duration
	g.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return g, &slept
}

func TestGuarded_RetriesPacingWithBackoff(t *testing.T) {
	stub := &pacingStub{failures: 3}
	g, slept := newTestGuard(stub, time.Minute)
	items, err := g.Positions(context.Background())
	if err != nil || len(items) != 1 {
		t.Fatalf("items=%v err=%v", items, err)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("slept=%v want=%v", *slept, want)
	}
	for i := range want {
		if (*slept)[i] != want[i] {
			t.Fatalf("slept=%v want=%v", *slept, want)
		}
	}
}

func TestGuarded_PacingBoundedByMaxWait(t *testing.T) {
	stub := &pacingStub{failures: 100, retry: 4 * time.Second}
	g, slept := newTestGuard(stub, 10*time.Second)
	_, err := g.Positions(context.Background())
	if !errors.Is(err, ErrPacing) {
		t.Fatalf("err=%v want ErrPacing", err)
	}
	var total time.Duration
	for _, d := range *slept {
		total += d
	}
	if total != 10*time.Second {
		t.Fatalf("total wait=%v want=10s (slept=%v)", total, *slept)
	}
}

func TestGuarded_TimeoutIsTagged(t *testing.T) {
	g := NewGuarded(slowStub{}, GuardOptions{Timeout: 10 * time.Millisecond})
	_, err := g.Quote(context.Background(), "CRUDE_W", []string{"202409"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err=%v want ErrTimeout", err)
	}
	if !Retryable(err) {
		t.Fatalf("timeout should be retryable")
	}
}

func TestRetryable(t *testing.T) {
	if Retryable(ErrRejected) {
		t.Fatalf("rejection is not retryable")
	}
	if !Retryable(&PacingError{}) {
		t.Fatalf("pacing is retryable")
	}
}
