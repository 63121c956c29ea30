package broker

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type GuardOptions struct {
	// Timeout bounds every single venue call.
	Timeout time.Duration
	// PacingMaxWait bounds the total time spent sleeping on pacing errors
	// for one call.
	PacingMaxWait time.Duration
	BaseBackoff   time.Duration
	Logger        *zap.Logger
}

// Guarded applies a per-call timeout and pacing retry to a Broker.
type Guarded struct {
	next  Broker
	opts  GuardOptions
	sleep func(context.Context, time.Duration) error
}

func NewGuarded(next Broker, opts GuardOptions) *Guarded {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Guarded{next: next, opts: opts, sleep: sleepCtx}
}

func (g *Guarded) Submit(ctx context.Context, req SubmitRequest) (OrderState, error) {
	return guard(ctx, g, "submit", func(ctx context.Context) (OrderState, error) { return g.next.Submit(ctx, req) })
}

func (g *Guarded) Cancel(ctx context.Context, clientRef string) (OrderState, error) {
	return guard(ctx, g, "cancel", func(ctx context.Context) (OrderState, error) { return g.next.Cancel(ctx, clientRef) })
}

func (g *Guarded) Modify(ctx context.Context, clientRef string, limit decimal.Decimal) (OrderState, error) {
	return guard(ctx, g, "modify", func(ctx context.Context) (OrderState, error) { return g.next.Modify(ctx, clientRef, limit) })
}

func (g *Guarded) FillsFor(ctx context.Context, clientRef string) ([]Execution, error) {
	return guard(ctx, g, "fills", func(ctx context.Context) ([]Execution, error) { return g.next.FillsFor(ctx, clientRef) })
}

func (g *Guarded) LookupOrder(ctx context.Context, clientRef string) (*OrderState, error) {
	return guard(ctx, g, "lookup", func(ctx context.Context) (*OrderState, error) { return g.next.LookupOrder(ctx, clientRef) })
}

func (g *Guarded) Positions(ctx context.Context) ([]Position, error) {
	return guard(ctx, g, "positions", g.next.Positions)
}

func (g *Guarded) Quote(ctx context.Context, instrument string, contracts []string) (Quote, error) {
	return guard(ctx, g, "quote", func(ctx context.Context) (Quote, error) { return g.next.Quote(ctx, instrument, contracts) })
}

func guard[T any](ctx context.Context, g *Guarded, op string, call func(context.Context) (T, error)) (T, error) {
	var waited time.Duration
	backoff := g.opts.BaseBackoff
	for {
		out, err := callOnce(ctx, g.opts.Timeout, call)
		if err == nil || !errors.Is(err, ErrPacing) {
			return out, err
		}
		wait := backoff
		var pe *PacingError
		if errors.As(err, &pe) && pe.RetryAfter > wait {
			wait = pe.RetryAfter
		}
		if remaining := g.opts.PacingMaxWait - waited; wait > remaining {
			wait = remaining
		}
		if wait <= 0 {
			return out, err
		}
		g.opts.Logger.Warn("broker pacing, backing off",
			zap.String("op", op), zap.Duration("wait", wait), zap.Duration("waited", waited))
		if serr := g.sleep(ctx, wait); serr != nil {
			return out, err
		}
		waited += wait
		backoff *= 2
	}
}

func callOnce[T any](ctx context.Context, timeout time.Duration, call func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	out, err := call(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		err = errors.Join(ErrTimeout, err)
	}
	return out, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
