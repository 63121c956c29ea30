package venue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

type subscribeRequest struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Account string `json:"account,omitempty"`
}

type envelope struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

type WSClient struct {
	url  string
	conn *websocket.Conn
}

func NewWSClient(url string) *WSClient {
	return &WSClient{url: strings.TrimSpace(url)}
}

func (c *WSClient) Connect(ctx context.Context) error {
	if c == nil || c.url == "" {
		return fmt.Errorf("ws url is empty")
	}
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(1 << 20)
	c.conn = conn
	return nil
}

func (c *WSClient) Close(status websocket.StatusCode, reason string) error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close(status, reason)
}

func (c *WSClient) SubscribeFills(ctx context.Context, account string) error {
	if c == nil || c.conn == nil {
		return fmt.Errorf("ws not connected")
	}
	payload, err := json.Marshal(subscribeRequest{Type: "subscribe", Channel: "fills", Account: account})
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, payload)
}

func (c *WSClient) read(ctx context.Context) (envelope, []byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return envelope{}, nil, err
	}
	var env envelope
	_ = json.Unmarshal(data, &env)
	return env, data, nil
}

type FillStreamOptions struct {
	URL               string
	Account           string
	HeartbeatInterval time.Duration
	PingTimeout       time.Duration
	BackoffMin        time.Duration
	BackoffMax        time.Duration
	Logger            *zap.Logger
}

// FillStream pushes venue fill events as they happen. It reconnects with
// capped backoff until ctx is cancelled. Fills are also always available
// by polling, so a dropped message costs latency, not correctness.
type FillStream struct {
	opts FillStreamOptions
}

func NewFillStream(opts FillStreamOptions) *FillStream {
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = 20 * time.Second
	}
	if opts.PingTimeout == 0 {
		opts.PingTimeout = 5 * time.Second
	}
	if opts.BackoffMin == 0 {
		opts.BackoffMin = time.Second
	}
	if opts.BackoffMax == 0 {
		opts.BackoffMax = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &FillStream{opts: opts}
}

func (s *FillStream) Run(ctx context.Context, onFill func(Fill)) error {
	backoff := s.opts.BackoffMin
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		client := NewWSClient(s.opts.URL)
		if err := client.Connect(ctx); err != nil {
			s.opts.Logger.Warn("venue ws connect failed", zap.Error(err))
			if err := sleepWithJitter(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, s.opts.BackoffMax)
			continue
		}
		if err := client.SubscribeFills(ctx, s.opts.Account); err != nil {
			s.opts.Logger.Warn("venue ws subscribe failed", zap.Error(err))
			_ = client.Close(websocket.StatusInternalError, "subscribe failed")
			if err := sleepWithJitter(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, s.opts.BackoffMax)
			continue
		}
		s.opts.Logger.Info("venue ws subscribed to fills")
		backoff = s.opts.BackoffMin

		err := s.consume(ctx, client, onFill)
		_ = client.Close(websocket.StatusNormalClosure, "reconnect")
		if err == nil || errors.Is(err, context.Canceled) {
			return err
		}
		if err := sleepWithJitter(ctx, backoff); err != nil {
			return err
		}
		backoff = nextBackoff(backoff, s.opts.BackoffMax)
	}
}

func (s *FillStream) consume(ctx context.Context, client *WSClient, onFill func(Fill)) error {
	heartbeatErr := make(chan error, 1)
	heartbeatCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(s.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatCtx.Done():
				heartbeatErr <- heartbeatCtx.Err()
				return
			case <-ticker.C:
				pingCtx, cancelPing := context.WithTimeout(heartbeatCtx, s.opts.PingTimeout)
				err := client.conn.Ping(pingCtx)
				cancelPing()
				if err != nil {
					heartbeatErr <- err
					return
				}
			}
		}
	}()

	for {
		select {
		case err := <-heartbeatErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		default:
		}
		env, raw, err := client.read(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.opts.Logger.Warn("venue ws read failed", zap.Error(err))
			}
			return err
		}
		fill, ok := parseFillEvent(env, raw)
		if !ok {
			continue
		}
		if onFill != nil {
			onFill(fill)
		}
	}
}

func parseFillEvent(env envelope, raw []byte) (Fill, bool) {
	if !strings.EqualFold(env.EventType, "fill") || len(env.Data) == 0 {
		return Fill{}, false
	}
	var f Fill
	if err := json.Unmarshal(env.Data, &f); err != nil {
		return Fill{}, false
	}
	if f.OrderID == "" && f.ClientRef == "" {
		return Fill{}, false
	}
	return f, true
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func sleepWithJitter(ctx context.Context, base time.Duration) error {
	if base <= 0 {
		return nil
	}
	jitter := time.Duration(0)
	if half := int64(base / 2); half > 0 {
		jitter = time.Duration(rand.Int63n(half))
	}
	timer := time.NewTimer(base + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
