package notify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// publisher is the subset of *redis.Client used here.
type publisher interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type redisMessage struct {
	Level   string         `json:"level"`
	Source  string         `json:"source"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
	At      time.Time      `json:"at"`
}

// Redis publishes notifications on a channel. Identical messages within
// the dedupe window are published once, across every process sharing the
// Redis instance.
type Redis struct {
	client  publisher
	channel string
	window  time.Duration
	now     func() time.Time
}

func NewRedis(client *redis.Client, channel string, window time.Duration) *Redis {
	return newRedis(client, channel, window)
}

func newRedis(client publisher, channel string, window time.Duration) *Redis {
	return &Redis{client: client, channel: channel, window: window, now: time.Now}
}

func (n *Redis) Critical(ctx context.Context, msg string, fields ...zap.Field) error {
	details := Details(fields)
	if n.window > 0 {
		ok, err := n.client.SetNX(ctx, dedupeKey(msg, details), "1", n.window).Result()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	payload, err := json.Marshal(redisMessage{
		Level:   LevelCritical,
		Source:  Source,
		Message: msg,
		Details: details,
		At:      n.now().UTC(),
	})
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, n.channel, payload).Err()
}

func dedupeKey(msg string, details map[string]any) string {
	raw, _ := json.Marshal(details)
	sum := sha256.Sum256(append([]byte(msg+"\n"), raw...))
	return "stack_handler:alert:" + hex.EncodeToString(sum[:12])
}
