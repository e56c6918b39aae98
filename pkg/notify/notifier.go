package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Notifier displays a notification.
type Notifier interface {
	Show(ctx context.Context, opts DisplayOptions) error
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Show(ctx context.Context, opts DisplayOptions) error {
	n.logger.Info().
		Str("title", opts.Title).
		Str("body", opts.Body).
		Str("tag", opts.Tag).
		Str("type", opts.Data.Type).
		Bool("require_interaction", opts.RequireInteraction).
		Int("actions", len(opts.Actions)).
		Msg("Notification")
	return nil
}

// RedisNotifier publishes notifications as JSON on a Redis channel
// consumed by the push gateway.
type RedisNotifier struct {
	redis   *redis.Client
	channel string
}

// NewRedisNotifier creates a RedisNotifier publishing on <prefix>notifications.
func NewRedisNotifier(client *redis.Client, prefix string) *RedisNotifier {
	if client == nil {
		panic("redis client cannot be nil")
	}
	return &RedisNotifier{redis: client, channel: prefix + "notifications"}
}

// Channel returns the pub/sub channel.
func (n *RedisNotifier) Channel() string {
	return n.channel
}

func (n *RedisNotifier) Show(ctx context.Context, opts DisplayOptions) error {
	data, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := n.redis.Publish(ctx, n.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}
