package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RedisHost keeps the client registry in a Redis hash and publishes
// commands on a channel consumed by the client-facing gateway, so several
// worker instances share one view of the open windows.
type RedisHost struct {
	redis   *redis.Client
	hashKey string
	channel string
}

// NewRedisHost creates a RedisHost using keys under prefix.
func NewRedisHost(client *redis.Client, prefix string) *RedisHost {
	if client == nil {
		panic("redis client cannot be nil")
	}
	return &RedisHost{
		redis:   client,
		hashKey: prefix + "clients",
		channel: prefix + "clients:commands",
	}
}

// Channel returns the pub/sub channel commands are published on.
func (h *RedisHost) Channel() string {
	return h.channel
}

func (h *RedisHost) Register(ctx context.Context, d Descriptor) error {
	if d.ID == "" {
		return fmt.Errorf("client id is required")
	}
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal client: %w", err)
	}
	if err := h.redis.HSet(ctx, h.hashKey, d.ID, data).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (h *RedisHost) Unregister(ctx context.Context, id string) error {
	if err := h.redis.HDel(ctx, h.hashKey, id).Err(); err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	return nil
}

func (h *RedisHost) MatchAll(ctx context.Context) ([]Descriptor, error) {
	all, err := h.redis.HGetAll(ctx, h.hashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	out := make([]Descriptor, 0, len(all))
	for id, raw := range all {
		var d Descriptor
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("decode client %s: %w", id, err)
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (h *RedisHost) known(ctx context.Context, id string) error {
	ok, err := h.redis.HExists(ctx, h.hashKey, id).Result()
	if err != nil {
		return fmt.Errorf("redis hexists: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClient, id)
	}
	return nil
}

func (h *RedisHost) publish(ctx context.Context, cmd Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	if err := h.redis.Publish(ctx, h.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (h *RedisHost) Focus(ctx context.Context, id string) error {
	if err := h.known(ctx, id); err != nil {
		return err
	}
	return h.publish(ctx, Command{Op: OpFocus, ClientID: id})
}

func (h *RedisHost) OpenWindow(ctx context.Context, url string) error {
	return h.publish(ctx, Command{Op: OpOpenWindow, URL: url})
}

func (h *RedisHost) PostMessage(ctx context.Context, id string, msg Message) error {
	if err := h.known(ctx, id); err != nil {
		return err
	}
	return h.publish(ctx, Command{Op: OpPostMessage, ClientID: id, Message: &msg})
}

// Claim marks every registered client as controlled and announces it.
func (h *RedisHost) Claim(ctx context.Context) error {
	all, err := h.MatchAll(ctx)
	if err != nil {
		return err
	}
	if len(all) > 0 {
		fields := make([]interface{}, 0, 2*len(all))
		for _, d := range all {
			d.Controlled = true
			data, err := json.Marshal(d)
			if err != nil {
				return fmt.Errorf("marshal client: %w", err)
			}
			fields = append(fields, d.ID, data)
		}
		if err := h.redis.HSet(ctx, h.hashKey, fields...).Err(); err != nil {
			return fmt.Errorf("redis hset: %w", err)
		}
	}
	return h.publish(ctx, Command{Op: OpClaim})
}
