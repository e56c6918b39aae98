package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key written by RedisBackend.
const DefaultRedisPrefix = "offline:"

// RedisBackend stores each named store as a Redis hash.
// Store names are tracked in a registry set so empty stores still exist.
//
// Layout:
//
//	<prefix>stores        SET  of store names
//	<prefix>store:<name>  HASH key -> value
type RedisBackend struct {
	redis  *redis.Client
	prefix string
}

// NewRedisBackend creates a backend on top of an existing Redis client.
func NewRedisBackend(redisClient *redis.Client, prefix string) *RedisBackend {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisBackend{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (r *RedisBackend) registryKey() string {
	return r.prefix + "stores"
}

func (r *RedisBackend) storeKey(store string) string {
	return r.prefix + "store:" + store
}

func (r *RedisBackend) CreateStore(ctx context.Context, store string) error {
	if err := r.redis.SAdd(ctx, r.registryKey(), store).Err(); err != nil {
		return fmt.Errorf("redis sadd: %w", err)
	}
	return nil
}

func (r *RedisBackend) HasStore(ctx context.Context, store string) (bool, error) {
	ok, err := r.redis.SIsMember(ctx, r.registryKey(), store).Result()
	if err != nil {
		return false, fmt.Errorf("redis sismember: %w", err)
	}
	return ok, nil
}

func (r *RedisBackend) Stores(ctx context.Context) ([]string, error) {
	names, err := r.redis.SMembers(ctx, r.registryKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (r *RedisBackend) DropStore(ctx context.Context, store string) error {
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.storeKey(store))
		pipe.SRem(ctx, r.registryKey(), store)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis drop store %s: %w", store, err)
	}
	return nil
}

func (r *RedisBackend) Get(ctx context.Context, store, key string) ([]byte, error) {
	data, err := r.redis.HGet(ctx, r.storeKey(store), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis hget: %w", err)
	}
	return data, nil
}

// putScript writes a hash field only while the store is registered, so a
// concurrent DropStore cannot leave an unregistered hash behind.
var putScript = redis.NewScript(`
if redis.call("SISMEMBER", KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[2], ARGV[2], ARGV[3])
return 1
`)

func (r *RedisBackend) Put(ctx context.Context, store, key string, value []byte) error {
	written, err := putScript.Run(ctx, r.redis,
		[]string{r.registryKey(), r.storeKey(store)},
		store, key, value,
	).Int()
	if err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	if written == 0 {
		return ErrStoreNotFound
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, store, key string) error {
	if err := r.redis.HDel(ctx, r.storeKey(store), key).Err(); err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	return nil
}

func (r *RedisBackend) Keys(ctx context.Context, store string) ([]string, error) {
	keys, err := r.redis.HKeys(ctx, r.storeKey(store)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hkeys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close does not close the shared Redis client; its owner does.
func (r *RedisBackend) Close() error {
	return nil
}
