package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gatekeeper/internal/models"
)

// consumeScript atomically increments a window counter, arms its expiry on
// first use, and extends the expiry to the block duration once the limit is
// exceeded. Returns the new count and the remaining TTL in milliseconds.
var consumeScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if tonumber(ARGV[2]) > 0 and count == tonumber(ARGV[3]) + 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`)

// RedisStore is a fixed-window counter backed by a shared Redis deployment,
// giving correct enforcement across horizontally scaled instances. Every
// counter key is namespaced under the configured prefix.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(cfg models.RedisConfig, keyPrefix string) (*RedisStore, error) {
	poolSize := cfg.PoolSize
	if poolSize == 0 {
		poolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{rdb: rdb, prefix: keyPrefix}, nil
}

func (s *RedisStore) Consume(ctx context.Context, key string, q Quota) (Result, error) {
	counterKey := s.prefix + ":" + key

	raw, err := consumeScript.Run(ctx, s.rdb,
		[]string{counterKey},
		q.Window.Milliseconds(),
		q.BlockDuration.Milliseconds(),
		q.Limit,
	).Result()
	if err != nil {
		return Result{}, fmt.Errorf("redis consume: %w", err)
	}

	vals, ok := raw.([]interface{})
	if !ok || len(vals) != 2 {
		return Result{}, fmt.Errorf("redis consume: unexpected reply %v", raw)
	}
	count, _ := vals[0].(int64)
	ttlMs, _ := vals[1].(int64)
	if ttlMs < 0 {
		// PTTL of -1 means the expiry was lost; treat the window as full length.
		ttlMs = q.Window.Milliseconds()
	}

	consumed := int(count)
	remaining := q.Limit - consumed
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   consumed <= q.Limit,
		Remaining: remaining,
		Consumed:  consumed,
		ResetIn:   time.Duration(ttlMs) * time.Millisecond,
		Limit:     q.Limit,
	}, nil
}

// Connected reports whether the backend currently answers pings.
func (s *RedisStore) Connected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.rdb.Ping(ctx).Err() == nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
