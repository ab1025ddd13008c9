package cache

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const sequencePrefix = "eventbus:seq:"

// seedScript raises a counter to ARGV[1] unless it is already higher.
var seedScript = redis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
local seed = tonumber(ARGV[1])
if cur < seed then
	redis.call("SET", KEYS[1], ARGV[1])
	return seed
end
return cur
`)

// RedisSequenceAllocator keeps per-aggregate counters in Redis. INCR is atomic,
// so every process sharing the Redis instance sees one counter per aggregate.
type RedisSequenceAllocator struct {
	rdb *redis.Client
}

// NewRedisSequenceAllocator wraps a redis client.
func NewRedisSequenceAllocator(rdb *redis.Client) *RedisSequenceAllocator {
	return &RedisSequenceAllocator{rdb: rdb}
}

// SequenceKey is the redis key holding the counter of a partition.
func SequenceKey(partition string) string { return sequencePrefix + partition }

// Next increments and returns the counter.
func (a *RedisSequenceAllocator) Next(ctx context.Context, key string) (int64, error) {
	n, err := a.rdb.Incr(ctx, SequenceKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return n, nil
}

// Seed raises the counter to last if lower.
func (a *RedisSequenceAllocator) Seed(ctx context.Context, key string, last int64) error {
	if err := seedScript.Run(ctx, a.rdb, []string{SequenceKey(key)}, last).Err(); err != nil {
		return fmt.Errorf("redis seed %s: %w", key, err)
	}
	return nil
}
