// Package rediscache implements core/port/out.Cache and
// core/port/out.DistributedWindow against Redis, for the bridge's optional
// L2 cache tier (C4) and distributed rate-limiter tier (C3). Adapted from
// pkg/cache/worker_redis_cache.go (byte-oriented Get/Set rather than the
// teacher's string-oriented one, since the cache stores pre-serialized
// domain payloads) and pkg/ratelimit/worker_limiter.go's Lua sliding window
// (simplified to a counter-only script that returns the window's count; no
// per-key expiry is read back).
package rediscache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"bridgify/core/port/out"
)

// Cache is a Redis-backed implementation of core/port/out.Cache.
type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return data, err
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	return n > 0, err
}

func (c *Cache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.client.Expire(ctx, key, ttl).Err()
}

func (c *Cache) TTL(ctx context.Context, key string) (time.Duration, error) {
	return c.client.TTL(ctx, key).Result()
}

func (c *Cache) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

var _ out.Cache = (*Cache)(nil)

// slidingWindowScript atomically evicts entries older than the window,
// counts what remains, and records the current admission — the same
// ZREMRANGEBYSCORE/ZCARD/ZADD shape as the teacher's SlidingWindowLimiter,
// trimmed to return just the post-admission count.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])
	local window_start = now - window_ms

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	redis.call('ZADD', key, now, now .. '-' .. math.random())
	redis.call('PEXPIRE', key, window_ms * 2)
	return redis.call('ZCARD', key)
`)

// Window is a Redis-backed implementation of core/port/out.DistributedWindow.
type Window struct {
	client *redis.Client
}

func NewWindow(client *redis.Client) *Window {
	return &Window{client: client}
}

func (w *Window) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	return slidingWindowScript.Run(ctx, w.client, []string{"ratelimit:" + key},
		time.Now().UnixMilli(), window.Milliseconds(),
	).Int64()
}

var _ out.DistributedWindow = (*Window)(nil)
