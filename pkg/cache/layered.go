package cache

import (
	"context"
	"time"
)

// LayeredCache reads through a small process-local LRU in front of Redis.
// Writes go to Redis first; the local copy lives at most nearTTL so other
// instances' updates become visible within that bound. Counters and
// existence checks always go to Redis.
type LayeredCache struct {
	near    *MemoryCache
	far     *RedisCache
	nearTTL time.Duration
}

func NewLayeredCache(far *RedisCache, nearSize int, nearTTL time.Duration) *LayeredCache {
	if nearTTL <= 0 {
		nearTTL = 5 * time.Second
	}
	return &LayeredCache{near: NewMemoryCache(nearSize), far: far, nearTTL: nearTTL}
}

func (c *LayeredCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := c.far.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.near.Set(ctx, key, value, c.localTTL(ttl))
}

func (c *LayeredCache) Get(ctx context.Context, key string, dest any) error {
	if c.near.Get(ctx, key, dest) == nil {
		return nil
	}
	if err := c.far.Get(ctx, key, dest); err != nil {
		return err
	}
	return c.near.Set(ctx, key, dest, c.nearTTL)
}

func (c *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = c.near.Delete(ctx, keys...)
	return c.far.Delete(ctx, keys...)
}

func (c *LayeredCache) DeleteByPattern(ctx context.Context, pattern string) error {
	_ = c.near.DeleteByPattern(ctx, pattern)
	return c.far.DeleteByPattern(ctx, pattern)
}

func (c *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	return c.far.Exists(ctx, keys...)
}

func (c *LayeredCache) Increment(ctx context.Context, key string) (int64, error) {
	return c.far.Increment(ctx, key)
}

func (c *LayeredCache) MGet(ctx context.Context, keys ...string) (map[string]string, error) {
	return c.far.MGet(ctx, keys...)
}

func (c *LayeredCache) Close() error {
	_ = c.near.Close()
	return c.far.Close()
}

func (c *LayeredCache) localTTL(ttl time.Duration) time.Duration {
	if ttl > 0 && ttl < c.nearTTL {
		return ttl
	}
	return c.nearTTL
}
