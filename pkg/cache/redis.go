package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 100

// RedisConfig addresses one Redis database. Every key is stored under Prefix.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Prefix   string
	// PingTimeout bounds the connectivity check in NewRedisCache.
	PingTimeout time.Duration
}

// RedisCache is a Store shared between service instances.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache connects and pings before returning.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 5 * time.Second
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.PoolSize / 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return &RedisCache{rdb: rdb, prefix: cfg.Prefix}, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return r.rdb.Set(ctx, r.key(key), raw, ttl).Err()
}

func (r *RedisCache) Get(ctx context.Context, key string, dest any) error {
	raw, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrCacheMiss
	case err != nil:
		return err
	}
	return unmarshal(raw, dest)
}

func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.rdb.Unlink(ctx, r.keys(keys)...).Err()
}

// DeleteByPattern walks the keyspace with SCAN and unlinks in batches.
func (r *RedisCache) DeleteByPattern(ctx context.Context, pattern string) error {
	it := r.rdb.Scan(ctx, 0, r.key(pattern), scanBatch).Iterator()
	pending := make([]string, 0, scanBatch)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		err := r.rdb.Unlink(ctx, pending...).Err()
		pending = pending[:0]
		return err
	}
	for it.Next(ctx) {
		pending = append(pending, it.Val())
		if len(pending) == scanBatch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	return flush()
}

func (r *RedisCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.keys(keys)...).Result()
	return n > 0, err
}

func (r *RedisCache) Increment(ctx context.Context, key string) (int64, error) {
	return r.rdb.Incr(ctx, r.key(key)).Result()
}

func (r *RedisCache) MGet(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	vals, err := r.rdb.MGet(ctx, r.keys(keys)...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[keys[i]] = s
		}
	}
	return out, nil
}

func (r *RedisCache) Close() error { return r.rdb.Close() }

func (r *RedisCache) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

func (r *RedisCache) keys(ks []string) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = r.key(k)
	}
	return out
}
