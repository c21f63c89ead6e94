// Package cache holds the key/value stores behind latest-result lookups:
// a bounded in-process LRU, Redis, and a two-level combination of both.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Store is a string-keyed store with per-entry expiry. Values are JSON
// encoded, except strings and byte slices which are stored as-is.
type Store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string, dest any) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	Increment(ctx context.Context, key string) (int64, error)
	MGet(ctx context.Context, keys ...string) (map[string]string, error)
	Close() error
}

// Key joins parts with ':' as namespace separator.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// Under returns the glob matching every key in namespace ns.
func Under(ns string) string {
	return ns + ":*"
}

// GetMany fetches keys in one round trip and decodes each present value
// into T. Values that fail to decode are left out.
func GetMany[T any](ctx context.Context, s Store, keys ...string) (map[string]T, error) {
	out := make(map[string]T, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	raw, err := s.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}
	for k, v := range raw {
		var item T
		if json.Unmarshal([]byte(v), &item) == nil {
			out[k] = item
		}
	}
	return out, nil
}

func marshal(v any) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	}
	return json.Marshal(v)
}

func unmarshal(b []byte, dest any) error {
	switch d := dest.(type) {
	case *string:
		*d = string(b)
		return nil
	case *[]byte:
		*d = append((*d)[:0], b...)
		return nil
	}
	return json.Unmarshal(b, dest)
}
