package cache

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"
)

// DefaultMemorySize bounds a MemoryCache created with size <= 0.
const DefaultMemorySize = 1024

// noExpiry stands in for "never" so every entry carries a deadline.
const noExpiry = 7 * 24 * time.Hour

type memEntry struct {
	raw      []byte
	deadline time.Time
}

func (e memEntry) live(now time.Time) bool { return now.Before(e.deadline) }

// MemoryCache is a process-local Store. Entries past their deadline are
// dropped on access; the least recently used entry goes when full.
type MemoryCache struct {
	mu  sync.Mutex
	lru *lru.LRU[string, memEntry]
	now func() time.Time
}

func NewMemoryCache(size int) *MemoryCache {
	if size <= 0 {
		size = DefaultMemorySize
	}
	l, _ := lru.NewLRU[string, memEntry](size, nil)
	return &MemoryCache{lru: l, now: time.Now}
}

func (m *MemoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	raw, err := marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	m.mu.Lock()
	m.lru.Add(key, memEntry{raw: raw, deadline: m.deadline(ttl)})
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Get(_ context.Context, key string, dest any) error {
	m.mu.Lock()
	e, ok := m.lookup(key)
	m.mu.Unlock()
	if !ok {
		return ErrCacheMiss
	}
	return unmarshal(e.raw, dest)
}

func (m *MemoryCache) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		m.lru.Remove(k)
	}
	m.mu.Unlock()
	return nil
}

// DeleteByPattern removes keys matching a Redis-style glob.
func (m *MemoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.lru.Keys() {
		if ok, err := path.Match(pattern, k); err == nil && ok {
			m.lru.Remove(k)
		}
	}
	return nil
}

func (m *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for _, k := range keys {
		if e, ok := m.lru.Peek(k); ok && e.live(now) {
			return true, nil
		}
	}
	return false, nil
}

// Increment treats a missing or expired key as zero. A counter keeps the
// deadline of the value it replaces.
func (m *MemoryCache) Increment(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	deadline := m.deadline(0)
	if e, ok := m.lookup(key); ok {
		v, err := strconv.ParseInt(string(e.raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cache: %s holds a non-integer value", key)
		}
		n, deadline = v, e.deadline
	}
	n++
	m.lru.Add(key, memEntry{raw: strconv.AppendInt(nil, n, 10), deadline: deadline})
	return n, nil
}

func (m *MemoryCache) MGet(_ context.Context, keys ...string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if e, ok := m.lookup(k); ok {
			out[k] = string(e.raw)
		}
	}
	return out, nil
}

// Len counts stored entries, including expired ones not yet touched.
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}

func (m *MemoryCache) Close() error {
	m.mu.Lock()
	m.lru.Purge()
	m.mu.Unlock()
	return nil
}

// lookup returns a live entry and marks it recently used. Callers hold mu.
func (m *MemoryCache) lookup(key string) (memEntry, bool) {
	e, ok := m.lru.Get(key)
	if !ok {
		return memEntry{}, false
	}
	if !e.live(m.now()) {
		m.lru.Remove(key)
		return memEntry{}, false
	}
	return e, true
}

func (m *MemoryCache) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = noExpiry
	}
	return m.now().Add(ttl)
}
