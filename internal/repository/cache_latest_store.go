package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"AeroTrend/internal/domain/models"
	domrepo "AeroTrend/internal/domain/repository"
	"AeroTrend/pkg/cache"
)

const (
	latestPrefix  = "latest"
	countPrefix   = "published"
	defaultLatest = time.Hour
)

// CacheLatestStore implements LatestCache on top of the key/value cache
// (Redis, layered or in-memory).
type CacheLatestStore struct {
	c   cache.Store
	ttl time.Duration
}

func NewCacheLatestStore(c cache.Store, ttl time.Duration) *CacheLatestStore {
	if ttl <= 0 {
		ttl = defaultLatest
	}
	return &CacheLatestStore{c: c, ttl: ttl}
}

func (s *CacheLatestStore) SetLatest(ctx context.Context, r *models.ClassificationResult) error {
	if err := s.c.Set(ctx, cache.Key(latestPrefix, r.SessionID), r, s.ttl); err != nil {
		return fmt.Errorf("cache latest: %w", err)
	}
	if _, err := s.c.Increment(ctx, cache.Key(countPrefix, r.SessionID)); err != nil {
		return fmt.Errorf("cache count: %w", err)
	}
	return nil
}

func (s *CacheLatestStore) Latest(ctx context.Context, sessionID string) (models.ClassificationResult, error) {
	var r models.ClassificationResult
	if err := s.c.Get(ctx, cache.Key(latestPrefix, sessionID), &r); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return r, domrepo.ErrNotFound
		}
		return r, fmt.Errorf("latest: %w", err)
	}
	return r, nil
}

// LatestMany returns the cached results keyed by session id; missing
// sessions are omitted.
func (s *CacheLatestStore) LatestMany(ctx context.Context, sessionIDs ...string) (map[string]models.ClassificationResult, error) {
	keys := make([]string, len(sessionIDs))
	byKey := make(map[string]string, len(sessionIDs))
	for i, id := range sessionIDs {
		keys[i] = cache.Key(latestPrefix, id)
		byKey[keys[i]] = id
	}
	raw, err := cache.GetMany[models.ClassificationResult](ctx, s.c, keys...)
	if err != nil {
		return nil, fmt.Errorf("latest many: %w", err)
	}
	out := make(map[string]models.ClassificationResult, len(raw))
	for k, r := range raw {
		out[byKey[k]] = r
	}
	return out, nil
}

// Published returns how many results were cached for a session.
func (s *CacheLatestStore) Published(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	err := s.c.Get(ctx, cache.Key(countPrefix, sessionID), &n)
	if errors.Is(err, cache.ErrCacheMiss) {
		return 0, nil
	}
	return n, err
}

func (s *CacheLatestStore) Forget(ctx context.Context, sessionID string) error {
	return s.c.Delete(ctx,
		cache.Key(latestPrefix, sessionID),
		cache.Key(countPrefix, sessionID),
	)
}

func (s *CacheLatestStore) ForgetAll(ctx context.Context) error {
	if err := s.c.DeleteByPattern(ctx, cache.Under(latestPrefix)); err != nil {
		return err
	}
	return s.c.DeleteByPattern(ctx, cache.Under(countPrefix))
}
