package repository

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"AeroTrend/internal/domain/models"
	domrepo "AeroTrend/internal/domain/repository"
)

// MemoryResultStore keeps the recent results of the most recently active
// sessions in process. It backs history queries when ClickHouse is disabled.
type MemoryResultStore struct {
	sessions *lru.Cache[string, *resultRing]
	perSess  int
}

type resultRing struct {
	mu    sync.Mutex
	items []models.ClassificationResult
	limit int
}

// NewMemoryResultStore keeps up to perSession results for up to maxSessions sessions.
func NewMemoryResultStore(maxSessions, perSession int) (*MemoryResultStore, error) {
	if perSession <= 0 {
		return nil, fmt.Errorf("per-session limit must be positive, got %d", perSession)
	}
	c, err := lru.New[string, *resultRing](maxSessions)
	if err != nil {
		return nil, fmt.Errorf("history lru: %w", err)
	}
	return &MemoryResultStore{sessions: c, perSess: perSession}, nil
}

func (s *MemoryResultStore) Init(context.Context) error { return nil }

func (s *MemoryResultStore) Save(_ context.Context, r *models.ClassificationResult) error {
	if r == nil {
		return nil
	}
	ring, ok := s.sessions.Get(r.SessionID)
	if !ok {
		ring = &resultRing{limit: s.perSess}
		if prev, found, _ := s.sessions.PeekOrAdd(r.SessionID, ring); found {
			ring = prev
		}
	}
	ring.push(*r)
	return nil
}

func (s *MemoryResultStore) SaveBatch(ctx context.Context, rs []*models.ClassificationResult) error {
	for _, r := range rs {
		if err := s.Save(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// History returns matching results newest first.
func (s *MemoryResultStore) History(_ context.Context, q domrepo.HistoryQuery) ([]models.ClassificationResult, error) {
	ring, ok := s.sessions.Get(q.SessionID)
	if !ok {
		return nil, domrepo.ErrNotFound
	}
	ring.mu.Lock()
	defer ring.mu.Unlock()

	out := make([]models.ClassificationResult, 0, len(ring.items))
	for i := len(ring.items) - 1; i >= 0; i-- {
		r := ring.items[i]
		if !q.From.IsZero() && r.Timestamp.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && r.Timestamp.After(q.To) {
			continue
		}
		out = append(out, r)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// Forget drops a session's history.
func (s *MemoryResultStore) Forget(_ context.Context, sessionID string) error {
	s.sessions.Remove(sessionID)
	return nil
}

func (s *MemoryResultStore) Health(context.Context) error { return nil }

func (s *MemoryResultStore) Close() error {
	s.sessions.Purge()
	return nil
}

func (r *resultRing) push(res models.ClassificationResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == r.limit {
		copy(r.items, r.items[1:])
		r.items = r.items[:len(r.items)-1]
	}
	r.items = append(r.items, res)
}
