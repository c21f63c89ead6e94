package usecase

import (
	"context"
	"errors"
	"sync"

	"AeroTrend/internal/domain/models"
)

type fakeMetrics struct {
	mu       sync.Mutex
	ticks    map[string]int
	labels   map[string]int
	errs     map[string]int
	sessions int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{ticks: map[string]int{}, labels: map[string]int{}, errs: map[string]int{}}
}

func (m *fakeMetrics) RecordTick(_, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks[outcome]++
}

func (m *fakeMetrics) RecordLabel(_, _, current string, _ float64, _ bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.labels[current]++
}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[kind]++
}

func (m *fakeMetrics) SetActiveSessions(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = n
}

func (m *fakeMetrics) RecordLatency(string, float64) {}

func (m *fakeMetrics) tick(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticks[outcome]
}

func (m *fakeMetrics) err(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errs[kind]
}

func (m *fakeMetrics) active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions
}

// flakyPublisher fails the first failures calls.
type flakyPublisher struct {
	mu        sync.Mutex
	failures  int
	published []*models.ClassificationResult
	closed    bool
}

func (p *flakyPublisher) Publish(_ context.Context, r *models.ClassificationResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, r)
	return nil
}

func (p *flakyPublisher) PublishBatch(ctx context.Context, rs []*models.ClassificationResult) error {
	for _, r := range rs {
		if err := p.Publish(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (p *flakyPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *flakyPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}
