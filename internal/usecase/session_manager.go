package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"AeroTrend/internal/domain/models"
	drepo "AeroTrend/internal/domain/repository"
	"AeroTrend/internal/services/trend"
	"AeroTrend/pkg/arinc429"
	applogger "AeroTrend/pkg/logger"
)

// CreateRequest describes a new session. Config, when set, wins over Preset.
type CreateRequest struct {
	ID     string
	Preset string
	Config *trend.Config
}

// SessionInfo is a point-in-time view of a managed session.
type SessionInfo struct {
	ID         string                       `json:"id"`
	Preset     string                       `json:"preset"`
	Channels   []string                     `json:"channels"`
	WindowSize int                          `json:"window_size"`
	Fill       int                          `json:"fill"`
	Warm       bool                         `json:"warm"`
	Seq        uint64                       `json:"seq"`
	State      models.SessionState          `json:"state"`
	CreatedAt  time.Time                    `json:"created_at"`
	Latest     *models.ClassificationResult `json:"latest,omitempty"`
}

type managedSession struct {
	mu        sync.Mutex
	id        string
	preset    string
	createdAt time.Time
	session   *trend.Session
	byLabel   map[uint8]int // wire label -> channel index
	last      *models.ClassificationResult
}

// SessionManager is the registry of classifier sessions. Calls on one
// session are serialized by that session's mutex; different sessions run
// in parallel.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*managedSession

	sink          *ResultSink
	metrics       drepo.Metrics
	log           *applogger.Logger
	maxSessions   int
	defaultPreset string
	windowSize    int
	now           func() time.Time
}

type ManagerOption func(*SessionManager)

func WithMaxSessions(n int) ManagerOption {
	return func(m *SessionManager) {
		if n > 0 {
			m.maxSessions = n
		}
	}
}

func WithDefaultPreset(name string) ManagerOption {
	return func(m *SessionManager) { m.defaultPreset = name }
}

// WithWindowSize overrides the lookback of preset-based sessions.
func WithWindowSize(n int) ManagerOption {
	return func(m *SessionManager) { m.windowSize = n }
}

func WithManagerLogger(l *applogger.Logger) ManagerOption {
	return func(m *SessionManager) { m.log = l }
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *SessionManager) { m.now = now }
}

func NewSessionManager(sink *ResultSink, metrics drepo.Metrics, opts ...ManagerOption) *SessionManager {
	m := &SessionManager{
		sessions:      make(map[string]*managedSession),
		sink:          sink,
		metrics:       metrics,
		log:           applogger.Nop(),
		maxSessions:   1024,
		defaultPreset: "generic",
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create builds and registers a session. An empty ID gets a random UUID.
func (m *SessionManager) Create(_ context.Context, req CreateRequest) (SessionInfo, error) {
	cfg, preset, err := m.resolveConfig(req)
	if err != nil {
		return SessionInfo{}, err
	}
	s, err := trend.NewSession(cfg)
	if err != nil {
		return SessionInfo{}, err
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	ms := &managedSession{
		id:        id,
		preset:    preset,
		createdAt: m.now(),
		session:   s,
		byLabel:   labelIndex(s.Config().ARINCLabels),
	}

	m.mu.Lock()
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		return SessionInfo{}, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	if len(m.sessions) >= m.maxSessions {
		m.mu.Unlock()
		return SessionInfo{}, fmt.Errorf("%w: %d", ErrTooManySessions, m.maxSessions)
	}
	m.sessions[id] = ms
	n := len(m.sessions)
	m.mu.Unlock()

	m.metrics.SetActiveSessions(n)
	m.log.Info("session created",
		applogger.String("session_id", id),
		applogger.String("preset", preset),
		applogger.Strings("channels", s.Channels()),
	)
	return ms.info(), nil
}

// Ensure returns the session, creating it with the given preset when missing.
func (m *SessionManager) Ensure(ctx context.Context, id, preset string) (SessionInfo, error) {
	if info, err := m.Get(id); err == nil {
		return info, nil
	}
	info, err := m.Create(ctx, CreateRequest{ID: id, Preset: preset})
	if errors.Is(err, ErrSessionExists) {
		return m.Get(id)
	}
	return info, err
}

func (m *SessionManager) Get(id string) (SessionInfo, error) {
	ms, err := m.lookup(id)
	if err != nil {
		return SessionInfo{}, err
	}
	return ms.info(), nil
}

// List returns every session ordered by creation time.
func (m *SessionManager) List() []SessionInfo {
	m.mu.RLock()
	all := make([]*managedSession, 0, len(m.sessions))
	for _, ms := range m.sessions {
		all = append(all, ms)
	}
	m.mu.RUnlock()

	out := make([]SessionInfo, 0, len(all))
	for _, ms := range all {
		out = append(out, ms.info())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Tick ingests one sample vector into the session.
func (m *SessionManager) Tick(ctx context.Context, id string, samples []float64) (models.ClassificationResult, error) {
	return m.TickFrame(ctx, &models.TickFrame{SessionID: id, Samples: samples})
}

// TickFrame ingests a frame, decoding ARINC words into samples first when
// the frame carries them.
func (m *SessionManager) TickFrame(ctx context.Context, f *models.TickFrame) (models.ClassificationResult, error) {
	ms, err := m.lookup(f.SessionID)
	if err != nil {
		return models.ClassificationResult{}, err
	}
	ts := m.now()
	if f.Timestamp != 0 {
		ts = f.Time()
	}

	return m.run(ctx, ms, "tick", ts, func(s *trend.Session) (models.ClassificationResult, error) {
		samples := f.Samples
		if len(f.Words) > 0 {
			decoded, err := decodeWords(ms, f.Words)
			if err != nil {
				return models.ClassificationResult{}, err
			}
			samples = decoded
		}
		return s.Tick(samples)
	})
}

// ClassifyWindow runs batch mode on the session.
func (m *SessionManager) ClassifyWindow(ctx context.Context, id string, windows [][]float64) (models.ClassificationResult, error) {
	ms, err := m.lookup(id)
	if err != nil {
		return models.ClassificationResult{}, err
	}
	return m.run(ctx, ms, "batch", m.now(), func(s *trend.Session) (models.ClassificationResult, error) {
		return s.ClassifyWindow(windows)
	})
}

// Reset clears the session's windows and hysteresis state.
func (m *SessionManager) Reset(_ context.Context, id string) error {
	ms, err := m.lookup(id)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	ms.session.Reset()
	ms.last = nil
	ms.mu.Unlock()
	m.log.Info("session reset", applogger.String("session_id", id))
	return nil
}

// Close tears the session down and removes it from the registry.
func (m *SessionManager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	ms, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	n := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	ms.mu.Lock()
	ms.session.Close()
	ms.mu.Unlock()

	if c := m.latestCache(); c != nil {
		if err := c.Forget(ctx, id); err != nil {
			m.log.Warn("forget latest failed", applogger.String("session_id", id), applogger.Error(err))
		}
	}
	if m.sink != nil {
		if f, ok := m.sink.Store().(drepo.HistoryForgetter); ok {
			if err := f.Forget(ctx, id); err != nil {
				m.log.Warn("forget history failed", applogger.String("session_id", id), applogger.Error(err))
			}
		}
	}
	m.metrics.SetActiveSessions(n)
	m.log.Info("session closed", applogger.String("session_id", id))
	return nil
}

// CloseAll closes every session; used on shutdown.
func (m *SessionManager) CloseAll(ctx context.Context) {
	for _, info := range m.List() {
		_ = m.Close(ctx, info.ID)
	}
}

// Latest returns the last warm result of a session. Sessions not held by
// this process are looked up in the latest-result cache.
func (m *SessionManager) Latest(ctx context.Context, id string) (models.ClassificationResult, error) {
	if ms, err := m.lookup(id); err == nil {
		ms.mu.Lock()
		last := ms.last
		ms.mu.Unlock()
		if last != nil {
			return *last, nil
		}
	}
	if c := m.latestCache(); c != nil {
		r, err := c.Latest(ctx, id)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, drepo.ErrNotFound) {
			return models.ClassificationResult{}, err
		}
	}
	return models.ClassificationResult{}, fmt.Errorf("%w: no result for %s", ErrSessionNotFound, id)
}

// LatestMany returns the last result of each listed session that has one.
func (m *SessionManager) LatestMany(ctx context.Context, ids []string) (map[string]models.ClassificationResult, error) {
	out := make(map[string]models.ClassificationResult, len(ids))
	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		ms, err := m.lookup(id)
		if err == nil {
			ms.mu.Lock()
			last := ms.last
			ms.mu.Unlock()
			if last != nil {
				out[id] = *last
				continue
			}
		}
		missing = append(missing, id)
	}
	c := m.latestCache()
	if c == nil || len(missing) == 0 {
		return out, nil
	}
	cached, err := c.LatestMany(ctx, missing...)
	if err != nil {
		return out, err
	}
	for id, r := range cached {
		out[id] = r
	}
	return out, nil
}

// History queries stored results of a session.
func (m *SessionManager) History(ctx context.Context, q drepo.HistoryQuery) ([]models.ClassificationResult, error) {
	if m.sink == nil || m.sink.Store() == nil {
		return nil, ErrHistoryUnavailable
	}
	rs, err := m.sink.Store().History(ctx, q)
	if errors.Is(err, drepo.ErrNotFound) {
		return []models.ClassificationResult{}, nil
	}
	return rs, err
}

func (m *SessionManager) run(ctx context.Context, ms *managedSession, op string, ts time.Time,
	fn func(*trend.Session) (models.ClassificationResult, error)) (models.ClassificationResult, error) {
	start := time.Now()

	ms.mu.Lock()
	prev := ms.session.State().PreviousLabel
	res, err := fn(ms.session)
	if err != nil {
		ms.mu.Unlock()
		m.metrics.RecordTick(ms.preset, "rejected")
		m.metrics.RecordError(op + "_rejected")
		m.log.Debug("tick rejected", applogger.String("session_id", ms.id), applogger.Error(err))
		return models.ClassificationResult{}, err
	}
	res.SessionID = ms.id
	res.Timestamp = ts
	if res.Warm {
		last := res
		ms.last = &last
	}
	ms.mu.Unlock()

	m.metrics.RecordLatency(op, time.Since(start).Seconds())
	if !res.Warm {
		m.metrics.RecordTick(ms.preset, "cold")
		return res, nil
	}
	m.metrics.RecordTick(ms.preset, "warm")
	m.metrics.RecordLabel(ms.preset, prev.String(), res.Label.String(), res.Confidence, res.Anomaly)
	if res.Label != prev {
		m.log.Info("label changed",
			applogger.String("session_id", ms.id),
			applogger.String("from", prev.String()),
			applogger.String("to", res.Label.String()),
			applogger.Float64("confidence", res.Confidence),
		)
	}

	if m.sink != nil {
		out := res
		m.sink.Deliver(ctx, &out)
	}
	return res, nil
}

func (m *SessionManager) lookup(id string) (*managedSession, error) {
	m.mu.RLock()
	ms, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return ms, nil
}

func (m *SessionManager) latestCache() drepo.LatestCache {
	if m.sink == nil {
		return nil
	}
	return m.sink.Latest()
}

func (m *SessionManager) resolveConfig(req CreateRequest) (trend.Config, string, error) {
	if req.Config != nil {
		name := req.Config.Name
		if name == "" {
			name = "custom"
		}
		return *req.Config, name, nil
	}
	name := req.Preset
	if name == "" {
		name = m.defaultPreset
	}
	cfg, ok := trend.Preset(name)
	if !ok {
		return trend.Config{}, "", fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	if m.windowSize > 0 {
		cfg.WindowSize = m.windowSize
	}
	return cfg, cfg.Name, nil
}

func (ms *managedSession) info() SessionInfo {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	cfg := ms.session.Config()
	info := SessionInfo{
		ID:         ms.id,
		Preset:     ms.preset,
		Channels:   cfg.Channels,
		WindowSize: cfg.WindowSize,
		Fill:       ms.session.Fill(),
		Warm:       ms.session.Warm(),
		Seq:        ms.session.Seq(),
		State:      ms.session.State(),
		CreatedAt:  ms.createdAt,
	}
	if ms.last != nil {
		last := *ms.last
		info.Latest = &last
	}
	return info
}

func labelIndex(labels []uint8) map[uint8]int {
	if len(labels) == 0 {
		return nil
	}
	idx := make(map[uint8]int, len(labels))
	for i, l := range labels {
		idx[l] = i
	}
	return idx
}

// decodeWords maps wire-order ARINC words onto the session's channels.
// Every channel must be covered exactly once.
func decodeWords(ms *managedSession, words []models.ARINCWord) ([]float64, error) {
	if ms.byLabel == nil {
		return nil, fmt.Errorf("%w: session %s has no arinc label map", ErrFrameDecode, ms.id)
	}
	samples := make([]float64, len(ms.byLabel))
	seen := make([]bool, len(ms.byLabel))
	for _, w := range words {
		label := arinc429.ReverseLabel(w.Label)
		ch, ok := ms.byLabel[label]
		if !ok {
			return nil, fmt.Errorf("%w: unmapped label %s", ErrFrameDecode, arinc429.FormatOctal(label))
		}
		if seen[ch] {
			return nil, fmt.Errorf("%w: duplicate label %s", ErrFrameDecode, arinc429.FormatOctal(label))
		}
		v, err := arinc429.DecodeBCDStrict(arinc429.BCD(w.BCD))
		if err != nil {
			return nil, fmt.Errorf("%w: label %s: %w", ErrFrameDecode, arinc429.FormatOctal(label), err)
		}
		samples[ch] = v
		seen[ch] = true
	}
	for ch, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("%w: missing channel %d", ErrFrameDecode, ch)
		}
	}
	return samples, nil
}
