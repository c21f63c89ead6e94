package trend

import (
	"fmt"
	"math"

	"AeroTrend/internal/domain/models"
	"AeroTrend/internal/services/features"
)

// Session owns the windows and state machine of one classifier instance.
// It is not safe for concurrent use; callers serialize ticks per session.
type Session struct {
	cfg      Config
	window   *WindowBuffer
	detector *AnomalyDetector
	machine  *StateMachine
	seq      uint64
	closed   bool
}

// NewSession validates cfg and allocates the session storage. No session is
// returned when the configuration is rejected.
func NewSession(cfg Config) (*Session, error) {
	c := cfg.clone()
	if err := c.Normalize(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &Session{
		cfg:      c,
		window:   NewWindowBuffer(len(c.Channels), c.WindowSize),
		detector: NewAnomalyDetector(c.Profile, len(c.Channels)),
		machine:  NewStateMachine(),
	}, nil
}

// Config returns a copy of the normalized configuration.
func (s *Session) Config() Config { return s.cfg.clone() }

// Channels lists channel names in input order.
func (s *Session) Channels() []string { return append([]string(nil), s.cfg.Channels...) }

// Warm reports whether every window is full.
func (s *Session) Warm() bool { return s.window.IsWarm() }

// Fill is the number of samples buffered per channel, capped at N.
func (s *Session) Fill() int { return s.window.Fill() }

// State returns a copy of the hysteresis state.
func (s *Session) State() models.SessionState { return s.machine.State() }

// Seq is the number of accepted ticks since the last reset.
func (s *Session) Seq() uint64 { return s.seq }

// Closed reports whether Close was called without a later Start.
func (s *Session) Closed() bool { return s.closed }

// Windows returns a copy of the current windows.
func (s *Session) Windows() [][]float64 { return s.window.Snapshot() }

// Start prepares the session for a new run. It reopens a closed session.
func (s *Session) Start() {
	s.Reset()
	s.closed = false
}

// Reset clears windows, counters and the state machine. It is idempotent.
func (s *Session) Reset() {
	s.window.Reset()
	s.machine.Reset()
	s.seq = 0
}

// Close tears the session down; later ticks fail with ErrSessionClosed.
func (s *Session) Close() {
	s.Reset()
	s.closed = true
}

// Tick ingests one sample per channel and classifies once the windows are
// warm. A rejected tick changes nothing.
func (s *Session) Tick(samples []float64) (models.ClassificationResult, error) {
	if s.closed {
		return models.ClassificationResult{}, ErrSessionClosed
	}
	if len(samples) != len(s.cfg.Channels) {
		return models.ClassificationResult{}, fmt.Errorf("%w: got %d samples for %d channels", ErrChannelCount, len(samples), len(s.cfg.Channels))
	}
	if err := s.checkFinite(samples, 0); err != nil {
		return models.ClassificationResult{}, err
	}

	for c, v := range samples {
		s.window.Ingest(c, v)
	}
	s.seq++

	if !s.window.IsWarm() {
		return s.coldResult(), nil
	}
	return s.classify(), nil
}

// ClassifyWindow is batch mode: each row holds exactly N samples of one
// channel, oldest first. The rows are ingested through the same window
// manager and classified immediately. Hysteresis state carries over.
func (s *Session) ClassifyWindow(windows [][]float64) (models.ClassificationResult, error) {
	if s.closed {
		return models.ClassificationResult{}, ErrSessionClosed
	}
	if len(windows) != len(s.cfg.Channels) {
		return models.ClassificationResult{}, fmt.Errorf("%w: got %d windows for %d channels", ErrChannelCount, len(windows), len(s.cfg.Channels))
	}
	n := s.window.Capacity()
	for c, row := range windows {
		if len(row) != n {
			return models.ClassificationResult{}, fmt.Errorf("%w: channel %s has %d samples, want %d", ErrWindowLength, s.cfg.Channels[c], len(row), n)
		}
	}
	for c, row := range windows {
		for i, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return models.ClassificationResult{}, &SampleError{Channel: s.cfg.Channels[c], Index: i, Value: v}
			}
		}
	}

	for i := 0; i < n; i++ {
		for c := range windows {
			s.window.Ingest(c, windows[c][i])
		}
	}
	s.seq++
	return s.classify(), nil
}

func (s *Session) checkFinite(samples []float64, index int) error {
	for c, v := range samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &SampleError{Channel: s.cfg.Channels[c], Index: index, Value: v}
		}
	}
	return nil
}

func (s *Session) coldResult() models.ClassificationResult {
	return models.ClassificationResult{
		Seq:             s.seq,
		Label:           models.LabelStable,
		Confidence:      0,
		PerChannelTrend: make([]float64, len(s.cfg.Channels)),
	}
}

func (s *Session) classify() models.ClassificationResult {
	windows := s.window.Windows()
	fs := features.Extract(windows)
	weighted := features.WeightedTrend(fs.Slope, s.cfg.Weights)
	maxVar := features.MaxVariance(fs.Variance)
	anomaly := s.detector.Detect(windows)

	d := Decide(anomaly, maxVar, weighted, s.cfg.Thresholds, s.machine.Previous())
	reported := s.machine.Step(d.Label)

	return models.ClassificationResult{
		Seq:             s.seq,
		Label:           reported,
		Confidence:      d.Confidence,
		PerChannelTrend: fs.Slope,
		WeightedTrend:   weighted,
		MaxVariance:     maxVar,
		Anomaly:         anomaly,
		Warm:            true,
	}
}
