package usecase

import (
	"context"
	"sync"
	"time"

	"AeroTrend/internal/domain/models"
	drepo "AeroTrend/internal/domain/repository"
	applogger "AeroTrend/pkg/logger"
)

const (
	targetPublisher = "publisher"
	targetStore     = "store"
	targetCache     = "cache"
)

// ResultSink fans warm results out to the publisher, the store and the
// latest-result cache. Delivery failures are logged, counted and retried in
// the background; they never affect the classification that produced them.
type ResultSink struct {
	pub     drepo.ResultPublisher
	store   drepo.ResultStore
	latest  drepo.LatestCache
	metrics drepo.Metrics
	log     *applogger.Logger
	timeout time.Duration

	retryCh    chan retryItem
	backoffMin time.Duration
	backoffMax time.Duration
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	started    bool

	// held is the item the retry loop was backing off on when it exited.
	// Written by the loop before wg.Done, read by Stop after wg.Wait.
	held *retryItem
}

type retryItem struct {
	target string
	result *models.ClassificationResult
}

type SinkOption func(*ResultSink)

func WithPublisher(p drepo.ResultPublisher) SinkOption { return func(s *ResultSink) { s.pub = p } }

func WithStore(st drepo.ResultStore) SinkOption { return func(s *ResultSink) { s.store = st } }

func WithLatestCache(c drepo.LatestCache) SinkOption { return func(s *ResultSink) { s.latest = c } }

func WithSinkLogger(l *applogger.Logger) SinkOption { return func(s *ResultSink) { s.log = l } }

// WithSinkTimeout bounds each delivery attempt.
func WithSinkTimeout(d time.Duration) SinkOption {
	return func(s *ResultSink) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRetryBuffer sets how many failed deliveries wait for a retry.
func WithRetryBuffer(n int) SinkOption {
	return func(s *ResultSink) {
		if n > 0 {
			s.retryCh = make(chan retryItem, n)
		}
	}
}

func WithRetryBackoff(min, max time.Duration) SinkOption {
	return func(s *ResultSink) {
		s.backoffMin, s.backoffMax = min, max
	}
}

func NewResultSink(metrics drepo.Metrics, opts ...SinkOption) *ResultSink {
	s := &ResultSink{
		metrics:    metrics,
		log:        applogger.Nop(),
		timeout:    2 * time.Second,
		retryCh:    make(chan retryItem, 1000),
		backoffMin: 50 * time.Millisecond,
		backoffMax: 2 * time.Second,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the configured result store, nil when none.
func (s *ResultSink) Store() drepo.ResultStore { return s.store }

// Latest exposes the configured latest-result cache, nil when none.
func (s *ResultSink) Latest() drepo.LatestCache { return s.latest }

// Deliver pushes r to every configured target.
func (s *ResultSink) Deliver(ctx context.Context, r *models.ClassificationResult) {
	for _, target := range []string{targetPublisher, targetStore, targetCache} {
		if !s.has(target) {
			continue
		}
		if err := s.send(ctx, target, r); err != nil {
			s.metrics.RecordError("sink_" + target)
			s.log.Warn("result delivery failed",
				applogger.String("target", target),
				applogger.String("session_id", r.SessionID),
				applogger.Uint64("seq", r.Seq),
				applogger.Error(err),
			)
			s.enqueue(retryItem{target: target, result: r})
		}
	}
}

// Start launches the retry loop.
func (s *ResultSink) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		backoff := s.backoffMin
		for {
			select {
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			case item := <-s.retryCh:
				if err := s.send(ctx, item.target, item.result); err != nil {
					s.metrics.RecordError("sink_retry_" + item.target)
					if backoff < s.backoffMax {
						backoff *= 2
					}
					select {
					case <-time.After(backoff):
					case <-s.stopCh:
						s.held = &item
						return
					case <-ctx.Done():
						s.held = &item
						return
					}
					s.enqueue(item)
					continue
				}
				backoff = s.backoffMin
			}
		}
	}()
}

// Stop ends the retry loop and gives every pending delivery, including
// the one in backoff, a last attempt bounded by the sink timeout. Deliveries
// that still fail are counted as sink_dropped.
func (s *ResultSink) Stop() {
	s.mu.Lock()
	wasStarted := s.started
	if wasStarted {
		s.started = false
		close(s.stopCh)
	}
	s.mu.Unlock()
	if wasStarted {
		s.wg.Wait()
	}
	s.drain()
}

func (s *ResultSink) drain() {
	var pending []retryItem
	if s.held != nil {
		pending = append(pending, *s.held)
		s.held = nil
	}
	for len(s.retryCh) > 0 {
		pending = append(pending, <-s.retryCh)
	}
	if len(pending) == 0 {
		return
	}

	dropped := 0
	for _, item := range pending {
		if err := s.send(context.Background(), item.target, item.result); err != nil {
			dropped++
			s.metrics.RecordError("sink_dropped")
			s.log.Warn("result delivery dropped",
				applogger.String("target", item.target),
				applogger.String("session_id", item.result.SessionID),
				applogger.Uint64("seq", item.result.Seq),
				applogger.Error(err),
			)
		}
	}
	s.log.Info("pending result deliveries flushed",
		applogger.Int("delivered", len(pending)-dropped),
		applogger.Int("dropped", dropped),
	)
}

// Pending is the number of deliveries waiting for a retry.
func (s *ResultSink) Pending() int { return len(s.retryCh) }

// Close releases the publisher and the store.
func (s *ResultSink) Close() {
	s.Stop()
	if s.pub != nil {
		_ = s.pub.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}

func (s *ResultSink) has(target string) bool {
	switch target {
	case targetPublisher:
		return s.pub != nil
	case targetStore:
		return s.store != nil
	case targetCache:
		return s.latest != nil
	}
	return false
}

func (s *ResultSink) send(ctx context.Context, target string, r *models.ClassificationResult) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	var err error
	switch target {
	case targetPublisher:
		err = s.pub.Publish(ctx, r)
	case targetStore:
		err = s.store.Save(ctx, r)
	case targetCache:
		err = s.latest.SetLatest(ctx, r)
	}
	s.metrics.RecordLatency("sink_"+target, time.Since(start).Seconds())
	return err
}

func (s *ResultSink) enqueue(item retryItem) {
	select {
	case s.retryCh <- item:
	default:
		s.metrics.RecordError("sink_buffer_full")
	}
}
