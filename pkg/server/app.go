package server

import (
	"context"
	"errors"
	"time"

	"AeroTrend/internal/service/ratelimit"
	"AeroTrend/internal/usecase"
	"AeroTrend/pkg/cache"
	pkgch "AeroTrend/pkg/clickhouse"
	"AeroTrend/pkg/config"
	xhttp "AeroTrend/pkg/http"
	pkgkafka "AeroTrend/pkg/kafka"
	applogger "AeroTrend/pkg/logger"
)

const limiterSweepInterval = time.Minute

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	root       *applogger.Logger
	log        *applogger.Logger
	httpServer *xhttp.Server
	manager    *usecase.SessionManager
	sink       *usecase.ResultSink

	collector *usecase.TelemetryCollector
	consumer  *pkgkafka.Consumer
	kh        pkgkafka.MessageHandler
	cache     cache.Store
	chClient  *pkgch.Client
	limiter   *ratelimit.Limiter

	cancel context.CancelFunc
	done   chan struct{}
}

// Option attaches an optional component. Nil components are ignored.
type Option func(*App)

func WithTelemetry(c *usecase.TelemetryCollector) Option {
	return func(a *App) { a.collector = c }
}

func WithConsumer(c *pkgkafka.Consumer, kh *usecase.KafkaTicksHandler) Option {
	return func(a *App) {
		if c == nil || kh == nil {
			return
		}
		a.consumer = c
		a.kh = kh
	}
}

func WithCache(c cache.Store) Option { return func(a *App) { a.cache = c } }

func WithClickHouse(c *pkgch.Client) Option { return func(a *App) { a.chClient = c } }

func WithRateLimiter(l *ratelimit.Limiter) Option { return func(a *App) { a.limiter = l } }

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	manager *usecase.SessionManager,
	sink *usecase.ResultSink,
	opts ...Option,
) *App {
	if l == nil {
		l = applogger.Nop()
	}
	a := &App{
		cfg:        cfg,
		root:       l,
		log:        l.With(applogger.String("component", "app")),
		httpServer: httpServer,
		manager:    manager,
		sink:       sink,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start launches every background component. Ingestion sources start last
// so that results always have somewhere to go.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	a.sink.Start(ctx)

	if err := a.httpServer.Start(); err != nil {
		return err
	}

	if a.consumer != nil {
		a.consumer.RegisterHandler(a.kh)
		if err := a.consumer.Start(); err != nil {
			return err
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if a.collector != nil {
		if err := a.collector.Start(ctx); err != nil {
			return err
		}
		a.log.Info("telemetry collector started", applogger.String("url", a.cfg.Telemetry.URL))
	}

	a.done = make(chan struct{})
	go a.housekeeping(ctx)

	a.log.Info("started",
		applogger.String("environment", a.cfg.Environment),
		applogger.Int("port", a.cfg.Server.Port),
		applogger.String("default_preset", a.cfg.Classifier.DefaultPreset),
		applogger.Bool("kafka", a.consumer != nil),
		applogger.Bool("clickhouse", a.chClient != nil),
		applogger.Bool("telemetry", a.collector != nil),
	)
	return nil
}

// Run starts the application and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		a.log.Error("start failed", applogger.Error(err))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(err, a.Shutdown(shutdownCtx))
	}
	<-ctx.Done()
	a.log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Shutdown stops intake first, then drains sessions and closes storage.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	if err := a.httpServer.Stop(ctx); err != nil {
		errs = append(errs, err)
	}

	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.log.Warn("telemetry stop error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if a.cancel != nil {
		a.cancel()
	}
	if a.done != nil {
		<-a.done
	}

	a.manager.CloseAll(ctx)

	// Aggregated logs go out through the producer the sink is about to close.
	a.root.DetachCollector()
	a.sink.Close()

	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("cache close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		a.log.Error("shutdown finished with errors", applogger.Error(err))
		return err
	}
	a.log.Info("shutdown complete")
	return nil
}

func (a *App) housekeeping(ctx context.Context) {
	defer close(a.done)
	t := time.NewTicker(limiterSweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if a.limiter != nil {
				n := a.limiter.Sweep()
				a.log.Debug("rate limiter swept", applogger.Int("buckets", n))
			}
		}
	}
}
