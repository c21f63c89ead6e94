package di

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"

	"AeroTrend/internal/domain/repository"
	"AeroTrend/internal/handler/api"
	internalrepo "AeroTrend/internal/repository"
	"AeroTrend/internal/service/ratelimit"
	"AeroTrend/internal/service/telemetry"
	"AeroTrend/internal/usecase"
	"AeroTrend/pkg/cache"
	pkgch "AeroTrend/pkg/clickhouse"
	"AeroTrend/pkg/config"
	xhttp "AeroTrend/pkg/http"
	pkgkafka "AeroTrend/pkg/kafka"
	applogger "AeroTrend/pkg/logger"
	"AeroTrend/pkg/metrics"
	"AeroTrend/pkg/server"
)

// ProvideKafkaProducer creates a Kafka producer, nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(pkgkafka.ProducerConfig{
		Brokers:           cfg.Kafka.Brokers,
		RequiredAcks:      cfg.Kafka.RequiredAcks,
		Compression:       cfg.Kafka.Compression,
		MaxAttempts:       cfg.Kafka.Producer.MaxAttempts,
		BatchSize:         cfg.Kafka.Producer.BatchSize,
		BatchBytes:        cfg.Kafka.Producer.BatchBytes,
		Linger:            cfg.Kafka.Producer.Linger,
		WriteTimeout:      cfg.Kafka.Producer.WriteTimeout,
		ReadTimeout:       cfg.Kafka.Producer.ReadTimeout,
		Async:             cfg.Kafka.Producer.Async,
		KeyedPartitioning: true,
	})
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the root logger. With Kafka enabled, repeated errors
// and warnings are aggregated and shipped to the logs topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if producer != nil && cfg.Kafka.LogsTopic != "" {
		l.AttachCollector(applogger.CollectorConfig{
			Interval:    30 * time.Second,
			MaxDistinct: 100,
			Topic:       cfg.Kafka.LogsTopic,
			Publisher:   producer,
		})
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient connects to ClickHouse, nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.Open(context.Background(), pkgch.Config{
		Host:             cfg.ClickHouse.Host,
		Port:             cfg.ClickHouse.Port,
		Database:         cfg.ClickHouse.Database,
		User:             cfg.ClickHouse.User,
		Password:         cfg.ClickHouse.Password,
		HTTP:             cfg.ClickHouse.UseHTTP,
		DialTimeout:      cfg.ClickHouse.DialTimeout,
		ReadTimeout:      cfg.ClickHouse.ReadTimeout,
		AsyncInsert:      cfg.ClickHouse.AsyncInsert,
		WaitForAsync:     cfg.ClickHouse.WaitForAsync,
		MaxExecutionTime: cfg.ClickHouse.MaxExecutionTime,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideResultStore picks ClickHouse when connected and the in-memory ring
// store otherwise.
func ProvideResultStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) (repository.ResultStore, error) {
	if ch == nil {
		store, err := internalrepo.NewMemoryResultStore(cfg.Classifier.MaxSessions, cfg.Classifier.HistoryLimit)
		if err != nil {
			return nil, fmt.Errorf("memory result store: %w", err)
		}
		return store, nil
	}

	store := internalrepo.NewCHResultStore(ch, "trend_results", l)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideResultPublisher publishes results to Kafka, nil without a producer.
func ProvideResultPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.ResultPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaResultPublisher(producer, cfg.Kafka.ResultsTopic)
}

// ProvideCache returns a Redis-backed layered cache when Redis is enabled
// and a process-local cache otherwise.
func ProvideCache(cfg *config.Config) (cache.Store, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(cfg.Classifier.MaxSessions * 2), nil
	}
	rc, err := cache.NewRedisCache(context.Background(), cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
		Prefix:   cfg.Redis.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache.NewLayeredCache(rc, cfg.Redis.L1Size, 5*time.Second), nil
}

// ProvideLatestCache stores the newest result per session.
func ProvideLatestCache(cfg *config.Config, c cache.Store) repository.LatestCache {
	return internalrepo.NewCacheLatestStore(c, cfg.Classifier.LatestTTL)
}

// ProvideResultSink fans results out to every configured target.
func ProvideResultSink(
	cfg *config.Config,
	m repository.Metrics,
	pub repository.ResultPublisher,
	store repository.ResultStore,
	latest repository.LatestCache,
	l *applogger.Logger,
) *usecase.ResultSink {
	opts := []usecase.SinkOption{
		usecase.WithStore(store),
		usecase.WithLatestCache(latest),
		usecase.WithSinkTimeout(cfg.Classifier.SinkTimeout),
		usecase.WithSinkLogger(l.With(applogger.String("component", "sink"))),
	}
	if pub != nil {
		opts = append(opts, usecase.WithPublisher(pub))
	}
	return usecase.NewResultSink(m, opts...)
}

// ProvideSessionManager creates the session registry.
func ProvideSessionManager(cfg *config.Config, sink *usecase.ResultSink, m repository.Metrics, l *applogger.Logger) *usecase.SessionManager {
	return usecase.NewSessionManager(sink, m,
		usecase.WithMaxSessions(cfg.Classifier.MaxSessions),
		usecase.WithDefaultPreset(cfg.Classifier.DefaultPreset),
		usecase.WithWindowSize(cfg.Classifier.WindowSize),
		usecase.WithManagerLogger(l.With(applogger.String("component", "sessions"))),
	)
}

// ProvideKafkaConsumer creates a Kafka consumer, nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:    cfg.Kafka.Brokers,
		GroupID:    cfg.Kafka.Consumer.GroupID,
		Workers:    cfg.Kafka.Consumer.Workers,
		QueueSize:  cfg.Kafka.Consumer.BufferSize,
		RetryMax:   cfg.Kafka.Consumer.RetryMax,
		BackoffMin: cfg.Kafka.Consumer.BackoffMin,
		BackoffMax: cfg.Kafka.Consumer.BackoffMax,
		DLQTopic:   cfg.Kafka.Consumer.DLQTopic,
		MinBytes:   cfg.Kafka.Consumer.MinBytes,
		MaxBytes:   cfg.Kafka.Consumer.MaxBytes,
		Logger:     l.With(applogger.String("component", "kafka_consumer")),
		Hooks:      []pkgkafka.Hook{pkgkafka.Tracing{}},
	})
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaTicksHandler feeds the ticks topic into the session manager.
// Unknown sessions are created with the default preset.
func ProvideKafkaTicksHandler(cfg *config.Config, manager *usecase.SessionManager, m repository.Metrics) *usecase.KafkaTicksHandler {
	return usecase.NewKafkaTicksHandler(cfg.Kafka.TicksTopic, manager, m,
		usecase.WithAutoCreate(cfg.Classifier.DefaultPreset),
	)
}

// ProvideTelemetryCollector connects the websocket feed, nil when disabled.
func ProvideTelemetryCollector(
	cfg *config.Config,
	manager *usecase.SessionManager,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.TelemetryCollector {
	if !cfg.Telemetry.Enabled {
		return nil
	}
	tl := l.With(applogger.String("component", "telemetry"))
	opts := []telemetry.Option{
		telemetry.WithToken(cfg.Telemetry.Token),
		telemetry.WithReconnectDelay(cfg.Telemetry.ReconnectDelay),
		telemetry.WithPingInterval(cfg.Telemetry.PingInterval),
		telemetry.WithBufferSize(cfg.Telemetry.BufferSize),
		telemetry.WithLogger(tl),
	}
	if cfg.Telemetry.SessionID != "" {
		opts = append(opts, telemetry.WithSessions(cfg.Telemetry.SessionID))
	}
	stream := telemetry.New(cfg.Telemetry.URL, opts...)
	return usecase.NewTelemetryCollector(stream, manager, m, tl, cfg.Telemetry.SessionID, cfg.Telemetry.Preset)
}

// ProvideRateLimiter limits tick ingestion, nil when disabled.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if cfg.Server.RateLimitPerSecond <= 0 || cfg.Server.RateLimitBurst <= 0 {
		return nil
	}
	return ratelimit.New(cfg.Server.RateLimitBurst, cfg.Server.RateLimitPerSecond)
}

// ProvideHTTPServer registers every API handler on the Echo server.
func ProvideHTTPServer(
	cfg *config.Config,
	manager *usecase.SessionManager,
	limiter *ratelimit.Limiter,
	l *applogger.Logger,
) *xhttp.Server {
	hl := l.With(applogger.String("component", "api"))
	var limit echo.MiddlewareFunc
	if limiter != nil {
		limit = limiter.Middleware()
	}
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(xhttp.ServerConfig{
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CORS:            cfg.Server.CORS,
		MetricsPath:     metricsPath,
		Logger:          l,
	},
		api.NewSessionsHandler(hl, manager, limit),
		api.NewARINCHandler(hl),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	manager *usecase.SessionManager,
	sink *usecase.ResultSink,
	collector *usecase.TelemetryCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTicksHandler,
	c cache.Store,
	ch *pkgch.Client,
	limiter *ratelimit.Limiter,
) *server.App {
	return server.New(cfg, l, httpServer, manager, sink,
		server.WithTelemetry(collector),
		server.WithConsumer(consumer, kh),
		server.WithCache(c),
		server.WithClickHouse(ch),
		server.WithRateLimiter(limiter),
	)
}
