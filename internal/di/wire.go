//go:build wireinject
// +build wireinject

package di

import (
	"AeroTrend/pkg/config"
	"AeroTrend/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Metrics and logging
		ProvideMetrics,
		ProvideKafkaProducer,
		ProvideLogger,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideCache,
		ProvideKafkaConsumer,

		// Repositories
		ProvideResultStore,
		ProvideResultPublisher,
		ProvideLatestCache,

		// Use cases
		ProvideResultSink,
		ProvideSessionManager,
		ProvideKafkaTicksHandler,
		ProvideTelemetryCollector,

		// Transport
		ProvideRateLimiter,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
