//go:build wireinject
// +build wireinject

package di

import (
	"InvSight/pkg/config"
	"InvSight/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideClickHouseClient,
		ProvideRedisCache,

		// Repositories
		ProvideEntityStore,
		ProvideArtifactSource,
		ProvideResultPublisher,
		ProvideWindowCache,
		ProvideQueue,

		// Services
		ProvideRegistry,
		ProvideReconcileEngine,
		ProvideEnforcer,
		ProvideForecaster,

		// Use cases
		ProvideSnapshotManager,
		ProvideTrainingExport,
		ProvideDispatcher,
		ProvideReports,
		ProvideEntityEventsHandler,

		// Result sinks
		ProvideHub,
		ProvideResultPipeline,
		ProvideOrchestrator,

		// HTTP
		ProvideRateLimiter,
		ProvideHealthChecks,
		ProvideHandlers,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
