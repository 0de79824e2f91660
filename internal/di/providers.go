package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"InvSight/internal/domain/repository"
	"InvSight/internal/handler/api"
	"InvSight/internal/handler/ws"
	mid "InvSight/internal/middleware"
	"InvSight/internal/registry"
	internalrepo "InvSight/internal/repository"
	icache "InvSight/internal/service/cache"
	svcmetrics "InvSight/internal/service/metrics"
	"InvSight/internal/service/ratelimit"
	"InvSight/internal/services/contract"
	"InvSight/internal/services/forecast"
	"InvSight/internal/services/reconcile"
	"InvSight/internal/usecase"
	pkgcache "InvSight/pkg/cache"
	pkgch "InvSight/pkg/clickhouse"
	"InvSight/pkg/config"
	xhttp "InvSight/pkg/http"
	pkgkafka "InvSight/pkg/kafka"
	applogger "InvSight/pkg/logger"
	"InvSight/pkg/metrics"
	"InvSight/pkg/queue"
	"InvSight/pkg/server"
)

// reportsTTL bounds how long a report result is reused within one snapshot version.
const reportsTTL = 5 * time.Minute

// windowCacheEntries caps the in-process demand window cache.
const windowCacheEntries = 50000

// ProvideLogger creates the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: cfg.Log.TimeFormat,
		Service:    "invsight",
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	svcmetrics.Register()
	return metrics.New()
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
// WARN and ERROR logs are shipped through it when the collector is on.
func ProvideKafkaProducer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithDelivery(cfg.Kafka.RequiredAcks, cfg.Kafka.Producer.MaxAttempts, cfg.Kafka.Compression),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	if cfg.Log.Collector.Enabled {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.Collector.Interval,
			CountThreshold: cfg.Log.Collector.Threshold,
			Topic:          cfg.Log.Collector.Topic,
			Publisher:      producer,
		})
	}
	return producer, nil
}

// ProvideKafkaConsumer creates the entity events consumer, or nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetLogger(l.With("component", "kafka_consumer"))
	return consumer, nil
}

// ProvideClickHouseClient creates a ClickHouse client when the entity store lives there.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Store.Type != "clickhouse" {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithSession(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync, cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideEntityStore selects the entity store backend.
func ProvideEntityStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) (repository.EntityStore, error) {
	switch cfg.Store.Type {
	case "csv":
		s := internalrepo.NewCSVEntityStore(cfg.Store.CSVDir)
		s.SetLogger(l.With("component", "csv_store"))
		return s, nil
	case "clickhouse":
		s := internalrepo.NewCHEntityStore(ch, cfg.ClickHouse.Database)
		s.SetLogger(l.With("component", "clickhouse_store"))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Init(ctx); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		return s, nil
	default:
		return internalrepo.NewMemoryEntityStore(), nil
	}
}

// ProvideArtifactSource selects where manifests and contracts are read from.
func ProvideArtifactSource(cfg *config.Config) (repository.ArtifactSource, error) {
	if cfg.Registry.Source != "minio" {
		return internalrepo.NewFSArtifactSource(cfg.Registry.Dir), nil
	}
	src, err := internalrepo.NewMinioArtifactSource(MinioConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("artifact source: %w", err)
	}
	return src, nil
}

// MinioConfig maps the registry.minio section.
func MinioConfig(cfg *config.Config) internalrepo.MinioConfig {
	m := cfg.Registry.Minio
	return internalrepo.MinioConfig{
		Endpoint:  m.Endpoint,
		AccessKey: m.AccessKey,
		SecretKey: m.SecretKey,
		Bucket:    m.Bucket,
		Prefix:    m.Prefix,
		UseSSL:    m.UseSSL,
	}
}

// ProvideRegistry loads every artifact named by the manifest.
func ProvideRegistry(cfg *config.Config, src repository.ArtifactSource, l *applogger.Logger) (*registry.Registry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	reg, err := registry.Load(ctx, src, cfg.Registry.Manifest, l.With("component", "registry"))
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	return reg, nil
}

// PlanFromConfig maps the reconcile section onto a plan. An empty section
// yields the default inventory plan.
func PlanFromConfig(cfg *config.Config) reconcile.Plan {
	rc := cfg.Reconcile
	if rc.Fact == "" {
		return reconcile.DefaultPlan()
	}
	p := reconcile.Plan{
		Fact:      rc.Fact,
		Timestamp: rc.Timestamp,
		Subject:   rc.Subject,
		Epsilon:   rc.Epsilon,
		Sentinel:  rc.Sentinel,
	}
	for _, s := range rc.Steps {
		p.Steps = append(p.Steps, reconcile.JoinStep{Table: s.Table, LeftKey: s.LeftKey, RightKey: s.RightKey})
	}
	for _, r := range rc.Rolling {
		p.Rolling = append(p.Rolling, reconcile.RollingSpec{Column: r.Column, Windows: r.Windows, Funcs: r.Funcs})
	}
	for _, g := range rc.Lags {
		p.Lags = append(p.Lags, reconcile.LagSpec{Name: g.Name, Column: g.Column, Periods: g.Periods})
	}
	for _, x := range rc.Products {
		p.Products = append(p.Products, reconcile.ProductSpec{Name: x.Name, Factors: x.Factors})
	}
	for _, r := range rc.Ratios {
		p.Ratios = append(p.Ratios, reconcile.RatioSpec{Name: r.Name, Numerator: r.Numerator, Denominator: r.Denominator, Offset: r.Offset})
	}
	return p
}

// ProvideReconcileEngine validates the configured plan.
func ProvideReconcileEngine(cfg *config.Config, l *applogger.Logger) (*reconcile.Engine, error) {
	e, err := reconcile.NewEngine(PlanFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("reconcile plan: %w", err)
	}
	e.SetLogger(l.With("component", "reconcile"))
	return e, nil
}

func ProvideEnforcer(m repository.Metrics, l *applogger.Logger) *contract.Enforcer {
	e := contract.NewEnforcer()
	e.SetMetrics(m)
	e.SetLogger(l.With("component", "contract"))
	return e
}

func ProvideForecaster(cfg *config.Config, l *applogger.Logger) *forecast.Engine {
	e := forecast.NewEngine(
		forecast.WithWindowLength(cfg.Forecast.WindowLength),
		forecast.WithMaxHorizon(cfg.Forecast.MaxHorizon),
	)
	e.SetLogger(l)
	return e
}

// ProvideRedisCache connects to Redis, or returns nil when Redis is disabled.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		pkgcache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		pkgcache.WithRedisPool(cfg.Redis.PoolSize, 2, 5*time.Second),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideWindowCache returns the demand window cache, or nil when disabled.
func ProvideWindowCache(cfg *config.Config, rc *pkgcache.RedisCache, l *applogger.Logger) *icache.WindowCache {
	if !cfg.WindowCache.Enabled {
		return nil
	}
	l = l.With("component", "window_cache")
	var backend pkgcache.Service
	switch {
	case cfg.WindowCache.Backend == "redis" && rc != nil:
		backend = rc
	case cfg.WindowCache.Backend == "redis":
		l.Warn("window cache wants redis but redis is disabled, using memory")
		fallthrough
	default:
		backend = pkgcache.NewMemoryCache(pkgcache.WithMemoryLimits(windowCacheEntries, time.Minute))
	}
	wc := icache.NewWindowCache(backend,
		icache.WithTTL(cfg.WindowCache.TTL),
		icache.WithLockTTL(cfg.WindowCache.LockTTL),
	)
	wc.SetLogger(l)
	return wc
}

// ProvideSnapshotManager creates the snapshot manager. Cached windows are
// dropped on every swap.
func ProvideSnapshotManager(
	cfg *config.Config,
	store repository.EntityStore,
	engine *reconcile.Engine,
	m repository.Metrics,
	wc *icache.WindowCache,
	l *applogger.Logger,
) *usecase.SnapshotManager {
	snaps := usecase.NewSnapshotManager(store, engine, m, usecase.WithFetchTimeout(cfg.Store.FetchTimeout))
	snaps.SetLogger(l.With("component", "snapshot"))
	if wc != nil {
		snaps.OnSwap(func(s *usecase.Snapshot) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := wc.Invalidate(ctx); err != nil {
				l.Warn("window cache invalidate failed", applogger.String("snapshot", s.Version), applogger.Error(err))
			}
		})
	}
	return snaps
}

func ProvideTrainingExport(
	store repository.EntityStore,
	snaps *usecase.SnapshotManager,
	enforcer *contract.Enforcer,
	reg *registry.Registry,
	l *applogger.Logger,
) *usecase.TrainingExport {
	e := usecase.NewTrainingExport(store, snaps, enforcer, reg)
	e.SetLogger(l)
	return e
}

// ProvideQueue creates the Redis job queue when refresh and export jobs are queued.
func ProvideQueue(cfg *config.Config, rc *pkgcache.RedisCache, l *applogger.Logger) *queue.RedisQueue {
	if !cfg.Snapshot.Queue || rc == nil {
		return nil
	}
	return queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    2,
		RetryLimit: 3,
		RetryDelay: 5 * time.Second,
		StatusTTL:  24 * time.Hour,
	}, rc.Client(), queue.ModeProducerConsumer, queue.WithKeyPrefix(cfg.Redis.Prefix+":jobs"))
}

// ProvideDispatcher routes refresh and export work inline or through the queue.
func ProvideDispatcher(
	snaps *usecase.SnapshotManager,
	export *usecase.TrainingExport,
	q *queue.RedisQueue,
	l *applogger.Logger,
) *usecase.Dispatcher {
	var opts []usecase.DispatcherOption
	if q != nil {
		q.RegisterJobs(usecase.NewSnapshotRefreshJob(snaps), usecase.NewTrainingExportJob(export))
		opts = append(opts, usecase.WithQueue(q, q))
	}
	d := usecase.NewDispatcher(snaps, export, opts...)
	d.SetLogger(l)
	return d
}

// ProvideResultPublisher publishes results to Kafka, or discards them without a producer.
func ProvideResultPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.ResultPublisher {
	if producer == nil {
		return internalrepo.NopResultPublisher{}
	}
	return internalrepo.NewKafkaResultPublisher(producer, cfg.Kafka.Topics.Predictions)
}

func ProvideHub(l *applogger.Logger) *ws.Hub {
	h := ws.NewHub()
	h.SetLogger(l.With("component", "stream"))
	return h
}

// ProvideResultPipeline builds the sink chain behind the orchestrator.
func ProvideResultPipeline(
	cfg *config.Config,
	pub repository.ResultPublisher,
	store repository.EntityStore,
	hub *ws.Hub,
	m repository.Metrics,
	l *applogger.Logger,
) *mid.ResultPipeline {
	opts := []mid.RouterOption{mid.WithBroadcaster(hub)}
	if cfg.Pipeline.Persist {
		opts = append(opts, mid.WithPersistence(store))
	}
	router := mid.NewResultRouter(pub, opts...)
	return mid.NewResultPipeline(router, m,
		mid.WithBufferSize(cfg.Pipeline.BufferSize),
		mid.WithMaxBackoff(5*time.Second),
		mid.WithPipelineLogger(l.With("component", "result_pipeline")),
	)
}

func ProvideOrchestrator(
	reg *registry.Registry,
	snaps *usecase.SnapshotManager,
	engine *reconcile.Engine,
	enforcer *contract.Enforcer,
	forecaster *forecast.Engine,
	m repository.Metrics,
	wc *icache.WindowCache,
	pipe *mid.ResultPipeline,
	l *applogger.Logger,
) *usecase.Orchestrator {
	opts := []usecase.OrchestratorOption{usecase.WithResultSink(pipe)}
	if wc != nil {
		opts = append(opts, usecase.WithWindowCache(wc))
	}
	o := usecase.NewOrchestrator(reg, snaps, engine, enforcer, forecaster, m, opts...)
	o.SetLogger(l.With("component", "orchestrator"))
	return o
}

func ProvideReports(snaps *usecase.SnapshotManager) *usecase.Reports {
	return usecase.NewReports(snaps, reportsTTL)
}

// ProvideRateLimiter returns the per-client limiter, or nil when disabled.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
}

// ProvideEntityEventsHandler consumes entity change events, or nil without a consumer.
func ProvideEntityEventsHandler(
	cfg *config.Config,
	consumer *pkgkafka.Consumer,
	store repository.EntityStore,
	dispatcher *usecase.Dispatcher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.KafkaEntityEventsHandler {
	if consumer == nil {
		return nil
	}
	h := usecase.NewKafkaEntityEventsHandler(cfg.Kafka.Topics.EntityEvents, store, dispatcher, m)
	h.SetLogger(l.With("component", "entity_events"))
	return h
}

// ProvideHealthChecks collects readiness probes for the configured backends.
func ProvideHealthChecks(
	snaps *usecase.SnapshotManager,
	ch *pkgch.Client,
	rc *pkgcache.RedisCache,
) map[string]api.Check {
	checks := map[string]api.Check{
		"snapshot": func(context.Context) error {
			if snaps.Current() == nil {
				return errors.New("no snapshot built yet")
			}
			return nil
		},
	}
	if ch != nil {
		checks["clickhouse"] = ch.Health
	}
	if rc != nil {
		checks["redis"] = func(ctx context.Context) error {
			return rc.Client().Ping(ctx).Err()
		}
	}
	return checks
}

// ProvideHandlers registers every HTTP surface.
func ProvideHandlers(
	orch *usecase.Orchestrator,
	snaps *usecase.SnapshotManager,
	dispatcher *usecase.Dispatcher,
	reports *usecase.Reports,
	store repository.EntityStore,
	rl *ratelimit.Limiter,
	hub *ws.Hub,
	checks map[string]api.Check,
	l *applogger.Logger,
) []xhttp.Handler {
	predict := api.NewPredictHandler(orch, rl)
	predict.SetLogger(l)
	snapshots := api.NewSnapshotHandler(snaps, dispatcher)
	snapshots.SetLogger(l)
	rep := api.NewReportsHandler(reports)
	rep.SetLogger(l)
	cols := api.NewCollectionsHandler(store)
	cols.SetLogger(l)
	return []xhttp.Handler{predict, snapshots, rep, cols, api.NewHealthHandler(checks), hub}
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	handlers []xhttp.Handler,
	snaps *usecase.SnapshotManager,
	dispatcher *usecase.Dispatcher,
	pipe *mid.ResultPipeline,
	consumer *pkgkafka.Consumer,
	events *usecase.KafkaEntityEventsHandler,
	q *queue.RedisQueue,
	rl *ratelimit.Limiter,
	hub *ws.Hub,
	pub repository.ResultPublisher,
	store repository.EntityStore,
	ch *pkgch.Client,
	rc *pkgcache.RedisCache,
) *server.App {
	closers := []server.Closer{
		{Name: "hub", Close: func() error { hub.Close(); return nil }},
		{Name: "publisher", Close: pub.Close},
		{Name: "store", Close: store.Close},
	}
	if ch != nil {
		closers = append(closers, server.Closer{Name: "clickhouse", Close: ch.Close})
	}
	if rc != nil {
		closers = append(closers, server.Closer{Name: "redis", Close: rc.Close})
	}
	closers = append(closers, server.Closer{Name: "log collector", Close: func() error {
		l.RemoveCollector()
		return nil
	}})

	l.Info("application wired",
		applogger.String("environment", cfg.Environment),
		applogger.String("store", cfg.Store.Type),
		applogger.String("registry", cfg.Registry.Source),
		applogger.Bool("kafka", cfg.Kafka.Enabled),
		applogger.Bool("redis", cfg.Redis.Enabled),
		applogger.Int("port", cfg.Server.Port))

	return server.New(cfg, server.Deps{
		Logger:       l,
		Handlers:     handlers,
		Snapshots:    snaps,
		Dispatcher:   dispatcher,
		Pipeline:     pipe,
		Consumer:     consumer,
		EntityEvents: events,
		Queue:        q,
		Limiter:      rl,
		Closers:      closers,
	})
}
