package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"credlife/internal/audit"
	"credlife/internal/credential/cache"
	"credlife/internal/credential/metrics"
	"credlife/internal/credential/policy"
	"credlife/internal/credential/service"
	"credlife/internal/credential/store"
	"credlife/internal/credential/workers/expiry"
	"credlife/internal/filestore"
	"credlife/internal/notification"
	"credlife/internal/platform/config"
	"credlife/internal/platform/database"
	"credlife/internal/platform/health"
	"credlife/internal/platform/kafka"
	"credlife/internal/platform/kafka/producer"
	"credlife/internal/platform/redis"
	"credlife/internal/platform/tracer"
	"credlife/pkg/platform/circuit"
	"credlife/pkg/platform/outbox"
	outboxmetrics "credlife/pkg/platform/outbox/metrics"
	outboxstore "credlife/pkg/platform/outbox/store"
	"credlife/pkg/platform/outbox/worker"
)

// app holds the wired service and the infrastructure it owns.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	service *service.Service
	health  *health.Handler

	pool     *database.Pool
	redis    *redis.Client
	producer *producer.Producer
	outbox   *worker.Worker
}

// newApp connects the configured backends. Missing ones fall back to
// in-process implementations so a bare checkout runs without dependencies.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, health: health.New(cfg.Server.Environment)}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	policies := policy.Defaults()
	if cfg.Lifecycle.PolicyFile != "" {
		if policies, err = policy.Load(cfg.Lifecycle.PolicyFile); err != nil {
			return nil, fmt.Errorf("load policy: %w", err)
		}
	}

	var (
		credStore   service.Store
		suspensions service.SuspensionStore
		auditStore  audit.Store
		outboxStore outbox.Store
	)
	if a.pool, err = database.New(ctx, cfg.Database); err != nil {
		return nil, err
	}
	if a.pool != nil {
		db := a.pool.DB()
		credStore = store.NewPostgres(db)
		suspensions = store.NewPostgresSuspensions(db)
		auditStore = audit.NewPostgresStore(db)
		outboxStore = outboxstore.NewPostgres(db)
		a.health.RegisterCheck("database", a.pool.Health)
	} else {
		logger.Warn("no database configured, using in-memory stores")
		credStore = store.NewInMemory()
		suspensions = store.NewInMemorySuspensions()
		auditStore = audit.NewInMemoryStore()
		outboxStore = outboxstore.NewInMemory()
	}

	var statusCache service.StatusCache = cache.NewInMemory(cfg.Lifecycle.StatusCacheTTL)
	if a.redis, err = redis.New(ctx, cfg.Redis); err != nil {
		return nil, err
	}
	if a.redis != nil {
		statusCache = cache.NewRedis(a.redis.Client, cfg.Lifecycle.StatusCacheTTL)
		a.health.RegisterOptionalCheck("redis", a.redis.Health)
	}

	var notifier service.Notifier = notification.NewLogNotifier(logger)
	if cfg.Kafka.Enabled() {
		if a.producer, err = producer.New(producer.Config{
			Brokers:         cfg.Kafka.Brokers,
			Acks:            cfg.Kafka.Acks,
			Retries:         cfg.Kafka.Retries,
			DeliveryTimeout: cfg.Kafka.DeliveryTimeout,
		}, logger); err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		if err := kafka.EnsureTopic(ctx, a.producer.Client(), cfg.Kafka.TopicConfig()); err != nil {
			return nil, err
		}
		notifier = notification.NewOutboxNotifier(outboxStore)
		a.outbox = worker.New(outboxStore, a.producer,
			worker.WithTopic(cfg.Kafka.Topic),
			worker.WithBatchSize(cfg.Outbox.BatchSize),
			worker.WithPollInterval(cfg.Outbox.PollInterval),
			worker.WithRetention(cfg.Outbox.Retention),
			worker.WithMetrics(outboxmetrics.New()),
			worker.WithLogger(logger),
		)
		a.health.RegisterOptionalCheck("kafka", kafka.NewHealthChecker(cfg.Kafka.Brokers).Check)
	}

	var tr tracer.Tracer = tracer.NewNoop()
	if cfg.Server.TracingEnabled {
		tr = tracer.NewOTel()
	}

	opts := []service.Option{
		service.WithPolicies(policies),
		service.WithCache(statusCache),
		service.WithTracer(tr),
		service.WithMetrics(metrics.New()),
		service.WithLogger(logger),
		service.WithScannerOptions(
			expiry.WithInterval(cfg.Lifecycle.ScanInterval),
			expiry.WithWarningWindow(cfg.Lifecycle.WarningWindow),
			expiry.WithBatchSize(cfg.Lifecycle.ScanBatchSize),
			expiry.WithConcurrency(cfg.Lifecycle.ScanConcurrency),
		),
	}
	if cfg.S3.Enabled() {
		files, err := filestore.NewS3(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("s3 file store: %w", err)
		}
		breaker := circuit.New("s3",
			circuit.WithFailureThreshold(cfg.S3.BreakerThreshold),
			circuit.WithCooldown(cfg.S3.BreakerCooldown),
			circuit.OnStateChange(func(name string, from, to circuit.State) {
				logger.Warn("circuit state changed", "circuit", name, "from", from.String(), "to", to.String())
			}),
		)
		guarded := filestore.NewGuarded(files, breaker)
		opts = append(opts, service.WithInspector(guarded), service.WithDownloadSigner(guarded))
	}

	recorder := audit.NewRecorder(auditStore, audit.WithMetrics(audit.NewMetrics()), audit.WithLogger(logger))
	a.service = service.New(credStore, suspensions, recorder, notifier, opts...)
	return a, nil
}

// startBackground launches the outbox relay, the expiry scanner, and pool
// stats. They stop when ctx is cancelled; the relay is drained by Close.
func (a *app) startBackground(ctx context.Context) {
	if a.outbox != nil {
		a.outbox.Start()
	}
	if a.redis != nil {
		a.redis.StartPoolStats(ctx, 15*time.Second)
	}
	if a.cfg.Lifecycle.ScannerEnabled {
		go func() {
			if err := a.service.Scanner().Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("expiry scanner stopped", "error", err)
			}
		}()
	}
}

// Close drains the relay and releases connections. Safe on a partially built app.
func (a *app) Close() {
	if a.outbox != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		if err := a.outbox.Stop(ctx); err != nil {
			a.logger.Warn("outbox relay did not drain", "error", err)
		}
		cancel()
	}
	if a.producer != nil {
		_ = a.producer.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		_ = a.pool.Close()
	}
}
