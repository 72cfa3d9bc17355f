// Package bootstrap builds the service graph from configuration. The server
// and the operator CLI share it so both see the same stores and side effects.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	livenessmetrics "keepsake/internal/liveness/metrics"
	liveness "keepsake/internal/liveness/service"
	livenessstore "keepsake/internal/liveness/store"
	"keepsake/internal/notify"
	"keepsake/internal/plan"
	"keepsake/internal/platform/config"
	"keepsake/internal/platform/kafka"
	"keepsake/internal/platform/postgres"
	"keepsake/internal/platform/redis"
	"keepsake/internal/ratelimit"
	"keepsake/internal/release/anomaly"
	releasemetrics "keepsake/internal/release/metrics"
	release "keepsake/internal/release/service"
	releasestore "keepsake/internal/release/store"
	"keepsake/internal/shipment"
	vault "keepsake/internal/vault/service"
	vaultstore "keepsake/internal/vault/store"
	"keepsake/internal/vaultcrypto"
	id "keepsake/pkg/domain"
	"keepsake/pkg/platform/audit"
	auditpublisher "keepsake/pkg/platform/audit/publisher"
	auditkafka "keepsake/pkg/platform/audit/publishers/kafka"
	auditmemory "keepsake/pkg/platform/audit/store/memory"
	auditpostgres "keepsake/pkg/platform/audit/store/postgres"
)

// App holds the wired services and the connections they depend on.
type App struct {
	Vaults   *vault.Service
	Liveness *liveness.Service
	Release  *release.Service
	Audit    *auditpublisher.Publisher
	// PublicLimit caps unauthenticated requests per client IP.
	PublicLimit *ratelimit.Middleware

	DB    *sql.DB
	Redis *redis.Client
	Kafka *kgo.Client
	// AuditSink is nil unless Kafka is configured.
	AuditSink *auditkafka.Sink

	closers []func()
}

// Options tweak what Build wires for a given binary.
type Options struct {
	// Metrics registers the domain Prometheus collectors. The CLI leaves it
	// off.
	Metrics bool
	// AsyncAudit buffers audit writes off the request path.
	AsyncAudit int
}

// Build connects to every configured backend and wires the services. Missing
// backends fall back to in-process implementations: memory stores without a
// database URL, a local failure counter without Redis, log notifications
// without Kafka.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (_ *App, err error) {
	app := &App{}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	plans, err := plan.NewCatalog(cfg.Plans)
	if err != nil {
		return nil, err
	}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if db != nil {
		app.DB = db
		app.closers = append(app.closers, func() { _ = db.Close() })
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, err
		}
		logger.Info("using postgres stores")
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory stores")
	}

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rdb != nil {
		app.Redis = rdb
		app.closers = append(app.closers, func() { _ = rdb.Close() })
	}

	kc, err := kafka.NewClient(cfg.Kafka)
	if err != nil {
		return nil, err
	}
	if kc != nil {
		app.Kafka = kc
		app.closers = append(app.closers, kc.Close)
		if err := kafka.EnsureTopics(ctx, kc, cfg.Kafka); err != nil {
			return nil, fmt.Errorf("bootstrap kafka topics: %w", err)
		}
	}

	app.Audit = newAuditPublisher(app, cfg.Kafka, logger, opts)
	app.closers = append(app.closers, app.Audit.Close)

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if kc != nil {
		notifier = notify.NewKafkaNotifier(kc,
			notify.WithTopic(cfg.Kafka.NotificationTopic),
			notify.WithLogger(logger),
		)
	}

	var counter anomaly.Counter
	if rdb != nil {
		counter = anomaly.NewRedisCounter(rdb.Client)
	}
	tracker := anomaly.New(counter, cfg.Release.AnomalyThreshold, cfg.Release.AnomalyWindow, anomaly.WithLogger(logger))

	var limits ratelimit.Store = ratelimit.NewInMemory(nil)
	if rdb != nil {
		limits = ratelimit.NewRedisStore(rdb.Client)
	}
	app.PublicLimit = ratelimit.New(limits, cfg.RateLimit.PublicRequests, cfg.RateLimit.PublicWindow,
		ratelimit.WithLogger(logger))

	var (
		vaults        vaultStore
		events        liveness.EventStore
		beneficiaries release.Store
	)
	if db != nil {
		vaults = vaultstore.NewPostgres(db)
		events = livenessstore.NewPostgres(db)
		beneficiaries = releasestore.NewPostgres(db)
	} else {
		vaults = vaultstore.NewInMemory()
		events = livenessstore.NewInMemory()
		beneficiaries = releasestore.NewInMemory()
	}

	var (
		liveMetrics    *livenessmetrics.Metrics
		releaseMetrics *releasemetrics.Metrics
	)
	if opts.Metrics {
		liveMetrics = livenessmetrics.New()
		releaseMetrics = releasemetrics.New()
	}

	app.Vaults, err = vault.New(vaults,
		vault.WithPlans(plans),
		vault.WithLogger(logger),
		vault.WithAuditPublisher(app.Audit),
	)
	if err != nil {
		return nil, err
	}

	// The release service completes vaults through liveness, which in turn
	// fans out through release; the closure breaks the construction cycle.
	app.Release, err = release.New(beneficiaries, vaults,
		release.WithPlans(plans),
		release.WithPool(vaultcrypto.NewPool(cfg.Crypto.Workers)),
		release.WithNotifier(notifier),
		release.WithCarrier(shipment.NewLogCarrier(logger)),
		release.WithAnomalyTracker(tracker),
		release.WithCompleter(release.CompleterFunc(func(ctx context.Context, vaultID id.VaultID) error {
			return app.Liveness.CompleteRelease(ctx, vaultID)
		})),
		release.WithMetrics(releaseMetrics),
		release.WithLogger(logger),
		release.WithAuditPublisher(app.Audit),
		release.WithTokenTTL(cfg.Release.TokenTTL),
		release.WithUnlockDelay(cfg.Release.UnlockDelay),
		release.WithFanOutConcurrency(cfg.Release.FanOutConcurrency),
	)
	if err != nil {
		return nil, err
	}

	app.Liveness, err = liveness.New(vaults, events,
		liveness.WithReleaser(app.Release),
		liveness.WithNotifier(notifier),
		liveness.WithMetrics(liveMetrics),
		liveness.WithLogger(logger),
		liveness.WithAuditPublisher(app.Audit),
	)
	if err != nil {
		return nil, err
	}
	return app, nil
}

// vaultStore is what the three services need from one vault store.
type vaultStore interface {
	vault.Store
	liveness.VaultStore
}

func newAuditPublisher(app *App, kcfg config.KafkaConfig, logger *slog.Logger, opts Options) *auditpublisher.Publisher {
	var store audit.Store = auditmemory.NewInMemoryStore()
	if app.DB != nil {
		store = auditpostgres.New(app.DB)
	}
	popts := []auditpublisher.Option{auditpublisher.WithLogger(logger)}
	if opts.AsyncAudit > 0 {
		popts = append(popts, auditpublisher.WithAsyncBuffer(opts.AsyncAudit))
	}
	if app.Kafka != nil {
		app.AuditSink = auditkafka.New(app.Kafka,
			auditkafka.WithTopic(kcfg.AuditTopic),
			auditkafka.WithLogger(logger),
		)
		popts = append(popts, auditpublisher.WithSink(app.AuditSink))
	}
	return auditpublisher.NewPublisher(store, popts...)
}

// HealthChecks returns one probe per configured backend.
func (a *App) HealthChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if a.DB != nil {
		checks["database"] = a.DB.PingContext
	}
	if a.Redis != nil {
		checks["redis"] = a.Redis.Health
	}
	if a.AuditSink != nil {
		checks["audit_kafka"] = func(context.Context) error {
			if !a.AuditSink.Healthy() {
				return errors.New("audit mirror circuit open")
			}
			return nil
		}
	}
	return checks
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
