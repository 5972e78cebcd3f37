// Package app wires configuration, storage and domain services for the care binaries.
// Every binary builds one App and adds the background parts it runs.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/api/handlers"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/clock"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/config"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/adherence"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/notification"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/refill"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/schedule"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/domain/settings"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/infrastructure/cache"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/infrastructure/memory"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/infrastructure/postgres"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/infrastructure/redpanda"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/observability/logging"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/observability/metrics"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/observability/tracing"
	"github.com/NexaDev-26/Nexafya0.1-sub004/pkg/idempotency"
)

// Inbox is what the event ingestor and the sweeper need from the idempotency store.
type Inbox interface {
	Process(ctx context.Context, key, handler string, payload json.RawMessage, fn idempotency.Func) (*idempotency.Result, error)
	Claim(ctx context.Context, key string) (bool, error)
}

type App struct {
	Service  string
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Clock    clock.Clock

	// Pool is nil with STORE=memory
	Pool  *pgxpool.Pool
	Redis *cache.Redis
	Inbox Inbox

	Schedules *schedule.Service
	Ledger    *adherence.Ledger
	Refills   *refill.Tracker
	Center    *notification.Center
	Settings  *settings.Service

	tracer  *tracing.Provider
	closers []func()
}

// New loads nothing itself: cfg must already be validated.
func New(ctx context.Context, service string, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("service", service))

	tp, err := tracing.Init(ctx, tracing.Config{
		ServiceName:  service,
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SampleRate:   cfg.TraceSampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &App{
		Service:  service,
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  metrics.New(reg),
		Clock:    clock.New(cfg.Location()),
		tracer:   tp,
	}
	if err := a.wireStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.Ledger.OnRecord(func(r *adherence.DoseRecord) { a.Metrics.DoseRecorded(string(r.State)) })
	a.Center.Instrument(a.Metrics)
	return a, nil
}

func (a *App) wireStore(ctx context.Context) error {
	var prefCache settings.Cache = cache.NewMemory(a.Clock)
	if a.Config.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, a.Config.RedisURL, "care:")
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		a.Redis = rc
		a.closers = append(a.closers, func() { _ = rc.Close() })
		prefCache = rc
	}

	var (
		schedules     schedule.Repository
		doses         adherence.Repository
		refills       refill.Repository
		notifications notification.Repository
		prefs         settings.Repository
	)
	switch a.Config.Store {
	case config.StoreMemory:
		schedules = memory.NewScheduleRepo()
		doses = memory.NewDoseRepo()
		refills = memory.NewRefillRepo()
		notifications = memory.NewNotificationRepo()
		prefs = memory.NewPreferenceRepo()
		a.Inbox = idempotency.NewMemory()
		a.Logger.Warn("using in-memory store; data is lost on exit")
	default:
		pool, err := postgres.NewPool(ctx, a.Config.DatabaseURL, a.Config.DBMaxConns, a.Config.DBMinConns)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.Pool = pool
		a.closers = append(a.closers, pool.Close)

		changesTopic := ""
		if a.Config.StreamingEnabled() {
			changesTopic = redpanda.TopicNotificationChanges
		}
		schedules = postgres.NewScheduleRepo(pool)
		doses = postgres.NewDoseRepo(pool)
		refills = postgres.NewRefillRepo(pool)
		notifications = postgres.NewNotificationRepo(pool, changesTopic)
		prefs = postgres.NewPreferenceRepo(pool)
		inbox := idempotency.NewInbox(pool, idempotency.DefaultConfig(), a.Logger)
		inbox.StartCleanup()
		a.closers = append(a.closers, inbox.Stop)
		a.Inbox = inbox
	}

	a.Schedules = schedule.NewService(schedules, a.Clock, a.Logger)
	a.Ledger = adherence.NewLedger(doses, a.Schedules, a.Clock, a.Logger)
	a.Refills = refill.NewTracker(refills, a.Clock, a.Logger)
	a.Center = notification.NewCenter(notifications, a.Clock, a.Logger)
	a.Settings = settings.NewService(prefs, prefCache, a.Config.SettingsCacheTTL, a.Clock, a.Logger)
	return nil
}

// Checks are the readiness probes of the configured dependencies.
func (a *App) Checks() map[string]handlers.Check {
	checks := map[string]handlers.Check{}
	if a.Pool != nil {
		checks["postgres"] = a.Pool.Ping
	}
	if a.Redis != nil {
		checks["redis"] = a.Redis.Ping
	}
	if a.Config.StreamingEnabled() {
		brokers := a.Config.KafkaBrokers
		checks["redpanda"] = func(ctx context.Context) error { return redpanda.HealthCheck(ctx, brokers) }
	}
	return checks
}

// OnClose registers fn to run on Close, before the stores are closed.
func (a *App) OnClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close runs the registered closers in reverse order and flushes telemetry.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.Logger.Error("tracer shutdown failed", zap.Error(err))
	}
	_ = a.Logger.Sync()
}
