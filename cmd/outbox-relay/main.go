// Command outbox-relay publishes notification changes from the Postgres outbox to Redpanda.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/api"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/api/handlers"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/app"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/config"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/infrastructure/postgres"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/observability/metrics"
)

const serviceName = "outbox-relay"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Store != config.StorePostgres || !cfg.StreamingEnabled() {
		return fmt.Errorf("%s needs STORE=%s and KAFKA_BROKERS", serviceName, config.StorePostgres)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, serviceName, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.Logger

	if err := a.EnsureTopics(ctx); err != nil {
		return fmt.Errorf("ensure topics: %w", err)
	}
	producer, err := a.NewProducer()
	if err != nil {
		return err
	}

	outbox := postgres.NewOutbox(a.Pool, producer, postgres.DefaultOutboxConfig(), logger)
	outbox.Instrument(a.Metrics)
	outbox.Start()
	a.OnClose(outbox.Stop)
	logger.Info("outbox relay started", zap.Strings("brokers", cfg.KafkaBrokers))

	checks := a.Checks()
	checks["producer"] = producer.Ping
	srv := adminServer(cfg.Port, a, checks, logger)

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	return nil
}

// adminServer exposes /health, /ready and /metrics.
func adminServer(port string, a *app.App, checks map[string]handlers.Check, logger *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr: ":" + port,
		Handler: api.NewRouter(api.RouterConfig{
			ServiceName: serviceName,
			Health:      handlers.NewHealthHandler(serviceName, checks, nil),
			Metrics:     metrics.Handler(a.Registry),
		}, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin server failed", zap.Error(err))
		}
	}()
	return srv
}
