// Command event-ingestor turns upstream domain events (payments, orders, appointments,
// messages) into user notifications.
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
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/apperr"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/config"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/events"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/infrastructure/redpanda"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/observability/metrics"
)

const serviceName = "event-ingestor"

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
	if !cfg.StreamingEnabled() {
		return fmt.Errorf("%s needs KAFKA_BROKERS", serviceName)
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
	deadLetter, err := a.NewProducer()
	if err != nil {
		return err
	}

	ingestor := events.NewIngestor(a.Inbox, a.Center, a.Metrics, logger)
	consumerCfg := redpanda.DefaultConsumerConfig()
	consumerCfg.Brokers = cfg.KafkaBrokers
	consumerCfg.GroupID = cfg.KafkaGroupID
	consumerCfg.Topics = []string{redpanda.TopicDomainEvents}
	consumerCfg.Permanent = apperr.IsValidation

	consumer, err := redpanda.NewConsumer(consumerCfg, func(ctx context.Context, msg *redpanda.Message) error {
		return ingestor.Handle(ctx, msg.Value)
	}, deadLetter, logger)
	if err != nil {
		return err
	}
	consumer.Start()
	a.OnClose(consumer.Stop)
	logger.Info("event ingestor started",
		zap.String("group", consumerCfg.GroupID),
		zap.Strings("kinds", events.Kinds()))

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: api.NewRouter(api.RouterConfig{
			ServiceName: serviceName,
			Health:      handlers.NewHealthHandler(serviceName, a.Checks(), nil),
			Metrics:     metrics.Handler(a.Registry),
		}, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down", zap.Any("consumer", consumer.Stats()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	return nil
}
