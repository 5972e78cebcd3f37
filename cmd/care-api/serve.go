package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/api"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/api/handlers"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/app"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/observability/metrics"
	"github.com/NexaDev-26/Nexafya0.1-sub004/pkg/circuitbreaker"
)

func runServer(withSweeper bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	a, err := app.New(ctx, serviceName, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.Logger

	var breakers func() []circuitbreaker.Health
	if withSweeper {
		sweeper, sender := a.NewSweeper()
		sweeper.Start()
		a.OnClose(sweeper.Stop)
		breakers = sender.Health
	}

	if cfg.StreamingEnabled() && a.Pool != nil {
		follower, err := a.FollowChanges()
		if err != nil {
			return err
		}
		follower.Start()
		a.OnClose(follower.Stop)
	}

	router := api.NewRouter(api.RouterConfig{
		ServiceName: serviceName,
		APIKeys:     cfg.APIKeys,
		Health:      handlers.NewHealthHandler(serviceName, a.Checks(), breakers),
		Metrics:     metrics.Handler(a.Registry),
		Observer:    a.Metrics,
		Routes: []api.Registrar{
			handlers.NewScheduleHandler(a.Schedules, a.Refills, logger),
			handlers.NewDoseHandler(a.Ledger, logger),
			handlers.NewRefillHandler(a.Refills, logger),
			handlers.NewNotificationHandler(a.Center, logger),
			handlers.NewPreferenceHandler(a.Settings, logger),
		},
	}, logger)

	// no WriteTimeout: it would cut WebSocket streams
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting care API",
			zap.String("port", cfg.Port),
			zap.String("store", cfg.Store),
			zap.Bool("streaming", cfg.StreamingEnabled()),
			zap.Bool("sweeper", withSweeper))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
	return nil
}
