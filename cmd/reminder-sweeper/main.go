// Command reminder-sweeper periodically announces due refills and upcoming doses.
package main

import (
	"context"
	"flag"
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
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/observability/metrics"
)

const serviceName = "reminder-sweeper"

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()
	if err := run(*once); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(once bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, serviceName, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.Logger

	sweeper, sender := a.NewSweeper()
	if once {
		res, err := sweeper.SweepOnce(ctx)
		if err != nil {
			return err
		}
		logger.Info("sweep finished", zap.Any("result", res))
		return nil
	}
	sweeper.Start()
	a.OnClose(sweeper.Stop)

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: api.NewRouter(api.RouterConfig{
			ServiceName: serviceName,
			Health:      handlers.NewHealthHandler(serviceName, a.Checks(), sender.Health),
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
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	return nil
}
