// Command care-api serves the medication adherence, refill reminder and notification API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/app"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/config"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/infrastructure/postgres"
)

const serviceName = "care-api"

func main() {
	rootCmd := &cobra.Command{
		Use:   serviceName,
		Short: "Medication adherence and notification API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(false)
		},
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var withSweeper bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(withSweeper)
		},
	}
	cmd.Flags().BoolVar(&withSweeper, "with-sweeper", false, "also run the reminder sweeper in this process")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database migrations and create the stream topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Store != config.StorePostgres {
				return fmt.Errorf("migrate needs STORE=%s", config.StorePostgres)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			a, err := app.New(ctx, serviceName, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			n, err := postgres.Migrate(ctx, a.Pool, a.Logger)
			if err != nil {
				return err
			}
			a.Logger.Info("migrations applied", zap.Int("count", n))
			if cfg.StreamingEnabled() {
				if err := a.EnsureTopics(ctx); err != nil {
					return fmt.Errorf("ensure topics: %w", err)
				}
				a.Logger.Info("topics ensured")
			}
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the embedded migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrations, err := postgres.Migrations()
			if err != nil {
				return err
			}
			for _, m := range migrations {
				fmt.Fprintf(cmd.OutOrStdout(), "%03d  %s\n", m.Version, m.Name)
			}
			return nil
		},
	})
	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
