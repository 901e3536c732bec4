package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"campaignd/internal/config"
	"campaignd/internal/constants"
	"campaignd/internal/logger"
	"campaignd/internal/reconcile"
	"campaignd/pkg/logging"
)

var (
	configFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "campaign-consumer",
		Short: "Campaign completion consumer",
		Long:  "Campaign consumer persists campaign messages, counts them and notifies the campaign API once every message has arrived",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (optional, env vars are read either way)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger shared by every command.
func setup() (*config.Config, logger.Logger, error) {
	earlyLog := logging.NewEarlyLog()

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}
	if configFile == "" {
		earlyLog.Warnf("No config file given, reading defaults and environment only")
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		earlyLog.Errorf("Failed to load config: %v", err)
		return nil, nil, err
	}

	log, err := logger.New(logger.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		ServiceName: constants.ServiceName,
	})
	if err != nil {
		earlyLog.Errorf("Failed to init logger: %v", err)
		return nil, nil, err
	}
	return cfg, log, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume campaign messages and serve the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.InfowCtx(ctx, "Starting campaign consumer",
				"broker", cfg.Broker.Type,
				"message_store", cfg.Database.MessageStore,
				"counter_mode", cfg.Aggregator.CounterMode,
			)

			app := NewApp(cfg, log)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
				defer cancel()
				if err := app.Shutdown(shutdownCtx); err != nil {
					log.ErrorwCtx(shutdownCtx, "Shutdown finished with errors", "error", err)
				}
			}()

			if err := app.Initialize(ctx); err != nil {
				log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
				return err
			}

			log.InfowCtx(ctx, "Campaign consumer running")
			if err := app.Run(ctx); err != nil && err != context.Canceled {
				log.ErrorwCtx(ctx, "Service stopped with error", "error", err)
				return err
			}
			log.InfowCtx(ctx, "Shutdown complete")
			return nil
		},
	}
}

func reconcileCmd() *cobra.Command {
	var settle time.Duration

	cmd := &cobra.Command{
		Use:   "reconcile [campaignId]",
		Short: "Resolve campaigns whose counters reached their total",
		Long: "With a campaign id, notifies and clears that campaign immediately. " +
			"Without one, sweeps every counter twice, --settle apart, and resolves the ones that did not move.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			app := NewApp(cfg, log)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
				defer cancel()
				_ = app.Shutdown(shutdownCtx)
			}()

			if err := app.InitCore(ctx); err != nil {
				return err
			}

			var outcomes []reconcile.Outcome
			if len(args) == 1 {
				outcomes, err = app.reconciler.RunOnce(ctx, args[0])
			} else {
				outcomes, err = sweepTwice(ctx, app.reconciler, settle)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(outcomes)
		},
	}

	cmd.Flags().DurationVar(&settle, "settle", 10*time.Second, "Wait between the two sweeps of a full reconcile")
	return cmd
}

func sweepTwice(ctx context.Context, r *reconcile.Reconciler, settle time.Duration) ([]reconcile.Outcome, error) {
	if _, err := r.Sweep(ctx); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(settle):
	}
	return r.Sweep(ctx)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply message store migrations and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			app := NewApp(cfg, log)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
				defer cancel()
				_ = app.Shutdown(shutdownCtx)
			}()

			if err := app.initMessageStore(ctx); err != nil {
				return err
			}
			if err := app.Migrate(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			log.InfowCtx(ctx, "Migrations complete")
			return nil
		},
	}
}
