/*
main.go - Application entry point

PURPOSE:
  billingd runs the hospital billing ledger. It loads configuration,
  opens the configured store and serves the HTTP API, or runs one-off
  maintenance commands against the same store.

COMMANDS:
  serve           Start the HTTP server (graceful shutdown on SIGINT/SIGTERM)
  migrate up      Apply pending PostgreSQL migrations
  migrate status  List PostgreSQL migrations and whether they are applied
  audit           Recompute every account once; exit 1 if any invariant is broken

STARTUP SEQUENCE (serve):
  1. Load and validate configuration (.env + environment)
  2. Build the zerolog logger
  3. Open the store (sqlite, postgres or memory)
  4. Load the tariff
  5. Wire ledger, claim service, handler, router
  6. Start the audit scheduler and the HTTP server

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the audit scheduler
  4. Close the store

EXAMPLES:
  STORE_DRIVER=memory billingd serve
  SQLITE_PATH=./data/billing.db billingd serve
  STORE_DRIVER=postgres DATABASE_URL=postgres://... billingd migrate up

SEE ALSO:
  - config/config.go: Environment keys
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/warp/billing-ledger/api"
	"github.com/warp/billing-ledger/billing"
	"github.com/warp/billing-ledger/config"
	"github.com/warp/billing-ledger/insurance"
	"github.com/warp/billing-ledger/store/postgres"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "billingd",
		Short:        "Hospital billing ledger server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(auditCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the billing API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cfg, newLogger(cfg))
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run PostgreSQL migrations (SQLite migrates itself on open)",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closePool, err := openMigrator(cmd.Context())
			if err != nil {
				return err
			}
			defer closePool()

			count, err := migrator.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closePool, err := openMigrator(cmd.Context())
			if err != nil {
				return err
			}
			defer closePool()

			statuses, err := migrator.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					appliedAt = s.AppliedAt.Format(time.RFC3339)
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	cmd.AddCommand(statusCmd)

	return cmd
}

func auditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Recompute every account and report invariant violations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			ledger := billing.NewLedger(st)
			ledger.Currency = cfg.Currency()
			ledger.Logger = logger

			report, err := ledger.Audit(cmd.Context())
			if err != nil {
				return fmt.Errorf("audit failed: %w", err)
			}
			return printAudit(os.Stdout, ledger.Currency, report)
		},
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger.Level(cfg.Level())
}

func openMigrator(ctx context.Context) (*postgres.Migrator, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.StoreDriver != config.DriverPostgres {
		return nil, nil, fmt.Errorf("migrate needs STORE_DRIVER=postgres, got %s", cfg.StoreDriver)
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewMigrator(pool, postgres.Migrations()), pool.Close, nil
}

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	ctx := context.Background()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info().Str("driver", cfg.StoreDriver).Msg("store opened")

	prices, err := loadTariff(cfg)
	if err != nil {
		return err
	}
	logger.Info().Str("tariff", prices.Name).Int("services", len(prices.Services())).Msg("tariff loaded")

	ledger := billing.NewLedger(st)
	ledger.Currency = cfg.Currency()
	ledger.Logger = logger.With().Str("component", "ledger").Logger()

	claims := insurance.NewService(st, ledger)
	claims.Logger = logger.With().Str("component", "claims").Logger()

	handler := api.NewHandler(ledger, claims, prices, logger)
	handler.Scheduler.Interval = cfg.AuditInterval
	handler.Scheduler.Start()
	defer handler.Scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.NewRouter(handler, cfg.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Int("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info().Msg("server stopped")
	return nil
}
