package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bryanwahyu/footprint/internal/config"
	"github.com/bryanwahyu/footprint/internal/infra/db/mysql"
	"github.com/bryanwahyu/footprint/internal/infra/db/postgres"
	"github.com/bryanwahyu/footprint/internal/infra/db/sqlstore"
	"github.com/bryanwahyu/footprint/internal/logging"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "footprint",
	Short:         "Digital footprint scan API",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	// .env opsional, env asli tetap menang
	_ = godotenv.Load()

	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", path, "path to config.yaml")
	rootCmd.AddCommand(serveCmd, migrateCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// bootstrap loads config and builds the logger shared by every command.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config load: %w", err)
	}
	log, err := logging.New(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, log, nil
}

// openStore connects to the configured database and applies pending migrations.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*sqlstore.Store, error) {
	var (
		store *sqlstore.Store
		ms    []sqlstore.Migration
		err   error
	)
	switch cfg.Database.Driver {
	case "mysql":
		store, err = mysql.Open(ctx, cfg.DSN(), cfg.Database.MaxOpenConns)
		ms = mysql.Migrations()
	default:
		store, err = postgres.Open(ctx, cfg.DSN(), cfg.Database.MaxOpenConns)
		ms = postgres.Migrations()
	}
	if err != nil {
		return nil, fmt.Errorf("%s connect: %w", cfg.Database.Driver, err)
	}
	n, err := sqlstore.Migrate(ctx, store.DB, store.Dialect, ms, log)
	if err != nil {
		_ = store.DB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if n > 0 {
		log.Info("migrations applied", zap.Int("count", n), zap.String("driver", cfg.Database.Driver))
	}
	return store, nil
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		store, err := openStore(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer store.DB.Close()
		log.Info("database is up to date", zap.String("driver", cfg.Database.Driver))
		return nil
	},
}
