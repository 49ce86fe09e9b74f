// Command gigctl is the operator CLI: schema migrations, admin accounts,
// the category catalog, manual plan overrides and outbox dead letters.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/db"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "gigctl",
	Short:         "Operate a gigmarket deployment",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	_ = godotenv.Load()

	rootCmd.AddCommand(migrateCmd(), adminCmd(), categoriesCmd(), planCmd(), outboxCmd())
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "gigctl:", err)
		os.Exit(1)
	}
}

// env bundles what database-backed commands need.
type env struct {
	cfg  *config.Config
	logg *logger.Logger
	db   *db.Client
}

func (e *env) Close() {
	if err := e.db.Close(); err != nil {
		e.logg.Error(context.Background(), "error closing database", err)
	}
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logg := logger.New(logger.Options{
		ServiceName: "gigctl",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap database: %w", err)
	}
	return &env{cfg: cfg, logg: logg, db: client}, nil
}
