package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/db"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on startup when running in dev
// with GIGMARKET_AUTO_MIGRATE set. Other environments migrate through gigctl.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	source, err := Source("")
	if err != nil {
		return err
	}
	m, err := New(sqlDB, source, nil)
	if err != nil {
		return err
	}

	applied, err := m.Up(ctx)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"env":     cfg.App.Env,
		"applied": applied,
	}), "dev migrations applied")
	return nil
}
