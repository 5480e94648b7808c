package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/tastecert-backend/pkg/config"
	"github.com/angelmondragon/tastecert-backend/pkg/db"
	"github.com/angelmondragon/tastecert-backend/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on startup when running in dev
// with TASTECERT_AUTO_MIGRATE enabled. It is a no-op everywhere else.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	runner, err := NewRunner(sqlDB, Embedded())
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	applied, err := runner.Up(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		logg.Debug(ctx, "schema up to date")
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{
		"applied": len(applied),
		"version": applied[len(applied)-1],
	})
	logg.Info(ctx, "dev migrations applied")
	return nil
}
