// Package drivers selects the configured storage.Store implementation.
package drivers

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/tastecert-backend/pkg/config"
	"github.com/angelmondragon/tastecert-backend/pkg/logger"
	"github.com/angelmondragon/tastecert-backend/pkg/storage"
	"github.com/angelmondragon/tastecert-backend/pkg/storage/gcs"
	"github.com/angelmondragon/tastecert-backend/pkg/storage/local"
)

func Open(ctx context.Context, cfg config.StorageConfig, gcp config.GCPConfig, logg *logger.Logger) (storage.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case config.StorageDriverLocal:
		return local.New(cfg.LocalRoot, logg)
	case config.StorageDriverGCS:
		return gcs.NewClient(ctx, cfg.GCSBucketName, gcp, logg)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
