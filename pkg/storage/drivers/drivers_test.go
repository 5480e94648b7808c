package drivers

import (
	"context"
	"testing"

	"github.com/angelmondragon/tastecert-backend/pkg/config"
	"github.com/angelmondragon/tastecert-backend/pkg/storage/local"
)

func TestOpenLocal(t *testing.T) {
	store, err := Open(context.Background(), config.StorageConfig{Driver: "LOCAL", LocalRoot: t.TempDir()}, config.GCPConfig{}, nil)
	if err != nil {
		t.Fatalf("open local: %v", err)
	}
	if _, ok := store.(*local.Store); !ok {
		t.Fatalf("expected *local.Store, got %T", store)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), config.StorageConfig{Driver: "s3"}, config.GCPConfig{}, nil); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}
