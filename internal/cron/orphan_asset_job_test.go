package cron

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/tastecert-backend/pkg/logger"
	"github.com/angelmondragon/tastecert-backend/pkg/storage"
)

type fakeAssetStore struct {
	objects   []storage.Object
	deleted   []string
	deleteErr map[string]error
	listErr   map[string]error
}

func (f *fakeAssetStore) List(_ context.Context, prefix string) ([]storage.Object, error) {
	if err := f.listErr[prefix]; err != nil {
		return nil, err
	}
	var out []storage.Object
	for _, obj := range f.objects {
		if strings.HasPrefix(obj.Key, prefix+"/") {
			out = append(out, obj)
		}
	}
	return out, nil
}

func (f *fakeAssetStore) Delete(_ context.Context, key string) error {
	if err := f.deleteErr[key]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, key)
	return nil
}

func staticKeys(keys ...string) func(context.Context) ([]string, error) {
	return func(context.Context) ([]string, error) { return keys, nil }
}

func newOrphanJob(t *testing.T, store *fakeAssetStore, refs ...AssetReferences) *orphanAssetJob {
	t.Helper()
	jobIface, err := NewOrphanAssetJob(OrphanAssetJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Store:      store,
		References: refs,
		Grace:      time.Hour,
	})
	if err != nil {
		t.Fatalf("NewOrphanAssetJob: %v", err)
	}
	return jobIface.(*orphanAssetJob)
}

func TestOrphanAssetJobDeletesUnreferencedOldFiles(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-2 * time.Hour)
	store := &fakeAssetStore{objects: []storage.Object{
		{Key: "qr/qr-a-1.png", ModTime: old},
		{Key: "qr/qr-b-2.png", ModTime: old},
		{Key: "qr/qr-c-3.png", ModTime: now.Add(-10 * time.Minute)},
		{Key: "certificates/TC-2026-000001.pdf", ModTime: old},
		{Key: "certificates/TC-2026-000002.pdf", ModTime: old},
	}}
	job := newOrphanJob(t, store,
		AssetReferences{Prefix: storage.PrefixQRCodes, Keys: staticKeys("qr/qr-a-1.png")},
		AssetReferences{Prefix: storage.PrefixCertificates, Keys: staticKeys("certificates/TC-2026-000001.pdf")},
	)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	sort.Strings(store.deleted)
	want := []string{"certificates/TC-2026-000002.pdf", "qr/qr-b-2.png"}
	if strings.Join(store.deleted, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v deleted, got %v", want, store.deleted)
	}
}

func TestOrphanAssetJobContinuesPastFailures(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-48 * time.Hour)
	store := &fakeAssetStore{
		objects: []storage.Object{
			{Key: "products/p1/image-1.png", ModTime: old},
			{Key: "certificates/TC-2026-000009.pdf", ModTime: old},
		},
		listErr: map[string]error{storage.PrefixQRCodes: errors.New("bucket unavailable")},
	}
	job := newOrphanJob(t, store,
		AssetReferences{Prefix: storage.PrefixQRCodes, Keys: staticKeys()},
		AssetReferences{Prefix: storage.PrefixProducts, Keys: func(context.Context) ([]string, error) {
			return nil, errors.New("db down")
		}},
		AssetReferences{Prefix: storage.PrefixCertificates, Keys: staticKeys()},
	)
	job.now = func() time.Time { return now }

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if !strings.Contains(err.Error(), "bucket unavailable") || !strings.Contains(err.Error(), "db down") {
		t.Fatalf("expected both failures reported, got %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "certificates/TC-2026-000009.pdf" {
		t.Fatalf("expected certificate orphan removed, got %v", store.deleted)
	}
}

func TestNewOrphanAssetJobValidatesReferences(t *testing.T) {
	_, err := NewOrphanAssetJob(OrphanAssetJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Store:      &fakeAssetStore{},
		References: []AssetReferences{{Prefix: "qr"}},
	})
	if err == nil {
		t.Fatal("expected error for missing key source")
	}
}
