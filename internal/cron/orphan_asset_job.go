package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/tastecert-backend/pkg/logger"
	"github.com/angelmondragon/tastecert-backend/pkg/storage"
)

const defaultOrphanGrace = 24 * time.Hour

type assetStore interface {
	List(ctx context.Context, prefix string) ([]storage.Object, error)
	Delete(ctx context.Context, key string) error
}

// AssetReferences lists the storage keys still referenced by rows under one prefix.
type AssetReferences struct {
	Prefix string
	Keys   func(ctx context.Context) ([]string, error)
}

type OrphanAssetJobParams struct {
	Logger     *logger.Logger
	Store      assetStore
	References []AssetReferences
	Grace      time.Duration
}

func NewOrphanAssetJob(params OrphanAssetJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("asset store required")
	}
	if len(params.References) == 0 {
		return nil, fmt.Errorf("asset references required")
	}
	for _, ref := range params.References {
		if ref.Prefix == "" || ref.Keys == nil {
			return nil, fmt.Errorf("asset reference requires prefix and key source")
		}
	}
	grace := params.Grace
	if grace <= 0 {
		grace = defaultOrphanGrace
	}
	return &orphanAssetJob{
		logg:       params.Logger,
		store:      params.Store,
		references: params.References,
		grace:      grace,
		now:        time.Now,
	}, nil
}

type orphanAssetJob struct {
	logg       *logger.Logger
	store      assetStore
	references []AssetReferences
	grace      time.Duration
	now        func() time.Time
}

func (j *orphanAssetJob) Name() string { return "orphan-asset-sweep" }

// Run removes stored files that no row references once they are older than the grace period.
// A failing prefix does not stop the others.
func (j *orphanAssetJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.grace)
	var errs error
	for _, ref := range j.references {
		if err := j.sweep(ctx, ref, cutoff); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("sweep %s: %w", ref.Prefix, err))
		}
	}
	return errs
}

func (j *orphanAssetJob) sweep(ctx context.Context, ref AssetReferences, cutoff time.Time) error {
	keys, err := ref.Keys(ctx)
	if err != nil {
		return fmt.Errorf("load referenced keys: %w", err)
	}
	referenced := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		referenced[key] = struct{}{}
	}

	objects, err := j.store.List(ctx, ref.Prefix)
	if err != nil {
		return fmt.Errorf("list objects: %w", err)
	}

	var (
		deleted int
		errs    error
	)
	for _, obj := range objects {
		if _, ok := referenced[obj.Key]; ok {
			continue
		}
		if obj.ModTime.After(cutoff) {
			continue
		}
		if err := j.store.Delete(ctx, obj.Key); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("delete %s: %w", obj.Key, err))
			continue
		}
		deleted++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"prefix":     ref.Prefix,
		"cutoff":     cutoff,
		"objects":    len(objects),
		"referenced": len(referenced),
		"deleted":    deleted,
	})
	j.logg.Info(logCtx, "orphan asset sweep complete")
	return errs
}
