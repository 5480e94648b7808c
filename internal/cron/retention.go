package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/tastecert-backend/pkg/logger"
)

const day = 24 * time.Hour

// PruneFunc deletes rows older than cutoff and returns how many went.
type PruneFunc func(ctx context.Context, cutoff time.Time) (int64, error)

// RetentionTarget is one table a retention job trims.
type RetentionTarget struct {
	Table string
	// Days of history to keep. Zero or less uses DefaultDays.
	Days        int
	DefaultDays int
	Prune       PruneFunc
}

func (t RetentionTarget) keep() time.Duration {
	days := t.Days
	if days <= 0 {
		days = t.DefaultDays
	}
	return time.Duration(days) * day
}

type retentionJob struct {
	name    string
	logg    *logger.Logger
	targets []RetentionTarget
	now     func() time.Time
}

// NewRetentionJob builds a job that prunes every target in order. A failing
// target does not stop the ones after it.
func NewRetentionJob(name string, logg *logger.Logger, targets ...RetentionTarget) (Job, error) {
	if name == "" {
		return nil, errors.New("job name required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%s: at least one retention target required", name)
	}
	for _, t := range targets {
		if t.Prune == nil {
			return nil, fmt.Errorf("%s: %s has no prune func", name, t.Table)
		}
		if t.keep() <= 0 {
			return nil, fmt.Errorf("%s: %s needs a positive retention", name, t.Table)
		}
	}
	return &retentionJob{name: name, logg: logg, targets: targets, now: time.Now}, nil
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var errs []error
	for _, t := range j.targets {
		cutoff := now.Add(-t.keep())
		deleted, err := t.Prune(ctx, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("prune %s: %w", t.Table, err))
			continue
		}
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"table":          t.Table,
			"cutoff":         cutoff,
			"retention_days": int(t.keep() / day),
			"rows_deleted":   deleted,
		}), "retention prune complete")
	}
	return errors.Join(errs...)
}
