package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/angelmondragon/tastecert-backend/pkg/logger"
	"github.com/angelmondragon/tastecert-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	released int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.released++
	return nil
}

type testJob struct {
	name  string
	err   error
	panic bool
	runs  int
	ctx   context.Context
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	t.ctx = ctx
	if t.panic {
		panic("store exploded")
	}
	return t.err
}

func newCronService(t *testing.T, lock Lock, reg *prometheus.Registry, jobs ...Job) *Service {
	t.Helper()
	params := ServiceParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry:   NewRegistry(jobs...),
		Lock:       lock,
		JobTimeout: time.Minute,
	}
	if reg != nil {
		params.Metrics = metrics.NewCronJobMetrics(reg)
	}
	service, err := NewService(params)
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestRunOnceRunsEveryJobAndCombinesErrors(t *testing.T) {
	ok := &testJob{name: "outbox-retention"}
	failing := &testJob{name: "notification-cleanup", err: errors.New("db down")}
	panicking := &testJob{name: "orphan-asset-sweep", panic: true}
	lock := &fakeLock{}
	service := newCronService(t, lock, nil, ok, failing, panicking)

	err := service.RunOnce(context.Background(), "")
	if err == nil {
		t.Fatal("expected combined error")
	}
	for _, job := range []*testJob{ok, failing, panicking} {
		if job.runs != 1 {
			t.Fatalf("job %s ran %d times", job.name, job.runs)
		}
	}
	if !strings.Contains(err.Error(), "notification-cleanup: db down") {
		t.Fatalf("missing job failure in %q", err.Error())
	}
	if !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("missing panic in %q", err.Error())
	}
	if lock.released != 1 || lock.held {
		t.Fatalf("lock not released")
	}
}

func TestRunOnceSingleJob(t *testing.T) {
	retention := &testJob{name: "outbox-retention"}
	sweep := &testJob{name: "orphan-asset-sweep"}
	service := newCronService(t, &fakeLock{}, nil, retention, sweep)

	if err := service.RunOnce(context.Background(), "orphan-asset-sweep"); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if retention.runs != 0 || sweep.runs != 1 {
		t.Fatalf("unexpected runs: retention=%d sweep=%d", retention.runs, sweep.runs)
	}
	if err := service.RunOnce(context.Background(), "nope"); err == nil {
		t.Fatal("expected unknown job error")
	}
}

func TestRunOnceReportsHeldLock(t *testing.T) {
	job := &testJob{name: "outbox-retention"}
	service := newCronService(t, &fakeLock{held: true}, nil, job)

	if err := service.RunOnce(context.Background(), ""); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
	if job.runs != 0 {
		t.Fatal("job ran without the lock")
	}
}

func TestRunJobAppliesTimeoutAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	ok := &testJob{name: "outbox-retention"}
	failing := &testJob{name: "notification-cleanup", err: errors.New("boom")}
	service := newCronService(t, &fakeLock{}, reg, ok, failing)

	_ = service.RunOnce(context.Background(), "")

	if _, hasDeadline := ok.ctx.Deadline(); !hasDeadline {
		t.Fatal("expected job context deadline")
	}
	expected := `
# HELP tastecert_cron_job_runs_total Cron job runs by job and outcome.
# TYPE tastecert_cron_job_runs_total counter
tastecert_cron_job_runs_total{job="notification-cleanup",outcome="failure"} 1
tastecert_cron_job_runs_total{job="outbox-retention",outcome="success"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"tastecert_cron_job_runs_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}
