package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	registry := NewRegistry(&stubJob{name: "outbox-retention"}, nil)
	sweep := &stubJob{name: "orphan-asset-sweep"}
	if err := registry.Register(sweep); err != nil {
		t.Fatalf("register: %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[1] != sweep {
		t.Fatalf("jobs returned out of order")
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	registry := NewRegistry(&stubJob{name: "notification-cleanup"})
	if err := registry.Register(&stubJob{name: "notification-cleanup"}); err == nil {
		t.Fatal("expected duplicate name error")
	}
	if len(registry.Jobs()) != 1 {
		t.Fatalf("duplicate should not be stored")
	}
}

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry(&stubJob{name: "outbox-retention"})
	if _, ok := registry.Lookup("outbox-retention"); !ok {
		t.Fatal("expected job to be found")
	}
	if _, ok := registry.Lookup("missing"); ok {
		t.Fatal("unexpected job found")
	}
}
