package cron

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type memoryLockStore struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryLockStore) Get(_ context.Context, key string) (string, error) {
	value, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (m *memoryLockStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func TestRedisLockIsExclusiveAcrossInstances(t *testing.T) {
	store := newMemoryLockStore()
	first, err := NewRedisLock(store, "tc:lock:cron-worker", "cron-a", 0)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	second, _ := NewRedisLock(store, "tc:lock:cron-worker", "cron-b", 0)
	ctx := context.Background()

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("expected first acquire, got %v %v", ok, err)
	}
	if store.ttls["tc:lock:cron-worker"] != defaultLockTTL {
		t.Fatalf("expected default ttl, got %v", store.ttls["tc:lock:cron-worker"])
	}
	if !strings.HasPrefix(store.values["tc:lock:cron-worker"], "cron-a/") {
		t.Fatalf("lock value should name the owner, got %q", store.values["tc:lock:cron-worker"])
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("expected second acquire to fail")
	}
	if holder, err := second.Holder(ctx); err != nil || holder != "cron-a" {
		t.Fatalf("expected holder cron-a, got %q err=%v", holder, err)
	}

	if err := second.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok := store.values["tc:lock:cron-worker"]; !ok {
		t.Fatal("lock removed by non-owner")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if holder, _ := first.Holder(ctx); holder != "" {
		t.Fatalf("expected free lock, got holder %q", holder)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatal("expected acquire after release")
	}
}

func TestRedisLockLeavesStolenLease(t *testing.T) {
	store := newMemoryLockStore()
	lock, _ := NewRedisLock(store, "k", "cron-a", time.Minute)
	ctx := context.Background()
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("expected acquire")
	}

	// lease expired and another instance took over
	store.values["k"] = "cron-b/other"
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["k"] != "cron-b/other" {
		t.Fatal("release must not delete another owner's lease")
	}

	delete(store.values, "k")
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("expected expired lock release to be a no-op, got %v", err)
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", "a", time.Minute); err == nil {
		t.Fatal("expected error without store")
	}
	if _, err := NewRedisLock(newMemoryLockStore(), " ", "a", time.Minute); err == nil {
		t.Fatal("expected error without key")
	}
}
