// Package idempotency guards event consumers against Pub/Sub redelivery.
//
// Each (consumer, event) pair moves through two Redis states: a short
// "processing" lease taken before the handler runs, then a long-lived "done"
// marker once it succeeds. A crashed handler's lease expires so the event is
// handled again on redelivery; a completed event is skipped until the done
// marker ages out.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Claim is the outcome of Begin.
type Claim int

const (
	// Acquired means the caller owns the event and must Complete or Release it.
	Acquired Claim = iota
	// Done means an earlier delivery already succeeded.
	Done
	// InFlight means another worker holds the lease right now.
	InFlight
)

func (c Claim) String() string {
	switch c {
	case Acquired:
		return "acquired"
	case Done:
		return "done"
	case InFlight:
		return "in_flight"
	default:
		return fmt.Sprintf("claim(%d)", int(c))
	}
}

const (
	stateProcessing = "processing"
	stateDone       = "done"

	DefaultLease = 5 * time.Minute
)

type store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Manager issues claims under tc:idempotency:evt:<consumer>:<event_id>.
type Manager struct {
	store   store
	doneTTL time.Duration
	lease   time.Duration
}

// NewManager keeps done markers for doneTTL. A lease of zero uses DefaultLease.
func NewManager(s store, doneTTL, lease time.Duration) (*Manager, error) {
	if s == nil {
		return nil, errors.New("idempotency store is required")
	}
	if doneTTL <= 0 {
		return nil, errors.New("done ttl must be positive")
	}
	if lease <= 0 {
		lease = DefaultLease
	}
	if lease >= doneTTL {
		return nil, fmt.Errorf("lease %s must be shorter than done ttl %s", lease, doneTTL)
	}
	return &Manager{store: s, doneTTL: doneTTL, lease: lease}, nil
}

// Begin tries to take the processing lease for eventID.
func (m *Manager) Begin(ctx context.Context, consumer string, eventID uuid.UUID) (Claim, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return InFlight, err
	}
	ok, err := m.store.SetNX(ctx, key, stateProcessing, m.lease)
	if err != nil {
		return InFlight, fmt.Errorf("take lease: %w", err)
	}
	if ok {
		return Acquired, nil
	}

	state, err := m.store.Get(ctx, key)
	switch {
	case errors.Is(err, goredis.Nil):
		// the lease lapsed between SETNX and GET; let redelivery retry
		return InFlight, nil
	case err != nil:
		return InFlight, fmt.Errorf("read claim: %w", err)
	case state == stateDone:
		return Done, nil
	default:
		return InFlight, nil
	}
}

// Complete records eventID as handled.
func (m *Manager) Complete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, stateDone, m.doneTTL)
}

// Release drops the lease after a failed attempt so redelivery can retry now.
func (m *Manager) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:"+consumer, eventID.String()), nil
}
