package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/tastecert-backend/pkg/config"
	"github.com/angelmondragon/tastecert-backend/pkg/db/models"
	"github.com/angelmondragon/tastecert-backend/pkg/enums"
	"github.com/angelmondragon/tastecert-backend/pkg/outbox"
)

// NonRetryableError marks a row the publisher should dead-letter immediately.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err, or anything it wraps, is a NonRetryableError.
func IsNonRetryable(err error) bool {
	var target NonRetryableError
	return errors.As(err, &target)
}

// ResolvedEvent is an outbox row validated against the catalog.
type ResolvedEvent struct {
	Entry    Entry
	Topic    string
	Envelope outbox.PayloadEnvelope
	Payload  any
}

type orderedPayload interface {
	OrderingKey() string
}

// OrderingKey returns the Pub/Sub ordering key, or "" when the payload has none.
func (r *ResolvedEvent) OrderingKey() string {
	if r == nil {
		return ""
	}
	if keyed, ok := r.Payload.(orderedPayload); ok {
		return keyed.OrderingKey()
	}
	return ""
}

// EventRegistry routes catalog events to their Pub/Sub topic.
type EventRegistry struct {
	topic   string
	entries map[enums.OutboxEventType]Entry
}

// NewEventRegistry routes every catalog event to the domain topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.DomainTopic == "" {
		return nil, errors.New("domain topic is required")
	}
	r := &EventRegistry{topic: cfg.DomainTopic, entries: map[enums.OutboxEventType]Entry{}}
	for _, e := range Catalog() {
		r.entries[e.EventType] = e
	}
	return r, nil
}

// Resolve validates a row and decodes its payload. Every failure is
// non-retryable: a malformed row will not fix itself.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	entry, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	case entry.AggregateType != event.AggregateType:
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", entry.AggregateType, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	if _, err := uuid.Parse(envelope.EventID); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("envelope event id %q: %w", envelope.EventID, err))
	}
	if envelope.Version != entry.Version {
		return nil, NewNonRetryableError(fmt.Errorf("%s has no v%d payload", event.EventType, envelope.Version))
	}

	payload, err := entry.Decode(envelope.Data)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	return &ResolvedEvent{Entry: entry, Topic: r.topic, Envelope: envelope, Payload: payload}, nil
}
