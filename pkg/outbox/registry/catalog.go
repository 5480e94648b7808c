// Package registry is the single list of domain events the platform emits.
// The outbox publisher resolves rows against it and consumers decode
// delivered envelopes with it.
package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/tastecert-backend/pkg/enums"
	"github.com/angelmondragon/tastecert-backend/pkg/outbox/payloads"
)

// Entry describes one event type at one payload version.
type Entry struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Version       int

	decode func(json.RawMessage) (any, error)
}

// Decode parses raw into the entry's payload struct. The result is a value,
// not a pointer.
func (e Entry) Decode(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("payload missing for %s", e.EventType)
	}
	if e.decode == nil {
		return nil, fmt.Errorf("no decoder for %s@v%d", e.EventType, e.Version)
	}
	return e.decode(raw)
}

func typed[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, version int) Entry {
	return Entry{
		EventType:     eventType,
		AggregateType: aggregate,
		Version:       version,
		decode: func(raw json.RawMessage) (any, error) {
			var payload T
			if err := json.Unmarshal(raw, &payload); err != nil {
				return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
			}
			return payload, nil
		},
	}
}

// Catalog returns every event the platform currently emits.
func Catalog() []Entry {
	return []Entry{
		typed[payloads.ProductSubmittedEvent](enums.EventProductSubmitted, enums.AggregateProduct, 1),
		typed[payloads.EvaluationCompletedEvent](enums.EventEvaluationCompleted, enums.AggregateEvaluation, 1),
		typed[payloads.CertificateIssuedEvent](enums.EventCertificateIssued, enums.AggregateCertificate, 1),
	}
}
