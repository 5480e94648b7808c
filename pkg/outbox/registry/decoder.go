package registry

import (
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/tastecert-backend/pkg/enums"
)

type decoderKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry looks up payload decoders by event type and version. It is
// immutable once built and safe for concurrent use.
type DecoderRegistry struct {
	entries map[decoderKey]Entry
}

func NewDecoderRegistry(entries ...Entry) *DecoderRegistry {
	r := &DecoderRegistry{entries: make(map[decoderKey]Entry, len(entries))}
	for _, e := range entries {
		r.entries[decoderKey{e.EventType, e.Version}] = e
	}
	return r
}

// Handles reports whether any version of eventType is registered.
func (r *DecoderRegistry) Handles(eventType enums.OutboxEventType) bool {
	for key := range r.entries {
		if key.eventType == eventType {
			return true
		}
	}
	return false
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	entry, ok := r.entries[decoderKey{eventType, version}]
	if !ok {
		return nil, fmt.Errorf("decoder not registered for %s@v%d", eventType, version)
	}
	return entry.Decode(payload)
}
