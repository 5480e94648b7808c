package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/tastecert-backend/pkg/db/models"
	"github.com/angelmondragon/tastecert-backend/pkg/enums"
	"github.com/angelmondragon/tastecert-backend/pkg/metrics"
	"github.com/angelmondragon/tastecert-backend/pkg/outbox/registry"
)

// batch carries the per-transaction state of one processBatch call.
type batch struct {
	svc *Service
	tx  *gorm.DB
	// held marks ordering keys whose earlier row failed in this batch.
	held map[string]bool

	published, retried, deadLettered, deferred int
}

// dispatch publishes one row and records the outcome. Only bookkeeping
// failures are returned; publish failures are recorded on the row.
func (b *batch) dispatch(ctx context.Context, event models.OutboxEvent) error {
	s := b.svc
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return b.deadLetter(ctx, event, nil, enums.OutboxDLQReasonNonRetryable, err)
	}

	key := resolved.OrderingKey()
	if key != "" && b.held[key] {
		b.deferred++
		s.logg.Debug(s.logg.WithFields(ctx, rowFields(event, resolved)), "outbox row deferred behind failed predecessor")
		return nil
	}

	pubErr := s.publish(ctx, event, resolved)
	if pubErr == nil {
		if err := s.repo.MarkPublishedTx(b.tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		b.published++
		s.metrics.Inc(string(event.EventType), metrics.OutboxPublished)
		s.logg.Info(s.logg.WithFields(ctx, rowFields(event, resolved)), "outbox row published")
		return nil
	}

	if key != "" {
		b.held[key] = true
	}
	if registry.IsNonRetryable(pubErr) {
		return b.deadLetter(ctx, event, resolved, enums.OutboxDLQReasonNonRetryable, pubErr)
	}
	if event.AttemptCount+1 >= s.maxAttempts {
		return b.deadLetter(ctx, event, resolved, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("gave up after %d attempts: %w", event.AttemptCount+1, pubErr))
	}

	if err := s.repo.MarkFailedTx(b.tx, event.ID, pubErr); err != nil {
		return fmt.Errorf("mark failed %s: %w", event.ID, err)
	}
	b.retried++
	s.metrics.Inc(string(event.EventType), metrics.OutboxRetried)
	fields := rowFields(event, resolved)
	fields["attempt_count"] = event.AttemptCount + 1
	fields["error"] = pubErr.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox publish failed; will retry")
	return nil
}

// deadLetter copies the row into the DLQ table and parks it.
func (b *batch) deadLetter(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	s := b.svc
	entry := models.DeadLetter(event, reason, cause, time.Now())
	if err := s.dlq.Record(b.tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(b.tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	b.deadLettered++
	s.metrics.Inc(string(event.EventType), metrics.OutboxDeadLettered)

	fields := rowFields(event, resolved)
	fields["error_reason"] = reason
	fields["error"] = cause.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox row dead-lettered")
	return nil
}

func (b *batch) summary() map[string]any {
	return map[string]any{
		"published":     b.published,
		"retried":       b.retried,
		"dead_lettered": b.deadLettered,
		"deferred":      b.deferred,
	}
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Topic
	pub := s.publishers(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
	}

	msg := buildMessage(event, resolved)
	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher for topic %s returned no result", topic))
	}
	if _, err := result.Get(publishCtx); err != nil {
		// a failed ordered publish pauses the key client-side until resumed
		if msg.OrderingKey != "" {
			pub.ResumePublish(msg.OrderingKey)
		}
		return err
	}
	return nil
}

func buildMessage(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: resolved.OrderingKey(),
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_version":  strconv.Itoa(resolved.Envelope.Version),
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}

func rowFields(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"aggregate_id":  event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
	}
	if resolved != nil {
		fields["topic"] = resolved.Topic
		if resolved.Envelope.EventID != "" {
			fields["event_id"] = resolved.Envelope.EventID
		}
		if key := resolved.OrderingKey(); key != "" {
			fields["ordering_key"] = key
		}
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}
