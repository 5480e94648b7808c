package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tastecert-backend/pkg/db/models"
	"github.com/angelmondragon/tastecert-backend/pkg/enums"
	"github.com/angelmondragon/tastecert-backend/pkg/logger"
	"github.com/angelmondragon/tastecert-backend/pkg/mailer"
	"github.com/angelmondragon/tastecert-backend/pkg/metrics"
	"github.com/angelmondragon/tastecert-backend/pkg/outbox"
	"github.com/angelmondragon/tastecert-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/tastecert-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/tastecert-backend/pkg/outbox/registry"
)

const certificationNotificationConsumer = "certification-notifications"

type idempotencyChecker interface {
	Begin(ctx context.Context, consumer string, eventID uuid.UUID) (idempotency.Claim, error)
	Complete(ctx context.Context, consumer string, eventID uuid.UUID) error
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type recipientStore interface {
	Create(ctx context.Context, n *models.Notification) error
	FindUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListActiveAdmins(ctx context.Context) ([]models.User, error)
}

type ConsumerParams struct {
	Repo          recipientStore
	Mailer        mailer.Sender
	Idempotency   idempotencyChecker
	Metrics       *metrics.DomainMetrics
	Logger        *logger.Logger
	PublicBaseURL string
	AdminTo       string
}

// Consumer turns certification domain events into e-mails and in-app notifications.
type Consumer struct {
	repo          recipientStore
	mailer        mailer.Sender
	decoders      *registry.DecoderRegistry
	idempotency   idempotencyChecker
	metrics       *metrics.DomainMetrics
	logg          *logger.Logger
	publicBaseURL string
	adminTo       []string
}

func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if params.Mailer == nil {
		return nil, fmt.Errorf("mailer required")
	}
	if params.Idempotency == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	var adminTo []string
	for _, addr := range strings.Split(params.AdminTo, ",") {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			adminTo = append(adminTo, trimmed)
		}
	}
	return &Consumer{
		repo:          params.Repo,
		mailer:        params.Mailer,
		decoders:      registry.NewDecoderRegistry(registry.Catalog()...),
		idempotency:   params.Idempotency,
		metrics:       params.Metrics,
		logg:          params.Logger,
		publicBaseURL: strings.TrimRight(params.PublicBaseURL, "/"),
		adminTo:       adminTo,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context, subscription *pubsub.Subscriber) error {
	if subscription == nil {
		return fmt.Errorf("domain subscription required")
	}
	return subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		logCtx := c.logg.WithFields(ctx, map[string]any{
			"message_id": msg.ID,
			"event_type": msg.Attributes["event_type"],
		})
		var envelope outbox.PayloadEnvelope
		if err := json.Unmarshal(msg.Data, &envelope); err != nil {
			c.logg.Error(logCtx, "failed to decode envelope", err)
			msg.Ack()
			return
		}
		if err := c.Process(logCtx, enums.OutboxEventType(msg.Attributes["event_type"]), envelope); err != nil {
			c.logg.Error(logCtx, "notification handling failed", err)
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Process handles one envelope. A returned error means the event should be redelivered.
func (c *Consumer) Process(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": eventType,
	})
	if !c.decoders.Handles(eventType) {
		c.logg.Info(logCtx, "event not handled by notifications consumer")
		return nil
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return nil
	}
	version := envelope.Version
	if version == 0 {
		version = 1
	}
	payload, err := c.decoders.Decode(eventType, version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return nil
	}

	claim, err := c.idempotency.Begin(ctx, certificationNotificationConsumer, eventID)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	switch claim {
	case idempotency.Done:
		c.logg.Info(logCtx, "event already processed")
		return nil
	case idempotency.InFlight:
		return fmt.Errorf("event %s is being handled by another worker", eventID)
	}

	if err := c.dispatch(logCtx, payload); err != nil {
		if relErr := c.idempotency.Release(ctx, certificationNotificationConsumer, eventID); relErr != nil {
			c.logg.Warn(c.logg.WithField(logCtx, "release_error", relErr.Error()), "idempotency lease not released")
		}
		return err
	}
	if err := c.idempotency.Complete(ctx, certificationNotificationConsumer, eventID); err != nil {
		c.logg.Error(logCtx, "failed to mark event processed", err)
	}
	return nil
}

func (c *Consumer) dispatch(ctx context.Context, payload any) error {
	switch p := payload.(type) {
	case payloads.ProductSubmittedEvent:
		return c.onProductSubmitted(ctx, p)
	case payloads.EvaluationCompletedEvent:
		return c.onEvaluationCompleted(ctx, p)
	case payloads.CertificateIssuedEvent:
		return c.onCertificateIssued(ctx, p)
	default:
		return fmt.Errorf("unexpected payload type %T", payload)
	}
}

func (c *Consumer) onProductSubmitted(ctx context.Context, p payloads.ProductSubmittedEvent) error {
	admins, err := c.repo.ListActiveAdmins(ctx)
	if err != nil {
		return fmt.Errorf("list admins: %w", err)
	}
	title := "New product submitted"
	if p.Resubmission {
		title = "Product resubmitted"
	}
	message := fmt.Sprintf("%s was submitted for review", p.ProductName)
	if p.CategoryName != "" {
		message += " in " + p.CategoryName
	}
	message += "."
	link := fmt.Sprintf("/admin/products/%s", p.ProductID)

	for _, admin := range admins {
		if err := c.notify(ctx, admin.ID, enums.NotificationTypeSubmission, title, message, link); err != nil {
			return err
		}
	}

	to := c.adminTo
	if len(to) == 0 {
		for _, admin := range admins {
			to = append(to, admin.Email)
		}
	}
	if len(to) == 0 {
		return nil
	}
	c.send(ctx, templateSubmissionAdmin, to, title+": "+p.ProductName, emailContent{
		Heading:    title,
		Paragraphs: []string{message},
		Link:       c.publicBaseURL + link,
		LinkLabel:  "Open in the admin console",
	})
	return nil
}

func (c *Consumer) onEvaluationCompleted(ctx context.Context, p payloads.EvaluationCompletedEvent) error {
	producer, err := c.producer(ctx, p.ProducerID)
	if err != nil || producer == nil {
		return err
	}
	title := "Evaluation completed"
	message := fmt.Sprintf("%s received an overall score of %.1f.", p.ProductName, p.OverallScore)
	link := fmt.Sprintf("/products/%s", p.ProductID)
	if err := c.notify(ctx, producer.ID, enums.NotificationTypeEvaluation, title, message, link); err != nil {
		return err
	}
	c.send(ctx, templateEvaluationResult, []string{producer.Email}, "Your evaluation results for "+p.ProductName, emailContent{
		Heading:    title,
		Paragraphs: []string{"Hello " + producer.FirstName + ",", message},
		Link:       c.publicBaseURL + link,
		LinkLabel:  "View the full evaluation",
	})
	return nil
}

func (c *Consumer) onCertificateIssued(ctx context.Context, p payloads.CertificateIssuedEvent) error {
	producer, err := c.producer(ctx, p.ProducerID)
	if err != nil || producer == nil {
		return err
	}
	title := p.AwardTier.DisplayName() + " award"
	message := fmt.Sprintf("%s was awarded %s with a score of %.1f. Certificate %s.",
		p.ProductName, p.AwardTier.DisplayName(), p.Score, p.CertificateNumber)
	link := fmt.Sprintf("/verify/%s", p.CertificateNumber)
	if err := c.notify(ctx, producer.ID, enums.NotificationTypeCertification, title, message, link); err != nil {
		return err
	}
	c.send(ctx, templateCertificate, []string{producer.Email}, "Congratulations! "+p.ProductName+" is certified", emailContent{
		Heading:    "Congratulations, " + producer.FirstName,
		Paragraphs: []string{message, "Issued " + p.IssuedAt.Format("2 January 2006") + "."},
		Link:       c.publicBaseURL + link,
		LinkLabel:  "Verify the certificate",
	})
	return nil
}

// producer returns nil without error when the account no longer exists.
func (c *Consumer) producer(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := c.repo.FindUser(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.logg.Warn(c.logg.WithField(ctx, "user_id", id.String()), "recipient no longer exists")
			return nil, nil
		}
		return nil, fmt.Errorf("load producer: %w", err)
	}
	return user, nil
}

func (c *Consumer) notify(ctx context.Context, userID uuid.UUID, kind enums.NotificationType, title, message, link string) error {
	notification := &models.Notification{
		UserID:  userID,
		Type:    kind,
		Title:   title,
		Message: message,
		Link:    &link,
	}
	if err := c.repo.Create(ctx, notification); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// send delivers an e-mail. Failures are logged and counted, never returned.
func (c *Consumer) send(ctx context.Context, template string, to []string, subject string, content emailContent) {
	logCtx := c.logg.WithField(ctx, "template", template)
	msg, err := content.message(to, subject)
	if err == nil {
		err = c.mailer.Send(ctx, msg)
	}
	if err != nil {
		c.metrics.IncEmail(template, "failed")
		c.logg.Error(logCtx, "email delivery failed", err)
		return
	}
	c.metrics.IncEmail(template, "sent")
	c.logg.Info(logCtx, "email sent")
}
