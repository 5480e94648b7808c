package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/tastecert-backend/internal/testsupport"
	"github.com/angelmondragon/tastecert-backend/pkg/db/models"
	"github.com/angelmondragon/tastecert-backend/pkg/enums"
	"github.com/angelmondragon/tastecert-backend/pkg/logger"
	"github.com/angelmondragon/tastecert-backend/pkg/mailer"
	"github.com/angelmondragon/tastecert-backend/pkg/outbox"
	"github.com/angelmondragon/tastecert-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/tastecert-backend/pkg/outbox/payloads"
)

type recordingSender struct {
	sent []mailer.Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg mailer.Message) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

type memoryIdempotency struct {
	state    map[string]string
	released []uuid.UUID
}

func (m *memoryIdempotency) Begin(_ context.Context, consumer string, eventID uuid.UUID) (idempotency.Claim, error) {
	key := consumer + ":" + eventID.String()
	switch m.state[key] {
	case "done":
		return idempotency.Done, nil
	case "processing":
		return idempotency.InFlight, nil
	}
	m.state[key] = "processing"
	return idempotency.Acquired, nil
}

func (m *memoryIdempotency) Complete(_ context.Context, consumer string, eventID uuid.UUID) error {
	m.state[consumer+":"+eventID.String()] = "done"
	return nil
}

func (m *memoryIdempotency) Release(_ context.Context, consumer string, eventID uuid.UUID) error {
	delete(m.state, consumer+":"+eventID.String())
	m.released = append(m.released, eventID)
	return nil
}

type consumerFixture struct {
	conn     *gorm.DB
	consumer *Consumer
	sender   *recordingSender
	idem     *memoryIdempotency
}

func newConsumerFixture(t *testing.T, adminTo string) *consumerFixture {
	t.Helper()
	conn := testsupport.OpenDB(t)
	sender := &recordingSender{}
	idem := &memoryIdempotency{state: map[string]string{}}
	consumer, err := NewConsumer(ConsumerParams{
		Repo:          NewRepository(conn),
		Mailer:        sender,
		Idempotency:   idem,
		Logger:        logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}}),
		PublicBaseURL: "https://tastecert.example/",
		AdminTo:       adminTo,
	})
	require.NoError(t, err)
	return &consumerFixture{conn: conn, consumer: consumer, sender: sender, idem: idem}
}

func envelopeFor(t *testing.T, data any) outbox.PayloadEnvelope {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	}
}

func (f *consumerFixture) notificationsFor(t *testing.T, userID uuid.UUID) []models.Notification {
	t.Helper()
	var rows []models.Notification
	require.NoError(t, f.conn.Where("user_id = ?", userID).Find(&rows).Error)
	return rows
}

func TestProductSubmittedNotifiesAdmins(t *testing.T) {
	f := newConsumerFixture(t, "")
	ctx := context.Background()

	admin := testsupport.MustCreateUser(t, f.conn, enums.UserRoleAdmin)
	producer := testsupport.MustCreateUser(t, f.conn, enums.UserRoleProducer)
	envelope := envelopeFor(t, payloads.ProductSubmittedEvent{
		ProductID:    uuid.New(),
		ProducerID:   producer.ID,
		ProductName:  "Aged Gouda",
		CategoryName: "Cheese",
		SubmittedAt:  time.Now().UTC(),
	})

	require.NoError(t, f.consumer.Process(ctx, enums.EventProductSubmitted, envelope))

	rows := f.notificationsFor(t, admin.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.NotificationTypeSubmission, rows[0].Type)
	assert.Contains(t, rows[0].Message, "Aged Gouda")
	assert.Empty(t, f.notificationsFor(t, producer.ID))

	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, []string{admin.Email}, f.sender.sent[0].To)
	assert.Contains(t, f.sender.sent[0].HTMLBody, "https://tastecert.example/admin/products/")

	// redelivery is a no-op
	require.NoError(t, f.consumer.Process(ctx, enums.EventProductSubmitted, envelope))
	assert.Len(t, f.notificationsFor(t, admin.ID), 1)
	assert.Len(t, f.sender.sent, 1)
}

func TestProductSubmittedUsesConfiguredAdminAddresses(t *testing.T) {
	f := newConsumerFixture(t, "ops@example.com, judges@example.com")
	testsupport.MustCreateUser(t, f.conn, enums.UserRoleAdmin)

	envelope := envelopeFor(t, payloads.ProductSubmittedEvent{ProductID: uuid.New(), ProductName: "Cider", Resubmission: true})
	require.NoError(t, f.consumer.Process(context.Background(), enums.EventProductSubmitted, envelope))

	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, []string{"ops@example.com", "judges@example.com"}, f.sender.sent[0].To)
	assert.Contains(t, f.sender.sent[0].Subject, "Product resubmitted")
}

func TestCertificateIssuedNotifiesProducer(t *testing.T) {
	f := newConsumerFixture(t, "")
	producer := testsupport.MustCreateUser(t, f.conn, enums.UserRoleProducer)

	envelope := envelopeFor(t, payloads.CertificateIssuedEvent{
		CertificateID:     uuid.New(),
		CertificateNumber: "TC-2026-000007",
		ProductID:         uuid.New(),
		ProducerID:        producer.ID,
		ProductName:       "Cold Brew",
		AwardTier:         enums.AwardTierGold,
		Score:             8.7,
		IssuedAt:          time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, f.consumer.Process(context.Background(), enums.EventCertificateIssued, envelope))

	rows := f.notificationsFor(t, producer.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.NotificationTypeCertification, rows[0].Type)
	require.NotNil(t, rows[0].Link)
	assert.Equal(t, "/verify/TC-2026-000007", *rows[0].Link)

	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, []string{producer.Email}, f.sender.sent[0].To)
	assert.Contains(t, f.sender.sent[0].TextBody, "TC-2026-000007")
	assert.Contains(t, f.sender.sent[0].TextBody, "4 May 2026")
}

func TestEvaluationCompletedSurvivesMailFailure(t *testing.T) {
	f := newConsumerFixture(t, "")
	f.sender.err = errors.New("smtp down")
	producer := testsupport.MustCreateUser(t, f.conn, enums.UserRoleProducer)

	envelope := envelopeFor(t, payloads.EvaluationCompletedEvent{
		EvaluationID: uuid.New(),
		ProductID:    uuid.New(),
		ProducerID:   producer.ID,
		ProductName:  "Rye",
		OverallScore: 7.3,
	})
	require.NoError(t, f.consumer.Process(context.Background(), enums.EventEvaluationCompleted, envelope))

	rows := f.notificationsFor(t, producer.ID)
	require.Len(t, rows, 1)
	assert.Contains(t, rows[0].Message, "7.3")
	assert.Empty(t, f.idem.released)
}

func TestMissingRecipientIsSkipped(t *testing.T) {
	f := newConsumerFixture(t, "")
	envelope := envelopeFor(t, payloads.EvaluationCompletedEvent{ProducerID: uuid.New(), ProductName: "Ghost"})

	require.NoError(t, f.consumer.Process(context.Background(), enums.EventEvaluationCompleted, envelope))
	assert.Empty(t, f.sender.sent)
}

func TestProcessFailureReleasesIdempotencyMarker(t *testing.T) {
	f := newConsumerFixture(t, "")
	producer := testsupport.MustCreateUser(t, f.conn, enums.UserRoleProducer)
	require.NoError(t, f.conn.Migrator().DropTable(&models.Notification{}))

	envelope := envelopeFor(t, payloads.EvaluationCompletedEvent{ProducerID: producer.ID, ProductName: "Stout"})
	err := f.consumer.Process(context.Background(), enums.EventEvaluationCompleted, envelope)
	require.Error(t, err)
	require.Len(t, f.idem.released, 1)
	assert.Equal(t, envelope.EventID, f.idem.released[0].String())
}

func TestProcessIgnoresUnknownAndMalformedEvents(t *testing.T) {
	f := newConsumerFixture(t, "")
	ctx := context.Background()

	require.NoError(t, f.consumer.Process(ctx, enums.OutboxEventType("order_created"), outbox.PayloadEnvelope{EventID: uuid.NewString()}))
	require.NoError(t, f.consumer.Process(ctx, enums.EventCertificateIssued, outbox.PayloadEnvelope{EventID: "nope"}))
	require.NoError(t, f.consumer.Process(ctx, enums.EventCertificateIssued, outbox.PayloadEnvelope{
		EventID: uuid.NewString(),
		Version: 1,
		Data:    json.RawMessage(`{"score":"high"}`),
	}))
	assert.Empty(t, f.sender.sent)
	assert.Empty(t, f.idem.state)
}

func TestInFlightEventIsRedelivered(t *testing.T) {
	f := newConsumerFixture(t, "")
	producer := testsupport.MustCreateUser(t, f.conn, enums.UserRoleProducer)
	envelope := envelopeFor(t, payloads.EvaluationCompletedEvent{ProducerID: producer.ID, ProductName: "Porter"})
	f.idem.state[certificationNotificationConsumer+":"+envelope.EventID] = "processing"

	err := f.consumer.Process(context.Background(), enums.EventEvaluationCompleted, envelope)
	require.Error(t, err)
	assert.Empty(t, f.notificationsFor(t, producer.ID))
	assert.Empty(t, f.idem.released, "another worker's lease must not be dropped")
}

func TestSuccessfulEventIsMarkedDone(t *testing.T) {
	f := newConsumerFixture(t, "")
	producer := testsupport.MustCreateUser(t, f.conn, enums.UserRoleProducer)
	envelope := envelopeFor(t, payloads.EvaluationCompletedEvent{ProducerID: producer.ID, ProductName: "Lager"})

	require.NoError(t, f.consumer.Process(context.Background(), enums.EventEvaluationCompleted, envelope))
	assert.Equal(t, "done", f.idem.state[certificationNotificationConsumer+":"+envelope.EventID])
}
