package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tastecert-backend/pkg/enums"
)

// ProductSubmittedEvent is emitted when a producer submits or resubmits a product.
type ProductSubmittedEvent struct {
	ProductID    uuid.UUID `json:"product_id"`
	ProducerID   uuid.UUID `json:"producer_id"`
	ProductName  string    `json:"product_name"`
	CategoryName string    `json:"category_name,omitempty"`
	Resubmission bool      `json:"resubmission,omitempty"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// EvaluationCompletedEvent is emitted whenever an evaluation is saved.
type EvaluationCompletedEvent struct {
	EvaluationID uuid.UUID `json:"evaluation_id"`
	ProductID    uuid.UUID `json:"product_id"`
	ProducerID   uuid.UUID `json:"producer_id"`
	ProductName  string    `json:"product_name"`
	OverallScore float64   `json:"overall_score"`
}

// CertificateIssuedEvent is emitted when an award is assigned.
type CertificateIssuedEvent struct {
	CertificateID     uuid.UUID       `json:"certificate_id"`
	CertificateNumber string          `json:"certificate_number"`
	ProductID         uuid.UUID       `json:"product_id"`
	ProducerID        uuid.UUID       `json:"producer_id"`
	ProductName       string          `json:"product_name"`
	AwardTier         enums.AwardTier `json:"award_tier"`
	Score             float64         `json:"score"`
	IssuedAt          time.Time       `json:"issued_at"`
}

// OrderingKey groups every event of one product so subscribers see
// submission, scoring and certification in commit order.
func (e ProductSubmittedEvent) OrderingKey() string { return productKey(e.ProductID) }

func (e EvaluationCompletedEvent) OrderingKey() string { return productKey(e.ProductID) }

func (e CertificateIssuedEvent) OrderingKey() string { return productKey(e.ProductID) }

func productKey(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return "product:" + id.String()
}
