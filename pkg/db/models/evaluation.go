package models

import (
	"time"

	"github.com/google/uuid"
)

// Evaluation holds the judging scores for a product. One per product.
type Evaluation struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID       uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex"`
	EvaluatorID     uuid.UUID `gorm:"column:evaluator_id;type:uuid;not null"`
	AppearanceScore float64   `gorm:"column:appearance_score;not null"`
	AromaScore      float64   `gorm:"column:aroma_score;not null"`
	TasteScore      float64   `gorm:"column:taste_score;not null"`
	TextureScore    float64   `gorm:"column:texture_score;not null"`
	AftertasteScore float64   `gorm:"column:aftertaste_score;not null"`
	OverallScore    float64   `gorm:"column:overall_score;not null"`
	Notes           *string   `gorm:"column:notes"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
