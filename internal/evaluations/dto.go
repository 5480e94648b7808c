package evaluations

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tastecert-backend/pkg/db/models"
)

// ScoresInput is the admin payload for judging a product.
type ScoresInput struct {
	Appearance *float64 `json:"appearance_score" validate:"required,min=0,max=10"`
	Aroma      *float64 `json:"aroma_score" validate:"required,min=0,max=10"`
	Taste      *float64 `json:"taste_score" validate:"required,min=0,max=10"`
	Texture    *float64 `json:"texture_score" validate:"required,min=0,max=10"`
	Aftertaste *float64 `json:"aftertaste_score" validate:"required,min=0,max=10"`
	Notes      *string  `json:"notes,omitempty" validate:"omitempty,max=4000"`
}

type EvaluationDTO struct {
	ID              uuid.UUID `json:"id"`
	ProductID       uuid.UUID `json:"product_id"`
	EvaluatorID     uuid.UUID `json:"evaluator_id"`
	AppearanceScore float64   `json:"appearance_score"`
	AromaScore      float64   `json:"aroma_score"`
	TasteScore      float64   `json:"taste_score"`
	TextureScore    float64   `json:"texture_score"`
	AftertasteScore float64   `json:"aftertaste_score"`
	OverallScore    float64   `json:"overall_score"`
	Notes           *string   `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func FromModel(m *models.Evaluation) *EvaluationDTO {
	return &EvaluationDTO{
		ID:              m.ID,
		ProductID:       m.ProductID,
		EvaluatorID:     m.EvaluatorID,
		AppearanceScore: m.AppearanceScore,
		AromaScore:      m.AromaScore,
		TasteScore:      m.TasteScore,
		TextureScore:    m.TextureScore,
		AftertasteScore: m.AftertasteScore,
		OverallScore:    m.OverallScore,
		Notes:           m.Notes,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}
