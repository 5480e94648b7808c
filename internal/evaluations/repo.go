package evaluations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tastecert-backend/pkg/db/models"
	"github.com/angelmondragon/tastecert-backend/pkg/enums"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) FindByProductID(ctx context.Context, productID uuid.UUID) (*models.Evaluation, error) {
	var evaluation models.Evaluation
	if err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&evaluation).Error; err != nil {
		return nil, err
	}
	return &evaluation, nil
}

func (r *Repository) FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *Repository) Create(ctx context.Context, evaluation *models.Evaluation) error {
	if evaluation.ID == uuid.Nil {
		evaluation.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(evaluation).Error
}

func (r *Repository) Update(ctx context.Context, evaluation *models.Evaluation) error {
	return r.db.WithContext(ctx).
		Model(&models.Evaluation{}).
		Where("id = ?", evaluation.ID).
		Updates(map[string]any{
			"evaluator_id":     evaluation.EvaluatorID,
			"appearance_score": evaluation.AppearanceScore,
			"aroma_score":      evaluation.AromaScore,
			"taste_score":      evaluation.TasteScore,
			"texture_score":    evaluation.TextureScore,
			"aftertaste_score": evaluation.AftertasteScore,
			"overall_score":    evaluation.OverallScore,
			"notes":            evaluation.Notes,
			"updated_at":       evaluation.UpdatedAt,
		}).Error
}

func (r *Repository) SetProductStatus(ctx context.Context, productID uuid.UUID, status enums.ProductStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(map[string]any{
			"status":           status,
			"rejection_reason": nil,
			"updated_at":       time.Now().UTC(),
		}).Error
}
