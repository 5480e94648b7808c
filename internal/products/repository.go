package products

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tastecert-backend/pkg/db/models"
	"github.com/angelmondragon/tastecert-backend/pkg/enums"
	"github.com/angelmondragon/tastecert-backend/pkg/pagination"
)

// Repository exposes product persistence operations.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

type listQuery struct {
	producerID *uuid.UUID
	status     *enums.ProductStatus
	categoryID *uuid.UUID
	limit      int
	cursor     *pagination.Cursor
}

func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Omit("Producer", "Category").Create(product).Error
}

// FindByID loads the product together with its producer and category.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Producer").
		Preload("Category").
		First(&product, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// Update writes the producer-editable columns plus status bookkeeping.
func (r *Repository) Update(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", product.ID).
		Updates(map[string]any{
			"category_id":      product.CategoryID,
			"name":             product.Name,
			"brand":            product.Brand,
			"description":      product.Description,
			"origin":           product.Origin,
			"status":           product.Status,
			"rejection_reason": product.RejectionReason,
			"submitted_at":     product.SubmittedAt,
			"updated_at":       time.Now().UTC(),
		}).Error
}

func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.ProductStatus, reason *string) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":           status,
			"rejection_reason": reason,
			"updated_at":       time.Now().UTC(),
		}).Error
}

func (r *Repository) SetImageKey(ctx context.Context, id uuid.UUID, key *string) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"image_key":  key,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Product{}, "id = ?", id).Error
}

// List returns products newest first using cursor pagination.
func (r *Repository) List(ctx context.Context, q listQuery) ([]models.Product, error) {
	query := r.db.WithContext(ctx).Model(&models.Product{}).Preload("Producer").Preload("Category")
	if q.producerID != nil {
		query = query.Where("producer_id = ?", *q.producerID)
	}
	if q.status != nil {
		query = query.Where("status = ?", *q.status)
	}
	if q.categoryID != nil {
		query = query.Where("category_id = ?", *q.categoryID)
	}

	var rows []models.Product
	if err := query.Scopes(pagination.After(q.cursor)).Limit(q.limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListImageKeys returns every referenced product image key.
func (r *Repository) ListImageKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("image_key IS NOT NULL").
		Pluck("image_key", &keys).Error
	return keys, err
}
