package certificates

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tastecert-backend/pkg/db/models"
	"github.com/angelmondragon/tastecert-backend/pkg/enums"
	"github.com/angelmondragon/tastecert-backend/pkg/pagination"
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

type listQuery struct {
	year      *int
	published *bool
	limit     int
	cursor    *pagination.Cursor
}

func (r *Repository) withDetail(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Product").
		Preload("Product.Producer").
		Preload("Product.Category")
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Certificate, error) {
	var certificate models.Certificate
	if err := r.withDetail(ctx).First(&certificate, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &certificate, nil
}

func (r *Repository) FindByNumber(ctx context.Context, number string) (*models.Certificate, error) {
	var certificate models.Certificate
	if err := r.withDetail(ctx).First(&certificate, "certificate_number = ?", number).Error; err != nil {
		return nil, err
	}
	return &certificate, nil
}

func (r *Repository) ExistsForProduct(ctx context.Context, productID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Certificate{}).Where("product_id = ?", productID).Count(&count).Error
	return count > 0, err
}

func (r *Repository) Create(ctx context.Context, certificate *models.Certificate) error {
	if certificate.ID == uuid.Nil {
		certificate.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Omit("Product").Create(certificate).Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Certificate{}, "id = ?", id).Error
}

func (r *Repository) SetPublished(ctx context.Context, id uuid.UUID, published bool) error {
	return r.db.WithContext(ctx).
		Model(&models.Certificate{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_published": published, "updated_at": time.Now().UTC()}).Error
}

func (r *Repository) SetPDFKey(ctx context.Context, id uuid.UUID, key *string) error {
	return r.db.WithContext(ctx).
		Model(&models.Certificate{}).
		Where("id = ?", id).
		Updates(map[string]any{"pdf_key": key, "updated_at": time.Now().UTC()}).Error
}

// List returns certificates newest first using cursor pagination.
func (r *Repository) List(ctx context.Context, q listQuery) ([]models.Certificate, error) {
	query := r.withDetail(ctx).Model(&models.Certificate{})
	if q.year != nil {
		query = query.Where("certificate_number LIKE ?", yearPrefix(*q.year)+"%")
	}
	if q.published != nil {
		query = query.Where("is_published = ?", *q.published)
	}
	var rows []models.Certificate
	if err := query.Scopes(pagination.After(q.cursor)).Limit(q.limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListRegister returns every certificate in number order for the export.
func (r *Repository) ListRegister(ctx context.Context, year *int) ([]models.Certificate, error) {
	query := r.withDetail(ctx).Model(&models.Certificate{})
	if year != nil {
		query = query.Where("certificate_number LIKE ?", yearPrefix(*year)+"%")
	}
	var rows []models.Certificate
	if err := query.Order("certificate_number ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListPDFKeys returns every referenced certificate PDF key.
func (r *Repository) ListPDFKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := r.db.WithContext(ctx).
		Model(&models.Certificate{}).
		Where("pdf_key IS NOT NULL").
		Pluck("pdf_key", &keys).Error
	return keys, err
}

func (r *Repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
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

func (r *Repository) FindEvaluation(ctx context.Context, productID uuid.UUID) (*models.Evaluation, error) {
	var evaluation models.Evaluation
	if err := r.db.WithContext(ctx).First(&evaluation, "product_id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &evaluation, nil
}

func (r *Repository) SetProductStatus(ctx context.Context, productID uuid.UUID, status enums.ProductStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()}).Error
}

// DeleteQRCode removes the product's QR row and returns its image key when one existed.
func (r *Repository) DeleteQRCode(ctx context.Context, productID uuid.UUID) (*string, error) {
	var qr models.QRCode
	err := r.db.WithContext(ctx).First(&qr, "product_id = ?", productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Delete(&models.QRCode{}, "id = ?", qr.ID).Error; err != nil {
		return nil, err
	}
	key := qr.ImageKey
	return &key, nil
}
