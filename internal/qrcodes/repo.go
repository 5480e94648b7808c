package qrcodes

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tastecert-backend/pkg/db/models"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindByProductID(ctx context.Context, productID uuid.UUID) (*models.QRCode, error) {
	var qr models.QRCode
	if err := r.db.WithContext(ctx).First(&qr, "product_id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &qr, nil
}

func (r *Repository) FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *Repository) HasCertificate(ctx context.Context, productID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Certificate{}).Where("product_id = ?", productID).Count(&count).Error
	return count > 0, err
}

func (r *Repository) Create(ctx context.Context, qr *models.QRCode) error {
	if qr.ID == uuid.Nil {
		qr.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(qr).Error
}

// UpdateImage swaps the image and redirect target, leaving scan stats and the active flag alone.
func (r *Repository) UpdateImage(ctx context.Context, id uuid.UUID, imageKey, imageURL, redirectURL string) error {
	return r.db.WithContext(ctx).
		Model(&models.QRCode{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"image_key":    imageKey,
			"image_url":    imageURL,
			"redirect_url": redirectURL,
			"updated_at":   time.Now().UTC(),
		}).Error
}

func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.db.WithContext(ctx).
		Model(&models.QRCode{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_active": active, "updated_at": time.Now().UTC()}).Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.QRCode{}, "id = ?", id).Error
}

// IncrementScan bumps the counter of an active code in a single statement.
func (r *Repository) IncrementScan(ctx context.Context, productID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.QRCode{}).
		Where("product_id = ? AND is_active = ?", productID, true).
		UpdateColumns(map[string]any{
			"scan_count":      gorm.Expr("scan_count + 1"),
			"last_scanned_at": at,
		})
	return res.RowsAffected, res.Error
}

// ListImageKeys returns every referenced QR image key.
func (r *Repository) ListImageKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := r.db.WithContext(ctx).Model(&models.QRCode{}).Pluck("image_key", &keys).Error
	return keys, err
}
