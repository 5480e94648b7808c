package qrcodes

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tastecert-backend/pkg/db/models"
)

type IssueInput struct {
	RedirectURL *string `json:"redirect_url,omitempty" validate:"omitempty,url"`
}

type RegenerateInput struct {
	RedirectURL *string `json:"redirect_url,omitempty" validate:"omitempty,url"`
}

type ToggleInput struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

type QRCodeDTO struct {
	ID            uuid.UUID  `json:"id"`
	ProductID     uuid.UUID  `json:"product_id"`
	ImageURL      string     `json:"image_url"`
	RedirectURL   string     `json:"redirect_url"`
	IsActive      bool       `json:"is_active"`
	ScanCount     int64      `json:"scan_count"`
	LastScannedAt *time.Time `json:"last_scanned_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// PublicQRCodeDTO omits the scan statistics.
type PublicQRCodeDTO struct {
	ProductID   uuid.UUID `json:"product_id"`
	ImageURL    string    `json:"image_url"`
	RedirectURL string    `json:"redirect_url"`
}

func FromModel(m *models.QRCode) *QRCodeDTO {
	return &QRCodeDTO{
		ID:            m.ID,
		ProductID:     m.ProductID,
		ImageURL:      m.ImageURL,
		RedirectURL:   m.RedirectURL,
		IsActive:      m.IsActive,
		ScanCount:     m.ScanCount,
		LastScannedAt: m.LastScannedAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
