package models

import (
	"time"

	"github.com/google/uuid"
)

// QRCode binds a rendered QR image to a certified product. One per product.
type QRCode struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID     uuid.UUID  `gorm:"column:product_id;type:uuid;not null;uniqueIndex"`
	ImageKey      string     `gorm:"column:image_key;not null"`
	ImageURL      string     `gorm:"column:image_url;not null"`
	RedirectURL   string     `gorm:"column:redirect_url;not null"`
	IsActive      bool       `gorm:"column:is_active;not null"`
	ScanCount     int64      `gorm:"column:scan_count;not null"`
	LastScannedAt *time.Time `gorm:"column:last_scanned_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (QRCode) TableName() string {
	return "qr_codes"
}
