package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tastecert-backend/pkg/enums"
)

// Certificate is the award issued to a scored product. One per product.
type Certificate struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID         uuid.UUID       `gorm:"column:product_id;type:uuid;not null;uniqueIndex"`
	CertificateNumber string          `gorm:"column:certificate_number;not null;uniqueIndex"`
	AwardTier         enums.AwardTier `gorm:"column:award_tier;type:award_tier;not null"`
	Score             float64         `gorm:"column:score;not null"`
	IsPublished       bool            `gorm:"column:is_published;not null"`
	PDFKey            *string         `gorm:"column:pdf_key"`
	IssuedAt          time.Time       `gorm:"column:issued_at;not null"`
	IssuedBy          uuid.UUID       `gorm:"column:issued_by;type:uuid;not null"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`

	Product *Product `gorm:"foreignKey:ProductID;references:ID"`
}

// CertificateSequence is the per-year counter backing certificate numbers.
type CertificateSequence struct {
	Year      int       `gorm:"column:year;primaryKey;autoIncrement:false"`
	LastValue int       `gorm:"column:last_value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
