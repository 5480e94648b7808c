package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tastecert-backend/pkg/enums"
)

// Product is a producer submission moving through review and certification.
type Product struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProducerID      uuid.UUID           `gorm:"column:producer_id;type:uuid;not null;index"`
	CategoryID      uuid.UUID           `gorm:"column:category_id;type:uuid;not null;index"`
	Name            string              `gorm:"column:name;not null"`
	Brand           *string             `gorm:"column:brand"`
	Description     *string             `gorm:"column:description"`
	Origin          *string             `gorm:"column:origin"`
	ImageKey        *string             `gorm:"column:image_key"`
	Status          enums.ProductStatus `gorm:"column:status;type:product_status;not null;default:submitted"`
	RejectionReason *string             `gorm:"column:rejection_reason"`
	SubmittedAt     time.Time           `gorm:"column:submitted_at;not null"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`

	Producer *User     `gorm:"foreignKey:ProducerID;references:ID"`
	Category *Category `gorm:"foreignKey:CategoryID;references:ID"`
}
