package products

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tastecert-backend/pkg/db/models"
	"github.com/angelmondragon/tastecert-backend/pkg/enums"
	"github.com/angelmondragon/tastecert-backend/pkg/pagination"
)

// ProductDTO represents the product payload returned to clients.
type ProductDTO struct {
	ID              uuid.UUID           `json:"id"`
	ProducerID      uuid.UUID           `json:"producer_id"`
	ProducerName    string              `json:"producer_name,omitempty"`
	CategoryID      uuid.UUID           `json:"category_id"`
	CategoryName    string              `json:"category_name,omitempty"`
	Name            string              `json:"name"`
	Brand           *string             `json:"brand,omitempty"`
	Description     *string             `json:"description,omitempty"`
	Origin          *string             `json:"origin,omitempty"`
	Status          enums.ProductStatus `json:"status"`
	RejectionReason *string             `json:"rejection_reason,omitempty"`
	ImageURL        *string             `json:"image_url,omitempty"`
	SubmittedAt     time.Time           `json:"submitted_at"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// CreateInput holds the producer payload for a new submission.
type CreateInput struct {
	CategoryID  uuid.UUID `json:"category_id" validate:"required"`
	Name        string    `json:"name" validate:"required,max=200"`
	Brand       *string   `json:"brand,omitempty" validate:"omitempty,max=200"`
	Description *string   `json:"description,omitempty" validate:"omitempty,max=4000"`
	Origin      *string   `json:"origin,omitempty" validate:"omitempty,max=200"`
}

// UpdateInput holds optional product changes.
type UpdateInput struct {
	CategoryID  *uuid.UUID `json:"category_id,omitempty"`
	Name        *string    `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Brand       *string    `json:"brand,omitempty" validate:"omitempty,max=200"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=4000"`
	Origin      *string    `json:"origin,omitempty" validate:"omitempty,max=200"`
}

// RejectInput carries the admin's rejection reason.
type RejectInput struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

// ListParams filters product listings. Producers are always scoped to their own rows.
type ListParams struct {
	Status     *enums.ProductStatus
	CategoryID *uuid.UUID
	pagination.Params
}

func (s *service) toDTO(p *models.Product) ProductDTO {
	dto := ProductDTO{
		ID:              p.ID,
		ProducerID:      p.ProducerID,
		CategoryID:      p.CategoryID,
		Name:            p.Name,
		Brand:           p.Brand,
		Description:     p.Description,
		Origin:          p.Origin,
		Status:          p.Status,
		RejectionReason: p.RejectionReason,
		SubmittedAt:     p.SubmittedAt,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
	if p.Producer != nil {
		dto.ProducerName = p.Producer.DisplayName()
	}
	if p.Category != nil {
		dto.CategoryName = p.Category.Name
	}
	if p.ImageKey != nil {
		url := fmt.Sprintf("%s/api/v1/products/%s/image", strings.TrimRight(s.apiBaseURL, "/"), p.ID)
		dto.ImageURL = &url
	}
	return dto
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
