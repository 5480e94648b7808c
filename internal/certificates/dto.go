package certificates

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tastecert-backend/pkg/db/models"
	"github.com/angelmondragon/tastecert-backend/pkg/enums"
	"github.com/angelmondragon/tastecert-backend/pkg/pagination"
)

// CreateInput is the admin "assign award" payload.
type CreateInput struct {
	ProductID         uuid.UUID       `json:"product_id" validate:"required"`
	AwardTier         enums.AwardTier `json:"award_tier" validate:"required"`
	CertificateNumber *string         `json:"certificate_number,omitempty"`
	IsPublished       *bool           `json:"is_published,omitempty"`
	IssuedAt          *time.Time      `json:"issued_at,omitempty"`
}

type PublishInput struct {
	IsPublished *bool `json:"is_published" validate:"required"`
}

type ListParams struct {
	Year      *int
	Published *bool
	pagination.Params
}

type CertificateDTO struct {
	ID                uuid.UUID       `json:"id"`
	CertificateNumber string          `json:"certificate_number"`
	ProductID         uuid.UUID       `json:"product_id"`
	ProductName       string          `json:"product_name,omitempty"`
	ProducerID        uuid.UUID       `json:"producer_id,omitempty"`
	ProducerName      string          `json:"producer_name,omitempty"`
	CategoryName      string          `json:"category_name,omitempty"`
	AwardTier         enums.AwardTier `json:"award_tier"`
	AwardLabel        string          `json:"award_label"`
	Score             float64         `json:"score"`
	IsPublished       bool            `json:"is_published"`
	PDFAvailable      bool            `json:"pdf_available"`
	PDFURL            *string         `json:"pdf_url,omitempty"`
	VerificationURL   string          `json:"verification_url"`
	IssuedAt          time.Time       `json:"issued_at"`
	IssuedBy          uuid.UUID       `json:"issued_by"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// VerificationDTO is the public view of a published certificate.
type VerificationDTO struct {
	Valid             bool            `json:"valid"`
	CertificateNumber string          `json:"certificate_number"`
	AwardTier         enums.AwardTier `json:"award_tier"`
	AwardLabel        string          `json:"award_label"`
	Score             float64         `json:"score"`
	IssuedAt          time.Time       `json:"issued_at"`
	Issuer            string          `json:"issuer"`
	ProductID         uuid.UUID       `json:"product_id"`
	ProductName       string          `json:"product_name"`
	Brand             *string         `json:"brand,omitempty"`
	ProducerName      string          `json:"producer_name"`
	CategoryName      string          `json:"category_name"`
}

func (s *service) toDTO(c *models.Certificate) CertificateDTO {
	dto := CertificateDTO{
		ID:                c.ID,
		CertificateNumber: c.CertificateNumber,
		ProductID:         c.ProductID,
		AwardTier:         c.AwardTier,
		AwardLabel:        c.AwardTier.DisplayName(),
		Score:             c.Score,
		IsPublished:       c.IsPublished,
		PDFAvailable:      c.PDFKey != nil,
		VerificationURL:   s.verificationURL(c.CertificateNumber),
		IssuedAt:          c.IssuedAt,
		IssuedBy:          c.IssuedBy,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
	if c.PDFKey != nil {
		url := s.apiBaseURL + "/api/v1/certificates/" + c.ID.String() + "/pdf"
		dto.PDFURL = &url
	}
	if p := c.Product; p != nil {
		dto.ProductName = p.Name
		dto.ProducerID = p.ProducerID
		if p.Producer != nil {
			dto.ProducerName = p.Producer.DisplayName()
		}
		if p.Category != nil {
			dto.CategoryName = p.Category.Name
		}
	}
	return dto
}

func (s *service) toVerification(c *models.Certificate) VerificationDTO {
	out := VerificationDTO{
		Valid:             true,
		CertificateNumber: c.CertificateNumber,
		AwardTier:         c.AwardTier,
		AwardLabel:        c.AwardTier.DisplayName(),
		Score:             c.Score,
		IssuedAt:          c.IssuedAt,
		Issuer:            s.issuerName,
		ProductID:         c.ProductID,
	}
	if p := c.Product; p != nil {
		out.ProductName = p.Name
		out.Brand = p.Brand
		if p.Producer != nil {
			out.ProducerName = p.Producer.DisplayName()
		}
		if p.Category != nil {
			out.CategoryName = p.Category.Name
		}
	}
	return out
}
