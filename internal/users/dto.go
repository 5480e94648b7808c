package users

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tastecert-backend/pkg/db/models"
	"github.com/angelmondragon/tastecert-backend/pkg/enums"
)

// UserDTO is the transport shape that omits sensitive credentials.
type UserDTO struct {
	ID          uuid.UUID      `json:"id"`
	Email       string         `json:"email"`
	FirstName   string         `json:"first_name"`
	LastName    string         `json:"last_name"`
	CompanyName *string        `json:"company_name,omitempty"`
	Phone       *string        `json:"phone,omitempty"`
	Role        enums.UserRole `json:"role"`
	IsActive    bool           `json:"is_active"`
	LastLoginAt *time.Time     `json:"last_login_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	CompanyName  *string
	Phone        *string
	Role         enums.UserRole
	IsActive     *bool
}

// UpdateProfileInput is the self-service profile patch.
type UpdateProfileInput struct {
	FirstName   *string `json:"first_name,omitempty" validate:"omitempty,min=1,max=100"`
	LastName    *string `json:"last_name,omitempty" validate:"omitempty,min=1,max=100"`
	CompanyName *string `json:"company_name,omitempty" validate:"omitempty,max=200"`
	Phone       *string `json:"phone,omitempty" validate:"omitempty,max=40"`
}

// CreateUserInput is the admin payload for creating any account.
type CreateUserInput struct {
	Email       string         `json:"email" validate:"required,email"`
	Password    string         `json:"password" validate:"required"`
	FirstName   string         `json:"first_name" validate:"required,max=100"`
	LastName    string         `json:"last_name" validate:"required,max=100"`
	CompanyName *string        `json:"company_name,omitempty" validate:"omitempty,max=200"`
	Phone       *string        `json:"phone,omitempty" validate:"omitempty,max=40"`
	Role        enums.UserRole `json:"role" validate:"required"`
}

// AdminUpdateInput is the admin patch for an existing account.
type AdminUpdateInput struct {
	FirstName   *string         `json:"first_name,omitempty" validate:"omitempty,min=1,max=100"`
	LastName    *string         `json:"last_name,omitempty" validate:"omitempty,min=1,max=100"`
	CompanyName *string         `json:"company_name,omitempty" validate:"omitempty,max=200"`
	Role        *enums.UserRole `json:"role,omitempty"`
	IsActive    *bool           `json:"is_active,omitempty"`
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}

	return &UserDTO{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		CompanyName: u.CompanyName,
		Phone:       u.Phone,
		Role:        u.Role,
		IsActive:    u.IsActive,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	isActive := true
	if c.IsActive != nil {
		isActive = *c.IsActive
	}
	role := c.Role
	if role == "" {
		role = enums.UserRoleProducer
	}

	return &models.User{
		ID:           uuid.New(),
		Email:        strings.ToLower(strings.TrimSpace(c.Email)),
		PasswordHash: c.PasswordHash,
		FirstName:    strings.TrimSpace(c.FirstName),
		LastName:     strings.TrimSpace(c.LastName),
		CompanyName:  trimmedOrNil(c.CompanyName),
		Phone:        trimmedOrNil(c.Phone),
		Role:         role,
		IsActive:     isActive,
	}
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
