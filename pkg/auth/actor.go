package auth

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/tastecert-backend/pkg/enums"
)

// Actor is the authenticated caller as seen by domain services.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func (a Actor) IsAdmin() bool {
	return a.Role == enums.UserRoleAdmin
}

// CanAccess reports whether the actor owns the resource or is an administrator.
func (a Actor) CanAccess(ownerID uuid.UUID) bool {
	if a.UserID == uuid.Nil {
		return false
	}
	return a.IsAdmin() || a.UserID == ownerID
}

// Actor returns the caller described by the token.
func (c AccessTokenClaims) Actor() Actor {
	return Actor{UserID: c.UserID, Role: c.Role}
}
