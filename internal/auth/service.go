package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tastecert-backend/internal/users"
	pkgAuth "github.com/angelmondragon/tastecert-backend/pkg/auth"
	"github.com/angelmondragon/tastecert-backend/pkg/auth/session"
	"github.com/angelmondragon/tastecert-backend/pkg/config"
	"github.com/angelmondragon/tastecert-backend/pkg/db/models"
	"github.com/angelmondragon/tastecert-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tastecert-backend/pkg/errors"
	"github.com/angelmondragon/tastecert-backend/pkg/logger"
	"github.com/angelmondragon/tastecert-backend/pkg/security"
)

// Service exchanges credentials for an access token and a refresh session.
type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	// AdminLogin behaves like Login but only admits the admin role.
	AdminLogin(ctx context.Context, req LoginRequest) (*LoginResponse, error)
}

type userRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

type sessionManager interface {
	Generate(ctx context.Context, userID uuid.UUID, accessID string) (string, error)
}

type ServiceParams struct {
	UserRepo       userRepository
	SessionManager sessionManager
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
	// Logger is optional.
	Logger *logger.Logger
}

type service struct {
	users    userRepository
	sessions sessionManager
	jwt      config.JWTConfig
	argon    config.PasswordConfig
	logg     *logger.Logger
	now      func() time.Time
}

// errBadCredentials covers unknown email, wrong password and a role the
// entry point does not admit, so callers cannot tell them apart.
var errBadCredentials = pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")

func NewService(p ServiceParams) (Service, error) {
	if p.UserRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if p.SessionManager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	return &service{
		users:    p.UserRepo,
		sessions: p.SessionManager,
		jwt:      p.JWTConfig,
		argon:    p.PasswordConfig,
		logg:     p.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	return s.login(ctx, req, enums.UserRoleProducer, enums.UserRoleAdmin)
}

func (s *service) AdminLogin(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	return s.login(ctx, req, enums.UserRoleAdmin)
}

func (s *service) login(ctx context.Context, req LoginRequest, admitted ...enums.UserRole) (*LoginResponse, error) {
	user, err := s.checkCredentials(ctx, req)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(admitted, user.Role) {
		return nil, errBadCredentials
	}

	at := s.now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, at); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update last login")
	}
	user.LastLoginAt = &at

	accessID := session.NewAccessID()
	access, err := pkgAuth.MintAccessToken(s.jwt, at, pkgAuth.AccessTokenPayload{
		UserID: user.ID,
		Role:   user.Role,
		JTI:    accessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	refresh, err := s.sessions.Generate(ctx, user.ID, accessID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store refresh token")
	}
	return &LoginResponse{AccessToken: access, RefreshToken: refresh, User: users.FromModel(user)}, nil
}

// checkCredentials resolves the account by normalized email and verifies the
// password. A deactivated account is reported only after the password
// matched.
func (s *service) checkCredentials(ctx context.Context, req LoginRequest) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, errBadCredentials
	}
	user, err := s.users.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, errBadCredentials
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}

	ok, err := security.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !ok {
		return nil, errBadCredentials
	}
	if !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "account is deactivated")
	}
	s.rehashIfOutdated(ctx, user, req.Password)
	return user, nil
}

// rehashIfOutdated moves the stored hash to the configured argon2 costs. The
// old hash keeps verifying if this fails.
func (s *service) rehashIfOutdated(ctx context.Context, user *models.User, password string) {
	if !security.NeedsRehash(user.PasswordHash, s.argon) {
		return
	}
	hash, err := security.HashPassword(password, s.argon)
	if err == nil {
		err = s.users.UpdatePasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "user_id", user.ID.String()), "password rehash failed", err)
		}
		return
	}
	user.PasswordHash = hash
}
