package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/tastecert-backend/api/responses"
	pkgAuth "github.com/angelmondragon/tastecert-backend/pkg/auth"
	"github.com/angelmondragon/tastecert-backend/pkg/auth/session"
	"github.com/angelmondragon/tastecert-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/tastecert-backend/pkg/errors"
	"github.com/angelmondragon/tastecert-backend/pkg/logger"
)

const bearerScheme = "Bearer"

// Auth requires a bearer access token whose refresh session is still live,
// then seeds the request context with the actor.
func Auth(cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := authenticate(r, cfg, verifier)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			ctx := WithActor(r.Context(), actor)
			if logg != nil {
				ctx = logg.WithActor(ctx, actor.UserID.String(), string(actor.Role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, cfg config.JWTConfig, verifier session.AccessSessionChecker) (pkgAuth.Actor, error) {
	token := BearerToken(r)
	if token == "" {
		return pkgAuth.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	claims, err := pkgAuth.ParseAccessToken(cfg, token)
	if err != nil {
		return pkgAuth.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if claims.ID == "" {
		return pkgAuth.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}
	if verifier != nil {
		live, err := verifier.HasSession(r.Context(), claims.ID)
		if err != nil {
			return pkgAuth.Actor{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session")
		}
		if !live {
			return pkgAuth.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable")
		}
	}
	return pkgAuth.Actor{UserID: claims.UserID, Role: claims.Role}, nil
}

// BearerToken accepts "Bearer <jwt>" in any case, or a bare token. A header
// holding only the scheme yields "".
func BearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.EqualFold(raw, bearerScheme) {
		return ""
	}
	scheme, token, found := strings.Cut(raw, " ")
	if found && strings.EqualFold(scheme, bearerScheme) {
		return strings.TrimSpace(token)
	}
	return raw
}
