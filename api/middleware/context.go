package middleware

import (
	"context"

	"github.com/google/uuid"

	pkgAuth "github.com/angelmondragon/tastecert-backend/pkg/auth"
)

type actorKey struct{}

// WithActor stores the authenticated caller on ctx.
func WithActor(ctx context.Context, actor pkgAuth.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the caller stored by Auth. It reports false for
// anonymous requests and for actors without a user id or a known role.
func ActorFromContext(ctx context.Context) (pkgAuth.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(pkgAuth.Actor)
	if !ok || actor.UserID == uuid.Nil || !actor.Role.IsValid() {
		return pkgAuth.Actor{}, false
	}
	return actor, true
}

// UserIDFromContext is "" for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.UserID.String()
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return string(actor.Role)
	}
	return ""
}
