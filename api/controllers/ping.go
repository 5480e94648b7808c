package controllers

import (
	"net/http"

	"github.com/angelmondragon/tastecert-backend/api/middleware"
	"github.com/angelmondragon/tastecert-backend/api/responses"
)

// Ping answers with the route group's scope and, behind Auth, the caller.
// It lets clients check that a token is accepted by a given group.
func Ping(scope string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{"scope": scope, "status": "ok"}
		if actor, ok := middleware.ActorFromContext(r.Context()); ok {
			body["user_id"] = actor.UserID.String()
			body["role"] = string(actor.Role)
		}
		responses.WriteSuccess(w, body)
	}
}
