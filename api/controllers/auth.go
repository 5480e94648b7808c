package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/tastecert-backend/api/responses"
	"github.com/angelmondragon/tastecert-backend/api/validators"
	"github.com/angelmondragon/tastecert-backend/internal/auth"
	"github.com/angelmondragon/tastecert-backend/pkg/logger"
)

type loginFunc func(context.Context, auth.LoginRequest) (*auth.LoginResponse, error)

// AuthLogin serves producer (and admin) password login.
func AuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailableHandler(logg, "auth service")
	}
	return login(svc.Login, logg)
}

// AdminAuthLogin only admits accounts with the admin role.
func AdminAuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailableHandler(logg, "auth service")
	}
	return login(svc.AdminLogin, logg)
}

func login(fn loginFunc, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body auth.LoginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := fn(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set(tokenHeader, result.AccessToken)
		responses.WriteSuccess(w, result)
	}
}

func unavailableHandler(logg *logger.Logger, name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		unavailable(w, r, logg, name)
	}
}
