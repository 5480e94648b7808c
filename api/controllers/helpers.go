package controllers

import (
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/tastecert-backend/api/middleware"
	"github.com/angelmondragon/tastecert-backend/api/responses"
	pkgAuth "github.com/angelmondragon/tastecert-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/tastecert-backend/pkg/errors"
	"github.com/angelmondragon/tastecert-backend/pkg/logger"
)

// tokenHeader mirrors the access token for clients that cannot read bodies.
const tokenHeader = "X-TC-Token"

const (
	cachePublicDay = "public, max-age=86400"
	cachePrivate   = "private, no-cache"
)

func unavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger, name string) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, name+" unavailable"))
}

// requireActor writes 401 and returns false when Auth did not seed an actor.
func requireActor(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (pkgAuth.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing actor"))
		return pkgAuth.Actor{}, false
	}
	return actor, true
}

// streamFile copies an opened asset to the response and closes it.
func streamFile(w http.ResponseWriter, r *http.Request, logg *logger.Logger, body io.ReadCloser, contentType, cacheControl, disposition string) {
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", cacheControl)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if disposition != "" {
		w.Header().Set("Content-Disposition", disposition)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil && logg != nil {
		logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "stream asset interrupted")
	}
}

func attachment(filename string) string {
	clean := strings.NewReplacer(`"`, "", "\r", "", "\n", "").Replace(filename)
	return `attachment; filename="` + clean + `"`
}
