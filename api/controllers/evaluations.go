package controllers

import (
	"net/http"

	"github.com/angelmondragon/tastecert-backend/api/responses"
	"github.com/angelmondragon/tastecert-backend/api/validators"
	"github.com/angelmondragon/tastecert-backend/internal/evaluations"
	"github.com/angelmondragon/tastecert-backend/pkg/logger"
)

func EvaluationGet(svc evaluations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "evaluations service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		evaluation, err := svc.Get(r.Context(), actor, productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, evaluation)
	}
}

// AdminEvaluationSave upserts the component scores for a product.
func AdminEvaluationSave(svc evaluations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "evaluations service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body evaluations.ScoresInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		evaluation, err := svc.Save(r.Context(), actor, productID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, evaluation)
	}
}
