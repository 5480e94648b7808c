package controllers

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/tastecert-backend/api/responses"
	"github.com/angelmondragon/tastecert-backend/api/validators"
	"github.com/angelmondragon/tastecert-backend/internal/certificates"
	"github.com/angelmondragon/tastecert-backend/pkg/logger"
)

const (
	minCertificateYear = 2000
	maxCertificateYear = 9999
)

func parseYear(r *http.Request) (*int, error) {
	if r.URL.Query().Get("year") == "" {
		return nil, nil
	}
	year, err := validators.ParseQueryInt(r, "year", 0, minCertificateYear, maxCertificateYear)
	if err != nil {
		return nil, err
	}
	return &year, nil
}

// CertificateGet resolves {idOrNumber} for the owning producer or an admin.
func CertificateGet(svc certificates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "certificates service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		certificate, err := svc.Get(r.Context(), actor, chi.URLParam(r, "idOrNumber"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, certificate)
	}
}

func CertificatePDF(svc certificates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "certificates service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		body, filename, err := svc.OpenPDF(r.Context(), actor, chi.URLParam(r, "idOrNumber"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		streamFile(w, r, logg, body, pdfContentType, cachePrivate, attachment(filename))
	}
}

// PublicCertificateVerify only exposes published certificates.
func PublicCertificateVerify(svc certificates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "certificates service")
			return
		}

		verification, err := svc.Verify(r.Context(), chi.URLParam(r, "idOrNumber"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, verification)
	}
}

func AdminCertificateList(svc certificates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "certificates service")
			return
		}

		page, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		year, err := parseYear(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		published, err := validators.ParseQueryBool(r, "published")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), certificates.ListParams{Year: year, Published: published, Params: page})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AdminCertificateCreate(svc certificates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "certificates service")
			return
		}
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var body certificates.CreateInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		certificate, err := svc.Create(r.Context(), actor, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, certificate)
	}
}

// AdminCertificateExport returns the certificate register as an xlsx workbook.
func AdminCertificateExport(svc certificates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "certificates service")
			return
		}

		year, err := parseYear(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var buf bytes.Buffer
		if err := svc.Export(r.Context(), &buf, year); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filename := "certificate-register-" + time.Now().UTC().Format("20060102") + ".xlsx"
		if year != nil {
			filename = "certificate-register-" + strconv.Itoa(*year) + ".xlsx"
		}
		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", attachment(filename))
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		if _, err := buf.WriteTo(w); err != nil && logg != nil {
			logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "write certificate export")
		}
	}
}

func AdminCertificateDelete(svc certificates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "certificates service")
			return
		}

		certificateID, err := validators.ParseUUIDParam(r, "certificateId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), certificateID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

func AdminCertificatePublish(svc certificates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "certificates service")
			return
		}

		certificateID, err := validators.ParseUUIDParam(r, "certificateId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body certificates.PublishInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		certificate, err := svc.SetPublished(r.Context(), certificateID, *body.IsPublished)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, certificate)
	}
}

// AdminCertificateRender retries PDF generation for an existing certificate.
func AdminCertificateRender(svc certificates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "certificates service")
			return
		}

		certificateID, err := validators.ParseUUIDParam(r, "certificateId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		certificate, err := svc.Render(r.Context(), certificateID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, certificate)
	}
}
