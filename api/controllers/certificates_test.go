package controllers

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/tastecert-backend/internal/certificates"
	pkgAuth "github.com/angelmondragon/tastecert-backend/pkg/auth"
	"github.com/angelmondragon/tastecert-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tastecert-backend/pkg/errors"
	"github.com/angelmondragon/tastecert-backend/pkg/pagination"
)

type testCertificatesService struct {
	createFn    func(ctx context.Context, actor pkgAuth.Actor, input certificates.CreateInput) (*certificates.CertificateDTO, error)
	listFn      func(ctx context.Context, params certificates.ListParams) (*pagination.Page[certificates.CertificateDTO], error)
	publishFn   func(ctx context.Context, id uuid.UUID, published bool) (*certificates.CertificateDTO, error)
	deleteFn    func(ctx context.Context, id uuid.UUID) error
	openPDFFn   func(ctx context.Context, actor pkgAuth.Actor, ref string) (io.ReadCloser, string, error)
	exportFn    func(ctx context.Context, w io.Writer, year *int) error
	verifyFn    func(ctx context.Context, ref string) (*certificates.VerificationDTO, error)
	renderCalls int
}

func (s *testCertificatesService) Create(ctx context.Context, actor pkgAuth.Actor, input certificates.CreateInput) (*certificates.CertificateDTO, error) {
	return s.createFn(ctx, actor, input)
}

func (s *testCertificatesService) Get(ctx context.Context, actor pkgAuth.Actor, ref string) (*certificates.CertificateDTO, error) {
	return &certificates.CertificateDTO{CertificateNumber: ref}, nil
}

func (s *testCertificatesService) List(ctx context.Context, params certificates.ListParams) (*pagination.Page[certificates.CertificateDTO], error) {
	return s.listFn(ctx, params)
}

func (s *testCertificatesService) SetPublished(ctx context.Context, id uuid.UUID, published bool) (*certificates.CertificateDTO, error) {
	return s.publishFn(ctx, id, published)
}

func (s *testCertificatesService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.deleteFn(ctx, id)
}

func (s *testCertificatesService) Render(ctx context.Context, id uuid.UUID) (*certificates.CertificateDTO, error) {
	s.renderCalls++
	return &certificates.CertificateDTO{ID: id, PDFAvailable: true}, nil
}

func (s *testCertificatesService) OpenPDF(ctx context.Context, actor pkgAuth.Actor, ref string) (io.ReadCloser, string, error) {
	return s.openPDFFn(ctx, actor, ref)
}

func (s *testCertificatesService) Export(ctx context.Context, w io.Writer, year *int) error {
	return s.exportFn(ctx, w, year)
}

func (s *testCertificatesService) Verify(ctx context.Context, ref string) (*certificates.VerificationDTO, error) {
	return s.verifyFn(ctx, ref)
}

func TestAdminCertificateCreate(t *testing.T) {
	productID := uuid.New()
	svc := &testCertificatesService{
		createFn: func(ctx context.Context, actor pkgAuth.Actor, input certificates.CreateInput) (*certificates.CertificateDTO, error) {
			if input.ProductID != productID || input.AwardTier != enums.AwardTierGold {
				t.Fatalf("unexpected input %+v", input)
			}
			if !actor.IsAdmin() {
				t.Fatal("expected admin actor")
			}
			return &certificates.CertificateDTO{CertificateNumber: "TC-2026-000001", ProductID: productID, AwardTier: input.AwardTier}, nil
		},
	}

	body := `{"product_id":"` + productID.String() + `","award_tier":"gold"}`
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	req, _ = withActor(req, enums.UserRoleAdmin)
	rec := httptest.NewRecorder()
	AdminCertificateCreate(svc, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	var data certificates.CertificateDTO
	decodeData(t, rec, &data)
	if data.CertificateNumber != "TC-2026-000001" {
		t.Fatalf("unexpected certificate number %s", data.CertificateNumber)
	}
}

func TestAdminCertificateCreateDuplicateNumber(t *testing.T) {
	svc := &testCertificatesService{
		createFn: func(ctx context.Context, actor pkgAuth.Actor, input certificates.CreateInput) (*certificates.CertificateDTO, error) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "certificate number already in use")
		},
	}

	body := `{"product_id":"` + uuid.NewString() + `","award_tier":"silver","certificate_number":"TC-2026-000001"}`
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	req, _ = withActor(req, enums.UserRoleAdmin)
	rec := httptest.NewRecorder()
	AdminCertificateCreate(svc, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
}

func TestAdminCertificateListFilters(t *testing.T) {
	var got certificates.ListParams
	svc := &testCertificatesService{
		listFn: func(ctx context.Context, params certificates.ListParams) (*pagination.Page[certificates.CertificateDTO], error) {
			got = params
			return &pagination.Page[certificates.CertificateDTO]{Items: []certificates.CertificateDTO{}}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/?year=2026&published=true&limit=5", nil)
	rec := httptest.NewRecorder()
	AdminCertificateList(svc, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if got.Year == nil || *got.Year != 2026 {
		t.Fatalf("expected year filter, got %+v", got.Year)
	}
	if got.Published == nil || !*got.Published || got.Limit != 5 {
		t.Fatalf("unexpected params %+v", got)
	}
}

func TestAdminCertificateListRejectsBadYear(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?year=26", nil)
	rec := httptest.NewRecorder()
	AdminCertificateList(&testCertificatesService{}, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestCertificatePDFDownload(t *testing.T) {
	svc := &testCertificatesService{
		openPDFFn: func(ctx context.Context, actor pkgAuth.Actor, ref string) (io.ReadCloser, string, error) {
			if ref != "TC-2026-000007" {
				t.Fatalf("unexpected ref %s", ref)
			}
			return io.NopCloser(strings.NewReader("%PDF-1.3")), ref + ".pdf", nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req, _ = withActor(req, enums.UserRoleProducer)
	req = addRouteParam(req, "idOrNumber", "TC-2026-000007")
	rec := httptest.NewRecorder()
	CertificatePDF(svc, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="TC-2026-000007.pdf"` {
		t.Fatalf("unexpected disposition %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("unexpected content type %q", got)
	}
}

func TestCertificatePDFNotRendered(t *testing.T) {
	svc := &testCertificatesService{
		openPDFFn: func(ctx context.Context, actor pkgAuth.Actor, ref string) (io.ReadCloser, string, error) {
			return nil, "", pkgerrors.New(pkgerrors.CodeDependencyMissing, "certificate pdf has not been rendered")
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req, _ = withActor(req, enums.UserRoleProducer)
	req = addRouteParam(req, "idOrNumber", "TC-2026-000007")
	rec := httptest.NewRecorder()
	CertificatePDF(svc, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
}

func TestAdminCertificateExport(t *testing.T) {
	svc := &testCertificatesService{
		exportFn: func(ctx context.Context, w io.Writer, year *int) error {
			if year == nil || *year != 2025 {
				t.Fatalf("unexpected year %v", year)
			}
			_, err := w.Write([]byte("PK"))
			return err
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/?year=2025", nil)
	rec := httptest.NewRecorder()
	AdminCertificateExport(svc, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="certificate-register-2025.xlsx"` {
		t.Fatalf("unexpected disposition %q", got)
	}
	if rec.Body.String() != "PK" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestAdminCertificateExportFailureWritesEnvelope(t *testing.T) {
	svc := &testCertificatesService{
		exportFn: func(ctx context.Context, w io.Writer, year *int) error {
			_, _ = w.Write([]byte("partial"))
			return pkgerrors.New(pkgerrors.CodeDependency, "list certificate register")
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	AdminCertificateExport(svc, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "partial") {
		t.Fatal("partial workbook must not leak into the error response")
	}
}

func TestAdminCertificatePublishAndRender(t *testing.T) {
	certificateID := uuid.New()
	svc := &testCertificatesService{
		publishFn: func(ctx context.Context, id uuid.UUID, published bool) (*certificates.CertificateDTO, error) {
			if id != certificateID || published {
				t.Fatalf("unexpected publish args %s %v", id, published)
			}
			return &certificates.CertificateDTO{ID: id}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPatch, "/", bytes.NewBufferString(`{"is_published":false}`))
	req = addRouteParam(req, "certificateId", certificateID.String())
	rec := httptest.NewRecorder()
	AdminCertificatePublish(svc, testLogger()).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req = addRouteParam(req, "certificateId", certificateID.String())
	rec = httptest.NewRecorder()
	AdminCertificateRender(svc, testLogger()).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || svc.renderCalls != 1 {
		t.Fatalf("expected render to run once, got %d calls status %d", svc.renderCalls, rec.Code)
	}
}

func TestAdminCertificateDelete(t *testing.T) {
	certificateID := uuid.New()
	svc := &testCertificatesService{
		deleteFn: func(ctx context.Context, id uuid.UUID) error {
			if id != certificateID {
				t.Fatalf("unexpected id %s", id)
			}
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	req = addRouteParam(req, "certificateId", certificateID.String())
	rec := httptest.NewRecorder()
	AdminCertificateDelete(svc, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rec.Code)
	}
}

func TestPublicCertificateVerifyUnpublished(t *testing.T) {
	svc := &testCertificatesService{
		verifyFn: func(ctx context.Context, ref string) (*certificates.VerificationDTO, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "certificate not found")
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = addRouteParam(req, "idOrNumber", "TC-2026-000099")
	rec := httptest.NewRecorder()
	PublicCertificateVerify(svc, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != string(pkgerrors.CodeNotFound) {
		t.Fatalf("unexpected code %s", code)
	}
}
