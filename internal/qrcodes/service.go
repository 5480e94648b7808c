package qrcodes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tastecert-backend/pkg/auth"
	"github.com/angelmondragon/tastecert-backend/pkg/clock"
	"github.com/angelmondragon/tastecert-backend/pkg/db"
	"github.com/angelmondragon/tastecert-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tastecert-backend/pkg/errors"
	"github.com/angelmondragon/tastecert-backend/pkg/logger"
	"github.com/angelmondragon/tastecert-backend/pkg/metrics"
	"github.com/angelmondragon/tastecert-backend/pkg/storage"
)

var filenamePattern = regexp.MustCompile(`^qr-[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}-\d+\.png$`)

// Service issues QR codes for certified products and tracks their scans.
type Service interface {
	Issue(ctx context.Context, actor auth.Actor, productID uuid.UUID, input IssueInput) (*QRCodeDTO, error)
	Get(ctx context.Context, actor auth.Actor, productID uuid.UUID) (*QRCodeDTO, error)
	GetPublic(ctx context.Context, productID uuid.UUID) (*PublicQRCodeDTO, error)
	Regenerate(ctx context.Context, actor auth.Actor, productID uuid.UUID, input RegenerateInput) (*QRCodeDTO, error)
	SetActive(ctx context.Context, actor auth.Actor, productID uuid.UUID, active bool) (*QRCodeDTO, error)
	Delete(ctx context.Context, actor auth.Actor, productID uuid.UUID) error
	TrackScan(ctx context.Context, productID uuid.UUID) error
	OpenImage(ctx context.Context, filename string) (io.ReadCloser, error)
}

type ServiceParams struct {
	Repo          *Repository
	Store         storage.Store
	Render        RenderOptions
	APIBaseURL    string
	PublicBaseURL string
	Metrics       *metrics.DomainMetrics
	Logger        *logger.Logger
	Clock         clock.Clock
}

type service struct {
	repo          *Repository
	store         storage.Store
	render        RenderOptions
	apiBaseURL    string
	publicBaseURL string
	metrics       *metrics.DomainMetrics
	logg          *logger.Logger
	now           func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("qr repository required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("object store required")
	}
	clk := params.Clock
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &service{
		repo:          params.Repo,
		store:         params.Store,
		render:        params.Render,
		apiBaseURL:    strings.TrimRight(params.APIBaseURL, "/"),
		publicBaseURL: strings.TrimRight(params.PublicBaseURL, "/"),
		metrics:       params.Metrics,
		logg:          params.Logger,
		now:           clk.Now,
	}, nil
}

// Filename is the stored image name for a product at the given instant.
func Filename(productID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("qr-%s-%d.png", productID, at.UnixMilli())
}

// Issue renders and stores a new code. The file is written first and
// removed again when the row insert fails.
func (s *service) Issue(ctx context.Context, actor auth.Actor, productID uuid.UUID, input IssueInput) (*QRCodeDTO, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only administrators can issue qr codes")
	}
	if _, err := s.loadProduct(ctx, productID); err != nil {
		return nil, err
	}
	hasCert, err := s.repo.HasCertificate(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup certificate")
	}
	if !hasCert {
		return nil, pkgerrors.New(pkgerrors.CodeDependencyMissing, "product has no certificate")
	}
	if _, err := s.repo.FindByProductID(ctx, productID); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "product already has a qr code")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup qr code")
	}

	redirect, err := s.redirectURL(productID, input.RedirectURL)
	if err != nil {
		return nil, err
	}
	key, imageURL, err := s.renderAndStore(ctx, productID, redirect)
	if err != nil {
		return nil, err
	}

	qr := &models.QRCode{
		ProductID:   productID,
		ImageKey:    key,
		ImageURL:    imageURL,
		RedirectURL: redirect,
		IsActive:    true,
	}
	if err := s.repo.Create(ctx, qr); err != nil {
		s.discard(ctx, key)
		if db.IsUniqueViolation(err, "qr_codes_product_id_key") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "product already has a qr code")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create qr code")
	}
	s.metrics.IncQRRendered("issue")
	return FromModel(qr), nil
}

func (s *service) Get(ctx context.Context, actor auth.Actor, productID uuid.UUID) (*QRCodeDTO, error) {
	qr, err := s.loadOwned(ctx, actor, productID)
	if err != nil {
		return nil, err
	}
	return FromModel(qr), nil
}

// GetPublic only exposes active codes.
func (s *service) GetPublic(ctx context.Context, productID uuid.UUID) (*PublicQRCodeDTO, error) {
	qr, err := s.load(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !qr.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "qr code not found")
	}
	return &PublicQRCodeDTO{ProductID: qr.ProductID, ImageURL: qr.ImageURL, RedirectURL: qr.RedirectURL}, nil
}

// Regenerate replaces the image and redirect in place. Scan statistics and
// the active flag are kept.
func (s *service) Regenerate(ctx context.Context, actor auth.Actor, productID uuid.UUID, input RegenerateInput) (*QRCodeDTO, error) {
	qr, err := s.loadOwned(ctx, actor, productID)
	if err != nil {
		return nil, err
	}
	redirect, err := s.redirectURL(productID, input.RedirectURL)
	if err != nil {
		return nil, err
	}

	key, imageURL, err := s.renderAndStore(ctx, productID, redirect)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateImage(ctx, qr.ID, key, imageURL, redirect); err != nil {
		if key != qr.ImageKey {
			s.discard(ctx, key)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update qr code")
	}
	if key != qr.ImageKey {
		s.discard(ctx, qr.ImageKey)
	}

	qr.ImageKey = key
	qr.ImageURL = imageURL
	qr.RedirectURL = redirect
	qr.UpdatedAt = s.now()
	s.metrics.IncQRRendered("regenerate")
	return FromModel(qr), nil
}

func (s *service) SetActive(ctx context.Context, actor auth.Actor, productID uuid.UUID, active bool) (*QRCodeDTO, error) {
	qr, err := s.loadOwned(ctx, actor, productID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetActive(ctx, qr.ID, active); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update qr code")
	}
	qr.IsActive = active
	qr.UpdatedAt = s.now()
	return FromModel(qr), nil
}

func (s *service) Delete(ctx context.Context, actor auth.Actor, productID uuid.UUID) error {
	if !actor.IsAdmin() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only administrators can delete qr codes")
	}
	qr, err := s.load(ctx, productID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, qr.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete qr code")
	}
	s.discard(ctx, qr.ImageKey)
	return nil
}

// TrackScan counts a scan of an active code. Missing and inactive codes are
// accepted silently.
func (s *service) TrackScan(ctx context.Context, productID uuid.UUID) error {
	affected, err := s.repo.IncrementScan(ctx, productID, s.now())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "track scan")
	}
	if affected > 0 {
		s.metrics.IncScan(metrics.ScanTracked)
		return nil
	}

	if _, err := s.repo.FindByProductID(ctx, productID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.metrics.IncScan(metrics.ScanMissing)
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup qr code")
	}
	s.metrics.IncScan(metrics.ScanInactive)
	return nil
}

func (s *service) OpenImage(ctx context.Context, filename string) (io.ReadCloser, error) {
	if !filenamePattern.MatchString(filename) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "qr image not found")
	}
	rc, err := s.store.Open(ctx, storage.QRCodeKey(filename))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "qr image not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeIOFailure, err, "open qr image")
	}
	return rc, nil
}

func (s *service) renderAndStore(ctx context.Context, productID uuid.UUID, redirect string) (string, string, error) {
	png, err := Render(redirect, s.render)
	if err != nil {
		return "", "", pkgerrors.Wrap(pkgerrors.CodeIOFailure, err, "render qr code")
	}
	filename := Filename(productID, s.now())
	key := storage.QRCodeKey(filename)
	if err := s.store.Put(ctx, key, bytes.NewReader(png), "image/png"); err != nil {
		return "", "", pkgerrors.Wrap(pkgerrors.CodeIOFailure, err, "store qr image")
	}
	return key, s.apiBaseURL + "/api/public/files/qr/" + filename, nil
}

func (s *service) redirectURL(productID uuid.UUID, override *string) (string, error) {
	if override == nil || strings.TrimSpace(*override) == "" {
		return fmt.Sprintf("%s/products/%s?qr=true", s.publicBaseURL, productID), nil
	}
	raw := strings.TrimSpace(*override)
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "redirect_url must be an absolute http(s) url")
	}
	return raw, nil
}

// discard deletes an image, tolerating its absence.
func (s *service) discard(ctx context.Context, key string) {
	if err := s.store.Delete(ctx, key); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"key": key, "error": err.Error()}), "qr image cleanup failed")
	}
}

func (s *service) loadProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	product, err := s.repo.FindProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup product")
	}
	return product, nil
}

func (s *service) load(ctx context.Context, productID uuid.UUID) (*models.QRCode, error) {
	qr, err := s.repo.FindByProductID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "qr code not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup qr code")
	}
	return qr, nil
}

func (s *service) loadOwned(ctx context.Context, actor auth.Actor, productID uuid.UUID) (*models.QRCode, error) {
	product, err := s.loadProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(product.ProducerID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "product belongs to another producer")
	}
	return s.load(ctx, productID)
}
