package certificates

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tastecert-backend/pkg/auth"
	"github.com/angelmondragon/tastecert-backend/pkg/clock"
	"github.com/angelmondragon/tastecert-backend/pkg/db"
	"github.com/angelmondragon/tastecert-backend/pkg/db/models"
	"github.com/angelmondragon/tastecert-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tastecert-backend/pkg/errors"
	"github.com/angelmondragon/tastecert-backend/pkg/logger"
	"github.com/angelmondragon/tastecert-backend/pkg/metrics"
	"github.com/angelmondragon/tastecert-backend/pkg/outbox"
	"github.com/angelmondragon/tastecert-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/tastecert-backend/pkg/pagination"
	"github.com/angelmondragon/tastecert-backend/pkg/storage"
)

const (
	defaultCacheTTL   = 5 * time.Minute
	defaultIssuerName = "TasteCert"
	cacheScope        = "certificate"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type verificationCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CacheKey(scope, id string) string
}

// Service manages awarded certificates and their rendered artifacts.
type Service interface {
	Create(ctx context.Context, actor auth.Actor, input CreateInput) (*CertificateDTO, error)
	Get(ctx context.Context, actor auth.Actor, ref string) (*CertificateDTO, error)
	List(ctx context.Context, params ListParams) (*pagination.Page[CertificateDTO], error)
	SetPublished(ctx context.Context, id uuid.UUID, published bool) (*CertificateDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Render(ctx context.Context, id uuid.UUID) (*CertificateDTO, error)
	OpenPDF(ctx context.Context, actor auth.Actor, ref string) (io.ReadCloser, string, error)
	Export(ctx context.Context, w io.Writer, year *int) error
	Verify(ctx context.Context, ref string) (*VerificationDTO, error)
}

type ServiceParams struct {
	DB            txRunner
	Repo          *Repository
	Allocator     *Allocator
	Outbox        outbox.Emitter
	Store         storage.Store
	Cache         verificationCache
	Metrics       *metrics.DomainMetrics
	Logger        *logger.Logger
	APIBaseURL    string
	PublicBaseURL string
	IssuerName    string
	CacheTTL      time.Duration
	Clock         clock.Clock
}

type service struct {
	db            txRunner
	repo          *Repository
	allocator     *Allocator
	outbox        outbox.Emitter
	store         storage.Store
	cache         verificationCache
	metrics       *metrics.DomainMetrics
	logg          *logger.Logger
	apiBaseURL    string
	publicBaseURL string
	issuerName    string
	cacheTTL      time.Duration
	now           func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("certificate repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("object store required")
	}
	clk := params.Clock
	if clk == nil {
		clk = clock.NewRealClock()
	}
	allocator := params.Allocator
	if allocator == nil {
		allocator = NewAllocator(clk)
	}
	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	issuer := strings.TrimSpace(params.IssuerName)
	if issuer == "" {
		issuer = defaultIssuerName
	}
	return &service{
		db:            params.DB,
		repo:          params.Repo,
		allocator:     allocator,
		outbox:        params.Outbox,
		store:         params.Store,
		cache:         params.Cache,
		metrics:       params.Metrics,
		logg:          params.Logger,
		apiBaseURL:    strings.TrimRight(params.APIBaseURL, "/"),
		publicBaseURL: strings.TrimRight(params.PublicBaseURL, "/"),
		issuerName:    issuer,
		cacheTTL:      ttl,
		now:           clk.Now,
	}, nil
}

// Create assigns an award to a scored product. The PDF is rendered after
// commit; a render failure leaves pdf_key empty for a later retry.
func (s *service) Create(ctx context.Context, actor auth.Actor, input CreateInput) (*CertificateDTO, error) {
	if !input.AwardTier.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid award tier").
			WithDetails(map[string]any{"award_tier": input.AwardTier})
	}
	published := true
	if input.IsPublished != nil {
		published = *input.IsPublished
	}
	issuedAt := s.now()
	if input.IssuedAt != nil && !input.IssuedAt.IsZero() {
		issuedAt = input.IssuedAt.UTC()
	}

	var certificateID uuid.UUID
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		product, err := repo.FindProduct(ctx, input.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup product")
		}

		evaluation, err := repo.FindEvaluation(ctx, product.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeDependencyMissing, "product has not been evaluated")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup evaluation")
		}

		exists, err := repo.ExistsForProduct(ctx, product.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup certificate")
		}
		if exists {
			return pkgerrors.New(pkgerrors.CodeConflict, "product already has a certificate")
		}
		if !product.Status.CanTransitionTo(enums.ProductStatusCertified) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "product cannot be certified").
				WithDetails(map[string]any{"status": product.Status})
		}

		var number string
		if input.CertificateNumber != nil && strings.TrimSpace(*input.CertificateNumber) != "" {
			number, err = s.allocator.Reserve(ctx, tx, *input.CertificateNumber)
		} else {
			number, err = s.allocator.Next(ctx, tx)
		}
		if err != nil {
			return err
		}

		certificate := &models.Certificate{
			ProductID:         product.ID,
			CertificateNumber: number,
			AwardTier:         input.AwardTier,
			Score:             evaluation.OverallScore,
			IsPublished:       published,
			IssuedAt:          issuedAt,
			IssuedBy:          actor.UserID,
		}
		if err := repo.Create(ctx, certificate); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "certificate already exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create certificate")
		}
		if err := repo.SetProductStatus(ctx, product.ID, enums.ProductStatusCertified); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product status")
		}

		err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCertificateIssued,
			AggregateType: enums.AggregateCertificate,
			AggregateID:   certificate.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)},
			Data: payloads.CertificateIssuedEvent{
				CertificateID:     certificate.ID,
				CertificateNumber: number,
				ProductID:         product.ID,
				ProducerID:        product.ProducerID,
				ProductName:       product.Name,
				AwardTier:         certificate.AwardTier,
				Score:             certificate.Score,
				IssuedAt:          certificate.IssuedAt,
			},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit certificate_issued")
		}
		certificateID = certificate.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncCertificateIssued(string(input.AwardTier))

	certificate, err := s.load(ctx, certificateID)
	if err != nil {
		return nil, err
	}
	if err := s.renderAndStore(ctx, certificate); err != nil && s.logg != nil {
		logCtx := s.logg.WithField(ctx, "certificate_number", certificate.CertificateNumber)
		s.logg.Error(logCtx, "certificate pdf render failed", err)
	}
	dto := s.toDTO(certificate)
	return &dto, nil
}

func (s *service) Get(ctx context.Context, actor auth.Actor, ref string) (*CertificateDTO, error) {
	certificate, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, certificate); err != nil {
		return nil, err
	}
	dto := s.toDTO(certificate)
	return &dto, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*pagination.Page[CertificateDTO], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if params.Year != nil && (*params.Year < 1000 || *params.Year > 9999) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "year must have four digits")
	}
	rows, err := s.repo.List(ctx, listQuery{
		year:      params.Year,
		published: params.Published,
		limit:     pagination.LimitWithBuffer(params.Limit),
		cursor:    cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list certificates")
	}
	items := make([]CertificateDTO, len(rows))
	for i := range rows {
		items[i] = s.toDTO(&rows[i])
	}
	page := pagination.BuildPage(items, params.Limit, func(c CertificateDTO) pagination.Cursor {
		return pagination.Cursor{CreatedAt: c.CreatedAt, ID: c.ID}
	})
	return &page, nil
}

func (s *service) SetPublished(ctx context.Context, id uuid.UUID, published bool) (*CertificateDTO, error) {
	certificate, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetPublished(ctx, id, published); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update certificate")
	}
	certificate.IsPublished = published
	s.invalidate(ctx, certificate)
	dto := s.toDTO(certificate)
	return &dto, nil
}

// Delete revokes the certificate together with the product's QR code and
// returns the product to scored. Files are removed after commit.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	var (
		certificate *models.Certificate
		qrKey       *string
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "certificate not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup certificate")
		}
		qrKey, err = repo.DeleteQRCode(ctx, found.ProductID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete qr code")
		}
		if err := repo.Delete(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete certificate")
		}
		if err := repo.SetProductStatus(ctx, found.ProductID, enums.ProductStatusScored); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product status")
		}
		certificate = found
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, certificate)
	for _, key := range []*string{qrKey, certificate.PDFKey} {
		if key == nil {
			continue
		}
		if err := s.store.Delete(ctx, *key); err != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "key", *key), "certificate asset cleanup failed")
		}
	}
	return nil
}

func (s *service) Render(ctx context.Context, id uuid.UUID) (*CertificateDTO, error) {
	certificate, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.renderAndStore(ctx, certificate); err != nil {
		return nil, err
	}
	dto := s.toDTO(certificate)
	return &dto, nil
}

// OpenPDF streams the rendered certificate. Callers must close the reader.
func (s *service) OpenPDF(ctx context.Context, actor auth.Actor, ref string) (io.ReadCloser, string, error) {
	certificate, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, "", err
	}
	if err := authorize(actor, certificate); err != nil {
		return nil, "", err
	}
	if certificate.PDFKey == nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeDependencyMissing, "certificate pdf has not been rendered")
	}
	rc, err := s.store.Open(ctx, *certificate.PDFKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, "", pkgerrors.New(pkgerrors.CodeNotFound, "certificate pdf file missing")
		}
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeIOFailure, err, "open certificate pdf")
	}
	return rc, certificate.CertificateNumber + ".pdf", nil
}

// Verify is the public lookup. Only published certificates are visible.
func (s *service) Verify(ctx context.Context, ref string) (*VerificationDTO, error) {
	ref = normalizeRef(ref)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "certificate reference is required")
	}

	var cached VerificationDTO
	if s.cache != nil {
		hit, err := s.cache.GetJSON(ctx, s.cache.CacheKey(cacheScope, ref), &cached)
		if err != nil {
			s.warn(ctx, "verification cache read failed", err)
		} else if hit {
			return &cached, nil
		}
	}

	certificate, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !certificate.IsPublished {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "certificate not found")
	}

	out := s.toVerification(certificate)
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, s.cache.CacheKey(cacheScope, ref), out, s.cacheTTL); err != nil {
			s.warn(ctx, "verification cache write failed", err)
		}
	}
	return &out, nil
}

func (s *service) invalidate(ctx context.Context, certificate *models.Certificate) {
	if s.cache == nil || certificate == nil {
		return
	}
	keys := []string{
		s.cache.CacheKey(cacheScope, certificate.ID.String()),
		s.cache.CacheKey(cacheScope, certificate.CertificateNumber),
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.warn(ctx, "verification cache invalidation failed", err)
	}
}

func (s *service) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), msg)
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Certificate, error) {
	certificate, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "certificate not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup certificate")
	}
	return certificate, nil
}

// resolve accepts either the internal id or the certificate number.
func (s *service) resolve(ctx context.Context, ref string) (*models.Certificate, error) {
	ref = normalizeRef(ref)
	if id, err := uuid.Parse(ref); err == nil {
		return s.load(ctx, id)
	}
	if !ValidNumber(ref) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "certificate not found")
	}
	certificate, err := s.repo.FindByNumber(ctx, ref)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "certificate not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup certificate")
	}
	return certificate, nil
}

func (s *service) verificationURL(number string) string {
	return s.publicBaseURL + "/verify/" + number
}

func authorize(actor auth.Actor, certificate *models.Certificate) error {
	if actor.IsAdmin() {
		return nil
	}
	if certificate.Product == nil || !actor.CanAccess(certificate.Product.ProducerID) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "certificate belongs to another producer")
	}
	return nil
}

func normalizeRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(strings.ToUpper(ref), numberPrefix+"-") {
		return strings.ToUpper(ref)
	}
	return strings.ToLower(ref)
}
