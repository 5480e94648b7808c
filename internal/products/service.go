package products

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
	"github.com/angelmondragon/tastecert-backend/pkg/db/models"
	"github.com/angelmondragon/tastecert-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tastecert-backend/pkg/errors"
	"github.com/angelmondragon/tastecert-backend/pkg/logger"
	"github.com/angelmondragon/tastecert-backend/pkg/outbox"
	"github.com/angelmondragon/tastecert-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/tastecert-backend/pkg/pagination"
	"github.com/angelmondragon/tastecert-backend/pkg/storage"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service manages producer submissions and their review lifecycle.
type Service interface {
	Create(ctx context.Context, actor auth.Actor, input CreateInput) (*ProductDTO, error)
	List(ctx context.Context, actor auth.Actor, params ListParams) (*pagination.Page[ProductDTO], error)
	Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*ProductDTO, error)
	Update(ctx context.Context, actor auth.Actor, id uuid.UUID, input UpdateInput) (*ProductDTO, error)
	Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error
	StartReview(ctx context.Context, id uuid.UUID) (*ProductDTO, error)
	Reject(ctx context.Context, id uuid.UUID, input RejectInput) (*ProductDTO, error)
	UploadImage(ctx context.Context, actor auth.Actor, id uuid.UUID, r io.Reader) (*ProductDTO, error)
	OpenImage(ctx context.Context, id uuid.UUID) (io.ReadCloser, error)
}

type ServiceParams struct {
	DB           txRunner
	Repo         *Repository
	Outbox       outbox.Emitter
	Store        storage.Store
	APIBaseURL   string
	ImageMaxEdge int
	MaxImageSize int64
	Logger       *logger.Logger
}

type service struct {
	db           txRunner
	repo         *Repository
	outbox       outbox.Emitter
	store        storage.Store
	apiBaseURL   string
	imageMaxEdge int
	maxImageSize int64
	logg         *logger.Logger
	now          func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("object store required")
	}
	maxEdge := params.ImageMaxEdge
	if maxEdge <= 0 {
		maxEdge = defaultImageMaxEdge
	}
	maxSize := params.MaxImageSize
	if maxSize <= 0 {
		maxSize = defaultMaxImageSize
	}
	return &service{
		db:           params.DB,
		repo:         params.Repo,
		outbox:       params.Outbox,
		store:        params.Store,
		apiBaseURL:   params.APIBaseURL,
		imageMaxEdge: maxEdge,
		maxImageSize: maxSize,
		logg:         params.Logger,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Create(ctx context.Context, actor auth.Actor, input CreateInput) (*ProductDTO, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if input.CategoryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category_id is required")
	}

	var created *models.Product
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := ensureCategory(ctx, tx, input.CategoryID); err != nil {
			return err
		}

		product := &models.Product{
			ProducerID:  actor.UserID,
			CategoryID:  input.CategoryID,
			Name:        name,
			Brand:       trimmedOrNil(input.Brand),
			Description: trimmedOrNil(input.Description),
			Origin:      trimmedOrNil(input.Origin),
			Status:      enums.ProductStatusSubmitted,
			SubmittedAt: s.now(),
		}
		if err := repo.Create(ctx, product); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
		}

		loaded, err := repo.FindByID(ctx, product.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload product")
		}
		if err := s.emitSubmitted(ctx, tx, actor, loaded, false); err != nil {
			return err
		}
		created = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	dto := s.toDTO(created)
	return &dto, nil
}

func (s *service) List(ctx context.Context, actor auth.Actor, params ListParams) (*pagination.Page[ProductDTO], error) {
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	q := listQuery{
		status:     params.Status,
		categoryID: params.CategoryID,
		limit:      pagination.LimitWithBuffer(params.Limit),
		cursor:     cursor,
	}
	if !actor.IsAdmin() {
		producerID := actor.UserID
		q.producerID = &producerID
	}

	rows, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	items := make([]ProductDTO, len(rows))
	for i := range rows {
		items[i] = s.toDTO(&rows[i])
	}
	page := pagination.BuildPage(items, params.Limit, func(p ProductDTO) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	return &page, nil
}

func (s *service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*ProductDTO, error) {
	product, err := s.loadOwned(ctx, s.repo, actor, id)
	if err != nil {
		return nil, err
	}
	dto := s.toDTO(product)
	return &dto, nil
}

func (s *service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, input UpdateInput) (*ProductDTO, error) {
	var updated *models.Product
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		product, err := s.loadOwned(ctx, repo, actor, id)
		if err != nil {
			return err
		}
		if !product.Status.EditableByProducer() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "product can no longer be edited").
				WithDetails(map[string]any{"status": product.Status})
		}

		if input.CategoryID != nil && *input.CategoryID != product.CategoryID {
			if err := ensureCategory(ctx, tx, *input.CategoryID); err != nil {
				return err
			}
			product.CategoryID = *input.CategoryID
		}
		if input.Name != nil {
			name := strings.TrimSpace(*input.Name)
			if name == "" {
				return pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
			}
			product.Name = name
		}
		if input.Brand != nil {
			product.Brand = trimmedOrNil(input.Brand)
		}
		if input.Description != nil {
			product.Description = trimmedOrNil(input.Description)
		}
		if input.Origin != nil {
			product.Origin = trimmedOrNil(input.Origin)
		}

		resubmitted := product.Status == enums.ProductStatusRejected
		if resubmitted {
			product.Status = enums.ProductStatusSubmitted
			product.RejectionReason = nil
			product.SubmittedAt = s.now()
		}

		if err := repo.Update(ctx, product); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product")
		}
		reloaded, err := repo.FindByID(ctx, product.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload product")
		}
		if resubmitted {
			if err := s.emitSubmitted(ctx, tx, actor, reloaded, true); err != nil {
				return err
			}
		}
		updated = reloaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	dto := s.toDTO(updated)
	return &dto, nil
}

// Delete removes the product row; evaluation, certificate and qr rows cascade.
// A certified product must have its certificate revoked first.
func (s *service) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	product, err := s.loadOwned(ctx, s.repo, actor, id)
	if err != nil {
		return err
	}
	if product.Status == enums.ProductStatusCertified {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "certified products cannot be deleted")
	}
	if !actor.IsAdmin() && !product.Status.EditableByProducer() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "product is already under review")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete product")
	}

	if product.ImageKey != nil {
		if err := s.store.Delete(ctx, *product.ImageKey); err != nil && s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{"product_id": id.String(), "key": *product.ImageKey})
			s.logg.Warn(logCtx, "product image cleanup failed")
		}
	}
	return nil
}

func (s *service) StartReview(ctx context.Context, id uuid.UUID) (*ProductDTO, error) {
	return s.transition(ctx, id, enums.ProductStatusUnderReview, nil)
}

func (s *service) Reject(ctx context.Context, id uuid.UUID, input RejectInput) (*ProductDTO, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	return s.transition(ctx, id, enums.ProductStatusRejected, &reason)
}

func (s *service) transition(ctx context.Context, id uuid.UUID, next enums.ProductStatus, reason *string) (*ProductDTO, error) {
	var updated *models.Product
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		product, err := loadProduct(ctx, repo, id)
		if err != nil {
			return err
		}
		if !product.Status.CanTransitionTo(next) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "invalid status transition").
				WithDetails(map[string]any{"from": product.Status, "to": next})
		}
		if err := repo.UpdateStatus(ctx, id, next, reason); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product status")
		}
		product.Status = next
		product.RejectionReason = reason
		updated = product
		return nil
	})
	if err != nil {
		return nil, err
	}
	dto := s.toDTO(updated)
	return &dto, nil
}

func (s *service) OpenImage(ctx context.Context, id uuid.UUID) (io.ReadCloser, error) {
	product, err := loadProduct(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if product.ImageKey == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product has no image")
	}
	rc, err := s.store.Open(ctx, *product.ImageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product image not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeIOFailure, err, "open product image")
	}
	return rc, nil
}

func (s *service) loadOwned(ctx context.Context, repo *Repository, actor auth.Actor, id uuid.UUID) (*models.Product, error) {
	product, err := loadProduct(ctx, repo, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(product.ProducerID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "product belongs to another producer")
	}
	return product, nil
}

func (s *service) emitSubmitted(ctx context.Context, tx *gorm.DB, actor auth.Actor, product *models.Product, resubmission bool) error {
	event := payloads.ProductSubmittedEvent{
		ProductID:    product.ID,
		ProducerID:   product.ProducerID,
		ProductName:  product.Name,
		Resubmission: resubmission,
		SubmittedAt:  product.SubmittedAt,
	}
	if product.Category != nil {
		event.CategoryName = product.Category.Name
	}
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventProductSubmitted,
		AggregateType: enums.AggregateProduct,
		AggregateID:   product.ID,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)},
		Data:          event,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit product_submitted")
	}
	return nil
}

func loadProduct(ctx context.Context, repo *Repository, id uuid.UUID) (*models.Product, error) {
	product, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup product")
	}
	return product, nil
}

func ensureCategory(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&models.Category{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup category")
	}
	if count == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "category does not exist")
	}
	return nil
}
