package evaluations

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tastecert-backend/pkg/auth"
	"github.com/angelmondragon/tastecert-backend/pkg/db/models"
	"github.com/angelmondragon/tastecert-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tastecert-backend/pkg/errors"
	"github.com/angelmondragon/tastecert-backend/pkg/outbox"
	"github.com/angelmondragon/tastecert-backend/pkg/outbox/payloads"
)

const (
	minScore = 0
	maxScore = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type Service interface {
	Save(ctx context.Context, actor auth.Actor, productID uuid.UUID, input ScoresInput) (*EvaluationDTO, error)
	Get(ctx context.Context, actor auth.Actor, productID uuid.UUID) (*EvaluationDTO, error)
}

type service struct {
	db     txRunner
	repo   *Repository
	outbox outbox.Emitter
	now    func() time.Time
}

func NewService(db txRunner, repo *Repository, emitter outbox.Emitter) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("evaluation repository required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{db: db, repo: repo, outbox: emitter, now: func() time.Time { return time.Now().UTC() }}, nil
}

// OverallScore is the mean of the component scores rounded to one decimal.
func OverallScore(scores ...float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return math.Round(sum/float64(len(scores))*10) / 10
}

// Save creates or replaces the product's evaluation and marks the product scored.
// Certified products keep their status and certificate snapshot.
func (s *service) Save(ctx context.Context, actor auth.Actor, productID uuid.UUID, input ScoresInput) (*EvaluationDTO, error) {
	components, err := validateScores(input)
	if err != nil {
		return nil, err
	}
	overall := OverallScore(components...)

	var saved *models.Evaluation
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		product, err := repo.FindProduct(ctx, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup product")
		}
		if product.Status == enums.ProductStatusRejected {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "rejected products cannot be scored")
		}

		evaluation, err := repo.FindByProductID(ctx, productID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			evaluation = &models.Evaluation{ProductID: productID}
		case err != nil:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup evaluation")
		}

		evaluation.EvaluatorID = actor.UserID
		evaluation.AppearanceScore = components[0]
		evaluation.AromaScore = components[1]
		evaluation.TasteScore = components[2]
		evaluation.TextureScore = components[3]
		evaluation.AftertasteScore = components[4]
		evaluation.OverallScore = overall
		evaluation.Notes = trimmedOrNil(input.Notes)
		evaluation.UpdatedAt = s.now()

		if evaluation.ID == uuid.Nil {
			err = repo.Create(ctx, evaluation)
		} else {
			err = repo.Update(ctx, evaluation)
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save evaluation")
		}

		if product.Status != enums.ProductStatusCertified {
			if !product.Status.CanTransitionTo(enums.ProductStatusScored) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "product cannot be scored").
					WithDetails(map[string]any{"status": product.Status})
			}
			if err := repo.SetProductStatus(ctx, productID, enums.ProductStatusScored); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product status")
			}
		}

		err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEvaluationCompleted,
			AggregateType: enums.AggregateEvaluation,
			AggregateID:   evaluation.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)},
			Data: payloads.EvaluationCompletedEvent{
				EvaluationID: evaluation.ID,
				ProductID:    product.ID,
				ProducerID:   product.ProducerID,
				ProductName:  product.Name,
				OverallScore: overall,
			},
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit evaluation_completed")
		}
		saved = evaluation
		return nil
	})
	if err != nil {
		return nil, err
	}
	return FromModel(saved), nil
}

func (s *service) Get(ctx context.Context, actor auth.Actor, productID uuid.UUID) (*EvaluationDTO, error) {
	product, err := s.repo.FindProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup product")
	}
	if !actor.CanAccess(product.ProducerID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "product belongs to another producer")
	}

	evaluation, err := s.repo.FindByProductID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "evaluation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup evaluation")
	}
	return FromModel(evaluation), nil
}

func validateScores(input ScoresInput) ([]float64, error) {
	fields := []struct {
		name  string
		value *float64
	}{
		{"appearance_score", input.Appearance},
		{"aroma_score", input.Aroma},
		{"taste_score", input.Taste},
		{"texture_score", input.Texture},
		{"aftertaste_score", input.Aftertaste},
	}
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		if f.value == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, f.name+" is required")
		}
		v := *f.value
		if math.IsNaN(v) || v < minScore || v > maxScore {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, f.name+" must be between 0 and 10").
				WithDetails(map[string]any{"field": f.name, "value": v})
		}
		out = append(out, v)
	}
	return out, nil
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
