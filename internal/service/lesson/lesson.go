package lesson

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/medipals/internal/apperrors"
	"github.com/nkiryanov/medipals/internal/models"
	"github.com/nkiryanov/medipals/internal/repository"
	"github.com/nkiryanov/medipals/internal/service/ledger"
	"github.com/nkiryanov/medipals/internal/service/validate"
)

var (
	minPrice = decimal.NewFromInt(1)
	maxPrice = decimal.NewFromInt(10000)
)

type Params struct {
	Subject     string          `json:"subject" validate:"required,max=100"`
	Topic       string          `json:"topic" validate:"required,max=200"`
	Description string          `json:"description" validate:"required,min=10,max=500"`
	Price       decimal.Decimal `json:"price"`
	StartDate   string          `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string          `json:"end_date" validate:"required,datetime=2006-01-02"`
}

func (p Params) validate() error {
	if err := validate.Struct(p); err != nil {
		return err
	}

	switch {
	case p.Price.LessThan(minPrice) || p.Price.GreaterThan(maxPrice):
		return apperrors.NewValidationError("price", "Price must be between 1 and 10000")
	case ledger.ValidAmount(p.Price) != nil:
		return apperrors.NewValidationError("price", "Price must have at most 2 decimal places")
	case p.EndDate < p.StartDate:
		return apperrors.NewValidationError("end_date", "End date must not be before start date")
	default:
		return nil
	}
}

type LessonService struct {
	storage repository.Storage
}

func NewService(storage repository.Storage) *LessonService {
	return &LessonService{storage: storage}
}

// Create offers a new lesson, only tutors may do it
func (s *LessonService) Create(ctx context.Context, tutor models.User, p Params) (models.Lesson, error) {
	if tutor.Role != models.RoleTutor {
		return models.Lesson{}, apperrors.ErrNotTutor
	}
	if err := p.validate(); err != nil {
		return models.Lesson{}, err
	}

	return s.storage.Lesson().CreateLesson(ctx, models.Lesson{
		TutorID:     tutor.ID,
		Subject:     p.Subject,
		Topic:       p.Topic,
		Description: p.Description,
		Price:       p.Price,
		StartDate:   p.StartDate,
		EndDate:     p.EndDate,
	})
}

func (s *LessonService) Get(ctx context.Context, id uuid.UUID) (models.Lesson, error) {
	return s.storage.Lesson().GetLesson(ctx, id)
}

// List returns active offers, of the tutor only if tutorID is set
func (s *LessonService) List(ctx context.Context, tutorID uuid.UUID) ([]models.Lesson, error) {
	return s.storage.Lesson().ListLessons(ctx, repository.ListLessonsOpts{TutorID: tutorID, ActiveOnly: true})
}

func (s *LessonService) Update(ctx context.Context, tutorID uuid.UUID, id uuid.UUID, p Params) (models.Lesson, error) {
	if err := p.validate(); err != nil {
		return models.Lesson{}, err
	}

	return s.storage.Lesson().UpdateLesson(ctx, models.Lesson{
		ID:          id,
		TutorID:     tutorID,
		Subject:     p.Subject,
		Topic:       p.Topic,
		Description: p.Description,
		Price:       p.Price,
		StartDate:   p.StartDate,
		EndDate:     p.EndDate,
	})
}

// Delete withdraws the offer, existing bookings are kept
func (s *LessonService) Delete(ctx context.Context, tutorID uuid.UUID, id uuid.UUID) error {
	return s.storage.Lesson().DeactivateLesson(ctx, tutorID, id)
}
