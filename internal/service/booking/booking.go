package booking

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/medipals/internal/apperrors"
	"github.com/nkiryanov/medipals/internal/logger"
	"github.com/nkiryanov/medipals/internal/models"
	"github.com/nkiryanov/medipals/internal/repository"
	"github.com/nkiryanov/medipals/internal/service/validate"
)

type notifier interface {
	Emit(ctx context.Context, userID uuid.UUID, msg models.Message) (uuid.UUID, error)
}

// Tutor and price are taken from the lesson
type CreateParams struct {
	LessonID     uuid.UUID `json:"lesson_id" validate:"required"`
	LessonDate   string    `json:"lesson_date" validate:"required,datetime=2006-01-02"`
	TimeOfLesson string    `json:"time_of_lesson" validate:"required,oneof=Morning Afternoon Evening"`

	// Booking waits in UNPAID until paid when set
	AwaitPayment bool `json:"await_payment"`
}

type RatingParams struct {
	Rating   int    `json:"rating" validate:"required,min=1,max=5"`
	Feedback string `json:"feedback" validate:"max=2000"`
}

type BookingService struct {
	storage  repository.Storage
	notifier notifier
	logger   logger.Logger
}

func NewService(storage repository.Storage, notifier notifier, l logger.Logger) *BookingService {
	return &BookingService{storage: storage, notifier: notifier, logger: l}
}

func (s *BookingService) Create(ctx context.Context, payerID uuid.UUID, p CreateParams) (models.Booking, error) {
	var booking models.Booking

	if err := validate.Struct(p); err != nil {
		return booking, err
	}

	lesson, err := s.storage.Lesson().GetLesson(ctx, p.LessonID)
	switch {
	case err != nil:
		return booking, err
	case !lesson.Active:
		return booking, apperrors.NewValidationError("lesson_id", "Lesson is not offered anymore")
	case lesson.TutorID == payerID:
		return booking, apperrors.NewValidationError("lesson_id", "You can't book your own lesson")
	case p.LessonDate < lesson.StartDate || p.LessonDate > lesson.EndDate:
		return booking, apperrors.NewValidationError("lesson_date", fmt.Sprintf("Lesson is offered from %s to %s", lesson.StartDate, lesson.EndDate))
	}

	status := models.BookingStatusPending
	if p.AwaitPayment {
		status = models.BookingStatusUnpaid
	}

	booking, err = s.storage.Booking().CreateBooking(ctx, models.Booking{
		LessonID:     p.LessonID,
		PayerID:      payerID,
		TutorID:      lesson.TutorID,
		LessonDate:   p.LessonDate,
		TimeOfLesson: p.TimeOfLesson,
		Price:        lesson.Price,
		Status:       status,
	})
	if err != nil {
		return booking, err
	}

	if status == models.BookingStatusPending {
		s.notify(ctx, booking, booking.TutorID, models.NotificationAction, models.TitleBookingReceived,
			fmt.Sprintf("You have a new booking request for %s (%s)", booking.LessonDate, booking.TimeOfLesson))
	}
	return booking, nil
}

// Get returns the booking to its participants and system actors only
func (s *BookingService) Get(ctx context.Context, id uuid.UUID, actor Actor) (models.Booking, error) {
	booking, err := s.storage.Booking().GetBooking(ctx, id, false)
	switch {
	case err != nil:
		return booking, err
	case !actor.canSee(booking):
		return models.Booking{}, apperrors.ErrBookingNotFound
	default:
		return booking, nil
	}
}

// List returns bookings where the user is payer or tutor, newest first
func (s *BookingService) List(ctx context.Context, userID uuid.UUID, statuses ...models.BookingStatus) ([]models.Booking, error) {
	for _, st := range statuses {
		if !st.Valid() {
			return nil, apperrors.NewValidationError("status", fmt.Sprintf("Unknown booking status %q", st))
		}
	}
	return s.storage.Booking().ListBookings(ctx, repository.ListBookingsOpts{ParticipantID: userID, Statuses: statuses})
}

// Transition moves the booking along its lifecycle and notifies the other party
// Notification failure never undoes the transition
func (s *BookingService) Transition(ctx context.Context, id uuid.UUID, to models.BookingStatus, actor Actor) (models.Booking, error) {
	booking, err := s.Get(ctx, id, actor)
	if err != nil {
		return booking, err
	}
	if err := check(booking, to, actor); err != nil {
		return booking, err
	}

	updated, err := s.storage.Booking().UpdateStatus(ctx, id, booking.Status, to)
	if err != nil {
		return updated, err
	}

	s.notifyTransition(ctx, updated, actor)
	return updated, nil
}

// AddProof stores proof of delivery and moves the booking to DELIVERED
func (s *BookingService) AddProof(ctx context.Context, id uuid.UUID, proof string, actor Actor) (models.Booking, error) {
	if proof == "" {
		return models.Booking{}, apperrors.NewValidationError("proof", "This field is required")
	}

	booking, err := s.Get(ctx, id, actor)
	if err != nil {
		return booking, err
	}
	if err := check(booking, models.BookingStatusDelivered, actor); err != nil {
		return booking, err
	}

	var updated models.Booking
	err = s.storage.InTx(ctx, func(st repository.Storage) error {
		if _, err := st.Booking().SetProof(ctx, id, proof); err != nil {
			return err
		}

		var err error
		updated, err = st.Booking().UpdateStatus(ctx, id, booking.Status, models.BookingStatusDelivered)
		return err
	})
	if err != nil {
		return updated, err
	}

	s.notifyTransition(ctx, updated, actor)
	return updated, nil
}

// AttachRating lets the payer rate a delivered or completed lesson once
// The tutor rating aggregate is updated in the same transaction
func (s *BookingService) AttachRating(ctx context.Context, id uuid.UUID, p RatingParams, actor Actor) (models.Booking, error) {
	if err := validate.Struct(p); err != nil {
		return models.Booking{}, err
	}

	booking, err := s.Get(ctx, id, actor)
	switch {
	case err != nil:
		return booking, err
	case !actor.System && actor.UserID != booking.PayerID:
		return booking, apperrors.ErrActorNotAllowed
	case booking.Rating != nil:
		return booking, apperrors.ErrAlreadyRated
	case !booking.Status.Rateable():
		return booking, apperrors.ErrBookingNotRateable
	}

	var rated models.Booking
	err = s.storage.InTx(ctx, func(st repository.Storage) error {
		var err error

		rated, err = st.Booking().SetRating(ctx, id, models.Rating{Value: p.Rating, Feedback: p.Feedback})
		if err != nil {
			return err
		}

		_, err = st.User().AddRating(ctx, rated.TutorID, p.Rating)
		return err
	})

	return rated, err
}

// MarkPaid sets the paid flag once, a booking awaiting payment becomes PENDING
// This is the only way out of UNPAID
func (s *BookingService) MarkPaid(ctx context.Context, id uuid.UUID) (models.Booking, error) {
	before, err := s.storage.Booking().GetBooking(ctx, id, false)
	if err != nil {
		return before, err
	}

	booking, err := s.storage.Booking().MarkPaid(ctx, id)
	if err != nil {
		return booking, err
	}

	if before.Status == models.BookingStatusUnpaid {
		s.notifyTransition(ctx, booking, SystemActor)
	}
	return booking, nil
}

func check(b models.Booking, to models.BookingStatus, actor Actor) error {
	switch {
	case !to.Valid() || !CanTransition(b.Status, to):
		return fmt.Errorf("%w: %s to %s", apperrors.ErrInvalidTransition, b.Status, to)
	case !allowed(b, to, actor):
		return apperrors.ErrActorNotAllowed
	default:
		return nil
	}
}

func (s *BookingService) notifyTransition(ctx context.Context, b models.Booking, actor Actor) {
	when := fmt.Sprintf("%s (%s)", b.LessonDate, b.TimeOfLesson)

	switch b.Status {
	case models.BookingStatusPending:
		s.notify(ctx, b, b.TutorID, models.NotificationAction, models.TitleBookingReceived, "You have a new booking request for "+when)
	case models.BookingStatusAccepted:
		s.notify(ctx, b, b.PayerID, models.NotificationInfo, models.TitleBookingAccepted, "Your booking for "+when+" was accepted")
	case models.BookingStatusRejected:
		s.notify(ctx, b, b.PayerID, models.NotificationInfo, models.TitleBookingRejected, "Your booking for "+when+" was rejected")
	case models.BookingStatusDelivered:
		s.notify(ctx, b, b.PayerID, models.NotificationAction, models.TitleBookingDelivered, "Your lesson on "+when+" was delivered, please leave feedback")
	case models.BookingStatusCompleted:
		recipient := b.PayerID
		if actor.UserID == b.PayerID {
			recipient = b.TutorID
		}
		s.notify(ctx, b, recipient, models.NotificationInfo, models.TitleBookingCompleted, "The lesson on "+when+" is completed")
	}
}

func (s *BookingService) notify(ctx context.Context, b models.Booking, userID uuid.UUID, kind models.NotificationType, title, text string) {
	_, err := s.notifier.Emit(ctx, userID, models.Message{Type: kind, Title: title, Text: text})
	if err != nil {
		s.logger.Warn("Failed to emit booking notification", "booking_id", b.ID, "user_id", userID, "title", title, "error", err)
	}
}
