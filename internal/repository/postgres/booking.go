package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/medipals/internal/apperrors"
	"github.com/nkiryanov/medipals/internal/models"
	"github.com/nkiryanov/medipals/internal/repository"
)

type BookingRepo struct {
	DB DBTX
}

const bookingColumns = `id, created_at, updated_at, lesson_id, payer_id, tutor_id, lesson_date, time_of_lesson,
	price, status, is_paid, proof_of_delivery, rating, feedback`

const createBooking = `-- name: CreateBooking
INSERT INTO bookings (id, created_at, updated_at, lesson_id, payer_id, tutor_id, lesson_date, time_of_lesson, price, status, is_paid)
VALUES ($1, $2, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + bookingColumns

func (r *BookingRepo) CreateBooking(ctx context.Context, b models.Booking) (models.Booking, error) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}

	rows, _ := r.DB.Query(ctx, createBooking,
		b.ID, b.CreatedAt, b.LessonID, b.PayerID, b.TutorID, b.LessonDate, b.TimeOfLesson, b.Price, b.Status, b.IsPaid,
	)
	created, err := pgx.CollectOneRow(rows, rowToBooking)

	switch code, constraint := pgErrorCode(err); {
	case err == nil:
		return created, nil
	case code == pgerrcode.ForeignKeyViolation && constraint == "bookings_lesson_id_fkey":
		return created, apperrors.ErrLessonNotFound
	case code == pgerrcode.ForeignKeyViolation:
		return created, apperrors.ErrUserNotFound
	default:
		return created, fmt.Errorf("db error: %w", err)
	}
}

const getBooking = `-- name: GetBooking
SELECT ` + bookingColumns + ` FROM bookings
WHERE id = $1
`

func (r *BookingRepo) GetBooking(ctx context.Context, id uuid.UUID, lock bool) (models.Booking, error) {
	rows, _ := r.DB.Query(ctx, forUpdate(getBooking, lock), id)
	return collectBooking(rows)
}

const listBookings = `-- name: ListBookings
SELECT ` + bookingColumns + ` FROM bookings
WHERE (payer_id = $1 OR tutor_id = $1)
  AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
ORDER BY created_at DESC, id
LIMIT NULLIF($3, 0)
`

func (r *BookingRepo) ListBookings(ctx context.Context, opts repository.ListBookingsOpts) ([]models.Booking, error) {
	statuses := make([]string, 0, len(opts.Statuses))
	for _, s := range opts.Statuses {
		statuses = append(statuses, string(s))
	}

	rows, _ := r.DB.Query(ctx, listBookings, opts.ParticipantID, statuses, opts.Limit)
	bookings, err := pgx.CollectRows(rows, rowToBooking)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return bookings, nil
}

// Guarded by the current status: concurrent transitions of the same booking can't both win
const updateStatus = `-- name: UpdateBookingStatus
UPDATE bookings
SET status = $3, updated_at = now()
WHERE id = $1 AND status = $2
RETURNING ` + bookingColumns

func (r *BookingRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from models.BookingStatus, to models.BookingStatus) (models.Booking, error) {
	rows, _ := r.DB.Query(ctx, updateStatus, id, from, to)
	booking, err := collectBooking(rows)

	if errors.Is(err, apperrors.ErrBookingNotFound) {
		return r.explainMiss(ctx, id, apperrors.ErrInvalidTransition)
	}
	return booking, err
}

const setProof = `-- name: SetBookingProof
UPDATE bookings
SET proof_of_delivery = $2, updated_at = now()
WHERE id = $1
RETURNING ` + bookingColumns

func (r *BookingRepo) SetProof(ctx context.Context, id uuid.UUID, proof string) (models.Booking, error) {
	rows, _ := r.DB.Query(ctx, setProof, id, proof)
	return collectBooking(rows)
}

const markPaid = `-- name: MarkBookingPaid
UPDATE bookings
SET is_paid = true,
    status = CASE WHEN status = 'UNPAID' THEN 'PENDING' ELSE status END,
    updated_at = now()
WHERE id = $1 AND is_paid = false
RETURNING ` + bookingColumns

func (r *BookingRepo) MarkPaid(ctx context.Context, id uuid.UUID) (models.Booking, error) {
	rows, _ := r.DB.Query(ctx, markPaid, id)
	booking, err := collectBooking(rows)

	if errors.Is(err, apperrors.ErrBookingNotFound) {
		return r.explainMiss(ctx, id, apperrors.ErrAlreadyPaid)
	}
	return booking, err
}

const setRating = `-- name: SetBookingRating
UPDATE bookings
SET rating = $2, feedback = $3, updated_at = now()
WHERE id = $1 AND rating IS NULL
RETURNING ` + bookingColumns

func (r *BookingRepo) SetRating(ctx context.Context, id uuid.UUID, rating models.Rating) (models.Booking, error) {
	rows, _ := r.DB.Query(ctx, setRating, id, rating.Value, rating.Feedback)
	booking, err := collectBooking(rows)

	if errors.Is(err, apperrors.ErrBookingNotFound) {
		return r.explainMiss(ctx, id, apperrors.ErrAlreadyRated)
	}
	return booking, err
}

// explainMiss tells apart a missing booking from a conditional update that matched nothing
func (r *BookingRepo) explainMiss(ctx context.Context, id uuid.UUID, conflict error) (models.Booking, error) {
	booking, err := r.GetBooking(ctx, id, false)
	if err != nil {
		return booking, err
	}
	return booking, conflict
}

func collectBooking(rows pgx.Rows) (models.Booking, error) {
	booking, err := pgx.CollectOneRow(rows, rowToBooking)

	switch {
	case err == nil:
		return booking, nil
	case errors.Is(err, pgx.ErrNoRows):
		return booking, apperrors.ErrBookingNotFound
	default:
		return booking, fmt.Errorf("db error: %w", err)
	}
}

func rowToBooking(row pgx.CollectableRow) (models.Booking, error) {
	var (
		b        models.Booking
		rating   *int
		feedback *string
	)
	err := row.Scan(
		&b.ID, &b.CreatedAt, &b.UpdatedAt, &b.LessonID, &b.PayerID, &b.TutorID, &b.LessonDate, &b.TimeOfLesson,
		&b.Price, &b.Status, &b.IsPaid, &b.ProofOfDelivery, &rating, &feedback,
	)
	if rating != nil {
		b.Rating = &models.Rating{Value: *rating}
		if feedback != nil {
			b.Rating.Feedback = *feedback
		}
	}
	return b, err
}
