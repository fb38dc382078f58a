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

type LessonRepo struct {
	DB DBTX
}

const lessonColumns = `id, created_at, updated_at, tutor_id, subject, topic, description, price, start_date, end_date, active`

const createLesson = `-- name: CreateLesson
INSERT INTO lessons (id, created_at, updated_at, tutor_id, subject, topic, description, price, start_date, end_date, active)
VALUES ($1, $2, $2, $3, $4, $5, $6, $7, $8, $9, true)
RETURNING ` + lessonColumns

func (r *LessonRepo) CreateLesson(ctx context.Context, l models.Lesson) (models.Lesson, error) {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}

	rows, _ := r.DB.Query(ctx, createLesson,
		l.ID, l.CreatedAt, l.TutorID, l.Subject, l.Topic, l.Description, l.Price, l.StartDate, l.EndDate,
	)
	created, err := pgx.CollectOneRow(rows, rowToLesson)

	switch code, _ := pgErrorCode(err); {
	case err == nil:
		return created, nil
	case code == pgerrcode.ForeignKeyViolation:
		return created, apperrors.ErrUserNotFound
	default:
		return created, fmt.Errorf("db error: %w", err)
	}
}

const getLesson = `-- name: GetLesson
SELECT ` + lessonColumns + ` FROM lessons
WHERE id = $1
`

func (r *LessonRepo) GetLesson(ctx context.Context, id uuid.UUID) (models.Lesson, error) {
	rows, _ := r.DB.Query(ctx, getLesson, id)
	return collectLesson(rows)
}

const listLessons = `-- name: ListLessons
SELECT ` + lessonColumns + ` FROM lessons
WHERE ($1::uuid IS NULL OR tutor_id = $1)
  AND (NOT $2 OR active)
ORDER BY created_at DESC, id
LIMIT NULLIF($3, 0)
`

func (r *LessonRepo) ListLessons(ctx context.Context, opts repository.ListLessonsOpts) ([]models.Lesson, error) {
	var tutorID *uuid.UUID
	if opts.TutorID != uuid.Nil {
		tutorID = &opts.TutorID
	}

	rows, _ := r.DB.Query(ctx, listLessons, tutorID, opts.ActiveOnly, opts.Limit)
	lessons, err := pgx.CollectRows(rows, rowToLesson)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return lessons, nil
}

const updateLesson = `-- name: UpdateLesson
UPDATE lessons
SET subject = $3, topic = $4, description = $5, price = $6, start_date = $7, end_date = $8, updated_at = now()
WHERE id = $1 AND tutor_id = $2 AND active
RETURNING ` + lessonColumns

// UpdateLesson changes an active lesson of the tutor, bookings made earlier keep their price
func (r *LessonRepo) UpdateLesson(ctx context.Context, l models.Lesson) (models.Lesson, error) {
	rows, _ := r.DB.Query(ctx, updateLesson,
		l.ID, l.TutorID, l.Subject, l.Topic, l.Description, l.Price, l.StartDate, l.EndDate,
	)
	return collectLesson(rows)
}

const deactivateLesson = `-- name: DeactivateLesson
UPDATE lessons
SET active = false, updated_at = now()
WHERE id = $1 AND tutor_id = $2 AND active
`

func (r *LessonRepo) DeactivateLesson(ctx context.Context, tutorID uuid.UUID, id uuid.UUID) error {
	tag, err := r.DB.Exec(ctx, deactivateLesson, id, tutorID)

	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrLessonNotFound
	default:
		return nil
	}
}

func collectLesson(rows pgx.Rows) (models.Lesson, error) {
	lesson, err := pgx.CollectOneRow(rows, rowToLesson)

	switch {
	case err == nil:
		return lesson, nil
	case errors.Is(err, pgx.ErrNoRows):
		return lesson, apperrors.ErrLessonNotFound
	default:
		return lesson, fmt.Errorf("db error: %w", err)
	}
}

func rowToLesson(row pgx.CollectableRow) (models.Lesson, error) {
	var l models.Lesson
	err := row.Scan(
		&l.ID, &l.CreatedAt, &l.UpdatedAt, &l.TutorID, &l.Subject, &l.Topic, &l.Description, &l.Price,
		&l.StartDate, &l.EndDate, &l.Active,
	)
	return l, err
}
