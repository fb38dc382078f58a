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
)

type NotificationRepo struct {
	DB DBTX
}

const notificationColumns = `id, created_at, user_id, type, title, message, is_read`

const createNotification = `-- name: CreateNotification
INSERT INTO notifications (id, created_at, user_id, type, title, message, is_read)
VALUES ($1, $2, $3, $4, $5, $6, false)
RETURNING ` + notificationColumns

func (r *NotificationRepo) CreateNotification(ctx context.Context, n models.Notification) (models.Notification, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	rows, _ := r.DB.Query(ctx, createNotification, n.ID, n.CreatedAt, n.UserID, n.Type, n.Title, n.Text)
	created, err := pgx.CollectOneRow(rows, rowToNotification)

	switch code, _ := pgErrorCode(err); {
	case err == nil:
		return created, nil
	case code == pgerrcode.ForeignKeyViolation:
		return created, apperrors.ErrUserNotFound
	default:
		return created, fmt.Errorf("db error: %w", err)
	}
}

const listNotifications = `-- name: ListNotifications
SELECT ` + notificationColumns + ` FROM notifications
WHERE user_id = $1
ORDER BY created_at DESC, id
LIMIT $2
`

func (r *NotificationRepo) ListNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	rows, _ := r.DB.Query(ctx, listNotifications, userID, limit)
	notifications, err := pgx.CollectRows(rows, rowToNotification)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return notifications, nil
}

const markNotificationRead = `-- name: MarkNotificationRead
UPDATE notifications
SET is_read = true
WHERE id = $1 AND user_id = $2
RETURNING ` + notificationColumns

func (r *NotificationRepo) MarkRead(ctx context.Context, userID uuid.UUID, id uuid.UUID) (models.Notification, error) {
	rows, _ := r.DB.Query(ctx, markNotificationRead, id, userID)
	n, err := pgx.CollectOneRow(rows, rowToNotification)

	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, pgx.ErrNoRows):
		return n, apperrors.ErrNotificationNotFound
	default:
		return n, fmt.Errorf("db error: %w", err)
	}
}

const markAllNotificationsRead = `-- name: MarkAllNotificationsRead
UPDATE notifications
SET is_read = true
WHERE user_id = $1 AND is_read = false
`

func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.DB.Exec(ctx, markAllNotificationsRead, userID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

func rowToNotification(row pgx.CollectableRow) (models.Notification, error) {
	var n models.Notification
	err := row.Scan(&n.ID, &n.CreatedAt, &n.UserID, &n.Type, &n.Title, &n.Text, &n.IsRead)
	return n, err
}
