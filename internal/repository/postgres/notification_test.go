package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/medipals/internal/apperrors"
	"github.com/nkiryanov/medipals/internal/models"
	"github.com/nkiryanov/medipals/internal/testutil"
)

func TestNotification(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
		storage := NewStorage(tx)
		user, err := storage.User().CreateUser(t.Context(), "student", "hashedpassword", models.RoleStudent)
		require.NoError(t, err)

		now := time.Now()
		older, err := storage.Notification().CreateNotification(t.Context(), models.Notification{
			CreatedAt: now.Add(-time.Minute),
			UserID:    user.ID,
			Message:   models.Message{Type: models.NotificationInfo, Title: models.TitleCreditAdded, Text: "500 credits added"},
		})
		require.NoError(t, err)
		newer, err := storage.Notification().CreateNotification(t.Context(), models.Notification{
			CreatedAt: now,
			UserID:    user.ID,
			Message:   models.Message{Type: models.NotificationAction, Title: models.TitleBookingAccepted, Text: "Booking accepted"},
		})
		require.NoError(t, err)
		require.False(t, newer.IsRead)

		t.Run("create for unknown user", func(t *testing.T) {
			testutil.InTx(tx, t, func(tx pgx.Tx) {
				_, err := NewStorage(tx).Notification().CreateNotification(t.Context(), models.Notification{
					UserID:  uuid.New(),
					Message: models.Message{Type: models.NotificationInfo, Title: "title", Text: "text"},
				})

				require.ErrorIs(t, err, apperrors.ErrUserNotFound)
			})
		})

		t.Run("list newest first with limit", func(t *testing.T) {
			testutil.InTx(tx, t, func(tx pgx.Tx) {
				list, err := NewStorage(tx).Notification().ListNotifications(t.Context(), user.ID, 10)
				require.NoError(t, err)
				require.Len(t, list, 2)
				require.Equal(t, newer.ID, list[0].ID)
				require.Equal(t, older.ID, list[1].ID)
				require.Equal(t, "Booking accepted", list[0].Text)

				list, err = NewStorage(tx).Notification().ListNotifications(t.Context(), user.ID, 1)
				require.NoError(t, err)
				require.Len(t, list, 1)
			})
		})

		t.Run("mark read", func(t *testing.T) {
			testutil.InTx(tx, t, func(tx pgx.Tx) {
				repo := NewStorage(tx).Notification()

				read, err := repo.MarkRead(t.Context(), user.ID, older.ID)
				require.NoError(t, err)
				require.True(t, read.IsRead)

				_, err = repo.MarkRead(t.Context(), uuid.New(), older.ID)
				require.ErrorIs(t, err, apperrors.ErrNotificationNotFound, "other users can't read it")
			})
		})

		t.Run("mark all read", func(t *testing.T) {
			testutil.InTx(tx, t, func(tx pgx.Tx) {
				repo := NewStorage(tx).Notification()

				n, err := repo.MarkAllRead(t.Context(), user.ID)
				require.NoError(t, err)
				require.EqualValues(t, 2, n)

				n, err = repo.MarkAllRead(t.Context(), user.ID)
				require.NoError(t, err)
				require.Zero(t, n, "nothing left unread")
			})
		})
	})
}
