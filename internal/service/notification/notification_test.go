package notification

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/medipals/internal/apperrors"
	"github.com/nkiryanov/medipals/internal/logger"
	"github.com/nkiryanov/medipals/internal/models"
	"github.com/nkiryanov/medipals/internal/repository/postgres"
	"github.com/nkiryanov/medipals/internal/testutil"
)

func TestNotificationService(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	withService := func(t *testing.T, publisher *testutil.FakePublisher, fn func(*Service, models.User)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			user, err := storage.User().CreateUser(t.Context(), "tutor", "hashed", models.RoleTutor)
			require.NoError(t, err)

			fn(NewService(storage, publisher, logger.NewNoOpLogger()), user)
		})
	}

	msg := models.Message{Type: models.NotificationAction, Title: models.TitleBookingReceived, Text: "You have a new booking"}

	t.Run("emit stores and publishes", func(t *testing.T) {
		publisher := &testutil.FakePublisher{}

		withService(t, publisher, func(s *Service, user models.User) {
			id, err := s.Emit(t.Context(), user.ID, msg)
			require.NoError(t, err)
			require.NotEqual(t, uuid.Nil, id)

			require.Len(t, publisher.Messages, 1)
			require.Equal(t, user.ID.String()+"-notifications", publisher.Messages[0].Channel)

			var event Event
			require.NoError(t, json.Unmarshal(publisher.Messages[0].Payload, &event))
			require.Equal(t, EventNew, event.Event)
			require.Equal(t, id, event.Data.ID)
			require.Equal(t, models.TitleBookingReceived, event.Data.Title)
			require.False(t, event.Data.IsRead)

			list, err := s.List(t.Context(), user.ID, 0)
			require.NoError(t, err)
			require.Len(t, list, 1)
			require.Equal(t, id, list[0].ID)
		})
	})

	t.Run("publish failure keeps notification", func(t *testing.T) {
		publisher := &testutil.FakePublisher{Err: errors.New("redis down")}

		withService(t, publisher, func(s *Service, user models.User) {
			id, err := s.Emit(t.Context(), user.ID, msg)
			require.NoError(t, err)

			list, err := s.List(t.Context(), user.ID, 10)
			require.NoError(t, err)
			require.Len(t, list, 1)
			require.Equal(t, id, list[0].ID)
		})
	})

	t.Run("emit to unknown user", func(t *testing.T) {
		publisher := &testutil.FakePublisher{}

		withService(t, publisher, func(s *Service, _ models.User) {
			_, err := s.Emit(t.Context(), uuid.New(), msg)

			require.ErrorIs(t, err, apperrors.ErrUserNotFound)
			require.Empty(t, publisher.Messages)
		})
	})

	t.Run("mark read", func(t *testing.T) {
		withService(t, &testutil.FakePublisher{}, func(s *Service, user models.User) {
			first, err := s.Emit(t.Context(), user.ID, msg)
			require.NoError(t, err)
			_, err = s.Emit(t.Context(), user.ID, msg)
			require.NoError(t, err)

			n, err := s.MarkRead(t.Context(), user.ID, first)
			require.NoError(t, err)
			require.True(t, n.IsRead)

			count, err := s.MarkAllRead(t.Context(), user.ID)
			require.NoError(t, err)
			require.EqualValues(t, 1, count)

			_, err = s.MarkRead(t.Context(), uuid.New(), first)
			require.ErrorIs(t, err, apperrors.ErrNotificationNotFound)
		})
	})
}
