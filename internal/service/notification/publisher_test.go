package notification

import (
	"errors"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/require"
)

func TestRedisPublisher(t *testing.T) {
	t.Run("publish ok", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectPublish("user-notifications", `{"event":"notification:new"}`).SetVal(1)

		err := NewRedisPublisher(client).Publish(t.Context(), "user-notifications", []byte(`{"event":"notification:new"}`))

		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("publish error", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectPublish("user-notifications", "payload").SetErr(errors.New("connection refused"))

		err := NewRedisPublisher(client).Publish(t.Context(), "user-notifications", []byte("payload"))

		require.ErrorContains(t, err, "connection refused")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
