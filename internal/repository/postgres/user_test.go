package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/medipals/internal/apperrors"
	"github.com/nkiryanov/medipals/internal/models"
	"github.com/nkiryanov/medipals/internal/testutil"
)

func Test_UserRepo(t *testing.T) {
	t.Parallel() // It's ok to run in parallel with other tests, but not with subtests

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("create user ok", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			user, err := r.CreateUser(t.Context(), "testuser", "hashedpassword123", models.RoleTutor)

			require.NoError(t, err)
			require.Equal(t, "testuser", user.Username)
			require.Equal(t, "hashedpassword123", user.HashedPassword)
			require.Equal(t, models.RoleTutor, user.Role)
			require.True(t, user.RatingAvg.IsZero(), "new user is not rated")
			require.Zero(t, user.RatingCount)
			require.WithinDuration(t, time.Now(), user.CreatedAt, time.Second, "CreatedAt should be recent")
		})
	})

	t.Run("create duplicate fail", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			_, err := r.CreateUser(t.Context(), "testuser", "hashedpassword123", models.RoleStudent)
			require.NoError(t, err)

			_, err = r.CreateUser(t.Context(), "testuser", "other", models.RoleStudent)

			require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
		})
	})

	t.Run("get user by id ok", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			created, err := r.CreateUser(t.Context(), "findbyid", "hashedpassword123", models.RoleStudent)
			require.NoError(t, err)

			got, err := r.GetUserByID(t.Context(), created.ID)

			require.NoError(t, err)
			require.Equal(t, created, got)
		})
	})

	t.Run("get user by id not found", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			_, err := r.GetUserByID(t.Context(), uuid.New())

			require.ErrorIs(t, err, apperrors.ErrUserNotFound, "should return well known error")
			require.ErrorIs(t, err, apperrors.ErrNotFound, "user not found is a not found error")
		})
	})

	t.Run("get user by username ok", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			created, err := r.CreateUser(t.Context(), "findbyusername", "hashedpassword123", models.RoleStudent)
			require.NoError(t, err)

			got, err := r.GetUserByUsername(t.Context(), created.Username)

			require.NoError(t, err)
			require.Equal(t, created.ID, got.ID)
		})
	})

	t.Run("get user by username not found", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			_, err := r.GetUserByUsername(t.Context(), "nonexistentuser")

			require.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})

	t.Run("add rating keeps running average", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			tutor, err := r.CreateUser(t.Context(), "tutor", "hashedpassword123", models.RoleTutor)
			require.NoError(t, err)

			_, err = r.AddRating(t.Context(), tutor.ID, 5)
			require.NoError(t, err)
			_, err = r.AddRating(t.Context(), tutor.ID, 4)
			require.NoError(t, err)
			got, err := r.AddRating(t.Context(), tutor.ID, 3)

			require.NoError(t, err)
			require.Equal(t, 3, got.RatingCount)
			require.Truef(t, got.RatingAvg.Equal(decimal.NewFromInt(4)), "average of 5, 4, 3 is 4, got %s", got.RatingAvg)
		})
	})

	t.Run("add rating unknown user", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			_, err := r.AddRating(t.Context(), uuid.New(), 5)

			require.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})
}
