package user

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/medipals/internal/apperrors"
	"github.com/nkiryanov/medipals/internal/models"
	"github.com/nkiryanov/medipals/internal/repository"
	"github.com/nkiryanov/medipals/internal/repository/postgres"
	"github.com/nkiryanov/medipals/internal/testutil"
)

func TestUser(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Helper function to create UserService within transaction
	inTx := func(t *testing.T, fn func(s *UserService, storage repository.Storage)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			userService := NewService(DefaultHasher, storage)
			fn(userService, storage)
		})
	}

	t.Run("CreateUser", func(t *testing.T) {
		t.Run("create ok", func(t *testing.T) {
			inTx(t, func(s *UserService, storage repository.Storage) {
				user, err := s.CreateUser(t.Context(), "test-user", "password123", models.RoleTutor)

				require.NoError(t, err, "creating new user should be ok")
				require.NotEmpty(t, user.ID, "user ID should not be empty")
				require.Equal(t, "test-user", user.Username, "username should match")
				require.Equal(t, models.RoleTutor, user.Role)
				require.NotEqual(t, "password123", user.HashedPassword, "password should be hashed")
				require.NotZero(t, user.CreatedAt, "created at should be set")

				balance, err := storage.Balance().GetBalance(t.Context(), user.ID, false)

				require.NoError(t, err, "balance has to be created with user")
				require.True(t, balance.Current.IsZero(), "initial balance should be zero")
				require.True(t, balance.Withdrawn.IsZero(), "initial withdrawn should be zero")
			})
		})

		t.Run("empty password fail", func(t *testing.T) {
			inTx(t, func(s *UserService, _ repository.Storage) {
				_, err := s.CreateUser(t.Context(), "test-user", "", models.RoleStudent)

				require.ErrorIs(t, err, apperrors.ErrValidation)
			})
		})

		t.Run("unknown role fail", func(t *testing.T) {
			inTx(t, func(s *UserService, _ repository.Storage) {
				_, err := s.CreateUser(t.Context(), "test-user", "password123", models.UserRole("owner"))

				require.ErrorIs(t, err, apperrors.ErrValidation)
			})
		})

		t.Run("create duplicate user fail", func(t *testing.T) {
			inTx(t, func(s *UserService, _ repository.Storage) {
				_, err := s.CreateUser(t.Context(), "test-user", "password123", models.RoleStudent)
				require.NoError(t, err, "first user creation should succeed")

				_, err = s.CreateUser(t.Context(), "test-user", "different_password", models.RoleStudent)

				require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
			})
		})
	})

	t.Run("Login", func(t *testing.T) {
		t.Run("login ok", func(t *testing.T) {
			inTx(t, func(s *UserService, _ repository.Storage) {
				createdUser, err := s.CreateUser(t.Context(), "test-user", "password123", models.RoleStudent)
				require.NoError(t, err)

				user, err := s.Login(t.Context(), "test-user", "password123")

				require.NoError(t, err, "login with correct credentials should succeed")
				require.Equal(t, createdUser.ID, user.ID, "user ID should match")
				require.Equal(t, createdUser.HashedPassword, user.HashedPassword, "password hash should match")
			})
		})

		t.Run("invalid password fail", func(t *testing.T) {
			inTx(t, func(s *UserService, _ repository.Storage) {
				_, err := s.CreateUser(t.Context(), "test-user", "password123", models.RoleStudent)
				require.NoError(t, err)

				_, err = s.Login(t.Context(), "test-user", "wrong-password")

				require.ErrorIs(t, err, apperrors.ErrUserNotFound)
			})
		})

		t.Run("not existed user fail", func(t *testing.T) {
			inTx(t, func(s *UserService, _ repository.Storage) {
				_, err := s.Login(t.Context(), "non-existed-user", "password123")

				require.ErrorIs(t, err, apperrors.ErrUserNotFound)
			})
		})
	})

	t.Run("GetUserByID", func(t *testing.T) {
		t.Run("existed ok", func(t *testing.T) {
			inTx(t, func(s *UserService, _ repository.Storage) {
				createdUser, err := s.CreateUser(t.Context(), "test-user", "password123", models.RoleStudent)
				require.NoError(t, err)

				user, err := s.GetUserByID(t.Context(), createdUser.ID)

				require.NoError(t, err, "getting existing user by ID should succeed")
				require.Equal(t, createdUser.ID, user.ID, "user ID should match")
				require.Equal(t, createdUser.Username, user.Username, "username should match")
			})
		})

		t.Run("not existed fail", func(t *testing.T) {
			inTx(t, func(s *UserService, _ repository.Storage) {
				_, err := s.GetUserByID(t.Context(), uuid.New())

				require.ErrorIs(t, err, apperrors.ErrUserNotFound)
			})
		})
	})
}
