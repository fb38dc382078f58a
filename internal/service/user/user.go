package user

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nkiryanov/medipals/internal/apperrors"
	"github.com/nkiryanov/medipals/internal/models"
	"github.com/nkiryanov/medipals/internal/repository"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

type UserService struct {
	hasher  PasswordHasher
	storage repository.Storage

	// hash compared against when user is unknown, so both login failures take the same time
	dummyHash func() string
}

func NewService(hasher PasswordHasher, storage repository.Storage) *UserService {
	if hasher == nil {
		hasher = DefaultHasher
	}

	return &UserService{
		hasher:  hasher,
		storage: storage,
		dummyHash: sync.OnceValue(func() string {
			hash, _ := hasher.Hash(uuid.NewString())
			return hash
		}),
	}
}

// CreateUser creates user with zero balance
func (s *UserService) CreateUser(ctx context.Context, username string, password string, role models.UserRole) (models.User, error) {
	var user models.User

	if password == "" {
		return user, apperrors.NewValidationError("password", "This field is required")
	}
	if !role.Valid() {
		return user, apperrors.NewValidationError("role", fmt.Sprintf("Unknown role %q", role))
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	err = s.storage.InTx(ctx, func(storage repository.Storage) error {
		user, err = storage.User().CreateUser(ctx, username, hash, role)
		if err != nil {
			return err
		}

		_, err = storage.Balance().CreateBalance(ctx, user.ID)
		return err
	})
	if err != nil {
		return user, fmt.Errorf("can't create user. Err: %w", err)
	}

	return user, nil
}

// Login returns user if password matches
// Unknown user and wrong password both end with apperrors.ErrUserNotFound
func (s *UserService) Login(ctx context.Context, username string, password string) (models.User, error) {
	user, err := s.storage.User().GetUserByUsername(ctx, username)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrUserNotFound):
		_ = s.hasher.Compare(s.dummyHash(), password)
		return user, apperrors.ErrUserNotFound
	default:
		return user, err
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return models.User{}, apperrors.ErrUserNotFound
	}

	return user, nil
}

func (s *UserService) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return s.storage.User().GetUserByID(ctx, userID)
}
