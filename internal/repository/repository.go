package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/medipals/internal/models"
)

// Storage gives access to every repository sharing the same connection
type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo
	Balance() BalanceRepo
	BankLink() BankLinkRepo
	Lesson() LessonRepo
	Booking() BookingRepo
	Notification() NotificationRepo
	Payout() PayoutRepo

	// Run fn in a database transaction
	// Commit if fn returns nil, rollback otherwise
	// Nested calls use savepoints
	InTx(ctx context.Context, fn func(Storage) error) error
}

// User repository interface
type UserRepo interface {
	// Create user
	// If user with username exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, username string, hashedPassword string, role models.UserRole) (models.User, error)

	// Get user by it's id or username
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)

	// Fold a new rating into the user running average
	AddRating(ctx context.Context, userID uuid.UUID, rating int) (models.User, error)
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Return the token even if it is expired or used
	// If not found must return apperrors.ErrRefreshTokenNotFound
	Get(ctx context.Context, tokenString string) (models.RefreshToken, error)

	// Mark token used and return it
	// If the token is already used, must not overwrite 'usedAt' and has to return apperrors.ErrRefreshTokenIsUsed
	GetAndMarkUsed(ctx context.Context, tokenString string) (models.RefreshToken, error)
}

type ListTransactionsOpts struct {
	UserID uuid.UUID
	Kinds  []models.TransactionKind // all kinds if empty
	Limit  int                      // no limit if zero
}

type BalanceRepo interface {
	CreateBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error)

	// Get user balance
	// If lock is true the row is locked until the transaction ends
	GetBalance(ctx context.Context, userID uuid.UUID, lock bool) (models.Balance, error)

	// Atomically add signed transaction amount to the balance
	// Has to return apperrors.ErrInsufficientBalance if balance would go negative
	UpdateBalance(ctx context.Context, t models.Transaction) (models.Balance, error)

	// Append transaction
	// Has to return apperrors.ErrDuplicatePayment if (kind, external ref) is recorded already
	CreateTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error)

	// Newest first
	ListTransactions(ctx context.Context, opts ListTransactionsOpts) ([]models.Transaction, error)

	// Sum of transactions that move the balance, BOOKING card payments are excluded
	SumTransactions(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
}

type BankLinkRepo interface {
	// Has to return apperrors.ErrDuplicateBankLink if the account number or IBAN is linked by the user already
	CreateBankLink(ctx context.Context, link models.BankLink) (models.BankLink, error)

	// If not found must return apperrors.ErrBankLinkNotFound
	GetBankLink(ctx context.Context, id uuid.UUID) (models.BankLink, error)

	// Report whether the user linked account number or IBAN already, empty values never match
	ExistsBankLink(ctx context.Context, userID uuid.UUID, accountNumber string, iban string) (bool, error)

	ListBankLinks(ctx context.Context, userID uuid.UUID) ([]models.BankLink, error)

	// If not found must return apperrors.ErrBankLinkNotFound
	DeleteBankLink(ctx context.Context, userID uuid.UUID, id uuid.UUID) error
}

type ListLessonsOpts struct {
	TutorID    uuid.UUID // any tutor if uuid.Nil
	ActiveOnly bool
	Limit      int
}

type LessonRepo interface {
	// Has to return apperrors.ErrUserNotFound if the tutor does not exist
	CreateLesson(ctx context.Context, l models.Lesson) (models.Lesson, error)

	// Inactive lessons are returned too
	// If not found must return apperrors.ErrLessonNotFound
	GetLesson(ctx context.Context, id uuid.UUID) (models.Lesson, error)

	// Newest first
	ListLessons(ctx context.Context, opts ListLessonsOpts) ([]models.Lesson, error)

	// Update active lesson owned by l.TutorID
	// Has to return apperrors.ErrLessonNotFound otherwise
	UpdateLesson(ctx context.Context, l models.Lesson) (models.Lesson, error)

	// Withdraw active lesson owned by the tutor
	// Has to return apperrors.ErrLessonNotFound otherwise
	DeactivateLesson(ctx context.Context, tutorID uuid.UUID, id uuid.UUID) error
}

type ListBookingsOpts struct {
	ParticipantID uuid.UUID // payer or tutor
	Statuses      []models.BookingStatus
	Limit         int
}

type BookingRepo interface {
	CreateBooking(ctx context.Context, b models.Booking) (models.Booking, error)

	// If not found must return apperrors.ErrBookingNotFound
	GetBooking(ctx context.Context, id uuid.UUID, lock bool) (models.Booking, error)

	ListBookings(ctx context.Context, opts ListBookingsOpts) ([]models.Booking, error)

	// Move booking from one status to another
	// Has to return apperrors.ErrInvalidTransition if the booking is not in 'from' status anymore
	UpdateStatus(ctx context.Context, id uuid.UUID, from models.BookingStatus, to models.BookingStatus) (models.Booking, error)

	SetProof(ctx context.Context, id uuid.UUID, proof string) (models.Booking, error)

	// Set paid flag once, UNPAID booking moves to PENDING
	// Has to return apperrors.ErrAlreadyPaid if flag is set already
	MarkPaid(ctx context.Context, id uuid.UUID) (models.Booking, error)

	// Has to return apperrors.ErrAlreadyRated if rating is set already
	SetRating(ctx context.Context, id uuid.UUID, rating models.Rating) (models.Booking, error)
}

type NotificationRepo interface {
	CreateNotification(ctx context.Context, n models.Notification) (models.Notification, error)

	// Newest first
	ListNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error)

	// If not found must return apperrors.ErrNotificationNotFound
	MarkRead(ctx context.Context, userID uuid.UUID, id uuid.UUID) (models.Notification, error)

	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

type ListAttemptsOpts struct {
	UserID        uuid.UUID // any user if uuid.Nil
	Statuses      []models.PayoutStatus
	UpdatedBefore time.Time // no bound if zero
	Limit         int
}

type PayoutRepo interface {
	CreateAttempt(ctx context.Context, a models.PayoutAttempt) (models.PayoutAttempt, error)

	// If not found must return apperrors.ErrPayoutAttemptNotFound
	GetAttempt(ctx context.Context, id uuid.UUID, lock bool) (models.PayoutAttempt, error)

	// Persist status and processor references
	UpdateAttempt(ctx context.Context, a models.PayoutAttempt) (models.PayoutAttempt, error)

	// Oldest first
	ListAttempts(ctx context.Context, opts ListAttemptsOpts) ([]models.PayoutAttempt, error)

	// Sum of user attempts that may still move money, except the attempt excludeID
	// Unfinished attempts count, and so do failed ones whose transfer went out but were never booked
	SumHeld(ctx context.Context, userID uuid.UUID, excludeID uuid.UUID) (decimal.Decimal, error)
}
