package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/medipals/internal/handlers/middleware"
	"github.com/nkiryanov/medipals/internal/logger"
	"github.com/nkiryanov/medipals/internal/models"
	"github.com/nkiryanov/medipals/internal/service/booking"
	"github.com/nkiryanov/medipals/internal/service/lesson"
	"github.com/nkiryanov/medipals/internal/service/processor"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type Services struct {
	Auth          authService
	Ledger        ledgerService
	Credits       creditService
	BankLinks     bankLinkService
	Lessons       lessonService
	Bookings      bookingService
	Payouts       payoutService
	Notifications notificationService

	// Card checkout for buying credits
	Processor paymentProcessor
	Currency  string
}

func NewRouter(s Services, logger logger.Logger) http.Handler {
	authMiddleware := middleware.AuthMiddleware(s.Auth)
	withAuth := func(h http.Handler) http.Handler {
		return authMiddleware(h)
	}
	withAdmin := func(h http.Handler) http.Handler {
		return chain(h, authMiddleware, middleware.AdminMiddleware)
	}

	api := http.NewServeMux()

	api.Handle("POST /user/register", handleRegister(s.Auth, logger))
	api.Handle("POST /user/login", handleLogin(s.Auth, logger))
	api.Handle("POST /user/refresh", handleTokenRefresh(s.Auth, logger))
	api.Handle("GET /user/me", withAuth(handleUserMe()))

	api.Handle("GET /balance", withAuth(handleBalance(s.Ledger, logger)))
	api.Handle("GET /transactions", withAuth(handleListTransactions(s.Ledger, logger)))
	api.Handle("GET /transactions/reconcile", withAuth(handleReconcile(s.Ledger, logger)))
	api.Handle("POST /credits/purchase", withAuth(handlePurchaseCredits(s.Credits, logger)))
	api.Handle("POST /payment/init", withAuth(handlePaymentInit(s.Processor, s.Currency, logger)))

	api.Handle("POST /bank-links", withAuth(handleLinkBank(s.BankLinks, logger)))
	api.Handle("GET /bank-links", withAuth(handleListBankLinks(s.BankLinks, logger)))
	api.Handle("GET /bank-links/{id}", withAuth(handleGetBankLink(s.BankLinks, logger)))
	api.Handle("DELETE /bank-links/{id}", withAuth(handleUnlinkBank(s.BankLinks, logger)))

	api.Handle("POST /lessons", withAuth(handleCreateLesson(s.Lessons, logger)))
	api.Handle("GET /lessons", withAuth(handleListLessons(s.Lessons, logger)))
	api.Handle("GET /lessons/{id}", withAuth(handleGetLesson(s.Lessons, logger)))
	api.Handle("PUT /lessons/{id}", withAuth(handleUpdateLesson(s.Lessons, logger)))
	api.Handle("DELETE /lessons/{id}", withAuth(handleDeleteLesson(s.Lessons, logger)))

	api.Handle("POST /bookings", withAuth(handleCreateBooking(s.Bookings, logger)))
	api.Handle("GET /bookings", withAuth(handleListBookings(s.Bookings, logger)))
	api.Handle("GET /bookings/{id}", withAuth(handleGetBooking(s.Bookings, logger)))
	api.Handle("PATCH /bookings/{id}/status", withAuth(handleTransitionBooking(s.Bookings, logger)))
	api.Handle("PUT /bookings/{id}/proof", withAuth(handleAddProof(s.Bookings, logger)))
	api.Handle("PUT /bookings/{id}/rating", withAuth(handleAttachRating(s.Bookings, logger)))
	api.Handle("POST /bookings/{id}/pay", withAuth(handlePayBooking(s.Credits, logger)))
	api.Handle("POST /bookings/{id}/confirm-payment", withAuth(handleConfirmBookingPayment(s.Credits, logger)))

	api.Handle("POST /payouts", withAuth(handlePayout(s.Payouts, logger)))
	api.Handle("GET /payouts", withAuth(handleListPayouts(s.Payouts, logger)))

	api.Handle("GET /notifications", withAuth(handleListNotifications(s.Notifications, logger)))
	api.Handle("PATCH /notifications/{id}/read", withAuth(handleMarkRead(s.Notifications, logger)))
	api.Handle("POST /notifications/read-all", withAuth(handleMarkAllRead(s.Notifications, logger)))

	api.Handle("POST /admin/transactions", withAdmin(handleGrantCredits(s.Credits, logger)))
	api.Handle("GET /admin/payouts", withAdmin(handleAdminListPayouts(s.Payouts, logger)))
	api.Handle("POST /admin/payouts/{id}/replay", withAdmin(handleAdminReplayPayout(s.Payouts, logger)))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))
	root.Handle("GET /metrics", promhttp.Handler())

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Register user with username and password
	// Has to return apperrors.ErrUserAlreadyExists if user already exists
	Register(ctx context.Context, username string, password string, role models.UserRole) (models.TokenPair, error)

	// Login user with username and password
	// Has to return apperrors.ErrUserNotFound if user not found
	Login(ctx context.Context, username string, password string) (models.TokenPair, error)

	// Refresh tokens using refresh token
	// If token expired: has to return apperrors.ErrRefreshTokenExpired
	// If token not found: has to return apperrors.ErrRefreshTokenNotFound
	Refresh(ctx context.Context, refresh string) (models.TokenPair, error)

	// Set auth tokens (access, refresh) to response
	SetTokens(ctx context.Context, w http.ResponseWriter, pair models.TokenPair)

	// Get refresh token from request
	GetRefresh(r *http.Request) (string, error)

	// Get request and return user if it authenticated or error
	Auth(ctx context.Context, r *http.Request) (models.User, error)
}

type ledgerService interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, kinds ...models.TransactionKind) ([]models.Transaction, error)
	Reconcile(ctx context.Context, userID uuid.UUID) (models.Balance, error)
}

type creditService interface {
	PurchaseCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, externalPaymentRef string) (models.Transaction, models.Balance, error)
	DeductCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, bookingID uuid.UUID) (models.Transaction, models.Balance, error)
	ConfirmBookingPayment(ctx context.Context, userID uuid.UUID, bookingID uuid.UUID, paymentIntentID string) (models.Transaction, models.Booking, error)
	GrantCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (models.Transaction, models.Balance, error)
}

type lessonService interface {
	// Has to return apperrors.ErrNotTutor if the user is not a tutor
	Create(ctx context.Context, tutor models.User, p lesson.Params) (models.Lesson, error)
	Get(ctx context.Context, id uuid.UUID) (models.Lesson, error)
	// Active lessons, of any tutor if tutorID is uuid.Nil
	List(ctx context.Context, tutorID uuid.UUID) ([]models.Lesson, error)
	Update(ctx context.Context, tutorID uuid.UUID, id uuid.UUID, p lesson.Params) (models.Lesson, error)
	Delete(ctx context.Context, tutorID uuid.UUID, id uuid.UUID) error
}

type bankLinkService interface {
	LinkBank(ctx context.Context, userID uuid.UUID, details models.BankDetails) (models.BankLink, error)
	UnlinkBank(ctx context.Context, userID uuid.UUID, id uuid.UUID) error
	GetBankLink(ctx context.Context, userID uuid.UUID, id uuid.UUID) (models.BankLink, error)
	ListBankLinks(ctx context.Context, userID uuid.UUID) ([]models.BankLink, error)
}

type bookingService interface {
	Create(ctx context.Context, payerID uuid.UUID, p booking.CreateParams) (models.Booking, error)
	Get(ctx context.Context, id uuid.UUID, actor booking.Actor) (models.Booking, error)
	List(ctx context.Context, userID uuid.UUID, statuses ...models.BookingStatus) ([]models.Booking, error)
	Transition(ctx context.Context, id uuid.UUID, to models.BookingStatus, actor booking.Actor) (models.Booking, error)
	AddProof(ctx context.Context, id uuid.UUID, proof string, actor booking.Actor) (models.Booking, error)
	AttachRating(ctx context.Context, id uuid.UUID, p booking.RatingParams, actor booking.Actor) (models.Booking, error)
}

type payoutService interface {
	Payout(ctx context.Context, userID uuid.UUID, bankLinkID uuid.UUID, amount decimal.Decimal) (models.PayoutResult, error)
	Replay(ctx context.Context, attemptID uuid.UUID) (models.PayoutResult, error)
	ListAttempts(ctx context.Context, userID uuid.UUID, statuses ...models.PayoutStatus) ([]models.PayoutAttempt, error)
}

type notificationService interface {
	List(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID uuid.UUID, id uuid.UUID) (models.Notification, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

type paymentProcessor interface {
	CreatePaymentIntent(ctx context.Context, params processor.PaymentIntentParams) (processor.PaymentIntent, error)
}
