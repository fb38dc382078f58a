package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stripe/stripe-go/v82"

	"github.com/nkiryanov/medipals/internal/db"
	"github.com/nkiryanov/medipals/internal/handlers"
	"github.com/nkiryanov/medipals/internal/logger"
	"github.com/nkiryanov/medipals/internal/repository/postgres"
	"github.com/nkiryanov/medipals/internal/service/auth"
	"github.com/nkiryanov/medipals/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/medipals/internal/service/banklink"
	"github.com/nkiryanov/medipals/internal/service/booking"
	"github.com/nkiryanov/medipals/internal/service/credit"
	"github.com/nkiryanov/medipals/internal/service/ledger"
	"github.com/nkiryanov/medipals/internal/service/lesson"
	"github.com/nkiryanov/medipals/internal/service/notification"
	"github.com/nkiryanov/medipals/internal/service/payout"
	"github.com/nkiryanov/medipals/internal/service/payoutreconciler"
	"github.com/nkiryanov/medipals/internal/service/processor"
	"github.com/nkiryanov/medipals/internal/service/user"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
	Reconciler *payoutreconciler.Reconciler
	Logger     logger.Logger

	// Released after the server and reconciler stopped
	closers []func()
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	app := &ServerApp{ListenAddr: c.ListenAddr, Logger: l, closers: []func(){pool.Close}}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Notification fan-out is optional
	var publisher notification.Publisher = notification.NoOpPublisher{}
	if c.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			app.close()
			return nil, fmt.Errorf("error while connecting to redis. Err: %w", err)
		}
		app.closers = append(app.closers, func() { _ = rdb.Close() })
		publisher = notification.NewRedisPublisher(rdb)
	}

	// Initialize services
	tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: c.SecretKey}, storage.Refresh())
	if err != nil {
		app.close()
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}
	userService := user.NewService(user.DefaultHasher, storage)
	authService, err := auth.NewService(auth.Config{}, tokenManager, userService)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	paymentProcessor := processor.NewBreakerClient(
		processor.NewStripeClient(stripe.NewClient(c.StripeSecretKey), l),
		processor.DefaultBreakerConfig(),
		l,
	)

	notificationService := notification.NewService(storage, publisher, l)
	payoutService := payout.NewService(storage, paymentProcessor, notificationService, l, c.PayoutCurrency)

	app.Handler = handlers.NewRouter(handlers.Services{
		Auth:          authService,
		Ledger:        ledger.New(storage),
		Credits:       credit.NewService(storage, paymentProcessor, notificationService, l, c.PayoutCurrency),
		BankLinks:     banklink.NewService(storage, paymentProcessor, l),
		Lessons:       lesson.NewService(storage),
		Bookings:      booking.NewService(storage, notificationService, l),
		Payouts:       payoutService,
		Notifications: notificationService,
		Processor:     paymentProcessor,
		Currency:      c.PayoutCurrency,
	}, l)

	app.Reconciler = payoutreconciler.New(
		payoutService,
		storage.Payout(),
		payoutreconciler.Config{Interval: c.ReconcileInterval},
		l.WithGroup("reconciler"),
	)

	return app, nil
}

func (s *ServerApp) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// Run starts http server and payout reconciler, closes both gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.close()

	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	reconcilerStopped := s.Reconciler.Run(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.Logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.Logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.Logger.Info("Starting server", "addr", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-reconcilerStopped

	return err
}
