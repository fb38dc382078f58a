// Package e2e runs the whole api over a real connection pool
//
// Unlike handler tests nothing is rolled back, so requests may run concurrently.
// Use unique usernames per test.
package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/medipals/internal/handlers"
	"github.com/nkiryanov/medipals/internal/logger"
	"github.com/nkiryanov/medipals/internal/models"
	"github.com/nkiryanov/medipals/internal/repository"
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
	"github.com/nkiryanov/medipals/internal/service/user"
	"github.com/nkiryanov/medipals/internal/testutil"
)

const Password = "StrongEnoughPassword"

type Server struct {
	URL       string
	Storage   repository.Storage
	Processor *testutil.FakeProcessor
	Publisher *testutil.FakePublisher
	Payouts   *payout.PayoutService
}

func Serve(dbpool *pgxpool.Pool, t *testing.T) *Server {
	t.Helper()

	storage := postgres.NewStorage(dbpool)
	l := logger.NewNoOpLogger()

	tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret"}, storage.Refresh())
	require.NoError(t, err, "token manager should be created without errors")

	authService, err := auth.NewService(auth.Config{}, tokenManager, user.NewService(user.DefaultHasher, storage))
	require.NoError(t, err, "auth service starting error", err)

	fake := testutil.NewFakeProcessor()
	publisher := &testutil.FakePublisher{}
	notifier := notification.NewService(storage, publisher, l)
	payouts := payout.NewService(storage, fake, notifier, l, payout.DefaultCurrency)

	router := handlers.NewRouter(handlers.Services{
		Auth:          authService,
		Ledger:        ledger.New(storage),
		Credits:       credit.NewService(storage, fake, notifier, l, payout.DefaultCurrency),
		BankLinks:     banklink.NewService(storage, fake, l),
		Lessons:       lesson.NewService(storage),
		Bookings:      booking.NewService(storage, notifier, l),
		Payouts:       payouts,
		Notifications: notifier,
		Processor:     fake,
		Currency:      payout.DefaultCurrency,
	}, l)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &Server{URL: srv.URL, Storage: storage, Processor: fake, Publisher: publisher, Payouts: payouts}
}

type Response struct {
	Status int
	Header http.Header
	Body   string
}

func (r Response) Decode(t *testing.T, v any) {
	t.Helper()
	require.NoErrorf(t, json.Unmarshal([]byte(r.Body), v), "body: %s", r.Body)
}

// Do sends body as JSON with access header (if not empty)
// Safe to call from many goroutines, failures are returned instead of stopping the test
func (s *Server) Do(method string, path string, access string, body any) (Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return Response{}, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if access != "" {
		req.Header.Set("Authorization", access)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close() // nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, err
	}
	return Response{Status: resp.StatusCode, Header: resp.Header, Body: string(data)}, nil
}

func (s *Server) MustDo(t *testing.T, method string, path string, access string, body any) Response {
	t.Helper()

	resp, err := s.Do(method, path, access, body)
	require.NoError(t, err, "failed to send request")
	return resp
}

// Register creates user over http and returns its access header value
func (s *Server) Register(t *testing.T, login string, role models.UserRole) string {
	t.Helper()

	resp, err := s.Do(http.MethodPost, "/api/user/register", "", map[string]string{
		"login":    login,
		"password": Password,
		"role":     string(role),
	})
	require.NoError(t, err)
	require.Equalf(t, http.StatusOK, resp.Status, "register failed: %s", resp.Body)
	return resp.Header.Get("Authorization")
}

// Balance returns current and withdrawn amounts of the user
func (s *Server) Balance(t *testing.T, access string) (current float64, withdrawn float64) {
	t.Helper()

	var b struct {
		Current   float64 `json:"current"`
		Withdrawn float64 `json:"withdrawn"`
	}
	resp := s.MustDo(t, http.MethodGet, "/api/balance", access, nil)
	require.Equalf(t, http.StatusOK, resp.Status, resp.Body)
	resp.Decode(t, &b)
	return b.Current, b.Withdrawn
}

// MeID returns the id of the user behind access
func (s *Server) MeID(t *testing.T, access string) uuid.UUID {
	t.Helper()

	var me struct {
		ID uuid.UUID `json:"id"`
	}
	resp := s.MustDo(t, http.MethodGet, "/api/user/me", access, nil)
	require.Equalf(t, http.StatusOK, resp.Status, resp.Body)
	resp.Decode(t, &me)
	return me.ID
}

// PaidIntent makes a succeeded card payment of the user for credits and returns its reference
func (s *Server) PaidIntent(t *testing.T, access string, amount float64) string {
	t.Helper()
	return s.Processor.PaidIntent(s.MeID(t, access), decimal.NewFromFloat(amount), "usd", nil)
}

// Fund buys credits with a card payment
func (s *Server) Fund(t *testing.T, access string, amount float64) {
	t.Helper()

	resp := s.MustDo(t, http.MethodPost, "/api/credits/purchase", access, map[string]any{
		"amount":               amount,
		"external_payment_ref": s.PaidIntent(t, access, amount),
	})
	require.Equalf(t, http.StatusCreated, resp.Status, resp.Body)
}

// Lesson offers a lesson by the tutor and returns its id
func (s *Server) Lesson(t *testing.T, tutor string, price float64) string {
	t.Helper()

	var l struct {
		ID string `json:"id"`
	}
	resp := s.MustDo(t, http.MethodPost, "/api/lessons", tutor, map[string]any{
		"subject":     "Physics",
		"topic":       "Mechanics",
		"description": "Newton laws with lots of examples",
		"price":       price,
		"start_date":  "2026-11-01",
		"end_date":    "2026-12-31",
	})
	require.Equalf(t, http.StatusCreated, resp.Status, resp.Body)
	resp.Decode(t, &l)
	return l.ID
}
