package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

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

// env is the whole api over a single rolled back db transaction
type env struct {
	t         *testing.T
	url       string
	storage   repository.Storage
	processor *testutil.FakeProcessor
	publisher *testutil.FakePublisher
	auth      *auth.AuthService
}

type response struct {
	Status int
	Header http.Header
	Body   string
}

func (r response) cookies() []*http.Cookie {
	return (&http.Response{Header: r.Header}).Cookies()
}

func (r response) decode(t *testing.T, v any) {
	t.Helper()
	require.NoErrorf(t, json.Unmarshal([]byte(r.Body), v), "body: %s", r.Body)
}

func withEnv(dbpool *pgxpool.Pool, t *testing.T, fn func(e *env)) {
	testutil.InTx(dbpool, t, func(tx pgx.Tx) {
		storage := postgres.NewStorage(tx)
		l := logger.NewNoOpLogger()

		tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret"}, storage.Refresh())
		require.NoError(t, err, "token manager should be created without errors")

		authService, err := auth.NewService(auth.Config{}, tokenManager, user.NewService(user.DefaultHasher, storage))
		require.NoError(t, err, "auth service starting error", err)

		fake := testutil.NewFakeProcessor()
		publisher := &testutil.FakePublisher{}
		notifier := notification.NewService(storage, publisher, l)

		router := NewRouter(Services{
			Auth:          authService,
			Ledger:        ledger.New(storage),
			Credits:       credit.NewService(storage, fake, notifier, l, payout.DefaultCurrency),
			BankLinks:     banklink.NewService(storage, fake, l),
			Lessons:       lesson.NewService(storage),
			Bookings:      booking.NewService(storage, notifier, l),
			Payouts:       payout.NewService(storage, fake, notifier, l, payout.DefaultCurrency),
			Notifications: notifier,
			Processor:     fake,
			Currency:      payout.DefaultCurrency,
		}, l)

		srv := httptest.NewServer(router)
		defer srv.Close()

		fn(&env{t: t, url: srv.URL, storage: storage, processor: fake, publisher: publisher, auth: authService})
	})
}

// do sends JSON body (if not nil) with access header (if not empty)
func (e *env) do(method string, path string, access string, body any) response {
	e.t.Helper()

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(e.t, err)
			reader = bytes.NewBuffer(data)
		}
	}

	req, err := http.NewRequestWithContext(e.t.Context(), method, e.url+path, reader)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	if access != "" {
		req.Header.Set("Authorization", access)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close() // nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	require.NoError(e.t, err)

	return response{Status: resp.StatusCode, Header: resp.Header, Body: string(data)}
}

func (e *env) refresh(cookie *http.Cookie) response {
	e.t.Helper()

	req, err := http.NewRequestWithContext(e.t.Context(), http.MethodPost, e.url+"/api/user/refresh", nil)
	require.NoError(e.t, err)
	req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close() // nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	require.NoError(e.t, err)

	return response{Status: resp.StatusCode, Header: resp.Header, Body: string(data)}
}

// register creates user over http and returns its access header value
func (e *env) register(login string, role models.UserRole) string {
	e.t.Helper()

	resp := e.do(http.MethodPost, "/api/user/register", "", map[string]string{
		"login":    login,
		"password": "StrongEnoughPassword",
		"role":     string(role),
	})
	require.Equalf(e.t, http.StatusOK, resp.Status, "register failed: %s", resp.Body)
	return resp.Header.Get("Authorization")
}

// admin creates admin out of band, the way it is done in production, and logs in
func (e *env) admin() string {
	e.t.Helper()

	hash, err := user.DefaultHasher.Hash("StrongEnoughPassword")
	require.NoError(e.t, err)
	u, err := e.storage.User().CreateUser(e.t.Context(), "root", hash, models.RoleAdmin)
	require.NoError(e.t, err)
	_, err = e.storage.Balance().CreateBalance(e.t.Context(), u.ID)
	require.NoError(e.t, err)

	resp := e.do(http.MethodPost, "/api/user/login", "", map[string]string{"login": "root", "password": "StrongEnoughPassword"})
	require.Equalf(e.t, http.StatusOK, resp.Status, "admin login failed: %s", resp.Body)
	return resp.Header.Get("Authorization")
}

func (e *env) meID(access string) uuid.UUID {
	e.t.Helper()
	return uuid.MustParse(e.me(access).ID)
}

type meResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (e *env) me(access string) meResponse {
	e.t.Helper()

	var me meResponse
	resp := e.do(http.MethodGet, "/api/user/me", access, nil)
	require.Equal(e.t, http.StatusOK, resp.Status)
	resp.decode(e.t, &me)
	return me
}
