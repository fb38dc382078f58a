package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/medipals/internal/models"
	"github.com/nkiryanov/medipals/internal/testutil"
)

func Test_AuthHandlers(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	credentials := map[string]string{"login": "nk", "password": "StrongEnoughPassword"}

	requireTokens := func(t *testing.T, resp response) {
		require.Equal(t, 1, len(resp.cookies()))
		cookie := resp.cookies()[0]
		require.Equal(t, "refreshtoken", cookie.Name)
		require.Equal(t, cookie.HttpOnly, true, "refresh cookie should be HttpOnly")
		require.Equal(t, "/", cookie.Path, "refresh cookie should be available on / path")
		require.Equal(t, http.SameSiteStrictMode, cookie.SameSite, "refresh cookie should be SameSite Strict")
		require.InDelta(t, (24 * time.Hour).Seconds(), cookie.MaxAge, 1, "max age should be refresh TTL with 1 second delta")
		require.NotEmpty(t, cookie.Value, "refresh cookie should not be empty")

		require.Contains(t, resp.Header, "Authorization")
		require.Contains(t, resp.Header.Get("Authorization"), "Bearer")
	}

	t.Run("login ok", func(t *testing.T) {
		withEnv(pg.Pool, t, func(e *env) {
			e.register("nk", models.RoleStudent)

			resp := e.do(http.MethodPost, "/api/user/login", "", credentials)

			require.Equalf(t, http.StatusOK, resp.Status, "not expected code. Body: %s", resp.Body)
			require.JSONEq(t, `{"message": "User logged in successfully"}`, resp.Body)
			requireTokens(t, resp)
		})
	})

	t.Run("login failed", func(t *testing.T) {
		withEnv(pg.Pool, t, func(e *env) {
			resp := e.do(http.MethodPost, "/api/user/login", "", `{"login": "nk", "password": "WrongPassword"}`)

			require.Equalf(t, http.StatusUnauthorized, resp.Status, "not expected code. Body: %s", resp.Body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "User not found"
				}`, resp.Body)
			require.Equal(t, 0, len(resp.cookies()), "no cookies should be set on login error")
			require.NotContains(t, resp.Header, "Authorization", "Authorization header should not be set")
		})
	})

	t.Run("register ok", func(t *testing.T) {
		withEnv(pg.Pool, t, func(e *env) {
			resp := e.do(http.MethodPost, "/api/user/register", "", credentials)

			require.Equalf(t, http.StatusOK, resp.Status, "not expected code. Body: %s", resp.Body)
			require.JSONEq(t, `{"message": "User registered successfully"}`, resp.Body)
			requireTokens(t, resp)

			me := e.me(resp.Header.Get("Authorization"))
			require.Equal(t, "nk", me.Username)
			require.Equal(t, "student", me.Role, "student is the default role")
		})
	})

	t.Run("register tutor", func(t *testing.T) {
		withEnv(pg.Pool, t, func(e *env) {
			access := e.register("tutor", models.RoleTutor)

			require.Equal(t, "tutor", e.me(access).Role)
		})
	})

	t.Run("register admin is not allowed", func(t *testing.T) {
		withEnv(pg.Pool, t, func(e *env) {
			resp := e.do(http.MethodPost, "/api/user/register", "", `{"login": "nk", "password": "StrongEnoughPassword", "role": "admin"}`)

			require.Equal(t, http.StatusBadRequest, resp.Status)
			require.JSONEq(t, `
				{
					"error": "validation_failed",
					"message": "Request validation failed",
					"fields": {"role": "Value must be one of: student tutor"}
				}`, resp.Body)
		})
	})

	t.Run("register existed user fails", func(t *testing.T) {
		withEnv(pg.Pool, t, func(e *env) {
			e.register("nk", models.RoleStudent)

			resp := e.do(http.MethodPost, "/api/user/register", "", credentials)

			require.Equalf(t, http.StatusConflict, resp.Status, "not expected code. Body: %s", resp.Body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "User already exists"
				}`, resp.Body)
			require.Equal(t, 0, len(resp.cookies()))
			require.NotContains(t, resp.Header, "Authorization", "Authorization header should not be set for register request")
		})
	})

	t.Run("refresh token ok", func(t *testing.T) {
		withEnv(pg.Pool, t, func(e *env) {
			e.register("nk", models.RoleStudent)
			login := e.do(http.MethodPost, "/api/user/login", "", credentials)
			require.Equal(t, http.StatusOK, login.Status, "not expected code. Body: %s", login.Body)

			resp := e.refresh(login.cookies()[0])

			require.Equalf(t, http.StatusOK, resp.Status, "not expected code. Body: %s", resp.Body)
			require.JSONEq(t, `{"message": "Tokens refreshed successfully"}`, resp.Body)
			require.Equal(t, 1, len(resp.cookies()))
			require.NotEqual(t, login.cookies()[0].Value, resp.cookies()[0].Value, "refresh token should be changed after refresh")
			require.NotEqual(t, login.Header.Get("Authorization"), resp.Header.Get("Authorization"), "access token should be changed after refresh")
		})
	})

	t.Run("refresh twice fail", func(t *testing.T) {
		withEnv(pg.Pool, t, func(e *env) {
			e.register("nk", models.RoleStudent)
			login := e.do(http.MethodPost, "/api/user/login", "", credentials)
			require.Equal(t, http.StatusOK, login.Status, "not expected code. Body: %s", login.Body)
			refreshCookie := login.cookies()[0]

			resp := e.refresh(refreshCookie)
			require.Equalf(t, http.StatusOK, resp.Status, "not expected code. Body: %s", resp.Body)

			resp = e.refresh(refreshCookie)
			require.Equalf(t, http.StatusUnauthorized, resp.Status, "not expected code. Body: %s", resp.Body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "Refresh token not found"
				}`, resp.Body)
		})
	})

	t.Run("refresh without cookie", func(t *testing.T) {
		withEnv(pg.Pool, t, func(e *env) {
			resp := e.do(http.MethodPost, "/api/user/refresh", "", nil)

			require.Equal(t, http.StatusUnauthorized, resp.Status)
		})
	})

	t.Run("me requires auth", func(t *testing.T) {
		withEnv(pg.Pool, t, func(e *env) {
			resp := e.do(http.MethodGet, "/api/user/me", "", nil)
			require.Equal(t, http.StatusUnauthorized, resp.Status)

			resp = e.do(http.MethodGet, "/api/user/me", "Bearer not-a-token", nil)
			require.Equal(t, http.StatusUnauthorized, resp.Status)
		})
	})
}
