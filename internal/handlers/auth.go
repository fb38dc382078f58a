package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/medipals/internal/apperrors"
	"github.com/nkiryanov/medipals/internal/handlers/render"
	"github.com/nkiryanov/medipals/internal/logger"
	"github.com/nkiryanov/medipals/internal/models"
)

type messageResponse struct {
	Message string `json:"message"`
}

func handleRegister(authService authService, l logger.Logger) http.Handler {
	// Admins are provisioned out of band
	type request struct {
		Login    string `json:"login" validate:"required,min=2,max=50"`
		Password string `json:"password" validate:"required,min=8"`
		Role     string `json:"role" validate:"omitempty,oneof=student tutor"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		role := models.RoleStudent
		if data.Role != "" {
			role = models.UserRole(data.Role)
		}

		pair, err := authService.Register(r.Context(), data.Login, data.Password, role)
		switch {
		case err == nil:
			authService.SetTokens(r.Context(), w, pair)
			render.JSON(w, messageResponse{Message: "User registered successfully"})
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.ServiceError(w, "User already exists", http.StatusConflict)
		default:
			l.Error("Failed to register user", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleLogin(authService authService, l logger.Logger) http.Handler {
	type request struct {
		Login    string `json:"login" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := authService.Login(r.Context(), data.Login, data.Password)
		switch {
		case err == nil:
			authService.SetTokens(r.Context(), w, pair)
			render.JSON(w, messageResponse{Message: "User logged in successfully"})
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "User not found", http.StatusUnauthorized)
		default:
			l.Error("Failed to login user", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleTokenRefresh(authService authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, err := authService.GetRefresh(r)
		if err != nil {
			render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
			return
		}

		pair, err := authService.Refresh(r.Context(), refresh)
		switch {
		case err == nil:
			authService.SetTokens(r.Context(), w, pair)
			render.JSON(w, messageResponse{Message: "Tokens refreshed successfully"})
		case errors.Is(err, apperrors.ErrRefreshTokenExpired):
			render.ServiceError(w, "Refresh token expired", http.StatusUnauthorized)
		default:
			l.Debug("Refresh token rejected", "error", err)
			render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
		}
	})
}
