package handlers

import (
	"net/http"
	"strconv"

	"github.com/nkiryanov/medipals/internal/apperrors"
	"github.com/nkiryanov/medipals/internal/handlers/render"
	"github.com/nkiryanov/medipals/internal/handlers/userctx"
	"github.com/nkiryanov/medipals/internal/logger"
)

func handleListNotifications(notificationService notificationService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		// Zero means service default
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > 200 {
				renderError(w, l, apperrors.NewValidationError("limit", "Value must be a number between 1 and 200"))
				return
			}
			limit = n
		}

		notifications, err := notificationService.List(r.Context(), user.ID, limit)
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, mapSlice(notifications, newNotificationResponse))
	})
}

func handleMarkRead(notificationService notificationService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		n, err := notificationService.MarkRead(r.Context(), user.ID, id)
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, newNotificationResponse(n))
	})
}

func handleMarkAllRead(notificationService notificationService, l logger.Logger) http.Handler {
	type response struct {
		Updated int64 `json:"updated"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		updated, err := notificationService.MarkAllRead(r.Context(), user.ID)
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, response{Updated: updated})
	})
}
