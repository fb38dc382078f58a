package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/medipals/internal/handlers/render"
	"github.com/nkiryanov/medipals/internal/handlers/userctx"
	"github.com/nkiryanov/medipals/internal/models"
)

func handleUserMe() http.Handler {
	type response struct {
		ID          uuid.UUID       `json:"id"`
		Username    string          `json:"username"`
		Role        models.UserRole `json:"role"`
		RatingAvg   float64         `json:"rating_avg"`
		RatingCount int             `json:"rating_count"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := userctx.FromContext(r.Context())
		render.JSON(w, response{
			ID:          user.ID,
			Username:    user.Username,
			Role:        user.Role,
			RatingAvg:   amount(user.RatingAvg),
			RatingCount: user.RatingCount,
		})
	})
}
