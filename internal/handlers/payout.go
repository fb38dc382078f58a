package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/medipals/internal/apperrors"
	"github.com/nkiryanov/medipals/internal/handlers/render"
	"github.com/nkiryanov/medipals/internal/handlers/userctx"
	"github.com/nkiryanov/medipals/internal/logger"
	"github.com/nkiryanov/medipals/internal/models"
)

func newPayoutResponse(result models.PayoutResult) payoutResponse {
	return payoutResponse{
		Transaction: newTransactionResponse(result.Transaction),
		Balance:     newBalanceResponse(result.Balance),
		Attempt:     newPayoutAttemptResponse(result.Attempt),
	}
}

// renderPayoutError keeps the attempt in the body when one was stored, so the client can follow it
func renderPayoutError(w http.ResponseWriter, l logger.Logger, result models.PayoutResult, err error) {
	if result.Attempt.ID == uuid.Nil || !errors.Is(err, apperrors.ErrExternalService) {
		renderError(w, l, err)
		return
	}

	type response struct {
		Error   string                `json:"error"`
		Message string                `json:"message"`
		Attempt payoutAttemptResponse `json:"attempt"`
	}

	l.Warn("Payout failed at processor", "attempt_id", result.Attempt.ID, "error", err)
	render.JSONWithStatus(w, response{
		Error:   render.ServiceErrorType,
		Message: err.Error(),
		Attempt: newPayoutAttemptResponse(result.Attempt),
	}, http.StatusBadGateway)
}

func handlePayout(payoutService payoutService, l logger.Logger) http.Handler {
	type request struct {
		BankLinkID uuid.UUID       `json:"bank_link_id" validate:"required"`
		Amount     decimal.Decimal `json:"amount"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		result, err := payoutService.Payout(r.Context(), user.ID, data.BankLinkID, data.Amount)
		if err != nil {
			renderPayoutError(w, l, result, err)
			return
		}

		render.JSON(w, newPayoutResponse(result))
	})
}

func handleListPayouts(payoutService payoutService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		attempts, err := payoutService.ListAttempts(r.Context(), user.ID)
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, mapSlice(attempts, newPayoutAttemptResponse))
	})
}

// handleAdminListPayouts lists attempts of every user, FAILED ones unless ?status= is given
func handleAdminListPayouts(payoutService payoutService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		statuses := []models.PayoutStatus{models.PayoutStatusFailed}
		if query := r.URL.Query()["status"]; len(query) > 0 {
			statuses = statuses[:0]
			for _, s := range query {
				statuses = append(statuses, models.PayoutStatus(s))
			}
		}

		attempts, err := payoutService.ListAttempts(r.Context(), uuid.Nil, statuses...)
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, mapSlice(attempts, newPayoutAttemptResponse))
	})
}

func handleAdminReplayPayout(payoutService payoutService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		result, err := payoutService.Replay(r.Context(), id)
		if err != nil {
			renderPayoutError(w, l, result, err)
			return
		}

		render.JSON(w, newPayoutResponse(result))
	})
}
