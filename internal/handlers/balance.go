package handlers

import (
	"fmt"
	"net/http"

	"github.com/nkiryanov/medipals/internal/apperrors"
	"github.com/nkiryanov/medipals/internal/handlers/render"
	"github.com/nkiryanov/medipals/internal/handlers/userctx"
	"github.com/nkiryanov/medipals/internal/logger"
	"github.com/nkiryanov/medipals/internal/models"
)

func handleBalance(ledgerService ledgerService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		balance, err := ledgerService.GetBalance(r.Context(), user.ID)
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, newBalanceResponse(balance))
	})
}

// handleListTransactions returns user transactions newest first, ?kind= may be repeated
func handleListTransactions(ledgerService ledgerService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		var kinds []models.TransactionKind
		for _, k := range r.URL.Query()["kind"] {
			kind := models.TransactionKind(k)
			if !kind.Valid() {
				renderError(w, l, apperrors.NewValidationError("kind", fmt.Sprintf("Unknown transaction kind %q", k)))
				return
			}
			kinds = append(kinds, kind)
		}

		transactions, err := ledgerService.ListTransactions(r.Context(), user.ID, kinds...)
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, mapSlice(transactions, newTransactionResponse))
	})
}

// handleReconcile answers 409 if the stored balance drifted from the transaction sum
func handleReconcile(ledgerService ledgerService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		balance, err := ledgerService.Reconcile(r.Context(), user.ID)
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, newBalanceResponse(balance))
	})
}
