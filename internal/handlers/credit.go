package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/medipals/internal/apperrors"
	"github.com/nkiryanov/medipals/internal/handlers/render"
	"github.com/nkiryanov/medipals/internal/handlers/userctx"
	"github.com/nkiryanov/medipals/internal/logger"
	"github.com/nkiryanov/medipals/internal/service/ledger"
	"github.com/nkiryanov/medipals/internal/service/processor"
)

func handlePurchaseCredits(creditService creditService, l logger.Logger) http.Handler {
	type request struct {
		Amount             decimal.Decimal `json:"amount"`
		ExternalPaymentRef string          `json:"external_payment_ref" validate:"required,max=255"`
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

		tr, balance, err := creditService.PurchaseCredits(r.Context(), user.ID, data.Amount, data.ExternalPaymentRef)
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSONWithStatus(w, ledgerEntryResponse{
			Transaction: newTransactionResponse(tr),
			Balance:     newBalanceResponse(balance),
		}, http.StatusCreated)
	})
}

func handlePayBooking(creditService creditService, l logger.Logger) http.Handler {
	type request struct {
		Amount decimal.Decimal `json:"amount"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}
		bookingID, ok := pathID(w, r)
		if !ok {
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		tr, balance, err := creditService.DeductCredits(r.Context(), user.ID, data.Amount, bookingID)
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, ledgerEntryResponse{
			Transaction: newTransactionResponse(tr),
			Balance:     newBalanceResponse(balance),
		})
	})
}

// handleConfirmBookingPayment completes a card checkout started with /payment/init for the booking
func handleConfirmBookingPayment(creditService creditService, l logger.Logger) http.Handler {
	type request struct {
		PaymentIntentID string `json:"payment_intent_id" validate:"required,max=255"`
	}
	type response struct {
		Transaction transactionResponse `json:"transaction"`
		Booking     bookingResponse     `json:"booking"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}
		bookingID, ok := pathID(w, r)
		if !ok {
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		tr, b, err := creditService.ConfirmBookingPayment(r.Context(), user.ID, bookingID, data.PaymentIntentID)
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, response{
			Transaction: newTransactionResponse(tr),
			Booking:     newBookingResponse(b),
		})
	})
}

func handleGrantCredits(creditService creditService, l logger.Logger) http.Handler {
	type request struct {
		UserID uuid.UUID       `json:"user_id" validate:"required"`
		Amount decimal.Decimal `json:"amount"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		tr, balance, err := creditService.GrantCredits(r.Context(), data.UserID, data.Amount)
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSONWithStatus(w, ledgerEntryResponse{
			Transaction: newTransactionResponse(tr),
			Balance:     newBalanceResponse(balance),
		}, http.StatusCreated)
	})
}

// handlePaymentInit starts a card checkout, credits are added once the payment is confirmed
func handlePaymentInit(paymentProcessor paymentProcessor, currency string, l logger.Logger) http.Handler {
	type request struct {
		Amount    decimal.Decimal `json:"amount"`
		BookingID *uuid.UUID      `json:"booking_id"`
	}
	type response struct {
		PaymentIntentID string `json:"payment_intent_id"`
		ClientSecret    string `json:"client_secret"`
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
		if !data.Amount.IsPositive() {
			renderError(w, l, apperrors.ErrInvalidAmount)
			return
		}
		if err := ledger.ValidAmount(data.Amount); err != nil {
			renderError(w, l, err)
			return
		}

		intent, err := paymentProcessor.CreatePaymentIntent(context.WithoutCancel(r.Context()), processor.PaymentIntentParams{
			UserID:    user.ID,
			Amount:    data.Amount,
			Currency:  currency,
			BookingID: data.BookingID,
		})
		if err != nil {
			renderError(w, l, apperrors.NewExternalServiceError(processor.OpCreatePaymentIntent, err))
			return
		}

		render.JSON(w, response{PaymentIntentID: intent.ID, ClientSecret: intent.ClientSecret})
	})
}
