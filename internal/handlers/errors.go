package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/medipals/internal/apperrors"
	"github.com/nkiryanov/medipals/internal/handlers/render"
	"github.com/nkiryanov/medipals/internal/logger"
)

const unmetRequirementsErrorType = "unmet_requirements"

// First match wins, so specific errors go before their parents
var errorStatuses = []struct {
	target  error
	status  int
	message string
}{
	{apperrors.ErrInvalidAmount, http.StatusBadRequest, "Amount must be positive"},
	{apperrors.ErrInvalidBankLink, http.StatusBadRequest, "Bank link does not exist"},
	{apperrors.ErrInsufficientBalance, http.StatusPaymentRequired, "Insufficient balance"},
	{apperrors.ErrActorNotAllowed, http.StatusForbidden, "Not allowed"},
	{apperrors.ErrNotTutor, http.StatusForbidden, "Only tutors can offer lessons"},
	{apperrors.ErrPaymentNotCompleted, http.StatusPaymentRequired, "Payment is not completed"},
	{apperrors.ErrPaymentMismatch, http.StatusUnprocessableEntity, "Payment does not match the request"},
	{apperrors.ErrUserNotFound, http.StatusNotFound, "User not found"},
	{apperrors.ErrBookingNotFound, http.StatusNotFound, "Booking not found"},
	{apperrors.ErrLessonNotFound, http.StatusNotFound, "Lesson not found"},
	{apperrors.ErrPaymentNotFound, http.StatusNotFound, "Payment not found"},
	{apperrors.ErrBankLinkNotFound, http.StatusNotFound, "Bank link not found"},
	{apperrors.ErrNotificationNotFound, http.StatusNotFound, "Notification not found"},
	{apperrors.ErrPayoutAttemptNotFound, http.StatusNotFound, "Payout attempt not found"},
	{apperrors.ErrNotFound, http.StatusNotFound, "Not found"},
	{apperrors.ErrUserAlreadyExists, http.StatusConflict, "User already exists"},
	{apperrors.ErrDuplicatePayment, http.StatusConflict, "Payment already recorded"},
	{apperrors.ErrDuplicateBankLink, http.StatusConflict, "Bank account already linked"},
	{apperrors.ErrAlreadyPaid, http.StatusConflict, "Booking already paid"},
	{apperrors.ErrAlreadyRated, http.StatusConflict, "Booking already rated"},
	{apperrors.ErrInvalidTransition, http.StatusConflict, "Booking status can't be changed this way"},
	{apperrors.ErrBookingNotRateable, http.StatusConflict, "Booking can't be rated yet"},
	{apperrors.ErrPayoutAttemptFinished, http.StatusConflict, "Payout attempt is finished already"},
	{apperrors.ErrBalanceMismatch, http.StatusConflict, "Balance does not match transactions"},
}

type unmetRequirementsResponse struct {
	Error        string   `json:"error"`
	Message      string   `json:"message"`
	Requirements []string `json:"requirements"`
}

// renderError writes the response matching err, unknown errors are logged and hidden
func renderError(w http.ResponseWriter, l logger.Logger, err error) {
	var verr *apperrors.ValidationError
	var unmet *apperrors.UnmetRequirementsError

	switch {
	case errors.As(err, &verr):
		render.ValidationErrors(w, verr.Fields)
		return

	case errors.As(err, &unmet):
		render.JSONWithStatus(w, unmetRequirementsResponse{
			Error:        unmetRequirementsErrorType,
			Message:      "Bank account needs more verification before payouts",
			Requirements: unmet.Requirements,
		}, http.StatusUnprocessableEntity)
		return

	case errors.Is(err, apperrors.ErrExternalService):
		l.Warn("Payment processor call failed", "error", err)
		render.ServiceError(w, err.Error(), http.StatusBadGateway)
		return
	}

	for _, es := range errorStatuses {
		if errors.Is(err, es.target) {
			render.ServiceError(w, es.message, es.status)
			return
		}
	}

	l.Error("Request failed", "error", err)
	render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
}
