package apperrors

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrExternalService = errors.New("external service error")
	ErrInternal        = errors.New("internal error")

	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = fmt.Errorf("user %w", ErrNotFound)

	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenIsUsed   = errors.New("refresh token is used")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")

	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrDuplicatePayment    = errors.New("payment reference already recorded")
	ErrBalanceMismatch     = errors.New("balance does not match recorded transactions")
	ErrPaymentNotFound     = fmt.Errorf("payment %w", ErrNotFound)
	ErrPaymentNotCompleted = errors.New("payment is not completed")
	ErrPaymentMismatch     = errors.New("payment does not match the request")

	ErrBankLinkNotFound  = fmt.Errorf("bank link %w", ErrNotFound)
	ErrInvalidBankLink   = errors.New("bank link does not exist or belongs to another account")
	ErrDuplicateBankLink = errors.New("bank account already linked")
	ErrUnmetRequirements = errors.New("payout destination has unmet requirements")

	ErrLessonNotFound = fmt.Errorf("lesson %w", ErrNotFound)
	ErrNotTutor       = errors.New("only tutors can offer lessons")

	ErrBookingNotFound    = fmt.Errorf("booking %w", ErrNotFound)
	ErrAlreadyPaid        = errors.New("booking already paid")
	ErrInvalidTransition  = errors.New("booking status transition not allowed")
	ErrActorNotAllowed    = errors.New("actor is not allowed to change the booking")
	ErrAlreadyRated       = errors.New("booking already rated")
	ErrBookingNotRateable = errors.New("booking can be rated only when delivered or completed")

	ErrNotificationNotFound = fmt.Errorf("notification %w", ErrNotFound)

	ErrPayoutAttemptNotFound = fmt.Errorf("payout attempt %w", ErrNotFound)
	ErrPayoutAttemptFinished = errors.New("payout attempt is finished already")
)

// ValidationError carries per field messages for malformed input
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, field := range slices.Sorted(maps.Keys(e.Fields)) {
		parts = append(parts, field+": "+e.Fields[field])
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// UnmetRequirementsError lists verification items the processor still wants for a destination account
type UnmetRequirementsError struct {
	Requirements []string
}

func (e *UnmetRequirementsError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnmetRequirements, strings.Join(e.Requirements, ", "))
}

func (e *UnmetRequirementsError) Is(target error) bool {
	return target == ErrUnmetRequirements
}

// ExternalServiceError wraps a failed processor call with the operation name
// Provider detail is kept verbatim so failed payouts can be reconciled by hand
type ExternalServiceError struct {
	Op  string
	Err error
}

func NewExternalServiceError(op string, err error) *ExternalServiceError {
	return &ExternalServiceError{Op: op, Err: err}
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrExternalService, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

func (e *ExternalServiceError) Is(target error) bool {
	return target == ErrExternalService
}
