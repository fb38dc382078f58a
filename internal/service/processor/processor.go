package processor

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/medipals/internal/models"
)

// Operation names used in errors, logs and metrics
const (
	OpCreateDestinationAccount    = "create_destination_account"
	OpRetrieveAccountRequirements = "retrieve_account_requirements"
	OpTransfer                    = "transfer"
	OpCreatePayout                = "create_payout"
	OpRemoveExternalAccount       = "remove_external_account"
	OpCreatePaymentIntent         = "create_payment_intent"
	OpRetrievePaymentIntent       = "retrieve_payment_intent"
)

const (
	CodeRateLimited = "rate-limited"
	CodeDeclined    = "declined"
	CodeNotFound    = "not-found"
	CodeUnavailable = "unavailable"
	CodeUnknown     = "unknown"
)

// Error is returned by processor clients for every failed call
// Code groups provider failures, Err keeps the provider detail verbatim
type Error struct {
	Op         string
	Code       string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("op: %s, code: %s, status: %d, error: %v", e.Op, e.Code, e.StatusCode, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Temporary reports whether the call may succeed when retried with the same idempotency key
func (e *Error) Temporary() bool {
	return e.Code == CodeRateLimited || e.Code == CodeUnavailable
}

func NewError(op string, code string, statusCode int, err error) *Error {
	return &Error{Op: op, Code: code, StatusCode: statusCode, Err: err}
}

type DestinationAccount struct {
	AccountID     string
	BankAccountID string
}

type TransferParams struct {
	Amount         decimal.Decimal
	Currency       string
	Destination    string // connected account id
	IdempotencyKey string
}

type PayoutParams struct {
	Amount         decimal.Decimal
	Currency       string
	Account        string // connected account the payout is made from
	IdempotencyKey string
}

type PaymentIntentParams struct {
	UserID    uuid.UUID
	Amount    decimal.Decimal
	Currency  string
	BookingID *uuid.UUID
}

// PaymentIntentSucceeded is the only status money was actually captured in
const PaymentIntentSucceeded = "succeeded"

type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       decimal.Decimal
	Currency     string

	// From metadata set on creation, zero values if the intent was made elsewhere
	UserID    uuid.UUID
	BookingID *uuid.UUID
}

// Client is the payment processor capability used by bank links, payouts and card payments
type Client interface {
	CreateDestinationAccount(ctx context.Context, userID uuid.UUID, details models.BankDetails) (DestinationAccount, error)

	// Return unmet verification requirement codes, empty if the account can receive payouts
	RetrieveAccountRequirements(ctx context.Context, accountID string) ([]string, error)

	Transfer(ctx context.Context, params TransferParams) (string, error)
	CreatePayout(ctx context.Context, params PayoutParams) (string, error)
	RemoveExternalAccount(ctx context.Context, accountID string, bankAccountID string) error
	CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (PaymentIntent, error)

	// Has to return Error with CodeNotFound if the intent is unknown to the processor
	RetrievePaymentIntent(ctx context.Context, id string) (PaymentIntent, error)
}

var hundred = decimal.NewFromInt(100)

// MinorUnits converts a credit amount to the smallest currency unit, one credit is one currency unit
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

func FromMinorUnits(units int64) decimal.Decimal {
	return decimal.New(units, -2)
}
