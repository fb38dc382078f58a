package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PayoutStatus string

const (
	PayoutStatusPending     PayoutStatus = "PENDING"     // persisted, nothing sent to the processor yet
	PayoutStatusTransferred PayoutStatus = "TRANSFERRED" // platform funds moved to the destination account
	PayoutStatusPaidOut     PayoutStatus = "PAID_OUT"    // payout to the bank created, ledger not committed
	PayoutStatusCompleted   PayoutStatus = "COMPLETED"
	PayoutStatusFailed      PayoutStatus = "FAILED"
)

// Unfinished reports whether the attempt may still be replayed
func (s PayoutStatus) Unfinished() bool {
	return s == PayoutStatusPending || s == PayoutStatusTransferred || s == PayoutStatusPaidOut
}

// PayoutAttempt is written before any processor call
// so a crash between processor success and ledger commit can be replayed
type PayoutAttempt struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
	UserID         uuid.UUID
	BankLinkID     uuid.UUID
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
	Status         PayoutStatus
	TransferID     string
	PayoutID       string
	TransactionID  *uuid.UUID
	FailureReason  string
}

func (a PayoutAttempt) TransferKey() string {
	return a.IdempotencyKey + ":transfer"
}

func (a PayoutAttempt) PayoutKey() string {
	return a.IdempotencyKey + ":payout"
}

type PayoutResult struct {
	Transaction Transaction
	Balance     Balance
	Attempt     PayoutAttempt
}
