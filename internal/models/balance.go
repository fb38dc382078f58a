package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	TransactionKindBooking         TransactionKind = "BOOKING"
	TransactionKindCreditPurchase  TransactionKind = "CREDIT_PURCHASE"
	TransactionKindCreditDeduction TransactionKind = "CREDIT_DEDUCTION"
	TransactionKindWithdrawal      TransactionKind = "WITHDRAWAL"
)

func (k TransactionKind) Valid() bool {
	switch k {
	case TransactionKindBooking, TransactionKindCreditPurchase, TransactionKindCreditDeduction, TransactionKindWithdrawal:
		return true
	default:
		return false
	}
}

// IsDebit reports whether the kind may only lower the balance
func (k TransactionKind) IsDebit() bool {
	return k == TransactionKindCreditDeduction || k == TransactionKindWithdrawal
}

// IsCredit reports whether the kind may only raise the balance
func (k TransactionKind) IsCredit() bool {
	return k == TransactionKindCreditPurchase
}

type PaymentMethod string

const (
	PaymentMethodCard    PaymentMethod = "CARD"
	PaymentMethodCredits PaymentMethod = "CREDITS"
	PaymentMethodAdmin   PaymentMethod = "ADMIN"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodCredits, PaymentMethodAdmin:
		return true
	default:
		return false
	}
}

type Balance struct {
	UserID    uuid.UUID
	Current   decimal.Decimal
	Withdrawn decimal.Decimal
	UpdatedAt time.Time
}

// Transaction is an immutable ledger record
// Amount is signed: positive adds credits, negative removes them
type Transaction struct {
	ID                 uuid.UUID
	CreatedAt          time.Time
	UserID             uuid.UUID
	BookingID          *uuid.UUID
	Amount             decimal.Decimal
	Kind               TransactionKind
	PaymentMethod      PaymentMethod
	ExternalPaymentRef string // empty when the transaction has no processor counterpart
}
