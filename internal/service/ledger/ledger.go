package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/medipals/internal/apperrors"
	"github.com/nkiryanov/medipals/internal/metrics"
	"github.com/nkiryanov/medipals/internal/models"
	"github.com/nkiryanov/medipals/internal/repository"
)

// LedgerService keeps balances equal to the sum of their immutable transactions
type LedgerService struct {
	storage repository.Storage
}

func New(storage repository.Storage) *LedgerService {
	return &LedgerService{storage: storage}
}

// RecordTransaction appends the transaction and applies its signed amount to the balance
// Both happen in one db transaction: either both are stored or none
// BOOKING card payments are recorded for reporting only and leave the balance as is
func (s *LedgerService) RecordTransaction(ctx context.Context, t models.Transaction) (models.Transaction, models.Balance, error) {
	var (
		created models.Transaction
		balance models.Balance
	)

	if err := validate(t); err != nil {
		return created, balance, err
	}

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		var err error

		created, err = st.Balance().CreateTransaction(ctx, t)
		if err != nil {
			return err
		}

		if created.Kind == models.TransactionKindBooking {
			balance, err = st.Balance().GetBalance(ctx, created.UserID, false)
			return err
		}

		balance, err = st.Balance().UpdateBalance(ctx, created)
		return err
	})

	switch {
	case err == nil:
		metrics.LedgerTransactions.WithLabelValues(string(created.Kind)).Inc()
		return created, balance, nil
	case errors.Is(err, apperrors.ErrInsufficientBalance):
		metrics.LedgerRejected.WithLabelValues("insufficient_balance").Inc()
	case errors.Is(err, apperrors.ErrDuplicatePayment):
		metrics.LedgerRejected.WithLabelValues("duplicate_payment").Inc()
	case errors.Is(err, apperrors.ErrAlreadyPaid):
		metrics.LedgerRejected.WithLabelValues("already_paid").Inc()
	}

	return created, balance, err
}

func (s *LedgerService) GetBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error) {
	return s.storage.Balance().GetBalance(ctx, userID, false)
}

// ListTransactions returns user transactions newest first, all kinds if none given
func (s *LedgerService) ListTransactions(ctx context.Context, userID uuid.UUID, kinds ...models.TransactionKind) ([]models.Transaction, error) {
	return s.storage.Balance().ListTransactions(ctx, repository.ListTransactionsOpts{UserID: userID, Kinds: kinds})
}

// Reconcile checks that the balance equals the sum of recorded transactions
func (s *LedgerService) Reconcile(ctx context.Context, userID uuid.UUID) (models.Balance, error) {
	var balance models.Balance

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		var err error

		// Lock so no transaction lands between the two reads
		balance, err = st.Balance().GetBalance(ctx, userID, true)
		if err != nil {
			return err
		}

		sum, err := st.Balance().SumTransactions(ctx, userID)
		if err != nil {
			return err
		}

		if !sum.Equal(balance.Current) {
			return fmt.Errorf("%w: balance %s, transactions sum %s", apperrors.ErrBalanceMismatch, balance.Current, sum)
		}
		return nil
	})

	return balance, err
}

// Largest magnitude NUMERIC(14,2) column can hold is just below this
var maxAmount = decimal.New(1, 12)

// ValidAmount checks the amount fits the ledger: cents precision and NUMERIC(14,2) range
func ValidAmount(amount decimal.Decimal) error {
	switch {
	case !amount.Equal(amount.Truncate(2)):
		return apperrors.NewValidationError("amount", "Amount must have at most 2 decimal places")
	case amount.Abs().GreaterThanOrEqual(maxAmount):
		return apperrors.NewValidationError("amount", "Amount is too large")
	default:
		return nil
	}
}

func validate(t models.Transaction) error {
	switch {
	case t.UserID == uuid.Nil:
		return apperrors.NewValidationError("user_id", "This field is required")
	case !t.Kind.Valid():
		return apperrors.NewValidationError("kind", fmt.Sprintf("Unknown transaction kind %q", t.Kind))
	case !t.PaymentMethod.Valid():
		return apperrors.NewValidationError("payment_method", fmt.Sprintf("Unknown payment method %q", t.PaymentMethod))
	case t.Amount.IsZero():
		return apperrors.NewValidationError("amount", "Amount must not be zero")
	case ValidAmount(t.Amount) != nil:
		return ValidAmount(t.Amount)
	case t.Kind.IsCredit() && t.Amount.IsNegative():
		return apperrors.NewValidationError("amount", "Amount must be positive for "+string(t.Kind))
	case t.Kind.IsDebit() && t.Amount.IsPositive():
		return apperrors.NewValidationError("amount", "Amount must be negative for "+string(t.Kind))
	default:
		return nil
	}
}
