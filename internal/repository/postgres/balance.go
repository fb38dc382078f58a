package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/medipals/internal/apperrors"
	"github.com/nkiryanov/medipals/internal/models"
	"github.com/nkiryanov/medipals/internal/repository"
)

type BalanceRepo struct {
	DB DBTX
}

const balanceColumns = `user_id, current, withdrawn, updated_at`

const createBalance = `-- name: CreateBalance
INSERT INTO balances (user_id, current, withdrawn)
VALUES ($1, 0, 0)
RETURNING ` + balanceColumns

func (r *BalanceRepo) CreateBalance(ctx context.Context, userID uuid.UUID) (models.Balance, error) {
	rows, _ := r.DB.Query(ctx, createBalance, userID)
	balance, err := pgx.CollectOneRow(rows, rowToBalance)

	if err != nil {
		if code, _ := pgErrorCode(err); code == pgerrcode.UniqueViolation {
			return balance, fmt.Errorf("user balance already exists: %w", err)
		}
		return balance, fmt.Errorf("db error: %w", err)
	}

	return balance, nil
}

const getBalance = `-- name: GetBalance
SELECT ` + balanceColumns + ` FROM balances
WHERE user_id = $1
`

func (r *BalanceRepo) GetBalance(ctx context.Context, userID uuid.UUID, lock bool) (models.Balance, error) {
	rows, _ := r.DB.Query(ctx, forUpdate(getBalance, lock), userID)
	balance, err := pgx.CollectOneRow(rows, rowToBalance)

	switch {
	case err == nil:
		return balance, nil
	case errors.Is(err, pgx.ErrNoRows):
		return balance, apperrors.ErrUserNotFound
	default:
		return balance, fmt.Errorf("db error: %w", err)
	}
}

// Single statement increment, CHECK constraint rejects negative result
const updateBalance = `-- name: UpdateBalance
UPDATE balances
SET current = current + $2,
    withdrawn = withdrawn + $3,
    updated_at = now()
WHERE user_id = $1
RETURNING ` + balanceColumns

func (r *BalanceRepo) UpdateBalance(ctx context.Context, t models.Transaction) (models.Balance, error) {
	withdrawn := decimal.Zero
	if t.Kind == models.TransactionKindWithdrawal {
		withdrawn = t.Amount.Neg()
	}

	rows, _ := r.DB.Query(ctx, updateBalance, t.UserID, t.Amount, withdrawn)
	balance, err := pgx.CollectOneRow(rows, rowToBalance)

	switch code, _ := pgErrorCode(err); {
	case err == nil:
		return balance, nil
	case errors.Is(err, pgx.ErrNoRows):
		return balance, apperrors.ErrUserNotFound
	case code == pgerrcode.CheckViolation:
		return balance, apperrors.ErrInsufficientBalance
	default:
		return balance, fmt.Errorf("db error: %w", err)
	}
}

const transactionColumns = `id, created_at, user_id, booking_id, amount, kind, payment_method, external_payment_ref`

const createTransaction = `-- name: CreateTransaction
INSERT INTO transactions (id, created_at, user_id, booking_id, amount, kind, payment_method, external_payment_ref)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
RETURNING ` + transactionColumns

func (r *BalanceRepo) CreateTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	rows, _ := r.DB.Query(ctx, createTransaction,
		t.ID, t.CreatedAt, t.UserID, t.BookingID, t.Amount, t.Kind, t.PaymentMethod, t.ExternalPaymentRef,
	)
	created, err := pgx.CollectOneRow(rows, rowToTransaction)

	switch code, constraint := pgErrorCode(err); {
	case err == nil:
		return created, nil
	case code == pgerrcode.UniqueViolation && constraint == "transactions_booking_deduction_key":
		return created, apperrors.ErrAlreadyPaid
	case code == pgerrcode.UniqueViolation:
		return created, apperrors.ErrDuplicatePayment
	case code == pgerrcode.ForeignKeyViolation:
		return created, fmt.Errorf("transaction references unknown user or booking: %w", apperrors.ErrNotFound)
	default:
		return created, fmt.Errorf("db error: %w", err)
	}
}

const listTransactions = `-- name: ListTransactions
SELECT ` + transactionColumns + ` FROM transactions
WHERE user_id = $1
  AND (cardinality($2::text[]) = 0 OR kind = ANY($2::text[]))
ORDER BY created_at DESC, id
LIMIT NULLIF($3, 0)
`

func (r *BalanceRepo) ListTransactions(ctx context.Context, opts repository.ListTransactionsOpts) ([]models.Transaction, error) {
	kinds := make([]string, 0, len(opts.Kinds))
	for _, k := range opts.Kinds {
		kinds = append(kinds, string(k))
	}

	rows, _ := r.DB.Query(ctx, listTransactions, opts.UserID, kinds, opts.Limit)
	transactions, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return transactions, nil
}

const sumTransactions = `-- name: SumTransactions
SELECT COALESCE(SUM(amount), 0) FROM transactions
WHERE user_id = $1 AND kind <> 'BOOKING'
`

func (r *BalanceRepo) SumTransactions(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.DB.QueryRow(ctx, sumTransactions, userID).Scan(&sum)
	if err != nil {
		return sum, fmt.Errorf("db error: %w", err)
	}
	return sum, nil
}

func rowToBalance(row pgx.CollectableRow) (models.Balance, error) {
	var b models.Balance
	err := row.Scan(&b.UserID, &b.Current, &b.Withdrawn, &b.UpdatedAt)
	return b, err
}

func rowToTransaction(row pgx.CollectableRow) (models.Transaction, error) {
	var (
		t   models.Transaction
		ref *string
	)
	err := row.Scan(&t.ID, &t.CreatedAt, &t.UserID, &t.BookingID, &t.Amount, &t.Kind, &t.PaymentMethod, &ref)
	if ref != nil {
		t.ExternalPaymentRef = *ref
	}
	return t, err
}
