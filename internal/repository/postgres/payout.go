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

type PayoutRepo struct {
	DB DBTX
}

const payoutAttemptColumns = `id, created_at, updated_at, user_id, bank_link_id, amount, currency, idempotency_key,
	status, transfer_id, payout_id, transaction_id, failure_reason`

const createAttempt = `-- name: CreatePayoutAttempt
INSERT INTO payout_attempts (id, created_at, updated_at, user_id, bank_link_id, amount, currency, idempotency_key, status)
VALUES ($1, $2, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + payoutAttemptColumns

func (r *PayoutRepo) CreateAttempt(ctx context.Context, a models.PayoutAttempt) (models.PayoutAttempt, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if a.Status == "" {
		a.Status = models.PayoutStatusPending
	}

	rows, _ := r.DB.Query(ctx, createAttempt,
		a.ID, a.CreatedAt, a.UserID, a.BankLinkID, a.Amount, a.Currency, a.IdempotencyKey, a.Status,
	)
	created, err := pgx.CollectOneRow(rows, rowToPayoutAttempt)

	switch code, _ := pgErrorCode(err); {
	case err == nil:
		return created, nil
	case code == pgerrcode.UniqueViolation:
		return created, fmt.Errorf("payout attempt with key %q exists: %w", a.IdempotencyKey, err)
	default:
		return created, fmt.Errorf("db error: %w", err)
	}
}

const getAttempt = `-- name: GetPayoutAttempt
SELECT ` + payoutAttemptColumns + ` FROM payout_attempts
WHERE id = $1
`

func (r *PayoutRepo) GetAttempt(ctx context.Context, id uuid.UUID, lock bool) (models.PayoutAttempt, error) {
	rows, _ := r.DB.Query(ctx, forUpdate(getAttempt, lock), id)
	return collectPayoutAttempt(rows)
}

const updateAttempt = `-- name: UpdatePayoutAttempt
UPDATE payout_attempts
SET status = $2,
    transfer_id = $3,
    payout_id = $4,
    transaction_id = $5,
    failure_reason = $6,
    updated_at = now()
WHERE id = $1
RETURNING ` + payoutAttemptColumns

func (r *PayoutRepo) UpdateAttempt(ctx context.Context, a models.PayoutAttempt) (models.PayoutAttempt, error) {
	rows, _ := r.DB.Query(ctx, updateAttempt, a.ID, a.Status, a.TransferID, a.PayoutID, a.TransactionID, a.FailureReason)
	return collectPayoutAttempt(rows)
}

const listAttempts = `-- name: ListPayoutAttempts
SELECT ` + payoutAttemptColumns + ` FROM payout_attempts
WHERE ($1::uuid IS NULL OR user_id = $1)
  AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
  AND ($3::timestamptz IS NULL OR updated_at < $3)
ORDER BY created_at, id
LIMIT NULLIF($4, 0)
`

func (r *PayoutRepo) ListAttempts(ctx context.Context, opts repository.ListAttemptsOpts) ([]models.PayoutAttempt, error) {
	var (
		userID        *uuid.UUID
		updatedBefore *time.Time
	)
	if opts.UserID != uuid.Nil {
		userID = &opts.UserID
	}
	if !opts.UpdatedBefore.IsZero() {
		updatedBefore = &opts.UpdatedBefore
	}

	statuses := make([]string, 0, len(opts.Statuses))
	for _, s := range opts.Statuses {
		statuses = append(statuses, string(s))
	}

	rows, _ := r.DB.Query(ctx, listAttempts, userID, statuses, updatedBefore, opts.Limit)
	attempts, err := pgx.CollectRows(rows, rowToPayoutAttempt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return attempts, nil
}

const sumHeld = `-- name: SumHeldPayouts
SELECT COALESCE(SUM(amount), 0) FROM payout_attempts
WHERE user_id = $1
  AND id <> $2
  AND (status IN ('PENDING', 'TRANSFERRED', 'PAID_OUT')
       OR (status = 'FAILED' AND transfer_id <> '' AND transaction_id IS NULL))
`

func (r *PayoutRepo) SumHeld(ctx context.Context, userID uuid.UUID, excludeID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.DB.QueryRow(ctx, sumHeld, userID, excludeID).Scan(&sum)
	if err != nil {
		return sum, fmt.Errorf("db error: %w", err)
	}
	return sum, nil
}

func collectPayoutAttempt(rows pgx.Rows) (models.PayoutAttempt, error) {
	attempt, err := pgx.CollectOneRow(rows, rowToPayoutAttempt)

	switch {
	case err == nil:
		return attempt, nil
	case errors.Is(err, pgx.ErrNoRows):
		return attempt, apperrors.ErrPayoutAttemptNotFound
	default:
		return attempt, fmt.Errorf("db error: %w", err)
	}
}

func rowToPayoutAttempt(row pgx.CollectableRow) (models.PayoutAttempt, error) {
	var a models.PayoutAttempt
	err := row.Scan(
		&a.ID, &a.CreatedAt, &a.UpdatedAt, &a.UserID, &a.BankLinkID, &a.Amount, &a.Currency, &a.IdempotencyKey,
		&a.Status, &a.TransferID, &a.PayoutID, &a.TransactionID, &a.FailureReason,
	)
	return a, err
}
