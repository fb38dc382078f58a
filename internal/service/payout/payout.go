package payout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/medipals/internal/apperrors"
	"github.com/nkiryanov/medipals/internal/logger"
	"github.com/nkiryanov/medipals/internal/metrics"
	"github.com/nkiryanov/medipals/internal/models"
	"github.com/nkiryanov/medipals/internal/repository"
	"github.com/nkiryanov/medipals/internal/service/ledger"
	"github.com/nkiryanov/medipals/internal/service/processor"
)

const DefaultCurrency = "usd"

type notifier interface {
	Emit(ctx context.Context, userID uuid.UUID, msg models.Message) (uuid.UUID, error)
}

type PayoutService struct {
	storage   repository.Storage
	processor processor.Client
	notifier  notifier
	logger    logger.Logger
	currency  string
}

func NewService(storage repository.Storage, client processor.Client, notifier notifier, l logger.Logger, currency string) *PayoutService {
	if currency == "" {
		currency = DefaultCurrency
	}
	return &PayoutService{
		storage:   storage,
		processor: client,
		notifier:  notifier,
		logger:    l,
		currency:  currency,
	}
}

// Payout withdraws credits to the linked bank account
//
// Preconditions are checked before any processor call, in order:
// bank link ownership, amount, available balance, destination requirements.
// Available balance is the current one less what unfinished attempts hold.
// The attempt is stored under the balance lock before calling out, so concurrent
// payouts can't spend the same credits, and a crash between processor success
// and the ledger commit can be replayed with the same idempotency keys.
func (s *PayoutService) Payout(ctx context.Context, userID uuid.UUID, bankLinkID uuid.UUID, amount decimal.Decimal) (models.PayoutResult, error) {
	var result models.PayoutResult

	link, err := s.storage.BankLink().GetBankLink(ctx, bankLinkID)
	switch {
	case errors.Is(err, apperrors.ErrBankLinkNotFound):
		return result, apperrors.ErrInvalidBankLink
	case err != nil:
		return result, err
	case link.UserID != userID:
		return result, apperrors.ErrInvalidBankLink
	}

	if !amount.IsPositive() {
		return result, apperrors.ErrInvalidAmount
	}
	if err := ledger.ValidAmount(amount); err != nil {
		return result, err
	}

	// Cheap check without the lock, repeated under it below
	if err := ensureAvailable(ctx, s.storage, userID, uuid.Nil, amount, false); err != nil {
		return result, err
	}

	// From here on processor calls run to completion even if the caller gives up
	pctx := context.WithoutCancel(ctx)

	unmet, err := s.processor.RetrieveAccountRequirements(pctx, link.ExternalAccountID)
	if err != nil {
		return result, apperrors.NewExternalServiceError(processor.OpRetrieveAccountRequirements, err)
	}
	if len(unmet) > 0 {
		return result, &apperrors.UnmetRequirementsError{Requirements: unmet}
	}

	var attempt models.PayoutAttempt
	err = s.storage.InTx(pctx, func(st repository.Storage) error {
		if err := ensureAvailable(pctx, st, userID, uuid.Nil, amount, true); err != nil {
			return err
		}

		id := uuid.New()
		var err error
		attempt, err = st.Payout().CreateAttempt(pctx, models.PayoutAttempt{
			ID:             id,
			UserID:         userID,
			BankLinkID:     link.ID,
			Amount:         amount,
			Currency:       s.currency,
			IdempotencyKey: "payout-" + id.String(),
			Status:         models.PayoutStatusPending,
		})
		return err
	})
	if err != nil {
		return result, err
	}

	s.logger.Info("Payout started", "attempt_id", attempt.ID, "user_id", userID, "bank_link_id", link.ID, "amount", amount)
	return s.execute(pctx, attempt, link)
}

// Replay continues an unfinished attempt from its last persisted step
// Processor idempotency keys and the unique payout reference keep every step single
// Before money moves again the balance must still cover the attempt, otherwise it fails
func (s *PayoutService) Replay(ctx context.Context, attemptID uuid.UUID) (models.PayoutResult, error) {
	pctx := context.WithoutCancel(ctx)

	attempt, err := s.storage.Payout().GetAttempt(pctx, attemptID, false)
	if err != nil {
		return models.PayoutResult{Attempt: attempt}, err
	}
	if !attempt.Status.Unfinished() {
		return models.PayoutResult{Attempt: attempt}, fmt.Errorf("%w: %s", apperrors.ErrPayoutAttemptFinished, attempt.Status)
	}

	link, err := s.storage.BankLink().GetBankLink(pctx, attempt.BankLinkID)
	if err != nil {
		if errors.Is(err, apperrors.ErrBankLinkNotFound) && attempt.Status == models.PayoutStatusPending {
			// Nothing was sent yet, so nothing is lost
			attempt, _ = s.fail(pctx, attempt, "replay", apperrors.ErrInvalidBankLink)
			return models.PayoutResult{Attempt: attempt}, apperrors.ErrInvalidBankLink
		}
		return models.PayoutResult{Attempt: attempt}, err
	}

	if attempt.Status == models.PayoutStatusPending || attempt.Status == models.PayoutStatusTransferred {
		err := s.storage.InTx(pctx, func(st repository.Storage) error {
			return ensureAvailable(pctx, st, attempt.UserID, attempt.ID, attempt.Amount, true)
		})
		if errors.Is(err, apperrors.ErrInsufficientBalance) {
			s.logger.Warn("Payout attempt no longer covered by balance", "attempt_id", attempt.ID, "status", attempt.Status)
			attempt, _ = s.fail(pctx, attempt, "replay", err)
			return models.PayoutResult{Attempt: attempt}, err
		}
		if err != nil {
			return models.PayoutResult{Attempt: attempt}, err
		}
	}

	s.logger.Info("Replaying payout attempt", "attempt_id", attempt.ID, "status", attempt.Status)
	return s.execute(pctx, attempt, link)
}

// ListAttempts returns user attempts oldest first, any user if userID is uuid.Nil
func (s *PayoutService) ListAttempts(ctx context.Context, userID uuid.UUID, statuses ...models.PayoutStatus) ([]models.PayoutAttempt, error) {
	return s.storage.Payout().ListAttempts(ctx, repository.ListAttemptsOpts{UserID: userID, Statuses: statuses})
}

func (s *PayoutService) execute(ctx context.Context, attempt models.PayoutAttempt, link models.BankLink) (models.PayoutResult, error) {
	var err error

	if attempt.Status == models.PayoutStatusPending {
		attempt.TransferID, err = s.processor.Transfer(ctx, processor.TransferParams{
			Amount:         attempt.Amount,
			Currency:       attempt.Currency,
			Destination:    link.ExternalAccountID,
			IdempotencyKey: attempt.TransferKey(),
		})
		if err != nil {
			return s.failExternal(ctx, attempt, processor.OpTransfer, err)
		}

		attempt.Status = models.PayoutStatusTransferred
		if attempt, err = s.save(ctx, attempt); err != nil {
			return models.PayoutResult{Attempt: attempt}, err
		}
	}

	if attempt.Status == models.PayoutStatusTransferred {
		attempt.PayoutID, err = s.processor.CreatePayout(ctx, processor.PayoutParams{
			Amount:         attempt.Amount,
			Currency:       attempt.Currency,
			Account:        link.ExternalAccountID,
			IdempotencyKey: attempt.PayoutKey(),
		})
		if err != nil {
			return s.failExternal(ctx, attempt, processor.OpCreatePayout, err)
		}

		attempt.Status = models.PayoutStatusPaidOut
		if attempt, err = s.save(ctx, attempt); err != nil {
			return models.PayoutResult{Attempt: attempt}, err
		}
	}

	return s.commit(ctx, attempt)
}

// save persists progress, the attempt is kept as is on failure so it can be replayed
func (s *PayoutService) save(ctx context.Context, attempt models.PayoutAttempt) (models.PayoutAttempt, error) {
	updated, err := s.storage.Payout().UpdateAttempt(ctx, attempt)
	if err != nil {
		s.logger.Error("Failed to save payout progress", "attempt_id", attempt.ID, "status", attempt.Status, "error", err)
		return attempt, err
	}
	return updated, nil
}

// commit records the withdrawal and completes the attempt in one db transaction
func (s *PayoutService) commit(ctx context.Context, attempt models.PayoutAttempt) (models.PayoutResult, error) {
	result := models.PayoutResult{Attempt: attempt}

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		var err error

		result.Transaction, result.Balance, err = ledger.New(st).RecordTransaction(ctx, models.Transaction{
			UserID:             attempt.UserID,
			Amount:             attempt.Amount.Neg(),
			Kind:               models.TransactionKindWithdrawal,
			PaymentMethod:      models.PaymentMethodCredits,
			ExternalPaymentRef: attempt.PayoutID,
		})
		if err != nil {
			return err
		}

		attempt.Status = models.PayoutStatusCompleted
		attempt.TransactionID = &result.Transaction.ID
		result.Attempt, err = st.Payout().UpdateAttempt(ctx, attempt)
		return err
	})

	switch {
	case err == nil:
		metrics.PayoutAttempts.WithLabelValues(string(models.PayoutStatusCompleted)).Inc()
		s.logger.Info("Payout completed", "attempt_id", attempt.ID, "payout_id", attempt.PayoutID, "transaction_id", result.Transaction.ID)
		s.notify(ctx, result)
		return result, nil

	case errors.Is(err, apperrors.ErrDuplicatePayment):
		// Another replay committed first
		current, gerr := s.storage.Payout().GetAttempt(ctx, attempt.ID, false)
		if gerr == nil && current.Status == models.PayoutStatusCompleted {
			return models.PayoutResult{Attempt: current}, nil
		}
		return result, err

	case errors.Is(err, apperrors.ErrInsufficientBalance):
		// Money left the platform but the balance was spent meanwhile, needs manual reconciliation
		s.logger.Error("Payout sent without ledger record", "attempt_id", attempt.ID, "payout_id", attempt.PayoutID, "error", err)
		result.Attempt, _ = s.fail(ctx, attempt, "ledger", err)
		return result, err

	default:
		// Stays PAID_OUT so the reconciler commits it later
		s.logger.Error("Failed to commit payout", "attempt_id", attempt.ID, "payout_id", attempt.PayoutID, "error", err)
		return result, err
	}
}

// failExternal fails the attempt on a permanent processor error
// Temporary errors leave it unfinished for Replay with the same idempotency keys
func (s *PayoutService) failExternal(ctx context.Context, attempt models.PayoutAttempt, op string, err error) (models.PayoutResult, error) {
	var perr *processor.Error
	if errors.As(err, &perr) && perr.Temporary() {
		s.logger.Warn("Payout step postponed", "attempt_id", attempt.ID, "op", op, "status", attempt.Status, "error", err)
		return models.PayoutResult{Attempt: attempt}, apperrors.NewExternalServiceError(op, err)
	}

	s.logger.Error("Payout step failed", "attempt_id", attempt.ID, "op", op, "status", attempt.Status, "error", err)

	attempt, _ = s.fail(ctx, attempt, op, err)
	return models.PayoutResult{Attempt: attempt}, apperrors.NewExternalServiceError(op, err)
}

// ensureAvailable checks the balance less held payouts covers amount
// excludeID leaves an attempt out of the held sum, lock takes the balance row lock
func ensureAvailable(ctx context.Context, st repository.Storage, userID uuid.UUID, excludeID uuid.UUID, amount decimal.Decimal, lock bool) error {
	balance, err := st.Balance().GetBalance(ctx, userID, lock)
	if err != nil {
		return err
	}

	held, err := st.Payout().SumHeld(ctx, userID, excludeID)
	if err != nil {
		return err
	}

	if balance.Current.Sub(held).LessThan(amount) {
		return apperrors.ErrInsufficientBalance
	}
	return nil
}

// fail keeps what was done so far and the reason for manual reconciliation
func (s *PayoutService) fail(ctx context.Context, attempt models.PayoutAttempt, step string, reason error) (models.PayoutAttempt, error) {
	attempt.Status = models.PayoutStatusFailed
	attempt.FailureReason = fmt.Sprintf("%s: %v", step, reason)

	updated, err := s.storage.Payout().UpdateAttempt(ctx, attempt)
	if err != nil {
		s.logger.Error("Failed to mark payout attempt failed", "attempt_id", attempt.ID, "error", err)
		return attempt, err
	}

	metrics.PayoutAttempts.WithLabelValues(string(models.PayoutStatusFailed)).Inc()
	return updated, nil
}

func (s *PayoutService) notify(ctx context.Context, result models.PayoutResult) {
	_, err := s.notifier.Emit(ctx, result.Attempt.UserID, models.Message{
		Type:  models.NotificationInfo,
		Title: models.TitlePayoutSent,
		Text:  fmt.Sprintf("%s %s is on the way to your bank account", result.Attempt.Amount.StringFixed(2), strings.ToUpper(result.Attempt.Currency)),
	})
	if err != nil {
		s.logger.Warn("Failed to emit payout notification", "attempt_id", result.Attempt.ID, "error", err)
	}
}
