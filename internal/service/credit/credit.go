package credit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/medipals/internal/apperrors"
	"github.com/nkiryanov/medipals/internal/logger"
	"github.com/nkiryanov/medipals/internal/models"
	"github.com/nkiryanov/medipals/internal/repository"
	"github.com/nkiryanov/medipals/internal/service/ledger"
	"github.com/nkiryanov/medipals/internal/service/processor"
)

type notifier interface {
	Emit(ctx context.Context, userID uuid.UUID, msg models.Message) (uuid.UUID, error)
}

type paymentProcessor interface {
	RetrievePaymentIntent(ctx context.Context, id string) (processor.PaymentIntent, error)
}

type CreditService struct {
	storage   repository.Storage
	processor paymentProcessor
	notifier  notifier
	logger    logger.Logger
	currency  string
}

func NewService(storage repository.Storage, client paymentProcessor, notifier notifier, l logger.Logger, currency string) *CreditService {
	return &CreditService{
		storage:   storage,
		processor: client,
		notifier:  notifier,
		logger:    l,
		currency:  currency,
	}
}

// PurchaseCredits books credits bought with a card payment
// The payment intent must be a succeeded credit purchase of the user for exactly this amount
// The processor payment reference can be booked only once
func (s *CreditService) PurchaseCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, externalPaymentRef string) (models.Transaction, models.Balance, error) {
	if !amount.IsPositive() {
		return models.Transaction{}, models.Balance{}, apperrors.ErrInvalidAmount
	}
	if err := ledger.ValidAmount(amount); err != nil {
		return models.Transaction{}, models.Balance{}, err
	}
	if externalPaymentRef == "" {
		return models.Transaction{}, models.Balance{}, apperrors.NewValidationError("external_payment_ref", "This field is required")
	}

	if err := s.verifyPayment(ctx, userID, externalPaymentRef, amount, nil); err != nil {
		return models.Transaction{}, models.Balance{}, err
	}

	return ledger.New(s.storage).RecordTransaction(ctx, models.Transaction{
		UserID:             userID,
		Amount:             amount,
		Kind:               models.TransactionKindCreditPurchase,
		PaymentMethod:      models.PaymentMethodCard,
		ExternalPaymentRef: externalPaymentRef,
	})
}

// DeductCredits pays for the booking from the payer balance
// Amount has to be the booking price, credits held by unfinished payouts can't be spent
// Marking the booking paid and the deduction are committed together
func (s *CreditService) DeductCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, bookingID uuid.UUID) (models.Transaction, models.Balance, error) {
	var (
		transaction models.Transaction
		balance     models.Balance
		before      models.Booking
	)

	if !amount.IsPositive() {
		return transaction, balance, apperrors.ErrInvalidAmount
	}

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		var err error

		before, err = payableBooking(ctx, st, userID, bookingID)
		if err != nil {
			return err
		}
		if !amount.Equal(before.Price) {
			return apperrors.NewValidationError("amount", "Amount must equal the booking price "+before.Price.StringFixed(2))
		}

		current, err := st.Balance().GetBalance(ctx, userID, true)
		if err != nil {
			return err
		}
		held, err := st.Payout().SumHeld(ctx, userID, uuid.Nil)
		if err != nil {
			return err
		}
		if current.Current.Sub(held).LessThan(amount) {
			return apperrors.ErrInsufficientBalance
		}

		if _, err = st.Booking().MarkPaid(ctx, bookingID); err != nil {
			return err
		}

		transaction, balance, err = ledger.New(st).RecordTransaction(ctx, models.Transaction{
			UserID:        userID,
			BookingID:     &bookingID,
			Amount:        amount.Neg(),
			Kind:          models.TransactionKindCreditDeduction,
			PaymentMethod: models.PaymentMethodCredits,
		})
		return err
	})
	if err != nil {
		return transaction, balance, err
	}

	s.notifyPaid(ctx, before)
	return transaction, balance, nil
}

// ConfirmBookingPayment completes a card checkout started for the booking
// The intent must be a succeeded payment of the payer for this booking and its price
// The booking is marked paid and a BOOKING card transaction is recorded together
func (s *CreditService) ConfirmBookingPayment(ctx context.Context, userID uuid.UUID, bookingID uuid.UUID, paymentIntentID string) (models.Transaction, models.Booking, error) {
	var (
		transaction models.Transaction
		paid        models.Booking
	)

	if paymentIntentID == "" {
		return transaction, paid, apperrors.NewValidationError("payment_intent_id", "This field is required")
	}

	before, err := payableBooking(ctx, s.storage, userID, bookingID)
	if err != nil {
		return transaction, paid, err
	}

	if err := s.verifyPayment(ctx, userID, paymentIntentID, before.Price, &bookingID); err != nil {
		return transaction, paid, err
	}

	err = s.storage.InTx(ctx, func(st repository.Storage) error {
		var err error

		// Recheck under lock, the booking could be paid with credits meanwhile
		if before, err = payableBooking(ctx, st, userID, bookingID); err != nil {
			return err
		}

		if paid, err = st.Booking().MarkPaid(ctx, bookingID); err != nil {
			return err
		}

		transaction, _, err = ledger.New(st).RecordTransaction(ctx, models.Transaction{
			UserID:             userID,
			BookingID:          &bookingID,
			Amount:             before.Price,
			Kind:               models.TransactionKindBooking,
			PaymentMethod:      models.PaymentMethodCard,
			ExternalPaymentRef: paymentIntentID,
		})
		return err
	})
	if err != nil {
		return transaction, paid, err
	}

	s.notifyPaid(ctx, before)
	return transaction, paid, nil
}

// GrantCredits adds credits on behalf of an admin and tells the user
func (s *CreditService) GrantCredits(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (models.Transaction, models.Balance, error) {
	if !amount.IsPositive() {
		return models.Transaction{}, models.Balance{}, apperrors.ErrInvalidAmount
	}

	transaction, balance, err := ledger.New(s.storage).RecordTransaction(ctx, models.Transaction{
		UserID:        userID,
		Amount:        amount,
		Kind:          models.TransactionKindCreditPurchase,
		PaymentMethod: models.PaymentMethodAdmin,
	})
	if err != nil {
		return transaction, balance, err
	}

	s.notify(ctx, userID, models.Message{
		Type:  models.NotificationInfo,
		Title: models.TitleCreditAdded,
		Text:  fmt.Sprintf("%s credits were added to your account", amount.StringFixed(2)),
	})

	return transaction, balance, nil
}

// payableBooking locks the booking and checks it may still be paid by the user
func payableBooking(ctx context.Context, st repository.Storage, userID uuid.UUID, bookingID uuid.UUID) (models.Booking, error) {
	b, err := st.Booking().GetBooking(ctx, bookingID, true)
	switch {
	case err != nil:
		return b, err
	case b.PayerID != userID:
		return b, apperrors.ErrBookingNotFound
	case b.IsPaid:
		return b, apperrors.ErrAlreadyPaid
	default:
		return b, nil
	}
}

// verifyPayment asks the processor whether the intent really paid amount on behalf of the user
// bookingID is nil for credit purchases
func (s *CreditService) verifyPayment(ctx context.Context, userID uuid.UUID, intentID string, amount decimal.Decimal, bookingID *uuid.UUID) error {
	intent, err := s.processor.RetrievePaymentIntent(ctx, intentID)

	var perr *processor.Error
	switch {
	case errors.As(err, &perr) && perr.Code == processor.CodeNotFound:
		return apperrors.ErrPaymentNotFound
	case err != nil:
		return apperrors.NewExternalServiceError(processor.OpRetrievePaymentIntent, err)
	case intent.Status != processor.PaymentIntentSucceeded:
		return fmt.Errorf("%w: intent %s is %s", apperrors.ErrPaymentNotCompleted, intentID, intent.Status)
	case intent.UserID != userID:
		return fmt.Errorf("%w: intent %s belongs to another user", apperrors.ErrPaymentMismatch, intentID)
	case !intent.Amount.Equal(amount):
		return fmt.Errorf("%w: intent %s paid %s, expected %s", apperrors.ErrPaymentMismatch, intentID, intent.Amount, amount)
	case !strings.EqualFold(intent.Currency, s.currency):
		return fmt.Errorf("%w: intent %s paid in %s", apperrors.ErrPaymentMismatch, intentID, intent.Currency)
	case !sameBooking(intent.BookingID, bookingID):
		return fmt.Errorf("%w: intent %s was made for another purpose", apperrors.ErrPaymentMismatch, intentID)
	default:
		return nil
	}
}

func sameBooking(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// notifyPaid tells the tutor about a booking that waited for payment
func (s *CreditService) notifyPaid(ctx context.Context, before models.Booking) {
	if before.Status != models.BookingStatusUnpaid {
		return
	}

	s.notify(ctx, before.TutorID, models.Message{
		Type:  models.NotificationAction,
		Title: models.TitleBookingReceived,
		Text:  fmt.Sprintf("You have a new paid booking for %s (%s)", before.LessonDate, before.TimeOfLesson),
	})
}

func (s *CreditService) notify(ctx context.Context, userID uuid.UUID, msg models.Message) {
	if _, err := s.notifier.Emit(ctx, userID, msg); err != nil {
		s.logger.Warn("Failed to emit notification", "user_id", userID, "title", msg.Title, "error", err)
	}
}
