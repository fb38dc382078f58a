package credit

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/medipals/internal/apperrors"
	"github.com/nkiryanov/medipals/internal/logger"
	"github.com/nkiryanov/medipals/internal/models"
	"github.com/nkiryanov/medipals/internal/repository"
	"github.com/nkiryanov/medipals/internal/repository/postgres"
	"github.com/nkiryanov/medipals/internal/service/notification"
	"github.com/nkiryanov/medipals/internal/service/processor"
	"github.com/nkiryanov/medipals/internal/testutil"
)

const currency = "usd"

type fixture struct {
	storage   repository.Storage
	publisher *testutil.FakePublisher
	processor *testutil.FakeProcessor
	payer     models.User
	tutor     models.User
}

// booking of a lesson with the given price
func (f fixture) booking(t *testing.T, status models.BookingStatus, price string) models.Booking {
	lesson := testutil.CreateLesson(t, f.storage, f.tutor.ID, price)

	b, err := f.storage.Booking().CreateBooking(t.Context(), models.Booking{
		LessonID:     lesson.ID,
		PayerID:      f.payer.ID,
		TutorID:      f.tutor.ID,
		LessonDate:   "2026-11-02",
		TimeOfLesson: models.TimeOfLessonMorning,
		Price:        lesson.Price,
		Status:       status,
	})
	require.NoError(t, err)
	return b
}

// paid returns a succeeded credit purchase intent of the payer
func (f fixture) paid(amount int64) string {
	return f.processor.PaidIntent(f.payer.ID, decimal.NewFromInt(amount), currency, nil)
}

func (f fixture) balance(t *testing.T) decimal.Decimal {
	b, err := f.storage.Balance().GetBalance(t.Context(), f.payer.ID, false)
	require.NoError(t, err)
	return b.Current
}

func TestCreditService(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	withTx := func(t *testing.T, fn func(s *CreditService, f fixture)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			publisher := &testutil.FakePublisher{}
			notifier := notification.NewService(storage, publisher, logger.NewNoOpLogger())

			f := fixture{
				storage:   storage,
				publisher: publisher,
				processor: testutil.NewFakeProcessor(),
				payer:     testutil.CreateUser(t, storage, "student", models.RoleStudent),
				tutor:     testutil.CreateUser(t, storage, "tutor", models.RoleTutor),
			}
			fn(NewService(storage, f.processor, notifier, logger.NewNoOpLogger(), currency), f)
		})
	}

	t.Run("PurchaseCredits", func(t *testing.T) {
		t.Run("ok", func(t *testing.T) {
			withTx(t, func(s *CreditService, f fixture) {
				ref := f.paid(500)

				tr, balance, err := s.PurchaseCredits(t.Context(), f.payer.ID, decimal.NewFromInt(500), ref)

				require.NoError(t, err)
				require.Equal(t, models.TransactionKindCreditPurchase, tr.Kind)
				require.Equal(t, models.PaymentMethodCard, tr.PaymentMethod)
				require.Equal(t, ref, tr.ExternalPaymentRef)
				require.True(t, decimal.NewFromInt(500).Equal(balance.Current))
			})
		})

		t.Run("same reference twice", func(t *testing.T) {
			withTx(t, func(s *CreditService, f fixture) {
				ref := f.paid(500)
				_, _, err := s.PurchaseCredits(t.Context(), f.payer.ID, decimal.NewFromInt(500), ref)
				require.NoError(t, err)

				_, _, err = s.PurchaseCredits(t.Context(), f.payer.ID, decimal.NewFromInt(500), ref)

				require.ErrorIs(t, err, apperrors.ErrDuplicatePayment)
				require.True(t, decimal.NewFromInt(500).Equal(f.balance(t)))
			})
		})

		t.Run("unverified payments credit nothing", func(t *testing.T) {
			withTx(t, func(s *CreditService, f fixture) {
				bookingID := uuid.New()
				started, err := f.processor.CreatePaymentIntent(t.Context(), processor.PaymentIntentParams{
					UserID: f.payer.ID, Amount: decimal.NewFromInt(100), Currency: currency,
				})
				require.NoError(t, err)

				tests := []struct {
					name    string
					ref     string
					amount  int64
					wantErr error
				}{
					{"made up reference", "pi_made_up", 100, apperrors.ErrPaymentNotFound},
					{"not paid yet", started.ID, 100, apperrors.ErrPaymentNotCompleted},
					{"other amount", f.paid(100), 1000, apperrors.ErrPaymentMismatch},
					{"other user", f.processor.PaidIntent(f.tutor.ID, decimal.NewFromInt(100), currency, nil), 100, apperrors.ErrPaymentMismatch},
					{"other currency", f.processor.PaidIntent(f.payer.ID, decimal.NewFromInt(100), "eur", nil), 100, apperrors.ErrPaymentMismatch},
					{"booking payment", f.processor.PaidIntent(f.payer.ID, decimal.NewFromInt(100), currency, &bookingID), 100, apperrors.ErrPaymentMismatch},
				}

				for _, tt := range tests {
					t.Run(tt.name, func(t *testing.T) {
						_, _, err := s.PurchaseCredits(t.Context(), f.payer.ID, decimal.NewFromInt(tt.amount), tt.ref)

						require.ErrorIs(t, err, tt.wantErr)
						require.True(t, f.balance(t).IsZero())
					})
				}
			})
		})

		t.Run("processor down", func(t *testing.T) {
			withTx(t, func(s *CreditService, f fixture) {
				ref := f.paid(100)
				f.processor.Fail(processor.OpRetrievePaymentIntent, processor.CodeUnavailable)

				_, _, err := s.PurchaseCredits(t.Context(), f.payer.ID, decimal.NewFromInt(100), ref)

				require.ErrorIs(t, err, apperrors.ErrExternalService)
				require.True(t, f.balance(t).IsZero())
			})
		})

		t.Run("invalid input", func(t *testing.T) {
			withTx(t, func(s *CreditService, f fixture) {
				_, _, err := s.PurchaseCredits(t.Context(), f.payer.ID, decimal.Zero, "pi_1")
				require.ErrorIs(t, err, apperrors.ErrInvalidAmount)

				_, _, err = s.PurchaseCredits(t.Context(), f.payer.ID, decimal.NewFromInt(-1), "pi_1")
				require.ErrorIs(t, err, apperrors.ErrInvalidAmount)

				_, _, err = s.PurchaseCredits(t.Context(), f.payer.ID, decimal.NewFromInt(1), "")
				require.ErrorIs(t, err, apperrors.ErrValidation)

				_, _, err = s.PurchaseCredits(t.Context(), f.payer.ID, decimal.RequireFromString("10.001"), "pi_1")
				require.ErrorIs(t, err, apperrors.ErrValidation)

				_, _, err = s.PurchaseCredits(t.Context(), f.payer.ID, decimal.RequireFromString("1e13"), "pi_1")
				require.ErrorIs(t, err, apperrors.ErrValidation)

				require.Empty(t, f.processor.Calls, "input is checked before asking the processor")
			})
		})
	})

	t.Run("DeductCredits", func(t *testing.T) {
		t.Run("marks booking paid once", func(t *testing.T) {
			withTx(t, func(s *CreditService, f fixture) {
				_, _, err := s.PurchaseCredits(t.Context(), f.payer.ID, decimal.NewFromInt(500), f.paid(500))
				require.NoError(t, err)
				booking := f.booking(t, models.BookingStatusPending, "200")

				tr, balance, err := s.DeductCredits(t.Context(), f.payer.ID, decimal.NewFromInt(200), booking.ID)
				require.NoError(t, err)
				require.True(t, decimal.NewFromInt(-200).Equal(tr.Amount))
				require.Equal(t, models.TransactionKindCreditDeduction, tr.Kind)
				require.Equal(t, &booking.ID, tr.BookingID)
				require.True(t, decimal.NewFromInt(300).Equal(balance.Current))

				paid, err := f.storage.Booking().GetBooking(t.Context(), booking.ID, false)
				require.NoError(t, err)
				require.True(t, paid.IsPaid)

				_, _, err = s.DeductCredits(t.Context(), f.payer.ID, decimal.NewFromInt(200), booking.ID)
				require.ErrorIs(t, err, apperrors.ErrAlreadyPaid)
				require.True(t, decimal.NewFromInt(300).Equal(f.balance(t)), "balance must stay unchanged")
			})
		})

		t.Run("unpaid booking moves to pending and tutor is notified", func(t *testing.T) {
			withTx(t, func(s *CreditService, f fixture) {
				_, _, err := s.PurchaseCredits(t.Context(), f.payer.ID, decimal.NewFromInt(50), f.paid(50))
				require.NoError(t, err)
				booking := f.booking(t, models.BookingStatusUnpaid, "50")

				_, _, err = s.DeductCredits(t.Context(), f.payer.ID, decimal.NewFromInt(50), booking.ID)
				require.NoError(t, err)

				paid, err := f.storage.Booking().GetBooking(t.Context(), booking.ID, false)
				require.NoError(t, err)
				require.Equal(t, models.BookingStatusPending, paid.Status)
				require.Equal(t, []string{notification.Channel(f.tutor.ID)}, f.publisher.Channels())
			})
		})

		t.Run("insufficient balance leaves booking unpaid", func(t *testing.T) {
			withTx(t, func(s *CreditService, f fixture) {
				_, _, err := s.PurchaseCredits(t.Context(), f.payer.ID, decimal.NewFromInt(10), f.paid(10))
				require.NoError(t, err)
				booking := f.booking(t, models.BookingStatusPending, "11")

				_, _, err = s.DeductCredits(t.Context(), f.payer.ID, decimal.NewFromInt(11), booking.ID)
				require.ErrorIs(t, err, apperrors.ErrInsufficientBalance)

				unpaid, err := f.storage.Booking().GetBooking(t.Context(), booking.ID, false)
				require.NoError(t, err)
				require.False(t, unpaid.IsPaid)
				require.True(t, decimal.NewFromInt(10).Equal(f.balance(t)))
			})
		})

		t.Run("already paid is checked before balance", func(t *testing.T) {
			withTx(t, func(s *CreditService, f fixture) {
				booking := f.booking(t, models.BookingStatusPending, "1000")
				_, err := f.storage.Booking().MarkPaid(t.Context(), booking.ID)
				require.NoError(t, err)

				_, _, err = s.DeductCredits(t.Context(), f.payer.ID, decimal.NewFromInt(1000), booking.ID)
				require.ErrorIs(t, err, apperrors.ErrAlreadyPaid)
			})
		})

		t.Run("booking of another payer", func(t *testing.T) {
			withTx(t, func(s *CreditService, f fixture) {
				booking := f.booking(t, models.BookingStatusPending, "1")

				_, _, err := s.DeductCredits(t.Context(), f.tutor.ID, decimal.NewFromInt(1), booking.ID)
				require.ErrorIs(t, err, apperrors.ErrBookingNotFound)

				_, _, err = s.DeductCredits(t.Context(), f.payer.ID, decimal.NewFromInt(1), uuid.New())
				require.ErrorIs(t, err, apperrors.ErrBookingNotFound)
			})
		})

		t.Run("invalid amount", func(t *testing.T) {
			withTx(t, func(s *CreditService, f fixture) {
				booking := f.booking(t, models.BookingStatusPending, "80")

				_, _, err := s.DeductCredits(t.Context(), f.payer.ID, decimal.Zero, booking.ID)
				require.ErrorIs(t, err, apperrors.ErrInvalidAmount)
			})
		})

		t.Run("amount must be the booking price", func(t *testing.T) {
			withTx(t, func(s *CreditService, f fixture) {
				_, _, err := s.PurchaseCredits(t.Context(), f.payer.ID, decimal.NewFromInt(500), f.paid(500))
				require.NoError(t, err)
				booking := f.booking(t, models.BookingStatusPending, "80")

				_, _, err = s.DeductCredits(t.Context(), f.payer.ID, decimal.RequireFromString("0.01"), booking.ID)

				var verr *apperrors.ValidationError
				require.ErrorAs(t, err, &verr)
				require.Equal(t, "Amount must equal the booking price 80.00", verr.Fields["amount"])
				require.True(t, decimal.NewFromInt(500).Equal(f.balance(t)))

				stored, err := f.storage.Booking().GetBooking(t.Context(), booking.ID, false)
				require.NoError(t, err)
				require.False(t, stored.IsPaid)
			})
		})

		t.Run("credits held by payouts can't be spent", func(t *testing.T) {
			withTx(t, func(s *CreditService, f fixture) {
				_, _, err := s.PurchaseCredits(t.Context(), f.payer.ID, decimal.NewFromInt(100), f.paid(100))
				require.NoError(t, err)
				_, err = f.storage.Payout().CreateAttempt(t.Context(), models.PayoutAttempt{
					UserID:         f.payer.ID,
					BankLinkID:     uuid.New(),
					Amount:         decimal.NewFromInt(60),
					Currency:       currency,
					IdempotencyKey: "payout-held",
				})
				require.NoError(t, err)
				booking := f.booking(t, models.BookingStatusPending, "50")

				_, _, err = s.DeductCredits(t.Context(), f.payer.ID, decimal.NewFromInt(50), booking.ID)

				require.ErrorIs(t, err, apperrors.ErrInsufficientBalance)
				require.True(t, decimal.NewFromInt(100).Equal(f.balance(t)))
			})
		})
	})

	t.Run("ConfirmBookingPayment", func(t *testing.T) {
		t.Run("card payment marks booking paid", func(t *testing.T) {
			withTx(t, func(s *CreditService, f fixture) {
				booking := f.booking(t, models.BookingStatusUnpaid, "80")
				ref := f.processor.PaidIntent(f.payer.ID, decimal.NewFromInt(80), currency, &booking.ID)

				tr, paid, err := s.ConfirmBookingPayment(t.Context(), f.payer.ID, booking.ID, ref)

				require.NoError(t, err)
				require.Equal(t, models.TransactionKindBooking, tr.Kind)
				require.Equal(t, models.PaymentMethodCard, tr.PaymentMethod)
				require.Equal(t, ref, tr.ExternalPaymentRef)
				require.Equal(t, &booking.ID, tr.BookingID)
				require.True(t, decimal.NewFromInt(80).Equal(tr.Amount))
				require.True(t, paid.IsPaid)
				require.Equal(t, models.BookingStatusPending, paid.Status)
				require.True(t, f.balance(t).IsZero(), "card payment does not touch credits")
				require.Equal(t, []string{notification.Channel(f.tutor.ID)}, f.publisher.Channels())

				_, _, err = s.ConfirmBookingPayment(t.Context(), f.payer.ID, booking.ID, ref)
				require.ErrorIs(t, err, apperrors.ErrAlreadyPaid)

				_, _, err = s.DeductCredits(t.Context(), f.payer.ID, decimal.NewFromInt(80), booking.ID)
				require.ErrorIs(t, err, apperrors.ErrAlreadyPaid, "no double charge with credits")
			})
		})

		t.Run("payment must match the booking", func(t *testing.T) {
			withTx(t, func(s *CreditService, f fixture) {
				booking := f.booking(t, models.BookingStatusUnpaid, "80")
				other := f.booking(t, models.BookingStatusUnpaid, "80")

				tests := []struct {
					name    string
					ref     string
					wantErr error
				}{
					{"made up reference", "pi_made_up", apperrors.ErrPaymentNotFound},
					{"credit purchase", f.paid(80), apperrors.ErrPaymentMismatch},
					{"another booking", f.processor.PaidIntent(f.payer.ID, decimal.NewFromInt(80), currency, &other.ID), apperrors.ErrPaymentMismatch},
					{"less than price", f.processor.PaidIntent(f.payer.ID, decimal.NewFromInt(1), currency, &booking.ID), apperrors.ErrPaymentMismatch},
				}

				for _, tt := range tests {
					t.Run(tt.name, func(t *testing.T) {
						_, _, err := s.ConfirmBookingPayment(t.Context(), f.payer.ID, booking.ID, tt.ref)
						require.ErrorIs(t, err, tt.wantErr)

						stored, err := f.storage.Booking().GetBooking(t.Context(), booking.ID, false)
						require.NoError(t, err)
						require.False(t, stored.IsPaid)
						require.Equal(t, models.BookingStatusUnpaid, stored.Status)
					})
				}
			})
		})

		t.Run("booking of another payer", func(t *testing.T) {
			withTx(t, func(s *CreditService, f fixture) {
				booking := f.booking(t, models.BookingStatusUnpaid, "80")
				ref := f.processor.PaidIntent(f.payer.ID, decimal.NewFromInt(80), currency, &booking.ID)

				_, _, err := s.ConfirmBookingPayment(t.Context(), f.tutor.ID, booking.ID, ref)
				require.ErrorIs(t, err, apperrors.ErrBookingNotFound)
				require.Empty(t, f.processor.Calls)

				_, _, err = s.ConfirmBookingPayment(t.Context(), f.payer.ID, booking.ID, "")
				require.ErrorIs(t, err, apperrors.ErrValidation)
			})
		})

		t.Run("processor failure", func(t *testing.T) {
			withTx(t, func(s *CreditService, f fixture) {
				booking := f.booking(t, models.BookingStatusUnpaid, "80")
				ref := f.processor.PaidIntent(f.payer.ID, decimal.NewFromInt(80), currency, &booking.ID)
				f.processor.Errs[processor.OpRetrievePaymentIntent] = errors.New("connection reset")

				_, _, err := s.ConfirmBookingPayment(t.Context(), f.payer.ID, booking.ID, ref)

				require.ErrorIs(t, err, apperrors.ErrExternalService)
			})
		})
	})

	t.Run("GrantCredits", func(t *testing.T) {
		withTx(t, func(s *CreditService, f fixture) {
			tr, balance, err := s.GrantCredits(t.Context(), f.payer.ID, decimal.RequireFromString("42.5"))

			require.NoError(t, err)
			require.Equal(t, models.PaymentMethodAdmin, tr.PaymentMethod)
			require.Empty(t, tr.ExternalPaymentRef)
			require.True(t, decimal.RequireFromString("42.5").Equal(balance.Current))

			notifications, err := f.storage.Notification().ListNotifications(t.Context(), f.payer.ID, 10)
			require.NoError(t, err)
			require.Len(t, notifications, 1)
			require.Equal(t, models.TitleCreditAdded, notifications[0].Title)
			require.Equal(t, "42.50 credits were added to your account", notifications[0].Text)
		})
	})
}
