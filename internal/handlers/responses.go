package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/medipals/internal/handlers/render"
	"github.com/nkiryanov/medipals/internal/models"
)

func amount(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// pathID reads {id} path value, renders 404 if it is not an uuid
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		render.ServiceError(w, "Not found", http.StatusNotFound)
		return uuid.Nil, false
	}
	return id, true
}

type balanceResponse struct {
	Current   float64 `json:"current"`
	Withdrawn float64 `json:"withdrawn"`
}

func newBalanceResponse(b models.Balance) balanceResponse {
	return balanceResponse{Current: amount(b.Current), Withdrawn: amount(b.Withdrawn)}
}

type transactionResponse struct {
	ID                 uuid.UUID              `json:"id"`
	Amount             float64                `json:"amount"`
	Kind               models.TransactionKind `json:"kind"`
	PaymentMethod      models.PaymentMethod   `json:"payment_method"`
	BookingID          *uuid.UUID             `json:"booking_id,omitempty"`
	ExternalPaymentRef string                 `json:"external_payment_ref,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
}

func newTransactionResponse(t models.Transaction) transactionResponse {
	return transactionResponse{
		ID:                 t.ID,
		Amount:             amount(t.Amount),
		Kind:               t.Kind,
		PaymentMethod:      t.PaymentMethod,
		BookingID:          t.BookingID,
		ExternalPaymentRef: t.ExternalPaymentRef,
		CreatedAt:          t.CreatedAt,
	}
}

// Recorded transaction together with the balance it produced
type ledgerEntryResponse struct {
	Transaction transactionResponse `json:"transaction"`
	Balance     balanceResponse     `json:"balance"`
}

// Bank details are never echoed back except the last digits
type bankLinkResponse struct {
	ID                uuid.UUID `json:"id"`
	AccountHolderName string    `json:"account_holder_name"`
	BankName          string    `json:"bank_name"`
	BankCountry       string    `json:"bank_country"`
	Currency          string    `json:"currency"`
	Last4             string    `json:"last4"`
	CreatedAt         time.Time `json:"created_at"`
}

func newBankLinkResponse(l models.BankLink) bankLinkResponse {
	return bankLinkResponse{
		ID:                l.ID,
		AccountHolderName: l.AccountHolderName,
		BankName:          l.BankName,
		BankCountry:       l.BankCountry,
		Currency:          l.Currency,
		Last4:             l.Last4(),
		CreatedAt:         l.CreatedAt,
	}
}

type ratingResponse struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback,omitempty"`
}

type lessonResponse struct {
	ID          uuid.UUID `json:"id"`
	TutorID     uuid.UUID `json:"tutor_id"`
	Subject     string    `json:"subject"`
	Topic       string    `json:"topic"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	StartDate   string    `json:"start_date"`
	EndDate     string    `json:"end_date"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

func newLessonResponse(l models.Lesson) lessonResponse {
	return lessonResponse{
		ID:          l.ID,
		TutorID:     l.TutorID,
		Subject:     l.Subject,
		Topic:       l.Topic,
		Description: l.Description,
		Price:       amount(l.Price),
		StartDate:   l.StartDate,
		EndDate:     l.EndDate,
		Active:      l.Active,
		CreatedAt:   l.CreatedAt,
	}
}

type bookingResponse struct {
	ID              uuid.UUID            `json:"id"`
	LessonID        uuid.UUID            `json:"lesson_id"`
	PayerID         uuid.UUID            `json:"payer_id"`
	TutorID         uuid.UUID            `json:"tutor_id"`
	Price           float64              `json:"price"`
	LessonDate      string               `json:"lesson_date"`
	TimeOfLesson    string               `json:"time_of_lesson"`
	Status          models.BookingStatus `json:"status"`
	IsPaid          bool                 `json:"is_paid"`
	ProofOfDelivery *string              `json:"proof_of_delivery,omitempty"`
	Rating          *ratingResponse      `json:"rating,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
}

func newBookingResponse(b models.Booking) bookingResponse {
	res := bookingResponse{
		ID:              b.ID,
		LessonID:        b.LessonID,
		PayerID:         b.PayerID,
		TutorID:         b.TutorID,
		Price:           amount(b.Price),
		LessonDate:      b.LessonDate,
		TimeOfLesson:    b.TimeOfLesson,
		Status:          b.Status,
		IsPaid:          b.IsPaid,
		ProofOfDelivery: b.ProofOfDelivery,
		CreatedAt:       b.CreatedAt,
	}
	if b.Rating != nil {
		res.Rating = &ratingResponse{Rating: b.Rating.Value, Feedback: b.Rating.Feedback}
	}
	return res
}

type payoutAttemptResponse struct {
	ID            uuid.UUID           `json:"id"`
	BankLinkID    uuid.UUID           `json:"bank_link_id"`
	Amount        float64             `json:"amount"`
	Currency      string              `json:"currency"`
	Status        models.PayoutStatus `json:"status"`
	TransferID    string              `json:"transfer_id,omitempty"`
	PayoutID      string              `json:"payout_id,omitempty"`
	TransactionID *uuid.UUID          `json:"transaction_id,omitempty"`
	FailureReason string              `json:"failure_reason,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func newPayoutAttemptResponse(a models.PayoutAttempt) payoutAttemptResponse {
	return payoutAttemptResponse{
		ID:            a.ID,
		BankLinkID:    a.BankLinkID,
		Amount:        amount(a.Amount),
		Currency:      a.Currency,
		Status:        a.Status,
		TransferID:    a.TransferID,
		PayoutID:      a.PayoutID,
		TransactionID: a.TransactionID,
		FailureReason: a.FailureReason,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

type payoutResponse struct {
	Transaction transactionResponse   `json:"transaction"`
	Balance     balanceResponse       `json:"balance"`
	Attempt     payoutAttemptResponse `json:"attempt"`
}

type notificationResponse struct {
	ID        uuid.UUID               `json:"id"`
	Type      models.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	IsRead    bool                    `json:"isRead"`
	CreatedAt time.Time               `json:"createdAt"`
}

func newNotificationResponse(n models.Notification) notificationResponse {
	return notificationResponse{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Text,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}

func mapSlice[T, R any](items []T, fn func(T) R) []R {
	res := make([]R, 0, len(items))
	for _, item := range items {
		res = append(res, fn(item))
	}
	return res
}
