package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingStatusUnpaid    BookingStatus = "UNPAID"
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusAccepted  BookingStatus = "ACCEPTED"
	BookingStatusRejected  BookingStatus = "REJECTED"
	BookingStatusDelivered BookingStatus = "DELIVERED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusUnpaid, BookingStatusPending, BookingStatusAccepted,
		BookingStatusRejected, BookingStatusDelivered, BookingStatusCompleted:
		return true
	default:
		return false
	}
}

// Rateable reports whether feedback may be attached in this status
func (s BookingStatus) Rateable() bool {
	return s == BookingStatusDelivered || s == BookingStatusCompleted
}

const (
	TimeOfLessonMorning   = "Morning"
	TimeOfLessonAfternoon = "Afternoon"
	TimeOfLessonEvening   = "Evening"
)

type Rating struct {
	Value    int
	Feedback string
}

type Booking struct {
	ID              uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LessonID        uuid.UUID
	PayerID         uuid.UUID
	TutorID         uuid.UUID
	LessonDate      string
	TimeOfLesson    string
	Price           decimal.Decimal // lesson price at booking time
	Status          BookingStatus
	IsPaid          bool
	ProofOfDelivery *string
	Rating          *Rating // nil until the payer leaves feedback
}

// IsParticipant reports whether the user is the payer or the tutor of the booking
func (b Booking) IsParticipant(userID uuid.UUID) bool {
	return b.PayerID == userID || b.TutorID == userID
}
