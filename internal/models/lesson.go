package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Lesson is an offer of a tutor, bookings copy its price when created
type Lesson struct {
	ID          uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
	TutorID     uuid.UUID
	Subject     string
	Topic       string
	Description string
	Price       decimal.Decimal
	StartDate   string
	EndDate     string

	// Withdrawn offers stay stored for the bookings pointing at them
	Active bool
}
