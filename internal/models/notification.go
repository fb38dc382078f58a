package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationInfo     NotificationType = "info"
	NotificationAction   NotificationType = "action"
	NotificationReminder NotificationType = "reminder"
)

// Notification titles shown to users
const (
	TitleBookingReceived  = "New Booking Request"
	TitleBookingAccepted  = "Booking Accepted"
	TitleBookingRejected  = "Booking Rejected"
	TitleBookingDelivered = "Lesson Delivered"
	TitleBookingCompleted = "Lesson Completed"
	TitleCreditAdded      = "Credits Added"
	TitlePayoutSent       = "Payout Sent"
)

type Message struct {
	Type  NotificationType `json:"type"`
	Title string           `json:"title"`
	Text  string           `json:"message"`
}

type Notification struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UserID    uuid.UUID
	Message
	IsRead bool
}
