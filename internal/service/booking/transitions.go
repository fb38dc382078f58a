package booking

import (
	"github.com/google/uuid"

	"github.com/nkiryanov/medipals/internal/models"
)

// Actor is who asks for a booking change
// System actors are payment flows and admins
type Actor struct {
	UserID uuid.UUID
	System bool
}

var SystemActor = Actor{System: true}

func UserActor(u models.User) Actor {
	return Actor{UserID: u.ID, System: u.IsAdmin()}
}

type party uint8

const (
	partyPayer party = 1 << iota
	partyTutor
)

// Allowed moves and which booking party may make them, system may make any of them
// UNPAID is left by payment only, see MarkPaid
var transitions = map[models.BookingStatus]map[models.BookingStatus]party{
	models.BookingStatusPending: {
		models.BookingStatusAccepted: partyTutor,
		models.BookingStatusRejected: partyTutor,
	},
	models.BookingStatusAccepted: {
		models.BookingStatusDelivered: partyTutor,
		models.BookingStatusCompleted: partyPayer | partyTutor,
	},
}

// CanTransition reports whether the status change exists in the lifecycle
func CanTransition(from, to models.BookingStatus) bool {
	_, ok := transitions[from][to]
	return ok
}

// allowed reports whether actor may move booking b to status to
func allowed(b models.Booking, to models.BookingStatus, actor Actor) bool {
	if actor.System {
		return true
	}

	parties := transitions[b.Status][to]
	switch actor.UserID {
	case b.TutorID:
		return parties&partyTutor != 0
	case b.PayerID:
		return parties&partyPayer != 0
	default:
		return false
	}
}

func (a Actor) canSee(b models.Booking) bool {
	return a.System || b.IsParticipant(a.UserID)
}
