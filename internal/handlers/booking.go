package handlers

import (
	"net/http"

	"github.com/nkiryanov/medipals/internal/handlers/render"
	"github.com/nkiryanov/medipals/internal/handlers/userctx"
	"github.com/nkiryanov/medipals/internal/logger"
	"github.com/nkiryanov/medipals/internal/models"
	"github.com/nkiryanov/medipals/internal/service/booking"
)

func handleCreateBooking(bookingService bookingService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		params, err := render.BindAndValidate[booking.CreateParams](w, r)
		if err != nil {
			return
		}

		b, err := bookingService.Create(r.Context(), user.ID, params)
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSONWithStatus(w, newBookingResponse(b), http.StatusCreated)
	})
}

// handleListBookings returns bookings where user is payer or tutor, ?status= may be repeated
func handleListBookings(bookingService bookingService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		var statuses []models.BookingStatus
		for _, s := range r.URL.Query()["status"] {
			statuses = append(statuses, models.BookingStatus(s))
		}

		bookings, err := bookingService.List(r.Context(), user.ID, statuses...)
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, mapSlice(bookings, newBookingResponse))
	})
}

func handleGetBooking(bookingService bookingService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		b, err := bookingService.Get(r.Context(), id, booking.UserActor(user))
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, newBookingResponse(b))
	})
}

func handleTransitionBooking(bookingService bookingService, l logger.Logger) http.Handler {
	type request struct {
		Status models.BookingStatus `json:"status" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		b, err := bookingService.Transition(r.Context(), id, data.Status, booking.UserActor(user))
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, newBookingResponse(b))
	})
}

func handleAddProof(bookingService bookingService, l logger.Logger) http.Handler {
	type request struct {
		Proof string `json:"proof" validate:"required,max=2048"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		b, err := bookingService.AddProof(r.Context(), id, data.Proof, booking.UserActor(user))
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, newBookingResponse(b))
	})
}

func handleAttachRating(bookingService bookingService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		params, err := render.BindAndValidate[booking.RatingParams](w, r)
		if err != nil {
			return
		}

		b, err := bookingService.AttachRating(r.Context(), id, params, booking.UserActor(user))
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, newBookingResponse(b))
	})
}
