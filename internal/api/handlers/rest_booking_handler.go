package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"greendrake/rentals/internal/api/middleware"
	"greendrake/rentals/internal/models"
	"greendrake/rentals/internal/services"
	"greendrake/rentals/internal/utils"
	"greendrake/rentals/internal/validation"
)

// RestBookingHandler exposes the booking lifecycle. Every route requires a session.
type RestBookingHandler struct {
	bookingService services.IBookingService
}

func NewRestBookingHandler(bookingService services.IBookingService) *RestBookingHandler {
	return &RestBookingHandler{bookingService: bookingService}
}

// CreateBooking handles POST /v1/listing/:id/booking
func (h *RestBookingHandler) CreateBooking(c *gin.Context) {
	listingID, ok := parseIDParam(c, "id", "listing")
	if !ok {
		return
	}
	requesterID, _ := middleware.UserID(c)

	var in models.CreateBookingInput
	if err := validation.DecodeJSON(c.Request.Body, &in); err != nil {
		respondError(c, err)
		return
	}
	in.ListingID = listingID

	booking, err := h.bookingService.CreateBooking(c.Request.Context(), requesterID, in)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, booking)
}

// ListBookings handles GET /v1/listing/:id/booking
func (h *RestBookingHandler) ListBookings(c *gin.Context) {
	listingID, ok := parseIDParam(c, "id", "listing")
	if !ok {
		return
	}
	ownerID, _ := middleware.UserID(c)

	bookings, err := h.bookingService.ListBookingsForListing(c.Request.Context(), ownerID, listingID)
	if err != nil {
		respondError(c, err)
		return
	}
	if bookings == nil {
		bookings = []*models.BookingView{}
	}

	c.JSON(http.StatusOK, gin.H{"data": bookings})
}

// ConfirmBooking handles POST /v1/listing/:id/booking/:booking_id/confirm
func (h *RestBookingHandler) ConfirmBooking(c *gin.Context) {
	h.transition(c, h.bookingService.ConfirmBooking)
}

// RejectBooking handles POST /v1/listing/:id/booking/:booking_id/reject
func (h *RestBookingHandler) RejectBooking(c *gin.Context) {
	h.transition(c, h.bookingService.RejectBooking)
}

type bookingTransition func(ctx context.Context, ownerID, listingID, bookingID utils.SixID) (*models.BookingRequest, error)

func (h *RestBookingHandler) transition(c *gin.Context, apply bookingTransition) {
	listingID, ok := parseIDParam(c, "id", "listing")
	if !ok {
		return
	}
	bookingID, ok := parseIDParam(c, "booking_id", "booking")
	if !ok {
		return
	}
	ownerID, _ := middleware.UserID(c)

	booking, err := apply(c.Request.Context(), ownerID, listingID, bookingID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}
