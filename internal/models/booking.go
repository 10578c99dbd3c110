package models

import (
	"time"

	"greendrake/rentals/internal/utils"
)

// BookingStatus is the lifecycle state of a booking request.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed.
func (s BookingStatus) IsTerminal() bool {
	return s != BookingStatusPending
}

func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled:
		return true
	}
	return false
}

// BookingRequest is a tenant's request to rent a listing. Requests are never
// deleted, only transitioned.
type BookingRequest struct {
	Base          `bson:",inline"`
	ListingID     utils.SixID   `bson:"listing_id" json:"listing_id" db:"listing_id"`
	RequesterID   utils.SixID   `bson:"requester_id" json:"requester_id" db:"requester_id"`
	Status        BookingStatus `bson:"status" json:"status" db:"status"`
	ProposedPrice AskingPrice   `bson:"proposed_price" json:"proposed_price" db:"proposed_price"`
	DateRange     DateRange     `bson:"date_range" json:"date_range" db:"date_range"`
	Message       string        `bson:"message" json:"message" db:"message"`
	CreatedAt     time.Time     `bson:"created_at" json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `bson:"updated_at" json:"updated_at" db:"updated_at"`
}

// BookingView is a booking request with its requester attached.
type BookingView struct {
	BookingRequest
	Requester *UserSummary `json:"requester,omitempty"`
}

// CreateBookingInput is the accepted payload for a new booking request.
type CreateBookingInput struct {
	ListingID     utils.SixID `json:"-" validate:"required"`
	DateRange     DateRange   `json:"date_range"`
	ProposedPrice AskingPrice `json:"proposed_price"`
	Message       string      `json:"message" validate:"max=2000"`
}
