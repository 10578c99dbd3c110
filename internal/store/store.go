// Package store defines the persistence contract the services run against.
// Adapters live in the mongostore, pgstore and memstore subpackages.
package store

import (
	"context"
	"time"

	"greendrake/rentals/internal/apperrors"
	"greendrake/rentals/internal/models"
	"greendrake/rentals/internal/utils"
)

// ErrStatusConflict is returned by SetBookingStatus when the stored status is not the expected one.
var ErrStatusConflict = apperrors.InvalidState("status_conflict", "booking status changed concurrently")

// Store is the root persistence handle.
type Store interface {
	InsertUser(ctx context.Context, user *models.User) error
	FindUserByID(ctx context.Context, id utils.SixID) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUsersByIDs(ctx context.Context, ids []utils.SixID) (map[utils.SixID]*models.User, error)

	InsertListing(ctx context.Context, listing *models.Listing) error
	FindListing(ctx context.Context, id utils.SixID) (*models.Listing, error)

	// ListBookings returns every request on the listing, newest first, id descending on ties.
	ListBookings(ctx context.Context, listingID utils.SixID) ([]*models.BookingRequest, error)
	// ListStalePending returns pending requests whose date range starts before the given time.
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]*models.BookingRequest, error)

	// WithListingLock runs fn in one transaction holding an exclusive lock on the
	// listing. Any error returned by fn discards every write made through tx.
	// Returns NotFound if the listing does not exist.
	WithListingLock(ctx context.Context, listingID utils.SixID, fn func(tx ListingTx) error) error

	Close(ctx context.Context) error
}

// ListingTx is the view of one locked listing and its booking requests.
type ListingTx interface {
	Listing() *models.Listing
	GetBooking(id utils.SixID) (*models.BookingRequest, error)
	InsertBooking(booking *models.BookingRequest) error
	// SetBookingStatus moves a booking from one status to another, failing with
	// ErrStatusConflict if it is not currently in from.
	SetBookingStatus(id utils.SixID, from, to models.BookingStatus, at time.Time) error
	// CancelPendingExcept cancels every pending request on the listing other than exceptID
	// and returns the ids it cancelled.
	CancelPendingExcept(exceptID utils.SixID, at time.Time) ([]utils.SixID, error)
	SetPublished(published bool, at time.Time) error
	HasConfirmedBooking() (bool, error)
}
