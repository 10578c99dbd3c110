package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"greendrake/rentals/internal/apperrors"
	"greendrake/rentals/internal/config"
	"greendrake/rentals/internal/db"
	"greendrake/rentals/internal/events"
	"greendrake/rentals/internal/metrics"
	"greendrake/rentals/internal/models"
	"greendrake/rentals/internal/store"
	"greendrake/rentals/internal/utils"
	"greendrake/rentals/internal/validation"
)

var (
	ErrNotListingOwner    = apperrors.New(apperrors.KindUnauthorized, "not_owner", "only the listing owner can manage its bookings")
	ErrBookingNotPending  = apperrors.InvalidState("not_pending", "booking is no longer pending")
	ErrListingUnpublished = apperrors.InvalidState("listing_unpublished", "listing is not accepting bookings")
)

// IBookingService defines the booking lifecycle operations. Every mutation
// on a listing runs under that listing's lock.
type IBookingService interface {
	CreateBooking(ctx context.Context, requesterID utils.SixID, in models.CreateBookingInput) (*models.BookingRequest, error)
	ConfirmBooking(ctx context.Context, ownerID, listingID, bookingID utils.SixID) (*models.BookingRequest, error)
	RejectBooking(ctx context.Context, ownerID, listingID, bookingID utils.SixID) (*models.BookingRequest, error)
	ListBookingsForListing(ctx context.Context, ownerID, listingID utils.SixID) ([]*models.BookingView, error)
	ExpireStaleBookings(ctx context.Context, before time.Time, limit int) (int, error)
}

type bookingService struct {
	store            store.Store
	publisher        events.Publisher
	validator        *validation.Validator
	requirePublished bool
	retryAttempts    int
	now              func() time.Time
}

// NewBookingService creates a new BookingService.
func NewBookingService(st store.Store, publisher events.Publisher, cfg *config.Config) IBookingService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &bookingService{
		store:            st,
		publisher:        publisher,
		validator:        validation.New(),
		requirePublished: cfg.BookingRequirePublished,
		retryAttempts:    cfg.StoreRetryAttempts,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// CreateBooking records a new pending request against an existing listing.
func (s *bookingService) CreateBooking(ctx context.Context, requesterID utils.SixID, in models.CreateBookingInput) (*models.BookingRequest, error) {
	if err := s.validator.Struct(&in); err != nil {
		return nil, err
	}

	var booking *models.BookingRequest
	err := db.RetryTransient(ctx, s.retryAttempts, func(ctx context.Context) error {
		// A fresh id per attempt; a collision aborts the whole transaction.
		return db.Try(func() error {
			now := s.now()
			booking = &models.BookingRequest{
				ListingID:     in.ListingID,
				RequesterID:   requesterID,
				Status:        models.BookingStatusPending,
				ProposedPrice: in.ProposedPrice,
				DateRange:     in.DateRange,
				Message:       in.Message,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			booking.GenID()

			return s.store.WithListingLock(ctx, in.ListingID, func(tx store.ListingTx) error {
				if s.requirePublished && !tx.Listing().Published {
					return ErrListingUnpublished
				}
				return tx.InsertBooking(booking)
			})
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create booking on listing %s: %w", in.ListingID, err)
	}

	metrics.BookingTransitions.WithLabelValues(string(models.BookingStatusPending)).Inc()
	log.Printf("Created booking %s on listing %s by %s", booking.ID, booking.ListingID, requesterID)
	s.publish(ctx, events.NewBookingEvent(events.BookingCreated, booking, &requesterID, booking.CreatedAt))
	return booking, nil
}

// ConfirmBooking confirms one pending request, cancels every other pending
// request on the listing and unpublishes it, all in one transaction.
func (s *bookingService) ConfirmBooking(ctx context.Context, ownerID, listingID, bookingID utils.SixID) (*models.BookingRequest, error) {
	var confirmed *models.BookingRequest
	var cancelled []utils.SixID

	err := db.RetryTransient(ctx, s.retryAttempts, func(ctx context.Context) error {
		return s.store.WithListingLock(ctx, listingID, func(tx store.ListingTx) error {
			booking, err := s.pendingBookingOwnedBy(tx, ownerID, bookingID)
			if err != nil {
				return err
			}

			at := s.now()
			if err := tx.SetBookingStatus(booking.ID, models.BookingStatusPending, models.BookingStatusConfirmed, at); err != nil {
				return err
			}
			ids, err := tx.CancelPendingExcept(booking.ID, at)
			if err != nil {
				return err
			}
			if err := tx.SetPublished(false, at); err != nil {
				return err
			}

			booking.Status = models.BookingStatusConfirmed
			booking.UpdatedAt = at
			confirmed, cancelled = booking, ids
			return nil
		})
	})
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindInvalidState {
			metrics.BookingConfirmConflicts.Inc()
		}
		return nil, fmt.Errorf("failed to confirm booking %s: %w", bookingID, err)
	}

	metrics.BookingTransitions.WithLabelValues(string(models.BookingStatusConfirmed)).Inc()
	metrics.BookingTransitions.WithLabelValues(string(models.BookingStatusCancelled)).Add(float64(len(cancelled)))
	log.Printf("Confirmed booking %s on listing %s by %s, cancelled %d other request(s)", bookingID, listingID, ownerID, len(cancelled))

	ev := events.NewBookingEvent(events.BookingConfirmed, confirmed, &ownerID, confirmed.UpdatedAt)
	ev.Cancelled = cancelled
	s.publish(ctx, ev)
	return confirmed, nil
}

// RejectBooking cancels a single pending request. The listing is untouched.
func (s *bookingService) RejectBooking(ctx context.Context, ownerID, listingID, bookingID utils.SixID) (*models.BookingRequest, error) {
	var rejected *models.BookingRequest

	err := db.RetryTransient(ctx, s.retryAttempts, func(ctx context.Context) error {
		return s.store.WithListingLock(ctx, listingID, func(tx store.ListingTx) error {
			booking, err := s.pendingBookingOwnedBy(tx, ownerID, bookingID)
			if err != nil {
				return err
			}
			at := s.now()
			if err := tx.SetBookingStatus(booking.ID, models.BookingStatusPending, models.BookingStatusCancelled, at); err != nil {
				return err
			}
			booking.Status = models.BookingStatusCancelled
			booking.UpdatedAt = at
			rejected = booking
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reject booking %s: %w", bookingID, err)
	}

	metrics.BookingTransitions.WithLabelValues(string(models.BookingStatusCancelled)).Inc()
	log.Printf("Rejected booking %s on listing %s by %s", bookingID, listingID, ownerID)
	s.publish(ctx, events.NewBookingEvent(events.BookingRejected, rejected, &ownerID, rejected.UpdatedAt))
	return rejected, nil
}

// pendingBookingOwnedBy checks ownership first, then existence, then status.
func (s *bookingService) pendingBookingOwnedBy(tx store.ListingTx, ownerID, bookingID utils.SixID) (*models.BookingRequest, error) {
	if tx.Listing().OwnerID != ownerID {
		return nil, ErrNotListingOwner
	}
	booking, err := tx.GetBooking(bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusPending {
		return nil, ErrBookingNotPending
	}
	return booking, nil
}

// ListBookingsForListing returns every request on the listing, newest first,
// with the requester attached. Owner only.
func (s *bookingService) ListBookingsForListing(ctx context.Context, ownerID, listingID utils.SixID) ([]*models.BookingView, error) {
	var views []*models.BookingView

	err := db.RetryTransient(ctx, s.retryAttempts, func(ctx context.Context) error {
		listing, err := s.store.FindListing(ctx, listingID)
		if err != nil {
			return err
		}
		if listing.OwnerID != ownerID {
			return ErrNotListingOwner
		}

		bookings, err := s.store.ListBookings(ctx, listingID)
		if err != nil {
			return err
		}

		requesterIDs := make([]utils.SixID, 0, len(bookings))
		seen := make(map[utils.SixID]bool, len(bookings))
		for _, b := range bookings {
			if !seen[b.RequesterID] {
				seen[b.RequesterID] = true
				requesterIDs = append(requesterIDs, b.RequesterID)
			}
		}
		users, err := s.store.FindUsersByIDs(ctx, requesterIDs)
		if err != nil {
			return err
		}

		views = make([]*models.BookingView, len(bookings))
		for i, b := range bookings {
			views[i] = &models.BookingView{BookingRequest: *b}
			if u, ok := users[b.RequesterID]; ok {
				views[i].Requester = u.Summary()
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings for listing %s: %w", listingID, err)
	}
	return views, nil
}

// ExpireStaleBookings cancels pending requests whose date range starts before
// the given time. Each one is cancelled under its listing's lock; requests
// that changed status in the meantime are skipped.
func (s *bookingService) ExpireStaleBookings(ctx context.Context, before time.Time, limit int) (int, error) {
	stale, err := s.store.ListStalePending(ctx, before, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale bookings: %w", err)
	}

	expired := 0
	var errs []error
	for _, candidate := range stale {
		var booking *models.BookingRequest
		err := db.RetryTransient(ctx, s.retryAttempts, func(ctx context.Context) error {
			booking = nil
			return s.store.WithListingLock(ctx, candidate.ListingID, func(tx store.ListingTx) error {
				b, err := tx.GetBooking(candidate.ID)
				if err != nil {
					return err
				}
				if b.Status != models.BookingStatusPending {
					return nil
				}
				at := s.now()
				if err := tx.SetBookingStatus(b.ID, models.BookingStatusPending, models.BookingStatusCancelled, at); err != nil {
					return err
				}
				b.Status = models.BookingStatusCancelled
				b.UpdatedAt = at
				booking = b
				return nil
			})
		})
		if err != nil {
			log.Printf("Failed to expire booking %s on listing %s: %v", candidate.ID, candidate.ListingID, err)
			errs = append(errs, err)
			continue
		}
		if booking == nil {
			continue
		}

		expired++
		metrics.BookingTransitions.WithLabelValues(string(models.BookingStatusCancelled)).Inc()
		s.publish(ctx, events.NewBookingEvent(events.BookingExpired, booking, nil, booking.UpdatedAt))
	}

	if expired > 0 {
		log.Printf("Expired %d stale booking request(s)", expired)
	}
	return expired, errors.Join(errs...)
}

// publish is best effort. The transition is already committed.
func (s *bookingService) publish(ctx context.Context, ev events.BookingEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Printf("Failed to publish %s event for booking %s: %v", ev.Type, ev.BookingID, err)
	}
}
