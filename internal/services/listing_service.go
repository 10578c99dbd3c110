package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"greendrake/rentals/internal/apperrors"
	"greendrake/rentals/internal/auth"
	"greendrake/rentals/internal/config"
	"greendrake/rentals/internal/db"
	"greendrake/rentals/internal/models"
	"greendrake/rentals/internal/store"
	"greendrake/rentals/internal/utils"
	"greendrake/rentals/internal/validation"
)

var (
	ErrListingBooked = apperrors.InvalidState("listing_booked", "listing has a confirmed booking and cannot be published")
	ErrAdminRequired = apperrors.New(apperrors.KindUnauthorized, "admin_required", "administrator rights required")
	ErrNotOwnListing = apperrors.New(apperrors.KindUnauthorized, "not_owner", "only the listing owner can change it")
)

// IListingService defines the interface for listing-related operations.
type IListingService interface {
	CreateListing(ctx context.Context, ownerID utils.SixID, in models.CreateListingInput) (*models.Listing, error)
	// GetListing hides unpublished listings from everyone but their owner.
	GetListing(ctx context.Context, viewerID *utils.SixID, listingID utils.SixID) (*models.Listing, error)
	PublishListing(ctx context.Context, ownerID, listingID utils.SixID) (*models.Listing, error)
	UnpublishListing(ctx context.Context, ownerID, listingID utils.SixID) (*models.Listing, error)
	AdminUnpublishListing(ctx context.Context, session *auth.Session, listingID utils.SixID) (*models.Listing, error)
}

// listingService implements IListingService.
type listingService struct {
	store         store.Store
	validator     *validation.Validator
	retryAttempts int
	now           func() time.Time
}

// NewListingService creates a new ListingService.
func NewListingService(st store.Store, cfg *config.Config) IListingService {
	return &listingService{
		store:         st,
		validator:     validation.New(),
		retryAttempts: cfg.StoreRetryAttempts,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CreateListing creates a new listing in an unpublished state.
func (s *listingService) CreateListing(ctx context.Context, ownerID utils.SixID, in models.CreateListingInput) (*models.Listing, error) {
	if err := s.validator.Struct(&in); err != nil {
		return nil, err
	}

	var listing *models.Listing
	err := db.RetryTransient(ctx, s.retryAttempts, func(ctx context.Context) error {
		return db.Try(func() error {
			now := s.now()
			listing = &models.Listing{
				OwnerID:      ownerID,
				Title:        in.Title,
				Published:    false,
				Rent:         in.Rent,
				Availability: in.Availability,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			listing.GenID()
			return s.store.InsertListing(ctx, listing)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert new listing for user %s: %w", ownerID, err)
	}

	log.Printf("Created listing %s for user %s", listing.ID, ownerID)
	return listing, nil
}

func (s *listingService) GetListing(ctx context.Context, viewerID *utils.SixID, listingID utils.SixID) (*models.Listing, error) {
	var listing *models.Listing
	err := db.RetryTransient(ctx, s.retryAttempts, func(ctx context.Context) error {
		var err error
		listing, err = s.store.FindListing(ctx, listingID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find listing %s: %w", listingID, err)
	}
	if !listing.Published && (viewerID == nil || *viewerID != listing.OwnerID) {
		return nil, apperrors.NotFound("listing")
	}
	return listing, nil
}

// PublishListing makes the listing visible to tenants. A listing holding a
// confirmed booking stays closed.
func (s *listingService) PublishListing(ctx context.Context, ownerID, listingID utils.SixID) (*models.Listing, error) {
	return s.setPublished(ctx, listingID, true, func(l *models.Listing) error {
		if l.OwnerID != ownerID {
			return ErrNotOwnListing
		}
		return nil
	})
}

func (s *listingService) UnpublishListing(ctx context.Context, ownerID, listingID utils.SixID) (*models.Listing, error) {
	return s.setPublished(ctx, listingID, false, func(l *models.Listing) error {
		if l.OwnerID != ownerID {
			return ErrNotOwnListing
		}
		return nil
	})
}

// AdminUnpublishListing takes any listing down. The caller's session must carry the admin claim.
func (s *listingService) AdminUnpublishListing(ctx context.Context, session *auth.Session, listingID utils.SixID) (*models.Listing, error) {
	if session == nil || !session.IsAdmin {
		return nil, ErrAdminRequired
	}
	listing, err := s.setPublished(ctx, listingID, false, func(*models.Listing) error { return nil })
	if err != nil {
		return nil, err
	}
	log.Printf("Admin %s unpublished listing %s", session.UserID, listingID)
	return listing, nil
}

func (s *listingService) setPublished(ctx context.Context, listingID utils.SixID, published bool, authorize func(*models.Listing) error) (*models.Listing, error) {
	var listing *models.Listing
	err := db.RetryTransient(ctx, s.retryAttempts, func(ctx context.Context) error {
		return s.store.WithListingLock(ctx, listingID, func(tx store.ListingTx) error {
			if err := authorize(tx.Listing()); err != nil {
				return err
			}
			if published {
				booked, err := tx.HasConfirmedBooking()
				if err != nil {
					return err
				}
				if booked {
					return ErrListingBooked
				}
			}
			if err := tx.SetPublished(published, s.now()); err != nil {
				return err
			}
			listing = tx.Listing()
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update listing %s: %w", listingID, err)
	}
	return listing, nil
}
