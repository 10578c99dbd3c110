// Package memstore is an in-process store.Store for local runs and tests.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"greendrake/rentals/internal/apperrors"
	"greendrake/rentals/internal/models"
	"greendrake/rentals/internal/store"
	"greendrake/rentals/internal/utils"
)

// FaultFunc is consulted before each write and before commit. A non-nil
// return aborts the operation with that error.
type FaultFunc func(op string) error

// Store keeps everything in maps. Writes made inside WithListingLock are
// staged on copies and applied in one step on commit.
type Store struct {
	mu           sync.RWMutex
	users        map[utils.SixID]models.User
	usersByEmail map[string]utils.SixID
	listings     map[utils.SixID]models.Listing
	bookings     map[utils.SixID]models.BookingRequest
	locks        map[utils.SixID]chan struct{}

	faultMu sync.RWMutex
	fault   FaultFunc
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:        make(map[utils.SixID]models.User),
		usersByEmail: make(map[string]utils.SixID),
		listings:     make(map[utils.SixID]models.Listing),
		bookings:     make(map[utils.SixID]models.BookingRequest),
		locks:        make(map[utils.SixID]chan struct{}),
	}
}

// SetFault installs f; nil clears it.
func (s *Store) SetFault(f FaultFunc) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.fault = f
}

func (s *Store) checkFault(op string) error {
	s.faultMu.RLock()
	f := s.fault
	s.faultMu.RUnlock()
	if f == nil {
		return nil
	}
	return f(op)
}

func (s *Store) InsertUser(ctx context.Context, user *models.User) error {
	if err := s.checkFault("insert_user"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, exists := s.usersByEmail[email]; exists {
		return apperrors.InvalidState("email_taken", "email address is already registered")
	}
	if _, exists := s.users[user.ID]; exists {
		return fmt.Errorf("duplicate user id %s", user.ID)
	}
	u := *user
	u.Email = email
	s.users[user.ID] = u
	s.usersByEmail[email] = user.ID
	return nil
}

func (s *Store) FindUserByID(ctx context.Context, id utils.SixID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apperrors.NotFound("user")
	}
	return &u, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[strings.ToLower(email)]
	if !ok {
		return nil, apperrors.NotFound("user")
	}
	u := s.users[id]
	return &u, nil
}

func (s *Store) FindUsersByIDs(ctx context.Context, ids []utils.SixID) (map[utils.SixID]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[utils.SixID]*models.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = &u
		}
	}
	return out, nil
}

func (s *Store) InsertListing(ctx context.Context, listing *models.Listing) error {
	if err := s.checkFault("insert_listing"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.listings[listing.ID]; exists {
		return fmt.Errorf("duplicate listing id %s", listing.ID)
	}
	s.listings[listing.ID] = *listing
	return nil
}

func (s *Store) FindListing(ctx context.Context, id utils.SixID) (*models.Listing, error) {
	if err := s.checkFault("find_listing"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[id]
	if !ok {
		return nil, apperrors.NotFound("listing")
	}
	return &l, nil
}

func (s *Store) ListBookings(ctx context.Context, listingID utils.SixID) ([]*models.BookingRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.BookingRequest
	for _, b := range s.bookings {
		if b.ListingID == listingID {
			b := b
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) > 0
	})
	return out, nil
}

func (s *Store) ListStalePending(ctx context.Context, before time.Time, limit int) ([]*models.BookingRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.BookingRequest
	for _, b := range s.bookings {
		if b.Status == models.BookingStatusPending && b.DateRange.From.Before(before) {
			b := b
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) lockFor(id utils.SixID) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[id] = l
	}
	return l
}

func (s *Store) WithListingLock(ctx context.Context, listingID utils.SixID, fn func(tx store.ListingTx) error) error {
	lock := s.lockFor(listingID)
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return apperrors.Transient("timed out waiting for listing lock", ctx.Err())
	}
	defer func() { <-lock }()

	s.mu.RLock()
	listing, ok := s.listings[listingID]
	staged := make(map[utils.SixID]models.BookingRequest)
	for id, b := range s.bookings {
		if b.ListingID == listingID {
			staged[id] = b
		}
	}
	s.mu.RUnlock()
	if !ok {
		return apperrors.NotFound("listing")
	}

	tx := &listingTx{store: s, listing: listing, bookings: staged, dirty: make(map[utils.SixID]bool)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return apperrors.Transient("transaction deadline exceeded", err)
	}
	if err := s.checkFault("commit"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.listingDirty {
		s.listings[listingID] = tx.listing
	}
	for id := range tx.dirty {
		s.bookings[id] = tx.bookings[id]
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return nil
}

type listingTx struct {
	store        *Store
	listing      models.Listing
	listingDirty bool
	bookings     map[utils.SixID]models.BookingRequest
	dirty        map[utils.SixID]bool
}

func (tx *listingTx) Listing() *models.Listing {
	l := tx.listing
	return &l
}

func (tx *listingTx) GetBooking(id utils.SixID) (*models.BookingRequest, error) {
	b, ok := tx.bookings[id]
	if !ok {
		return nil, apperrors.NotFound("booking")
	}
	return &b, nil
}

func (tx *listingTx) InsertBooking(booking *models.BookingRequest) error {
	if err := tx.store.checkFault("insert_booking"); err != nil {
		return err
	}
	if booking.ListingID != tx.listing.ID {
		return fmt.Errorf("booking %s does not belong to listing %s", booking.ID, tx.listing.ID)
	}
	tx.store.mu.RLock()
	_, taken := tx.store.bookings[booking.ID]
	tx.store.mu.RUnlock()
	if _, staged := tx.bookings[booking.ID]; staged || taken {
		return fmt.Errorf("duplicate booking id %s", booking.ID)
	}
	tx.bookings[booking.ID] = *booking
	tx.dirty[booking.ID] = true
	return nil
}

func (tx *listingTx) SetBookingStatus(id utils.SixID, from, to models.BookingStatus, at time.Time) error {
	if err := tx.store.checkFault("set_booking_status"); err != nil {
		return err
	}
	b, ok := tx.bookings[id]
	if !ok {
		return apperrors.NotFound("booking")
	}
	if b.Status != from {
		return store.ErrStatusConflict
	}
	if to == models.BookingStatusConfirmed {
		for otherID, other := range tx.bookings {
			if otherID != id && other.Status == models.BookingStatusConfirmed {
				return apperrors.InvalidState("already_confirmed", "listing already has a confirmed booking")
			}
		}
	}
	b.Status = to
	b.UpdatedAt = at
	tx.bookings[id] = b
	tx.dirty[id] = true
	return nil
}

func (tx *listingTx) CancelPendingExcept(exceptID utils.SixID, at time.Time) ([]utils.SixID, error) {
	if err := tx.store.checkFault("cancel_pending"); err != nil {
		return nil, err
	}
	var cancelled []utils.SixID
	for id, b := range tx.bookings {
		if id == exceptID || b.Status != models.BookingStatusPending {
			continue
		}
		b.Status = models.BookingStatusCancelled
		b.UpdatedAt = at
		tx.bookings[id] = b
		tx.dirty[id] = true
		cancelled = append(cancelled, id)
	}
	sort.Slice(cancelled, func(i, j int) bool {
		return bytes.Compare(cancelled[i][:], cancelled[j][:]) < 0
	})
	return cancelled, nil
}

func (tx *listingTx) SetPublished(published bool, at time.Time) error {
	if err := tx.store.checkFault("set_published"); err != nil {
		return err
	}
	tx.listing.Published = published
	tx.listing.UpdatedAt = at
	tx.listing.LockVersion++
	tx.listingDirty = true
	return nil
}

func (tx *listingTx) HasConfirmedBooking() (bool, error) {
	for _, b := range tx.bookings {
		if b.Status == models.BookingStatusConfirmed {
			return true, nil
		}
	}
	return false, nil
}
