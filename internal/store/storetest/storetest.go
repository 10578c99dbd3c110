// Package storetest holds behaviour checks every store.Store adapter must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"greendrake/rentals/internal/apperrors"
	"greendrake/rentals/internal/models"
	"greendrake/rentals/internal/store"
	"greendrake/rentals/internal/utils"
)

// now is truncated to what every backend can round-trip.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// NewUser inserts a user with a unique email.
func NewUser(t *testing.T, s store.Store, name string) *models.User {
	t.Helper()
	ts := now()
	u := &models.User{
		Name:         name,
		Email:        strings.ToLower(fmt.Sprintf("%s-%s@example.com", name, utils.NewSixID())),
		PasswordHash: "x",
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	u.GenID()
	require.NoError(t, s.InsertUser(context.Background(), u))
	return u
}

// NewListing inserts a listing owned by owner.
func NewListing(t *testing.T, s store.Store, owner utils.SixID, published bool) *models.Listing {
	t.Helper()
	ts := now()
	l := &models.Listing{
		OwnerID:   owner,
		Title:     "Two bedroom flat",
		Published: published,
		Rent:      models.AskingPrice{Value: 650, CurrencyCode: "NZD"},
		Availability: models.DateRange{
			From: ts.AddDate(0, 0, 7).Truncate(24 * time.Hour),
			To:   ts.AddDate(1, 0, 0).Truncate(24 * time.Hour),
		},
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	l.GenID()
	require.NoError(t, s.InsertListing(context.Background(), l))
	return l
}

// NewBooking inserts a pending booking created at the given time.
func NewBooking(t *testing.T, s store.Store, listingID, requester utils.SixID, created time.Time) *models.BookingRequest {
	t.Helper()
	b := &models.BookingRequest{
		ListingID:     listingID,
		RequesterID:   requester,
		Status:        models.BookingStatusPending,
		ProposedPrice: models.AskingPrice{Value: 600, CurrencyCode: "NZD"},
		DateRange:     models.DateRange{From: created.AddDate(0, 1, 0), To: created.AddDate(0, 4, 0)},
		Message:       "hello",
		CreatedAt:     created,
		UpdatedAt:     created,
	}
	b.GenID()
	err := s.WithListingLock(context.Background(), listingID, func(tx store.ListingTx) error {
		return tx.InsertBooking(b)
	})
	require.NoError(t, err)
	return b
}

// Run executes the contract suite against the store returned by newStore.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("Listings", func(t *testing.T) { testListings(t, newStore(t)) })
	t.Run("ListBookingsOrder", func(t *testing.T) { testListBookingsOrder(t, newStore(t)) })
	t.Run("LockRollback", func(t *testing.T) { testLockRollback(t, newStore(t)) })
	t.Run("StatusCompareAndSet", func(t *testing.T) { testStatusCAS(t, newStore(t)) })
	t.Run("ConfirmSequence", func(t *testing.T) { testConfirmSequence(t, newStore(t)) })
	t.Run("SingleConfirmedPerListing", func(t *testing.T) { testSingleConfirmed(t, newStore(t)) })
	t.Run("StalePending", func(t *testing.T) { testStalePending(t, newStore(t)) })
	t.Run("LockSerializes", func(t *testing.T) { testLockSerializes(t, newStore(t)) })
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := NewUser(t, s, "Alice")

	byID, err := s.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, byID.Email)

	byEmail, err := s.FindUserByEmail(ctx, strings.ToUpper(u.Email))
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	dup := *u
	dup.GenID()
	err = s.InsertUser(ctx, &dup)
	assert.Equal(t, apperrors.KindInvalidState, apperrors.KindOf(err))

	_, err = s.FindUserByID(ctx, utils.NewSixID())
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	other := NewUser(t, s, "Bob")
	found, err := s.FindUsersByIDs(ctx, []utils.SixID{u.ID, other.ID, utils.NewSixID()})
	require.NoError(t, err)
	assert.Len(t, found, 2)
	assert.Equal(t, "Bob", found[other.ID].Name)
}

func testListings(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := NewUser(t, s, "Owner")
	l := NewListing(t, s, owner.ID, true)

	got, err := s.FindListing(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, got.OwnerID)
	assert.True(t, got.Published)
	assert.Equal(t, 650.0, got.Rent.Value)
	assert.Equal(t, "NZD", got.Rent.CurrencyCode)

	_, err = s.FindListing(ctx, utils.NewSixID())
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	err = s.WithListingLock(ctx, utils.NewSixID(), func(tx store.ListingTx) error {
		t.Fatal("callback must not run for a missing listing")
		return nil
	})
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func testListBookingsOrder(t *testing.T, s store.Store) {
	owner := NewUser(t, s, "Owner")
	tenant := NewUser(t, s, "Tenant")
	l := NewListing(t, s, owner.ID, true)

	base := now().Add(-time.Hour)
	b1 := NewBooking(t, s, l.ID, tenant.ID, base)
	b3 := NewBooking(t, s, l.ID, tenant.ID, base.Add(2*time.Minute))
	b2 := NewBooking(t, s, l.ID, tenant.ID, base.Add(time.Minute))

	got, err := s.ListBookings(context.Background(), l.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []utils.SixID{b3.ID, b2.ID, b1.ID}, []utils.SixID{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, tenant.ID, got[0].RequesterID)
	assert.Equal(t, models.BookingStatusPending, got[0].Status)
}

func testLockRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := NewUser(t, s, "Owner")
	tenant := NewUser(t, s, "Tenant")
	l := NewListing(t, s, owner.ID, true)
	pending := NewBooking(t, s, l.ID, tenant.ID, now())

	boom := errors.New("boom")
	err := s.WithListingLock(ctx, l.ID, func(tx store.ListingTx) error {
		require.NoError(t, tx.SetBookingStatus(pending.ID, models.BookingStatusPending, models.BookingStatusConfirmed, now()))
		require.NoError(t, tx.SetPublished(false, now()))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.ListBookings(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.BookingStatusPending, got[0].Status)

	listing, err := s.FindListing(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, listing.Published)
}

func testStatusCAS(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := NewUser(t, s, "Owner")
	tenant := NewUser(t, s, "Tenant")
	l := NewListing(t, s, owner.ID, true)
	b := NewBooking(t, s, l.ID, tenant.ID, now())

	err := s.WithListingLock(ctx, l.ID, func(tx store.ListingTx) error {
		return tx.SetBookingStatus(b.ID, models.BookingStatusPending, models.BookingStatusCancelled, now())
	})
	require.NoError(t, err)

	err = s.WithListingLock(ctx, l.ID, func(tx store.ListingTx) error {
		return tx.SetBookingStatus(b.ID, models.BookingStatusPending, models.BookingStatusConfirmed, now())
	})
	assert.ErrorIs(t, err, store.ErrStatusConflict)

	err = s.WithListingLock(ctx, l.ID, func(tx store.ListingTx) error {
		_, err := tx.GetBooking(utils.NewSixID())
		return err
	})
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	// A booking is only visible through its own listing.
	otherListing := NewListing(t, s, owner.ID, true)
	err = s.WithListingLock(ctx, otherListing.ID, func(tx store.ListingTx) error {
		_, err := tx.GetBooking(b.ID)
		return err
	})
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func testConfirmSequence(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := NewUser(t, s, "Owner")
	tenant := NewUser(t, s, "Tenant")
	l := NewListing(t, s, owner.ID, true)
	b1 := NewBooking(t, s, l.ID, tenant.ID, now())
	b2 := NewBooking(t, s, l.ID, tenant.ID, now())
	b3 := NewBooking(t, s, l.ID, tenant.ID, now())

	var cancelled []utils.SixID
	err := s.WithListingLock(ctx, l.ID, func(tx store.ListingTx) error {
		if err := tx.SetBookingStatus(b2.ID, models.BookingStatusPending, models.BookingStatusConfirmed, now()); err != nil {
			return err
		}
		var err error
		if cancelled, err = tx.CancelPendingExcept(b2.ID, now()); err != nil {
			return err
		}
		if err := tx.SetPublished(false, now()); err != nil {
			return err
		}
		confirmed, err := tx.HasConfirmedBooking()
		require.NoError(t, err)
		assert.True(t, confirmed)
		assert.False(t, tx.Listing().Published)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []utils.SixID{b1.ID, b3.ID}, cancelled)

	statuses := map[utils.SixID]models.BookingStatus{}
	got, err := s.ListBookings(ctx, l.ID)
	require.NoError(t, err)
	for _, b := range got {
		statuses[b.ID] = b.Status
	}
	assert.Equal(t, models.BookingStatusConfirmed, statuses[b2.ID])
	assert.Equal(t, models.BookingStatusCancelled, statuses[b1.ID])
	assert.Equal(t, models.BookingStatusCancelled, statuses[b3.ID])

	listing, err := s.FindListing(ctx, l.ID)
	require.NoError(t, err)
	assert.False(t, listing.Published)
}

func testSingleConfirmed(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := NewUser(t, s, "Owner")
	tenant := NewUser(t, s, "Tenant")
	l := NewListing(t, s, owner.ID, true)
	b1 := NewBooking(t, s, l.ID, tenant.ID, now())
	b2 := NewBooking(t, s, l.ID, tenant.ID, now())

	require.NoError(t, s.WithListingLock(ctx, l.ID, func(tx store.ListingTx) error {
		return tx.SetBookingStatus(b1.ID, models.BookingStatusPending, models.BookingStatusConfirmed, now())
	}))

	err := s.WithListingLock(ctx, l.ID, func(tx store.ListingTx) error {
		return tx.SetBookingStatus(b2.ID, models.BookingStatusPending, models.BookingStatusConfirmed, now())
	})
	assert.Equal(t, apperrors.KindInvalidState, apperrors.KindOf(err))
}

func testStalePending(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := NewUser(t, s, "Owner")
	tenant := NewUser(t, s, "Tenant")
	l := NewListing(t, s, owner.ID, true)
	b := NewBooking(t, s, l.ID, tenant.ID, now())

	stale, err := s.ListStalePending(ctx, b.DateRange.From.Add(-time.Hour), 0)
	require.NoError(t, err)
	assert.NotContains(t, ids(stale), b.ID)

	stale, err = s.ListStalePending(ctx, b.DateRange.From.Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Contains(t, ids(stale), b.ID)

	limited, err := s.ListStalePending(ctx, b.DateRange.From.Add(time.Hour), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func testLockSerializes(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := NewUser(t, s, "Owner")
	tenant := NewUser(t, s, "Tenant")
	l := NewListing(t, s, owner.ID, true)

	const n = 5
	bookings := make([]*models.BookingRequest, n)
	for i := range bookings {
		bookings[i] = NewBooking(t, s, l.ID, tenant.ID, now())
	}

	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.WithListingLock(ctx, l.ID, func(tx store.ListingTx) error {
				if err := tx.SetBookingStatus(bookings[i].ID, models.BookingStatusPending, models.BookingStatusConfirmed, now()); err != nil {
					return err
				}
				_, err := tx.CancelPendingExcept(bookings[i].ID, now())
				return err
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.Equal(t, apperrors.KindInvalidState, apperrors.KindOf(err), "loser error: %v", err)
	}
	assert.Equal(t, 1, wins)
}

func ids(bookings []*models.BookingRequest) []utils.SixID {
	out := make([]utils.SixID, len(bookings))
	for i, b := range bookings {
		out[i] = b.ID
	}
	return out
}
