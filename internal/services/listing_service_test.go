package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"greendrake/rentals/internal/apperrors"
	"greendrake/rentals/internal/auth"
	"greendrake/rentals/internal/models"
	"greendrake/rentals/internal/store/memstore"
	"greendrake/rentals/internal/store/storetest"
	"greendrake/rentals/internal/utils"
)

func listingInput() models.CreateListingInput {
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	return models.CreateListingInput{
		Title:        "Sunny studio in Ponsonby",
		Rent:         models.AskingPrice{Value: 520, CurrencyCode: "NZD"},
		Availability: models.DateRange{From: from, To: from.AddDate(1, 0, 0)},
	}
}

func TestCreateListing(t *testing.T) {
	st := memstore.New()
	svc := NewListingService(st, testConfig())
	owner := storetest.NewUser(t, st, "Owner")

	listing, err := svc.CreateListing(context.Background(), owner.ID, listingInput())
	require.NoError(t, err)
	assert.False(t, listing.ID.IsZero())
	assert.Equal(t, owner.ID, listing.OwnerID)
	assert.False(t, listing.Published)

	stored, err := st.FindListing(context.Background(), listing.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sunny studio in Ponsonby", stored.Title)
	assert.Equal(t, 520.0, stored.Rent.Value)
}

func TestCreateListing_Validation(t *testing.T) {
	svc := NewListingService(memstore.New(), testConfig())
	owner := utils.NewSixID()

	cases := map[string]func(in *models.CreateListingInput){
		"missing title":   func(in *models.CreateListingInput) { in.Title = "" },
		"zero rent":       func(in *models.CreateListingInput) { in.Rent.Value = 0 },
		"bad currency":    func(in *models.CreateListingInput) { in.Rent.CurrencyCode = "dollars" },
		"inverted window": func(in *models.CreateListingInput) { in.Availability.To = in.Availability.From.AddDate(0, -1, 0) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := listingInput()
			mutate(&in)
			_, err := svc.CreateListing(context.Background(), owner, in)
			assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
		})
	}
}

func TestGetListing_Visibility(t *testing.T) {
	st := memstore.New()
	svc := NewListingService(st, testConfig())
	owner := storetest.NewUser(t, st, "Owner")
	stranger := storetest.NewUser(t, st, "Stranger")
	hidden := storetest.NewListing(t, st, owner.ID, false)
	open := storetest.NewListing(t, st, owner.ID, true)

	got, err := svc.GetListing(context.Background(), &owner.ID, hidden.ID)
	require.NoError(t, err)
	assert.Equal(t, hidden.ID, got.ID)

	_, err = svc.GetListing(context.Background(), &stranger.ID, hidden.ID)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
	_, err = svc.GetListing(context.Background(), nil, hidden.ID)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	got, err = svc.GetListing(context.Background(), nil, open.ID)
	require.NoError(t, err)
	assert.True(t, got.Published)

	_, err = svc.GetListing(context.Background(), nil, utils.NewSixID())
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestPublishAndUnpublishListing(t *testing.T) {
	st := memstore.New()
	svc := NewListingService(st, testConfig())
	owner := storetest.NewUser(t, st, "Owner")
	stranger := storetest.NewUser(t, st, "Stranger")
	listing := storetest.NewListing(t, st, owner.ID, false)

	_, err := svc.PublishListing(context.Background(), stranger.ID, listing.ID)
	assert.ErrorIs(t, err, ErrNotOwnListing)

	published, err := svc.PublishListing(context.Background(), owner.ID, listing.ID)
	require.NoError(t, err)
	assert.True(t, published.Published)

	_, err = svc.UnpublishListing(context.Background(), stranger.ID, listing.ID)
	assert.ErrorIs(t, err, ErrNotOwnListing)

	unpublished, err := svc.UnpublishListing(context.Background(), owner.ID, listing.ID)
	require.NoError(t, err)
	assert.False(t, unpublished.Published)

	stored, err := st.FindListing(context.Background(), listing.ID)
	require.NoError(t, err)
	assert.False(t, stored.Published)
}

func TestPublishListing_RefusedOnceBooked(t *testing.T) {
	f := newBookingFixture(t)
	svc := NewListingService(f.store, testConfig())
	b := f.book(t, f.tenant)
	_, err := f.svc.ConfirmBooking(context.Background(), f.owner.ID, f.listing.ID, b.ID)
	require.NoError(t, err)

	_, err = svc.PublishListing(context.Background(), f.owner.ID, f.listing.ID)
	assert.ErrorIs(t, err, ErrListingBooked)
	assert.False(t, f.published(t))
}

func TestAdminUnpublishListing(t *testing.T) {
	st := memstore.New()
	svc := NewListingService(st, testConfig())
	owner := storetest.NewUser(t, st, "Owner")
	listing := storetest.NewListing(t, st, owner.ID, true)

	_, err := svc.AdminUnpublishListing(context.Background(), nil, listing.ID)
	assert.ErrorIs(t, err, ErrAdminRequired)

	_, err = svc.AdminUnpublishListing(context.Background(), &auth.Session{UserID: owner.ID}, listing.ID)
	assert.ErrorIs(t, err, ErrAdminRequired)
	assert.Equal(t, apperrors.KindUnauthorized, apperrors.KindOf(err))

	admin := &auth.Session{UserID: utils.NewSixID(), IsAdmin: true}
	got, err := svc.AdminUnpublishListing(context.Background(), admin, listing.ID)
	require.NoError(t, err)
	assert.False(t, got.Published)

	_, err = svc.AdminUnpublishListing(context.Background(), admin, utils.NewSixID())
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}
