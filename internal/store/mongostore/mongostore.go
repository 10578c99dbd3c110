// Package mongostore implements store.Store on MongoDB multi-document transactions.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"greendrake/rentals/internal/apperrors"
	"greendrake/rentals/internal/db"
	"greendrake/rentals/internal/models"
	"greendrake/rentals/internal/store"
	"greendrake/rentals/internal/utils"
)

const (
	usersCollection    = "users"
	listingsCollection = "listings"
	bookingsCollection = "booking_requests"
)

type Store struct {
	client   *mongo.Client
	database *mongo.Database
	txm      db.TransactionManager
	timeout  time.Duration
}

var _ store.Store = (*Store)(nil)

func New(client *mongo.Client, database *mongo.Database, timeout time.Duration) *Store {
	return &Store{
		client:   client,
		database: database,
		txm:      db.NewTransactionManager(client),
		timeout:  timeout,
	}
}

func (s *Store) users() *mongo.Collection    { return s.database.Collection(usersCollection) }
func (s *Store) listings() *mongo.Collection { return s.database.Collection(listingsCollection) }
func (s *Store) bookings() *mongo.Collection { return s.database.Collection(bookingsCollection) }

func (s *Store) InsertUser(ctx context.Context, user *models.User) error {
	ctx, cancel := db.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc := *user
	doc.Email = strings.ToLower(doc.Email)
	if _, err := s.users().InsertOne(ctx, &doc); err != nil {
		if db.IsMongoDuplicateKeyError(err) && strings.Contains(err.Error(), "email") {
			return apperrors.InvalidState("email_taken", "email address is already registered")
		}
		if db.IsMongoDuplicateKeyError(err) {
			return err
		}
		return db.TranslateMongo(err, "user", "insert user")
	}
	return nil
}

func (s *Store) FindUserByID(ctx context.Context, id utils.SixID) (*models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"email": strings.ToLower(email)})
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	ctx, cancel := db.WithTimeout(ctx, s.timeout)
	defer cancel()

	var user models.User
	if err := s.users().FindOne(ctx, filter).Decode(&user); err != nil {
		return nil, db.TranslateMongo(err, "user", "find user")
	}
	return &user, nil
}

func (s *Store) FindUsersByIDs(ctx context.Context, ids []utils.SixID) (map[utils.SixID]*models.User, error) {
	out := make(map[utils.SixID]*models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	ctx, cancel := db.WithTimeout(ctx, s.timeout)
	defer cancel()

	cursor, err := s.users().Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, db.TranslateMongo(err, "user", "find users")
	}
	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, db.TranslateMongo(err, "user", "decode users")
	}
	for i := range users {
		out[users[i].ID] = &users[i]
	}
	return out, nil
}

func (s *Store) InsertListing(ctx context.Context, listing *models.Listing) error {
	ctx, cancel := db.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.listings().InsertOne(ctx, listing); err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return err
		}
		return db.TranslateMongo(err, "listing", "insert listing")
	}
	return nil
}

func (s *Store) FindListing(ctx context.Context, id utils.SixID) (*models.Listing, error) {
	ctx, cancel := db.WithTimeout(ctx, s.timeout)
	defer cancel()

	var listing models.Listing
	if err := s.listings().FindOne(ctx, bson.M{"_id": id}).Decode(&listing); err != nil {
		return nil, db.TranslateMongo(err, "listing", "find listing")
	}
	return &listing, nil
}

func (s *Store) ListBookings(ctx context.Context, listingID utils.SixID) ([]*models.BookingRequest, error) {
	ctx, cancel := db.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	return s.findBookings(ctx, bson.M{"listing_id": listingID}, opts)
}

func (s *Store) ListStalePending(ctx context.Context, before time.Time, limit int) ([]*models.BookingRequest, error) {
	ctx, cancel := db.WithTimeout(ctx, s.timeout)
	defer cancel()

	filter := bson.M{
		"status":          models.BookingStatusPending,
		"date_range.from": bson.M{"$lt": before},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.findBookings(ctx, filter, opts)
}

func (s *Store) findBookings(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.BookingRequest, error) {
	cursor, err := s.bookings().Find(ctx, filter, opts)
	if err != nil {
		return nil, db.TranslateMongo(err, "booking", "find bookings")
	}
	var bookings []*models.BookingRequest
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, db.TranslateMongo(err, "booking", "decode bookings")
	}
	return bookings, nil
}

// WithListingLock bumps the listing's lock_version as the transaction's first
// write. A second transaction on the same listing then hits a write conflict
// and is retried by the driver after the first commits, so it reads the
// committed state.
func (s *Store) WithListingLock(ctx context.Context, listingID utils.SixID, fn func(tx store.ListingTx) error) error {
	ctx, cancel := db.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.txm.ExecuteTransaction(ctx, func(sc mongo.SessionContext) error {
		var listing models.Listing
		err := s.listings().FindOneAndUpdate(sc,
			bson.M{"_id": listingID},
			bson.M{"$inc": bson.M{"lock_version": 1}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&listing)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return apperrors.NotFound("listing")
		}
		if err != nil {
			return err
		}
		return fn(&listingTx{sc: sc, store: s, listing: listing})
	})
}

func (s *Store) Close(ctx context.Context) error {
	return db.DisconnectDB(s.client)
}

// listingTx returns raw driver errors for anything that is not a domain
// failure so the transaction callback can be retried on transient labels.
type listingTx struct {
	sc      mongo.SessionContext
	store   *Store
	listing models.Listing
}

func (tx *listingTx) Listing() *models.Listing {
	l := tx.listing
	return &l
}

func (tx *listingTx) GetBooking(id utils.SixID) (*models.BookingRequest, error) {
	var booking models.BookingRequest
	err := tx.store.bookings().FindOne(tx.sc, bson.M{"_id": id, "listing_id": tx.listing.ID}).Decode(&booking)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NotFound("booking")
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (tx *listingTx) InsertBooking(booking *models.BookingRequest) error {
	if booking.ListingID != tx.listing.ID {
		return fmt.Errorf("booking %s does not belong to listing %s", booking.ID, tx.listing.ID)
	}
	_, err := tx.store.bookings().InsertOne(tx.sc, booking)
	return err
}

func (tx *listingTx) SetBookingStatus(id utils.SixID, from, to models.BookingStatus, at time.Time) error {
	res, err := tx.store.bookings().UpdateOne(tx.sc,
		bson.M{"_id": id, "listing_id": tx.listing.ID, "status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": at}},
	)
	if err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return apperrors.InvalidState("already_confirmed", "listing already has a confirmed booking")
		}
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}
	if _, err := tx.GetBooking(id); err != nil {
		return err
	}
	return store.ErrStatusConflict
}

func (tx *listingTx) CancelPendingExcept(exceptID utils.SixID, at time.Time) ([]utils.SixID, error) {
	filter := bson.M{
		"listing_id": tx.listing.ID,
		"status":     models.BookingStatusPending,
		"_id":        bson.M{"$ne": exceptID},
	}
	cursor, err := tx.store.bookings().Find(tx.sc, filter,
		options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []struct {
		ID utils.SixID `bson:"_id"`
	}
	if err := cursor.All(tx.sc, &docs); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	ids := make([]utils.SixID, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	_, err = tx.store.bookings().UpdateMany(tx.sc,
		bson.M{"_id": bson.M{"$in": ids}, "status": models.BookingStatusPending},
		bson.M{"$set": bson.M{"status": models.BookingStatusCancelled, "updated_at": at}},
	)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (tx *listingTx) SetPublished(published bool, at time.Time) error {
	_, err := tx.store.listings().UpdateOne(tx.sc,
		bson.M{"_id": tx.listing.ID},
		bson.M{"$set": bson.M{"published": published, "updated_at": at}},
	)
	if err != nil {
		return err
	}
	tx.listing.Published = published
	tx.listing.UpdatedAt = at
	return nil
}

func (tx *listingTx) HasConfirmedBooking() (bool, error) {
	n, err := tx.store.bookings().CountDocuments(tx.sc,
		bson.M{"listing_id": tx.listing.ID, "status": models.BookingStatusConfirmed},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
