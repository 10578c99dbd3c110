package mongostore

import (
	"context"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"greendrake/rentals/internal/models"
)

var (
	usersIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName("email_unique")},
	}

	listingsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "owner_id", Value: 1}}},
	}

	bookingsIndexes = []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "listing_id", Value: 1},
			{Key: "created_at", Value: -1},
			{Key: "_id", Value: -1},
		}},
		{Keys: bson.D{
			{Key: "status", Value: 1},
			{Key: "date_range.from", Value: 1},
		}},
		// At most one confirmed booking per listing.
		{
			Keys: bson.D{{Key: "listing_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("one_confirmed_per_listing").
				SetPartialFilterExpression(bson.M{"status": models.BookingStatusConfirmed}),
		},
	}
)

// EnsureIndexes creates the collections and indexes. Collections must exist
// before the first transaction touches them.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	collections := []struct {
		name    string
		indexes []mongo.IndexModel
	}{
		{usersCollection, usersIndexes},
		{listingsCollection, listingsIndexes},
		{bookingsCollection, bookingsIndexes},
	}

	for _, c := range collections {
		existing, err := s.database.ListCollectionNames(ctx, bson.D{{Key: "name", Value: c.name}})
		if err != nil {
			return fmt.Errorf("failed to list collections: %w", err)
		}
		if len(existing) == 0 {
			if err := s.database.CreateCollection(ctx, c.name); err != nil {
				return fmt.Errorf("failed to create collection %s: %w", c.name, err)
			}
		}
		if _, err := s.database.Collection(c.name).Indexes().CreateMany(ctx, c.indexes); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", c.name, err)
		}
	}
	log.Printf("Ensured collections and indexes on database %s", s.database.Name())
	return nil
}
