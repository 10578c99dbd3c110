package models

import (
	"time"

	"greendrake/rentals/internal/utils"
)

// AskingPrice defines the structure for monetary values.
type AskingPrice struct {
	Value        float64 `bson:"value" json:"value" db:"value" validate:"gt=0"`
	CurrencyCode string  `bson:"currency_code" json:"currency_code" db:"currency_code" validate:"required,currency"`
}

// DateRange is an inclusive calendar window.
type DateRange struct {
	From time.Time `bson:"from" json:"from" db:"from" validate:"required"`
	To   time.Time `bson:"to" json:"to" db:"to" validate:"required,gtefield=From"`
}

// Contains reports whether other lies entirely inside r.
func (r DateRange) Contains(other DateRange) bool {
	return !other.From.Before(r.From) && !other.To.After(r.To)
}

// Listing represents a rentable property. Published listings are visible to
// tenants; a listing with a confirmed booking is never published.
type Listing struct {
	Base         `bson:",inline"`
	OwnerID      utils.SixID `bson:"owner_id" json:"owner_id" db:"owner_id"`
	Title        string      `bson:"title" json:"title" db:"title"`
	Published    bool        `bson:"published" json:"published" db:"published"`
	Rent         AskingPrice `bson:"rent" json:"rent" db:"rent"`
	Availability DateRange   `bson:"availability" json:"availability" db:"availability"`
	LockVersion  int64       `bson:"lock_version" json:"-" db:"lock_version"`
	UpdatedAt    time.Time   `bson:"updated_at" json:"updated_at" db:"updated_at"`
	CreatedAt    time.Time   `bson:"created_at" json:"created_at" db:"created_at"`
}

// CreateListingInput is the accepted payload for a new listing.
type CreateListingInput struct {
	Title        string      `json:"title" validate:"required,max=200"`
	Rent         AskingPrice `json:"rent"`
	Availability DateRange   `json:"availability"`
}
