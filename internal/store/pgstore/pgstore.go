// Package pgstore implements store.Store on PostgreSQL with row locks.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"greendrake/rentals/internal/apperrors"
	"greendrake/rentals/internal/db"
	"greendrake/rentals/internal/models"
	"greendrake/rentals/internal/store"
	"greendrake/rentals/internal/utils"
)

//go:embed schema.sql
var schema string

const (
	userColumns = `id, name, email, password_hash, is_admin, suspended, created_at, updated_at`

	listingColumns = `id, owner_id, title, published,
		rent_value AS "rent.value", rent_currency AS "rent.currency_code",
		available_from AS "availability.from", available_to AS "availability.to",
		lock_version, created_at, updated_at`

	bookingColumns = `id, listing_id, requester_id, status,
		price_value AS "proposed_price.value", price_currency AS "proposed_price.currency_code",
		date_from AS "date_range.from", date_to AS "date_range.to",
		message, created_at, updated_at`
)

type Store struct {
	conn    *sqlx.DB
	timeout time.Duration
}

var _ store.Store = (*Store)(nil)

func New(conn *sqlx.DB, timeout time.Duration) *Store {
	return &Store{conn: conn, timeout: timeout}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	log.Println("PostgreSQL schema is up to date")
	return nil
}

func (s *Store) InsertUser(ctx context.Context, user *models.User) error {
	ctx, cancel := db.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.Name, strings.ToLower(user.Email), user.PasswordHash,
		user.IsAdmin, user.Suspended, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Constraint == "users_email_key" {
			return apperrors.InvalidState("email_taken", "email address is already registered")
		}
		if db.IsPostgresUniqueViolation(err) {
			return err
		}
		return db.TranslatePostgres(err, "user", "insert user")
	}
	return nil
}

func (s *Store) FindUserByID(ctx context.Context, id utils.SixID) (*models.User, error) {
	return s.findUser(ctx, `id = $1`, id)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, `email = $1`, strings.ToLower(email))
}

func (s *Store) findUser(ctx context.Context, where string, arg interface{}) (*models.User, error) {
	ctx, cancel := db.WithTimeout(ctx, s.timeout)
	defer cancel()

	var user models.User
	if err := s.conn.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE `+where, arg); err != nil {
		return nil, db.TranslatePostgres(err, "user", "find user")
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

	query, args, err := sqlx.In(`SELECT `+userColumns+` FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build user query: %w", err)
	}
	var users []models.User
	if err := s.conn.SelectContext(ctx, &users, s.conn.Rebind(query), args...); err != nil {
		return nil, db.TranslatePostgres(err, "user", "find users")
	}
	for i := range users {
		out[users[i].ID] = &users[i]
	}
	return out, nil
}

func (s *Store) InsertListing(ctx context.Context, listing *models.Listing) error {
	ctx, cancel := db.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO listings (id, owner_id, title, published, rent_value, rent_currency,
			available_from, available_to, lock_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		listing.ID, listing.OwnerID, listing.Title, listing.Published,
		listing.Rent.Value, listing.Rent.CurrencyCode,
		listing.Availability.From, listing.Availability.To,
		listing.LockVersion, listing.CreatedAt, listing.UpdatedAt)
	if err != nil {
		if db.IsPostgresUniqueViolation(err) {
			return err
		}
		return db.TranslatePostgres(err, "listing", "insert listing")
	}
	return nil
}

func (s *Store) FindListing(ctx context.Context, id utils.SixID) (*models.Listing, error) {
	ctx, cancel := db.WithTimeout(ctx, s.timeout)
	defer cancel()

	var listing models.Listing
	if err := s.conn.GetContext(ctx, &listing, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id); err != nil {
		return nil, db.TranslatePostgres(err, "listing", "find listing")
	}
	return &listing, nil
}

func (s *Store) ListBookings(ctx context.Context, listingID utils.SixID) ([]*models.BookingRequest, error) {
	ctx, cancel := db.WithTimeout(ctx, s.timeout)
	defer cancel()

	var bookings []*models.BookingRequest
	err := s.conn.SelectContext(ctx, &bookings,
		`SELECT `+bookingColumns+` FROM booking_requests WHERE listing_id = $1 ORDER BY created_at DESC, id DESC`,
		listingID)
	if err != nil {
		return nil, db.TranslatePostgres(err, "booking", "list bookings")
	}
	return bookings, nil
}

func (s *Store) ListStalePending(ctx context.Context, before time.Time, limit int) ([]*models.BookingRequest, error) {
	ctx, cancel := db.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `SELECT ` + bookingColumns + ` FROM booking_requests
		WHERE status = $1 AND date_from < $2 ORDER BY created_at`
	args := []interface{}{models.BookingStatusPending, before}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	var bookings []*models.BookingRequest
	if err := s.conn.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, db.TranslatePostgres(err, "booking", "list stale bookings")
	}
	return bookings, nil
}

// WithListingLock holds SELECT ... FOR UPDATE on the listing row for the
// whole transaction. Statements run after the lock is granted see every
// commit made by the previous holder.
func (s *Store) WithListingLock(ctx context.Context, listingID utils.SixID, fn func(tx store.ListingTx) error) error {
	ctx, cancel := db.WithTimeout(ctx, s.timeout)
	defer cancel()

	return db.RunInTx(ctx, s.conn, func(sqlTx *sqlx.Tx) error {
		var listing models.Listing
		err := sqlTx.GetContext(ctx, &listing,
			`SELECT `+listingColumns+` FROM listings WHERE id = $1 FOR UPDATE`, listingID)
		if err != nil {
			return db.TranslatePostgres(err, "listing", "lock listing")
		}
		return fn(&listingTx{ctx: ctx, tx: sqlTx, listing: listing})
	})
}

func (s *Store) Close(ctx context.Context) error {
	return db.DisconnectPostgres(s.conn)
}

type listingTx struct {
	ctx     context.Context
	tx      *sqlx.Tx
	listing models.Listing
}

func (t *listingTx) Listing() *models.Listing {
	l := t.listing
	return &l
}

func (t *listingTx) GetBooking(id utils.SixID) (*models.BookingRequest, error) {
	var booking models.BookingRequest
	err := t.tx.GetContext(t.ctx, &booking,
		`SELECT `+bookingColumns+` FROM booking_requests WHERE id = $1 AND listing_id = $2`,
		id, t.listing.ID)
	if err != nil {
		return nil, db.TranslatePostgres(err, "booking", "find booking")
	}
	return &booking, nil
}

func (t *listingTx) InsertBooking(b *models.BookingRequest) error {
	if b.ListingID != t.listing.ID {
		return fmt.Errorf("booking %s does not belong to listing %s", b.ID, t.listing.ID)
	}
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO booking_requests (id, listing_id, requester_id, status, price_value, price_currency,
			date_from, date_to, message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		b.ID, b.ListingID, b.RequesterID, b.Status, b.ProposedPrice.Value, b.ProposedPrice.CurrencyCode,
		b.DateRange.From, b.DateRange.To, b.Message, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if db.IsPostgresUniqueViolation(err) {
			return err
		}
		return db.TranslatePostgres(err, "booking", "insert booking")
	}
	return nil
}

func (t *listingTx) SetBookingStatus(id utils.SixID, from, to models.BookingStatus, at time.Time) error {
	res, err := t.tx.ExecContext(t.ctx,
		`UPDATE booking_requests SET status = $1, updated_at = $2 WHERE id = $3 AND listing_id = $4 AND status = $5`,
		to, at, id, t.listing.ID, from)
	if err != nil {
		if db.IsPostgresUniqueViolation(err) {
			return apperrors.InvalidState("already_confirmed", "listing already has a confirmed booking")
		}
		return db.TranslatePostgres(err, "booking", "update booking status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return db.TranslatePostgres(err, "booking", "update booking status")
	}
	if n == 1 {
		return nil
	}
	if _, err := t.GetBooking(id); err != nil {
		return err
	}
	return store.ErrStatusConflict
}

func (t *listingTx) CancelPendingExcept(exceptID utils.SixID, at time.Time) ([]utils.SixID, error) {
	var ids []utils.SixID
	err := t.tx.SelectContext(t.ctx, &ids,
		`UPDATE booking_requests SET status = $1, updated_at = $2
		WHERE listing_id = $3 AND status = $4 AND id <> $5
		RETURNING id`,
		models.BookingStatusCancelled, at, t.listing.ID, models.BookingStatusPending, exceptID)
	if err != nil {
		return nil, db.TranslatePostgres(err, "booking", "cancel pending bookings")
	}
	return ids, nil
}

func (t *listingTx) SetPublished(published bool, at time.Time) error {
	_, err := t.tx.ExecContext(t.ctx,
		`UPDATE listings SET published = $1, updated_at = $2, lock_version = lock_version + 1 WHERE id = $3`,
		published, at, t.listing.ID)
	if err != nil {
		return db.TranslatePostgres(err, "listing", "update listing")
	}
	t.listing.Published = published
	t.listing.UpdatedAt = at
	return nil
}

func (t *listingTx) HasConfirmedBooking() (bool, error) {
	var exists bool
	err := t.tx.GetContext(t.ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM booking_requests WHERE listing_id = $1 AND status = $2)`,
		t.listing.ID, models.BookingStatusConfirmed)
	if err != nil {
		return false, db.TranslatePostgres(err, "booking", "check confirmed booking")
	}
	return exists, nil
}
