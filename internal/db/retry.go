package db

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/lib/pq"
	"go.mongodb.org/mongo-driver/mongo"
	"greendrake/rentals/internal/apperrors"
	"greendrake/rentals/internal/metrics"
)

// Operation is a function that performs an action and returns an error if it fails.
type Operation func() error

// IsDuplicateKeyError is a function that checks if an error is a duplicate key error.
type IsDuplicateKeyError func(err error) bool

const DefaultMaxRetries = 3

// Try executes an operation with default retry settings for duplicate key errors.
// It uses DefaultMaxRetries and IsDuplicateKey.
func Try(op Operation) error {
	return WithRetries(op, DefaultMaxRetries, IsDuplicateKey)
}

// WithRetries executes an operation with a retry mechanism for duplicate key errors.
// It attempts the operation up to maxRetries+1 times. Ids must be regenerated inside op.
func WithRetries(op Operation, maxRetries int, isDuplicateKey IsDuplicateKeyError) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}

		if attempt == maxRetries {
			break
		}

		if !isDuplicateKey(err) {
			return err
		}
		time.Sleep(time.Duration(50*(attempt+1)) * time.Millisecond)
	}
	return err
}

// RetryTransient runs op up to attempts times, retrying only TransientStore
// failures with incremental backoff. Any other error is returned immediately.
func RetryTransient(ctx context.Context, attempts int, op func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil || !apperrors.IsRetryable(err) || attempt == attempts {
			return err
		}

		metrics.StoreRetries.Inc()
		log.Printf("Transient store error on attempt %d/%d, retrying: %v", attempt, attempts, err)
		select {
		case <-ctx.Done():
			return apperrors.Transient("operation cancelled while waiting to retry", ctx.Err())
		case <-time.After(time.Duration(50*attempt) * time.Millisecond):
		}
	}
	return err
}

// IsDuplicateKey recognises unique violations from either store.
func IsDuplicateKey(err error) bool {
	return IsMongoDuplicateKeyError(err) || IsPostgresUniqueViolation(err)
}

// IsMongoDuplicateKeyError checks if an error from MongoDB is a duplicate key error (code 11000).
func IsMongoDuplicateKeyError(err error) bool {
	var e mongo.WriteException
	if errors.As(err, &e) {
		for _, we := range e.WriteErrors {
			if we.Code == 11000 {
				return true
			}
		}
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, writeError := range bwe.WriteErrors {
			if writeError.Code == 11000 {
				return true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	return false
}

// IsPostgresUniqueViolation checks for SQLSTATE 23505.
func IsPostgresUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
