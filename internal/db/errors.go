package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"
	"go.mongodb.org/mongo-driver/mongo"
	"greendrake/rentals/internal/apperrors"
)

// IsMongoTransient reports whether err is a timeout, network failure or
// carries one of the driver's retryable labels.
func IsMongoTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, mongo.ErrClientDisconnected) {
		return true
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return true
	}
	var le mongo.LabeledError
	if errors.As(err, &le) {
		return le.HasErrorLabel("TransientTransactionError") ||
			le.HasErrorLabel("UnknownTransactionCommitResult") ||
			le.HasErrorLabel("RetryableWriteError")
	}
	return false
}

// IsPostgresTransient reports whether err is a timeout, a connection failure,
// a serialization failure or a deadlock.
func IsPostgresTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "55P03", "57014":
			return true
		}
		return pqErr.Code.Class() == "08"
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// TranslateMongo maps a raw driver error onto the application taxonomy.
// Errors that already carry a kind pass through unchanged.
func TranslateMongo(err error, what, action string) error {
	if err == nil {
		return nil
	}
	if apperrors.KindOf(err) != apperrors.KindUnknown {
		return err
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperrors.NotFound(what)
	}
	if IsMongoTransient(err) {
		return apperrors.Transient("failed to "+action, err)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

// TranslatePostgres maps a raw driver error onto the application taxonomy.
func TranslatePostgres(err error, what, action string) error {
	if err == nil {
		return nil
	}
	if apperrors.KindOf(err) != apperrors.KindUnknown {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound(what)
	}
	if IsPostgresTransient(err) {
		return apperrors.Transient("failed to "+action, err)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}
