package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"greendrake/rentals/internal/apperrors"
	"greendrake/rentals/internal/utils"
)

func mockMongoDuplicateKeyError(key string) error {
	return mongo.WriteException{WriteErrors: []mongo.WriteError{{
		Code:    11000,
		Message: fmt.Sprintf("E11000 duplicate key error collection: rentals.booking_requests index: _id_ dup key: { : \"%s\" }", key),
	}}}
}

func TestWithRetries_SuccessfulFirstAttempt(t *testing.T) {
	var opCalled int
	err := WithRetries(func() error {
		opCalled++
		return nil
	}, 3, IsDuplicateKey)

	require.NoError(t, err)
	assert.Equal(t, 1, opCalled)
}

func TestWithRetries_FailureNonDuplicateKey(t *testing.T) {
	var opCalled int
	expectedErr := errors.New("some other error")
	err := WithRetries(func() error {
		opCalled++
		return expectedErr
	}, 3, IsDuplicateKey)

	assert.ErrorIs(t, err, expectedErr)
	assert.Equal(t, 1, opCalled)
}

func TestWithRetries_ExhaustRetries(t *testing.T) {
	var opCalled int
	collidingID := utils.SixID{0, 0, 0, 0, 0, 1}

	err := WithRetries(func() error {
		opCalled++
		return mockMongoDuplicateKeyError(collidingID.String())
	}, 3, IsDuplicateKey)

	require.Error(t, err)
	assert.True(t, IsMongoDuplicateKeyError(err))
	assert.Equal(t, 4, opCalled)
}

func TestWithRetries_CollisionResolves(t *testing.T) {
	originalHook := utils.NewSixIDHook
	defer func() { utils.NewSixIDHook = originalHook }()

	id1 := utils.SixID{1, 2, 3, 4, 5, 1}
	id2 := utils.SixID{1, 2, 3, 4, 5, 2}
	idsToReturn := []utils.SixID{id1, id2}
	hookCallCount := 0
	utils.NewSixIDHook = func() (utils.SixID, bool) {
		if hookCallCount < len(idsToReturn) {
			id := idsToReturn[hookCallCount]
			hookCallCount++
			return id, true
		}
		return utils.SixID{}, false
	}

	inserted := map[utils.SixID]bool{id1: true}
	err := Try(func() error {
		id := utils.NewSixID()
		if inserted[id] {
			return &pq.Error{Code: "23505"}
		}
		inserted[id] = true
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, hookCallCount)
	assert.True(t, inserted[id2])
}

func TestRetryTransient(t *testing.T) {
	t.Run("retries transient until success", func(t *testing.T) {
		calls := 0
		err := RetryTransient(context.Background(), 3, func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return apperrors.Transient("store unavailable", errors.New("timeout"))
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after budget", func(t *testing.T) {
		calls := 0
		err := RetryTransient(context.Background(), 3, func(ctx context.Context) error {
			calls++
			return apperrors.Transient("store unavailable", nil)
		})
		assert.True(t, apperrors.IsRetryable(err))
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		calls := 0
		err := RetryTransient(context.Background(), 3, func(ctx context.Context) error {
			calls++
			return apperrors.InvalidState("not_pending", "booking is not pending")
		})
		assert.Equal(t, apperrors.KindInvalidState, apperrors.KindOf(err))
		assert.Equal(t, 1, calls)
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		err := RetryTransient(ctx, 3, func(ctx context.Context) error {
			calls++
			return apperrors.Transient("store unavailable", nil)
		})
		assert.True(t, apperrors.IsRetryable(err))
		assert.Equal(t, 1, calls)
	})
}

func TestTranslate(t *testing.T) {
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(TranslateMongo(mongo.ErrNoDocuments, "listing", "find listing")))
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(TranslatePostgres(sql.ErrNoRows, "listing", "find listing")))

	assert.True(t, apperrors.IsRetryable(TranslateMongo(context.DeadlineExceeded, "listing", "find listing")))
	assert.True(t, apperrors.IsRetryable(TranslatePostgres(&pq.Error{Code: "40001"}, "booking", "update booking")))
	assert.True(t, apperrors.IsRetryable(TranslatePostgres(&pq.Error{Code: "08006"}, "booking", "update booking")))

	plain := TranslatePostgres(&pq.Error{Code: "23502"}, "booking", "insert booking")
	assert.Equal(t, apperrors.KindUnknown, apperrors.KindOf(plain))
	assert.False(t, apperrors.IsRetryable(plain))

	domain := apperrors.InvalidState("not_pending", "x")
	assert.Same(t, domain, TranslateMongo(domain, "booking", "confirm"))
	assert.NoError(t, TranslateMongo(nil, "x", "y"))
}

func TestWithTimeout(t *testing.T) {
	ctx, cancel := WithTimeout(context.Background(), time.Second)
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Second), deadline, 100*time.Millisecond)

	short, cancelShort := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelShort()
	kept, cancelKept := WithTimeout(short, time.Minute)
	defer cancelKept()
	assert.Equal(t, short, kept)
}
