package mongostore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"greendrake/rentals/internal/store"
	"greendrake/rentals/internal/store/storetest"
	"greendrake/rentals/internal/testutil"
)

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		client, database := testutil.SetupTestMongo(t)
		s := New(client, database, 10*time.Second)
		require.NoError(t, s.EnsureIndexes(context.Background()))
		return s
	})
}
