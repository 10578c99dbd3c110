// Package testutil connects integration tests to real databases.
// Tests are skipped unless MONGO_URI_TEST or POSTGRES_DSN_TEST is set.
package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"greendrake/rentals/internal/db"
	"greendrake/rentals/internal/utils"
)

// SetupTestMongo returns a client and a fresh database that is dropped when the test ends.
func SetupTestMongo(t *testing.T) (*mongo.Client, *mongo.Database) {
	t.Helper()
	uri := os.Getenv("MONGO_URI_TEST")
	if uri == "" {
		t.Skip("MONGO_URI_TEST not set")
	}

	dbName := fmt.Sprintf("rentals_test_%s", utils.NewSixID())
	client, database, err := db.ConnectDB(uri, dbName)
	require.NoError(t, err, "failed to connect to test MongoDB")

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := database.Drop(ctx); err != nil {
			t.Logf("failed to drop test database %s: %v", dbName, err)
		}
		_ = db.DisconnectDB(client)
	})
	return client, database
}

// SetupTestPostgres returns a connection whose search_path points at a
// throwaway schema, dropped when the test ends.
func SetupTestPostgres(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("POSTGRES_DSN_TEST")
	if dsn == "" {
		t.Skip("POSTGRES_DSN_TEST not set")
	}

	admin, err := db.ConnectPostgres(dsn)
	require.NoError(t, err, "failed to connect to test PostgreSQL")

	schemaName := strings.ToLower(fmt.Sprintf("rentals_test_%s", utils.NewSixID()))
	_, err = admin.Exec(fmt.Sprintf(`CREATE SCHEMA "%s"`, schemaName))
	require.NoError(t, err)

	conn, err := db.ConnectPostgres(withSearchPath(dsn, schemaName))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.DisconnectPostgres(conn)
		if _, err := admin.Exec(fmt.Sprintf(`DROP SCHEMA "%s" CASCADE`, schemaName)); err != nil {
			t.Logf("failed to drop test schema %s: %v", schemaName, err)
		}
		_ = db.DisconnectPostgres(admin)
	})
	return conn
}

// withSearchPath appends search_path to either DSN form lib/pq accepts.
func withSearchPath(dsn, schema string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "search_path=" + schema
	}
	return dsn + " search_path=" + schema
}
