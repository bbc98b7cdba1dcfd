package sqlite_test

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"math"
	"math/big"
	"testing"

	"github.com/sagarc03/burndrop"
	"github.com/sagarc03/burndrop/database/sqlite"
	"github.com/stretchr/testify/require"
)

func getRandomString(t *testing.T) string {
	t.Helper()
	n, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	require.NoError(t, err, "random string")
	return fmt.Sprintf("test%x", n.Int64())
}

func openTestDB(t *testing.T, dsn string) *sql.DB {
	t.Helper()

	db, err := sqlite.Open(context.Background(), dsn)
	require.NoError(t, err, "failed to open")
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// setupTestRepo creates a migrated repo with a unique table name in a fresh in-memory database.
func setupTestRepo(t *testing.T) (*sqlite.Repo, *sql.DB, burndrop.Tables) {
	t.Helper()

	ctx := context.Background()
	tables := burndrop.Tables{Shares: fmt.Sprintf("shares_%s", getRandomString(t))}

	db := openTestDB(t, ":memory:")
	require.NoError(t, sqlite.Migrate(ctx, db, tables), "failed to migrate")

	repo, err := sqlite.NewRepo(db, tables)
	require.NoError(t, err)

	return repo, db, tables
}
