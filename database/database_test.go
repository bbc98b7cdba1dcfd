package database_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sagarc03/burndrop"
	"github.com/sagarc03/burndrop/database"
	"github.com/sagarc03/burndrop/internal/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfig(tableName string) database.Config {
	return database.Config{
		Type:   "sqlite",
		DSN:    ":memory:",
		Tables: burndrop.Tables{Shares: tableName},
	}
}

func setupTestDB(t *testing.T, cfg database.Config) database.Database {
	t.Helper()

	db, err := database.Connect(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestConnect_InvalidType(t *testing.T) {
	t.Parallel()

	for _, typ := range []string{"invalid", ""} {
		_, err := database.Connect(context.Background(), database.Config{Type: typ, DSN: ":memory:"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported database type")
	}
}

func TestConnect_InvalidTable(t *testing.T) {
	t.Parallel()

	_, err := database.Connect(context.Background(), newTestConfig("bad-name;"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid shares table name")
}

func TestDatabase_SQLiteLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db := setupTestDB(t, newTestConfig("lifecycle_shares"))

	require.NoError(t, db.Ping(ctx))
	assert.Error(t, db.Validate(ctx), "validate fails before migration")

	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx), "migrate is idempotent")
	require.NoError(t, db.Validate(ctx))

	repo := db.GetRepo()
	require.NotNil(t, repo)

	rec := repotest.Record("share-db-00001", time.Hour, nil)
	require.NoError(t, repo.Create(ctx, rec))

	got, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.OriginalName, got.OriginalName)
}

func TestDatabase_SQLiteClose(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db, err := database.Connect(ctx, newTestConfig("close_shares"))
	require.NoError(t, err)

	require.NoError(t, db.Close())
	assert.Error(t, db.Ping(ctx), "ping fails after close")
}

func TestDatabase_Bolt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "shares.db")
	db := setupTestDB(t, database.Config{Type: "bolt", DSN: path})

	require.NoError(t, db.Ping(ctx))
	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Validate(ctx))

	rec := repotest.Record("share-bolt-0001", time.Hour, repotest.Limit(1))
	require.NoError(t, db.GetRepo().Create(ctx, rec))

	n, err := db.GetRepo().Admit(ctx, rec.ID, repotest.Base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDatabase_Memory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db := setupTestDB(t, database.Config{Type: "memory"})

	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Validate(ctx))

	_, err := db.GetRepo().Get(ctx, "share-missing")
	assert.ErrorIs(t, err, burndrop.ErrNotFound)
}
