package postgres_test

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sagarc03/burndrop"
	"github.com/sagarc03/burndrop/database/postgres"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
)

var (
	testPool      *pgxpool.Pool
	testContainer *pgcontainer.PostgresContainer
	testPoolOnce  sync.Once
	testPoolErr   error
)

func TestMain(m *testing.M) {
	code := m.Run()

	if testPool != nil {
		testPool.Close()
	}
	if testContainer != nil {
		_ = testcontainers.TerminateContainer(testContainer)
	}

	os.Exit(code)
}

// getSharedTestDatabase returns a pool on a postgres container shared by every test in the package.
func getSharedTestDatabase(t *testing.T) *pgxpool.Pool {
	t.Helper()

	testPoolOnce.Do(func() {
		ctx := context.Background()

		testContainer, testPoolErr = pgcontainer.Run(ctx,
			"postgres:18-alpine",
			pgcontainer.WithDatabase("testdb"),
			pgcontainer.WithUsername("testuser"),
			pgcontainer.WithPassword("testpass"),
			pgcontainer.BasicWaitStrategies(),
		)
		if testPoolErr != nil {
			return
		}

		connectionStr, err := testContainer.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			testPoolErr = err
			return
		}

		testPool, testPoolErr = pgxpool.New(ctx, connectionStr)
	})

	require.NoError(t, testPoolErr, "failed to start postgres container")
	return testPool
}

// getRandomString generates a random string for unique test identifiers.
func getRandomString(t *testing.T) string {
	t.Helper()
	n, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	require.NoError(t, err, "random string")
	return fmt.Sprintf("test%x", n.Int64())
}

// dropTable drops the specified table for test cleanup.
func dropTable(ctx context.Context, pool *pgxpool.Pool, tableName string) error {
	quotedTable := pgx.Identifier{tableName}.Sanitize()
	_, err := pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", quotedTable))
	return err
}

// setupTestRepo creates a migrated repo on a table unique to the test.
func setupTestRepo(t *testing.T) (*postgres.Repo, *pgxpool.Pool, burndrop.Tables) {
	t.Helper()

	pool := getSharedTestDatabase(t)
	ctx := context.Background()

	tables := burndrop.Tables{Shares: fmt.Sprintf("shares_%s", getRandomString(t))}
	require.NoError(t, postgres.Migrate(ctx, pool, tables), "failed to migrate")
	t.Cleanup(func() { _ = dropTable(context.Background(), pool, tables.Shares) })

	repo, err := postgres.NewRepo(pool, tables)
	require.NoError(t, err)

	return repo, pool, tables
}
