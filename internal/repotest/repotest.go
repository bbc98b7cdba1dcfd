// Package repotest holds the behaviour every burndrop.ShareRepo backend
// must share. Backend test packages call Run with a constructor for a
// fresh, empty repo.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sagarc03/burndrop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Base is the creation time of every fixture record.
var Base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Record returns a live fixture share created at Base.
func Record(id string, ttl time.Duration, maxDownloads *int) burndrop.ShareRecord {
	return burndrop.ShareRecord{
		ID:           id,
		BlobPath:     "bl/" + id,
		OriginalName: id + ".txt",
		SizeBytes:    100,
		ContentType:  "text/plain",
		CreatedAt:    Base,
		ExpiresAt:    Base.Add(ttl),
		MaxDownloads: maxDownloads,
	}
}

func Limit(n int) *int { return &n }

// Run executes the shared suite. newRepo must return an empty repo that is
// cleaned up by the caller's t.Cleanup.
func Run(t *testing.T, newRepo func(t *testing.T) burndrop.ShareRepo) {
	t.Run("create and get", func(t *testing.T) { testCreateGet(t, newRepo(t)) })
	t.Run("create conflict", func(t *testing.T) { testCreateConflict(t, newRepo(t)) })
	t.Run("duplicate blob path", func(t *testing.T) { testDuplicateBlobPath(t, newRepo(t)) })
	t.Run("get missing", func(t *testing.T) { testGetMissing(t, newRepo(t)) })
	t.Run("admit", func(t *testing.T) { testAdmit(t, newRepo(t)) })
	t.Run("admit refusals", func(t *testing.T) { testAdmitRefusals(t, newRepo(t)) })
	t.Run("admit concurrent quota", func(t *testing.T) { testAdmitConcurrent(t, newRepo(t)) })
	t.Run("delete", func(t *testing.T) { testDelete(t, newRepo(t)) })
	t.Run("list expired or exhausted", func(t *testing.T) { testListExpiredOrExhausted(t, newRepo(t)) })
	t.Run("cleanup lifecycle", func(t *testing.T) { testCleanupLifecycle(t, newRepo(t)) })
	t.Run("stats", func(t *testing.T) { testStats(t, newRepo(t)) })
}

func testCreateGet(t *testing.T, repo burndrop.ShareRepo) {
	ctx := context.Background()

	rec := Record("share-get-0001", time.Hour, Limit(3))
	rec.PasswordHash = "$2a$04$abcdefghijklmnopqrstuv"
	require.NoError(t, repo.Create(ctx, rec))

	got, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)

	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.BlobPath, got.BlobPath)
	assert.Equal(t, rec.OriginalName, got.OriginalName)
	assert.Equal(t, rec.SizeBytes, got.SizeBytes)
	assert.Equal(t, rec.ContentType, got.ContentType)
	assert.Equal(t, rec.PasswordHash, got.PasswordHash)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", rec.CreatedAt, got.CreatedAt)
	assert.True(t, rec.ExpiresAt.Equal(got.ExpiresAt), "expires_at %v != %v", rec.ExpiresAt, got.ExpiresAt)
	require.NotNil(t, got.MaxDownloads)
	assert.Equal(t, 3, *got.MaxDownloads)
	assert.Zero(t, got.CurrentDownloads)
	assert.Nil(t, got.LastAccessedAt)

	unlimited := Record("share-get-0002", time.Hour, nil)
	require.NoError(t, repo.Create(ctx, unlimited))

	got, err = repo.Get(ctx, unlimited.ID)
	require.NoError(t, err)
	assert.Nil(t, got.MaxDownloads)
	assert.False(t, got.HasPassword())
}

func testCreateConflict(t *testing.T, repo burndrop.ShareRepo) {
	ctx := context.Background()

	rec := Record("share-dup-0001", time.Hour, nil)
	require.NoError(t, repo.Create(ctx, rec))

	again := Record("share-dup-0001", time.Hour, nil)
	again.BlobPath = "bl/other"
	err := repo.Create(ctx, again)
	assert.ErrorIs(t, err, burndrop.ErrConflict)
}

func testDuplicateBlobPath(t *testing.T, repo burndrop.ShareRepo) {
	ctx := context.Background()

	rec := Record("share-blob-0001", time.Hour, nil)
	require.NoError(t, repo.Create(ctx, rec))

	other := Record("share-blob-0002", time.Hour, nil)
	other.BlobPath = rec.BlobPath
	err := repo.Create(ctx, other)
	require.Error(t, err)
	assert.NotErrorIs(t, err, burndrop.ErrConflict, "a new id cannot clear a blob path clash")

	_, err = repo.Get(ctx, other.ID)
	assert.ErrorIs(t, err, burndrop.ErrNotFound)
}

func testGetMissing(t *testing.T, repo burndrop.ShareRepo) {
	_, err := repo.Get(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, burndrop.ErrNotFound)
}

func testAdmit(t *testing.T, repo burndrop.ShareRepo) {
	ctx := context.Background()
	now := Base.Add(time.Minute)

	rec := Record("share-admit-01", time.Hour, Limit(2))
	require.NoError(t, repo.Create(ctx, rec))

	n, err := repo.Admit(ctx, rec.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentDownloads)
	require.NotNil(t, got.LastAccessedAt)
	assert.True(t, now.Equal(*got.LastAccessedAt))

	n, err = repo.Admit(ctx, rec.ID, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = repo.Admit(ctx, rec.ID, now.Add(2*time.Second))
	assert.ErrorIs(t, err, burndrop.ErrQuotaExceeded)

	got, err = repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentDownloads, "refused admission must not move the counter")

	unlimited := Record("share-admit-02", time.Hour, nil)
	require.NoError(t, repo.Create(ctx, unlimited))
	for i := 1; i <= 5; i++ {
		n, err = repo.Admit(ctx, unlimited.ID, now)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
}

func testAdmitRefusals(t *testing.T, repo burndrop.ShareRepo) {
	ctx := context.Background()

	_, err := repo.Admit(ctx, "missing-share", Base)
	assert.ErrorIs(t, err, burndrop.ErrNotFound)

	expired := Record("share-expired-1", time.Hour, nil)
	require.NoError(t, repo.Create(ctx, expired))

	_, err = repo.Admit(ctx, expired.ID, expired.ExpiresAt)
	assert.ErrorIs(t, err, burndrop.ErrNotFound, "expiry is exclusive")

	_, err = repo.Admit(ctx, expired.ID, expired.ExpiresAt.Add(-time.Second))
	assert.NoError(t, err)

	tombstoned := Record("share-tomb-0001", time.Hour, nil)
	require.NoError(t, repo.Create(ctx, tombstoned))
	require.NoError(t, repo.Delete(ctx, tombstoned.ID, Base))

	_, err = repo.Admit(ctx, tombstoned.ID, Base)
	assert.ErrorIs(t, err, burndrop.ErrNotFound)
}

func testAdmitConcurrent(t *testing.T, repo burndrop.ShareRepo) {
	ctx := context.Background()
	const (
		limit    = 5
		attempts = 60
	)

	rec := Record("share-race-0001", time.Hour, Limit(limit))
	require.NoError(t, repo.Create(ctx, rec))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted []int
		refused int
		other   []error
	)
	start := make(chan struct{})

	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			n, err := repo.Admit(ctx, rec.ID, Base.Add(time.Minute))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				granted = append(granted, n)
			case isRefusal(err):
				refused++
			default:
				other = append(other, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, other)
	assert.Len(t, granted, limit)
	assert.Equal(t, attempts-limit, refused)

	sort.Ints(granted)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, granted, "every grant sees a distinct count")

	got, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, limit, got.CurrentDownloads)
}

func isRefusal(err error) bool {
	return errors.Is(err, burndrop.ErrQuotaExceeded) || errors.Is(err, burndrop.ErrNotFound)
}

func testDelete(t *testing.T, repo burndrop.ShareRepo) {
	ctx := context.Background()

	rec := Record("share-delete-01", time.Hour, nil)
	require.NoError(t, repo.Create(ctx, rec))
	require.NoError(t, repo.Delete(ctx, rec.ID, Base))

	_, err := repo.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, burndrop.ErrNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, rec.ID, Base), burndrop.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "never-existed", Base), burndrop.ErrNotFound)
}

func testListExpiredOrExhausted(t *testing.T, repo burndrop.ShareRepo) {
	ctx := context.Background()
	now := Base.Add(2 * time.Hour)

	fixtures := []burndrop.ShareRecord{
		Record("share-live-0001", 24*time.Hour, nil),
		Record("share-live-0002", 24*time.Hour, Limit(2)),
		Record("share-exp-00001", time.Hour, nil),
		Record("share-exp-00002", 2*time.Hour, nil),
		Record("share-full-0001", 24*time.Hour, Limit(1)),
		Record("share-tomb-0001", time.Hour, nil),
	}
	for i := range fixtures {
		fixtures[i].CreatedAt = Base.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Create(ctx, fixtures[i]))
	}
	_, err := repo.Admit(ctx, "share-full-0001", Base.Add(time.Minute))
	require.NoError(t, err)
	_, err = repo.Admit(ctx, "share-live-0002", Base.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, "share-tomb-0001", Base))

	var ids []string
	cursor := ""
	for pages := 0; ; pages++ {
		require.Less(t, pages, 10, "pagination did not terminate")
		res, err := repo.ListExpiredOrExhausted(ctx, now, burndrop.ListQuery{Limit: 1, Cursor: cursor})
		require.NoError(t, err)
		for _, rec := range res.Items {
			ids = append(ids, rec.ID)
		}
		if res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}

	assert.Equal(t, []string{"share-exp-00001", "share-exp-00002", "share-full-0001"}, ids)
}

func testCleanupLifecycle(t *testing.T, repo burndrop.ShareRepo) {
	ctx := context.Background()

	for i := range 3 {
		rec := Record(fmt.Sprintf("share-clean-%03d", i), time.Hour, nil)
		rec.CreatedAt = Base.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Create(ctx, rec))
	}
	tombstonedAt := Base.Add(time.Hour)
	cleanedAt := Base.Add(2 * time.Hour)
	require.NoError(t, repo.Delete(ctx, "share-clean-000", tombstonedAt))
	require.NoError(t, repo.Delete(ctx, "share-clean-001", tombstonedAt))

	res, err := repo.ListPendingCleanup(ctx, burndrop.ListQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "share-clean-000", res.Items[0].ID)
	assert.Equal(t, "bl/share-clean-000", res.Items[0].BlobPath)
	assert.Empty(t, res.NextCursor)

	require.NoError(t, repo.MarkCleanedUp(ctx, "share-clean-000", cleanedAt))
	assert.ErrorIs(t, repo.MarkCleanedUp(ctx, "share-clean-000", cleanedAt), burndrop.ErrNotFound, "already cleaned")
	assert.ErrorIs(t, repo.MarkCleanedUp(ctx, "share-clean-002", cleanedAt), burndrop.ErrNotFound, "not tombstoned")

	res, err = repo.ListPendingCleanup(ctx, burndrop.ListQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "share-clean-001", res.Items[0].ID)

	// cleanup stamps come from the caller, so the cutoff shares its clock
	purged, err := repo.PurgeCleanedUp(ctx, cleanedAt)
	require.NoError(t, err)
	assert.Zero(t, purged, "retention window not reached")

	purged, err = repo.PurgeCleanedUp(ctx, cleanedAt.Add(time.Second))
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	purged, err = repo.PurgeCleanedUp(ctx, cleanedAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, purged)

	require.NoError(t, repo.Create(ctx, Record("share-clean-000", time.Hour, nil)), "purged id is free again")
}

func testStats(t *testing.T, repo burndrop.ShareRepo) {
	ctx := context.Background()
	now := Base.Add(30 * time.Minute)

	st, err := repo.Stats(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, burndrop.Stats{}, st)

	yesterday := Record("share-stat-0001", 48*time.Hour, nil)
	yesterday.CreatedAt = Base.Add(-24 * time.Hour)
	yesterday.ExpiresAt = Base.Add(24 * time.Hour)
	yesterday.SizeBytes = 300

	today := Record("share-stat-0002", time.Hour, Limit(3))
	today.SizeBytes = 100

	expired := Record("share-stat-0003", 10*time.Minute, nil)
	expired.SizeBytes = 1000

	for _, rec := range []burndrop.ShareRecord{yesterday, today, expired} {
		require.NoError(t, repo.Create(ctx, rec))
	}
	_, err = repo.Admit(ctx, today.ID, Base.Add(time.Minute))
	require.NoError(t, err)
	_, err = repo.Admit(ctx, expired.ID, Base.Add(time.Minute))
	require.NoError(t, err)

	st, err = repo.Stats(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.ActiveShares)
	assert.EqualValues(t, 2, st.TotalDownloads)
	assert.EqualValues(t, 2, st.SharesToday)
	assert.InDelta(t, 200.0, st.AvgSizeBytes, 0.001)
	assert.EqualValues(t, 1400, st.StoredBytes)
}
