package burndrop_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sagarc03/burndrop"
	"github.com/sagarc03/burndrop/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type sweepFixture struct {
	repo  *memory.Repo
	blobs *memory.BlobStore
	base  time.Time
}

func newSweepFixture(t *testing.T, base time.Time) *sweepFixture {
	t.Helper()
	return &sweepFixture{repo: memory.NewRepo(), blobs: memory.NewBlobStore(), base: base}
}

func (f *sweepFixture) add(t *testing.T, id string, ttl time.Duration, maxDownloads *int) burndrop.ShareRecord {
	t.Helper()
	ctx := context.Background()

	rec := burndrop.ShareRecord{
		ID:           id,
		BlobPath:     "sw/" + id,
		OriginalName: id + ".txt",
		SizeBytes:    5,
		ContentType:  "text/plain",
		CreatedAt:    f.base,
		ExpiresAt:    f.base.Add(ttl),
		MaxDownloads: maxDownloads,
	}
	_, err := f.blobs.Write(ctx, rec.BlobPath, strings.NewReader("hello"))
	require.NoError(t, err)
	require.NoError(t, f.repo.Create(ctx, rec))
	return rec
}

func TestSweeper_RunOnce(t *testing.T) {
	ctx := context.Background()
	f := newSweepFixture(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))

	expired := f.add(t, "share-expired1", time.Hour, nil)
	exhausted := f.add(t, "share-exhaust1", 24*time.Hour, limit(1))
	live := f.add(t, "share-live0001", 24*time.Hour, nil)

	_, err := f.repo.Admit(ctx, exhausted.ID, f.base.Add(time.Minute))
	require.NoError(t, err)

	sweeper := burndrop.NewSweeper(f.repo, f.blobs, burndrop.SweeperConfig{
		BatchSize:          1,
		TombstoneRetention: -1,
		Clock:              func() time.Time { return f.base.Add(2 * time.Hour) },
	})

	result, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Tombstoned)
	assert.Equal(t, 2, result.BlobsReclaimed)
	assert.Zero(t, result.Purged)
	assert.Zero(t, result.Errors)

	for _, rec := range []burndrop.ShareRecord{expired, exhausted} {
		_, err := f.repo.Get(ctx, rec.ID)
		assert.ErrorIs(t, err, burndrop.ErrNotFound)
		_, err = f.blobs.Get(ctx, rec.BlobPath)
		assert.ErrorIs(t, err, burndrop.ErrNotFound)
	}

	_, err = f.repo.Get(ctx, live.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, f.blobs.Len())

	t.Run("second pass is a no-op", func(t *testing.T) {
		again, err := sweeper.RunOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, again.Tombstoned)
		assert.Zero(t, again.BlobsReclaimed)
		assert.Zero(t, again.Errors)
		assert.Equal(t, 1, f.blobs.Len())
	})
}

func TestSweeper_PurgesAfterRetention(t *testing.T) {
	ctx := context.Background()
	// far from the wall clock: retention is measured on the sweeper clock
	f := newSweepFixture(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	f.add(t, "share-purge001", time.Hour, nil)

	now := f.base.Add(2 * time.Hour)
	sweeper := burndrop.NewSweeper(f.repo, f.blobs, burndrop.SweeperConfig{
		TombstoneRetention: time.Minute,
		Clock:              func() time.Time { return now },
	})

	result, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Tombstoned)
	assert.Equal(t, 1, result.BlobsReclaimed)
	assert.Zero(t, result.Purged, "retention not reached yet")

	now = now.Add(30 * time.Second)
	result, err = sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Purged)

	now = now.Add(time.Minute)
	result, err = sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Purged)

	st, err := f.repo.Stats(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, st.StoredBytes)
	assert.Zero(t, st.TotalDownloads)
}

func TestSweeper_BlobFailureIsRetriedNextPass(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := memory.NewRepo()
	storage := new(SpyBlobStorage)

	rec := burndrop.ShareRecord{
		ID:           "share-flaky001",
		BlobPath:     "fl/share-flaky001",
		OriginalName: "a.txt",
		SizeBytes:    5,
		ContentType:  "text/plain",
		CreatedAt:    base,
		ExpiresAt:    base.Add(time.Hour),
	}
	require.NoError(t, repo.Create(ctx, rec))

	storage.On("Delete", mock.Anything, rec.BlobPath).Return(errors.New("connection reset")).Once()
	storage.On("Delete", mock.Anything, rec.BlobPath).Return(nil)

	sweeper := burndrop.NewSweeper(repo, storage, burndrop.SweeperConfig{
		TombstoneRetention: -1,
		Clock:              func() time.Time { return base.Add(2 * time.Hour) },
	})

	first, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Tombstoned)
	assert.Zero(t, first.BlobsReclaimed)
	assert.Equal(t, 1, first.Errors)

	pending, err := repo.ListPendingCleanup(ctx, burndrop.ListQuery{})
	require.NoError(t, err)
	assert.Len(t, pending.Items, 1)

	second, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, second.BlobsReclaimed)
	assert.Zero(t, second.Errors)

	pending, err = repo.ListPendingCleanup(ctx, burndrop.ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, pending.Items)
	storage.AssertNumberOfCalls(t, "Delete", 2)
}

func TestSweeper_MissingBlobCountsAsReclaimed(t *testing.T) {
	ctx := context.Background()
	f := newSweepFixture(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))

	rec := f.add(t, "share-noblob01", time.Hour, nil)
	require.NoError(t, f.blobs.Delete(ctx, rec.BlobPath))

	sweeper := burndrop.NewSweeper(f.repo, f.blobs, burndrop.SweeperConfig{
		TombstoneRetention: -1,
		Clock:              func() time.Time { return f.base.Add(2 * time.Hour) },
	})

	result, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.BlobsReclaimed)
	assert.Zero(t, result.Errors)
}

func TestSweeper_ListFailureAbortsPass(t *testing.T) {
	repo := new(SpyShareRepo)
	storage := new(SpyBlobStorage)

	repo.On("ListExpiredOrExhausted", mock.Anything, mock.Anything, mock.Anything).
		Return(burndrop.ListResult{}, fmt.Errorf("list: %w", burndrop.ErrStoreUnavailable))

	sweeper := burndrop.NewSweeper(repo, storage, burndrop.SweeperConfig{})

	_, err := sweeper.RunOnce(context.Background())
	assert.ErrorIs(t, err, burndrop.ErrStoreUnavailable)
	repo.AssertNotCalled(t, "ListPendingCleanup", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "PurgeCleanedUp", mock.Anything, mock.Anything)
}

func TestSweeper_Start(t *testing.T) {
	f := newSweepFixture(t, time.Now().UTC().Add(-2*time.Hour))
	f.add(t, "share-bgsweep1", time.Hour, nil)

	sweeper := burndrop.NewSweeper(f.repo, f.blobs, burndrop.SweeperConfig{
		Interval:           10 * time.Millisecond,
		TombstoneRetention: -1,
	})

	stop := sweeper.Start(context.Background())
	defer stop()

	assert.Eventually(t, func() bool {
		return f.blobs.Len() == 0
	}, time.Second, 5*time.Millisecond)
}
