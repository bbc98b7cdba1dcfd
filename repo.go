package burndrop

import (
	"context"
	"io"
	"time"
)

// ShareRepo defines the interface for share metadata persistence.
// Implementations must be safe for concurrent use, including use by
// several processes sharing one database.
//
// All methods accept a context for cancellation and timeout control.
// Transient failures (lost connections, timeouts, busy databases) are
// reported wrapped in ErrStoreUnavailable so callers can retry them.
type ShareRepo interface {
	// Create inserts a new share record.
	//
	// Returns ErrConflict if a record with the same ID already exists.
	Create(ctx context.Context, rec ShareRecord) error

	// Get retrieves a share by ID. Tombstoned shares are not returned, but
	// expired or exhausted ones are: liveness is decided by the caller.
	//
	// Returns ErrNotFound if the ID doesn't exist or has been tombstoned.
	Get(ctx context.Context, id string) (ShareRecord, error)

	// Admit atomically grants one download. In a single conditional write it
	// increments current_downloads and stamps last_accessed_at, but only if
	// the share is not tombstoned, now is before expires_at and the download
	// limit (when set) has not been reached.
	//
	// Returns:
	//   - int: the download count after this admission
	//   - error: ErrQuotaExceeded if the limit was already reached,
	//     ErrNotFound if the share is missing, tombstoned or expired
	//
	// Admit never reads the counter into application code and writes it back.
	Admit(ctx context.Context, id string, now time.Time) (int, error)

	// Delete tombstones a share by setting deleted_at to now. The blob is
	// reclaimed later through ListPendingCleanup and MarkCleanedUp.
	//
	// Returns ErrNotFound if the share doesn't exist or is already tombstoned.
	Delete(ctx context.Context, id string, now time.Time) error

	// ListExpiredOrExhausted returns a page of live (not tombstoned) shares
	// that are dead at now: expired or at their download limit.
	ListExpiredOrExhausted(ctx context.Context, now time.Time, q ListQuery) (ListResult, error)

	// ListPendingCleanup returns a page of tombstoned shares whose blob has
	// not been reclaimed yet (deleted_at IS NOT NULL AND cleaned_up_at IS NULL).
	ListPendingCleanup(ctx context.Context, q ListQuery) (ListResult, error)

	// MarkCleanedUp sets cleaned_up_at to now on a tombstoned share.
	// This should be called after the blob has been deleted. PurgeCleanedUp
	// compares against these stamps, so both take time from the same clock.
	//
	// Returns ErrNotFound if the share isn't pending cleanup.
	MarkCleanedUp(ctx context.Context, id string, now time.Time) error

	// PurgeCleanedUp permanently removes rows that were cleaned up before the
	// given time and returns how many were removed.
	PurgeCleanedUp(ctx context.Context, before time.Time) (int64, error)

	// Stats aggregates the table at now.
	Stats(ctx context.Context, now time.Time) (Stats, error)
}

// BlobStorage defines the interface for opaque byte storage keyed by path.
// Implementations can use the local filesystem, S3 or memory.
type BlobStorage interface {
	// Write stores content at path, overwriting anything already there.
	// Implementations should write atomically and clean up partial writes
	// when the context is cancelled.
	Write(ctx context.Context, path string, content io.Reader) (SaveResult, error)

	// Get opens the blob at path for reading. The caller must close it.
	//
	// Returns ErrNotFound if nothing is stored at path.
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes the blob at path.
	//
	// Returns ErrNotFound if nothing is stored at path; callers reclaiming
	// storage treat that as success.
	Delete(ctx context.Context, path string) error
}
