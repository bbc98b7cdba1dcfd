package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sagarc03/burndrop"
)

type entry struct {
	rec         burndrop.ShareRecord
	deletedAt   *time.Time
	cleanedUpAt *time.Time
}

// Repo is a mutex-guarded map of share records. Admit holds the lock for
// the whole check-and-increment, which is atomic within one process only.
type Repo struct {
	mu     sync.Mutex
	shares map[string]*entry
}

func NewRepo() *Repo {
	return &Repo{
		shares: make(map[string]*entry),
	}
}

func (r *Repo) Create(ctx context.Context, rec burndrop.ShareRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.shares[rec.ID]; ok {
		return fmt.Errorf("create share: %w", burndrop.ErrConflict)
	}
	for _, e := range r.shares {
		if e.rec.BlobPath == rec.BlobPath {
			return fmt.Errorf("create share: blob path %s already in use", rec.BlobPath)
		}
	}
	r.shares[rec.ID] = &entry{rec: clone(rec)}
	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (burndrop.ShareRecord, error) {
	if err := ctx.Err(); err != nil {
		return burndrop.ShareRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.shares[id]
	if !ok || e.deletedAt != nil {
		return burndrop.ShareRecord{}, fmt.Errorf("get share: %w", burndrop.ErrNotFound)
	}
	return clone(e.rec), nil
}

func (r *Repo) Admit(ctx context.Context, id string, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.shares[id]
	if !ok || e.deletedAt != nil || !now.Before(e.rec.ExpiresAt) {
		return 0, fmt.Errorf("admit share: %w", burndrop.ErrNotFound)
	}
	if e.rec.MaxDownloads != nil && e.rec.CurrentDownloads >= *e.rec.MaxDownloads {
		return 0, fmt.Errorf("admit share: %w", burndrop.ErrQuotaExceeded)
	}

	e.rec.CurrentDownloads++
	accessed := now
	e.rec.LastAccessedAt = &accessed
	return e.rec.CurrentDownloads, nil
}

func (r *Repo) Delete(ctx context.Context, id string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.shares[id]
	if !ok || e.deletedAt != nil {
		return fmt.Errorf("delete share: %w", burndrop.ErrNotFound)
	}
	now = now.UTC()
	e.deletedAt = &now
	return nil
}

func (r *Repo) ListExpiredOrExhausted(ctx context.Context, now time.Time, q burndrop.ListQuery) (burndrop.ListResult, error) {
	return r.list(ctx, q, func(e *entry) bool {
		return e.deletedAt == nil && e.rec.State(now) != burndrop.StateActive
	})
}

func (r *Repo) ListPendingCleanup(ctx context.Context, q burndrop.ListQuery) (burndrop.ListResult, error) {
	return r.list(ctx, q, func(e *entry) bool {
		return e.deletedAt != nil && e.cleanedUpAt == nil
	})
}

func (r *Repo) list(ctx context.Context, q burndrop.ListQuery, match func(*entry) bool) (burndrop.ListResult, error) {
	if err := ctx.Err(); err != nil {
		return burndrop.ListResult{}, err
	}

	cursor, err := burndrop.DecodeCursor(q.Cursor)
	if err != nil {
		return burndrop.ListResult{}, fmt.Errorf("list shares: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	r.mu.Lock()
	var items []burndrop.ShareRecord
	for _, e := range r.shares {
		if match(e) && cursor.After(e.rec.CreatedAt, e.rec.ID) {
			items = append(items, clone(e.rec))
		}
	}
	r.mu.Unlock()

	slices.SortFunc(items, func(a, b burndrop.ShareRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	result := burndrop.ListResult{Items: []burndrop.ShareRecord{}}
	if len(items) > limit {
		items = items[:limit]
		last := items[limit-1]
		result.NextCursor = burndrop.EncodeCursor(last.CreatedAt, last.ID)
	}
	result.Items = append(result.Items, items...)
	return result, nil
}

func (r *Repo) MarkCleanedUp(ctx context.Context, id string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.shares[id]
	if !ok || e.deletedAt == nil || e.cleanedUpAt != nil {
		return fmt.Errorf("mark cleaned up: %w", burndrop.ErrNotFound)
	}
	now = now.UTC()
	e.cleanedUpAt = &now
	return nil
}

func (r *Repo) PurgeCleanedUp(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var purged int64
	for id, e := range r.shares {
		if e.cleanedUpAt != nil && e.cleanedUpAt.Before(before) {
			delete(r.shares, id)
			purged++
		}
	}
	return purged, nil
}

func (r *Repo) Stats(ctx context.Context, now time.Time) (burndrop.Stats, error) {
	if err := ctx.Err(); err != nil {
		return burndrop.Stats{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dayStart := now.UTC().Truncate(24 * time.Hour)
	var (
		st          burndrop.Stats
		activeBytes int64
	)
	for _, e := range r.shares {
		st.TotalDownloads += int64(e.rec.CurrentDownloads)
		if !e.rec.CreatedAt.Before(dayStart) {
			st.SharesToday++
		}
		if e.cleanedUpAt == nil {
			st.StoredBytes += e.rec.SizeBytes
		}
		if e.deletedAt == nil && e.rec.State(now) == burndrop.StateActive {
			st.ActiveShares++
			activeBytes += e.rec.SizeBytes
		}
	}
	if st.ActiveShares > 0 {
		st.AvgSizeBytes = float64(activeBytes) / float64(st.ActiveShares)
	}
	return st, nil
}

func clone(rec burndrop.ShareRecord) burndrop.ShareRecord {
	if rec.MaxDownloads != nil {
		v := *rec.MaxDownloads
		rec.MaxDownloads = &v
	}
	if rec.LastAccessedAt != nil {
		v := *rec.LastAccessedAt
		rec.LastAccessedAt = &v
	}
	return rec
}
