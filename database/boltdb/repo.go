// Package boltdb stores share metadata in a single bbolt file.
//
// Records are kept as JSON documents keyed by share id. Every mutation runs
// inside one read-write transaction, and bbolt allows a single writer at a
// time, so Admit is linearizable for all goroutines sharing the handle.
package boltdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sagarc03/burndrop"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketShares    = []byte("shares")
	bucketBlobPaths = []byte("blob_paths")
)

// Config configures the bbolt-backed repo.
type Config struct {
	Path    string
	NoSync  bool
	Timeout time.Duration
}

// storedShare is the on-disk document. It carries the fields ShareRecord
// keeps out of its JSON form.
type storedShare struct {
	ID               string     `json:"id"`
	BlobPath         string     `json:"blob_path"`
	OriginalName     string     `json:"original_name"`
	SizeBytes        int64      `json:"size_bytes"`
	ContentType      string     `json:"content_type"`
	PasswordHash     string     `json:"password_hash,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
	MaxDownloads     *int       `json:"max_downloads,omitempty"`
	CurrentDownloads int        `json:"current_downloads"`
	LastAccessedAt   *time.Time `json:"last_accessed_at,omitempty"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`
	CleanedUpAt      *time.Time `json:"cleaned_up_at,omitempty"`
}

func fromRecord(rec burndrop.ShareRecord) storedShare {
	return storedShare{
		ID:               rec.ID,
		BlobPath:         rec.BlobPath,
		OriginalName:     rec.OriginalName,
		SizeBytes:        rec.SizeBytes,
		ContentType:      rec.ContentType,
		PasswordHash:     rec.PasswordHash,
		CreatedAt:        rec.CreatedAt.UTC(),
		ExpiresAt:        rec.ExpiresAt.UTC(),
		MaxDownloads:     rec.MaxDownloads,
		CurrentDownloads: rec.CurrentDownloads,
		LastAccessedAt:   rec.LastAccessedAt,
	}
}

func (s storedShare) record() burndrop.ShareRecord {
	return burndrop.ShareRecord{
		ID:               s.ID,
		BlobPath:         s.BlobPath,
		OriginalName:     s.OriginalName,
		SizeBytes:        s.SizeBytes,
		ContentType:      s.ContentType,
		PasswordHash:     s.PasswordHash,
		CreatedAt:        s.CreatedAt,
		ExpiresAt:        s.ExpiresAt,
		MaxDownloads:     s.MaxDownloads,
		CurrentDownloads: s.CurrentDownloads,
		LastAccessedAt:   s.LastAccessedAt,
	}
}

// Repo persists share records in bbolt.
type Repo struct {
	db *bolt.DB
}

// Open opens (or creates) the database file and its buckets.
func Open(cfg Config) (*Repo, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("boltdb: path is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}

	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{
		Timeout: cfg.Timeout,
		NoSync:  cfg.NoSync,
	})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, fmt.Errorf("boltdb: open: %w: %w", burndrop.ErrStoreUnavailable, err)
		}
		return nil, fmt.Errorf("boltdb: open: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketShares, bucketBlobPaths} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("boltdb: create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repo{db: db}, nil
}

// Close releases the file lock.
func (r *Repo) Close() error {
	return r.db.Close()
}

func getShare(tx *bolt.Tx, id string) (storedShare, bool, error) {
	data := tx.Bucket(bucketShares).Get([]byte(id))
	if data == nil {
		return storedShare{}, false, nil
	}
	var s storedShare
	if err := json.Unmarshal(data, &s); err != nil {
		return storedShare{}, false, fmt.Errorf("decode share %s: %w", id, err)
	}
	return s, true, nil
}

func putShare(tx *bolt.Tx, s storedShare) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode share %s: %w", s.ID, err)
	}
	return tx.Bucket(bucketShares).Put([]byte(s.ID), data)
}

func (r *Repo) Create(ctx context.Context, rec burndrop.ShareRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := r.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketShares).Get([]byte(rec.ID)) != nil {
			return burndrop.ErrConflict
		}
		paths := tx.Bucket(bucketBlobPaths)
		if paths.Get([]byte(rec.BlobPath)) != nil {
			return fmt.Errorf("blob path %s already in use", rec.BlobPath)
		}
		if err := paths.Put([]byte(rec.BlobPath), []byte(rec.ID)); err != nil {
			return err
		}
		return putShare(tx, fromRecord(rec))
	})
	if err != nil {
		return fmt.Errorf("create share: %w", err)
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (burndrop.ShareRecord, error) {
	if err := ctx.Err(); err != nil {
		return burndrop.ShareRecord{}, err
	}

	var rec burndrop.ShareRecord
	err := r.db.View(func(tx *bolt.Tx) error {
		s, ok, err := getShare(tx, id)
		if err != nil {
			return err
		}
		if !ok || s.DeletedAt != nil {
			return burndrop.ErrNotFound
		}
		rec = s.record()
		return nil
	})
	if err != nil {
		return burndrop.ShareRecord{}, fmt.Errorf("get share: %w", err)
	}
	return rec, nil
}

func (r *Repo) Admit(ctx context.Context, id string, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var count int
	err := r.db.Update(func(tx *bolt.Tx) error {
		s, ok, err := getShare(tx, id)
		if err != nil {
			return err
		}
		if !ok || s.DeletedAt != nil || !now.Before(s.ExpiresAt) {
			return burndrop.ErrNotFound
		}
		if s.MaxDownloads != nil && s.CurrentDownloads >= *s.MaxDownloads {
			return burndrop.ErrQuotaExceeded
		}

		s.CurrentDownloads++
		accessed := now.UTC()
		s.LastAccessedAt = &accessed
		count = s.CurrentDownloads
		return putShare(tx, s)
	})
	if err != nil {
		return 0, fmt.Errorf("admit share: %w", err)
	}
	return count, nil
}

func (r *Repo) Delete(ctx context.Context, id string, now time.Time) error {
	now = now.UTC()
	return r.transition(ctx, "delete share", id, func(s *storedShare) bool {
		if s.DeletedAt != nil {
			return false
		}
		s.DeletedAt = &now
		return true
	})
}

func (r *Repo) MarkCleanedUp(ctx context.Context, id string, now time.Time) error {
	now = now.UTC()
	return r.transition(ctx, "mark cleaned up", id, func(s *storedShare) bool {
		if s.DeletedAt == nil || s.CleanedUpAt != nil {
			return false
		}
		s.CleanedUpAt = &now
		return true
	})
}

// transition applies fn to the stored share; fn returning false means the
// share is not in a state the operation applies to.
func (r *Repo) transition(ctx context.Context, opName, id string, fn func(*storedShare) bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := r.db.Update(func(tx *bolt.Tx) error {
		s, ok, err := getShare(tx, id)
		if err != nil {
			return err
		}
		if !ok || !fn(&s) {
			return burndrop.ErrNotFound
		}
		return putShare(tx, s)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", opName, err)
	}
	return nil
}

func (r *Repo) PurgeCleanedUp(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var purged int64
	err := r.db.Update(func(tx *bolt.Tx) error {
		var victims []storedShare
		err := r.forEach(tx, func(s storedShare) {
			if s.CleanedUpAt != nil && s.CleanedUpAt.Before(before) {
				victims = append(victims, s)
			}
		})
		if err != nil {
			return err
		}

		shares := tx.Bucket(bucketShares)
		paths := tx.Bucket(bucketBlobPaths)
		for _, s := range victims {
			if err := shares.Delete([]byte(s.ID)); err != nil {
				return err
			}
			if err := paths.Delete([]byte(s.BlobPath)); err != nil {
				return err
			}
			purged++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("purge cleaned up: %w", err)
	}
	return purged, nil
}

func (r *Repo) forEach(tx *bolt.Tx, fn func(storedShare)) error {
	return tx.Bucket(bucketShares).ForEach(func(k, v []byte) error {
		var s storedShare
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("decode share %s: %w", k, err)
		}
		fn(s)
		return nil
	})
}

func (r *Repo) ListExpiredOrExhausted(ctx context.Context, now time.Time, q burndrop.ListQuery) (burndrop.ListResult, error) {
	return r.list(ctx, "list expired or exhausted", q, func(s storedShare) bool {
		return s.DeletedAt == nil && s.record().State(now) != burndrop.StateActive
	})
}

func (r *Repo) ListPendingCleanup(ctx context.Context, q burndrop.ListQuery) (burndrop.ListResult, error) {
	return r.list(ctx, "list pending cleanup", q, func(s storedShare) bool {
		return s.DeletedAt != nil && s.CleanedUpAt == nil
	})
}

func (r *Repo) list(ctx context.Context, opName string, q burndrop.ListQuery, match func(storedShare) bool) (burndrop.ListResult, error) {
	if err := ctx.Err(); err != nil {
		return burndrop.ListResult{}, err
	}

	cursor, err := burndrop.DecodeCursor(q.Cursor)
	if err != nil {
		return burndrop.ListResult{}, fmt.Errorf("%s: %w", opName, err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	var items []burndrop.ShareRecord
	err = r.db.View(func(tx *bolt.Tx) error {
		return r.forEach(tx, func(s storedShare) {
			if match(s) && cursor.After(s.CreatedAt, s.ID) {
				items = append(items, s.record())
			}
		})
	})
	if err != nil {
		return burndrop.ListResult{}, fmt.Errorf("%s: %w", opName, err)
	}

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

func (r *Repo) Stats(ctx context.Context, now time.Time) (burndrop.Stats, error) {
	if err := ctx.Err(); err != nil {
		return burndrop.Stats{}, err
	}

	dayStart := now.UTC().Truncate(24 * time.Hour)
	var (
		st          burndrop.Stats
		activeBytes int64
	)
	err := r.db.View(func(tx *bolt.Tx) error {
		return r.forEach(tx, func(s storedShare) {
			st.TotalDownloads += int64(s.CurrentDownloads)
			if !s.CreatedAt.Before(dayStart) {
				st.SharesToday++
			}
			if s.CleanedUpAt == nil {
				st.StoredBytes += s.SizeBytes
			}
			if s.DeletedAt == nil && s.record().State(now) == burndrop.StateActive {
				st.ActiveShares++
				activeBytes += s.SizeBytes
			}
		})
	})
	if err != nil {
		return burndrop.Stats{}, fmt.Errorf("stats: %w", err)
	}

	if st.ActiveShares > 0 {
		st.AvgSizeBytes = float64(activeBytes) / float64(st.ActiveShares)
	}
	return st, nil
}
