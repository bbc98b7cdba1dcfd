// Package postgres implements burndrop.ShareRepo on PostgreSQL using pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sagarc03/burndrop"
)

const shareColumns = `id, blob_path, original_name, size_bytes, content_type, password_hash,
	created_at, expires_at, max_downloads, current_downloads, last_accessed_at`

type Repo struct {
	pool      *pgxpool.Pool
	tableName string
}

func NewRepo(pool *pgxpool.Pool, tables burndrop.Tables) (*Repo, error) {
	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("new repo: %w", err)
	}

	return &Repo{pool: pool, tableName: pgx.Identifier{tables.Shares}.Sanitize()}, nil
}

// Ping verifies database connectivity
func (r *Repo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repo) Create(ctx context.Context, rec burndrop.ShareRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, blob_path, original_name, size_bytes, content_type, password_hash,
			created_at, expires_at, max_downloads)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.tableName)

	var passwordHash *string
	if rec.PasswordHash != "" {
		passwordHash = &rec.PasswordHash
	}

	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.BlobPath, rec.OriginalName, rec.SizeBytes, rec.ContentType, passwordHash,
		rec.CreatedAt, rec.ExpiresAt, rec.MaxDownloads,
	)
	if err != nil {
		return fmt.Errorf("create share: %w", classifyError(err))
	}

	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (burndrop.ShareRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE id = $1 AND deleted_at IS NULL
	`, shareColumns, r.tableName)

	rec, err := scanShare(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return burndrop.ShareRecord{}, fmt.Errorf("get share: %w", burndrop.ErrNotFound)
		}
		return burndrop.ShareRecord{}, fmt.Errorf("get share: %w", classifyError(err))
	}

	return rec, nil
}

// Admit relies on row locking: a concurrent UPDATE of the same row waits and
// then re-checks the WHERE clause against the committed counter.
func (r *Repo) Admit(ctx context.Context, id string, now time.Time) (int, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET current_downloads = current_downloads + 1, last_accessed_at = $2
		WHERE id = $1
			AND deleted_at IS NULL
			AND expires_at > $2
			AND (max_downloads IS NULL OR current_downloads < max_downloads)
		RETURNING current_downloads
	`, r.tableName)

	var count int
	err := r.pool.QueryRow(ctx, query, id, now).Scan(&count)
	if err == nil {
		return count, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("admit share: %w", classifyError(err))
	}

	rec, err := r.Get(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("admit share: %w", err)
	}
	if rec.State(now) == burndrop.StateQuotaExhausted {
		return 0, fmt.Errorf("admit share: %w", burndrop.ErrQuotaExceeded)
	}
	return 0, fmt.Errorf("admit share: %w", burndrop.ErrNotFound)
}

func (r *Repo) Delete(ctx context.Context, id string, now time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET deleted_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`, r.tableName)

	return r.execOne(ctx, "delete share", query, id, now.UTC())
}

func (r *Repo) MarkCleanedUp(ctx context.Context, id string, now time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET cleaned_up_at = $2
		WHERE id = $1 AND deleted_at IS NOT NULL AND cleaned_up_at IS NULL
	`, r.tableName)

	return r.execOne(ctx, "mark cleaned up", query, id, now.UTC())
}

func (r *Repo) execOne(ctx context.Context, opName, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", opName, classifyError(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", opName, burndrop.ErrNotFound)
	}

	return nil
}

func (r *Repo) PurgeCleanedUp(ctx context.Context, before time.Time) (int64, error) {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE cleaned_up_at IS NOT NULL AND cleaned_up_at < $1
	`, r.tableName)

	tag, err := r.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("purge cleaned up: %w", classifyError(err))
	}
	return tag.RowsAffected(), nil
}

func (r *Repo) ListExpiredOrExhausted(ctx context.Context, now time.Time, q burndrop.ListQuery) (burndrop.ListResult, error) {
	return r.listWithCondition(ctx, q,
		`deleted_at IS NULL AND (expires_at <= $1 OR (max_downloads IS NOT NULL AND current_downloads >= max_downloads))`,
		[]any{now}, "list expired or exhausted")
}

func (r *Repo) ListPendingCleanup(ctx context.Context, q burndrop.ListQuery) (burndrop.ListResult, error) {
	return r.listWithCondition(ctx, q, "deleted_at IS NOT NULL AND cleaned_up_at IS NULL", nil, "list pending cleanup")
}

func (r *Repo) listWithCondition(ctx context.Context, q burndrop.ListQuery, whereCondition string, whereArgs []any, opName string) (burndrop.ListResult, error) {
	cursor, err := burndrop.DecodeCursor(q.Cursor)
	if err != nil {
		return burndrop.ListResult{}, fmt.Errorf("%s: %w", opName, err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	args := append([]any{}, whereArgs...)
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s`, shareColumns, r.tableName, whereCondition)
	if !cursor.IsZero() {
		query += fmt.Sprintf(` AND (created_at, id) > ($%d, $%d)`, len(args)+1, len(args)+2)
		args = append(args, cursor.CreatedAt, cursor.ID)
	}
	query += fmt.Sprintf(` ORDER BY created_at, id LIMIT $%d`, len(args)+1)
	args = append(args, limit+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return burndrop.ListResult{}, fmt.Errorf("%s: %w", opName, classifyError(err))
	}
	defer rows.Close()

	items := make([]burndrop.ShareRecord, 0, limit+1)
	for rows.Next() {
		rec, scanErr := scanShare(rows)
		if scanErr != nil {
			return burndrop.ListResult{}, fmt.Errorf("%s: scan: %w", opName, scanErr)
		}
		items = append(items, rec)
	}

	if err := rows.Err(); err != nil {
		return burndrop.ListResult{}, fmt.Errorf("%s: rows: %w", opName, classifyError(err))
	}

	var nextCursor string
	if len(items) > limit {
		// Cursor points to the last item of the current page
		lastItem := items[limit-1]
		nextCursor = burndrop.EncodeCursor(lastItem.CreatedAt, lastItem.ID)
		items = items[:limit]
	}

	return burndrop.ListResult{Items: items, NextCursor: nextCursor}, nil
}

func (r *Repo) Stats(ctx context.Context, now time.Time) (burndrop.Stats, error) {
	query := fmt.Sprintf(`
		SELECT
			COUNT(*) FILTER (WHERE deleted_at IS NULL AND expires_at > $1
				AND (max_downloads IS NULL OR current_downloads < max_downloads)),
			COALESCE(SUM(current_downloads), 0)::bigint,
			COUNT(*) FILTER (WHERE created_at >= $2),
			COALESCE(AVG(size_bytes) FILTER (WHERE deleted_at IS NULL AND expires_at > $1
				AND (max_downloads IS NULL OR current_downloads < max_downloads)), 0)::float8,
			COALESCE(SUM(size_bytes) FILTER (WHERE cleaned_up_at IS NULL), 0)::bigint
		FROM %s
	`, r.tableName)

	dayStart := now.UTC().Truncate(24 * time.Hour)

	var st burndrop.Stats
	err := r.pool.QueryRow(ctx, query, now, dayStart).Scan(
		&st.ActiveShares, &st.TotalDownloads, &st.SharesToday, &st.AvgSizeBytes, &st.StoredBytes,
	)
	if err != nil {
		return burndrop.Stats{}, fmt.Errorf("stats: %w", classifyError(err))
	}

	return st, nil
}

func scanShare(row pgx.Row) (burndrop.ShareRecord, error) {
	var (
		rec            burndrop.ShareRecord
		passwordHash   *string
		maxDownloads   *int
		lastAccessedAt *time.Time
	)

	err := row.Scan(
		&rec.ID, &rec.BlobPath, &rec.OriginalName, &rec.SizeBytes, &rec.ContentType, &passwordHash,
		&rec.CreatedAt, &rec.ExpiresAt, &maxDownloads, &rec.CurrentDownloads, &lastAccessedAt,
	)
	if err != nil {
		return burndrop.ShareRecord{}, err
	}

	if passwordHash != nil {
		rec.PasswordHash = *passwordHash
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.ExpiresAt = rec.ExpiresAt.UTC()
	rec.MaxDownloads = maxDownloads
	if lastAccessedAt != nil {
		t := lastAccessedAt.UTC()
		rec.LastAccessedAt = &t
	}

	return rec, nil
}
