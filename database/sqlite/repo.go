// Package sqlite implements burndrop.ShareRepo on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sagarc03/burndrop"
)

// timeLayout is fixed width so TEXT comparison matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

const shareColumns = `id, blob_path, original_name, size_bytes, content_type, password_hash,
	created_at, expires_at, max_downloads, current_downloads, last_accessed_at`

// liveCondition matches shares that may still be downloaded at the bound time.
const liveCondition = `deleted_at IS NULL AND expires_at > ? AND (max_downloads IS NULL OR current_downloads < max_downloads)`

type Repo struct {
	db        *sql.DB
	tableName string
}

func NewRepo(db *sql.DB, tables burndrop.Tables) (*Repo, error) {
	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("new repo: %w", err)
	}
	return &Repo{db: db, tableName: quoteIdentifier(tables.Shares)}, nil
}

func (r *Repo) Create(ctx context.Context, rec burndrop.ShareRecord) error {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`INSERT INTO %s (id, blob_path, original_name, size_bytes, content_type, password_hash,
			created_at, expires_at, max_downloads, current_downloads)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`, r.tableName)

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.BlobPath, rec.OriginalName, rec.SizeBytes, rec.ContentType, nullString(rec.PasswordHash),
		formatTime(rec.CreatedAt), formatTime(rec.ExpiresAt), nullInt(rec.MaxDownloads),
	)
	if err != nil {
		return fmt.Errorf("create share: %w", classifyError(err))
	}

	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (burndrop.ShareRecord, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT %s FROM %s WHERE id = ? AND deleted_at IS NULL`, shareColumns, r.tableName)

	rec, err := scanShare(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return burndrop.ShareRecord{}, fmt.Errorf("get share: %w", burndrop.ErrNotFound)
		}
		return burndrop.ShareRecord{}, fmt.Errorf("get share: %w", classifyError(err))
	}

	return rec, nil
}

func (r *Repo) Admit(ctx context.Context, id string, now time.Time) (int, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`UPDATE %s
		SET current_downloads = current_downloads + 1, last_accessed_at = ?
		WHERE id = ? AND `+liveCondition+`
		RETURNING current_downloads`, r.tableName)

	ts := formatTime(now)
	var count int
	err := r.db.QueryRowContext(ctx, query, ts, id, ts).Scan(&count)
	if err == nil {
		return count, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("admit share: %w", classifyError(err))
	}

	return 0, r.refusal(ctx, id, now)
}

// refusal explains why Admit matched no row.
func (r *Repo) refusal(ctx context.Context, id string, now time.Time) error {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT %s FROM %s WHERE id = ? AND deleted_at IS NULL`, shareColumns, r.tableName)

	rec, err := scanShare(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("admit share: %w", burndrop.ErrNotFound)
		}
		return fmt.Errorf("admit share: %w", classifyError(err))
	}

	if rec.State(now) == burndrop.StateQuotaExhausted {
		return fmt.Errorf("admit share: %w", burndrop.ErrQuotaExceeded)
	}
	return fmt.Errorf("admit share: %w", burndrop.ErrNotFound)
}

func (r *Repo) Delete(ctx context.Context, id string, now time.Time) error {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`UPDATE %s SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, r.tableName)

	return r.execOne(ctx, "delete share", query, formatTime(now), id)
}

func (r *Repo) MarkCleanedUp(ctx context.Context, id string, now time.Time) error {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`UPDATE %s
		SET cleaned_up_at = ?
		WHERE id = ? AND deleted_at IS NOT NULL AND cleaned_up_at IS NULL`, r.tableName)

	return r.execOne(ctx, "mark cleaned up", query, formatTime(now), id)
}

func (r *Repo) execOne(ctx context.Context, opName, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", opName, classifyError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", opName, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", opName, burndrop.ErrNotFound)
	}

	return nil
}

func (r *Repo) PurgeCleanedUp(ctx context.Context, before time.Time) (int64, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`DELETE FROM %s WHERE cleaned_up_at IS NOT NULL AND cleaned_up_at < ?`, r.tableName)

	result, err := r.db.ExecContext(ctx, query, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("purge cleaned up: %w", classifyError(err))
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge cleaned up: rows affected: %w", err)
	}
	return n, nil
}

func (r *Repo) ListExpiredOrExhausted(ctx context.Context, now time.Time, q burndrop.ListQuery) (burndrop.ListResult, error) {
	return r.listWithCondition(ctx, q,
		`deleted_at IS NULL AND (expires_at <= ? OR (max_downloads IS NOT NULL AND current_downloads >= max_downloads))`,
		[]any{formatTime(now)}, "list expired or exhausted")
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
		query += ` AND (created_at, id) > (?, ?)`
		args = append(args, formatTime(cursor.CreatedAt), cursor.ID)
	}
	query += ` ORDER BY created_at, id LIMIT ?`
	args = append(args, limit+1)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return burndrop.ListResult{}, fmt.Errorf("%s: %w", opName, classifyError(err))
	}
	defer func() { _ = rows.Close() }()

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
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT
			COALESCE(SUM(CASE WHEN `+liveCondition+` THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(current_downloads), 0),
			COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(CASE WHEN `+liveCondition+` THEN size_bytes END), 0.0),
			COALESCE(SUM(CASE WHEN cleaned_up_at IS NULL THEN size_bytes ELSE 0 END), 0)
		FROM %s`, r.tableName)

	ts := formatTime(now)
	dayStart := formatTime(now.UTC().Truncate(24 * time.Hour))

	var st burndrop.Stats
	err := r.db.QueryRowContext(ctx, query, ts, dayStart, ts).Scan(
		&st.ActiveShares, &st.TotalDownloads, &st.SharesToday, &st.AvgSizeBytes, &st.StoredBytes,
	)
	if err != nil {
		return burndrop.Stats{}, fmt.Errorf("stats: %w", classifyError(err))
	}

	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShare(row rowScanner) (burndrop.ShareRecord, error) {
	var (
		rec                  burndrop.ShareRecord
		passwordHash         sql.NullString
		createdAt, expiresAt string
		maxDownloads         sql.NullInt64
		lastAccessedAt       sql.NullString
	)

	err := row.Scan(
		&rec.ID, &rec.BlobPath, &rec.OriginalName, &rec.SizeBytes, &rec.ContentType, &passwordHash,
		&createdAt, &expiresAt, &maxDownloads, &rec.CurrentDownloads, &lastAccessedAt,
	)
	if err != nil {
		return burndrop.ShareRecord{}, err
	}

	rec.PasswordHash = passwordHash.String

	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return burndrop.ShareRecord{}, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return burndrop.ShareRecord{}, fmt.Errorf("parse expires_at: %w", err)
	}

	if maxDownloads.Valid {
		v := int(maxDownloads.Int64)
		rec.MaxDownloads = &v
	}

	if lastAccessedAt.Valid {
		t, err := parseTime(lastAccessedAt.String)
		if err != nil {
			return burndrop.ShareRecord{}, fmt.Errorf("parse last_accessed_at: %w", err)
		}
		rec.LastAccessedAt = &t
	}

	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
