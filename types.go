package burndrop

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"
)

// ShareRecord is the persisted metadata of one uploaded file.
type ShareRecord struct {
	ID               string     `json:"id"`
	BlobPath         string     `json:"-"`
	OriginalName     string     `json:"original_name"`
	SizeBytes        int64      `json:"size_bytes"`
	ContentType      string     `json:"content_type"`
	PasswordHash     string     `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
	MaxDownloads     *int       `json:"max_downloads,omitempty"`
	CurrentDownloads int        `json:"current_downloads"`
	LastAccessedAt   *time.Time `json:"last_accessed_at,omitempty"`
}

// HasPassword reports whether the share is password protected.
func (r ShareRecord) HasPassword() bool {
	return r.PasswordHash != ""
}

// State derives the liveness of the record at now.
func (r ShareRecord) State(now time.Time) State {
	if !now.Before(r.ExpiresAt) {
		return StateExpired
	}
	if r.MaxDownloads != nil && r.CurrentDownloads >= *r.MaxDownloads {
		return StateQuotaExhausted
	}
	return StateActive
}

// RemainingDownloads returns how many admissions are left. ok is false for unlimited shares.
func (r ShareRecord) RemainingDownloads() (remaining int, ok bool) {
	if r.MaxDownloads == nil {
		return 0, false
	}
	return max(*r.MaxDownloads-r.CurrentDownloads, 0), true
}

// Info returns the caller-facing view of the record.
func (r ShareRecord) Info() ShareInfo {
	return ShareInfo{
		ID:               r.ID,
		Name:             r.OriginalName,
		SizeBytes:        r.SizeBytes,
		ContentType:      r.ContentType,
		CreatedAt:        r.CreatedAt,
		ExpiresAt:        r.ExpiresAt,
		HasPassword:      r.HasPassword(),
		MaxDownloads:     r.MaxDownloads,
		CurrentDownloads: r.CurrentDownloads,
	}
}

// State is the liveness of a share record.
type State int

const (
	StateActive State = iota
	StateExpired
	StateQuotaExhausted
	StateAbsent
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	case StateQuotaExhausted:
		return "quota_exhausted"
	default:
		return "absent"
	}
}

// ShareInfo is what callers get to see about a share. It never carries the password hash.
type ShareInfo struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	SizeBytes        int64     `json:"size_bytes"`
	ContentType      string    `json:"content_type"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	HasPassword      bool      `json:"has_password"`
	MaxDownloads     *int      `json:"max_downloads,omitempty"`
	CurrentDownloads int       `json:"current_downloads"`
}

type UploadRequest struct {
	Name         string
	ContentType  string
	TTL          time.Duration
	Password     string
	MaxDownloads *int
}

type UploadResult struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	SizeBytes    int64     `json:"size_bytes"`
	ContentType  string    `json:"content_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	HasPassword  bool      `json:"has_password"`
	MaxDownloads *int      `json:"max_downloads,omitempty"`
}

// ResolveResult is a granted download. The caller must close Content.
type ResolveResult struct {
	Share   ShareInfo
	Content io.ReadCloser
}

// Remaining returns the downloads left after this admission, ok is false for unlimited shares.
func (r ResolveResult) Remaining() (int, bool) {
	if r.Share.MaxDownloads == nil {
		return 0, false
	}
	return max(*r.Share.MaxDownloads-r.Share.CurrentDownloads, 0), true
}

// Stats summarises the share table.
type Stats struct {
	ActiveShares   int64   `json:"active_shares"`
	TotalDownloads int64   `json:"total_downloads"`
	SharesToday    int64   `json:"shares_today"`
	AvgSizeBytes   float64 `json:"avg_size_bytes"`
	StoredBytes    int64   `json:"stored_bytes"`
}

type ListQuery struct {
	Limit  int
	Cursor string
}

type ListResult struct {
	Items      []ShareRecord `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type SaveResult struct {
	BytesWritten int64
}

// Tables holds configurable table names for share storage.
// This allows several deployments to share one database.
type Tables struct {
	Shares string `mapstructure:"shares"`
}

var validTableNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// IsValidTableName checks if a table name is valid (lowercase, alphanumeric with underscores, max 63 chars).
func IsValidTableName(name string) bool {
	return validTableNameRegex.MatchString(name) && len(name) <= 63
}

// Validate checks that all required table names are set and valid.
func (t Tables) Validate() error {
	if t.Shares == "" {
		return errors.New("validate tables: shares table name cannot be empty")
	}

	if !IsValidTableName(t.Shares) {
		return fmt.Errorf("validate tables: invalid shares table name: %s (must match ^[a-z_][a-z0-9_]*$ and be <= 63 chars)", t.Shares)
	}

	return nil
}
