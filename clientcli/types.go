package clientcli

import "time"

// UploadOptions configures an upload operation.
type UploadOptions struct {
	LocalPath string
	// TTL of zero leaves the lifetime to the server default.
	TTL      time.Duration
	Password string
	// MaxDownloads of zero means unlimited.
	MaxDownloads int
}

// UploadResult represents the result of uploading a single file.
type UploadResult struct {
	LocalPath    string    `json:"local_path"`
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	Name         string    `json:"name"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"size_bytes"`
	ExpiresAt    time.Time `json:"expires_at"`
	HasPassword  bool      `json:"has_password"`
	MaxDownloads *int      `json:"max_downloads,omitempty"`
	Err          error     `json:"-"` // nil on success
}

// ShareInfo is the public view of a share as returned by GET /api/shares/{id}.
type ShareInfo struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Size             int64     `json:"size_bytes"`
	ContentType      string    `json:"content_type"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	HasPassword      bool      `json:"has_password"`
	MaxDownloads     *int      `json:"max_downloads,omitempty"`
	CurrentDownloads int       `json:"current_downloads"`
}

// DownloadOptions configures a download operation.
type DownloadOptions struct {
	ID       string
	Password string
	// LocalPath is a file or directory. Empty uses the server-provided
	// name in the working directory, "-" streams to the caller.
	LocalPath string
}

// DownloadResult represents the result of downloading a share.
type DownloadResult struct {
	ID          string `json:"id"`
	LocalPath   string `json:"local_path"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size_bytes"`
	// Remaining is nil for shares without a download limit.
	Remaining *int `json:"downloads_remaining,omitempty"`
}

// Stats mirrors GET /api/stats.
type Stats struct {
	ActiveShares   int64   `json:"active_shares"`
	TotalDownloads int64   `json:"total_downloads"`
	SharesToday    int64   `json:"shares_today"`
	AvgSizeBytes   float64 `json:"avg_size_bytes"`
	StoredBytes    int64   `json:"stored_bytes"`
}

// serverUploadResult mirrors the JSON response of POST /api/shares.
type serverUploadResult struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	SizeBytes    int64     `json:"size_bytes"`
	ContentType  string    `json:"content_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	HasPassword  bool      `json:"has_password"`
	MaxDownloads *int      `json:"max_downloads,omitempty"`
}

// serverError mirrors the JSON error body written by the server.
type serverError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
