package clientcli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTimeout is the default HTTP client timeout. Uploads and
	// downloads stream, so it bounds the whole transfer.
	DefaultTimeout = 10 * time.Minute

	// PasswordHeader carries the share password on info and download requests.
	PasswordHeader = "X-Share-Password"

	// RemainingHeader reports the downloads left after a successful download.
	RemainingHeader = "X-Downloads-Remaining"
)

// Client performs operations against a burndrop server.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// New creates a new Client with the given config and options.
func New(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// ShareURL returns the download URL of a share.
func (c *Client) ShareURL(id string) string {
	return c.endpoint + "/api/shares/" + url.PathEscape(id) + "/download"
}

// Upload streams a local file to the server as a new share.
func (c *Client) Upload(ctx context.Context, opts UploadOptions) (*UploadResult, error) {
	if opts.LocalPath == "" {
		return nil, fmt.Errorf("upload: %w", ErrEmptyPath)
	}

	file, err := os.Open(opts.LocalPath) //#nosec G304 -- localPath is user-provided input
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("upload: %s is a directory", opts.LocalPath)
	}

	// The multipart body is produced while the request is sent.
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(form, opts, file))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/shares", pr)
	if err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		_ = pr.CloseWithError(err)
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated {
		return nil, parseServerError(resp.StatusCode, body)
	}

	var share serverUploadResult
	if err := json.Unmarshal(body, &share); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	return &UploadResult{
		LocalPath:    opts.LocalPath,
		ID:           share.ID,
		URL:          c.ShareURL(share.ID),
		Name:         share.Name,
		ContentType:  share.ContentType,
		Size:         share.SizeBytes,
		ExpiresAt:    share.ExpiresAt,
		HasPassword:  share.HasPassword,
		MaxDownloads: share.MaxDownloads,
	}, nil
}

func writeUploadForm(form *multipart.Writer, opts UploadOptions, file *os.File) error {
	if opts.TTL > 0 {
		if err := form.WriteField("ttl", opts.TTL.String()); err != nil {
			return err
		}
	}
	if opts.Password != "" {
		if err := form.WriteField("password", opts.Password); err != nil {
			return err
		}
	}
	if opts.MaxDownloads > 0 {
		if err := form.WriteField("max_downloads", strconv.Itoa(opts.MaxDownloads)); err != nil {
			return err
		}
	}

	part, err := form.CreateFormFile("file", filepath.Base(opts.LocalPath))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	return form.Close()
}

// Info fetches the public metadata of a share without using up a download.
func (c *Client) Info(ctx context.Context, id, password string) (*ShareInfo, error) {
	if id == "" {
		return nil, fmt.Errorf("info: %w", ErrEmptyID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/shares/"+url.PathEscape(id), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if password != "" {
		req.Header.Set(PasswordHeader, password)
	}

	var info ShareInfo
	if err := c.doJSON(req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Stats fetches the aggregate share statistics.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/stats", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var stats Stats
	if err := c.doJSON(req, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Ping reports whether the server answers its health check.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/healthz", http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return parseServerError(resp.StatusCode, body)
	}
	return nil
}

func (c *Client) doJSON(req *http.Request, v any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return parseServerError(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// Download fetches a share. Every successful call uses up one download.
// If opts.LocalPath is "-", the content is returned via the io.ReadCloser and must be closed by the caller.
// Otherwise, the content is written to the file and the io.ReadCloser is nil.
func (c *Client) Download(ctx context.Context, opts DownloadOptions) (*DownloadResult, io.ReadCloser, error) {
	if opts.ID == "" {
		return nil, nil, fmt.Errorf("download: %w", ErrEmptyID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ShareURL(opts.ID), http.NoBody)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	if opts.Password != "" {
		req.Header.Set(PasswordHeader, opts.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, nil, parseServerError(resp.StatusCode, body)
	}

	result := &DownloadResult{
		ID:          opts.ID,
		Name:        attachmentName(resp.Header.Get("Content-Disposition"), opts.ID),
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
	}
	if v := resp.Header.Get(RemainingHeader); v != "" {
		if n, convErr := strconv.Atoi(v); convErr == nil {
			result.Remaining = &n
		}
	}

	// If stdout requested, return the body for the caller to handle
	if opts.LocalPath == "-" {
		result.LocalPath = "-"
		return result, resp.Body, nil
	}

	localPath := opts.LocalPath
	switch {
	case localPath == "":
		localPath = result.Name
	case strings.HasSuffix(localPath, string(os.PathSeparator)) || isDir(localPath):
		localPath = filepath.Join(localPath, result.Name)
	}
	result.LocalPath = localPath

	// Create parent directories if needed
	dir := filepath.Dir(localPath)
	if dir != "" && dir != "." {
		if mkdirErr := os.MkdirAll(dir, 0o750); mkdirErr != nil {
			_ = resp.Body.Close()
			return nil, nil, fmt.Errorf("create directory: %w", mkdirErr)
		}
	}

	file, createErr := os.Create(localPath) //#nosec G304 -- localPath is user-provided input
	if createErr != nil {
		_ = resp.Body.Close()
		return nil, nil, fmt.Errorf("create file: %w", createErr)
	}

	written, copyErr := io.Copy(file, resp.Body)
	_ = resp.Body.Close()
	if copyErr != nil {
		_ = file.Close()
		return nil, nil, fmt.Errorf("write file: %w", copyErr)
	}

	if closeErr := file.Close(); closeErr != nil {
		return nil, nil, fmt.Errorf("close file: %w", closeErr)
	}

	result.Size = written
	return result, nil, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// attachmentName extracts the file name from a Content-Disposition header.
// Only the base name is kept so a hostile server cannot write outside the
// target directory.
func attachmentName(disposition, fallback string) string {
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return fallback
	}
	name := filepath.Base(filepath.FromSlash(params["filename"]))
	if name == "" || name == "." || name == ".." || name == string(os.PathSeparator) {
		return fallback
	}
	return name
}

// parseServerError extracts error message from server response.
func parseServerError(statusCode int, body []byte) error {
	apiErr := &APIError{StatusCode: statusCode}

	var se serverError
	if err := json.Unmarshal(body, &se); err == nil && se.Error != "" {
		apiErr.Code = se.Error
		apiErr.Message = se.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	// Code is the machine readable error, such as "password_required".
	Code    string
	Message string
}

func (e *APIError) Error() string {
	msg := "server error: " + strconv.Itoa(e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += " - " + e.Message
	}
	return msg
}

// Is reports whether target matches this error. A target with a Code
// matches on the code, otherwise on the status code.
func (e *APIError) Is(target error) bool {
	var t *APIError
	if !errors.As(target, &t) {
		return false
	}
	if t.Code != "" {
		return t.Code == e.Code
	}
	return t.StatusCode == e.StatusCode
}

// Sentinel errors for common API error conditions.
// Use errors.Is() to check for these conditions.
var (
	// ErrNotFound covers missing, expired, exhausted and revoked shares (404).
	ErrNotFound = &APIError{StatusCode: http.StatusNotFound}

	// ErrPasswordRequired is returned when the share needs a password and none was sent.
	ErrPasswordRequired = &APIError{StatusCode: http.StatusUnauthorized, Code: "password_required"}

	// ErrPasswordInvalid is returned when the password does not match.
	ErrPasswordInvalid = &APIError{StatusCode: http.StatusUnauthorized, Code: "password_invalid"}

	// ErrTooManyAttempts is returned after too many wrong passwords (429).
	ErrTooManyAttempts = &APIError{StatusCode: http.StatusTooManyRequests}

	// ErrTooLarge is returned when the upload exceeds the server limit (413).
	ErrTooLarge = &APIError{StatusCode: http.StatusRequestEntityTooLarge}
)

func asAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}
