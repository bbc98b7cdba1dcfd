// Package filesystem stores blobs under a local directory.
// Writes are atomic: content lands in a temp file that is renamed into
// place only after it was fully copied and synced.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sagarc03/burndrop"
)

const tmpPrefix = ".t"

// Store provides file system blob storage.
type Store struct {
	root *os.Root
}

// NewFileStorage creates a new Store with the given root directory.
// The root provides sandboxed file operations preventing path traversal.
func NewFileStorage(root *os.Root) *Store {
	return &Store{root: root}
}

// Get opens a blob for reading. Returns burndrop.ErrNotFound if the file does not exist.
func (s *Store) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !burndrop.IsValidBlobPath(path) {
		return nil, fmt.Errorf("open blob %s: %w", path, burndrop.ErrInvalidInput)
	}

	f, err := s.root.Open(filepath.FromSlash(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, burndrop.ErrNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return f, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (n int, err error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// Write atomically writes content to path using a temp file and rename,
// creating intermediate directories as needed. A cancelled context aborts
// the copy and leaves nothing behind.
func (s *Store) Write(ctx context.Context, path string, content io.Reader) (burndrop.SaveResult, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return burndrop.SaveResult{}, ctxErr
	}
	if !burndrop.IsValidBlobPath(path) {
		return burndrop.SaveResult{}, fmt.Errorf("write blob %s: %w", path, burndrop.ErrInvalidInput)
	}

	tmpFile := tmpFileName()
	t, createErr := s.root.Create(tmpFile)
	if createErr != nil {
		return burndrop.SaveResult{}, fmt.Errorf("could not open temp file: %w", createErr)
	}

	success := false
	defer func() {
		if closeErr := t.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			slog.Warn("failed to close tmp file", "err", closeErr)
		}
		if !success {
			if rmErr := s.root.Remove(tmpFile); rmErr != nil {
				slog.Warn("failed to remove tmp file", "err", rmErr)
			}
		}
	}()

	fileSizeBytes, err := io.Copy(t, &ctxReader{ctx: ctx, r: content})
	if err != nil {
		return burndrop.SaveResult{}, fmt.Errorf("could not copy file contents: %w", err)
	}

	if err = t.Sync(); err != nil {
		return burndrop.SaveResult{}, fmt.Errorf("could not sync written file: %w", err)
	}

	dest := filepath.FromSlash(path)
	if destDir := filepath.Dir(dest); destDir != "." {
		if err := s.root.MkdirAll(destDir, 0o750); err != nil {
			return burndrop.SaveResult{}, fmt.Errorf("could not create intermediate directories: %w", err)
		}
	}

	if renameErr := s.root.Rename(tmpFile, dest); renameErr != nil {
		return burndrop.SaveResult{}, fmt.Errorf("failed to rename file: %w", renameErr)
	}

	success = true
	return burndrop.SaveResult{BytesWritten: fileSizeBytes}, nil
}

// Delete removes a blob. Returns burndrop.ErrNotFound if the file does not exist.
// The parent directory is removed too once it is empty.
func (s *Store) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !burndrop.IsValidBlobPath(path) {
		return fmt.Errorf("delete blob %s: %w", path, burndrop.ErrInvalidInput)
	}

	target := filepath.FromSlash(path)
	if err := s.root.Remove(target); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return burndrop.ErrNotFound
		}
		return fmt.Errorf("could not delete file: %w", err)
	}

	if dir := filepath.Dir(target); dir != "." {
		// Fails while other blobs share the directory.
		_ = s.root.Remove(dir)
	}
	return nil
}

// RemoveStaleTemp deletes temp files left in the root by writes that never
// finished, such as after a crash. Only files older than olderThan are
// touched so in-flight writes survive.
func (s *Store) RemoveStaleTemp(ctx context.Context, olderThan time.Duration) (int, error) {
	entries, err := fs.ReadDir(s.root.FS(), ".")
	if err != nil {
		return 0, fmt.Errorf("remove stale temp: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), tmpPrefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return removed, fmt.Errorf("remove stale temp: %w", err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		if err := s.root.Remove(entry.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("remove stale temp: %w", err)
		}
		removed++
	}

	return removed, nil
}

func tmpFileName() string {
	return tmpPrefix + uuid.New().String()
}
