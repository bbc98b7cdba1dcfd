package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sagarc03/burndrop"
)

// BlobStore keeps blobs in a map.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string][]byte)}
}

func (s *BlobStore) Write(ctx context.Context, path string, content io.Reader) (burndrop.SaveResult, error) {
	if err := ctx.Err(); err != nil {
		return burndrop.SaveResult{}, err
	}
	if !burndrop.IsValidBlobPath(path) {
		return burndrop.SaveResult{}, fmt.Errorf("write blob %s: %w", path, burndrop.ErrInvalidInput)
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return burndrop.SaveResult{}, fmt.Errorf("write blob: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return burndrop.SaveResult{}, err
	}

	s.mu.Lock()
	s.blobs[path] = data
	s.mu.Unlock()

	return burndrop.SaveResult{BytesWritten: int64(len(data))}, nil
}

func (s *BlobStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	data, ok := s.blobs[path]
	s.mu.RUnlock()

	if !ok {
		return nil, burndrop.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *BlobStore) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[path]; !ok {
		return burndrop.ErrNotFound
	}
	delete(s.blobs, path)
	return nil
}

// Len returns the number of stored blobs.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
