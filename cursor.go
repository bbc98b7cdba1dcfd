package burndrop

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Cursor is the decoded position of a list page: the (created_at, id) of
// the last item returned.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// EncodeCursor encodes cursor data to a base64 string for pagination.
func EncodeCursor(createdAt time.Time, id string) string {
	data := createdAt.UTC().Format(time.RFC3339Nano) + "|" + id
	return base64.URLEncoding.EncodeToString([]byte(data))
}

// DecodeCursor decodes a pagination cursor string back to cursor data.
// An empty string decodes to the zero Cursor, meaning the first page.
func DecodeCursor(cursor string) (Cursor, error) {
	if cursor == "" {
		return Cursor{}, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return Cursor{}, fmt.Errorf("decode cursor: %w: invalid encoding: %w", ErrInvalidInput, err)
	}

	createdAt, id, ok := strings.Cut(string(decoded), "|")
	if !ok {
		return Cursor{}, fmt.Errorf("decode cursor: %w: invalid format", ErrInvalidInput)
	}

	if id == "" {
		return Cursor{}, fmt.Errorf("decode cursor: %w: empty id", ErrInvalidInput)
	}

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Cursor{}, fmt.Errorf("decode cursor: %w: invalid timestamp: %w", ErrInvalidInput, err)
	}

	return Cursor{CreatedAt: ts, ID: id}, nil
}

// IsZero reports whether c points at the first page.
func (c Cursor) IsZero() bool {
	return c.ID == "" && c.CreatedAt.IsZero()
}

// After reports whether a row sorts after the cursor in (created_at, id) order.
func (c Cursor) After(createdAt time.Time, id string) bool {
	if c.IsZero() {
		return true
	}
	if !createdAt.Equal(c.CreatedAt) {
		return createdAt.After(c.CreatedAt)
	}
	return id > c.ID
}
