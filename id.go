package burndrop

import (
	"encoding/base64"
	"path"

	"github.com/google/uuid"
)

// IDGenerator produces share identifiers. The id is a bearer capability,
// so implementations must draw from a cryptographically secure source.
type IDGenerator interface {
	Generate() string
}

// IDGeneratorFunc adapts a function to IDGenerator.
type IDGeneratorFunc func() string

func (f IDGeneratorFunc) Generate() string { return f() }

// RandomIDGenerator encodes a random UUIDv4 (122 random bits) as 22
// characters of unpadded base64url.
type RandomIDGenerator struct{}

func (RandomIDGenerator) Generate() string {
	id := uuid.New()
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// NewBlobPath returns a fresh storage path for a blob, fanned out by its
// first two characters. It is unrelated to the share id.
func NewBlobPath() string {
	u := uuid.NewString()
	return path.Join(u[:2], u)
}

// IsValidID reports whether id could have been issued by this service.
// Anything else is rejected before touching the store.
func IsValidID(id string) bool {
	if len(id) < 8 || len(id) > 64 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}
