package burndrop

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MaxPasswordBytes is the longest password bcrypt can hash without truncating it.
	MaxPasswordBytes  = 72
	DefaultBcryptCost = bcrypt.DefaultCost
)

// PasswordGuard hashes and verifies share passwords with bcrypt.
type PasswordGuard struct {
	cost int
}

// NewPasswordGuard returns a guard using the given bcrypt cost.
// A zero cost selects DefaultBcryptCost.
func NewPasswordGuard(cost int) (*PasswordGuard, error) {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("new password guard: %w: bcrypt cost %d out of range [%d, %d]", ErrInvalidInput, cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &PasswordGuard{cost: cost}, nil
}

// Hash returns a salted bcrypt hash of password.
func (g *PasswordGuard) Hash(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), g.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether password matches the stored hash. An empty or
// malformed hash never matches.
func (g *PasswordGuard) Verify(password, stored string) bool {
	if stored == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
}

// ValidatePassword rejects passwords bcrypt cannot hash faithfully.
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("%w: password cannot be empty", ErrInvalidInput)
	}
	if len(password) > MaxPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, MaxPasswordBytes)
	}
	return nil
}
