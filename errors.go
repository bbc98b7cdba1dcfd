package burndrop

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a share is missing, expired or has used up its downloads.
	ErrNotFound = errors.New("not found")
	// ErrInternal is returned when an internal error occurs
	ErrInternal = errors.New("internal error")
	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")
	// ErrPasswordRequired is returned when a protected share is accessed without a password
	ErrPasswordRequired = errors.New("password required")
	// ErrPasswordInvalid is returned when the supplied password does not match
	ErrPasswordInvalid = errors.New("password invalid")
	// ErrQuotaExceeded is returned by admission when the download limit is already reached
	ErrQuotaExceeded = errors.New("download quota exceeded")
	// ErrConflict is returned by a repo when a share id is already taken
	ErrConflict = errors.New("conflict")
	// ErrStoreUnavailable marks transient store failures that may be retried
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Reason says why access to a share was refused.
type Reason int

const (
	ReasonNotFound Reason = iota
	ReasonPasswordRequired
	ReasonPasswordInvalid
)

func (r Reason) String() string {
	switch r {
	case ReasonPasswordRequired:
		return "password_required"
	case ReasonPasswordInvalid:
		return "password_invalid"
	default:
		return "not_found"
	}
}

func (r Reason) sentinel() error {
	switch r {
	case ReasonPasswordRequired:
		return ErrPasswordRequired
	case ReasonPasswordInvalid:
		return ErrPasswordInvalid
	default:
		return ErrNotFound
	}
}

// DeniedError is returned by Resolve and Info when access is refused.
// It matches the sentinel for its Reason and, when set, the underlying cause.
type DeniedError struct {
	Reason Reason
	cause  error
}

func denied(reason Reason, cause error) *DeniedError {
	return &DeniedError{Reason: reason, cause: cause}
}

func (e *DeniedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("access denied: %s: %v", e.Reason, e.cause)
	}
	return fmt.Sprintf("access denied: %s", e.Reason)
}

func (e *DeniedError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Reason.sentinel(), e.cause}
	}
	return []error{e.Reason.sentinel()}
}

// DeniedReason reports the Reason carried by err, if any.
func DeniedReason(err error) (Reason, bool) {
	var de *DeniedError
	if errors.As(err, &de) {
		return de.Reason, true
	}
	return 0, false
}
