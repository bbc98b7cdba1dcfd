package http

import "errors"

// ErrTooManyAttempts is returned when a client exhausted its wrong-password budget for a share.
var ErrTooManyAttempts = errors.New("too many attempts")
