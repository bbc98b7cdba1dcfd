package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sagarc03/burndrop"
)

// ErrorResponse represents a JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, code int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errCode,
		Message: message,
	}); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// HandleError writes appropriate error response based on error type.
// Denials are reported with their reason; a denial never carries details of
// the share that caused it.
func HandleError(w http.ResponseWriter, err error) {
	if reason, ok := burndrop.DeniedReason(err); ok {
		switch reason {
		case burndrop.ReasonPasswordRequired:
			WriteError(w, http.StatusUnauthorized, reason.String(), "Password required")
		case burndrop.ReasonPasswordInvalid:
			WriteError(w, http.StatusUnauthorized, reason.String(), "Password invalid")
		default:
			WriteError(w, http.StatusNotFound, "not_found", "Share not found")
		}
		return
	}

	switch {
	case errors.Is(err, burndrop.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "Share not found")
	case errors.Is(err, ErrTooManyAttempts):
		WriteError(w, http.StatusTooManyRequests, "too_many_attempts", "Too many wrong passwords, try again later")
	case errors.Is(err, burndrop.ErrInvalidInput):
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, burndrop.ErrStoreUnavailable):
		slog.Error("request error", "error", err)
		WriteError(w, http.StatusServiceUnavailable, "unavailable", "Service temporarily unavailable")
	default:
		slog.Error("request error", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, code int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(data)
}
