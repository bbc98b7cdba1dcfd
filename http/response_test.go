package http_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sagarc03/burndrop"
	burnhttp "github.com/sagarc03/burndrop/http"
	"github.com/stretchr/testify/assert"
)

func TestHandleError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", burndrop.ErrNotFound, http.StatusNotFound, "not_found"},
		{"wrapped not found", fmt.Errorf("lookup: %w", burndrop.ErrNotFound), http.StatusNotFound, "not_found"},
		{"denied not found", &burndrop.DeniedError{Reason: burndrop.ReasonNotFound}, http.StatusNotFound, "not_found"},
		{"password required", &burndrop.DeniedError{Reason: burndrop.ReasonPasswordRequired}, http.StatusUnauthorized, "password_required"},
		{"password invalid", &burndrop.DeniedError{Reason: burndrop.ReasonPasswordInvalid}, http.StatusUnauthorized, "password_invalid"},
		{"invalid input", fmt.Errorf("upload: %w: ttl must be positive", burndrop.ErrInvalidInput), http.StatusBadRequest, "invalid_request"},
		{"too many attempts", burnhttp.ErrTooManyAttempts, http.StatusTooManyRequests, "too_many_attempts"},
		{"store unavailable", fmt.Errorf("get: %w", burndrop.ErrStoreUnavailable), http.StatusServiceUnavailable, "unavailable"},
		{"internal", errors.New("some unexpected error"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()

			burnhttp.HandleError(rec, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error":"`+tt.code+`"`)
		})
	}
}

func TestHandleError_InternalDetailsHidden(t *testing.T) {
	rec := httptest.NewRecorder()

	burnhttp.HandleError(rec, errors.New("pq: password authentication failed for user burndrop"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:")
}

func TestHandleError_LostAdmissionIsNotFound(t *testing.T) {
	rec := httptest.NewRecorder()

	// a denial wrapping the quota error from the store still reads as not found
	err := fmt.Errorf("resolve: %w", errors.Join(&burndrop.DeniedError{Reason: burndrop.ReasonNotFound}, burndrop.ErrQuotaExceeded))
	burnhttp.HandleError(rec, err)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWriteError_Success(t *testing.T) {
	rec := httptest.NewRecorder()

	burnhttp.WriteError(rec, http.StatusBadRequest, "bad_request", "Invalid request")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"error":"bad_request"`)
	assert.Contains(t, rec.Body.String(), `"message":"Invalid request"`)
}

func TestWriteJSON_Success(t *testing.T) {
	rec := httptest.NewRecorder()

	data := map[string]string{"key": "value"}
	err := burnhttp.WriteJSON(rec, http.StatusOK, data)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"key":"value"`)
}

func TestWriteJSON_EncodingError(t *testing.T) {
	rec := httptest.NewRecorder()

	// Channels cannot be JSON encoded
	data := make(chan int)
	err := burnhttp.WriteJSON(rec, http.StatusOK, data)

	assert.Error(t, err)
}
