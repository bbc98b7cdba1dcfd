package burndrop_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sagarc03/burndrop"
	"github.com/stretchr/testify/assert"
)

func TestReason_String(t *testing.T) {
	assert.Equal(t, "not_found", burndrop.ReasonNotFound.String())
	assert.Equal(t, "password_required", burndrop.ReasonPasswordRequired.String())
	assert.Equal(t, "password_invalid", burndrop.ReasonPasswordInvalid.String())
}

func TestDeniedError(t *testing.T) {
	err := &burndrop.DeniedError{Reason: burndrop.ReasonPasswordInvalid}

	assert.ErrorIs(t, err, burndrop.ErrPasswordInvalid)
	assert.NotErrorIs(t, err, burndrop.ErrNotFound)
	assert.Equal(t, "access denied: password_invalid", err.Error())

	wrapped := fmt.Errorf("handler: %w", err)
	reason, ok := burndrop.DeniedReason(wrapped)
	assert.True(t, ok)
	assert.Equal(t, burndrop.ReasonPasswordInvalid, reason)

	_, ok = burndrop.DeniedReason(errors.New("plain"))
	assert.False(t, ok)
}
