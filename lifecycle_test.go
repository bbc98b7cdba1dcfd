package burndrop_test

import (
	"testing"
	"time"

	"github.com/sagarc03/burndrop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier struct {
	password string
	calls    int
}

func (v *stubVerifier) Verify(password, stored string) bool {
	v.calls++
	return password == v.password
}

func TestGuard_Evaluate(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	live := burndrop.ShareRecord{ID: "share-eval-01", ExpiresAt: now.Add(time.Hour)}
	protected := live
	protected.PasswordHash = "hash"
	expired := protected
	expired.ExpiresAt = now
	exhausted := protected
	exhausted.MaxDownloads = limit(1)
	exhausted.CurrentDownloads = 1

	tests := []struct {
		name         string
		rec          *burndrop.ShareRecord
		password     string
		wantDecision burndrop.Decision
		wantState    burndrop.State
	}{
		{name: "absent", rec: nil, wantDecision: burndrop.DecisionNotFound, wantState: burndrop.StateAbsent},
		{name: "open share", rec: &live, wantDecision: burndrop.DecisionAllowed, wantState: burndrop.StateActive},
		{name: "open share ignores password", rec: &live, password: "whatever", wantDecision: burndrop.DecisionAllowed, wantState: burndrop.StateActive},
		{name: "password missing", rec: &protected, wantDecision: burndrop.DecisionPasswordRequired, wantState: burndrop.StateActive},
		{name: "password wrong", rec: &protected, password: "nope", wantDecision: burndrop.DecisionPasswordInvalid, wantState: burndrop.StateActive},
		{name: "password right", rec: &protected, password: "open-sesame", wantDecision: burndrop.DecisionAllowed, wantState: burndrop.StateActive},
		{name: "expired with right password", rec: &expired, password: "open-sesame", wantDecision: burndrop.DecisionNotFound, wantState: burndrop.StateExpired},
		{name: "exhausted with right password", rec: &exhausted, password: "open-sesame", wantDecision: burndrop.DecisionNotFound, wantState: burndrop.StateQuotaExhausted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard := burndrop.NewGuard(&stubVerifier{password: "open-sesame"})

			ev := guard.Evaluate(tt.rec, now, tt.password)

			assert.Equal(t, tt.wantDecision, ev.Decision)
			assert.Equal(t, tt.wantState, ev.State)
			assert.Equal(t, tt.wantState == burndrop.StateExpired || tt.wantState == burndrop.StateQuotaExhausted, ev.Reclaimable())
		})
	}
}

func TestGuard_EvaluateIsDeterministic(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := burndrop.ShareRecord{
		ID:           "share-det-001",
		PasswordHash: "hash",
		ExpiresAt:    now.Add(time.Minute),
		MaxDownloads: limit(5),
	}
	before := rec

	guard := burndrop.NewGuard(&stubVerifier{password: "pw"})
	first := guard.Evaluate(&rec, now, "pw")
	for range 10 {
		assert.Equal(t, first, guard.Evaluate(&rec, now, "pw"))
	}
	assert.Equal(t, before, rec, "evaluate never mutates the record")
}

func TestGuard_DeadRecordSkipsVerifier(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	verifier := &stubVerifier{password: "pw"}
	guard := burndrop.NewGuard(verifier)

	rec := burndrop.ShareRecord{PasswordHash: "hash", ExpiresAt: now.Add(-time.Second)}
	guard.Evaluate(&rec, now, "pw")

	assert.Zero(t, verifier.calls)
}

func TestGuard_WithBcrypt(t *testing.T) {
	pg := fastPasswords(t)
	hash, err := pg.Hash("correct horse")
	require.NoError(t, err)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := burndrop.ShareRecord{PasswordHash: hash, ExpiresAt: now.Add(time.Hour)}
	guard := burndrop.NewGuard(pg)

	assert.Equal(t, burndrop.DecisionAllowed, guard.Evaluate(&rec, now, "correct horse").Decision)
	assert.Equal(t, burndrop.DecisionPasswordInvalid, guard.Evaluate(&rec, now, "battery staple").Decision)
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "not_found", burndrop.DecisionNotFound.String())
	assert.Equal(t, "password_required", burndrop.DecisionPasswordRequired.String())
	assert.Equal(t, "password_invalid", burndrop.DecisionPasswordInvalid.String())
	assert.Equal(t, "allowed", burndrop.DecisionAllowed.String())
}
