package burndrop

import "time"

// Decision is the outcome of evaluating an access attempt.
type Decision int

const (
	DecisionNotFound Decision = iota
	DecisionPasswordRequired
	DecisionPasswordInvalid
	DecisionAllowed
)

func (d Decision) String() string {
	switch d {
	case DecisionPasswordRequired:
		return "password_required"
	case DecisionPasswordInvalid:
		return "password_invalid"
	case DecisionAllowed:
		return "allowed"
	default:
		return "not_found"
	}
}

func (d Decision) reason() Reason {
	switch d {
	case DecisionPasswordRequired:
		return ReasonPasswordRequired
	case DecisionPasswordInvalid:
		return ReasonPasswordInvalid
	default:
		return ReasonNotFound
	}
}

// Evaluation is the result of Guard.Evaluate.
type Evaluation struct {
	Decision Decision
	State    State
}

// Reclaimable reports whether the evaluated record is dead and should be reclaimed.
func (e Evaluation) Reclaimable() bool {
	return e.State == StateExpired || e.State == StateQuotaExhausted
}

// PasswordVerifier checks a password against a stored hash.
type PasswordVerifier interface {
	Verify(password, stored string) bool
}

// Guard decides whether a share may be accessed. It never mutates the
// record: a DecisionAllowed is advisory and must be confirmed by
// ShareRepo.Admit.
type Guard struct {
	verifier PasswordVerifier
}

func NewGuard(verifier PasswordVerifier) *Guard {
	return &Guard{verifier: verifier}
}

// Evaluate applies the access rules in order: absent, expired, exhausted,
// password. An empty password means none was supplied. Dead records yield
// DecisionNotFound whatever password was given.
func (g *Guard) Evaluate(rec *ShareRecord, now time.Time, password string) Evaluation {
	if rec == nil {
		return Evaluation{Decision: DecisionNotFound, State: StateAbsent}
	}

	state := rec.State(now)
	if state != StateActive {
		return Evaluation{Decision: DecisionNotFound, State: state}
	}

	if rec.HasPassword() {
		if password == "" {
			return Evaluation{Decision: DecisionPasswordRequired, State: state}
		}
		if !g.verifier.Verify(password, rec.PasswordHash) {
			return Evaluation{Decision: DecisionPasswordInvalid, State: state}
		}
	}

	return Evaluation{Decision: DecisionAllowed, State: state}
}
