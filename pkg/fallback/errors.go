package fallback

import (
	"fmt"
	"strings"
)

// AllCandidatesExhaustedError is the orchestrator's terminal aggregate: every
// candidate across every tier failed. Its message is stable and names the
// last classification encountered, so callers and tests can match on it.
type AllCandidatesExhaustedError struct {
	// Attempts holds every attempt made, in order.
	Attempts []Attempt
}

// Error implements the error interface.
func (e *AllCandidatesExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return "all candidates exhausted: no candidates available"
	}
	return fmt.Sprintf("all candidates exhausted after %d attempts; last classification: %s",
		len(e.Attempts), e.Last().String())
}

// Last returns the classification of the final attempt.
func (e *AllCandidatesExhaustedError) Last() Outcome {
	if len(e.Attempts) == 0 {
		return OutcomeModelFatal
	}
	return e.Attempts[len(e.Attempts)-1].Outcome
}

// Summary returns a per-attempt breakdown for logging.
func (e *AllCandidatesExhaustedError) Summary() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s/%s@%s:%s",
			a.Target.Provider, a.Target.Model, a.Account.ID, a.Outcome))
	}
	return strings.Join(parts, ", ")
}

// RefreshError wraps a failed credential refresh.
type RefreshError struct {
	// AccountID is the account whose refresh failed
	AccountID string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *RefreshError) Error() string {
	return fmt.Sprintf("credential refresh for account %q failed: %v", e.AccountID, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *RefreshError) Unwrap() error {
	return e.Cause
}
