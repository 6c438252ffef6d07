package fallback

import (
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
)

// Outcome is the classification assigned to one attempt. It drives the next
// control-loop decision and is never persisted.
type Outcome int

const (
	// OutcomeSucceeded ends the loop with a client-visible response.
	OutcomeSucceeded Outcome = iota

	// OutcomeRetryableAuth allows one credential refresh and retry on the
	// same account.
	OutcomeRetryableAuth

	// OutcomeRetryableTransient allows one immediate same-account retry,
	// then rotation.
	OutcomeRetryableTransient

	// OutcomeAccountFatal removes the account from this request and rotates.
	OutcomeAccountFatal

	// OutcomeModelFatal skips the remaining accounts of this tier and
	// advances the combo chain.
	OutcomeModelFatal
)

// String returns the stable classification name used in errors and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeRetryableAuth:
		return "retryable-auth"
	case OutcomeRetryableTransient:
		return "retryable-transient"
	case OutcomeAccountFatal:
		return "fatal-for-account"
	case OutcomeModelFatal:
		return "fatal-for-model"
	}
	return "unknown"
}

// Classify maps an execution observation onto an outcome.
//
// Transport errors of the timeout/connection-reset class are transient.
// 401/403 are auth failures eligible for a credential refresh. 429 is an
// account quota signal. 404 and 422 indicate the model or combination is not
// served. Everything unrecognized is fatal-for-model: the conservative
// default that guarantees the loop terminates.
func Classify(statusCode int, transportErr error) Outcome {
	if transportErr != nil {
		if isTransientTransport(transportErr) {
			return OutcomeRetryableTransient
		}
		return OutcomeModelFatal
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return OutcomeSucceeded
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return OutcomeRetryableAuth
	case statusCode == http.StatusTooManyRequests:
		return OutcomeAccountFatal
	case statusCode == http.StatusNotFound || statusCode == http.StatusUnprocessableEntity:
		return OutcomeModelFatal
	case statusCode == http.StatusRequestTimeout || statusCode >= 500:
		return OutcomeRetryableTransient
	default:
		return OutcomeModelFatal
	}
}

// isTransientTransport reports whether a transport error belongs to the
// timeout/connection-reset class.
func isTransientTransport(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	return false
}
