package fallback

import (
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "deadline exceeded" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		err        error
		want       Outcome
	}{
		{"200 ok", 200, nil, OutcomeSucceeded},
		{"201 created", 201, nil, OutcomeSucceeded},
		{"401 unauthorized", 401, nil, OutcomeRetryableAuth},
		{"403 forbidden", 403, nil, OutcomeRetryableAuth},
		{"429 rate limited", 429, nil, OutcomeAccountFatal},
		{"404 not found", 404, nil, OutcomeModelFatal},
		{"422 unprocessable", 422, nil, OutcomeModelFatal},
		{"408 request timeout", 408, nil, OutcomeRetryableTransient},
		{"500 server error", 500, nil, OutcomeRetryableTransient},
		{"502 bad gateway", 502, nil, OutcomeRetryableTransient},
		{"503 unavailable", 503, nil, OutcomeRetryableTransient},
		{"400 bad request", 400, nil, OutcomeModelFatal},
		{"418 teapot", 418, nil, OutcomeModelFatal},
		{"timeout transport error", 0, timeoutErr{}, OutcomeRetryableTransient},
		{"connection reset", 0, syscall.ECONNRESET, OutcomeRetryableTransient},
		{"connection refused", 0, syscall.ECONNREFUSED, OutcomeRetryableTransient},
		{"broken pipe", 0, syscall.EPIPE, OutcomeRetryableTransient},
		{"unexpected eof", 0, io.ErrUnexpectedEOF, OutcomeRetryableTransient},
		{"wrapped reset", 0, fmt.Errorf("dial: %w", syscall.ECONNRESET), OutcomeRetryableTransient},
		{"unknown transport error", 0, errors.New("tls handshake failure"), OutcomeModelFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.statusCode, tt.err); got != tt.want {
				t.Errorf("Classify(%d, %v) = %s, want %s", tt.statusCode, tt.err, got, tt.want)
			}
		})
	}
}

func TestOutcomeString(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    string
	}{
		{OutcomeSucceeded, "succeeded"},
		{OutcomeRetryableAuth, "retryable-auth"},
		{OutcomeRetryableTransient, "retryable-transient"},
		{OutcomeAccountFatal, "fatal-for-account"},
		{OutcomeModelFatal, "fatal-for-model"},
		{Outcome(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.outcome.String(); got != tt.want {
			t.Errorf("Outcome(%d).String() = %q, want %q", tt.outcome, got, tt.want)
		}
	}
}
