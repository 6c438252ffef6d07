package fallback

import (
	"context"
	"io"
)

// Account is an opaque credential handle scoped to one provider. The
// orchestrator does not own accounts; it receives ordered candidate lists
// from the AccountStore and reports outcomes back to it.
type Account struct {
	// ID identifies the account in the owning store
	ID string

	// Provider is the provider this account belongs to
	Provider string

	// Credential is the live credential material (API key or token)
	Credential string
}

// Target is one (provider, model) fallback candidate tier.
type Target struct {
	Provider string
	Model    string
}

// Request is a provider-native request ready for execution.
type Request struct {
	// Provider is the upstream provider name
	Provider string

	// Model is the provider-native model identifier
	Model string

	// Body is the translated, provider-native request body
	Body []byte

	// Stream indicates whether the upstream should stream the response
	Stream bool
}

// Result is a successful upstream execution: either a complete body or a
// live stream, never both.
type Result struct {
	// StatusCode is the upstream HTTP status
	StatusCode int

	// Body is the complete response body (non-streaming executions)
	Body []byte

	// Stream is the raw upstream stream (streaming executions). The caller
	// owns closing it.
	Stream io.ReadCloser

	// Account is the account that served the request
	Account Account

	// Target is the (provider, model) tier that served the request
	Target Target
}

// Streaming reports whether the result carries a live stream.
func (r *Result) Streaming() bool { return r.Stream != nil }

// Executor performs upstream calls. It owns all transport-level concerns
// (connection pooling, TLS characteristics); the orchestrator only sees
// status-classified outcomes.
type Executor interface {
	// Execute sends the provider-native request with the account's
	// credential. A non-2xx upstream status is returned as a Result with
	// StatusCode set (and Body carrying the upstream error payload), not as
	// an error; errors are reserved for transport failures.
	Execute(ctx context.Context, account Account, req Request) (*Result, error)

	// RefreshCredential obtains a fresh credential for the account and
	// returns it. The orchestrator bounds the call with its own timeout and
	// uses the returned credential for the retry.
	RefreshCredential(ctx context.Context, account Account) (string, error)
}

// AccountStore supplies ordered candidates and accepts outcome reports. The
// store owns the locking discipline for concurrent rotation across
// simultaneous requests.
type AccountStore interface {
	// CandidatesFor returns the ordered usable accounts for one tier.
	CandidatesFor(provider, model string) []Account

	// MarkCoolingDown reports a temporarily unusable account.
	MarkCoolingDown(accountID string)

	// MarkExhausted reports an account whose quota is spent or that was
	// banned.
	MarkExhausted(accountID string)

	// MarkHealthy reports a successful execution on the account.
	MarkHealthy(accountID string)
}

// Attempt records one execution attempt and its classification. Attempts
// exist only for the duration of one client request.
type Attempt struct {
	// Account is the account the attempt ran on
	Account Account

	// Target is the (provider, model) tier of the attempt
	Target Target

	// Outcome is the classification the orchestrator assigned
	Outcome Outcome

	// StatusCode is the upstream HTTP status (0 for transport failures)
	StatusCode int

	// Err is the transport error (nil for HTTP-status failures)
	Err error
}

// Hooks are optional observation points. Nil hooks are skipped.
type Hooks struct {
	// OnAttempt fires after each attempt is classified (including success).
	OnAttempt func(Attempt)

	// OnRefresh fires before a credential refresh.
	OnRefresh func(Account)
}

func (h Hooks) attempt(a Attempt) {
	if h.OnAttempt != nil {
		h.OnAttempt(a)
	}
}

func (h Hooks) refresh(acct Account) {
	if h.OnRefresh != nil {
		h.OnRefresh(acct)
	}
}
