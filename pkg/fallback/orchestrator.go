package fallback

import (
	"context"
	"log/slog"
	"time"
)

const (
	// defaultRefreshTimeout bounds one credential refresh call.
	defaultRefreshTimeout = 30 * time.Second
)

// RequestBuilder produces the provider-native request for one tier. It is
// called at most once per tier; a builder error (typically a translation
// failure) aborts the whole loop because retrying cannot fix it.
type RequestBuilder func(t Target) (Request, error)

// Orchestrator drives the candidate loop for one or more requests. It is
// stateless across requests and safe for concurrent use.
type Orchestrator struct {
	exec  Executor
	store AccountStore
	hooks Hooks

	// attemptTimeout bounds one non-streaming execution. Zero disables it.
	// Streaming attempts are never bounded here: a deadline on the request
	// context would tear down the live stream mid-response.
	attemptTimeout time.Duration

	refreshTimeout time.Duration
	logger         *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithHooks installs observation hooks.
func WithHooks(h Hooks) Option {
	return func(o *Orchestrator) { o.hooks = h }
}

// WithAttemptTimeout bounds each non-streaming attempt.
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.attemptTimeout = d }
}

// WithRefreshTimeout overrides the default 30s credential refresh bound.
func WithRefreshTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.refreshTimeout = d }
}

// NewOrchestrator creates an orchestrator over the given executor and store.
func NewOrchestrator(exec Executor, store AccountStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		exec:           exec,
		store:          store,
		refreshTimeout: defaultRefreshTimeout,
		logger:         slog.Default().With("component", "fallback"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run walks the candidate tiers in order until one attempt succeeds. Targets
// are tried sequentially; within a tier, accounts are tried in the order the
// store returns them. On success the winning Result is returned along with
// every attempt made. On exhaustion the error is *AllCandidatesExhaustedError.
//
// Context cancellation aborts immediately with ctx.Err(); cancellation is a
// client disconnect, not an upstream failure, so it is never classified.
func (o *Orchestrator) Run(ctx context.Context, targets []Target, build RequestBuilder) (*Result, []Attempt, error) {
	var attempts []Attempt

	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return nil, attempts, err
		}

		req, err := build(target)
		if err != nil {
			return nil, attempts, err
		}

		candidates := o.store.CandidatesFor(target.Provider, target.Model)
		if len(candidates) == 0 {
			o.logger.Debug("no candidates for tier",
				"provider", target.Provider, "model", target.Model)
			continue
		}

		tierFatal := false
		for _, acct := range candidates {
			result, tierAttempts, tierDone := o.tryAccount(ctx, acct, target, req)
			attempts = append(attempts, tierAttempts...)
			if result != nil {
				return result, attempts, nil
			}
			if err := ctx.Err(); err != nil {
				return nil, attempts, err
			}
			if tierDone {
				tierFatal = true
				break
			}
		}
		if tierFatal {
			continue
		}
	}

	return nil, attempts, &AllCandidatesExhaustedError{Attempts: attempts}
}

// tryAccount runs the per-account sub-loop: at most one credential refresh
// and at most one immediate transient retry. It returns a non-nil result on
// success; tierDone reports a fatal-for-model classification that should
// skip the remaining accounts of the tier.
func (o *Orchestrator) tryAccount(ctx context.Context, acct Account, target Target, req Request) (result *Result, attempts []Attempt, tierDone bool) {
	refreshed := false
	retriedTransient := false

	for {
		if ctx.Err() != nil {
			return nil, attempts, false
		}

		res, execErr := o.execute(ctx, acct, req)
		statusCode := 0
		if res != nil {
			statusCode = res.StatusCode
		}
		outcome := Classify(statusCode, execErr)

		attempt := Attempt{
			Account:    acct,
			Target:     target,
			Outcome:    outcome,
			StatusCode: statusCode,
			Err:        execErr,
		}

		// An auth failure after a refresh already happened escalates: the
		// refreshed credential is no better, so the account is done for
		// this request.
		if outcome == OutcomeRetryableAuth && refreshed {
			outcome = OutcomeAccountFatal
			attempt.Outcome = outcome
		}

		attempts = append(attempts, attempt)
		o.hooks.attempt(attempt)

		switch outcome {
		case OutcomeSucceeded:
			o.store.MarkHealthy(acct.ID)
			return res, attempts, false

		case OutcomeRetryableAuth:
			o.logger.Info("auth failure, refreshing credential",
				"account", acct.ID, "provider", target.Provider, "status", statusCode)
			o.hooks.refresh(acct)
			if err := o.refresh(ctx, &acct); err != nil {
				o.logger.Warn("credential refresh failed",
					"account", acct.ID, "error", err)
				o.store.MarkCoolingDown(acct.ID)
				return nil, attempts, false
			}
			refreshed = true
			continue

		case OutcomeRetryableTransient:
			if !retriedTransient {
				o.logger.Debug("transient failure, retrying once",
					"account", acct.ID, "status", statusCode, "error", execErr)
				retriedTransient = true
				continue
			}
			o.store.MarkCoolingDown(acct.ID)
			return nil, attempts, false

		case OutcomeAccountFatal:
			o.logger.Info("account fatal, rotating",
				"account", acct.ID, "status", statusCode)
			o.store.MarkExhausted(acct.ID)
			return nil, attempts, false

		case OutcomeModelFatal:
			o.logger.Info("model fatal, advancing chain",
				"provider", target.Provider, "model", target.Model,
				"status", statusCode, "error", execErr)
			return nil, attempts, true
		}

		// Unreachable: Classify returns only the five outcomes above.
		return nil, attempts, true
	}
}

// execute runs one attempt, applying the attempt timeout to non-streaming
// requests only.
func (o *Orchestrator) execute(ctx context.Context, acct Account, req Request) (*Result, error) {
	if o.attemptTimeout > 0 && !req.Stream {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.attemptTimeout)
		defer cancel()
	}
	return o.exec.Execute(ctx, acct, req)
}

// refresh runs one bounded credential refresh and reloads the account's
// credential for the retry.
func (o *Orchestrator) refresh(ctx context.Context, acct *Account) error {
	refreshCtx, cancel := context.WithTimeout(ctx, o.refreshTimeout)
	defer cancel()
	cred, err := o.exec.RefreshCredential(refreshCtx, *acct)
	if err != nil {
		return &RefreshError{AccountID: acct.ID, Cause: err}
	}
	acct.Credential = cred
	return nil
}
