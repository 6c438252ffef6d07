// Package upstream executes provider-native requests over HTTP. It
// implements the fallback.Executor interface: one pooled client shared by
// all providers, per-dialect endpoint paths and auth headers, and a
// credential refresh call against the provider's refresh endpoint.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"gatehouse-hq/gatehouse/pkg/fallback"
	"gatehouse-hq/gatehouse/pkg/format"
)

const (
	// anthropicVersion is the API version header required by the Anthropic
	// messages endpoint.
	anthropicVersion = "2023-06-01"

	// maxErrorBodyBytes caps how much of an upstream error payload is
	// buffered for classification and pass-through.
	maxErrorBodyBytes = 1 << 20
)

// ProviderConfig describes one upstream provider endpoint.
type ProviderConfig struct {
	// Name is the provider name referenced by accounts and targets
	Name string

	// BaseURL is the provider origin without the version prefix
	// (e.g. "https://api.openai.com")
	BaseURL string

	// Format is the dialect the provider speaks upstream
	Format format.Format

	// RefreshURL is the optional credential refresh endpoint. Empty means
	// the provider's credentials cannot be refreshed.
	RefreshURL string
}

// UnknownProviderError reports a request for a provider the executor was not
// configured with.
type UnknownProviderError struct {
	// Provider is the unconfigured provider name
	Provider string
}

// Error implements the error interface.
func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider %q", e.Provider)
}

// HTTPExecutor implements fallback.Executor over net/http with a pooled
// transport shared across providers.
type HTTPExecutor struct {
	providers map[string]ProviderConfig
	client    *http.Client
	logger    *slog.Logger
}

// ExecutorOption configures an HTTPExecutor.
type ExecutorOption func(*HTTPExecutor)

// WithClient replaces the default pooled client. Used by tests.
func WithClient(client *http.Client) ExecutorOption {
	return func(e *HTTPExecutor) { e.client = client }
}

// NewHTTPExecutor creates an executor for the given providers.
//
// The client carries no global timeout: non-streaming attempts are bounded by
// the orchestrator's per-attempt context, and a global timeout would sever
// live streams. ResponseHeaderTimeout bounds how long a streaming attempt can
// hang before the first byte instead.
func NewHTTPExecutor(providers []ProviderConfig, opts ...ExecutorOption) *HTTPExecutor {
	transport := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	e := &HTTPExecutor{
		providers: make(map[string]ProviderConfig, len(providers)),
		client:    &http.Client{Transport: transport},
		logger:    slog.Default().With("component", "upstream"),
	}
	for _, p := range providers {
		e.providers[p.Name] = p
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute sends one provider-native request. Transport failures are returned
// as errors; HTTP responses of any status are returned as results so the
// fallback loop can classify them.
func (e *HTTPExecutor) Execute(ctx context.Context, account fallback.Account, req fallback.Request) (*fallback.Result, error) {
	provider, ok := e.providers[req.Provider]
	if !ok {
		return nil, &UnknownProviderError{Provider: req.Provider}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		provider.BaseURL+endpointPath(provider.Format), bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	setAuthHeaders(httpReq, provider.Format, account.Credential)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream %s: %w", req.Provider, err)
	}

	target := fallback.Target{Provider: req.Provider, Model: req.Model}

	// A failed attempt must be fully drained even when streaming was
	// requested, so the connection returns to the pool and the error
	// payload is available for pass-through.
	if req.Stream && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &fallback.Result{
			StatusCode: resp.StatusCode,
			Stream:     resp.Body,
			Account:    account,
			Target:     target,
		}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}

	return &fallback.Result{
		StatusCode: resp.StatusCode,
		Body:       body,
		Account:    account,
		Target:     target,
	}, nil
}

// refreshResponse is the payload the refresh endpoint returns.
type refreshResponse struct {
	Credential string `json:"credential"`
}

// RefreshCredential exchanges the account's current credential for a fresh
// one at the provider's refresh endpoint.
func (e *HTTPExecutor) RefreshCredential(ctx context.Context, account fallback.Account) (string, error) {
	provider, ok := e.providers[account.Provider]
	if !ok {
		return "", &UnknownProviderError{Provider: account.Provider}
	}
	if provider.RefreshURL == "" {
		return "", fmt.Errorf("provider %q has no refresh endpoint", account.Provider)
	}

	payload, err := json.Marshal(map[string]string{"account_id": account.ID})
	if err != nil {
		return "", fmt.Errorf("encode refresh request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		provider.RefreshURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build refresh request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	setAuthHeaders(httpReq, provider.Format, account.Credential)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("refresh %s: %w", account.Provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", fmt.Errorf("refresh %s: status %d: %s",
			account.Provider, resp.StatusCode, body)
	}

	var parsed refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	if parsed.Credential == "" {
		return "", fmt.Errorf("refresh %s: empty credential in response", account.Provider)
	}

	e.logger.Info("credential refreshed", "provider", account.Provider, "account", account.ID)
	return parsed.Credential, nil
}

// endpointPath maps an upstream dialect to its request path.
func endpointPath(f format.Format) string {
	switch f {
	case format.FormatAnthropic:
		return "/v1/messages"
	case format.FormatResponses:
		return "/v1/responses"
	default:
		return "/v1/chat/completions"
	}
}

// setAuthHeaders applies the dialect's credential convention: the Anthropic
// API uses x-api-key plus a version header, the OpenAI dialects use a bearer
// token.
func setAuthHeaders(req *http.Request, f format.Format, credential string) {
	if f == format.FormatAnthropic {
		req.Header.Set("x-api-key", credential)
		req.Header.Set("anthropic-version", anthropicVersion)
		return
	}
	req.Header.Set("Authorization", "Bearer "+credential)
}
