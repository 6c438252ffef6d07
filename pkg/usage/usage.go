// Package usage derives token usage uniformly across provider response
// shapes and records it for accounting.
//
// The extractor only reports what the upstream supplied: missing fields
// default to zero and are never inferred by counting tokens locally.
package usage

import (
	"encoding/json"

	"gatehouse-hq/gatehouse/pkg/stream"
)

// TokenUsage tracks token consumption for one request.
type TokenUsage struct {
	// PromptTokens is the number of tokens in the prompt
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens is the number of tokens in the completion
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is the total number of tokens used
	TotalTokens int `json:"total_tokens"`

	// CachedTokens is the number of prompt tokens served from a provider
	// cache (0 when the provider reports none)
	CachedTokens int `json:"cached_tokens,omitempty"`
}

// IsZero reports whether no usage was supplied at all.
func (u TokenUsage) IsZero() bool {
	return u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0 && u.CachedTokens == 0
}

// Extract derives usage from a canonical event sequence. Providers emit usage
// once at stream end, so the last usage-report wins.
func Extract(events []stream.Event) TokenUsage {
	var out TokenUsage
	for _, ev := range events {
		if ev.Kind != stream.KindUsage || ev.Usage == nil {
			continue
		}
		out = TokenUsage{
			PromptTokens:     ev.Usage.PromptTokens,
			CompletionTokens: ev.Usage.CompletionTokens,
			TotalTokens:      ev.Usage.TotalTokens,
			CachedTokens:     ev.Usage.CachedTokens,
		}
	}
	if out.TotalTokens == 0 {
		out.TotalTokens = out.PromptTokens + out.CompletionTokens
	}
	return out
}

// rawUsage accepts every usage field spelling the supported dialects use.
type rawUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	InputTokens      int `json:"input_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	OutputTokens     int `json:"output_tokens"`
	TotalTokens      int `json:"total_tokens"`

	CachedTokens         int `json:"cached_tokens"`
	CacheReadInputTokens int `json:"cache_read_input_tokens"`
	PromptTokensDetails  *struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details"`
	InputTokensDetails *struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"input_tokens_details"`
}

// ExtractResponse derives usage from a final aggregated response body in any
// supported dialect. A body without a usage block yields the zero value.
func ExtractResponse(body []byte) TokenUsage {
	var wrapper struct {
		Usage *rawUsage `json:"usage"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil || wrapper.Usage == nil {
		return TokenUsage{}
	}

	u := wrapper.Usage
	out := TokenUsage{
		PromptTokens:     firstNonZero(u.PromptTokens, u.InputTokens),
		CompletionTokens: firstNonZero(u.CompletionTokens, u.OutputTokens),
		TotalTokens:      u.TotalTokens,
		CachedTokens:     firstNonZero(u.CachedTokens, u.CacheReadInputTokens),
	}
	if out.CachedTokens == 0 && u.PromptTokensDetails != nil {
		out.CachedTokens = u.PromptTokensDetails.CachedTokens
	}
	if out.CachedTokens == 0 && u.InputTokensDetails != nil {
		out.CachedTokens = u.InputTokensDetails.CachedTokens
	}
	if out.TotalTokens == 0 {
		out.TotalTokens = out.PromptTokens + out.CompletionTokens
	}
	return out
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
