package usage

import (
	"testing"

	"gatehouse-hq/gatehouse/pkg/stream"
)

func TestExtract_LastUsageReportWins(t *testing.T) {
	events := []stream.Event{
		{Kind: stream.KindMessageDelta, Text: "x"},
		{Kind: stream.KindUsage, Usage: &stream.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2}},
		{Kind: stream.KindUsage, Usage: &stream.Usage{PromptTokens: 8, CompletionTokens: 4, TotalTokens: 12, CachedTokens: 2}},
		{Kind: stream.KindStreamEnd},
	}

	got := Extract(events)
	want := TokenUsage{PromptTokens: 8, CompletionTokens: 4, TotalTokens: 12, CachedTokens: 2}
	if got != want {
		t.Errorf("Extract = %+v, want %+v", got, want)
	}
}

func TestExtract_NoUsageEventsDefaultsToZero(t *testing.T) {
	events := []stream.Event{
		{Kind: stream.KindMessageDelta, Text: "hi"},
		{Kind: stream.KindStreamEnd},
	}

	if got := Extract(events); !got.IsZero() {
		t.Errorf("Extract = %+v, want zero usage", got)
	}
}

func TestExtract_TotalSynthesizedWhenMissing(t *testing.T) {
	events := []stream.Event{
		{Kind: stream.KindUsage, Usage: &stream.Usage{PromptTokens: 3, CompletionTokens: 4}},
	}

	if got := Extract(events); got.TotalTokens != 7 {
		t.Errorf("TotalTokens = %d, want 7", got.TotalTokens)
	}
}

func TestExtractResponse_AlternateKeyNames(t *testing.T) {
	tests := []struct {
		name string
		body string
		want TokenUsage
	}{
		{
			name: "chat-completions spelling",
			body: `{"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`,
			want: TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		},
		{
			name: "responses and anthropic spelling",
			body: `{"usage":{"input_tokens":7,"output_tokens":3}}`,
			want: TokenUsage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10},
		},
		{
			name: "anthropic cache spelling",
			body: `{"usage":{"input_tokens":7,"output_tokens":3,"cache_read_input_tokens":6}}`,
			want: TokenUsage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10, CachedTokens: 6},
		},
		{
			name: "nested cached tokens",
			body: `{"usage":{"prompt_tokens":4,"completion_tokens":2,"total_tokens":6,"prompt_tokens_details":{"cached_tokens":3}}}`,
			want: TokenUsage{PromptTokens: 4, CompletionTokens: 2, TotalTokens: 6, CachedTokens: 3},
		},
		{
			name: "missing usage block",
			body: `{"id":"x"}`,
			want: TokenUsage{},
		},
		{
			name: "not json",
			body: `garbage`,
			want: TokenUsage{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractResponse([]byte(tt.body)); got != tt.want {
				t.Errorf("ExtractResponse = %+v, want %+v", got, tt.want)
			}
		})
	}
}
