package chat

import (
	"errors"
	"testing"

	"gatehouse-hq/gatehouse/pkg/format"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    format.Format
		wantErr bool
	}{
		{
			name: "chat dialect",
			body: `{"model":"gpt-4","messages":[{"role":"user","content":"hi"}]}`,
			want: format.FormatChat,
		},
		{
			name: "responses dialect via input",
			body: `{"model":"gpt-4","input":[{"type":"message","role":"user","content":"hi"}]}`,
			want: format.FormatResponses,
		},
		{
			name: "responses dialect via instructions only",
			body: `{"model":"gpt-4","instructions":"be brief"}`,
			want: format.FormatResponses,
		},
		{
			name: "responses fields win over messages",
			body: `{"model":"gpt-4","input":"hi","messages":[]}`,
			want: format.FormatResponses,
		},
		{
			name:    "neither shape",
			body:    `{"model":"gpt-4"}`,
			wantErr: true,
		},
		{
			name:    "invalid json",
			body:    `{"model":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat([]byte(tt.body))
			if tt.wantErr {
				var bad *BadRequestError
				if !errors.As(err, &bad) {
					t.Fatalf("err = %v, want *BadRequestError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DetectFormat failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("DetectFormat = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseShape_RequiresModel(t *testing.T) {
	_, err := parseShape([]byte(`{"messages":[]}`))
	var bad *BadRequestError
	if !errors.As(err, &bad) {
		t.Fatalf("err = %v, want *BadRequestError", err)
	}
}
