package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestSetup_LevelsAndFormats(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(Config{Level: "warn", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	logger.Info("below threshold")
	logger.Warn("at threshold")

	out := buf.String()
	if strings.Contains(out, "below threshold") {
		t.Error("info line emitted at warn level")
	}
	if !strings.Contains(out, "at threshold") {
		t.Error("warn line missing")
	}

	var line map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &line); err != nil {
		t.Errorf("output is not JSON: %v", err)
	}
}

func TestSetup_RejectsUnknownLevelAndFormat(t *testing.T) {
	if _, err := Setup(Config{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := Setup(Config{Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestRedaction_SensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(Config{Format: "json", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("account added", "api_key", "sk-supersecret123456", "account", "a1")

	out := buf.String()
	if strings.Contains(out, "sk-supersecret123456") {
		t.Errorf("credential leaked: %s", out)
	}
	if !strings.Contains(out, redactedValue) {
		t.Errorf("no redaction marker: %s", out)
	}
	if !strings.Contains(out, `"account":"a1"`) {
		t.Errorf("benign attribute mangled: %s", out)
	}
}

func TestRedaction_EmbeddedCredentials(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Setup(Config{Format: "json", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	logger.Warn("upstream error",
		"error", `request with Bearer abcdef1234567890 rejected`)

	if strings.Contains(buf.String(), "abcdef1234567890") {
		t.Errorf("bearer token leaked: %s", buf.String())
	}
}

func TestRedactString(t *testing.T) {
	tests := []struct {
		in   string
		leak string
	}{
		{"auth failed for sk-abc123def456ghi", "sk-abc123def456ghi"},
		{"key sk-ant-xyz987654321 expired", "sk-ant-xyz987654321"},
		{"header Authorization: Bearer tok_1234567890abc", "tok_1234567890abc"},
	}
	for _, tt := range tests {
		got := RedactString(tt.in)
		if strings.Contains(got, tt.leak) {
			t.Errorf("RedactString(%q) = %q, still leaks", tt.in, got)
		}
		if !strings.Contains(got, redactedValue) {
			t.Errorf("RedactString(%q) = %q, no marker", tt.in, got)
		}
	}

	if got := RedactString("plain message"); got != "plain message" {
		t.Errorf("benign string altered: %q", got)
	}
}
