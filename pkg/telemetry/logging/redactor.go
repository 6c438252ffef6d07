package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// redactedValue replaces matched credential material.
const redactedValue = "[REDACTED]"

// sensitiveKeys are attribute keys whose values are always redacted.
var sensitiveKeys = map[string]bool{
	"api_key":       true,
	"apikey":        true,
	"credential":    true,
	"authorization": true,
	"password":      true,
	"token":         true,
}

// credentialPatterns match credential material embedded in string values:
// OpenAI-style keys, Anthropic-style keys, and bearer tokens.
var credentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{8,}`),
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{8,}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]{8,}`),
}

// redactAttr is the slog ReplaceAttr hook: sensitive keys are dropped
// wholesale, and string values are scanned for embedded credentials.
func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if sensitiveKeys[strings.ToLower(a.Key)] {
		a.Value = slog.StringValue(redactedValue)
		return a
	}
	if a.Value.Kind() == slog.KindString {
		a.Value = slog.StringValue(RedactString(a.Value.String()))
	}
	return a
}

// RedactString scrubs credential material out of a string. Exported so error
// messages heading to clients can be scrubbed the same way.
func RedactString(s string) string {
	for _, p := range credentialPatterns {
		s = p.ReplaceAllString(s, redactedValue)
	}
	return s
}
