package format

import "fmt"

// Format identifies a wire-protocol dialect for chat requests and responses.
// It is used as both the source and the destination of translation edges.
type Format string

const (
	// FormatChat is the OpenAI chat-completions dialect (flat messages list).
	FormatChat Format = "openai-chat"

	// FormatResponses is the OpenAI responses dialect (instructions plus a
	// heterogeneous ordered input list).
	FormatResponses Format = "openai-responses"

	// FormatAnthropic is the Anthropic messages dialect.
	FormatAnthropic Format = "anthropic"
)

// Valid reports whether f is a known format tag.
func (f Format) Valid() bool {
	switch f {
	case FormatChat, FormatResponses, FormatAnthropic:
		return true
	}
	return false
}

// UnsupportedConversionError indicates that no translation edge is registered
// for an ordered format pair. This is a configuration error and is never
// retried.
type UnsupportedConversionError struct {
	// From is the source format of the failed lookup
	From Format

	// To is the target format of the failed lookup
	To Format
}

// Error implements the error interface.
func (e *UnsupportedConversionError) Error() string {
	return fmt.Sprintf("unsupported conversion from %q to %q", e.From, e.To)
}

// TranslateError indicates that a registered transform rejected its input.
// Translation errors are deterministic for a given body and are never retried.
type TranslateError struct {
	// From is the source format of the transform
	From Format

	// To is the target format of the transform
	To Format

	// Message describes what the transform could not handle
	Message string

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *TranslateError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("translate %s to %s: %s: %v", e.From, e.To, e.Message, e.Cause)
	}
	return fmt.Sprintf("translate %s to %s: %s", e.From, e.To, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *TranslateError) Unwrap() error {
	return e.Cause
}
