package stream

// Kind identifies the type of a canonical streaming event.
type Kind string

const (
	// KindMessageDelta carries an incremental piece of assistant text.
	KindMessageDelta Kind = "message-delta"

	// KindToolCallStart opens a tool invocation (id and name known).
	KindToolCallStart Kind = "tool-call-start"

	// KindToolCallArgDelta carries an incremental piece of a tool call's
	// JSON-encoded arguments.
	KindToolCallArgDelta Kind = "tool-call-arg-delta"

	// KindToolCallEnd closes a tool invocation.
	KindToolCallEnd Kind = "tool-call-end"

	// KindToolResult carries a tool execution result echoed by the upstream.
	KindToolResult Kind = "tool-result"

	// KindReasoning carries display-only reasoning text. Droppable.
	KindReasoning Kind = "reasoning"

	// KindUsage reports token usage. Providers emit it once, at stream end.
	KindUsage Kind = "usage-report"

	// KindStreamEnd terminates the sequence normally.
	KindStreamEnd Kind = "stream-end"

	// KindStreamError terminates the sequence after a malformed upstream
	// frame or a mid-stream transport failure.
	KindStreamError Kind = "stream-error"
)

// Usage is the token usage payload of a usage-report event.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CachedTokens     int
}

// Event is the canonical streaming unit shared by every dialect. Events are
// produced by a Parser, consumed once, and never mutated after emission.
type Event struct {
	// Kind discriminates the payload fields below
	Kind Kind

	// ID is the upstream response identifier (set on the first event that
	// carries one, repeated on subsequent events)
	ID string

	// Model is the model generating the response
	Model string

	// Role is the message role for message-delta events
	Role string

	// Text is the incremental text for message-delta and reasoning events
	Text string

	// ToolCallID identifies the tool call for tool-call-* and tool-result
	// events
	ToolCallID string

	// ToolName is the function name for tool-call-start events
	ToolName string

	// ArgDelta is the incremental arguments fragment for tool-call-arg-delta
	// events
	ArgDelta string

	// FinishReason is set on the stream-end event when the upstream reported
	// one
	FinishReason string

	// Usage is set on usage-report events
	Usage *Usage

	// Err is set on stream-error events
	Err error
}
