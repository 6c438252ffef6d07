package format

import "encoding/json"

// Wire types for the OpenAI chat-completions dialect. These are shared by
// every edge that has openai-chat on one side.

// ChatMessage represents a single message in a chat-completions conversation.
type ChatMessage struct {
	// Role identifies the message sender (system, user, assistant, tool)
	Role string `json:"role"`

	// Content is either a plain string or a list of content parts; it is kept
	// raw so both shapes survive translation untouched
	Content json.RawMessage `json:"content,omitempty"`

	// Name is an optional sender name
	Name string `json:"name,omitempty"`

	// ToolCalls contains tool invocations made by the assistant
	ToolCalls []ChatToolCall `json:"tool_calls,omitempty"`

	// ToolCallID references the tool call this message responds to
	// (role "tool" only)
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ChatContentPart is one element of a structured content list.
type ChatContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ChatToolCall represents a tool invocation request from the model.
type ChatToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function ChatFunction `json:"function"`
}

// ChatFunction carries the function name and its JSON-encoded arguments.
type ChatFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatTool is the canonical nested tool declaration shape. Flat declarations
// from other dialects are normalized into this shape during translation.
type ChatTool struct {
	Type     string       `json:"type"`
	Function ChatToolSpec `json:"function"`
}

// ChatToolSpec defines a callable function.
type ChatToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ChatRequest is the subset of a chat-completions request the translator
// understands. Fields outside this subset are carried through the raw
// top-level map, not through this struct.
type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Tools    []ChatTool    `json:"tools,omitempty"`
	Stream   bool          `json:"stream,omitempty"`
}

// ChatResponse is a chat-completions response.
type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *ChatUsage   `json:"usage,omitempty"`
}

// ChatChoice is one completion alternative.
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatUsage is the chat-completions usage block.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Message role constants shared across dialects.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolTypeFunction is the only tool type any supported dialect defines.
const ToolTypeFunction = "function"

// contentString extracts plain text from a raw content value, flattening a
// content-part list if needed.
func contentString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var parts []ChatContentPart
	if err := json.Unmarshal(raw, &parts); err == nil {
		var out string
		for _, p := range parts {
			out += p.Text
		}
		return out
	}

	return ""
}

// stringContent wraps plain text as a raw content value.
func stringContent(s string) json.RawMessage {
	raw, _ := json.Marshal(s)
	return raw
}
