package format

import (
	"encoding/json"
)

// Wire types for the Anthropic messages dialect. The Anthropic API rejects
// unknown top-level fields, so this edge builds a fully typed request instead
// of carrying unrecognized fields through.

// AnthropicRequest represents an Anthropic messages request.
type AnthropicRequest struct {
	Model         string             `json:"model"`
	Messages      []AnthropicMessage `json:"messages"`
	System        string             `json:"system,omitempty"`
	MaxTokens     int                `json:"max_tokens"`
	Temperature   *float64           `json:"temperature,omitempty"`
	TopP          *float64           `json:"top_p,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
	Tools         []AnthropicTool    `json:"tools,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

// AnthropicMessage represents a message in Anthropic format.
type AnthropicMessage struct {
	Role    string                  `json:"role"`
	Content []AnthropicContentBlock `json:"content"`
}

// AnthropicContentBlock represents a content block in Anthropic format.
type AnthropicContentBlock struct {
	Type string `json:"type"` // "text", "tool_use" or "tool_result"
	Text string `json:"text,omitempty"`

	// For tool_use blocks
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// For tool_result blocks
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

// AnthropicTool represents a tool definition in Anthropic format (flat shape).
type AnthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// AnthropicResponse represents an Anthropic messages response.
type AnthropicResponse struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Role       string                  `json:"role"`
	Content    []AnthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Usage      AnthropicUsage          `json:"usage"`
}

// AnthropicUsage represents token usage in Anthropic format.
type AnthropicUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
}

// defaultAnthropicMaxTokens is applied when the source request carries no
// token limit; the field is mandatory in the Anthropic dialect.
const defaultAnthropicMaxTokens = 4096

// ChatToAnthropicRequest translates a chat-completions request into an
// Anthropic messages request. System messages move to the separate system
// field, assistant tool calls become tool_use blocks, and tool-role messages
// become tool_result blocks on a user turn.
func ChatToAnthropicRequest(body []byte) ([]byte, error) {
	var top struct {
		ChatRequest
		Temperature *float64 `json:"temperature"`
		TopP        *float64 `json:"top_p"`
		MaxTokens   int      `json:"max_tokens"`
		Stop        []string `json:"stop"`
	}
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, &TranslateError{From: FormatChat, To: FormatAnthropic, Message: "invalid request body", Cause: err}
	}

	out := &AnthropicRequest{
		Model:         top.Model,
		Messages:      make([]AnthropicMessage, 0, len(top.Messages)),
		MaxTokens:     top.MaxTokens,
		Temperature:   top.Temperature,
		TopP:          top.TopP,
		Stream:        top.Stream,
		StopSequences: top.Stop,
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = defaultAnthropicMaxTokens
	}

	var system string
	for _, msg := range top.Messages {
		switch msg.Role {
		case RoleSystem, "developer":
			if system != "" {
				system += "\n\n"
			}
			system += contentString(msg.Content)

		case RoleAssistant:
			blocks := []AnthropicContentBlock{}
			if text := contentString(msg.Content); text != "" {
				blocks = append(blocks, AnthropicContentBlock{Type: "text", Text: text})
			}
			for _, call := range msg.ToolCalls {
				input := json.RawMessage(call.Function.Arguments)
				if len(input) == 0 || !json.Valid(input) {
					input = json.RawMessage(`{}`)
				}
				blocks = append(blocks, AnthropicContentBlock{
					Type:  "tool_use",
					ID:    call.ID,
					Name:  call.Function.Name,
					Input: input,
				})
			}
			out.Messages = append(out.Messages, AnthropicMessage{Role: RoleAssistant, Content: blocks})

		case RoleTool:
			// Anthropic carries tool results as user-turn content blocks.
			out.Messages = append(out.Messages, AnthropicMessage{
				Role: RoleUser,
				Content: []AnthropicContentBlock{
					{
						Type:      "tool_result",
						ToolUseID: msg.ToolCallID,
						Content:   contentString(msg.Content),
					},
				},
			})

		default:
			out.Messages = append(out.Messages, AnthropicMessage{
				Role: RoleUser,
				Content: []AnthropicContentBlock{
					{Type: "text", Text: contentString(msg.Content)},
				},
			})
		}
	}
	out.System = system

	if len(top.Tools) > 0 {
		out.Tools = make([]AnthropicTool, len(top.Tools))
		for i, tool := range top.Tools {
			schema := tool.Function.Parameters
			if len(schema) == 0 {
				schema = json.RawMessage(`{"type":"object","properties":{}}`)
			}
			out.Tools[i] = AnthropicTool{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				InputSchema: schema,
			}
		}
	}

	translated, err := json.Marshal(out)
	if err != nil {
		return nil, &TranslateError{From: FormatChat, To: FormatAnthropic, Message: "marshal translated body", Cause: err}
	}
	return translated, nil
}

// AnthropicToChatResponse translates an Anthropic messages response into a
// chat-completions response. Used as the reverse transform of the
// chat -> anthropic edge.
func AnthropicToChatResponse(body []byte) ([]byte, error) {
	var resp AnthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &TranslateError{From: FormatChat, To: FormatAnthropic, Message: "invalid anthropic response", Cause: err}
	}

	message := ChatMessage{Role: RoleAssistant}
	var text string
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text += block.Text
		case "tool_use":
			args := string(block.Input)
			if args == "" {
				args = "{}"
			}
			message.ToolCalls = append(message.ToolCalls, ChatToolCall{
				ID:   block.ID,
				Type: ToolTypeFunction,
				Function: ChatFunction{
					Name:      block.Name,
					Arguments: args,
				},
			})
		}
	}
	if text != "" {
		message.Content = stringContent(text)
	}

	out := ChatResponse{
		ID:     resp.ID,
		Object: "chat.completion",
		Model:  resp.Model,
		Choices: []ChatChoice{
			{Index: 0, Message: message, FinishReason: normalizeAnthropicStopReason(resp.StopReason)},
		},
		Usage: &ChatUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}

	translated, err := json.Marshal(out)
	if err != nil {
		return nil, &TranslateError{From: FormatChat, To: FormatAnthropic, Message: "marshal chat response", Cause: err}
	}
	return translated, nil
}

// normalizeAnthropicStopReason maps Anthropic stop reasons onto
// chat-completions finish reasons.
func normalizeAnthropicStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	default:
		return reason
	}
}
