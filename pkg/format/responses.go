package format

import (
	"encoding/json"
	"fmt"
)

// Wire types for the OpenAI responses dialect.

// responsesItem is one entry in a responses-dialect input or output list.
// Items are tagged variants; decoding is explicit per type with a named
// fallback for unrecognized tags.
type responsesItem struct {
	Type string `json:"type"`

	// ID is the item identifier (responses assigns one per item)
	ID string `json:"id,omitempty"`

	// For "message" items
	Role    string          `json:"role,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
	Status  string          `json:"status,omitempty"`

	// For "function_call" items
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// For "function_call_output" items
	Output json.RawMessage `json:"output,omitempty"`
}

// responsesContentPart is one element of a responses message content list.
type responsesContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// responsesTool accepts both the flat declaration shape the responses dialect
// uses and the nested chat-completions shape; both normalize to ChatTool.
type responsesTool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Function    *ChatToolSpec   `json:"function,omitempty"`
}

// responsesUsage is the responses-dialect usage block.
type responsesUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// responsesOnlyRequestFields are top-level request fields that carry meaning
// only in the responses dialect and are stripped when translating to
// chat-completions. The structural fields (instructions, input, tools,
// tool_choice, max_output_tokens) are rebuilt explicitly; the rest are
// provider-side state or caching hints with no chat equivalent.
var responsesOnlyRequestFields = []string{
	"instructions",
	"input",
	"tools",
	"tool_choice",
	"max_output_tokens",
	"store",
	"previous_response_id",
	"prompt_cache_key",
	"safety_identifier",
	"reasoning",
	"include",
	"text",
	"truncation",
}

// chatOnlyRequestFields is the mirror list for chat -> responses.
var chatOnlyRequestFields = []string{
	"messages",
	"tools",
	"tool_choice",
	"max_tokens",
	"max_completion_tokens",
	"logprobs",
	"top_logprobs",
	"n",
	"presence_penalty",
	"frequency_penalty",
	"logit_bias",
	"stop",
	"seed",
}

// foldState is the in-progress buffered state threaded through the
// left-to-right fold over a responses input list. It holds the open
// synthesized assistant message (accumulating pending tool calls) and any
// buffered tool-result messages awaiting a flush trigger.
type foldState struct {
	messages []ChatMessage
	open     *ChatMessage
	buffered []ChatMessage
}

// flush appends the open assistant message and then every buffered tool
// result, in that order, and clears both slots.
func (s *foldState) flush() {
	if s.open != nil {
		s.messages = append(s.messages, *s.open)
		s.open = nil
	}
	if len(s.buffered) > 0 {
		s.messages = append(s.messages, s.buffered...)
		s.buffered = nil
	}
}

// ResponsesToChatRequest translates a responses-dialect request into a
// chat-completions request.
//
// The instructions field becomes a synthesized system message inserted first.
// The heterogeneous input list is folded into a flat message list in a single
// left-to-right pass: a message item flushes any in-progress state before
// emitting itself, a function_call item opens or appends to an in-progress
// assistant message, and a function_call_output item flushes in-progress
// state and then emits immediately so the call/response adjacency is
// preserved. Reasoning items are dropped. Tool declarations are normalized to
// the nested shape regardless of the source shape.
func ResponsesToChatRequest(body []byte) ([]byte, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, &TranslateError{From: FormatResponses, To: FormatChat, Message: "invalid request body", Cause: err}
	}

	var instructions string
	if raw, ok := top["instructions"]; ok {
		if err := json.Unmarshal(raw, &instructions); err != nil {
			return nil, &TranslateError{From: FormatResponses, To: FormatChat, Message: "invalid instructions field", Cause: err}
		}
	}

	messages, err := foldInput(top["input"])
	if err != nil {
		return nil, err
	}
	if instructions != "" {
		messages = append([]ChatMessage{{Role: RoleSystem, Content: stringContent(instructions)}}, messages...)
	}

	out := make(map[string]any, len(top))
	for k, v := range top {
		out[k] = v
	}
	for _, k := range responsesOnlyRequestFields {
		delete(out, k)
	}

	out["messages"] = messages

	if raw, ok := top["tools"]; ok {
		tools, err := normalizeTools(raw)
		if err != nil {
			return nil, err
		}
		if len(tools) > 0 {
			out["tools"] = tools
		}
	}
	if raw, ok := top["tool_choice"]; ok {
		out["tool_choice"] = nestToolChoice(raw)
	}
	if raw, ok := top["max_output_tokens"]; ok {
		out["max_tokens"] = raw
	}

	return marshalTranslated(out, FormatResponses, FormatChat)
}

// foldInput folds a responses input value (plain string or item list) into a
// flat chat message list. A nil input yields an empty list.
func foldInput(raw json.RawMessage) ([]ChatMessage, error) {
	state := &foldState{messages: []ChatMessage{}}
	if len(raw) == 0 {
		return state.messages, nil
	}

	// A bare string input is shorthand for a single user message.
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		state.messages = append(state.messages, ChatMessage{Role: RoleUser, Content: stringContent(text)})
		return state.messages, nil
	}

	var items []responsesItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &TranslateError{From: FormatResponses, To: FormatChat, Message: "invalid input list", Cause: err}
	}

	for i, item := range items {
		switch item.Type {
		case "message", "":
			state.flush()
			msg := ChatMessage{Role: item.Role, Content: translateContentParts(item.Content)}
			if msg.Role == "" {
				msg.Role = RoleUser
			}
			state.messages = append(state.messages, msg)

		case "function_call":
			if state.open == nil {
				state.open = &ChatMessage{Role: RoleAssistant}
			}
			callID := item.CallID
			if callID == "" {
				callID = item.ID
			}
			state.open.ToolCalls = append(state.open.ToolCalls, ChatToolCall{
				ID:   callID,
				Type: ToolTypeFunction,
				Function: ChatFunction{
					Name:      item.Name,
					Arguments: item.Arguments,
				},
			})

		case "function_call_output":
			// Emitted immediately, never buffered, so the tool result stays
			// adjacent to its call. A dangling output with no matching prior
			// call passes through as-is.
			state.flush()
			state.messages = append(state.messages, ChatMessage{
				Role:       RoleTool,
				ToolCallID: item.CallID,
				Content:    outputContent(item.Output),
			})

		case "reasoning":
			// Display-only, carries no transferable semantics.
			continue

		default:
			// Unrecognized item: fail closed rather than silently dropping a
			// turn the client considered part of the conversation.
			return nil, &TranslateError{
				From:    FormatResponses,
				To:      FormatChat,
				Message: fmt.Sprintf("unrecognized input item type %q at index %d", item.Type, i),
			}
		}
	}

	state.flush()
	return state.messages, nil
}

// translateContentParts maps responses content parts (input_text,
// output_text, text) onto chat content parts. Plain string content is kept as
// a string.
func translateContentParts(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return stringContent(s)
	}

	var parts []responsesContentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return raw
	}

	out := make([]ChatContentPart, 0, len(parts))
	for _, p := range parts {
		switch p.Type {
		case "input_text", "output_text", "text":
			out = append(out, ChatContentPart{Type: "text", Text: p.Text})
		default:
			out = append(out, ChatContentPart{Type: p.Type, Text: p.Text})
		}
	}
	translated, err := json.Marshal(out)
	if err != nil {
		return raw
	}
	return translated
}

// outputContent converts a function_call_output payload to chat tool-message
// content: strings stay strings, structured outputs stay raw JSON.
func outputContent(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return stringContent("")
	}
	return raw
}

// normalizeTools converts a tool declaration list in either the flat
// responses shape or the nested chat shape into the canonical nested shape.
func normalizeTools(raw json.RawMessage) ([]ChatTool, error) {
	var decls []responsesTool
	if err := json.Unmarshal(raw, &decls); err != nil {
		return nil, &TranslateError{From: FormatResponses, To: FormatChat, Message: "invalid tools list", Cause: err}
	}

	tools := make([]ChatTool, 0, len(decls))
	for _, d := range decls {
		if d.Function != nil {
			tools = append(tools, ChatTool{Type: ToolTypeFunction, Function: *d.Function})
			continue
		}
		tools = append(tools, ChatTool{
			Type: ToolTypeFunction,
			Function: ChatToolSpec{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return tools, nil
}

// nestToolChoice rewrites a flat responses tool_choice object
// ({"type":"function","name":...}) into the nested chat shape. String values
// ("auto", "none", "required") pass through.
func nestToolChoice(raw json.RawMessage) any {
	var choice struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &choice); err != nil || choice.Name == "" {
		return raw
	}
	return map[string]any{
		"type": ToolTypeFunction,
		"function": map[string]any{
			"name": choice.Name,
		},
	}
}

// ChatToResponsesRequest translates a chat-completions request into a
// responses-dialect request: system messages become the instructions field,
// the flat message list becomes an input item list, and nested tool
// declarations are flattened.
func ChatToResponsesRequest(body []byte) ([]byte, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, &TranslateError{From: FormatChat, To: FormatResponses, Message: "invalid request body", Cause: err}
	}

	var req ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &TranslateError{From: FormatChat, To: FormatResponses, Message: "invalid request body", Cause: err}
	}

	var instructions string
	input := make([]map[string]any, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem, "developer":
			if instructions != "" {
				instructions += "\n\n"
			}
			instructions += contentString(msg.Content)

		case RoleTool:
			input = append(input, map[string]any{
				"type":    "function_call_output",
				"call_id": msg.ToolCallID,
				"output":  contentString(msg.Content),
			})

		case RoleAssistant:
			if text := contentString(msg.Content); text != "" {
				input = append(input, map[string]any{
					"type": "message",
					"role": RoleAssistant,
					"content": []map[string]any{
						{"type": "output_text", "text": text},
					},
				})
			}
			for _, call := range msg.ToolCalls {
				input = append(input, map[string]any{
					"type":      "function_call",
					"call_id":   call.ID,
					"name":      call.Function.Name,
					"arguments": call.Function.Arguments,
				})
			}

		default:
			input = append(input, map[string]any{
				"type": "message",
				"role": msg.Role,
				"content": []map[string]any{
					{"type": "input_text", "text": contentString(msg.Content)},
				},
			})
		}
	}

	out := make(map[string]any, len(top))
	for k, v := range top {
		out[k] = v
	}
	for _, k := range chatOnlyRequestFields {
		delete(out, k)
	}

	out["input"] = input
	if instructions != "" {
		out["instructions"] = instructions
	}
	if len(req.Tools) > 0 {
		flat := make([]map[string]any, 0, len(req.Tools))
		for _, t := range req.Tools {
			decl := map[string]any{
				"type": ToolTypeFunction,
				"name": t.Function.Name,
			}
			if t.Function.Description != "" {
				decl["description"] = t.Function.Description
			}
			if len(t.Function.Parameters) > 0 {
				decl["parameters"] = t.Function.Parameters
			}
			flat = append(flat, decl)
		}
		out["tools"] = flat
	}
	if raw, ok := top["tool_choice"]; ok {
		out["tool_choice"] = flattenToolChoice(raw)
	}
	if raw, ok := top["max_completion_tokens"]; ok {
		out["max_output_tokens"] = raw
	} else if raw, ok := top["max_tokens"]; ok {
		out["max_output_tokens"] = raw
	}

	return marshalTranslated(out, FormatChat, FormatResponses)
}

// flattenToolChoice rewrites a nested chat tool_choice into the flat
// responses shape.
func flattenToolChoice(raw json.RawMessage) any {
	var choice struct {
		Type     string `json:"type"`
		Function *struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &choice); err != nil || choice.Function == nil {
		return raw
	}
	return map[string]any{
		"type": ToolTypeFunction,
		"name": choice.Function.Name,
	}
}

// ChatToResponsesResponse translates a chat-completions response into a
// responses-dialect response. Used as the reverse transform of the
// responses -> chat edge.
func ChatToResponsesResponse(body []byte) ([]byte, error) {
	var resp ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &TranslateError{From: FormatResponses, To: FormatChat, Message: "invalid chat response", Cause: err}
	}

	output := []map[string]any{}
	status := "completed"
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		if text := contentString(choice.Message.Content); text != "" {
			output = append(output, map[string]any{
				"type":   "message",
				"id":     "msg_" + resp.ID,
				"role":   RoleAssistant,
				"status": "completed",
				"content": []map[string]any{
					{"type": "output_text", "text": text, "annotations": []any{}},
				},
			})
		}
		for _, call := range choice.Message.ToolCalls {
			output = append(output, map[string]any{
				"type":      "function_call",
				"id":        "fc_" + call.ID,
				"call_id":   call.ID,
				"name":      call.Function.Name,
				"arguments": call.Function.Arguments,
				"status":    "completed",
			})
		}
		if choice.FinishReason == "length" {
			status = "incomplete"
		}
	}

	out := map[string]any{
		"id":         resp.ID,
		"object":     "response",
		"created_at": resp.Created,
		"status":     status,
		"model":      resp.Model,
		"output":     output,
	}
	if resp.Usage != nil {
		out["usage"] = responsesUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
	}

	return marshalTranslated(out, FormatChat, FormatResponses)
}

// ResponsesToChatResponse translates a responses-dialect response into a
// chat-completions response. Used as the reverse transform of the
// chat -> responses edge.
func ResponsesToChatResponse(body []byte) ([]byte, error) {
	var resp struct {
		ID        string          `json:"id"`
		CreatedAt int64           `json:"created_at"`
		Status    string          `json:"status"`
		Model     string          `json:"model"`
		Output    []responsesItem `json:"output"`
		Usage     *responsesUsage `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &TranslateError{From: FormatChat, To: FormatResponses, Message: "invalid responses response", Cause: err}
	}

	message := ChatMessage{Role: RoleAssistant}
	var text string
	for _, item := range resp.Output {
		switch item.Type {
		case "message":
			var parts []responsesContentPart
			if err := json.Unmarshal(item.Content, &parts); err == nil {
				for _, p := range parts {
					text += p.Text
				}
			}
		case "function_call":
			callID := item.CallID
			if callID == "" {
				callID = item.ID
			}
			message.ToolCalls = append(message.ToolCalls, ChatToolCall{
				ID:   callID,
				Type: ToolTypeFunction,
				Function: ChatFunction{
					Name:      item.Name,
					Arguments: item.Arguments,
				},
			})
		case "reasoning":
			continue
		}
	}
	if text != "" {
		message.Content = stringContent(text)
	}

	finish := "stop"
	if len(message.ToolCalls) > 0 {
		finish = "tool_calls"
	}
	if resp.Status == "incomplete" {
		finish = "length"
	}

	out := ChatResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: resp.CreatedAt,
		Model:   resp.Model,
		Choices: []ChatChoice{
			{Index: 0, Message: message, FinishReason: finish},
		},
	}
	if resp.Usage != nil {
		out.Usage = &ChatUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	translated, err := json.Marshal(out)
	if err != nil {
		return nil, &TranslateError{From: FormatChat, To: FormatResponses, Message: "marshal chat response", Cause: err}
	}
	return translated, nil
}

// marshalTranslated marshals a rebuilt top-level map, wrapping failures in a
// TranslateError for the given edge.
func marshalTranslated(out map[string]any, from, to Format) ([]byte, error) {
	translated, err := json.Marshal(out)
	if err != nil {
		return nil, &TranslateError{From: from, To: to, Message: "marshal translated body", Cause: err}
	}
	return translated, nil
}
