package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"gatehouse-hq/gatehouse/pkg/format"
)

// Renderer re-serializes a canonical event sequence in the client's dialect.
// One Renderer serves exactly one response and is not safe for concurrent
// use.
//
// In stream mode each canonical event is framed as SSE immediately, so the
// client sees bytes as the upstream produces them. Aggregate rendering is the
// collecting mirror: the full sequence is folded into one response body.
type Renderer struct {
	target  format.Format
	id      string
	model   string
	created int64

	// chat streaming state
	roleSent  bool
	callIndex map[string]int
	finish    string
	usage     *Usage
	closed    bool
}

// NewRenderer creates a renderer targeting the client's dialect. Clients of
// the gateway speak one of the two OpenAI dialects; anthropic is an
// upstream-only format.
func NewRenderer(target format.Format, model string) (*Renderer, error) {
	if target != format.FormatChat && target != format.FormatResponses {
		return nil, fmt.Errorf("stream: cannot render client dialect %q", target)
	}
	return &Renderer{
		target:    target,
		model:     model,
		created:   time.Now().Unix(),
		callIndex: make(map[string]int),
	}, nil
}

// RenderEvent frames one canonical event for the client. The returned bytes
// are zero or more complete SSE frames ready to be written and flushed.
// After the terminating event (stream-end or stream-error) all further events
// render to nothing.
func (r *Renderer) RenderEvent(ev Event) ([]byte, error) {
	if r.closed {
		return nil, nil
	}
	if ev.ID != "" && r.id == "" {
		r.id = ev.ID
	}
	if ev.Model != "" {
		r.model = ev.Model
	}

	switch r.target {
	case format.FormatChat:
		return r.renderChatEvent(ev)
	case format.FormatResponses:
		return r.renderResponsesEvent(ev)
	}
	return nil, nil
}

func (r *Renderer) renderChatEvent(ev Event) ([]byte, error) {
	switch ev.Kind {
	case KindMessageDelta:
		delta := map[string]any{}
		if !r.roleSent {
			role := ev.Role
			if role == "" {
				role = format.RoleAssistant
			}
			delta["role"] = role
			r.roleSent = true
		}
		if ev.Text != "" {
			delta["content"] = ev.Text
		}
		if len(delta) == 0 {
			return nil, nil
		}
		return r.chatChunk(delta, nil, nil), nil

	case KindToolCallStart:
		idx := len(r.callIndex)
		r.callIndex[ev.ToolCallID] = idx
		delta := map[string]any{
			"tool_calls": []map[string]any{{
				"index": idx,
				"id":    ev.ToolCallID,
				"type":  format.ToolTypeFunction,
				"function": map[string]any{
					"name":      ev.ToolName,
					"arguments": "",
				},
			}},
		}
		return r.chatChunk(delta, nil, nil), nil

	case KindToolCallArgDelta:
		idx, ok := r.callIndex[ev.ToolCallID]
		if !ok {
			return nil, nil
		}
		delta := map[string]any{
			"tool_calls": []map[string]any{{
				"index": idx,
				"function": map[string]any{
					"arguments": ev.ArgDelta,
				},
			}},
		}
		return r.chatChunk(delta, nil, nil), nil

	case KindToolCallEnd, KindToolResult, KindReasoning:
		// Nothing to frame in the chat dialect: reasoning is droppable and
		// the call boundary is implied by finish_reason.
		return nil, nil

	case KindUsage:
		r.usage = ev.Usage
		return nil, nil

	case KindStreamEnd:
		r.closed = true
		finish := ev.FinishReason
		if finish == "" {
			finish = "stop"
		}
		frames := r.chatChunk(map[string]any{}, &finish, r.usage)
		frames = append(frames, []byte("data: [DONE]\n\n")...)
		return frames, nil

	case KindStreamError:
		r.closed = true
		frame := sseFrame(map[string]any{
			"error": map[string]any{
				"message": ev.Err.Error(),
				"type":    "upstream_error",
			},
		})
		frame = append(frame, []byte("data: [DONE]\n\n")...)
		return frame, nil
	}
	return nil, nil
}

// chatChunk builds one chat.completion.chunk SSE frame.
func (r *Renderer) chatChunk(delta map[string]any, finish *string, usage *Usage) []byte {
	choice := map[string]any{
		"index":         0,
		"delta":         delta,
		"finish_reason": nil,
	}
	if finish != nil {
		choice["finish_reason"] = *finish
	}

	chunk := map[string]any{
		"id":      r.id,
		"object":  "chat.completion.chunk",
		"created": r.created,
		"model":   r.model,
		"choices": []map[string]any{choice},
	}
	if usage != nil {
		chunk["usage"] = chatUsageJSON(usage)
	}
	return sseFrame(chunk)
}

func (r *Renderer) renderResponsesEvent(ev Event) ([]byte, error) {
	switch ev.Kind {
	case KindMessageDelta:
		if ev.Text == "" {
			return nil, nil
		}
		return sseFrame(map[string]any{
			"type":  "response.output_text.delta",
			"delta": ev.Text,
		}), nil

	case KindToolCallStart:
		r.callIndex[ev.ToolCallID] = len(r.callIndex)
		return sseFrame(map[string]any{
			"type": "response.output_item.added",
			"item": map[string]any{
				"type":    "function_call",
				"id":      "fc_" + ev.ToolCallID,
				"call_id": ev.ToolCallID,
				"name":    ev.ToolName,
			},
		}), nil

	case KindToolCallArgDelta:
		return sseFrame(map[string]any{
			"type":    "response.function_call_arguments.delta",
			"item_id": "fc_" + ev.ToolCallID,
			"delta":   ev.ArgDelta,
		}), nil

	case KindToolCallEnd:
		return sseFrame(map[string]any{
			"type": "response.output_item.done",
			"item": map[string]any{
				"type":    "function_call",
				"id":      "fc_" + ev.ToolCallID,
				"call_id": ev.ToolCallID,
			},
		}), nil

	case KindToolResult, KindReasoning:
		return nil, nil

	case KindUsage:
		r.usage = ev.Usage
		return nil, nil

	case KindStreamEnd:
		r.closed = true
		response := map[string]any{
			"id":     r.id,
			"object": "response",
			"status": "completed",
			"model":  r.model,
		}
		if r.usage != nil {
			response["usage"] = map[string]any{
				"input_tokens":  r.usage.PromptTokens,
				"output_tokens": r.usage.CompletionTokens,
				"total_tokens":  r.usage.TotalTokens,
			}
		}
		return sseFrame(map[string]any{
			"type":     "response.completed",
			"response": response,
		}), nil

	case KindStreamError:
		r.closed = true
		return sseFrame(map[string]any{
			"type": "response.failed",
			"response": map[string]any{
				"id":     r.id,
				"status": "failed",
				"error":  map[string]any{"message": ev.Err.Error()},
			},
		}), nil
	}
	return nil, nil
}

// aggregateState is the fold state for aggregate rendering.
type aggregateState struct {
	id     string
	model  string
	role   string
	text   string
	order  []string
	names  map[string]string
	args   map[string]string
	usage  *Usage
	finish string
	errEv  *Event
}

// Aggregate folds a complete canonical sequence into one response body in the
// target dialect. Text deltas concatenate into the final text, argument
// deltas concatenate per call id, and the last usage report wins (providers
// emit usage once, at stream end).
func Aggregate(events []Event, target format.Format) ([]byte, error) {
	state := aggregateState{
		role:  format.RoleAssistant,
		names: make(map[string]string),
		args:  make(map[string]string),
	}

	for i := range events {
		ev := events[i]
		if ev.ID != "" && state.id == "" {
			state.id = ev.ID
		}
		if ev.Model != "" {
			state.model = ev.Model
		}

		switch ev.Kind {
		case KindMessageDelta:
			if ev.Role != "" {
				state.role = ev.Role
			}
			state.text += ev.Text
		case KindToolCallStart:
			state.order = append(state.order, ev.ToolCallID)
			state.names[ev.ToolCallID] = ev.ToolName
		case KindToolCallArgDelta:
			state.args[ev.ToolCallID] += ev.ArgDelta
		case KindUsage:
			state.usage = ev.Usage
		case KindStreamEnd:
			state.finish = ev.FinishReason
		case KindStreamError:
			state.errEv = &events[i]
		}
	}

	if state.errEv != nil {
		return nil, state.errEv.Err
	}

	message := format.ChatMessage{Role: state.role}
	if state.text != "" {
		raw, err := json.Marshal(state.text)
		if err != nil {
			return nil, err
		}
		message.Content = raw
	}
	for _, callID := range state.order {
		message.ToolCalls = append(message.ToolCalls, format.ChatToolCall{
			ID:   callID,
			Type: format.ToolTypeFunction,
			Function: format.ChatFunction{
				Name:      state.names[callID],
				Arguments: state.args[callID],
			},
		})
	}

	finish := state.finish
	if finish == "" {
		if len(message.ToolCalls) > 0 {
			finish = "tool_calls"
		} else {
			finish = "stop"
		}
	}

	resp := format.ChatResponse{
		ID:      state.id,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   state.model,
		Choices: []format.ChatChoice{
			{Index: 0, Message: message, FinishReason: finish},
		},
	}
	if state.usage != nil {
		resp.Usage = &format.ChatUsage{
			PromptTokens:     state.usage.PromptTokens,
			CompletionTokens: state.usage.CompletionTokens,
			TotalTokens:      state.usage.TotalTokens,
		}
	}

	body, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}

	switch target {
	case format.FormatChat:
		return body, nil
	case format.FormatResponses:
		return format.ChatToResponsesResponse(body)
	}
	return nil, fmt.Errorf("stream: cannot aggregate for client dialect %q", target)
}

// chatUsageJSON renders a usage block in chat-completions field names.
func chatUsageJSON(u *Usage) map[string]any {
	out := map[string]any{
		"prompt_tokens":     u.PromptTokens,
		"completion_tokens": u.CompletionTokens,
		"total_tokens":      u.TotalTokens,
	}
	if u.CachedTokens > 0 {
		out["prompt_tokens_details"] = map[string]any{"cached_tokens": u.CachedTokens}
	}
	return out
}

// sseFrame marshals a payload as one complete SSE data frame.
func sseFrame(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Payloads are built from plain maps and strings; a marshal failure
		// here is a programming error.
		panic(fmt.Sprintf("stream: marshal SSE frame: %v", err))
	}
	return []byte("data: " + string(data) + "\n\n")
}
