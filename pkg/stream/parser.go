package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gatehouse-hq/gatehouse/pkg/format"
)

// MalformedFrameError indicates an upstream frame that could not be parsed.
// It terminates only the current stream; events emitted before it stay valid.
type MalformedFrameError struct {
	// Frame is the raw frame that failed to parse (truncated for logging)
	Frame string

	// Cause is the underlying parse error
	Cause error
}

// Error implements the error interface.
func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed upstream frame %q: %v", e.Frame, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *MalformedFrameError) Unwrap() error {
	return e.Cause
}

// Parser turns raw upstream SSE bytes into canonical events. One Parser
// serves exactly one response stream and is not safe for concurrent use.
type Parser struct {
	source format.Format
	buf    []byte
	done   bool

	id     string
	model  string
	finish string

	// chat dialect: tool call index -> call id, in open order
	chatCallIDs map[int]string
	chatOpen    []int

	// anthropic dialect: content block index -> block type / tool id
	blockTypes  map[int]string
	blockIDs    map[int]string
	inputTokens int

	// responses dialect: output item id -> call id
	itemCallIDs map[string]string
}

// NewParser creates a parser for one upstream response stream in the given
// source dialect.
func NewParser(source format.Format) (*Parser, error) {
	if !source.Valid() {
		return nil, fmt.Errorf("stream: unknown source format %q", source)
	}
	return &Parser{
		source:      source,
		chatCallIDs: make(map[int]string),
		blockTypes:  make(map[int]string),
		blockIDs:    make(map[int]string),
		itemCallIDs: make(map[string]string),
	}, nil
}

// Ingest consumes one upstream chunk and returns the canonical events it
// completed. The returned slice may be empty when the chunk only extends a
// partial frame. After a malformed frame the parser emits one stream-error
// event and ignores all further input.
func (p *Parser) Ingest(chunk []byte) []Event {
	if p.done {
		return nil
	}
	p.buf = append(p.buf, chunk...)

	var events []Event
	for {
		idx := bytes.IndexByte(p.buf, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(string(p.buf[:idx]), "\r")
		p.buf = p.buf[idx+1:]

		// SSE framing: only data lines carry payloads. Event-name lines,
		// comments and blank separators are skipped; the payload's own type
		// tag is authoritative.
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		if data == "[DONE]" {
			events = append(events, p.terminate()...)
			return events
		}

		frameEvents, err := p.parseFrame([]byte(data))
		if err != nil {
			p.done = true
			events = append(events, Event{
				Kind: KindStreamError,
				ID:   p.id,
				Err:  &MalformedFrameError{Frame: truncateFrame(data), Cause: err},
			})
			return events
		}
		events = append(events, frameEvents...)
		if p.done {
			return events
		}
	}
	return events
}

// Finalize flushes the parser at upstream EOF. If the stream did not already
// terminate it closes any open tool calls and emits the stream-end event.
func (p *Parser) Finalize() []Event {
	if p.done {
		return nil
	}
	return p.terminate()
}

// terminate closes open tool calls and emits stream-end.
func (p *Parser) terminate() []Event {
	p.done = true
	events := p.closeOpenCalls()
	events = append(events, Event{
		Kind:         KindStreamEnd,
		ID:           p.id,
		Model:        p.model,
		FinishReason: p.finish,
	})
	return events
}

// closeOpenCalls emits tool-call-end for chat-dialect calls still open, in
// the order they were opened.
func (p *Parser) closeOpenCalls() []Event {
	var events []Event
	for _, idx := range p.chatOpen {
		events = append(events, Event{
			Kind:       KindToolCallEnd,
			ID:         p.id,
			ToolCallID: p.chatCallIDs[idx],
		})
	}
	p.chatOpen = nil
	return events
}

// parseFrame decodes one data payload in the parser's source dialect.
func (p *Parser) parseFrame(data []byte) ([]Event, error) {
	switch p.source {
	case format.FormatChat:
		return p.parseChatFrame(data)
	case format.FormatAnthropic:
		return p.parseAnthropicFrame(data)
	case format.FormatResponses:
		return p.parseResponsesFrame(data)
	}
	return nil, fmt.Errorf("no frame decoder for format %q", p.source)
}

// chat-completions chunk shapes

type chatStreamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Role      string `json:"role"`
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *chatStreamUsage `json:"usage"`
}

type chatStreamUsage struct {
	PromptTokens        int `json:"prompt_tokens"`
	CompletionTokens    int `json:"completion_tokens"`
	TotalTokens         int `json:"total_tokens"`
	PromptTokensDetails *struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details"`
}

func (p *Parser) parseChatFrame(data []byte) ([]Event, error) {
	var chunk chatStreamChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, err
	}
	if chunk.ID != "" {
		p.id = chunk.ID
	}
	if chunk.Model != "" {
		p.model = chunk.Model
	}

	var events []Event
	for _, choice := range chunk.Choices {
		if choice.Delta.Role != "" || choice.Delta.Content != "" {
			events = append(events, Event{
				Kind:  KindMessageDelta,
				ID:    p.id,
				Model: p.model,
				Role:  choice.Delta.Role,
				Text:  choice.Delta.Content,
			})
		}

		for _, call := range choice.Delta.ToolCalls {
			if call.ID != "" {
				p.chatCallIDs[call.Index] = call.ID
				p.chatOpen = append(p.chatOpen, call.Index)
				events = append(events, Event{
					Kind:       KindToolCallStart,
					ID:         p.id,
					ToolCallID: call.ID,
					ToolName:   call.Function.Name,
				})
			}
			if call.Function.Arguments != "" {
				events = append(events, Event{
					Kind:       KindToolCallArgDelta,
					ID:         p.id,
					ToolCallID: p.chatCallIDs[call.Index],
					ArgDelta:   call.Function.Arguments,
				})
			}
		}

		if choice.FinishReason != nil && *choice.FinishReason != "" {
			p.finish = *choice.FinishReason
			events = append(events, p.closeOpenCalls()...)
		}
	}

	if chunk.Usage != nil {
		events = append(events, Event{
			Kind:  KindUsage,
			ID:    p.id,
			Usage: chatUsageToCanonical(chunk.Usage),
		})
	}
	return events, nil
}

func chatUsageToCanonical(u *chatStreamUsage) *Usage {
	out := &Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
	if u.PromptTokensDetails != nil {
		out.CachedTokens = u.PromptTokensDetails.CachedTokens
	}
	return out
}

// anthropic messages stream shapes

type anthropicStreamEvent struct {
	Type    string `json:"type"`
	Index   int    `json:"index"`
	Message *struct {
		ID    string `json:"id"`
		Model string `json:"model"`
		Usage struct {
			InputTokens          int `json:"input_tokens"`
			CacheReadInputTokens int `json:"cache_read_input_tokens"`
		} `json:"usage"`
	} `json:"message"`
	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Delta json.RawMessage `json:"delta"`
	Usage *struct {
		InputTokens          int `json:"input_tokens"`
		OutputTokens         int `json:"output_tokens"`
		CacheReadInputTokens int `json:"cache_read_input_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *Parser) parseAnthropicFrame(data []byte) ([]Event, error) {
	var event anthropicStreamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}

	switch event.Type {
	case "message_start":
		if event.Message != nil {
			p.id = event.Message.ID
			p.model = event.Message.Model
			p.inputTokens = event.Message.Usage.InputTokens
		}
		return nil, nil

	case "content_block_start":
		if event.ContentBlock == nil {
			return nil, nil
		}
		p.blockTypes[event.Index] = event.ContentBlock.Type
		if event.ContentBlock.Type == "tool_use" {
			p.blockIDs[event.Index] = event.ContentBlock.ID
			return []Event{{
				Kind:       KindToolCallStart,
				ID:         p.id,
				ToolCallID: event.ContentBlock.ID,
				ToolName:   event.ContentBlock.Name,
			}}, nil
		}
		return nil, nil

	case "content_block_delta":
		var delta struct {
			Type        string `json:"type"`
			Text        string `json:"text"`
			PartialJSON string `json:"partial_json"`
			Thinking    string `json:"thinking"`
		}
		if err := json.Unmarshal(event.Delta, &delta); err != nil {
			return nil, err
		}
		switch delta.Type {
		case "text_delta":
			return []Event{{Kind: KindMessageDelta, ID: p.id, Model: p.model, Text: delta.Text}}, nil
		case "input_json_delta":
			return []Event{{
				Kind:       KindToolCallArgDelta,
				ID:         p.id,
				ToolCallID: p.blockIDs[event.Index],
				ArgDelta:   delta.PartialJSON,
			}}, nil
		case "thinking_delta":
			return []Event{{Kind: KindReasoning, ID: p.id, Text: delta.Thinking}}, nil
		}
		return nil, nil

	case "content_block_stop":
		if p.blockTypes[event.Index] == "tool_use" {
			return []Event{{
				Kind:       KindToolCallEnd,
				ID:         p.id,
				ToolCallID: p.blockIDs[event.Index],
			}}, nil
		}
		return nil, nil

	case "message_delta":
		var delta struct {
			StopReason string `json:"stop_reason"`
		}
		if len(event.Delta) > 0 {
			if err := json.Unmarshal(event.Delta, &delta); err != nil {
				return nil, err
			}
		}
		if delta.StopReason != "" {
			p.finish = normalizeAnthropicFinish(delta.StopReason)
		}
		if event.Usage != nil {
			prompt := p.inputTokens
			if event.Usage.InputTokens > 0 {
				prompt = event.Usage.InputTokens
			}
			return []Event{{
				Kind: KindUsage,
				ID:   p.id,
				Usage: &Usage{
					PromptTokens:     prompt,
					CompletionTokens: event.Usage.OutputTokens,
					TotalTokens:      prompt + event.Usage.OutputTokens,
					CachedTokens:     event.Usage.CacheReadInputTokens,
				},
			}}, nil
		}
		return nil, nil

	case "message_stop":
		return p.terminate(), nil

	case "ping":
		return nil, nil

	case "error":
		message := "upstream stream error"
		if event.Error != nil {
			message = event.Error.Message
		}
		p.done = true
		return []Event{{Kind: KindStreamError, ID: p.id, Err: fmt.Errorf("%s", message)}}, nil

	default:
		// Unknown anthropic event types are additive; skip them.
		return nil, nil
	}
}

// normalizeAnthropicFinish maps anthropic stop reasons onto chat finish
// reasons so the canonical sequence speaks one vocabulary.
func normalizeAnthropicFinish(reason string) string {
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

// responses stream shapes

type responsesStreamEvent struct {
	Type     string `json:"type"`
	Delta    string `json:"delta"`
	ItemID   string `json:"item_id"`
	Item     *struct {
		ID     string `json:"id"`
		Type   string `json:"type"`
		CallID string `json:"call_id"`
		Name   string `json:"name"`
	} `json:"item"`
	Response *struct {
		ID     string `json:"id"`
		Model  string `json:"model"`
		Status string `json:"status"`
		Usage  *struct {
			InputTokens        int `json:"input_tokens"`
			OutputTokens       int `json:"output_tokens"`
			TotalTokens        int `json:"total_tokens"`
			InputTokensDetails *struct {
				CachedTokens int `json:"cached_tokens"`
			} `json:"input_tokens_details"`
		} `json:"usage"`
	} `json:"response"`
}

func (p *Parser) parseResponsesFrame(data []byte) ([]Event, error) {
	var event responsesStreamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}

	switch event.Type {
	case "response.created", "response.in_progress":
		if event.Response != nil {
			p.id = event.Response.ID
			p.model = event.Response.Model
		}
		return nil, nil

	case "response.output_text.delta":
		return []Event{{Kind: KindMessageDelta, ID: p.id, Model: p.model, Text: event.Delta}}, nil

	case "response.reasoning_text.delta", "response.reasoning_summary_text.delta":
		return []Event{{Kind: KindReasoning, ID: p.id, Text: event.Delta}}, nil

	case "response.output_item.added":
		if event.Item != nil && event.Item.Type == "function_call" {
			callID := event.Item.CallID
			if callID == "" {
				callID = event.Item.ID
			}
			p.itemCallIDs[event.Item.ID] = callID
			return []Event{{
				Kind:       KindToolCallStart,
				ID:         p.id,
				ToolCallID: callID,
				ToolName:   event.Item.Name,
			}}, nil
		}
		return nil, nil

	case "response.function_call_arguments.delta":
		return []Event{{
			Kind:       KindToolCallArgDelta,
			ID:         p.id,
			ToolCallID: p.itemCallIDs[event.ItemID],
			ArgDelta:   event.Delta,
		}}, nil

	case "response.output_item.done":
		if event.Item != nil && event.Item.Type == "function_call" {
			return []Event{{
				Kind:       KindToolCallEnd,
				ID:         p.id,
				ToolCallID: p.itemCallIDs[event.Item.ID],
			}}, nil
		}
		return nil, nil

	case "response.completed", "response.incomplete":
		var events []Event
		if event.Response != nil && event.Response.Usage != nil {
			u := event.Response.Usage
			usage := &Usage{
				PromptTokens:     u.InputTokens,
				CompletionTokens: u.OutputTokens,
				TotalTokens:      u.TotalTokens,
			}
			if u.InputTokensDetails != nil {
				usage.CachedTokens = u.InputTokensDetails.CachedTokens
			}
			events = append(events, Event{Kind: KindUsage, ID: p.id, Usage: usage})
		}
		if event.Type == "response.incomplete" {
			p.finish = "length"
		} else if p.finish == "" {
			p.finish = "stop"
		}
		return append(events, p.terminate()...), nil

	case "response.failed":
		p.done = true
		return []Event{{Kind: KindStreamError, ID: p.id, Err: fmt.Errorf("upstream reported response failure")}}, nil

	default:
		// The responses stream emits many bookkeeping events
		// (content_part.added, output_text.done, ...) that carry nothing the
		// canonical sequence needs.
		return nil, nil
	}
}

// truncateFrame bounds raw frame text embedded in errors.
func truncateFrame(frame string) string {
	const limit = 160
	if len(frame) <= limit {
		return frame
	}
	return frame[:limit] + "..."
}
