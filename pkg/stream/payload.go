package stream

import (
	"encoding/json"
	"fmt"

	"gatehouse-hq/gatehouse/pkg/format"
)

// ParseResponse normalizes a single non-streamed upstream payload into a
// canonical event sequence: one role-bearing message delta with the full
// text, start/arg/end triples for each tool call, a usage report when the
// payload carries one, and the stream-end event.
func ParseResponse(source format.Format, body []byte) ([]Event, error) {
	switch source {
	case format.FormatChat:
		return parseChatPayload(body)
	case format.FormatAnthropic:
		translated, err := format.AnthropicToChatResponse(body)
		if err != nil {
			return nil, err
		}
		return parseChatPayload(translated)
	case format.FormatResponses:
		translated, err := format.ResponsesToChatResponse(body)
		if err != nil {
			return nil, err
		}
		return parseChatPayload(translated)
	}
	return nil, fmt.Errorf("stream: no payload decoder for format %q", source)
}

func parseChatPayload(body []byte) ([]Event, error) {
	var resp format.ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &MalformedFrameError{Frame: truncateFrame(string(body)), Cause: err}
	}

	var events []Event
	finish := ""
	for _, choice := range resp.Choices {
		finish = choice.FinishReason

		events = append(events, Event{
			Kind:  KindMessageDelta,
			ID:    resp.ID,
			Model: resp.Model,
			Role:  choice.Message.Role,
			Text:  chatContentText(choice.Message.Content),
		})

		for _, call := range choice.Message.ToolCalls {
			events = append(events,
				Event{Kind: KindToolCallStart, ID: resp.ID, ToolCallID: call.ID, ToolName: call.Function.Name},
				Event{Kind: KindToolCallArgDelta, ID: resp.ID, ToolCallID: call.ID, ArgDelta: call.Function.Arguments},
				Event{Kind: KindToolCallEnd, ID: resp.ID, ToolCallID: call.ID},
			)
		}
		break // only the first choice is normalized
	}

	if resp.Usage != nil {
		events = append(events, Event{
			Kind: KindUsage,
			ID:   resp.ID,
			Usage: &Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
		})
	}

	events = append(events, Event{
		Kind:         KindStreamEnd,
		ID:           resp.ID,
		Model:        resp.Model,
		FinishReason: finish,
	})
	return events, nil
}

// chatContentText extracts plain text from a chat message content value.
func chatContentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []format.ChatContentPart
	if err := json.Unmarshal(raw, &parts); err == nil {
		var out string
		for _, p := range parts {
			out += p.Text
		}
		return out
	}
	return ""
}
