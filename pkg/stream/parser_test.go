package stream

import (
	"errors"
	"testing"

	"gatehouse-hq/gatehouse/pkg/format"
)

func collectKinds(events []Event) []Kind {
	kinds := make([]Kind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
	}
	return kinds
}

func TestParser_ChatStreamBasicDeltas(t *testing.T) {
	p, err := NewParser(format.FormatChat)
	if err != nil {
		t.Fatal(err)
	}

	chunk := "data: {\"id\":\"chatcmpl-1\",\"model\":\"gpt-4\",\"choices\":[{\"delta\":{\"role\":\"assistant\",\"content\":\"Hel\"},\"finish_reason\":null}]}\n\n" +
		"data: {\"id\":\"chatcmpl-1\",\"choices\":[{\"delta\":{\"content\":\"lo\"},\"finish_reason\":null}]}\n\n" +
		"data: {\"id\":\"chatcmpl-1\",\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n" +
		"data: [DONE]\n\n"

	events := p.Ingest([]byte(chunk))

	var text string
	for _, ev := range events {
		if ev.Kind == KindMessageDelta {
			text += ev.Text
		}
	}
	if text != "Hello" {
		t.Errorf("concatenated text = %q, want %q", text, "Hello")
	}

	last := events[len(events)-1]
	if last.Kind != KindStreamEnd {
		t.Fatalf("last event = %s, want stream-end", last.Kind)
	}
	if last.FinishReason != "stop" {
		t.Errorf("finish reason = %q, want stop", last.FinishReason)
	}
	if last.ID != "chatcmpl-1" {
		t.Errorf("id = %q", last.ID)
	}

	// The sequence is non-restartable: nothing after termination.
	if extra := p.Ingest([]byte("data: {\"choices\":[]}\n\n")); len(extra) != 0 {
		t.Errorf("parser emitted %d events after termination", len(extra))
	}
}

func TestParser_EventSpanningMultipleChunks(t *testing.T) {
	p, err := NewParser(format.FormatChat)
	if err != nil {
		t.Fatal(err)
	}

	full := "data: {\"id\":\"chatcmpl-2\",\"choices\":[{\"delta\":{\"content\":\"split\"},\"finish_reason\":null}]}\n\n"

	// Feed the frame byte by byte: no event may surface before the line
	// completes, and exactly one message delta must surface in total.
	var events []Event
	for i := 0; i < len(full); i++ {
		got := p.Ingest([]byte{full[i]})
		if len(got) > 0 && i < len(full)-2 {
			// The frame's newline arrives at the end; deltas before that
			// mean partial framing is broken.
			t.Fatalf("event emitted at byte %d before frame completed", i)
		}
		events = append(events, got...)
	}

	if len(events) != 1 || events[0].Kind != KindMessageDelta || events[0].Text != "split" {
		t.Fatalf("events = %+v, want one message delta %q", events, "split")
	}
}

func TestParser_ChatToolCallStream(t *testing.T) {
	p, err := NewParser(format.FormatChat)
	if err != nil {
		t.Fatal(err)
	}

	chunk := "data: {\"id\":\"chatcmpl-3\",\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"id\":\"call_1\",\"type\":\"function\",\"function\":{\"name\":\"get_weather\",\"arguments\":\"\"}}]},\"finish_reason\":null}]}\n\n" +
		"data: {\"id\":\"chatcmpl-3\",\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"arguments\":\"{\\\"city\\\":\"}}]},\"finish_reason\":null}]}\n\n" +
		"data: {\"id\":\"chatcmpl-3\",\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"arguments\":\"\\\"Oslo\\\"}\"}}]},\"finish_reason\":null}]}\n\n" +
		"data: {\"id\":\"chatcmpl-3\",\"choices\":[{\"delta\":{},\"finish_reason\":\"tool_calls\"}]}\n\n" +
		"data: [DONE]\n\n"

	events := p.Ingest([]byte(chunk))

	wantKinds := []Kind{KindToolCallStart, KindToolCallArgDelta, KindToolCallArgDelta, KindToolCallEnd, KindStreamEnd}
	gotKinds := collectKinds(events)
	if len(gotKinds) != len(wantKinds) {
		t.Fatalf("kinds = %v, want %v", gotKinds, wantKinds)
	}
	for i := range wantKinds {
		if gotKinds[i] != wantKinds[i] {
			t.Fatalf("kinds = %v, want %v", gotKinds, wantKinds)
		}
	}

	if events[0].ToolCallID != "call_1" || events[0].ToolName != "get_weather" {
		t.Errorf("tool-call-start = %+v", events[0])
	}
	args := events[1].ArgDelta + events[2].ArgDelta
	if args != `{"city":"Oslo"}` {
		t.Errorf("concatenated arguments = %q", args)
	}
}

func TestParser_MalformedFrameTerminatesSequence(t *testing.T) {
	p, err := NewParser(format.FormatChat)
	if err != nil {
		t.Fatal(err)
	}

	// First a valid delta, then garbage framing.
	good := p.Ingest([]byte("data: {\"id\":\"chatcmpl-4\",\"choices\":[{\"delta\":{\"content\":\"ok\"},\"finish_reason\":null}]}\n"))
	if len(good) != 1 || good[0].Text != "ok" {
		t.Fatalf("valid frame not parsed: %+v", good)
	}

	bad := p.Ingest([]byte("data: {not json}\n"))
	if len(bad) != 1 || bad[0].Kind != KindStreamError {
		t.Fatalf("expected single stream-error event, got %+v", bad)
	}

	var malformed *MalformedFrameError
	if !errors.As(bad[0].Err, &malformed) {
		t.Fatalf("error type = %T, want MalformedFrameError", bad[0].Err)
	}

	// Already-emitted events stay valid; the parser just goes quiet.
	if extra := p.Ingest([]byte("data: {\"choices\":[]}\n")); len(extra) != 0 {
		t.Errorf("parser emitted events after stream error")
	}
	if extra := p.Finalize(); len(extra) != 0 {
		t.Errorf("finalize emitted events after stream error")
	}
}

func TestParser_FinalizeWithoutDoneMarker(t *testing.T) {
	p, err := NewParser(format.FormatChat)
	if err != nil {
		t.Fatal(err)
	}

	p.Ingest([]byte("data: {\"id\":\"chatcmpl-5\",\"choices\":[{\"delta\":{\"content\":\"partial\"},\"finish_reason\":null}]}\n"))
	events := p.Finalize()

	if len(events) != 1 || events[0].Kind != KindStreamEnd {
		t.Fatalf("finalize events = %+v, want single stream-end", events)
	}
	if extra := p.Finalize(); len(extra) != 0 {
		t.Errorf("second finalize emitted events")
	}
}

func TestParser_AnthropicStream(t *testing.T) {
	p, err := NewParser(format.FormatAnthropic)
	if err != nil {
		t.Fatal(err)
	}

	frames := []string{
		`data: {"type":"message_start","message":{"id":"msg_1","model":"claude-sonnet-4","usage":{"input_tokens":9}}}`,
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"text"}}`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi "}}`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"there"}}`,
		`data: {"type":"content_block_stop","index":0}`,
		`data: {"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"lookup"}}`,
		`data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"q\":1}"}}`,
		`data: {"type":"content_block_stop","index":1}`,
		`data: {"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":4}}`,
		`data: {"type":"message_stop"}`,
	}

	var events []Event
	for _, f := range frames {
		events = append(events, p.Ingest([]byte(f+"\n\n"))...)
	}

	var text string
	var usage *Usage
	var sawStart, sawArg, sawEnd bool
	for _, ev := range events {
		switch ev.Kind {
		case KindMessageDelta:
			text += ev.Text
		case KindToolCallStart:
			sawStart = ev.ToolCallID == "toolu_1" && ev.ToolName == "lookup"
		case KindToolCallArgDelta:
			sawArg = ev.ToolCallID == "toolu_1" && ev.ArgDelta == `{"q":1}`
		case KindToolCallEnd:
			sawEnd = ev.ToolCallID == "toolu_1"
		case KindUsage:
			usage = ev.Usage
		}
	}

	if text != "Hi there" {
		t.Errorf("text = %q", text)
	}
	if !sawStart || !sawArg || !sawEnd {
		t.Errorf("tool call events incomplete: start=%v arg=%v end=%v", sawStart, sawArg, sawEnd)
	}
	if usage == nil || usage.PromptTokens != 9 || usage.CompletionTokens != 4 || usage.TotalTokens != 13 {
		t.Errorf("usage = %+v", usage)
	}

	last := events[len(events)-1]
	if last.Kind != KindStreamEnd || last.FinishReason != "tool_calls" {
		t.Errorf("terminal event = %+v", last)
	}
}

func TestParser_AnthropicReasoningDeltas(t *testing.T) {
	p, err := NewParser(format.FormatAnthropic)
	if err != nil {
		t.Fatal(err)
	}

	events := p.Ingest([]byte(`data: {"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"hmm"}}` + "\n"))
	if len(events) != 1 || events[0].Kind != KindReasoning || events[0].Text != "hmm" {
		t.Fatalf("events = %+v, want one reasoning event", events)
	}
}

func TestParser_ResponsesStream(t *testing.T) {
	p, err := NewParser(format.FormatResponses)
	if err != nil {
		t.Fatal(err)
	}

	frames := []string{
		`data: {"type":"response.created","response":{"id":"resp_1","model":"gpt-4"}}`,
		`data: {"type":"response.output_text.delta","delta":"Hel"}`,
		`data: {"type":"response.output_text.delta","delta":"lo"}`,
		`data: {"type":"response.output_item.added","item":{"id":"fc_a","type":"function_call","call_id":"call_a","name":"fn"}}`,
		`data: {"type":"response.function_call_arguments.delta","item_id":"fc_a","delta":"{}"}`,
		`data: {"type":"response.output_item.done","item":{"id":"fc_a","type":"function_call"}}`,
		`data: {"type":"response.completed","response":{"id":"resp_1","usage":{"input_tokens":5,"output_tokens":2,"total_tokens":7,"input_tokens_details":{"cached_tokens":3}}}}`,
	}

	var events []Event
	for _, f := range frames {
		events = append(events, p.Ingest([]byte(f+"\n\n"))...)
	}

	var text string
	var usage *Usage
	for _, ev := range events {
		if ev.Kind == KindMessageDelta {
			text += ev.Text
		}
		if ev.Kind == KindUsage {
			usage = ev.Usage
		}
	}
	if text != "Hello" {
		t.Errorf("text = %q", text)
	}
	if usage == nil || usage.CachedTokens != 3 || usage.TotalTokens != 7 {
		t.Errorf("usage = %+v", usage)
	}
	if events[len(events)-1].Kind != KindStreamEnd {
		t.Errorf("terminal event = %+v", events[len(events)-1])
	}
}

func TestParseResponse_ChatPayload(t *testing.T) {
	body := []byte(`{
		"id": "chatcmpl-9",
		"model": "gpt-4",
		"choices": [{
			"index": 0,
			"message": {"role":"assistant","content":"done","tool_calls":[{"id":"call_z","type":"function","function":{"name":"fn","arguments":"{}"}}]},
			"finish_reason": "tool_calls"
		}],
		"usage": {"prompt_tokens":2,"completion_tokens":1,"total_tokens":3}
	}`)

	events, err := ParseResponse(format.FormatChat, body)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}

	wantKinds := []Kind{KindMessageDelta, KindToolCallStart, KindToolCallArgDelta, KindToolCallEnd, KindUsage, KindStreamEnd}
	gotKinds := collectKinds(events)
	if len(gotKinds) != len(wantKinds) {
		t.Fatalf("kinds = %v, want %v", gotKinds, wantKinds)
	}
	for i := range wantKinds {
		if gotKinds[i] != wantKinds[i] {
			t.Fatalf("kinds = %v, want %v", gotKinds, wantKinds)
		}
	}
}
