package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gatehouse-hq/gatehouse/pkg/accounts"
	"gatehouse-hq/gatehouse/pkg/fallback"
	"gatehouse-hq/gatehouse/pkg/format"
	"gatehouse-hq/gatehouse/pkg/modelmap"
	"gatehouse-hq/gatehouse/pkg/stream"
	"gatehouse-hq/gatehouse/pkg/upstream"
	"gatehouse-hq/gatehouse/pkg/usage"
)

// captureWriter collects streamed frames.
type captureWriter struct {
	bytes.Buffer
	flushes int
}

func (w *captureWriter) Flush() { w.flushes++ }

// captureSink records usage writes and signals each one.
type captureSink struct {
	records chan usage.Record
}

func newCaptureSink() *captureSink {
	return &captureSink{records: make(chan usage.Record, 4)}
}

func (s *captureSink) Record(_ context.Context, rec usage.Record) error {
	s.records <- rec
	return nil
}

func (s *captureSink) wait(t *testing.T) usage.Record {
	t.Helper()
	select {
	case rec := <-s.records:
		return rec
	case <-time.After(2 * time.Second):
		t.Fatal("usage record never arrived")
		return usage.Record{}
	}
}

// newTestCore assembles a full pipeline against one httptest upstream
// speaking the chat dialect.
func newTestCore(t *testing.T, upstreamURL string, sink usage.Sink, aliases map[string][]fallback.Target) *Core {
	t.Helper()

	store := accounts.NewStore(time.Minute)
	for _, a := range []accounts.Account{
		{ID: "acct-1", Provider: "openai", Credential: "sk-1"},
		{ID: "acct-2", Provider: "openai", Credential: "sk-2"},
	} {
		if err := store.Add(a); err != nil {
			t.Fatal(err)
		}
	}

	exec := upstream.NewHTTPExecutor([]upstream.ProviderConfig{{
		Name:    "openai",
		BaseURL: upstreamURL,
		Format:  format.FormatChat,
	}})

	resolver := modelmap.NewResolver("openai", aliases)
	t.Cleanup(resolver.Close)

	core, err := NewCore(CoreConfig{
		Registry:        format.NewDefaultRegistry(),
		Resolver:        resolver,
		Orchestrator:    fallback.NewOrchestrator(exec, store),
		ProviderFormats: map[string]format.Format{"openai": format.FormatChat},
		Sink:            sink,
	})
	if err != nil {
		t.Fatal(err)
	}
	return core
}

func chatCompletionBody(model, text string) []byte {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-up",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   model,
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": text},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{
			"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10,
		},
	})
	return body
}

func TestHandle_AggregatedChatRequest(t *testing.T) {
	var upstreamReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &upstreamReq)
		w.Write(chatCompletionBody("gpt-4o-2024", "Hello there"))
	}))
	defer srv.Close()

	sink := newCaptureSink()
	core := newTestCore(t, srv.URL, sink, map[string][]fallback.Target{
		"fast": {{Provider: "openai", Model: "gpt-4o-2024"}},
	})

	resp, err := core.Handle(context.Background(),
		[]byte(`{"model":"fast","messages":[{"role":"user","content":"hi"}]}`),
		false, nil)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if resp.Streamed {
		t.Error("aggregated request reported as streamed")
	}
	if resp.RequestID == "" {
		t.Error("missing request id")
	}

	var parsed format.ChatResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		t.Fatalf("response is not a chat completion: %v", err)
	}
	if len(parsed.Choices) != 1 {
		t.Fatalf("choices = %d", len(parsed.Choices))
	}
	if !strings.Contains(string(resp.Body), "Hello there") {
		t.Errorf("body = %s", resp.Body)
	}

	// The alias was rewritten to the provider-native model upstream.
	if upstreamReq["model"] != "gpt-4o-2024" {
		t.Errorf("upstream model = %v, want gpt-4o-2024", upstreamReq["model"])
	}
	if _, ok := upstreamReq["stream"]; ok {
		t.Error("non-streaming upstream request carries a stream field")
	}

	rec := sink.wait(t)
	if rec.Usage.TotalTokens != 10 {
		t.Errorf("recorded total tokens = %d, want 10", rec.Usage.TotalTokens)
	}
	if rec.Provider != "openai" || rec.Model != "gpt-4o-2024" || rec.AccountID == "" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Streamed {
		t.Error("record marked streamed for an aggregated request")
	}
}

func TestHandle_StreamedChatRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &req)
		if req["stream"] != true {
			t.Error("upstream request missing stream:true")
		}
		if _, ok := req["stream_options"]; !ok {
			t.Error("chat upstream streaming request missing stream_options")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		frames := []string{
			`{"id":"chatcmpl-s1","model":"gpt-4o-2024","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
			`{"id":"chatcmpl-s1","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
			`{"id":"chatcmpl-s1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
			`{"id":"chatcmpl-s1","choices":[],"usage":{"prompt_tokens":4,"completion_tokens":2,"total_tokens":6}}`,
		}
		for _, f := range frames {
			io.WriteString(w, "data: "+f+"\n\n")
		}
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	sink := newCaptureSink()
	core := newTestCore(t, srv.URL, sink, nil)

	var w captureWriter
	resp, err := core.Handle(context.Background(),
		[]byte(`{"model":"gpt-4o-2024","messages":[{"role":"user","content":"hi"}],"stream":true}`),
		true, &w)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !resp.Streamed || resp.Body != nil {
		t.Errorf("resp = %+v, want streamed with no body", resp)
	}

	out := w.String()
	if !strings.Contains(out, `"Hel"`) || !strings.Contains(out, `"lo"`) {
		t.Errorf("stream missing text deltas: %s", out)
	}
	if !strings.Contains(out, "chat.completion.chunk") {
		t.Errorf("stream not in chat chunk dialect: %s", out)
	}
	if !strings.HasSuffix(out, "data: [DONE]\n\n") {
		t.Errorf("stream not terminated with [DONE]: %q", out)
	}
	if w.flushes == 0 {
		t.Error("frames were never flushed")
	}

	rec := sink.wait(t)
	if !rec.Streamed || rec.Usage.TotalTokens != 6 {
		t.Errorf("record = %+v", rec)
	}
}

func TestHandle_ResponsesClientAgainstChatUpstream(t *testing.T) {
	var upstreamReq map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &upstreamReq)
		w.Write(chatCompletionBody("gpt-4o-2024", "Sure."))
	}))
	defer srv.Close()

	core := newTestCore(t, srv.URL, newCaptureSink(), nil)

	resp, err := core.Handle(context.Background(), []byte(
		`{"model":"gpt-4o-2024","instructions":"be brief","input":[{"type":"message","role":"user","content":"hi"}]}`),
		false, nil)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	// Upstream saw the chat dialect.
	if _, ok := upstreamReq["messages"]; !ok {
		t.Error("upstream request has no messages; translation did not run")
	}
	if _, ok := upstreamReq["input"]; ok {
		t.Error("responses-dialect field leaked upstream")
	}

	// The client got the responses dialect back.
	var parsed map[string]any
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		t.Fatal(err)
	}
	if parsed["object"] != "response" {
		t.Errorf("response object = %v, want response", parsed["object"])
	}
}

func TestHandle_FallbackAcrossAccounts(t *testing.T) {
	var authsSeen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		authsSeen = append(authsSeen, auth)
		if auth == "Bearer sk-1" {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"quota"}}`))
			return
		}
		w.Write(chatCompletionBody("gpt-4o-2024", "served by second account"))
	}))
	defer srv.Close()

	core := newTestCore(t, srv.URL, newCaptureSink(), nil)

	resp, err := core.Handle(context.Background(),
		[]byte(`{"model":"gpt-4o-2024","messages":[{"role":"user","content":"hi"}]}`),
		false, nil)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !strings.Contains(string(resp.Body), "second account") {
		t.Errorf("body = %s", resp.Body)
	}
	if len(authsSeen) != 2 {
		t.Errorf("upstream saw %d attempts, want 2", len(authsSeen))
	}
}

func TestHandle_AllCandidatesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	core := newTestCore(t, srv.URL, newCaptureSink(), nil)

	_, err := core.Handle(context.Background(),
		[]byte(`{"model":"gpt-4o-2024","messages":[{"role":"user","content":"hi"}]}`),
		false, nil)
	var exhausted *fallback.AllCandidatesExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("err = %v, want *AllCandidatesExhaustedError", err)
	}
}

func TestHandle_BadRequests(t *testing.T) {
	core := newTestCore(t, "http://127.0.0.1:0", newCaptureSink(), nil)

	tests := []struct {
		name string
		body string
	}{
		{"no dialect", `{"model":"gpt-4"}`},
		{"no model", `{"messages":[{"role":"user","content":"hi"}]}`},
		{"invalid json", `{"model":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := core.Handle(context.Background(), []byte(tt.body), false, nil)
			var bad *BadRequestError
			if !errors.As(err, &bad) {
				t.Fatalf("err = %v, want *BadRequestError", err)
			}
		})
	}
}

// severedStream yields some bytes and then fails, simulating an upstream
// connection dying mid-response.
type severedStream struct {
	data []byte
	read bool
}

func (s *severedStream) Read(p []byte) (int, error) {
	if !s.read {
		s.read = true
		return copy(p, s.data), nil
	}
	return 0, errors.New("connection reset by peer")
}

func (s *severedStream) Close() error { return nil }

// severingExecutor hands back a live stream that dies partway through.
type severingExecutor struct{}

func (severingExecutor) Execute(ctx context.Context, account fallback.Account, req fallback.Request) (*fallback.Result, error) {
	return &fallback.Result{
		StatusCode: 200,
		Stream: &severedStream{data: []byte(
			"data: {\"id\":\"chatcmpl-x\",\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\",\"content\":\"partial\"}}]}\n\n")},
		Account: account,
		Target:  fallback.Target{Provider: req.Provider, Model: req.Model},
	}, nil
}

func (severingExecutor) RefreshCredential(ctx context.Context, account fallback.Account) (string, error) {
	return account.Credential, nil
}

func TestHandle_MidStreamFailureTerminatesStream(t *testing.T) {
	store := accounts.NewStore(time.Minute)
	if err := store.Add(accounts.Account{ID: "a1", Provider: "openai", Credential: "sk"}); err != nil {
		t.Fatal(err)
	}
	resolver := modelmap.NewResolver("openai", nil)
	defer resolver.Close()

	core, err := NewCore(CoreConfig{
		Registry:     format.NewDefaultRegistry(),
		Resolver:     resolver,
		Orchestrator: fallback.NewOrchestrator(severingExecutor{}, store),
	})
	if err != nil {
		t.Fatal(err)
	}

	var w captureWriter
	resp, err := core.Handle(context.Background(),
		[]byte(`{"model":"gpt-4","messages":[{"role":"user","content":"hi"}],"stream":true}`),
		true, &w)
	if err != nil {
		t.Fatalf("mid-stream failure must not surface as a handler error: %v", err)
	}
	if !resp.Streamed {
		t.Error("response not marked streamed")
	}

	out := w.String()
	// The partial content reached the client, followed by a terminal error
	// frame; the stream was not silently truncated.
	if !strings.Contains(out, "partial") {
		t.Errorf("partial content missing: %s", out)
	}
	if !strings.Contains(out, "error") {
		t.Errorf("no terminal error frame: %s", out)
	}
	if !strings.HasSuffix(out, "data: [DONE]\n\n") {
		t.Errorf("terminated stream missing [DONE]: %q", out)
	}
}

func TestHandle_StreamingWithoutWriterRejected(t *testing.T) {
	core := newTestCore(t, "http://127.0.0.1:0", newCaptureSink(), nil)
	if _, err := core.Handle(context.Background(),
		[]byte(`{"model":"m","messages":[{"role":"user","content":"hi"}]}`),
		true, nil); err == nil {
		t.Fatal("expected error for streaming without a writer")
	}
}

func TestNewCore_RequiresCollaborators(t *testing.T) {
	if _, err := NewCore(CoreConfig{}); err == nil {
		t.Fatal("expected error for missing collaborators")
	}
}

// Ensure the stream package's canonical kinds drive the pipeline end to end:
// a usage-only record still extracts through usage.Extract.
func TestRecordUsage_ExtractsFromEvents(t *testing.T) {
	events := []stream.Event{
		{Kind: stream.KindMessageDelta, Text: "x"},
		{Kind: stream.KindUsage, Usage: &stream.Usage{PromptTokens: 2, CompletionTokens: 1, TotalTokens: 3}},
		{Kind: stream.KindStreamEnd},
	}
	got := usage.Extract(events)
	if got.TotalTokens != 3 {
		t.Errorf("TotalTokens = %d, want 3", got.TotalTokens)
	}
}
