package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gatehouse-hq/gatehouse/pkg/fallback"
	"gatehouse-hq/gatehouse/pkg/format"
	"gatehouse-hq/gatehouse/pkg/modelmap"
	"gatehouse-hq/gatehouse/pkg/stream"
	"gatehouse-hq/gatehouse/pkg/usage"
)

const (
	// streamReadBufferSize is the chunk size for draining upstream streams.
	streamReadBufferSize = 4096

	// usageRecordTimeout bounds the fire-and-forget usage write.
	usageRecordTimeout = 5 * time.Second
)

// StreamWriter receives rendered SSE frames as they are produced. Flush is
// called after every write so the client sees bytes immediately.
type StreamWriter interface {
	io.Writer
	Flush()
}

// Response is the outcome of one handled request.
type Response struct {
	// RequestID is the gateway-assigned request identifier
	RequestID string

	// Body is the aggregated response body (nil when streamed)
	Body []byte

	// Streamed reports whether the response was written to the StreamWriter
	Streamed bool
}

// Core wires the pipeline: registry edges for translation, resolver for the
// model chain, orchestrator for execution, and the usage sink. Safe for
// concurrent use.
type Core struct {
	registry *format.Registry
	resolver *modelmap.Resolver
	orch     *fallback.Orchestrator

	// formats maps provider names to the dialect they speak upstream.
	// Unlisted providers default to chat completions.
	formats map[string]format.Format

	sink   usage.Sink
	logger *slog.Logger
}

// CoreConfig collects the Core's collaborators.
type CoreConfig struct {
	// Registry supplies translation edges. Required.
	Registry *format.Registry

	// Resolver maps client model names to fallback chains. Required.
	Resolver *modelmap.Resolver

	// Orchestrator executes the fallback loop. Required.
	Orchestrator *fallback.Orchestrator

	// ProviderFormats maps provider names to upstream dialects.
	ProviderFormats map[string]format.Format

	// Sink records usage. Nil means usage is discarded.
	Sink usage.Sink
}

// NewCore creates the request pipeline.
func NewCore(cfg CoreConfig) (*Core, error) {
	if cfg.Registry == nil || cfg.Resolver == nil || cfg.Orchestrator == nil {
		return nil, fmt.Errorf("chat: registry, resolver, and orchestrator are required")
	}
	sink := cfg.Sink
	if sink == nil {
		sink = usage.NopSink{}
	}
	return &Core{
		registry: cfg.Registry,
		resolver: cfg.Resolver,
		orch:     cfg.Orchestrator,
		formats:  cfg.ProviderFormats,
		sink:     sink,
		logger:   slog.Default().With("component", "chat"),
	}, nil
}

// Handle runs one client request through the pipeline. For streaming
// requests the rendered frames are written to w as they arrive and the
// returned Response carries no body; for aggregated requests w is unused.
//
// A failure before the first byte reaches the client comes back as an error
// so the caller can emit a proper error status. A failure after streaming
// has begun is rendered into the stream as a terminal error frame instead;
// the HTTP status is already on the wire by then.
func (c *Core) Handle(ctx context.Context, rawBody []byte, wantStream bool, w StreamWriter) (*Response, error) {
	requestID := uuid.NewString()
	logger := c.logger.With("request_id", requestID)

	source, err := DetectFormat(rawBody)
	if err != nil {
		return nil, err
	}
	shape, err := parseShape(rawBody)
	if err != nil {
		return nil, err
	}
	if wantStream && w == nil {
		return nil, fmt.Errorf("chat: streaming requested without a stream writer")
	}

	resolution, err := c.resolver.Resolve(ctx, shape.Model)
	if err != nil {
		return nil, &BadRequestError{Message: "cannot resolve model", Cause: err}
	}

	logger.Debug("request accepted",
		"dialect", source, "model", shape.Model,
		"targets", len(resolution.Targets), "stream", wantStream)

	result, attempts, err := c.orch.Run(ctx, resolution.Targets, func(t fallback.Target) (fallback.Request, error) {
		body, err := c.translateFor(source, t, rawBody, wantStream)
		if err != nil {
			return fallback.Request{}, err
		}
		return fallback.Request{
			Provider: t.Provider,
			Model:    t.Model,
			Body:     body,
			Stream:   wantStream,
		}, nil
	})
	if err != nil {
		logger.Warn("request failed", "attempts", len(attempts), "error", err)
		return nil, err
	}
	logger.Info("request served",
		"provider", result.Target.Provider, "model", result.Target.Model,
		"account", result.Account.ID, "attempts", len(attempts))

	if result.Streaming() {
		return c.handleStream(ctx, requestID, source, result, w)
	}
	return c.handleAggregate(ctx, requestID, source, result)
}

// translateFor builds the provider-native body for one tier: registry edge
// for (source, provider dialect), then the routing rewrites the translation
// must not know about (target model, streaming mode).
func (c *Core) translateFor(source format.Format, t fallback.Target, rawBody []byte, wantStream bool) ([]byte, error) {
	providerFormat := c.providerFormat(t.Provider)
	edge, err := c.registry.Lookup(source, providerFormat)
	if err != nil {
		return nil, err
	}
	body, err := edge.Request(rawBody)
	if err != nil {
		return nil, &BadRequestError{Message: "request translation failed", Cause: err}
	}
	return rewriteForTarget(body, t.Model, wantStream, providerFormat)
}

func (c *Core) providerFormat(provider string) format.Format {
	if f, ok := c.formats[provider]; ok {
		return f
	}
	return format.FormatChat
}

// rewriteForTarget pins the provider-native model name and streaming mode
// onto a translated body. Chat-dialect upstreams additionally get
// stream_options.include_usage so the final chunk carries token counts.
func rewriteForTarget(body []byte, model string, wantStream bool, providerFormat format.Format) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("chat: reparse translated body: %w", err)
	}

	rawModel, err := json.Marshal(model)
	if err != nil {
		return nil, err
	}
	fields["model"] = rawModel

	if wantStream {
		fields["stream"] = json.RawMessage("true")
		if providerFormat == format.FormatChat {
			fields["stream_options"] = json.RawMessage(`{"include_usage":true}`)
		}
	} else {
		delete(fields, "stream")
		delete(fields, "stream_options")
	}

	return json.Marshal(fields)
}

// handleStream drains the upstream stream through the parser and renderer,
// flushing each rendered frame as it is produced.
func (c *Core) handleStream(ctx context.Context, requestID string, source format.Format, result *fallback.Result, w StreamWriter) (*Response, error) {
	defer result.Stream.Close()

	parser, err := stream.NewParser(c.providerFormat(result.Target.Provider))
	if err != nil {
		return nil, err
	}
	renderer, err := stream.NewRenderer(source, result.Target.Model)
	if err != nil {
		return nil, err
	}

	var collected []stream.Event
	emit := func(events []stream.Event) error {
		for _, ev := range events {
			collected = append(collected, ev)
			frames, err := renderer.RenderEvent(ev)
			if err != nil {
				return err
			}
			if len(frames) == 0 {
				continue
			}
			if _, err := w.Write(frames); err != nil {
				return err
			}
			w.Flush()
		}
		return nil
	}

	buf := make([]byte, streamReadBufferSize)
	for {
		if err := ctx.Err(); err != nil {
			c.logger.Debug("client disconnected mid-stream", "request_id", requestID)
			return &Response{RequestID: requestID, Streamed: true}, nil
		}

		n, readErr := result.Stream.Read(buf)
		if n > 0 {
			if err := emit(parser.Ingest(buf[:n])); err != nil {
				return nil, err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			// The upstream connection died mid-stream. The status line is
			// long gone, so the failure is rendered into the stream as a
			// terminal error frame rather than retried.
			c.logger.Warn("upstream stream severed",
				"request_id", requestID, "error", readErr)
			if err := emit([]stream.Event{{Kind: stream.KindStreamError, Err: readErr}}); err != nil {
				return nil, err
			}
			c.recordUsage(requestID, result, true, collected)
			return &Response{RequestID: requestID, Streamed: true}, nil
		}
	}

	if err := emit(parser.Finalize()); err != nil {
		return nil, err
	}

	c.recordUsage(requestID, result, true, collected)
	return &Response{RequestID: requestID, Streamed: true}, nil
}

// handleAggregate normalizes a buffered upstream body and renders it in the
// client's dialect.
func (c *Core) handleAggregate(ctx context.Context, requestID string, source format.Format, result *fallback.Result) (*Response, error) {
	events, err := stream.ParseResponse(c.providerFormat(result.Target.Provider), result.Body)
	if err != nil {
		return nil, fmt.Errorf("chat: normalize upstream response: %w", err)
	}

	body, err := stream.Aggregate(events, source)
	if err != nil {
		return nil, fmt.Errorf("chat: render response: %w", err)
	}

	c.recordUsage(requestID, result, false, events)
	return &Response{RequestID: requestID, Body: body}, nil
}

// recordUsage writes one usage record off the request path. Sink failures
// are logged and never surface to the client.
func (c *Core) recordUsage(requestID string, result *fallback.Result, streamed bool, events []stream.Event) {
	tokens := usage.Extract(events)
	rec := usage.Record{
		RequestID:   requestID,
		Provider:    result.Target.Provider,
		Model:       result.Target.Model,
		AccountID:   result.Account.ID,
		Streamed:    streamed,
		Usage:       tokens,
		CompletedAt: time.Now(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), usageRecordTimeout)
		defer cancel()
		if err := c.sink.Record(ctx, rec); err != nil {
			c.logger.Warn("usage record failed",
				"request_id", requestID, "error", err)
		}
	}()
}
