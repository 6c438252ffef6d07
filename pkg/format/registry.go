package format

import "fmt"

// RequestTransform converts a request body from one dialect to another.
// Implementations must be pure: the input slice is never mutated and the same
// input always yields the same output.
type RequestTransform func(body []byte) ([]byte, error)

// ResponseTransform converts a response body produced in the edge's target
// dialect back into the edge's source dialect. It is nil for request-only
// edges (the source format is never a response target).
type ResponseTransform func(body []byte) ([]byte, error)

// TranslationEdge is one directed translation between two formats.
type TranslationEdge struct {
	// From is the source format
	From Format

	// To is the target format
	To Format

	// Request transforms a From-dialect request into a To-dialect request
	Request RequestTransform

	// Response transforms a To-dialect response back into a From-dialect
	// response. May be nil for request-only edges.
	Response ResponseTransform
}

type edgeKey struct {
	from Format
	to   Format
}

// Registry holds the translation edge table. It is populated during process
// initialization via Register and read-only thereafter; concurrent lookups
// require no synchronization.
type Registry struct {
	edges map[edgeKey]TranslationEdge
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{edges: make(map[edgeKey]TranslationEdge)}
}

// Register adds an edge to the registry. It panics on a duplicate ordered
// pair, a missing request transform, or an unknown format tag: all three are
// startup configuration bugs, not runtime conditions.
func (r *Registry) Register(edge TranslationEdge) {
	if !edge.From.Valid() || !edge.To.Valid() {
		panic(fmt.Sprintf("format: register edge with unknown format %q -> %q", edge.From, edge.To))
	}
	if edge.From == edge.To {
		panic(fmt.Sprintf("format: identity edge %q is implicit and must not be registered", edge.From))
	}
	if edge.Request == nil {
		panic(fmt.Sprintf("format: edge %q -> %q has no request transform", edge.From, edge.To))
	}

	key := edgeKey{from: edge.From, to: edge.To}
	if _, exists := r.edges[key]; exists {
		panic(fmt.Sprintf("format: duplicate edge %q -> %q", edge.From, edge.To))
	}
	r.edges[key] = edge
}

// Lookup returns the edge for the ordered pair (from, to).
//
// The identity pair returns a passthrough edge that copies bodies unchanged.
// Any other unregistered pair returns an UnsupportedConversionError.
func (r *Registry) Lookup(from, to Format) (TranslationEdge, error) {
	if from == to {
		return TranslationEdge{
			From:     from,
			To:       to,
			Request:  passthrough,
			Response: passthrough,
		}, nil
	}

	edge, ok := r.edges[edgeKey{from: from, to: to}]
	if !ok {
		return TranslationEdge{}, &UnsupportedConversionError{From: from, To: to}
	}
	return edge, nil
}

// passthrough returns a copy of the body so callers can never alias the
// original request buffer through an identity edge.
func passthrough(body []byte) ([]byte, error) {
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}

// NewDefaultRegistry creates a registry with all built-in edges registered:
//
//	openai-responses -> openai-chat  (with reverse response transform)
//	openai-chat      -> openai-responses  (with reverse response transform)
//	openai-chat      -> anthropic  (with reverse response transform)
//	openai-responses -> anthropic  (composed through openai-chat)
func NewDefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(TranslationEdge{
		From:     FormatResponses,
		To:       FormatChat,
		Request:  ResponsesToChatRequest,
		Response: ChatToResponsesResponse,
	})
	r.Register(TranslationEdge{
		From:     FormatChat,
		To:       FormatResponses,
		Request:  ChatToResponsesRequest,
		Response: ResponsesToChatResponse,
	})
	r.Register(TranslationEdge{
		From:     FormatChat,
		To:       FormatAnthropic,
		Request:  ChatToAnthropicRequest,
		Response: AnthropicToChatResponse,
	})
	r.Register(TranslationEdge{
		From:     FormatResponses,
		To:       FormatAnthropic,
		Request:  compose(ResponsesToChatRequest, ChatToAnthropicRequest),
		Response: compose(AnthropicToChatResponse, ChatToResponsesResponse),
	})

	return r
}

// compose chains two transforms left to right.
func compose(first, second func([]byte) ([]byte, error)) func([]byte) ([]byte, error) {
	return func(body []byte) ([]byte, error) {
		mid, err := first(body)
		if err != nil {
			return nil, err
		}
		return second(mid)
	}
}
