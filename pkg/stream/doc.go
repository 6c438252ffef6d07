// Package stream normalizes upstream chat responses into a canonical event
// sequence and re-serializes that sequence for the client.
//
// A Parser consumes raw upstream bytes (SSE chunks or a single JSON payload)
// and produces canonical events. It buffers partial frames, so one upstream
// chunk may complete zero, one, or many events, and one event may span
// several chunks. The produced sequence is finite and non-restartable; it is
// consumed exactly once per request.
//
// A Renderer performs the mirror operation: it frames canonical events as SSE
// in the client's dialect for streaming clients, or folds the whole sequence
// into one final response body for clients that asked for a non-streamed
// answer from a streaming upstream.
//
// A malformed upstream frame terminates the sequence with a stream-error
// event. Events already emitted before the error stay valid; nothing already
// sent to the client is retracted.
package stream
