package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"gatehouse-hq/gatehouse/pkg/chat"
	"gatehouse-hq/gatehouse/pkg/fallback"
	"gatehouse-hq/gatehouse/pkg/format"
	"gatehouse-hq/gatehouse/pkg/telemetry/logging"
)

// maxRequestBodyBytes caps client request bodies.
const maxRequestBodyBytes = 10 << 20

// streamRequest carries just enough of the body to decide streaming mode.
type streamRequest struct {
	Stream bool `json:"stream"`
}

// flushWriter adapts http.ResponseWriter to the pipeline's StreamWriter and
// tracks whether the status line is already on the wire.
type flushWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	wrote   bool
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	fw.wrote = true
	return fw.w.Write(p)
}

func (fw *flushWriter) Flush() {
	if fw.flusher != nil {
		fw.flusher.Flush()
	}
}

// handleCompletion serves both completion endpoints; the endpoint label only
// feeds metrics, the pipeline detects the dialect from the body itself.
func (s *Server) handleCompletion(endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed", "invalid_request_error")
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body", "invalid_request_error")
			return
		}

		var sr streamRequest
		json.Unmarshal(body, &sr)

		start := time.Now()
		fw := &flushWriter{w: w}
		if sr.Stream {
			if flusher, ok := w.(http.Flusher); ok {
				fw.flusher = flusher
			}
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
		}

		resp, err := s.core.Handle(r.Context(), body, sr.Stream, fw)

		status := http.StatusOK
		switch {
		case err != nil && fw.wrote:
			// The stream already carried a terminal error frame; the status
			// line is long gone.
		case err != nil:
			status = errorStatus(err)
			// Clear the streaming headers set optimistically above.
			w.Header().Del("Content-Type")
			w.Header().Del("Cache-Control")
			writeError(w, status, logging.RedactString(err.Error()), errorType(status))
		case !resp.Streamed:
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Request-Id", resp.RequestID)
			w.Write(resp.Body)
		}

		if s.metrics != nil {
			s.metrics.RecordRequest(endpoint, sr.Stream, strconv.Itoa(status), time.Since(start))
		}
	}
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// errorStatus maps pipeline errors onto HTTP statuses.
func errorStatus(err error) int {
	var bad *chat.BadRequestError
	var unsupported *format.UnsupportedConversionError
	var exhausted *fallback.AllCandidatesExhaustedError

	switch {
	case errors.As(err, &bad), errors.As(err, &unsupported):
		return http.StatusBadRequest
	case errors.As(err, &exhausted):
		// 429 when quota ended the run, 502 for everything else.
		if exhausted.Last() == fallback.OutcomeAccountFatal {
			return http.StatusTooManyRequests
		}
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	}
	return http.StatusBadGateway
}

// statusClientClosedRequest is the conventional non-standard status for a
// client that went away mid-request.
const statusClientClosedRequest = 499

func errorType(status int) string {
	if status >= 400 && status < 500 {
		return "invalid_request_error"
	}
	return "upstream_error"
}

// writeError emits an OpenAI-style error envelope.
func writeError(w http.ResponseWriter, status int, message, errType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"message": message,
			"type":    errType,
		},
	})
}
