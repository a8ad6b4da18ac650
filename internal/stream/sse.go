package stream

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/devyk/kaflow-go/internal/kflog"
	"github.com/devyk/kaflow-go/internal/workflow"
)

// SSEWriter frames workflow.Event values as two-line "event: ...\ndata:
// ...\n\n" SSE records over an http.ResponseWriter, grounded on
// Jint8888-Pocket-Omega's internal/web/sse.go sseWriter.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter sets the SSE response headers and returns a writer, or nil
// if the underlying ResponseWriter doesn't support flushing.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return nil
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSEWriter{w: w, flusher: flusher}
}

// sseEventPayload is the wire shape of one SSE "data:" line, matching the
// original's event_stream_message dict fields.
type sseEventPayload struct {
	ThreadID         string                     `json:"thread_id,omitempty"`
	Agent            string                     `json:"agent,omitempty"`
	ID               string                     `json:"id,omitempty"`
	Role             string                     `json:"role,omitempty"`
	Content          string                     `json:"content,omitempty"`
	ReasoningContent string                     `json:"reasoning_content,omitempty"`
	FinishReason     string                     `json:"finish_reason,omitempty"`
	ToolCalls        []sseToolCallPayload       `json:"tool_calls,omitempty"`
	ToolCallID       string                     `json:"tool_call_id,omitempty"`
	Options          []workflow.InterruptOption `json:"options,omitempty"`
	Error            string                     `json:"error,omitempty"`
	GraphID          int                        `json:"graph_id,omitempty"`
}

type sseToolCallPayload struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
	Type string         `json:"type"`
}

// Send writes ev as one SSE record and flushes. Returns false if the write
// failed (the client most likely disconnected), matching sseWriter.Send's
// boolean "keep going?" contract.
func (s *SSEWriter) Send(ev workflow.Event) bool {
	payload := sseEventPayload{
		ThreadID:         ev.ThreadID,
		Agent:            ev.Agent,
		ID:               ev.ID,
		Role:             ev.Role,
		Content:          ev.Content,
		ReasoningContent: ev.ReasoningContent,
		FinishReason:     ev.FinishReason,
		ToolCallID:       ev.ToolCallID,
		Options:          ev.Options,
		Error:            ev.Error,
		GraphID:          ev.GraphID,
	}
	for _, tc := range ev.ToolCalls {
		payload.ToolCalls = append(payload.ToolCalls, sseToolCallPayload{
			ID: tc.ID, Name: tc.Name, Args: tc.Args, Type: tc.Type,
		})
	}

	data, err := json.Marshal(payload)
	if err != nil {
		kflog.Warn("stream: sse marshal error: %v", err)
		return false
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		kflog.Warn("stream: sse write error (client disconnected?): %v", err)
		return false
	}
	s.flusher.Flush()
	return true
}
