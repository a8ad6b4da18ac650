package workflow

import "context"

// EventType enumerates the SSE event kinds the execution engine can emit,
// per spec.md §4.7/§6: graph_start, interrupt, tool_call_chunks,
// tool_calls, tool_call_result, message_chunk, error, cancelled, graph_end.
type EventType string

const (
	EventGraphStart     EventType = "graph_start"
	EventInterrupt      EventType = "interrupt"
	EventToolCallChunks EventType = "tool_call_chunks"
	EventToolCalls      EventType = "tool_calls"
	EventToolCallResult EventType = "tool_call_result"
	EventMessageChunk   EventType = "message_chunk"
	EventError          EventType = "error"
	EventCancelled      EventType = "cancelled"
	EventGraphEnd       EventType = "graph_end"
)

// InterruptOption is one choice offered by an "interrupt" event.
type InterruptOption struct {
	Text  string `json:"text"`
	Value string `json:"value"`
}

// ToolCallChunk is one partial fragment of a still-in-progress tool call,
// as a streaming-capable LLM backend would emit it (spec.md §4.8 scenario
// E). internal/llmhandle's current go-openai-backed Model always returns
// whole completions, so BuildAgentNode never produces these itself today;
// the type and internal/stream.Assembler exist so a future token-streaming
// backend has somewhere to plug in without changing the SSE contract.
type ToolCallChunk struct {
	ID           string
	Name         string
	ArgsFragment string
}

// Event is one node-or-engine-level occurrence surfaced to the Stream
// Assembler. Node builders emit these through the EventSink installed in
// ctx by the engine; the assembler reassembles fragmented tool calls and
// frames the result as SSE (spec.md §4.8).
type Event struct {
	Type             EventType
	ThreadID         string
	Agent            string
	ID               string
	Role             string
	Content          string
	ReasoningContent string
	FinishReason     string
	ToolCalls        []ToolCall
	ToolCallChunks   []ToolCallChunk
	ToolCallID       string
	Options          []InterruptOption
	Error            string
	GraphID          int
}

// EventSink receives engine/node events during a streaming run.
type EventSink func(Event)

type eventSinkKey struct{}

// WithEventSink installs sink into ctx; node builders retrieve it via Emit.
// A nil sink (e.g. during a unary Invoke) makes Emit a no-op.
func WithEventSink(ctx context.Context, sink EventSink) context.Context {
	return context.WithValue(ctx, eventSinkKey{}, sink)
}

// Emit delivers ev to the sink installed in ctx, if any.
func Emit(ctx context.Context, ev Event) {
	if sink, _ := ctx.Value(eventSinkKey{}).(EventSink); sink != nil {
		sink(ev)
	}
}
