// Package stream reassembles the LLM handle's fragmented tool-call chunk
// events into whole workflow.EventToolCalls events, and frames
// workflow.Event values as SSE. Grounded on
// original_source/src/core/graph/stream.py's ToolCallChunksAssembler and
// StreamMessageProcessor — the original's async-generator dispatch becomes
// an explicit Idle/Assembling finite state machine here.
package stream

import (
	"encoding/json"
	"strings"

	"github.com/devyk/kaflow-go/internal/workflow"
)

// assemblerState is the FSM's two states (spec.md §4.8).
type assemblerState int

const (
	stateIdle assemblerState = iota
	stateAssembling
)

// Assembler consumes a sequence of workflow.Event values — one per LLM
// stream chunk — and re-emits them, collapsing any run of partial
// tool-call chunks into a single, complete EventToolCalls event once the
// chunk sequence reaches a finish_reason of "tool_calls" (scenario E).
//
// Not safe for concurrent use: one Assembler per in-flight agent call,
// matching one ToolCallChunksAssembler per StreamMessageProcessor instance
// in the original.
type Assembler struct {
	state    assemblerState
	current  workflow.ToolCall
	argsBuf  strings.Builder
	threadID string
	agent    string
	id       string
}

// NewAssembler builds an idle Assembler.
func NewAssembler() *Assembler {
	return &Assembler{state: stateIdle}
}

// Feed processes one raw event and returns the events that should actually
// be forwarded to the client: zero while chunks are being buffered, one
// completed EventToolCalls when assembly finishes, or the input event
// unchanged when it doesn't need reassembly at all.
func (a *Assembler) Feed(ev workflow.Event) []workflow.Event {
	switch ev.Type {
	case workflow.EventToolCallChunks:
		return a.feedChunk(ev)
	case workflow.EventToolCalls:
		return a.feedToolCalls(ev)
	case workflow.EventMessageChunk:
		return a.feedMessageChunk(ev)
	default:
		return []workflow.Event{ev}
	}
}

func (a *Assembler) feedChunk(ev workflow.Event) []workflow.Event {
	if a.state == stateIdle {
		if !a.shouldStartFromChunks(ev) {
			return []workflow.Event{ev}
		}
		a.start(ev)
		return nil
	}
	a.accumulate(ev)
	return nil
}

func (a *Assembler) feedToolCalls(ev workflow.Event) []workflow.Event {
	if a.state == stateAssembling {
		if a.shouldFinalize(ev) {
			return a.finalize(ev)
		}
		a.accumulate(ev)
		return nil
	}

	if a.hasIncompleteCall(ev) {
		a.start(ev)
		return nil
	}
	return []workflow.Event{ev}
}

func (a *Assembler) feedMessageChunk(ev workflow.Event) []workflow.Event {
	if a.state == stateAssembling && ev.FinishReason == "tool_calls" {
		return a.finalize(ev)
	}
	return []workflow.Event{ev}
}

func (a *Assembler) shouldStartFromChunks(ev workflow.Event) bool {
	for _, tc := range ev.ToolCalls {
		if tc.Name != "" && tc.Name != "null" {
			return true
		}
	}
	return a.hasIncompleteCall(ev)
}

func (a *Assembler) hasIncompleteCall(ev workflow.Event) bool {
	for _, tc := range ev.ToolCalls {
		if tc.Name == "" || tc.Name == "null" || len(tc.Args) == 0 {
			return true
		}
	}
	return len(ev.ToolCalls) > 0 && len(ev.ToolCallChunks) > 0
}

func (a *Assembler) shouldFinalize(ev workflow.Event) bool {
	if len(ev.ToolCalls) == 0 {
		return false
	}
	if len(ev.ToolCallChunks) == 0 {
		return true
	}
	for _, tc := range ev.ToolCalls {
		if len(tc.Args) > 0 {
			return true
		}
	}
	return false
}

func (a *Assembler) start(ev workflow.Event) {
	a.state = stateAssembling
	a.argsBuf.Reset()
	a.threadID = ev.ThreadID
	a.agent = ev.Agent
	a.id = ev.ID

	a.current = workflow.ToolCall{Type: "function"}
	if len(ev.ToolCalls) > 0 {
		first := ev.ToolCalls[0]
		a.current.ID = first.ID
		if first.Name != "" {
			a.current.Name = first.Name
		}
	}
	for i, c := range ev.ToolCallChunks {
		if c.ID != "" {
			a.current.ID = c.ID
		}
		if c.Name != "" && c.Name != "null" {
			a.current.Name = c.Name
		}
		if i == 0 && c.ArgsFragment != "" {
			a.argsBuf.WriteString(c.ArgsFragment)
		}
	}
	if len(ev.ToolCallChunks) > 1 {
		for _, c := range ev.ToolCallChunks[1:] {
			a.argsBuf.WriteString(c.ArgsFragment)
		}
	}
}

func (a *Assembler) accumulate(ev workflow.Event) {
	for _, c := range ev.ToolCallChunks {
		a.argsBuf.WriteString(c.ArgsFragment)
	}
}

func (a *Assembler) finalize(ev workflow.Event) []workflow.Event {
	if len(ev.ToolCalls) > 0 {
		final := ev.ToolCalls[0]
		if a.current.Name == "" && final.Name != "" {
			a.current.Name = final.Name
		}
		if a.current.ID == "" && final.ID != "" {
			a.current.ID = final.ID
		}
	}

	raw := a.argsBuf.String()
	args := map[string]any{}
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			args = map[string]any{"raw_args": raw}
		}
	}
	a.current.Args = args

	out := workflow.Event{
		Type:         workflow.EventToolCalls,
		ThreadID:     a.threadID,
		Agent:        a.agent,
		ID:           a.id,
		Role:         "assistant",
		ToolCalls:    []workflow.ToolCall{a.current},
		FinishReason: "tool_calls",
	}
	a.reset()
	return []workflow.Event{out}
}

func (a *Assembler) reset() {
	a.state = stateIdle
	a.current = workflow.ToolCall{}
	a.argsBuf.Reset()
	a.threadID, a.agent, a.id = "", "", ""
}

// CleanToolCallID strips duplicated, concatenated tool_call_id strings some
// providers emit when fragments are echoed more than once: OpenAI-style
// "call_xxx" repeated as "call_xxxcall_xxx", or a repeated 32-hex-char id.
// Idempotent — cleaning an already-clean id returns it unchanged (spec.md
// §8 property 5), grounded on stream.py's _clean_tool_call_id.
func CleanToolCallID(raw string) string {
	if raw == "" {
		return raw
	}
	if strings.HasPrefix(raw, "call_") {
		parts := strings.Split(raw, "call_")
		if len(parts) > 2 {
			return "call_" + parts[1]
		}
		return raw
	}
	if len(raw) >= 64 && len(raw)%32 == 0 {
		first32 := raw[:32]
		if strings.Repeat(first32, len(raw)/32) == raw {
			return first32
		}
	}
	return raw
}
