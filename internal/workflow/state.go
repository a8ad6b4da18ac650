// Package workflow builds and compiles a Protocol's nodes into a runnable
// graph, driving the teacher's generic graph.StateGraph[workflow.State]
// directly rather than forking it. Grounded on
// original_source/src/core/graph/{node_factory,graph_builder}.py for
// semantics and graph/state_graph_typed.go for the Go execution substrate.
package workflow

import (
	"fmt"
	"strings"
	"time"
)

// Message is one shared-state chat turn. Role mirrors the original's
// Human/AI/System/Tool message kinds.
type Message struct {
	Role             string         `json:"role"`
	Content          string         `json:"content"`
	ToolCalls        []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID       string         `json:"tool_call_id,omitempty"`
	AdditionalKwargs map[string]any `json:"additional_kwargs,omitempty"`
}

const (
	RoleHuman  = "human"
	RoleAI     = "ai"
	RoleSystem = "system"
	RoleTool   = "tool"
)

// ToolCall is one LLM-requested tool invocation.
type ToolCall struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Args map[string]any `json:"args"`
	Type string `json:"type"`
}

// NodeOutput is the per-node record stored under state["node_outputs"].
type NodeOutput struct {
	Status           string         `json:"status"`
	Outputs          map[string]any `json:"outputs"`
	Error            string         `json:"error,omitempty"`
	LoopCount        int            `json:"loop_count,omitempty"`
	ConditionResults map[string]bool `json:"condition_results,omitempty"`
	NodeType         string         `json:"node_type,omitempty"`
}

// State is the shared mutable execution state threaded through every node,
// represented as map[string]any (spec.md §3, SPEC_FULL.md §3: "matching the
// original Python dict-based state so IO Resolver path semantics translate
// directly").
type State map[string]any

// Known top-level state keys.
const (
	KeyMessages      = "messages"
	KeyUserInput     = "user_input"
	KeyCurrentStep   = "current_step"
	KeyToolResults   = "tool_results"
	KeyFinalResponse = "final_response"
	KeyContext       = "context"
	KeyNodeOutputs   = "node_outputs"
	KeyGotoNode      = "_goto_node"
	KeyThreadID      = "thread_id"
)

// NewState builds the initial shared state for a request.
func NewState(userInput string) State {
	return State{
		KeyMessages:      []Message{},
		KeyUserInput:     userInput,
		KeyCurrentStep:   "",
		KeyToolResults:   map[string]any{},
		KeyFinalResponse: "",
		KeyContext:       map[string]any{},
		KeyNodeOutputs:   map[string]NodeOutput{},
	}
}

// ThreadID returns state["thread_id"].
func (s State) ThreadID() string {
	v, _ := s[KeyThreadID].(string)
	return v
}

// SetThreadID sets state["thread_id"].
func (s State) SetThreadID(id string) { s[KeyThreadID] = id }

// Messages returns state["messages"], defaulting to an empty slice.
func (s State) Messages() []Message {
	v, _ := s[KeyMessages].([]Message)
	return v
}

// SetMessages overwrites state["messages"].
func (s State) SetMessages(msgs []Message) { s[KeyMessages] = msgs }

// AppendMessage appends one message to state["messages"].
func (s State) AppendMessage(m Message) {
	s[KeyMessages] = append(s.Messages(), m)
}

// UserInput returns state["user_input"].
func (s State) UserInput() string {
	v, _ := s[KeyUserInput].(string)
	return v
}

// Context returns state["context"], defaulting to an empty map.
func (s State) Context() map[string]any {
	v, ok := s[KeyContext].(map[string]any)
	if !ok {
		v = map[string]any{}
		s[KeyContext] = v
	}
	return v
}

// NodeOutputs returns state["node_outputs"], defaulting to an empty map.
func (s State) NodeOutputs() map[string]NodeOutput {
	v, ok := s[KeyNodeOutputs].(map[string]NodeOutput)
	if !ok {
		v = map[string]NodeOutput{}
		s[KeyNodeOutputs] = v
	}
	return v
}

// SetNodeOutput records the outcome of one node's execution.
func (s State) SetNodeOutput(name string, out NodeOutput) {
	outputs := s.NodeOutputs()
	outputs[name] = out
	s[KeyNodeOutputs] = outputs
}

// GotoNode returns the pending dynamic-routing override, if any.
func (s State) GotoNode() (string, bool) {
	v, ok := s[KeyGotoNode].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// SetGotoNode installs a dynamic-routing override.
func (s State) SetGotoNode(node string) { s[KeyGotoNode] = node }

// ClearGotoNode clears the override; the router must do this before the
// target node runs (spec.md §8 property 9).
func (s State) ClearGotoNode() { delete(s, KeyGotoNode) }

// SetCurrentStep sets state["current_step"].
func (s State) SetCurrentStep(step string) { s[KeyCurrentStep] = step }

// SetFinalResponse sets state["final_response"].
func (s State) SetFinalResponse(r string) { s[KeyFinalResponse] = r }

// ToolResults returns state["tool_results"], defaulting to an empty map.
func (s State) ToolResults() map[string]any {
	v, ok := s[KeyToolResults].(map[string]any)
	if !ok {
		v = map[string]any{}
		s[KeyToolResults] = v
	}
	return v
}

// SetToolResult records result under tool_results[callID].
func (s State) SetToolResult(callID string, result any) {
	results := s.ToolResults()
	results[callID] = result
	s[KeyToolResults] = results
}

// FormatMessageHistory renders messages as "Human: …" / "Assistant: …"
// turns, grounded on io_resolver.py's _format_message_history (truncating
// assistant content at 500 runes to match the original's [:500] slice).
func FormatMessageHistory(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("**Conversation history**:\n")
	for _, m := range messages {
		switch m.Role {
		case RoleHuman:
			fmt.Fprintf(&b, "Human: %s\n", m.Content)
		case RoleAI:
			content := m.Content
			if len(content) > 500 {
				content = content[:500] + "..."
			}
			fmt.Fprintf(&b, "Assistant: %s\n", content)
		default:
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// now is overridden in tests that need deterministic timestamps.
var now = time.Now
