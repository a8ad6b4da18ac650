// Package ioresolver implements the uniform input/output contract every
// node builder uses: resolving declared inputs from shared state, composing
// an agent prompt from them, and writing declared outputs back. Grounded on
// original_source/src/core/graph/io_resolver.py.
package ioresolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/devyk/kaflow-go/internal/protocol"
	"github.com/devyk/kaflow-go/internal/workflow"
)

// specialMessageKeys are the field names that trigger message-history
// formatting rather than plain value formatting (io_resolver.py's
// ["message", "messages", "conversation_history"]).
var specialMessageKeys = map[string]bool{
	"message":             true,
	"messages":            true,
	"conversation_history": true,
}

// ResolveInputs resolves every declared input of node from state, per
// spec.md §4.4.
func ResolveInputs(node protocol.WorkflowNode, state workflow.State) map[string]any {
	resolved := make(map[string]any, len(node.Inputs))
	for _, in := range node.Inputs {
		if in.Name == "" {
			continue
		}

		var value any
		if in.Source != "" {
			value = resolveSource(in.Source, state)
		} else {
			value = autoResolve(in.Name, state)
		}

		if value == nil && in.Default != nil {
			value = in.Default
		}
		if value != nil {
			resolved[in.Name] = value
		}
	}
	return resolved
}

// resolveSource follows a "source" path: "<node>.<field>", "state.<path>",
// "global.<path>", or a bare name from the top-level state.
func resolveSource(source string, state workflow.State) any {
	parts := strings.SplitN(source, ".", 2)
	if len(parts) == 1 {
		return state[source]
	}

	prefix, rest := parts[0], parts[1]
	switch prefix {
	case "state":
		return getNested(map[string]any(state), rest)
	case "global":
		return getNested(state.Context(), rest)
	default:
		outputs := state.NodeOutputs()
		out, ok := outputs[prefix]
		if !ok {
			return nil
		}
		return getNested(out.Outputs, rest)
	}
}

// autoResolve implements the fallback chain: top-level state key, then
// context, then the latest node's output field, then specialized names.
func autoResolve(name string, state workflow.State) any {
	if v, ok := state[name]; ok {
		return v
	}
	if v, ok := state.Context()[name]; ok {
		return v
	}
	if name == "user_input" {
		return state.UserInput()
	}
	if specialMessageKeys[name] {
		return previousMessages(state)
	}

	outputs := state.NodeOutputs()
	for _, nodeName := range latestOutputOrder(outputs) {
		if v, ok := outputs[nodeName].Outputs[name]; ok {
			return v
		}
	}
	return nil
}

func previousMessages(state workflow.State) []workflow.Message {
	if msgs := state.Messages(); len(msgs) > 0 {
		return msgs
	}
	outputs := state.NodeOutputs()
	for _, nodeName := range latestOutputOrder(outputs) {
		for key := range specialMessageKeys {
			if v, ok := outputs[nodeName].Outputs[key]; ok {
				if msgs, ok := v.([]workflow.Message); ok {
					return msgs
				}
			}
		}
	}
	return nil
}

// latestOutputOrder returns node_outputs keys sorted in reverse lexical
// order. workflow.State stores no insertion order alongside a Go map, so
// this order does not reflect which node output was written most recently.
func latestOutputOrder(outputs map[string]workflow.NodeOutput) []string {
	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names
}

func getNested(obj map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var current any = obj
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[part]
		if !ok {
			return nil
		}
	}
	return current
}

// BuildAgentInput composes a prompt-friendly string from resolved inputs,
// per spec.md §4.4: if "user_input" is present and other inputs also are,
// they're prefixed as "**key**: value" blocks; message histories render as
// "Human: …"/"Assistant: …" turns.
func BuildAgentInput(state workflow.State, resolved map[string]any) string {
	if userInput, ok := resolved["user_input"].(string); ok {
		if len(resolved) == 1 {
			return userInput
		}
		parts := []string{fmt.Sprintf("**User request**: %s", userInput)}
		for _, key := range sortedKeys(resolved) {
			if key == "user_input" {
				continue
			}
			parts = append(parts, formatContextEntry(key, resolved[key]))
		}
		return strings.Join(parts, "\n\n")
	}

	for _, key := range []string{"message", "messages", "conversation_history"} {
		if v, ok := resolved[key]; ok {
			if msgs, ok := v.([]workflow.Message); ok {
				return workflow.FormatMessageHistory(msgs)
			}
			return fmt.Sprint(v)
		}
	}

	if len(resolved) > 0 {
		parts := make([]string, 0, len(resolved))
		for _, key := range sortedKeys(resolved) {
			parts = append(parts, formatContextEntry(key, resolved[key]))
		}
		return strings.Join(parts, "\n\n")
	}

	return state.UserInput()
}

func formatContextEntry(key string, value any) string {
	if specialMessageKeys[key] {
		if msgs, ok := value.([]workflow.Message); ok {
			return workflow.FormatMessageHistory(msgs)
		}
	}
	return fmt.Sprintf("**%s**: %s", key, formatValue(value))
}

func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []workflow.Message:
		return workflow.FormatMessageHistory(v)
	default:
		return fmt.Sprint(v)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StoreOutputs extracts declared outputs from result and writes them to
// state.node_outputs[node.Name].outputs, per spec.md §4.4. result is
// typically a map[string]any (agent/condition raw result) or a string
// (plain agent final content).
func StoreOutputs(node protocol.WorkflowNode, state workflow.State, result any) {
	existing := state.NodeOutputs()[node.Name]
	if existing.Outputs == nil {
		existing.Outputs = map[string]any{}
	}

	if len(node.Outputs) == 0 {
		existing.Outputs["result"] = result
		state.SetNodeOutput(node.Name, existing)
		return
	}

	for _, out := range node.Outputs {
		if out.Name == "" {
			continue
		}
		value := extractOutputValue(out.Name, result, state)
		if value != nil {
			existing.Outputs[out.Name] = value
		}
	}
	state.SetNodeOutput(node.Name, existing)
}

func extractOutputValue(name string, result any, state workflow.State) any {
	if m, ok := result.(map[string]any); ok {
		if v, ok := m[name]; ok {
			return v
		}
	}

	switch name {
	case "message", "messages":
		return state.Messages()
	case "response", "result":
		switch v := result.(type) {
		case string:
			return v
		case fmt.Stringer:
			return v.String()
		default:
			return fmt.Sprint(result)
		}
	case "final_report", "output":
		if s, ok := result.(string); ok {
			return s
		}
		return fmt.Sprint(result)
	}

	return result
}
