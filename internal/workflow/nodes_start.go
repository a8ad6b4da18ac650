package workflow

import "github.com/devyk/kaflow-go/internal/protocol"

// BuildStartNode returns the start node's function: seeds messages from
// user_input if empty, sets current_step, and records a completed output
// snapshot (spec.md §4.5 "Start node").
func BuildStartNode(node protocol.WorkflowNode) func(State) State {
	return func(state State) State {
		if len(state.Messages()) == 0 {
			if input := state.UserInput(); input != "" {
				state.AppendMessage(Message{Role: RoleHuman, Content: input})
			}
		}
		state.SetCurrentStep("started:" + node.Name)
		state.SetNodeOutput(node.Name, NodeOutput{
			Status:  "completed",
			Outputs: map[string]any{"user_input": state.UserInput()},
		})
		return state
	}
}
