package workflow

import "github.com/devyk/kaflow-go/internal/protocol"

// BuildEndNode returns the end node's function: sets current_step and
// records a snapshot of {final_response, tool_results, node_outputs}
// (spec.md §4.5 "End node").
func BuildEndNode(node protocol.WorkflowNode) func(State) State {
	return func(state State) State {
		state.SetCurrentStep("completed:" + node.Name)
		finalResponse, _ := state[KeyFinalResponse].(string)
		state.SetNodeOutput(node.Name, NodeOutput{
			Status: "completed",
			Outputs: map[string]any{
				"final_response": finalResponse,
				"tool_results":   state.ToolResults(),
				"node_outputs":   state.NodeOutputs(),
			},
		})
		return state
	}
}
