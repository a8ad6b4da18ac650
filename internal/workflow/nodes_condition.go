package workflow

import (
	"github.com/devyk/kaflow-go/internal/kflog"
	"github.com/devyk/kaflow-go/internal/protocol"
)

// BuildConditionNode returns the condition node's function: evaluates every
// entry of node.Conditions via the recursive-descent DSL and stores the
// results for the router to consume (spec.md §4.5 "Condition node").
func BuildConditionNode(node protocol.WorkflowNode) func(State) State {
	return func(state State) State {
		results, errs := EvaluateConditions(node, state)
		for _, err := range errs {
			kflog.Warn("workflow: condition node %q: %v", node.Name, err)
		}
		state.SetCurrentStep("completed:" + node.Name)
		state.SetNodeOutput(node.Name, NodeOutput{
			Status:           "completed",
			Outputs:          map[string]any{},
			ConditionResults: results,
			NodeType:         "condition",
		})
		return state
	}
}
