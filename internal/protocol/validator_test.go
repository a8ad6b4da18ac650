package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validProtocol() *Protocol {
	return &Protocol{
		ID:   1,
		Meta: Meta{Name: "greeter", SchemaVersion: "1.0.0"},
		Agents: map[string]AgentInfo{
			"chat": {Type: AgentPlain},
		},
		Workflow: Workflow{
			Nodes: []WorkflowNode{
				{Name: "start", Type: NodeStart},
				{Name: "chat", Type: NodeAgent, AgentRef: "chat"},
				{Name: "end", Type: NodeEnd},
			},
			Edges: []WorkflowEdge{
				{From: "start", To: "chat"},
				{From: "chat", To: "end"},
			},
		},
	}
}

func TestValidateAcceptsWellFormedProtocol(t *testing.T) {
	assert.NoError(t, Validate(validProtocol()))
}

func TestValidateRejectsUnknownSchemaVersion(t *testing.T) {
	p := validProtocol()
	p.Meta.SchemaVersion = "9.9.9"

	err := Validate(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema_version")
}

func TestValidateRequiresExactlyOneStartNode(t *testing.T) {
	p := validProtocol()
	p.Workflow.Nodes = append(p.Workflow.Nodes, WorkflowNode{Name: "start2", Type: NodeStart})

	err := Validate(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one start node")
}

func TestValidateRequiresAtLeastOneEndNode(t *testing.T) {
	p := validProtocol()
	p.Workflow.Nodes = p.Workflow.Nodes[:2] // drop "end"

	err := Validate(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one end node")
}

func TestValidateRejectsUnknownAgentRef(t *testing.T) {
	p := validProtocol()
	p.Workflow.Nodes[1].AgentRef = "missing"

	err := Validate(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown agent")
}

func TestValidateRejectsConditionNodeWithNoConditions(t *testing.T) {
	p := validProtocol()
	p.Workflow.Nodes = append(p.Workflow.Nodes, WorkflowNode{Name: "route", Type: NodeCondition})

	err := Validate(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declares no conditions")
}

func TestValidateRejectsEdgeToUnknownNode(t *testing.T) {
	p := validProtocol()
	p.Workflow.Edges = append(p.Workflow.Edges, WorkflowEdge{From: "chat", To: "ghost"})

	err := Validate(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown target node")
}

func TestValidateRequiresConditionLabelOnConditionNodeEdges(t *testing.T) {
	p := validProtocol()
	p.Workflow.Nodes = append(p.Workflow.Nodes, WorkflowNode{
		Name:       "route",
		Type:       NodeCondition,
		Conditions: map[string]string{"always": "true"},
	})
	p.Workflow.Edges = append(p.Workflow.Edges, WorkflowEdge{From: "route", To: "end"})

	err := Validate(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must carry a condition label")
}

func TestValidateAggregatesMultipleErrors(t *testing.T) {
	p := validProtocol()
	p.Meta.SchemaVersion = "bogus"
	p.Workflow.Nodes[1].AgentRef = "missing"

	err := Validate(p)
	require.Error(t, err)
	ve, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(ve.Errors), 2)
}
