package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devyk/kaflow-go/internal/protocol"
)

func compileRouterOnlyProtocol(t *testing.T) *Compiled {
	t.Helper()

	p := &protocol.Protocol{
		ID:   1,
		Meta: protocol.Meta{Name: "router_only", SchemaVersion: "1.0.0"},
		Workflow: protocol.Workflow{
			Nodes: []protocol.WorkflowNode{
				{Name: "start", Type: protocol.NodeStart},
				{Name: "route", Type: protocol.NodeCondition, Conditions: map[string]string{
					"always": `user_input != ""`,
				}},
				{Name: "end", Type: protocol.NodeEnd},
			},
			Edges: []protocol.WorkflowEdge{
				{From: "start", To: "route"},
				{From: "route", To: "end", Condition: "always"},
			},
		},
	}

	compiled, err := Compile(p, AgentNodeOptions{})
	require.NoError(t, err)
	return compiled
}

type fakeCheckpointer struct {
	puts int
	last State
}

func (f *fakeCheckpointer) Put(_ context.Context, _ string, state State) error {
	f.puts++
	f.last = state
	return nil
}

func TestEngineInvokeRunsToCompletionAndPersistsOnce(t *testing.T) {
	compiled := compileRouterOnlyProtocol(t)
	cp := &fakeCheckpointer{}
	engine := NewEngine(compiled, cp)

	initial := NewState("hello")
	initial.SetThreadID("alice_1_1")

	final, err := engine.Invoke(context.Background(), initial)
	require.NoError(t, err)
	assert.Equal(t, "completed:end", final[KeyCurrentStep])
	assert.Equal(t, 1, cp.puts)
}

func TestEngineInvokeToleratesNilCheckpointer(t *testing.T) {
	compiled := compileRouterOnlyProtocol(t)
	engine := NewEngine(compiled, nil)

	initial := NewState("hello")
	initial.SetThreadID("alice_1_1")

	_, err := engine.Invoke(context.Background(), initial)
	assert.NoError(t, err)
}

func TestEngineStreamBracketsWithGraphStartAndEnd(t *testing.T) {
	compiled := compileRouterOnlyProtocol(t)
	engine := NewEngine(compiled, nil)

	initial := NewState("hello")
	initial.SetThreadID("alice_1_1")

	var events []Event
	for ev := range engine.Stream(context.Background(), initial) {
		events = append(events, ev)
	}

	require.GreaterOrEqual(t, len(events), 2)
	assert.Equal(t, EventGraphStart, events[0].Type)
	assert.Equal(t, EventGraphEnd, events[len(events)-1].Type)
	for _, ev := range events {
		assert.Equal(t, "alice_1_1", ev.ThreadID)
	}
}
