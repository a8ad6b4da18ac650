package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"

	"github.com/devyk/kaflow-go/internal/llmhandle"
	"github.com/devyk/kaflow-go/internal/protocol"
)

// fakeAgentModel implements llms.Model, replaying a fixed sequence of
// responses per call, grounded on prebuilt/react_agent_test.go's MockLLM.
type fakeAgentModel struct {
	responses []llms.ContentResponse
	calls     int
}

func (m *fakeAgentModel) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	if m.calls >= len(m.responses) {
		resp := &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "no more responses"}}}
		m.calls++
		return resp, nil
	}
	resp := m.responses[m.calls]
	m.calls++
	return &resp, nil
}

func (m *fakeAgentModel) Call(_ context.Context, _ string, _ ...llms.CallOption) (string, error) {
	return "", nil
}

// fakeCalcTool implements tools.Tool, grounded on
// prebuilt/react_agent_test.go's WeatherTool.
type fakeCalcTool struct {
	calls int
}

func (t *fakeCalcTool) Name() string        { return "calc" }
func (t *fakeCalcTool) Description() string { return "adds numbers" }
func (t *fakeCalcTool) Call(_ context.Context, _ string) (string, error) {
	t.calls++
	return "42", nil
}

type fakeToolSource struct {
	tools []tools.Tool
}

func (s fakeToolSource) Resolve(_ []string) []tools.Tool { return s.tools }

func testAgentOptions(model llms.Model, toolSrc ToolSource) AgentNodeOptions {
	return AgentNodeOptions{
		Protocol:   &protocol.Protocol{},
		LLMFactory: func(llmhandle.Config) llms.Model { return model },
		Tools:      toolSrc,
	}
}

func toolCallChoice(id, name, argsJSON string) llms.ContentChoice {
	return llms.ContentChoice{
		ToolCalls: []llms.ToolCall{
			{
				ID:           id,
				Type:         "function",
				FunctionCall: &llms.FunctionCall{Name: name, Arguments: argsJSON},
			},
		},
		StopReason: "tool_calls",
	}
}

// TestRunLoopCompletionMarkerStopsAfterMatchingIteration covers spec.md §8
// Scenario B: three outer iterations, no tool calls, terminating on the
// configured force_exit_keywords match.
func TestRunLoopCompletionMarkerStopsAfterMatchingIteration(t *testing.T) {
	model := &fakeAgentModel{responses: []llms.ContentResponse{
		{Choices: []*llms.ContentChoice{{Content: "step 1"}}},
		{Choices: []*llms.ContentChoice{{Content: "step 2"}}},
		{Choices: []*llms.ContentChoice{{Content: "DONE"}}},
	}}

	node := protocol.WorkflowNode{Name: "agent", Type: protocol.NodeAgent}
	info := protocol.AgentInfo{
		Type: protocol.AgentReact,
		Loop: protocol.LoopConfig{Enable: true, MaxIterations: 5, ForceExitKeywords: []string{"DONE"}},
	}

	fn := BuildAgentNode(node, info, testAgentOptions(model, nil))
	state := NewState("how do we proceed?")
	state.SetThreadID("t1")

	result, err := fn(context.Background(), state)
	require.NoError(t, err)

	out, ok := result.NodeOutputs()["agent"]
	require.True(t, ok)
	assert.Equal(t, "completed", out.Status)
	assert.Equal(t, 3, out.LoopCount)
	assert.Equal(t, 3, model.calls)
	assert.Contains(t, result[KeyFinalResponse], "DONE")
}

// TestRunLoopToolCallsStayWithinOneOuterIteration is the regression test for
// the bug report: a model turn that produces a tool call, then a follow-up
// call that finally returns a tool-call-free, completion-marked message,
// must count as a single outer iteration (spec.md §4.5 step 3 / original
// _execute_agent_loop's two-level loop), not two.
func TestRunLoopToolCallsStayWithinOneOuterIteration(t *testing.T) {
	model := &fakeAgentModel{responses: []llms.ContentResponse{
		{Choices: []*llms.ContentChoice{toolCallChoice("call_1", "calc", `{"a":1,"b":2}`)}},
		{Choices: []*llms.ContentChoice{{Content: "DONE"}}},
	}}
	tool := &fakeCalcTool{}

	node := protocol.WorkflowNode{Name: "agent", Type: protocol.NodeAgent}
	info := protocol.AgentInfo{
		Type:  protocol.AgentReact,
		Tools: []string{"calc"},
		Loop:  protocol.LoopConfig{Enable: true, MaxIterations: 5, ForceExitKeywords: []string{"DONE"}},
	}

	fn := BuildAgentNode(node, info, testAgentOptions(model, fakeToolSource{tools: []tools.Tool{tool}}))
	state := NewState("please calculate")
	state.SetThreadID("t1")

	result, err := fn(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, 1, tool.calls)
	assert.Equal(t, 2, model.calls, "one model call that requests the tool, one follow-up call with the final answer")

	out, ok := result.NodeOutputs()["agent"]
	require.True(t, ok)
	assert.Equal(t, 1, out.LoopCount, "both model calls belong to the same outer react iteration")
	assert.Equal(t, "DONE", result[KeyFinalResponse])

	toolResults := result.ToolResults()
	assert.Equal(t, "42", toolResults["call_1"])
}

// TestRunLoopNoToolGotoFiresOnFirstIterationOnly covers spec.md §8
// Scenario D: a tool-call-free first response routes via _goto_node after
// exactly one LLM call.
func TestRunLoopNoToolGotoFiresOnFirstIterationOnly(t *testing.T) {
	model := &fakeAgentModel{responses: []llms.ContentResponse{
		{Choices: []*llms.ContentChoice{{Content: "just chatting, no tool needed"}}},
	}}

	node := protocol.WorkflowNode{Name: "agent", Type: protocol.NodeAgent}
	info := protocol.AgentInfo{
		Type: protocol.AgentReact,
		Loop: protocol.LoopConfig{Enable: true, MaxIterations: 5, NoToolGoto: "end"},
	}

	fn := BuildAgentNode(node, info, testAgentOptions(model, nil))
	state := NewState("hello")
	state.SetThreadID("t1")

	result, err := fn(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, 1, model.calls)
	target, ok := result.GotoNode()
	require.True(t, ok)
	assert.Equal(t, "end", target)

	out, ok := result.NodeOutputs()["agent"]
	require.True(t, ok)
	assert.Equal(t, 1, out.LoopCount)
}

// TestRunLoopTerminatesAtMaxIterationsForAdversarialLLM covers spec.md §8
// property 10: an LLM that never emits a completion marker still terminates
// within max_iterations.
func TestRunLoopTerminatesAtMaxIterationsForAdversarialLLM(t *testing.T) {
	model := &fakeAgentModel{responses: []llms.ContentResponse{
		{Choices: []*llms.ContentChoice{{Content: "still thinking"}}},
		{Choices: []*llms.ContentChoice{{Content: "still thinking"}}},
		{Choices: []*llms.ContentChoice{{Content: "still thinking"}}},
	}}

	node := protocol.WorkflowNode{Name: "agent", Type: protocol.NodeAgent}
	info := protocol.AgentInfo{
		Type: protocol.AgentReact,
		Loop: protocol.LoopConfig{Enable: true, MaxIterations: 3},
	}

	fn := BuildAgentNode(node, info, testAgentOptions(model, nil))
	state := NewState("keep going forever")
	state.SetThreadID("t1")

	result, err := fn(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, 3, model.calls)
	out, ok := result.NodeOutputs()["agent"]
	require.True(t, ok)
	assert.Equal(t, 3, out.LoopCount)
	assert.Equal(t, "completed", out.Status)
}

// TestBuildAgentNodeSingleShotInvokesOnce covers the loop.enable=false path
// (spec.md §4.5 step 4): the model is invoked exactly once.
func TestBuildAgentNodeSingleShotInvokesOnce(t *testing.T) {
	model := &fakeAgentModel{responses: []llms.ContentResponse{
		{Choices: []*llms.ContentChoice{{Content: "the weather is sunny"}}},
	}}

	node := protocol.WorkflowNode{Name: "agent", Type: protocol.NodeAgent}
	info := protocol.AgentInfo{Type: protocol.AgentPlain}

	fn := BuildAgentNode(node, info, testAgentOptions(model, nil))
	state := NewState("what's the weather?")
	state.SetThreadID("t1")

	result, err := fn(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, 1, model.calls)
	out, ok := result.NodeOutputs()["agent"]
	require.True(t, ok)
	assert.Equal(t, "completed", out.Status)
	assert.Equal(t, "agent_completed:agent", result[KeyCurrentStep])
	assert.Equal(t, "the weather is sunny", result[KeyFinalResponse])
}

// TestBuildAgentNodeFailsGracefullyOnLLMError covers the agent_failed path
// (spec.md §4.5 step 5).
func TestBuildAgentNodeFailsGracefullyOnLLMError(t *testing.T) {
	node := protocol.WorkflowNode{Name: "agent", Type: protocol.NodeAgent}
	info := protocol.AgentInfo{Type: protocol.AgentPlain}

	opts := testAgentOptions(&erroringModel{}, nil)
	fn := BuildAgentNode(node, info, opts)
	state := NewState("trigger a failure")
	state.SetThreadID("t1")

	result, err := fn(context.Background(), state)
	require.NoError(t, err)

	out, ok := result.NodeOutputs()["agent"]
	require.True(t, ok)
	assert.Equal(t, "failed", out.Status)
	assert.Equal(t, "agent_failed:agent", result[KeyCurrentStep])
}

type erroringModel struct{}

func (erroringModel) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	return nil, assert.AnError
}

func (erroringModel) Call(_ context.Context, _ string, _ ...llms.CallOption) (string, error) {
	return "", assert.AnError
}
