package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/devyk/kaflow-go/internal/llmhandle"
	"github.com/devyk/kaflow-go/internal/protocol"
)

type recordingModel struct {
	model string
}

func (m *recordingModel) GenerateContent(_ context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: "ok from " + m.model}},
	}, nil
}

func (m *recordingModel) Call(_ context.Context, _ string, _ ...llms.CallOption) (string, error) {
	return "ok from " + m.model, nil
}

func oneAgentProtocol(id int, model string) *protocol.Protocol {
	return &protocol.Protocol{
		ID:   id,
		Meta: protocol.Meta{Name: "test", SchemaVersion: "1.0.0"},
		LLMConfig: protocol.LLMConfig{
			Provider: "openai",
			Model:    model,
		},
		Agents: map[string]protocol.AgentInfo{
			"chat": {Type: protocol.AgentPlain},
		},
		Workflow: protocol.Workflow{
			Nodes: []protocol.WorkflowNode{
				{Name: "start", Type: protocol.NodeStart},
				{Name: "chat", Type: protocol.NodeAgent, AgentRef: "chat"},
				{Name: "end", Type: protocol.NodeEnd},
			},
			Edges: []protocol.WorkflowEdge{
				{From: "start", To: "chat"},
				{From: "chat", To: "end"},
			},
		},
	}
}

// TestCompilePinsEachGraphToItsOwnProtocol guards the fix that forces
// opts.Protocol = p inside Compile: a shared AgentNodeOptions value
// compiled against two different protocols must not leak the first
// protocol's LLMConfig into the second's agent nodes.
func TestCompilePinsEachGraphToItsOwnProtocol(t *testing.T) {
	var seenModels []string
	sharedOpts := AgentNodeOptions{
		LLMFactory: func(cfg llmhandle.Config) llms.Model {
			seenModels = append(seenModels, cfg.Model)
			return &recordingModel{model: cfg.Model}
		},
	}

	p1 := oneAgentProtocol(1, "model-one")
	p2 := oneAgentProtocol(2, "model-two")

	compiled1, err := Compile(p1, sharedOpts)
	require.NoError(t, err)
	compiled2, err := Compile(p2, sharedOpts)
	require.NoError(t, err)

	_, err = compiled1.Runnable.Invoke(context.Background(), NewState("hi"))
	require.NoError(t, err)
	_, err = compiled2.Runnable.Invoke(context.Background(), NewState("hi"))
	require.NoError(t, err)

	require.Len(t, seenModels, 2)
	assert.Equal(t, "model-one", seenModels[0])
	assert.Equal(t, "model-two", seenModels[1])
}
