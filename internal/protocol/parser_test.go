package protocol

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
id: 1
protocol:
  name: greeter
  version: "1.0"
  schema_version: "1.0.0"
  description: says hello
llm_config:
  provider: openai
  model: gpt-4o-mini
agents:
  chat:
    type: agent
    system_prompt: "You are a greeter."
    llm: {}
workflow:
  nodes:
    - name: start
      type: start
    - name: chat
      type: agent
      agent_ref: chat
    - name: end
      type: end
  edges:
    - from: start
      to: chat
    - from: chat
      to: end
`

func TestParseMinimalProtocol(t *testing.T) {
	p, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, 1, p.ID)
	assert.Equal(t, "greeter", p.Meta.Name)
	assert.Equal(t, "1.0.0", p.Meta.SchemaVersion)
	require.Len(t, p.Workflow.Nodes, 3)
	require.Len(t, p.Workflow.Edges, 2)
	assert.Equal(t, "start", p.Workflow.Edges[0].From)
}

func TestParseResolvesEnvVarsWithDefault(t *testing.T) {
	os.Unsetenv("KAFLOW_TEST_MODEL")

	raw := []byte(`
id: 1
protocol:
  name: greeter
  version: "1.0"
  schema_version: "1.0.0"
llm_config:
  provider: openai
  model: ${KAFLOW_TEST_MODEL:gpt-4o-mini}
workflow:
  nodes: []
  edges: []
`)
	p, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", p.LLMConfig.Model)
}

func TestParseResolvesEnvVarFromEnvironment(t *testing.T) {
	t.Setenv("KAFLOW_TEST_MODEL", "gpt-4o")

	raw := []byte(`
id: 1
protocol:
  name: greeter
  version: "1.0"
  schema_version: "1.0.0"
llm_config:
  provider: openai
  model: ${KAFLOW_TEST_MODEL}
workflow:
  nodes: []
  edges: []
`)
	p, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", p.LLMConfig.Model)
}

func TestParseRejectsUnknownFieldInProtocolBlock(t *testing.T) {
	raw := []byte(`
id: 1
protocol:
  name: greeter
  version: "1.0"
  schema_version: "1.0.0"
  bogus_field: oops
workflow:
  nodes: []
  edges: []
`)
	_, err := Parse(raw)
	assert.Error(t, err)
}

func TestParseNormalizesAgentLoopDefaults(t *testing.T) {
	p, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)
	agent := p.Agents["chat"]
	assert.Equal(t, 10, agent.Loop.MaxIterations)
	assert.NotNil(t, agent.Loop.ForceExitKeywords)
}

func TestMarshalRoundTripsCoreFields(t *testing.T) {
	p, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	out, err := Marshal(p)
	require.NoError(t, err)

	reparsed, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, p.ID, reparsed.ID)
	assert.Equal(t, p.Meta.Name, reparsed.Meta.Name)
	assert.Len(t, reparsed.Workflow.Edges, len(p.Workflow.Edges))
}
