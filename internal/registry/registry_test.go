package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devyk/kaflow-go/internal/workflow"
)

const minimalProtocol = `
id: %d
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

func writeConfig(t *testing.T, dir, filename string, id int) {
	t.Helper()
	path := filepath.Join(dir, filename)
	content := []byte(fmt.Sprintf(minimalProtocol, id))
	require.NoError(t, os.WriteFile(path, content, 0o644))
}

func TestRegistryScanExcludesTemplates(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "greeter.yaml", 1)
	writeConfig(t, dir, "greeter.yaml.template", 2)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("not a config"), 0o644))

	r, err := New(dir, workflow.AgentNodeOptions{})
	require.NoError(t, err)

	ids := r.KnownIDs()
	assert.Equal(t, []string{"1"}, ids)
}

func TestEnsureLoadedIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "greeter.yaml", 1)

	r, err := New(dir, workflow.AgentNodeOptions{})
	require.NoError(t, err)

	first, err := r.EnsureLoaded("1")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := r.EnsureLoaded("1")
	require.NoError(t, err)
	assert.Same(t, first, second)

	list := r.List()
	require.Len(t, list, 1)
	assert.True(t, list[0].Cached)
	assert.Equal(t, "greeter", list[0].Name)
}

func TestEnsureLoadedUnknownID(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "greeter.yaml", 1)

	r, err := New(dir, workflow.AgentNodeOptions{})
	require.NoError(t, err)

	_, err = r.EnsureLoaded("999")
	assert.Error(t, err)
}

func TestExtractConfigIDFromThreadID(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "greeter.yaml", 1)
	writeConfig(t, dir, "support_team.yaml", 2)

	r, err := New(dir, workflow.AgentNodeOptions{})
	require.NoError(t, err)

	id, ok := r.ExtractConfigIDFromThreadID("alice_9f2c_1")
	assert.True(t, ok)
	assert.Equal(t, "1", id)

	_, ok = r.ExtractConfigIDFromThreadID("alice_9f2c_unknown")
	assert.False(t, ok)
}
