package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devyk/kaflow-go/internal/checkpoint"
	"github.com/devyk/kaflow-go/internal/mcp"
	"github.com/devyk/kaflow-go/internal/registry"
	"github.com/devyk/kaflow-go/internal/workflow"
)

const fixtureProtocol = `
id: %d
protocol:
  name: greeter
  version: "1.0"
  schema_version: "1.0.0"
  description: test fixture
agents:
  chat:
    type: agent
    system_prompt: "hi"
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

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "greeter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(fixtureProtocol, 1)), 0o644))

	reg, err := registry.New(dir, workflow.AgentNodeOptions{})
	require.NoError(t, err)

	return New(reg, checkpoint.NewMemoryStore(), mcp.NewManager())
}

func TestHandleConfigsListsScannedConfigs(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/configs", nil)
	rec := httptest.NewRecorder()
	s.handleConfigs(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "1", out[0]["id"])
	assert.Equal(t, "greeter", out[0]["name"])
	assert.Equal(t, false, out[0]["cached"])
}

func TestHandleConfigsRejectsNonGet(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/configs", nil)
	rec := httptest.NewRecorder()
	s.handleConfigs(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleHealthReportsConfigsLoaded(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, float64(1), out["configs_loaded"])
}

func TestHandleVersionReportsStaticVersion(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	rec := httptest.NewRecorder()
	s.handleVersion(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, Version, out["version"])
}

func TestHandleChatStreamUnknownConfigReturns404(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(map[string]any{
		"config_id": 999,
		"messages":  []map[string]string{{"role": "user", "content": "hi"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleChatStream(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleChatStreamRejectsNonPost(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/chat/stream", nil)
	rec := httptest.NewRecorder()
	s.handleChatStream(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleChatHistoryReturnsEmptyPageForUnknownThread(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"thread_id": "alice_1_1"})
	req := httptest.NewRequest(http.MethodPost, "/api/chat/history", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleChatHistory(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var page checkpoint.HistoryPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.PageSize)
}

func TestHandleChatThreadsFiltersByUsername(t *testing.T) {
	s := newTestServer(t)
	st := workflow.NewState("hi")
	require.NoError(t, s.Checkpoint.Put(context.Background(), "alice_1_1", st))

	body, _ := json.Marshal(map[string]any{"username": "alice"})
	req := httptest.NewRequest(http.MethodPost, "/api/chat/threads", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleChatThreads(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var page checkpoint.ThreadListPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Threads, 1)
	assert.Equal(t, "alice", page.Threads[0].Username)
}

func TestConfigIDStringNormalizesJSONNumberAndString(t *testing.T) {
	assert.Equal(t, "1", configIDString(float64(1)))
	assert.Equal(t, "support_team", configIDString("support_team"))
}
