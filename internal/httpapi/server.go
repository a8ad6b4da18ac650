// Package httpapi is the HTTP surface: plain net/http handlers wired onto
// the Config Registry, the Execution Engine, and the Checkpoint Store.
// Grounded on showcases/ai-pdf-chatbot/backend/server.go's Server/
// handleChat shape (a bare mux, JSON request bodies, hand-rolled SSE
// writer), with the SSE framing itself delegated to internal/stream.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/tools"

	"github.com/devyk/kaflow-go/internal/checkpoint"
	"github.com/devyk/kaflow-go/internal/kerrors"
	"github.com/devyk/kaflow-go/internal/kflog"
	"github.com/devyk/kaflow-go/internal/mcp"
	"github.com/devyk/kaflow-go/internal/protocol"
	"github.com/devyk/kaflow-go/internal/registry"
	"github.com/devyk/kaflow-go/internal/stream"
	"github.com/devyk/kaflow-go/internal/workflow"
)

// Version is the static /api/version payload, bumped alongside breaking
// wire-format changes.
const Version = "1.0.0"

// Server bundles the collaborators every handler needs.
type Server struct {
	Registry   *registry.Registry
	Checkpoint checkpoint.Store
	MCP        *mcp.Manager
	startedAt  time.Time
}

// New builds a Server. checkpoint and mcpMgr may be nil-safe zero values
// are never required to be nil themselves — callers always pass a real
// instance; the Engine itself already tolerates a nil Checkpointer.
func New(reg *registry.Registry, store checkpoint.Store, mcpMgr *mcp.Manager) *Server {
	return &Server{Registry: reg, Checkpoint: store, MCP: mcpMgr, startedAt: time.Now()}
}

// Routes registers every endpoint spec.md §6 names onto mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/chat/stream", s.handleChatStream)
	mux.HandleFunc("/api/configs", s.handleConfigs)
	mux.HandleFunc("/api/chat/history", s.handleChatHistory)
	mux.HandleFunc("/api/chat/messages", s.handleChatMessages)
	mux.HandleFunc("/api/chat/threads", s.handleChatThreads)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/mcp/server/metadata", s.handleMCPMetadata)
}

type inboundMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatStreamRequest struct {
	ConfigID     any              `json:"config_id"`
	Messages     []inboundMessage `json:"messages"`
	ThreadID     string           `json:"thread_id"`
	MaxTokens    int              `json:"max_tokens"`
	Temperature  float64          `json:"temperature"`
	CustomConfig map[string]any   `json:"custom_config"`
}

// handleChatStream is POST /api/chat/stream (spec.md §6).
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	compiled, err := s.Registry.EnsureLoaded(configIDString(req.ConfigID))
	if err != nil {
		writeConfigError(w, err)
		return
	}

	threadID := req.ThreadID
	if threadID == "" || threadID == "__default__" {
		threadID = uuid.NewString()
	}

	initial := buildInitialState(req, threadID)

	sseWriter := stream.NewSSEWriter(w)
	if sseWriter == nil {
		return
	}

	engine := workflow.NewEngine(compiled, s.Checkpoint)
	assembler := stream.NewAssembler()

	for ev := range engine.Stream(r.Context(), initial) {
		for _, out := range assembler.Feed(ev) {
			if !sseWriter.Send(out) {
				return
			}
		}
	}
}

func buildInitialState(req chatStreamRequest, threadID string) workflow.State {
	var userInput string
	if n := len(req.Messages); n > 0 {
		userInput = req.Messages[n-1].Content
	}

	st := workflow.NewState(userInput)
	st.SetThreadID(threadID)

	msgs := make([]workflow.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, workflow.Message{Role: inboundRole(m.Role), Content: m.Content})
	}
	st.SetMessages(msgs)

	ctx := st.Context()
	if req.MaxTokens > 0 {
		ctx["max_tokens"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		ctx["temperature"] = req.Temperature
	}
	for k, v := range req.CustomConfig {
		ctx[k] = v
	}
	return st
}

func inboundRole(role string) string {
	switch role {
	case "user":
		return workflow.RoleHuman
	case "assistant":
		return workflow.RoleAI
	case "system":
		return workflow.RoleSystem
	case "tool":
		return workflow.RoleTool
	default:
		return role
	}
}

// handleConfigs is GET /api/configs.
func (s *Server) handleConfigs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	list := s.Registry.List()
	out := make([]map[string]any, 0, len(list))
	for _, info := range list {
		out = append(out, map[string]any{
			"id":           info.ID,
			"name":         info.Name,
			"description":  info.Description,
			"version":      info.Version,
			"author":       info.Author,
			"agents_count": info.AgentsCount,
			"nodes_count":  info.NodesCount,
			"edges_count":  info.EdgesCount,
			"cached":       info.Cached,
		})
	}
	sendJSON(w, http.StatusOK, out)
}

type pagedRequest struct {
	ThreadID string `json:"thread_id"`
	Username string `json:"username"`
	ConfigID any    `json:"config_id"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Order    string `json:"order"`
}

func (p *pagedRequest) normalize() {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = 20
	}
	if p.Order == "" {
		p.Order = "desc"
	}
}

// handleChatHistory is POST /api/chat/history.
func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req pagedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.normalize()

	page, err := s.Checkpoint.GetHistoryMessages(r.Context(), req.ThreadID, req.Page, req.PageSize, req.Order)
	if err != nil {
		kflog.Warn("httpapi: get_history_messages: %v", err)
		sendJSON(w, http.StatusOK, page)
		return
	}
	sendJSON(w, http.StatusOK, page)
}

// handleChatMessages is POST /api/chat/messages.
func (s *Server) handleChatMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req pagedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.normalize()

	page, err := s.Checkpoint.GetFlatMessages(r.Context(), req.ThreadID, req.Page, req.PageSize, req.Order)
	if err != nil {
		kflog.Warn("httpapi: get_flat_messages: %v", err)
		sendJSON(w, http.StatusOK, page)
		return
	}
	sendJSON(w, http.StatusOK, page)
}

// handleChatThreads is POST /api/chat/threads.
func (s *Server) handleChatThreads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req pagedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.normalize()

	page, err := s.Checkpoint.GetThreadList(r.Context(), req.Username, req.Page, req.PageSize, req.Order)
	if err != nil {
		kflog.Warn("httpapi: get_thread_list: %v", err)
		sendJSON(w, http.StatusOK, page)
		return
	}
	sendJSON(w, http.StatusOK, page)
}

// handleHealth is GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"message":        "kaflow is running",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"configs_loaded": len(s.Registry.List()),
	})
}

// handleVersion is GET /api/version.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]any{
		"version":    Version,
		"started_at": s.startedAt.UTC().Format(time.RFC3339),
	})
}

type mcpMetadataRequest struct {
	protocol.MCPServerConfig
}

type mcpToolMetadata struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema,omitempty"`
}

// handleMCPMetadata is POST /api/mcp/server/metadata: discovery only, not
// on the execution path (spec.md §6).
func (s *Server) handleMCPMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req mcpMetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	discovered, err := s.MCP.ResolveTools(r.Context(), []protocol.MCPServerConfig{req.MCPServerConfig.NormalizeLifecycle()})
	if err != nil {
		sendJSONError(w, http.StatusBadGateway, err.Error())
		return
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"name":  req.Name,
		"tools": toolMetadata(discovered),
	})
}

func toolMetadata(ts []tools.Tool) []mcpToolMetadata {
	out := make([]mcpToolMetadata, 0, len(ts))
	for _, t := range ts {
		m := mcpToolMetadata{Name: t.Name(), Description: t.Description()}
		if sp, ok := t.(interface{ Schema() map[string]any }); ok {
			m.Schema = sp.Schema()
		}
		out = append(out, m)
	}
	return out
}

func writeConfigError(w http.ResponseWriter, err error) {
	var cfgErr *kerrors.ConfigError
	if errors.As(err, &cfgErr) && cfgErr.Reason == "unknown_id" {
		sendJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	sendJSONError(w, http.StatusBadRequest, err.Error())
}

func sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func sendJSONError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, map[string]string{"error": message})
}

// configIDString normalizes a JSON-decoded config_id (a bare int in the
// wire examples decodes to float64) to the string key internal/registry
// indexes by.
func configIDString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatInt(int64(t), 10)
	default:
		return fmt.Sprint(v)
	}
}
