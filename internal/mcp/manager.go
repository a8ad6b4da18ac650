package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/tools"

	"github.com/devyk/kaflow-go/internal/kflog"
	"github.com/devyk/kaflow-go/internal/protocol"
)

// Manager resolves one agent's declared mcp_servers[] into a flat list of
// callable tools.Tool, honoring each server's lifecycle: "persistent"
// servers keep one connection open and reused across requests; "per_call"
// servers connect, discover tools, and disconnect on every Execute (they
// are re-dialed lazily by toolAdapter.Call, not by Manager itself).
//
// Security scanning of stdio server scripts, present in Pocket-Omega's own
// Manager, is not adopted here — see DESIGN.md's MCP ledger entry.
type Manager struct {
	mu      sync.Mutex
	clients map[string]*Client // persistent servers only, keyed by name
}

// NewManager builds an empty Manager.
func NewManager() *Manager {
	return &Manager{clients: map[string]*Client{}}
}

// ResolveTools connects to every persistent server named in servers (reusing
// an existing connection if already open), discovers its tools, and returns
// the flattened set as tools.Tool. per_call servers are probed once here to
// discover their tool list, then closed immediately — each tool adapter
// reconnects independently when actually invoked.
func (m *Manager) ResolveTools(ctx context.Context, servers []protocol.MCPServerConfig) ([]tools.Tool, error) {
	var out []tools.Tool
	for _, cfg := range servers {
		cfg = cfg.NormalizeLifecycle()

		if cfg.Lifecycle == "per_call" {
			tmp := NewClient(cfg)
			if err := tmp.Connect(ctx); err != nil {
				kflog.Warn("mcp: per_call probe failed for %q: %v", cfg.Name, err)
				continue
			}
			infos, err := tmp.ListTools(ctx)
			_ = tmp.Close()
			if err != nil {
				kflog.Warn("mcp: per_call list tools failed for %q: %v", cfg.Name, err)
				continue
			}
			for _, info := range infos {
				out = append(out, newToolAdapter(cfg, info, nil))
			}
			continue
		}

		cli, err := m.persistentClient(ctx, cfg)
		if err != nil {
			kflog.Warn("mcp: connect failed for %q: %v", cfg.Name, err)
			continue
		}
		infos, err := cli.ListTools(ctx)
		if err != nil {
			kflog.Warn("mcp: list tools failed for %q: %v", cfg.Name, err)
			continue
		}
		for _, info := range infos {
			out = append(out, newToolAdapter(cfg, info, cli))
		}
	}
	return out, nil
}

func (m *Manager) persistentClient(ctx context.Context, cfg protocol.MCPServerConfig) (*Client, error) {
	m.mu.Lock()
	if cli, ok := m.clients[cfg.Name]; ok {
		m.mu.Unlock()
		return cli, nil
	}
	m.mu.Unlock()

	cli := NewClient(cfg)
	if err := cli.Connect(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.clients[cfg.Name] = cli
	m.mu.Unlock()
	return cli, nil
}

// CloseAll closes every persistent connection. Safe to call more than once.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	clients := m.clients
	m.clients = map[string]*Client{}
	m.mu.Unlock()

	for name, cli := range clients {
		if err := cli.Close(); err != nil {
			kflog.Warn("mcp: close error for %q: %v", name, err)
		}
	}
}

// toolAdapter exposes one MCP tool as a langchaingo tools.Tool. For
// per_call servers (persistent == nil) it dials a fresh Client on every
// Call; for persistent servers it reuses the shared connection.
type toolAdapter struct {
	cfg        protocol.MCPServerConfig
	info       ToolInfo
	persistent *Client
}

func newToolAdapter(cfg protocol.MCPServerConfig, info ToolInfo, persistent *Client) *toolAdapter {
	return &toolAdapter{cfg: cfg, info: info, persistent: persistent}
}

func (t *toolAdapter) Name() string        { return t.info.Name }
func (t *toolAdapter) Description() string { return t.info.Description }

// Schema exposes the server-advertised JSON schema, letting
// internal/workflow's agent node builder pass it straight through to the
// LLM instead of falling back to a generic single-string shape.
func (t *toolAdapter) Schema() map[string]any {
	if len(t.info.InputSchema) == 0 {
		return nil
	}
	var schema map[string]any
	if err := json.Unmarshal(t.info.InputSchema, &schema); err != nil {
		return nil
	}
	return schema
}

func (t *toolAdapter) Call(ctx context.Context, input string) (string, error) {
	var args map[string]any
	if input != "" {
		if err := json.Unmarshal([]byte(input), &args); err != nil {
			return "", fmt.Errorf("mcp: tool %q: invalid arguments: %w", t.info.Name, err)
		}
	}

	if t.persistent != nil {
		return t.persistent.CallTool(ctx, t.info.Name, args)
	}

	cli := NewClient(t.cfg)
	if err := cli.Connect(ctx); err != nil {
		return "", fmt.Errorf("mcp: per_call connect %q: %w", t.cfg.Name, err)
	}
	defer cli.Close()
	return cli.CallTool(ctx, t.info.Name, args)
}
