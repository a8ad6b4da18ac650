// Package protocol parses and validates the YAML workflow description into
// a typed in-memory model, then compiles down to the objects the graph
// compiler consumes. Grounded on
// original_source/src/core/graph/protocol_parser.py and
// original_source/src/core/graph/models.py.
package protocol

// NodeKind is the tagged variant replacing the original's inheritance-based
// node dispatch (spec.md §9 "Dynamic dispatch").
type NodeKind string

const (
	NodeStart     NodeKind = "start"
	NodeEnd       NodeKind = "end"
	NodeAgent     NodeKind = "agent"
	NodeCondition NodeKind = "condition"
)

// AgentKind distinguishes a plain single-shot agent from a tool-using react
// agent.
type AgentKind string

const (
	AgentPlain AgentKind = "agent"
	AgentReact AgentKind = "react_agent"
)

// SupportedSchemaVersions is the known set accepted by the Validator.
var SupportedSchemaVersions = map[string]bool{
	"1.0.0": true,
}

// LoopConfig normalizes an agent's react-loop knobs. Zero-value fields are
// filled with NormalizeLoop's defaults at parse time.
type LoopConfig struct {
	Enable            bool     `yaml:"enable"`
	MaxIterations     int      `yaml:"max_iterations"`
	LoopDelaySeconds  float64  `yaml:"loop_delay"`
	ForceExitKeywords []string `yaml:"force_exit_keywords"`
	NoToolGoto        string   `yaml:"no_tool_goto"`
}

// NormalizeLoop fills in the defaults from spec.md §4.2:
// {enable=false, max_iterations=10, loop_delay=1s, force_exit_keywords=[],
// no_tool_goto=null}.
func NormalizeLoop(l LoopConfig) LoopConfig {
	if l.MaxIterations <= 0 {
		l.MaxIterations = 10
	}
	if l.LoopDelaySeconds <= 0 {
		l.LoopDelaySeconds = 1
	}
	if l.ForceExitKeywords == nil {
		l.ForceExitKeywords = []string{}
	}
	return l
}

// LLMConfig is the default/per-agent LLM knob set.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	TimeoutSecs float64 `yaml:"timeout"`
}

// Merge overlays non-zero fields of override onto a copy of the receiver,
// implementing "agent-local overrides default" (spec.md §4.5 step 1).
func (c LLMConfig) Merge(override LLMConfig) LLMConfig {
	out := c
	if override.Provider != "" {
		out.Provider = override.Provider
	}
	if override.Model != "" {
		out.Model = override.Model
	}
	if override.Temperature != 0 {
		out.Temperature = override.Temperature
	}
	if override.MaxTokens != 0 {
		out.MaxTokens = override.MaxTokens
	}
	if override.APIKey != "" {
		out.APIKey = override.APIKey
	}
	if override.BaseURL != "" {
		out.BaseURL = override.BaseURL
	}
	if override.TimeoutSecs != 0 {
		out.TimeoutSecs = override.TimeoutSecs
	}
	return out
}

// MCPServerConfig describes one MCP server an agent may draw tools from.
// Lifecycle defaults to "persistent" per original_source/src/mcp/mcp.py —
// a supplemental field the distilled spec.md doesn't name but which shapes
// whether internal/mcp.Manager keeps the connection open across requests
// or dials per-call.
type MCPServerConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "stdio" | "sse"
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	URL       string            `yaml:"url,omitempty"`
	Lifecycle string            `yaml:"lifecycle,omitempty"` // "persistent" | "per_call"
}

// NormalizeLifecycle fills in the "persistent" default.
func (m MCPServerConfig) NormalizeLifecycle() MCPServerConfig {
	if m.Lifecycle == "" {
		m.Lifecycle = "persistent"
	}
	return m
}

// AgentInfo is one entry of protocol.agents.
type AgentInfo struct {
	Type         AgentKind         `yaml:"type"`
	SystemPrompt string            `yaml:"system_prompt"`
	LLM          LLMConfig         `yaml:"llm"`
	Tools        []string          `yaml:"tools"`
	MCPServers   []MCPServerConfig `yaml:"mcp_servers"`
	Loop         LoopConfig        `yaml:"loop"`
}

// InputSpec is one declared node input.
type InputSpec struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Source   string `yaml:"source,omitempty"`
	Required bool   `yaml:"required"`
	Default  any    `yaml:"default,omitempty"`
}

// OutputSpec is one declared node output.
type OutputSpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// WorkflowNode is one vertex of workflow.nodes.
type WorkflowNode struct {
	Name       string            `yaml:"name"`
	Type       NodeKind          `yaml:"type"`
	AgentRef   string            `yaml:"agent_ref,omitempty"`
	Inputs     []InputSpec       `yaml:"inputs,omitempty"`
	Outputs    []OutputSpec      `yaml:"outputs,omitempty"`
	Conditions map[string]string `yaml:"conditions,omitempty"`
}

// WorkflowEdge is one edge of workflow.edges. From/To are remapped at parse
// time from the YAML keys "from"/"to" (spec.md §4.2).
type WorkflowEdge struct {
	From      string `yaml:"from"`
	To        string `yaml:"to"`
	Condition string `yaml:"condition,omitempty"`
}

// Workflow is the {nodes, edges} subgraph.
type Workflow struct {
	Nodes []WorkflowNode `yaml:"nodes"`
	Edges []WorkflowEdge `yaml:"edges"`
}

// MemoryConfig selects and configures the checkpoint backend.
type MemoryConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Provider       string `yaml:"provider"` // "memory" | "mongodb"
	MongoURI       string `yaml:"mongo_uri,omitempty"`
	MongoDB        string `yaml:"mongo_db,omitempty"`
	MongoColl      string `yaml:"mongo_collection,omitempty"`
}

// RuntimeConfig holds execution-time knobs, including the externalized
// completion-keyword set (SPEC_FULL's resolution of spec.md §9's open
// question about hardcoded locale-specific terms).
type RuntimeConfig struct {
	CompletionKeywords []string `yaml:"completion_keywords,omitempty"`
}

// LoggingConfig mirrors the YAML global_config.logging block.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// GlobalConfig is protocol.global_config.
type GlobalConfig struct {
	Runtime RuntimeConfig `yaml:"runtime,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
	Memory  MemoryConfig  `yaml:"memory,omitempty"`
}

// Meta is protocol.protocol: name/version/schema_version/description/author.
type Meta struct {
	Name          string `yaml:"name"`
	Version       string `yaml:"version"`
	SchemaVersion string `yaml:"schema_version"`
	Description   string `yaml:"description,omitempty"`
	Author        string `yaml:"author,omitempty"`
	License       string `yaml:"license,omitempty"`
}

// Protocol is the fully parsed, not-yet-validated in-memory model of one
// YAML workflow document.
type Protocol struct {
	ID           int                  `yaml:"id"`
	Meta         Meta                 `yaml:"protocol"`
	GlobalConfig GlobalConfig         `yaml:"global_config"`
	LLMConfig    LLMConfig            `yaml:"llm_config"`
	Agents       map[string]AgentInfo `yaml:"agents"`
	Workflow     Workflow             `yaml:"workflow"`
}
