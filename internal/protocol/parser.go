package protocol

import (
	"bytes"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/devyk/kaflow-go/internal/kerrors"
)

// envVarPattern matches ${VAR} and ${VAR:default}, grounded on
// protocol_parser.py's _resolve_env_vars regex `\$\{([^}:]+)(?::([^}]*))?\}`.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// resolveEnvVars substitutes every ${VAR} / ${VAR:default} occurrence in raw
// YAML bytes, before the document is parsed.
func resolveEnvVars(content []byte) []byte {
	return envVarPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		groups := envVarPattern.FindSubmatch(match)
		name := string(groups[1])
		def := ""
		if len(groups) > 2 {
			def = string(groups[2])
		}
		if v, ok := os.LookupEnv(name); ok {
			return []byte(v)
		}
		return []byte(def)
	})
}

// rawEdge mirrors the YAML "from"/"to" keys before remapping onto
// WorkflowEdge's internal field names (spec.md §4.2).
type rawEdge struct {
	From      string `yaml:"from"`
	To        string `yaml:"to"`
	Condition string `yaml:"condition,omitempty"`
}

// rawDocument is the tolerant top-level shape: unknown top-level keys are
// ignored (forward compatibility); only the "protocol" block is re-decoded
// strictly, by strictDecodeProtocolBlock.
type rawDocument struct {
	ID           int                  `yaml:"id"`
	Meta         Meta                 `yaml:"protocol"`
	GlobalConfig GlobalConfig         `yaml:"global_config"`
	LLMConfig    LLMConfig            `yaml:"llm_config"`
	Agents       map[string]AgentInfo `yaml:"agents"`
	Workflow     struct {
		Nodes []WorkflowNode `yaml:"nodes"`
		Edges []rawEdge      `yaml:"edges"`
	} `yaml:"workflow"`
}

// Parse decodes YAML bytes into a Protocol, after ${VAR} interpolation.
// Unknown top-level keys are tolerated; unknown keys inside the strongly
// typed "protocol" block fail fast via a strict re-decode of that
// sub-document (spec.md §4.2).
func Parse(raw []byte) (*Protocol, error) {
	content := resolveEnvVars(raw)

	var doc rawDocument
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, kerrors.NewConfigError("", "yaml parse failed", err)
	}

	if err := strictDecodeProtocolBlock(content); err != nil {
		return nil, kerrors.NewConfigError("", "protocol block has unknown fields", err)
	}

	p := &Protocol{
		ID:           doc.ID,
		Meta:         doc.Meta,
		GlobalConfig: doc.GlobalConfig,
		LLMConfig:    doc.LLMConfig,
		Agents:       doc.Agents,
		Workflow: Workflow{
			Nodes: doc.Workflow.Nodes,
			Edges: make([]WorkflowEdge, 0, len(doc.Workflow.Edges)),
		},
	}

	for _, e := range doc.Workflow.Edges {
		p.Workflow.Edges = append(p.Workflow.Edges, WorkflowEdge{
			From:      e.From,
			To:        e.To,
			Condition: e.Condition,
		})
	}

	for name, agent := range p.Agents {
		agent.Loop = NormalizeLoop(agent.Loop)
		for i := range agent.MCPServers {
			agent.MCPServers[i] = agent.MCPServers[i].NormalizeLifecycle()
		}
		p.Agents[name] = agent
	}

	return p, nil
}

// strictDecodeProtocolBlock re-decodes just the top-level "protocol" mapping
// with KnownFields(true), so a typo inside that block fails the parse
// instead of being silently dropped.
func strictDecodeProtocolBlock(content []byte) error {
	var wrapper struct {
		Protocol yaml.Node `yaml:"protocol"`
	}
	if err := yaml.Unmarshal(content, &wrapper); err != nil {
		return err
	}
	if wrapper.Protocol.Kind == 0 {
		return nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(mustMarshal(&wrapper.Protocol)))
	dec.KnownFields(true)
	var strict Meta
	if err := dec.Decode(&strict); err != nil {
		return fmt.Errorf("unknown field in protocol.*: %w", err)
	}
	return nil
}

func mustMarshal(n *yaml.Node) []byte {
	b, err := yaml.Marshal(n)
	if err != nil {
		return nil
	}
	return b
}

// ParseFile reads path and parses it.
func ParseFile(path string) (*Protocol, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, kerrors.NewConfigError(path, "read failed", err)
	}
	return Parse(raw)
}

// Marshal renders a Protocol back to YAML, supporting the round-trip law
// in spec.md §8 (field-order-insensitive equality is the caller's job via a
// semantic diff, not this function's).
func Marshal(p *Protocol) ([]byte, error) {
	doc := struct {
		ID           int                  `yaml:"id"`
		Protocol     Meta                 `yaml:"protocol"`
		GlobalConfig GlobalConfig         `yaml:"global_config"`
		LLMConfig    LLMConfig            `yaml:"llm_config"`
		Agents       map[string]AgentInfo `yaml:"agents"`
		Workflow     struct {
			Nodes []WorkflowNode `yaml:"nodes"`
			Edges []rawEdge      `yaml:"edges"`
		} `yaml:"workflow"`
	}{
		ID:           p.ID,
		Protocol:     p.Meta,
		GlobalConfig: p.GlobalConfig,
		LLMConfig:    p.LLMConfig,
		Agents:       p.Agents,
	}
	doc.Workflow.Nodes = p.Workflow.Nodes
	for _, e := range p.Workflow.Edges {
		doc.Workflow.Edges = append(doc.Workflow.Edges, rawEdge{From: e.From, To: e.To, Condition: e.Condition})
	}
	return yaml.Marshal(doc)
}
