package protocol

import (
	"fmt"
	"strings"

	"github.com/devyk/kaflow-go/internal/kflog"
)

// ValidationError aggregates every structural problem found in one pass,
// per spec.md §4.3 ("Returns an aggregated list of errors").
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Errors, "; "))
}

// Validate applies every structural and referential check from spec.md
// §4.3. Returns nil if the protocol is valid, or a *ValidationError holding
// every problem found (the compiler refuses to proceed if non-empty).
func Validate(p *Protocol) error {
	var errs []string

	if !SupportedSchemaVersions[p.Meta.SchemaVersion] {
		errs = append(errs, fmt.Sprintf("unknown schema_version %q", p.Meta.SchemaVersion))
	}

	nodeNames := make(map[string]WorkflowNode, len(p.Workflow.Nodes))
	startCount, endCount := 0, 0
	for _, n := range p.Workflow.Nodes {
		if _, dup := nodeNames[n.Name]; dup {
			errs = append(errs, fmt.Sprintf("duplicate node name %q", n.Name))
		}
		nodeNames[n.Name] = n

		switch n.Type {
		case NodeStart:
			startCount++
		case NodeEnd:
			endCount++
		case NodeAgent:
			if n.AgentRef == "" {
				errs = append(errs, fmt.Sprintf("node %q is type=agent but has no agent_ref", n.Name))
			} else if _, ok := p.Agents[n.AgentRef]; !ok {
				errs = append(errs, fmt.Sprintf("node %q references unknown agent %q", n.Name, n.AgentRef))
			}
		case NodeCondition:
			if len(n.Conditions) == 0 {
				errs = append(errs, fmt.Sprintf("condition node %q declares no conditions", n.Name))
			}
		default:
			errs = append(errs, fmt.Sprintf("node %q has unsupported type %q", n.Name, n.Type))
		}
	}

	if startCount != 1 {
		errs = append(errs, fmt.Sprintf("workflow must have exactly one start node, found %d", startCount))
	}
	if endCount < 1 {
		errs = append(errs, "workflow must have at least one end node")
	}

	for _, e := range p.Workflow.Edges {
		from, fromOK := nodeNames[e.From]
		if !fromOK {
			errs = append(errs, fmt.Sprintf("edge references unknown source node %q", e.From))
		}
		if _, ok := nodeNames[e.To]; !ok {
			errs = append(errs, fmt.Sprintf("edge references unknown target node %q", e.To))
		}
		if fromOK && from.Type == NodeCondition && e.Condition == "" {
			errs = append(errs, fmt.Sprintf("condition node %q's edge to %q must carry a condition label", e.From, e.To))
		}
		// A condition present on a non-condition source node is tolerated
		// as a static edge (spec.md §4.6, §9's flagged ambiguity) — not a
		// validation failure, but flagged via a warning log rather than
		// silently ignored.
		if fromOK && from.Type != NodeCondition && e.Condition != "" {
			kflog.Warn("protocol: edge %s->%s carries condition %q on a non-condition source node; treated as a static edge", e.From, e.To, e.Condition)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: errs}
}
