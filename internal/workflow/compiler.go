package workflow

import (
	"context"
	"fmt"

	"github.com/devyk/kaflow-go/graph"
	"github.com/devyk/kaflow-go/internal/kerrors"
	"github.com/devyk/kaflow-go/internal/kflog"
	"github.com/devyk/kaflow-go/internal/protocol"
)

// Compiled bundles the runnable graph produced from one Protocol with the
// bookkeeping the engine needs around it.
type Compiled struct {
	Runnable   *graph.StateRunnable[State]
	EntryPoint string
	NodeNames  []string
}

// Compile builds and compiles a graph.StateGraph[State] from p's workflow
// section, dispatching each node by kind to its builder (nodes_start.go,
// nodes_end.go, nodes_condition.go, nodes_agent.go) and installing one
// routing function per source node (spec.md §4.6 "Graph Compiler").
//
// Adapted, not copied: the teacher's graph.StateRunnable natively supports
// fan-out (a conditional edge's condition func may only return one target,
// but determineNextNodes lets multiple *nodes* run in the same step). This
// repository never needs that: routerFor always returns exactly one target
// per source node, matching spec.md's strictly-sequential execution model
// (DESIGN.md "Divergences from the teacher").
func Compile(p *protocol.Protocol, opts AgentNodeOptions) (*Compiled, error) {
	opts.Protocol = p
	g := graph.NewStateGraph[State]()

	var entry string
	nodeNames := make([]string, 0, len(p.Workflow.Nodes))
	byName := make(map[string]protocol.WorkflowNode, len(p.Workflow.Nodes))

	for _, node := range p.Workflow.Nodes {
		nodeNames = append(nodeNames, node.Name)
		byName[node.Name] = node

		fn, err := buildNodeFunc(node, p, opts)
		if err != nil {
			return nil, kerrors.NewCompileError(fmt.Sprintf("node %q", node.Name), err)
		}
		g.AddNode(node.Name, string(node.Type), fn)

		if node.Type == protocol.NodeStart {
			if entry != "" {
				return nil, kerrors.NewCompileError("multiple start nodes", fmt.Errorf("%q and %q", entry, node.Name))
			}
			entry = node.Name
		}
	}

	if entry == "" {
		return nil, kerrors.NewCompileError("no start node", nil)
	}
	g.SetEntryPoint(entry)

	edgesBySource := make(map[string][]protocol.WorkflowEdge)
	for _, e := range p.Workflow.Edges {
		edgesBySource[e.From] = append(edgesBySource[e.From], e)
	}

	for source, edges := range edgesBySource {
		src := byName[source]
		g.AddConditionalEdge(source, routerFor(src, edges))
	}

	runnable, err := g.Compile()
	if err != nil {
		return nil, kerrors.NewCompileError("graph assembly", err)
	}

	return &Compiled{Runnable: runnable, EntryPoint: entry, NodeNames: nodeNames}, nil
}

// buildNodeFunc dispatches node.Type to its builder, wrapping the
// synchronous (start/end/condition) builders into the
// func(context.Context, State) (State, error) shape graph.StateGraph
// requires. The agent builder already returns that shape natively, since
// it performs a context-bound LLM/tool call.
func buildNodeFunc(node protocol.WorkflowNode, p *protocol.Protocol, opts AgentNodeOptions) (func(context.Context, State) (State, error), error) {
	switch node.Type {
	case protocol.NodeStart:
		return wrapSync(BuildStartNode(node)), nil
	case protocol.NodeEnd:
		return wrapSync(BuildEndNode(node)), nil
	case protocol.NodeCondition:
		return wrapSync(BuildConditionNode(node)), nil
	case protocol.NodeAgent:
		info, ok := p.Agents[node.AgentRef]
		if !ok {
			return nil, fmt.Errorf("agent node %q: unknown agent_ref %q", node.Name, node.AgentRef)
		}
		info.Loop = protocol.NormalizeLoop(info.Loop)
		return BuildAgentNode(node, info, opts), nil
	default:
		return nil, fmt.Errorf("unsupported node type %q", node.Type)
	}
}

// wrapSync adapts a synchronous func(State) State builder to the
// context-aware signature graph.StateGraph.AddNode expects, returning early
// if the context was already cancelled.
func wrapSync(fn func(State) State) func(context.Context, State) (State, error) {
	return func(ctx context.Context, state State) (State, error) {
		if err := ctx.Err(); err != nil {
			return state, err
		}
		return fn(state), nil
	}
}

// routerFor builds the single routing function installed for every source
// node that has at least one outgoing edge, implementing spec.md §4.6's
// precedence: a pending _goto_node override wins unconditionally; otherwise
// a condition node's first matching labeled edge (declaration order) wins;
// otherwise the lone static edge out of src is taken. No match routes to
// graph.END.
func routerFor(src protocol.WorkflowNode, edges []protocol.WorkflowEdge) func(context.Context, State) string {
	return func(_ context.Context, state State) string {
		if target, ok := state.GotoNode(); ok {
			state.ClearGotoNode()
			if target == "end" || target == "END" {
				return graph.END
			}
			return target
		}

		if src.Type == protocol.NodeCondition {
			out, ok := state.NodeOutputs()[src.Name]
			if ok {
				for _, e := range edges {
					if e.Condition == "" {
						continue
					}
					if ok, present := out.ConditionResults[e.Condition]; present && ok {
						return edgeTarget(e)
					}
				}
			}
			kflog.Warn("workflow: condition node %q: no matching edge, routing to END", src.Name)
			return graph.END
		}

		for _, e := range edges {
			if e.Condition == "" {
				return edgeTarget(e)
			}
		}
		// A non-condition node with only labeled edges is a protocol
		// authoring mistake caught by validation; fall back to the first
		// edge rather than dropping execution silently.
		if len(edges) > 0 {
			kflog.Warn("workflow: node %q has labeled edges but is not a condition node, using first edge", src.Name)
			return edgeTarget(edges[0])
		}
		return graph.END
	}
}

func edgeTarget(e protocol.WorkflowEdge) string {
	if e.To == "end" || e.To == "END" {
		return graph.END
	}
	return e.To
}
