package workflow

import (
	"strconv"
	"strings"

	"github.com/devyk/kaflow-go/internal/protocol"
)

// evalCondition is a hand-written recursive-descent evaluator for the tiny
// grammar in spec.md §4.5/§9: "<path> == <literal>", "<path> != <literal>",
// "not <expr>", and a bare "<path>" coerced to boolean. This is
// deliberately not a general expression engine — anything outside the
// grammar is rejected (returns an error) rather than silently passed to an
// eval.
func evalCondition(expr string, state State) (bool, error) {
	expr = strings.TrimSpace(expr)

	if rest, ok := strings.CutPrefix(expr, "not "); ok {
		v, err := evalCondition(rest, state)
		if err != nil {
			return false, err
		}
		return !v, nil
	}

	if op, path, lit, ok := splitComparison(expr); ok {
		left := resolvePath(path, state)
		right, err := parseLiteral(lit)
		if err != nil {
			return false, err
		}
		eq := compareEqual(left, right)
		if op == "==" {
			return eq, nil
		}
		return !eq, nil
	}

	// Bare path, coerced to boolean.
	return truthy(resolvePath(expr, state)), nil
}

// splitComparison looks for a top-level "==" or "!=" and splits the
// expression into (op, path, literal). Returns ok=false if no comparison
// operator is present.
func splitComparison(expr string) (op, path, lit string, ok bool) {
	if idx := strings.Index(expr, "=="); idx >= 0 {
		return "==", strings.TrimSpace(expr[:idx]), strings.TrimSpace(expr[idx+2:]), true
	}
	if idx := strings.Index(expr, "!="); idx >= 0 {
		return "!=", strings.TrimSpace(expr[:idx]), strings.TrimSpace(expr[idx+2:]), true
	}
	return "", "", "", false
}

// parseLiteral parses true|false, an integer, or a double-quoted string.
func parseLiteral(lit string) (any, error) {
	switch lit {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if n, err := strconv.Atoi(lit); err == nil {
		return n, nil
	}
	if strings.HasPrefix(lit, `"`) && strings.HasSuffix(lit, `"`) && len(lit) >= 2 {
		return lit[1 : len(lit)-1], nil
	}
	return nil, &conditionSyntaxError{expr: lit}
}

type conditionSyntaxError struct{ expr string }

func (e *conditionSyntaxError) Error() string {
	return "condition: unsupported literal " + strconv.Quote(e.expr)
}

// resolvePath follows IO Resolver "source" path semantics (spec.md §4.5:
// "<path> follows IO Resolver path semantics"): "<node>.<field>" reads
// node_outputs, "state.<path>" walks the shared state, "global.<path>"
// walks context, and a bare name reads the top-level state directly.
// Duplicated in miniature from internal/ioresolver rather than imported,
// since internal/ioresolver itself depends on this package for State.
func resolvePath(path string, state State) any {
	parts := strings.SplitN(path, ".", 2)
	if len(parts) == 1 {
		return state[path]
	}

	prefix, rest := parts[0], parts[1]
	switch prefix {
	case "state":
		return getNestedValue(map[string]any(state), rest)
	case "global":
		return getNestedValue(state.Context(), rest)
	default:
		out, ok := state.NodeOutputs()[prefix]
		if !ok {
			return nil
		}
		return getNestedValue(out.Outputs, rest)
	}
}

func getNestedValue(obj map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var current any = obj
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[part]
		if !ok {
			return nil
		}
	}
	return current
}

func compareEqual(left, right any) bool {
	switch r := right.(type) {
	case bool:
		lb, ok := left.(bool)
		return ok && lb == r
	case int:
		switch l := left.(type) {
		case int:
			return l == r
		case float64:
			return l == float64(r)
		}
		return false
	case string:
		ls, ok := left.(string)
		return ok && ls == r
	}
	return false
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case float64:
		return x != 0
	default:
		return true
	}
}

// EvaluateConditions evaluates every entry of node.Conditions and returns
// the {label: bool} map stored in node_outputs (spec.md §4.5). Evaluation
// errors yield false for that label plus a logged warning (handled by the
// caller, which has access to the node name for context).
func EvaluateConditions(node protocol.WorkflowNode, state State) (map[string]bool, []error) {
	results := make(map[string]bool, len(node.Conditions))
	var errs []error
	for label, expr := range node.Conditions {
		v, err := evalCondition(expr, state)
		if err != nil {
			results[label] = false
			errs = append(errs, err)
			continue
		}
		results[label] = v
	}
	return results, errs
}
