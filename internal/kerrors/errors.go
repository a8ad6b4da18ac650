// Package kerrors defines the error taxonomy shared across the workflow
// engine: config, compile, runtime, cancellation, and persistence failures.
// Every kind wraps an underlying cause and is distinguishable with errors.Is.
package kerrors

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Wrap one of these with fmt.Errorf("...: %w", err) (or the
// New* constructors below) so callers can errors.Is against the kind rather
// than the specific message.
var (
	// ErrConfig covers unknown config ids, YAML parse failures, and
	// validation failures.
	ErrConfig = errors.New("config error")
	// ErrCompile covers graph-assembly failures: inconsistent edges after
	// validation, unsupported node kinds.
	ErrCompile = errors.New("compile error")
	// ErrRuntime covers LLM call, tool call, and MCP transport failures.
	ErrRuntime = errors.New("runtime error")
	// ErrCancellation marks a consumer-initiated disconnect.
	ErrCancellation = errors.New("cancellation error")
	// ErrPersistence covers checkpoint-store connectivity and
	// serialization failures.
	ErrPersistence = errors.New("persistence error")
)

// ConfigError wraps ErrConfig with a path/id and reason.
type ConfigError struct {
	ConfigID string
	Reason   string
	Err      error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %q: %s: %v", e.ConfigID, e.Reason, e.Err)
	}
	return fmt.Sprintf("config %q: %s", e.ConfigID, e.Reason)
}

func (e *ConfigError) Unwrap() error { return errJoin(ErrConfig, e.Err) }

// NewConfigError builds a *ConfigError.
func NewConfigError(configID, reason string, cause error) *ConfigError {
	return &ConfigError{ConfigID: configID, Reason: reason, Err: cause}
}

// CompileError wraps ErrCompile.
type CompileError struct {
	Reason string
	Err    error
}

func (e *CompileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("compile: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("compile: %s", e.Reason)
}

func (e *CompileError) Unwrap() error { return errJoin(ErrCompile, e.Err) }

// NewCompileError builds a *CompileError.
func NewCompileError(reason string, cause error) *CompileError {
	return &CompileError{Reason: reason, Err: cause}
}

// RuntimeError wraps ErrRuntime, tagged with the node that produced it.
type RuntimeError struct {
	Node string
	Err  error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime: node %q: %v", e.Node, e.Err)
}

func (e *RuntimeError) Unwrap() error { return errJoin(ErrRuntime, e.Err) }

// NewRuntimeError builds a *RuntimeError.
func NewRuntimeError(node string, cause error) *RuntimeError {
	return &RuntimeError{Node: node, Err: cause}
}

// CancellationError wraps ErrCancellation.
type CancellationError struct {
	ThreadID string
	Err      error
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("cancelled: thread %q: %v", e.ThreadID, e.Err)
}

func (e *CancellationError) Unwrap() error { return errJoin(ErrCancellation, e.Err) }

// NewCancellationError builds a *CancellationError.
func NewCancellationError(threadID string, cause error) *CancellationError {
	return &CancellationError{ThreadID: threadID, Err: cause}
}

// PersistenceError wraps ErrPersistence.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return errJoin(ErrPersistence, e.Err) }

// NewPersistenceError builds a *PersistenceError.
func NewPersistenceError(op string, cause error) *PersistenceError {
	return &PersistenceError{Op: op, Err: cause}
}

// errJoin lets Unwrap expose both the sentinel kind and the original cause
// to errors.Is/errors.As without requiring Go 1.20's multi-unwrap on every
// call site.
func errJoin(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return errors.Join(kind, cause)
}
