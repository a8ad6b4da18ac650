// Package tool implements the small built-in local tool set agent nodes can
// draw on by name, as langchaingo tools.Tool implementations. Grounded on
// original_source/src/tools/basic_tools.py (file_reader, file_writer,
// system_info, calculator, current_time) — a supplemental feature
// (SPEC_FULL.md §4.5) the distilled spec.md's Non-goals don't exclude,
// since those only name I/O-heavy tool implementations (shell, browser,
// search), not small in-process utilities.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/tmc/langchaingo/tools"
)

// Registry looks tools up by name the way the original's node_factory.py
// resolves an agent's declared tools[] list.
type Registry struct {
	tools map[string]tools.Tool
}

// NewRegistry builds a Registry pre-populated with every built-in tool.
func NewRegistry() *Registry {
	r := &Registry{tools: map[string]tools.Tool{}}
	for _, t := range []tools.Tool{
		&FileReaderTool{},
		&FileWriterTool{},
		&SystemInfoTool{},
		&CalculatorTool{},
		&CurrentTimeTool{},
	} {
		r.tools[t.Name()] = t
	}
	return r
}

// Register adds or overrides a named tool, letting callers extend the
// built-in set (e.g. with MCP-backed tools resolved at agent-build time).
func (r *Registry) Register(t tools.Tool) { r.tools[t.Name()] = t }

// Resolve looks up each name in names, skipping (with no error) any that
// aren't registered — an agent's tools[] may reference MCP tool names that
// live in a different registry entirely.
func (r *Registry) Resolve(names []string) []tools.Tool {
	out := make([]tools.Tool, 0, len(names))
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			out = append(out, t)
		}
	}
	return out
}

// FileReaderTool reads a file from the local filesystem.
type FileReaderTool struct{}

func (t *FileReaderTool) Name() string { return "file_reader" }
func (t *FileReaderTool) Description() string {
	return `Reads a text file from disk. Input: {"path": "..."}`
}

// Schema advertises the parameter shape to the LLM (internal/workflow's
// agent node builder prefers this over its generic single-string fallback).
func (t *FileReaderTool) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"path": map[string]any{"type": "string", "description": "file path to read"}},
		"required":   []string{"path"},
	}
}

func (t *FileReaderTool) Call(ctx context.Context, input string) (string, error) {
	var args struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("file_reader: invalid input: %w", err)
	}
	data, err := os.ReadFile(args.Path)
	if err != nil {
		return "", fmt.Errorf("file_reader: %w", err)
	}
	return string(data), nil
}

// FileWriterTool writes a text file to the local filesystem.
type FileWriterTool struct{}

func (t *FileWriterTool) Name() string { return "file_writer" }
func (t *FileWriterTool) Description() string {
	return `Writes a text file to disk. Input: {"path": "...", "content": "..."}`
}

// Schema advertises the parameter shape to the LLM.
func (t *FileWriterTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string", "description": "file path to write"},
			"content": map[string]any{"type": "string", "description": "text content to write"},
		},
		"required": []string{"path", "content"},
	}
}

func (t *FileWriterTool) Call(ctx context.Context, input string) (string, error) {
	var args struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("file_writer: invalid input: %w", err)
	}
	if err := os.WriteFile(args.Path, []byte(args.Content), 0644); err != nil {
		return "", fmt.Errorf("file_writer: %w", err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(args.Content), args.Path), nil
}

// SystemInfoTool reports basic host/runtime metadata.
type SystemInfoTool struct{}

func (t *SystemInfoTool) Name() string        { return "system_info" }
func (t *SystemInfoTool) Description() string { return "Returns OS, architecture, and Go runtime version. No input required." }

// Schema advertises the (empty) parameter shape to the LLM.
func (t *SystemInfoTool) Schema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *SystemInfoTool) Call(ctx context.Context, input string) (string, error) {
	info := map[string]string{
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"go_version": runtime.Version(),
	}
	b, err := json.Marshal(info)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CalculatorTool evaluates a small set of binary arithmetic operations.
type CalculatorTool struct{}

func (t *CalculatorTool) Name() string { return "calculator" }
func (t *CalculatorTool) Description() string {
	return `Evaluates a binary arithmetic expression. Input: {"op": "+|-|*|/", "a": number, "b": number}`
}

// Schema advertises the parameter shape to the LLM.
func (t *CalculatorTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"op": map[string]any{"type": "string", "enum": []string{"+", "-", "*", "/"}},
			"a":  map[string]any{"type": "number"},
			"b":  map[string]any{"type": "number"},
		},
		"required": []string{"op", "a", "b"},
	}
}

func (t *CalculatorTool) Call(ctx context.Context, input string) (string, error) {
	var args struct {
		Op string  `json:"op"`
		A  float64 `json:"a"`
		B  float64 `json:"b"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("calculator: invalid input: %w", err)
	}

	var result float64
	switch args.Op {
	case "+":
		result = args.A + args.B
	case "-":
		result = args.A - args.B
	case "*":
		result = args.A * args.B
	case "/":
		if args.B == 0 {
			return "", fmt.Errorf("calculator: division by zero")
		}
		result = args.A / args.B
	default:
		return "", fmt.Errorf("calculator: unsupported op %q", args.Op)
	}
	return fmt.Sprintf("%v", result), nil
}

// CurrentTimeTool returns the current time in RFC3339 format.
type CurrentTimeTool struct{}

func (t *CurrentTimeTool) Name() string        { return "current_time" }
func (t *CurrentTimeTool) Description() string { return "Returns the current UTC time in RFC3339 format. No input required." }

// Schema advertises the (empty) parameter shape to the LLM.
func (t *CurrentTimeTool) Schema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *CurrentTimeTool) Call(ctx context.Context, input string) (string, error) {
	return time.Now().UTC().Format(time.RFC3339), nil
}
