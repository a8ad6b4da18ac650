// Kaflow - a declarative, YAML-defined agent workflow engine
//
// Kaflow compiles a YAML protocol file describing a directed graph of
// LLM-backed steps into an executable graph: start/agent/condition/end
// nodes connected by static and conditional edges, sharing one mutable
// state across the run. It exposes that graph over HTTP with
// Server-Sent-Events streaming and resumable, checkpointed chat history.
//
// # Quick Start
//
// Install the module:
//
//	go get github.com/devyk/kaflow-go
//
// Run the HTTP server against a directory of protocol files:
//
//	go run ./cmd/kaflow-server
//
// # Package Structure
//
// internal/protocol
// Parses and validates the YAML protocol format (agents, llm_config,
// workflow nodes/edges) into the in-memory Protocol type.
//
// internal/workflow
// Compiles a Protocol into a runnable graph (built on graph/, the
// Graph Compiler this module was built from), runs it node by node,
// and emits streaming Events.
//
// internal/registry
// Scans a configs directory, lazily compiles each protocol on first
// use, and resolves a thread id back to its owning config.
//
// internal/checkpoint
// Persists chat state per thread: an in-process MemoryStore for
// development and a MongoDB-backed store for production, selected at
// startup via KAFLOW_MEMORY_PROVIDER.
//
// internal/stream
// Reassembles fragmented tool-call chunks from a streaming LLM
// response and frames Events as Server-Sent-Events.
//
// internal/httpapi
// The HTTP surface: chat streaming, config listing, chat history and
// thread listing, health and version endpoints.
//
// internal/ioresolver
// Resolves a node's declared inputs from shared state and stores a
// node's outputs back into it.
//
// internal/tool, internal/mcp
// Built-in tools (calculator, file I/O, current time) and Model
// Context Protocol tool discovery, both exposed to agent nodes as
// langchaingo tools.Tool implementations.
//
// graph/
// The underlying graph construction and execution engine that
// internal/workflow compiles protocols onto: a generic StateGraph,
// conditional edges, subgraphs, retry policies, and the lower-level
// checkpointing contract in store/ used for graph/checkpointing.go's
// own default CheckpointableRunnable wiring (distinct from, and
// upstream of, internal/checkpoint's richer thread-aware store).
//
// log/
// The teacher's thin Logger interface over github.com/kataras/golog,
// re-exported for the rest of the module as internal/kflog.
//
// # License
//
// This project is licensed under the MIT License - see the LICENSE file for details.
package langgraphgo // import "github.com/devyk/kaflow-go"
