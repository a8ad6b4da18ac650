// Package workflow's engine.go drives a Compiled graph against one shared
// State, bracketing execution with the graph_start/graph_end/error/
// cancelled lifecycle events spec.md §4.7 requires and forwarding
// cancellation from ctx into the enclosing graph.StateRunnable.Invoke call
// (its own suspension points — LLM calls, tool calls, loop-delay sleeps —
// already check ctx via the node builders in nodes_agent.go).
package workflow

import (
	"context"
	"errors"

	"github.com/devyk/kaflow-go/internal/kerrors"
)

// Checkpointer persists a snapshot of state under threadID. internal/
// checkpoint.Store satisfies this structurally; Engine treats a nil
// Checkpointer as "persistence disabled" so tests can exercise execution
// without a store.
type Checkpointer interface {
	Put(ctx context.Context, threadID string, state State) error
}

// Engine wraps one Compiled graph with the collaborators needed to run it
// as a request: persistence and, for Stream, an event channel.
type Engine struct {
	compiled   *Compiled
	checkpoint Checkpointer
}

// NewEngine builds an Engine around a compiled graph. checkpoint may be nil.
func NewEngine(compiled *Compiled, checkpoint Checkpointer) *Engine {
	return &Engine{compiled: compiled, checkpoint: checkpoint}
}

// Invoke runs the graph to completion and returns the final state
// (spec.md §4.7 "Unary invoke"). It persists exactly one checkpoint on
// success, matching scenario A's "checkpoint store records exactly one
// snapshot" expectation.
func (e *Engine) Invoke(ctx context.Context, initial State) (State, error) {
	final, err := e.compiled.Runnable.Invoke(ctx, initial)
	if err != nil {
		return final, classifyEngineError(ctx, err)
	}
	if e.checkpoint != nil {
		if perr := e.checkpoint.Put(ctx, final.ThreadID(), final); perr != nil {
			return final, kerrors.NewPersistenceError("put", perr)
		}
	}
	return final, nil
}

// Stream runs the graph on a background goroutine, installing an EventSink
// in the context it passes down so node builders' Emit calls (nodes_agent.go)
// reach evs. It brackets the run with graph_start and exactly one of
// graph_end/error/cancelled (spec.md §4.7, §8 property 3), then closes evs.
//
// The caller must drain evs to completion (or cancel ctx and keep draining
// until it closes) — evs buffers 16 events, and past that Stream's sends
// block until the caller receives; it does not select on a full channel.
func (e *Engine) Stream(ctx context.Context, initial State) <-chan Event {
	evs := make(chan Event, 16)

	go func() {
		defer close(evs)

		threadID := initial.ThreadID()
		evs <- Event{Type: EventGraphStart, ThreadID: threadID}

		sinkCtx := WithEventSink(ctx, func(ev Event) {
			if ev.ThreadID == "" {
				ev.ThreadID = threadID
			}
			evs <- ev
		})

		final, err := e.compiled.Runnable.Invoke(sinkCtx, initial)
		if err != nil {
			if isCancellation(ctx, err) {
				evs <- Event{Type: EventCancelled, ThreadID: threadID}
				return
			}
			evs <- Event{Type: EventError, ThreadID: threadID, Error: classifyEngineError(ctx, err).Error()}
			return
		}

		if e.checkpoint != nil {
			if perr := e.checkpoint.Put(ctx, final.ThreadID(), final); perr != nil {
				evs <- Event{Type: EventError, ThreadID: threadID, Error: kerrors.NewPersistenceError("put", perr).Error()}
				return
			}
		}

		evs <- Event{Type: EventGraphEnd, ThreadID: threadID}
	}()

	return evs
}

func classifyEngineError(ctx context.Context, err error) error {
	if isCancellation(ctx, err) {
		return kerrors.NewCancellationError("", err)
	}
	return kerrors.NewRuntimeError("", err)
}

func isCancellation(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled)
}
