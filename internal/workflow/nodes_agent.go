package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"

	"github.com/devyk/kaflow-go/internal/ioresolver"
	"github.com/devyk/kaflow-go/internal/kflog"
	"github.com/devyk/kaflow-go/internal/llmhandle"
	"github.com/devyk/kaflow-go/internal/protocol"
)

// ToolSource resolves an agent's declared local tools[] by name.
// internal/tool.Registry satisfies this structurally.
type ToolSource interface {
	Resolve(names []string) []tools.Tool
}

// MCPSource resolves an agent's declared mcp_servers[] into callable
// tools. internal/mcp.Manager satisfies this structurally.
type MCPSource interface {
	ResolveTools(ctx context.Context, servers []protocol.MCPServerConfig) ([]tools.Tool, error)
}

// schemaProvider is implemented by tools that advertise a JSON-schema
// parameter shape (internal/tool's built-ins and internal/mcp's tool
// adapter both do). Tools that don't implement it fall back to a generic
// single-string "input" schema, matching the teacher's own
// prebuilt/react_agent.go convention.
type schemaProvider interface {
	Schema() map[string]any
}

// AgentNodeOptions bundles the collaborators an agent node needs beyond
// the protocol itself: how to obtain an LLM handle (spec.md §4.5 step 1),
// where to resolve local and MCP tools (step 2), and the clock/sleep hooks
// tests override to make the loop-delay (step 3) deterministic.
type AgentNodeOptions struct {
	Protocol   *protocol.Protocol
	LLMFactory func(llmhandle.Config) llms.Model
	Tools      ToolSource
	MCP        MCPSource
	Sleep      func(time.Duration)
}

func (o AgentNodeOptions) sleep(d time.Duration) {
	if o.Sleep != nil {
		o.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (o AgentNodeOptions) buildModel(merged protocol.LLMConfig) llms.Model {
	cfg := llmhandle.ConfigFromEnv().ApplyProtocol(merged)
	if o.LLMFactory != nil {
		return o.LLMFactory(cfg)
	}
	return llmhandle.New(cfg)
}

// BuildAgentNode returns the agent node's function (spec.md §4.5 "Agent
// node"), grounded on original_source/src/core/graph/factory.py's
// AgentNodeBuilder and the teacher's prebuilt/react_agent.go for the
// Go-idiomatic react-loop shape.
func BuildAgentNode(node protocol.WorkflowNode, info protocol.AgentInfo, opts AgentNodeOptions) func(context.Context, State) (State, error) {
	return func(ctx context.Context, state State) (State, error) {
		resolved := ioresolver.ResolveInputs(node, state)
		composedInput := ioresolver.BuildAgentInput(state, resolved)

		merged := opts.Protocol.LLMConfig.Merge(info.LLM)
		model := opts.buildModel(merged)

		toolSet, err := gatherTools(ctx, info, opts)
		if err != nil {
			return failAgent(node, state, err), nil
		}
		llmTools := toLLMTools(toolSet)

		var (
			finalContent string
			loopCount    int
		)

		if info.Loop.Enable {
			finalContent, loopCount, err = runLoop(ctx, node, info, state, model, toolSet, llmTools, composedInput, opts)
		} else {
			finalContent, err = runOnce(ctx, node, info, state, model, toolSet, llmTools, composedInput)
		}

		if err != nil {
			return failAgent(node, state, err), nil
		}

		// A no_tool_goto override (set inside runLoop) still gets a
		// completed node output — the router, not this function, decides
		// where execution goes next (spec.md §4.6).
		state.SetFinalResponse(finalContent)
		ioresolver.StoreOutputs(node, state, map[string]any{"response": finalContent, "message": finalContent})
		out := state.NodeOutputs()[node.Name]
		out.Status = "completed"
		out.LoopCount = loopCount
		state.SetNodeOutput(node.Name, out)
		state.SetCurrentStep("agent_completed:" + node.Name)
		return state, nil
	}
}

func failAgent(node protocol.WorkflowNode, state State, cause error) State {
	kflog.Warn("workflow: agent node %q failed: %v", node.Name, cause)
	msg := cause.Error()
	state.SetFinalResponse(msg)
	state.AppendMessage(Message{Role: RoleAI, Content: msg})
	state.SetNodeOutput(node.Name, NodeOutput{
		Status:  "failed",
		Outputs: map[string]any{"response": msg},
		Error:   msg,
	})
	state.SetCurrentStep("agent_failed:" + node.Name)
	return state
}

func gatherTools(ctx context.Context, info protocol.AgentInfo, opts AgentNodeOptions) ([]tools.Tool, error) {
	var out []tools.Tool
	if opts.Tools != nil && len(info.Tools) > 0 {
		out = append(out, opts.Tools.Resolve(info.Tools)...)
	}
	if opts.MCP != nil && len(info.MCPServers) > 0 {
		mcpTools, err := opts.MCP.ResolveTools(ctx, info.MCPServers)
		if err != nil {
			return nil, fmt.Errorf("resolve mcp tools: %w", err)
		}
		out = append(out, mcpTools...)
	}
	return out, nil
}

func toLLMTools(toolSet []tools.Tool) []llms.Tool {
	out := make([]llms.Tool, 0, len(toolSet))
	for _, t := range toolSet {
		schema := map[string]any{
			"type": "object",
			"properties": map[string]any{
				"input": map[string]any{
					"type":        "string",
					"description": "tool input",
				},
			},
		}
		if sp, ok := t.(schemaProvider); ok {
			if s := sp.Schema(); s != nil {
				schema = s
			}
		}
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  schema,
			},
		})
	}
	return out
}

func toolByName(toolSet []tools.Tool, name string) tools.Tool {
	for _, t := range toolSet {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

// runOnce implements spec.md §4.5 step 4: a single invocation. react_agent
// kind receives the full message history; a plain agent receives the
// composed input string as a single human message.
func runOnce(ctx context.Context, node protocol.WorkflowNode, info protocol.AgentInfo, state State, model llms.Model, toolSet []tools.Tool, llmTools []llms.Tool, composedInput string) (string, error) {
	var msgs []llms.MessageContent
	if info.Type == protocol.AgentReact {
		if len(state.Messages()) == 0 {
			state.AppendMessage(Message{Role: RoleHuman, Content: composedInput})
		}
		msgs = toLLMMessages(info.SystemPrompt, state.Messages())
	} else {
		msgs = toLLMMessages(info.SystemPrompt, []Message{{Role: RoleHuman, Content: composedInput}})
	}

	opts := []llms.CallOption{}
	if len(llmTools) > 0 {
		opts = append(opts, llms.WithTools(llmTools))
	}

	resp, err := model.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return "", fmt.Errorf("llm call: %w", err)
	}
	choice := resp.Choices[0]

	aiMsg := choiceToMessage(choice)
	state.AppendMessage(aiMsg)
	emitMessageChunk(ctx, state, node, choice)

	if len(aiMsg.ToolCalls) > 0 {
		emitToolCalls(ctx, state, node, aiMsg.ToolCalls)
		executeToolCalls(ctx, state, node, toolSet, aiMsg.ToolCalls)
	}

	return aiMsg.Content, nil
}

// maxToolRoundsPerIteration bounds the inner "call model -> execute tools"
// react turn so an adversarial LLM that never stops calling tools can't
// hang the node forever — mirrors prebuilt/react_agent.go's own
// iterationCount-against-maxIterations guard, just scoped to one outer
// agent-loop iteration instead of the whole run.
const maxToolRoundsPerIteration = 25

// runLoop implements spec.md §4.5 step 3: the react loop with an iteration
// cap, no_tool_goto, and completion-marker detection. Each outer iteration
// is a full react turn, grounded on original_source/src/core/graph/
// factory.py's _execute_agent_loop: an inner loop keeps calling the model
// and executing any tool calls it returns until a response carries none,
// and only that tool-call-free response is subject to the no_tool_goto and
// completion-marker checks.
func runLoop(ctx context.Context, node protocol.WorkflowNode, info protocol.AgentInfo, state State, model llms.Model, toolSet []tools.Tool, llmTools []llms.Tool, composedInput string, opts AgentNodeOptions) (string, int, error) {
	if len(state.Messages()) == 0 {
		state.AppendMessage(Message{Role: RoleHuman, Content: composedInput})
	}

	maxIter := info.Loop.MaxIterations
	if maxIter <= 0 {
		maxIter = 10
	}
	delay := time.Duration(info.Loop.LoopDelaySeconds * float64(time.Second))
	if delay < 0 {
		delay = 0
	}

	callOpts := []llms.CallOption{}
	if len(llmTools) > 0 {
		callOpts = append(callOpts, llms.WithTools(llmTools))
	}

	var lastContent string
	for iter := 1; iter <= maxIter; iter++ {
		var hadAnyToolCall bool

		for round := 0; round < maxToolRoundsPerIteration; round++ {
			msgs := toLLMMessages(info.SystemPrompt, state.Messages())

			resp, err := model.GenerateContent(ctx, msgs, callOpts...)
			if err != nil {
				return "", iter - 1, fmt.Errorf("llm call (iter %d): %w", iter, err)
			}
			choice := resp.Choices[0]
			aiMsg := choiceToMessage(choice)
			state.AppendMessage(aiMsg)
			emitMessageChunk(ctx, state, node, choice)
			lastContent = aiMsg.Content

			if len(aiMsg.ToolCalls) == 0 {
				break
			}
			hadAnyToolCall = true
			emitToolCalls(ctx, state, node, aiMsg.ToolCalls)
			executeToolCalls(ctx, state, node, toolSet, aiMsg.ToolCalls)
		}

		if iter == 1 && !hadAnyToolCall && info.Loop.NoToolGoto != "" {
			state.SetGotoNode(info.Loop.NoToolGoto)
			return lastContent, iter, nil
		}

		if IsCompletionMarker(lastContent, info.Loop.ForceExitKeywords) {
			return lastContent, iter, nil
		}

		if iter < maxIter {
			sleepRespectingContext(ctx, delay, opts.sleep)
		}
	}

	return lastContent, maxIter, nil
}

// sleepRespectingContext waits for d or ctx cancellation, whichever comes
// first, so the loop-delay suspension point (spec.md §5) is cancellable.
// sleep is a seam so tests can skip real time entirely.
func sleepRespectingContext(ctx context.Context, d time.Duration, sleep func(time.Duration)) {
	if d <= 0 {
		return
	}
	if ctx.Err() != nil {
		return
	}
	done := make(chan struct{})
	go func() {
		sleep(d)
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func choiceToMessage(choice *llms.ContentChoice) Message {
	m := Message{Role: RoleAI, Content: choice.Content}
	for _, tc := range choice.ToolCalls {
		var args map[string]any
		if tc.FunctionCall != nil {
			_ = json.Unmarshal([]byte(tc.FunctionCall.Arguments), &args)
			m.ToolCalls = append(m.ToolCalls, ToolCall{
				ID:   tc.ID,
				Name: tc.FunctionCall.Name,
				Args: args,
				Type: "function",
			})
		}
	}
	return m
}

func emitMessageChunk(ctx context.Context, state State, node protocol.WorkflowNode, choice *llms.ContentChoice) {
	Emit(ctx, Event{
		Type:         EventMessageChunk,
		ThreadID:     state.ThreadID(),
		Agent:        node.Name,
		Role:         "assistant",
		Content:      choice.Content,
		FinishReason: choice.StopReason,
	})
}

func emitToolCalls(ctx context.Context, state State, node protocol.WorkflowNode, calls []ToolCall) {
	Emit(ctx, Event{
		Type:         EventToolCalls,
		ThreadID:     state.ThreadID(),
		Agent:        node.Name,
		Role:         "assistant",
		ToolCalls:    calls,
		FinishReason: "tool_calls",
	})
}

func executeToolCalls(ctx context.Context, state State, node protocol.WorkflowNode, toolSet []tools.Tool, calls []ToolCall) {
	for _, call := range calls {
		t := toolByName(toolSet, call.Name)
		var result string
		var err error
		if t == nil {
			err = fmt.Errorf("tool %q not found", call.Name)
		} else {
			argBytes, _ := json.Marshal(call.Args)
			result, err = t.Call(ctx, string(argBytes))
		}
		if err != nil {
			result = fmt.Sprintf("error: %v", err)
			kflog.Warn("workflow: tool %q failed for agent %q: %v", call.Name, node.Name, err)
		}

		state.SetToolResult(call.ID, result)
		state.AppendMessage(Message{Role: RoleTool, Content: result, ToolCallID: call.ID})

		Emit(ctx, Event{
			Type:       EventToolCallResult,
			ThreadID:   state.ThreadID(),
			Agent:      node.Name,
			Role:       "tool",
			Content:    result,
			ToolCallID: call.ID,
		})
	}
}

// toLLMMessages converts workflow.Message history (plus an optional system
// prompt) into langchaingo's MessageContent shape for GenerateContent.
func toLLMMessages(systemPrompt string, msgs []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs)+1)
	if systemPrompt != "" {
		out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	}
	for _, m := range msgs {
		switch m.Role {
		case RoleHuman:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		case RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, m.Content))
		case RoleTool:
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{ToolCallID: m.ToolCallID, Content: m.Content},
				},
			})
		default: // RoleAI
			mc := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if m.Content != "" {
				mc.Parts = append(mc.Parts, llms.TextPart(m.Content))
			}
			for _, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Args)
				mc.Parts = append(mc.Parts, llms.ToolCall{
					ID:   tc.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, mc)
		}
	}
	return out
}
