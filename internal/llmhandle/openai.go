// Package llmhandle wraps an OpenAI-compatible chat completion client as a
// tmc/langchaingo llms.Model, so node builders obtain an "LLM handle"
// (spec.md §4.5 step 1) through one interface regardless of provider.
// Grounded on Pocket-Omega's internal/llm/openai/{client,config}.go for the
// config-from-environment shape, and on the teacher's own
// prebuilt/react_agent.go for how llms.Model.GenerateContent is consumed.
package llmhandle

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms"

	"github.com/devyk/kaflow-go/internal/envconfig"
	"github.com/devyk/kaflow-go/internal/protocol"
)

// Config is the resolved set of knobs for one LLM handle, produced by
// merging protocol.LLMConfig defaults with an agent's overrides
// (protocol.LLMConfig.Merge).
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// ConfigFromEnv builds a Config from LLM_API_KEY/LLM_BASE_URL/LLM_MODEL/
// LLM_TEMPERATURE/LLM_MAX_TOKENS/LLM_HTTP_TIMEOUT, as the base default
// before any protocol.LLMConfig overrides are merged in.
func ConfigFromEnv() Config {
	return Config{
		APIKey:      envconfig.String("LLM_API_KEY", ""),
		BaseURL:     envconfig.String("LLM_BASE_URL", ""),
		Model:       envconfig.String("LLM_MODEL", "gpt-4o-mini"),
		Temperature: envconfig.Float("LLM_TEMPERATURE", 0.7),
		MaxTokens:   envconfig.Int("LLM_MAX_TOKENS", 2048),
		Timeout:     envconfig.Duration("LLM_HTTP_TIMEOUT", 60*time.Second),
	}
}

// ApplyProtocol overlays a protocol.LLMConfig (already merged agent-over-
// default via LLMConfig.Merge) onto c, skipping zero fields.
func (c Config) ApplyProtocol(p protocol.LLMConfig) Config {
	out := c
	if p.Model != "" {
		out.Model = p.Model
	}
	if p.Temperature != 0 {
		out.Temperature = p.Temperature
	}
	if p.MaxTokens != 0 {
		out.MaxTokens = p.MaxTokens
	}
	if p.APIKey != "" {
		out.APIKey = p.APIKey
	}
	if p.BaseURL != "" {
		out.BaseURL = p.BaseURL
	}
	if p.TimeoutSecs != 0 {
		out.Timeout = time.Duration(p.TimeoutSecs * float64(time.Second))
	}
	return out
}

// Handle implements tmc/langchaingo's llms.Model interface over an
// OpenAI-compatible go-openai client.
type Handle struct {
	client *openai.Client
	cfg    Config
}

var _ llms.Model = (*Handle)(nil)

// New builds a Handle from cfg.
func New(cfg Config) *Handle {
	oaiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaiCfg.BaseURL = cfg.BaseURL
	}
	return &Handle{client: openai.NewClientWithConfig(oaiCfg), cfg: cfg}
}

// GenerateContent implements llms.Model. It translates langchaingo's
// MessageContent/Tool types to go-openai's request shape and back, matching
// the single-round-trip call shape prebuilt/react_agent.go already expects
// from any llms.Model.
func (h *Handle) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := &llms.CallOptions{
		Model:       h.cfg.Model,
		Temperature: h.cfg.Temperature,
		MaxTokens:   h.cfg.MaxTokens,
	}
	for _, opt := range options {
		opt(opts)
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       opts.Model,
		Temperature: float32(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
		Messages:    toOpenAIMessages(messages),
		Tools:       toOpenAITools(opts.Tools),
	}

	resp, err := h.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("llmhandle: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llmhandle: empty response")
	}

	return toLangchainResponse(resp), nil
}

// Call implements llms.Model's deprecated single-string convenience method
// by delegating to GenerateContent with a single human message.
func (h *Handle) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := h.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func toOpenAIMessages(messages []llms.MessageContent) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := toOpenAIRole(m.Role)
		var content string
		var toolCalls []openai.ToolCall
		var toolCallID string

		for _, part := range m.Parts {
			switch p := part.(type) {
			case llms.TextContent:
				content += p.Text
			case llms.ToolCall:
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   p.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      p.FunctionCall.Name,
						Arguments: p.FunctionCall.Arguments,
					},
				})
			case llms.ToolCallResponse:
				content = p.Content
				toolCallID = p.ToolCallID
			}
		}

		out = append(out, openai.ChatCompletionMessage{
			Role:       role,
			Content:    content,
			ToolCalls:  toolCalls,
			ToolCallID: toolCallID,
		})
	}
	return out
}

func toOpenAIRole(role llms.ChatMessageType) string {
	switch role {
	case llms.ChatMessageTypeSystem:
		return openai.ChatMessageRoleSystem
	case llms.ChatMessageTypeAI:
		return openai.ChatMessageRoleAssistant
	case llms.ChatMessageTypeTool:
		return openai.ChatMessageRoleTool
	default:
		return openai.ChatMessageRoleUser
	}
}

func toOpenAITools(tools []llms.Tool) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		if t.Function == nil {
			continue
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		})
	}
	return out
}

func toLangchainResponse(resp openai.ChatCompletionResponse) *llms.ContentResponse {
	choices := make([]*llms.ContentChoice, 0, len(resp.Choices))
	for _, c := range resp.Choices {
		choice := &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: string(c.FinishReason),
		}
		for _, tc := range c.Message.ToolCalls {
			choice.ToolCalls = append(choice.ToolCalls, llms.ToolCall{
				ID:   tc.ID,
				Type: string(tc.Type),
				FunctionCall: &llms.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		choices = append(choices, choice)
	}
	return &llms.ContentResponse{Choices: choices}
}
