// DeepSeek Provider implementation using go-openai library.
//
// Information Hiding:
// - Uses OpenAI-compatible API with different base URL
// - Supports deepseek-chat and deepseek-reasoner models
// - Streaming via go-openai library
//
// DeepSeek models have no vision support; the registry never routes
// image requests here.

package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

var defaultDeepSeekCatalog = []ModelInfo{
	{ID: "deepseek-chat", DisplayName: "DeepSeek Chat", ContextLength: 64000, SupportsToolCalls: true},
	{ID: "deepseek-reasoner", DisplayName: "DeepSeek Reasoner", ContextLength: 64000, SupportsToolCalls: false},
}

// DeepSeekProvider implements the Provider interface for DeepSeek.
type DeepSeekProvider struct {
	modelState
	client      *openai.Client
	apiKey      string
	maxTokens   int
	temperature float32
}

// NewDeepSeekProvider creates a new DeepSeek provider.
func NewDeepSeekProvider(apiKey, model string, maxTokens uint32, temperature float32) *DeepSeekProvider {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = deepseekBaseURL

	p := &DeepSeekProvider{
		client:      openai.NewClientWithConfig(config),
		apiKey:      apiKey,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}
	p.setCatalog(defaultDeepSeekCatalog)
	p.setCurrent(deepseekModelInfo(model))
	return p
}

// Initialize checks that a credential is present.
func (p *DeepSeekProvider) Initialize(ctx context.Context) error {
	if p.apiKey == "" {
		return fmt.Errorf("deepseek: API key not set")
	}
	return nil
}

// Name returns the provider name.
func (p *DeepSeekProvider) Name() string {
	return "deepseek"
}

// HasValidAPIKey reports whether a credential is present.
func (p *DeepSeekProvider) HasValidAPIKey() bool {
	return p.apiKey != ""
}

// SupportsStreaming reports streaming support.
func (p *DeepSeekProvider) SupportsStreaming() bool { return true }

// SupportsToolCalls reports tool-call support of the current model.
func (p *DeepSeekProvider) SupportsToolCalls() bool { return p.CurrentModel().SupportsToolCalls }

// SupportsVision reports vision support; DeepSeek has none.
func (p *DeepSeekProvider) SupportsVision() bool { return false }

// Send sends a chat completion request.
func (p *DeepSeekProvider) Send(ctx context.Context, messages []ChatMessage) (Response, error) {
	return p.SendWithTools(ctx, messages, nil)
}

// SendWithTools sends a chat completion request with tool definitions.
func (p *DeepSeekProvider) SendWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (Response, error) {
	model := p.CurrentModel()
	req := openai.ChatCompletionRequest{
		Model:               model.ID,
		Messages:            toOpenAIMessages(messages),
		MaxCompletionTokens: p.maxTokens,
		Temperature:         p.temperature,
		Tools:               toOpenAITools(tools),
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Response{}, fmt.Errorf("chat completion failed: %w", err)
	}

	content := ""
	var toolCalls []ToolCall
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		for _, tc := range resp.Choices[0].Message.ToolCalls {
			toolCalls = append(toolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: []byte(tc.Function.Arguments),
			})
		}
	}

	return Response{
		Provider:  p.Name(),
		Model:     model.ID,
		Message:   AssistantMessage(content),
		ToolCalls: toolCalls,
		Usage: &TokenUsage{
			PromptTokens:     uint32(resp.Usage.PromptTokens),
			CompletionTokens: uint32(resp.Usage.CompletionTokens),
			TotalTokens:      uint32(resp.Usage.TotalTokens),
		},
	}, nil
}

// SendStreaming streams a chat completion.
func (p *DeepSeekProvider) SendStreaming(ctx context.Context, messages []ChatMessage, chunks chan<- string) (Response, error) {
	return p.SendWithToolsStreaming(ctx, messages, nil, chunks)
}

// SendWithToolsStreaming streams a completion with tool definitions.
func (p *DeepSeekProvider) SendWithToolsStreaming(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, chunks chan<- string) (Response, error) {
	model := p.CurrentModel()
	req := openai.ChatCompletionRequest{
		Model:               model.ID,
		Messages:            toOpenAIMessages(messages),
		MaxCompletionTokens: p.maxTokens,
		Temperature:         p.temperature,
		Tools:               toOpenAITools(tools),
		Stream:              true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return Response{}, fmt.Errorf("stream creation failed: %w", err)
	}
	defer stream.Close()

	content, toolCalls, usage, err := collectOpenAIStream(ctx, stream, chunks)
	if err != nil {
		return Response{}, err
	}

	return Response{
		Provider:  p.Name(),
		Model:     model.ID,
		Message:   AssistantMessage(content),
		ToolCalls: toolCalls,
		Usage:     usage,
	}, nil
}

// SendWithImage always fails; DeepSeek models have no vision support.
func (p *DeepSeekProvider) SendWithImage(ctx context.Context, message string, image []byte) (Response, error) {
	return Response{}, fmt.Errorf("deepseek: vision input is not supported")
}

// FetchAvailableModels queries the OpenAI-compatible models endpoint.
func (p *DeepSeekProvider) FetchAvailableModels(ctx context.Context) ([]ModelInfo, error) {
	list, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models failed: %w", err)
	}

	var models []ModelInfo
	for _, m := range list.Models {
		if !strings.HasPrefix(m.ID, "deepseek") {
			continue
		}
		models = append(models, deepseekModelInfo(m.ID))
	}
	if len(models) == 0 {
		models = defaultDeepSeekCatalog
	}
	p.setCatalog(models)
	return models, nil
}

// deepseekModelInfo derives model metadata for an identifier.
func deepseekModelInfo(id string) ModelInfo {
	for _, m := range defaultDeepSeekCatalog {
		if m.ID == id {
			return m
		}
	}
	return ModelInfo{
		ID:                id,
		ContextLength:     64000,
		SupportsToolCalls: !strings.Contains(id, "reasoner"),
	}
}

// Verify DeepSeekProvider implements Provider
var _ Provider = (*DeepSeekProvider)(nil)
