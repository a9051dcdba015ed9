// Anthropic Provider implementation using official anthropic-sdk-go.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for Anthropic Messages API
// - Streaming via official SDK, with event accumulation
// - Model catalog retrieval via the Models API

package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

var defaultAnthropicCatalog = []ModelInfo{
	{ID: "claude-sonnet-4-20250514", DisplayName: "Claude Sonnet 4", ContextLength: 200000, SupportsToolCalls: true, SupportsVision: true},
	{ID: "claude-haiku-4-20250514", DisplayName: "Claude Haiku 4", ContextLength: 200000, SupportsToolCalls: true, SupportsVision: true},
	{ID: "claude-opus-4-5-20251101", DisplayName: "Claude Opus 4.5", ContextLength: 200000, SupportsToolCalls: true, SupportsVision: true},
}

// AnthropicProvider implements the Provider interface for Anthropic Claude.
type AnthropicProvider struct {
	modelState
	client      anthropic.Client
	apiKey      string
	maxTokens   int64
	temperature float64
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(apiKey, model string, maxTokens uint32, temperature float32) *AnthropicProvider {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	p := &AnthropicProvider{
		client:      client,
		apiKey:      apiKey,
		maxTokens:   int64(maxTokens),
		temperature: float64(temperature),
	}
	p.setCatalog(defaultAnthropicCatalog)
	p.setCurrent(anthropicModelInfo(model))
	return p
}

// Initialize checks that a credential is present.
func (p *AnthropicProvider) Initialize(ctx context.Context) error {
	if p.apiKey == "" {
		return fmt.Errorf("anthropic: API key not set")
	}
	return nil
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// HasValidAPIKey reports whether a credential is present.
func (p *AnthropicProvider) HasValidAPIKey() bool {
	return p.apiKey != ""
}

// SupportsStreaming reports streaming support.
func (p *AnthropicProvider) SupportsStreaming() bool { return true }

// SupportsToolCalls reports tool-call support of the current model.
func (p *AnthropicProvider) SupportsToolCalls() bool { return p.CurrentModel().SupportsToolCalls }

// SupportsVision reports vision support of the current model.
func (p *AnthropicProvider) SupportsVision() bool { return p.CurrentModel().SupportsVision }

// Send sends a chat completion request.
func (p *AnthropicProvider) Send(ctx context.Context, messages []ChatMessage) (Response, error) {
	return p.SendWithTools(ctx, messages, nil)
}

// SendWithTools sends a chat completion request with tool definitions.
func (p *AnthropicProvider) SendWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (Response, error) {
	model := p.CurrentModel()
	params := p.newParams(model, messages)
	params.Tools = toAnthropicTools(tools)

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("chat completion failed: %w", err)
	}

	content, toolCalls := anthropicContent(message)

	return Response{
		Provider:  p.Name(),
		Model:     model.ID,
		Message:   AssistantMessage(content),
		ToolCalls: toolCalls,
		Usage: &TokenUsage{
			PromptTokens:     uint32(message.Usage.InputTokens),
			CompletionTokens: uint32(message.Usage.OutputTokens),
			TotalTokens:      uint32(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}, nil
}

// SendStreaming streams a chat completion.
func (p *AnthropicProvider) SendStreaming(ctx context.Context, messages []ChatMessage, chunks chan<- string) (Response, error) {
	return p.SendWithToolsStreaming(ctx, messages, nil, chunks)
}

// SendWithToolsStreaming streams a completion with tool definitions.
// Events are accumulated into a full Message so tool-use blocks and
// usage survive; text deltas are forwarded as they arrive.
func (p *AnthropicProvider) SendWithToolsStreaming(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, chunks chan<- string) (Response, error) {
	model := p.CurrentModel()
	params := p.newParams(model, messages)
	params.Tools = toAnthropicTools(tools)

	stream := p.client.Messages.NewStreaming(ctx, params)

	accumulated := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := accumulated.Accumulate(event); err != nil {
			return Response{}, fmt.Errorf("stream accumulate failed: %w", err)
		}

		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if deltaVariant.Text != "" {
					select {
					case chunks <- deltaVariant.Text:
					case <-ctx.Done():
						return Response{}, ctx.Err()
					}
				}
			}
		}
	}
	if stream.Err() != nil {
		return Response{}, fmt.Errorf("stream error: %w", stream.Err())
	}

	content, toolCalls := anthropicContent(&accumulated)

	return Response{
		Provider:  p.Name(),
		Model:     model.ID,
		Message:   AssistantMessage(content),
		ToolCalls: toolCalls,
		Usage: &TokenUsage{
			PromptTokens:     uint32(accumulated.Usage.InputTokens),
			CompletionTokens: uint32(accumulated.Usage.OutputTokens),
			TotalTokens:      uint32(accumulated.Usage.InputTokens + accumulated.Usage.OutputTokens),
		},
	}, nil
}

// SendWithImage sends a user message with an attached base64 image block.
func (p *AnthropicProvider) SendWithImage(ctx context.Context, message string, image []byte) (Response, error) {
	model := p.CurrentModel()
	if !model.SupportsVision {
		return Response{}, fmt.Errorf("anthropic: model %q does not support vision", model.ID)
	}

	mediaType := http.DetectContentType(image)
	encoded := base64.StdEncoding.EncodeToString(image)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model.ID),
		MaxTokens:   p.maxTokens,
		Temperature: anthropic.Float(p.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(mediaType, encoded),
				anthropic.NewTextBlock(message),
			),
		},
	}

	result, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("vision completion failed: %w", err)
	}

	content, _ := anthropicContent(result)

	return Response{
		Provider: p.Name(),
		Model:    model.ID,
		Message:  AssistantMessage(content),
		Usage: &TokenUsage{
			PromptTokens:     uint32(result.Usage.InputTokens),
			CompletionTokens: uint32(result.Usage.OutputTokens),
			TotalTokens:      uint32(result.Usage.InputTokens + result.Usage.OutputTokens),
		},
	}, nil
}

// FetchAvailableModels queries the Models API and replaces the cached
// catalog. Claude models share context length and capability flags.
func (p *AnthropicProvider) FetchAvailableModels(ctx context.Context) ([]ModelInfo, error) {
	page, err := p.client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return nil, fmt.Errorf("list models failed: %w", err)
	}

	var models []ModelInfo
	for _, m := range page.Data {
		info := anthropicModelInfo(m.ID)
		if m.DisplayName != "" {
			info.DisplayName = m.DisplayName
		}
		models = append(models, info)
	}
	if len(models) == 0 {
		models = defaultAnthropicCatalog
	}
	p.setCatalog(models)
	return models, nil
}

// newParams builds common message params from a conversation, splitting
// out the system message the way the Messages API expects.
func (p *AnthropicProvider) newParams(model ModelInfo, messages []ChatMessage) anthropic.MessageNewParams {
	anthropicMessages, systemPrompt := toAnthropicMessages(messages)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model.ID),
		MaxTokens:   p.maxTokens,
		Messages:    anthropicMessages,
		Temperature: anthropic.Float(p.temperature),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}
	return params
}

// anthropicModelInfo derives model metadata for an identifier.
func anthropicModelInfo(id string) ModelInfo {
	for _, m := range defaultAnthropicCatalog {
		if m.ID == id {
			return m
		}
	}
	return ModelInfo{
		ID:                id,
		ContextLength:     200000,
		SupportsToolCalls: true,
		SupportsVision:    true,
	}
}

// anthropicContent flattens a Message into text plus tool calls.
func anthropicContent(message *anthropic.Message) (string, []ToolCall) {
	content := ""
	var toolCalls []ToolCall
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += variant.Text
		case anthropic.ToolUseBlock:
			inputJSON, _ := json.Marshal(variant.Input)
			toolCalls = append(toolCalls, ToolCall{
				ID:        variant.ID,
				Name:      variant.Name,
				Arguments: inputJSON,
			})
		}
	}
	return content, toolCalls
}

// toAnthropicMessages converts ChatMessage to Anthropic format.
// The system message is extracted and returned separately; assistant
// tool calls and tool results become the corresponding block types.
func toAnthropicMessages(messages []ChatMessage) ([]anthropic.MessageParam, string) {
	var anthropicMessages []anthropic.MessageParam
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			systemPrompt = msg.Content
		case "user":
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		case "assistant":
			if len(msg.ToolCalls) > 0 {
				content := &anthropic.MessageParam{
					Role: anthropic.MessageParamRoleAssistant,
				}
				if msg.Content != "" {
					content.Content = append(content.Content, anthropic.NewTextBlock(msg.Content))
				}
				for _, tc := range msg.ToolCalls {
					var input map[string]interface{}
					_ = json.Unmarshal(tc.Arguments, &input)
					content.Content = append(content.Content, anthropic.ContentBlockParamUnion{
						OfToolUse: &anthropic.ToolUseBlockParam{
							ID:    tc.ID,
							Name:  tc.Name,
							Input: input,
						},
					})
				}
				anthropicMessages = append(anthropicMessages, *content)
			} else {
				anthropicMessages = append(anthropicMessages, anthropic.NewAssistantMessage(
					anthropic.NewTextBlock(msg.Content),
				))
			}
		case "tool":
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		}
	}

	return anthropicMessages, systemPrompt
}

// toAnthropicTools converts tool definitions to Anthropic format.
func toAnthropicTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		properties, _ := t.Parameters["properties"].(map[string]interface{})
		required, _ := t.Parameters["required"].([]string)

		toolParam := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   required,
			},
		}
		result[i] = anthropic.ToolUnionParam{OfTool: &toolParam}
	}
	return result
}

// Verify AnthropicProvider implements Provider
var _ Provider = (*AnthropicProvider)(nil)
