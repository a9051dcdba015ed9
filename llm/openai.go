// OpenAI Provider implementation using go-openai library.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for OpenAI Chat Completions API
// - Streaming and tool-call delta accumulation via go-openai
// - Model catalog retrieval via the Models API

package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// defaultOpenAICatalog seeds the catalog before the first fetch so
// capability flags and context lengths are available immediately.
var defaultOpenAICatalog = []ModelInfo{
	{ID: "gpt-4o", DisplayName: "GPT-4o", ContextLength: 128000, SupportsToolCalls: true, SupportsVision: true},
	{ID: "gpt-4o-mini", DisplayName: "GPT-4o mini", ContextLength: 128000, SupportsToolCalls: true, SupportsVision: true},
	{ID: "gpt-4-turbo", DisplayName: "GPT-4 Turbo", ContextLength: 128000, SupportsToolCalls: true, SupportsVision: true},
	{ID: "gpt-4", DisplayName: "GPT-4", ContextLength: 8192, SupportsToolCalls: true, SupportsVision: false},
	{ID: "o3-mini", DisplayName: "o3-mini", ContextLength: 200000, SupportsToolCalls: true, SupportsVision: false},
}

// OpenAIProvider implements the Provider interface for OpenAI.
type OpenAIProvider struct {
	modelState
	client      *openai.Client
	apiKey      string
	maxTokens   int
	temperature float32
}

// NewOpenAIProvider creates a new OpenAI provider. An empty API key is
// allowed; the provider reports itself un-credentialed and fails
// initialization instead.
func NewOpenAIProvider(apiKey, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	p := &OpenAIProvider{
		client:      openai.NewClient(apiKey),
		apiKey:      apiKey,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}
	p.setCatalog(defaultOpenAICatalog)
	p.setCurrent(openAIModelInfo(model))
	return p
}

// Initialize checks that a credential is present.
func (p *OpenAIProvider) Initialize(ctx context.Context) error {
	if p.apiKey == "" {
		return fmt.Errorf("openai: API key not set")
	}
	return nil
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// HasValidAPIKey reports whether a credential is present.
func (p *OpenAIProvider) HasValidAPIKey() bool {
	return p.apiKey != ""
}

// SupportsStreaming reports streaming support.
func (p *OpenAIProvider) SupportsStreaming() bool { return true }

// SupportsToolCalls reports tool-call support of the current model.
func (p *OpenAIProvider) SupportsToolCalls() bool { return p.CurrentModel().SupportsToolCalls }

// SupportsVision reports vision support of the current model.
func (p *OpenAIProvider) SupportsVision() bool { return p.CurrentModel().SupportsVision }

// Send sends a chat completion request.
func (p *OpenAIProvider) Send(ctx context.Context, messages []ChatMessage) (Response, error) {
	return p.SendWithTools(ctx, messages, nil)
}

// SendWithTools sends a chat completion request with tool definitions.
func (p *OpenAIProvider) SendWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (Response, error) {
	model := p.CurrentModel()
	req := openai.ChatCompletionRequest{
		Model:       model.ID,
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
		Tools:       toOpenAITools(tools),
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
func (p *OpenAIProvider) SendStreaming(ctx context.Context, messages []ChatMessage, chunks chan<- string) (Response, error) {
	return p.SendWithToolsStreaming(ctx, messages, nil, chunks)
}

// SendWithToolsStreaming streams a completion with tool definitions,
// accumulating content and tool-call deltas into the final Response.
func (p *OpenAIProvider) SendWithToolsStreaming(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, chunks chan<- string) (Response, error) {
	model := p.CurrentModel()
	req := openai.ChatCompletionRequest{
		Model:       model.ID,
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
		Tools:       toOpenAITools(tools),
		Stream:      true,
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

// SendWithImage sends a user message with attached image bytes using a
// base64 data URL part.
func (p *OpenAIProvider) SendWithImage(ctx context.Context, message string, image []byte) (Response, error) {
	model := p.CurrentModel()
	if !model.SupportsVision {
		return Response{}, fmt.Errorf("openai: model %q does not support vision", model.ID)
	}

	req := openai.ChatCompletionRequest{
		Model:       model.ID,
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: message},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    imageDataURL(image),
						Detail: openai.ImageURLDetailAuto,
					},
				},
			},
		}},
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Response{}, fmt.Errorf("vision completion failed: %w", err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	return Response{
		Provider: p.Name(),
		Model:    model.ID,
		Message:  AssistantMessage(content),
		Usage: &TokenUsage{
			PromptTokens:     uint32(resp.Usage.PromptTokens),
			CompletionTokens: uint32(resp.Usage.CompletionTokens),
			TotalTokens:      uint32(resp.Usage.TotalTokens),
		},
	}, nil
}

// FetchAvailableModels queries the Models API and replaces the cached
// catalog. Only chat-capable GPT/o-series entries are kept.
func (p *OpenAIProvider) FetchAvailableModels(ctx context.Context) ([]ModelInfo, error) {
	list, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models failed: %w", err)
	}

	var models []ModelInfo
	for _, m := range list.Models {
		if !strings.HasPrefix(m.ID, "gpt-") && !strings.HasPrefix(m.ID, "o1") && !strings.HasPrefix(m.ID, "o3") {
			continue
		}
		models = append(models, openAIModelInfo(m.ID))
	}
	if len(models) == 0 {
		models = defaultOpenAICatalog
	}
	p.setCatalog(models)
	return models, nil
}

// openAIModelInfo derives model metadata for an identifier, preferring
// the known catalog entry and falling back to prefix heuristics.
func openAIModelInfo(id string) ModelInfo {
	for _, m := range defaultOpenAICatalog {
		if m.ID == id {
			return m
		}
	}
	info := ModelInfo{
		ID:                id,
		ContextLength:     128000,
		SupportsToolCalls: true,
	}
	switch {
	case strings.HasPrefix(id, "gpt-4o"), strings.HasPrefix(id, "gpt-4-turbo"), strings.HasPrefix(id, "gpt-5"):
		info.SupportsVision = true
	case id == "gpt-4" || strings.HasPrefix(id, "gpt-4-0"):
		info.ContextLength = 8192
	}
	return info
}

// imageDataURL encodes image bytes as a base64 data URL with a sniffed
// content type.
func imageDataURL(image []byte) string {
	mime := http.DetectContentType(image)
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(image))
}

// collectOpenAIStream drains a chat completion stream, forwarding text
// deltas to chunks and accumulating tool-call fragments by index.
// Shared with the DeepSeek provider, which speaks the same protocol.
func collectOpenAIStream(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- string) (string, []ToolCall, *TokenUsage, error) {
	var content strings.Builder
	var usage *TokenUsage
	pending := make(map[int]*ToolCall)
	order := []int{}

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, usage, fmt.Errorf("stream recv failed: %w", err)
		}

		// Usage arrives on the final chunk when requested.
		if response.Usage != nil {
			usage = &TokenUsage{
				PromptTokens:     uint32(response.Usage.PromptTokens),
				CompletionTokens: uint32(response.Usage.CompletionTokens),
				TotalTokens:      uint32(response.Usage.TotalTokens),
			}
		}

		if len(response.Choices) == 0 {
			continue
		}
		delta := response.Choices[0].Delta

		if delta.Content != "" {
			content.WriteString(delta.Content)
			select {
			case chunks <- delta.Content:
			case <-ctx.Done():
				return "", nil, usage, ctx.Err()
			}
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			call, ok := pending[idx]
			if !ok {
				call = &ToolCall{}
				pending[idx] = call
				order = append(order, idx)
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Function.Name != "" {
				call.Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				call.Arguments = append(call.Arguments, tc.Function.Arguments...)
			}
		}
	}

	var toolCalls []ToolCall
	for _, idx := range order {
		toolCalls = append(toolCalls, *pending[idx])
	}
	return content.String(), toolCalls, usage, nil
}

// toOpenAIMessages converts ChatMessage to openai.ChatCompletionMessage,
// carrying assistant tool calls and tool results through.
func toOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
		for _, tc := range msg.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		if msg.ToolCallID != "" {
			oaiMsg.ToolCallID = msg.ToolCallID
		}
		result[i] = oaiMsg
	}
	return result
}

// toOpenAITools converts tool definitions to OpenAI format.
func toOpenAITools(tools []ToolDefinition) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return result
}

// Verify OpenAIProvider implements Provider
var _ Provider = (*OpenAIProvider)(nil)
