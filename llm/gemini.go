// Google Gemini Provider implementation using official genai library.
//
// Information Hiding:
// - Client construction needs a context, so it is deferred to Initialize
// - Request/response format for the Gemini API
// - Streaming via the SDK's range-over-func iterator
// - Model catalog retrieval with per-model token limits

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

var defaultGeminiCatalog = []ModelInfo{
	{ID: "gemini-2.5-pro", DisplayName: "Gemini 2.5 Pro", ContextLength: 1048576, SupportsToolCalls: true, SupportsVision: true},
	{ID: "gemini-2.5-flash", DisplayName: "Gemini 2.5 Flash", ContextLength: 1048576, SupportsToolCalls: true, SupportsVision: true},
	{ID: "gemini-2.0-flash", DisplayName: "Gemini 2.0 Flash", ContextLength: 1048576, SupportsToolCalls: true, SupportsVision: true},
}

// GeminiProvider implements the Provider interface for Google Gemini.
type GeminiProvider struct {
	modelState
	client      *genai.Client
	apiKey      string
	maxTokens   int32
	temperature float32
}

// NewGeminiProvider creates a new Gemini provider. The underlying client
// is built lazily in Initialize because the SDK requires a context.
func NewGeminiProvider(apiKey, model string, maxTokens uint32, temperature float32) *GeminiProvider {
	p := &GeminiProvider{
		apiKey:      apiKey,
		maxTokens:   int32(maxTokens),
		temperature: temperature,
	}
	p.setCatalog(defaultGeminiCatalog)
	p.setCurrent(geminiModelInfo(model))
	return p
}

// Initialize builds the API client.
func (p *GeminiProvider) Initialize(ctx context.Context) error {
	if p.apiKey == "" {
		return fmt.Errorf("gemini: API key not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return fmt.Errorf("gemini: client creation failed: %w", err)
	}
	p.client = client
	return nil
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// HasValidAPIKey reports whether a credential is present.
func (p *GeminiProvider) HasValidAPIKey() bool {
	return p.apiKey != ""
}

// SupportsStreaming reports streaming support.
func (p *GeminiProvider) SupportsStreaming() bool { return true }

// SupportsToolCalls reports tool-call support of the current model.
func (p *GeminiProvider) SupportsToolCalls() bool { return p.CurrentModel().SupportsToolCalls }

// SupportsVision reports vision support of the current model.
func (p *GeminiProvider) SupportsVision() bool { return p.CurrentModel().SupportsVision }

// Send sends a chat completion request.
func (p *GeminiProvider) Send(ctx context.Context, messages []ChatMessage) (Response, error) {
	return p.SendWithTools(ctx, messages, nil)
}

// SendWithTools sends a chat completion request with tool definitions.
func (p *GeminiProvider) SendWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (Response, error) {
	if p.client == nil {
		return Response{}, fmt.Errorf("gemini: provider not initialized")
	}

	model := p.CurrentModel()
	contents, config := p.newRequest(messages, tools)

	response, err := p.client.Models.GenerateContent(ctx, model.ID, contents, config)
	if err != nil {
		return Response{}, fmt.Errorf("chat completion failed: %w", err)
	}

	toolCalls := geminiToolCalls(response)

	return Response{
		Provider:  p.Name(),
		Model:     model.ID,
		Message:   AssistantMessage(response.Text()),
		ToolCalls: toolCalls,
		Usage:     geminiUsage(response),
	}, nil
}

// SendStreaming streams a chat completion.
func (p *GeminiProvider) SendStreaming(ctx context.Context, messages []ChatMessage, chunks chan<- string) (Response, error) {
	return p.SendWithToolsStreaming(ctx, messages, nil, chunks)
}

// SendWithToolsStreaming streams a completion with tool definitions.
// Text chunks are forwarded as they arrive; function-call parts and the
// final usage metadata are collected from the chunk sequence.
func (p *GeminiProvider) SendWithToolsStreaming(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, chunks chan<- string) (Response, error) {
	if p.client == nil {
		return Response{}, fmt.Errorf("gemini: provider not initialized")
	}

	model := p.CurrentModel()
	contents, config := p.newRequest(messages, tools)

	content := ""
	var toolCalls []ToolCall
	var usage *TokenUsage

	for response, err := range p.client.Models.GenerateContentStream(ctx, model.ID, contents, config) {
		if err != nil {
			return Response{}, fmt.Errorf("stream error: %w", err)
		}
		if text := response.Text(); text != "" {
			content += text
			select {
			case chunks <- text:
			case <-ctx.Done():
				return Response{}, ctx.Err()
			}
		}
		toolCalls = append(toolCalls, geminiToolCalls(response)...)
		if u := geminiUsage(response); u != nil {
			usage = u
		}
	}

	return Response{
		Provider:  p.Name(),
		Model:     model.ID,
		Message:   AssistantMessage(content),
		ToolCalls: toolCalls,
		Usage:     usage,
	}, nil
}

// SendWithImage sends a user message with inline image data.
func (p *GeminiProvider) SendWithImage(ctx context.Context, message string, image []byte) (Response, error) {
	if p.client == nil {
		return Response{}, fmt.Errorf("gemini: provider not initialized")
	}

	model := p.CurrentModel()
	if !model.SupportsVision {
		return Response{}, fmt.Errorf("gemini: model %q does not support vision", model.ID)
	}

	contents := []*genai.Content{
		{
			Role: genai.RoleUser,
			Parts: []*genai.Part{
				{InlineData: &genai.Blob{
					MIMEType: http.DetectContentType(image),
					Data:     image,
				}},
				{Text: message},
			},
		},
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(p.temperature),
		MaxOutputTokens: p.maxTokens,
	}

	response, err := p.client.Models.GenerateContent(ctx, model.ID, contents, config)
	if err != nil {
		return Response{}, fmt.Errorf("vision completion failed: %w", err)
	}

	return Response{
		Provider: p.Name(),
		Model:    model.ID,
		Message:  AssistantMessage(response.Text()),
		Usage:    geminiUsage(response),
	}, nil
}

// FetchAvailableModels lists the Gemini model catalog, keeping the
// reported input token limits.
func (p *GeminiProvider) FetchAvailableModels(ctx context.Context) ([]ModelInfo, error) {
	if p.client == nil {
		return nil, fmt.Errorf("gemini: provider not initialized")
	}

	var models []ModelInfo
	for m, err := range p.client.Models.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("list models failed: %w", err)
		}
		id := strings.TrimPrefix(m.Name, "models/")
		if !strings.HasPrefix(id, "gemini") {
			continue
		}
		info := geminiModelInfo(id)
		if m.DisplayName != "" {
			info.DisplayName = m.DisplayName
		}
		if m.InputTokenLimit > 0 {
			info.ContextLength = int(m.InputTokenLimit)
		}
		models = append(models, info)
	}
	if len(models) == 0 {
		models = defaultGeminiCatalog
	}
	p.setCatalog(models)
	return models, nil
}

// newRequest converts the conversation and tool set into SDK form. The
// system message becomes the SystemInstruction.
func (p *GeminiProvider) newRequest(messages []ChatMessage, tools []ToolDefinition) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents, systemPrompt := toGeminiContents(messages)

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(p.temperature),
		MaxOutputTokens: p.maxTokens,
		Tools:           toGeminiTools(tools),
	}
	if systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	return contents, config
}

// geminiModelInfo derives model metadata for an identifier.
func geminiModelInfo(id string) ModelInfo {
	for _, m := range defaultGeminiCatalog {
		if m.ID == id {
			return m
		}
	}
	return ModelInfo{
		ID:                id,
		ContextLength:     1048576,
		SupportsToolCalls: true,
		SupportsVision:    true,
	}
}

// geminiToolCalls extracts function-call parts from a response.
// Gemini does not assign call IDs; the function name doubles as one.
func geminiToolCalls(response *genai.GenerateContentResponse) []ToolCall {
	var toolCalls []ToolCall
	for _, candidate := range response.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.FunctionCall == nil {
				continue
			}
			args, _ := json.Marshal(part.FunctionCall.Args)
			toolCalls = append(toolCalls, ToolCall{
				ID:        part.FunctionCall.Name,
				Name:      part.FunctionCall.Name,
				Arguments: args,
			})
		}
	}
	return toolCalls
}

// geminiUsage converts usage metadata when present.
func geminiUsage(response *genai.GenerateContentResponse) *TokenUsage {
	if response.UsageMetadata == nil {
		return nil
	}
	return &TokenUsage{
		PromptTokens:     uint32(response.UsageMetadata.PromptTokenCount),
		CompletionTokens: uint32(response.UsageMetadata.CandidatesTokenCount),
		TotalTokens:      uint32(response.UsageMetadata.TotalTokenCount),
	}
}

// toGeminiContents converts ChatMessage to Gemini format. The system
// message is extracted and returned separately; tool results become
// function-response parts and assistant tool calls function-call parts.
func toGeminiContents(messages []ChatMessage) ([]*genai.Content, string) {
	var contents []*genai.Content
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			systemPrompt = msg.Content
		case "user":
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case "assistant":
			content := &genai.Content{Role: genai.RoleModel}
			if msg.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal(tc.Arguments, &args)
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						Name: tc.Name,
						Args: args,
					},
				})
			}
			if len(content.Parts) > 0 {
				contents = append(contents, content)
			}
		case "tool":
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{
					{FunctionResponse: &genai.FunctionResponse{
						Name:     msg.ToolCallID,
						Response: map[string]any{"result": msg.Content},
					}},
				},
			})
		}
	}

	return contents, systemPrompt
}

// toGeminiTools converts tool definitions to Gemini format.
func toGeminiTools(tools []ToolDefinition) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	declarations := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		declarations[i] = &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGeminiSchema(t.Parameters),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// toGeminiSchema converts a JSON-schema parameter map to a genai.Schema.
func toGeminiSchema(parameters map[string]interface{}) *genai.Schema {
	schema := &genai.Schema{Type: genai.TypeObject}

	if properties, ok := parameters["properties"].(map[string]interface{}); ok {
		schema.Properties = make(map[string]*genai.Schema, len(properties))
		for name, raw := range properties {
			prop, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			propSchema := &genai.Schema{Type: genai.TypeString}
			if typeName, ok := prop["type"].(string); ok {
				propSchema.Type = mapToGeminiType(typeName)
			}
			if description, ok := prop["description"].(string); ok {
				propSchema.Description = description
			}
			schema.Properties[name] = propSchema
		}
	}
	if required, ok := parameters["required"].([]string); ok {
		schema.Required = required
	}
	return schema
}

// mapToGeminiType maps JSON schema type names to genai types.
func mapToGeminiType(name string) genai.Type {
	switch name {
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

// Verify GeminiProvider implements Provider
var _ Provider = (*GeminiProvider)(nil)
