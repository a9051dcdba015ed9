// Package llm provides LLM provider abstractions.
//
// LLM Provider interface - the abstract interface for LLM providers.
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Provider-specific error handling
// - Model catalog retrieval

package llm

import (
	"context"
	"sync"
)

// Provider defines the abstract interface for LLM providers.
// Implementations hide provider-specific details while exposing
// a consistent interface for chat completions, streaming, tool
// calling, vision input and model-catalog management.
//
// The system prompt travels as the first "system" message of the
// conversation; providers that require it out-of-band (Anthropic,
// Gemini) extract it during conversion.
type Provider interface {
	// Initialize prepares the provider for use (client setup, credential
	// check). A failed initialization leaves the provider registered but
	// skipped for active selection.
	Initialize(ctx context.Context) error

	// Name returns the provider name (for logging/selection).
	Name() string

	// HasValidAPIKey reports whether a credential is present.
	HasValidAPIKey() bool

	// CurrentModel returns the currently selected model.
	CurrentModel() ModelInfo

	// AvailableModels returns the cached model catalog.
	AvailableModels() []ModelInfo

	// Capability flags for the currently selected model.
	SupportsStreaming() bool
	SupportsToolCalls() bool
	SupportsVision() bool

	// Send sends a chat completion request.
	Send(ctx context.Context, messages []ChatMessage) (Response, error)

	// SendStreaming streams a chat completion, sending chunks to the
	// provided channel. The returned Response carries the full
	// accumulated content and usage.
	SendStreaming(ctx context.Context, messages []ChatMessage, chunks chan<- string) (Response, error)

	// SendWithTools sends a chat completion request with tool definitions.
	// The LLM may respond with tool calls in Response.ToolCalls.
	SendWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (Response, error)

	// SendWithToolsStreaming streams a completion with tool definitions.
	SendWithToolsStreaming(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, chunks chan<- string) (Response, error)

	// SendWithImage sends a user message with attached image bytes.
	// Fails for providers whose current model lacks vision support.
	SendWithImage(ctx context.Context, message string, image []byte) (Response, error)

	// FetchAvailableModels queries the vendor's model catalog, replaces
	// the cached catalog and returns it.
	FetchAvailableModels(ctx context.Context) ([]ModelInfo, error)

	// SetModel selects a model from the cached catalog by id.
	// Returns false if the id is not in the catalog.
	SetModel(id string) bool
}

// modelState holds the selected model and catalog for a provider.
// Embedded by every provider implementation; guarded because the
// refresh scheduler mutates it while send calls read it.
type modelState struct {
	mu      sync.RWMutex
	current ModelInfo
	catalog []ModelInfo
}

// CurrentModel returns the currently selected model.
func (s *modelState) CurrentModel() ModelInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// AvailableModels returns a copy of the cached catalog.
func (s *modelState) AvailableModels() []ModelInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ModelInfo, len(s.catalog))
	copy(out, s.catalog)
	return out
}

// SetModel selects a model from the catalog by id.
func (s *modelState) SetModel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.catalog {
		if m.ID == id {
			s.current = m
			return true
		}
	}
	return false
}

// setCatalog replaces the cached catalog. The selected model keeps its
// metadata even when the new catalog no longer lists it.
func (s *modelState) setCatalog(models []ModelInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog = models
	for _, m := range models {
		if m.ID == s.current.ID {
			s.current = m
			break
		}
	}
}

// setCurrent replaces the selected model directly (initial configuration).
func (s *modelState) setCurrent(m ModelInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = m
}
