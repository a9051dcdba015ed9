// Package orchestrator coordinates providers, conversations and tools.
//
// The service owns the request pipeline: resolve the conversation,
// append the incoming messages, trim the history to the active model's
// context window, send, fail over once if the provider errors, run any
// tool calls, persist the result and stamp the conversation ID onto the
// response. Provider trouble degrades to a system-attributed response
// rather than an error; only cancellation, provider exhaustion at the
// registry level, and unknown conversations on tool sends surface as
// errors.
//
// Information Hiding:
// - Failover policy and degraded-response shape hidden from callers
// - Persistence details delegated to the storage package
// - Tool execution delegated to the tools package

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/IC-Administrator/adept/llm"
	"github.com/IC-Administrator/adept/storage"
	"github.com/IC-Administrator/adept/tools"
)

const (
	// DegradedProvider marks responses synthesized by the service when
	// every provider attempt failed.
	DegradedProvider = "System"

	// DefaultReserveTokens is held back from the model context window
	// for the response.
	DefaultReserveTokens = 1000

	degradedMessage = "I'm having trouble reaching the language model right now. Please try again in a moment."

	failoverNotice = "\n[switching to backup provider]\n"
)

// Service orchestrates LLM conversations across providers.
type Service struct {
	registry  *llm.Registry
	repo      storage.ConversationRepository
	prompts   storage.SystemPromptProvider
	processor *tools.Processor
	refresher *llm.Refresher
	reserve   int
}

// NewService creates a service over a provider registry with in-memory
// conversation storage and no tools.
func NewService(registry *llm.Registry) *Service {
	return &Service{
		registry: registry,
		repo:     storage.NewInMemoryRepository(),
		prompts:  storage.StaticPromptProvider{},
		reserve:  DefaultReserveTokens,
	}
}

// WithRepository sets the conversation repository.
func (s *Service) WithRepository(repo storage.ConversationRepository) *Service {
	s.repo = repo
	return s
}

// WithPromptProvider sets the system prompt source for new conversations.
func (s *Service) WithPromptProvider(prompts storage.SystemPromptProvider) *Service {
	s.prompts = prompts
	return s
}

// WithProcessor enables tool execution.
func (s *Service) WithProcessor(processor *tools.Processor) *Service {
	s.processor = processor
	return s
}

// WithRefresher attaches a model-catalog refresher, started by Start.
func (s *Service) WithRefresher(refresher *llm.Refresher) *Service {
	s.refresher = refresher
	return s
}

// WithReserveTokens overrides the context-window reserve.
func (s *Service) WithReserveTokens(reserve int) *Service {
	s.reserve = reserve
	return s
}

// Start initializes all providers and launches background refresh.
// Per-provider initialization failures are logged, not fatal: the
// registry routes around them.
func (s *Service) Start(ctx context.Context) error {
	errs := s.registry.Initialize(ctx)
	for name, err := range errs {
		log.Printf("provider %s: initialization failed: %v", name, err)
	}
	if len(errs) == len(s.registry.Providers()) && len(errs) > 0 {
		log.Printf("no provider initialized successfully")
	}
	if s.refresher != nil {
		s.refresher.Start(ctx)
	}
	return nil
}

// Close stops background work.
func (s *Service) Close() {
	if s.refresher != nil {
		s.refresher.Stop()
	}
}

// CreateConversation creates and persists an empty conversation,
// seeded with the configured system prompt.
func (s *Service) CreateConversation(ctx context.Context, classID, date string) (storage.Conversation, error) {
	conversation := storage.NewConversation(classID, date)
	if prompt, err := s.prompts.SystemPrompt(ctx); err == nil && prompt != "" {
		conversation.Messages = append(conversation.Messages, llm.SystemMessage(prompt))
	}
	if err := s.repo.Add(ctx, conversation); err != nil {
		return storage.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return conversation, nil
}

// DeleteConversation removes a conversation.
func (s *Service) DeleteConversation(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// GetConversationHistory returns the full message history of a
// conversation.
func (s *Service) GetConversationHistory(ctx context.Context, id string) ([]llm.ChatMessage, error) {
	conversation, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return conversation.Messages, nil
}

// ListConversations returns conversation metadata, newest first.
func (s *Service) ListConversations(ctx context.Context) ([]storage.Conversation, error) {
	return s.repo.List(ctx)
}

// SetActiveProvider manually overrides the active provider.
func (s *Service) SetActiveProvider(name string) bool {
	return s.registry.SetActive(name)
}

// GetProvider returns a provider by name.
func (s *Service) GetProvider(name string) (llm.Provider, bool) {
	return s.registry.Get(name)
}

// Providers returns the configured providers.
func (s *Service) Providers() []llm.Provider {
	return s.registry.Providers()
}

// SendMessage appends a user message to a conversation and returns the
// model's reply. An empty conversation ID sends one-shot, without
// persistence.
func (s *Service) SendMessage(ctx context.Context, conversationID, message string) (llm.Response, error) {
	return s.SendMessages(ctx, conversationID, []llm.ChatMessage{llm.UserMessage(message)})
}

// SendMessages appends messages to a conversation and returns the
// model's reply.
func (s *Service) SendMessages(ctx context.Context, conversationID string, messages []llm.ChatMessage) (llm.Response, error) {
	return s.pipeline(ctx, conversationID, messages, false, nil)
}

// SendMessagesStreaming is SendMessages with incremental delivery:
// response text is written to chunks as it arrives. The caller owns the
// channel and closes it after the call returns. When the service fails
// over mid-stream, a notice chunk is emitted and the reply restarts on
// the backup provider.
func (s *Service) SendMessagesStreaming(ctx context.Context, conversationID string, messages []llm.ChatMessage, chunks chan<- string) (llm.Response, error) {
	return s.pipeline(ctx, conversationID, messages, false, chunks)
}

// SendMessageWithTools sends a user message with the registered tool
// definitions attached and executes any tool calls in the reply.
// Requires a persisted conversation.
func (s *Service) SendMessageWithTools(ctx context.Context, conversationID, message string) (llm.Response, error) {
	if conversationID == "" {
		return llm.Response{}, storage.ErrConversationNotFound
	}
	return s.pipeline(ctx, conversationID, []llm.ChatMessage{llm.UserMessage(message)}, true, nil)
}

// SendMessageWithToolsStreaming is SendMessageWithTools with
// incremental delivery.
func (s *Service) SendMessageWithToolsStreaming(ctx context.Context, conversationID, message string, chunks chan<- string) (llm.Response, error) {
	if conversationID == "" {
		return llm.Response{}, storage.ErrConversationNotFound
	}
	return s.pipeline(ctx, conversationID, []llm.ChatMessage{llm.UserMessage(message)}, true, chunks)
}

// SendMessageWithImage routes an image request to a vision-capable
// provider, failing over once to another vision provider. Transport
// failures on both attempts degrade like any other send; only vision
// exhaustion propagates as an error.
func (s *Service) SendMessageWithImage(ctx context.Context, message string, image []byte) (llm.Response, error) {
	provider, err := s.registry.VisionProvider()
	if err != nil {
		return llm.Response{}, err
	}

	response, err := provider.SendWithImage(ctx, message, image)
	if err == nil {
		return response, nil
	}
	if ctx.Err() != nil {
		return llm.Response{}, err
	}
	log.Printf("provider %s: vision request failed: %v", provider.Name(), err)
	s.registry.MarkFailed(provider.Name())

	fallback := s.registry.VisionFallback(provider.Name())
	if fallback == nil {
		return llm.Response{}, llm.ErrNoVisionProvider
	}
	response, err = fallback.SendWithImage(ctx, message, image)
	if err == nil {
		return response, nil
	}
	if ctx.Err() != nil {
		return llm.Response{}, err
	}
	log.Printf("provider %s: vision request failed: %v", fallback.Name(), err)
	s.registry.MarkFailed(fallback.Name())
	return degradedResponse(), nil
}

// pipeline is the shared request path for all text sends.
func (s *Service) pipeline(ctx context.Context, conversationID string, messages []llm.ChatMessage, withTools bool, chunks chan<- string) (llm.Response, error) {
	history, conversation, persisted, err := s.resolve(ctx, conversationID, withTools)
	if err != nil {
		return llm.Response{}, err
	}
	conversationID = conversation.ID
	full := append(history, messages...)

	var definitions []llm.ToolDefinition
	if withTools && s.processor != nil {
		definitions = s.processor.Registry().Definitions()
	}

	response, sendErr := s.send(ctx, full, definitions, chunks)
	if sendErr != nil {
		return llm.Response{}, sendErr
	}

	if withTools && s.processor != nil && response.Provider != DegradedProvider {
		response = s.processor.Process(ctx, response)
	}

	if persisted {
		conversation.Messages = full
		if response.Provider != DegradedProvider {
			conversation.Messages = append(conversation.Messages, response.Message)
		}
		if err := s.repo.Update(ctx, conversation); err != nil {
			log.Printf("conversation %s: persist failed: %v", conversationID, err)
		}
		response.ConversationID = conversationID
	}
	return response, nil
}

// resolve loads a conversation's history. An empty ID means a one-shot
// exchange seeded with the system prompt but never persisted. An unknown
// ID starts a fresh conversation for plain sends; tool sends require an
// existing one and surface the lookup error instead.
func (s *Service) resolve(ctx context.Context, conversationID string, withTools bool) ([]llm.ChatMessage, storage.Conversation, bool, error) {
	if conversationID == "" {
		var history []llm.ChatMessage
		if prompt, err := s.prompts.SystemPrompt(ctx); err == nil && prompt != "" {
			history = append(history, llm.SystemMessage(prompt))
		}
		return history, storage.Conversation{}, false, nil
	}

	conversation, err := s.repo.Get(ctx, conversationID)
	if errors.Is(err, storage.ErrConversationNotFound) && !withTools {
		conversation, err = s.CreateConversation(ctx, "", "")
	}
	if err != nil {
		return nil, storage.Conversation{}, false, err
	}
	return conversation.Messages, conversation, true, nil
}

// send runs one request with a single failover retry. Provider
// exhaustion yields a degraded response, not an error; cancellation
// always surfaces as an error.
func (s *Service) send(ctx context.Context, messages []llm.ChatMessage, definitions []llm.ToolDefinition, chunks chan<- string) (llm.Response, error) {
	active, err := s.registry.Active()
	if err != nil {
		return llm.Response{}, err
	}

	response, sendErr := s.attempt(ctx, active, messages, definitions, chunks)
	if sendErr == nil {
		return response, nil
	}
	if ctx.Err() != nil {
		return llm.Response{}, sendErr
	}
	log.Printf("provider %s: send failed: %v", active.Name(), sendErr)
	failed := active.Name()
	s.registry.MarkFailed(failed)

	// MarkFailed re-selects; retry against the substitute it picked.
	fallback, _ := s.registry.Active()
	if fallback == nil || fallback.Name() == failed {
		fallback = s.registry.Fallback()
	}
	if fallback != nil {
		if chunks != nil {
			select {
			case chunks <- failoverNotice:
			case <-ctx.Done():
				return llm.Response{}, ctx.Err()
			}
		}
		response, sendErr = s.attempt(ctx, fallback, messages, definitions, chunks)
		if sendErr == nil {
			return response, nil
		}
		if ctx.Err() != nil {
			return llm.Response{}, sendErr
		}
		log.Printf("provider %s: send failed: %v", fallback.Name(), sendErr)
		s.registry.MarkFailed(fallback.Name())
	}

	// Streaming consumers read the apology off the channel too.
	if chunks != nil {
		select {
		case chunks <- degradedMessage:
		case <-ctx.Done():
			return llm.Response{}, ctx.Err()
		}
	}
	return degradedResponse(), nil
}

// degradedResponse synthesizes the reply returned when every provider
// attempt failed.
func degradedResponse() llm.Response {
	return llm.Response{
		Provider: DegradedProvider,
		Message:  llm.AssistantMessage(degradedMessage),
	}
}

// attempt trims the history to the provider's current context window
// and issues the request.
func (s *Service) attempt(ctx context.Context, provider llm.Provider, messages []llm.ChatMessage, definitions []llm.ToolDefinition, chunks chan<- string) (llm.Response, error) {
	budget := provider.CurrentModel().ContextLength - s.reserve
	trimmed := llm.Trim(messages, budget, true)

	switch {
	case chunks != nil && len(definitions) > 0:
		return provider.SendWithToolsStreaming(ctx, trimmed, definitions, chunks)
	case chunks != nil:
		return provider.SendStreaming(ctx, trimmed, chunks)
	case len(definitions) > 0:
		return provider.SendWithTools(ctx, trimmed, definitions)
	default:
		return provider.Send(ctx, trimmed)
	}
}
