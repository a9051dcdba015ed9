// Package llm provides shared data models for LLM providers.
package llm

import "encoding/json"

// ChatMessage represents a chat message with role and content.
// Role is one of "system", "user", "assistant" or "tool".
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // For assistant messages with tool calls
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool result messages
}

// ToolCall represents a tool call from the LLM.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition defines a tool that the LLM can call.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema
}

// SystemMessage creates a system message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: content}
}

// ModelInfo describes a model offered by a provider.
// Values are immutable; a catalog refresh replaces entries wholesale.
type ModelInfo struct {
	ID                string `json:"id"`
	DisplayName       string `json:"display_name,omitempty"`
	ContextLength     int    `json:"context_length"`
	SupportsToolCalls bool   `json:"supports_tool_calls"`
	SupportsVision    bool   `json:"supports_vision"`
}

// TokenUsage contains token usage statistics.
type TokenUsage struct {
	PromptTokens     uint32
	CompletionTokens uint32
	TotalTokens      uint32
}

// Add accumulates usage from another counter.
func (u *TokenUsage) Add(other *TokenUsage) {
	if other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Response represents a response from a provider, or a synthesized
// degraded response when every provider failed.
type Response struct {
	Provider       string
	Model          string
	Message        ChatMessage
	ToolCalls      []ToolCall
	Usage          *TokenUsage
	ConversationID string
}

// Text returns the response message content.
func (r Response) Text() string {
	return r.Message.Content
}
