// Package storage provides conversation persistence.
//
// Information Hiding:
// - Storage backend implementation details hidden behind interface
// - Allows swapping between memory and SQLite without API changes
// - Each storage implementation encapsulates its own data structures and protocols

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/IC-Administrator/adept/llm"
)

// ErrConversationNotFound is returned when a conversation ID is unknown.
var ErrConversationNotFound = errors.New("conversation not found")

// Conversation is a persisted message history, optionally associated
// with a class and a lesson date.
type Conversation struct {
	ID        string
	ClassID   string
	Date      string // ISO date (YYYY-MM-DD), empty when unset
	Messages  []llm.ChatMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewConversation creates an empty conversation with a fresh ID.
func NewConversation(classID, date string) Conversation {
	now := time.Now().UTC()
	return Conversation{
		ID:        uuid.NewString(),
		ClassID:   classID,
		Date:      date,
		Messages:  []llm.ChatMessage{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ConversationRepository defines the interface for conversation storage.
// Implementations can use different backends (memory, database).
type ConversationRepository interface {
	// Get loads a conversation with its full message history.
	// Returns ErrConversationNotFound for unknown IDs.
	Get(ctx context.Context, id string) (Conversation, error)

	// Add stores a new conversation.
	Add(ctx context.Context, conversation Conversation) error

	// Update replaces a conversation's messages and metadata.
	// Concurrent updates resolve last-writer-wins.
	Update(ctx context.Context, conversation Conversation) error

	// Delete removes a conversation. Deleting an unknown ID is a no-op.
	Delete(ctx context.Context, id string) error

	// List returns conversation metadata (no messages), most recently
	// updated first.
	List(ctx context.Context) ([]Conversation, error)
}

// SystemPromptProvider supplies the system prompt used to seed new
// conversations.
type SystemPromptProvider interface {
	SystemPrompt(ctx context.Context) (string, error)
}

// StaticPromptProvider serves a fixed system prompt.
type StaticPromptProvider struct {
	Prompt string
}

// SystemPrompt returns the fixed prompt.
func (p StaticPromptProvider) SystemPrompt(ctx context.Context) (string, error) {
	return p.Prompt, nil
}

var _ SystemPromptProvider = StaticPromptProvider{}
