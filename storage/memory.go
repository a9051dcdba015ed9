// In-memory conversation storage.
//
// Information Hiding:
// - Map storage structure hidden from users
// - Thread-safe access via RWMutex hidden behind interface
// - Suitable for testing and ephemeral sessions

package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/IC-Administrator/adept/llm"
)

// InMemoryRepository implements ConversationRepository using a map.
// Data is lost when the process terminates.
type InMemoryRepository struct {
	mu            sync.RWMutex
	conversations map[string]Conversation
}

// NewInMemoryRepository creates a new in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		conversations: make(map[string]Conversation),
	}
}

// Get loads a conversation with its full message history.
func (r *InMemoryRepository) Get(ctx context.Context, id string) (Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conversation, ok := r.conversations[id]
	if !ok {
		return Conversation{}, ErrConversationNotFound
	}
	return copyConversation(conversation), nil
}

// Add stores a new conversation.
func (r *InMemoryRepository) Add(ctx context.Context, conversation Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conversations[conversation.ID] = copyConversation(conversation)
	return nil
}

// Update replaces a conversation's messages and metadata, stamping the
// update time. Last writer wins.
func (r *InMemoryRepository) Update(ctx context.Context, conversation Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conversations[conversation.ID]; !ok {
		return ErrConversationNotFound
	}
	updated := copyConversation(conversation)
	updated.UpdatedAt = time.Now()
	r.conversations[conversation.ID] = updated
	return nil
}

// Delete removes a conversation.
func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conversations, id)
	return nil
}

// List returns conversation metadata, most recently updated first.
func (r *InMemoryRepository) List(ctx context.Context) ([]Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Conversation, 0, len(r.conversations))
	for _, conversation := range r.conversations {
		meta := conversation
		meta.Messages = nil
		list = append(list, meta)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
	return list, nil
}

// copyConversation clones the message slice so callers cannot mutate
// stored state.
func copyConversation(c Conversation) Conversation {
	messages := make([]llm.ChatMessage, len(c.Messages))
	copy(messages, c.Messages)
	c.Messages = messages
	return c
}

// Verify InMemoryRepository implements ConversationRepository
var _ ConversationRepository = (*InMemoryRepository)(nil)
