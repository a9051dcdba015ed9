package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IC-Administrator/adept/llm"
)

// repositories under test share one behavioral suite.
func repositories(t *testing.T) map[string]ConversationRepository {
	t.Helper()
	sqlite, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("NewSqliteInMemory: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]ConversationRepository{
		"memory": NewInMemoryRepository(),
		"sqlite": sqlite,
	}
}

func TestRepositoryAddGetRoundTrip(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			conversation := NewConversation("class-7b", "2026-03-02")
			conversation.Messages = []llm.ChatMessage{
				llm.SystemMessage("You are a teaching assistant."),
				llm.UserMessage("hello"),
				{
					Role: "assistant",
					ToolCalls: []llm.ToolCall{
						{ID: "call-1", Name: "read_file", Arguments: []byte(`{"path":"/tmp/x"}`)},
					},
				},
				{Role: "tool", Content: "file contents", ToolCallID: "call-1"},
			}

			if err := repo.Add(ctx, conversation); err != nil {
				t.Fatalf("Add: %v", err)
			}

			got, err := repo.Get(ctx, conversation.ID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.ClassID != "class-7b" || got.Date != "2026-03-02" {
				t.Errorf("metadata = %q/%q", got.ClassID, got.Date)
			}
			if len(got.Messages) != 4 {
				t.Fatalf("got %d messages, want 4", len(got.Messages))
			}
			if got.Messages[3].ToolCallID != "call-1" {
				t.Errorf("tool call id = %q", got.Messages[3].ToolCallID)
			}
			calls := got.Messages[2].ToolCalls
			if len(calls) != 1 || calls[0].Name != "read_file" {
				t.Errorf("tool calls = %+v", calls)
			}
			if string(calls[0].Arguments) != `{"path":"/tmp/x"}` {
				t.Errorf("arguments = %s", calls[0].Arguments)
			}
		})
	}
}

func TestRepositoryGetUnknown(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, ErrConversationNotFound) {
				t.Errorf("Get(missing) = %v, want ErrConversationNotFound", err)
			}
		})
	}
}

func TestRepositoryUpdateReplacesMessages(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			conversation := NewConversation("", "")
			conversation.Messages = []llm.ChatMessage{llm.UserMessage("first")}
			if err := repo.Add(ctx, conversation); err != nil {
				t.Fatalf("Add: %v", err)
			}

			conversation.Messages = append(conversation.Messages,
				llm.AssistantMessage("reply"),
				llm.UserMessage("second"),
			)
			if err := repo.Update(ctx, conversation); err != nil {
				t.Fatalf("Update: %v", err)
			}

			got, err := repo.Get(ctx, conversation.ID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if len(got.Messages) != 3 {
				t.Errorf("got %d messages, want 3", len(got.Messages))
			}

			missing := NewConversation("", "")
			if err := repo.Update(ctx, missing); !errors.Is(err, ErrConversationNotFound) {
				t.Errorf("Update(unknown) = %v, want ErrConversationNotFound", err)
			}
		})
	}
}

func TestRepositoryUpdateStampsTime(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			conversation := NewConversation("", "")
			stale := conversation.UpdatedAt.Add(-2 * time.Hour)
			conversation.UpdatedAt = stale
			if err := repo.Add(ctx, conversation); err != nil {
				t.Fatalf("Add: %v", err)
			}

			conversation.Messages = append(conversation.Messages, llm.UserMessage("hi"))
			if err := repo.Update(ctx, conversation); err != nil {
				t.Fatalf("Update: %v", err)
			}

			got, err := repo.Get(ctx, conversation.ID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !got.UpdatedAt.After(stale) {
				t.Errorf("UpdatedAt = %v, not stamped past %v", got.UpdatedAt, stale)
			}
		})
	}
}

func TestRepositoryDelete(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			conversation := NewConversation("", "")
			if err := repo.Add(ctx, conversation); err != nil {
				t.Fatalf("Add: %v", err)
			}
			if err := repo.Delete(ctx, conversation.ID); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := repo.Get(ctx, conversation.ID); !errors.Is(err, ErrConversationNotFound) {
				t.Errorf("Get after delete = %v", err)
			}
			// Deleting again is a no-op
			if err := repo.Delete(ctx, conversation.ID); err != nil {
				t.Errorf("second Delete: %v", err)
			}
		})
	}
}

func TestRepositoryListNewestFirst(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			older := NewConversation("class-a", "")
			older.CreatedAt = older.CreatedAt.Add(-2 * time.Hour)
			older.UpdatedAt = older.UpdatedAt.Add(-2 * time.Hour)
			newer := NewConversation("class-b", "")

			if err := repo.Add(ctx, older); err != nil {
				t.Fatalf("Add: %v", err)
			}
			if err := repo.Add(ctx, newer); err != nil {
				t.Fatalf("Add: %v", err)
			}

			list, err := repo.List(ctx)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(list) != 2 {
				t.Fatalf("got %d conversations, want 2", len(list))
			}
			if list[0].ID != newer.ID {
				t.Errorf("first listed = %s, want %s", list[0].ID, newer.ID)
			}
			if len(list[0].Messages) != 0 {
				t.Error("List returned message bodies")
			}
		})
	}
}

func TestSqliteSystemPrompt(t *testing.T) {
	repo, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("NewSqliteInMemory: %v", err)
	}
	defer repo.Close()
	ctx := context.Background()

	prompt, err := repo.SystemPrompt(ctx)
	if err != nil {
		t.Fatalf("SystemPrompt: %v", err)
	}
	if prompt != "" {
		t.Errorf("initial prompt = %q, want empty", prompt)
	}

	if err := repo.SetSystemPrompt(ctx, "first"); err != nil {
		t.Fatalf("SetSystemPrompt: %v", err)
	}
	if err := repo.SetSystemPrompt(ctx, "second"); err != nil {
		t.Fatalf("SetSystemPrompt: %v", err)
	}

	prompt, err = repo.SystemPrompt(ctx)
	if err != nil {
		t.Fatalf("SystemPrompt: %v", err)
	}
	if prompt != "second" {
		t.Errorf("prompt = %q, want second", prompt)
	}
}

func TestStaticPromptProvider(t *testing.T) {
	p := StaticPromptProvider{Prompt: "be helpful"}
	got, err := p.SystemPrompt(context.Background())
	if err != nil || got != "be helpful" {
		t.Errorf("SystemPrompt = %q, %v", got, err)
	}
}

func TestNewConversationIDs(t *testing.T) {
	a := NewConversation("", "")
	b := NewConversation("", "")
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("IDs not unique: %q vs %q", a.ID, b.ID)
	}
	if a.Messages == nil {
		t.Error("messages not initialized")
	}
}
