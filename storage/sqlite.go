// SQLite conversation storage.
//
// Information Hiding:
// - SQLite connection management hidden behind interface
// - Schema and migration details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/IC-Administrator/adept/llm"
)

// SqliteRepository implements ConversationRepository and
// SystemPromptProvider using a SQLite database file.
type SqliteRepository struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteRepository, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	repo := &SqliteRepository{db: db}
	if err := repo.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteRepository, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}

	repo := &SqliteRepository{db: db}
	if err := repo.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

// Close closes the database connection.
func (r *SqliteRepository) Close() error {
	return r.db.Close()
}

func (r *SqliteRepository) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			class_id TEXT,
			lesson_date TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			message_index INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_call_id TEXT,
			tool_calls TEXT,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE,
			UNIQUE(conversation_id, message_index)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
		ON messages(conversation_id, message_index);

		CREATE TABLE IF NOT EXISTS system_prompts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			prompt TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
	`

	_, err := r.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Get loads a conversation with its full message history.
func (r *SqliteRepository) Get(ctx context.Context, id string) (Conversation, error) {
	var conversation Conversation
	var classID, date sql.NullString
	var createdAt, updatedAt string

	err := r.db.QueryRowContext(ctx,
		"SELECT id, class_id, lesson_date, created_at, updated_at FROM conversations WHERE id = ?",
		id).Scan(&conversation.ID, &classID, &date, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("failed to query conversation: %w", err)
	}

	conversation.ClassID = classID.String
	conversation.Date = date.String
	conversation.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	conversation.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	messages, err := r.loadMessages(ctx, id)
	if err != nil {
		return Conversation{}, err
	}
	conversation.Messages = messages
	return conversation, nil
}

func (r *SqliteRepository) loadMessages(ctx context.Context, conversationID string) ([]llm.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT role, content, tool_call_id, tool_calls FROM messages WHERE conversation_id = ? ORDER BY message_index ASC",
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []llm.ChatMessage{} // Start with empty slice, not nil
	for rows.Next() {
		var msg llm.ChatMessage
		var toolCallID, toolCalls sql.NullString
		if err := rows.Scan(&msg.Role, &msg.Content, &toolCallID, &toolCalls); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.ToolCallID = toolCallID.String
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("invalid tool calls in database: %w", err)
			}
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

// Add stores a new conversation.
func (r *SqliteRepository) Add(ctx context.Context, conversation Conversation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// defer tx.Rollback() is safe even after Commit() - it becomes a no-op
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO conversations (id, class_id, lesson_date, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		conversation.ID,
		nullable(conversation.ClassID),
		nullable(conversation.Date),
		conversation.CreatedAt.UTC().Format(time.RFC3339),
		conversation.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}

	if err := insertMessages(ctx, tx, conversation.ID, conversation.Messages); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Update replaces a conversation's messages and metadata.
// Concurrent updates resolve last-writer-wins.
func (r *SqliteRepository) Update(ctx context.Context, conversation Conversation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx,
		"UPDATE conversations SET class_id = ?, lesson_date = ?, updated_at = ? WHERE id = ?",
		nullable(conversation.ClassID),
		nullable(conversation.Date),
		time.Now().UTC().Format(time.RFC3339),
		conversation.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrConversationNotFound
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", conversation.ID)
	if err != nil {
		return fmt.Errorf("failed to clear old messages: %w", err)
	}
	if err := insertMessages(ctx, tx, conversation.ID, conversation.Messages); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertMessages(ctx context.Context, tx *sql.Tx, conversationID string, messages []llm.ChatMessage) error {
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO messages (conversation_id, message_index, role, content, tool_call_id, tool_calls) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for i, msg := range messages {
		var toolCalls interface{}
		if len(msg.ToolCalls) > 0 {
			encoded, err := json.Marshal(msg.ToolCalls)
			if err != nil {
				return fmt.Errorf("failed to encode tool calls: %w", err)
			}
			toolCalls = string(encoded)
		}
		_, err = stmt.ExecContext(ctx, conversationID, i, msg.Role, msg.Content,
			nullable(msg.ToolCallID), toolCalls)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}
	return nil
}

// Delete removes a conversation and its messages.
func (r *SqliteRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	_, err = r.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// List returns conversation metadata, most recently updated first.
func (r *SqliteRepository) List(ctx context.Context) ([]Conversation, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, class_id, lesson_date, created_at, updated_at FROM conversations ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	conversations := []Conversation{} // Start with empty slice, not nil
	for rows.Next() {
		var c Conversation
		var classID, date sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&c.ID, &classID, &date, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		c.ClassID = classID.String
		c.Date = date.String
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		conversations = append(conversations, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}
	return conversations, nil
}

// SetSystemPrompt stores a new system prompt version.
func (r *SqliteRepository) SetSystemPrompt(ctx context.Context, prompt string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO system_prompts (prompt, created_at) VALUES (?, ?)",
		prompt, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to store system prompt: %w", err)
	}
	return nil
}

// SystemPrompt returns the most recently stored system prompt, or an
// empty string when none has been set.
func (r *SqliteRepository) SystemPrompt(ctx context.Context) (string, error) {
	var prompt string
	err := r.db.QueryRowContext(ctx,
		"SELECT prompt FROM system_prompts ORDER BY id DESC LIMIT 1").Scan(&prompt)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query system prompt: %w", err)
	}
	return prompt, nil
}

// nullable converts empty strings to NULL for optional columns.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Verify SqliteRepository implements the storage interfaces
var _ ConversationRepository = (*SqliteRepository)(nil)
var _ SystemPromptProvider = (*SqliteRepository)(nil)
