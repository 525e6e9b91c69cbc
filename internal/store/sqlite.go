// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Conversation and transcript persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/rei-gateway/internal/chat"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			title TEXT,
			created_at DATETIME NOT NULL,
			last_message_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_owner
			ON conversations(owner, last_message_at);

		CREATE TABLE IF NOT EXISTS conversation_messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_calls TEXT,
			tool_call_id TEXT,
			metadata TEXT,
			sent_at DATETIME,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON conversation_messages(conversation_id, seq);

		CREATE TABLE IF NOT EXISTS message_usage (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			model_name TEXT NOT NULL,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_usage_conversation
			ON message_usage(conversation_id, created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// CreateConversation inserts a new conversation record.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	query := `
		INSERT INTO conversations (id, owner, title, created_at, last_message_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		conv.Owner,
		nullableString(conv.Title),
		conv.CreatedAt.UTC().Format(time.RFC3339),
		conv.LastMessageAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("conversation created", "conversation_id", conv.ID, "owner", conv.Owner)
	return nil
}

// GetConversation retrieves a conversation by id.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT id, owner, title, created_at, last_message_at
		FROM conversations
		WHERE id = ?
	`

	var conv Conversation
	var title sql.NullString
	var createdAt, lastMessageAt string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&conv.ID, &conv.Owner, &title, &createdAt, &lastMessageAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	if title.Valid {
		conv.Title = &title.String
	}
	if conv.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if conv.LastMessageAt, err = time.Parse(time.RFC3339, lastMessageAt); err != nil {
		return nil, fmt.Errorf("parsing last_message_at: %w", err)
	}
	return &conv, nil
}

// UpdateConversation persists title and last-activity changes.
func (s *SQLiteStore) UpdateConversation(ctx context.Context, conv *Conversation) error {
	query := `
		UPDATE conversations
		SET title = ?, last_message_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		nullableString(conv.Title),
		conv.LastMessageAt.UTC().Format(time.RFC3339),
		conv.ID,
	)
	if err != nil {
		return fmt.Errorf("updating conversation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListConversations returns the owner's conversations, most recent first.
func (s *SQLiteStore) ListConversations(ctx context.Context, owner string, limit int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, owner, title, created_at, last_message_at
		FROM conversations
		WHERE owner = ?
		ORDER BY last_message_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var convs []*Conversation
	for rows.Next() {
		var conv Conversation
		var title sql.NullString
		var createdAt, lastMessageAt string
		if err := rows.Scan(&conv.ID, &conv.Owner, &title, &createdAt, &lastMessageAt); err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		if title.Valid {
			conv.Title = &title.String
		}
		if conv.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if conv.LastMessageAt, err = time.Parse(time.RFC3339, lastMessageAt); err != nil {
			return nil, fmt.Errorf("parsing last_message_at: %w", err)
		}
		convs = append(convs, &conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}
	return convs, nil
}

// AppendMessage appends one message to a conversation's transcript.
func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID string, msg *chat.Message) error {
	var toolCalls, metadata *string
	if len(msg.ToolCalls) > 0 {
		data, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("encoding tool calls: %w", err)
		}
		str := string(data)
		toolCalls = &str
	}
	if len(msg.Metadata) > 0 {
		data, err := json.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata: %w", err)
		}
		str := string(data)
		metadata = &str
	}

	var sentAt *string
	if msg.SentAt != nil {
		str := msg.SentAt.UTC().Format(time.RFC3339)
		sentAt = &str
	}

	query := `
		INSERT INTO conversation_messages
			(id, conversation_id, role, content, tool_calls, tool_call_id, metadata, sent_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		conversationID,
		string(msg.Role),
		msg.Content,
		nullableString(toolCalls),
		nullString(msg.ToolCallID),
		nullableString(metadata),
		nullableString(sentAt),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("message appended",
		"conversation_id", conversationID,
		"message_id", msg.ID,
		"role", string(msg.Role))
	return nil
}

// GetTranscript returns the full ordered transcript for a conversation.
func (s *SQLiteStore) GetTranscript(ctx context.Context, conversationID string) ([]*chat.Message, error) {
	query := `
		SELECT id, role, content, tool_calls, tool_call_id, metadata, sent_at
		FROM conversation_messages
		WHERE conversation_id = ?
		ORDER BY seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying transcript: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []*chat.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return msgs, nil
}

// UpdateMessageMetadata replaces the metadata blob of one message. Content
// and all other columns are never touched here.
func (s *SQLiteStore) UpdateMessageMetadata(ctx context.Context, conversationID, messageID string, metadata map[string]any) error {
	data, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	query := `
		UPDATE conversation_messages
		SET metadata = ?
		WHERE conversation_id = ? AND id = ?
	`
	result, err := s.db.ExecContext(ctx, query, string(data), conversationID, messageID)
	if err != nil {
		return fmt.Errorf("updating message metadata: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanMessage scans a single message row.
func scanMessage(rows *sql.Rows) (*chat.Message, error) {
	var msg chat.Message
	var role string
	var toolCalls, toolCallID, metadata, sentAt sql.NullString

	err := rows.Scan(&msg.ID, &role, &msg.Content, &toolCalls, &toolCallID, &metadata, &sentAt)
	if err != nil {
		return nil, fmt.Errorf("scanning message row: %w", err)
	}
	msg.Role = chat.Role(role)

	if toolCalls.Valid {
		if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
			return nil, fmt.Errorf("decoding tool calls: %w", err)
		}
	}
	if toolCallID.Valid {
		msg.ToolCallID = toolCallID.String
	}
	if metadata.Valid {
		if err := json.Unmarshal([]byte(metadata.String), &msg.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata: %w", err)
		}
	}
	if sentAt.Valid {
		t, err := time.Parse(time.RFC3339, sentAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing sent_at: %w", err)
		}
		msg.SentAt = &t
	}
	return &msg, nil
}

// nullString converts an empty string to a NULL value.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullableString converts a nil pointer to a NULL value.
func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// Ensure SQLiteStore implements the Store interface.
var _ Store = (*SQLiteStore)(nil)
