// ABOUTME: Store interface and data types for rei-gateway persistence
// ABOUTME: Conversations, durable transcripts, and token usage records

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/rei-gateway/internal/chat"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when creating a conversation whose id
// already exists.
var ErrDuplicateConversation = errors.New("conversation already exists")

// Conversation is the durable conversation record. It is created externally
// (by whatever provisions conversations for a user); the gateway mutates
// only LastMessageAt and Title, and never deletes it.
type Conversation struct {
	ID            string
	Owner         string
	Title         *string
	CreatedAt     time.Time
	LastMessageAt time.Time
}

// UsageRecord is one model invocation's token accounting, mirrored into the
// store so usage survives process restarts (the live counters are in the
// metrics registry).
type UsageRecord struct {
	ID             string
	ConversationID string
	UserID         string
	ModelName      string
	InputTokens    int
	OutputTokens   int
	CreatedAt      time.Time
}

// Store is the persistence interface for conversation records, transcripts,
// and usage accounting.
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	UpdateConversation(ctx context.Context, conv *Conversation) error
	ListConversations(ctx context.Context, owner string, limit int) ([]*Conversation, error)

	// Transcript (append-only message log per conversation)
	GetTranscript(ctx context.Context, conversationID string) ([]*chat.Message, error)
	AppendMessage(ctx context.Context, conversationID string, msg *chat.Message) error
	UpdateMessageMetadata(ctx context.Context, conversationID, messageID string, metadata map[string]any) error

	// Token usage
	SaveUsage(ctx context.Context, usage *UsageRecord) error
	GetConversationUsage(ctx context.Context, conversationID string) ([]*UsageRecord, error)

	// Close releases any resources held by the store
	Close() error
}
