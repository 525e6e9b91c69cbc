// ABOUTME: SQLite implementation for token usage tracking
// ABOUTME: Stores and retrieves LLM token consumption data for analytics

package store

import (
	"context"
	"fmt"
	"time"
)

// SaveUsage stores a token usage record.
func (s *SQLiteStore) SaveUsage(ctx context.Context, usage *UsageRecord) error {
	query := `
		INSERT INTO message_usage (
			id, conversation_id, user_id, model_name,
			input_tokens, output_tokens, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		usage.ID,
		usage.ConversationID,
		usage.UserID,
		usage.ModelName,
		usage.InputTokens,
		usage.OutputTokens,
		usage.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting usage: %w", err)
	}

	s.logger.Debug("saved token usage",
		"id", usage.ID,
		"conversation_id", usage.ConversationID,
		"model_name", usage.ModelName,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
	)
	return nil
}

// GetConversationUsage retrieves all usage records for a conversation.
func (s *SQLiteStore) GetConversationUsage(ctx context.Context, conversationID string) ([]*UsageRecord, error) {
	query := `
		SELECT id, conversation_id, user_id, model_name,
		       input_tokens, output_tokens, created_at
		FROM message_usage
		WHERE conversation_id = ?
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying conversation usage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var usages []*UsageRecord
	for rows.Next() {
		var usage UsageRecord
		var createdAt string
		err := rows.Scan(
			&usage.ID,
			&usage.ConversationID,
			&usage.UserID,
			&usage.ModelName,
			&usage.InputTokens,
			&usage.OutputTokens,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning usage row: %w", err)
		}
		if usage.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		usages = append(usages, &usage)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage rows: %w", err)
	}

	return usages, nil
}
