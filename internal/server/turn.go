// ABOUTME: Shared per-turn pipeline behind both transports
// ABOUTME: Authorization, orchestrator run, frame translation, epilogue

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/rei-gateway/internal/agent"
	"github.com/2389/rei-gateway/internal/chat"
	"github.com/2389/rei-gateway/internal/store"
	"github.com/2389/rei-gateway/internal/stream"
)

var (
	// ErrNotOwner is returned when the requester does not own the
	// conversation. Fatal to the current channel or stream, never to
	// the process.
	ErrNotOwner = errors.New("requester does not own the conversation")

	// ErrUnknownConversation is returned for turns on a conversation id
	// that does not exist.
	ErrUnknownConversation = errors.New("conversation not found")
)

// pipeline is the turn machinery both transports share. Only frame writing
// differs between them, so run takes a write callback.
type pipeline struct {
	store        store.Store
	orchestrator *agent.Orchestrator
	epilogue     *agent.Epilogue
	usage        stream.UsageRecorder
	logger       *slog.Logger
	now          func() time.Time
}

// authorize checks that the requester owns the conversation. It runs before
// anything else in a turn; a failed check never reaches the model.
func (p *pipeline) authorize(ctx context.Context, conversationID, userID string) error {
	conv, err := p.store.GetConversation(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUnknownConversation
	}
	if err != nil {
		return fmt.Errorf("loading conversation: %w", err)
	}
	if conv.Owner != userID {
		return ErrNotOwner
	}
	return nil
}

// run executes one full turn for an inbound message, calling write for each
// outbound frame as it is produced. On success the epilogue runs and, when a
// title was generated, one Info frame is written. The returned error is the
// turn-level outcome; each transport decides what it does to the connection.
func (p *pipeline) run(ctx context.Context, userID string, inbound *chat.InboundMessage, includeConversation bool, write func(stream.Frame) error) error {
	if err := p.authorize(ctx, inbound.Conversation, userID); err != nil {
		return err
	}

	if inbound.ID == "" {
		inbound.ID = uuid.New().String()
	}

	conversationField := ""
	if includeConversation {
		conversationField = inbound.Conversation
	}

	translator := &stream.Translator{
		ParentID:     inbound.ID,
		Conversation: conversationField,
		UserID:       userID,
		Usage: stream.MultiRecorder(p.usage, &usageSaver{
			store:          p.store,
			conversationID: inbound.Conversation,
			logger:         p.logger,
			now:            p.now,
		}),
		Logger: p.logger,
	}

	sentAt := p.now()
	userMsg := &chat.Message{
		ID:      inbound.ID,
		Role:    chat.RoleUser,
		Content: inbound.Content,
		SentAt:  &sentAt,
	}

	events := make(chan agent.RunEvent, 32)
	turnErr := make(chan error, 1)
	go func() {
		turnErr <- p.orchestrator.RunTurn(ctx, inbound.Conversation, userMsg, events)
		close(events)
	}()

	// Frames must keep draining even after a write failure, otherwise the
	// translator goroutine and the turn behind it would block forever.
	var writeErr error
	for frame := range translator.Translate(events) {
		if writeErr != nil {
			continue
		}
		if err := write(frame); err != nil {
			writeErr = err
		}
	}

	if err := <-turnErr; err != nil {
		return err
	}
	if writeErr != nil {
		return fmt.Errorf("writing frames: %w", writeErr)
	}

	title, generated := p.epilogue.Run(ctx, inbound.Conversation, inbound.RequireSummarization())
	if generated {
		frame := stream.InfoFrame(conversationField, stream.InfoBody{Type: "title-generated", Payload: title})
		if err := write(frame); err != nil {
			p.logger.Warn("writing title frame failed", "conversation_id", inbound.Conversation, "error", err)
		}
	}
	return nil
}

// usageSaver mirrors usage increments into the store so accounting survives
// restarts. Persistence failures are logged and contained, matching the
// metrics policy.
type usageSaver struct {
	store          store.Store
	conversationID string
	logger         *slog.Logger
	now            func() time.Time
}

func (s *usageSaver) RecordUsage(userID, modelName string, inputTokens, outputTokens int) {
	record := &store.UsageRecord{
		ID:             uuid.New().String(),
		ConversationID: s.conversationID,
		UserID:         userID,
		ModelName:      modelName,
		InputTokens:    inputTokens,
		OutputTokens:   outputTokens,
		CreatedAt:      s.now(),
	}
	// Uses its own context: usage persistence must survive the request's
	// cancellation after stream cutoff.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.SaveUsage(ctx, record); err != nil {
		s.logger.Error("persisting usage record", "conversation_id", s.conversationID, "error", err)
	}
}
