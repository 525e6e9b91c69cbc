// ABOUTME: Post-turn side effects: activity timestamp and title summarization
// ABOUTME: Best-effort; failures are logged and never reach the frame path

package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/2389/rei-gateway/internal/window"
)

// Epilogue runs after a turn reaches End. It always bumps the conversation's
// last-activity timestamp; when the inbound message asked for summarization
// it additionally generates and persists a title. It runs sequentially after
// the turn because summarization depends on the post-turn transcript.
type Epilogue struct {
	store      TranscriptStore
	summarizer Summarizer
	logger     *slog.Logger
	now        func() time.Time
}

// NewEpilogue creates an Epilogue. A nil summarizer disables titles.
func NewEpilogue(store TranscriptStore, summarizer Summarizer, logger *slog.Logger) *Epilogue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Epilogue{
		store:      store,
		summarizer: summarizer,
		logger:     logger.With("component", "epilogue"),
		now:        time.Now,
	}
}

// Run performs the post-turn side effects and returns the generated title,
// if any. All failures are contained here: the caller only learns whether a
// title exists for the Info frame.
func (e *Epilogue) Run(ctx context.Context, conversationID string, summarize bool) (title string, generated bool) {
	conv, err := e.store.GetConversation(ctx, conversationID)
	if err != nil {
		e.logger.Error("loading conversation for epilogue", "conversation_id", conversationID, "error", err)
		return "", false
	}

	conv.LastMessageAt = e.now()
	if err := e.store.UpdateConversation(ctx, conv); err != nil {
		e.logger.Error("updating last activity", "conversation_id", conversationID, "error", err)
	}

	if !summarize || e.summarizer == nil {
		return "", false
	}

	transcript, err := e.store.GetTranscript(ctx, conversationID)
	if err != nil {
		e.logger.Error("loading transcript for summarization", "conversation_id", conversationID, "error", err)
		return "", false
	}

	// Title summarization uses the fixed small budget with the fallback
	// counter regardless of the model's own tokenizer.
	win, err := window.Trim(transcript, window.MessageCountCounter(), window.TitleBudget)
	if err != nil || len(win) == 0 {
		e.logger.Warn("no window available for summarization", "conversation_id", conversationID, "error", err)
		return "", false
	}

	raw, err := e.summarizer.Summarize(ctx, win)
	if err != nil {
		e.logger.Error("summarization failed", "conversation_id", conversationID, "error", err)
		return "", false
	}

	title = stripQuotePair(raw)
	conv.Title = &title
	if err := e.store.UpdateConversation(ctx, conv); err != nil {
		e.logger.Error("persisting title", "conversation_id", conversationID, "error", err)
		return "", false
	}

	e.logger.Info("conversation title generated", "conversation_id", conversationID, "title", title)
	return title, true
}

// stripQuotePair removes one matching pair of surrounding double quotes.
// Quotes inside the string, and unbalanced quotes, are left alone.
func stripQuotePair(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
