// ABOUTME: Conversation title summarization on top of a completion model
// ABOUTME: One short completion over the trimmed transcript tail

package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/rei-gateway/internal/chat"
)

// Completer is the non-streaming completion capability the summarizer and
// the guard classifier run on.
type Completer interface {
	Complete(ctx context.Context, system string, msgs []*chat.Message) (string, error)
}

const titleInstruction = `Summarize the conversation so far in a short title of at most six words. Reply with the title only, no punctuation around it and no explanation.`

// TitleSummarizer produces conversation titles. It implements
// agent.Summarizer.
type TitleSummarizer struct {
	completer Completer
}

// NewTitleSummarizer creates a summarizer over a completion model.
func NewTitleSummarizer(completer Completer) *TitleSummarizer {
	return &TitleSummarizer{completer: completer}
}

// Summarize returns the model's raw title text for the given window. The
// caller is responsible for stripping surrounding quotes.
func (s *TitleSummarizer) Summarize(ctx context.Context, msgs []*chat.Message) (string, error) {
	raw, err := s.completer.Complete(ctx, titleInstruction, msgs)
	if err != nil {
		return "", fmt.Errorf("title completion: %w", err)
	}
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", fmt.Errorf("title completion returned empty text")
	}
	return title, nil
}
