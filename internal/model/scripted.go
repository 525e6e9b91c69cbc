// ABOUTME: Deterministic echo model for local development and smoke testing
// ABOUTME: Streams the inbound text back word by word, no network involved

package model

import (
	"context"
	"strings"

	"github.com/2389/rei-gateway/internal/agent"
	"github.com/2389/rei-gateway/internal/chat"
)

// Echo is a ChatModel that repeats the last user message back, one word per
// chunk. It lets the gateway run end to end without an inference backend.
type Echo struct{}

var _ agent.ChatModel = (*Echo)(nil)

func (Echo) Name() string { return "echo" }

func (Echo) Stream(ctx context.Context, req *agent.GenerateRequest) (<-chan agent.RunEvent, error) {
	var input string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == chat.RoleUser {
			input = req.Messages[i].Content
			break
		}
	}
	reply := "You said: " + input

	events := make(chan agent.RunEvent, 16)
	go func() {
		defer close(events)
		emit := func(ev agent.RunEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit(agent.RunEvent{Kind: agent.KindModelStart, RunID: req.RunID, Name: "chat"}) {
			return
		}
		var text strings.Builder
		for i, word := range strings.Fields(reply) {
			chunk := word
			if i > 0 {
				chunk = " " + word
			}
			text.WriteString(chunk)
			if !emit(agent.RunEvent{Kind: agent.KindModelChunk, RunID: req.RunID, Name: "chat", Chunk: chunk}) {
				return
			}
		}
		emit(agent.RunEvent{
			Kind:  agent.KindModelEnd,
			RunID: req.RunID,
			Name:  "chat",
			Message: &chat.Message{
				ID:      req.RunID,
				Role:    chat.RoleAssistant,
				Content: text.String(),
				Usage: &chat.Usage{
					InputTokens:  len(strings.Fields(input)),
					OutputTokens: len(strings.Fields(reply)),
					ModelName:    "echo",
				},
			},
		})
	}()
	return events, nil
}

// Complete satisfies the Completer capability so the echo model can also
// stand in for the classifier and summarizer in development.
func (Echo) Complete(_ context.Context, _ string, msgs []*chat.Message) (string, error) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == chat.RoleUser {
			words := strings.Fields(msgs[i].Content)
			if len(words) > 6 {
				words = words[:6]
			}
			return strings.Join(words, " "), nil
		}
	}
	return "New conversation", nil
}
