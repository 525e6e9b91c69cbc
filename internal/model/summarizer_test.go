// ABOUTME: Tests for the title summarizer and the echo model
// ABOUTME: Verifies trimming, empty-title errors, and echo determinism

package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/rei-gateway/internal/agent"
	"github.com/2389/rei-gateway/internal/chat"
)

type fakeCompleter struct {
	reply string
	err   error
}

func (f fakeCompleter) Complete(context.Context, string, []*chat.Message) (string, error) {
	return f.reply, f.err
}

func TestTitleSummarizer(t *testing.T) {
	s := NewTitleSummarizer(fakeCompleter{reply: "  Weekend Plans \n"})
	title, err := s.Summarize(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Weekend Plans", title)
}

func TestTitleSummarizer_Errors(t *testing.T) {
	s := NewTitleSummarizer(fakeCompleter{err: errors.New("backend down")})
	_, err := s.Summarize(context.Background(), nil)
	assert.Error(t, err)

	s = NewTitleSummarizer(fakeCompleter{reply: "   "})
	_, err = s.Summarize(context.Background(), nil)
	assert.Error(t, err)
}

func TestEcho_Stream(t *testing.T) {
	events, err := Echo{}.Stream(context.Background(), &agent.GenerateRequest{
		RunID: "run-1",
		Messages: []*chat.Message{
			{Role: chat.RoleUser, Content: "hello world"},
		},
	})
	require.NoError(t, err)

	var out []agent.RunEvent
	for ev := range events {
		out = append(out, ev)
	}
	require.NotEmpty(t, out)
	assert.Equal(t, agent.KindModelStart, out[0].Kind)
	final := out[len(out)-1]
	require.Equal(t, agent.KindModelEnd, final.Kind)
	assert.Equal(t, "You said: hello world", final.Message.Content)
	require.NotNil(t, final.Message.Usage)
	assert.Equal(t, 2, final.Message.Usage.InputTokens)
}

func TestEcho_Complete(t *testing.T) {
	text, err := Echo{}.Complete(context.Background(), "", []*chat.Message{
		{Role: chat.RoleUser, Content: "one two three four five six seven"},
	})
	require.NoError(t, err)
	assert.Equal(t, "one two three four five six", text)

	text, err = Echo{}.Complete(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Equal(t, "New conversation", text)
}
