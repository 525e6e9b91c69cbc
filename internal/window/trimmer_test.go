// ABOUTME: Tests for the context window trimmer
// ABOUTME: Covers suffix/budget/starts-on-user properties and empty-window edges

package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/rei-gateway/internal/chat"
)

func msg(role chat.Role, content string) *chat.Message {
	return &chat.Message{Role: role, Content: content}
}

func TestTrim_SuffixWithinBudget(t *testing.T) {
	msgs := []*chat.Message{
		msg(chat.RoleUser, "a"),
		msg(chat.RoleAssistant, "b"),
		msg(chat.RoleUser, "c"),
		msg(chat.RoleAssistant, "d"),
	}

	got, err := Trim(msgs, MessageCountCounter(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].Content)
	assert.Equal(t, "d", got[1].Content)
	assert.Equal(t, chat.RoleUser, got[0].Role)
}

func TestTrim_StartsOnUserDiscardsLeaders(t *testing.T) {
	// [system, assistant, user, assistant] with budget 3: the suffix within
	// budget is [assistant, user, assistant], but the leading assistant must
	// be dropped so the window starts on a user message.
	msgs := []*chat.Message{
		msg(chat.RoleSystem, "s"),
		msg(chat.RoleAssistant, "a1"),
		msg(chat.RoleUser, "u"),
		msg(chat.RoleAssistant, "a2"),
	}

	got, err := Trim(msgs, MessageCountCounter(), 3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, chat.RoleUser, got[0].Role)
	assert.Equal(t, "u", got[0].Content)
}

func TestTrim_NoUserReachableReturnsEmpty(t *testing.T) {
	// Budget only covers the trailing assistant message: no user message is
	// reachable, so the window is empty rather than role-violating.
	msgs := []*chat.Message{
		msg(chat.RoleSystem, "s"),
		msg(chat.RoleAssistant, "a1"),
		msg(chat.RoleUser, "u"),
		msg(chat.RoleAssistant, "a2"),
	}

	got, err := Trim(msgs, MessageCountCounter(), 1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTrim_SingleMessageOverBudget(t *testing.T) {
	longCounter := func(msgs []*chat.Message) (int, error) {
		total := 0
		for _, m := range msgs {
			total += len(m.Content)
		}
		return total, nil
	}

	msgs := []*chat.Message{msg(chat.RoleUser, "this message is far too long")}
	got, err := Trim(msgs, longCounter, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTrim_EmptyInputAndZeroBudget(t *testing.T) {
	got, err := Trim(nil, MessageCountCounter(), 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = Trim([]*chat.Message{msg(chat.RoleUser, "x")}, MessageCountCounter(), 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTrim_SuffixProperty(t *testing.T) {
	// For a spread of budgets, the result is always a suffix, within budget,
	// and starts on a user message when non-empty.
	msgs := []*chat.Message{
		msg(chat.RoleSystem, "s"),
		msg(chat.RoleUser, "u1"),
		msg(chat.RoleAssistant, "a1"),
		msg(chat.RoleUser, "u2"),
		msg(chat.RoleAssistant, "a2"),
		msg(chat.RoleUser, "u3"),
	}
	counter := MessageCountCounter()

	for budget := 0; budget <= len(msgs)+1; budget++ {
		got, err := Trim(msgs, counter, budget)
		require.NoError(t, err)

		if len(got) == 0 {
			continue
		}
		cost, err := counter(got)
		require.NoError(t, err)
		assert.LessOrEqual(t, cost, budget, "budget %d", budget)
		assert.Equal(t, chat.RoleUser, got[0].Role, "budget %d", budget)
		// Suffix check: the returned slice must match the tail of msgs.
		assert.Equal(t, msgs[len(msgs)-len(got):], got, "budget %d", budget)
	}
}

func TestGenerationBudget(t *testing.T) {
	// Known max output tokens: subtract it directly.
	assert.Equal(t, 90, GenerationBudget(100, 10))
	// Unknown: reserve 20% of the context length.
	assert.Equal(t, 16, GenerationBudget(20, 0))
	assert.Equal(t, 80, GenerationBudget(100, 0))
}
