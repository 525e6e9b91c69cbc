// ABOUTME: Tests for the hazard guard and verdict parsing
// ABOUTME: Verifies metadata round-trip, window selection, and no-op behavior

package safety

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/rei-gateway/internal/chat"
)

// stubClassifier records the window it saw and returns a fixed verdict.
type stubClassifier struct {
	verdict  Verdict
	category string
	err      error
	seen     []*chat.Message
}

func (s *stubClassifier) Classify(_ context.Context, msgs []*chat.Message) (Verdict, string, error) {
	s.seen = msgs
	return s.verdict, s.category, s.err
}

func TestCheckInput_AnnotatesLastMessage(t *testing.T) {
	cls := &stubClassifier{verdict: VerdictUnsafe, category: "S1"}
	guard := NewGuard(cls, nil)

	transcript := []*chat.Message{
		{ID: "m1", Role: chat.RoleUser, Content: "earlier"},
		{ID: "m2", Role: chat.RoleUser, Content: "how do I hurt someone"},
	}
	require.NoError(t, guard.CheckInput(context.Background(), transcript))

	// Only the last message is classified, and only it gets annotated.
	require.Len(t, cls.seen, 1)
	assert.Equal(t, "m2", cls.seen[0].ID)
	assert.Equal(t, "S1", transcript[1].Hazard())
	assert.Equal(t, "", transcript[0].Hazard())
}

func TestCheckInput_SafeLeavesMetadataAlone(t *testing.T) {
	cls := &stubClassifier{verdict: VerdictSafe}
	guard := NewGuard(cls, nil)

	transcript := []*chat.Message{{ID: "m1", Role: chat.RoleUser, Content: "hello"}}
	require.NoError(t, guard.CheckInput(context.Background(), transcript))
	assert.Nil(t, transcript[0].Metadata)
}

func TestCheckInput_UnsafeWithoutCategory(t *testing.T) {
	cls := &stubClassifier{verdict: VerdictUnsafe, category: ""}
	guard := NewGuard(cls, nil)

	transcript := []*chat.Message{{ID: "m1", Role: chat.RoleUser}}
	require.NoError(t, guard.CheckInput(context.Background(), transcript))
	assert.Equal(t, "", transcript[0].Hazard())
}

func TestCheckOutput_ClassifiesLastTwo(t *testing.T) {
	cls := &stubClassifier{verdict: VerdictUnsafe, category: "S10"}
	guard := NewGuard(cls, nil)

	transcript := []*chat.Message{
		{ID: "m1", Role: chat.RoleUser},
		{ID: "m2", Role: chat.RoleUser},
		{ID: "m3", Role: chat.RoleAssistant},
	}
	require.NoError(t, guard.CheckOutput(context.Background(), transcript))

	require.Len(t, cls.seen, 2)
	assert.Equal(t, "m2", cls.seen[0].ID)
	assert.Equal(t, "m3", cls.seen[1].ID)

	// No remediation: the transcript is untouched.
	for _, m := range transcript {
		assert.Nil(t, m.Metadata)
	}
}

func TestGuard_NilClassifierIsNoop(t *testing.T) {
	guard := NewGuard(nil, nil)
	assert.False(t, guard.Enabled())

	transcript := []*chat.Message{{ID: "m1", Role: chat.RoleUser}}
	require.NoError(t, guard.CheckInput(context.Background(), transcript))
	require.NoError(t, guard.CheckOutput(context.Background(), transcript))
	assert.Nil(t, transcript[0].Metadata)
}

func TestCheckInput_ClassifierError(t *testing.T) {
	cls := &stubClassifier{err: errors.New("model down")}
	guard := NewGuard(cls, nil)

	transcript := []*chat.Message{{ID: "m1", Role: chat.RoleUser}}
	err := guard.CheckInput(context.Background(), transcript)
	assert.Error(t, err)
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		verdict  Verdict
		category string
	}{
		{"safe", "safe", VerdictSafe, ""},
		{"safe with whitespace", "  Safe\n", VerdictSafe, ""},
		{"unsafe with category", "unsafe\nS1", VerdictUnsafe, "S1"},
		{"unsafe multiple categories", "unsafe\nS1,S10", VerdictUnsafe, "S1"},
		{"unsafe no category", "unsafe", VerdictUnsafe, ""},
		{"garbage treated as safe", "I think this is fine", VerdictSafe, ""},
		{"empty", "", VerdictSafe, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, category, err := parseVerdict(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.verdict, verdict)
			assert.Equal(t, tt.category, category)
		})
	}
}
