// ABOUTME: Model-backed hazard classifier with a guard-style prompt
// ABOUTME: Parses "safe" / "unsafe\n<category>" completions into verdicts

package safety

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/rei-gateway/internal/chat"
)

// Completer is the narrow slice of a model capability the classifier needs:
// a single non-streamed completion for a system prompt plus messages.
type Completer interface {
	Complete(ctx context.Context, system string, msgs []*chat.Message) (string, error)
}

const classifierInstruction = `You are a content safety classifier. Given the conversation below, decide whether the most recent message contains unsafe content.

Respond with exactly one of:
- the single word "safe"
- the word "unsafe" on the first line, followed by the hazard category code (S1-S13) on the second line

Hazard categories:
S1: Violent Crimes, S2: Non-Violent Crimes, S3: Sex-Related Crimes, S4: Child Sexual Exploitation, S5: Defamation, S6: Specialized Advice, S7: Privacy, S8: Intellectual Property, S9: Indiscriminate Weapons, S10: Hate, S11: Suicide & Self-Harm, S12: Sexual Content, S13: Elections`

// ModelClassifier implements Classifier on top of a completion model, the
// way guard models such as Llama Guard are prompted.
type ModelClassifier struct {
	completer Completer
}

// NewModelClassifier wraps a completion model as a hazard classifier.
func NewModelClassifier(completer Completer) *ModelClassifier {
	return &ModelClassifier{completer: completer}
}

// Classify runs the guard prompt and parses the verdict.
func (c *ModelClassifier) Classify(ctx context.Context, msgs []*chat.Message) (Verdict, string, error) {
	raw, err := c.completer.Complete(ctx, classifierInstruction, msgs)
	if err != nil {
		return VerdictSafe, "", fmt.Errorf("invoking safety model: %w", err)
	}
	return parseVerdict(raw)
}

// parseVerdict interprets the guard model's completion. Anything that is not
// recognizably "unsafe" is treated as safe: a guard that cannot make itself
// understood must not poison the turn.
func parseVerdict(raw string) (Verdict, string, error) {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	if len(lines) == 0 {
		return VerdictSafe, "", nil
	}

	head := strings.ToLower(strings.TrimSpace(lines[0]))
	if head != string(VerdictUnsafe) {
		return VerdictSafe, "", nil
	}

	category := ""
	if len(lines) > 1 {
		// Guard models sometimes emit "S1,S10"; keep the first category.
		category = strings.TrimSpace(strings.Split(lines[1], ",")[0])
	}
	return VerdictUnsafe, category, nil
}

var _ Classifier = (*ModelClassifier)(nil)
