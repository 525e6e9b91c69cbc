// ABOUTME: Hazard guard wrapping an external content classifier
// ABOUTME: Annotates flagged messages with metadata; never blocks a turn

package safety

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/rei-gateway/internal/chat"
)

// Verdict is the classifier's judgement of a message window.
type Verdict string

const (
	VerdictSafe   Verdict = "safe"
	VerdictUnsafe Verdict = "unsafe"
)

// Classifier judges whether a short message window contains hazardous
// content. On an unsafe verdict the returned category names the hazard
// taxonomy key; it may be empty if the classifier could not pin one down.
type Classifier interface {
	Classify(ctx context.Context, msgs []*chat.Message) (Verdict, string, error)
}

// Guard runs the classifier at the two gate points of a turn. With a nil
// classifier both gates are no-ops and add no latency.
type Guard struct {
	classifier Classifier
	logger     *slog.Logger
}

// NewGuard creates a guard. Pass a nil classifier to disable both gates.
func NewGuard(classifier Classifier, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		classifier: classifier,
		logger:     logger.With("component", "safety"),
	}
}

// Enabled reports whether a classifier is configured.
func (g *Guard) Enabled() bool {
	return g.classifier != nil
}

// CheckInput classifies the last message of the transcript before
// generation. On an unsafe verdict with a category, the category is merged
// into that message's metadata. The gate informs the generation step, it
// never blocks the turn. Classifier errors are returned so the caller can
// decide whether to proceed.
func (g *Guard) CheckInput(ctx context.Context, transcript []*chat.Message) error {
	if g.classifier == nil || len(transcript) == 0 {
		return nil
	}

	last := transcript[len(transcript)-1]
	verdict, category, err := g.classifier.Classify(ctx, []*chat.Message{last})
	if err != nil {
		return fmt.Errorf("classifying input: %w", err)
	}

	if verdict == VerdictUnsafe && category != "" {
		last.MergeMetadata(map[string]any{chat.MetadataKeyHazard: category})
		g.logger.Info("input flagged by hazard classifier",
			"message_id", last.ID,
			"category", category)
	}
	return nil
}

// CheckOutput classifies the last two messages (user input plus the fresh
// reply) after generation. The verdict is computed and logged but no
// remediation is performed: whether to regenerate, edit, or block the reply
// is an unresolved design question, so the gate deliberately discards its
// findings.
func (g *Guard) CheckOutput(ctx context.Context, transcript []*chat.Message) error {
	if g.classifier == nil || len(transcript) == 0 {
		return nil
	}

	start := len(transcript) - 2
	if start < 0 {
		start = 0
	}
	verdict, category, err := g.classifier.Classify(ctx, transcript[start:])
	if err != nil {
		return fmt.Errorf("classifying output: %w", err)
	}

	if verdict == VerdictUnsafe {
		g.logger.Warn("generated reply flagged by hazard classifier; no remediation configured",
			"category", category)
	}
	return nil
}
