// ABOUTME: Persona instruction and hazard hint rendering for generation
// ABOUTME: The hint message is ephemeral; it is never written to the transcript

package agent

import (
	"fmt"
	"time"

	"github.com/2389/rei-gateway/internal/chat"
	"github.com/2389/rei-gateway/internal/safety"
)

const personaInstruction = `You are Rei, the ideal assistant dedicated to assisting users effectively. Always assist with care, respect, and truth. Respond with utmost utility yet securely. Avoid harmful, unethical, prejudiced, or negative content. Ensure replies promote fairness and positivity.
When solving problems, decompose them into smaller parts, think through each part step by step before providing your final answer.

Current date: %s`

const hazardHintTemplate = `The user input may contain improper content related to:
%s

Please respond with care and professionalism. Avoid engaging with harmful or unethical content. Instead, guide the user towards more constructive and respectful communication.`

// renderInstruction builds the system instruction for one generation. The
// date comes from the most recent message's sent_at timestamp when present,
// otherwise from the wall clock, so replayed conversations see a stable
// date.
func renderInstruction(transcript []*chat.Message, now func() time.Time) string {
	respondingAt := now()
	if len(transcript) > 0 {
		if sentAt := transcript[len(transcript)-1].SentAt; sentAt != nil {
			respondingAt = *sentAt
		}
	}
	return fmt.Sprintf(personaInstruction, respondingAt.Format("2006-01-02 (Monday)"))
}

// hazardHint synthesizes the ephemeral system message injected when the
// last transcript message carries a hazard tag. The returned message is
// appended only to the outgoing generation window, never persisted.
func hazardHint(category string) *chat.Message {
	return &chat.Message{
		Role:    chat.RoleSystem,
		Content: fmt.Sprintf(hazardHintTemplate, safety.CategoryDescription(category)),
	}
}
