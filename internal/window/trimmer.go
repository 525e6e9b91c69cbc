// ABOUTME: Token-budgeted context window trimmer with a starts-on-user constraint
// ABOUTME: Pure functions reused for prompt construction and title summarization

package window

import (
	"fmt"

	"github.com/2389/rei-gateway/internal/chat"
)

// TitleBudget is the fixed budget (with the message-count counter) used when
// trimming the transcript for title summarization.
const TitleBudget = 20

// Counter computes the token cost of a message sequence.
type Counter func(msgs []*chat.Message) (int, error)

// TokenCounter is implemented by model capabilities that can count tokens
// exactly for their own tokenizer.
type TokenCounter interface {
	CountTokens(msgs []*chat.Message) (int, error)
}

// ExactCounter returns a Counter backed by the model's own tokenizer.
func ExactCounter(tc TokenCounter) Counter {
	return tc.CountTokens
}

// MessageCountCounter returns the fallback Counter that costs one unit per
// message. Used when no exact counter is available; callers should log a
// warning once at construction since this can let long messages overflow
// the real context window.
func MessageCountCounter() Counter {
	return func(msgs []*chat.Message) (int, error) {
		return len(msgs), nil
	}
}

// GenerationBudget computes the prompt budget for a model: the context
// length minus tokens reserved for the reply. If the model's max output
// tokens is unknown (zero), 20% of the context length is reserved.
func GenerationBudget(contextLength, maxOutputTokens int) int {
	reserved := maxOutputTokens
	if reserved <= 0 {
		reserved = contextLength / 5
	}
	return contextLength - reserved
}

// Trim returns the longest contiguous suffix of msgs whose cost is within
// budget, such that the first retained message has role user. The scan walks
// from the most recent message backward accumulating cost; once the budget
// would be exceeded it stops, then discards leading non-user messages (even
// though they fit) so generation always begins from a user turn.
//
// The result may be empty: when no user message is reachable within budget,
// or when the most recent message alone exceeds it. Callers must handle an
// empty window; Trim never fails on it.
func Trim(msgs []*chat.Message, counter Counter, budget int) ([]*chat.Message, error) {
	if counter == nil {
		return nil, fmt.Errorf("nil counter")
	}
	if budget <= 0 || len(msgs) == 0 {
		return nil, nil
	}

	// Find the longest suffix within budget.
	start := len(msgs)
	for start > 0 {
		cost, err := counter(msgs[start-1:])
		if err != nil {
			return nil, fmt.Errorf("counting tokens: %w", err)
		}
		if cost > budget {
			break
		}
		start--
	}

	// Advance past leading non-user messages.
	for start < len(msgs) && msgs[start].Role != chat.RoleUser {
		start++
	}
	if start >= len(msgs) {
		return nil, nil
	}
	return msgs[start:], nil
}
