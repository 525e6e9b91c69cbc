// ABOUTME: RunEvent, the internal event stream produced while a turn executes
// ABOUTME: Consumed only by the stream translator; never sent to clients raw

package agent

import (
	"strings"

	"github.com/2389/rei-gateway/internal/chat"
)

// EventKind discriminates RunEvents.
type EventKind string

const (
	KindModelStart     EventKind = "model-start"
	KindModelChunk     EventKind = "model-chunk"
	KindModelEnd       EventKind = "model-end"
	KindToolInvocation EventKind = "tool-invocation"
	KindInternal       EventKind = "internal"
)

// TagInternal marks events that must never reach a client.
const TagInternal = "internal"

// internalNamePrefix marks events private to the runtime, by naming
// convention. The translator drops them regardless of tags.
const internalNamePrefix = "_"

// RunEvent is one event in a turn's raw stream. Model-kind events carry a
// run id tying the Start/Chunk/End triple of one inference call together; a
// turn spans multiple run ids when the tool loop re-generates.
type RunEvent struct {
	Name  string
	Tags  []string
	Kind  EventKind
	RunID string

	// Chunk holds incremental text for KindModelChunk.
	Chunk string

	// Message holds the final assistant message (with usage metadata) for
	// KindModelEnd, or the tool result message for KindToolInvocation.
	Message *chat.Message
}

// Internal reports whether the event is private to the runtime, either by
// name prefix or by tag.
func (e *RunEvent) Internal() bool {
	if strings.HasPrefix(e.Name, internalNamePrefix) {
		return true
	}
	for _, tag := range e.Tags {
		if tag == TagInternal {
			return true
		}
	}
	return false
}
