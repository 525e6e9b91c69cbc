// ABOUTME: External capability interfaces the orchestrator depends on
// ABOUTME: Model inference, tool execution, summarization, and persistence

package agent

import (
	"context"

	"github.com/2389/rei-gateway/internal/chat"
	"github.com/2389/rei-gateway/internal/store"
)

// GenerateRequest is one model-inference invocation within a turn.
type GenerateRequest struct {
	// RunID identifies this inference call in the event stream.
	RunID string

	// System is the persona instruction, already rendered with the current
	// date and any hazard hint appended.
	System string

	// Messages is the budget-trimmed window actually sent to the model.
	Messages []*chat.Message
}

// ChatModel is the model-inference capability. Stream returns a live event
// sequence: exactly one KindModelStart, zero or more KindModelChunk, and a
// terminal KindModelEnd whose Message carries the full reply with usage
// metadata and any requested tool calls. The channel is closed after the
// end event, or after an internal error event if inference failed.
type ChatModel interface {
	// Name returns the model identifier used in usage metadata.
	Name() string
	Stream(ctx context.Context, req *GenerateRequest) (<-chan RunEvent, error)
}

// ToolExecutor runs one requested tool invocation and returns the result as
// a tool-role message (ToolCallID linking it to the request). Execution
// failures are reported inside the message, not as an error: the model sees
// the failure text and can recover.
type ToolExecutor interface {
	Execute(ctx context.Context, call chat.ToolCall) *chat.Message
}

// Summarizer produces a raw conversation title from a trimmed message
// window. The caller strips surrounding quotes before persisting.
type Summarizer interface {
	Summarize(ctx context.Context, msgs []*chat.Message) (string, error)
}

// TranscriptStore is what the orchestrator needs from persistence: the
// conversation record and the durable transcript keyed by conversation id.
type TranscriptStore interface {
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	UpdateConversation(ctx context.Context, conv *store.Conversation) error

	GetTranscript(ctx context.Context, conversationID string) ([]*chat.Message, error)
	AppendMessage(ctx context.Context, conversationID string, msg *chat.Message) error
	UpdateMessageMetadata(ctx context.Context, conversationID, messageID string, metadata map[string]any) error
}
