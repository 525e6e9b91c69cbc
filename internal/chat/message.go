// ABOUTME: Core message types shared across the gateway: roles, tool calls, usage
// ABOUTME: Messages are append-only once in a transcript; only metadata may be merged

package chat

import (
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// MetadataKeyHazard is the metadata key the safety guard writes when the
// classifier flags a message. It is the only channel between the input guard
// and the generation step.
const MetadataKeyHazard = "hazard"

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ArgumentsJSON string `json:"arguments"`
}

// Usage holds token accounting reported by the model for one run.
type Usage struct {
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	ModelName    string `json:"model_name"`
}

// Message is a single entry in a conversation transcript.
//
// Content is immutable once the message has been appended to a transcript.
// Metadata is the one mutable part: the safety guard annotates hazard
// categories there via MergeMetadata.
type Message struct {
	ID         string         `json:"id"`
	Role       Role           `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	SentAt     *time.Time     `json:"sent_at,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Usage      *Usage         `json:"usage,omitempty"`
}

// MergeMetadata merges the given keys into the message metadata. Existing
// keys are overwritten by incoming ones, but content and other fields are
// never touched. A nil metadata map is allocated on first merge.
func (m *Message) MergeMetadata(kv map[string]any) {
	if len(kv) == 0 {
		return
	}
	if m.Metadata == nil {
		m.Metadata = make(map[string]any, len(kv))
	}
	for k, v := range kv {
		m.Metadata[k] = v
	}
}

// Hazard returns the hazard category annotated on this message, or "" if
// the message was never flagged.
func (m *Message) Hazard() string {
	if m.Metadata == nil {
		return ""
	}
	if v, ok := m.Metadata[MetadataKeyHazard].(string); ok {
		return v
	}
	return ""
}

// HasToolCalls reports whether the message carries pending tool invocations.
func (m *Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}
