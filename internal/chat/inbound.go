// ABOUTME: Inbound payload shared by both transports (WebSocket and SSE)
// ABOUTME: One InboundMessage starts exactly one turn

package chat

// InboundMessage is the client payload that starts a turn. The WebSocket
// channel receives a sequence of these; the single-shot stream receives
// exactly one (with Conversation taken from the URL).
type InboundMessage struct {
	ID              string         `json:"id"`
	Conversation    string         `json:"conversation"`
	Content         string         `json:"content"`
	AdditionalFlags map[string]any `json:"additional_flags,omitempty"`
}

// RequireSummarization reports whether the client asked for a conversation
// title to be generated after this turn.
func (m *InboundMessage) RequireSummarization() bool {
	if m.AdditionalFlags == nil {
		return false
	}
	v, ok := m.AdditionalFlags["require_summarization"].(bool)
	return ok && v
}
