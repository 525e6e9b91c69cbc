// ABOUTME: Outbound frame protocol shared by the WebSocket and SSE transports
// ABOUTME: Start/Chunk/End/Info frames with the wire schema clients consume

package stream

// FrameType discriminates outbound frames on the wire.
type FrameType string

const (
	FrameStart FrameType = "stream/start"
	FrameText  FrameType = "stream/text"
	FrameEnd   FrameType = "stream/end"
	FrameInfo  FrameType = "info"
)

// InfoBody is the typed notification payload of an Info frame, e.g.
// {"type": "title-generated", "payload": "<title>"}.
type InfoBody struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Frame is one outbound protocol frame. ParentID is the inbound message
// that started the turn; ID is the run id of the model invocation the frame
// belongs to. Conversation is set on the persistent channel (clients fan
// frames out by it) and omitted on the single-shot stream, which is already
// scoped to one conversation.
type Frame struct {
	Type         FrameType `json:"type"`
	ParentID     string    `json:"parent_id,omitempty"`
	ID           string    `json:"id,omitempty"`
	Conversation string    `json:"conversation,omitempty"`

	// Content carries chunk text for stream/text frames and an InfoBody
	// for info frames.
	Content any `json:"content,omitempty"`
}

// StartFrame announces that a model run began streaming.
func StartFrame(parentID, runID, conversation string) Frame {
	return Frame{Type: FrameStart, ParentID: parentID, ID: runID, Conversation: conversation}
}

// ChunkFrame carries one incremental text fragment of a model run.
func ChunkFrame(parentID, runID, conversation, text string) Frame {
	return Frame{Type: FrameText, ParentID: parentID, ID: runID, Conversation: conversation, Content: text}
}

// EndFrame announces that a model run finished.
func EndFrame(parentID, runID, conversation string) Frame {
	return Frame{Type: FrameEnd, ParentID: parentID, ID: runID, Conversation: conversation}
}

// InfoFrame carries an out-of-band notification for the conversation.
func InfoFrame(conversation string, body InfoBody) Frame {
	return Frame{Type: FrameInfo, Conversation: conversation, Content: body}
}

// ErrorFrame reports a turn-level failure on the single-shot stream, which
// has no channel to close with a status code.
func ErrorFrame(conversation, message string) Frame {
	return InfoFrame(conversation, InfoBody{Type: "error", Payload: message})
}
