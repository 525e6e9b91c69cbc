// ABOUTME: Single-shot chat transport over SSE
// ABOUTME: One inbound payload, one turn, terminal error frame instead of a close code

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/2389/rei-gateway/internal/auth"
	"github.com/2389/rei-gateway/internal/chat"
	"github.com/2389/rei-gateway/internal/stream"
)

// ssePayload is the single-shot request body. The conversation id comes
// from the URL, so the frames omit it.
type ssePayload struct {
	ID              string         `json:"id"`
	Content         string         `json:"content"`
	AdditionalFlags map[string]any `json:"additional_flags,omitempty"`
}

// handleChatSSE serves one turn as a server-sent event stream. Frames are
// written as "message" events carrying the frame JSON; failures after the
// stream has started are reported as a terminal error frame, since there is
// no status code left to send.
func (s *Server) handleChatSSE(w http.ResponseWriter, r *http.Request) {
	identity := authIdentity(r)
	if identity == "" {
		http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
		return
	}
	conversationID := r.PathValue("conversation")

	var payload ssePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Content == "" {
		s.sendJSONError(w, http.StatusBadRequest, "content is required")
		return
	}

	// Check streaming support before committing to SSE (fail fast)
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	writeFrame := func(f stream.Frame) error {
		if err := s.writeSSEEvent(w, "message", f); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	inbound := &chat.InboundMessage{
		ID:              payload.ID,
		Conversation:    conversationID,
		Content:         payload.Content,
		AdditionalFlags: payload.AdditionalFlags,
	}

	err := s.pipeline.run(r.Context(), identity, inbound, false, writeFrame)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotOwner), errors.Is(err, ErrUnknownConversation):
		s.logger.Warn("unauthorized turn rejected", "conversation_id", conversationID, "error", err)
		_ = writeFrame(stream.ErrorFrame("", "not conversation owner"))
	default:
		s.logger.Error("turn failed", "conversation_id", conversationID, "error", err)
		_ = writeFrame(stream.ErrorFrame("", "turn failed"))
	}
}

// writeSSEEvent writes a single SSE event to the response writer.
func (s *Server) writeSSEEvent(w http.ResponseWriter, event string, data any) error {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, dataJSON); err != nil {
		return err
	}
	return nil
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// authIdentity pulls the authenticated user id from the request context.
func authIdentity(r *http.Request) string {
	if id := auth.FromContext(r.Context()); id != nil {
		return id.UserID
	}
	return ""
}
