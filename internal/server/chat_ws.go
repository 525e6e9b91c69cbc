// ABOUTME: Persistent duplex chat transport over WebSocket
// ABOUTME: One channel per conversation, many turns, closed 3403 on auth failure

package server

import (
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/2389/rei-gateway/internal/chat"
	"github.com/2389/rei-gateway/internal/stream"
)

// StatusNotOwner closes the channel when the requester does not own the
// conversation. Distinct from the generic policy-violation code so clients
// can tell authorization apart from protocol misuse.
const StatusNotOwner websocket.StatusCode = 3403

// handleChatWS serves the persistent duplex channel. The channel binds to
// the first inbound message's conversation id for its lifetime and accepts
// an unbounded sequence of inbound messages, running one turn per message.
// Turn-level errors are logged and the loop continues; only authorization
// failure or disconnect ends the channel.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	identity := authIdentity(r)
	if identity == "" {
		http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	if s.metrics != nil {
		s.metrics.ClientConnected()
		defer s.metrics.ClientDisconnected()
	}

	ctx := r.Context()
	logger := s.logger.With("user_id", identity)
	logger.Info("chat channel opened")

	var bound string
	for {
		var inbound chat.InboundMessage
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			status := websocket.CloseStatus(err)
			if status != -1 || ctx.Err() != nil {
				logger.Info("chat channel closed", "status", status)
			} else {
				logger.Warn("reading inbound message failed", "error", err)
			}
			return
		}

		if inbound.Conversation == "" {
			_ = conn.Close(websocket.StatusPolicyViolation, "conversation id required")
			return
		}
		if bound == "" {
			bound = inbound.Conversation
			logger = logger.With("conversation_id", bound)
		} else if inbound.Conversation != bound {
			_ = conn.Close(websocket.StatusPolicyViolation, "channel is bound to another conversation")
			return
		}

		writeFrame := func(f stream.Frame) error {
			return wsjson.Write(ctx, conn, f)
		}

		err := s.pipeline.run(ctx, identity, &inbound, true, writeFrame)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotOwner), errors.Is(err, ErrUnknownConversation):
			logger.Warn("unauthorized turn rejected", "error", err)
			_ = conn.Close(StatusNotOwner, "not conversation owner")
			return
		case ctx.Err() != nil:
			logger.Info("chat channel disconnected mid-turn")
			return
		default:
			// The turn failed but the channel survives; the client may
			// send the next message.
			logger.Error("turn failed", "error", err)
		}
	}
}
