// Package server exposes the chat transports and the conversation API.
//
// # Transports
//
// Two request shapes share identical turn semantics:
//
//   - WebSocket /api/chat: a persistent duplex channel bound to one
//     conversation. The client sends inbound messages, each running one
//     turn; frames stream back as they are produced. Turn errors are
//     logged and the channel keeps serving; an authorization failure
//     closes it with code 3403.
//
//   - POST /api/chat/{conversation}/stream: a single-shot SSE stream.
//     Exactly one inbound payload, one turn, frames as "message" events.
//     Failures after the stream started are reported as a terminal error
//     frame.
//
// Both run the same pipeline: ownership check, orchestrator turn, frame
// translation with usage metering, then the epilogue (activity bump and
// optional title generation with an Info frame).
//
// # Conversation API
//
//   - POST /api/conversations: create a conversation owned by the caller
//   - GET  /api/conversations: list the caller's conversations
//   - GET  /api/conversations/{id}/messages: transcript
//   - GET  /api/conversations/{id}/usage: token accounting
//
// All endpoints require a bearer JWT; the WebSocket endpoint also accepts
// the token query parameter.
package server
