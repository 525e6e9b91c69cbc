// Package agent runs conversation turns.
//
// # State machine
//
// A turn is an explicit finite-state machine with a closed set of states:
//
//	Start -> InputGuard -> Generate -> {ToolLoop -> Generate}* -> End
//
// Start appends the inbound user message to the transcript. InputGuard
// classifies it and annotates a hazard category into its metadata on an
// unsafe verdict. The annotation is the only channel into generation; the
// gate never blocks. Generate trims the transcript to the token budget,
// streams the model, and appends the reply. Replies with pending tool calls
// route through ToolLoop, which executes each requested tool and hands back
// to Generate; the loop is bounded by MaxToolIterations and aborts the turn
// with ErrToolLoopExceeded past the cap.
//
// # Events
//
// While a turn runs it emits RunEvents on a caller-owned channel: the raw,
// unfiltered stream including internal bookkeeping events. The stream
// package translates this into the outbound frame protocol; nothing here is
// client-facing.
//
// # Exclusivity
//
// At most one turn per conversation id may be in flight. A second turn for
// the same conversation fails immediately with ErrConversationBusy rather
// than interleaving with the first.
package agent
