// Package stream turns the orchestrator's raw event stream into the clean
// outbound frame protocol clients speak.
//
// The translator is the single place where filtering and mapping rules
// live: both the persistent WebSocket channel and the single-shot SSE
// stream run the identical logic and differ only in how frames are written
// to the wire. Per run id the output is guaranteed to be Start, zero or
// more Chunks in receipt order, then End, never reordered and never
// duplicated, with internal and private-prefixed events removed entirely.
//
// Usage metering hangs off model-end events as a contained side effect:
// counter failures are logged and swallowed, never surfaced to the frame
// path.
package stream
