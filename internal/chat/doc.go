// Package chat defines the message and transcript data model shared by the
// orchestrator, the safety guard, the stores, and both transports.
//
// A transcript is an ordered, append-only slice of *Message for one
// conversation. Messages are immutable once appended, with one exception:
// the safety guard may merge additional metadata keys (notably "hazard")
// via MergeMetadata. Content is never rewritten.
package chat
