// Package store persists conversation records, transcripts, and token usage
// in SQLite.
//
// The transcript table is append-only: a message row is inserted once and
// its content never changes. The single exception is the metadata column,
// which the safety guard rewrites when it annotates a hazard category.
// Conversations are created externally and only ever mutated here (title,
// last activity); nothing in this package deletes them.
package store
