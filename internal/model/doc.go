// Package model provides inference backends for the gateway.
//
// OpenAI speaks the chat completions wire format against any compatible
// server and implements both the streaming ChatModel capability and the
// non-streaming Completer used by the guard classifier and the title
// summarizer. Echo is a deterministic offline stand-in for development.
package model
