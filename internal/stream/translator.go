// ABOUTME: Translates the orchestrator's raw RunEvent stream into outbound frames
// ABOUTME: Filters internal events, enforces per-run ordering, meters usage

package stream

import (
	"log/slog"

	"github.com/2389/rei-gateway/internal/agent"
	"github.com/2389/rei-gateway/internal/chat"
)

// UsageRecorder receives token accounting extracted from model-end events.
// Implementations must be cheap; they are called on the frame-delivery path
// but any failure there is contained by the translator.
type UsageRecorder interface {
	RecordUsage(userID, modelName string, inputTokens, outputTokens int)
}

// MultiRecorder fans usage out to several recorders.
func MultiRecorder(recorders ...UsageRecorder) UsageRecorder {
	return multiRecorder(recorders)
}

type multiRecorder []UsageRecorder

func (m multiRecorder) RecordUsage(userID, modelName string, inputTokens, outputTokens int) {
	for _, r := range m {
		if r != nil {
			r.RecordUsage(userID, modelName, inputTokens, outputTokens)
		}
	}
}

// Translator converts one turn's RunEvents into outbound Frames. The same
// translator logic serves both transports; only the frame writing differs
// downstream.
type Translator struct {
	// ParentID is the inbound message id the frames answer.
	ParentID string

	// Conversation is stamped on every frame when set. The single-shot
	// transport leaves it empty.
	Conversation string

	// UserID labels usage increments with the requesting identity.
	UserID string

	// Usage receives token accounting from model-end events. Optional.
	Usage UsageRecorder

	Logger *slog.Logger
}

// Translate consumes the live event stream and produces frames lazily as
// events arrive; it never buffers the stream. Rules, in order: events with
// a private-prefixed name or an internal tag are dropped; model-start maps
// to Start, model-token-chunk to Chunk, model-end to End followed by the
// usage side effect. For one run id the output is strictly Start, chunks in
// receipt order, End. Duplicates and out-of-order events are suppressed.
// The returned channel closes when the input closes.
func (tr *Translator) Translate(events <-chan agent.RunEvent) <-chan Frame {
	logger := tr.Logger
	if logger == nil {
		logger = slog.Default()
	}

	out := make(chan Frame, 16)
	go func() {
		defer close(out)

		started := make(map[string]bool)
		ended := make(map[string]bool)

		for ev := range events {
			if ev.Internal() {
				continue
			}

			switch ev.Kind {
			case agent.KindModelStart:
				if ev.RunID == "" || started[ev.RunID] {
					continue
				}
				started[ev.RunID] = true
				out <- StartFrame(tr.ParentID, ev.RunID, tr.Conversation)

			case agent.KindModelChunk:
				if !started[ev.RunID] || ended[ev.RunID] {
					continue
				}
				out <- ChunkFrame(tr.ParentID, ev.RunID, tr.Conversation, ev.Chunk)

			case agent.KindModelEnd:
				if !started[ev.RunID] || ended[ev.RunID] {
					continue
				}
				ended[ev.RunID] = true
				out <- EndFrame(tr.ParentID, ev.RunID, tr.Conversation)
				tr.recordUsage(logger, ev.Message)
			}
		}
	}()
	return out
}

// recordUsage extracts usage metadata from a final message and increments
// the counters. Best-effort: a missing recorder or absent metadata does
// nothing, and a panicking recorder must not break frame delivery.
func (tr *Translator) recordUsage(logger *slog.Logger, msg *chat.Message) {
	if tr.Usage == nil || msg == nil || msg.Usage == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("usage recorder failed", "panic", r)
		}
	}()
	tr.Usage.RecordUsage(tr.UserID, msg.Usage.ModelName, msg.Usage.InputTokens, msg.Usage.OutputTokens)
}
