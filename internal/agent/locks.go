// ABOUTME: Per-conversation turn exclusivity
// ABOUTME: Two turns for the same conversation id must never run concurrently

package agent

import (
	"errors"
	"sync"
)

// ErrConversationBusy is returned when a turn is requested for a
// conversation that already has one in flight.
var ErrConversationBusy = errors.New("conversation has a turn in progress")

// conversationLocks hands out at most one turn lease per conversation id.
// The in-memory transcript view and the checkpoint are only coherent while
// a single turn holds the conversation, so concurrent turns are rejected
// rather than queued.
type conversationLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{held: make(map[string]struct{})}
}

// acquire takes the lease for a conversation id. The returned release
// function must be called when the turn finishes.
func (l *conversationLocks) acquire(conversationID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[conversationID]; busy {
		return nil, ErrConversationBusy
	}
	l.held[conversationID] = struct{}{}

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, conversationID)
	}, nil
}
