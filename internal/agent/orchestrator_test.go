// ABOUTME: Tests for the turn state machine
// ABOUTME: Covers guard wiring, tool loop bounds, budgets, and exclusivity

package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/rei-gateway/internal/chat"
	"github.com/2389/rei-gateway/internal/safety"
	"github.com/2389/rei-gateway/internal/store"
)

// memStore is an in-memory TranscriptStore for orchestrator tests.
type memStore struct {
	mu          sync.Mutex
	convs       map[string]*store.Conversation
	transcripts map[string][]*chat.Message
}

func newMemStore() *memStore {
	return &memStore{
		convs:       make(map[string]*store.Conversation),
		transcripts: make(map[string][]*chat.Message),
	}
}

func (m *memStore) GetConversation(_ context.Context, id string) (*store.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.convs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *conv
	return &clone, nil
}

func (m *memStore) UpdateConversation(_ context.Context, conv *store.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.convs[conv.ID]; !ok {
		return store.ErrNotFound
	}
	clone := *conv
	m.convs[conv.ID] = &clone
	return nil
}

func (m *memStore) GetTranscript(_ context.Context, conversationID string) ([]*chat.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*chat.Message(nil), m.transcripts[conversationID]...), nil
}

func (m *memStore) AppendMessage(_ context.Context, conversationID string, msg *chat.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transcripts[conversationID] = append(m.transcripts[conversationID], msg)
	return nil
}

func (m *memStore) UpdateMessageMetadata(_ context.Context, conversationID, messageID string, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.transcripts[conversationID] {
		if msg.ID == messageID {
			msg.Metadata = metadata
			return nil
		}
	}
	return store.ErrNotFound
}

// scriptedModel replays canned replies, one per Stream call, and records
// every request it sees.
type scriptedModel struct {
	mu       sync.Mutex
	replies  []*chat.Message
	err      error
	requests []*GenerateRequest
}

func (m *scriptedModel) Name() string { return "scripted" }

func (m *scriptedModel) Stream(_ context.Context, req *GenerateRequest) (<-chan RunEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}

	idx := len(m.requests) - 1
	if idx >= len(m.replies) {
		idx = len(m.replies) - 1
	}
	reply := m.replies[idx]

	final := *reply
	final.Role = chat.RoleAssistant
	final.ID = req.RunID

	ch := make(chan RunEvent, 4)
	ch <- RunEvent{Kind: KindModelStart, RunID: req.RunID, Name: "chat"}
	if final.Content != "" {
		ch <- RunEvent{Kind: KindModelChunk, RunID: req.RunID, Name: "chat", Chunk: final.Content}
	}
	ch <- RunEvent{Kind: KindModelEnd, RunID: req.RunID, Name: "chat", Message: &final}
	close(ch)
	return ch, nil
}

// echoExecutor returns a fixed tool result linked to the call.
type echoExecutor struct {
	calls []chat.ToolCall
}

func (e *echoExecutor) Execute(_ context.Context, call chat.ToolCall) *chat.Message {
	e.calls = append(e.calls, call)
	return &chat.Message{
		Role:       chat.RoleTool,
		Content:    "result of " + call.Name,
		ToolCallID: call.ID,
	}
}

type fixedClassifier struct {
	verdict  safety.Verdict
	category string
}

func (f fixedClassifier) Classify(context.Context, []*chat.Message) (safety.Verdict, string, error) {
	return f.verdict, f.category, nil
}

func runTurn(t *testing.T, o *Orchestrator, convID string, msg *chat.Message) ([]RunEvent, error) {
	t.Helper()
	events := make(chan RunEvent, 256)
	err := o.RunTurn(context.Background(), convID, msg, events)
	close(events)

	var collected []RunEvent
	for ev := range events {
		collected = append(collected, ev)
	}
	return collected, err
}

func TestNew_FailsFastOnMissingBudget(t *testing.T) {
	_, err := New(Config{Model: &scriptedModel{}, Store: newMemStore()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context_length")

	_, err = New(Config{Store: newMemStore(), ContextLength: 100})
	require.Error(t, err)

	_, err = New(Config{Model: &scriptedModel{}, ContextLength: 100})
	require.Error(t, err)
}

func TestRunTurn_SimpleReply(t *testing.T) {
	st := newMemStore()
	model := &scriptedModel{replies: []*chat.Message{{Content: "Hello!"}}}
	o, err := New(Config{Model: model, Store: st, ContextLength: 100})
	require.NoError(t, err)

	events, err := runTurn(t, o, "c1", &chat.Message{Content: "hi"})
	require.NoError(t, err)

	// Transcript: user then assistant, nothing else.
	transcript, err := st.GetTranscript(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, transcript, 2)
	assert.Equal(t, chat.RoleUser, transcript[0].Role)
	assert.Equal(t, chat.RoleAssistant, transcript[1].Role)
	assert.Equal(t, "Hello!", transcript[1].Content)

	// The raw stream includes internal events plus the model triple.
	var kinds []EventKind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, KindInternal)
	assert.Contains(t, kinds, KindModelStart)
	assert.Contains(t, kinds, KindModelChunk)
	assert.Contains(t, kinds, KindModelEnd)

	// Exactly one generation, with the persona instruction rendered.
	require.Len(t, model.requests, 1)
	assert.Contains(t, model.requests[0].System, "You are Rei")
	assert.Contains(t, model.requests[0].System, "Current date:")
}

func TestRunTurn_HazardAnnotationAndHint(t *testing.T) {
	st := newMemStore()
	model := &scriptedModel{replies: []*chat.Message{{Content: "careful reply"}}}
	guard := safety.NewGuard(fixedClassifier{verdict: safety.VerdictUnsafe, category: "S1"}, nil)
	o, err := New(Config{Model: model, Store: st, Guard: guard, ContextLength: 100})
	require.NoError(t, err)

	_, err = runTurn(t, o, "c1", &chat.Message{Content: "something nasty"})
	require.NoError(t, err)

	// The flagged message carries the category in durable metadata.
	transcript, err := st.GetTranscript(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "S1", transcript[0].Hazard())

	// The hint reaches the model as part of the window, referencing the
	// category description verbatim.
	require.Len(t, model.requests, 1)
	var hintSeen bool
	for _, m := range model.requests[0].Messages {
		if m.Role == chat.RoleSystem && strings.Contains(m.Content, "Violent Crimes") {
			hintSeen = true
		}
	}
	assert.True(t, hintSeen, "hazard hint missing from generation window")

	// The hint is ephemeral: no system message was persisted.
	for _, m := range transcript {
		assert.NotEqual(t, chat.RoleSystem, m.Role)
	}
}

func TestRunTurn_ToolLoop(t *testing.T) {
	st := newMemStore()
	model := &scriptedModel{replies: []*chat.Message{
		{Content: "", ToolCalls: []chat.ToolCall{{ID: "t1", Name: "current_time", ArgumentsJSON: "{}"}}},
		{Content: "It is noon."},
	}}
	exec := &echoExecutor{}
	o, err := New(Config{Model: model, Store: st, Tools: exec, ContextLength: 100})
	require.NoError(t, err)

	events, err := runTurn(t, o, "c1", &chat.Message{Content: "what time is it"})
	require.NoError(t, err)

	require.Len(t, exec.calls, 1)
	assert.Equal(t, "current_time", exec.calls[0].Name)

	transcript, err := st.GetTranscript(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, transcript, 4)
	assert.Equal(t, chat.RoleUser, transcript[0].Role)
	assert.True(t, transcript[1].HasToolCalls())
	assert.Equal(t, chat.RoleTool, transcript[2].Role)
	assert.Equal(t, "t1", transcript[2].ToolCallID)
	assert.Equal(t, "It is noon.", transcript[3].Content)

	// Two model runs, and a tool-invocation event in between.
	assert.Len(t, model.requests, 2)
	var toolEvents int
	for _, ev := range events {
		if ev.Kind == KindToolInvocation {
			toolEvents++
		}
	}
	assert.Equal(t, 1, toolEvents)
}

func TestRunTurn_ToolLoopExceeded(t *testing.T) {
	st := newMemStore()
	// The model requests a tool on every generation, forever.
	model := &scriptedModel{replies: []*chat.Message{
		{ToolCalls: []chat.ToolCall{{ID: "t1", Name: "spin", ArgumentsJSON: "{}"}}},
	}}
	o, err := New(Config{Model: model, Store: st, Tools: &echoExecutor{}, ContextLength: 100, MaxToolIterations: 3})
	require.NoError(t, err)

	_, err = runTurn(t, o, "c1", &chat.Message{Content: "go"})
	assert.ErrorIs(t, err, ErrToolLoopExceeded)
	// The cap bounds tool rounds: 3 allowed, the 4th aborts.
	assert.Len(t, model.requests, 4)
}

func TestRunTurn_ToolsRequestedButNoExecutor(t *testing.T) {
	st := newMemStore()
	model := &scriptedModel{replies: []*chat.Message{
		{ToolCalls: []chat.ToolCall{{ID: "t1", Name: "x"}}},
	}}
	o, err := New(Config{Model: model, Store: st, ContextLength: 100})
	require.NoError(t, err)

	_, err = runTurn(t, o, "c1", &chat.Message{Content: "go"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tool executor")
}

func TestRunTurn_ModelErrorLeavesNoPartialReply(t *testing.T) {
	st := newMemStore()
	model := &scriptedModel{err: errors.New("inference backend down")}
	o, err := New(Config{Model: model, Store: st, ContextLength: 100})
	require.NoError(t, err)

	_, err = runTurn(t, o, "c1", &chat.Message{Content: "hi"})
	require.Error(t, err)

	// The user message is recorded; no partial assistant message is.
	transcript, err := st.GetTranscript(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, transcript, 1)
	assert.Equal(t, chat.RoleUser, transcript[0].Role)
}

func TestRunTurn_ConversationExclusivity(t *testing.T) {
	st := newMemStore()
	model := &scriptedModel{replies: []*chat.Message{{Content: "ok"}}}
	o, err := New(Config{Model: model, Store: st, ContextLength: 100})
	require.NoError(t, err)

	release, err := o.locks.acquire("c1")
	require.NoError(t, err)

	_, err = runTurn(t, o, "c1", &chat.Message{Content: "hi"})
	assert.ErrorIs(t, err, ErrConversationBusy)

	// Another conversation is unaffected.
	_, err = runTurn(t, o, "c2", &chat.Message{Content: "hi"})
	assert.NoError(t, err)

	release()
	_, err = runTurn(t, o, "c1", &chat.Message{Content: "hi"})
	assert.NoError(t, err)
}

func TestRunTurn_WindowArithmetic(t *testing.T) {
	// context_length=20, no exact counter: fallback costs 1 per message and
	// the generation budget is 20 - 20/5 = 16.
	st := newMemStore()
	model := &scriptedModel{replies: []*chat.Message{{Content: "ok"}}}
	o, err := New(Config{Model: model, Store: st, ContextLength: 20})
	require.NoError(t, err)
	assert.Equal(t, 16, o.GenerationBudget())

	// 10 alternating messages fit entirely.
	ctx := context.Background()
	for i := 0; i < 9; i++ {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleAssistant
		}
		require.NoError(t, st.AppendMessage(ctx, "c1", &chat.Message{
			ID: fmt.Sprintf("m%d", i), Role: role, Content: "x",
		}))
	}
	_, err = runTurn(t, o, "c1", &chat.Message{Content: "latest"})
	require.NoError(t, err)
	require.Len(t, model.requests, 1)
	assert.Len(t, model.requests[0].Messages, 10)
	assert.Equal(t, chat.RoleUser, model.requests[0].Messages[0].Role)

	// With 20 messages of history the window is the most recent 16,
	// starting on a user message.
	for i := 0; i < 19; i++ {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleAssistant
		}
		require.NoError(t, st.AppendMessage(ctx, "c2", &chat.Message{
			ID: fmt.Sprintf("m%d", i), Role: role, Content: "x",
		}))
	}
	_, err = runTurn(t, o, "c2", &chat.Message{Content: "latest"})
	require.NoError(t, err)
	require.Len(t, model.requests, 2)
	win := model.requests[1].Messages
	assert.Len(t, win, 16)
	assert.Equal(t, chat.RoleUser, win[0].Role)
	assert.Equal(t, "latest", win[len(win)-1].Content)
}

func TestRunTurn_EmptyWindowRejected(t *testing.T) {
	// A context length of 1 leaves a budget of 1. The first generation
	// still sees the inbound user message, but after a tool round the
	// window ends on a tool message and trims to empty.
	st := newMemStore()
	model := &scriptedModel{replies: []*chat.Message{
		{ToolCalls: []chat.ToolCall{{ID: "t1", Name: "x", ArgumentsJSON: "{}"}}},
		{Content: "unreachable"},
	}}
	o, err := New(Config{Model: model, Store: st, Tools: &echoExecutor{}, ContextLength: 1})
	require.NoError(t, err)

	_, err = runTurn(t, o, "c1", &chat.Message{Content: "hi"})
	assert.ErrorIs(t, err, ErrEmptyWindow)
}

func TestRunTurn_DateFromSentAt(t *testing.T) {
	st := newMemStore()
	model := &scriptedModel{replies: []*chat.Message{{Content: "ok"}}}
	o, err := New(Config{Model: model, Store: st, ContextLength: 100})
	require.NoError(t, err)

	sentAt := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	_, err = runTurn(t, o, "c1", &chat.Message{Content: "hi", SentAt: &sentAt})
	require.NoError(t, err)

	require.Len(t, model.requests, 1)
	assert.Contains(t, model.requests[0].System, "2026-03-02 (Monday)")
}
