// ABOUTME: Conversation orchestrator: the per-turn finite-state machine
// ABOUTME: Start -> InputGuard -> Generate -> {ToolLoop -> Generate}* -> End

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/2389/rei-gateway/internal/chat"
	"github.com/2389/rei-gateway/internal/safety"
	"github.com/2389/rei-gateway/internal/window"
)

// State names one node of the turn state machine. The set is closed: every
// transition is decided in step, so the tool-loop bound and terminal
// conditions are auditable in one place.
type State string

const (
	StateStart      State = "start"
	StateInputGuard State = "input_guard"
	StateGenerate   State = "generate"
	StateToolLoop   State = "tool_loop"
	StateEnd        State = "end"
)

// defaultMaxToolIterations caps tool-loop rounds per turn when the
// configuration does not set one.
const defaultMaxToolIterations = 5

var (
	// ErrToolLoopExceeded reports a model that kept requesting tools past
	// the configured iteration cap. The turn aborts; it is never silently
	// truncated.
	ErrToolLoopExceeded = errors.New("tool loop exceeded maximum iterations")

	// ErrEmptyWindow reports a transcript whose trimmed window came back
	// empty: no user message was reachable within the generation budget.
	ErrEmptyWindow = errors.New("context window is empty after trimming")
)

// Config assembles an Orchestrator. Model, Store, and ContextLength are
// required; everything else has a usable default.
type Config struct {
	Model ChatModel
	Store TranscriptStore
	Guard *safety.Guard
	Tools ToolExecutor

	// ContextLength is the model's context window in tokens. Required:
	// construction fails rather than silently defaulting.
	ContextLength int

	// MaxOutputTokens is the model's configured reply budget. Zero means
	// unknown, in which case 20% of the context length is reserved.
	MaxOutputTokens int

	// MaxToolIterations bounds tool-loop rounds per turn (default 5).
	MaxToolIterations int

	Logger *slog.Logger

	// Now overrides the wall clock, for tests.
	Now func() time.Time
}

// Orchestrator executes turns. It holds the authoritative in-memory view of
// a transcript for the duration of one turn; the store keeps the durable
// copy. At most one turn per conversation id runs at a time.
type Orchestrator struct {
	model   ChatModel
	store   TranscriptStore
	guard   *safety.Guard
	tools   ToolExecutor
	counter window.Counter
	budget  int
	maxTool int
	locks   *conversationLocks
	logger  *slog.Logger
	now     func() time.Time
}

// New validates the configuration and builds an Orchestrator. The token
// counting strategy is selected here, once: the model's exact counter when
// it provides one, otherwise the message-count fallback with a logged
// degraded-mode warning.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Model == nil {
		return nil, errors.New("model capability is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("transcript store is required")
	}
	if cfg.ContextLength <= 0 {
		return nil, errors.New("model context_length must be set")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "orchestrator")

	var counter window.Counter
	if tc, ok := cfg.Model.(window.TokenCounter); ok {
		counter = window.ExactCounter(tc)
	} else {
		logger.Warn("model provides no token counter, trimming by message count; long messages may overflow the context window")
		counter = window.MessageCountCounter()
	}

	guard := cfg.Guard
	if guard == nil {
		guard = safety.NewGuard(nil, logger)
	}

	maxTool := cfg.MaxToolIterations
	if maxTool <= 0 {
		maxTool = defaultMaxToolIterations
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Orchestrator{
		model:   cfg.Model,
		store:   cfg.Store,
		guard:   guard,
		tools:   cfg.Tools,
		counter: counter,
		budget:  window.GenerationBudget(cfg.ContextLength, cfg.MaxOutputTokens),
		maxTool: maxTool,
		locks:   newConversationLocks(),
		logger:  logger,
		now:     now,
	}, nil
}

// GenerationBudget returns the prompt token budget computed at construction.
func (o *Orchestrator) GenerationBudget() int {
	return o.budget
}

// turn is the mutable state threaded through one RunTurn execution.
type turn struct {
	conversationID string
	inbound        *chat.Message
	transcript     []*chat.Message
	events         chan<- RunEvent
	toolRounds     int
}

// emit forwards one event to the turn's stream, honoring cancellation.
func (t *turn) emit(ctx context.Context, ev RunEvent) error {
	select {
	case t.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunTurn executes one turn: the inbound user message is appended to the
// transcript, gated, answered (possibly via tool rounds), and the final
// assistant message persisted. Events are sent to the events channel as
// they happen; the caller owns the channel and closes it after RunTurn
// returns.
//
// A turn error leaves no partial assistant message in the transcript:
// generation output is only appended once the model stream completed.
func (o *Orchestrator) RunTurn(ctx context.Context, conversationID string, userMsg *chat.Message, events chan<- RunEvent) error {
	release, err := o.locks.acquire(conversationID)
	if err != nil {
		return err
	}
	defer release()

	t := &turn{
		conversationID: conversationID,
		inbound:        userMsg,
		events:         events,
	}

	state := StateStart
	for state != StateEnd {
		next, err := o.step(ctx, t, state)
		if err != nil {
			o.logger.Error("turn aborted",
				"conversation_id", conversationID,
				"state", string(state),
				"error", err)
			return err
		}
		state = next
	}
	return nil
}

// step runs one state and returns the next. This is the whole transition
// table.
func (o *Orchestrator) step(ctx context.Context, t *turn, state State) (State, error) {
	switch state {
	case StateStart:
		return o.stepStart(ctx, t)
	case StateInputGuard:
		return o.stepInputGuard(ctx, t)
	case StateGenerate:
		return o.stepGenerate(ctx, t)
	case StateToolLoop:
		return o.stepToolLoop(ctx, t)
	default:
		return StateEnd, fmt.Errorf("unknown state %q", state)
	}
}

// stepStart loads the durable transcript and appends the inbound message.
func (o *Orchestrator) stepStart(ctx context.Context, t *turn) (State, error) {
	transcript, err := o.store.GetTranscript(ctx, t.conversationID)
	if err != nil {
		return "", fmt.Errorf("loading transcript: %w", err)
	}
	t.transcript = transcript

	if t.inbound.ID == "" {
		t.inbound.ID = uuid.New().String()
	}
	if t.inbound.Role == "" {
		t.inbound.Role = chat.RoleUser
	}
	if err := o.store.AppendMessage(ctx, t.conversationID, t.inbound); err != nil {
		return "", fmt.Errorf("recording user message: %w", err)
	}
	t.transcript = append(t.transcript, t.inbound)

	if err := t.emit(ctx, RunEvent{Name: "turn_start", Kind: KindInternal, Tags: []string{TagInternal}}); err != nil {
		return "", err
	}
	return StateInputGuard, nil
}

// stepInputGuard classifies the inbound message and persists the hazard
// annotation when one was added. The verdict never blocks the turn.
func (o *Orchestrator) stepInputGuard(ctx context.Context, t *turn) (State, error) {
	if err := o.guard.CheckInput(ctx, t.transcript); err != nil {
		return "", err
	}

	last := t.transcript[len(t.transcript)-1]
	if last.Hazard() != "" {
		if err := o.store.UpdateMessageMetadata(ctx, t.conversationID, last.ID, last.Metadata); err != nil {
			return "", fmt.Errorf("persisting hazard annotation: %w", err)
		}
	}

	if err := t.emit(ctx, RunEvent{Name: "input_guard", Kind: KindInternal, Tags: []string{TagInternal}}); err != nil {
		return "", err
	}
	return StateGenerate, nil
}

// stepGenerate invokes the model on the trimmed window and appends the
// reply. A reply with pending tool calls transitions to the tool loop;
// otherwise the output guard runs and the turn ends.
func (o *Orchestrator) stepGenerate(ctx context.Context, t *turn) (State, error) {
	reply, err := o.generate(ctx, t)
	if err != nil {
		return "", err
	}

	if err := o.store.AppendMessage(ctx, t.conversationID, reply); err != nil {
		return "", fmt.Errorf("recording assistant message: %w", err)
	}
	t.transcript = append(t.transcript, reply)

	if reply.HasToolCalls() {
		return StateToolLoop, nil
	}

	// The output guard computes a verdict but performs no remediation;
	// a guard failure here must not discard a completed reply.
	if err := o.guard.CheckOutput(ctx, t.transcript); err != nil {
		o.logger.Warn("output guard failed", "conversation_id", t.conversationID, "error", err)
	}
	return StateEnd, nil
}

// stepToolLoop executes every tool the last reply requested, appending one
// tool-result message per invocation, then hands back to generation.
func (o *Orchestrator) stepToolLoop(ctx context.Context, t *turn) (State, error) {
	t.toolRounds++
	if t.toolRounds > o.maxTool {
		return "", fmt.Errorf("%w (cap %d)", ErrToolLoopExceeded, o.maxTool)
	}
	if o.tools == nil {
		return "", errors.New("model requested tools but no tool executor is configured")
	}

	last := t.transcript[len(t.transcript)-1]
	for _, call := range last.ToolCalls {
		result := o.tools.Execute(ctx, call)
		if result.ID == "" {
			result.ID = uuid.New().String()
		}
		if err := o.store.AppendMessage(ctx, t.conversationID, result); err != nil {
			return "", fmt.Errorf("recording tool result: %w", err)
		}
		t.transcript = append(t.transcript, result)

		if err := t.emit(ctx, RunEvent{
			Name:    "tool/" + call.Name,
			Kind:    KindToolInvocation,
			Message: result,
		}); err != nil {
			return "", err
		}
	}
	return StateGenerate, nil
}

// generate builds the prompt (persona instruction, optional ephemeral
// hazard hint, trimmed window), streams the model, forwards its events, and
// returns the final reply. Nothing is appended to the transcript here.
func (o *Orchestrator) generate(ctx context.Context, t *turn) (*chat.Message, error) {
	instruction := renderInstruction(t.transcript, o.now)

	working := t.transcript
	if hazard := t.transcript[len(t.transcript)-1].Hazard(); hazard != "" {
		working = append(slices.Clone(t.transcript), hazardHint(hazard))
	}

	win, err := window.Trim(working, o.counter, o.budget)
	if err != nil {
		return nil, fmt.Errorf("trimming window: %w", err)
	}
	if len(win) == 0 {
		return nil, ErrEmptyWindow
	}

	runID := uuid.New().String()
	events, err := o.model.Stream(ctx, &GenerateRequest{
		RunID:    runID,
		System:   instruction,
		Messages: win,
	})
	if err != nil {
		return nil, fmt.Errorf("invoking model: %w", err)
	}

	var final *chat.Message
	for ev := range events {
		if err := t.emit(ctx, ev); err != nil {
			// Drain the model stream so its sender can exit.
			go func() {
				for range events {
				}
			}()
			return nil, err
		}
		if ev.Kind == KindModelEnd && ev.Message != nil {
			final = ev.Message
		}
	}
	if final == nil {
		return nil, errors.New("model stream ended without a final message")
	}
	if final.ID == "" {
		final.ID = runID
	}
	if final.Role == "" {
		final.Role = chat.RoleAssistant
	}
	return final, nil
}
