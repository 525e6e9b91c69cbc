// ABOUTME: Tool registry implementing the orchestrator's ToolExecutor capability
// ABOUTME: Failures become tool-result text so the model can see and recover

package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/2389/rei-gateway/internal/chat"
	"github.com/2389/rei-gateway/internal/model"
)

// Handler executes one tool invocation. Input is the raw arguments JSON from
// the model.
type Handler func(ctx context.Context, input json.RawMessage) (string, error)

// Tool is one registered tool: its schema as advertised to the model plus
// the handler that runs it.
type Tool struct {
	Name        string
	Description string
	// ParametersJSON is the JSON schema for the tool's arguments.
	ParametersJSON string
	Handler        Handler
}

// Registry holds the tools available to the model.
type Registry struct {
	tools  map[string]*Tool
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger.With("component", "tools"),
	}
}

// Register adds a tool. Registering the same name twice overwrites.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Definitions returns the tool schema to advertise in model requests, in
// stable name order.
func (r *Registry) Definitions() []model.ToolDefinition {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]model.ToolDefinition, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  json.RawMessage(t.ParametersJSON),
		})
	}
	return defs
}

// Execute runs one requested invocation and returns the result as a
// tool-role message linked to the call. Unknown tools and handler errors
// produce an error-text result rather than failing the turn.
func (r *Registry) Execute(ctx context.Context, call chat.ToolCall) *chat.Message {
	result := &chat.Message{
		ID:         uuid.New().String(),
		Role:       chat.RoleTool,
		ToolCallID: call.ID,
	}

	t, ok := r.tools[call.Name]
	if !ok {
		r.logger.Warn("unknown tool requested", "tool", call.Name)
		result.Content = fmt.Sprintf("error: unknown tool %q", call.Name)
		return result
	}

	output, err := t.Handler(ctx, json.RawMessage(call.ArgumentsJSON))
	if err != nil {
		r.logger.Warn("tool execution failed", "tool", call.Name, "error", err)
		result.Content = fmt.Sprintf("error: %v", err)
		return result
	}

	result.Content = output
	return result
}
