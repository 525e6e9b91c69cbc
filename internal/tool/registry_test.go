// ABOUTME: Tests for the tool registry and built-in tools
// ABOUTME: Error text in results, schema ordering, argument validation

package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/rei-gateway/internal/chat"
)

func TestRegistry_Execute(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&Tool{
		Name:           "shout",
		Description:    "uppercase a word",
		ParametersJSON: `{"type":"object"}`,
		Handler: func(_ context.Context, input json.RawMessage) (string, error) {
			var args struct {
				Word string `json:"word"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return "", err
			}
			return args.Word + "!", nil
		},
	})

	result := r.Execute(context.Background(), chat.ToolCall{
		ID: "t1", Name: "shout", ArgumentsJSON: `{"word":"hi"}`,
	})
	assert.Equal(t, chat.RoleTool, result.Role)
	assert.Equal(t, "t1", result.ToolCallID)
	assert.Equal(t, "hi!", result.Content)
	assert.NotEmpty(t, result.ID)
}

func TestRegistry_UnknownTool(t *testing.T) {
	r := NewRegistry(nil)
	result := r.Execute(context.Background(), chat.ToolCall{ID: "t1", Name: "nope"})
	assert.Equal(t, chat.RoleTool, result.Role)
	assert.Contains(t, result.Content, `unknown tool "nope"`)
}

func TestRegistry_HandlerErrorBecomesResultText(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&Tool{
		Name: "fail",
		Handler: func(context.Context, json.RawMessage) (string, error) {
			return "", errors.New("it broke")
		},
	})

	result := r.Execute(context.Background(), chat.ToolCall{ID: "t1", Name: "fail"})
	assert.Equal(t, "error: it broke", result.Content)
	assert.Equal(t, "t1", result.ToolCallID)
}

func TestRegistry_DefinitionsStableOrder(t *testing.T) {
	r := NewRegistry(nil)
	RegisterBuiltins(r)

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "current_time", defs[0].Name)
	assert.Equal(t, "word_count", defs[1].Name)
}

func TestWordCount(t *testing.T) {
	r := NewRegistry(nil)
	RegisterBuiltins(r)

	result := r.Execute(context.Background(), chat.ToolCall{
		ID: "t1", Name: "word_count", ArgumentsJSON: `{"text":"one two three"}`,
	})
	assert.Equal(t, "3 words, 13 characters", result.Content)

	result = r.Execute(context.Background(), chat.ToolCall{
		ID: "t2", Name: "word_count", ArgumentsJSON: `not json`,
	})
	assert.Contains(t, result.Content, "error:")
}

func TestCurrentTime(t *testing.T) {
	r := NewRegistry(nil)
	RegisterBuiltins(r)

	result := r.Execute(context.Background(), chat.ToolCall{
		ID: "t1", Name: "current_time", ArgumentsJSON: `{"timezone":"UTC"}`,
	})
	assert.Contains(t, result.Content, "UTC")

	result = r.Execute(context.Background(), chat.ToolCall{
		ID: "t2", Name: "current_time", ArgumentsJSON: `{"timezone":"Nowhere/Invalid"}`,
	})
	assert.Contains(t, result.Content, "unknown timezone")
}
