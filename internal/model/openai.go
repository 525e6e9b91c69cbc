// ABOUTME: OpenAI-compatible chat completions client backing the ChatModel capability
// ABOUTME: Streams SSE chunks, assembles tool calls from deltas, reports usage

package model

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/rei-gateway/internal/agent"
	"github.com/2389/rei-gateway/internal/chat"
)

// OpenAIConfig configures an OpenAI-compatible endpoint. Any server that
// speaks the chat completions wire format works (OpenAI, OpenRouter, vLLM,
// Ollama, llama.cpp).
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Name    string

	// MaxOutputTokens caps the reply length. Zero leaves it to the server.
	MaxOutputTokens int

	// Tools is the tool schema advertised to the model, if any.
	Tools []ToolDefinition

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// ToolDefinition describes one callable tool in the request schema.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// OpenAI implements agent.ChatModel against a chat completions endpoint.
type OpenAI struct {
	baseURL   string
	apiKey    string
	name      string
	maxTokens int
	tools     []ToolDefinition
	client    *http.Client
	logger    *slog.Logger
}

var _ agent.ChatModel = (*OpenAI)(nil)

// NewOpenAI creates a client for one named model.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("model base_url is required")
	}
	if cfg.Name == "" {
		return nil, errors.New("model name is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAI{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		name:      cfg.Name,
		maxTokens: cfg.MaxOutputTokens,
		tools:     cfg.Tools,
		client:    client,
		logger:    logger.With("component", "model", "model_name", cfg.Name),
	}, nil
}

// Name returns the model identifier used in usage metadata.
func (m *OpenAI) Name() string { return m.name }

// Stream sends a streaming completion request and translates the SSE chunk
// sequence into run events: one start, a chunk per text delta, and an end
// event carrying the assembled reply with usage and tool calls.
func (m *OpenAI) Stream(ctx context.Context, req *agent.GenerateRequest) (<-chan agent.RunEvent, error) {
	body, err := m.post(ctx, "/chat/completions", m.buildRequest(req.System, req.Messages, true))
	if err != nil {
		return nil, err
	}

	events := make(chan agent.RunEvent, 16)
	go m.consume(ctx, body, req.RunID, events)
	return events, nil
}

// Complete sends a non-streaming request and returns the reply text. The
// guard classifier and the title summarizer use this path.
func (m *OpenAI) Complete(ctx context.Context, system string, msgs []*chat.Message) (string, error) {
	body, err := m.post(ctx, "/chat/completions", m.buildRequest(system, msgs, false))
	if err != nil {
		return "", err
	}
	defer body.Close()

	var resp wireResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return "", fmt.Errorf("decoding completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (m *OpenAI) post(ctx context.Context, path string, payload any) (io.ReadCloser, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling model endpoint: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("model endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return resp.Body, nil
}

// consume reads the SSE stream and emits run events. It owns the response
// body and the events channel.
func (m *OpenAI) consume(ctx context.Context, body io.ReadCloser, runID string, events chan<- agent.RunEvent) {
	defer close(events)
	defer body.Close()

	emit := func(ev agent.RunEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var (
		started bool
		text    strings.Builder
		partial []partialToolCall
		usage   *chat.Usage
	)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk wireStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			m.logger.Warn("unparseable stream chunk", "error", err)
			continue
		}

		if !started {
			started = true
			if !emit(agent.RunEvent{Kind: agent.KindModelStart, RunID: runID, Name: "chat"}) {
				return
			}
		}

		if chunk.Usage != nil {
			usage = &chat.Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
				ModelName:    m.name,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta

		if delta.Content != "" {
			text.WriteString(delta.Content)
			if !emit(agent.RunEvent{Kind: agent.KindModelChunk, RunID: runID, Name: "chat", Chunk: delta.Content}) {
				return
			}
		}

		// Tool calls arrive incrementally: the first delta at an index
		// carries the id and name, later deltas append argument text.
		for _, tc := range delta.ToolCalls {
			for len(partial) <= tc.Index {
				partial = append(partial, partialToolCall{})
			}
			p := &partial[tc.Index]
			if tc.ID != "" {
				p.id = tc.ID
			}
			if tc.Function != nil {
				if tc.Function.Name != "" {
					p.name = tc.Function.Name
				}
				p.arguments.WriteString(tc.Function.Arguments)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		m.logger.Error("model stream read failed", "error", err)
		return
	}
	if !started {
		m.logger.Error("model stream ended without producing chunks")
		return
	}

	final := &chat.Message{
		ID:      runID,
		Role:    chat.RoleAssistant,
		Content: text.String(),
		Usage:   usage,
	}
	for _, p := range partial {
		final.ToolCalls = append(final.ToolCalls, chat.ToolCall{
			ID:            p.id,
			Name:          p.name,
			ArgumentsJSON: p.arguments.String(),
		})
	}

	emit(agent.RunEvent{Kind: agent.KindModelEnd, RunID: runID, Name: "chat", Message: final})
}

// buildRequest converts our transcript types to the chat completions wire
// format. The system instruction becomes the first message.
func (m *OpenAI) buildRequest(system string, msgs []*chat.Message, stream bool) wireRequest {
	req := wireRequest{Model: m.name, MaxTokens: m.maxTokens}
	if stream {
		req.Stream = true
		req.StreamOptions = &wireStreamOptions{IncludeUsage: true}
	}

	if system != "" {
		req.Messages = append(req.Messages, wireMessage{Role: "system", Content: system})
	}
	for _, msg := range msgs {
		req.Messages = append(req.Messages, toWireMessage(msg))
	}
	for _, tool := range m.tools {
		req.Tools = append(req.Tools, wireTool{
			Type: "function",
			Function: wireToolDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	return req
}

func toWireMessage(msg *chat.Message) wireMessage {
	wire := wireMessage{
		Role:       string(msg.Role),
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
	}
	for _, tc := range msg.ToolCalls {
		wire.ToolCalls = append(wire.ToolCalls, wireToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: wireToolFunction{
				Name:      tc.Name,
				Arguments: tc.ArgumentsJSON,
			},
		})
	}
	return wire
}

// --- Chat completions wire types ---

type wireRequest struct {
	Model         string             `json:"model"`
	Messages      []wireMessage      `json:"messages"`
	Tools         []wireTool         `json:"tools,omitempty"`
	MaxTokens     int                `json:"max_tokens,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
	StreamOptions *wireStreamOptions `json:"stream_options,omitempty"`
}

type wireStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function wireToolFunction `json:"function"`
}

type wireToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string             `json:"type"`
	Function wireToolDefinition `json:"function"`
}

type wireToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type wireResponse struct {
	Choices []wireChoice `json:"choices"`
	Usage   *wireUsage   `json:"usage,omitempty"`
}

type wireChoice struct {
	Message      wireMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type wireStreamChunk struct {
	Choices []wireStreamChoice `json:"choices"`
	Usage   *wireUsage         `json:"usage,omitempty"`
}

type wireStreamChoice struct {
	Delta        wireStreamDelta `json:"delta"`
	FinishReason *string         `json:"finish_reason"`
}

type wireStreamDelta struct {
	Content   string               `json:"content,omitempty"`
	ToolCalls []wireStreamToolCall `json:"tool_calls,omitempty"`
}

type wireStreamToolCall struct {
	Index    int               `json:"index"`
	ID       string            `json:"id,omitempty"`
	Function *wireToolFunction `json:"function,omitempty"`
}

// partialToolCall assembles one tool call from streaming deltas.
type partialToolCall struct {
	id        string
	name      string
	arguments strings.Builder
}
