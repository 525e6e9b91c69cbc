// ABOUTME: Conversation API: create, list, transcript, and usage endpoints
// ABOUTME: All owner-scoped; callers only ever see their own conversations

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/2389/rei-gateway/internal/store"
)

const defaultListLimit = 50

type conversationResponse struct {
	ID            string  `json:"id"`
	Owner         string  `json:"owner"`
	Title         *string `json:"title,omitempty"`
	CreatedAt     string  `json:"created_at"`
	LastMessageAt string  `json:"last_message_at"`
}

func toConversationResponse(conv *store.Conversation) conversationResponse {
	return conversationResponse{
		ID:            conv.ID,
		Owner:         conv.Owner,
		Title:         conv.Title,
		CreatedAt:     conv.CreatedAt.Format(time.RFC3339),
		LastMessageAt: conv.LastMessageAt.Format(time.RFC3339),
	}
}

// handleConversations dispatches on method: POST creates, GET lists.
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateConversation(w, r)
	case http.MethodGet:
		s.handleListConversations(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	identity := authIdentity(r)
	if identity == "" {
		s.sendJSONError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req struct {
		ID string `json:"id"`
	}
	if r.Body != nil {
		// An empty body is fine; the id is generated then.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	conv := &store.Conversation{
		ID:            req.ID,
		Owner:         identity,
		CreatedAt:     now,
		LastMessageAt: now,
	}
	if err := s.store.CreateConversation(r.Context(), conv); err != nil {
		if errors.Is(err, store.ErrDuplicateConversation) {
			s.sendJSONError(w, http.StatusConflict, "conversation already exists")
			return
		}
		s.logger.Error("creating conversation", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(toConversationResponse(conv))
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	identity := authIdentity(r)
	if identity == "" {
		s.sendJSONError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	convs, err := s.store.ListConversations(r.Context(), identity, defaultListLimit)
	if err != nil {
		s.logger.Error("listing conversations", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]conversationResponse, 0, len(convs))
	for _, conv := range convs {
		out = append(out, toConversationResponse(conv))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"conversations": out})
}

// requireOwned loads a conversation and verifies the requester owns it.
func (s *Server) requireOwned(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity := authIdentity(r)
	if identity == "" {
		s.sendJSONError(w, http.StatusUnauthorized, "not authenticated")
		return "", false
	}
	conversationID := r.PathValue("conversation")

	conv, err := s.store.GetConversation(r.Context(), conversationID)
	if errors.Is(err, store.ErrNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return "", false
	}
	if err != nil {
		s.logger.Error("loading conversation", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return "", false
	}
	if conv.Owner != identity {
		s.sendJSONError(w, http.StatusForbidden, "not conversation owner")
		return "", false
	}
	return conversationID, true
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := s.requireOwned(w, r)
	if !ok {
		return
	}

	transcript, err := s.store.GetTranscript(r.Context(), conversationID)
	if err != nil {
		s.logger.Error("loading transcript", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"messages": transcript})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := s.requireOwned(w, r)
	if !ok {
		return
	}

	records, err := s.store.GetConversationUsage(r.Context(), conversationID)
	if err != nil {
		s.logger.Error("loading usage records", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	type usageResponse struct {
		ModelName    string `json:"model_name"`
		InputTokens  int    `json:"input_tokens"`
		OutputTokens int    `json:"output_tokens"`
		CreatedAt    string `json:"created_at"`
	}
	out := make([]usageResponse, 0, len(records))
	var totalIn, totalOut int
	for _, rec := range records {
		totalIn += rec.InputTokens
		totalOut += rec.OutputTokens
		out = append(out, usageResponse{
			ModelName:    rec.ModelName,
			InputTokens:  rec.InputTokens,
			OutputTokens: rec.OutputTokens,
			CreatedAt:    rec.CreatedAt.Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"records":             out,
		"total_input_tokens":  totalIn,
		"total_output_tokens": totalOut,
	})
}
