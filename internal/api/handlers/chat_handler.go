package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/docuquery/docuquery/internal/config"
	"github.com/docuquery/docuquery/internal/core"
	"github.com/docuquery/docuquery/internal/core/retrieval"
	"github.com/docuquery/docuquery/internal/models"
)

const systemPrompt = "You are an intelligent assistant answering based only on the given document content and conversation history. If unsure, say 'I cannot find this in the documents.'"

const noContextAnswer = "I don't have any relevant documents to answer your question. Please upload some documents first."

type ChatHandler struct {
	dbclient  core.DbClient
	retriever *retrieval.Engine
	llm       core.LLMProvider
	cfg       *config.Config
}

func NewChatHandler(db core.DbClient, retriever *retrieval.Engine, llm core.LLMProvider, cfg *config.Config) *ChatHandler {
	return &ChatHandler{dbclient: db, retriever: retriever, llm: llm, cfg: cfg}
}

type ChatRequest struct {
	Question       string `json:"question"`
	SessionID      string `json:"session_id,omitempty"`
	IncludeHistory bool   `json:"include_history"`
	Limit          int    `json:"limit,omitempty"`
}

type Citation struct {
	DocumentID string             `json:"document_id"`
	ChunkID    string             `json:"chunk_id"`
	Position   int                `json:"position"`
	Snippet    string             `json:"snippet"`
	Score      float64            `json:"score"`
	Source     models.MatchSource `json:"source"`
}

type ChatResponse struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	SessionID string     `json:"session_id,omitempty"`
	NoContext bool       `json:"no_context"`
}

// Query answers a question from the user's own documents. Retrieval runs
// both indexes; an empty result set is answered gracefully, and only a total
// retrieval outage turns into a 5xx.
func (h *ChatHandler) Query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := ctx.Value("user_id").(string)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", 400)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		http.Error(w, "question is required", 400)
		return
	}
	if req.Limit <= 0 || req.Limit > 20 {
		req.Limit = 5
	}

	// Session ownership check happens before retrieval so a foreign
	// session_id fails fast.
	var session *models.ChatSession
	if req.SessionID != "" {
		s, err := h.dbclient.GetChatSession(ctx, req.SessionID)
		if err != nil || s == nil || s.UserID != userID {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		session = s
	}

	hits, err := h.retriever.Search(ctx, userID, req.Question, req.Limit)
	if err != nil {
		if errors.Is(err, core.ErrRetrievalUnavailable) {
			http.Error(w, "retrieval temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}

	resp := ChatResponse{SessionID: req.SessionID, Citations: make([]Citation, 0, len(hits))}

	if len(hits) == 0 {
		resp.Answer = noContextAnswer
		resp.NoContext = true
	} else {
		var sb strings.Builder
		for _, hit := range hits {
			sb.WriteString(hit.Chunk.Text)
			sb.WriteString("\n---\n")
			resp.Citations = append(resp.Citations, Citation{
				DocumentID: hit.Chunk.DocumentID,
				ChunkID:    hit.Chunk.ID,
				Position:   hit.Chunk.Position,
				Snippet:    snippet(hit.Chunk.Text),
				Score:      hit.Score,
				Source:     hit.Source,
			})
		}

		userPrompt := fmt.Sprintf("Context:\n%s\n%s\nQuestion: %s", sb.String(), h.historyBlock(ctx, req, session), req.Question)

		answer, err := h.llm.Generate(ctx, systemPrompt, userPrompt)
		if err != nil {
			http.Error(w, fmt.Sprintf("LLM failed: %v", err), 500)
			return
		}
		resp.Answer = answer
	}

	h.recordTurn(r, session, req.Question, resp.Answer)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// historyBlock renders the session's prior turns for the prompt, oldest
// first, when the caller asked for history.
func (h *ChatHandler) historyBlock(ctx context.Context, req ChatRequest, session *models.ChatSession) string {
	if !req.IncludeHistory || session == nil {
		return ""
	}

	messages, err := h.dbclient.GetMessagesBySession(ctx, session.ID, h.cfg.HistoryTurns*2)
	if err != nil {
		log.Printf("chat: load history for session %s: %v", session.ID, err)
		return ""
	}
	if len(messages) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Conversation so far:\n")
	for _, m := range messages {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (h *ChatHandler) recordTurn(r *http.Request, session *models.ChatSession, question, answer string) {
	if session == nil {
		return
	}
	ctx := r.Context()

	if session.Name == "" {
		name := strings.TrimSpace(question)
		if runes := []rune(name); len(runes) > 50 {
			name = string(runes[:50])
		}
		if err := h.dbclient.RenameChatSession(ctx, session.ID, name); err != nil {
			log.Printf("chat: rename session %s: %v", session.ID, err)
		}
	}

	for _, m := range []models.ChatMessage{
		{ID: uuid.NewString(), SessionID: session.ID, Role: "user", Content: question},
		{ID: uuid.NewString(), SessionID: session.ID, Role: "assistant", Content: answer},
	} {
		msg := m
		if err := h.dbclient.AddChatMessage(ctx, &msg); err != nil {
			log.Printf("chat: record message for session %s: %v", session.ID, err)
		}
	}
}

// CreateSession starts a new conversation session for the caller.
func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(string)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	session := &models.ChatSession{ID: uuid.NewString(), UserID: userID}
	if err := h.dbclient.CreateChatSession(r.Context(), session); err != nil {
		http.Error(w, "could not create session", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(session)
}

// GetSessions lists the caller's sessions, newest first.
func (h *ChatHandler) GetSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(string)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	sessions, err := h.dbclient.ListChatSessionsByUser(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sessions)
}

// GetSessionMessages returns one session's transcript.
func (h *ChatHandler) GetSessionMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(string)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.dbclient.GetChatSession(r.Context(), sessionID)
	if err != nil || session == nil || session.UserID != userID {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	messages, err := h.dbclient.GetMessagesBySession(r.Context(), sessionID, 200)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(messages)
}

func snippet(text string) string {
	const max = 240
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max]) + "..."
}
