package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/docchat/internal/models"
)

// Answerer is the chat engine as seen by the HTTP layer.
type Answerer interface {
	Answer(ctx context.Context, chatID, ownerID, question string) (string, error)
	History(ctx context.Context, chatID, ownerID string) ([]models.ChatMessage, error)
	Chats(ctx context.Context, ownerID string) ([]models.Chat, error)
	Chat(ctx context.Context, chatID, ownerID string) (*models.Chat, error)
}

type ChatHandler struct {
	engine Answerer
}

func NewChatHandler(engine Answerer) *ChatHandler {
	return &ChatHandler{engine: engine}
}

type answerRequest struct {
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
	OwnerID string `json:"ownerId"`
	UserID  string `json:"userId"`
}

type answerResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
}

// Answer handles POST /answer.
func (h *ChatHandler) Answer(w http.ResponseWriter, r *http.Request) {
	const failed = "Failed to process chat message"

	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, failed)
		return
	}
	owner, err := resolveOwner(r, req.OwnerID, req.UserID)
	if err != nil {
		writeError(w, r, err, failed)
		return
	}

	reply, err := h.engine.Answer(r.Context(), req.ChatID, owner, req.Message)
	if err != nil {
		writeError(w, r, err, failed)
		return
	}
	writeJSON(w, http.StatusOK, answerResponse{Success: true, Response: reply})
}

// ListChats handles GET /api/chats.
func (h *ChatHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	const failed = "Failed to list chats"

	owner, err := resolveOwner(r, r.URL.Query().Get("ownerId"))
	if err != nil {
		writeError(w, r, err, failed)
		return
	}
	chats, err := h.engine.Chats(r.Context(), owner)
	if err != nil {
		writeError(w, r, err, failed)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

// Messages handles GET /api/chats/{chatID}/messages.
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	const failed = "Failed to load messages"

	owner, err := resolveOwner(r, r.URL.Query().Get("ownerId"))
	if err != nil {
		writeError(w, r, err, failed)
		return
	}
	msgs, err := h.engine.History(r.Context(), chi.URLParam(r, "chatID"), owner)
	if err != nil {
		writeError(w, r, err, failed)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// GetChat handles GET /api/chats/{chatID}.
func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	const failed = "Failed to load chat"

	owner, err := resolveOwner(r, r.URL.Query().Get("ownerId"))
	if err != nil {
		writeError(w, r, err, failed)
		return
	}
	chat, err := h.engine.Chat(r.Context(), chi.URLParam(r, "chatID"), owner)
	if err != nil {
		writeError(w, r, err, failed)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}
