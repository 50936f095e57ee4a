// Package chat_engine answers questions about a chat's document and records the exchange.
package chat_engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/models"
)

// ContextAssembler produces the bounded document context for a question.
type ContextAssembler interface {
	Assemble(ctx context.Context, documentID, ownerID, query string, budget int) (string, error)
}

type ChatEngine struct {
	db        core.DbClient
	assembler ContextAssembler
	llm       core.LLMProvider
	metrics   core.Metrics
	budget    int
	now       func() time.Time
}

func NewChatEngine(db core.DbClient, assembler ContextAssembler, llm core.LLMProvider, metrics core.Metrics, budget int) *ChatEngine {
	if metrics == nil {
		metrics = core.NopMetrics{}
	}
	return &ChatEngine{
		db:        db,
		assembler: assembler,
		llm:       llm,
		metrics:   metrics,
		budget:    budget,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Answer runs one question through the model and stores the question and reply.
// Nothing is stored when any step before persistence fails.
func (e *ChatEngine) Answer(ctx context.Context, chatID, ownerID, question string) (string, error) {
	start := e.now()
	reply, err := e.answer(ctx, chatID, ownerID, question)

	outcome := core.OutcomeSuccess
	switch {
	case err == nil:
	case errors.Is(err, core.ErrModel), errors.Is(err, core.ErrStorage):
		outcome = core.OutcomeFailure
	default:
		outcome = core.OutcomeRejected
	}
	e.metrics.ObserveAnswer(outcome, e.now().Sub(start))
	return reply, err
}

func (e *ChatEngine) answer(ctx context.Context, chatID, ownerID, question string) (string, error) {
	if ownerID == "" {
		return "", core.ErrUnauthorized
	}
	if chatID == "" || strings.TrimSpace(question) == "" {
		return "", fmt.Errorf("%w: missing chatId or message", core.ErrBadRequest)
	}

	chat, err := e.chatFor(ctx, chatID, ownerID)
	if err != nil {
		return "", err
	}
	if chat.DocumentID == "" {
		return "", fmt.Errorf("%w: chat %s", core.ErrNoDocument, chatID)
	}

	docContext, err := e.assembler.Assemble(ctx, chat.DocumentID, ownerID, question, e.budget)
	if err != nil {
		return "", err
	}

	asked := e.now()
	callStart := time.Now()
	reply, err := e.llm.Generate(ctx, "", BuildPrompt(docContext, question))
	e.metrics.ObserveModelCall(time.Since(callStart), err)
	if err != nil {
		if !errors.Is(err, core.ErrModel) {
			err = fmt.Errorf("%w: %v", core.ErrModel, err)
		}
		return "", err
	}

	answered := e.now()
	if !answered.After(asked) {
		answered = asked.Add(time.Microsecond)
	}
	user := &models.ChatMessage{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Content:   question,
		Role:      models.RoleUser,
		OwnerID:   ownerID,
		CreatedAt: asked,
	}
	assistant := &models.ChatMessage{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Content:   reply,
		Role:      models.RoleAssistant,
		OwnerID:   ownerID,
		Sources:   []string{SourceLabel},
		CreatedAt: answered,
	}
	if err := e.db.AppendExchange(ctx, chatID, user, assistant); err != nil {
		return "", fmt.Errorf("store exchange: %w", err)
	}

	log.Debug().Str("chat_id", chatID).Int("context_len", len(docContext)).Int("reply_len", len(reply)).Msg("answered")
	return reply, nil
}

// History returns the chat transcript in creation order.
func (e *ChatEngine) History(ctx context.Context, chatID, ownerID string) ([]models.ChatMessage, error) {
	if ownerID == "" {
		return nil, core.ErrUnauthorized
	}
	if _, err := e.chatFor(ctx, chatID, ownerID); err != nil {
		return nil, err
	}
	msgs, err := e.db.GetMessagesByChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	return msgs, nil
}

// Chats lists the owner's chats, most recently updated first.
func (e *ChatEngine) Chats(ctx context.Context, ownerID string) ([]models.Chat, error) {
	if ownerID == "" {
		return nil, core.ErrUnauthorized
	}
	chats, err := e.db.ListChatsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	if chats == nil {
		chats = []models.Chat{}
	}
	return chats, nil
}

// Chat returns one chat owned by ownerID.
func (e *ChatEngine) Chat(ctx context.Context, chatID, ownerID string) (*models.Chat, error) {
	if ownerID == "" {
		return nil, core.ErrUnauthorized
	}
	return e.chatFor(ctx, chatID, ownerID)
}

func (e *ChatEngine) chatFor(ctx context.Context, chatID, ownerID string) (*models.Chat, error) {
	chat, err := e.db.GetChatByID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load chat: %w", err)
	}
	if chat == nil || chat.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: chat not found or access denied", core.ErrNotFound)
	}
	return chat, nil
}
