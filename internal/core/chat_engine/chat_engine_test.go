package chat_engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docchat/internal/core"
	db "github.com/markdave123-py/docchat/internal/core/database"
	"github.com/markdave123-py/docchat/internal/core/retrieval"
	"github.com/markdave123-py/docchat/internal/models"
)

type stubLLM struct {
	reply   string
	err     error
	prompts []string
}

func (s *stubLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.prompts = append(s.prompts, userPrompt)
	return s.reply, s.err
}

type fixture struct {
	store  *db.MemoryClient
	llm    *stubLLM
	engine *ChatEngine
}

func newFixture(t *testing.T, chunks ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	store := db.NewMemoryClient()
	now := time.Now().UTC()

	require.NoError(t, store.CreateDocument(ctx, &models.Document{ID: "doc-1", Title: "Report", OwnerID: "u1", Status: models.StatusCompleted}))
	rows := make([]models.DocumentChunk, len(chunks))
	for i, c := range chunks {
		rows[i] = models.DocumentChunk{ID: "c" + string(rune('0'+i)), DocumentID: "doc-1", ChunkIndex: i, Content: c}
	}
	require.NoError(t, store.InsertDocumentChunks(ctx, rows))
	require.NoError(t, store.CreateChat(ctx, &models.Chat{ID: "chat-1", Title: "Report", OwnerID: "u1", DocumentID: "doc-1", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, store.CreateChat(ctx, &models.Chat{ID: "chat-loose", Title: "New Chat", OwnerID: "u1", CreatedAt: now, UpdatedAt: now}))

	llm := &stubLLM{reply: "Revenue was $5M."}
	engine := NewChatEngine(store, retrieval.NewAssembler(store, nil), llm, nil, retrieval.DefaultBudget)
	return &fixture{store: store, llm: llm, engine: engine}
}

func TestAnswer_PersistsExchange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "Q3 revenue was $5M.", "Costs were flat.")

	reply, err := f.engine.Answer(ctx, "chat-1", "u1", "What was revenue?")
	require.NoError(t, err)
	assert.Equal(t, "Revenue was $5M.", reply)

	require.Len(t, f.llm.prompts, 1)
	assert.Contains(t, f.llm.prompts[0], "Q3 revenue was $5M.\n\nCosts were flat.")
	assert.Contains(t, f.llm.prompts[0], "User Question: What was revenue?")

	msgs, err := f.engine.History(ctx, "chat-1", "u1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, "What was revenue?", msgs[0].Content)
	assert.Empty(t, msgs[0].Sources)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Revenue was $5M.", msgs[1].Content)
	assert.Equal(t, []string{SourceLabel}, msgs[1].Sources)
	assert.True(t, msgs[1].CreatedAt.After(msgs[0].CreatedAt))

	chat, err := f.store.GetChatByID(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, 2, chat.MessageCount)
	assert.Equal(t, "Report", chat.Title)
}

func TestAnswer_CountGrowsByTwoPerExchange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "content")

	for i := 0; i < 3; i++ {
		_, err := f.engine.Answer(ctx, "chat-1", "u1", "again?")
		require.NoError(t, err)
	}
	chat, _ := f.store.GetChatByID(ctx, "chat-1")
	assert.Equal(t, 6, chat.MessageCount)
}

func TestAnswer_ContextIsBounded(t *testing.T) {
	f := newFixture(t, strings.Repeat("a", 3000), strings.Repeat("b", 3000))

	_, err := f.engine.Answer(context.Background(), "chat-1", "u1", "q?")
	require.NoError(t, err)
	assert.NotContains(t, f.llm.prompts[0], strings.Repeat("b", 999))
	assert.Contains(t, f.llm.prompts[0], strings.Repeat("b", 998))
}

func TestAnswer_Rejections(t *testing.T) {
	f := newFixture(t, "content")

	tests := []struct {
		name     string
		chatID   string
		ownerID  string
		question string
		wantErr  error
	}{
		{"no owner", "chat-1", "", "q?", core.ErrUnauthorized},
		{"no chat id", "", "u1", "q?", core.ErrBadRequest},
		{"blank question", "chat-1", "u1", "   ", core.ErrBadRequest},
		{"unknown chat", "ghost", "u1", "q?", core.ErrNotFound},
		{"other owner", "chat-1", "u2", "q?", core.ErrNotFound},
		{"chat without document", "chat-loose", "u1", "q?", core.ErrNoDocument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Answer(context.Background(), tt.chatID, tt.ownerID, tt.question)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Empty(t, f.llm.prompts)
	msgs, _ := f.store.GetMessagesByChat(context.Background(), "chat-1")
	assert.Empty(t, msgs)
}

func TestAnswer_NoChunks(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Answer(context.Background(), "chat-1", "u1", "q?")
	assert.ErrorIs(t, err, core.ErrNoContent)
	assert.Empty(t, f.llm.prompts)
}

func TestAnswer_ModelFailurePersistsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "content")
	f.llm.err = errors.New("quota exceeded")

	_, err := f.engine.Answer(ctx, "chat-1", "u1", "q?")
	require.ErrorIs(t, err, core.ErrModel)

	msgs, _ := f.store.GetMessagesByChat(ctx, "chat-1")
	assert.Empty(t, msgs)
	chat, _ := f.store.GetChatByID(ctx, "chat-1")
	assert.Zero(t, chat.MessageCount)
}

func TestAnswer_StorageFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "content")
	f.store.FailOn["AppendExchange"] = errors.New("tx aborted")

	_, err := f.engine.Answer(ctx, "chat-1", "u1", "q?")
	require.ErrorIs(t, err, core.ErrStorage)

	chat, _ := f.store.GetChatByID(ctx, "chat-1")
	assert.Zero(t, chat.MessageCount)
}

func TestHistoryAndChats_OwnerChecked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "content")

	_, err := f.engine.History(ctx, "chat-1", "u2")
	assert.ErrorIs(t, err, core.ErrNotFound)

	msgs, err := f.engine.History(ctx, "chat-1", "u1")
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)

	chats, err := f.engine.Chats(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, chats, 2)

	chats, err = f.engine.Chats(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestChat_OwnerChecked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "content")

	chat, err := f.engine.Chat(ctx, "chat-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", chat.DocumentID)

	_, err = f.engine.Chat(ctx, "chat-1", "u2")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = f.engine.Chat(ctx, "missing", "u1")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = f.engine.Chat(ctx, "chat-1", "")
	assert.ErrorIs(t, err, core.ErrUnauthorized)
}

func TestBuildPrompt_PlaceholdersStayLiteral(t *testing.T) {
	p := BuildPrompt("doc mentions {question} literally", "what about {context}?")
	assert.Contains(t, p, "doc mentions {question} literally")
	assert.Contains(t, p, "User Question: what about {context}?")
	assert.Contains(t, p, "IMPORTANT SECURITY REQUIREMENTS")
}
