package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/models"
)

func TestMemoryClient_DocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryClient()

	doc := &models.Document{ID: "d1", Title: "Report", OwnerID: "u1", Status: models.StatusUploading}
	require.NoError(t, m.CreateDocument(ctx, doc))
	assert.False(t, doc.UploadedAt.IsZero())
	assert.ErrorIs(t, m.CreateDocument(ctx, doc), core.ErrStorage)

	now := time.Now()
	err := m.UpdateDocument(ctx, "d1", models.DocumentUpdate{Status: models.StatusCompleted, ProcessedAt: &now})
	assert.ErrorIs(t, err, core.ErrInvalidTransition, "uploading cannot skip processing")

	require.NoError(t, m.UpdateDocument(ctx, "d1", models.DocumentUpdate{Status: models.StatusProcessing}))
	assert.ErrorIs(t, m.UpdateDocument(ctx, "d1", models.DocumentUpdate{Status: models.StatusProcessing}), core.ErrInvalidTransition)

	require.NoError(t, m.UpdateDocument(ctx, "d1", models.DocumentUpdate{
		Status:      models.StatusCompleted,
		ProcessedAt: &now,
		Metadata:    &models.DocumentMetadata{TokenCount: 10},
	}))

	got, err := m.GetDocumentByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, 10, got.Metadata.TokenCount)

	missing, err := m.GetDocumentByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.Error(t, m.UpdateDocument(ctx, "nope", models.DocumentUpdate{Status: models.StatusError}))
}

func TestMemoryClient_ChunksAllOrNothing(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryClient()

	require.NoError(t, m.InsertDocumentChunks(ctx, []models.DocumentChunk{
		{ID: "c1", DocumentID: "d1", ChunkIndex: 1},
		{ID: "c0", DocumentID: "d1", ChunkIndex: 0},
	}))

	err := m.InsertDocumentChunks(ctx, []models.DocumentChunk{
		{ID: "c2", DocumentID: "d1", ChunkIndex: 2},
		{ID: "dup", DocumentID: "d1", ChunkIndex: 1},
	})
	assert.ErrorIs(t, err, core.ErrStorage)

	chunks, err := m.GetChunksByDocument(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 1, chunks[1].ChunkIndex)
}

func TestMemoryClient_AppendExchangeConcurrent(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryClient()
	require.NoError(t, m.CreateChat(ctx, &models.Chat{ID: "chat", OwnerID: "u1"}))

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			now := time.Now()
			_ = m.AppendExchange(ctx, "chat",
				&models.ChatMessage{ID: fmt.Sprintf("u%d", i), Role: models.RoleUser, CreatedAt: now},
				&models.ChatMessage{ID: fmt.Sprintf("a%d", i), Role: models.RoleAssistant, CreatedAt: now.Add(time.Microsecond)})
		}(i)
	}
	wg.Wait()

	chat, err := m.GetChatByID(ctx, "chat")
	require.NoError(t, err)
	assert.Equal(t, 2*n, chat.MessageCount)

	msgs, err := m.GetMessagesByChat(ctx, "chat")
	require.NoError(t, err)
	assert.Len(t, msgs, 2*n)
}

func TestMemoryClient_FailOn(t *testing.T) {
	m := NewMemoryClient()
	m.FailOn["CreateChat"] = errors.New("disk full")

	err := m.CreateChat(context.Background(), &models.Chat{ID: "c"})
	assert.ErrorIs(t, err, core.ErrStorage)
	assert.Contains(t, err.Error(), "disk full")
}

func TestMemoryClient_ListByOwner(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryClient()
	base := time.Now()
	require.NoError(t, m.CreateDocument(ctx, &models.Document{ID: "old", OwnerID: "u1", UploadedAt: base}))
	require.NoError(t, m.CreateDocument(ctx, &models.Document{ID: "new", OwnerID: "u1", UploadedAt: base.Add(time.Hour)}))
	require.NoError(t, m.CreateDocument(ctx, &models.Document{ID: "other", OwnerID: "u2", UploadedAt: base}))

	docs, err := m.ListDocumentsByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "new", docs[0].ID)
}
