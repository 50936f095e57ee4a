package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/models"
)

var _ core.DbClient = (*MemoryClient)(nil)

// MemoryClient is a process-local DbClient used when no DATABASE_URL is configured, and in tests.
type MemoryClient struct {
	mu       sync.RWMutex
	docs     map[string]models.Document
	chunks   map[string][]models.DocumentChunk
	chats    map[string]models.Chat
	messages map[string][]models.ChatMessage

	// FailOn makes the named operation return ErrStorage; test hook.
	FailOn map[string]error
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		docs:     map[string]models.Document{},
		chunks:   map[string][]models.DocumentChunk{},
		chats:    map[string]models.Chat{},
		messages: map[string][]models.ChatMessage{},
		FailOn:   map[string]error{},
	}
}

func (m *MemoryClient) fail(op string) error {
	if err, ok := m.FailOn[op]; ok {
		return fmt.Errorf("%w: %s: %v", core.ErrStorage, op, err)
	}
	return nil
}

func (m *MemoryClient) Close() error { return nil }

func (m *MemoryClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateDocument"); err != nil {
		return err
	}
	if _, ok := m.docs[doc.ID]; ok {
		return fmt.Errorf("%w: document %s already exists", core.ErrStorage, doc.ID)
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now()
	}
	m.docs[doc.ID] = *doc
	return nil
}

func (m *MemoryClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("GetDocumentByID"); err != nil {
		return nil, err
	}
	d, ok := m.docs[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *MemoryClient) ListDocumentsByOwner(ctx context.Context, ownerID string) ([]models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Document
	for _, d := range m.docs {
		if d.OwnerID == ownerID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out, nil
}

func (m *MemoryClient) UpdateDocument(ctx context.Context, id string, upd models.DocumentUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpdateDocument:" + string(upd.Status)); err != nil {
		return err
	}
	d, ok := m.docs[id]
	if !ok {
		return fmt.Errorf("document not found: %s", id)
	}
	if from, ok := upd.Status.Previous(); !ok || d.Status != from {
		return fmt.Errorf("%w: document %s is %s, not moving to %s", core.ErrInvalidTransition, id, d.Status, upd.Status)
	}
	d.Status = upd.Status
	d.ErrorMessage = upd.ErrorMessage
	if upd.ProcessedAt != nil {
		d.ProcessedAt = upd.ProcessedAt
	}
	if upd.Metadata != nil {
		d.Metadata = upd.Metadata
	}
	m.docs[id] = d
	return nil
}

func (m *MemoryClient) InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("InsertDocumentChunks"); err != nil {
		return err
	}
	for _, ch := range chunks {
		for _, existing := range m.chunks[ch.DocumentID] {
			if existing.ChunkIndex == ch.ChunkIndex {
				return fmt.Errorf("%w: duplicate chunk index %d for document %s", core.ErrStorage, ch.ChunkIndex, ch.DocumentID)
			}
		}
	}
	for _, ch := range chunks {
		m.chunks[ch.DocumentID] = append(m.chunks[ch.DocumentID], ch)
	}
	return nil
}

func (m *MemoryClient) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("GetChunksByDocument"); err != nil {
		return nil, err
	}
	out := append([]models.DocumentChunk(nil), m.chunks[documentID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (m *MemoryClient) CreateChat(ctx context.Context, chat *models.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateChat"); err != nil {
		return err
	}
	m.chats[chat.ID] = *chat
	return nil
}

func (m *MemoryClient) GetChatByID(ctx context.Context, id string) (*models.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chats[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *MemoryClient) ListChatsByOwner(ctx context.Context, ownerID string) ([]models.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Chat
	for _, c := range m.chats {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// AppendExchange holds the write lock across both inserts and the counter bump,
// so concurrent exchanges on one chat never lose an increment.
func (m *MemoryClient) AppendExchange(ctx context.Context, chatID string, user, assistant *models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("AppendExchange"); err != nil {
		return err
	}
	c, ok := m.chats[chatID]
	if !ok {
		return fmt.Errorf("%w: chat not found: %s", core.ErrStorage, chatID)
	}
	m.messages[chatID] = append(m.messages[chatID], *user, *assistant)
	c.MessageCount += 2
	c.UpdatedAt = assistant.CreatedAt
	m.chats[chatID] = c
	return nil
}

func (m *MemoryClient) GetMessagesByChat(ctx context.Context, chatID string) ([]models.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]models.ChatMessage(nil), m.messages[chatID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
