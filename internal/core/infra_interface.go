package core

import (
	"context"
	"io"

	"github.com/markdave123-py/docchat/internal/models"
)

// DbClient defines all persistence operations the pipelines need.
// It abstracts Postgres so higher layers never depend on a specific DB.
// Getters return (nil, nil) when the record does not exist.
type DbClient interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByOwner(ctx context.Context, ownerID string) ([]models.Document, error)
	// UpdateDocument moves the document to upd.Status only if it currently holds
	// upd.Status.Previous(); the check and the write are one atomic step.
	// A document in any other status yields ErrInvalidTransition.
	UpdateDocument(ctx context.Context, id string, upd models.DocumentUpdate) error

	// InsertDocumentChunks writes the whole batch or nothing.
	InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error
	// GetChunksByDocument returns chunks ascending by index.
	GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error)

	CreateChat(ctx context.Context, chat *models.Chat) error
	GetChatByID(ctx context.Context, id string) (*models.Chat, error)
	ListChatsByOwner(ctx context.Context, ownerID string) ([]models.Chat, error)

	// AppendExchange stores the user message and the assistant reply and bumps the
	// chat's message count and update time atomically.
	AppendExchange(ctx context.Context, chatID string, user, assistant *models.ChatMessage) error
	// GetMessagesByChat returns messages ascending by creation time.
	GetMessagesByChat(ctx context.Context, chatID string) ([]models.ChatMessage, error)

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
	// Owns reports whether url points into this client's bucket, returning the bucket and key.
	Owns(url string) (bucket, key string, ok bool)
}
