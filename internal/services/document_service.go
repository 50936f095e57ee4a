package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/core/ingestion_engine"
	objectclient "github.com/markdave123-py/docchat/internal/core/object-client"
	"github.com/markdave123-py/docchat/internal/core/retrieval"
	"github.com/markdave123-py/docchat/internal/models"
)

// ChunkSource returns a document's chunks after an ownership check.
type ChunkSource interface {
	Chunks(ctx context.Context, documentID, ownerID string) ([]models.DocumentChunk, error)
}

// DocumentService covers the document records around ingestion: upload, registration, listing and search.
type DocumentService struct {
	db       core.DbClient
	storage  core.ObjectClient
	ingestor ingestion_engine.Ingestor
	chunks   ChunkSource
}

func NewDocumentService(db core.DbClient, storage core.ObjectClient, ing ingestion_engine.Ingestor, chunks ChunkSource) *DocumentService {
	return &DocumentService{db: db, storage: storage, ingestor: ing, chunks: chunks}
}

// UploadAndCreate stores the file, records the document as uploading and queues ingestion.
func (s *DocumentService) UploadAndCreate(ctx context.Context, ownerID, filename, contentType string, data io.Reader, size int64) (*models.Document, *models.UploadResult, error) {
	if ownerID == "" {
		return nil, nil, core.ErrUnauthorized
	}
	if s.storage == nil {
		return nil, nil, fmt.Errorf("%w: object storage is not configured", core.ErrStorage)
	}

	docID := uuid.NewString()
	key := objectclient.ObjectKey(ownerID, docID, filename)

	url, err := s.storage.UploadFile(ctx, key, data, contentType)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", core.ErrStorage, err)
	}

	upload := &models.UploadResult{FileURL: url, FileName: filename, FileSize: size, MimeType: contentType}
	doc, err := s.create(ctx, docID, ownerID, *upload)
	if err != nil {
		if derr := s.storage.DeleteFile(context.WithoutCancel(ctx), key); derr != nil {
			log.Warn().Err(derr).Str("key", key).Msg("failed to remove orphaned upload")
		}
		return nil, nil, err
	}

	job := ingestion_engine.Job{DocumentID: doc.ID, FileURL: doc.FileURL, OwnerID: ownerID}
	if err := s.ingestor.Enqueue(ctx, job); err != nil {
		s.abandon(context.WithoutCancel(ctx), doc.ID, key, err)
		return nil, nil, fmt.Errorf("queue ingestion: %w", err)
	}
	return doc, upload, nil
}

// abandon cleans up after an upload that could not be queued: the object is
// removed and the record walks processing -> error so it never sits in uploading.
func (s *DocumentService) abandon(ctx context.Context, docID, key string, cause error) {
	logger := log.With().Str("document_id", docID).Logger()
	if err := s.storage.DeleteFile(ctx, key); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("failed to remove unqueued upload")
	}
	if err := s.db.UpdateDocument(ctx, docID, models.DocumentUpdate{Status: models.StatusProcessing}); err != nil {
		logger.Error().Err(err).Msg("failed to claim unqueued document")
		return
	}
	upd := models.DocumentUpdate{Status: models.StatusError, ErrorMessage: "ingestion not queued: " + cause.Error()}
	if err := s.db.UpdateDocument(ctx, docID, upd); err != nil {
		logger.Error().Err(err).Msg("failed to mark unqueued document as error")
	}
}

// Create records a document for a file that was uploaded elsewhere.
func (s *DocumentService) Create(ctx context.Context, ownerID string, upload models.UploadResult) (*models.Document, error) {
	if ownerID == "" {
		return nil, core.ErrUnauthorized
	}
	if upload.FileURL == "" || upload.FileName == "" {
		return nil, fmt.Errorf("%w: missing fileUrl or fileName", core.ErrBadRequest)
	}
	return s.create(ctx, uuid.NewString(), ownerID, upload)
}

func (s *DocumentService) create(ctx context.Context, docID, ownerID string, upload models.UploadResult) (*models.Document, error) {
	doc := &models.Document{
		ID:         docID,
		Title:      models.TitleFromFileName(upload.FileName),
		FileName:   upload.FileName,
		FileURL:    upload.FileURL,
		FileSize:   upload.FileSize,
		MimeType:   upload.MimeType,
		OwnerID:    ownerID,
		Status:     models.StatusUploading,
		UploadedAt: time.Now().UTC(),
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	return doc, nil
}

// Get returns one document owned by ownerID. Someone else's document is reported as not found.
func (s *DocumentService) Get(ctx context.Context, documentID, ownerID string) (*models.Document, error) {
	if ownerID == "" {
		return nil, core.ErrUnauthorized
	}
	doc, err := s.db.GetDocumentByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc == nil || doc.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: document %s", core.ErrNotFound, documentID)
	}
	return doc, nil
}

func (s *DocumentService) ListByOwner(ctx context.Context, ownerID string) ([]models.Document, error) {
	if ownerID == "" {
		return nil, core.ErrUnauthorized
	}
	docs, err := s.db.ListDocumentsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, nil
}

// SearchChunks finds the document's chunks containing query.
func (s *DocumentService) SearchChunks(ctx context.Context, documentID, ownerID, query string) ([]models.DocumentChunk, error) {
	if ownerID == "" {
		return nil, core.ErrUnauthorized
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: missing query", core.ErrBadRequest)
	}
	chunks, err := s.chunks.Chunks(ctx, documentID, ownerID)
	if err != nil {
		return nil, err
	}
	return retrieval.Search(chunks, query), nil
}
