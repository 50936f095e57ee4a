package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/core/chunker"
	"github.com/markdave123-py/docchat/internal/models"
)

// NewDocumentIngestor constructs the ingestor with a bounded job queue.
func NewDocumentIngestor(db core.DbClient, fetcher core.FileFetcher, extractor core.DocumentExtractor, metrics core.Metrics, cfg *IngestConfig) *DocumentIngestor {
	c := cfg.withDefaults()
	if metrics == nil {
		metrics = core.NopMetrics{}
	}
	return &DocumentIngestor{
		db:        db,
		fetcher:   fetcher,
		extractor: extractor,
		chunker:   chunker.New(chunker.WithChunkSize(c.ChunkSize), chunker.WithOverlap(c.ChunkOverlap)),
		metrics:   metrics,
		cfg:       c,
		jobs:      make(chan Job, c.QueueSize),
	}
}

// Start runs numWorkers goroutines reading from the jobs channel until ctx is done.
// The returned group's Wait blocks until every worker has exited.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) *errgroup.Group {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	g := &errgroup.Group{}
	for w := 1; w <= numWorkers; w++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					log.Debug().Int("worker", w).Msg("ingest worker shutting down")
					return nil
				case job := <-i.jobs:
					i.runJob(ctx, w, job)
				}
			}
		})
	}
	return g
}

func (i *DocumentIngestor) runJob(ctx context.Context, worker int, job Job) {
	jobCtx, cancel := context.WithTimeout(ctx, i.cfg.JobTimeout)
	defer cancel()

	logger := log.With().Int("worker", worker).Str("document_id", job.DocumentID).Logger()
	logger.Info().Msg("processing document")

	chatID, err := i.ProcessDocument(jobCtx, job.DocumentID, job.FileURL, job.OwnerID)
	if err != nil {
		logger.Error().Err(err).Msg("background ingestion failed")
		return
	}
	logger.Info().Str("chat_id", chatID).Msg("background ingestion completed")
}

// Enqueue schedules a document for background ingestion.
// It blocks while the queue is full, until ctx is done.
func (i *DocumentIngestor) Enqueue(ctx context.Context, job Job) error {
	select {
	case i.jobs <- job:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s: %w", job.DocumentID, ctx.Err())
	}
}

// ProcessDocument fetches, extracts, chunks and persists one document, then
// opens a chat bound to it. It returns the new chat's id.
func (i *DocumentIngestor) ProcessDocument(ctx context.Context, documentID, fileURL, ownerID string) (string, error) {
	start := time.Now()
	chatID, chunks, err := i.process(ctx, documentID, fileURL, ownerID)

	outcome := core.OutcomeSuccess
	switch {
	case err == nil:
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrInvalidTransition), errors.Is(err, core.ErrBadRequest):
		outcome = core.OutcomeRejected
	default:
		outcome = core.OutcomeFailure
	}
	i.metrics.ObserveIngestion(outcome, chunks, time.Since(start))
	return chatID, err
}

func (i *DocumentIngestor) process(ctx context.Context, documentID, fileURL, ownerID string) (string, int, error) {
	if documentID == "" || fileURL == "" || ownerID == "" {
		return "", 0, fmt.Errorf("%w: documentId, fileUrl and ownerId are required", core.ErrBadRequest)
	}

	doc, err := i.db.GetDocumentByID(ctx, documentID)
	if err != nil {
		return "", 0, fmt.Errorf("load document: %w", err)
	}
	if doc == nil || doc.OwnerID != ownerID {
		return "", 0, fmt.Errorf("%w: document %s", core.ErrNotFound, documentID)
	}
	if !doc.Status.CanTransitionTo(models.StatusProcessing) {
		return "", 0, fmt.Errorf("%w: document %s is %s", core.ErrInvalidTransition, documentID, doc.Status)
	}

	// The claim is the real guard: of two concurrent callers only one moves uploading to processing.
	if err := i.db.UpdateDocument(ctx, documentID, models.DocumentUpdate{Status: models.StatusProcessing}); err != nil {
		return "", 0, fmt.Errorf("mark processing: %w", err)
	}

	logger := log.With().Str("document_id", documentID).Logger()

	chatID, chunks, err := i.ingest(ctx, doc, fileURL)
	if err != nil {
		// Status writes outlive a cancelled request so the document never sticks in processing.
		upd := models.DocumentUpdate{Status: models.StatusError, ErrorMessage: err.Error()}
		if uerr := i.db.UpdateDocument(context.WithoutCancel(ctx), documentID, upd); uerr != nil {
			logger.Error().Err(uerr).Msg("failed to mark document as error")
		}
		logger.Error().Err(err).Msg("ingestion failed")
		return "", chunks, err
	}

	logger.Info().Str("chat_id", chatID).Int("chunks", chunks).Msg("document ingested")
	return chatID, chunks, nil
}

// ingest runs the fallible steps; any error here leaves the document in the error state.
func (i *DocumentIngestor) ingest(ctx context.Context, doc *models.Document, fileURL string) (string, int, error) {
	data, err := i.fetcher.Fetch(ctx, fileURL)
	if err != nil {
		return "", 0, err
	}

	ext, err := i.extractor.Extract(ctx, data, doc.MimeType)
	switch {
	case err == nil:
	case errors.Is(err, core.ErrNoTextLayer):
		log.Warn().Str("document_id", doc.ID).Msg("no extractable text, completing with zero chunks")
		if ext == nil {
			ext = &models.Extraction{}
		}
	default:
		return "", 0, err
	}

	now := time.Now().UTC()
	text := ext.Text()
	chunks := buildChunks(doc.ID, ext, i.chunker.Split(text), now)

	if err := i.db.InsertDocumentChunks(ctx, chunks); err != nil {
		return "", 0, fmt.Errorf("store chunks: %w", err)
	}

	title := doc.Title
	if title == "" {
		title = DefaultChatTitle
	}
	chat := &models.Chat{
		ID:         uuid.NewString(),
		Title:      title,
		OwnerID:    doc.OwnerID,
		DocumentID: doc.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := i.db.CreateChat(ctx, chat); err != nil {
		return "", len(chunks), fmt.Errorf("create chat: %w", err)
	}

	processed := time.Now().UTC()
	if err := i.db.UpdateDocument(ctx, doc.ID, models.DocumentUpdate{
		Status:      models.StatusCompleted,
		ProcessedAt: &processed,
		Metadata:    documentMetadata(ext, text),
	}); err != nil {
		return "", len(chunks), fmt.Errorf("mark completed: %w", err)
	}
	return chat.ID, len(chunks), nil
}
