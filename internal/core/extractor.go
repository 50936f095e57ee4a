package core

import (
	"context"

	"github.com/markdave123-py/docchat/internal/models"
)

// DocumentExtractor defines the interface for extracting page text from a binary document.
type DocumentExtractor interface {
	// Extract parses data and returns the text of every page in page order.
	// The contentType hint helps the extractor choose the right parsing strategy.
	Extract(ctx context.Context, data []byte, contentType string) (*models.Extraction, error)
}

// FileFetcher pulls the raw bytes behind a file URL.
type FileFetcher interface {
	Fetch(ctx context.Context, fileURL string) ([]byte, error)
}

// ChunkRanker orders a document's chunks for a query before they are packed into the context budget.
// Implementations must not drop or mutate chunks; they only reorder.
type ChunkRanker interface {
	Rank(ctx context.Context, query string, chunks []models.DocumentChunk) ([]models.DocumentChunk, error)
}
