package ingestion_engine

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/docchat/internal/core/chunker"
	"github.com/markdave123-py/docchat/internal/models"
)

// buildChunks turns chunker pieces into storable chunks, tagging each with
// the page its first character came from.
func buildChunks(documentID string, ext *models.Extraction, pieces []chunker.Piece, now time.Time) []models.DocumentChunk {
	out := make([]models.DocumentChunk, 0, len(pieces))
	for _, p := range pieces {
		out = append(out, models.DocumentChunk{
			ID:         uuid.NewString(),
			DocumentID: documentID,
			Content:    p.Content,
			ChunkIndex: p.Index,
			Metadata: models.ChunkMetadata{
				PageNumber:     ext.PageAt(p.StartChar),
				StartCharIndex: p.StartChar,
				EndCharIndex:   p.EndChar,
				TokenCount:     p.TokenCount,
			},
			CreatedAt: now,
		})
	}
	return out
}

// documentMetadata summarises the extracted text for the document record.
func documentMetadata(ext *models.Extraction, text string) *models.DocumentMetadata {
	meta := &models.DocumentMetadata{
		TokenCount: chunker.ApproxTokens(text),
		PageCount:  len(ext.Pages),
	}
	if text != "" {
		meta.Lines = &models.LineRange{From: 1, To: strings.Count(text, "\n") + 1}
	}
	return meta
}
