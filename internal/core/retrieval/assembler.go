// Package retrieval builds the bounded context string handed to the model.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/models"
)

// DefaultBudget is the context size in characters.
const DefaultBudget = 4000

// ChunkSeparator sits between chunks in the assembled context.
const ChunkSeparator = "\n\n"

type Assembler struct {
	db     core.DbClient
	ranker core.ChunkRanker
}

// NewAssembler returns an assembler; a nil ranker keeps chunks in index order.
func NewAssembler(db core.DbClient, ranker core.ChunkRanker) *Assembler {
	if ranker == nil {
		ranker = IndexRanker{}
	}
	return &Assembler{db: db, ranker: ranker}
}

// Chunks returns the document's chunks after checking ownership.
func (a *Assembler) Chunks(ctx context.Context, documentID, ownerID string) ([]models.DocumentChunk, error) {
	doc, err := a.db.GetDocumentByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc == nil || doc.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: %s", core.ErrAccessDenied, documentID)
	}
	chunks, err := a.db.GetChunksByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	return chunks, nil
}

// Assemble joins the ranked chunks and cuts the result to budget characters.
// A budget of zero or less uses DefaultBudget.
func (a *Assembler) Assemble(ctx context.Context, documentID, ownerID, query string, budget int) (string, error) {
	if budget <= 0 {
		budget = DefaultBudget
	}
	chunks, err := a.Chunks(ctx, documentID, ownerID)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", fmt.Errorf("%w: document %s has no chunks", core.ErrNoContent, documentID)
	}

	ranked, err := a.ranker.Rank(ctx, query, chunks)
	if err != nil {
		return "", fmt.Errorf("rank chunks: %w", err)
	}

	var b strings.Builder
	for i, ch := range ranked {
		if i > 0 {
			b.WriteString(ChunkSeparator)
		}
		b.WriteString(ch.Content)
		if b.Len() >= budget*4 {
			// a rune is at most 4 bytes, so budget runes are already buffered
			break
		}
	}
	return truncateRunes(b.String(), budget), nil
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
