package retrieval

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/models"
)

var (
	_ core.ChunkRanker = IndexRanker{}
	_ core.ChunkRanker = KeywordRanker{}
)

// IndexRanker keeps document order.
type IndexRanker struct{}

func (IndexRanker) Rank(ctx context.Context, query string, chunks []models.DocumentChunk) ([]models.DocumentChunk, error) {
	out := append([]models.DocumentChunk(nil), chunks...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

// KeywordRanker moves chunks that mention more query terms to the front.
// Terms shorter than MinTermLen are ignored; ties keep document order.
type KeywordRanker struct{}

const MinTermLen = 3

func (KeywordRanker) Rank(ctx context.Context, query string, chunks []models.DocumentChunk) ([]models.DocumentChunk, error) {
	terms := queryTerms(query)
	out := append([]models.DocumentChunk(nil), chunks...)
	if len(terms) == 0 {
		return IndexRanker{}.Rank(ctx, query, out)
	}

	scores := make(map[string]int, len(out))
	for _, ch := range out {
		content := strings.ToLower(ch.Content)
		score := 0
		for _, t := range terms {
			score += strings.Count(content, t)
		}
		scores[ch.ID] = score
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := scores[out[i].ID], scores[out[j].ID]
		if si != sj {
			return si > sj
		}
		return out[i].ChunkIndex < out[j].ChunkIndex
	})
	return out, nil
}

func queryTerms(query string) []string {
	seen := map[string]bool{}
	var terms []string
	for _, f := range strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(f)) < MinTermLen || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

// NewRanker maps a config name to a ranker; unknown names fall back to index order.
func NewRanker(name string) core.ChunkRanker {
	switch strings.ToLower(name) {
	case "keyword":
		return KeywordRanker{}
	default:
		return IndexRanker{}
	}
}

// Search returns chunks whose content contains query, case-insensitively, in index order.
func Search(chunks []models.DocumentChunk, query string) []models.DocumentChunk {
	q := strings.ToLower(strings.TrimSpace(query))
	out := []models.DocumentChunk{}
	if q == "" {
		return out
	}
	for _, ch := range chunks {
		if strings.Contains(strings.ToLower(ch.Content), q) {
			out = append(out, ch)
		}
	}
	return out
}
