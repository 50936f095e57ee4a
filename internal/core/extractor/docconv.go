package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"
	"github.com/rs/zerolog/log"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/models"
)

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv.
// PDF conversion shells out to poppler's pdftotext, so the binary must be on PATH.
type DocconvExtractor struct {
	useReadability bool
}

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

// Extract converts the payload and splits the body on form feeds into pages.
func (e *DocconvExtractor) Extract(ctx context.Context, data []byte, contentType string) (*models.Extraction, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", core.ErrExtraction)
	}

	res, err := docconv.Convert(bytes.NewReader(data), contentType, e.useReadability)
	if err != nil {
		log.Warn().Err(err).Str("content_type", contentType).Msg("docconv: extraction failed")
		return nil, fmt.Errorf("%w: docconv: %v", core.ErrExtraction, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ext := &models.Extraction{Pages: splitPages(res.Body)}
	if strings.TrimSpace(ext.Text()) == "" {
		log.Warn().Str("content_type", contentType).Msg("docconv: extracted empty text")
		return ext, fmt.Errorf("%w: %w", core.ErrExtraction, core.ErrNoTextLayer)
	}
	return ext, nil
}

// splitPages cuts converter output on form feeds and normalises each page.
func splitPages(body string) []string {
	raw := strings.Split(body, "\f")
	pages := make([]string, 0, len(raw))
	for _, p := range raw {
		pages = append(pages, cleanPage(p))
	}
	return pages
}

// cleanPage trims each line and drops blank lines runs longer than one.
func cleanPage(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
