// Package extractor turns binary documents into per-page plain text.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/models"
)

var _ core.DocumentExtractor = (*PDFExtractor)(nil)

var disableConfigDir sync.Once

// PDFExtractor validates a payload with pdfcpu and reads page text with ledongthuc/pdf.
type PDFExtractor struct {
	workers int
}

// NewPDFExtractor builds an extractor that reads up to workers pages at once.
func NewPDFExtractor(workers int) *PDFExtractor {
	if workers <= 0 {
		workers = 4
	}
	disableConfigDir.Do(api.DisableConfigDir)
	return &PDFExtractor{workers: workers}
}

// Extract returns the text of every page in page order.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte, contentType string) (*models.Extraction, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", core.ErrExtraction)
	}

	pageCount, err := countPages(data)
	if err != nil {
		return nil, fmt.Errorf("%w: not a readable pdf: %v", core.ErrExtraction, err)
	}

	pages := make([]string, pageCount)

	// Each worker opens its own reader; ledongthuc/pdf readers are not shared across goroutines.
	g, gctx := errgroup.WithContext(ctx)
	workers := min(e.workers, pageCount)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
			if err != nil {
				return fmt.Errorf("%w: open pdf: %v", core.ErrExtraction, err)
			}
			for i := w; i < pageCount; i += workers {
				if err := gctx.Err(); err != nil {
					return err
				}
				text, err := pageText(r, i+1)
				if err != nil {
					return fmt.Errorf("%w: page %d: %v", core.ErrExtraction, i+1, err)
				}
				pages[i] = text
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ext := &models.Extraction{Pages: pages}
	if ext.Text() == "" {
		log.Warn().Int("pages", pageCount).Str("content_type", contentType).Msg("pdf has no text layer")
		return ext, fmt.Errorf("%w: %w", core.ErrExtraction, core.ErrNoTextLayer)
	}
	return ext, nil
}

// countPages validates the file structure and returns its page count.
func countPages(data []byte) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu: %v", r)
		}
	}()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.PageCount(bytes.NewReader(data), conf)
}

func pageText(r *pdf.Reader, num int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pdf: %v", rec)
		}
	}()
	if num > r.NumPage() {
		return "", nil
	}
	page := r.Page(num)
	if page.V.IsNull() {
		return "", nil
	}
	raw, err := page.GetPlainText(nil)
	if err != nil {
		return "", err
	}
	return cleanPage(strings.ToValidUTF8(raw, "")), nil
}
