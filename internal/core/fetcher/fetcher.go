// Package fetcher resolves a file URL to its bytes, reading straight from the
// object store when the URL points into our own bucket.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/markdave123-py/docchat/internal/core"
)

var _ core.FileFetcher = (*Fetcher)(nil)

// Fetcher pulls file bytes over HTTP, or from object storage for URLs it owns.
type Fetcher struct {
	client   *http.Client
	obj      core.ObjectClient
	maxBytes int64
}

// New builds a fetcher. obj may be nil, in which case every URL goes over HTTP.
// maxBytes caps the payload size; zero means no cap.
func New(client *http.Client, obj core.ObjectClient, maxBytes int64) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Fetcher{client: client, obj: obj, maxBytes: maxBytes}
}

// Fetch returns the body behind fileURL. Failures wrap core.ErrFetch.
func (f *Fetcher) Fetch(ctx context.Context, fileURL string) ([]byte, error) {
	if f.obj != nil {
		if bucket, key, ok := f.obj.Owns(fileURL); ok {
			log.Debug().Str("bucket", bucket).Str("key", key).Msg("fetching from object storage")
			data, err := f.obj.GetFile(ctx, bucket, key)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", core.ErrFetch, err)
			}
			return data, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", core.ErrFetch, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: failed to fetch PDF: %d", core.ErrFetch, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", core.ErrFetch, err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", core.ErrFetch, f.maxBytes)
	}
	return data, nil
}
