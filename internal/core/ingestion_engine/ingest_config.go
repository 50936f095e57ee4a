package ingestion_engine

import (
	"time"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/core/chunker"
)

// IngestConfig tunes the pipeline.
//
// ChunkSize:     characters per chunk (default 800).
// ChunkOverlap:  characters shared by consecutive chunks (default 120).
// QueueSize:     capacity of the background job queue (default 64).
// JobTimeout:    upper bound for one background ingestion (default 5m).
type IngestConfig struct {
	ChunkSize    int
	ChunkOverlap int
	QueueSize    int
	JobTimeout   time.Duration
}

func (c *IngestConfig) withDefaults() IngestConfig {
	out := IngestConfig{}
	if c != nil {
		out = *c
	}
	if out.ChunkSize <= 0 {
		out.ChunkSize = chunker.DefaultChunkSize
	}
	if out.ChunkOverlap < 0 {
		out.ChunkOverlap = chunker.DefaultChunkOverlap
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 64
	}
	if out.JobTimeout <= 0 {
		out.JobTimeout = 5 * time.Minute
	}
	return out
}

// Job is one queued ingestion request.
type Job struct {
	DocumentID string
	FileURL    string
	OwnerID    string
}

// DefaultChatTitle is used when the document has no title.
const DefaultChatTitle = "New Chat"

// DocumentIngestor orchestrates ingestion:
//
// db:         persistence for documents, chunks and chats.
// fetcher:    resolves a file URL to bytes (S3 or HTTP).
// extractor:  binary document to per-page text.
// chunker:    overlapping fixed-size splitter.
// metrics:    outcome and latency observations.
// jobs:       in-memory queue of background ingestions.
type DocumentIngestor struct {
	db        core.DbClient
	fetcher   core.FileFetcher
	extractor core.DocumentExtractor
	chunker   *chunker.Chunker
	metrics   core.Metrics
	cfg       IngestConfig
	jobs      chan Job
}
