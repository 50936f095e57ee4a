// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/docchat/internal/api/handlers"
	"github.com/markdave123-py/docchat/internal/config"
	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/core/chat_engine"
	db "github.com/markdave123-py/docchat/internal/core/database"
	"github.com/markdave123-py/docchat/internal/core/extractor"
	"github.com/markdave123-py/docchat/internal/core/fetcher"
	"github.com/markdave123-py/docchat/internal/core/ingestion_engine"
	"github.com/markdave123-py/docchat/internal/core/llm"
	objectclient "github.com/markdave123-py/docchat/internal/core/object-client"
	"github.com/markdave123-py/docchat/internal/core/retrieval"
	"github.com/markdave123-py/docchat/internal/services"
)

type App struct {
	DBClient     core.DbClient
	ObjectClient core.ObjectClient // nil when no bucket is configured
	DocProcessor *ingestion_engine.DocumentIngestor
	ChatEngine   *chat_engine.ChatEngine
	Metrics      *Metrics
	Server       *Server

	llm         llm.Provider
	workers     *errgroup.Group
	stopWorkers context.CancelFunc
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := openStore(appCtx, cfg)
	if err != nil {
		return nil, err
	}

	// Left as a nil interface unless S3 is actually configured.
	var objClient core.ObjectClient
	if cfg.AwsAccessKey != "" && cfg.AwsSecretKey != "" {
		s3Client, err := objectclient.NewS3Client(appCtx, cfg)
		if err != nil {
			_ = dbClient.Close()
			return nil, err
		}
		objClient = s3Client
		log.Info().Str("bucket", cfg.BucketName).Msg("object client initialized and ready")
	} else {
		log.Warn().Msg("AWS credentials not set; uploads disabled, files are fetched over HTTP")
	}

	llmProvider, err := llm.New(appCtx, cfg)
	if err != nil {
		_ = dbClient.Close()
		return nil, fmt.Errorf("couldn't initialize the language model: %w", err)
	}

	metrics := NewMetrics()

	docIngestor := ingestion_engine.NewDocumentIngestor(
		dbClient,
		fetcher.New(nil, objClient, cfg.MaxUploadBytes),
		newExtractor(cfg.Extractor),
		metrics,
		&ingestion_engine.IngestConfig{
			ChunkSize:    cfg.ChunkSize,
			ChunkOverlap: cfg.ChunkOverlap,
		},
	)

	// workers outlive the request context and stop in Close, after the server drains
	workerCtx, stopWorkers := context.WithCancel(context.WithoutCancel(ctx))
	workers := docIngestor.Start(workerCtx, cfg.IngestWorkers)

	assembler := retrieval.NewAssembler(dbClient, retrieval.NewRanker(cfg.Ranker))
	chatEngine := chat_engine.NewChatEngine(dbClient, assembler, llmProvider, metrics, cfg.ContextBudget)
	docService := services.NewDocumentService(dbClient, objClient, docIngestor, assembler)

	router := NewRouter(cfg, Routes{
		Ingest:    handlers.NewIngestHandler(docIngestor),
		Chat:      handlers.NewChatHandler(chatEngine),
		Documents: handlers.NewDocumentHandler(docService, cfg.MaxUploadBytes),
		Metrics:   metrics.Handler(),
	})

	return &App{
		DBClient:     dbClient,
		ObjectClient: objClient,
		DocProcessor: docIngestor,
		ChatEngine:   chatEngine,
		Metrics:      metrics,
		Server:       NewServer(cfg, router),
		llm:          llmProvider,
		workers:      workers,
		stopWorkers:  stopWorkers,
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set; using the in-memory store")
		return db.NewMemoryClient(), nil
	}
	client, err := db.NewDatabaseClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("database initialized and ready")
	return client, nil
}

func newExtractor(name string) core.DocumentExtractor {
	if strings.EqualFold(name, "docconv") {
		return extractor.NewDocconvExtractor(false)
	}
	return extractor.NewPDFExtractor(4)
}

// Close stops the ingest workers, waits for them to exit, then releases clients.
func (a *App) Close() {
	if a.stopWorkers != nil {
		a.stopWorkers()
		if err := a.workers.Wait(); err != nil {
			log.Error().Err(err).Msg("ingest workers exited with error")
		}
	}
	if a.llm != nil {
		_ = a.llm.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
