package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/markdave123-py/docchat/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/docchat/internal/api/middlewares"
	"github.com/markdave123-py/docchat/internal/config"
)

// Long enough for a synchronous ingest of a large PDF.
const pipelineTimeout = 5 * time.Minute

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// Routes groups the handlers the router mounts.
type Routes struct {
	Ingest    *handlers.IngestHandler
	Chat      *handlers.ChatHandler
	Documents *handlers.DocumentHandler
	Metrics   http.Handler
}

// NewRouter builds the chi router with the middleware stack and all routes.
func NewRouter(cfg *config.Config, rt Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(requestIDLogger)
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, took time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("took", took).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	if rt.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.Metrics)
	}

	r.Group(func(protected chi.Router) {
		protected.Use(appMiddleware.JWTMiddleware(cfg.JWTSecret))

		// pipeline endpoints
		protected.Group(func(slow chi.Router) {
			slow.Use(middleware.Timeout(pipelineTimeout))
			slow.Post("/ingest", rt.Ingest.Ingest)
			slow.Post("/answer", rt.Chat.Answer)
			slow.Post("/api/documents/upload", rt.Documents.UploadDocument)
		})

		protected.Group(func(api chi.Router) {
			api.Use(middleware.Timeout(60 * time.Second))
			api.Post("/api/documents", rt.Documents.CreateDocument)
			api.Get("/api/documents", rt.Documents.GetDocuments)
			api.Get("/api/documents/{documentID}", rt.Documents.GetDocument)
			api.Get("/api/documents/{documentID}/search", rt.Documents.SearchChunks)
			api.Get("/api/chats", rt.Chat.ListChats)
			api.Get("/api/chats/{chatID}", rt.Chat.GetChat)
			api.Get("/api/chats/{chatID}/messages", rt.Chat.Messages)
		})
	})

	return r
}

// requestIDLogger tags the request logger with chi's request id.
func requestIDLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("req_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}

// NewServer binds the router to cfg.Port.
func NewServer(cfg *config.Config, handler http.Handler) *Server {
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &Server{httpServer: httpSrv}
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
