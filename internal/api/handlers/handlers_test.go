package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	middleware "github.com/markdave123-py/docchat/internal/api/middlewares"
	"github.com/markdave123-py/docchat/internal/core"
	db "github.com/markdave123-py/docchat/internal/core/database"
	"github.com/markdave123-py/docchat/internal/core/ingestion_engine"
	"github.com/markdave123-py/docchat/internal/core/retrieval"
	"github.com/markdave123-py/docchat/internal/models"
	"github.com/markdave123-py/docchat/internal/services"
)

type fakeIngestor struct {
	mu         sync.Mutex
	chatID     string
	err        error
	enqueueErr error
	calls      []ingestion_engine.Job
	queued     []ingestion_engine.Job
}

func (f *fakeIngestor) ProcessDocument(ctx context.Context, documentID, fileURL, ownerID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ingestion_engine.Job{DocumentID: documentID, FileURL: fileURL, OwnerID: ownerID})
	return f.chatID, f.err
}

func (f *fakeIngestor) Enqueue(ctx context.Context, job ingestion_engine.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.queued = append(f.queued, job)
	return nil
}

type fakeAnswerer struct {
	reply string
	err   error
	owner string
}

func (f *fakeAnswerer) Answer(ctx context.Context, chatID, ownerID, question string) (string, error) {
	f.owner = ownerID
	return f.reply, f.err
}

func (f *fakeAnswerer) History(ctx context.Context, chatID, ownerID string) ([]models.ChatMessage, error) {
	if chatID != "chat-1" || ownerID != "u1" {
		return nil, core.ErrNotFound
	}
	return []models.ChatMessage{{ID: "m1", Role: models.RoleUser, Content: "hi"}}, nil
}

func (f *fakeAnswerer) Chats(ctx context.Context, ownerID string) ([]models.Chat, error) {
	return []models.Chat{{ID: "chat-1", OwnerID: ownerID}}, nil
}

func (f *fakeAnswerer) Chat(ctx context.Context, chatID, ownerID string) (*models.Chat, error) {
	if chatID != "chat-1" || ownerID != "u1" {
		return nil, core.ErrNotFound
	}
	return &models.Chat{ID: "chat-1", OwnerID: "u1", DocumentID: "doc-1"}, nil
}

type fakeStorage struct {
	uploaded map[string][]byte
	deleted  []string
	failGet  bool
}

func (s *fakeStorage) UploadFile(ctx context.Context, key string, data io.Reader, contentType string) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	if s.uploaded == nil {
		s.uploaded = map[string][]byte{}
	}
	s.uploaded[key] = b
	return "https://bucket.s3.us-east-2.amazonaws.com/" + key, nil
}
func (s *fakeStorage) DeleteFile(ctx context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	delete(s.uploaded, key)
	return nil
}
func (s *fakeStorage) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	return nil, fmt.Errorf("not used")
}
func (s *fakeStorage) Owns(url string) (string, string, bool) { return "", "", false }

func do(t *testing.T, h http.Handler, method, target, body string, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func signToken(t *testing.T, secret, userID string) string {
	t.Helper()
	claims := jwt.MapClaims{"user_id": userID, "exp": time.Now().Add(time.Hour).Unix()}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestIngest_Success(t *testing.T) {
	ing := &fakeIngestor{chatID: "chat-9"}
	h := http.HandlerFunc(NewIngestHandler(ing).Ingest)

	rec := do(t, h, http.MethodPost, "/ingest", `{"fileUrl":"https://x/a.pdf","documentId":"doc-1","ownerId":"u1"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[ingestResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "chat-9", resp.ChatID)
	require.Len(t, ing.calls, 1)
	assert.Equal(t, ingestion_engine.Job{DocumentID: "doc-1", FileURL: "https://x/a.pdf", OwnerID: "u1"}, ing.calls[0])
}

func TestIngest_AcceptsUserIDAlias(t *testing.T) {
	ing := &fakeIngestor{chatID: "c"}
	rec := do(t, http.HandlerFunc(NewIngestHandler(ing).Ingest), http.MethodPost, "/ingest",
		`{"fileUrl":"https://x/a.pdf","documentId":"doc-1","userId":"u7"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u7", ing.calls[0].OwnerID)
}

func TestIngest_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"no owner", `{"fileUrl":"u","documentId":"d"}`, nil, http.StatusUnauthorized, "Unauthorized"},
		{"missing url", `{"documentId":"d","ownerId":"u1"}`, nil, http.StatusBadRequest, "missing fileUrl or documentId"},
		{"bad json", `{`, nil, http.StatusBadRequest, "invalid JSON body"},
		{"unknown document", `{"fileUrl":"u","documentId":"d","ownerId":"u1"}`, core.ErrNotFound, http.StatusNotFound, "Not found or access denied"},
		{"already ingested", `{"fileUrl":"u","documentId":"d","ownerId":"u1"}`, fmt.Errorf("%w: document d is completed", core.ErrInvalidTransition), http.StatusConflict, "completed"},
		{"fetch failure", `{"fileUrl":"u","documentId":"d","ownerId":"u1"}`, fmt.Errorf("%w: failed to fetch PDF: 404", core.ErrFetch), http.StatusInternalServerError, "Failed to process document"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing := &fakeIngestor{err: tt.err}
			rec := do(t, http.HandlerFunc(NewIngestHandler(ing).Ingest), http.MethodPost, "/ingest", tt.body, "")
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, decode[errorResponse](t, rec).Error, tt.wantMsg)
		})
	}
}

func TestAnswer(t *testing.T) {
	ans := &fakeAnswerer{reply: "Revenue was $5M."}
	rec := do(t, http.HandlerFunc(NewChatHandler(ans).Answer), http.MethodPost, "/answer",
		`{"chatId":"chat-1","message":"What was revenue?","ownerId":"u1"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[answerResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "Revenue was $5M.", resp.Response)
	assert.Equal(t, "u1", ans.owner)
}

func TestAnswer_ErrorMapping(t *testing.T) {
	tests := []struct {
		err      error
		wantCode int
		wantMsg  string
	}{
		{core.ErrNoDocument, http.StatusBadRequest, "No document associated with this chat"},
		{core.ErrNoContent, http.StatusBadRequest, "No document content available"},
		{core.ErrNotFound, http.StatusNotFound, "access denied"},
		{core.ErrAccessDenied, http.StatusNotFound, "Document not found or access denied"},
		{fmt.Errorf("%w: boom", core.ErrModel), http.StatusInternalServerError, "Failed to process chat message"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			h := http.HandlerFunc(NewChatHandler(&fakeAnswerer{err: tt.err}).Answer)
			rec := do(t, h, http.MethodPost, "/answer", `{"chatId":"c","message":"q","ownerId":"u1"}`, "")
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, decode[errorResponse](t, rec).Error, tt.wantMsg)
		})
	}
}

func TestAnswer_WithJWT(t *testing.T) {
	const secret = "test-secret"
	ans := &fakeAnswerer{reply: "ok"}
	h := middleware.JWTMiddleware(secret)(http.HandlerFunc(NewChatHandler(ans).Answer))

	// token supplies the owner
	rec := do(t, h, http.MethodPost, "/answer", `{"chatId":"c","message":"q"}`, signToken(t, secret, "u1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", ans.owner)

	// body owner must match the token
	rec = do(t, h, http.MethodPost, "/answer", `{"chatId":"c","message":"q","ownerId":"u2"}`, signToken(t, secret, "u1"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// missing and forged tokens
	rec = do(t, h, http.MethodPost, "/answer", `{"chatId":"c","message":"q","ownerId":"u1"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = do(t, h, http.MethodPost, "/answer", `{"chatId":"c","message":"q"}`, signToken(t, "other-secret", "u1"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChatReads(t *testing.T) {
	r := chi.NewRouter()
	ch := NewChatHandler(&fakeAnswerer{})
	r.Get("/api/chats", ch.ListChats)
	r.Get("/api/chats/{chatID}", ch.GetChat)
	r.Get("/api/chats/{chatID}/messages", ch.Messages)

	rec := do(t, r, http.MethodGet, "/api/chats/chat-1/messages?ownerId=u1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.ChatMessage](t, rec), 1)

	rec = do(t, r, http.MethodGet, "/api/chats/chat-1/messages?ownerId=u2", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, r, http.MethodGet, "/api/chats", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, r, http.MethodGet, "/api/chats?ownerId=u1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "chat-1", decode[[]models.Chat](t, rec)[0].ID)

	rec = do(t, r, http.MethodGet, "/api/chats/chat-1?ownerId=u1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "doc-1", decode[models.Chat](t, rec).DocumentID)

	rec = do(t, r, http.MethodGet, "/api/chats/chat-1?ownerId=u2", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, r, http.MethodGet, "/api/chats/chat-1", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func newDocumentRouter(t *testing.T) (http.Handler, *db.MemoryClient, *fakeStorage, *fakeIngestor) {
	t.Helper()
	store := db.NewMemoryClient()
	storage := &fakeStorage{}
	ing := &fakeIngestor{}
	svc := services.NewDocumentService(store, storage, ing, retrieval.NewAssembler(store, nil))
	h := NewDocumentHandler(svc, 1024)

	r := chi.NewRouter()
	r.Post("/api/documents/upload", h.UploadDocument)
	r.Post("/api/documents", h.CreateDocument)
	r.Get("/api/documents", h.GetDocuments)
	r.Get("/api/documents/{documentID}", h.GetDocument)
	r.Get("/api/documents/{documentID}/search", h.SearchChunks)
	return r, store, storage, ing
}

func multipartBody(t *testing.T, owner, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if owner != "" {
		require.NoError(t, mw.WriteField("ownerId", owner))
	}
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func upload(t *testing.T, h http.Handler, owner, filename, contentType string, content []byte) *httptest.ResponseRecorder {
	body, ct := multipartBody(t, owner, filename, contentType, content)
	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestUploadDocument(t *testing.T) {
	h, store, storage, ing := newDocumentRouter(t)

	rec := upload(t, h, "u1", "Quarterly Report.pdf", "application/pdf", []byte("%PDF-1.4 tiny"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[uploadResponse](t, rec)
	require.NotNil(t, resp.Document)
	assert.Equal(t, "Quarterly Report", resp.Document.Title)
	assert.Equal(t, models.StatusUploading, resp.Document.Status)
	assert.Equal(t, int64(len("%PDF-1.4 tiny")), resp.Upload.FileSize)
	assert.Equal(t, "application/pdf", resp.Upload.MimeType)
	assert.Contains(t, resp.Upload.FileURL, "Quarterly_Report.pdf")
	assert.Len(t, storage.uploaded, 1)

	stored, err := store.GetDocumentByID(context.Background(), resp.Document.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)

	require.Len(t, ing.queued, 1)
	assert.Equal(t, resp.Document.ID, ing.queued[0].DocumentID)
	assert.Equal(t, "u1", ing.queued[0].OwnerID)
}

func TestUploadDocument_QueueUnavailable(t *testing.T) {
	h, store, storage, ing := newDocumentRouter(t)
	ing.enqueueErr = context.DeadlineExceeded

	rec := upload(t, h, "u1", "report.pdf", "application/pdf", []byte("%PDF-1.4 tiny"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	require.Len(t, storage.deleted, 1)
	assert.Contains(t, storage.deleted[0], "report.pdf")
	assert.Empty(t, storage.uploaded)

	docs, err := store.ListDocumentsByOwner(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, models.StatusError, docs[0].Status)
	assert.Contains(t, docs[0].ErrorMessage, "ingestion not queued")
	assert.Nil(t, docs[0].ProcessedAt)
}

func TestUploadDocument_Rejections(t *testing.T) {
	h, _, storage, ing := newDocumentRouter(t)

	rec := upload(t, h, "u1", "notes.txt", "text/plain", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = upload(t, h, "u1", "big.pdf", "application/pdf", bytes.Repeat([]byte("x"), 4096))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = upload(t, h, "", "a.pdf", "application/pdf", []byte("%PDF"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Empty(t, storage.uploaded)
	assert.Empty(t, ing.queued)
}

func TestCreateListAndSearchDocuments(t *testing.T) {
	h, store, _, _ := newDocumentRouter(t)

	rec := do(t, h, http.MethodPost, "/api/documents",
		`{"fileUrl":"https://files.example.com/r.pdf","fileName":"r.pdf","fileSize":10,"mimeType":"application/pdf","ownerId":"u1"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	doc := decode[models.Document](t, rec)
	assert.Equal(t, "r", doc.Title)

	rec = do(t, h, http.MethodPost, "/api/documents", `{"fileName":"r.pdf","ownerId":"u1"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/documents?ownerId=u1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Document](t, rec), 1)

	rec = do(t, h, http.MethodGet, "/api/documents/"+doc.ID+"?ownerId=u1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[models.Document](t, rec)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, models.StatusUploading, got.Status)

	rec = do(t, h, http.MethodGet, "/api/documents/"+doc.ID+"?ownerId=u2", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/documents/missing?ownerId=u1", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, store.InsertDocumentChunks(context.Background(), []models.DocumentChunk{
		{ID: "c0", DocumentID: doc.ID, ChunkIndex: 0, Content: "Revenue grew"},
		{ID: "c1", DocumentID: doc.ID, ChunkIndex: 1, Content: "Costs fell"},
	}))

	rec = do(t, h, http.MethodGet, "/api/documents/"+doc.ID+"/search?q=revenue&ownerId=u1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	hits := decode[[]models.DocumentChunk](t, rec)
	require.Len(t, hits, 1)
	assert.Equal(t, "c0", hits[0].ID)

	rec = do(t, h, http.MethodGet, "/api/documents/"+doc.ID+"/search?q=revenue&ownerId=u2", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := map[error]int{
		core.ErrUnauthorized:      http.StatusUnauthorized,
		core.ErrBadRequest:        http.StatusBadRequest,
		core.ErrNoContent:         http.StatusBadRequest,
		core.ErrNoDocument:        http.StatusBadRequest,
		core.ErrNotFound:          http.StatusNotFound,
		core.ErrAccessDenied:      http.StatusNotFound,
		core.ErrInvalidTransition: http.StatusConflict,
		core.ErrModel:             http.StatusInternalServerError,
		core.ErrStorage:           http.StatusInternalServerError,
		core.ErrFetch:             http.StatusInternalServerError,
		core.ErrExtraction:        http.StatusInternalServerError,
	}
	for err, want := range tests {
		assert.Equal(t, want, StatusFor(fmt.Errorf("wrapped: %w", err)), err.Error())
	}
}
