package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/models"
	"github.com/markdave123-py/docchat/internal/services"
)

type DocumentHandler struct {
	docs     *services.DocumentService
	maxBytes int64
}

func NewDocumentHandler(docs *services.DocumentService, maxUploadBytes int64) *DocumentHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 8 << 20
	}
	return &DocumentHandler{docs: docs, maxBytes: maxUploadBytes}
}

type uploadResponse struct {
	Document *models.Document     `json:"document"`
	Upload   *models.UploadResult `json:"upload"`
}

// UploadDocument handles file upload, document insert, and background processing.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	const failed = "Failed to upload document"

	// multipart framing needs a little room beyond the file itself
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+(1<<20))
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, r, fmt.Errorf("%w: file exceeds %d bytes", core.ErrBadRequest, h.maxBytes), failed)
			return
		}
		writeError(w, r, fmt.Errorf("%w: invalid multipart form", core.ErrBadRequest), failed)
		return
	}

	owner, err := resolveOwner(r, r.FormValue("ownerId"), r.FormValue("userId"))
	if err != nil {
		writeError(w, r, err, failed)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid file", core.ErrBadRequest), failed)
		return
	}
	defer file.Close()

	if header.Size > h.maxBytes {
		writeError(w, r, fmt.Errorf("%w: file exceeds %d bytes", core.ErrBadRequest, h.maxBytes), failed)
		return
	}

	cleanFilename := filepath.Base(header.Filename)
	contentType := header.Header.Get("Content-Type")
	if !isPDF(cleanFilename, contentType) {
		writeError(w, r, fmt.Errorf("%w: only PDF files are accepted", core.ErrBadRequest), failed)
		return
	}
	contentType = "application/pdf"

	uploadCtx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	doc, upload, err := h.docs.UploadAndCreate(uploadCtx, owner, cleanFilename, contentType, file, header.Size)
	if err != nil {
		writeError(w, r, err, failed)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{Document: doc, Upload: upload})
}

func isPDF(filename, contentType string) bool {
	if strings.HasPrefix(strings.ToLower(contentType), "application/pdf") {
		return true
	}
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}

type createDocumentRequest struct {
	models.UploadResult
	OwnerID string `json:"ownerId"`
	UserID  string `json:"userId"`
}

// CreateDocument registers a file uploaded elsewhere; ingestion is started through /ingest.
func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	const failed = "Failed to create document"

	var req createDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, failed)
		return
	}
	owner, err := resolveOwner(r, req.OwnerID, req.UserID)
	if err != nil {
		writeError(w, r, err, failed)
		return
	}
	doc, err := h.docs.Create(r.Context(), owner, req.UploadResult)
	if err != nil {
		writeError(w, r, err, failed)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	const failed = "Failed to list documents"

	owner, err := resolveOwner(r, r.URL.Query().Get("ownerId"))
	if err != nil {
		writeError(w, r, err, failed)
		return
	}
	docs, err := h.docs.ListByOwner(r.Context(), owner)
	if err != nil {
		writeError(w, r, err, failed)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// GetDocument handles GET /api/documents/{documentID}.
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	const failed = "Failed to load document"

	owner, err := resolveOwner(r, r.URL.Query().Get("ownerId"))
	if err != nil {
		writeError(w, r, err, failed)
		return
	}
	doc, err := h.docs.Get(r.Context(), chi.URLParam(r, "documentID"), owner)
	if err != nil {
		writeError(w, r, err, failed)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// SearchChunks handles GET /api/documents/{documentID}/search?q=.
func (h *DocumentHandler) SearchChunks(w http.ResponseWriter, r *http.Request) {
	const failed = "Failed to search document"

	owner, err := resolveOwner(r, r.URL.Query().Get("ownerId"))
	if err != nil {
		writeError(w, r, err, failed)
		return
	}
	chunks, err := h.docs.SearchChunks(r.Context(), chi.URLParam(r, "documentID"), owner, r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err, failed)
		return
	}
	writeJSON(w, http.StatusOK, chunks)
}
