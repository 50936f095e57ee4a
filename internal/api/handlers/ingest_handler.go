package handlers

import (
	"fmt"
	"net/http"

	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/core/ingestion_engine"
)

type IngestHandler struct {
	ingestor ingestion_engine.Ingestor
}

func NewIngestHandler(ing ingestion_engine.Ingestor) *IngestHandler {
	return &IngestHandler{ingestor: ing}
}

type ingestRequest struct {
	FileURL    string `json:"fileUrl"`
	DocumentID string `json:"documentId"`
	OwnerID    string `json:"ownerId"`
	UserID     string `json:"userId"`
}

type ingestResponse struct {
	Success bool   `json:"success"`
	ChatID  string `json:"chatId"`
}

// Ingest runs the ingestion pipeline synchronously and returns the new chat id.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	const failed = "Failed to process document"

	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, failed)
		return
	}
	owner, err := resolveOwner(r, req.OwnerID, req.UserID)
	if err != nil {
		writeError(w, r, err, failed)
		return
	}
	if req.FileURL == "" || req.DocumentID == "" {
		writeError(w, r, fmt.Errorf("%w: missing fileUrl or documentId", core.ErrBadRequest), failed)
		return
	}

	chatID, err := h.ingestor.ProcessDocument(r.Context(), req.DocumentID, req.FileURL, owner)
	if err != nil {
		writeError(w, r, err, failed)
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{Success: true, ChatID: chatID})
}
