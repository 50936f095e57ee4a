package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"

	"github.com/markdave123-py/docchat/internal/core"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor maps the error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrBadRequest), errors.Is(err, core.ErrNoContent), errors.Is(err, core.ErrNoDocument):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrAccessDenied):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(err error, internal string) string {
	switch {
	case errors.Is(err, core.ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, core.ErrNoContent):
		return "No document content available. Please ensure your PDF was processed successfully."
	case errors.Is(err, core.ErrNoDocument):
		return "No document associated with this chat"
	case errors.Is(err, core.ErrAccessDenied):
		return "Document not found or access denied"
	case errors.Is(err, core.ErrNotFound):
		return "Not found or access denied"
	case errors.Is(err, core.ErrBadRequest):
		return strings.TrimPrefix(err.Error(), core.ErrBadRequest.Error()+": ")
	case errors.Is(err, core.ErrInvalidTransition):
		return err.Error()
	default:
		return internal
	}
}

// writeError logs err and answers with {error}; internal is shown for 5xx instead of the cause.
func writeError(w http.ResponseWriter, r *http.Request, err error, internal string) {
	status := StatusFor(err)
	ev := hlog.FromRequest(r).Warn()
	if status >= http.StatusInternalServerError {
		ev = hlog.FromRequest(r).Error()
	}
	ev.Err(err).Int("status", status).Msg("request failed")
	writeJSON(w, status, errorResponse{Error: publicMessage(err, internal)})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body", core.ErrBadRequest)
	}
	return nil
}
