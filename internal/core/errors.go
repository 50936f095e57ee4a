package core

import "errors"

// Error taxonomy shared by the pipelines. Callers wrap these with fmt.Errorf("...: %w")
// and the HTTP layer maps them with errors.Is.
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrBadRequest        = errors.New("bad request")
	ErrNotFound          = errors.New("not found")
	ErrAccessDenied      = errors.New("document not found or access denied")
	ErrNoContent         = errors.New("no document content available")
	ErrNoDocument        = errors.New("no document associated with this chat")
	ErrExtraction        = errors.New("text extraction failed")
	ErrNoTextLayer       = errors.New("document has no extractable text")
	ErrFetch             = errors.New("file fetch failed")
	ErrModel             = errors.New("language model call failed")
	ErrStorage           = errors.New("storage failure")
	ErrInvalidTransition = errors.New("invalid document status transition")
)
