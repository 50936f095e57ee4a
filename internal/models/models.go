package models

import (
	"strings"
	"time"
)

// DocumentStatus tracks where a document is in the ingestion lifecycle.
type DocumentStatus string

const (
	StatusUploading  DocumentStatus = "uploading"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusError      DocumentStatus = "error"
)

// ParseDocumentStatus maps a stored value back to a DocumentStatus.
func ParseDocumentStatus(s string) (DocumentStatus, bool) {
	switch st := DocumentStatus(s); st {
	case StatusUploading, StatusProcessing, StatusCompleted, StatusError:
		return st, true
	}
	return "", false
}

// CanTransitionTo reports whether moving from s to next keeps the status moving forward:
// uploading -> processing -> completed | error.
func (s DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	switch s {
	case StatusUploading:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusError
	case StatusCompleted, StatusError:
		return false
	}
	return false
}

// Previous returns the status a document must hold to move to s.
// Uploading has no predecessor.
func (s DocumentStatus) Previous() (DocumentStatus, bool) {
	switch s {
	case StatusProcessing:
		return StatusUploading, true
	case StatusCompleted, StatusError:
		return StatusProcessing, true
	}
	return "", false
}

// Terminal reports whether no further transition is possible.
func (s DocumentStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError:
		return true
	case StatusUploading, StatusProcessing:
		return false
	}
	return false
}

// MessageRole is the author of a chat message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// LineRange is the inclusive line span covered by extracted text.
type LineRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// DocumentMetadata is filled in once ingestion completes.
type DocumentMetadata struct {
	TokenCount int        `json:"token_count,omitempty"`
	PageCount  int        `json:"page_count,omitempty"`
	Lines      *LineRange `json:"lines,omitempty"`
}

// Document represents one uploaded PDF.
type Document struct {
	ID           string            `db:"id" json:"id"`
	Title        string            `db:"title" json:"title"`
	FileName     string            `db:"file_name" json:"file_name"`
	FileURL      string            `db:"file_url" json:"file_url"` // S3 URL or any fetchable link
	FileSize     int64             `db:"file_size" json:"file_size"`
	MimeType     string            `db:"mime_type" json:"mime_type"`
	OwnerID      string            `db:"owner_id" json:"owner_id"`
	Status       DocumentStatus    `db:"status" json:"status"`
	ErrorMessage string            `db:"error_message" json:"error_message,omitempty"`
	UploadedAt   time.Time         `db:"uploaded_at" json:"uploaded_at"`
	ProcessedAt  *time.Time        `db:"processed_at" json:"processed_at,omitempty"`
	Metadata     *DocumentMetadata `db:"metadata" json:"metadata,omitempty"`
}

// TitleFromFileName derives a display title the way the upload flow does: the file name without ".pdf".
func TitleFromFileName(fileName string) string {
	title := strings.TrimSpace(fileName)
	if strings.HasSuffix(strings.ToLower(title), ".pdf") {
		title = title[:len(title)-len(".pdf")]
	}
	return title
}

// DocumentUpdate carries the fields written on a status change.
type DocumentUpdate struct {
	Status       DocumentStatus
	ErrorMessage string
	ProcessedAt  *time.Time
	Metadata     *DocumentMetadata
}

// ChunkMetadata holds positional information about a chunk.
type ChunkMetadata struct {
	PageNumber     int `json:"page_number,omitempty"`
	StartCharIndex int `json:"start_char_index"`
	EndCharIndex   int `json:"end_char_index"`
	TokenCount     int `json:"token_count"`
}

// DocumentChunk represents one text chunk from a document.
type DocumentChunk struct {
	ID         string        `db:"id" json:"id"`
	DocumentID string        `db:"document_id" json:"document_id"`
	Content    string        `db:"content" json:"content"`
	ChunkIndex int           `db:"chunk_index" json:"chunk_index"`
	Metadata   ChunkMetadata `db:"metadata" json:"metadata"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
}

// Chat is a conversation bound to one document and one owner.
type Chat struct {
	ID           string    `db:"id" json:"id"`
	Title        string    `db:"title" json:"title"`
	OwnerID      string    `db:"owner_id" json:"owner_id"`
	DocumentID   string    `db:"document_id" json:"document_id,omitempty"` // empty when unbound
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
	MessageCount int       `db:"message_count" json:"message_count"`
}

// ChatMessage represents an individual chat message (user or assistant).
type ChatMessage struct {
	ID        string      `db:"id" json:"id"`
	ChatID    string      `db:"chat_id" json:"chat_id"`
	Content   string      `db:"content" json:"content"`
	Role      MessageRole `db:"role" json:"role"`
	OwnerID   string      `db:"owner_id" json:"owner_id"`
	Sources   []string    `db:"sources" json:"sources,omitempty"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}

// Extraction is the text pulled out of a document, one entry per page.
type Extraction struct {
	Pages []string
}

// PageSeparator joins page texts into one string.
const PageSeparator = "\n\n"

// Text concatenates the non-blank pages in order.
func (e *Extraction) Text() string {
	if e == nil {
		return ""
	}
	kept := make([]string, 0, len(e.Pages))
	for _, p := range e.Pages {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, PageSeparator)
}

// PageAt returns the 1-based page number that contains rune offset off of Text().
// It returns 0 when the extraction has no text.
func (e *Extraction) PageAt(off int) int {
	if e == nil {
		return 0
	}
	page, start := 0, 0
	sep := len([]rune(PageSeparator))
	for i, p := range e.Pages {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if page != 0 && off < start {
			break
		}
		page = i + 1
		start += len([]rune(p)) + sep
	}
	return page
}

// UploadResult is what the upload collaborator hands back for a stored file.
type UploadResult struct {
	FileURL  string `json:"fileUrl"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
}
