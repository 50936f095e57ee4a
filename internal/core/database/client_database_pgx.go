package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/markdave123-py/docchat/internal/config"
	"github.com/markdave123-py/docchat/internal/core"
	"github.com/markdave123-py/docchat/internal/models"
)

var _ core.DbClient = (*DatabaseClient)(nil)

type DatabaseClient struct {
	db *sql.DB
}

// NewDatabaseClient opens a pgx-backed pool, pings it and applies the bootstrap schema once.
func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn, err := withSSL(cfg.DatabaseURL, cfg.SslCertPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	log.Info().Bool("ssl", cfg.SslCertPath != "").Msg("database connected and bootstrapped")
	return &DatabaseClient{db: db}, nil
}

// NewDatabaseClientFromDB wraps an already opened pool. Used by tests.
func NewDatabaseClientFromDB(db *sql.DB) *DatabaseClient {
	return &DatabaseClient{db: db}
}

// withSSL appends verify-ca parameters when a root certificate is configured.
func withSSL(databaseURL, certPath string) (string, error) {
	if certPath == "" {
		return databaseURL, nil
	}
	if _, err := os.Stat(certPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", certPath, err)
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", certPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", core.ErrStorage, op, err)
}

// Documents

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	meta, err := marshalMeta(doc.Metadata)
	if err != nil {
		return storageErr("create document", err)
	}
	const q = `
		INSERT INTO documents
			(id, title, file_name, file_url, file_size, mime_type, owner_id, status, error_message, uploaded_at, processed_at, metadata)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11, $12)
	`
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	_, err = c.db.ExecContext(ctx, q,
		doc.ID, doc.Title, doc.FileName, doc.FileURL, doc.FileSize, doc.MimeType, doc.OwnerID,
		string(doc.Status), doc.ErrorMessage, doc.UploadedAt, doc.ProcessedAt, meta)
	if err != nil {
		return storageErr("create document", err)
	}
	return nil
}

const documentColumns = `id, title, file_name, file_url, file_size, mime_type, owner_id, status,
		COALESCE(error_message, ''), uploaded_at, processed_at, metadata`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		d         models.Document
		status    string
		processed sql.NullTime
		meta      []byte
	)
	if err := row.Scan(
		&d.ID, &d.Title, &d.FileName, &d.FileURL, &d.FileSize, &d.MimeType, &d.OwnerID, &status,
		&d.ErrorMessage, &d.UploadedAt, &processed, &meta,
	); err != nil {
		return nil, err
	}
	st, ok := models.ParseDocumentStatus(status)
	if !ok {
		return nil, fmt.Errorf("unknown document status %q", status)
	}
	d.Status = st
	if processed.Valid {
		t := processed.Time
		d.ProcessedAt = &t
	}
	if len(meta) > 0 {
		var m models.DocumentMetadata
		if err := json.Unmarshal(meta, &m); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		d.Metadata = &m
	}
	return &d, nil
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	d, err := scanDocument(c.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get document", err)
	}
	return d, nil
}

func (c *DatabaseClient) ListDocumentsByOwner(ctx context.Context, ownerID string) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE owner_id = $1 ORDER BY uploaded_at DESC`
	rows, err := c.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, storageErr("list documents", err)
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, storageErr("list documents", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list documents", err)
	}
	return out, nil
}

func (c *DatabaseClient) UpdateDocument(ctx context.Context, id string, upd models.DocumentUpdate) error {
	meta, err := marshalMeta(upd.Metadata)
	if err != nil {
		return storageErr("update document", err)
	}
	from, ok := upd.Status.Previous()
	if !ok {
		return fmt.Errorf("%w: documents cannot move to %s", core.ErrInvalidTransition, upd.Status)
	}
	const q = `
		UPDATE documents
		SET status = $2,
		    error_message = NULLIF($3, ''),
		    processed_at = COALESCE($4, processed_at),
		    metadata = COALESCE($5, metadata)
		WHERE id = $1 AND status = $6
	`
	res, err := c.db.ExecContext(ctx, q, id, string(upd.Status), upd.ErrorMessage, upd.ProcessedAt, meta, string(from))
	if err != nil {
		return storageErr("update document", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("update document", err)
	}
	if n == 0 {
		return c.transitionErr(ctx, id, upd.Status)
	}
	return nil
}

// transitionErr explains why a conditional status update matched no row.
func (c *DatabaseClient) transitionErr(ctx context.Context, id string, next models.DocumentStatus) error {
	var current string
	err := c.db.QueryRowContext(ctx, `SELECT status FROM documents WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("document not found: %s", id)
	}
	if err != nil {
		return storageErr("update document", err)
	}
	return fmt.Errorf("%w: document %s is %s, not moving to %s", core.ErrInvalidTransition, id, current, next)
}

// marshalMeta returns an untyped nil for a missing value so COALESCE keeps the stored metadata.
func marshalMeta(m *models.DocumentMetadata) (any, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Chunks

// InsertDocumentChunks inserts chunks in a single transaction.
func (c *DatabaseClient) InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return storageErr("insert chunks", err)
	}

	const q = `
		INSERT INTO document_chunks
			(id, document_id, chunk_index, content, page_number, start_char, end_char, token_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return storageErr("insert chunks", err)
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		if ch.CreatedAt.IsZero() {
			ch.CreatedAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.ChunkIndex, ch.Content, ch.Metadata.PageNumber,
			ch.Metadata.StartCharIndex, ch.Metadata.EndCharIndex, ch.Metadata.TokenCount, ch.CreatedAt,
		); err != nil {
			_ = tx.Rollback()
			return storageErr("insert chunks", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr("insert chunks", err)
	}
	return nil
}

func (c *DatabaseClient) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	const q = `
		SELECT id, document_id, chunk_index, content, page_number, start_char, end_char, token_count, created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, storageErr("get chunks", err)
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var ch models.DocumentChunk
		if err := rows.Scan(
			&ch.ID, &ch.DocumentID, &ch.ChunkIndex, &ch.Content, &ch.Metadata.PageNumber,
			&ch.Metadata.StartCharIndex, &ch.Metadata.EndCharIndex, &ch.Metadata.TokenCount, &ch.CreatedAt,
		); err != nil {
			return nil, storageErr("get chunks", err)
		}
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("get chunks", err)
	}
	return out, nil
}

// Chats

func (c *DatabaseClient) CreateChat(ctx context.Context, chat *models.Chat) error {
	if chat == nil {
		return errors.New("nil chat")
	}
	const q = `
		INSERT INTO chats (id, title, owner_id, document_id, created_at, updated_at, message_count)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)
	`
	_, err := c.db.ExecContext(ctx, q,
		chat.ID, chat.Title, chat.OwnerID, chat.DocumentID, chat.CreatedAt, chat.UpdatedAt, chat.MessageCount)
	if err != nil {
		return storageErr("create chat", err)
	}
	return nil
}

const chatColumns = `id, title, owner_id, COALESCE(document_id, ''), created_at, updated_at, message_count`

func scanChat(row rowScanner) (*models.Chat, error) {
	var ch models.Chat
	if err := row.Scan(&ch.ID, &ch.Title, &ch.OwnerID, &ch.DocumentID, &ch.CreatedAt, &ch.UpdatedAt, &ch.MessageCount); err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *DatabaseClient) GetChatByID(ctx context.Context, id string) (*models.Chat, error) {
	q := `SELECT ` + chatColumns + ` FROM chats WHERE id = $1`
	ch, err := scanChat(c.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get chat", err)
	}
	return ch, nil
}

func (c *DatabaseClient) ListChatsByOwner(ctx context.Context, ownerID string) ([]models.Chat, error) {
	q := `SELECT ` + chatColumns + ` FROM chats WHERE owner_id = $1 ORDER BY updated_at DESC`
	rows, err := c.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, storageErr("list chats", err)
	}
	defer rows.Close()

	var out []models.Chat
	for rows.Next() {
		ch, err := scanChat(rows)
		if err != nil {
			return nil, storageErr("list chats", err)
		}
		out = append(out, *ch)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list chats", err)
	}
	return out, nil
}

// Messages

// AppendExchange writes both messages and bumps the counter in one transaction;
// the increment happens in SQL so concurrent exchanges do not lose updates.
func (c *DatabaseClient) AppendExchange(ctx context.Context, chatID string, user, assistant *models.ChatMessage) error {
	if user == nil || assistant == nil {
		return errors.New("nil message")
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return storageErr("append exchange", err)
	}

	const insertMsg = `
		INSERT INTO messages (id, chat_id, content, role, owner_id, sources, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, m := range []*models.ChatMessage{user, assistant} {
		if _, err := tx.ExecContext(ctx, insertMsg,
			m.ID, chatID, m.Content, string(m.Role), m.OwnerID, pq.Array(m.Sources), m.CreatedAt,
		); err != nil {
			_ = tx.Rollback()
			return storageErr("append exchange", err)
		}
	}

	const bump = `UPDATE chats SET message_count = message_count + 2, updated_at = $2 WHERE id = $1`
	res, err := tx.ExecContext(ctx, bump, chatID, assistant.CreatedAt)
	if err != nil {
		_ = tx.Rollback()
		return storageErr("append exchange", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return storageErr("append exchange", fmt.Errorf("chat not found: %s", chatID))
	}
	if err := tx.Commit(); err != nil {
		return storageErr("append exchange", err)
	}
	return nil
}

func (c *DatabaseClient) GetMessagesByChat(ctx context.Context, chatID string) ([]models.ChatMessage, error) {
	const q = `
		SELECT id, chat_id, content, role, owner_id, sources, created_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at ASC, seq ASC
	`
	rows, err := c.db.QueryContext(ctx, q, chatID)
	if err != nil {
		return nil, storageErr("get messages", err)
	}
	defer rows.Close()

	var out []models.ChatMessage
	for rows.Next() {
		var (
			m    models.ChatMessage
			role string
		)
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Content, &role, &m.OwnerID, pq.Array(&m.Sources), &m.CreatedAt); err != nil {
			return nil, storageErr("get messages", err)
		}
		m.Role = models.MessageRole(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("get messages", err)
	}
	return out, nil
}
