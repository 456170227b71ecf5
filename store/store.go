// Package store persists document records and their submission audit trail
// in SQLite.
//
// A document record carries the pipeline status, the ordered recipient
// list, and a free-form metadata map used by the submission layer for
// provider identifiers and recovery flags. Recipients and metadata are
// stored as JSON columns; the schema is applied on Open.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/inkmill/sigprep/idgen"
)

// Status enumerates the document lifecycle states the pipeline cares about.
type Status string

const (
	StatusProcessed         Status = "processed"
	StatusReadyForSignature Status = "ready_for_signature"
	StatusSentForSignature  Status = "sent_for_signature"
)

// Metadata keys written by the submission layer.
const (
	MetaAgreementID    = "provider_agreement_id"
	MetaSendRequestID  = "send_request_id"
	MetaSendUnverified = "send_unverified" // "true" when confirmation was presumed, not verified
)

// Recipient is one signer on a document, in signing order.
type Recipient struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Order int    `json:"order,omitempty"`
}

// Document is one persisted document record.
type Document struct {
	ID         string            `json:"document_id"`
	Name       string            `json:"name"`
	Path       string            `json:"path"`
	Status     Status            `json:"status"`
	Recipients []Recipient       `json:"recipients"`
	Metadata   map[string]string `json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	document_id TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	path        TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'processed',
	recipients  TEXT NOT NULL DEFAULT '[]',
	metadata    TEXT NOT NULL DEFAULT '{}',
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS submission_events (
	event_id    TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	request_id  TEXT NOT NULL DEFAULT '',
	action      TEXT NOT NULL,
	outcome     TEXT NOT NULL DEFAULT '',
	details     TEXT NOT NULL DEFAULT '',
	success     INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_submission_events_document
	ON submission_events(document_id, created_at);
`

// Store wraps the documents database.
type Store struct {
	db    *sql.DB
	newID idgen.Generator
	now   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator sets a custom ID generator for document IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(s *Store) { s.newID = gen }
}

// WithClock sets a custom clock (for testing).
func WithClock(fn func() time.Time) Option {
	return func(s *Store) { s.now = fn }
}

// New wraps an already-open database. Most callers want Open instead.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:    db,
		newID: idgen.Prefixed("doc_", idgen.Default),
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateDocument inserts a new record in status processed and returns it.
func (s *Store) CreateDocument(ctx context.Context, name, path string, recipients []Recipient) (*Document, error) {
	doc := &Document{
		ID:         s.newID(),
		Name:       name,
		Path:       path,
		Status:     StatusProcessed,
		Recipients: recipients,
		Metadata:   map[string]string{},
		CreatedAt:  s.now().UTC(),
		UpdatedAt:  s.now().UTC(),
	}
	recJSON, err := json.Marshal(doc.Recipients)
	if err != nil {
		return nil, fmt.Errorf("store: marshal recipients: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (document_id, name, path, status, recipients, metadata, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		doc.ID, doc.Name, doc.Path, doc.Status, string(recJSON), "{}",
		doc.CreatedAt.Unix(), doc.UpdatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("store: insert document: %w", err)
	}
	return doc, nil
}

// GetDocument loads a record by ID. Returns (nil, nil) when absent.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT document_id, name, path, status, recipients, metadata, created_at, updated_at
		FROM documents WHERE document_id = ?`, id)

	var doc Document
	var recJSON, metaJSON string
	var created, updated int64
	err := row.Scan(&doc.ID, &doc.Name, &doc.Path, &doc.Status, &recJSON, &metaJSON, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get document %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(recJSON), &doc.Recipients); err != nil {
		return nil, fmt.Errorf("store: decode recipients: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &doc.Metadata); err != nil {
		return nil, fmt.Errorf("store: decode metadata: %w", err)
	}
	doc.CreatedAt = time.Unix(created, 0).UTC()
	doc.UpdatedAt = time.Unix(updated, 0).UTC()
	return &doc, nil
}

// UpdateStatus moves a document to a new lifecycle status.
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, updated_at = ? WHERE document_id = ?`,
		status, s.now().Unix(), id)
	if err != nil {
		return fmt.Errorf("store: update status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: document %s not found", id)
	}
	return nil
}

// SetRecipients replaces the recipient list of a document.
func (s *Store) SetRecipients(ctx context.Context, id string, recipients []Recipient) error {
	recJSON, err := json.Marshal(recipients)
	if err != nil {
		return fmt.Errorf("store: marshal recipients: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET recipients = ?, updated_at = ? WHERE document_id = ?`,
		string(recJSON), s.now().Unix(), id)
	if err != nil {
		return fmt.Errorf("store: set recipients: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: document %s not found", id)
	}
	return nil
}

// MergeMetadata merges the given keys into the document's metadata map.
// Existing keys not named in values are preserved.
func (s *Store) MergeMetadata(ctx context.Context, id string, values map[string]string) error {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("store: document %s not found", id)
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]string{}
	}
	for k, v := range values {
		doc.Metadata[k] = v
	}
	metaJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("store: marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE documents SET metadata = ?, updated_at = ? WHERE document_id = ?`,
		string(metaJSON), s.now().Unix(), id)
	if err != nil {
		return fmt.Errorf("store: merge metadata: %w", err)
	}
	return nil
}
