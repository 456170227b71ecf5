package store

import (
	"context"
	"log/slog"

	"github.com/inkmill/sigprep/idgen"
)

// SubmissionEvent is one row of the submission audit trail.
type SubmissionEvent struct {
	EventID    string `json:"event_id"`
	DocumentID string `json:"document_id"`
	RequestID  string `json:"request_id"`
	Action     string `json:"action"`  // e.g. "send", "verify", "recover"
	Outcome    string `json:"outcome"` // confirmed, ambiguous, failed
	Details    string `json:"details"` // optional free text
	Success    bool   `json:"success"`
}

// RecordEvent appends a submission event. Non-blocking: a failing audit
// write is logged but never propagates, so audit storage problems cannot
// block a send.
func (s *Store) RecordEvent(ctx context.Context, ev SubmissionEvent) {
	if ev.EventID == "" {
		ev.EventID = idgen.Prefixed("evt_", idgen.Default)()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO submission_events (event_id, document_id, request_id, action, outcome, details, success, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		ev.EventID, ev.DocumentID, ev.RequestID, ev.Action, ev.Outcome, ev.Details, ev.Success, s.now().Unix())
	if err != nil {
		slog.Error("store: submission event write failed", "error", err, "document_id", ev.DocumentID, "action", ev.Action)
	}
}

// EventsFor returns the audit trail of a document, oldest first.
func (s *Store) EventsFor(ctx context.Context, documentID string) ([]SubmissionEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, document_id, request_id, action, outcome, details, success
		FROM submission_events WHERE document_id = ? ORDER BY created_at, event_id`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []SubmissionEvent
	for rows.Next() {
		var ev SubmissionEvent
		if err := rows.Scan(&ev.EventID, &ev.DocumentID, &ev.RequestID, &ev.Action, &ev.Outcome, &ev.Details, &ev.Success); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
