// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/aegis/internal/store"
	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
)

// Compile-time interface checks.
var (
	_ store.GatewayStore  = (*GatewayStore)(nil)
	_ store.AuditStore    = (*auditStore)(nil)
	_ store.FeedbackStore = (*feedbackStore)(nil)
)

// defaultQueryLimit caps queries that do not set a limit.
const defaultQueryLimit = 1000

// GatewayStore implements store.GatewayStore backed by a single SQLite database.
type GatewayStore struct {
	db       *sql.DB
	audit    *auditStore
	feedback *feedbackStore
}

// NewGatewayStore opens (or creates) a SQLite database at dbPath and
// initialises the audit_log and feedback tables.
func NewGatewayStore(dbPath string) (*GatewayStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, aegiserr.Errorf(aegiserr.CodeStoreDatabaseFailure, "opening gateway db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, aegiserr.Errorf(aegiserr.CodeStoreDatabaseFailure, "pinging gateway db: %w", err)
	}

	if err := migrateGateway(db); err != nil {
		_ = db.Close()
		return nil, aegiserr.Errorf(aegiserr.CodeStoreDatabaseFailure, "migrating gateway db: %w", err)
	}

	return &GatewayStore{
		db:       db,
		audit:    &auditStore{db: db},
		feedback: &feedbackStore{db: db},
	}, nil
}

func migrateGateway(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS audit_log (
	id              TEXT PRIMARY KEY,
	timestamp       TEXT NOT NULL,
	conversation_id TEXT NOT NULL DEFAULT '',
	agent           TEXT NOT NULL DEFAULT '',
	direction       TEXT NOT NULL,
	sequence_index  INTEGER NOT NULL DEFAULT 0,
	scan_id         TEXT NOT NULL DEFAULT '',
	category        TEXT NOT NULL DEFAULT '',
	action          TEXT NOT NULL,
	reason_code     TEXT NOT NULL DEFAULT '',
	duration_ms     INTEGER NOT NULL DEFAULT 0,
	failure         TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_audit_log_timestamp    ON audit_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_log_action       ON audit_log(action);
CREATE INDEX IF NOT EXISTS idx_audit_log_conversation ON audit_log(conversation_id);

CREATE TABLE IF NOT EXISTS feedback (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL DEFAULT '',
	rating          TEXT NOT NULL,
	comment         TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedback_created_at ON feedback(created_at);
`
	_, err := db.Exec(ddl)
	return err
}

// AuditLog returns the AuditStore sub-store.
func (g *GatewayStore) AuditLog() store.AuditStore { return g.audit }

// Feedback returns the FeedbackStore sub-store.
func (g *GatewayStore) Feedback() store.FeedbackStore { return g.feedback }

// Close closes the underlying database connection.
func (g *GatewayStore) Close() error { return g.db.Close() }

// ---------- auditStore ----------

type auditStore struct {
	db *sql.DB
}

func (s *auditStore) Append(ctx context.Context, e *store.ScanEvent) error {
	if e == nil {
		return aegiserr.New(aegiserr.CodeStoreInvalidInput, "scan event is nil")
	}
	if err := e.Validate(); err != nil {
		return err
	}

	const q = `INSERT INTO audit_log (id, timestamp, conversation_id, agent, direction, sequence_index,
	scan_id, category, action, reason_code, duration_ms, failure)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		e.ID, formatTime(e.Timestamp), e.ConversationID, e.Agent, e.Direction, e.SequenceIndex,
		e.ScanID, e.Category, e.Action, e.ReasonCode, e.DurationMs, e.Failure,
	)
	if err != nil {
		return aegiserr.Errorf(aegiserr.CodeStoreAuditAppendFailure, "appending scan event %s: %w", e.ID, err)
	}
	return nil
}

func (s *auditStore) Query(ctx context.Context, filter store.AuditFilter) ([]*store.ScanEvent, error) {
	var qb strings.Builder
	qb.WriteString(`SELECT id, timestamp, conversation_id, agent, direction, sequence_index,
	scan_id, category, action, reason_code, duration_ms, failure FROM audit_log`)

	var conditions []string
	var args []any

	if filter.ConversationID != "" {
		conditions = append(conditions, "conversation_id = ?")
		args = append(args, filter.ConversationID)
	}
	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.Direction != "" {
		conditions = append(conditions, "direction = ?")
		args = append(args, filter.Direction)
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, formatTime(filter.From))
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, formatTime(filter.To))
	}

	if len(conditions) > 0 {
		qb.WriteString(" WHERE ")
		qb.WriteString(strings.Join(conditions, " AND "))
	}

	// rowid breaks ties between events written in the same instant.
	qb.WriteString(" ORDER BY timestamp DESC, rowid DESC")

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	qb.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, aegiserr.Errorf(aegiserr.CodeStoreAuditQueryFailure, "querying audit log: %w", err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var events []*store.ScanEvent
	for rows.Next() {
		var e store.ScanEvent
		var ts string
		if err := rows.Scan(
			&e.ID, &ts, &e.ConversationID, &e.Agent, &e.Direction, &e.SequenceIndex,
			&e.ScanID, &e.Category, &e.Action, &e.ReasonCode, &e.DurationMs, &e.Failure,
		); err != nil {
			return nil, aegiserr.Errorf(aegiserr.CodeStoreAuditQueryFailure, "scanning audit row: %w", err)
		}
		var err error
		e.Timestamp, err = ParseTime(ts)
		if err != nil {
			return nil, aegiserr.Errorf(aegiserr.CodeStoreAuditQueryFailure, "parsing scan event %s timestamp: %w", e.ID, err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, aegiserr.Errorf(aegiserr.CodeStoreAuditQueryFailure, "iterating audit entries: %w", err)
	}
	return events, nil
}

func (s *auditStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&n); err != nil {
		return 0, aegiserr.Errorf(aegiserr.CodeStoreAuditQueryFailure, "counting audit log: %w", err)
	}
	return n, nil
}

// ---------- feedbackStore ----------

type feedbackStore struct {
	db *sql.DB
}

func (s *feedbackStore) Record(ctx context.Context, fb *store.Feedback) error {
	if fb == nil {
		return aegiserr.New(aegiserr.CodeStoreFeedbackInvalidInput, "feedback is nil")
	}
	if err := fb.Validate(); err != nil {
		return err
	}

	const q = `INSERT INTO feedback (id, conversation_id, rating, comment, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q,
		fb.ID, fb.ConversationID, string(fb.Rating), fb.Comment, formatTime(fb.CreatedAt),
	); err != nil {
		return aegiserr.Errorf(aegiserr.CodeStoreDatabaseFailure, "recording feedback %s: %w", fb.ID, err)
	}
	return nil
}

func (s *feedbackStore) List(ctx context.Context, opts store.ListOpts) ([]*store.Feedback, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	const q = `SELECT id, conversation_id, rating, comment, created_at FROM feedback
ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, limit, opts.Offset)
	if err != nil {
		return nil, aegiserr.Errorf(aegiserr.CodeStoreDatabaseFailure, "listing feedback: %w", err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var out []*store.Feedback
	for rows.Next() {
		var fb store.Feedback
		var rating, created string
		if err := rows.Scan(&fb.ID, &fb.ConversationID, &rating, &fb.Comment, &created); err != nil {
			return nil, aegiserr.Errorf(aegiserr.CodeStoreDatabaseFailure, "scanning feedback row: %w", err)
		}
		fb.Rating = store.FeedbackRating(rating)
		if fb.CreatedAt, err = ParseTime(created); err != nil {
			return nil, aegiserr.Errorf(aegiserr.CodeStoreDatabaseFailure, "parsing feedback %s time: %w", fb.ID, err)
		}
		out = append(out, &fb)
	}
	if err := rows.Err(); err != nil {
		return nil, aegiserr.Errorf(aegiserr.CodeStoreDatabaseFailure, "iterating feedback: %w", err)
	}
	return out, nil
}

// timeLayout is RFC 3339 with a fixed-width fraction. Combined with UTC it
// makes lexical order of stored timestamps match chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime serialises a time for storage.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

// ParseTime deserialises a time string stored in the database.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}
