// Package store persists intervention and question history to SQLite so
// `hawtch history` can answer "what did the monitor do and why" across runs.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/joss/hawtch/internal/domain"
	"github.com/joss/hawtch/internal/intervene"
	"github.com/joss/hawtch/internal/question"
)

// History is the SQLite-backed monitor history. One instance per process;
// safe for concurrent use through database/sql.
type History struct {
	db      *sql.DB
	path    string
	session string
}

// The monitor wires History in as both recorders.
var (
	_ intervene.Recorder        = (*History)(nil)
	_ question.ExchangeRecorder = (*History)(nil)
)

// Open opens (creating if needed) the history database at path. session
// tags every row written by this run.
func Open(path, session string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	h := &History{db: db, path: path, session: session}
	if err := h.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return h, nil
}

func (h *History) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS interventions (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		severity TEXT NOT NULL,
		confidence REAL NOT NULL,
		reasoning TEXT NOT NULL,
		issues_json TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_interventions_created ON interventions(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_interventions_severity ON interventions(severity);

	CREATE TABLE IF NOT EXISTS exchanges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		question TEXT NOT NULL,
		task TEXT,
		suggestion TEXT,
		confidence REAL NOT NULL,
		answer TEXT NOT NULL,
		source TEXT NOT NULL,
		opened_at DATETIME NOT NULL,
		resolved_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_exchanges_opened ON exchanges(opened_at DESC);
	`
	_, err := h.db.Exec(schema)
	return err
}

// Close releases the database handle.
func (h *History) Close() error {
	return h.db.Close()
}

// Ping verifies the database is reachable.
func (h *History) Ping(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

// RecordIntervention persists one delivered intervention.
func (h *History) RecordIntervention(seq int, d domain.Decision) error {
	issuesJSON, _ := json.Marshal(d.Judgment.DetectedIssues)
	_, err := h.db.Exec(`
		INSERT INTO interventions (id, session_id, seq, severity, confidence, reasoning, issues_json, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, h.session, seq, string(d.Severity), d.Judgment.Confidence, d.Judgment.Reasoning, string(issuesJSON), d.Message, d.Timestamp)
	return err
}

// RecordExchange persists one resolved question exchange.
func (h *History) RecordExchange(ex domain.Exchange) error {
	_, err := h.db.Exec(`
		INSERT INTO exchanges (session_id, question, task, suggestion, confidence, answer, source, opened_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, h.session, ex.Question, ex.Task, ex.Suggestion, ex.Confidence, ex.Answer, string(ex.Source), ex.OpenedAt, ex.ResolvedAt)
	return err
}

// InterventionRecord is one stored intervention.
type InterventionRecord struct {
	ID         string
	SessionID  string
	Seq        int
	Severity   domain.Severity
	Confidence float64
	Reasoning  string
	Issues     []string
	Message    string
	CreatedAt  time.Time
}

// ExchangeRecord is one stored question exchange.
type ExchangeRecord struct {
	ID         int64
	SessionID  string
	Question   string
	Task       string
	Suggestion string
	Confidence float64
	Answer     string
	Source     domain.ResolutionSource
	OpenedAt   time.Time
	ResolvedAt time.Time
}

// GetIntervention retrieves one intervention by id.
func (h *History) GetIntervention(ctx context.Context, id string) (*InterventionRecord, error) {
	row := h.db.QueryRowContext(ctx, `
		SELECT id, session_id, seq, severity, confidence, reasoning, issues_json, message, created_at
		FROM interventions WHERE id = ?
	`, id)

	rec, err := scanIntervention(row.Scan)
	if err == sql.ErrNoRows {
		return nil, NewNotFoundError("intervention", id)
	}
	return rec, err
}

// ListInterventions returns the most recent interventions, newest first.
// An empty severity matches all bands.
func (h *History) ListInterventions(ctx context.Context, severity domain.Severity, limit int) ([]*InterventionRecord, error) {
	q := `
		SELECT id, session_id, seq, severity, confidence, reasoning, issues_json, message, created_at
		FROM interventions`
	args := []interface{}{}
	if severity != "" {
		q += ` WHERE severity = ?`
		args = append(args, string(severity))
	}
	q += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := h.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*InterventionRecord
	for rows.Next() {
		rec, err := scanIntervention(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanIntervention(scan func(dest ...interface{}) error) (*InterventionRecord, error) {
	var rec InterventionRecord
	var severity, issuesJSON string

	if err := scan(&rec.ID, &rec.SessionID, &rec.Seq, &severity, &rec.Confidence, &rec.Reasoning, &issuesJSON, &rec.Message, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Severity = domain.Severity(severity)
	json.Unmarshal([]byte(issuesJSON), &rec.Issues)
	return &rec, nil
}

// ListExchanges returns the most recent question exchanges, newest first.
func (h *History) ListExchanges(ctx context.Context, limit int) ([]*ExchangeRecord, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, session_id, question, task, suggestion, confidence, answer, source, opened_at, resolved_at
		FROM exchanges ORDER BY opened_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ExchangeRecord
	for rows.Next() {
		var rec ExchangeRecord
		var task, suggestion sql.NullString
		var source string

		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Question, &task, &suggestion, &rec.Confidence, &rec.Answer, &source, &rec.OpenedAt, &rec.ResolvedAt); err != nil {
			return nil, err
		}
		rec.Task = task.String
		rec.Suggestion = suggestion.String
		rec.Source = domain.ResolutionSource(source)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// CountBySeverity aggregates stored interventions per severity band.
func (h *History) CountBySeverity(ctx context.Context) (map[domain.Severity]int, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT severity, COUNT(*) FROM interventions GROUP BY severity
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.Severity]int)
	for rows.Next() {
		var severity string
		var n int
		if err := rows.Scan(&severity, &n); err != nil {
			return nil, err
		}
		counts[domain.Severity(severity)] = n
	}
	return counts, rows.Err()
}
