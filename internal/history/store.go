// Package history keeps a local sqlite log of session runs: what was
// connected, for how long, and how the frame pump fared.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const defaultBusyTimeout = 5 * time.Second

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeRunning   Outcome = "running"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Run is one recorded session use.
type Run struct {
	ID      string
	Host    string
	Address string
	Kind    string // stream, screenshot, script, record, control, relay
	Started time.Time
	Ended   time.Time
	Sent    uint64
	Missed  uint64
	Bytes   uint64
	Outcome Outcome
	Error   string
}

// Duration is the run length, or zero while it is still running.
func (r Run) Duration() time.Duration {
	if r.Ended.IsZero() {
		return 0
	}
	return r.Ended.Sub(r.Started)
}

// NotFoundError indicates a requested run does not exist.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string { return fmt.Sprintf("run %s not found", e.ID) }

// IsNotFound returns true when err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

// Store is the run log.
type Store struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	host       TEXT NOT NULL,
	address    TEXT NOT NULL DEFAULT '',
	kind       TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	ended_at   INTEGER NOT NULL DEFAULT 0,
	sent       INTEGER NOT NULL DEFAULT 0,
	missed     INTEGER NOT NULL DEFAULT 0,
	bytes      INTEGER NOT NULL DEFAULT 0,
	outcome    TEXT NOT NULL,
	error      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS runs_host_started ON runs (host, started_at DESC);
`

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("history: ensure directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", int(defaultBusyTimeout.Milliseconds())),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: apply pragma %q: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Begin inserts a running entry and returns its id.
func (s *Store) Begin(ctx context.Context, host, address, kind string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, host, address, kind, started_at, outcome)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, host, address, kind, time.Now().UnixMilli(), string(OutcomeRunning))
	if err != nil {
		return "", fmt.Errorf("history: begin run: %w", err)
	}
	return id, nil
}

// Result is what Finish records.
type Result struct {
	Sent    uint64
	Missed  uint64
	Bytes   uint64
	Outcome Outcome
	Err     error
}

// Finish closes the run with id.
func (s *Store) Finish(ctx context.Context, id string, res Result) error {
	outcome := res.Outcome
	msg := ""
	if res.Err != nil {
		msg = res.Err.Error()
		if outcome == "" {
			outcome = OutcomeFailed
		}
	}
	if outcome == "" {
		outcome = OutcomeCompleted
	}
	r, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET ended_at = ?, sent = ?, missed = ?, bytes = ?, outcome = ?, error = ?
		WHERE id = ?
	`, time.Now().UnixMilli(), int64(res.Sent), int64(res.Missed), int64(res.Bytes), string(outcome), msg, id)
	if err != nil {
		return fmt.Errorf("history: finish run: %w", err)
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return NotFoundError{ID: id}
	}
	return nil
}

const runColumns = `id, host, address, kind, started_at, ended_at, sent, missed, bytes, outcome, error`

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var (
		r              Run
		started, ended int64
		sent, missed   int64
		bytes          int64
		outcome        string
	)
	if err := row.Scan(&r.ID, &r.Host, &r.Address, &r.Kind, &started, &ended, &sent, &missed, &bytes, &outcome, &r.Error); err != nil {
		return Run{}, err
	}
	r.Started = time.UnixMilli(started)
	if ended > 0 {
		r.Ended = time.UnixMilli(ended)
	}
	r.Sent, r.Missed, r.Bytes = uint64(sent), uint64(missed), uint64(bytes)
	r.Outcome = Outcome(outcome)
	return r, nil
}

// Get returns the run with id. A unique id prefix is accepted.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Run{}, NotFoundError{ID: id}
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id LIKE ? ORDER BY started_at DESC LIMIT 2`, id+"%")
	if err != nil {
		return Run{}, fmt.Errorf("history: get run: %w", err)
	}
	defer rows.Close()

	var found []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return Run{}, fmt.Errorf("history: scan run: %w", err)
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return Run{}, fmt.Errorf("history: get run: %w", err)
	}
	switch len(found) {
	case 0:
		return Run{}, NotFoundError{ID: id}
	case 1:
		return found[0], nil
	default:
		return Run{}, fmt.Errorf("history: id prefix %q is ambiguous", id)
	}
}

// ListOptions filters List.
type ListOptions struct {
	Host  string
	Limit int
}

// List returns runs, newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Run, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if opts.Host != "" {
		query += ` WHERE host = ?`
		args = append(args, opts.Host)
	}
	query += ` ORDER BY started_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Prune deletes finished runs that started before cutoff and returns how
// many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	r, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ? AND outcome != ?`, cutoff.UnixMilli(), string(OutcomeRunning))
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	return r.RowsAffected()
}
