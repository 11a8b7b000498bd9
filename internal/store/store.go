// Package store is the SQLite run log: one row per script run plus the
// queries, diagnostics and emissions it produced.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrRunNotFound is returned by Run for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// Store is the SQLite data access layer for the run log.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates the run log tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS runs (
  id              TEXT PRIMARY KEY,
  script          TEXT NOT NULL,
  script_hash     TEXT NOT NULL,
  started_at      TIMESTAMP NOT NULL,
  finished_at     TIMESTAMP,
  status          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS queries (
  id              INTEGER PRIMARY KEY,
  run_id          TEXT NOT NULL REFERENCES runs(id),
  kind            TEXT NOT NULL,
  input           TEXT NOT NULL,
  result_count    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS diagnostics (
  id              INTEGER PRIMARY KEY,
  run_id          TEXT NOT NULL REFERENCES runs(id),
  level           TEXT NOT NULL,
  message         TEXT NOT NULL,
  span            TEXT
);

CREATE TABLE IF NOT EXISTS emissions (
  run_id          TEXT NOT NULL REFERENCES runs(id),
  seq             INTEGER NOT NULL,
  bytes           BLOB NOT NULL,
  PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_queries_run ON queries(run_id);
CREATE INDEX IF NOT EXISTS idx_diagnostics_run ON diagnostics(run_id);
`

// Runs returns the most recent runs, newest first. A non-positive limit
// returns every run.
func (s *Store) Runs(ctx context.Context, limit int) ([]*Run, error) {
	q := "SELECT id, script, script_hash, started_at, finished_at, status FROM runs ORDER BY started_at DESC, id"
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Run returns a run with its queries, diagnostics and emissions.
func (s *Store) Run(ctx context.Context, id string) (*RunDetail, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, script, script_hash, started_at, finished_at, status FROM runs WHERE id = ?", id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	d := &RunDetail{Run: *r}

	if d.Queries, err = s.queriesFor(ctx, id); err != nil {
		return nil, err
	}
	if d.Diagnostics, err = s.diagnosticsFor(ctx, id); err != nil {
		return nil, err
	}
	if d.Emissions, err = s.emissionsFor(ctx, id); err != nil {
		return nil, err
	}
	return d, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r        Run
		finished sql.NullTime
	)
	if err := sc.Scan(&r.ID, &r.Script, &r.ScriptHash, &r.StartedAt, &finished, &r.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if finished.Valid {
		r.FinishedAt = finished.Time
	}
	return &r, nil
}

func (s *Store) queriesFor(ctx context.Context, runID string) ([]QueryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT kind, input, result_count FROM queries WHERE run_id = ? ORDER BY id", runID)
	if err != nil {
		return nil, fmt.Errorf("query queries: %w", err)
	}
	defer rows.Close()
	var out []QueryRecord
	for rows.Next() {
		q := QueryRecord{RunID: runID}
		if err := rows.Scan(&q.Kind, &q.Input, &q.ResultCount); err != nil {
			return nil, fmt.Errorf("scan query: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *Store) diagnosticsFor(ctx context.Context, runID string) ([]DiagnosticRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT level, message, span FROM diagnostics WHERE run_id = ? ORDER BY id", runID)
	if err != nil {
		return nil, fmt.Errorf("query diagnostics: %w", err)
	}
	defer rows.Close()
	var out []DiagnosticRecord
	for rows.Next() {
		var (
			d    = DiagnosticRecord{RunID: runID}
			span sql.NullString
		)
		if err := rows.Scan(&d.Level, &d.Message, &span); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		d.Span = span.String
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) emissionsFor(ctx context.Context, runID string) ([]Emission, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, bytes FROM emissions WHERE run_id = ? ORDER BY seq", runID)
	if err != nil {
		return nil, fmt.Errorf("query emissions: %w", err)
	}
	defer rows.Close()
	var out []Emission
	for rows.Next() {
		e := Emission{RunID: runID}
		if err := rows.Scan(&e.Seq, &e.Bytes); err != nil {
			return nil, fmt.Errorf("scan emission: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteRunsBefore removes runs that started before cutoff, with their
// child rows. Returns the number of runs removed.
func (s *Store) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	const sub = "SELECT id FROM runs WHERE started_at < ?"
	for _, q := range []string{
		"DELETE FROM emissions WHERE run_id IN (" + sub + ")",
		"DELETE FROM diagnostics WHERE run_id IN (" + sub + ")",
		"DELETE FROM queries WHERE run_id IN (" + sub + ")",
	} {
		if _, err := tx.ExecContext(ctx, q, cutoff); err != nil {
			return 0, fmt.Errorf("delete run children: %w", err)
		}
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, tx.Commit()
}
