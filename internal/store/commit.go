package store

import (
	"context"
	"fmt"
	"time"
)

// CommitRun writes a finished run and all of its buffered records within a
// single transaction. Insert order follows the FK dependencies: the run row
// first, then queries, diagnostics and emissions.
func (s *Store) CommitRun(ctx context.Context, batch *BatchedRecorder, status string) error {
	batch.mu.Lock()
	defer batch.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit run: begin: %w", err)
	}
	defer tx.Rollback()

	run := batch.run
	run.Status = status
	run.FinishedAt = time.Now().UTC()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO runs (id, script, script_hash, started_at, finished_at, status) VALUES (?, ?, ?, ?, ?, ?)",
		run.ID, run.Script, run.ScriptHash, run.StartedAt, run.FinishedAt, run.Status,
	); err != nil {
		return fmt.Errorf("commit run: run %s: %w", run.ID, err)
	}

	for _, q := range batch.Queries {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO queries (run_id, kind, input, result_count) VALUES (?, ?, ?, ?)",
			run.ID, q.Kind, q.Input, q.ResultCount,
		); err != nil {
			return fmt.Errorf("commit run: query %s: %w", q.Kind, err)
		}
	}

	for _, d := range batch.Diagnostics {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO diagnostics (run_id, level, message, span) VALUES (?, ?, ?, ?)",
			run.ID, d.Level, d.Message, nullString(d.Span),
		); err != nil {
			return fmt.Errorf("commit run: diagnostic: %w", err)
		}
	}

	for _, e := range batch.Emissions {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO emissions (run_id, seq, bytes) VALUES (?, ?, ?)",
			run.ID, e.Seq, e.Bytes,
		); err != nil {
			return fmt.Errorf("commit run: emission %d: %w", e.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	batch.run = run
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
