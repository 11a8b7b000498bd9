package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jward/gofacts/internal/diag"
	"github.com/jward/gofacts/internal/host"
)

// BatchedRecorder buffers everything a run records in memory so the run
// can be written in a single transaction by CommitRun.
//
// Thread safety: the mutex protects all slices; scripts may record from
// goroutines spawned by Risor.
type BatchedRecorder struct {
	mu sync.Mutex

	run Run

	Queries     []QueryRecord
	Diagnostics []DiagnosticRecord
	Emissions   []Emission
}

// Compile-time check: *BatchedRecorder receives diagnostics.
var _ diag.Recorder = (*BatchedRecorder)(nil)

// NewBatchedRecorder starts a run of script with a fresh id.
func NewBatchedRecorder(script string, src []byte) *BatchedRecorder {
	return &BatchedRecorder{
		run: Run{
			ID:         uuid.NewString(),
			Script:     script,
			ScriptHash: ScriptHash(src),
			StartedAt:  time.Now().UTC(),
			Status:     StatusRunning,
		},
	}
}

// RunID returns the id the run will be stored under.
func (b *BatchedRecorder) RunID() string {
	return b.run.ID
}

func (b *BatchedRecorder) RecordQuery(kind, input string, results int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Queries = append(b.Queries, QueryRecord{RunID: b.run.ID, Kind: kind, Input: input, ResultCount: results})
}

func (b *BatchedRecorder) RecordDiagnostic(level diag.Level, msg string, span host.Span) {
	var s string
	if span.File != "" {
		s = span.String()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Diagnostics = append(b.Diagnostics, DiagnosticRecord{RunID: b.run.ID, Level: string(level), Message: msg, Span: s})
}

func (b *BatchedRecorder) RecordEmission(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Emissions = append(b.Emissions, Emission{RunID: b.run.ID, Seq: len(b.Emissions), Bytes: append([]byte(nil), p...)})
}
