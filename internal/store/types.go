package store

import "time"

// Run statuses.
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusFatal   = "fatal"
)

type Run struct {
	ID         string
	Script     string
	ScriptHash string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
}

// QueryRecord is one facts.query_* call: its kind, the rendered input
// location and how many results it returned.
type QueryRecord struct {
	RunID       string
	Kind        string
	Input       string
	ResultCount int
}

type DiagnosticRecord struct {
	RunID   string
	Level   string
	Message string
	Span    string
}

// Emission is one facts.emit call, numbered in call order from zero.
type Emission struct {
	RunID string
	Seq   int
	Bytes []byte
}

// RunDetail is a run with everything it recorded.
type RunDetail struct {
	Run
	Queries     []QueryRecord
	Diagnostics []DiagnosticRecord
	Emissions   []Emission
}
