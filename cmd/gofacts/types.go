package main

import (
	"time"

	"github.com/jward/gofacts/internal/store"
)

// CLIResult is the top-level JSON envelope for the runs and show commands.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLIRun is a JSON-friendly run summary.
type CLIRun struct {
	ID         string    `json:"id"`
	Script     string    `json:"script"`
	ScriptHash string    `json:"script_hash"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     string    `json:"status"`
}

// CLIQuery is one recorded facts.query_* call.
type CLIQuery struct {
	Kind        string `json:"kind"`
	Input       string `json:"input"`
	ResultCount int    `json:"result_count"`
}

// CLIDiagnostic is one recorded diagnostic.
type CLIDiagnostic struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Span    string `json:"span,omitempty"`
}

// CLIRunDetail is a run with everything it recorded. Output is the
// concatenated emitted text.
type CLIRunDetail struct {
	CLIRun
	Queries     []CLIQuery      `json:"queries"`
	Diagnostics []CLIDiagnostic `json:"diagnostics"`
	Output      string          `json:"output"`
}

func runToCLI(r *store.Run) CLIRun {
	return CLIRun{
		ID:         r.ID,
		Script:     r.Script,
		ScriptHash: r.ScriptHash,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Status:     r.Status,
	}
}

func runDetailToCLI(d *store.RunDetail) CLIRunDetail {
	out := CLIRunDetail{
		CLIRun:      runToCLI(&d.Run),
		Queries:     make([]CLIQuery, 0, len(d.Queries)),
		Diagnostics: make([]CLIDiagnostic, 0, len(d.Diagnostics)),
	}
	for _, q := range d.Queries {
		out.Queries = append(out.Queries, CLIQuery{Kind: q.Kind, Input: q.Input, ResultCount: q.ResultCount})
	}
	for _, dg := range d.Diagnostics {
		out.Diagnostics = append(out.Diagnostics, CLIDiagnostic{Level: dg.Level, Message: dg.Message, Span: dg.Span})
	}
	var text []byte
	for _, e := range d.Emissions {
		text = append(text, e.Bytes...)
	}
	out.Output = string(text)
	return out
}
