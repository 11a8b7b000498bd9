package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/gofacts/internal/diag"
	"github.com/jward/gofacts/internal/host"
)

func TestBatchedRecorder_AssignsRunID(t *testing.T) {
	t.Parallel()
	a := NewBatchedRecorder("a.risor", []byte("x"))
	b := NewBatchedRecorder("a.risor", []byte("x"))

	assert.NotEmpty(t, a.RunID())
	assert.NotEqual(t, a.RunID(), b.RunID())
	assert.Equal(t, a.run.ScriptHash, b.run.ScriptHash)
	assert.Equal(t, StatusRunning, a.run.Status)
}

func TestBatchedRecorder_EmissionSequence(t *testing.T) {
	t.Parallel()
	b := NewBatchedRecorder("s", nil)
	buf := []byte("first")
	b.RecordEmission(buf)
	buf[0] = 'F'
	b.RecordEmission([]byte("second"))

	require.Len(t, b.Emissions, 2)
	assert.Equal(t, 0, b.Emissions[0].Seq)
	assert.Equal(t, 1, b.Emissions[1].Seq)
	assert.Equal(t, "first", string(b.Emissions[0].Bytes), "recorded bytes must not alias the caller's buffer")
}

func TestBatchedRecorder_Diagnostics(t *testing.T) {
	t.Parallel()
	b := NewBatchedRecorder("s", nil)
	b.RecordDiagnostic(diag.LevelWarn, "careful", host.Span{File: "a.go", Line: 3, Col: 1})
	b.RecordDiagnostic(diag.LevelNote, "fyi", host.Span{})

	require.Len(t, b.Diagnostics, 2)
	assert.Equal(t, "warning", b.Diagnostics[0].Level)
	assert.Equal(t, "a.go:3:1", b.Diagnostics[0].Span)
	assert.Empty(t, b.Diagnostics[1].Span)
}

func TestBatchedRecorder_ConcurrentRecords(t *testing.T) {
	t.Parallel()
	b := NewBatchedRecorder("s", nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.RecordQuery("functions", "c::f", 1)
			b.RecordEmission([]byte("x"))
		}()
	}
	wg.Wait()

	assert.Len(t, b.Queries, 20)
	require.Len(t, b.Emissions, 20)
	seen := make(map[int]bool)
	for _, e := range b.Emissions {
		seen[e.Seq] = true
	}
	assert.Len(t, seen, 20)
}
