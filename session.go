package gofacts

import (
	"context"
	"errors"

	"github.com/risor-io/risor/object"

	"github.com/jward/gofacts/internal/runtime"
)

// Session is an interactive run. Each Eval is evaluated on its own; all of
// them share one diagnostics sink and one run log entry, written on Close.
// A fatal diagnostic fails its Eval but not the session: later evals are
// still recorded and the run closes with status fatal. Sessions need no
// facts.version call.
type Session struct {
	engine *Engine
	exec   *executor
	rt     *runtime.Runtime
	failed bool
}

// Eval runs one snippet and returns the value of its last expression.
// Text emitted by the snippet is flushed before Eval returns.
func (s *Session) Eval(ctx context.Context, src string) (object.Object, error) {
	obj, err := s.exec.eval(ctx, s.rt, src)
	if err != nil {
		s.failed = true
	}
	if ferr := s.engine.out.Flush(ctx); ferr != nil && err == nil {
		err = ferr
	}
	s.engine.out.Reset()
	return obj, err
}

// Close records the session in the run log.
func (s *Session) Close(ctx context.Context) *Result {
	var runErr error
	if s.failed {
		runErr = errSessionFailed
	}
	res := s.exec.result(runErr)
	s.exec.commit(ctx, res.Status)
	return res
}

var errSessionFailed = errors.New("an evaluation failed")
