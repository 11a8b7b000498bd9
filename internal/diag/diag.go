// Package diag is the diagnostics channel for a run: slog-backed, counting
// errors, with Fatal terminating the process.
package diag

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/jward/gofacts/internal/host"
)

// Level names a diagnostic severity as recorded by a Recorder.
type Level string

const (
	LevelNote  Level = "note"
	LevelWarn  Level = "warning"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

// Recorder receives a copy of every diagnostic, e.g. for the run log.
type Recorder interface {
	RecordDiagnostic(level Level, msg string, span host.Span)
}

// Sink implements host.Diagnostics on top of a slog.Logger. Safe for
// concurrent use.
type Sink struct {
	logger *slog.Logger
	exit   func(code int)

	mu        sync.Mutex
	recorders []Recorder

	warnings atomic.Int64
	errors   atomic.Int64
}

var _ host.Diagnostics = (*Sink)(nil)

// Option configures a Sink.
type Option func(*Sink)

// WithExitFunc replaces os.Exit as the action taken by Fatal.
func WithExitFunc(fn func(code int)) Option {
	return func(s *Sink) {
		s.exit = fn
	}
}

// WithRecorder adds a recorder that sees every diagnostic.
func WithRecorder(r Recorder) Option {
	return func(s *Sink) {
		s.recorders = append(s.recorders, r)
	}
}

// New creates a Sink logging to logger (slog.Default when nil).
func New(logger *slog.Logger, opts ...Option) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sink{logger: logger, exit: os.Exit}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddRecorder attaches r after construction.
func (s *Sink) AddRecorder(r Recorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorders = append(s.recorders, r)
}

func (s *Sink) record(level Level, msg string, span host.Span) {
	s.mu.Lock()
	recs := s.recorders
	s.mu.Unlock()
	for _, r := range recs {
		r.RecordDiagnostic(level, msg, span)
	}
}

func (s *Sink) Note(msg string) {
	s.logger.Info(msg)
	s.record(LevelNote, msg, host.Span{})
}

func (s *Sink) Warn(msg string) {
	s.warnings.Add(1)
	s.logger.Warn(msg)
	s.record(LevelWarn, msg, host.Span{})
}

func (s *Sink) Error(msg string) {
	s.errors.Add(1)
	s.logger.Error(msg)
	s.record(LevelError, msg, host.Span{})
}

func (s *Sink) SpanWarn(span host.Span, msg string) {
	s.warnings.Add(1)
	s.logger.Warn(msg, "span", span.String())
	s.record(LevelWarn, msg, span)
}

// Fatal logs msg and exits with status 1. If the exit function returns,
// Fatal panics with a FatalError so control never comes back.
func (s *Sink) Fatal(msg string) {
	s.errors.Add(1)
	s.logger.Error(msg, "fatal", true)
	s.record(LevelFatal, msg, host.Span{})
	s.exit(1)
	panic(&FatalError{Msg: msg})
}

// Warnings returns the number of warnings reported so far.
func (s *Sink) Warnings() int64 { return s.warnings.Load() }

// Errors returns the number of errors (fatal included) reported so far.
func (s *Sink) Errors() int64 { return s.errors.Load() }

// FatalError is the panic value of Fatal when the exit function returns.
type FatalError struct{ Msg string }

func (e *FatalError) Error() string { return "fatal: " + e.Msg }

// Recover converts a FatalError panic into an error; other panics are
// re-raised. Use as: defer diag.Recover(&err).
func Recover(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if fe, ok := r.(*FatalError); ok {
		*err = fe
		return
	}
	panic(r)
}
