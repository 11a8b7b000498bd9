package gofacts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/jward/gofacts/internal/config"
	"github.com/jward/gofacts/internal/diag"
	"github.com/jward/gofacts/internal/elevate"
	"github.com/jward/gofacts/internal/gohost"
	"github.com/jward/gofacts/internal/host"
	"github.com/jward/gofacts/internal/query"
	"github.com/jward/gofacts/internal/runtime"
	"github.com/jward/gofacts/internal/rusthost"
	"github.com/jward/gofacts/internal/store"
)

// ErrFatal marks a run stopped by a fatal diagnostic.
var ErrFatal = errors.New("gofacts: fatal diagnostic")

// Engine runs fact scripts against one loaded program snapshot. Runs are
// serialized; the snapshot is replaced only by Reload.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	known  map[string]elevate.Known
	exit   func(code int)
	out    *Sink

	mu   sync.Mutex
	prog host.Program
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for engine and diagnostic output.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithStore records every run in s.
func WithStore(s *store.Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithKnownTypes adds container folds on top of the defaults and the
// config's known_types.
func WithKnownTypes(m map[string]elevate.Known) Option {
	return func(e *Engine) {
		e.known = m
	}
}

// WithExitFunc replaces os.Exit as the action taken on a fatal diagnostic.
// When fn returns, the run stops with ErrFatal instead.
func WithExitFunc(fn func(code int)) Option {
	return func(e *Engine) {
		e.exit = fn
	}
}

// WithOutput sets where emitted text goes, overriding cfg.Output.
func WithOutput(s *Sink) Option {
	return func(e *Engine) {
		e.out = s
	}
}

// WithProgram uses prog instead of loading the configured project.
func WithProgram(prog host.Program) Option {
	return func(e *Engine) {
		e.prog = prog
	}
}

// New creates an Engine for cfg, loading the program unless WithProgram
// supplies one.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	e := &Engine{
		cfg:    cfg,
		logger: slog.Default(),
		exit:   os.Exit,
	}
	for _, opt := range opts {
		opt(e)
	}

	known, err := cfg.KnownTypeTable()
	if err != nil {
		return nil, fmt.Errorf("gofacts: known types: %w", err)
	}
	maps.Copy(known, e.known)
	e.known = known

	if e.out == nil {
		e.out = NewSink(cfg.Output, os.Stdout)
	}
	if e.prog == nil {
		prog, err := Load(ctx, cfg, e.logger)
		if err != nil {
			return nil, err
		}
		e.prog = prog
	}
	return e, nil
}

// Load builds the program oracle cfg.Lang selects over cfg.Root.
func Load(ctx context.Context, cfg *config.Config, logger *slog.Logger) (host.Program, error) {
	root := cfg.Root
	if root == "" {
		root = "."
	}
	switch cfg.Lang {
	case config.LangRust:
		prog, err := rusthost.Load(ctx, rusthost.Options{Dir: root, Exclude: cfg.Excluded, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("gofacts: load crate: %w", err)
		}
		return prog, nil
	default:
		prog, err := gohost.Load(ctx, gohost.Options{Dir: root, Patterns: cfg.Patterns, Exclude: cfg.Excluded, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("gofacts: load packages: %w", err)
		}
		return prog, nil
	}
}

// Reload replaces the program snapshot with a fresh load of the project.
func (e *Engine) Reload(ctx context.Context) error {
	prog, err := Load(ctx, e.cfg, e.logger)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.prog = prog
	e.mu.Unlock()
	return nil
}

// Program returns the current program snapshot.
func (e *Engine) Program() host.Program {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prog
}

// Output returns the sink emitted text goes to.
func (e *Engine) Output() *Sink { return e.out }

// Result summarizes one script run.
type Result struct {
	RunID    string
	Status   string
	Warnings int64
	Errors   int64
}

// Run executes the script at path. Imports resolve next to it.
func (e *Engine) Run(ctx context.Context, path string) (*Result, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gofacts: read script: %w", err)
	}
	return e.run(ctx, path, src, filepath.Dir(path))
}

// RunFS executes the script name from fsys. Imports resolve inside fsys.
func (e *Engine) RunFS(ctx context.Context, fsys fs.FS, name string) (*Result, error) {
	src, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("gofacts: read script: %w", err)
	}
	return e.run(ctx, name, src, "", runtime.WithRuntimeFS(fsys))
}

// RunSource executes script source given inline.
func (e *Engine) RunSource(ctx context.Context, src string) (*Result, error) {
	return e.run(ctx, "<inline>", []byte(src), "")
}

// Session prepares a runtime for interactive use. Every Eval shares one
// run; finish it with Close.
func (e *Engine) Session(ctx context.Context) *Session {
	e.mu.Lock()
	prog := e.prog
	e.mu.Unlock()
	batch := store.NewBatchedRecorder("<repl>", nil)
	x := e.newExecutor(ctx, prog, batch)
	x.session = true
	return &Session{
		engine: e,
		exec:   x,
		rt:     runtime.NewRuntime(x, "", runtime.WithRuntimeLogger(e.logger)),
	}
}

func (e *Engine) run(ctx context.Context, name string, src []byte, dir string, opts ...runtime.RuntimeOption) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	batch := store.NewBatchedRecorder(name, src)
	x := e.newExecutor(ctx, e.prog, batch)
	rt := runtime.NewRuntime(x, dir, slices.Concat([]runtime.RuntimeOption{runtime.WithRuntimeLogger(e.logger)}, opts)...)
	e.out.Reset()

	e.logger.Info("running script", "script", name, "run", batch.RunID())
	err := x.run(ctx, rt, string(src))

	res := x.result(err)
	switch {
	case res.Status == store.StatusFatal:
		err = fmt.Errorf("%w: %s", ErrFatal, x.fatalMessage())
	case err != nil:
		err = fmt.Errorf("gofacts: %w", err)
	}
	if ferr := e.out.Flush(ctx); ferr != nil && err == nil {
		err = ferr
	}
	x.commit(ctx, res.Status)

	e.logger.Info("script finished", "run", res.RunID, "status", res.Status,
		"warnings", res.Warnings, "errors", res.Errors)
	return res, err
}

func (e *Engine) newExecutor(ctx context.Context, prog host.Program, batch *store.BatchedRecorder) *executor {
	x := &executor{
		engine: e,
		batch:  batch,
		out:    e.out,
	}
	x.diag = diag.New(e.logger,
		diag.WithRecorder(batch),
		diag.WithRecorder(x),
		diag.WithExitFunc(func(code int) {
			x.markFatal()
			if err := e.out.Flush(ctx); err != nil {
				e.logger.Error("failed to flush output", "run", batch.RunID(), "error", err)
			}
			if !x.session {
				x.commit(ctx, store.StatusFatal)
			}
			e.exit(code)
		}),
	)
	x.query = query.New(elevate.New(prog, x.diag, elevate.WithKnownTypes(e.known)), x.diag)
	return x
}
