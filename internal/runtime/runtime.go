// Package runtime embeds the Risor VM that runs fact scripts. Scripts reach
// queries, logging, and output through the facts module; fact model values
// cross the boundary as maps and tagged pairs.
package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"slices"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"
)

// Runtime runs scripts against an Executor.
type Runtime struct {
	exec   Executor
	dir    string
	fsys   fs.FS
	logger *slog.Logger
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS resolves script imports inside fsys instead of on disk.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithRuntimeLogger sets the logger used for script lifecycle messages.
func WithRuntimeLogger(l *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		r.logger = l
	}
}

// NewRuntime creates a Runtime whose facts module is backed by exec.
// Imports resolve against dir; an empty dir disables imports unless an FS
// is configured.
func NewRuntime(exec Executor, dir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		exec:   exec,
		dir:    dir,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunSource executes Risor source with the facts module plus any extra
// globals provided by the caller.
func (r *Runtime) RunSource(ctx context.Context, source string, extraGlobals map[string]any) error {
	_, err := r.eval(ctx, "<inline>", source, extraGlobals)
	return err
}

// EvalSource executes source and returns the value of its last expression.
func (r *Runtime) EvalSource(ctx context.Context, source string) (object.Object, error) {
	return r.eval(ctx, "<repl>", source, nil)
}

func (r *Runtime) eval(ctx context.Context, label, source string, extraGlobals map[string]any) (object.Object, error) {
	globals := map[string]any{ModuleName: NewModule(r.exec)}
	maps.Copy(globals, extraGlobals)

	opts := make([]risor.Option, 0, len(globals)+1)
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := r.importer(slices.Sorted(maps.Keys(globals))); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	r.logger.Debug("running script", "script", label)
	result, err := risor.Eval(ctx, source, opts...)
	if err != nil {
		return nil, fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return result, nil
}

// importer resolves `import name` to name.risor in the configured FS or
// directory. Imported modules see the same global names.
func (r *Runtime) importer(globalNames []string) importer.Importer {
	exts := []string{".risor"}
	switch {
	case r.fsys != nil:
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  exts,
		})
	case r.dir != "":
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.dir,
			Extensions:  exts,
		})
	default:
		return nil
	}
}
