// Package provision negotiates the engine version a script asks for:
// a preflight run extracts the request, and the installer builds that
// version into a cache so the CLI can re-execute it.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jward/gofacts/internal/fact"
	"github.com/jward/gofacts/internal/runtime"
)

var (
	// ErrVersionSetTwice is returned when a script calls version (or
	// dbg_version) more than once, even with the same value.
	ErrVersionSetTwice = errors.New("script attempted to set the desired version multiple times, the desired version should be specified first and once")

	// ErrNoVersion is returned when a script never calls version.
	ErrNoVersion = errors.New("no version was set in the script")
)

// PreflightExecutor records version requests and answers every query with
// an empty result. Output and logging are discarded.
type PreflightExecutor struct {
	mu       sync.Mutex
	version  *runtime.Version
	debug    *runtime.Version
	setTwice bool
	fatal    string
}

var _ runtime.Executor = (*PreflightExecutor)(nil)

func (p *PreflightExecutor) SetVersion(v runtime.Version) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.version != nil {
		p.setTwice = true
		return ErrVersionSetTwice
	}
	p.version = &v
	return nil
}

// SetDebugVersion flags a second call but keeps the newest value.
func (p *PreflightExecutor) SetDebugVersion(v runtime.Version) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.debug != nil {
		p.setTwice = true
		err = ErrVersionSetTwice
	}
	p.debug = &v
	return err
}

func (p *PreflightExecutor) Note(string)  {}
func (p *PreflightExecutor) Warn(string)  {}
func (p *PreflightExecutor) Error(string) {}

// Fatal aborts the preflight run; the panic is recovered by Preflight.
func (p *PreflightExecutor) Fatal(msg string) {
	p.mu.Lock()
	p.fatal = msg
	p.mu.Unlock()
	panic(preflightFatal(msg))
}

func (p *PreflightExecutor) QueryMethodCalls(fact.MethodCallQuery) ([]*fact.MethodCall, error) {
	return nil, nil
}

func (p *PreflightExecutor) QueryTraitImpls(fact.Location) ([]*fact.TraitImpl, error) {
	return nil, nil
}

func (p *PreflightExecutor) QueryFunctions(fact.Location) ([]*fact.FunctionTypeValue, error) {
	return nil, nil
}

func (p *PreflightExecutor) QueryFunctionCalls(fact.Location) ([]*fact.FunctionCall, error) {
	return nil, nil
}

func (p *PreflightExecutor) Emit(string) error { return nil }

type preflightFatal string

// Request is the version a script asked for.
type Request struct {
	Version runtime.Version

	// Debug is the dbg_version request, if any.
	Debug *runtime.Version
}

// Effective picks the debug request for development builds when one was
// given, and the release request otherwise.
func (r Request) Effective(devBuild bool) runtime.Version {
	if devBuild && r.Debug != nil {
		return *r.Debug
	}
	return r.Version
}

// Preflight runs src once against a PreflightExecutor and returns the
// version it requests. Script errors after the version call are ignored:
// the script may target a different facts API than this build provides.
func Preflight(ctx context.Context, src string, logger *slog.Logger) (Request, error) {
	if logger == nil {
		logger = slog.Default()
	}
	exec := &PreflightExecutor{}
	rt := runtime.NewRuntime(exec, "", runtime.WithRuntimeLogger(logger))

	if err := runPreflight(ctx, rt, src); err != nil {
		logger.Debug("preflight script error ignored", "error", err)
	}

	exec.mu.Lock()
	defer exec.mu.Unlock()
	if exec.fatal != "" {
		logger.Debug("fatal error hit in preflight script check", "message", exec.fatal)
	}
	if exec.setTwice {
		return Request{}, ErrVersionSetTwice
	}
	if exec.version == nil {
		return Request{}, ErrNoVersion
	}
	return Request{Version: *exec.version, Debug: exec.debug}, nil
}

func runPreflight(ctx context.Context, rt *runtime.Runtime, src string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			msg, ok := r.(preflightFatal)
			if !ok {
				panic(r)
			}
			err = fmt.Errorf("fatal error hit in preflight script check: %s", string(msg))
		}
	}()
	return rt.RunSource(ctx, src, nil)
}
