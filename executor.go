package gofacts

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/risor-io/risor/object"

	"github.com/jward/gofacts/internal/diag"
	"github.com/jward/gofacts/internal/fact"
	"github.com/jward/gofacts/internal/host"
	"github.com/jward/gofacts/internal/provision"
	"github.com/jward/gofacts/internal/query"
	"github.com/jward/gofacts/internal/runtime"
	"github.com/jward/gofacts/internal/store"
)

// Query kinds as recorded in the run log.
const (
	KindMethodCalls   = "method_calls"
	KindTraitImpls    = "trait_impls"
	KindFunctions     = "functions"
	KindFunctionCalls = "function_calls"
)

// executor serves one run's facts module.
type executor struct {
	engine *Engine
	diag   *diag.Sink
	query  *query.Engine
	batch  *store.BatchedRecorder
	out    *Sink

	// session defers the commit to Session.Close and allows a script
	// without a version call
	session bool

	mu         sync.Mutex
	fatal      bool
	fatalMsg   string
	committed  bool
	version    bool
	debug      bool
	versionErr error
}

var (
	_ runtime.Executor = (*executor)(nil)
	_ diag.Recorder    = (*executor)(nil)
)

// The version was negotiated before the engine started; a script reaching
// here already runs on the binary it asked for. Only the call count is
// checked.
func (x *executor) SetVersion(v runtime.Version) error {
	x.engine.logger.Debug("script version", "version", v.String())
	return x.setOnce(&x.version)
}

func (x *executor) SetDebugVersion(v runtime.Version) error {
	x.engine.logger.Debug("script debug version", "version", v.String())
	return x.setOnce(&x.debug)
}

func (x *executor) setOnce(seen *bool) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if *seen {
		x.versionErr = provision.ErrVersionSetTwice
		return provision.ErrVersionSetTwice
	}
	*seen = true
	return nil
}

// versionCheck reports a repeated version call, or a run that finished
// without one. A repeated call fails the run even if the script caught the
// error.
func (x *executor) versionCheck() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	switch {
	case x.versionErr != nil:
		return x.versionErr
	case !x.version && !x.session:
		return provision.ErrNoVersion
	}
	return nil
}

func (x *executor) Note(msg string)  { x.diag.Note(msg) }
func (x *executor) Warn(msg string)  { x.diag.Warn(msg) }
func (x *executor) Error(msg string) { x.diag.Error(msg) }
func (x *executor) Fatal(msg string) { x.diag.Fatal(msg) }

func (x *executor) QueryMethodCalls(q fact.MethodCallQuery) ([]*fact.MethodCall, error) {
	res := x.query.MethodCalls(q)
	x.batch.RecordQuery(KindMethodCalls, describeQuery(q), len(res))
	return res, nil
}

func (x *executor) QueryTraitImpls(loc fact.Location) ([]*fact.TraitImpl, error) {
	res := x.query.TraitImpls(loc)
	x.batch.RecordQuery(KindTraitImpls, loc.String(), len(res))
	return res, nil
}

func (x *executor) QueryFunctions(loc fact.Location) ([]*fact.FunctionTypeValue, error) {
	res := x.query.Functions(loc)
	x.batch.RecordQuery(KindFunctions, loc.String(), len(res))
	return res, nil
}

func (x *executor) QueryFunctionCalls(loc fact.Location) ([]*fact.FunctionCall, error) {
	res := x.query.FunctionCalls(loc)
	x.batch.RecordQuery(KindFunctionCalls, loc.String(), len(res))
	return res, nil
}

func (x *executor) Emit(s string) error {
	if err := x.out.Emit(s); err != nil {
		return err
	}
	x.batch.RecordEmission([]byte(s))
	return nil
}

func (x *executor) RecordDiagnostic(level diag.Level, msg string, _ host.Span) {
	if level != diag.LevelFatal {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.fatalMsg == "" {
		x.fatalMsg = msg
	}
}

func (x *executor) markFatal() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.fatal = true
}

func (x *executor) fatalMessage() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.fatalMsg
}

// run executes src, turning a fatal diagnostic's panic into an error.
func (x *executor) run(ctx context.Context, rt *runtime.Runtime, src string) (err error) {
	defer diag.Recover(&err)
	err = rt.RunSource(ctx, src, nil)
	if verr := x.versionCheck(); verr != nil && (err == nil || errors.Is(verr, provision.ErrVersionSetTwice)) {
		return verr
	}
	return err
}

func (x *executor) eval(ctx context.Context, rt *runtime.Runtime, src string) (obj object.Object, err error) {
	defer diag.Recover(&err)
	return rt.EvalSource(ctx, src)
}

func (x *executor) result(runErr error) *Result {
	x.mu.Lock()
	fatal := x.fatal
	x.mu.Unlock()

	res := &Result{
		RunID:    x.batch.RunID(),
		Status:   store.StatusOK,
		Warnings: x.diag.Warnings(),
		Errors:   x.diag.Errors(),
	}
	switch {
	case fatal:
		res.Status = store.StatusFatal
	case runErr != nil || res.Errors > 0:
		res.Status = store.StatusFailed
	}
	return res
}

// commit writes the run to the store once.
func (x *executor) commit(ctx context.Context, status string) {
	st := x.engine.store
	if st == nil {
		return
	}
	x.mu.Lock()
	if x.committed {
		x.mu.Unlock()
		return
	}
	x.committed = true
	x.mu.Unlock()

	if err := st.CommitRun(ctx, x.batch, status); err != nil {
		x.engine.logger.Error("failed to record run", "run", x.batch.RunID(), "error", err)
	}
}

// describeQuery renders a method-call query innermost receiver first:
// "app::B::foo -> app::B::bar".
func describeQuery(q fact.MethodCallQuery) string {
	var parts []string
	for cur := &q; cur != nil; cur = cur.Parent {
		parts = append(parts, cur.Location.String())
	}
	slices.Reverse(parts)
	return strings.Join(parts, " -> ")
}
