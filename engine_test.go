package gofacts

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"github.com/jward/gofacts/internal/config"
	"github.com/jward/gofacts/internal/diag"
	"github.com/jward/gofacts/internal/fact"
	"github.com/jward/gofacts/internal/host"
	"github.com/jward/gofacts/internal/host/hosttest"
	"github.com/jward/gofacts/internal/provision"
	"github.com/jward/gofacts/internal/store"
	"github.com/jward/gofacts/scripts"
)

var handleFunc = host.Path("std", "net", "http", "ServeMux", "HandleFunc")

// routesProgram has two route registrations in app::main.
func routesProgram() *hosttest.Program {
	p := hosttest.NewProgram()
	mux := p.Local("app::main", hosttest.Ref(hosttest.Known(host.Path("std", "net", "http", "ServeMux"))))
	p.MethodCall("app::main", mux, handleFunc, nil, p.Str("app::main", "/users"))
	p.MethodCall("app::main", mux, handleFunc, nil, p.Str("app::main", "/orders"))
	return p
}

const routesScript = `
facts.version("0.1.0")
loc := {"crate_name": "std", "path": ["net", "http", "ServeMux", "HandleFunc"]}
for _, c := range facts.query_method_calls({"location": loc}) {
    facts.emit(c["args"][0]["variant_data"] + "\n")
}
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type exitRecorder struct {
	mu    sync.Mutex
	codes []int
}

func (r *exitRecorder) exit(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, code)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestEngine(t *testing.T, prog host.Program, opts ...Option) (*Engine, *bytes.Buffer, *exitRecorder) {
	t.Helper()
	var out bytes.Buffer
	exits := &exitRecorder{}
	base := []Option{
		WithProgram(prog),
		WithLogger(discardLogger()),
		WithOutput(NewSink("", &out)),
		WithExitFunc(exits.exit),
	}
	e, err := New(context.Background(), config.DefaultConfig(), append(base, opts...)...)
	require.NoError(t, err)
	return e, &out, exits
}

// =============================================================================
// Runs
// =============================================================================

func TestRunSource_EmitsQueryResults(t *testing.T) {
	s := newTestStore(t)
	e, out, exits := newTestEngine(t, routesProgram(), WithStore(s))

	res, err := e.RunSource(context.Background(), routesScript)
	require.NoError(t, err)
	assert.Equal(t, store.StatusOK, res.Status)
	assert.Equal(t, "/users\n/orders\n", out.String())
	assert.Empty(t, exits.codes)

	detail, err := s.Run(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusOK, detail.Status)
	assert.Equal(t, "<inline>", detail.Script)
	require.Len(t, detail.Queries, 1)
	assert.Equal(t, KindMethodCalls, detail.Queries[0].Kind)
	assert.Equal(t, "std::net::http::ServeMux::HandleFunc", detail.Queries[0].Input)
	assert.Equal(t, 2, detail.Queries[0].ResultCount)
	require.Len(t, detail.Emissions, 2)
	assert.Equal(t, []byte("/orders\n"), detail.Emissions[1].Bytes)
}

func TestRun_ScriptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib.risor"), []byte(`
func line(s) {
    return "route " + s + "\n"
}
`), 0o644))
	script := filepath.Join(dir, "routes.risor")
	require.NoError(t, os.WriteFile(script, []byte(`
import lib
facts.version("0.1.0")
loc := {"crate_name": "std", "path": ["net", "http", "ServeMux", "HandleFunc"]}
for _, c := range facts.query_method_calls({"location": loc}) {
    facts.emit(lib.line(c["args"][0]["variant_data"]))
}
`), 0o644))

	e, out, _ := newTestEngine(t, routesProgram())
	res, err := e.Run(context.Background(), script)
	require.NoError(t, err)
	assert.Equal(t, store.StatusOK, res.Status)
	assert.Equal(t, "route /users\nroute /orders\n", out.String())
}

func TestRun_MissingScript(t *testing.T) {
	e, _, _ := newTestEngine(t, routesProgram())
	_, err := e.Run(context.Background(), filepath.Join(t.TempDir(), "nope.risor"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read script")
}

func TestRunSource_ScriptErrorFailsRun(t *testing.T) {
	s := newTestStore(t)
	e, _, _ := newTestEngine(t, routesProgram(), WithStore(s))

	res, err := e.RunSource(context.Background(), `no_such_function()`)
	require.Error(t, err)
	assert.Equal(t, store.StatusFailed, res.Status)

	detail, err := s.Run(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, detail.Status)
}

func TestRunSource_ErrorDiagnosticFailsRun(t *testing.T) {
	e, _, _ := newTestEngine(t, routesProgram())

	res, err := e.RunSource(context.Background(), `
facts.version("0.1.0")
facts.warn("careful")
facts.error("bad input")
`)
	require.NoError(t, err, "error diagnostics do not stop the script")
	assert.Equal(t, store.StatusFailed, res.Status)
	assert.Equal(t, int64(1), res.Warnings)
	assert.Equal(t, int64(1), res.Errors)
}

func TestRunSource_FatalStopsRun(t *testing.T) {
	s := newTestStore(t)
	e, out, exits := newTestEngine(t, routesProgram(), WithStore(s))

	res, err := e.RunSource(context.Background(), `
facts.version("0.1.0")
facts.emit("before\n")
facts.fatal_error("cannot continue")
facts.emit("after\n")
`)
	require.ErrorIs(t, err, ErrFatal)
	assert.Contains(t, err.Error(), "cannot continue")
	assert.Equal(t, store.StatusFatal, res.Status)
	assert.Equal(t, []int{1}, exits.codes)
	assert.Equal(t, "before\n", out.String())

	detail, err := s.Run(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFatal, detail.Status)
	var levels []string
	for _, d := range detail.Diagnostics {
		levels = append(levels, d.Level)
	}
	assert.Contains(t, levels, string(diag.LevelFatal))

	runs, err := s.Runs(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1, "a fatal run is committed once")
}

func TestRunSource_FatalFlushesBeforeExit(t *testing.T) {
	var out bytes.Buffer
	var atExit string
	path := filepath.Join(t.TempDir(), "out.txt")
	var fileAtExit []byte

	e, err := New(context.Background(), config.DefaultConfig(),
		WithProgram(routesProgram()),
		WithLogger(discardLogger()),
		WithOutput(NewSink("", &out)),
		WithExitFunc(func(int) { atExit = out.String() }),
	)
	require.NoError(t, err)
	_, err = e.RunSource(context.Background(), "facts.version(\"0.1.0\")\nfacts.emit(\"before\\n\")\nfacts.fatal_error(\"boom\")")
	require.ErrorIs(t, err, ErrFatal)
	assert.Equal(t, "before\n", atExit)
	assert.Equal(t, "before\n", out.String(), "text flushed at exit is not written twice")

	e, err = New(context.Background(), config.DefaultConfig(),
		WithProgram(routesProgram()),
		WithLogger(discardLogger()),
		WithOutput(NewSink(path, nil)),
		WithExitFunc(func(int) { fileAtExit, _ = os.ReadFile(path) }),
	)
	require.NoError(t, err)
	_, err = e.RunSource(context.Background(), "facts.version(\"0.1.0\")\nfacts.emit(\"partial\\n\")\nfacts.fatal_error(\"boom\")")
	require.ErrorIs(t, err, ErrFatal)
	assert.Equal(t, "partial\n", string(fileAtExit))
}

func TestRunSource_VersionSetTwiceFailsRun(t *testing.T) {
	s := newTestStore(t)
	e, _, _ := newTestEngine(t, routesProgram(), WithStore(s))

	res, err := e.RunSource(context.Background(), "facts.version(\"0.1.0\")\nfacts.version(\"0.2.0\")")
	require.ErrorIs(t, err, provision.ErrVersionSetTwice)
	assert.Equal(t, store.StatusFailed, res.Status)

	detail, err := s.Run(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, detail.Status)

	res, err = e.RunSource(context.Background(), `
facts.version("0.1.0")
try(func() { facts.version("0.1.0") }, "caught")
`)
	require.ErrorIs(t, err, provision.ErrVersionSetTwice, "a caught repeat still fails the run")
	assert.Equal(t, store.StatusFailed, res.Status)

	_, err = e.RunSource(context.Background(), "facts.version(\"0.1.0\")\nfacts.dbg_version(\"latest\")\nfacts.dbg_version(\"latest\")")
	require.ErrorIs(t, err, provision.ErrVersionSetTwice)
}

func TestRunSource_MissingVersionFailsRun(t *testing.T) {
	e, out, _ := newTestEngine(t, routesProgram())

	res, err := e.RunSource(context.Background(), `facts.emit("x")`)
	require.ErrorIs(t, err, provision.ErrNoVersion)
	assert.Equal(t, store.StatusFailed, res.Status)
	assert.Equal(t, "x", out.String())

	_, err = e.RunSource(context.Background(), "facts.dbg_version(\"latest\")")
	require.ErrorIs(t, err, provision.ErrNoVersion, "dbg_version alone is not a version")
}

func TestRunSource_OutputResetBetweenRuns(t *testing.T) {
	e, _, _ := newTestEngine(t, routesProgram(), WithOutput(NewSink("", nil)))

	_, err := e.RunSource(context.Background(), "facts.version(\"0.1.0\")\nfacts.emit(\"one\")")
	require.NoError(t, err)
	_, err = e.RunSource(context.Background(), "facts.version(\"0.1.0\")\nfacts.emit(\"two\")")
	require.NoError(t, err)
	assert.Equal(t, "two", string(e.Output().Bytes()))
}

func TestNew_KnownTypesFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.KnownTypes = map[string]string{"app::Shared": "unwrap"}
	_, err := New(context.Background(), cfg, WithProgram(hosttest.NewProgram()))
	require.NoError(t, err)

	cfg.KnownTypes = map[string]string{"app::Shared": "bogus"}
	_, err = New(context.Background(), cfg, WithProgram(hosttest.NewProgram()))
	require.Error(t, err)
}

func TestSession_EvalAndClose(t *testing.T) {
	s := newTestStore(t)
	e, out, _ := newTestEngine(t, routesProgram(), WithStore(s))
	ctx := context.Background()

	sess := e.Session(ctx)
	obj, err := sess.Eval(ctx, `len(facts.query_method_calls({"location": {"crate_name": "std", "path": ["net", "http", "ServeMux", "HandleFunc"]}}))`)
	require.NoError(t, err)
	require.NotNil(t, obj)
	assert.Equal(t, "2", obj.Inspect())

	_, err = sess.Eval(ctx, `facts.emit("hi\n")`)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", out.String())

	res := sess.Close(ctx)
	assert.Equal(t, store.StatusOK, res.Status)
	detail, err := s.Run(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "<repl>", detail.Script)
	assert.Len(t, detail.Queries, 1)
}

func TestSession_FatalKeepsRecording(t *testing.T) {
	s := newTestStore(t)
	e, out, exits := newTestEngine(t, routesProgram(), WithStore(s))
	ctx := context.Background()
	query := `facts.query_method_calls({"location": {"crate_name": "std", "path": ["net", "http", "ServeMux", "HandleFunc"]}})`

	sess := e.Session(ctx)
	_, err := sess.Eval(ctx, query+"\nfacts.emit(\"first\\n\")\nfacts.fatal_error(\"boom\")")
	require.Error(t, err)
	assert.Equal(t, []int{1}, exits.codes)
	assert.Equal(t, "first\n", out.String())

	runs, err := s.Runs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs, "a session commits on Close")

	_, err = sess.Eval(ctx, query)
	require.NoError(t, err)

	res := sess.Close(ctx)
	assert.Equal(t, store.StatusFatal, res.Status)
	detail, err := s.Run(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFatal, detail.Status)
	assert.Len(t, detail.Queries, 2)
}

func TestExampleScript_HTTPRoutes(t *testing.T) {
	src, err := fs.ReadFile(scripts.FS, scripts.Default)
	require.NoError(t, err)

	e, out, _ := newTestEngine(t, routesProgram())
	res, err := e.RunSource(context.Background(), string(src))
	require.NoError(t, err)
	assert.Equal(t, store.StatusOK, res.Status)

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "| Pattern | Registration | Registered in |", lines[0])
	assert.True(t, strings.HasPrefix(lines[2], "| `/users` | HandleFunc | "), lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "| `/orders` | HandleFunc | "), lines[3])
}

func TestRunFS_ImportsFromFS(t *testing.T) {
	fsys := fstest.MapFS{
		"main.risor":   {Data: []byte("import fmtlib\nfacts.version(\"0.1.0\")\nfacts.emit(fmtlib.bold(\"x\"))\n")},
		"fmtlib.risor": {Data: []byte("func bold(s) {\n    return \"**\" + s + \"**\"\n}\n")},
	}
	e, out, _ := newTestEngine(t, routesProgram())
	res, err := e.RunFS(context.Background(), fsys, "main.risor")
	require.NoError(t, err)
	assert.Equal(t, store.StatusOK, res.Status)
	assert.Equal(t, "**x**", out.String())

	_, err = e.RunFS(context.Background(), fsys, "missing.risor")
	require.Error(t, err)
}

func TestExampleScript_NoRoutes(t *testing.T) {
	src, err := fs.ReadFile(scripts.FS, scripts.Default)
	require.NoError(t, err)

	e, out, _ := newTestEngine(t, hosttest.NewProgram())
	res, err := e.RunSource(context.Background(), string(src))
	require.NoError(t, err)
	assert.Equal(t, store.StatusOK, res.Status)
	assert.Empty(t, out.String())
}

func TestDescribeQuery(t *testing.T) {
	q := fact.MethodCallQuery{
		Location: fact.Location{CrateName: "app", Path: []string{"B", "bar"}},
		Parent:   &fact.MethodCallQuery{Location: fact.Location{CrateName: "app", Path: []string{"B", "foo"}}},
	}
	assert.Equal(t, "app::B::foo -> app::B::bar", describeQuery(q))
}

// =============================================================================
// Sink
// =============================================================================

func TestSink_FlushToWriter(t *testing.T) {
	var buf bytes.Buffer
	s := NewSink("", &buf)
	require.NoError(t, s.Emit("a"))
	require.NoError(t, s.Emit("b"))
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, "ab", buf.String())
	assert.Equal(t, []byte("ab"), s.Bytes())
}

func TestSink_FlushToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.md")
	s := NewSink(path, nil)
	require.NoError(t, s.Emit("| route |\n"))
	require.NoError(t, s.Flush(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "| route |\n", string(data))

	s.Reset()
	require.NoError(t, s.Emit("replaced\n"))
	require.NoError(t, s.Flush(context.Background()))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "replaced\n", string(data))
}

func TestSink_FlushToMemURL(t *testing.T) {
	ctx := context.Background()
	url := "mem://localhost/gofacts/out.txt"
	s := NewSink(url, nil)
	require.NoError(t, s.Emit("hello"))
	require.NoError(t, s.Flush(ctx))

	data, err := afs.New().DownloadWithURL(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestSink_ConcurrentEmitKeepsLinesWhole(t *testing.T) {
	s := NewSink("", nil)
	line := strings.Repeat("x", 64) + "\n"

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = s.Emit(line)
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(string(s.Bytes()), "\n"), "\n")
	require.Len(t, lines, 400)
	for _, l := range lines {
		assert.Equal(t, strings.TrimSuffix(line, "\n"), l)
	}
}
