package gofacts

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/gofacts/internal/config"
	"github.com/jward/gofacts/internal/store"
	"github.com/jward/gofacts/scripts"
)

// writeTree writes files, keyed by slash-separated relative path, under a
// fresh temp dir and returns it.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func newProjectEngine(t *testing.T, cfg *config.Config) (*Engine, *strings.Builder) {
	t.Helper()
	var out strings.Builder
	e, err := New(context.Background(), cfg,
		WithLogger(discardLogger()),
		WithOutput(NewSink("", &out)),
		WithExitFunc(func(int) {}),
	)
	require.NoError(t, err)
	return e, &out
}

// TestIntegration_GoRoutes loads a real module through go/packages and runs
// the bundled example script over it.
func TestIntegration_GoRoutes(t *testing.T) {
	if testing.Short() {
		t.Skip("loads packages with the go command")
	}
	dir := writeTree(t, map[string]string{
		"go.mod": "module example.com/shop\n\ngo 1.22\n",
		"main.go": `package main

import "net/http"

func health(w http.ResponseWriter, r *http.Request) {}

func routes(mux *http.ServeMux) {
	mux.HandleFunc("/health", health)
	mux.Handle("/static/", http.FileServer(http.Dir(".")))
}

func main() {
	mux := http.NewServeMux()
	routes(mux)
	http.ListenAndServe(":8080", mux)
}
`,
	})

	cfg := config.DefaultConfig()
	cfg.Root = dir
	e, out := newProjectEngine(t, cfg)

	src, err := fs.ReadFile(scripts.FS, scripts.Default)
	require.NoError(t, err)
	res, err := e.RunSource(context.Background(), string(src))
	require.NoError(t, err)
	assert.Equal(t, store.StatusOK, res.Status)

	got := out.String()
	assert.Contains(t, got, "| `/static/` | Handle | ")
	assert.Contains(t, got, "| `/health` | HandleFunc | ")
}

const routerSrc = `pub mod handlers;

pub struct Router {
    routes: Vec<String>,
}

impl Router {
    pub fn new() -> Self {
        Router { routes: Vec::new() }
    }

    pub fn route(&mut self, path: &str, handler: fn() -> String) -> &mut Self {
        self.routes.push(path.to_string());
        self
    }
}

pub fn app() -> Router {
    let mut r = Router::new();
    r.route("/health", handlers::health);
    r.route("/users", handlers::users);
    r
}
`

const handlersSrc = `/// Liveness probe.
pub fn health() -> String {
    "ok".to_string()
}

#[deprecated]
pub fn users() -> String {
    String::new()
}
`

// TestIntegration_RustRouter parses a crate with tree-sitter and queries
// calls, functions and attributes from a script.
func TestIntegration_RustRouter(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"Cargo.toml":        "[package]\nname = \"router-demo\"\nversion = \"0.1.0\"\n",
		"src/lib.rs":        routerSrc,
		"src/handlers.rs":   handlersSrc,
		"target/debug/x.rs": "pub fn built() {}\n",
		"src/bin/serve.rs":  "fn main() {}\n",
	})

	cfg := config.DefaultConfig()
	cfg.Root = dir
	cfg.Lang = config.LangRust
	e, out := newProjectEngine(t, cfg)

	res, err := e.RunSource(context.Background(), `
facts.version("0.1.0")
route := {"crate_name": "router_demo", "path": ["route"], "impl_block_number": 0}
for _, c := range facts.query_method_calls({"location": route}) {
    facts.emit("route " + c["args"][0]["variant_data"] + "\n")
}
for _, f := range facts.query_functions({"crate_name": "router_demo", "path": ["handlers", "users"]}) {
    for _, a := range f["attributes"] {
        facts.emit("attr " + a["name"] + "\n")
    }
}
`)
	require.NoError(t, err)
	assert.Equal(t, store.StatusOK, res.Status)
	assert.Equal(t, "route /health\nroute /users\nattr deprecated\n", out.String())
}
