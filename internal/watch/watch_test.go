package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, cfg Config) *Watcher {
	t.Helper()
	cfg.Debounce = 50 * time.Millisecond
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	w, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		w.Close()
	})
	require.NoError(t, w.Start(ctx))
	return w
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func expectChange(t *testing.T, w *Watcher) Change {
	t.Helper()
	select {
	case c := <-w.Changes():
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change")
		return Change{}
	}
}

func expectNoChange(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case c := <-w.Changes():
		t.Fatalf("unexpected change: %v", c.Paths)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestWatcher_ReportsContentChange(t *testing.T) {
	root := t.TempDir()
	main := filepath.Join(root, "main.go")
	write(t, main, "package main\n")

	w := startWatcher(t, Config{Root: root, Extensions: []string{".go"}})

	write(t, main, "package main\n\nfunc main() {}\n")
	c := expectChange(t, w)
	assert.Equal(t, []string{main}, c.Paths)
}

func TestWatcher_SkipsUnchangedContent(t *testing.T) {
	root := t.TempDir()
	main := filepath.Join(root, "main.go")
	write(t, main, "package main\n")

	w := startWatcher(t, Config{Root: root, Extensions: []string{".go"}})

	write(t, main, "package main\n")
	expectNoChange(t, w)
}

func TestWatcher_IgnoresOtherExtensionsAndExcluded(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "gen", "x.go"), "package gen\n")

	w := startWatcher(t, Config{
		Root:       root,
		Extensions: []string{".go"},
		Exclude:    func(rel string) bool { return strings.HasPrefix(rel, "gen/") },
	})

	write(t, filepath.Join(root, "README.md"), "hi\n")
	write(t, filepath.Join(root, "gen", "x.go"), "package gen\n\nvar X = 1\n")
	expectNoChange(t, w)
}

func TestWatcher_NewDirectory(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, Config{Root: root, Extensions: []string{".rs"}})

	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	time.Sleep(100 * time.Millisecond)
	lib := filepath.Join(root, "src", "lib.rs")
	write(t, lib, "fn main() {}\n")

	c := expectChange(t, w)
	assert.Contains(t, c.Paths, lib)
}

func TestWatcher_ExtraFile(t *testing.T) {
	root := t.TempDir()
	scripts := t.TempDir()
	script := filepath.Join(scripts, "facts.risor")
	write(t, script, "facts.version('0.1.0')\n")

	w := startWatcher(t, Config{Root: root, Extensions: []string{".go"}, Files: []string{script}})

	write(t, filepath.Join(scripts, "other.txt"), "x")
	write(t, script, "facts.version('0.2.0')\n")
	c := expectChange(t, w)
	assert.Equal(t, []string{script}, c.Paths)
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	write(t, a, "same")
	b := filepath.Join(dir, "b")
	write(t, b, "same")

	ha, err := hashFile(a)
	require.NoError(t, err)
	hb, err := hashFile(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 16)

	_, err = hashFile(filepath.Join(dir, "missing"))
	assert.True(t, os.IsNotExist(err))
}
