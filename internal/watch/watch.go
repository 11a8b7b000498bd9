// Package watch reruns analysis when the analysed project changes: it
// watches a directory tree with fsnotify, debounces bursts of events and
// drops events whose file contents did not actually change.
package watch

import (
	"context"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/minio/highwayhash"
)

var hashKey = []byte("gofacts-watch-content-hash-key!!")

// Config configures the watcher
type Config struct {
	// Root is the directory tree to watch
	Root string

	// Extensions are the file suffixes that trigger a rerun (e.g. ".go")
	Extensions []string

	// Files are extra files outside Root to watch, such as the script
	Files []string

	// Exclude reports whether a slash-separated path relative to Root is
	// ignored. Nil excludes nothing.
	Exclude func(rel string) bool

	// Debounce is how long to wait for more changes before reporting
	Debounce time.Duration

	Logger *slog.Logger
}

// Change is a settled batch of content changes.
type Change struct {
	// Paths are the changed files, sorted
	Paths []string
}

// Watcher reports settled content changes on its Changes channel.
type Watcher struct {
	config  Config
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	// Debouncing: collect changes before processing
	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op
	lastEvent time.Time

	// Content hashes of every tracked file
	hashMu sync.Mutex
	hashes map[string]string

	changes chan Change
}

// New creates a watcher. Call Start to begin watching.
func New(config Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Debounce <= 0 {
		config.Debounce = 100 * time.Millisecond
	}
	if root, err := filepath.Abs(config.Root); err == nil {
		config.Root = root
	}

	return &Watcher{
		config:  config,
		watcher: fsw,
		logger:  logger,
		pending: make(map[string]fsnotify.Op),
		hashes:  make(map[string]string),
		changes: make(chan Change, 16),
	}, nil
}

// Changes returns the channel of settled changes. It is closed when the
// context passed to Start is done.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Start records the current contents, adds watches and begins processing
// events in the background.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addWatchesRecursive(w.config.Root); err != nil {
		return err
	}
	for _, f := range w.config.Files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		if err := w.watcher.Add(filepath.Dir(abs)); err != nil {
			return err
		}
		w.rehash(abs)
	}

	go w.processEvents(ctx)

	w.logger.Info("File watcher started",
		"root", w.config.Root,
		"debounce", w.config.Debounce)
	return nil
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			if w.tracked(path) {
				w.rehash(path)
			}
			return nil
		}
		if path != root && w.skipDir(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) skipDir(path string) bool {
	base := filepath.Base(path)
	if base == "vendor" || base == "target" || strings.HasPrefix(base, ".") {
		return true
	}
	return w.excluded(path)
}

func (w *Watcher) excluded(path string) bool {
	if w.config.Exclude == nil {
		return false
	}
	rel, err := filepath.Rel(w.config.Root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	return w.config.Exclude(filepath.ToSlash(rel))
}

// tracked reports whether changes to path matter.
func (w *Watcher) tracked(path string) bool {
	for _, f := range w.config.Files {
		if abs, err := filepath.Abs(f); err == nil && abs == path {
			return true
		}
	}
	if w.excluded(path) {
		return false
	}
	for _, ext := range w.config.Extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.changes)

	ticker := time.NewTicker(w.config.Debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !w.skipDir(path) {
				if err := w.addWatchesRecursive(path); err != nil {
					w.logger.Warn("Failed to watch new directory", "path", path, "error", err)
				}
			}
			return
		}
	}
	if !w.tracked(path) {
		return
	}

	w.pendingMu.Lock()
	w.pending[path] |= event.Op
	w.lastEvent = time.Now()
	w.pendingMu.Unlock()

	w.logger.Debug("File change detected", "path", path, "op", event.Op.String())
}

// flushPending reports pending paths once no event arrived for a full
// debounce interval.
func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 || time.Since(w.lastEvent) < w.config.Debounce {
		w.pendingMu.Unlock()
		return
	}
	toProcess := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	var changed []string
	for path := range toProcess {
		if w.rehash(path) {
			changed = append(changed, path)
		}
	}
	if len(changed) == 0 {
		w.logger.Debug("Changes left contents unchanged, skipping")
		return
	}
	slices.Sort(changed)

	select {
	case w.changes <- Change{Paths: changed}:
	case <-ctx.Done():
	}
}

// rehash updates the stored hash of path and reports whether it differs
// from the previous one. A missing file hashes to "".
func (w *Watcher) rehash(path string) bool {
	sum, err := hashFile(path)
	if err != nil && !os.IsNotExist(err) {
		w.logger.Warn("Failed to hash file", "path", path, "error", err)
	}

	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	old, had := w.hashes[path]
	if sum == "" {
		delete(w.hashes, path)
		return had
	}
	w.hashes[path] = sum
	return !had || old != sum
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h, err := highwayhash.New64(hashKey)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
