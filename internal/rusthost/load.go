// Package rusthost is a syntactic program oracle for Rust crates. It
// parses src/ with tree-sitter and resolves names through use
// declarations, the prelude and the crate's own module tree. Types are the
// written ones; expressions are typed only as far as literals, annotated
// bindings and resolved calls allow.
package rusthost

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	ignore "github.com/sabhiram/go-gitignore"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

// Options configures Load.
type Options struct {
	// Dir is the crate root holding Cargo.toml (default: cwd)
	Dir string
	// Exclude reports whether a slash-separated path relative to Dir is
	// skipped
	Exclude func(rel string) bool

	Logger *slog.Logger
}

var (
	grammar     *sitter.Language
	grammarOnce sync.Once
)

func language() *sitter.Language {
	grammarOnce.Do(func() {
		grammar = rust.GetLanguage()
	})
	return grammar
}

// Manifest is the part of Cargo.toml the oracle reads.
type Manifest struct {
	// Crate is the lib target name, or else the package name, with
	// hyphens turned into underscores
	Crate string
	// Deps are the dependency crate names, normalized the same way
	Deps []string
}

type depTables struct {
	Dependencies      map[string]toml.Primitive `toml:"dependencies"`
	DevDependencies   map[string]toml.Primitive `toml:"dev-dependencies"`
	BuildDependencies map[string]toml.Primitive `toml:"build-dependencies"`
}

func (t depTables) names() []string {
	var out []string
	for _, deps := range []map[string]toml.Primitive{t.Dependencies, t.DevDependencies, t.BuildDependencies} {
		for name := range deps {
			out = append(out, crateName(name))
		}
	}
	return out
}

type cargoManifest struct {
	Package struct {
		Name string `toml:"name"`
	} `toml:"package"`
	Lib struct {
		Name string `toml:"name"`
	} `toml:"lib"`
	Dependencies      map[string]toml.Primitive `toml:"dependencies"`
	DevDependencies   map[string]toml.Primitive `toml:"dev-dependencies"`
	BuildDependencies map[string]toml.Primitive `toml:"build-dependencies"`
	Target            map[string]depTables      `toml:"target"`
}

// ParseManifest reads the crate name and the dependency names of a
// Cargo.toml. A [lib] name overrides the package name, as it does for
// rustc. Target-specific dependency tables count as dependencies.
func ParseManifest(data []byte) (Manifest, error) {
	var cm cargoManifest
	if _, err := toml.Decode(string(data), &cm); err != nil {
		return Manifest{}, fmt.Errorf("rusthost: parse Cargo.toml: %w", err)
	}
	name := cm.Lib.Name
	if name == "" {
		name = cm.Package.Name
	}
	if name == "" {
		return Manifest{}, fmt.Errorf("rusthost: Cargo.toml has no [package] name")
	}
	deps := depTables{cm.Dependencies, cm.DevDependencies, cm.BuildDependencies}.names()
	for _, t := range cm.Target {
		deps = append(deps, t.names()...)
	}
	slices.Sort(deps)
	return Manifest{Crate: crateName(name), Deps: slices.Compact(deps)}, nil
}

func crateName(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "-", "_")
}

// Load parses the crate rooted at opts.Dir.
func Load(ctx context.Context, opts Options) (*Program, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("rusthost: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "Cargo.toml"))
	if err != nil {
		return nil, fmt.Errorf("rusthost: read manifest: %w", err)
	}
	manifest, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}

	files, err := discover(dir, opts.Exclude)
	if err != nil {
		return nil, err
	}
	sources := make(map[string][]byte, len(files))
	for _, rel := range files {
		src, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("rusthost: read %s: %w", rel, err)
		}
		sources[rel] = src
	}
	logger.Debug("parsing crate", "crate", manifest.Crate, "files", len(sources))
	return Parse(ctx, manifest, sources, logger)
}

// discover lists the .rs files under src/, relative to dir, honoring
// .gitignore and the exclude predicate. Binary targets under src/bin are
// separate crates and are skipped.
func discover(dir string, exclude func(string) bool) ([]string, error) {
	var gi *ignore.GitIgnore
	if g, err := ignore.CompileIgnoreFile(filepath.Join(dir, ".gitignore")); err == nil {
		gi = g
	}

	srcDir := filepath.Join(dir, "src")
	var files []string
	err := filepath.WalkDir(srcDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel == "src/bin" || (path != srcDir && strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			if path != srcDir && (ignored(gi, rel) || (exclude != nil && exclude(rel))) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(rel, ".rs") {
			return nil
		}
		if ignored(gi, rel) {
			return nil
		}
		if exclude != nil && exclude(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rusthost: walk %s: %w", srcDir, err)
	}
	sort.Strings(files)
	return files, nil
}

func ignored(gi *ignore.GitIgnore, rel string) bool {
	return gi != nil && (gi.MatchesPath(rel) || gi.MatchesPath(rel+"/"))
}

// modulePath maps a file under src/ to its module path.
func modulePath(rel string) ([]string, bool) {
	rest, ok := strings.CutPrefix(rel, "src/")
	if !ok || !strings.HasSuffix(rest, ".rs") {
		return nil, false
	}
	rest = strings.TrimSuffix(rest, ".rs")
	segs := strings.Split(rest, "/")
	last := segs[len(segs)-1]
	switch {
	case len(segs) == 1 && (last == "lib" || last == "main"):
		return nil, true
	case last == "mod":
		return segs[:len(segs)-1], true
	}
	return segs, true
}
