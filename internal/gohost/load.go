// Package gohost is the program oracle for Go projects: it loads and
// type-checks packages with go/packages and presents them through the
// host.Program interface. The module path plays the role of the crate
// name; standard library packages belong to the "std" crate.
package gohost

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/tools/go/packages"
)

// StdCrate is the crate name of standard library packages.
const StdCrate = "std"

// Options configures Load.
type Options struct {
	// Dir is the directory packages are loaded from (default: cwd)
	Dir string
	// Patterns are go/packages patterns (default: ./...)
	Patterns []string
	// Tests includes test packages
	Tests bool
	// Exclude reports whether a slash-separated file path relative to the
	// module root is skipped
	Exclude func(rel string) bool

	Logger *slog.Logger
}

// LoadMode is what Load asks go/packages for: syntax and type information
// for the matched packages, export data for their dependencies.
const LoadMode = packages.NeedName | packages.NeedFiles | packages.NeedImports |
	packages.NeedTypes | packages.NeedTypesInfo | packages.NeedSyntax

// Load type-checks the packages matching opts.Patterns and indexes them.
// Packages with errors are reported and still indexed as far as their type
// information goes; Load fails only when nothing could be type-checked.
func Load(ctx context.Context, opts Options) (*Program, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	patterns := opts.Patterns
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("gohost: %w", err)
	}

	mod, err := findModule(dir)
	if err != nil {
		return nil, err
	}

	cfg := &packages.Config{
		Context: ctx,
		Mode:    LoadMode,
		Dir:     dir,
		Tests:   opts.Tests,
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("gohost: load packages: %w", err)
	}

	var usable []*packages.Package
	for _, p := range pkgs {
		for _, e := range p.Errors {
			logger.Warn("package error", "package", p.PkgPath, "error", e.Msg)
		}
		if p.Types != nil && p.TypesInfo != nil {
			usable = append(usable, p)
		}
	}
	if len(usable) == 0 {
		return nil, fmt.Errorf("gohost: no packages matching %s could be type-checked in %s", strings.Join(patterns, " "), dir)
	}
	sort.Slice(usable, func(i, j int) bool { return usable[i].ID < usable[j].ID })

	logger.Debug("loaded packages", "count", len(usable), "module", mod.path)
	return newProgram(usable, mod, opts.Exclude, logger), nil
}

// moduleInfo is the main module and the modules it requires.
type moduleInfo struct {
	path     string
	dir      string
	requires []string
}

// findModule locates and parses the go.mod governing dir.
func findModule(dir string) (moduleInfo, error) {
	for d := dir; ; {
		gomod := filepath.Join(d, "go.mod")
		data, err := os.ReadFile(gomod)
		if err == nil {
			f, err := modfile.ParseLax(gomod, data, nil)
			if err != nil {
				return moduleInfo{}, fmt.Errorf("gohost: parse %s: %w", gomod, err)
			}
			if f.Module == nil {
				return moduleInfo{}, fmt.Errorf("gohost: %s has no module directive", gomod)
			}
			mi := moduleInfo{path: f.Module.Mod.Path, dir: d}
			for _, r := range f.Require {
				mi.requires = append(mi.requires, r.Mod.Path)
			}
			// Longest first so nested module paths win.
			sort.Slice(mi.requires, func(i, j int) bool { return len(mi.requires[i]) > len(mi.requires[j]) })
			return mi, nil
		}
		parent := filepath.Dir(d)
		if parent == d {
			return moduleInfo{}, fmt.Errorf("gohost: no go.mod found above %s", dir)
		}
		d = parent
	}
}

// crateOf splits an import path into crate name and module-relative path
// segments.
func (m moduleInfo) crateOf(pkgPath string) (string, []string) {
	if rest, ok := cutModule(pkgPath, m.path); ok {
		return m.path, rest
	}
	first, _, _ := strings.Cut(pkgPath, "/")
	if !strings.Contains(first, ".") {
		return StdCrate, strings.Split(pkgPath, "/")
	}
	for _, r := range m.requires {
		if rest, ok := cutModule(pkgPath, r); ok {
			return r, rest
		}
	}
	return pkgPath, nil
}

func cutModule(pkgPath, mod string) ([]string, bool) {
	if pkgPath == mod {
		return nil, true
	}
	rest, ok := strings.CutPrefix(pkgPath, mod+"/")
	if !ok {
		return nil, false
	}
	return strings.Split(rest, "/"), true
}
