package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jward/gofacts"
	"github.com/jward/gofacts/internal/config"
	"github.com/jward/gofacts/internal/provision"
	"github.com/jward/gofacts/internal/store"
	"github.com/jward/gofacts/internal/watch"
	"github.com/jward/gofacts/scripts"
)

var (
	flagLang        string
	flagOut         string
	flagWatch       bool
	flagNoProvision bool
	flagExample     string
)

var runCmd = &cobra.Command{
	Use:   "run [script]",
	Short: "Run a fact script against the project",
	Long: `Loads the project, runs the script and writes what it emits to stdout or --out.

The script must call facts.version first. When the running binary does not
match the requested version, the requested one is installed and run instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&flagLang, "lang", "", "program language: go|rust (default from config)")
	runCmd.Flags().StringVar(&flagOut, "out", "", "output path or afs URL (default: stdout)")
	runCmd.Flags().BoolVar(&flagWatch, "watch", false, "rerun whenever the project or script changes")
	runCmd.Flags().BoolVar(&flagNoProvision, "no-provision", false, "run on this binary whatever version the script requests")
	runCmd.Flags().StringVar(&flagExample, "example", "", "run a bundled example script by name (e.g. http_routes.risor)")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(os.Stderr)
	cfg, err := loadConfig(logger)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cfg); err != nil {
		return err
	}

	script, err := newScriptSource(cfg, args)
	if err != nil {
		return err
	}
	src, err := script.read()
	if err != nil {
		return fmt.Errorf("reading script: %w", err)
	}

	if !flagNoProvision && !cfg.Provision.Disabled {
		bin, err := provisionBinary(ctx, cfg, string(src), logger)
		if err != nil {
			return err
		}
		if bin != "" {
			logger.Debug("re-executing provisioned binary", "bin", bin)
			return provision.Reexec(ctx, bin, reexecArgs(os.Args[1:]), os.Stdin, os.Stdout, os.Stderr)
		}
	}

	opts := []gofacts.Option{gofacts.WithLogger(logger)}
	if path := resolveDBPath(cfg); path != "" {
		s, err := openStore(path)
		if err != nil {
			return err
		}
		defer s.Close()
		opts = append(opts, gofacts.WithStore(s))
	}
	if flagWatch {
		opts = append(opts, gofacts.WithExitFunc(func(int) {}))
	}

	engine, err := gofacts.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}

	if !flagWatch {
		return checkResult(script.run(ctx, engine))
	}
	return watchAndRun(ctx, cfg, engine, script, logger)
}

// scriptSource is a script on disk, or a bundled example when path is
// empty.
type scriptSource struct {
	path    string
	example string
}

func newScriptSource(cfg *config.Config, args []string) (scriptSource, error) {
	if flagExample == "" {
		abs, err := filepath.Abs(resolveScriptPath(cfg, args))
		if err != nil {
			return scriptSource{}, err
		}
		return scriptSource{path: abs}, nil
	}
	if len(args) > 0 {
		return scriptSource{}, fmt.Errorf("--example and a script argument are mutually exclusive")
	}
	return scriptSource{example: flagExample}, nil
}

func (s scriptSource) read() ([]byte, error) {
	if s.path != "" {
		return os.ReadFile(s.path)
	}
	return fs.ReadFile(scripts.FS, s.example)
}

func (s scriptSource) run(ctx context.Context, engine *gofacts.Engine) (*gofacts.Result, error) {
	if s.path != "" {
		return engine.Run(ctx, s.path)
	}
	return engine.RunFS(ctx, scripts.FS, s.example)
}

// applyRunFlags overrides config values with the flags that were set.
func applyRunFlags(cfg *config.Config) error {
	if flagLang != "" {
		cfg.Lang = flagLang
	}
	if flagOut != "" {
		cfg.Output = flagOut
	}
	return cfg.Validate()
}

// resolveScriptPath returns the script argument, or the config's script
// relative to the project root.
func resolveScriptPath(cfg *config.Config, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	if filepath.IsAbs(cfg.Script) {
		return cfg.Script
	}
	return filepath.Join(cfg.Root, cfg.Script)
}

// provisionBinary returns the path of the binary that should run src, or ""
// when this one satisfies its version request.
func provisionBinary(ctx context.Context, cfg *config.Config, src string, logger *slog.Logger) (string, error) {
	req, err := provision.Preflight(ctx, src, logger)
	if err != nil {
		return "", err
	}
	running := provision.CurrentVersion()
	want := req.Effective(provision.IsDevBuild(running))
	if provision.Satisfies(running, want) {
		return "", nil
	}
	logger.Debug("version mismatch", "running", running, "requested", want.String())

	inst, err := provision.NewInstaller(cfg.Provision.CacheDir, logger)
	if err != nil {
		return "", err
	}
	return inst.Install(ctx, want)
}

// reexecArgs keeps the original arguments and stops the child from
// provisioning again.
func reexecArgs(args []string) []string {
	if slices.Contains(args, "--no-provision") {
		return args
	}
	return append(slices.Clone(args), "--no-provision")
}

// checkResult turns a run that recorded error diagnostics into an error.
func checkResult(res *gofacts.Result, err error) error {
	if err != nil {
		return err
	}
	if res.Status != store.StatusOK {
		return fmt.Errorf("run %s %s with %d errors", res.RunID, res.Status, res.Errors)
	}
	return nil
}

// watchAndRun runs the script, then again after every settled change until
// ctx is done. Source changes reload the program first.
func watchAndRun(ctx context.Context, cfg *config.Config, engine *gofacts.Engine, script scriptSource, logger *slog.Logger) error {
	var files []string
	if script.path != "" {
		files = append(files, script.path)
	}
	w, err := watch.New(watch.Config{
		Root:       cfg.Root,
		Extensions: watchExtensions(cfg.Lang),
		Files:      files,
		Exclude:    cfg.Excluded,
		Debounce:   cfg.Watch.Debounce,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}

	rerun := func() {
		if err := checkResult(script.run(ctx, engine)); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
	}
	rerun()

	for change := range w.Changes() {
		if !onlyScript(change.Paths, script.path) {
			if err := engine.Reload(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				continue
			}
		}
		rerun()
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

func watchExtensions(lang string) []string {
	if lang == config.LangRust {
		return []string{".rs", ".risor", "Cargo.toml"}
	}
	return []string{".go", ".risor", "go.mod"}
}

// onlyScript reports whether every changed path is the script itself.
func onlyScript(paths []string, script string) bool {
	for _, p := range paths {
		if p != script {
			return false
		}
	}
	return len(paths) > 0
}
