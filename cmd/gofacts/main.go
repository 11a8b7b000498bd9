package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/gofacts/internal/config"
	"github.com/jward/gofacts/internal/provision"
	"github.com/jward/gofacts/internal/store"
)

var (
	flagDB      string
	flagFormat  string
	flagVerbose bool
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *provision.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "gofacts",
	Short:         "Run fact scripts against a program's semantic model",
	Long:          "gofacts loads a Go module or Rust crate, elevates its items and expressions into facts, and runs Risor scripts that query them.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
	// No Run — prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "run log database path (default: .gofacts/runs.db under the project root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "text", "output format for runs and show: json|text")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log at debug level")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(replCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

// newLogger writes text records to w, at debug level with --verbose.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig layers the user and project configs found from the working
// directory.
func loadConfig(logger *slog.Logger) (*config.Config, error) {
	cfg, err := config.NewLoader(logger).Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// resolveDBPath returns the database path from the --db flag, the config,
// or "" when the run log is disabled.
func resolveDBPath(cfg *config.Config) string {
	path := cfg.DB
	if flagDB != "" {
		path = flagDB
	}
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(cfg.Root, path)
}

// openStore opens and migrates the run log, creating its directory.
func openStore(path string) (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	s, err := store.NewStore(path)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// openExistingStore opens the run log for reading.
func openExistingStore(path string) (*store.Store, error) {
	if path == "" {
		return nil, fmt.Errorf("run log disabled (set db in gofacts.yaml or pass --db)")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'gofacts run' first)", path)
	}
	return openStore(path)
}
