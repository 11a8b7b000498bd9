package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/gofacts/internal/config"
	"github.com/jward/gofacts/scripts"
)

var flagForce bool

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write a default gofacts.yaml and an example script",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		written, err := writeProject(dir, flagLang, flagForce)
		if err != nil {
			return err
		}
		for _, p := range written {
			fmt.Fprintf(os.Stderr, "Wrote %s\n", p)
		}
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&flagForce, "force", false, "overwrite existing files")
	initCmd.Flags().StringVar(&flagLang, "lang", "", "program language: go|rust (default: detected from Cargo.toml)")
}

// writeProject writes gofacts.yaml and the default example script into dir
// and returns the paths written. Existing files are kept unless force.
func writeProject(dir, lang string, force bool) ([]string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path %q: %w", dir, err)
	}

	cfg := config.DefaultConfig()
	cfg.Lang = detectLang(abs, lang)
	if cfg.Lang == config.LangRust {
		cfg.Patterns = nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var written []string
	cfgPath := filepath.Join(abs, config.ProjectConfigFile)
	if force || !exists(cfgPath) {
		if err := cfg.SaveToFile(cfgPath); err != nil {
			return nil, err
		}
		written = append(written, cfgPath)
	}

	scriptPath := filepath.Join(abs, cfg.Script)
	if force || !exists(scriptPath) {
		src, err := fs.ReadFile(scripts.FS, scripts.Default)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(scriptPath, src, 0o644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", scriptPath, err)
		}
		written = append(written, scriptPath)
	}
	return written, nil
}

// detectLang returns lang when set, rust when dir holds a Cargo.toml and
// no go.mod, and go otherwise.
func detectLang(dir, lang string) string {
	if lang != "" {
		return lang
	}
	if exists(filepath.Join(dir, "Cargo.toml")) && !exists(filepath.Join(dir, "go.mod")) {
		return config.LangRust
	}
	return config.LangGo
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
