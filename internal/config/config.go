// Package config provides configuration loading and management for gofacts.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/jward/gofacts/internal/elevate"
)

// Config represents the complete gofacts configuration
type Config struct {
	// Script is the fact script run when none is given on the command line
	Script string `yaml:"script"`
	// Lang selects the program oracle: go or rust
	Lang string `yaml:"lang"`
	// Root is the project directory to analyse (default: current directory)
	Root string `yaml:"root"`
	// Output is where emitted text goes: a path or afs URL, empty for stdout
	Output string `yaml:"output"`
	// Patterns are the package patterns loaded for Go projects
	Patterns []string `yaml:"patterns"`
	// Exclude are doublestar globs, relative to Root, of files to skip
	Exclude []string `yaml:"exclude"`
	// DB is the run log database path (empty disables the run log)
	DB string `yaml:"db"`
	// KnownTypes adds to or overrides the built-in container folds, keyed by
	// declaration path (e.g. "mycrate::util::Shared: unwrap")
	KnownTypes map[string]string `yaml:"known_types"`

	Watch     WatchConfig     `yaml:"watch"`
	Provision ProvisionConfig `yaml:"provision"`
}

// WatchConfig configures watch mode
type WatchConfig struct {
	// Debounce is how long to wait for changes to settle before rerunning
	Debounce time.Duration `yaml:"debounce"`
}

// ProvisionConfig configures version provisioning
type ProvisionConfig struct {
	// Disabled runs the script on the current binary whatever it requests
	Disabled bool `yaml:"disabled"`
	// CacheDir holds installed versions (default: user cache dir)
	CacheDir string `yaml:"cache_dir"`
}

// Supported oracle languages.
const (
	LangGo   = "go"
	LangRust = "rust"
)

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Script:   "facts.risor",
		Lang:     LangGo,
		Patterns: []string{"./..."},
		Exclude:  []string{"**/testdata/**", "**/vendor/**", "target/**"},
		DB:       ".gofacts/runs.db",
		Watch: WatchConfig{
			Debounce: 300 * time.Millisecond,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Lang != LangGo && c.Lang != LangRust {
		return fmt.Errorf("lang must be %q or %q, got %q", LangGo, LangRust, c.Lang)
	}
	if c.Lang == LangGo && len(c.Patterns) == 0 {
		return fmt.Errorf("patterns is required for go projects")
	}
	for _, pat := range c.Exclude {
		if !doublestar.ValidatePattern(pat) {
			return fmt.Errorf("exclude: invalid glob %q", pat)
		}
	}
	if _, err := c.KnownTypeTable(); err != nil {
		return err
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	return nil
}

// KnownTypeTable returns the built-in known-type table with KnownTypes
// applied on top.
func (c *Config) KnownTypeTable() (map[string]elevate.Known, error) {
	table := elevate.DefaultKnownTypes()
	paths := make([]string, 0, len(c.KnownTypes))
	for p := range c.KnownTypes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		k, err := elevate.ParseKnown(c.KnownTypes[p])
		if err != nil {
			return nil, fmt.Errorf("known_types[%s]: %w", p, err)
		}
		table[p] = k
	}
	return table, nil
}

// Excluded reports whether rel, a slash-separated path relative to Root,
// matches an exclude glob.
func (c *Config) Excluded(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, pat := range c.Exclude {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
	}
	return false
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Script != "" {
		c.Script = other.Script
	}
	if other.Lang != "" {
		c.Lang = other.Lang
	}
	if other.Root != "" {
		c.Root = other.Root
	}
	if other.Output != "" {
		c.Output = other.Output
	}
	if len(other.Patterns) > 0 {
		c.Patterns = slices.Clone(other.Patterns)
	}
	if len(other.Exclude) > 0 {
		c.Exclude = slices.Clone(other.Exclude)
	}
	if other.DB != "" {
		c.DB = other.DB
	}
	if len(other.KnownTypes) > 0 {
		if c.KnownTypes == nil {
			c.KnownTypes = make(map[string]string, len(other.KnownTypes))
		}
		for k, v := range other.KnownTypes {
			c.KnownTypes[k] = v
		}
	}

	// Watch
	if other.Watch.Debounce != 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}

	// Provision
	if other.Provision.Disabled {
		c.Provision.Disabled = true
	}
	if other.Provision.CacheDir != "" {
		c.Provision.CacheDir = other.Provision.CacheDir
	}
}
