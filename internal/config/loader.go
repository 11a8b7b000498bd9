package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "gofacts.yaml"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger *slog.Logger

	// dir is where the project config search starts (default: cwd)
	dir string
	// userDir overrides the user config directory
	userDir string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithStartDir starts the project config search in dir.
func WithStartDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.dir = dir
	}
}

// WithUserConfigDir reads the user config from dir instead of the XDG
// config directory.
func WithUserConfigDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.userDir = dir
	}
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config ($XDG_CONFIG_HOME/gofacts/config.yaml)
// 3. Project config (gofacts.yaml in the start or parent directories)
//
// A project config sets Root to its own directory unless it names one.
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	userConfigPath := l.userConfigPath()
	if userConfigPath != "" {
		if userConfig, err := LoadFromFile(userConfigPath); err == nil {
			l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
			config.Merge(userConfig)
		} else if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
		}
	}

	projectConfigPath := l.FindProjectConfig()
	if projectConfigPath != "" {
		projectConfig, err := LoadFromFile(projectConfigPath)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
		config.Merge(projectConfig)
		if projectConfig.Root == "" {
			config.Root = filepath.Dir(projectConfigPath)
		} else if !filepath.IsAbs(projectConfig.Root) {
			config.Root = filepath.Join(filepath.Dir(projectConfigPath), projectConfig.Root)
		}
	} else {
		l.logger.Debug("No project config found")
	}

	if config.Root == "" {
		if cwd, err := l.startDir(); err == nil {
			config.Root = cwd
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	if l.userDir != "" {
		return filepath.Join(l.userDir, UserConfigFile)
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "gofacts", UserConfigFile)
}

func (l *Loader) startDir() (string, error) {
	if l.dir != "" {
		return filepath.Abs(l.dir)
	}
	return os.Getwd()
}

// FindProjectConfig searches for gofacts.yaml in the start directory and
// its parents. Returns "" when there is none.
func (l *Loader) FindProjectConfig() string {
	dir, err := l.startDir()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
