package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "bookwright.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/bookwright"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/bookwright/config.yaml)
// 3. Project config (bookwright.yaml in current or parent directories)
// 4. Environment variables (BOOKWRIGHT_*, with .env loaded first)
func (l *Loader) Load() (*Config, error) {
	// Start with defaults
	config := DefaultConfig()

	// Load user config
	userConfigPath := l.userConfigPath()
	if userConfig, err := LoadFromFile(userConfigPath); err == nil {
		l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
		config.Merge(userConfig)
	} else if !os.IsNotExist(err) {
		l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
	}

	// Load project config
	projectConfigPath := l.findProjectConfig()
	if projectConfigPath != "" {
		if projectConfig, err := LoadFromFile(projectConfigPath); err == nil {
			l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
			config.Merge(projectConfig)
		} else {
			l.logger.Warn("Failed to load project config", slog.String("path", projectConfigPath), slog.String("error", err.Error()))
		}
	} else {
		l.logger.Debug("No project config found")
	}

	// Environment overrides, .env first so its values are visible
	if err := godotenv.Load(); err == nil {
		l.logger.Debug("Loaded .env file")
	}
	l.applyEnv(config)

	// Validate final config
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnv overlays BOOKWRIGHT_* environment variables.
func (l *Loader) applyEnv(config *Config) {
	if v := os.Getenv("BOOKWRIGHT_WORKSPACE_ROOT"); v != "" {
		config.Workspace.Root = v
	}
	if v := os.Getenv("BOOKWRIGHT_DATABASE_PATH"); v != "" {
		config.Database.Path = v
	}
	if v := os.Getenv("BOOKWRIGHT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Scheduler.Workers = n
		} else {
			l.logger.Warn("Invalid BOOKWRIGHT_WORKERS value", slog.String("value", v))
		}
	}
	if v := os.Getenv("BOOKWRIGHT_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Agent.MaxIterations = n
		} else {
			l.logger.Warn("Invalid BOOKWRIGHT_MAX_ITERATIONS value", slog.String("value", v))
		}
	}
	if v := os.Getenv("BOOKWRIGHT_CHAPTER_PAUSE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Agent.ChapterPause = d
		} else {
			l.logger.Warn("Invalid BOOKWRIGHT_CHAPTER_PAUSE value", slog.String("value", v))
		}
	}
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist
func (l *Loader) EnsureUserConfig() error {
	userConfigPath := l.userConfigPath()

	// Check if it already exists
	if _, err := os.Stat(userConfigPath); err == nil {
		return nil // Already exists
	}

	// Create default config
	config := DefaultConfig()
	if err := config.SaveToFile(userConfigPath); err != nil {
		return err
	}

	l.logger.Info("Created default user config", slog.String("path", userConfigPath))
	return nil
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for bookwright.yaml in current and parent directories
func (l *Loader) findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		// Move to parent directory
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			break
		}
		dir = parent
	}

	return ""
}
