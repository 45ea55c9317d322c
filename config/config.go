// Package config provides configuration loading and management for Bookwright.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/bookwright/model"
)

// Config represents the complete Bookwright configuration
type Config struct {
	Workspace WorkspaceConfig       `yaml:"workspace"`
	Database  DatabaseConfig        `yaml:"database"`
	Scheduler SchedulerConfig       `yaml:"scheduler"`
	Agent     AgentConfig           `yaml:"agent"`
	Models    *model.RegistryConfig `yaml:"models,omitempty"`
}

// WorkspaceConfig configures the sandboxed project workspace
type WorkspaceConfig struct {
	// Root is the directory holding all project workspaces
	// (default: ~/.bookwright/projects)
	Root string `yaml:"root"`
	// IgnorePatterns are extra glob patterns hidden from file listings
	IgnorePatterns []string `yaml:"ignore_patterns"`
}

// DatabaseConfig configures project persistence
type DatabaseConfig struct {
	// Path is the SQLite database file (default: ~/.bookwright/bookwright.db)
	Path string `yaml:"path"`
}

// SchedulerConfig configures the background task pool
type SchedulerConfig struct {
	// Workers is the fixed pool size (default: 3)
	Workers int `yaml:"workers"`
}

// AgentConfig configures the tool-call loop and phase behavior
type AgentConfig struct {
	// MaxIterations bounds the chat tool-call loop (default: 20)
	MaxIterations int `yaml:"max_iterations"`
	// ChapterPause is the delay between edited chapters
	ChapterPause time.Duration `yaml:"chapter_pause"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".bookwright")
	return &Config{
		Workspace: WorkspaceConfig{
			Root: filepath.Join(base, "projects"),
		},
		Database: DatabaseConfig{
			Path: filepath.Join(base, "bookwright.db"),
		},
		Scheduler: SchedulerConfig{
			Workers: 3,
		},
		Agent: AgentConfig{
			MaxIterations: 20,
			ChapterPause:  time.Second,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Workspace.Root == "" {
		return fmt.Errorf("workspace.root is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Scheduler.Workers < 1 {
		return fmt.Errorf("scheduler.workers must be at least 1")
	}
	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent.max_iterations must be at least 1")
	}
	return nil
}

// Registry builds the model registry from the configured models section,
// falling back to the built-in defaults.
func (c *Config) Registry() *model.Registry {
	return model.FromConfig(c.Models)
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
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

	if other.Workspace.Root != "" {
		c.Workspace.Root = other.Workspace.Root
	}
	if len(other.Workspace.IgnorePatterns) > 0 {
		c.Workspace.IgnorePatterns = other.Workspace.IgnorePatterns
	}

	if other.Database.Path != "" {
		c.Database.Path = other.Database.Path
	}

	if other.Scheduler.Workers != 0 {
		c.Scheduler.Workers = other.Scheduler.Workers
	}

	if other.Agent.MaxIterations != 0 {
		c.Agent.MaxIterations = other.Agent.MaxIterations
	}
	if other.Agent.ChapterPause != 0 {
		c.Agent.ChapterPause = other.Agent.ChapterPause
	}

	if other.Models != nil {
		c.Models = other.Models
	}
}
