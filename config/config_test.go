package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/bookwright/model"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Contains(t, cfg.Workspace.Root, ".bookwright")
	assert.Contains(t, cfg.Database.Path, "bookwright.db")
	assert.Equal(t, 3, cfg.Scheduler.Workers)
	assert.Equal(t, 20, cfg.Agent.MaxIterations)
	assert.Equal(t, time.Second, cfg.Agent.ChapterPause)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing workspace root", func(c *Config) { c.Workspace.Root = "" }, "workspace.root"},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"zero workers", func(c *Config) { c.Scheduler.Workers = 0 }, "scheduler.workers"},
		{"zero iterations", func(c *Config) { c.Agent.MaxIterations = 0 }, "agent.max_iterations"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestMergePrecedence(t *testing.T) {
	base := DefaultConfig()
	base.Merge(&Config{
		Workspace: WorkspaceConfig{Root: "/custom/projects", IgnorePatterns: []string{"*.bak"}},
		Scheduler: SchedulerConfig{Workers: 8},
	})

	assert.Equal(t, "/custom/projects", base.Workspace.Root)
	assert.Equal(t, []string{"*.bak"}, base.Workspace.IgnorePatterns)
	assert.Equal(t, 8, base.Scheduler.Workers)
	assert.Contains(t, base.Database.Path, "bookwright.db", "zero values do not overwrite")
	assert.Equal(t, 20, base.Agent.MaxIterations)

	base.Merge(nil)
	assert.Equal(t, 8, base.Scheduler.Workers)
}

func TestMergeModels(t *testing.T) {
	base := DefaultConfig()
	require.Nil(t, base.Models)

	base.Merge(&Config{Models: &model.RegistryConfig{
		Endpoints: map[string]*model.EndpointConfig{
			"local": {Provider: "ollama", Model: "llama3.2"},
		},
	}})

	require.NotNil(t, base.Models)
	assert.Contains(t, base.Models.Endpoints, "local")
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Workspace.Root = "/srv/books"
	cfg.Agent.ChapterPause = 2 * time.Second
	cfg.Models = &model.RegistryConfig{
		Capabilities: map[string]*model.CapabilityConfig{
			"drafting": {Preferred: []string{"local"}},
		},
		Endpoints: map[string]*model.EndpointConfig{
			"local": {Provider: "ollama", URL: "http://localhost:11434/v1", Model: "llama3.2"},
		},
	}
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/books", loaded.Workspace.Root)
	assert.Equal(t, 2*time.Second, loaded.Agent.ChapterPause)
	require.NotNil(t, loaded.Models)
	assert.Equal(t, []string{"local"}, loaded.Models.Capabilities["drafting"].Preferred)
	assert.Equal(t, "llama3.2", loaded.Models.Endpoints["local"].Model)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, os.IsNotExist(err))
}

func TestRegistryFallsBackToDefaults(t *testing.T) {
	cfg := DefaultConfig()
	reg := cfg.Registry()
	require.NotNil(t, reg)
	assert.NotEmpty(t, reg.Resolve(model.CapabilityDrafting))
}
