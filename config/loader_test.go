package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyEnv(t *testing.T) {
	t.Setenv("BOOKWRIGHT_WORKSPACE_ROOT", "/env/projects")
	t.Setenv("BOOKWRIGHT_DATABASE_PATH", "/env/book.db")
	t.Setenv("BOOKWRIGHT_WORKERS", "6")
	t.Setenv("BOOKWRIGHT_MAX_ITERATIONS", "40")
	t.Setenv("BOOKWRIGHT_CHAPTER_PAUSE", "250ms")

	cfg := DefaultConfig()
	NewLoader(nil).applyEnv(cfg)

	assert.Equal(t, "/env/projects", cfg.Workspace.Root)
	assert.Equal(t, "/env/book.db", cfg.Database.Path)
	assert.Equal(t, 6, cfg.Scheduler.Workers)
	assert.Equal(t, 40, cfg.Agent.MaxIterations)
	assert.Equal(t, 250*time.Millisecond, cfg.Agent.ChapterPause)
}

func TestApplyEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("BOOKWRIGHT_WORKERS", "many")
	t.Setenv("BOOKWRIGHT_MAX_ITERATIONS", "-1")
	t.Setenv("BOOKWRIGHT_CHAPTER_PAUSE", "soon")

	cfg := DefaultConfig()
	NewLoader(nil).applyEnv(cfg)

	assert.Equal(t, 3, cfg.Scheduler.Workers)
	assert.Equal(t, 20, cfg.Agent.MaxIterations)
	assert.Equal(t, time.Second, cfg.Agent.ChapterPause)
}

func TestFindProjectConfigWalksUpward(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ProjectConfigFile),
		[]byte("scheduler:\n  workers: 5\n"), 0o644))

	oldWD, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(nested))
	t.Cleanup(func() { _ = os.Chdir(oldWD) })

	path := NewLoader(nil).findProjectConfig()
	require.NotEmpty(t, path)

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.Scheduler.Workers)
}

func TestFindProjectConfigMissing(t *testing.T) {
	oldWD, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(oldWD) })
	assert.Empty(t, NewLoader(nil).findProjectConfig())
}
