// Package workspace confines all file activity for a project to a dedicated
// directory subtree and applies ignore rules to traversal.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrPathEscape is returned when a resolved path would leave the project
// sandbox.
var ErrPathEscape = errors.New("path escapes project workspace")

// defaultIgnoreDirs are directory names skipped during traversal.
var defaultIgnoreDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	".cache":       true,
}

// defaultIgnorePatterns are glob patterns for files skipped during traversal.
var defaultIgnorePatterns = []string{
	"*.tmp",
	"*.swp",
	"*~",
	".DS_Store",
	"Thumbs.db",
}

// Manager maps project IDs to sandboxed directories under a single root.
type Manager struct {
	root           string
	ignoreDirs     map[string]bool
	ignorePatterns []string
}

// Option configures a Manager.
type Option func(*Manager)

// WithIgnorePatterns appends extra glob patterns to the ignore set.
func WithIgnorePatterns(patterns ...string) Option {
	return func(m *Manager) {
		m.ignorePatterns = append(m.ignorePatterns, patterns...)
	}
}

// NewManager creates a workspace manager rooted at the given directory,
// creating it if needed.
func NewManager(root string, opts ...Option) (*Manager, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}

	m := &Manager{
		root:           abs,
		ignoreDirs:     defaultIgnoreDirs,
		ignorePatterns: append([]string(nil), defaultIgnorePatterns...),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Root returns the workspace root directory.
func (m *Manager) Root() string {
	return m.root
}

// ProjectDir returns the sandbox directory for a project.
func (m *Manager) ProjectDir(projectID string) string {
	return filepath.Join(m.root, projectID)
}

// EnsureProject creates the project sandbox and its standard subdirectories.
func (m *Manager) EnsureProject(projectID string) error {
	if err := validateProjectID(projectID); err != nil {
		return err
	}
	for _, dir := range []string{"", "chapters", "research"} {
		if err := os.MkdirAll(filepath.Join(m.ProjectDir(projectID), dir), 0755); err != nil {
			return fmt.Errorf("create project directory: %w", err)
		}
	}
	return nil
}

// Remove deletes a project sandbox and everything in it.
func (m *Manager) Remove(projectID string) error {
	if err := validateProjectID(projectID); err != nil {
		return err
	}
	return os.RemoveAll(m.ProjectDir(projectID))
}

// Resolve normalizes a project-relative path and verifies it stays inside the
// project sandbox. Absolute input paths are re-rooted at the sandbox before
// checking, so "/etc/passwd" resolves to "<sandbox>/etc/passwd" rather than
// escaping. Traversal sequences that climb out return ErrPathEscape.
func (m *Manager) Resolve(projectID, rel string) (string, error) {
	if err := validateProjectID(projectID); err != nil {
		return "", err
	}

	base := m.ProjectDir(projectID)
	rel = strings.TrimSpace(rel)
	if filepath.IsAbs(rel) {
		rel = strings.TrimPrefix(rel, string(filepath.Separator))
	}

	full := filepath.Clean(filepath.Join(base, rel))

	abs, err := filepath.Abs(full)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("resolve project dir: %w", err)
	}

	if abs != absBase && !strings.HasPrefix(abs, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, rel)
	}
	return abs, nil
}

// Ignored reports whether a directory entry should be skipped during
// traversal. Directories are matched by name, files by glob pattern.
func (m *Manager) Ignored(name string, isDir bool) bool {
	if isDir {
		return m.ignoreDirs[name]
	}
	for _, pattern := range m.ignorePatterns {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// validateProjectID rejects IDs that could alter the sandbox path.
func validateProjectID(id string) error {
	if id == "" {
		return fmt.Errorf("project id is required")
	}
	if strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return fmt.Errorf("invalid project id: %s", id)
	}
	return nil
}
