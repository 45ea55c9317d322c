package workspace

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes a project's chapters directory and reports chapter file
// changes made outside the agent, so word counts can be kept current while a
// project sits in refinement.
type Watcher struct {
	fw     *fsnotify.Watcher
	logger *slog.Logger
	done   chan struct{}
}

// WatchChapters starts watching the chapters directory of a project. The
// callback receives the changed file path on every write or create of a
// markdown file. Close stops the watcher.
func (m *Manager) WatchChapters(projectID string, logger *slog.Logger, onChange func(path string)) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir, err := m.Resolve(projectID, "chapters")
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{fw: fw, logger: logger, done: make(chan struct{})}
	go w.run(onChange)
	return w, nil
}

func (w *Watcher) run(onChange func(path string)) {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".md") {
				continue
			}
			w.logger.Debug("Chapter file changed", "path", event.Name, "op", event.Op.String())
			onChange(event.Name)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Workspace watcher error", "error", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fw.Close()
}
