package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/c360studio/bookwright/agent"
	"github.com/c360studio/bookwright/book"
	"github.com/c360studio/bookwright/config"
	"github.com/c360studio/bookwright/llm"
	"github.com/c360studio/bookwright/store"
	"github.com/c360studio/bookwright/task"
	"github.com/c360studio/bookwright/workspace"
)

// app bundles the wired services behind the CLI commands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  store.ProjectStore
	ws     *workspace.Manager
	client *llm.Client
	orch   *agent.Orchestrator
	tasks  *task.Manager
}

// newApp loads configuration and wires the store, workspace, LLM client,
// orchestrator, and task manager.
func newApp(configPath, logLevel string) (*app, error) {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg = config.DefaultConfig()
		fileCfg, loadErr := config.LoadFromFile(configPath)
		if loadErr != nil {
			return nil, fmt.Errorf("load config %s: %w", configPath, loadErr)
		}
		cfg.Merge(fileCfg)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	} else {
		cfg, err = config.NewLoader(logger).Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	ws, err := workspace.NewManager(cfg.Workspace.Root,
		workspace.WithIgnorePatterns(cfg.Workspace.IgnorePatterns...))
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}

	sqlite, err := store.OpenSQLite(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	st := store.NewCachedStore(sqlite)

	client := llm.NewClient(cfg.Registry(), llm.WithLogger(logger))

	orch := agent.NewOrchestrator(client, st, ws,
		agent.WithLogger(logger),
		agent.WithMaxIterations(cfg.Agent.MaxIterations),
		agent.WithChapterPause(cfg.Agent.ChapterPause),
		agent.WithProgress(func(phase book.Phase, percent float64, message string) {
			logger.Info("progress", "phase", phase.String(), "percent", int(percent), "message", message)
		}))

	tasks := task.NewManager(
		task.WithWorkers(cfg.Scheduler.Workers),
		task.WithLogger(logger))

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  st,
		ws:     ws,
		client: client,
		orch:   orch,
		tasks:  tasks,
	}, nil
}

// runOrchestrator builds an orchestrator whose progress feeds the given
// callback. The shared a.orch only logs; background runs want their progress
// bridged onto the task record as well.
func (a *app) runOrchestrator(progress agent.ProgressFunc) *agent.Orchestrator {
	return agent.NewOrchestrator(a.client, a.store, a.ws,
		agent.WithLogger(a.logger),
		agent.WithMaxIterations(a.cfg.Agent.MaxIterations),
		agent.WithChapterPause(a.cfg.Agent.ChapterPause),
		agent.WithProgress(progress))
}

// Close releases the app's resources.
func (a *app) Close() {
	a.tasks.Shutdown()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close store", "error", err)
	}
}
