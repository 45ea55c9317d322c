// Package main provides the bookwright binary entry point.
// Bookwright is an autonomous book-writing agent that plans, researches,
// drafts, and edits complete manuscripts with LLM tool calling.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"text/tabwriter"

	// Register LLM providers via init()
	_ "github.com/c360studio/bookwright/llm/providers"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/c360studio/bookwright/agent"
	"github.com/c360studio/bookwright/book"
	"github.com/c360studio/bookwright/task"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "bookwright"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Autonomous book-writing agent",
		Long: `Bookwright drives book projects through planning, research, drafting,
editing, and interactive refinement. Each project lives in a sandboxed
workspace; the agent reads and edits manuscript files through tool calls.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		createCmd(&configPath, &logLevel),
		runCmd(&configPath, &logLevel),
		chatCmd(&configPath, &logLevel),
		listCmd(&configPath, &logLevel),
		statusCmd(&configPath, &logLevel),
		tasksCmd(&configPath, &logLevel),
		deleteCmd(&configPath, &logLevel),
		manuscriptCmd(&configPath, &logLevel),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)

	return cmd
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func createCmd(configPath, logLevel *string) *cobra.Command {
	var (
		genre        string
		style        string
		description  string
		targetLength int
	)

	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a new book project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath, *logLevel)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()

			p := &book.Project{
				ID:           uuid.NewString(),
				Title:        args[0],
				Description:  description,
				Genre:        genre,
				Style:        style,
				TargetLength: targetLength,
				Phase:        book.PhaseCreated,
			}
			if err := a.store.Save(ctx, p); err != nil {
				return err
			}
			if err := a.ws.EnsureProject(p.ID); err != nil {
				return err
			}

			fmt.Printf("Created project %s (%q, %d-word target)\n", p.ID, p.Title, p.TargetLength)
			fmt.Printf("Workspace: %s\n", a.ws.ProjectDir(p.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&genre, "genre", "fiction", "Book genre")
	cmd.Flags().StringVar(&style, "style", "descriptive", "Writing style")
	cmd.Flags().StringVar(&description, "description", "", "Short project description")
	cmd.Flags().IntVar(&targetLength, "length", 50000, "Target length in words")

	return cmd
}

func runCmd(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run <project-id>",
		Short: "Run a project through planning, research, drafting, and editing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath, *logLevel)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()

			projectID := args[0]
			done := make(chan error, 1)
			taskID, err := a.tasks.Submit("run-project", projectID, func(taskCtx context.Context, report task.ReportFunc) error {
				runCtx, stop := mergeCancel(taskCtx, ctx)
				defer stop()
				orch := a.runOrchestrator(func(phase book.Phase, percent float64, message string) {
					a.logger.Info("progress", "phase", phase.String(), "percent", int(percent), "message", message)
					report(phase.String(), percent, message)
				})
				err := orch.Run(runCtx, projectID)
				done <- err
				return err
			})
			if err != nil {
				return err
			}
			a.logger.Debug("Run scheduled", "task", taskID, "project", projectID)

			if err := <-done; err != nil {
				return err
			}

			progress, err := a.orch.Progress(ctx, projectID)
			if err != nil {
				return err
			}
			fmt.Printf("Project %s is now %s: %d chapters, %d words\n",
				projectID, progress.Phase, progress.ChaptersCompleted, progress.TotalWords)
			return nil
		},
	}
}

// mergeCancel derives a context from parent that is also cancelled when other
// is cancelled.
func mergeCancel(parent, other context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(other, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func tasksCmd(configPath, logLevel *string) *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List background tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath, *logLevel)
			if err != nil {
				return err
			}
			defer a.Close()

			var list []*task.Task
			if projectID != "" {
				list = a.tasks.TasksFor(projectID)
			} else {
				list = a.tasks.List()
			}
			if len(list) == 0 {
				fmt.Println("No tasks.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tPROJECT\tSTATUS\tPHASE\tPROGRESS\tCREATED")
			for _, t := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%3.0f%%\t%s\n",
					t.ID, t.Type, t.ProjectID, t.Status, t.CurrentPhase, t.Progress,
					t.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Only show tasks for this project")
	return cmd
}

func chatCmd(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <project-id>",
		Short: "Refine a project interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath, *logLevel)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()

			projectID := args[0]
			if _, err := a.store.Get(ctx, projectID); err != nil {
				return err
			}

			// Pick up chapter edits made outside the agent while chatting.
			watcher, err := a.ws.WatchChapters(projectID, a.logger, func(path string) {
				if err := a.orch.SyncChapter(ctx, projectID, path); err != nil {
					a.logger.Warn("Failed to sync chapter", "path", path, "error", err)
				}
			})
			if err == nil {
				defer watcher.Close()
			} else {
				a.logger.Debug("Chapter watcher unavailable", "error", err)
			}

			fmt.Println("Type a message, or /quit to exit.")
			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "/quit" || line == "/exit" {
					return nil
				}

				events, err := a.orch.ChatStream(ctx, projectID, line)
				if err != nil {
					return err
				}
				for ev := range events {
					switch ev.Type {
					case agent.EventContent:
						fmt.Print(ev.Delta)
					case agent.EventToolCallStart:
						fmt.Printf("\n[%s]\n", ev.ToolName)
					case agent.EventError:
						fmt.Fprintf(os.Stderr, "\nerror: %v\n", ev.Err)
					}
				}
				fmt.Println()
			}
		},
	}
}

func listCmd(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List book projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath, *logLevel)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()

			summaries, err := a.store.ListSummaries(ctx)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("No projects.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tGENRE\tPHASE\tCHAPTERS\tWORDS")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
					s.ID, s.Title, s.Genre, s.Phase, s.ChaptersCompleted, s.TotalWords)
			}
			return w.Flush()
		},
	}
}

func statusCmd(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <project-id>",
		Short: "Show project progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath, *logLevel)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()

			p, err := a.store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			progress, err := a.orch.Progress(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Title:    %s\n", p.Title)
			fmt.Printf("Genre:    %s\n", p.Genre)
			fmt.Printf("Phase:    %s (%.0f%%)\n", progress.Phase, progress.Percent)
			fmt.Printf("Chapters: %d of %d\n", progress.ChaptersCompleted, progress.TargetChapters)
			fmt.Printf("Words:    %d of %d\n", progress.TotalWords, progress.TargetLength)
			if p.Error != "" {
				fmt.Printf("Error:    %s\n", p.Error)
			}
			return nil
		},
	}
}

func deleteCmd(configPath, logLevel *string) *cobra.Command {
	var keepFiles bool

	cmd := &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project and its workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath, *logLevel)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()

			if err := a.store.Delete(ctx, args[0]); err != nil {
				return err
			}
			if !keepFiles {
				if err := a.ws.Remove(args[0]); err != nil {
					return err
				}
			}
			fmt.Printf("Deleted project %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&keepFiles, "keep-files", false, "Keep the workspace files")
	return cmd
}

func manuscriptCmd(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "manuscript <project-id>",
		Short: "Assemble the full manuscript from drafted chapters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath, *logLevel)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := signalContext()
			defer cancel()

			rel, err := a.orch.GenerateManuscript(ctx, args[0])
			if err != nil {
				return err
			}
			path, err := a.ws.Resolve(args[0], rel)
			if err != nil {
				return err
			}
			fmt.Printf("Manuscript written to %s\n", path)
			return nil
		},
	}
}
