package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/c360studio/bookwright/book"
	"github.com/c360studio/bookwright/llm"
	"github.com/c360studio/bookwright/model"
	"github.com/c360studio/bookwright/store"
	"github.com/c360studio/bookwright/tools"
	"github.com/c360studio/bookwright/tools/file"
	"github.com/c360studio/bookwright/tools/research"
	"github.com/c360studio/bookwright/workspace"
)

const (
	// editIterations bounds the tool-call loop per edited chapter.
	editIterations = 15

	// maxChaptersPerRun is a safety cap on one drafting run, independent of
	// the project's own chapter target.
	maxChaptersPerRun = 20

	// historyWindow is how many trailing conversation messages seed a
	// refinement turn.
	historyWindow = 15

	defaultChapterPause = time.Second
)

// errRunPaused signals that a phase stopped before finishing its work and the
// project should keep its current phase. Another Run call resumes it.
var errRunPaused = errors.New("run paused")

// editingTools is the tool subset exposed during the editing phase.
var editingTools = []string{"read_file", "edit_file", "grep_search", "write_file"}

// ProgressFunc receives phase progress updates.
type ProgressFunc func(phase book.Phase, percent float64, message string)

// Orchestrator advances projects through the production phases and hosts the
// refinement chat.
type Orchestrator struct {
	client        CompletionClient
	store         store.ProjectStore
	ws            *workspace.Manager
	logger        *slog.Logger
	progress      ProgressFunc
	maxIterations int
	chapterPause  time.Duration
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithProgress sets a progress callback.
func WithProgress(fn ProgressFunc) OrchestratorOption {
	return func(o *Orchestrator) {
		o.progress = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMaxIterations bounds the chat tool-call loop.
func WithMaxIterations(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

// WithChapterPause sets the delay between edited chapters.
func WithChapterPause(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.chapterPause = d
	}
}

// NewOrchestrator creates an orchestrator over the given client, store, and
// workspace.
func NewOrchestrator(client CompletionClient, st store.ProjectStore, ws *workspace.Manager, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		client:        client,
		store:         st,
		ws:            ws,
		logger:        slog.Default(),
		maxIterations: defaultMaxIterations,
		chapterPause:  defaultChapterPause,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// registryFor builds the per-project tool registry.
func (o *Orchestrator) registryFor(projectID string) *tools.Registry {
	reg := tools.NewRegistry()
	reg.Register(file.NewExecutor(o.ws, projectID))
	reg.Register(research.NewExecutor(o.ws, projectID))
	return reg
}

func (o *Orchestrator) report(phase book.Phase, percent float64, message string) {
	if o.progress != nil {
		o.progress(phase, percent, message)
	}
}

// transition moves the project to the target phase and persists it. The
// phase machine rejects out-of-order moves.
func (o *Orchestrator) transition(ctx context.Context, p *book.Project, target book.Phase) error {
	next, err := p.Phase.Transition(target)
	if err != nil {
		return err
	}
	p.Phase = next
	p.Error = ""
	if err := o.store.Save(ctx, p); err != nil {
		return fmt.Errorf("persist %s transition: %w", target, err)
	}
	o.logger.Info("phase transition", "project", p.ID, "phase", target.String())
	return nil
}

// fail records the cause on the project without advancing its phase, so a
// later run retries the same phase. The cause is returned for the caller to
// propagate; the task layer surfaces it as a failed task.
func (o *Orchestrator) fail(ctx context.Context, p *book.Project, cause error) error {
	p.Error = cause.Error()
	if saveErr := o.store.Save(ctx, p); saveErr != nil {
		o.logger.Error("persist failure state", "project", p.ID, "error", saveErr)
	}
	o.report(p.Phase, 0, "failed: "+cause.Error())
	return cause
}

// Stop moves a non-terminal project to the stopped phase.
func (o *Orchestrator) Stop(ctx context.Context, projectID string) error {
	p, err := o.store.Get(ctx, projectID)
	if err != nil {
		return err
	}
	if p.Phase.IsTerminal() {
		return fmt.Errorf("project %s is already %s", projectID, p.Phase)
	}
	p.Phase = book.PhaseStopped
	return o.store.Save(ctx, p)
}

// Run advances a project from its current phase through editing, leaving it
// in the refining phase ready for interactive work. A failure in any phase
// records the cause and leaves the phase where it was, so another run retries
// the failed phase.
func (o *Orchestrator) Run(ctx context.Context, projectID string) error {
	p, err := o.store.Get(ctx, projectID)
	if err != nil {
		return err
	}
	if p.Phase.IsTerminal() {
		return fmt.Errorf("project %s is %s and cannot be run", projectID, p.Phase)
	}
	if err := o.ws.EnsureProject(projectID); err != nil {
		return o.fail(ctx, p, fmt.Errorf("prepare workspace: %w", err))
	}

	type phaseFunc func(context.Context, *book.Project) error
	steps := map[book.Phase]phaseFunc{
		book.PhasePlanning: o.runPlanning,
		book.PhaseResearch: o.runResearch,
		book.PhaseWriting:  o.runWriting,
		book.PhaseEditing:  o.runEditing,
	}

	if p.Phase == book.PhaseCreated {
		if err := o.transition(ctx, p, book.PhasePlanning); err != nil {
			return o.fail(ctx, p, err)
		}
	}

	for p.Phase != book.PhaseRefining {
		if err := ctx.Err(); err != nil {
			return o.fail(ctx, p, err)
		}
		step, ok := steps[p.Phase]
		if !ok {
			return o.fail(ctx, p, fmt.Errorf("no runner for phase %s", p.Phase))
		}
		if err := step(ctx, p); err != nil {
			if errors.Is(err, errRunPaused) {
				return nil
			}
			return o.fail(ctx, p, err)
		}
	}
	return nil
}

func (o *Orchestrator) runPlanning(ctx context.Context, p *book.Project) error {
	o.report(book.PhasePlanning, 10, "Creating book outline...")
	o.logger.Info("planning phase", "project", p.ID, "title", p.Title)

	resp, err := o.client.Complete(ctx, llm.Request{
		Capability: model.CapabilityForPhase(book.PhasePlanning.String()).String(),
		Messages: []llm.Message{
			{Role: "system", Content: planningSystemPrompt},
			{Role: "user", Content: planningPrompt(p)},
		},
	})
	if err != nil {
		return fmt.Errorf("planning: %w", err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return fmt.Errorf("planning: no outline generated")
	}

	p.Outline = resp.Content
	p.ChapterPlans = ParseOutline(resp.Content, p.TargetChapters())

	if err := o.writeArtifact(p.ID, "outline.md", resp.Content); err != nil {
		return fmt.Errorf("planning: %w", err)
	}
	if err := o.transition(ctx, p, book.PhaseResearch); err != nil {
		return err
	}
	o.report(book.PhasePlanning, 15, "Outline completed")
	return nil
}

func (o *Orchestrator) runResearch(ctx context.Context, p *book.Project) error {
	o.report(book.PhaseResearch, 20, "Gathering background information...")
	o.logger.Info("research phase", "project", p.ID)

	resp, err := o.client.Complete(ctx, llm.Request{
		Capability: model.CapabilityForPhase(book.PhaseResearch.String()).String(),
		Messages: []llm.Message{
			{Role: "system", Content: researchSystemPrompt},
			{Role: "user", Content: researchPrompt(p)},
		},
	})
	if err != nil {
		return fmt.Errorf("research: %w", err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return fmt.Errorf("research: no content generated")
	}

	p.ResearchNotes = resp.Content

	if err := o.writeArtifact(p.ID, "research_notes.md", resp.Content); err != nil {
		return fmt.Errorf("research: %w", err)
	}
	if err := o.transition(ctx, p, book.PhaseWriting); err != nil {
		return err
	}
	o.report(book.PhaseResearch, 28, "Research completed")
	return nil
}

func (o *Orchestrator) runWriting(ctx context.Context, p *book.Project) error {
	total := p.TargetChapters()
	written := 0

	for !p.WritingComplete() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if written >= maxChaptersPerRun {
			o.logger.Warn("chapter cap reached before word target", "project", p.ID,
				"written", written, "words", p.TotalWords, "target", p.TargetLength)
			o.report(book.PhaseWriting, 85, fmt.Sprintf("Paused after %d chapters (%d of %d words); run again to continue drafting", written, p.TotalWords, p.TargetLength))
			return errRunPaused
		}

		number := p.ChaptersCompleted + 1
		capped := number - 1
		if capped > total {
			capped = total
		}
		percent := 30 + (float64(capped)/float64(total))*55
		o.report(book.PhaseWriting, percent, fmt.Sprintf("Writing chapter %d of %d...", number, total))
		o.logger.Info("writing chapter", "project", p.ID, "chapter", number, "total", total)

		resp, err := o.client.Complete(ctx, llm.Request{
			Capability: model.CapabilityForPhase(book.PhaseWriting.String()).String(),
			Messages: []llm.Message{
				{Role: "system", Content: writingSystemPrompt},
				{Role: "user", Content: writingPrompt(p, number)},
			},
		})
		if err != nil {
			return fmt.Errorf("writing chapter %d: %w", number, err)
		}
		content := strings.TrimSpace(resp.Content)
		if content == "" {
			return fmt.Errorf("writing chapter %d: no content generated", number)
		}

		path := fmt.Sprintf("chapters/chapter_%d.md", number)
		if err := o.writeArtifact(p.ID, path, content); err != nil {
			return fmt.Errorf("writing chapter %d: %w", number, err)
		}

		words := book.CountWords(content)
		chapter := &book.Chapter{
			ProjectID: p.ID,
			Number:    number,
			Title:     chapterTitle(p, number),
			WordCount: words,
			Status:    "drafted",
		}
		if err := o.store.SaveChapter(ctx, chapter); err != nil {
			return fmt.Errorf("writing chapter %d: %w", number, err)
		}

		p.ChaptersCompleted = number
		p.TotalWords += words
		written++
		if err := o.store.Save(ctx, p); err != nil {
			return fmt.Errorf("persist chapter %d progress: %w", number, err)
		}
	}

	if err := o.transition(ctx, p, book.PhaseEditing); err != nil {
		return err
	}
	o.report(book.PhaseWriting, 85, fmt.Sprintf("Drafting completed: %d chapters, %d words", p.ChaptersCompleted, p.TotalWords))
	return nil
}

func (o *Orchestrator) runEditing(ctx context.Context, p *book.Project) error {
	if p.ChaptersCompleted == 0 {
		return fmt.Errorf("editing: no chapters to edit")
	}

	reg := o.registryFor(p.ID)
	defs := reg.Subset(editingTools...)
	loop := NewLoop(o.client, reg, editIterations, o.logger)
	capability := model.CapabilityForPhase(book.PhaseEditing.String()).String()

	totalIterations := 0
	totalToolCalls := 0

	for num := 1; num <= p.ChaptersCompleted; num++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		percent := 85 + (float64(num-1)/float64(p.ChaptersCompleted))*13
		o.report(book.PhaseEditing, percent, fmt.Sprintf("Editing chapter %d of %d...", num, p.ChaptersCompleted))
		o.logger.Info("editing chapter", "project", p.ID, "chapter", num)

		result, err := loop.Run(ctx, capability, defs, []llm.Message{
			{Role: "system", Content: editingSystemPrompt(p)},
			{Role: "user", Content: editingPrompt(num)},
		})
		if err != nil {
			return fmt.Errorf("editing chapter %d: %w", num, err)
		}
		totalIterations += result.Iterations
		totalToolCalls += len(result.ToolResults)
		if !result.Finished {
			o.logger.Warn("editing iteration budget exhausted", "project", p.ID, "chapter", num)
		}

		chapter := &book.Chapter{
			ProjectID: p.ID,
			Number:    num,
			Title:     chapterTitle(p, num),
			WordCount: o.chapterWordCount(p.ID, num),
			Status:    "edited",
		}
		if err := o.store.SaveChapter(ctx, chapter); err != nil {
			return fmt.Errorf("editing chapter %d: %w", num, err)
		}

		if num < p.ChaptersCompleted && o.chapterPause > 0 {
			select {
			case <-time.After(o.chapterPause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	notes := editingNotes(p, totalIterations, totalToolCalls)
	if err := o.writeArtifact(p.ID, "editing_notes.md", notes); err != nil {
		return fmt.Errorf("editing: %w", err)
	}

	if err := o.transition(ctx, p, book.PhaseRefining); err != nil {
		return err
	}
	o.report(book.PhaseEditing, 100, "Editing completed")
	return nil
}

// editingNotes summarizes an editing pass.
func editingNotes(p *book.Project, iterations, toolCalls int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Editing Notes: %s\n\n", p.Title)
	fmt.Fprintf(&b, "Edited %d chapters (%d words total).\n\n", p.ChaptersCompleted, p.TotalWords)
	b.WriteString("## Statistics\n\n")
	fmt.Fprintf(&b, "- Editing iterations: %d\n", iterations)
	fmt.Fprintf(&b, "- Tool calls: %d\n", toolCalls)
	if p.ChaptersCompleted > 0 {
		fmt.Fprintf(&b, "- Average iterations per chapter: %.1f\n", float64(iterations)/float64(p.ChaptersCompleted))
	}
	return b.String()
}

func chapterTitle(p *book.Project, number int) string {
	if number <= len(p.ChapterPlans) {
		return p.ChapterPlans[number-1].Title
	}
	return fmt.Sprintf("Chapter %d", number)
}

// chapterWordCount re-counts a chapter file after editing. Returns 0 if the
// file cannot be read.
func (o *Orchestrator) chapterWordCount(projectID string, number int) int {
	path, err := o.ws.Resolve(projectID, fmt.Sprintf("chapters/chapter_%d.md", number))
	if err != nil {
		return 0
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	return book.CountWords(string(data))
}

var chapterFileRe = regexp.MustCompile(`^chapter_(\d+)\.md$`)

// SyncChapter refreshes the stored word count for a chapter whose file changed
// outside the agent, keeping project totals accurate during refinement. Paths
// that are not chapter files are ignored.
func (o *Orchestrator) SyncChapter(ctx context.Context, projectID, path string) error {
	m := chapterFileRe.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return nil
	}
	num, err := strconv.Atoi(m[1])
	if err != nil || num < 1 {
		return nil
	}

	chapters, err := o.store.ListChapters(ctx, projectID)
	if err != nil {
		return err
	}

	words := o.chapterWordCount(projectID, num)
	total := 0
	found := false
	for i := range chapters {
		if chapters[i].Number == num {
			found = true
			if chapters[i].WordCount != words {
				chapters[i].WordCount = words
				if err := o.store.SaveChapter(ctx, &chapters[i]); err != nil {
					return err
				}
			}
		}
		total += chapters[i].WordCount
	}
	if !found {
		return nil
	}

	p, err := o.store.Get(ctx, projectID)
	if err != nil {
		return err
	}
	if p.TotalWords == total {
		return nil
	}
	p.TotalWords = total
	o.logger.Debug("Synced chapter word count", "project", projectID, "chapter", num, "words", words)
	return o.store.Save(ctx, p)
}

// writeArtifact writes a project document through the workspace sandbox.
func (o *Orchestrator) writeArtifact(projectID, rel, content string) error {
	path, err := o.ws.Resolve(projectID, rel)
	if err != nil {
		return err
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

// Chat runs one interactive refinement turn. The project's stored history
// seeds the conversation; tool traffic and the final reply are appended back
// to it and persisted.
func (o *Orchestrator) Chat(ctx context.Context, projectID, userMessage string) (string, error) {
	p, loop, messages, err := o.prepareChat(ctx, projectID, userMessage)
	if err != nil {
		return "", err
	}

	capability := model.CapabilityForPhase(book.PhaseRefining.String()).String()
	result, err := loop.Run(ctx, capability, loop.registry.Definitions(), messages)
	if err != nil {
		return "", err
	}

	p.History = append(p.History, result.Messages...)
	if err := o.store.Save(ctx, p); err != nil {
		return "", fmt.Errorf("persist chat history: %w", err)
	}
	return result.Content, nil
}

// ChatStream is Chat with streaming output. History is persisted once the
// final event arrives.
func (o *Orchestrator) ChatStream(ctx context.Context, projectID, userMessage string) (<-chan Event, error) {
	p, loop, messages, err := o.prepareChat(ctx, projectID, userMessage)
	if err != nil {
		return nil, err
	}

	capability := model.CapabilityForPhase(book.PhaseRefining.String()).String()
	inner := loop.RunStream(ctx, capability, loop.registry.Definitions(), messages)

	out := make(chan Event)
	go func() {
		defer close(out)
		for ev := range inner {
			if ev.Type == EventComplete && ev.Final != nil {
				p.History = append(p.History, ev.Final.Messages...)
				if err := o.store.Save(ctx, p); err != nil {
					o.logger.Error("persist chat history", "project", p.ID, "error", err)
				}
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (o *Orchestrator) prepareChat(ctx context.Context, projectID, userMessage string) (*book.Project, *Loop, []llm.Message, error) {
	p, err := o.store.Get(ctx, projectID)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := o.ws.EnsureProject(projectID); err != nil {
		return nil, nil, nil, fmt.Errorf("prepare workspace: %w", err)
	}

	p.History = append(p.History, llm.Message{Role: "user", Content: userMessage})

	window := p.History
	if len(window) > historyWindow {
		window = window[len(window)-historyWindow:]
	}

	messages := make([]llm.Message, 0, len(window)+1)
	messages = append(messages, llm.Message{Role: "system", Content: chatSystemPrompt(p)})
	messages = append(messages, window...)

	loop := NewLoop(o.client, o.registryFor(projectID), o.maxIterations, o.logger)
	return p, loop, messages, nil
}

// GenerateManuscript concatenates the outline title page and all chapters
// into manuscript.md and returns its workspace-relative path.
func (o *Orchestrator) GenerateManuscript(ctx context.Context, projectID string) (string, error) {
	p, err := o.store.Get(ctx, projectID)
	if err != nil {
		return "", err
	}
	if p.ChaptersCompleted == 0 {
		return "", fmt.Errorf("project %s has no chapters", projectID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", p.Title)
	if p.Genre != "" {
		fmt.Fprintf(&b, "*%s*\n\n", p.Genre)
	}
	if p.Description != "" {
		b.WriteString(p.Description + "\n\n")
	}

	for num := 1; num <= p.ChaptersCompleted; num++ {
		path, err := o.ws.Resolve(projectID, fmt.Sprintf("chapters/chapter_%d.md", num))
		if err != nil {
			return "", err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read chapter %d: %w", num, err)
		}
		b.WriteString("\n---\n\n")
		b.Write(data)
		if !strings.HasSuffix(string(data), "\n") {
			b.WriteString("\n")
		}
	}

	if err := o.writeArtifact(projectID, "manuscript.md", b.String()); err != nil {
		return "", err
	}

	// Assembling the manuscript from refinement finishes the book. Earlier
	// phases can still export a draft without ending the project.
	if p.Phase == book.PhaseRefining {
		if err := o.transition(ctx, p, book.PhaseCompleted); err != nil {
			return "", err
		}
		o.report(book.PhaseCompleted, 100, "Manuscript assembled")
	}
	return "manuscript.md", nil
}

// Progress reports how far along a project is.
func (o *Orchestrator) Progress(ctx context.Context, projectID string) (*book.Progress, error) {
	p, err := o.store.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}

	total := p.TargetChapters()
	var percent float64
	switch p.Phase {
	case book.PhaseCreated:
		percent = 0
	case book.PhasePlanning:
		percent = 10
	case book.PhaseResearch:
		percent = 25
	case book.PhaseWriting:
		done := p.ChaptersCompleted
		if done > total {
			done = total
		}
		percent = 30 + (float64(done)/float64(total))*55
	case book.PhaseEditing:
		percent = 90
	case book.PhaseRefining:
		percent = 95
	case book.PhaseCompleted:
		percent = 100
	default:
		percent = 0
	}

	// A recorded error means the last run aborted mid-phase; the stored
	// phase names what to retry, but pollers should see the project as
	// failed rather than quietly stalled.
	phase := p.Phase
	if p.Error != "" && !phase.IsTerminal() {
		phase = book.PhaseFailed
	}

	return &book.Progress{
		Phase:             phase,
		Percent:           percent,
		TargetChapters:    total,
		ChaptersCompleted: p.ChaptersCompleted,
		TotalWords:        p.TotalWords,
		TargetLength:      p.TargetLength,
		Error:             p.Error,
	}, nil
}
