// Package task schedules background work on a fixed worker pool with a FIFO
// queue, per-task activity logs, and retention of finished tasks.
package task

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a task lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further state changes are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

const (
	defaultWorkers = 3

	// maxActivities caps each task's activity log; older entries are
	// discarded first.
	maxActivities = 50

	// retentionAge is how long finished tasks are kept before the sweeper
	// removes them.
	retentionAge = 24 * time.Hour

	sweepInterval = time.Hour
)

// Activity is one timestamped progress entry.
type Activity struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// ReportFunc carries progress out of a running task: the phase the work is
// in, a 0-100 percent, and a message for the activity log. Empty phase or
// message fields leave the previous value in place.
type ReportFunc func(phase string, percent float64, message string)

// Func is the work a task performs. Progress reported through the callback
// lands on the task record for pollers. Cancellation of a running task is
// advisory: ctx is cancelled and the function decides when to stop.
type Func func(ctx context.Context, report ReportFunc) error

// Task is a unit of background work and its observable state.
type Task struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	ProjectID    string     `json:"project_id,omitempty"`
	Status       Status     `json:"status"`
	Progress     float64    `json:"progress"`
	CurrentPhase string     `json:"current_phase,omitempty"`
	Message      string     `json:"message,omitempty"`
	Error        string     `json:"error,omitempty"`
	Activities   []Activity `json:"activities,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    time.Time  `json:"started_at,omitzero"`
	FinishedAt   time.Time  `json:"finished_at,omitzero"`

	fn     Func
	cancel context.CancelFunc
}

// Manager runs tasks on a fixed pool of workers, in submission order.
type Manager struct {
	workers int
	logger  *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*Task
	tasks   map[string]*Task
	closed  bool
	stopped chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithWorkers sets the pool size.
func WithWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager starts a task manager and its worker pool.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		workers: defaultWorkers,
		logger:  slog.Default(),
		tasks:   make(map[string]*Task),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.cond = sync.NewCond(&m.mu)

	for i := 0; i < m.workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	m.wg.Add(1)
	go m.sweeper()

	return m
}

// Submit enqueues work and returns the pending task's ID.
func (m *Manager) Submit(taskType, projectID string, fn Func) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", fmt.Errorf("task manager is shut down")
	}

	t := &Task{
		ID:        uuid.NewString(),
		Type:      taskType,
		ProjectID: projectID,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
		fn:        fn,
	}
	m.tasks[t.ID] = t
	m.queue = append(m.queue, t)
	tasksSubmitted.WithLabelValues(taskType).Inc()
	tasksPending.Inc()
	m.cond.Signal()

	m.logger.Debug("task submitted", "task", t.ID, "type", taskType, "project", projectID)
	return t.ID, nil
}

// Get returns a snapshot of a task's state.
func (m *Manager) Get(id string) (*Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, false
	}
	return t.snapshot(), true
}

// List returns snapshots of all known tasks, newest first.
func (m *Manager) List() []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.snapshot())
	}
	sortNewestFirst(out)
	return out
}

// TasksFor returns snapshots of one project's tasks, newest first.
func (m *Manager) TasksFor(projectID string) []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Task
	for _, t := range m.tasks {
		if t.ProjectID == projectID {
			out = append(out, t.snapshot())
		}
	}
	sortNewestFirst(out)
	return out
}

func sortNewestFirst(tasks []*Task) {
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
}

// Cancel cancels a task. A pending task moves to cancelled and never runs. A
// running task has its context cancelled but keeps running until its function
// honors the cancellation. Finished tasks cannot be cancelled.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}

	switch t.Status {
	case StatusPending:
		m.removeFromQueue(t)
		t.Status = StatusCancelled
		t.FinishedAt = time.Now().UTC()
		t.appendActivity("cancelled before start")
		tasksPending.Dec()
		tasksCompleted.WithLabelValues(t.Type, string(StatusCancelled)).Inc()
		return nil
	case StatusRunning:
		if t.cancel != nil {
			t.cancel()
		}
		t.appendActivity("cancellation requested")
		return nil
	default:
		return fmt.Errorf("task %s is already %s", id, t.Status)
	}
}

// Shutdown stops accepting work, cancels running tasks, and waits for the
// workers to drain.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.stopped)
	for _, t := range m.tasks {
		if t.Status == StatusRunning && t.cancel != nil {
			t.cancel()
		}
	}
	m.cond.Broadcast()
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *Manager) worker() {
	defer m.wg.Done()

	for {
		m.mu.Lock()
		for len(m.queue) == 0 && !m.closed {
			m.cond.Wait()
		}
		if m.closed && len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}

		t := m.queue[0]
		m.queue = m.queue[1:]

		ctx, cancel := context.WithCancel(context.Background())
		t.cancel = cancel
		t.Status = StatusRunning
		t.StartedAt = time.Now().UTC()
		tasksPending.Dec()
		tasksRunning.Inc()
		m.mu.Unlock()

		err := t.fn(ctx, func(phase string, percent float64, message string) {
			m.mu.Lock()
			t.applyReport(phase, percent, message)
			m.mu.Unlock()
		})
		cancel()

		m.mu.Lock()
		t.FinishedAt = time.Now().UTC()
		if err != nil {
			t.Status = StatusFailed
			t.Error = err.Error()
			t.appendActivity("failed: " + err.Error())
		} else {
			t.Status = StatusCompleted
			t.Progress = 100
			t.appendActivity("completed")
		}
		tasksRunning.Dec()
		tasksCompleted.WithLabelValues(t.Type, string(t.Status)).Inc()
		taskDuration.WithLabelValues(t.Type).Observe(t.FinishedAt.Sub(t.StartedAt).Seconds())
		m.mu.Unlock()

		if err != nil {
			m.logger.Error("task failed", "task", t.ID, "type", t.Type, "error", err)
		} else {
			m.logger.Info("task completed", "task", t.ID, "type", t.Type)
		}
	}
}

// sweeper periodically drops finished tasks older than the retention window.
func (m *Manager) sweeper() {
	defer m.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopped:
			return
		case <-ticker.C:
			m.sweep(time.Now().UTC())
		}
	}
}

func (m *Manager) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, t := range m.tasks {
		if t.Status.IsTerminal() && now.Sub(t.FinishedAt) > retentionAge {
			delete(m.tasks, id)
		}
	}
}

func (m *Manager) removeFromQueue(target *Task) {
	for i, t := range m.queue {
		if t == target {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return
		}
	}
}

// applyReport folds one progress report into the task. Progress never moves
// backwards, so pollers see a non-decreasing percentage even when a phase
// restarts its own accounting. Caller holds the manager lock.
func (t *Task) applyReport(phase string, percent float64, message string) {
	if phase != "" {
		t.CurrentPhase = phase
	}
	if percent > 100 {
		percent = 100
	}
	if percent > t.Progress {
		t.Progress = percent
	}
	if message != "" {
		t.Message = message
		t.appendActivity(message)
	}
}

// appendActivity adds a log entry, discarding the oldest beyond the cap.
// Caller holds the manager lock.
func (t *Task) appendActivity(message string) {
	t.Activities = append(t.Activities, Activity{
		Time:    time.Now().UTC(),
		Message: message,
	})
	if len(t.Activities) > maxActivities {
		t.Activities = t.Activities[len(t.Activities)-maxActivities:]
	}
}

func (t *Task) snapshot() *Task {
	dup := *t
	dup.fn = nil
	dup.cancel = nil
	dup.Activities = append([]Activity(nil), t.Activities...)
	return &dup
}
