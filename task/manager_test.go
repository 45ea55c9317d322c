package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForStatus(t *testing.T, m *Manager, id string, want Status) *Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, ok := m.Get(id)
		require.True(t, ok)
		if task.Status == want {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	task, _ := m.Get(id)
	t.Fatalf("task %s never reached %s, last status %s", id, want, task.Status)
	return nil
}

func TestSubmitRunsToCompletion(t *testing.T) {
	m := NewManager(WithWorkers(1))
	defer m.Shutdown()

	id, err := m.Submit("draft-chapter", "proj-1", func(ctx context.Context, report ReportFunc) error {
		report("writing", 40, "drafting chapter 1")
		return nil
	})
	require.NoError(t, err)

	task := waitForStatus(t, m, id, StatusCompleted)
	assert.Equal(t, "draft-chapter", task.Type)
	assert.Equal(t, "proj-1", task.ProjectID)
	assert.Empty(t, task.Error)
	assert.Equal(t, "writing", task.CurrentPhase)
	assert.Equal(t, float64(100), task.Progress, "completion pins progress at 100")
	assert.Equal(t, "drafting chapter 1", task.Message)
	assert.False(t, task.StartedAt.IsZero())
	assert.False(t, task.FinishedAt.IsZero())

	messages := make([]string, 0, len(task.Activities))
	for _, a := range task.Activities {
		messages = append(messages, a.Message)
	}
	assert.Equal(t, []string{"drafting chapter 1", "completed"}, messages)
}

func TestProgressNeverDecreases(t *testing.T) {
	m := NewManager(WithWorkers(1))
	defer m.Shutdown()

	reported := make(chan struct{})
	resume := make(chan struct{})
	id, err := m.Submit("run-project", "proj-1", func(ctx context.Context, report ReportFunc) error {
		report("planning", 10, "outline")
		reported <- struct{}{}
		<-resume
		report("writing", 60, "chapter 1")
		reported <- struct{}{}
		<-resume
		// A failure-path report carries percent 0 and must not roll back.
		report("writing", 0, "failed: transient")
		reported <- struct{}{}
		<-resume
		return nil
	})
	require.NoError(t, err)

	<-reported
	task, ok := m.Get(id)
	require.True(t, ok)
	assert.Equal(t, float64(10), task.Progress)
	assert.Equal(t, "planning", task.CurrentPhase)
	resume <- struct{}{}

	<-reported
	task, _ = m.Get(id)
	assert.Equal(t, float64(60), task.Progress)
	assert.Equal(t, "writing", task.CurrentPhase)
	resume <- struct{}{}

	<-reported
	task, _ = m.Get(id)
	assert.Equal(t, float64(60), task.Progress, "progress is monotonic until terminal")
	resume <- struct{}{}

	waitForStatus(t, m, id, StatusCompleted)
}

func TestTasksForFiltersByProject(t *testing.T) {
	m := NewManager(WithWorkers(1))
	defer m.Shutdown()

	var mine []string
	for i := 0; i < 2; i++ {
		id, err := m.Submit("seq", "proj-a", func(ctx context.Context, report ReportFunc) error {
			return nil
		})
		require.NoError(t, err)
		mine = append(mine, id)
		time.Sleep(2 * time.Millisecond)
	}
	other, err := m.Submit("seq", "proj-b", func(ctx context.Context, report ReportFunc) error {
		return nil
	})
	require.NoError(t, err)

	for _, id := range []string{mine[0], mine[1], other} {
		waitForStatus(t, m, id, StatusCompleted)
	}

	tasks := m.TasksFor("proj-a")
	require.Len(t, tasks, 2)
	assert.Equal(t, mine[1], tasks[0].ID)
	assert.Equal(t, mine[0], tasks[1].ID)
	assert.Empty(t, m.TasksFor("proj-z"))
}

func TestFailedTaskRecordsError(t *testing.T) {
	m := NewManager(WithWorkers(1))
	defer m.Shutdown()

	id, err := m.Submit("run-project", "proj-1", func(ctx context.Context, report ReportFunc) error {
		return errors.New("planning produced no outline")
	})
	require.NoError(t, err)

	task := waitForStatus(t, m, id, StatusFailed)
	assert.Equal(t, "planning produced no outline", task.Error)
	assert.Equal(t, "failed: planning produced no outline", task.Activities[len(task.Activities)-1].Message)
}

func TestTasksRunInSubmissionOrder(t *testing.T) {
	m := NewManager(WithWorkers(1))
	defer m.Shutdown()

	var mu sync.Mutex
	var order []int

	gate := make(chan struct{})
	var ids []string
	for i := 0; i < 5; i++ {
		i := i
		id, err := m.Submit("ordered", "", func(ctx context.Context, report ReportFunc) error {
			<-gate
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	close(gate)
	for _, id := range ids {
		waitForStatus(t, m, id, StatusCompleted)
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestCancelPendingTask(t *testing.T) {
	m := NewManager(WithWorkers(1))
	defer m.Shutdown()

	block := make(chan struct{})
	first, err := m.Submit("blocker", "", func(ctx context.Context, report ReportFunc) error {
		<-block
		return nil
	})
	require.NoError(t, err)

	second, err := m.Submit("never-runs", "", func(ctx context.Context, report ReportFunc) error {
		t.Error("cancelled pending task must not run")
		return nil
	})
	require.NoError(t, err)

	waitForStatus(t, m, first, StatusRunning)
	require.NoError(t, m.Cancel(second))

	task, ok := m.Get(second)
	require.True(t, ok)
	assert.Equal(t, StatusCancelled, task.Status)
	assert.False(t, task.FinishedAt.IsZero())

	close(block)
	waitForStatus(t, m, first, StatusCompleted)
}

func TestCancelRunningTaskIsAdvisory(t *testing.T) {
	m := NewManager(WithWorkers(1))
	defer m.Shutdown()

	started := make(chan struct{})
	id, err := m.Submit("long-edit", "proj-1", func(ctx context.Context, report ReportFunc) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	<-started
	waitForStatus(t, m, id, StatusRunning)
	require.NoError(t, m.Cancel(id))

	task := waitForStatus(t, m, id, StatusFailed)
	assert.Contains(t, task.Error, "context canceled")
}

func TestCancelFinishedTaskFails(t *testing.T) {
	m := NewManager(WithWorkers(1))
	defer m.Shutdown()

	id, err := m.Submit("quick", "", func(ctx context.Context, report ReportFunc) error {
		return nil
	})
	require.NoError(t, err)
	waitForStatus(t, m, id, StatusCompleted)

	assert.ErrorContains(t, m.Cancel(id), "already completed")
	assert.ErrorContains(t, m.Cancel("no-such-task"), "not found")
}

func TestActivityLogIsCapped(t *testing.T) {
	m := NewManager(WithWorkers(1))
	defer m.Shutdown()

	id, err := m.Submit("chatty", "", func(ctx context.Context, report ReportFunc) error {
		for i := 0; i < maxActivities+20; i++ {
			report("", 0, fmt.Sprintf("step %d", i))
		}
		return nil
	})
	require.NoError(t, err)

	task := waitForStatus(t, m, id, StatusCompleted)
	assert.Len(t, task.Activities, maxActivities)
	assert.Equal(t, "completed", task.Activities[len(task.Activities)-1].Message)
	assert.Equal(t, "step 21", task.Activities[0].Message, "oldest entries are discarded")
}

func TestListNewestFirst(t *testing.T) {
	m := NewManager(WithWorkers(1))
	defer m.Shutdown()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := m.Submit("seq", "", func(ctx context.Context, report ReportFunc) error {
			return nil
		})
		require.NoError(t, err)
		ids = append(ids, id)
		time.Sleep(2 * time.Millisecond)
	}
	for _, id := range ids {
		waitForStatus(t, m, id, StatusCompleted)
	}

	list := m.List()
	require.Len(t, list, 3)
	assert.Equal(t, ids[2], list[0].ID)
	assert.Equal(t, ids[0], list[2].ID)
}

func TestSweepRemovesOldFinishedTasks(t *testing.T) {
	m := NewManager(WithWorkers(1))
	defer m.Shutdown()

	id, err := m.Submit("old", "", func(ctx context.Context, report ReportFunc) error {
		return nil
	})
	require.NoError(t, err)
	waitForStatus(t, m, id, StatusCompleted)

	m.sweep(time.Now().UTC())
	_, ok := m.Get(id)
	assert.True(t, ok, "recent tasks survive the sweep")

	m.sweep(time.Now().UTC().Add(retentionAge + time.Minute))
	_, ok = m.Get(id)
	assert.False(t, ok)
}

func TestSubmitAfterShutdownFails(t *testing.T) {
	m := NewManager(WithWorkers(1))
	m.Shutdown()

	_, err := m.Submit("late", "", func(ctx context.Context, report ReportFunc) error {
		return nil
	})
	assert.ErrorContains(t, err, "shut down")
}

func TestShutdownDrainsQueue(t *testing.T) {
	m := NewManager(WithWorkers(2))

	var done sync.WaitGroup
	done.Add(4)
	for i := 0; i < 4; i++ {
		_, err := m.Submit("drain", "", func(ctx context.Context, report ReportFunc) error {
			defer done.Done()
			time.Sleep(5 * time.Millisecond)
			return nil
		})
		require.NoError(t, err)
	}

	m.Shutdown()
	done.Wait()
}
