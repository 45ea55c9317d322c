package task

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookwright_tasks_submitted_total",
		Help: "Tasks submitted to the scheduler by type.",
	}, []string{"type"})

	tasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookwright_tasks_completed_total",
		Help: "Tasks finished by type and terminal status.",
	}, []string{"type", "status"})

	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bookwright_task_duration_seconds",
		Help:    "Task execution time from start to finish.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"type"})

	tasksPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bookwright_tasks_pending",
		Help: "Tasks waiting for a worker.",
	})

	tasksRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bookwright_tasks_running",
		Help: "Tasks currently executing.",
	})
)
