package llm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bookwright",
		Subsystem: "llm",
		Name:      "requests_total",
		Help:      "LLM completion requests by provider, model, and outcome.",
	}, []string{"provider", "model", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bookwright",
		Subsystem: "llm",
		Name:      "request_duration_seconds",
		Help:      "Wall-clock duration of LLM completion requests.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 180},
	}, []string{"provider", "status"})

	tokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bookwright",
		Subsystem: "llm",
		Name:      "tokens_total",
		Help:      "Tokens consumed by model and direction.",
	}, []string{"model", "direction"})
)

func observeRequest(provider, model, status string, elapsed time.Duration) {
	requestsTotal.WithLabelValues(provider, model, status).Inc()
	requestDuration.WithLabelValues(provider, status).Observe(elapsed.Seconds())
}

func observeUsage(model string, usage TokenUsage) {
	if usage.TotalTokens == 0 {
		return
	}
	tokensTotal.WithLabelValues(model, "prompt").Add(float64(usage.PromptTokens))
	tokensTotal.WithLabelValues(model, "completion").Add(float64(usage.CompletionTokens))
}
