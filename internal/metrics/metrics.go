// Package metrics implements the orchestration core's Prometheus
// collectors (SPEC_FULL.md §11), grounded on the teacher's
// internal/observability.ContextMetrics shape (NewXMetricsWithRegisterer,
// a GaugeVec/CounterVec/HistogramVec field set, testable against a
// private prometheus.Registry rather than the global default one).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrchestrationMetrics holds the task, notifier, pipeline and retry
// collectors. The server registers it in the Service Container; the Task
// Manager, Notifier, Pipeline Runner and Background Runner do not call it.
type OrchestrationMetrics struct {
	tasksByStatus     *prometheus.GaugeVec
	taskDuration      *prometheus.HistogramVec
	stepDuration      *prometheus.HistogramVec
	broadcastFailures prometheus.Counter
	observerCount     prometheus.Gauge
	retryAttempts     *prometheus.CounterVec
}

// NewOrchestrationMetrics registers the default collector set against the
// global Prometheus registry.
func NewOrchestrationMetrics() *OrchestrationMetrics {
	return NewOrchestrationMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrchestrationMetricsWithRegisterer registers against reg, so tests
// can use a private prometheus.Registry instead of the process-wide
// default, matching the teacher's own test pattern.
func NewOrchestrationMetricsWithRegisterer(reg prometheus.Registerer) *OrchestrationMetrics {
	m := &OrchestrationMetrics{
		tasksByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mediaflow",
			Subsystem: "tasks",
			Name:      "by_status",
			Help:      "Current number of tasks in each status.",
		}, []string{"status"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mediaflow",
			Subsystem: "tasks",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of a task from creation to a terminal status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type", "status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mediaflow",
			Subsystem: "pipeline",
			Name:      "step_duration_seconds",
			Help:      "Duration of an individual pipeline step.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step", "status"}),
		broadcastFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mediaflow",
			Subsystem: "notifier",
			Name:      "broadcast_failures_total",
			Help:      "Observer writes that failed and caused the observer to be pruned.",
		}),
		observerCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mediaflow",
			Subsystem: "notifier",
			Name:      "observers",
			Help:      "Currently connected WebSocket observers.",
		}),
		retryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediaflow",
			Subsystem: "background",
			Name:      "retry_attempts_total",
			Help:      "Retry attempts made by the Background Runner, by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.tasksByStatus,
		m.taskDuration,
		m.stepDuration,
		m.broadcastFailures,
		m.observerCount,
		m.retryAttempts,
	)
	return m
}

// SetTasksByStatus reports the current gauge value for one status.
func (m *OrchestrationMetrics) SetTasksByStatus(status string, count float64) {
	m.tasksByStatus.WithLabelValues(status).Set(count)
}

// ObserveTaskDuration records a terminal task's total wall-clock time.
func (m *OrchestrationMetrics) ObserveTaskDuration(taskType, status string, seconds float64) {
	m.taskDuration.WithLabelValues(taskType, status).Observe(seconds)
}

// ObserveStepDuration records one pipeline step's elapsed time.
func (m *OrchestrationMetrics) ObserveStepDuration(step, status string, seconds float64) {
	m.stepDuration.WithLabelValues(step, status).Observe(seconds)
}

// IncBroadcastFailure counts one dropped observer.
func (m *OrchestrationMetrics) IncBroadcastFailure() {
	m.broadcastFailures.Inc()
}

// SetObserverCount reports the Notifier's live observer count.
func (m *OrchestrationMetrics) SetObserverCount(count float64) {
	m.observerCount.Set(count)
}

// IncRetryAttempt counts one Background Runner retry, labeled by its
// eventual outcome ("retried", "exhausted", "succeeded").
func (m *OrchestrationMetrics) IncRetryAttempt(outcome string) {
	m.retryAttempts.WithLabelValues(outcome).Inc()
}
