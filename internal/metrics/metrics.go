// Package metrics exposes Prometheus metrics for task admission, processing
// and webhook delivery. All methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/private-doc-vault/docvault-ocr-service/internal/domain"
)

const namespace = "docvault_ocr"

// Failure reasons recorded on the failed counter.
const (
	ReasonPermanent = "permanent"
	ReasonExhausted = "retries_exhausted"
)

// Webhook delivery outcomes.
const (
	WebhookDelivered = "delivered"
	WebhookFailed    = "failed"
	WebhookDropped   = "dropped"
)

// Metrics holds all Prometheus metrics of the service.
type Metrics struct {
	registry *prometheus.Registry

	tasksSubmitted    *prometheus.CounterVec
	tasksCompleted    prometheus.Counter
	tasksFailed       *prometheus.CounterVec
	tasksRetried      prometheus.Counter
	tasksCancelled    prometheus.Counter
	tasksDeadLettered prometheus.Counter
	tasksRecovered    prometheus.Counter
	tasksPurged       prometheus.Counter

	queueDepth       *prometheus.GaugeVec
	deadLetterDepth  prometheus.Gauge
	tasksInFlight    prometheus.Gauge
	webhookDelivered *prometheus.CounterVec

	taskDuration *prometheus.HistogramVec
}

// New creates Metrics registered on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tasksSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_submitted_total",
			Help:      "Total number of tasks admitted to the queue",
		}, []string{"priority"}),
		tasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_completed_total",
			Help:      "Total number of tasks completed successfully",
		}),
		tasksFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_failed_total",
			Help:      "Total number of tasks that ended FAILED",
		}, []string{"reason"}),
		tasksRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_retried_total",
			Help:      "Total number of transient failures that requeued a task",
		}),
		tasksCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_cancelled_total",
			Help:      "Total number of tasks cancelled while queued",
		}),
		tasksDeadLettered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_dead_lettered_total",
			Help:      "Total number of tasks moved to the dead-letter list",
		}),
		tasksRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_recovered_total",
			Help:      "Total number of stuck tasks reclaimed by the monitor",
		}),
		tasksPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_purged_total",
			Help:      "Total number of finished tasks removed by retention cleanup",
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Current number of queued tasks per priority tier",
		}, []string{"priority"}),
		deadLetterDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dead_letter_depth",
			Help:      "Current number of dead-lettered tasks",
		}),
		tasksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_in_flight",
			Help:      "Number of tasks currently claimed by workers in this process",
		}),
		webhookDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Webhook deliveries by outcome",
		}, []string{"outcome"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Time from claim to terminal transition or requeue",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.tasksSubmitted,
		m.tasksCompleted,
		m.tasksFailed,
		m.tasksRetried,
		m.tasksCancelled,
		m.tasksDeadLettered,
		m.tasksRecovered,
		m.tasksPurged,
		m.queueDepth,
		m.deadLetterDepth,
		m.tasksInFlight,
		m.webhookDelivered,
		m.taskDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TaskSubmitted counts an admitted task.
func (m *Metrics) TaskSubmitted(p domain.Priority) {
	if m == nil {
		return
	}
	m.tasksSubmitted.WithLabelValues(string(p)).Inc()
}

// TaskStarted marks a task as claimed by this process.
func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.tasksInFlight.Inc()
}

// TaskCompleted records a successful task.
func (m *Metrics) TaskCompleted(d time.Duration) {
	if m == nil {
		return
	}
	m.tasksInFlight.Dec()
	m.tasksCompleted.Inc()
	m.taskDuration.WithLabelValues("completed").Observe(d.Seconds())
}

// TaskRetried records a transient failure that sent a task back to the queue.
func (m *Metrics) TaskRetried(d time.Duration) {
	if m == nil {
		return
	}
	m.tasksInFlight.Dec()
	m.tasksRetried.Inc()
	m.taskDuration.WithLabelValues("retried").Observe(d.Seconds())
}

// TaskFailed records a task that ended FAILED for the given reason.
func (m *Metrics) TaskFailed(reason string, d time.Duration) {
	if m == nil {
		return
	}
	m.tasksInFlight.Dec()
	m.tasksFailed.WithLabelValues(reason).Inc()
	m.taskDuration.WithLabelValues("failed").Observe(d.Seconds())
}

// TaskAbandoned releases the in-flight slot of a task whose claim was lost.
func (m *Metrics) TaskAbandoned() {
	if m == nil {
		return
	}
	m.tasksInFlight.Dec()
}

// TaskCancelled counts a cancellation.
func (m *Metrics) TaskCancelled() {
	if m == nil {
		return
	}
	m.tasksCancelled.Inc()
}

// TaskDeadLettered counts a dead-lettered task.
func (m *Metrics) TaskDeadLettered() {
	if m == nil {
		return
	}
	m.tasksDeadLettered.Inc()
}

// TaskRecovered counts a stuck task reclaimed by the monitor.
func (m *Metrics) TaskRecovered() {
	if m == nil {
		return
	}
	m.tasksRecovered.Inc()
}

// TasksPurged counts finished tasks removed by retention cleanup.
func (m *Metrics) TasksPurged(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tasksPurged.Add(float64(n))
}

// SetQueueDepths updates the per-tier depth gauges.
func (m *Metrics) SetQueueDepths(depths map[domain.Priority]int64) {
	if m == nil {
		return
	}
	for _, p := range domain.Priorities {
		m.queueDepth.WithLabelValues(string(p)).Set(float64(depths[p]))
	}
}

// SetDeadLetterDepth updates the dead-letter gauge.
func (m *Metrics) SetDeadLetterDepth(n int64) {
	if m == nil {
		return
	}
	m.deadLetterDepth.Set(float64(n))
}

// WebhookDelivery counts a webhook outcome.
func (m *Metrics) WebhookDelivery(outcome string) {
	if m == nil {
		return
	}
	m.webhookDelivered.WithLabelValues(outcome).Inc()
}
