package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolErrorsTotal       *prometheus.CounterVec
	toolRejectedTotal     *prometheus.CounterVec
	panicsTotal           *prometheus.CounterVec

	pendingCreatedTotal  *prometheus.CounterVec
	pendingResolvedTotal *prometheus.CounterVec
	pendingOpen          *prometheus.GaugeVec

	rewindTotal      *prometheus.CounterVec
	rewoundRecords   prometheus.Counter
	eventsDropped    *prometheus.CounterVec
	decisionsTotal   *prometheus.CounterVec
	decisionsOutcome *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			toolErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_errors_total",
					Help: "Total failed tool executions by tool and error kind.",
				},
				[]string{"tool", "kind"},
			),
			toolRejectedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_rejected_total",
					Help: "Tool calls refused before execution (unknown tool, invalid parameters, lock policy).",
				},
				[]string{"kind"},
			),
			panicsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_panics_total",
					Help: "Panics recovered at the executor boundary by tool.",
				},
				[]string{"tool"},
			),
			pendingCreatedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "pending_actions_created_total",
					Help: "Tool calls queued for approval by tool.",
				},
				[]string{"tool"},
			),
			pendingResolvedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "pending_actions_resolved_total",
					Help: "Pending actions reaching a terminal status.",
				},
				[]string{"status"},
			),
			pendingOpen: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "pending_actions_open",
					Help: "Pending actions waiting for review in a session, as of the last listing.",
				},
				[]string{"session"},
			),
			rewindTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rewind_total",
					Help: "Rewind requests by status.",
				},
				[]string{"status"},
			),
			rewoundRecords: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "rewind_records_rolled_back_total",
					Help: "Audit records marked rolled back by rewinds.",
				},
			),
			eventsDropped: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "events_dropped_total",
					Help: "Session events that failed to publish by type.",
				},
				[]string{"type"},
			),
			decisionsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "decision_total",
					Help: "Decision engine recommendations by engine and outcome.",
				},
				[]string{"engine", "outcome"},
			),
			decisionsOutcome: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "decision_probability",
					Help:    "Probability computed by decision engines.",
					Buckets: prometheus.LinearBuckets(0, 0.1, 11),
				},
				[]string{"engine"},
			),
		}

		prometheus.MustRegister(
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.toolErrorsTotal,
			m.toolRejectedTotal,
			m.panicsTotal,
			m.pendingCreatedTotal,
			m.pendingResolvedTotal,
			m.pendingOpen,
			m.rewindTotal,
			m.rewoundRecords,
			m.eventsDropped,
			m.decisionsTotal,
			m.decisionsOutcome,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordToolError(tool, kind string) {
	getMetrics().toolErrorsTotal.WithLabelValues(tool, kind).Inc()
}

func RecordToolRejected(kind string) {
	getMetrics().toolRejectedTotal.WithLabelValues(kind).Inc()
}

func RecordToolPanic(tool string) {
	getMetrics().panicsTotal.WithLabelValues(tool).Inc()
}

func RecordPendingCreated(tool string) {
	getMetrics().pendingCreatedTotal.WithLabelValues(tool).Inc()
}

func RecordPendingResolved(status string) {
	getMetrics().pendingResolvedTotal.WithLabelValues(status).Inc()
}

func SetPendingOpen(sessionID string, count int) {
	getMetrics().pendingOpen.WithLabelValues(sessionID).Set(float64(count))
}

func RecordRewind(success bool, rolledBack int) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.rewindTotal.WithLabelValues(status).Inc()
	m.rewoundRecords.Add(float64(rolledBack))
}

func RecordEventDropped(eventType string) {
	getMetrics().eventsDropped.WithLabelValues(eventType).Inc()
}

func RecordDecision(engine string, probability float64, introduced bool) {
	m := getMetrics()
	outcome := "skip"
	if introduced {
		outcome = "introduce"
	}
	m.decisionsTotal.WithLabelValues(engine, outcome).Inc()
	m.decisionsOutcome.WithLabelValues(engine).Observe(probability)
}
