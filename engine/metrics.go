package engine

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes Prometheus-compatible instrumentation for wave execution
// and routing. Namespace "checkrun" mirrors the per-node metric set the
// underlying engine design uses, retargeted at checks/waves.
//
// Expose via HTTP for scraping:
//
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type Metrics struct {
	inflightChecks prometheus.Gauge
	queueDepth     prometheus.Gauge

	checkLatency *prometheus.HistogramVec

	retries         *prometheus.CounterVec
	forwardRuns     *prometheus.CounterVec
	loopBudgetStops *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewMetrics creates and registers the full metric set with registry. Pass
// prometheus.DefaultRegisterer for the global registry, or a fresh
// prometheus.NewRegistry() for isolation (recommended in tests).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	m := &Metrics{enabled: true}

	m.inflightChecks = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "checkrun",
		Name:      "inflight_checks",
		Help:      "Current number of checks executing concurrently within a wave",
	})
	m.queueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "checkrun",
		Name:      "queue_depth",
		Help:      "Number of eligible checks waiting for a free worker slot",
	})
	m.checkLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "checkrun",
		Name:      "check_latency_ms",
		Help:      "Check execution duration in milliseconds, from provider dispatch to commit",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 30000},
	}, []string{"session_id", "check_id", "status"})
	m.retries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "checkrun",
		Name:      "retries_total",
		Help:      "Cumulative count of on_fail-driven re-executions",
	}, []string{"session_id", "check_id"})
	m.forwardRuns = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "checkrun",
		Name:      "forward_runs_total",
		Help:      "Routing-triggered forward-run emissions (run/run_js/goto/goto_js)",
	}, []string{"session_id", "origin_check_id", "kind"})
	m.loopBudgetStops = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "checkrun",
		Name:      "loop_budget_exceeded_total",
		Help:      "Routing branches stopped after exceeding max_loops",
	}, []string{"session_id", "check_id"})

	return m
}

// RecordCheckLatency observes a check's execution duration.
func (m *Metrics) RecordCheckLatency(sessionID, checkID string, d time.Duration, status string) {
	if m == nil || !m.enabled {
		return
	}
	m.checkLatency.WithLabelValues(sessionID, checkID, status).Observe(float64(d.Milliseconds()))
}

// IncrementRetries increments the retry counter for a check.
func (m *Metrics) IncrementRetries(sessionID, checkID string) {
	if m == nil || !m.enabled {
		return
	}
	m.retries.WithLabelValues(sessionID, checkID).Inc()
}

// IncrementForwardRuns increments the forward-run counter for an origin check.
func (m *Metrics) IncrementForwardRuns(sessionID, originCheckID, kind string) {
	if m == nil || !m.enabled {
		return
	}
	m.forwardRuns.WithLabelValues(sessionID, originCheckID, kind).Inc()
}

// IncrementLoopBudgetStops increments the loop-budget-exceeded counter.
func (m *Metrics) IncrementLoopBudgetStops(sessionID, checkID string) {
	if m == nil || !m.enabled {
		return
	}
	m.loopBudgetStops.WithLabelValues(sessionID, checkID).Inc()
}

// UpdateInflight sets the current in-flight check gauge.
func (m *Metrics) UpdateInflight(n int) {
	if m == nil || !m.enabled {
		return
	}
	m.inflightChecks.Set(float64(n))
}

// UpdateQueueDepth sets the current queue-depth gauge.
func (m *Metrics) UpdateQueueDepth(n int) {
	if m == nil || !m.enabled {
		return
	}
	m.queueDepth.Set(float64(n))
}

// Disable stops recording without unregistering collectors.
func (m *Metrics) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

// Enable resumes recording.
func (m *Metrics) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}
