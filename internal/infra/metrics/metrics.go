// Package metrics provides Prometheus metrics for tide.
// Counters, gauges and histograms for tasks, workers, trade cycles,
// key leasing, event delivery and health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Tasks ──────────────────────────────────────────────────────────────────

// TaskTransitions counts lifecycle transitions by target state.
var TaskTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tide",
	Name:      "task_transitions_total",
	Help:      "Total task lifecycle transitions by target state.",
}, []string{"state"})

// TasksRegistered tracks tasks currently held by the registry.
var TasksRegistered = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "tide",
	Name:      "tasks_registered",
	Help:      "Number of tasks in the registry.",
})

// ─── Workers ────────────────────────────────────────────────────────────────

// WorkersRunning tracks worker goroutines that have not checked out yet.
var WorkersRunning = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "tide",
	Name:      "workers_running",
	Help:      "Number of live trade workers across all tasks.",
})

// ─── Trades ─────────────────────────────────────────────────────────────────

// TradeCycles counts finished trade cycles by chain and result
// (success, skip, failed).
var TradeCycles = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tide",
	Name:      "trade_cycles_total",
	Help:      "Total trade cycles by chain and result.",
}, []string{"chain", "result"})

// TradeCycleDuration tracks wall time of one cycle including confirmation.
var TradeCycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "tide",
	Name:      "trade_cycle_duration_seconds",
	Help:      "Trade cycle duration in seconds, confirmation included.",
	Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
}, []string{"chain"})

// ─── Key Leasing ────────────────────────────────────────────────────────────

// LeaseMisses counts cycles that found every wallet key busy.
var LeaseMisses = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tide",
	Name:      "key_lease_misses_total",
	Help:      "Cycles skipped because no wallet key was free.",
}, []string{"chain"})

// KeysLeased tracks keys currently held by workers.
var KeysLeased = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "tide",
	Name:      "keys_leased",
	Help:      "Number of wallet keys currently leased.",
})

// ─── Events ─────────────────────────────────────────────────────────────────

// EventsEmitted counts events accepted by the hub.
var EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tide",
	Name:      "events_emitted_total",
	Help:      "Total task events accepted by kind.",
}, []string{"kind"})

// EventsDropped counts events discarded because a buffer was full.
var EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tide",
	Name:      "events_dropped_total",
	Help:      "Task events dropped per stage (hub, subscriber, forwarder).",
}, []string{"stage"})

// ─── Aggregators ────────────────────────────────────────────────────────────

// AggregatorLatency tracks aggregator HTTP round trips.
var AggregatorLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "tide",
	Name:      "aggregator_request_seconds",
	Help:      "Aggregator request latency by aggregator and endpoint.",
	Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
}, []string{"aggregator", "endpoint"})

// AggregatorRetries counts retried aggregator requests.
var AggregatorRetries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tide",
	Name:      "aggregator_retries_total",
	Help:      "Aggregator requests retried after a transient failure.",
}, []string{"aggregator", "endpoint"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "tide",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})
