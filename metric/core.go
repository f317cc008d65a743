package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all engine-level metrics (not component-specific)
type Metrics struct {
	// Rewrite metrics
	EngineStatus     *prometheus.GaugeVec
	MatchesFound     *prometheus.CounterVec
	RulesApplied     *prometheus.CounterVec
	RewriteDuration  *prometheus.HistogramVec
	StrategySteps    *prometheus.CounterVec
	BatchSize        prometheus.Histogram
	IterationsCapped prometheus.Counter

	// Workflow metrics
	ActivityExecutions *prometheus.CounterVec
	EventsPublished    *prometheus.CounterVec
	ErrorsTotal        *prometheus.CounterVec

	// Bus metrics
	BusConnected      prometheus.Gauge
	BusRTT            prometheus.Gauge
	BusReconnects     prometheus.Counter
	BusCircuitBreaker prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all engine metrics
func NewMetrics() *Metrics {
	return &Metrics{
		EngineStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "kotoba",
				Subsystem: "engine",
				Name:      "status",
				Help:      "Engine status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"engine"},
		),

		MatchesFound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kotoba",
				Subsystem: "rewrite",
				Name:      "matches_total",
				Help:      "Total number of matches discovered",
			},
			[]string{"rule"},
		),

		RulesApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kotoba",
				Subsystem: "rewrite",
				Name:      "applications_total",
				Help:      "Total number of rule applications",
			},
			[]string{"rule", "status"},
		),

		RewriteDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "kotoba",
				Subsystem: "rewrite",
				Name:      "duration_seconds",
				Help:      "Rewrite phase duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"rule", "phase"},
		),

		StrategySteps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kotoba",
				Subsystem: "strategy",
				Name:      "steps_total",
				Help:      "Total strategy operator evaluations",
			},
			[]string{"op", "status"},
		),

		BatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "kotoba",
				Subsystem: "rewrite",
				Name:      "batch_size",
				Help:      "Number of independent matches applied per batch",
				Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
			},
		),

		IterationsCapped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "kotoba",
				Subsystem: "rewrite",
				Name:      "iterations_capped_total",
				Help:      "Fixpoint loops stopped by the iteration cap",
			},
		),

		ActivityExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kotoba",
				Subsystem: "workflow",
				Name:      "activity_executions_total",
				Help:      "Total activity executions",
			},
			[]string{"activity", "status"},
		),

		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kotoba",
				Subsystem: "workflow",
				Name:      "events_published_total",
				Help:      "Total workflow events published",
			},
			[]string{"kind"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kotoba",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"component", "class"},
		),

		// Bus metrics
		BusConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "kotoba",
				Subsystem: "bus",
				Name:      "connected",
				Help:      "Bus connection status (0=disconnected, 1=connected)",
			},
		),

		BusRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "kotoba",
				Subsystem: "bus",
				Name:      "rtt_milliseconds",
				Help:      "Bus round-trip time in milliseconds",
			},
		),

		BusReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "kotoba",
				Subsystem: "bus",
				Name:      "reconnects_total",
				Help:      "Total number of bus reconnections",
			},
		),

		BusCircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "kotoba",
				Subsystem: "bus",
				Name:      "circuit_breaker",
				Help:      "Bus circuit breaker status (0=closed, 1=open, 2=half-open)",
			},
		),
	}
}

// collectors lists every collector in the set for bulk registration.
func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.EngineStatus,
		c.MatchesFound,
		c.RulesApplied,
		c.RewriteDuration,
		c.StrategySteps,
		c.BatchSize,
		c.IterationsCapped,
		c.ActivityExecutions,
		c.EventsPublished,
		c.ErrorsTotal,
		c.BusConnected,
		c.BusRTT,
		c.BusReconnects,
		c.BusCircuitBreaker,
	}
}

// RecordEngineStatus updates engine status metric
func (c *Metrics) RecordEngineStatus(engine string, status int) {
	c.EngineStatus.WithLabelValues(engine).Set(float64(status))
}

// RecordMatches adds to the match counter for a rule
func (c *Metrics) RecordMatches(rule string, count int) {
	c.MatchesFound.WithLabelValues(rule).Add(float64(count))
}

// RecordApplication increments the application counter for a rule
func (c *Metrics) RecordApplication(rule, status string) {
	c.RulesApplied.WithLabelValues(rule, status).Inc()
}

// RecordApplications adds count applications for a rule in one step
func (c *Metrics) RecordApplications(rule, status string, count int) {
	c.RulesApplied.WithLabelValues(rule, status).Add(float64(count))
}

// RecordRewriteDuration records the duration of a rewrite phase (match, build, apply)
func (c *Metrics) RecordRewriteDuration(rule, phase string, duration time.Duration) {
	c.RewriteDuration.WithLabelValues(rule, phase).Observe(duration.Seconds())
}

// RecordStrategyStep increments the strategy step counter
func (c *Metrics) RecordStrategyStep(op, status string) {
	c.StrategySteps.WithLabelValues(op, status).Inc()
}

// RecordBatchSize records the size of an independently-applied batch
func (c *Metrics) RecordBatchSize(size int) {
	c.BatchSize.Observe(float64(size))
}

// RecordIterationCap increments the capped-loop counter
func (c *Metrics) RecordIterationCap() {
	c.IterationsCapped.Inc()
}

// RecordActivityExecution increments the activity execution counter
func (c *Metrics) RecordActivityExecution(activity, status string) {
	c.ActivityExecutions.WithLabelValues(activity, status).Inc()
}

// RecordEventPublished increments the workflow event counter
func (c *Metrics) RecordEventPublished(kind string) {
	c.EventsPublished.WithLabelValues(kind).Inc()
}

// RecordError increments error counter
func (c *Metrics) RecordError(component, class string) {
	c.ErrorsTotal.WithLabelValues(component, class).Inc()
}

// RecordBusStatus updates bus connection status
func (c *Metrics) RecordBusStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.BusConnected.Set(value)
}

// RecordBusRTT updates bus round-trip time
func (c *Metrics) RecordBusRTT(rtt time.Duration) {
	c.BusRTT.Set(float64(rtt.Milliseconds()))
}

// RecordBusReconnect increments reconnection counter
func (c *Metrics) RecordBusReconnect() {
	c.BusReconnects.Inc()
}

// RecordCircuitBreakerState updates circuit breaker status
func (c *Metrics) RecordCircuitBreakerState(state int) {
	c.BusCircuitBreaker.Set(float64(state))
}
