package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/com-junkawasaki/kotoba-sub011/metric"
)

// engineMetrics holds the prometheus collectors for facade-level
// operations. The matcher, scheduler and runner carry their own.
type engineMetrics struct {
	runs          *prometheus.CounterVec   // by root operator kind and status
	runDuration   *prometheus.HistogramVec // by root operator kind
	registrations *prometheus.CounterVec   // by bucket (rule/strategy) and status
	up            prometheus.Gauge         // 1 between Start and Stop
}

// newEngineMetrics creates and registers the facade collectors. A nil
// registry disables them.
func newEngineMetrics(registry *metric.MetricsRegistry) (*engineMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &engineMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kotoba",
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Total number of strategy runs",
		}, []string{"kind", "status"}), // status: success, failure

		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kotoba",
			Subsystem: "engine",
			Name:      "run_duration_seconds",
			Help:      "Strategy run duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 30.0},
		}, []string{"kind"}),

		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kotoba",
			Subsystem: "engine",
			Name:      "registrations_total",
			Help:      "Total number of rule and strategy registrations",
		}, []string{"bucket", "status"}),

		up: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kotoba",
			Subsystem: "engine",
			Name:      "up",
			Help:      "Whether the engine is started (1) or stopped (0)",
		}),
	}

	if err := registry.RegisterCounterVec("engine", "runs", m.runs); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("engine", "run_duration", m.runDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("engine", "registrations", m.registrations); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("engine", "up", m.up); err != nil {
		return nil, err
	}

	return m, nil
}

// recordRun records one Run invocation by root operator kind.
func (m *engineMetrics) recordRun(kind string, success bool, duration float64) {
	if m == nil {
		return
	}

	status := "success"
	if !success {
		status = "failure"
	}

	m.runs.WithLabelValues(kind, status).Inc()
	m.runDuration.WithLabelValues(kind).Observe(duration)
}

// recordRegistration records one RegisterRule or RegisterStrategy call.
func (m *engineMetrics) recordRegistration(bucket string, success bool) {
	if m == nil {
		return
	}

	status := "success"
	if !success {
		status = "failure"
	}

	m.registrations.WithLabelValues(bucket, status).Inc()
}

// recordUp flips the lifecycle gauge.
func (m *engineMetrics) recordUp(started bool) {
	if m == nil {
		return
	}

	if started {
		m.up.Set(1)
	} else {
		m.up.Set(0)
	}
}
