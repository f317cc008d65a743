package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// registrar is the slice of the metrics registry the pool needs. Taking an
// interface keeps this package free of a dependency on the registry itself.
type registrar interface {
	RegisterCounter(serviceName, metricName string, counter prometheus.Counter) error
	RegisterGauge(serviceName, metricName string, gauge prometheus.Gauge) error
	RegisterHistogramVec(serviceName, metricName string, histogramVec *prometheus.HistogramVec) error
}

// poolMetrics instruments one pool. All methods tolerate a nil receiver, so
// unmetered pools skip recording without branching at every call site.
type poolMetrics struct {
	depth       prometheus.Gauge
	utilization prometheus.Gauge
	submitted   prometheus.Counter
	dropped     prometheus.Counter
	duration    *prometheus.HistogramVec
}

const metricsService = "worker_pool"

func newPoolMetrics(registry registrar, prefix string) (*poolMetrics, error) {
	m := &poolMetrics{
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_queue_depth",
			Help: "Tasks waiting in the pool queue",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_queue_utilization",
			Help: "Queue depth as a fraction of capacity",
		}),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_submitted_total",
			Help: "Tasks accepted into the queue",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_dropped_total",
			Help: "Tasks rejected because the queue was full",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "_task_duration_seconds",
			Help:    "Task handling time",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"status"}), // status: ok, error
	}

	if err := registry.RegisterGauge(metricsService, prefix+"_queue_depth", m.depth); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(metricsService, prefix+"_queue_utilization", m.utilization); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(metricsService, prefix+"_submitted_total", m.submitted); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(metricsService, prefix+"_dropped_total", m.dropped); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec(metricsService, prefix+"_task_duration_seconds", m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *poolMetrics) gauge(depth, capacity int) {
	m.depth.Set(float64(depth))
	m.utilization.Set(float64(depth) / float64(capacity))
}

func (m *poolMetrics) submit(depth, capacity int) {
	if m == nil {
		return
	}
	m.submitted.Inc()
	m.gauge(depth, capacity)
}

func (m *poolMetrics) drop() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *poolMetrics) handled(err error, elapsed time.Duration, depth, capacity int) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.duration.WithLabelValues(status).Observe(elapsed.Seconds())
	m.gauge(depth, capacity)
}
