package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/com-junkawasaki/kotoba-sub011/errors"
)

// MetricsRegistrar is the registration surface components depend on.
// Metrics are tracked per service name so one component can be torn down
// without disturbing another's collectors.
type MetricsRegistrar interface {
	RegisterCounter(serviceName, metricName string, counter prometheus.Counter) error
	RegisterGauge(serviceName, metricName string, gauge prometheus.Gauge) error
	RegisterHistogram(serviceName, metricName string, histogram prometheus.Histogram) error
	RegisterCounterVec(serviceName, metricName string, counterVec *prometheus.CounterVec) error
	RegisterGaugeVec(serviceName, metricName string, gaugeVec *prometheus.GaugeVec) error
	RegisterHistogramVec(serviceName, metricName string, histogramVec *prometheus.HistogramVec) error
	Unregister(serviceName, metricName string) bool
}

var _ MetricsRegistrar = (*MetricsRegistry)(nil)

// MetricsRegistry implements MetricsRegistrar over a private Prometheus
// registry pre-loaded with the core engine metrics and the Go runtime
// collectors.
type MetricsRegistry struct {
	mu      sync.Mutex
	prom    *prometheus.Registry
	core    *Metrics
	tracked map[string]prometheus.Collector
}

// NewMetricsRegistry builds a registry with the core engine metrics and
// the Go runtime collectors already registered.
func NewMetricsRegistry() *MetricsRegistry {
	r := &MetricsRegistry{
		prom:    prometheus.NewRegistry(),
		core:    NewMetrics(),
		tracked: make(map[string]prometheus.Collector),
	}
	r.prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	r.prom.MustRegister(r.core.collectors()...)
	return r
}

// PrometheusRegistry exposes the underlying registry, mainly for promhttp.
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prom
}

// CoreMetrics returns the shared engine metric set.
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	return r.core
}

// register adds c under the service-scoped key and translates Prometheus
// failures into classified errors: a name collision, here or inside
// Prometheus, blames the caller; anything else is fatal.
func (r *MetricsRegistry) register(op, serviceName, metricName string, c prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := serviceName + "." + metricName
	if _, taken := r.tracked[key]; taken {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered for service %s", metricName, serviceName),
			"MetricsRegistry", op, "track metric")
	}

	if err := r.prom.Register(c); err != nil {
		action := fmt.Sprintf("register %s for %s", metricName, serviceName)
		var dup prometheus.AlreadyRegisteredError
		if stderrors.As(err, &dup) {
			return errors.WrapInvalid(err, "MetricsRegistry", op, action)
		}
		return errors.WrapFatal(err, "MetricsRegistry", op, action)
	}

	r.tracked[key] = c
	return nil
}

// RegisterCounter registers a counter under the service's name.
func (r *MetricsRegistry) RegisterCounter(serviceName, metricName string, counter prometheus.Counter) error {
	return r.register("RegisterCounter", serviceName, metricName, counter)
}

// RegisterGauge registers a gauge under the service's name.
func (r *MetricsRegistry) RegisterGauge(serviceName, metricName string, gauge prometheus.Gauge) error {
	return r.register("RegisterGauge", serviceName, metricName, gauge)
}

// RegisterHistogram registers a histogram under the service's name.
func (r *MetricsRegistry) RegisterHistogram(serviceName, metricName string, histogram prometheus.Histogram) error {
	return r.register("RegisterHistogram", serviceName, metricName, histogram)
}

// RegisterCounterVec registers a labelled counter under the service's name.
func (r *MetricsRegistry) RegisterCounterVec(serviceName, metricName string, counterVec *prometheus.CounterVec) error {
	return r.register("RegisterCounterVec", serviceName, metricName, counterVec)
}

// RegisterGaugeVec registers a labelled gauge under the service's name.
func (r *MetricsRegistry) RegisterGaugeVec(serviceName, metricName string, gaugeVec *prometheus.GaugeVec) error {
	return r.register("RegisterGaugeVec", serviceName, metricName, gaugeVec)
}

// RegisterHistogramVec registers a labelled histogram under the service's
// name.
func (r *MetricsRegistry) RegisterHistogramVec(serviceName, metricName string, histogramVec *prometheus.HistogramVec) error {
	return r.register("RegisterHistogramVec", serviceName, metricName, histogramVec)
}

// Unregister removes a tracked metric. It reports false for metrics this
// registry never accepted.
func (r *MetricsRegistry) Unregister(serviceName, metricName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := serviceName + "." + metricName
	c, ok := r.tracked[key]
	if !ok {
		return false
	}
	if !r.prom.Unregister(c) {
		return false
	}
	delete(r.tracked, key)
	return true
}
