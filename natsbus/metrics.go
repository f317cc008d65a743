package natsbus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/com-junkawasaki/kotoba-sub011/metric"
)

// busMetrics holds Prometheus metrics for the NATS transport. Every record
// method is safe on a nil receiver so instrumentation stays optional.
type busMetrics struct {
	connStatus prometheus.Gauge
	reconnects prometheus.Counter

	published *prometheus.CounterVec // messages published, by topic
	delivered *prometheus.CounterVec // messages handed to subscribers, by topic
	dropped   *prometheus.CounterVec // messages lost to full buffers, by topic

	errors *prometheus.CounterVec // transport operation errors, by operation
}

func newBusMetrics(registry *metric.MetricsRegistry) (*busMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &busMetrics{
		connStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kotoba",
			Subsystem: "natsbus",
			Name:      "connection_status",
			Help:      "Connection status (0=disconnected, 1=connecting, 2=connected, 3=reconnecting, 4=circuit_open)",
		}),

		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kotoba",
			Subsystem: "natsbus",
			Name:      "reconnects_total",
			Help:      "Total reconnections to the NATS server",
		}),

		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kotoba",
			Subsystem: "natsbus",
			Name:      "messages_published_total",
			Help:      "Total messages published on the bus",
		}, []string{"topic"}),

		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kotoba",
			Subsystem: "natsbus",
			Name:      "messages_delivered_total",
			Help:      "Total messages delivered to subscribers",
		}, []string{"topic"}),

		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kotoba",
			Subsystem: "natsbus",
			Name:      "messages_dropped_total",
			Help:      "Total messages dropped because a subscriber buffer was full",
		}, []string{"topic"}),

		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kotoba",
			Subsystem: "natsbus",
			Name:      "operation_errors_total",
			Help:      "Total transport operation errors",
		}, []string{"operation"}),
	}

	if err := registry.RegisterGauge("natsbus", "connection_status", m.connStatus); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("natsbus", "reconnects", m.reconnects); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("natsbus", "published", m.published); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("natsbus", "delivered", m.delivered); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("natsbus", "dropped", m.dropped); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("natsbus", "errors", m.errors); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *busMetrics) recordStatus(s ConnectionStatus) {
	if m != nil {
		m.connStatus.Set(float64(s))
	}
}

func (m *busMetrics) recordReconnect() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *busMetrics) recordPublished(topic string) {
	if m != nil {
		m.published.WithLabelValues(topic).Inc()
	}
}

func (m *busMetrics) recordDelivered(topic string) {
	if m != nil {
		m.delivered.WithLabelValues(topic).Inc()
	}
}

func (m *busMetrics) recordDropped(topic string) {
	if m != nil {
		m.dropped.WithLabelValues(topic).Inc()
	}
}

func (m *busMetrics) recordError(operation string) {
	if m != nil {
		m.errors.WithLabelValues(operation).Inc()
	}
}
