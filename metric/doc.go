// Package metric provides centralized Prometheus metrics management for the engine.
//
// # Overview
//
// MetricsRegistry owns a private Prometheus registry pre-loaded with the core
// engine metrics (rewrite throughput, strategy steps, workflow activity, bus
// health) plus the Go runtime collectors. Components register their own
// metrics through the MetricsRegistrar interface; registration is tracked per
// component so duplicate names are rejected with a classified Invalid error
// instead of a Prometheus panic.
//
// # Core Metrics
//
// NewMetricsRegistry initializes and registers:
//
//   - kotoba_engine_status
//   - kotoba_rewrite_matches_total, kotoba_rewrite_applications_total
//   - kotoba_rewrite_duration_seconds{rule,phase}
//   - kotoba_rewrite_batch_size, kotoba_rewrite_iterations_capped_total
//   - kotoba_strategy_steps_total{op,status}
//   - kotoba_workflow_activity_executions_total, kotoba_workflow_events_published_total
//   - kotoba_errors_total{component,class}
//   - kotoba_bus_connected, kotoba_bus_rtt_milliseconds,
//     kotoba_bus_reconnects_total, kotoba_bus_circuit_breaker
//
// Record helpers on Metrics keep label handling in one place:
//
//	m := registry.CoreMetrics()
//	m.RecordMatches("collapse", len(matches))
//	m.RecordRewriteDuration("collapse", "match", elapsed)
//
// # Component Metrics
//
// Components accept a MetricsRegistrar and register under their own name:
//
//	func (m *Matcher) RegisterMetrics(r metric.MetricsRegistrar) error {
//	    return r.RegisterCounter("matcher", "plan_cache_hits_total", m.cacheHits)
//	}
//
// # HTTP Exposure
//
// Server wraps promhttp for the registry and serves /metrics plus a trivial
// /health endpoint:
//
//	srv := metric.NewServer(":9090", "/metrics", registry)
//	go srv.Start()
//	defer srv.Stop()
package metric
