package rewrite

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/com-junkawasaki/kotoba-sub011/metric"
)

// matcherMetrics holds Prometheus metrics for pattern search.
type matcherMetrics struct {
	searches         *prometheus.CounterVec   // By rule and status (ok/error)
	searchDuration   *prometheus.HistogramVec // By rule
	matchesPerSearch *prometheus.HistogramVec // By rule
	planCache        *prometheus.CounterVec   // By outcome (hit/miss)
	budgetExhausted  *prometheus.CounterVec   // By rule
}

// newMatcherMetrics creates and registers matcher metrics with the provided registry.
func newMatcherMetrics(registry *metric.MetricsRegistry) (*matcherMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &matcherMetrics{
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kotoba",
			Subsystem: "matcher",
			Name:      "searches_total",
			Help:      "Total number of pattern searches",
		}, []string{"rule", "status"}), // status: ok, error

		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kotoba",
			Subsystem: "matcher",
			Name:      "search_duration_seconds",
			Help:      "Pattern search duration in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1.0, 5.0},
		}, []string{"rule"}),

		matchesPerSearch: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kotoba",
			Subsystem: "matcher",
			Name:      "matches_per_search",
			Help:      "Matches found per completed search",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64, 128, 256},
		}, []string{"rule"}),

		planCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kotoba",
			Subsystem: "matcher",
			Name:      "plan_cache_total",
			Help:      "Search plan cache lookups",
		}, []string{"outcome"}), // outcome: hit, miss

		budgetExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kotoba",
			Subsystem: "matcher",
			Name:      "budget_exhausted_total",
			Help:      "Searches stopped by the candidate budget",
		}, []string{"rule"}),
	}

	if err := registry.RegisterCounterVec("matcher", "searches", m.searches); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("matcher", "search_duration", m.searchDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("matcher", "matches_per_search", m.matchesPerSearch); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("matcher", "plan_cache", m.planCache); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("matcher", "budget_exhausted", m.budgetExhausted); err != nil {
		return nil, err
	}

	return m, nil
}

// startSearch begins timing one search.
func (m *matcherMetrics) startSearch() time.Time {
	if m == nil {
		return time.Time{}
	}
	return time.Now()
}

// recordSearch records a finished search.
func (m *matcherMetrics) recordSearch(start time.Time, rule string, matches int, ok bool) {
	if m == nil {
		return
	}

	status := "ok"
	if !ok {
		status = "error"
	}

	m.searches.WithLabelValues(rule, status).Inc()
	m.searchDuration.WithLabelValues(rule).Observe(time.Since(start).Seconds())
	if ok {
		m.matchesPerSearch.WithLabelValues(rule).Observe(float64(matches))
	}
}

// recordPlanCache records one plan cache lookup.
func (m *matcherMetrics) recordPlanCache(hit bool) {
	if m == nil {
		return
	}

	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.planCache.WithLabelValues(outcome).Inc()
}

// recordBudgetExhausted records a search cut short by the candidate budget.
func (m *matcherMetrics) recordBudgetExhausted(rule string) {
	if m == nil {
		return
	}
	m.budgetExhausted.WithLabelValues(rule).Inc()
}

// schedulerMetrics holds Prometheus metrics for batch application.
type schedulerMetrics struct {
	batches       *prometheus.CounterVec   // By rule and status (applied/conflict/failure)
	batchSize     *prometheus.HistogramVec // By rule
	buildDuration *prometheus.HistogramVec // By rule
	conflicts     *prometheus.CounterVec   // By rule
}

// newSchedulerMetrics creates and registers scheduler metrics with the provided registry.
func newSchedulerMetrics(registry *metric.MetricsRegistry) (*schedulerMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &schedulerMetrics{
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kotoba",
			Subsystem: "scheduler",
			Name:      "batches_total",
			Help:      "Total number of batch applications",
		}, []string{"rule", "status"}), // status: applied, conflict, failure

		batchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kotoba",
			Subsystem: "scheduler",
			Name:      "batch_size",
			Help:      "Independent matches applied per batch",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
		}, []string{"rule"}),

		buildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kotoba",
			Subsystem: "scheduler",
			Name:      "build_duration_seconds",
			Help:      "Concurrent patch build duration in seconds",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1.0},
		}, []string{"rule"}),

		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kotoba",
			Subsystem: "scheduler",
			Name:      "conflicts_total",
			Help:      "Batches that fell back to sequential application",
		}, []string{"rule"}),
	}

	if err := registry.RegisterCounterVec("scheduler", "batches", m.batches); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("scheduler", "batch_size", m.batchSize); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("scheduler", "build_duration", m.buildDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("scheduler", "conflicts", m.conflicts); err != nil {
		return nil, err
	}

	return m, nil
}

// recordBatch records a finished batch application.
func (m *schedulerMetrics) recordBatch(rule, status string, size int, buildDuration time.Duration) {
	if m == nil {
		return
	}

	m.batches.WithLabelValues(rule, status).Inc()
	if size > 0 {
		m.batchSize.WithLabelValues(rule).Observe(float64(size))
	}
	m.buildDuration.WithLabelValues(rule).Observe(buildDuration.Seconds())
}

// recordConflict records a batch that was not independent after all.
func (m *schedulerMetrics) recordConflict(rule string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(rule).Inc()
}
