package engine

import (
	"sync"
	"time"

	"github.com/com-junkawasaki/kotoba-sub011/workflow"
)

// RuleStats aggregates matcher and scheduler activity for one rule across
// every run of the engine.
type RuleStats struct {
	// MatchCalls counts match searches for the rule.
	MatchCalls int64 `json:"match_calls"`
	// MatchesFound totals the matches those searches returned.
	MatchesFound int64 `json:"matches_found"`
	// Applied counts applications that changed the graph.
	Applied int64 `json:"applied"`
	// NoOps counts applications whose patch was empty.
	NoOps int64 `json:"noops"`
	// Failures counts applications that errored.
	Failures int64 `json:"failures"`
}

// StepStats counts evaluations of one strategy operator kind.
type StepStats struct {
	Total  int64 `json:"total"`
	Failed int64 `json:"failed"`
}

// Stats is a point-in-time copy of the engine's counters.
type Stats struct {
	Started     bool                 `json:"started"`
	Runs        int64                `json:"runs"`
	RunFailures int64                `json:"run_failures"`
	RunTime     time.Duration        `json:"run_time"`
	Rules       map[string]RuleStats `json:"rules,omitempty"`
	Steps       map[string]StepStats `json:"steps,omitempty"`
}

// statsTracker aggregates counters through the runner's observer hook.
// Parallel branches report from their own goroutines, so everything locks.
type statsTracker struct {
	mu          sync.Mutex
	runs        int64
	runFailures int64
	runTime     time.Duration
	rules       map[string]*RuleStats
	steps       map[string]*StepStats
}

var _ workflow.RuleObserver = (*statsTracker)(nil)

func newStatsTracker() *statsTracker {
	return &statsTracker{
		rules: make(map[string]*RuleStats),
		steps: make(map[string]*StepStats),
	}
}

// ruleEntry returns the mutable entry for a rule; callers hold the lock.
func (t *statsTracker) ruleEntry(rule string) *RuleStats {
	rs, ok := t.rules[rule]
	if !ok {
		rs = &RuleStats{}
		t.rules[rule] = rs
	}
	return rs
}

// ObserveMatches implements workflow.RuleObserver.
func (t *statsTracker) ObserveMatches(rule string, found int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rs := t.ruleEntry(rule)
	rs.MatchCalls++
	rs.MatchesFound += int64(found)
}

// ObserveApplications implements workflow.RuleObserver.
func (t *statsTracker) ObserveApplications(rule, status string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rs := t.ruleEntry(rule)
	switch status {
	case "applied":
		rs.Applied += int64(n)
	case "noop":
		rs.NoOps += int64(n)
	default:
		rs.Failures += int64(n)
	}
}

// ObserveStep implements workflow.RuleObserver.
func (t *statsTracker) ObserveStep(op string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ss, ok := t.steps[op]
	if !ok {
		ss = &StepStats{}
		t.steps[op] = ss
	}
	ss.Total++
	if err != nil {
		ss.Failed++
	}
}

// observeRun accounts one Engine.Run invocation.
func (t *statsTracker) observeRun(d time.Duration, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs++
	t.runTime += d
	if !success {
		t.runFailures++
	}
}

// snapshot copies the counters.
func (t *statsTracker) snapshot(started bool) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Stats{
		Started:     started,
		Runs:        t.runs,
		RunFailures: t.runFailures,
		RunTime:     t.runTime,
		Rules:       make(map[string]RuleStats, len(t.rules)),
		Steps:       make(map[string]StepStats, len(t.steps)),
	}
	for name, rs := range t.rules {
		s.Rules[name] = *rs
	}
	for op, ss := range t.steps {
		s.Steps[op] = *ss
	}
	return s
}
