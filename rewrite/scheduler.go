package rewrite

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/com-junkawasaki/kotoba-sub011/errors"
	"github.com/com-junkawasaki/kotoba-sub011/graph"
	"github.com/com-junkawasaki/kotoba-sub011/metric"
	"github.com/com-junkawasaki/kotoba-sub011/pkg/worker"
	"github.com/com-junkawasaki/kotoba-sub011/rule"
	"github.com/com-junkawasaki/kotoba-sub011/strategy"
)

// SchedulerConfig bounds batched application. Zero values take the defaults.
type SchedulerConfig struct {
	// Workers is the number of concurrent patch builders. At most one
	// worker means patches are built inline on the calling goroutine.
	Workers int `json:"workers"`
	// QueueSize is the build queue capacity.
	QueueSize int `json:"queue_size"`
	// MaxBatch caps how many independent matches one iteration applies.
	MaxBatch int `json:"max_batch"`
}

// DefaultSchedulerConfig returns the default batching limits.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Workers:   4,
		QueueSize: 256,
		MaxBatch:  64,
	}
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	def := DefaultSchedulerConfig()
	if c.Workers == 0 {
		c.Workers = def.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = def.MaxBatch
	}
	return c
}

// IndependenceConflict reports that two matches judged independent built
// overlapping patches. It never escapes the scheduler: the batch falls back
// to a single application and the caller's next re-match picks up the rest.
type IndependenceConflict struct {
	Rule string
	Size int
	Err  error
}

func (e *IndependenceConflict) Error() string {
	return fmt.Sprintf("batch of %d for rule %q was not independent: %v", e.Size, e.Rule, e.Err)
}

// Unwrap exposes the underlying merge conflict.
func (e *IndependenceConflict) Unwrap() error { return e.Err }

// buildTask is one concurrent patch build. The slot pointer is owned by the
// task, so workers never share a write target.
type buildTask struct {
	view  graph.View
	rule  *rule.Rule
	match Match
	slot  *graph.Patch
	wg    *sync.WaitGroup
}

// Scheduler applies batches of independent matches to a snapshot in one
// step. Patch builds run on a worker pool; merging and applying stay on the
// calling goroutine. If the merge detects a conflict the analyzer missed,
// the scheduler falls back to applying a single match, and the caller's
// next re-match picks up the rest.
type Scheduler struct {
	builder  *Builder
	analyzer *Analyzer
	cfg      SchedulerConfig
	pool     *worker.Pool[*buildTask]
	logger   *slog.Logger
	metrics  *schedulerMetrics
	registry *metric.MetricsRegistry
}

// SchedulerOption configures optional scheduler collaborators.
type SchedulerOption func(*Scheduler)

// WithSchedulerMetrics registers the scheduler's metrics with the registry.
func WithSchedulerMetrics(registry *metric.MetricsRegistry) SchedulerOption {
	return func(s *Scheduler) {
		metrics, err := newSchedulerMetrics(registry)
		if err != nil {
			s.logger.Warn("scheduler metrics disabled", "error", err)
			return
		}
		s.metrics = metrics
		s.registry = registry
	}
}

// NewScheduler builds a scheduler around a patch builder and an analyzer.
// Nil collaborators get defaults; a nil logger falls back to slog.Default().
func NewScheduler(builder *Builder, analyzer *Analyzer, cfg SchedulerConfig, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if builder == nil {
		builder = NewBuilder(logger)
	}
	if analyzer == nil {
		analyzer = NewAnalyzer(logger)
	}
	s := &Scheduler{
		builder:  builder,
		analyzer: analyzer,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.Workers > 1 {
		poolOpts := []worker.Option[*buildTask]{}
		if s.registry != nil {
			poolOpts = append(poolOpts,
				worker.WithMetricsRegistry[*buildTask](s.registry, "kotoba_scheduler_build"))
		}
		s.pool = worker.NewPool(s.cfg.Workers, s.cfg.QueueSize, s.processTask, poolOpts...)
	}
	return s
}

// Start launches the build workers. Without a pool it is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Start(ctx)
}

// Stop drains the build workers. Without a pool it is a no-op.
func (s *Scheduler) Stop(timeout time.Duration) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Stop(timeout)
}

func (s *Scheduler) processTask(_ context.Context, t *buildTask) error {
	defer t.wg.Done()
	*t.slot = s.builder.BuildPatch(t.view, t.rule, t.match)
	return nil
}

// ApplyOne builds and applies the patch for a single match. An empty patch
// leaves the snapshot untouched.
func (s *Scheduler) ApplyOne(ctx context.Context, snap *graph.Snapshot, r *rule.Rule, m Match) (*graph.Snapshot, graph.Patch, error) {
	if err := ctx.Err(); err != nil {
		return nil, graph.Patch{}, errors.Wrap(err, "Scheduler", "ApplyOne", "cancelled")
	}
	p := s.builder.BuildPatch(snap, r, m)
	if p.IsEmpty() {
		return snap, p, nil
	}
	next, err := snap.Apply(p)
	if err != nil {
		return nil, graph.Patch{}, errors.Wrap(err, "Scheduler", "ApplyOne", "apply patch")
	}
	return next, p, nil
}

// applyFirstNonEmpty walks the matches in order-policy sequence and applies
// the first one whose patch does something. Zero applied with a nil error
// means every match builds an empty patch.
func (s *Scheduler) applyFirstNonEmpty(ctx context.Context, snap *graph.Snapshot, r *rule.Rule, matches []Match, order strategy.Order, cursor int) (*graph.Snapshot, graph.Patch, int, error) {
	n := len(matches)
	if n == 0 {
		return snap, graph.Patch{}, 0, nil
	}
	step := 1
	if order.OrDefault() == strategy.OrderBottomUp {
		step = n - 1
	}
	idx := SelectMatch(matches, order, cursor)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, graph.Patch{}, 0, errors.Wrap(err, "Scheduler", "ApplyBatch", "cancelled")
		}
		p := s.builder.BuildPatch(snap, r, matches[idx])
		if !p.IsEmpty() {
			next, err := snap.Apply(p)
			if err != nil {
				return nil, graph.Patch{}, 0, errors.Wrap(err, "Scheduler", "ApplyBatch", "apply fallback patch")
			}
			return next, p, 1, nil
		}
		idx = (idx + step) % n
	}
	return snap, graph.Patch{}, 0, nil
}

// ApplyBatch applies as many independent matches as possible in one step.
//
// The analyzer partitions the matches into dependency groups; one
// representative per group, chosen by the order policy, joins the batch up
// to the MaxBatch cap. Representatives of distinct groups are pairwise
// independent, so their patches merge without overlap and a single Apply
// realizes all of them. Returns the new snapshot, the merged patch and the
// number of matches applied. When every representative builds an empty patch
// the other group members are scanned for one that still makes progress, so
// zero applied means the rule has reached a fixpoint on this snapshot.
func (s *Scheduler) ApplyBatch(ctx context.Context, snap *graph.Snapshot, r *rule.Rule, matches []Match, order strategy.Order, cursor int) (*graph.Snapshot, graph.Patch, int, error) {
	if len(matches) == 0 {
		return snap, graph.Patch{}, 0, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, graph.Patch{}, 0, errors.Wrap(err, "Scheduler", "ApplyBatch", "cancelled")
	}

	groups := s.analyzer.Partition(snap, r, matches)
	reps := make([]Match, 0, len(groups))
	for _, group := range groups {
		reps = append(reps, matches[pickFromGroup(group, order, cursor)])
		if len(reps) == s.cfg.MaxBatch {
			break
		}
	}

	buildStart := time.Now()
	patches := s.buildAll(ctx, snap, r, reps)
	buildDur := time.Since(buildStart)
	if err := ctx.Err(); err != nil {
		s.metrics.recordBatch(r.Name, "failure", 0, buildDur)
		return nil, graph.Patch{}, 0, errors.Wrap(err, "Scheduler", "ApplyBatch", "build patches")
	}

	nonEmpty := patches[:0]
	for _, p := range patches {
		if !p.IsEmpty() {
			nonEmpty = append(nonEmpty, p)
		}
	}
	if len(nonEmpty) == 0 {
		// The representatives were all no-ops, but another group member
		// may still make progress; only an all-empty scan is a fixpoint.
		next, p, applied, err := s.applyFirstNonEmpty(ctx, snap, r, matches, order, cursor)
		if err != nil {
			s.metrics.recordBatch(r.Name, "failure", 0, buildDur)
			return nil, graph.Patch{}, 0, err
		}
		s.metrics.recordBatch(r.Name, "applied", applied, buildDur)
		return next, p, applied, nil
	}

	merged, err := graph.MergeAll(nonEmpty...)
	if err != nil {
		// The static test missed a conflict. Apply one match now; the
		// caller re-matches before the next iteration anyway.
		var conflict *graph.ConflictError
		if !stderrors.As(err, &conflict) {
			s.metrics.recordBatch(r.Name, "failure", 0, buildDur)
			return nil, graph.Patch{}, 0, errors.Wrap(err, "Scheduler", "ApplyBatch", "merge patches")
		}
		s.logger.Warn("falling back to single application",
			"error", &IndependenceConflict{Rule: r.Name, Size: len(nonEmpty), Err: conflict})
		s.metrics.recordConflict(r.Name)
		next, p, applied, err := s.applyFirstNonEmpty(ctx, snap, r, matches, order, cursor)
		if err != nil {
			s.metrics.recordBatch(r.Name, "failure", 0, buildDur)
			return nil, graph.Patch{}, 0, err
		}
		s.metrics.recordBatch(r.Name, "conflict", applied, buildDur)
		return next, p, applied, nil
	}

	next, err := snap.Apply(merged)
	if err != nil {
		s.metrics.recordBatch(r.Name, "failure", 0, buildDur)
		return nil, graph.Patch{}, 0, errors.Wrap(err, "Scheduler", "ApplyBatch", "apply merged patch")
	}
	s.metrics.recordBatch(r.Name, "applied", len(nonEmpty), buildDur)
	return next, merged, len(nonEmpty), nil
}

// buildAll builds one patch per match, on the pool when available. Submit
// failures degrade to inline builds; cancellation abandons the wait and the
// caller surfaces the context error.
func (s *Scheduler) buildAll(ctx context.Context, view graph.View, r *rule.Rule, reps []Match) []graph.Patch {
	patches := make([]graph.Patch, len(reps))
	if s.pool == nil || len(reps) == 1 {
		for i, m := range reps {
			patches[i] = s.builder.BuildPatch(view, r, m)
		}
		return patches
	}

	var wg sync.WaitGroup
	for i, m := range reps {
		task := &buildTask{view: view, rule: r, match: m, slot: &patches[i], wg: &wg}
		wg.Add(1)
		if err := s.pool.Submit(task); err != nil {
			s.processTask(ctx, task)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return patches
}

// pickFromGroup selects one match index from a dependency group. The group
// is sorted ascending, so first means first-discovered.
func pickFromGroup(group []int, order strategy.Order, cursor int) int {
	switch order.OrDefault() {
	case strategy.OrderBottomUp:
		return group[len(group)-1]
	case strategy.OrderFair:
		if cursor < 0 {
			cursor = 0
		}
		return group[cursor%len(group)]
	default:
		return group[0]
	}
}
