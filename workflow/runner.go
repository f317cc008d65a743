package workflow

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/com-junkawasaki/kotoba-sub011/catalog"
	"github.com/com-junkawasaki/kotoba-sub011/errors"
	"github.com/com-junkawasaki/kotoba-sub011/graph"
	"github.com/com-junkawasaki/kotoba-sub011/metric"
	"github.com/com-junkawasaki/kotoba-sub011/pkg/retry"
	"github.com/com-junkawasaki/kotoba-sub011/pkg/timestamp"
	"github.com/com-junkawasaki/kotoba-sub011/rewrite"
	"github.com/com-junkawasaki/kotoba-sub011/rule"
	"github.com/com-junkawasaki/kotoba-sub011/strategy"
)

// RunnerConfig bounds one evaluation. Zero values take the defaults.
type RunnerConfig struct {
	// MaxDepth caps SubWorkflow nesting.
	MaxDepth int `json:"max_depth"`
	// MaxParallel caps concurrently evaluating Parallel branches.
	MaxParallel int `json:"max_parallel"`
}

// DefaultRunnerConfig returns the default evaluation limits.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		MaxDepth:    16,
		MaxParallel: 8,
	}
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	def := DefaultRunnerConfig()
	if c.MaxDepth <= 0 {
		c.MaxDepth = def.MaxDepth
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = def.MaxParallel
	}
	return c
}

// Runner evaluates strategy trees against graph snapshots. Rule operators
// go through the matcher and scheduler; workflow operators consult the
// predicate and activity registries, the clock and the event bus. A Runner
// is safe for concurrent Run calls: all per-evaluation state lives in the
// run value.
type Runner struct {
	matcher    *rewrite.Matcher
	scheduler  *rewrite.Scheduler
	catalog    *catalog.Catalog
	activities *ActivityRegistry
	predicates *PredicateRegistry
	bus        EventBus
	clock      Clock
	cfg        RunnerConfig
	logger     *slog.Logger
	metrics    *metric.Metrics
	observer   RuleObserver
}

// RuleObserver sees per-rule match and application counts plus per-operator
// step outcomes as evaluation proceeds. Calls happen inline with the
// evaluation, so implementations must be fast and safe for concurrent use.
type RuleObserver interface {
	ObserveMatches(rule string, found int)
	ObserveApplications(rule, status string, n int)
	ObserveStep(op string, err error)
}

// RunnerOption configures optional runner collaborators.
type RunnerOption func(*Runner)

// WithActivities replaces the default empty activity registry.
func WithActivities(reg *ActivityRegistry) RunnerOption {
	return func(r *Runner) { r.activities = reg }
}

// WithPredicates replaces the default empty predicate registry.
func WithPredicates(reg *PredicateRegistry) RunnerOption {
	return func(r *Runner) { r.predicates = reg }
}

// WithBus replaces the default in-process event bus.
func WithBus(bus EventBus) RunnerOption {
	return func(r *Runner) { r.bus = bus }
}

// WithClock replaces the system clock, for deterministic waits in tests.
func WithClock(clock Clock) RunnerOption {
	return func(r *Runner) { r.clock = clock }
}

// WithRunnerMetrics attaches the engine metrics.
func WithRunnerMetrics(m *metric.Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithRuleObserver attaches an observer for per-rule and per-step counts.
func WithRuleObserver(obs RuleObserver) RunnerOption {
	return func(r *Runner) { r.observer = obs }
}

// WithRunnerConfig replaces the default evaluation limits.
func WithRunnerConfig(cfg RunnerConfig) RunnerOption {
	return func(r *Runner) { r.cfg = cfg.withDefaults() }
}

// NewRunner builds a runner. The matcher, scheduler and catalog are
// required; registries, bus and clock default to empty in-process ones. A
// nil logger falls back to slog.Default().
func NewRunner(matcher *rewrite.Matcher, scheduler *rewrite.Scheduler, cat *catalog.Catalog, logger *slog.Logger, opts ...RunnerOption) (*Runner, error) {
	if matcher == nil || scheduler == nil || cat == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "Runner", "NewRunner",
			"construct runner without matcher, scheduler or catalog")
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		matcher:   matcher,
		scheduler: scheduler,
		catalog:   cat,
		cfg:       DefaultRunnerConfig(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.activities == nil {
		r.activities = NewActivityRegistry(logger)
	}
	if r.predicates == nil {
		r.predicates = NewPredicateRegistry(logger)
	}
	if r.bus == nil {
		r.bus = NewInProcBus(logger)
	}
	if r.clock == nil {
		r.clock = SystemClock()
	}
	return r, nil
}

// Activities returns the activity registry for executor registration.
func (r *Runner) Activities() *ActivityRegistry { return r.activities }

// Predicates returns the predicate registry for condition registration.
func (r *Runner) Predicates() *PredicateRegistry { return r.predicates }

// Bus returns the event bus the runner publishes on.
func (r *Runner) Bus() EventBus { return r.bus }

// run carries the mutable state of one evaluation.
type run struct {
	snap    *graph.Snapshot
	patch   graph.Patch
	inputs  map[string]any
	outputs map[string]any
	events  []Event
	depth   int
}

// applied advances the snapshot and composes the step's patch into the
// accumulated one. Empty patches change nothing.
func (st *run) applied(next *graph.Snapshot, p graph.Patch) {
	if p.IsEmpty() {
		return
	}
	st.snap = next
	st.patch = graph.Compose(st.patch, p)
}

// Run evaluates op against snap with the given inputs. The returned
// Outcome is non-nil even on failure and carries whatever progress the
// evaluation made; the error mirrors Outcome.Error.
func (r *Runner) Run(ctx context.Context, snap *graph.Snapshot, op strategy.Op, inputs map[string]any) (*Outcome, error) {
	if op == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "Runner", "Run", "run nil strategy")
	}
	if snap == nil {
		snap = graph.NewSnapshot()
	}
	if inputs == nil {
		inputs = map[string]any{}
	}
	st := &run{
		snap:    snap,
		inputs:  inputs,
		outputs: make(map[string]any),
	}

	r.emit(ctx, st, EventWorkflowStarted, string(op.Kind()), nil)
	err := r.eval(ctx, st, op)
	if err != nil {
		r.emit(ctx, st, EventWorkflowFailed, string(op.Kind()), map[string]any{"error": err.Error()})
	} else {
		r.emit(ctx, st, EventWorkflowCompleted, string(op.Kind()), nil)
	}

	out := &Outcome{
		Success:  err == nil,
		Patch:    st.patch,
		Snapshot: st.snap,
		Outputs:  st.outputs,
		Events:   st.events,
	}
	if err != nil {
		out.Error = err.Error()
		return out, err
	}
	return out, nil
}

// eval dispatches one operator. The strategy.Op union is closed, so the
// switch is exhaustive.
func (r *Runner) eval(ctx context.Context, st *run, op strategy.Op) error {
	if op == nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "Runner", "eval", "evaluate nil op")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "Runner", string(op.Kind()), "cancelled")
	}

	var err error
	switch o := op.(type) {
	case *strategy.Once:
		err = r.evalOnce(ctx, st, o)
	case *strategy.Exhaust:
		err = r.evalExhaust(ctx, st, o)
	case *strategy.While:
		err = r.evalWhile(ctx, st, o)
	case *strategy.Seq:
		err = r.evalSeq(ctx, st, o)
	case *strategy.Choice:
		err = r.evalChoice(ctx, st, o.Ops)
	case *strategy.Priority:
		err = r.evalPriority(ctx, st, o)
	case *strategy.Parallel:
		err = r.evalParallel(ctx, st, o)
	case *strategy.Decision:
		err = r.evalDecision(ctx, st, o)
	case *strategy.Wait:
		err = r.evalWait(ctx, st, o)
	case *strategy.Saga:
		err = r.evalSaga(ctx, st, o)
	case *strategy.Activity:
		err = r.evalActivity(ctx, st, o)
	case *strategy.SubWorkflow:
		err = r.evalSubWorkflow(ctx, st, o)
	default:
		err = errors.WrapInvalid(errors.ErrInvalidData, "Runner", "eval",
			fmt.Sprintf("evaluate unknown op kind %q", op.Kind()))
	}
	r.recordStep(string(op.Kind()), err)
	return err
}

func (r *Runner) evalOnce(ctx context.Context, st *run, op *strategy.Once) error {
	rl, err := r.catalog.ResolveRule(ctx, op.Rule)
	if err != nil {
		return err
	}
	matches, err := r.matcher.FindMatches(ctx, st.snap, rl)
	if err != nil {
		return err
	}
	r.recordMatches(rl.Name, len(matches))
	if len(matches) == 0 {
		r.logger.Debug("no match", "rule", rl.Name)
		return nil
	}
	m := matches[rewrite.SelectMatch(matches, op.Order, 0)]
	next, p, err := r.scheduler.ApplyOne(ctx, st.snap, rl, m)
	if err != nil {
		r.recordApplications(rl.Name, "error", 1)
		return err
	}
	if p.IsEmpty() {
		r.recordApplications(rl.Name, "noop", 1)
		return nil
	}
	st.applied(next, p)
	r.recordApplications(rl.Name, "applied", 1)
	return nil
}

func (r *Runner) evalExhaust(ctx context.Context, st *run, op *strategy.Exhaust) error {
	rl, err := r.catalog.ResolveRule(ctx, op.Rule)
	if err != nil {
		return err
	}
	max := op.MaxIterations
	if max <= 0 {
		max = strategy.DefaultMaxIterations
	}
	return r.fixpoint(ctx, st, rl, op.Order, max, op.Measure, nil)
}

func (r *Runner) evalWhile(ctx context.Context, st *run, op *strategy.While) error {
	rl, err := r.catalog.ResolveRule(ctx, op.Rule)
	if err != nil {
		return err
	}
	max := op.MaxIterations
	if max <= 0 {
		max = strategy.DefaultMaxIterations
	}
	pred := func() bool {
		return r.predicates.Evaluate(st.snap, op.Pred, st.inputs)
	}
	return r.fixpoint(ctx, st, rl, op.Order, max, "", pred)
}

// fixpoint runs waves of batched applications until no match remains, the
// predicate turns false, no wave makes progress, or the cap is hit. The
// wave index doubles as the fair-order rotation cursor.
func (r *Runner) fixpoint(ctx context.Context, st *run, rl *rule.Rule, order strategy.Order, max int, measure string, pred func() bool) error {
	for wave := 0; wave < max; wave++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "Runner", "fixpoint", "cancelled")
		}
		if pred != nil && !pred() {
			return nil
		}
		matches, err := r.matcher.FindMatches(ctx, st.snap, rl)
		if err != nil {
			return err
		}
		r.recordMatches(rl.Name, len(matches))
		if len(matches) == 0 {
			return nil
		}
		next, p, applied, err := r.scheduler.ApplyBatch(ctx, st.snap, rl, matches, order, wave)
		if err != nil {
			r.recordApplications(rl.Name, "error", 1)
			return err
		}
		if applied == 0 {
			return nil
		}
		st.applied(next, p)
		r.recordApplications(rl.Name, "applied", applied)
		r.recordBatchSize(applied)
		if measure != "" {
			r.logger.Debug("fixpoint wave", "rule", rl.Name, "measure", measure,
				"wave", wave, "applied", applied)
		}
	}
	r.recordIterationCap()
	r.logger.Warn("fixpoint stopped by iteration cap", "rule", rl.Name, "iterations", max)
	return nil
}

func (r *Runner) evalSeq(ctx context.Context, st *run, op *strategy.Seq) error {
	for _, sub := range op.Ops {
		if err := r.eval(ctx, st, sub); err != nil {
			return err
		}
	}
	return nil
}

// evalChoice runs alternatives in order until one changes the graph. An
// applied non-empty patch always produces a fresh snapshot, so pointer
// identity detects progress.
func (r *Runner) evalChoice(ctx context.Context, st *run, ops []strategy.Op) error {
	for _, sub := range ops {
		before := st.snap
		if err := r.eval(ctx, st, sub); err != nil {
			return err
		}
		if st.snap != before {
			return nil
		}
	}
	return nil
}

func (r *Runner) evalPriority(ctx context.Context, st *run, op *strategy.Priority) error {
	entries := make([]strategy.PriorityEntry, len(op.Entries))
	copy(entries, op.Entries)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Priority < entries[j].Priority })
	ops := make([]strategy.Op, len(entries))
	for i, e := range entries {
		ops[i] = e.Op
	}
	return r.evalChoice(ctx, st, ops)
}

func (r *Runner) evalDecision(ctx context.Context, st *run, op *strategy.Decision) error {
	for _, c := range op.Conditions {
		if r.predicates.Evaluate(st.snap, c.Condition, st.inputs) {
			r.emit(ctx, st, EventDecisionTaken, c.Condition, map[string]any{"outcome": "condition"})
			return r.eval(ctx, st, c.Branch)
		}
	}
	if op.Default != nil {
		r.emit(ctx, st, EventDecisionTaken, "", map[string]any{"outcome": "default"})
		return r.eval(ctx, st, op.Default)
	}
	r.emit(ctx, st, EventDecisionTaken, "", map[string]any{"outcome": "noop"})
	return nil
}

func (r *Runner) evalWait(ctx context.Context, st *run, op *strategy.Wait) error {
	cond := op.Condition
	switch cond.Type {
	case strategy.WaitTimer:
		r.emit(ctx, st, EventTimerStarted, "", map[string]any{"duration": cond.Duration.String()})
		select {
		case <-r.clock.After(cond.Duration.Std()):
			r.emit(ctx, st, EventTimerFired, "", nil)
			return nil
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "Runner", "Wait", "timer interrupted")
		}
	case strategy.WaitEvent:
		return r.await(ctx, st, TopicEvent, cond.EventType, cond.Filter, op.Timeout)
	case strategy.WaitSignal:
		return r.await(ctx, st, TopicSignal, cond.SignalName, cond.Filter, op.Timeout)
	}
	return errors.WrapInvalid(errors.ErrInvalidData, "Runner", "Wait",
		fmt.Sprintf("wait on unknown condition type %q", cond.Type))
}

// await blocks on a bus delivery. A timeout with no delivery resumes the
// run instead of failing it; the received payload lands in the outputs
// under the event type or signal name.
func (r *Runner) await(ctx context.Context, st *run, topic Topic, name string, filter map[string]any, timeout strategy.Duration) error {
	ch, cancel, err := r.bus.Subscribe(topic, name, filter)
	if err != nil {
		return errors.Wrap(err, "Runner", "Wait", "subscribe to bus")
	}
	defer cancel()

	var timer <-chan time.Time
	if timeout > 0 {
		r.emit(ctx, st, EventTimerStarted, name, map[string]any{"timeout": timeout.String()})
		timer = r.clock.After(timeout.Std())
	}

	select {
	case msg := <-ch:
		r.emit(ctx, st, EventSignalReceived, name, msg.Attrs)
		if msg.Attrs != nil {
			st.outputs[name] = msg.Attrs
		}
		return nil
	case <-timer:
		r.logger.Info("wait timed out, proceeding",
			"topic", topic, "name", name, "timeout", timeout.String())
		r.emit(ctx, st, EventTimerFired, name, map[string]any{"timed_out": true})
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "Runner", "Wait", "wait interrupted")
	}
}

func (r *Runner) evalSaga(ctx context.Context, st *run, op *strategy.Saga) error {
	err := r.eval(ctx, st, op.Main)
	if err == nil {
		return nil
	}
	if op.Compensation == nil {
		return err
	}
	r.emit(ctx, st, EventSagaCompensating, "", map[string]any{"error": err.Error()})
	// Compensation observes the partial effects of main.
	if cerr := r.eval(ctx, st, op.Compensation); cerr != nil {
		return &CompensationError{Original: err, CompErr: cerr}
	}
	return err
}

func (r *Runner) evalActivity(ctx context.Context, st *run, op *strategy.Activity) error {
	name := op.Ref
	r.emit(ctx, st, EventActivityScheduled, name, nil)

	exec, err := r.activities.Resolve(name)
	if err != nil {
		r.recordActivity(name, "not_found")
		r.emit(ctx, st, EventActivityFailed, name, map[string]any{"error": err.Error(), "terminal": true})
		return err
	}
	inputs, err := resolveMapping(op.InputMapping, st)
	if err != nil {
		aerr := &ActivityError{Kind: ActivityInvalidInput, Activity: name, Err: err}
		r.recordActivity(name, "invalid_input")
		r.emit(ctx, st, EventActivityFailed, name, map[string]any{"error": aerr.Error(), "terminal": true})
		return aerr
	}

	var policy strategy.RetryPolicy
	if op.RetryPolicy != nil {
		policy = *op.RetryPolicy
	}
	policy = policy.Normalized()

	attempt := 0
	cfg := retry.Config{
		MaxAttempts:  policy.MaximumAttempts,
		InitialDelay: policy.InitialInterval.Std(),
		MaxDelay:     policy.MaximumInterval.Std(),
		Multiplier:   policy.BackoffCoefficient,
		AddJitter:    true,
		OnRetry: func(n int, attemptErr error, delay time.Duration) {
			r.recordActivity(name, "retry")
			r.emit(ctx, st, EventActivityFailed, name, map[string]any{
				"attempt": n, "error": attemptErr.Error(), "retry_in": delay.String(),
			})
		},
	}

	out, rerr := retry.DoWithResult(ctx, cfg, func() (map[string]any, error) {
		attempt++
		r.emit(ctx, st, EventActivityStarted, name, map[string]any{"attempt": attempt})
		actx := ctx
		if op.Timeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, op.Timeout.Std())
			defer cancel()
		}
		res, execErr := exec.Execute(actx, inputs)
		if execErr == nil {
			return res, nil
		}
		if nonRetryableName(execErr, policy.NonRetryableErrors) {
			return nil, retry.NonRetryable(execErr)
		}
		return nil, execErr
	})
	if rerr != nil {
		kind := ActivityExecutionFailed
		if stderrors.Is(rerr, context.DeadlineExceeded) {
			kind = ActivityTimeout
		}
		var nre *retry.NonRetryableError
		if stderrors.As(rerr, &nre) {
			rerr = nre.Err
		}
		aerr := &ActivityError{Kind: kind, Activity: name, Err: rerr}
		r.recordActivity(name, "failed")
		r.emit(ctx, st, EventActivityFailed, name, map[string]any{"error": aerr.Error(), "terminal": true})
		return aerr
	}

	maps.Copy(st.outputs, out)
	r.recordActivity(name, "completed")
	r.emit(ctx, st, EventActivityCompleted, name, nil)
	return nil
}

func (r *Runner) evalSubWorkflow(ctx context.Context, st *run, op *strategy.SubWorkflow) error {
	if st.depth >= r.cfg.MaxDepth {
		return errors.WrapInvalid(errors.ErrInvalidData, "Runner", "SubWorkflow",
			fmt.Sprintf("evaluate %q at nesting depth %d", op.Ref, st.depth))
	}
	sub, err := r.catalog.ResolveStrategy(ctx, op.Ref)
	if err != nil {
		return err
	}
	subInputs := st.inputs
	if len(op.InputMapping) > 0 {
		subInputs, err = resolveMapping(op.InputMapping, st)
		if err != nil {
			return errors.WrapInvalid(err, "Runner", "SubWorkflow",
				fmt.Sprintf("map inputs for %q", op.Ref))
		}
	}

	saved := st.inputs
	st.inputs = subInputs
	st.depth++
	err = r.eval(ctx, st, sub)
	st.inputs = saved
	st.depth--
	return err
}

type parallelResult struct {
	idx  int
	fork *run
	err  error
}

// evalParallel runs branches concurrently against the same starting
// snapshot, each in a forked run. Once the completion condition is met the
// remaining branches are cancelled and the completed branches' patches are
// merged and applied in one step, with their events and outputs adopted in
// branch order. A merge conflict falls back to re-evaluating the branches
// sequentially, which is deterministic.
func (r *Runner) evalParallel(ctx context.Context, st *run, op *strategy.Parallel) error {
	n := len(op.Branches)
	if n == 0 {
		return nil
	}
	need := n
	switch op.Completion.Mode {
	case strategy.CompletionAny:
		need = 1
	case strategy.CompletionAtLeast:
		need = op.Completion.AtLeast
		if need < 1 {
			need = 1
		}
		if need > n {
			need = n
		}
	}

	bctx, cancel := context.WithCancel(ctx)
	defer cancel()
	results := make(chan parallelResult, n)
	sem := make(chan struct{}, r.cfg.MaxParallel)
	for i, branch := range op.Branches {
		fork := &run{snap: st.snap, inputs: st.inputs, outputs: make(map[string]any), depth: st.depth}
		go func(idx int, b strategy.Op, f *run) {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-bctx.Done():
				results <- parallelResult{idx: idx, err: bctx.Err()}
				return
			}
			err := r.eval(bctx, f, b)
			results <- parallelResult{idx: idx, fork: f, err: err}
		}(i, branch, fork)
	}

	var done []parallelResult
	failed := 0
	var firstErr error
	for len(done) < need {
		res := <-results
		if res.err != nil {
			failed++
			if firstErr == nil {
				firstErr = res.err
			}
			r.logger.Warn("parallel branch failed", "branch", res.idx, "error", res.err)
			if n-failed < need {
				cancel()
				return firstErr
			}
			continue
		}
		done = append(done, res)
	}
	cancel()
	sort.Slice(done, func(i, j int) bool { return done[i].idx < done[j].idx })

	if need == 1 {
		w := done[0].fork
		st.events = append(st.events, w.events...)
		maps.Copy(st.outputs, w.outputs)
		st.applied(w.snap, w.patch)
		return nil
	}

	deltas := make([]graph.Patch, 0, len(done))
	for _, res := range done {
		if !res.fork.patch.IsEmpty() {
			deltas = append(deltas, res.fork.patch)
		}
	}
	if len(deltas) > 0 {
		merged, err := graph.MergeAll(deltas...)
		if err != nil {
			var conflict *graph.ConflictError
			if !stderrors.As(err, &conflict) {
				return errors.Wrap(err, "Runner", "Parallel", "merge branch patches")
			}
			r.logger.Warn("parallel branches conflict, re-running sequentially",
				"branches", n, "error", conflict)
			return r.parallelFallback(ctx, st, op.Branches, need)
		}
		next, err := st.snap.Apply(merged)
		if err != nil {
			return errors.Wrap(err, "Runner", "Parallel", "apply merged branch patches")
		}
		st.applied(next, merged)
	}
	for _, res := range done {
		st.events = append(st.events, res.fork.events...)
		maps.Copy(st.outputs, res.fork.outputs)
	}
	return nil
}

// parallelFallback re-evaluates branches in declaration order directly on
// the run until enough succeed. The concurrent attempt's graph effects were
// never adopted, so the sequential pass starts from the pre-parallel state.
func (r *Runner) parallelFallback(ctx context.Context, st *run, branches []strategy.Op, need int) error {
	successes := 0
	var firstErr error
	for i, b := range branches {
		if successes >= need {
			break
		}
		if err := r.eval(ctx, st, b); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			r.logger.Warn("parallel fallback branch failed", "branch", i, "error", err)
			if successes+len(branches)-i-1 < need {
				return firstErr
			}
			continue
		}
		successes++
	}
	return nil
}

// emit appends an event to the history and publishes it on the bus.
func (r *Runner) emit(ctx context.Context, st *run, kind EventKind, subject string, attrs map[string]any) {
	ev := Event{Kind: kind, Subject: subject, Attrs: attrs, Time: timestamp.Now()}
	st.events = append(st.events, ev)
	if r.metrics != nil {
		r.metrics.RecordEventPublished(string(kind))
	}

	msgAttrs := attrs
	if subject != "" {
		msgAttrs = make(map[string]any, len(attrs)+1)
		maps.Copy(msgAttrs, attrs)
		msgAttrs["subject"] = subject
	}
	if err := r.bus.Publish(ctx, Message{Topic: TopicEvent, Type: string(kind), Attrs: msgAttrs, Time: ev.Time}); err != nil {
		r.logger.Warn("publish workflow event", "kind", kind, "error", err)
	}
}

const (
	inputsPrefix  = "$.inputs."
	outputsPrefix = "$.outputs."
)

// resolveMapping materializes an activity or subworkflow input map. Values
// of the form "$.inputs.X" and "$.outputs.X" read the run state; everything
// else passes through as a literal.
func resolveMapping(mapping map[string]string, st *run) (map[string]any, error) {
	out := make(map[string]any, len(mapping))
	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := mapping[k]
		switch {
		case strings.HasPrefix(v, inputsPrefix):
			name := strings.TrimPrefix(v, inputsPrefix)
			val, ok := st.inputs[name]
			if !ok {
				return nil, fmt.Errorf("input %q is not bound", name)
			}
			out[k] = val
		case strings.HasPrefix(v, outputsPrefix):
			name := strings.TrimPrefix(v, outputsPrefix)
			val, ok := st.outputs[name]
			if !ok {
				return nil, fmt.Errorf("output %q is not bound", name)
			}
			out[k] = val
		case strings.HasPrefix(v, "$."):
			return nil, fmt.Errorf("unsupported reference %q", v)
		default:
			out[k] = v
		}
	}
	return out, nil
}

// nonRetryableName reports whether the error message mentions one of the
// policy's non-retryable error names.
func nonRetryableName(err error, names []string) bool {
	if err == nil || len(names) == 0 {
		return false
	}
	msg := err.Error()
	for _, n := range names {
		if n != "" && strings.Contains(msg, n) {
			return true
		}
	}
	return false
}

func (r *Runner) recordStep(op string, err error) {
	if r.observer != nil {
		r.observer.ObserveStep(op, err)
	}
	if r.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.metrics.RecordStrategyStep(op, status)
}

func (r *Runner) recordMatches(rule string, n int) {
	if r.observer != nil {
		r.observer.ObserveMatches(rule, n)
	}
	if r.metrics != nil {
		r.metrics.RecordMatches(rule, n)
	}
}

func (r *Runner) recordApplications(rule, status string, n int) {
	if r.observer != nil {
		r.observer.ObserveApplications(rule, status, n)
	}
	if r.metrics != nil {
		r.metrics.RecordApplications(rule, status, n)
	}
}

func (r *Runner) recordBatchSize(n int) {
	if r.metrics != nil {
		r.metrics.RecordBatchSize(n)
	}
}

func (r *Runner) recordIterationCap() {
	if r.metrics != nil {
		r.metrics.RecordIterationCap()
	}
}

func (r *Runner) recordActivity(name, status string) {
	if r.metrics != nil {
		r.metrics.RecordActivityExecution(name, status)
	}
}
