package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/com-junkawasaki/kotoba-sub011/catalog"
	"github.com/com-junkawasaki/kotoba-sub011/config"
	"github.com/com-junkawasaki/kotoba-sub011/errors"
	"github.com/com-junkawasaki/kotoba-sub011/graph"
	"github.com/com-junkawasaki/kotoba-sub011/metric"
	"github.com/com-junkawasaki/kotoba-sub011/natsbus"
	"github.com/com-junkawasaki/kotoba-sub011/pkg/retry"
	"github.com/com-junkawasaki/kotoba-sub011/rewrite"
	"github.com/com-junkawasaki/kotoba-sub011/rule"
	"github.com/com-junkawasaki/kotoba-sub011/strategy"
	"github.com/com-junkawasaki/kotoba-sub011/workflow"
)

// drainTimeout bounds the build worker shutdown when the Stop context
// carries no deadline.
const drainTimeout = 5 * time.Second

// Engine owns one assembled rewrite stack: registries, matcher, scheduler,
// catalog, bus and runner, built from a single configuration. Construction
// wires everything without touching the network; Start and Stop manage the
// external resources.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	client  *natsbus.Client
	natsBus *natsbus.Bus
	bus     workflow.EventBus

	catalog    *catalog.Catalog
	guards     *rule.GuardRegistry
	activities *workflow.ActivityRegistry
	predicates *workflow.PredicateRegistry

	matcher   *rewrite.Matcher
	scheduler *rewrite.Scheduler
	runner    *workflow.Runner
	validator *Validator

	metrics *engineMetrics
	stats   *statsTracker

	mu      sync.Mutex
	started bool
}

// Option adjusts engine construction.
type Option func(*settings)

type settings struct {
	registry *metric.MetricsRegistry
	bus      workflow.EventBus
	store    catalog.Store
	clock    workflow.Clock
}

// WithMetricsRegistry attaches prometheus collectors for the engine and
// every collaborator that exports them.
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(s *settings) { s.registry = registry }
}

// WithEventBus replaces the bus the configuration would choose.
func WithEventBus(bus workflow.EventBus) Option {
	return func(s *settings) { s.bus = bus }
}

// WithCatalogStore replaces the catalog store the configuration would
// choose.
func WithCatalogStore(store catalog.Store) Option {
	return func(s *settings) { s.store = store }
}

// WithClock replaces the system clock, for deterministic waits in tests.
func WithClock(clock workflow.Clock) Option {
	return func(s *settings) { s.clock = clock }
}

// New assembles an engine from the configuration. A nil cfg takes the
// defaults, a nil logger falls back to slog.Default(). The configuration is
// cloned, so later caller mutation cannot reach the running engine. No
// connection is opened here; with NATS enabled the client dials on Start.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Engine", "New", "validate configuration")
	}
	cfg = cfg.Clone()

	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	em, err := newEngineMetrics(s.registry)
	if err != nil {
		logger.Error("failed to initialize engine metrics", "error", err)
		em = nil
	}

	e := &Engine{
		cfg:        cfg,
		logger:     logger,
		metrics:    em,
		stats:      newStatsTracker(),
		guards:     rule.NewGuardRegistry(logger),
		activities: workflow.NewActivityRegistry(logger),
		predicates: workflow.NewPredicateRegistry(logger),
	}

	var matcherOpts []rewrite.MatcherOption
	var schedOpts []rewrite.SchedulerOption
	if s.registry != nil {
		matcherOpts = append(matcherOpts, rewrite.WithMatcherMetrics(s.registry))
		schedOpts = append(schedOpts, rewrite.WithSchedulerMetrics(s.registry))
	}
	matcher, err := rewrite.NewMatcher(e.guards, cfg.Matcher, logger, matcherOpts...)
	if err != nil {
		return nil, err
	}
	e.matcher = matcher
	e.scheduler = rewrite.NewScheduler(
		rewrite.NewBuilder(logger), rewrite.NewAnalyzer(logger), cfg.Scheduler, logger, schedOpts...)

	store := s.store
	e.bus = s.bus
	if cfg.NATS.Enabled && (e.bus == nil || store == nil) {
		if err := e.buildNATS(s, &store); err != nil {
			return nil, err
		}
	}
	if e.bus == nil {
		e.bus = workflow.NewInProcBus(logger)
	}
	e.catalog = catalog.New(store, logger)

	runnerOpts := []workflow.RunnerOption{
		workflow.WithActivities(e.activities),
		workflow.WithPredicates(e.predicates),
		workflow.WithBus(e.bus),
		workflow.WithRunnerConfig(cfg.Runner),
		workflow.WithRuleObserver(e.stats),
	}
	if s.clock != nil {
		runnerOpts = append(runnerOpts, workflow.WithClock(s.clock))
	}
	if s.registry != nil {
		runnerOpts = append(runnerOpts, workflow.WithRunnerMetrics(s.registry.CoreMetrics()))
	}
	runner, err := workflow.NewRunner(matcher, e.scheduler, e.catalog, logger, runnerOpts...)
	if err != nil {
		return nil, err
	}
	e.runner = runner
	e.validator = NewValidator(e.catalog, e.guards, e.activities, e.predicates, cfg.Runner.MaxDepth, logger)

	logger.Debug("engine assembled",
		"nats", cfg.NATS.Enabled,
		"workers", cfg.Scheduler.Workers,
		"max_depth", cfg.Runner.MaxDepth)
	return e, nil
}

// buildNATS constructs the unconnected NATS client and the bus and catalog
// store riding on it, honoring injected replacements.
func (e *Engine) buildNATS(s settings, store *catalog.Store) error {
	nc := e.cfg.NATS
	clientOpts := []natsbus.ClientOption{
		natsbus.WithLogger(e.logger),
		natsbus.WithName("kotoba-engine"),
		natsbus.WithMaxReconnects(nc.MaxReconnects),
	}
	if nc.ReconnectWait > 0 {
		clientOpts = append(clientOpts, natsbus.WithReconnectWait(nc.ReconnectWait))
	}
	if nc.Timeout > 0 {
		clientOpts = append(clientOpts, natsbus.WithTimeout(nc.Timeout))
	}
	if nc.Username != "" {
		clientOpts = append(clientOpts, natsbus.WithCredentials(nc.Username, nc.Password))
	}
	if nc.Token != "" {
		clientOpts = append(clientOpts, natsbus.WithToken(nc.Token))
	}
	if nc.TLS.Enabled {
		clientOpts = append(clientOpts, natsbus.WithTLS(nc.TLS.CertFile, nc.TLS.KeyFile, nc.TLS.CAFile))
	}
	if s.registry != nil {
		clientOpts = append(clientOpts, natsbus.WithMetrics(s.registry))
	}
	client, err := natsbus.NewClient(nc.URL, clientOpts...)
	if err != nil {
		return errors.WrapInvalid(err, "Engine", "New", "build NATS client")
	}
	e.client = client

	if e.bus == nil {
		var busOpts []natsbus.BusOption
		if nc.SubjectPrefix != "" {
			busOpts = append(busOpts, natsbus.WithSubjectPrefix(nc.SubjectPrefix))
		}
		bus, err := natsbus.NewBus(client, e.logger, busOpts...)
		if err != nil {
			return err
		}
		e.natsBus = bus
		e.bus = bus
	}
	if *store == nil {
		kv, err := natsbus.NewKVCatalogStore(client, e.logger)
		if err != nil {
			return err
		}
		*store = kv
	}
	return nil
}

// Start connects the NATS client when one is configured, retrying
// transient connect failures under the default retry policy, and launches
// the scheduler's build workers. The context should outlive the engine:
// the workers stop when it is cancelled. Start is idempotent.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}

	if e.client != nil {
		rc := errors.DefaultRetryConfig().ToRetryConfig()
		rc.OnRetry = func(attempt int, err error, delay time.Duration) {
			e.logger.Warn("NATS connect failed, backing off",
				"attempt", attempt, "delay", delay, "error", err)
		}
		connect := func() error {
			err := e.client.Connect(ctx)
			if err != nil && !errors.IsTransient(err) {
				return retry.NonRetryable(err)
			}
			return err
		}
		if err := retry.Do(ctx, rc, connect); err != nil {
			return errors.Wrap(err, "Engine", "Start", "connect to NATS")
		}
	}
	if err := e.scheduler.Start(ctx); err != nil {
		return errors.Wrap(err, "Engine", "Start", "start build workers")
	}

	e.started = true
	e.metrics.recordUp(true)
	e.logger.Info("engine started", "nats", e.client != nil)
	return nil
}

// Stop drains the build workers and closes the NATS resources the engine
// owns. The context deadline bounds the worker drain. Stop is idempotent.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return nil
	}
	e.started = false
	e.metrics.recordUp(false)

	timeout := drainTimeout
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 && d < timeout {
			timeout = d
		}
	}

	var firstErr error
	if err := e.scheduler.Stop(timeout); err != nil {
		firstErr = err
	}
	if e.natsBus != nil {
		if err := e.natsBus.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.client != nil {
		if err := e.client.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return errors.WrapTransient(firstErr, "Engine", "Stop", "shut down engine")
	}
	e.logger.Info("engine stopped")
	return nil
}

// Run evaluates a strategy tree over the snapshot. A nil snapshot runs over
// an empty graph. The outcome is non-nil whenever evaluation ran at all,
// failed included; the returned error then mirrors Outcome.Error.
func (e *Engine) Run(ctx context.Context, snap *graph.Snapshot, op strategy.Op, inputs map[string]any) (*workflow.Outcome, error) {
	if op == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "Engine", "Run", "run nil strategy")
	}

	start := time.Now()
	success := false
	kind := string(op.Kind())
	defer func() {
		d := time.Since(start)
		e.metrics.recordRun(kind, success, d.Seconds())
		e.stats.observeRun(d, success)
	}()

	outcome, err := e.runner.Run(ctx, snap, op, inputs)
	success = err == nil
	return outcome, err
}

// RunStrategy resolves a registered strategy by ref or name and runs it.
func (e *Engine) RunStrategy(ctx context.Context, snap *graph.Snapshot, refOrName string, inputs map[string]any) (*workflow.Outcome, error) {
	op, err := e.catalog.ResolveStrategy(ctx, refOrName)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, snap, op, inputs)
}

// RegisterRule validates and registers a rewrite rule, returning its
// content-addressed ref.
func (e *Engine) RegisterRule(ctx context.Context, r *rule.Rule) (catalog.Ref, error) {
	ref, err := e.catalog.PutRule(ctx, r)
	e.metrics.recordRegistration("rule", err == nil)
	return ref, err
}

// RegisterStrategy validates a strategy against the engine's registries and
// registers it under the optional name. Structural problems reject the
// strategy with a ValidationError; unresolved references only log, since
// their targets may be registered later.
func (e *Engine) RegisterStrategy(ctx context.Context, name string, op strategy.Op) (catalog.Ref, error) {
	result, err := e.validator.ValidateStrategy(ctx, op)
	if err != nil {
		e.metrics.recordRegistration("strategy", false)
		return "", err
	}
	if len(result.Errors) > 0 {
		e.metrics.recordRegistration("strategy", false)
		return "", errors.WrapInvalid(&ValidationError{Result: result}, "Engine", "RegisterStrategy",
			fmt.Sprintf("validate strategy %q", name))
	}
	for _, w := range result.Warnings {
		e.logger.Warn("strategy validation warning",
			"strategy", name, "type", w.Type, "path", w.Path, "message", w.Message)
	}

	ref, err := e.catalog.PutStrategy(ctx, name, op)
	e.metrics.recordRegistration("strategy", err == nil)
	return ref, err
}

// ValidateStrategy checks a strategy tree against the current registries
// without registering it.
func (e *Engine) ValidateStrategy(ctx context.Context, op strategy.Op) (*ValidationResult, error) {
	return e.validator.ValidateStrategy(ctx, op)
}

// Stats returns a point-in-time snapshot of engine activity.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	return e.stats.snapshot(started)
}

// Catalog exposes the definition catalog for direct registration and
// lookup.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// Guards exposes the guard registry so callers can add domain guards.
func (e *Engine) Guards() *rule.GuardRegistry { return e.guards }

// Activities exposes the activity registry.
func (e *Engine) Activities() *workflow.ActivityRegistry { return e.activities }

// Predicates exposes the predicate registry.
func (e *Engine) Predicates() *workflow.PredicateRegistry { return e.predicates }

// Bus exposes the event bus the runner publishes on.
func (e *Engine) Bus() workflow.EventBus { return e.bus }

// Config returns the engine's own configuration copy.
func (e *Engine) Config() *config.Config { return e.cfg }

// ValidationError carries the validation result of a rejected strategy.
type ValidationError struct {
	Result *ValidationResult
}

func (e *ValidationError) Error() string {
	if e.Result == nil {
		return "strategy validation failed"
	}
	return fmt.Sprintf("strategy validation failed: %d errors, %d warnings",
		len(e.Result.Errors), len(e.Result.Warnings))
}
