// Package engine assembles the full rewrite stack behind one facade.
//
// # Overview
//
// Engine wires the collaborators the lower packages leave to the caller:
// the guard, activity and predicate registries, the matcher and scheduler
// over a shared configuration, the definition catalog over a pluggable
// store, the event bus, and the strategy runner on top of them all. One
// Engine value replaces a page of constructor plumbing:
//
//	cfg := config.Default()
//	eng, err := engine.New(cfg, logger)
//	if err != nil { ... }
//	if err := eng.Start(ctx); err != nil { ... }
//	defer eng.Stop(context.Background())
//
//	ref, err := eng.RegisterRule(ctx, deleteEdges)
//	outcome, err := eng.Run(ctx, snap, &strategy.Exhaust{Rule: "delete_edges"}, nil)
//
// # Backing services
//
// With NATS disabled the engine is fully in-process: an in-memory catalog
// store and the InProcBus. Enabling NATS in the configuration swaps in the
// natsbus client, so the catalog lives in JetStream KV buckets and events
// and signals travel over NATS subjects shared with other processes.
// Construction never dials; Start connects the client and launches the
// scheduler's build workers, Stop drains and closes them. Run works before
// Start too, falling back to inline patch builds, which keeps unit tests
// free of lifecycle ceremony.
//
// # Validation
//
// RegisterStrategy pre-flights the tree with the Validator: structural
// problems (bad wait conditions, impossible completion thresholds, nesting
// beyond the runner's depth limit) reject the strategy with a
// ValidationError, while references to rules, activities or predicates
// that are not registered yet only produce warnings, since definitions may
// arrive in any order.
//
// # Observability
//
// With a metric registry attached the engine registers its own run and
// registration collectors next to the matcher, scheduler and runner
// metrics. Independent of prometheus, a statsTracker rides the runner's
// observer hook and aggregates per-rule match and application counts;
// Stats returns a point-in-time copy.
package engine
