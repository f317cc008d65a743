// Package kotoba is a graph transformation engine built on double-pushout
// rewriting and composable execution strategies.
//
// # Model
//
// The unit of change is a rewrite rule: three patterns L ⊇ K ⊆ R where L is
// what to find, K is what survives, and R is what exists afterwards. Matching
// an L against a host graph yields a morphism; applying the rule deletes
// L\K, preserves K, and creates R\K. Negative application conditions veto
// matches whose surroundings extend into a forbidden shape, and guards veto
// matches whose bound properties fail a predicate.
//
// Strategies decide which rules fire, in what order, and when to stop.
// They form a small algebra (once, exhaust, seq, choice, priority,
// parallel, ...) that composes into workflows with activities, timers,
// sagas and sub-workflows.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│              Engine                 │  Facade: register, run,
//	│     (run, validate, lifecycle)      │  validate, stats
//	└─────────────────────────────────────┘
//	           ↓ interprets via
//	┌─────────────────────────────────────┐
//	│        Workflow Runner              │  Strategy operators,
//	│ (strategy ops, events, activities)  │  run history, sagas
//	└─────────────────────────────────────┘
//	           ↓ rewrites via
//	┌─────────────────────────────────────┐
//	│        Rewrite Machinery            │  Backtracking matcher,
//	│  (match, analyze, build, schedule)  │  patch builder, batches
//	└─────────────────────────────────────┘
//	           ↓ mutates
//	┌─────────────────────────────────────┐
//	│       Graph Snapshots               │  Immutable property
//	│    (vertices, edges, patches)       │  graphs, patch apply
//	└─────────────────────────────────────┘
//
// Around the core, the catalog stores rules and strategies under
// content-addressed refs, and the NATS bus distributes run events and
// persists catalog entries across processes.
//
// # Packages
//
// Core:
//   - graph: immutable property-graph snapshots and patches
//   - rule: rule model, patterns, guards, wire codec
//   - rewrite: matcher, overlap analyzer, patch builder, batch scheduler
//   - strategy: strategy operator tree and wire codec
//   - workflow: strategy interpreter, run events, activities, timers
//
// Surface:
//   - engine: embeddable facade tying the layers together
//   - catalog: content-addressed rule and strategy storage
//   - cmd/kotoba: CLI (run, validate, hash, version)
//
// Infrastructure:
//   - natsbus: NATS-backed event bus and KV-backed catalog store
//   - config: configuration loading and validation
//   - errors: structured error handling
//   - metric: Prometheus metrics
//   - pkg/timestamp: epoch-millisecond instants for run histories
//
// # Usage
//
// Embed the engine:
//
//	eng, _ := engine.New(config.Default(), logger)
//	eng.Start(ctx)
//	defer eng.Stop(ctx)
//
//	eng.RegisterRule(ctx, deleteOrphan)
//	out, _ := eng.Run(ctx, snap, &strategy.Exhaust{Rule: "delete_orphan"}, nil)
//	fmt.Println(out.Success, out.Snapshot.VertexCount())
//
// Or drive it from the command line:
//
//	kotoba run --graph host.json --rule delete_orphan.json \
//	    --strategy cleanup.json --out result.json
//
// # Design Principles
//
// Immutability:
//   - Snapshots never change; every application yields a new one
//   - Patches are explicit, inspectable, and the only mutation path
//
// Determinism:
//   - Matches are enumerated in canonical order
//   - Batch scheduling admits only provably independent applications
//
// Testability:
//   - Explicit dependencies (no globals)
//   - The bus and store are interfaces; in-memory versions ship with core
//   - Integration tests with testcontainers against real NATS
package kotoba
