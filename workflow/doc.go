// Package workflow interprets strategy trees over graph snapshots. The
// Runner walks the closed operator union from the strategy package and
// drives the rewrite collaborators for the rule-applying operators, while
// the workflow operators add control flow around them: sequencing, guarded
// choice, bounded parallelism, event- and timer-driven waits, sagas with
// compensation, and side-effecting activities with retry policies.
//
// Every evaluation produces an Outcome carrying the accumulated patch, the
// final snapshot, activity outputs and an execution history of Events; the
// same events are published on the EventBus so external observers follow a
// run live. InProcBus is the embedded bus used in tests and single-process
// deployments; the natsbus package adapts the same interface to NATS.
package workflow
