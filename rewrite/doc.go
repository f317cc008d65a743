// Package rewrite implements double-pushout graph rewriting: finding
// matches of a rule's left-hand side in a snapshot, turning a match into a
// concrete patch, and scheduling batches of independent matches so a
// fixpoint loop can apply many matches per wave without re-matching.
//
// The package is organised around four collaborators:
//
//   - Matcher finds every constrained embedding of a rule's LHS pattern in
//     a graph view using backtracking search over a per-rule plan, then
//     filters candidates through negative application conditions and guard
//     predicates.
//   - Builder turns one match into a graph.Patch: deletions for LHS
//     variables missing from the preserved context, additions with fresh
//     ids for RHS variables missing from the context, and property updates
//     for preserved variables whose RHS literals differ.
//   - Analyzer decides which matches can be applied in the same wave. The
//     test is conservative: matches are independent only when neither
//     writes anything the other reads and neither writes inside the
//     other's NAC or guard neighbourhood.
//   - Scheduler applies one wave: it picks one match per independence
//     component, builds their patches concurrently on a worker pool,
//     merges and applies them in a single commit, and falls back to a
//     single sequential application if the merge ever conflicts.
//
// All four are safe for concurrent use once constructed. Matches and
// patches are ephemeral values; rules and plans are immutable and cached.
package rewrite
