// Package testutil provides shared fixture builders for tests.
//
// The helpers here are purely structural: vertex and edge constructors,
// snapshot seeding, and pattern-element builders with no domain meaning
// attached. Semantic fixtures (a social graph, a "delete person" rule)
// belong in the test package that uses them, not here — keeping testutil
// generic means any package can depend on it without inheriting another
// package's test vocabulary.
//
// Packages whose internal tests testutil itself depends on (graph, rule)
// keep local copies of these helpers to avoid import cycles.
package testutil
