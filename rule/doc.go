// Package rule defines declarative rewrite rules: what sub-graph to find,
// what part of it to keep, and what to replace the rest with.
//
// A Rule carries three patterns over shared variables. LHS is the shape to
// find, Context is the preserved interface, and RHS is the replacement.
// Variables in Context must occur in both LHS and RHS; the matcher deletes
// what is in LHS but not Context, creates what is in RHS but not Context,
// and updates properties on Context vertices whose RHS literals differ.
//
// Negative application conditions (NACs) extend the LHS with shapes that
// must NOT be present around a match, and guards attach named predicates
// evaluated against the bound vertices through a GuardRegistry.
//
// Rules are plain data. Parse them from JSON with ParseRule, validate them
// with Validate, and hand them to the rewrite engine; nothing in this
// package touches a live graph except guard evaluation, which reads through
// graph.View.
package rule
