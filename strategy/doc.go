// Package strategy defines the control-flow language that drives rule
// application: a closed union of operators covering single and repeated
// application (Once, Exhaust, While), composition (Seq, Choice, Priority,
// Parallel, Decision), and workflow primitives (Wait, Saga, Activity,
// SubWorkflow).
//
// Strategies are immutable trees of plain data. They are parsed from a JSON
// wire form with Parse, marshal back to the same form, and are interpreted
// by the workflow package. The union is sealed: the interpreter switches
// exhaustively over the twelve operators and no operator can be added
// outside this package.
package strategy
