package rule

import (
	"encoding/json"
	"fmt"

	"github.com/com-junkawasaki/kotoba-sub011/errors"
)

// Rule is a declarative rewrite: find LHS, keep Context, produce RHS.
// Types is an optional list of graph type names the rule applies to; an
// empty list means any graph.
type Rule struct {
	Name    string       `json:"name"`
	Types   []string     `json:"types,omitempty"`
	LHS     GraphPattern `json:"lhs"`
	Context GraphPattern `json:"context"`
	RHS     GraphPattern `json:"rhs"`
	NACs    []NAC        `json:"nacs,omitempty"`
	Guards  []Guard      `json:"guards,omitempty"`
}

// ValidationError reports a structurally invalid rule. It is returned from
// Validate and carries the invalid error class.
type ValidationError struct {
	Rule   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("rule %q invalid: %s", e.Rule, e.Reason)
}

// Unwrap classifies validation failures as invalid input.
func (e *ValidationError) Unwrap() error { return errors.ErrInvalidData }

func (r *Rule) invalid(format string, args ...any) error {
	return &ValidationError{Rule: r.Name, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the rule's structural invariants. It must pass before a
// rule is registered; the matcher and patch builder assume a valid rule.
//
// The preserved interface obeys the gluing condition: every Context node
// variable is declared in both LHS and RHS, and every Context edge appears
// in both LHS and RHS with its endpoints in Context. A node variable shared
// by LHS and RHS must be declared in Context, otherwise deletion and
// creation of the same variable would be ambiguous.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return &ValidationError{Rule: "", Reason: "empty rule name"}
	}
	if err := r.LHS.validate(nil); err != nil {
		return r.invalid("lhs: %v", err)
	}
	if err := r.Context.validate(nil); err != nil {
		return r.invalid("context: %v", err)
	}
	if err := r.RHS.validate(nil); err != nil {
		return r.invalid("rhs: %v", err)
	}
	for i, nac := range r.NACs {
		if err := nac.validate(&r.LHS); err != nil {
			return r.invalid("nac %d: %v", i, err)
		}
	}

	for _, n := range r.Context.Nodes {
		if !r.LHS.HasNodeVar(n.Var) {
			return r.invalid("context node %q missing from lhs", n.Var)
		}
		if !r.RHS.HasNodeVar(n.Var) {
			return r.invalid("context node %q missing from rhs", n.Var)
		}
	}
	for _, e := range r.Context.Edges {
		if !r.LHS.HasEdge(e) {
			return r.invalid("context edge %s->%s missing from lhs", e.Src, e.Dst)
		}
		if !r.RHS.HasEdge(e) {
			return r.invalid("context edge %s->%s missing from rhs", e.Src, e.Dst)
		}
	}

	for _, n := range r.LHS.Nodes {
		if r.RHS.HasNodeVar(n.Var) && !r.Context.HasNodeVar(n.Var) {
			return r.invalid("node %q in both lhs and rhs must be in context", n.Var)
		}
	}
	for _, e := range r.LHS.Edges {
		if e.Var == "" {
			continue
		}
		if _, shared := r.RHS.EdgeByVar(e.Var); shared && !contextHasEdgeVar(r.Context, e.Var) {
			return r.invalid("edge %q in both lhs and rhs must be in context", e.Var)
		}
	}

	for i, g := range r.Guards {
		if g.Name == "" {
			return r.invalid("guard %d has empty name", i)
		}
	}
	return nil
}

func contextHasEdgeVar(p GraphPattern, v string) bool {
	_, ok := p.EdgeByVar(v)
	return ok
}

// ParseRule decodes and validates a rule from its JSON wire form.
func ParseRule(data []byte) (*Rule, error) {
	var r Rule
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.WrapInvalid(err, "Rule", "Parse", "decode rule json")
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Encode renders the rule in its JSON wire form.
func (r *Rule) Encode() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Rule", "Encode", "marshal rule json")
	}
	return data, nil
}
