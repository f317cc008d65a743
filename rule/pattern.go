package rule

import "fmt"

// PatternNode is one vertex variable in a pattern. An empty Label matches
// vertices of any label; Props are exact-equality constraints on the
// candidate vertex's properties.
type PatternNode struct {
	Var   string         `json:"id"`
	Label string         `json:"type,omitempty"`
	Props map[string]any `json:"props,omitempty"`
}

// PatternEdge is one directed edge variable between two node variables of
// the same pattern. Var may be empty for edges nothing else refers to. An
// empty Label matches edges of any label.
type PatternEdge struct {
	Var   string `json:"id,omitempty"`
	Src   string `json:"src"`
	Dst   string `json:"dst"`
	Label string `json:"type,omitempty"`
}

// GraphPattern is a small graph over variables instead of concrete ids.
type GraphPattern struct {
	Nodes []PatternNode `json:"nodes"`
	Edges []PatternEdge `json:"edges"`
}

// NAC is a negative application condition: a pattern that must not be
// matchable as an extension of the LHS binding. NAC nodes may reuse LHS
// variables to anchor the forbidden shape to the match.
type NAC = GraphPattern

// IsEmpty reports whether the pattern has no nodes and no edges.
func (p GraphPattern) IsEmpty() bool {
	return len(p.Nodes) == 0 && len(p.Edges) == 0
}

// NodeByVar returns the node with the given variable, if declared.
func (p GraphPattern) NodeByVar(v string) (PatternNode, bool) {
	for _, n := range p.Nodes {
		if n.Var == v {
			return n, true
		}
	}
	return PatternNode{}, false
}

// HasNodeVar reports whether the pattern declares the node variable.
func (p GraphPattern) HasNodeVar(v string) bool {
	_, ok := p.NodeByVar(v)
	return ok
}

// EdgeByVar returns the named edge, if declared.
func (p GraphPattern) EdgeByVar(v string) (PatternEdge, bool) {
	if v == "" {
		return PatternEdge{}, false
	}
	for _, e := range p.Edges {
		if e.Var == v {
			return e, true
		}
	}
	return PatternEdge{}, false
}

// HasEdge reports whether the pattern contains the edge, matched by
// variable when the edge is named and by endpoints and label otherwise.
func (p GraphPattern) HasEdge(want PatternEdge) bool {
	if want.Var != "" {
		_, ok := p.EdgeByVar(want.Var)
		return ok
	}
	for _, e := range p.Edges {
		if e.Src == want.Src && e.Dst == want.Dst && e.Label == want.Label {
			return true
		}
	}
	return false
}

// NodeVars returns the declared node variables in declaration order.
func (p GraphPattern) NodeVars() []string {
	vars := make([]string, len(p.Nodes))
	for i, n := range p.Nodes {
		vars[i] = n.Var
	}
	return vars
}

// validate checks the pattern is internally well formed: node and edge
// variables are unique and edge endpoints are declared. extra lists node
// variables declared elsewhere that edges may also anchor to, which is how
// NACs reach back into the LHS.
func (p GraphPattern) validate(extra *GraphPattern) error {
	seen := make(map[string]struct{}, len(p.Nodes))
	for _, n := range p.Nodes {
		if n.Var == "" {
			return fmt.Errorf("node with empty variable")
		}
		if _, dup := seen[n.Var]; dup {
			return fmt.Errorf("duplicate node variable %q", n.Var)
		}
		seen[n.Var] = struct{}{}
	}

	declared := func(v string) bool {
		if _, ok := seen[v]; ok {
			return true
		}
		return extra != nil && extra.HasNodeVar(v)
	}

	edgeVars := make(map[string]struct{}, len(p.Edges))
	for _, e := range p.Edges {
		if e.Var != "" {
			if _, dup := edgeVars[e.Var]; dup {
				return fmt.Errorf("duplicate edge variable %q", e.Var)
			}
			edgeVars[e.Var] = struct{}{}
		}
		if !declared(e.Src) {
			return fmt.Errorf("edge %s->%s references undeclared source %q", e.Src, e.Dst, e.Src)
		}
		if !declared(e.Dst) {
			return fmt.Errorf("edge %s->%s references undeclared destination %q", e.Src, e.Dst, e.Dst)
		}
	}
	return nil
}
