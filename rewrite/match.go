package rewrite

import (
	"maps"

	"github.com/com-junkawasaki/kotoba-sub011/graph"
	"github.com/com-junkawasaki/kotoba-sub011/strategy"
)

// Match is one embedding of a rule's LHS into a concrete graph. Nodes maps
// every LHS node variable to a vertex id; Edges maps the named LHS edge
// variables to the edge ids the matcher bound them to (anonymous edges are
// re-derived by adjacency lookup when needed). Score is a tie-break for
// callers aggregating matches across rules; matches of one FindMatches call
// are already in deterministic discovery order.
type Match struct {
	Rule  string                    `json:"rule"`
	Nodes map[string]graph.VertexID `json:"nodes"`
	Edges map[string]graph.EdgeID   `json:"edges,omitempty"`
	Score float64                   `json:"score"`
}

// Clone returns a deep copy of the match.
func (m Match) Clone() Match {
	return Match{
		Rule:  m.Rule,
		Nodes: maps.Clone(m.Nodes),
		Edges: maps.Clone(m.Edges),
		Score: m.Score,
	}
}

// SelectMatch picks one match from a discovery-ordered list per the order
// policy: TopDown takes the first, BottomUp the last, Fair rotates through
// positions using the caller's cursor. Returns the chosen index, or -1 for
// an empty list.
func SelectMatch(matches []Match, order strategy.Order, cursor int) int {
	if len(matches) == 0 {
		return -1
	}
	switch order.OrDefault() {
	case strategy.OrderBottomUp:
		return len(matches) - 1
	case strategy.OrderFair:
		if cursor < 0 {
			cursor = 0
		}
		return cursor % len(matches)
	default:
		return 0
	}
}
