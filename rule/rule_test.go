package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/com-junkawasaki/kotoba-sub011/errors"
)

func node(v, label string) PatternNode {
	return PatternNode{Var: v, Label: label}
}

func edge(v, src, dst, label string) PatternEdge {
	return PatternEdge{Var: v, Src: src, Dst: dst, Label: label}
}

// deletePerson removes a lone Person vertex: preserved interface and
// replacement are both empty.
func deletePerson() *Rule {
	return &Rule{
		Name: "delete_person",
		LHS:  GraphPattern{Nodes: []PatternNode{node("a", "Person")}},
	}
}

// collapseFollow deletes the followed edge between two preserved people.
func collapseFollow() *Rule {
	people := []PatternNode{node("u", "Person"), node("v", "Person")}
	return &Rule{
		Name: "collapse_follow",
		LHS: GraphPattern{
			Nodes: people,
			Edges: []PatternEdge{edge("e", "u", "v", "FOLLOWS")},
		},
		Context: GraphPattern{Nodes: people},
		RHS:     GraphPattern{Nodes: people},
	}
}

func TestRule_ValidateAcceptsWellFormed(t *testing.T) {
	people := []PatternNode{node("u", "Person"), node("v", "Person")}

	rules := map[string]*Rule{
		"delete lone vertex": deletePerson(),
		"delete edge":        collapseFollow(),
		"add edge between preserved": {
			Name:    "befriend",
			LHS:     GraphPattern{Nodes: people},
			Context: GraphPattern{Nodes: people},
			RHS: GraphPattern{
				Nodes: people,
				Edges: []PatternEdge{edge("f", "u", "v", "knows")},
			},
		},
		"update preserved props": {
			Name: "promote",
			LHS:  GraphPattern{Nodes: []PatternNode{{Var: "u", Label: "Person", Props: map[string]any{"level": float64(1)}}}},
			Context: GraphPattern{
				Nodes: []PatternNode{node("u", "Person")},
			},
			RHS: GraphPattern{Nodes: []PatternNode{{Var: "u", Label: "Person", Props: map[string]any{"level": float64(2)}}}},
		},
		"nac anchored to lhs": {
			Name: "delete_isolated",
			LHS:  GraphPattern{Nodes: []PatternNode{node("a", "Person")}},
			NACs: []NAC{{
				Nodes: []PatternNode{node("b", "Person")},
				Edges: []PatternEdge{edge("", "a", "b", "knows")},
			}},
		},
		"guarded": {
			Name:   "hub",
			LHS:    GraphPattern{Nodes: []PatternNode{node("a", "Person")}},
			Guards: []Guard{{Name: "deg_ge", Args: []string{"a", "2"}}},
		},
		"preserved edge": {
			Name: "touch_follow",
			LHS: GraphPattern{
				Nodes: people,
				Edges: []PatternEdge{edge("e", "u", "v", "FOLLOWS")},
			},
			Context: GraphPattern{
				Nodes: people,
				Edges: []PatternEdge{edge("e", "u", "v", "FOLLOWS")},
			},
			RHS: GraphPattern{
				Nodes: people,
				Edges: []PatternEdge{edge("e", "u", "v", "FOLLOWS")},
			},
		},
	}

	for name, r := range rules {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, r.Validate())
		})
	}
}

func TestRule_ValidateRejectsGluingViolations(t *testing.T) {
	people := []PatternNode{node("u", "Person"), node("v", "Person")}

	cases := map[string]*Rule{
		"empty name": {
			LHS: GraphPattern{Nodes: []PatternNode{node("a", "Person")}},
		},
		"context node missing from lhs": {
			Name:    "bad",
			LHS:     GraphPattern{Nodes: []PatternNode{node("u", "Person")}},
			Context: GraphPattern{Nodes: []PatternNode{node("v", "Person")}},
			RHS:     GraphPattern{Nodes: []PatternNode{node("v", "Person")}},
		},
		"context node missing from rhs": {
			Name:    "bad",
			LHS:     GraphPattern{Nodes: []PatternNode{node("u", "Person")}},
			Context: GraphPattern{Nodes: []PatternNode{node("u", "Person")}},
		},
		"duplicate node var": {
			Name: "bad",
			LHS:  GraphPattern{Nodes: []PatternNode{node("u", "Person"), node("u", "Robot")}},
		},
		"edge endpoint undeclared": {
			Name: "bad",
			LHS: GraphPattern{
				Nodes: []PatternNode{node("u", "Person")},
				Edges: []PatternEdge{edge("e", "u", "ghost", "knows")},
			},
		},
		"context edge missing from rhs": {
			Name: "bad",
			LHS: GraphPattern{
				Nodes: people,
				Edges: []PatternEdge{edge("e", "u", "v", "FOLLOWS")},
			},
			Context: GraphPattern{
				Nodes: people,
				Edges: []PatternEdge{edge("e", "u", "v", "FOLLOWS")},
			},
			RHS: GraphPattern{Nodes: people},
		},
		"shared node var outside context": {
			Name: "bad",
			LHS:  GraphPattern{Nodes: []PatternNode{node("u", "Person")}},
			RHS:  GraphPattern{Nodes: []PatternNode{node("u", "Person")}},
		},
		"shared edge var outside context": {
			Name: "bad",
			LHS: GraphPattern{
				Nodes: people,
				Edges: []PatternEdge{edge("e", "u", "v", "FOLLOWS")},
			},
			Context: GraphPattern{Nodes: people},
			RHS: GraphPattern{
				Nodes: people,
				Edges: []PatternEdge{edge("e", "u", "v", "FOLLOWS")},
			},
		},
		"guard with empty name": {
			Name:   "bad",
			LHS:    GraphPattern{Nodes: []PatternNode{node("a", "Person")}},
			Guards: []Guard{{Args: []string{"a"}}},
		},
		"nac references unknown var": {
			Name: "bad",
			LHS:  GraphPattern{Nodes: []PatternNode{node("a", "Person")}},
			NACs: []NAC{{
				Edges: []PatternEdge{edge("", "a", "ghost", "knows")},
			}},
		},
	}

	for name, r := range cases {
		t.Run(name, func(t *testing.T) {
			err := r.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err), "validation failures carry the invalid class")
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestParseRule_RoundTrip(t *testing.T) {
	src := `{
	  "name": "collapse_follow",
	  "lhs": {
	    "nodes": [{"id": "u", "type": "Person"}, {"id": "v", "type": "Person"}],
	    "edges": [{"id": "e", "src": "u", "dst": "v", "type": "FOLLOWS"}]
	  },
	  "context": {"nodes": [{"id": "u", "type": "Person"}, {"id": "v", "type": "Person"}], "edges": []},
	  "rhs": {"nodes": [{"id": "u", "type": "Person"}, {"id": "v", "type": "Person"}], "edges": []},
	  "guards": [{"name": "deg_ge", "args": ["u", "1"]}]
	}`

	r, err := ParseRule([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, "collapse_follow", r.Name)
	require.Len(t, r.LHS.Edges, 1)
	assert.Equal(t, "FOLLOWS", r.LHS.Edges[0].Label)
	require.Len(t, r.Guards, 1)
	assert.Equal(t, []string{"u", "1"}, r.Guards[0].Args)

	encoded, err := r.Encode()
	require.NoError(t, err)
	again, err := ParseRule(encoded)
	require.NoError(t, err)
	assert.Equal(t, r, again)
}

func TestParseRule_Rejects(t *testing.T) {
	_, err := ParseRule([]byte(`{"name": `))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	// Well-formed JSON, structurally invalid rule.
	_, err = ParseRule([]byte(`{"name":"bad","lhs":{"nodes":[{"id":"u"}]},"context":{"nodes":[{"id":"x"}]},"rhs":{"nodes":[{"id":"x"}]}}`))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestGraphPattern_Helpers(t *testing.T) {
	p := GraphPattern{
		Nodes: []PatternNode{node("u", "Person"), node("v", "")},
		Edges: []PatternEdge{edge("e", "u", "v", "knows")},
	}

	assert.False(t, p.IsEmpty())
	assert.True(t, GraphPattern{}.IsEmpty())

	n, ok := p.NodeByVar("v")
	require.True(t, ok)
	assert.Empty(t, n.Label)
	_, ok = p.NodeByVar("w")
	assert.False(t, ok)

	e, ok := p.EdgeByVar("e")
	require.True(t, ok)
	assert.Equal(t, "knows", e.Label)
	_, ok = p.EdgeByVar("")
	assert.False(t, ok)

	assert.Equal(t, []string{"u", "v"}, p.NodeVars())
}
