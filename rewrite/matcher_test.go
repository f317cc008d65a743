package rewrite

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/com-junkawasaki/kotoba-sub011/graph"
	"github.com/com-junkawasaki/kotoba-sub011/rule"
	"github.com/com-junkawasaki/kotoba-sub011/testutil"
)

// social builds alice -knows-> bob -knows-> carol, all Person, plus dave, a
// Person with no edges.
func social(t *testing.T) *graph.Snapshot {
	t.Helper()
	return testutil.Seed(t,
		[]*graph.VertexData{
			testutil.VertexWithProps("alice", map[string]any{"name": "Alice"}, "Person"),
			testutil.VertexWithProps("bob", map[string]any{"name": "Bob"}, "Person"),
			testutil.VertexWithProps("carol", map[string]any{"name": "Carol"}, "Person"),
			testutil.Vertex("dave", "Person"),
		},
		[]*graph.EdgeData{
			testutil.Edge("e1", "alice", "bob", "knows"),
			testutil.Edge("e2", "bob", "carol", "knows"),
		},
	)
}

func deletePersonRule() *rule.Rule {
	return &rule.Rule{
		Name: "delete_person",
		LHS:  rule.GraphPattern{Nodes: []rule.PatternNode{testutil.PatternNode("a", "Person")}},
	}
}

func knowsPairRule() *rule.Rule {
	people := []rule.PatternNode{testutil.PatternNode("a", "Person"), testutil.PatternNode("b", "Person")}
	return &rule.Rule{
		Name: "knows_pair",
		LHS: rule.GraphPattern{
			Nodes: people,
			Edges: []rule.PatternEdge{testutil.PatternEdge("e", "a", "b", "knows")},
		},
		Context: rule.GraphPattern{Nodes: people},
		RHS:     rule.GraphPattern{Nodes: people},
	}
}

func newTestMatcher(t *testing.T, cfg MatcherConfig) *Matcher {
	t.Helper()
	m, err := NewMatcher(nil, cfg, testutil.QuietLogger())
	require.NoError(t, err)
	return m
}

func mappedVertices(matches []Match, v string) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = string(m.Nodes[v])
	}
	return out
}

func TestMatcher_SingleNodeByLabel(t *testing.T) {
	snap := social(t)
	m := newTestMatcher(t, MatcherConfig{})

	matches, err := m.FindMatches(context.Background(), snap, deletePersonRule())
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol", "dave"}, mappedVertices(matches, "a"))
}

func TestMatcher_PropertyConstraint(t *testing.T) {
	snap := social(t)
	m := newTestMatcher(t, MatcherConfig{})
	r := &rule.Rule{
		Name: "find_alice",
		LHS: rule.GraphPattern{Nodes: []rule.PatternNode{
			{Var: "a", Label: "Person", Props: map[string]any{"name": "Alice"}},
		}},
	}

	matches, err := m.FindMatches(context.Background(), snap, r)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, mappedVertices(matches, "a"))
}

func TestMatcher_EdgeTraversal(t *testing.T) {
	snap := social(t)
	m := newTestMatcher(t, MatcherConfig{})

	matches, err := m.FindMatches(context.Background(), snap, knowsPairRule())
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, []string{"alice", "bob"}, mappedVertices(matches, "a"))
	assert.Equal(t, []string{"bob", "carol"}, mappedVertices(matches, "b"))

	// Named edge variables come back bound to the concrete edges.
	assert.Equal(t, graph.EdgeID("e1"), matches[0].Edges["e"])
	assert.Equal(t, graph.EdgeID("e2"), matches[1].Edges["e"])
}

func TestMatcher_InjectiveNodeBinding(t *testing.T) {
	snap := testutil.Seed(t,
		[]*graph.VertexData{testutil.Vertex("solo", "Person")},
		[]*graph.EdgeData{testutil.Edge("loop", "solo", "solo", "knows")},
	)
	m := newTestMatcher(t, MatcherConfig{})

	matches, err := m.FindMatches(context.Background(), snap, knowsPairRule())
	require.NoError(t, err)
	assert.Empty(t, matches, "a self loop must not bind two variables to one vertex")
}

func TestMatcher_UnlabeledNodeScansAll(t *testing.T) {
	snap := social(t)
	m := newTestMatcher(t, MatcherConfig{})
	r := &rule.Rule{
		Name: "any_vertex",
		LHS:  rule.GraphPattern{Nodes: []rule.PatternNode{{Var: "x"}}},
	}

	matches, err := m.FindMatches(context.Background(), snap, r)
	require.NoError(t, err)
	assert.Len(t, matches, 4)
}

func TestMatcher_EmptyLHSMatchesOnce(t *testing.T) {
	snap := social(t)
	m := newTestMatcher(t, MatcherConfig{})
	r := &rule.Rule{Name: "always"}

	matches, err := m.FindMatches(context.Background(), snap, r)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Empty(t, matches[0].Nodes)
}

func TestMatcher_NACExcludesExtendableMatches(t *testing.T) {
	snap := social(t)
	m := newTestMatcher(t, MatcherConfig{})
	r := &rule.Rule{
		Name: "delete_sink",
		LHS:  rule.GraphPattern{Nodes: []rule.PatternNode{testutil.PatternNode("a", "Person")}},
		NACs: []rule.NAC{{
			Nodes: []rule.PatternNode{testutil.PatternNode("b", "Person")},
			Edges: []rule.PatternEdge{testutil.PatternEdge("", "a", "b", "knows")},
		}},
	}

	// alice and bob have outgoing knows edges, carol and dave do not.
	matches, err := m.FindMatches(context.Background(), snap, r)
	require.NoError(t, err)
	assert.Equal(t, []string{"carol", "dave"}, mappedVertices(matches, "a"))
}

func TestMatcher_NACCountsExcluded(t *testing.T) {
	m := newTestMatcher(t, MatcherConfig{})
	r := &rule.Rule{
		Name: "delete_sink",
		LHS:  rule.GraphPattern{Nodes: []rule.PatternNode{testutil.PatternNode("a", "Person")}},
		NACs: []rule.NAC{{
			Nodes: []rule.PatternNode{testutil.PatternNode("b", "Person")},
			Edges: []rule.PatternEdge{testutil.PatternEdge("", "a", "b", "knows")},
		}},
	}

	with := social(t)
	withMatches, err := m.FindMatches(context.Background(), with, r)
	require.NoError(t, err)

	// Same vertices, no edges: nothing satisfies the NAC anywhere.
	without := testutil.Seed(t, []*graph.VertexData{
		testutil.Vertex("alice", "Person"), testutil.Vertex("bob", "Person"),
		testutil.Vertex("carol", "Person"), testutil.Vertex("dave", "Person"),
	}, nil)
	withoutMatches, err := m.FindMatches(context.Background(), without, r)
	require.NoError(t, err)

	// The two graphs differ only in NAC satisfiability; the two vertices
	// with outgoing knows edges are exactly the excluded candidates.
	assert.Len(t, withoutMatches, 4)
	assert.Len(t, withMatches, 2)
}

func TestMatcher_GuardFiltersMatches(t *testing.T) {
	snap := social(t)
	m := newTestMatcher(t, MatcherConfig{})
	r := &rule.Rule{
		Name:   "busy_person",
		LHS:    rule.GraphPattern{Nodes: []rule.PatternNode{testutil.PatternNode("a", "Person")}},
		Guards: []rule.Guard{{Name: "deg_ge", Args: []string{"a", "2"}}},
	}

	matches, err := m.FindMatches(context.Background(), snap, r)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, mappedVertices(matches, "a"), "only bob touches two edges")
}

func TestMatcher_UnknownGuardFailsClosed(t *testing.T) {
	snap := social(t)
	m := newTestMatcher(t, MatcherConfig{})
	r := &rule.Rule{
		Name:   "guarded",
		LHS:    rule.GraphPattern{Nodes: []rule.PatternNode{testutil.PatternNode("a", "Person")}},
		Guards: []rule.Guard{{Name: "deg_gte", Args: []string{"a", "1"}}},
	}

	matches, err := m.FindMatches(context.Background(), snap, r)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMatcher_MaxMatchesCap(t *testing.T) {
	snap := social(t)
	m := newTestMatcher(t, MatcherConfig{MaxMatches: 2})

	matches, err := m.FindMatches(context.Background(), snap, deletePersonRule())
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, mappedVertices(matches, "a"))
}

func TestMatcher_Deterministic(t *testing.T) {
	snap := social(t)
	m := newTestMatcher(t, MatcherConfig{})
	r := knowsPairRule()

	first, err := m.FindMatches(context.Background(), snap, r)
	require.NoError(t, err)
	second, err := m.FindMatches(context.Background(), snap, r)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMatcher_CancelledContext(t *testing.T) {
	verts := make([]*graph.VertexData, 600)
	for i := range verts {
		verts[i] = testutil.Vertex(fmt.Sprintf("v%03d", i), "Person")
	}
	snap := testutil.Seed(t, verts, nil)
	m := newTestMatcher(t, MatcherConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.FindMatches(ctx, snap, deletePersonRule())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMatcher_CandidateBudgetReturnsPartial(t *testing.T) {
	snap := social(t)
	m := newTestMatcher(t, MatcherConfig{MaxCandidates: 2})

	matches, err := m.FindMatches(context.Background(), snap, deletePersonRule())
	require.NoError(t, err)
	assert.Len(t, matches, 2, "budget of two candidates admits two matches")
}

func TestMatcher_TwoHopChain(t *testing.T) {
	snap := social(t)
	m := newTestMatcher(t, MatcherConfig{})
	nodes := []rule.PatternNode{testutil.PatternNode("a", "Person"), testutil.PatternNode("b", "Person"), testutil.PatternNode("c", "Person")}
	r := &rule.Rule{
		Name: "chain",
		LHS: rule.GraphPattern{
			Nodes: nodes,
			Edges: []rule.PatternEdge{
				testutil.PatternEdge("", "a", "b", "knows"),
				testutil.PatternEdge("", "b", "c", "knows"),
			},
		},
		Context: rule.GraphPattern{Nodes: nodes},
		RHS:     rule.GraphPattern{Nodes: nodes},
	}

	matches, err := m.FindMatches(context.Background(), snap, r)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, graph.VertexID("alice"), matches[0].Nodes["a"])
	assert.Equal(t, graph.VertexID("bob"), matches[0].Nodes["b"])
	assert.Equal(t, graph.VertexID("carol"), matches[0].Nodes["c"])
}
