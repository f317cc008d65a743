package rule

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/com-junkawasaki/kotoba-sub011/errors"
	"github.com/com-junkawasaki/kotoba-sub011/graph"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// starGraph builds hub -> s1, hub -> s2, s3 -> hub.
func starGraph(t *testing.T) *graph.Snapshot {
	t.Helper()
	snap, err := graph.NewSnapshot().Apply(graph.Patch{
		AddVertices: []*graph.VertexData{
			{ID: "hub", Labels: []string{"Person"}, Props: map[string]any{"name": "Hub", "age": float64(34), "active": true}},
			{ID: "s1", Labels: []string{"Person"}},
			{ID: "s2", Labels: []string{"Person"}},
			{ID: "s3", Labels: []string{"Person"}},
		},
		AddEdges: []*graph.EdgeData{
			{ID: "e1", Src: "hub", Dst: "s1", Label: "knows"},
			{ID: "e2", Src: "hub", Dst: "s2", Label: "knows"},
			{ID: "e3", Src: "s3", Dst: "hub", Label: "knows"},
		},
	})
	require.NoError(t, err)
	return snap
}

func TestGuardRegistry_BuiltIns(t *testing.T) {
	snap := starGraph(t)
	reg := NewGuardRegistry(quietLogger())
	hub := map[string]graph.VertexID{"x": "hub"}
	spoke := map[string]graph.VertexID{"x": "s1"}

	cases := []struct {
		name     string
		guard    Guard
		bindings map[string]graph.VertexID
		want     bool
	}{
		{"deg_ge true", Guard{Name: "deg_ge", Args: []string{"x", "3"}}, hub, true},
		{"deg_ge false", Guard{Name: "deg_ge", Args: []string{"x", "4"}}, hub, false},
		{"deg_le true", Guard{Name: "deg_le", Args: []string{"x", "1"}}, spoke, true},
		{"deg_le false", Guard{Name: "deg_le", Args: []string{"x", "2"}}, hub, false},
		{"has_prop present", Guard{Name: "has_prop", Args: []string{"x", "name"}}, hub, true},
		{"has_prop absent", Guard{Name: "has_prop", Args: []string{"x", "salary"}}, hub, false},
		{"prop_eq string", Guard{Name: "prop_eq", Args: []string{"x", "name", "Hub"}}, hub, true},
		{"prop_eq number", Guard{Name: "prop_eq", Args: []string{"x", "age", "34"}}, hub, true},
		{"prop_eq bool", Guard{Name: "prop_eq", Args: []string{"x", "active", "true"}}, hub, true},
		{"prop_eq mismatch", Guard{Name: "prop_eq", Args: []string{"x", "age", "35"}}, hub, false},
		{"prop_eq missing key", Guard{Name: "prop_eq", Args: []string{"x", "salary", "1"}}, hub, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, reg.Evaluate(snap, tc.guard, tc.bindings))
		})
	}
}

func TestGuardRegistry_FailsClosed(t *testing.T) {
	snap := starGraph(t)
	reg := NewGuardRegistry(quietLogger())
	hub := map[string]graph.VertexID{"x": "hub"}

	// Unknown guard names reject the match instead of erroring.
	assert.False(t, reg.Evaluate(snap, Guard{Name: "deg_gte", Args: []string{"x", "1"}}, hub))

	// Malformed args reject the match.
	assert.False(t, reg.Evaluate(snap, Guard{Name: "deg_ge", Args: []string{"x"}}, hub))
	assert.False(t, reg.Evaluate(snap, Guard{Name: "deg_ge", Args: []string{"x", "lots"}}, hub))

	// Unbound variables and stale vertex ids reject the match.
	assert.False(t, reg.Evaluate(snap, Guard{Name: "has_prop", Args: []string{"y", "name"}}, hub))
	stale := map[string]graph.VertexID{"x": "gone"}
	assert.False(t, reg.Evaluate(snap, Guard{Name: "has_prop", Args: []string{"x", "name"}}, stale))
}

func TestGuardRegistry_Register(t *testing.T) {
	snap := starGraph(t)
	reg := NewGuardRegistry(quietLogger())

	err := reg.Register("always", func(graph.View, map[string]graph.VertexID, []string) (bool, error) {
		return true, nil
	})
	require.NoError(t, err)
	assert.True(t, reg.Evaluate(snap, Guard{Name: "always"}, nil))

	err = reg.Register("always", func(graph.View, map[string]graph.VertexID, []string) (bool, error) {
		return false, nil
	})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	err = reg.Register("", nil)
	require.Error(t, err)

	assert.Equal(t, []string{"always", "deg_ge", "deg_le", "has_prop", "prop_eq"}, reg.Names())
}
