package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/com-junkawasaki/kotoba-sub011/graph"
)

// Vertex builds a VertexData with the given id and labels and no properties.
func Vertex(id string, labels ...string) *graph.VertexData {
	return &graph.VertexData{ID: graph.VertexID(id), Labels: labels}
}

// VertexWithProps builds a VertexData carrying the given property map.
func VertexWithProps(id string, props map[string]any, labels ...string) *graph.VertexData {
	return &graph.VertexData{ID: graph.VertexID(id), Labels: labels, Props: props}
}

// Edge builds an EdgeData between two vertex ids.
func Edge(id, src, dst, label string) *graph.EdgeData {
	return &graph.EdgeData{
		ID:    graph.EdgeID(id),
		Src:   graph.VertexID(src),
		Dst:   graph.VertexID(dst),
		Label: label,
	}
}

// Seed applies the given vertices and edges to an empty snapshot and fails
// the test if the patch does not validate.
func Seed(t *testing.T, vertices []*graph.VertexData, edges []*graph.EdgeData) *graph.Snapshot {
	t.Helper()
	snap, err := graph.NewSnapshot().Apply(graph.Patch{AddVertices: vertices, AddEdges: edges})
	require.NoError(t, err)
	return snap
}
