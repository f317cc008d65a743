package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/com-junkawasaki/kotoba-sub011/errors"
)

const sampleDoc = `{
  "vertices": [
    {"id": "n1", "labels": ["Person"], "props": {"name": "Ada"}},
    {"id": "n2", "labels": ["Person"]}
  ],
  "edges": [
    {"id": "e1", "src": "n1", "dst": "n2", "label": "knows"}
  ]
}`

func TestParseDocument(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleDoc))
	require.NoError(t, err)
	require.Len(t, doc.Vertices, 2)
	require.Len(t, doc.Edges, 1)

	snap, err := doc.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 2, snap.VertexCount())
	assert.Equal(t, 1, snap.EdgeCount())

	ada, ok := snap.Vertex("n1")
	require.True(t, ok)
	assert.Equal(t, "Ada", ada.Props["name"])
}

func TestParseDocument_BadJSON(t *testing.T) {
	_, err := ParseDocument([]byte(`{"vertices": [`))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestDocument_SnapshotValidates(t *testing.T) {
	doc := &Document{
		Vertices: []*VertexData{vtx("n1")},
		Edges:    []*EdgeData{edg("e1", "n1", "missing", "knows")},
	}
	_, err := doc.Snapshot()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestExport_Deterministic(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleDoc))
	require.NoError(t, err)
	snap, err := doc.Snapshot()
	require.NoError(t, err)

	first, err := Export(snap).Encode()
	require.NoError(t, err)
	second, err := Export(snap).Encode()
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))

	// Round-tripping through a document preserves the graph.
	reparsed, err := ParseDocument(first)
	require.NoError(t, err)
	resnap, err := reparsed.Snapshot()
	require.NoError(t, err)
	again, err := Export(resnap).Encode()
	require.NoError(t, err)
	assert.Equal(t, string(first), string(again))
}
