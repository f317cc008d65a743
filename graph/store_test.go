package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_CommitAdvancesHead(t *testing.T) {
	store := NewMemStore(nil)
	assert.Equal(t, 0, store.Snapshot().VertexCount())
	assert.Equal(t, uint64(0), store.Revision())

	next, err := store.Commit(Patch{AddVertices: []*VertexData{vtx("a", "Person")}})
	require.NoError(t, err)
	assert.Equal(t, 1, next.VertexCount())
	assert.Equal(t, 1, store.Snapshot().VertexCount())
	assert.Equal(t, uint64(1), store.Revision())
}

func TestMemStore_FailedCommitLeavesHead(t *testing.T) {
	store := NewMemStore(triangle(t))
	before := store.Snapshot()

	_, err := store.Commit(Patch{DeleteVertices: []VertexID{"ghost"}})
	require.Error(t, err)
	assert.Same(t, before, store.Snapshot())
	assert.Equal(t, uint64(0), store.Revision())
}

func TestMemStore_SnapshotIsolation(t *testing.T) {
	store := NewMemStore(triangle(t))
	old := store.Snapshot()

	_, err := store.Commit(Patch{
		DeleteVertices: []VertexID{"alice"},
		DeleteEdges:    []EdgeID{"e1", "e3"},
	})
	require.NoError(t, err)

	_, ok := old.Vertex("alice")
	assert.True(t, ok, "snapshot taken before commit still sees alice")
	_, ok = store.Snapshot().Vertex("alice")
	assert.False(t, ok)
}
