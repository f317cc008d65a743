package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/com-junkawasaki/kotoba-sub011/errors"
)

func vtx(id string, labels ...string) *VertexData {
	return &VertexData{ID: VertexID(id), Labels: labels, Props: map[string]any{}}
}

func vtxProps(id string, props map[string]any, labels ...string) *VertexData {
	return &VertexData{ID: VertexID(id), Labels: labels, Props: props}
}

func edg(id, src, dst, label string) *EdgeData {
	return &EdgeData{ID: EdgeID(id), Src: VertexID(src), Dst: VertexID(dst), Label: label}
}

// triangle builds alice -knows-> bob -knows-> carol with alice also working
// at acme.
func triangle(t *testing.T) *Snapshot {
	t.Helper()
	snap, err := NewSnapshot().Apply(Patch{
		AddVertices: []*VertexData{
			vtxProps("alice", map[string]any{"name": "Alice", "age": float64(34)}, "Person"),
			vtxProps("bob", map[string]any{"name": "Bob"}, "Person"),
			vtxProps("carol", map[string]any{"name": "Carol"}, "Person", "Admin"),
			vtx("acme", "Company"),
		},
		AddEdges: []*EdgeData{
			edg("e1", "alice", "bob", "knows"),
			edg("e2", "bob", "carol", "knows"),
			edg("e3", "alice", "acme", "works_at"),
		},
	})
	require.NoError(t, err)
	return snap
}

func TestSnapshot_Reads(t *testing.T) {
	snap := triangle(t)

	assert.Equal(t, 4, snap.VertexCount())
	assert.Equal(t, 3, snap.EdgeCount())

	v, ok := snap.Vertex("alice")
	require.True(t, ok)
	assert.True(t, v.HasLabel("Person"))
	assert.False(t, v.HasLabel("Company"))
	name, ok := v.Prop("name")
	require.True(t, ok)
	assert.Equal(t, "Alice", name)

	_, ok = snap.Vertex("nobody")
	assert.False(t, ok)

	e, ok := snap.Edge("e2")
	require.True(t, ok)
	assert.Equal(t, VertexID("bob"), e.Src)
	assert.Equal(t, VertexID("carol"), e.Dst)
	assert.Equal(t, "knows", e.Label)
}

func TestSnapshot_LabelIndex(t *testing.T) {
	snap := triangle(t)

	var people []VertexID
	snap.VerticesByLabel("Person", func(v *VertexData) bool {
		people = append(people, v.ID)
		return true
	})
	assert.Equal(t, []VertexID{"alice", "bob", "carol"}, people,
		"label scan should yield id order")

	var admins []VertexID
	snap.VerticesByLabel("Admin", func(v *VertexData) bool {
		admins = append(admins, v.ID)
		return true
	})
	assert.Equal(t, []VertexID{"carol"}, admins)

	var none []VertexID
	snap.VerticesByLabel("Robot", func(v *VertexData) bool {
		none = append(none, v.ID)
		return true
	})
	assert.Empty(t, none)
}

func TestSnapshot_Adjacency(t *testing.T) {
	snap := triangle(t)

	var out []EdgeID
	snap.OutEdges("alice", func(e *EdgeData) bool {
		out = append(out, e.ID)
		return true
	})
	assert.Equal(t, []EdgeID{"e1", "e3"}, out)

	var in []EdgeID
	snap.InEdges("carol", func(e *EdgeData) bool {
		in = append(in, e.ID)
		return true
	})
	assert.Equal(t, []EdgeID{"e2"}, in)

	var between []EdgeID
	snap.EdgesBetween("alice", "bob", "knows", func(e *EdgeData) bool {
		between = append(between, e.ID)
		return true
	})
	assert.Equal(t, []EdgeID{"e1"}, between)

	between = nil
	snap.EdgesBetween("alice", "bob", "", func(e *EdgeData) bool {
		between = append(between, e.ID)
		return true
	})
	assert.Equal(t, []EdgeID{"e1"}, between, "empty label matches any label")

	between = nil
	snap.EdgesBetween("alice", "bob", "works_at", func(e *EdgeData) bool {
		between = append(between, e.ID)
		return true
	})
	assert.Empty(t, between)
}

func TestSnapshot_ApplyIsImmutable(t *testing.T) {
	parent := triangle(t)

	child, err := parent.Apply(Patch{
		DeleteEdges:    []EdgeID{"e1", "e3"},
		DeleteVertices: []VertexID{"alice"},
		Updates:        []PropUpdate{{Vertex: "bob", Key: "name", Value: "Robert"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, child.VertexCount())
	assert.Equal(t, 1, child.EdgeCount())
	_, ok := child.Vertex("alice")
	assert.False(t, ok)
	bob, ok := child.Vertex("bob")
	require.True(t, ok)
	assert.Equal(t, "Robert", bob.Props["name"])

	// Parent is untouched, including the updated vertex's payload.
	assert.Equal(t, 4, parent.VertexCount())
	assert.Equal(t, 3, parent.EdgeCount())
	_, ok = parent.Vertex("alice")
	assert.True(t, ok)
	oldBob, ok := parent.Vertex("bob")
	require.True(t, ok)
	assert.Equal(t, "Bob", oldBob.Props["name"])

	var people []VertexID
	parent.VerticesByLabel("Person", func(v *VertexData) bool {
		people = append(people, v.ID)
		return true
	})
	assert.Len(t, people, 3, "parent label index unchanged")
}

func TestSnapshot_DeleteVertexRequiresEdgeDeletes(t *testing.T) {
	snap := triangle(t)

	_, err := snap.Apply(Patch{DeleteVertices: []VertexID{"alice"}})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Contains(t, err.Error(), "dangling")
	assert.Contains(t, err.Error(), "alice")

	// Deleting only the outgoing edge still leaves e3 attached.
	_, err = snap.Apply(Patch{
		DeleteVertices: []VertexID{"alice"},
		DeleteEdges:    []EdgeID{"e1"},
	})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	next, err := snap.Apply(Patch{
		DeleteVertices: []VertexID{"alice"},
		DeleteEdges:    []EdgeID{"e1", "e3"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, next.VertexCount())
	assert.Equal(t, 1, next.EdgeCount())
}

func TestSnapshot_ApplyRejectsStaleIDs(t *testing.T) {
	snap := triangle(t)

	_, err := snap.Apply(Patch{DeleteVertices: []VertexID{"ghost"}})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = snap.Apply(Patch{DeleteEdges: []EdgeID{"e99"}})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = snap.Apply(Patch{Updates: []PropUpdate{{Vertex: "ghost", Key: "x", Value: 1}}})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestSnapshot_ApplyRejectsCollidingAdds(t *testing.T) {
	snap := triangle(t)

	_, err := snap.Apply(Patch{AddVertices: []*VertexData{vtx("alice")}})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = snap.Apply(Patch{AddVertices: []*VertexData{vtx("dave"), vtx("dave")}})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = snap.Apply(Patch{AddEdges: []*EdgeData{edg("e1", "alice", "bob", "knows")}})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestSnapshot_ApplyRejectsMissingEndpoints(t *testing.T) {
	snap := triangle(t)

	_, err := snap.Apply(Patch{AddEdges: []*EdgeData{edg("e9", "alice", "ghost", "knows")}})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	// An added edge may reference a vertex added in the same patch.
	next, err := snap.Apply(Patch{
		AddVertices: []*VertexData{vtx("dave", "Person")},
		AddEdges:    []*EdgeData{edg("e9", "carol", "dave", "knows")},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, next.EdgeCount())

	// But not one deleted in the same patch.
	_, err = snap.Apply(Patch{
		DeleteVertices: []VertexID{"acme"},
		DeleteEdges:    []EdgeID{"e3"},
		AddEdges:       []*EdgeData{edg("e9", "bob", "acme", "works_at")},
	})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestSnapshot_UpdateSemantics(t *testing.T) {
	snap := triangle(t)

	next, err := snap.Apply(Patch{Updates: []PropUpdate{
		{Vertex: "alice", Key: "age", Value: float64(35)},
		{Vertex: "alice", Key: "active", Value: true},
		{Vertex: "acme", Key: "name", Value: "Acme Corp"},
	}})
	require.NoError(t, err)

	alice, _ := next.Vertex("alice")
	assert.Equal(t, float64(35), alice.Props["age"])
	assert.Equal(t, true, alice.Props["active"])
	assert.Equal(t, "Alice", alice.Props["name"], "untouched props survive")

	acme, _ := next.Vertex("acme")
	assert.Equal(t, "Acme Corp", acme.Props["name"], "update allocates props map when nil")

	// Updates may target a vertex added by the same patch.
	next, err = snap.Apply(Patch{
		AddVertices: []*VertexData{vtx("dave", "Person")},
		Updates:     []PropUpdate{{Vertex: "dave", Key: "name", Value: "Dave"}},
	})
	require.NoError(t, err)
	dave, _ := next.Vertex("dave")
	assert.Equal(t, "Dave", dave.Props["name"])

	// But not a vertex deleted by it.
	_, err = snap.Apply(Patch{
		DeleteVertices: []VertexID{"acme"},
		DeleteEdges:    []EdgeID{"e3"},
		Updates:        []PropUpdate{{Vertex: "acme", Key: "name", Value: "x"}},
	})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestSnapshot_EmptyPatchIsIdentity(t *testing.T) {
	snap := triangle(t)
	next, err := snap.Apply(Patch{})
	require.NoError(t, err)
	assert.Equal(t, snap.VertexCount(), next.VertexCount())
	assert.Equal(t, snap.EdgeCount(), next.EdgeCount())
}
