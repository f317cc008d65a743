package graph

import (
	"fmt"

	"github.com/tidwall/btree"

	"github.com/com-junkawasaki/kotoba-sub011/errors"
)

// View is the read side of a snapshot. The matcher and the guard built-ins
// depend on this interface rather than on Snapshot directly, so alternative
// backends can plug in as long as they offer stable reads.
//
// Iteration callbacks return false to stop early. Ids are yielded in
// lexicographic order, which keeps every traversal deterministic.
type View interface {
	// Vertex returns the vertex with the given id, if present.
	Vertex(id VertexID) (*VertexData, bool)

	// Edge returns the edge with the given id, if present.
	Edge(id EdgeID) (*EdgeData, bool)

	// Vertices iterates all vertices in id order.
	Vertices(fn func(*VertexData) bool)

	// VerticesByLabel iterates vertices carrying the given label in id order.
	VerticesByLabel(label string, fn func(*VertexData) bool)

	// OutEdges iterates edges whose source is the given vertex.
	OutEdges(id VertexID, fn func(*EdgeData) bool)

	// InEdges iterates edges whose destination is the given vertex.
	InEdges(id VertexID, fn func(*EdgeData) bool)

	// EdgesBetween iterates edges from src to dst. An empty label matches
	// any label.
	EdgesBetween(src, dst VertexID, label string, fn func(*EdgeData) bool)

	// VertexCount returns the number of vertices.
	VertexCount() int

	// EdgeCount returns the number of edges.
	EdgeCount() int
}

type vertexItem struct {
	id   VertexID
	data *VertexData
}

func vertexLess(a, b vertexItem) bool { return a.id < b.id }

type edgeItem struct {
	id   EdgeID
	data *EdgeData
}

func edgeLess(a, b edgeItem) bool { return a.id < b.id }

type labelItem struct {
	label string
	id    VertexID
}

func labelLess(a, b labelItem) bool {
	if a.label != b.label {
		return a.label < b.label
	}
	return a.id < b.id
}

type adjItem struct {
	vertex VertexID
	edge   EdgeID
}

func adjLess(a, b adjItem) bool {
	if a.vertex != b.vertex {
		return a.vertex < b.vertex
	}
	return a.edge < b.edge
}

// Snapshot is an immutable labelled property graph. The zero value is not
// usable; construct with NewSnapshot and evolve with Apply. All maps are
// copy-on-write btrees, so deriving a new snapshot shares structure with the
// parent and leaves the parent untouched.
type Snapshot struct {
	vertices *btree.BTreeG[vertexItem]
	edges    *btree.BTreeG[edgeItem]
	byLabel  *btree.BTreeG[labelItem]
	outAdj   *btree.BTreeG[adjItem]
	inAdj    *btree.BTreeG[adjItem]
}

var _ View = (*Snapshot)(nil)

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		vertices: btree.NewBTreeG(vertexLess),
		edges:    btree.NewBTreeG(edgeLess),
		byLabel:  btree.NewBTreeG(labelLess),
		outAdj:   btree.NewBTreeG(adjLess),
		inAdj:    btree.NewBTreeG(adjLess),
	}
}

// Vertex returns the vertex with the given id, if present. Callers must not
// mutate the returned data.
func (s *Snapshot) Vertex(id VertexID) (*VertexData, bool) {
	item, ok := s.vertices.Get(vertexItem{id: id})
	if !ok {
		return nil, false
	}
	return item.data, true
}

// Edge returns the edge with the given id, if present. Callers must not
// mutate the returned data.
func (s *Snapshot) Edge(id EdgeID) (*EdgeData, bool) {
	item, ok := s.edges.Get(edgeItem{id: id})
	if !ok {
		return nil, false
	}
	return item.data, true
}

// Vertices iterates all vertices in id order.
func (s *Snapshot) Vertices(fn func(*VertexData) bool) {
	s.vertices.Scan(func(item vertexItem) bool {
		return fn(item.data)
	})
}

// VerticesByLabel iterates vertices carrying the given label in id order.
func (s *Snapshot) VerticesByLabel(label string, fn func(*VertexData) bool) {
	s.byLabel.Ascend(labelItem{label: label}, func(item labelItem) bool {
		if item.label != label {
			return false
		}
		v, ok := s.vertices.Get(vertexItem{id: item.id})
		if !ok {
			return true
		}
		return fn(v.data)
	})
}

// OutEdges iterates edges whose source is the given vertex, in edge id order.
func (s *Snapshot) OutEdges(id VertexID, fn func(*EdgeData) bool) {
	s.scanAdj(s.outAdj, id, fn)
}

// InEdges iterates edges whose destination is the given vertex, in edge id
// order.
func (s *Snapshot) InEdges(id VertexID, fn func(*EdgeData) bool) {
	s.scanAdj(s.inAdj, id, fn)
}

func (s *Snapshot) scanAdj(tree *btree.BTreeG[adjItem], id VertexID, fn func(*EdgeData) bool) {
	tree.Ascend(adjItem{vertex: id}, func(item adjItem) bool {
		if item.vertex != id {
			return false
		}
		e, ok := s.edges.Get(edgeItem{id: item.edge})
		if !ok {
			return true
		}
		return fn(e.data)
	})
}

// EdgesBetween iterates edges from src to dst. An empty label matches any
// label.
func (s *Snapshot) EdgesBetween(src, dst VertexID, label string, fn func(*EdgeData) bool) {
	s.OutEdges(src, func(e *EdgeData) bool {
		if e.Dst != dst {
			return true
		}
		if label != "" && e.Label != label {
			return true
		}
		return fn(e)
	})
}

// VertexCount returns the number of vertices in the snapshot.
func (s *Snapshot) VertexCount() int { return s.vertices.Len() }

// EdgeCount returns the number of edges in the snapshot.
func (s *Snapshot) EdgeCount() int { return s.edges.Len() }

// Apply validates the patch against this snapshot and returns a new snapshot
// with the patch applied. The receiver is never modified. On any validation
// failure Apply returns an invalid-class error and no snapshot.
//
// Validation enforces:
//   - deleted vertices and edges exist,
//   - deleting a vertex also deletes every edge attached to it,
//   - added ids do not collide with surviving or deleted ids,
//   - added edges connect vertices present in the result,
//   - property updates target vertices present in the result.
func (s *Snapshot) Apply(p Patch) (*Snapshot, error) {
	delVerts := make(map[VertexID]struct{}, len(p.DeleteVertices))
	for _, id := range p.DeleteVertices {
		if _, ok := s.vertices.Get(vertexItem{id: id}); !ok {
			return nil, errors.WrapInvalid(errors.ErrKeyNotFound, "Snapshot", "Apply",
				fmt.Sprintf("delete vertex %s", id))
		}
		delVerts[id] = struct{}{}
	}
	delEdges := make(map[EdgeID]struct{}, len(p.DeleteEdges))
	for _, id := range p.DeleteEdges {
		if _, ok := s.edges.Get(edgeItem{id: id}); !ok {
			return nil, errors.WrapInvalid(errors.ErrKeyNotFound, "Snapshot", "Apply",
				fmt.Sprintf("delete edge %s", id))
		}
		delEdges[id] = struct{}{}
	}

	// Deleting a vertex must not orphan edges. There is no implicit cascade;
	// a patch that misses an attached edge is a usage error.
	for id := range delVerts {
		var dangling EdgeID
		check := func(e *EdgeData) bool {
			if _, ok := delEdges[e.ID]; !ok {
				dangling = e.ID
				return false
			}
			return true
		}
		s.OutEdges(id, check)
		if dangling == "" {
			s.InEdges(id, check)
		}
		if dangling != "" {
			return nil, errors.WrapInvalid(errors.ErrInvalidData, "Snapshot", "Apply",
				fmt.Sprintf("delete vertex %s with attached edge %s", id, dangling))
		}
	}

	addVerts := make(map[VertexID]struct{}, len(p.AddVertices))
	for _, v := range p.AddVertices {
		if v.ID == "" {
			return nil, errors.WrapInvalid(errors.ErrInvalidData, "Snapshot", "Apply",
				"add vertex with empty id")
		}
		_, exists := s.vertices.Get(vertexItem{id: v.ID})
		if exists {
			return nil, errors.WrapInvalid(errors.ErrInvalidData, "Snapshot", "Apply",
				fmt.Sprintf("add vertex %s with non-fresh id", v.ID))
		}
		if _, dup := addVerts[v.ID]; dup {
			return nil, errors.WrapInvalid(errors.ErrInvalidData, "Snapshot", "Apply",
				fmt.Sprintf("add vertex %s twice", v.ID))
		}
		addVerts[v.ID] = struct{}{}
	}

	vertexInResult := func(id VertexID) bool {
		if _, added := addVerts[id]; added {
			return true
		}
		if _, deleted := delVerts[id]; deleted {
			return false
		}
		_, ok := s.vertices.Get(vertexItem{id: id})
		return ok
	}

	addEdges := make(map[EdgeID]struct{}, len(p.AddEdges))
	for _, e := range p.AddEdges {
		if e.ID == "" {
			return nil, errors.WrapInvalid(errors.ErrInvalidData, "Snapshot", "Apply",
				"add edge with empty id")
		}
		_, exists := s.edges.Get(edgeItem{id: e.ID})
		if exists {
			return nil, errors.WrapInvalid(errors.ErrInvalidData, "Snapshot", "Apply",
				fmt.Sprintf("add edge %s with non-fresh id", e.ID))
		}
		if _, dup := addEdges[e.ID]; dup {
			return nil, errors.WrapInvalid(errors.ErrInvalidData, "Snapshot", "Apply",
				fmt.Sprintf("add edge %s twice", e.ID))
		}
		addEdges[e.ID] = struct{}{}
		if !vertexInResult(e.Src) {
			return nil, errors.WrapInvalid(errors.ErrKeyNotFound, "Snapshot", "Apply",
				fmt.Sprintf("add edge %s with missing source %s", e.ID, e.Src))
		}
		if !vertexInResult(e.Dst) {
			return nil, errors.WrapInvalid(errors.ErrKeyNotFound, "Snapshot", "Apply",
				fmt.Sprintf("add edge %s with missing destination %s", e.ID, e.Dst))
		}
	}

	for _, u := range p.Updates {
		if !vertexInResult(u.Vertex) {
			return nil, errors.WrapInvalid(errors.ErrKeyNotFound, "Snapshot", "Apply",
				fmt.Sprintf("update vertex %s", u.Vertex))
		}
	}

	next := &Snapshot{
		vertices: s.vertices.Copy(),
		edges:    s.edges.Copy(),
		byLabel:  s.byLabel.Copy(),
		outAdj:   s.outAdj.Copy(),
		inAdj:    s.inAdj.Copy(),
	}

	for id := range delEdges {
		item, _ := s.edges.Get(edgeItem{id: id})
		next.edges.Delete(edgeItem{id: id})
		next.outAdj.Delete(adjItem{vertex: item.data.Src, edge: id})
		next.inAdj.Delete(adjItem{vertex: item.data.Dst, edge: id})
	}
	for id := range delVerts {
		item, _ := s.vertices.Get(vertexItem{id: id})
		next.vertices.Delete(vertexItem{id: id})
		for _, label := range item.data.Labels {
			next.byLabel.Delete(labelItem{label: label, id: id})
		}
	}
	for _, v := range p.AddVertices {
		clone := v.Clone()
		next.vertices.Set(vertexItem{id: clone.ID, data: clone})
		for _, label := range clone.Labels {
			next.byLabel.Set(labelItem{label: label, id: clone.ID})
		}
	}
	for _, e := range p.AddEdges {
		clone := e.Clone()
		next.edges.Set(edgeItem{id: clone.ID, data: clone})
		next.outAdj.Set(adjItem{vertex: clone.Src, edge: clone.ID})
		next.inAdj.Set(adjItem{vertex: clone.Dst, edge: clone.ID})
	}
	for _, u := range p.Updates {
		item, _ := next.vertices.Get(vertexItem{id: u.Vertex})
		clone := item.data.Clone()
		if clone.Props == nil {
			clone.Props = make(map[string]any, 1)
		}
		clone.Props[u.Key] = u.Value
		next.vertices.Set(vertexItem{id: u.Vertex, data: clone})
	}

	return next, nil
}
