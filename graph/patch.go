package graph

import "fmt"

// PropUpdate sets one property on a surviving vertex.
type PropUpdate struct {
	Vertex VertexID `json:"vertex"`
	Key    string   `json:"key"`
	Value  any      `json:"value"`
}

// Patch is a declarative delta between two snapshots. Deletions are sets of
// ids, additions carry full payloads with fresh ids, and updates set single
// properties on vertices that survive the patch.
type Patch struct {
	DeleteVertices []VertexID    `json:"delete_vertices,omitempty"`
	DeleteEdges    []EdgeID      `json:"delete_edges,omitempty"`
	AddVertices    []*VertexData `json:"add_vertices,omitempty"`
	AddEdges       []*EdgeData   `json:"add_edges,omitempty"`
	Updates        []PropUpdate  `json:"updates,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return len(p.DeleteVertices) == 0 &&
		len(p.DeleteEdges) == 0 &&
		len(p.AddVertices) == 0 &&
		len(p.AddEdges) == 0 &&
		len(p.Updates) == 0
}

// Footprint is the set of vertex and edge ids a patch touches. Endpoints of
// added edges count as touched so that merging cannot attach an edge to a
// vertex another patch deletes.
type Footprint struct {
	Vertices map[VertexID]struct{}
	Edges    map[EdgeID]struct{}
}

// NewFootprint returns an empty footprint.
func NewFootprint() Footprint {
	return Footprint{
		Vertices: make(map[VertexID]struct{}),
		Edges:    make(map[EdgeID]struct{}),
	}
}

// AddVertex records a touched vertex id.
func (f Footprint) AddVertex(id VertexID) { f.Vertices[id] = struct{}{} }

// AddEdge records a touched edge id.
func (f Footprint) AddEdge(id EdgeID) { f.Edges[id] = struct{}{} }

// HasVertex reports whether the vertex id is in the footprint.
func (f Footprint) HasVertex(id VertexID) bool {
	_, ok := f.Vertices[id]
	return ok
}

// Empty reports whether the footprint touches nothing.
func (f Footprint) Empty() bool {
	return len(f.Vertices) == 0 && len(f.Edges) == 0
}

// HasEdge reports whether the edge id is in the footprint.
func (f Footprint) HasEdge(id EdgeID) bool {
	_, ok := f.Edges[id]
	return ok
}

// Overlaps reports whether two footprints share any vertex or edge id.
func (f Footprint) Overlaps(other Footprint) bool {
	a, b := f, other
	if len(b.Vertices) < len(a.Vertices) {
		a, b = b, a
	}
	for id := range a.Vertices {
		if _, ok := b.Vertices[id]; ok {
			return true
		}
	}
	if len(f.Edges) > len(other.Edges) {
		f, other = other, f
	}
	for id := range f.Edges {
		if _, ok := other.Edges[id]; ok {
			return true
		}
	}
	return false
}

// Footprint returns the set of ids the patch touches.
func (p Patch) Footprint() Footprint {
	fp := NewFootprint()
	for _, id := range p.DeleteVertices {
		fp.AddVertex(id)
	}
	for _, id := range p.DeleteEdges {
		fp.AddEdge(id)
	}
	for _, v := range p.AddVertices {
		fp.AddVertex(v.ID)
	}
	for _, e := range p.AddEdges {
		fp.AddEdge(e.ID)
		fp.AddVertex(e.Src)
		fp.AddVertex(e.Dst)
	}
	for _, u := range p.Updates {
		fp.AddVertex(u.Vertex)
	}
	return fp
}

// ConflictError reports that two patches touch the same vertex or edge and
// therefore cannot be merged.
type ConflictError struct {
	Vertex VertexID
	Edge   EdgeID
}

func (e *ConflictError) Error() string {
	if e.Vertex != "" {
		return fmt.Sprintf("patch conflict on vertex %s", e.Vertex)
	}
	return fmt.Sprintf("patch conflict on edge %s", e.Edge)
}

// Merge combines two patches with disjoint footprints into one. Merging is
// associative and commutative up to ordering of the underlying slices; the
// result applied once equals the two patches applied in either order. If the
// footprints overlap, Merge returns a *ConflictError naming a shared id.
func Merge(a, b Patch) (Patch, error) {
	fa, fb := a.Footprint(), b.Footprint()
	for id := range fa.Vertices {
		if fb.HasVertex(id) {
			return Patch{}, &ConflictError{Vertex: id}
		}
	}
	for id := range fa.Edges {
		if fb.HasEdge(id) {
			return Patch{}, &ConflictError{Edge: id}
		}
	}
	return Patch{
		DeleteVertices: append(append([]VertexID{}, a.DeleteVertices...), b.DeleteVertices...),
		DeleteEdges:    append(append([]EdgeID{}, a.DeleteEdges...), b.DeleteEdges...),
		AddVertices:    append(append([]*VertexData{}, a.AddVertices...), b.AddVertices...),
		AddEdges:       append(append([]*EdgeData{}, a.AddEdges...), b.AddEdges...),
		Updates:        append(append([]PropUpdate{}, a.Updates...), b.Updates...),
	}, nil
}

// MergeAll folds Merge over a list of patches, failing on the first conflict.
func MergeAll(patches ...Patch) (Patch, error) {
	var merged Patch
	for _, p := range patches {
		next, err := Merge(merged, p)
		if err != nil {
			return Patch{}, err
		}
		merged = next
	}
	return merged, nil
}

// Compose sequences two patches into one: applying the result once equals
// applying a and then b. Unlike Merge the footprints may overlap; b sees the
// world after a, so b may delete what a added, override a's updates, or
// update a vertex a added. For patches p where s.Apply(a) and
// s.Apply(a).Apply(b) succeed, s.Apply(Compose(a, b)) yields the same
// snapshot.
func Compose(a, b Patch) Patch {
	addedVerts := make(map[VertexID]struct{}, len(a.AddVertices))
	for _, v := range a.AddVertices {
		addedVerts[v.ID] = struct{}{}
	}
	addedEdges := make(map[EdgeID]struct{}, len(a.AddEdges))
	for _, e := range a.AddEdges {
		addedEdges[e.ID] = struct{}{}
	}
	bDelVerts := make(map[VertexID]struct{}, len(b.DeleteVertices))
	for _, id := range b.DeleteVertices {
		bDelVerts[id] = struct{}{}
	}
	bDelEdges := make(map[EdgeID]struct{}, len(b.DeleteEdges))
	for _, id := range b.DeleteEdges {
		bDelEdges[id] = struct{}{}
	}

	var out Patch

	// A deletion by b of an element a added cancels out: the element never
	// existed in the base snapshot.
	out.DeleteVertices = append(out.DeleteVertices, a.DeleteVertices...)
	for _, id := range b.DeleteVertices {
		if _, added := addedVerts[id]; !added {
			out.DeleteVertices = append(out.DeleteVertices, id)
		}
	}
	out.DeleteEdges = append(out.DeleteEdges, a.DeleteEdges...)
	for _, id := range b.DeleteEdges {
		if _, added := addedEdges[id]; !added {
			out.DeleteEdges = append(out.DeleteEdges, id)
		}
	}

	// Updates targeting vertices a added fold into the addition payload so
	// the composed patch stays valid to apply in one pass.
	foldInto := make(map[VertexID][]PropUpdate)
	survivingUpdate := func(u PropUpdate) bool {
		if _, deleted := bDelVerts[u.Vertex]; deleted {
			return false
		}
		if _, added := addedVerts[u.Vertex]; added {
			foldInto[u.Vertex] = append(foldInto[u.Vertex], u)
			return false
		}
		return true
	}
	var updates []PropUpdate
	for _, u := range a.Updates {
		if survivingUpdate(u) {
			updates = append(updates, u)
		}
	}
	for _, u := range b.Updates {
		if survivingUpdate(u) {
			updates = append(updates, u)
		}
	}
	// Later writes to the same key win; keep only the last per (vertex, key).
	last := make(map[[2]string]int, len(updates))
	for i, u := range updates {
		last[[2]string{string(u.Vertex), u.Key}] = i
	}
	for i, u := range updates {
		if last[[2]string{string(u.Vertex), u.Key}] == i {
			out.Updates = append(out.Updates, u)
		}
	}

	for _, v := range a.AddVertices {
		if _, deleted := bDelVerts[v.ID]; deleted {
			continue
		}
		folded := foldInto[v.ID]
		if len(folded) == 0 {
			out.AddVertices = append(out.AddVertices, v)
			continue
		}
		clone := v.Clone()
		if clone.Props == nil {
			clone.Props = make(map[string]any, len(folded))
		}
		for _, u := range folded {
			clone.Props[u.Key] = u.Value
		}
		out.AddVertices = append(out.AddVertices, clone)
	}
	out.AddVertices = append(out.AddVertices, b.AddVertices...)

	for _, e := range a.AddEdges {
		if _, deleted := bDelEdges[e.ID]; !deleted {
			out.AddEdges = append(out.AddEdges, e)
		}
	}
	out.AddEdges = append(out.AddEdges, b.AddEdges...)

	return out
}
