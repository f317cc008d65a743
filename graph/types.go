package graph

import (
	"reflect"
	"slices"

	"github.com/google/uuid"
)

// VertexID identifies a vertex within a snapshot.
type VertexID string

// EdgeID identifies an edge within a snapshot.
type EdgeID string

// NewVertexID returns a fresh random vertex id.
func NewVertexID() VertexID {
	return VertexID(uuid.NewString())
}

// NewEdgeID returns a fresh random edge id.
func NewEdgeID() EdgeID {
	return EdgeID(uuid.NewString())
}

// VertexData holds the labels and properties of a single vertex.
type VertexData struct {
	ID     VertexID       `json:"id"`
	Labels []string       `json:"labels,omitempty"`
	Props  map[string]any `json:"props,omitempty"`
}

// HasLabel reports whether the vertex carries the given label.
func (v *VertexData) HasLabel(label string) bool {
	return slices.Contains(v.Labels, label)
}

// Prop returns the named property value and whether it is present.
func (v *VertexData) Prop(key string) (any, bool) {
	val, ok := v.Props[key]
	return val, ok
}

// Clone returns a deep copy of the vertex data. Property values are assumed
// to be JSON-style scalars, maps and slices.
func (v *VertexData) Clone() *VertexData {
	return &VertexData{
		ID:     v.ID,
		Labels: slices.Clone(v.Labels),
		Props:  cloneProps(v.Props),
	}
}

// EdgeData holds a directed, labelled edge between two vertices.
type EdgeData struct {
	ID    EdgeID         `json:"id"`
	Src   VertexID       `json:"src"`
	Dst   VertexID       `json:"dst"`
	Label string         `json:"label"`
	Props map[string]any `json:"props,omitempty"`
}

// Clone returns a deep copy of the edge data.
func (e *EdgeData) Clone() *EdgeData {
	return &EdgeData{
		ID:    e.ID,
		Src:   e.Src,
		Dst:   e.Dst,
		Label: e.Label,
		Props: cloneProps(e.Props),
	}
}

// ValueEqual compares two property values for equality. Values are expected
// to be JSON-decoded Go values (bool, float64, string, nil, []any,
// map[string]any), for which deep equality matches value equality.
func ValueEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

func cloneProps(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}
