package rewrite

import (
	"log/slog"
	"sort"

	"github.com/com-junkawasaki/kotoba-sub011/graph"
	"github.com/com-junkawasaki/kotoba-sub011/rule"
)

// Builder turns one match into a concrete patch. It is a pure translation:
// no side effect beyond the returned value, and no error path. A match and
// rule that disagree structurally signal an internal bug, so the builder
// logs a warning and returns an empty patch instead of failing the caller.
type Builder struct {
	logger      *slog.Logger
	freshVertex func() graph.VertexID
	freshEdge   func() graph.EdgeID
}

// BuilderOption configures id generation, mainly for deterministic tests.
type BuilderOption func(*Builder)

// WithVertexIDs overrides the generator for created vertex ids.
func WithVertexIDs(fn func() graph.VertexID) BuilderOption {
	return func(b *Builder) { b.freshVertex = fn }
}

// WithEdgeIDs overrides the generator for created edge ids.
func WithEdgeIDs(fn func() graph.EdgeID) BuilderOption {
	return func(b *Builder) { b.freshEdge = fn }
}

// NewBuilder builds a patch builder. A nil logger falls back to slog.Default().
func NewBuilder(logger *slog.Logger, opts ...BuilderOption) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Builder{
		logger:      logger,
		freshVertex: graph.NewVertexID,
		freshEdge:   graph.NewEdgeID,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildPatch translates a match of the rule's LHS into the patch that
// realizes the rule's RHS at that location.
//
// Variables absent from the context are deleted (LHS side) or created with
// fresh ids (RHS side). Context variables survive and get a property update
// for every RHS key whose value differs from the matched vertex. Deleting a
// vertex does not cascade to its edges; a rule must delete them explicitly
// or the patch is rejected when applied.
func (b *Builder) BuildPatch(view graph.View, r *rule.Rule, m Match) graph.Patch {
	var p graph.Patch

	// Deletions: LHS variables outside the context.
	delVerts := make(map[graph.VertexID]struct{})
	for _, n := range r.LHS.Nodes {
		if r.Context.HasNodeVar(n.Var) {
			continue
		}
		id, ok := m.Nodes[n.Var]
		if !ok {
			return b.inconsistent(r, "lhs variable not bound", "var", n.Var)
		}
		if _, exists := view.Vertex(id); !exists {
			return b.inconsistent(r, "mapped vertex gone", "var", n.Var, "vertex", id)
		}
		if _, dup := delVerts[id]; !dup {
			delVerts[id] = struct{}{}
			p.DeleteVertices = append(p.DeleteVertices, id)
		}
	}
	delEdges := make(map[graph.EdgeID]struct{})
	for _, e := range r.LHS.Edges {
		if r.Context.HasEdge(e) {
			continue
		}
		id, ok := concreteEdge(view, e, m)
		if !ok {
			return b.inconsistent(r, "mapped edge gone", "src", e.Src, "dst", e.Dst, "label", e.Label)
		}
		if _, dup := delEdges[id]; !dup {
			delEdges[id] = struct{}{}
			p.DeleteEdges = append(p.DeleteEdges, id)
		}
	}

	// Additions: RHS variables outside the context, with fresh ids. Created
	// vertices join the binding so created edges can attach to them.
	bound := make(map[string]graph.VertexID, len(m.Nodes))
	for v, id := range m.Nodes {
		bound[v] = id
	}
	for _, n := range r.RHS.Nodes {
		if r.Context.HasNodeVar(n.Var) {
			continue
		}
		v := &graph.VertexData{ID: b.freshVertex(), Props: clonePatternProps(n.Props)}
		if n.Label != "" {
			v.Labels = []string{n.Label}
		}
		bound[n.Var] = v.ID
		p.AddVertices = append(p.AddVertices, v)
	}
	for _, e := range r.RHS.Edges {
		if r.Context.HasEdge(e) {
			continue
		}
		src, srcOK := bound[e.Src]
		dst, dstOK := bound[e.Dst]
		if !srcOK || !dstOK {
			return b.inconsistent(r, "rhs edge endpoint not bound", "src", e.Src, "dst", e.Dst)
		}
		p.AddEdges = append(p.AddEdges, &graph.EdgeData{
			ID:    b.freshEdge(),
			Src:   src,
			Dst:   dst,
			Label: e.Label,
		})
	}

	// Updates: property deltas on context variables, RHS values winning.
	// Keys the RHS does not mention keep their current values.
	for _, kn := range r.Context.Nodes {
		rn, ok := r.RHS.NodeByVar(kn.Var)
		if !ok {
			return b.inconsistent(r, "context variable missing from rhs", "var", kn.Var)
		}
		id, ok := m.Nodes[kn.Var]
		if !ok {
			return b.inconsistent(r, "context variable not bound", "var", kn.Var)
		}
		cur, ok := view.Vertex(id)
		if !ok {
			return b.inconsistent(r, "mapped vertex gone", "var", kn.Var, "vertex", id)
		}
		keys := make([]string, 0, len(rn.Props))
		for key := range rn.Props {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			want := rn.Props[key]
			got, has := cur.Prop(key)
			if has && graph.ValueEqual(got, want) {
				continue
			}
			p.Updates = append(p.Updates, graph.PropUpdate{Vertex: id, Key: key, Value: want})
		}
	}

	return p
}

// concreteEdge resolves a pattern edge to the concrete edge id it matched.
// Named edges come from the match directly; anonymous ones are re-derived by
// adjacency lookup, taking the lowest edge id between the mapped endpoints.
func concreteEdge(view graph.View, e rule.PatternEdge, m Match) (graph.EdgeID, bool) {
	if e.Var != "" {
		if id, ok := m.Edges[e.Var]; ok {
			if _, exists := view.Edge(id); exists {
				return id, true
			}
			return "", false
		}
	}
	src, srcOK := m.Nodes[e.Src]
	dst, dstOK := m.Nodes[e.Dst]
	if !srcOK || !dstOK {
		return "", false
	}
	var id graph.EdgeID
	view.EdgesBetween(src, dst, e.Label, func(cand *graph.EdgeData) bool {
		id = cand.ID
		return false
	})
	return id, id != ""
}

// inconsistent logs the match/rule disagreement and yields the empty patch.
func (b *Builder) inconsistent(r *rule.Rule, reason string, args ...any) graph.Patch {
	b.logger.Warn("match does not fit rule, emitting empty patch",
		append([]any{"rule", r.Name, "reason", reason}, args...)...)
	return graph.Patch{}
}

func clonePatternProps(props map[string]any) map[string]any {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
