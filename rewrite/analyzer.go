package rewrite

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/com-junkawasaki/kotoba-sub011/graph"
	"github.com/com-junkawasaki/kotoba-sub011/rule"
)

// Regions describes what one match touches and observes, for the static
// independence test.
//
// Writes holds the ids the match's patch will delete, update, or attach new
// elements to. Reads holds every concrete id the match is bound to.
// Sensitive holds the neighborhood the rule's NACs and guards inspect, so a
// write there by another match could flip this match's applicability.
// Universal marks a NAC with a component not anchored to the match, which
// observes the whole graph.
type Regions struct {
	Writes    graph.Footprint
	Reads     graph.Footprint
	Sensitive graph.Footprint
	Universal bool
}

// Analyzer decides which matches of one rule can be applied in the same
// batch without re-matching in between. The test is conservative: it may
// call two matches dependent when they are not, but never the reverse.
type Analyzer struct {
	logger *slog.Logger
}

// NewAnalyzer builds an analyzer. A nil logger falls back to slog.Default().
func NewAnalyzer(logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{logger: logger}
}

// Regions computes the write, read and sensitive regions of one match.
func (a *Analyzer) Regions(view graph.View, r *rule.Rule, m Match) Regions {
	reg := Regions{
		Writes:    graph.NewFootprint(),
		Reads:     graph.NewFootprint(),
		Sensitive: graph.NewFootprint(),
	}

	for _, id := range m.Nodes {
		reg.Reads.AddVertex(id)
	}
	for _, id := range m.Edges {
		reg.Reads.AddEdge(id)
	}

	// Deletions.
	for _, n := range r.LHS.Nodes {
		if r.Context.HasNodeVar(n.Var) {
			continue
		}
		if id, ok := m.Nodes[n.Var]; ok {
			reg.Writes.AddVertex(id)
		}
	}
	for _, e := range r.LHS.Edges {
		id, ok := concreteEdge(view, e, m)
		if !ok {
			continue
		}
		reg.Reads.AddEdge(id)
		if !r.Context.HasEdge(e) {
			reg.Writes.AddEdge(id)
		}
	}

	// Potential property updates. Whether a key actually differs depends on
	// the concrete vertex, so any context variable the RHS re-states
	// properties for counts as written.
	for _, kn := range r.Context.Nodes {
		rn, ok := r.RHS.NodeByVar(kn.Var)
		if !ok || len(rn.Props) == 0 {
			continue
		}
		if id, bound := m.Nodes[kn.Var]; bound {
			reg.Writes.AddVertex(id)
		}
	}

	// Attachment points of created edges.
	for _, e := range r.RHS.Edges {
		if r.Context.HasEdge(e) {
			continue
		}
		if id, bound := m.Nodes[e.Src]; bound {
			reg.Writes.AddVertex(id)
		}
		if id, bound := m.Nodes[e.Dst]; bound {
			reg.Writes.AddVertex(id)
		}
	}

	for _, nac := range r.NACs {
		anchors, radius, universal := nacShape(r, nac)
		if universal {
			reg.Universal = true
		}
		seeds := make([]graph.VertexID, 0, len(anchors))
		for _, v := range anchors {
			if id, ok := m.Nodes[v]; ok {
				seeds = append(seeds, id)
			}
		}
		growNeighborhood(view, seeds, radius, reg.Sensitive)
	}

	// Guards inspect their argument vertices; the degree guards also count
	// incident edges, so take one hop around every vertex argument.
	for _, g := range r.Guards {
		for _, arg := range g.Args {
			if id, ok := m.Nodes[arg]; ok {
				growNeighborhood(view, []graph.VertexID{id}, 1, reg.Sensitive)
			}
		}
	}

	return reg
}

// Independent reports whether two matches with the given regions can join
// the same batch: disjoint writes, and neither writing into what the other
// reads or is sensitive to.
func (a *Analyzer) Independent(x, y Regions) bool {
	if x.Universal && !y.Writes.Empty() {
		return false
	}
	if y.Universal && !x.Writes.Empty() {
		return false
	}
	if x.Writes.Overlaps(y.Writes) {
		return false
	}
	if x.Writes.Overlaps(y.Reads) || x.Writes.Overlaps(y.Sensitive) {
		return false
	}
	if y.Writes.Overlaps(x.Reads) || y.Writes.Overlaps(x.Sensitive) {
		return false
	}
	return true
}

// Partition groups match indexes into dependency components: matches in
// different groups are pairwise independent, matches in one group are
// connected by conflicts. Groups and their members come back sorted by
// index, so the result is deterministic. The pairwise test is quadratic in
// the match count, which the matcher's MaxMatches cap keeps affordable.
func (a *Analyzer) Partition(view graph.View, r *rule.Rule, matches []Match) [][]int {
	if len(matches) == 0 {
		return nil
	}
	regions := make([]Regions, len(matches))
	for i, m := range matches {
		regions[i] = a.Regions(view, r, m)
	}

	g := simple.NewUndirectedGraph()
	for i := range matches {
		g.AddNode(simple.Node(i))
	}
	for i := 0; i < len(matches); i++ {
		for j := i + 1; j < len(matches); j++ {
			if !a.Independent(regions[i], regions[j]) {
				g.SetEdge(simple.Edge{F: simple.Node(i), T: simple.Node(j)})
			}
		}
	}

	comps := topo.ConnectedComponents(g)
	groups := make([][]int, 0, len(comps))
	for _, comp := range comps {
		group := make([]int, 0, len(comp))
		for _, n := range comp {
			group = append(group, int(n.ID()))
		}
		sort.Ints(group)
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
	return groups
}

// nacShape classifies one NAC against the rule's LHS: which LHS variables
// anchor it, how many hops its furthest node sits from an anchor, and
// whether it has a component no anchor reaches. An unanchored component is
// an existence check over the whole graph.
func nacShape(r *rule.Rule, nac rule.NAC) (anchors []string, radius int, universal bool) {
	mentioned := make(map[string]struct{}, len(nac.Nodes))
	for _, n := range nac.Nodes {
		mentioned[n.Var] = struct{}{}
	}
	adj := make(map[string][]string, len(nac.Edges)*2)
	for _, e := range nac.Edges {
		mentioned[e.Src] = struct{}{}
		mentioned[e.Dst] = struct{}{}
		adj[e.Src] = append(adj[e.Src], e.Dst)
		adj[e.Dst] = append(adj[e.Dst], e.Src)
	}

	depth := make(map[string]int, len(mentioned))
	var queue []string
	for v := range mentioned {
		if r.LHS.HasNodeVar(v) {
			anchors = append(anchors, v)
			depth[v] = 0
			queue = append(queue, v)
		}
	}
	sort.Strings(anchors)
	sort.Strings(queue)

	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, nb := range adj[v] {
			if _, seen := depth[nb]; seen {
				continue
			}
			depth[nb] = depth[v] + 1
			if depth[nb] > radius {
				radius = depth[nb]
			}
			queue = append(queue, nb)
		}
	}
	for v := range mentioned {
		if _, seen := depth[v]; !seen {
			universal = true
			break
		}
	}
	return anchors, radius, universal
}

// growNeighborhood adds to fp everything within the given number of hops of
// the seed vertices, edges included, ignoring direction.
func growNeighborhood(view graph.View, seeds []graph.VertexID, radius int, fp graph.Footprint) {
	frontier := make([]graph.VertexID, 0, len(seeds))
	for _, id := range seeds {
		fp.AddVertex(id)
		frontier = append(frontier, id)
	}
	for hop := 0; hop < radius && len(frontier) > 0; hop++ {
		var next []graph.VertexID
		visit := func(e *graph.EdgeData) bool {
			fp.AddEdge(e.ID)
			for _, nb := range [...]graph.VertexID{e.Src, e.Dst} {
				if !fp.HasVertex(nb) {
					fp.AddVertex(nb)
					next = append(next, nb)
				}
			}
			return true
		}
		for _, id := range frontier {
			view.OutEdges(id, visit)
			view.InEdges(id, visit)
		}
		frontier = next
	}
}
