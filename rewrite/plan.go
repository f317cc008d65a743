package rewrite

import (
	"github.com/com-junkawasaki/kotoba-sub011/rule"
)

// searchPlan fixes the variable ordering and traversal strategy for one
// pattern before any search starts. Each step binds one node variable;
// every pattern edge is consumed exactly once, either as the traversal that
// enumerates a step's candidates or as a constraint checked as soon as both
// endpoints are bound.
type searchPlan struct {
	steps []planStep
}

// planStep binds one node variable. With via set, candidates come from the
// adjacency of the already-bound anchor endpoint; otherwise candidates come
// from the label index, or a full scan when the node has no label. checks
// lists the pattern edges whose second endpoint is bound by this step.
type planStep struct {
	node rule.PatternNode
	via  *rule.PatternEdge
	// viaOutbound is true when the anchor is via.Src and candidates are
	// destinations of its out-edges; false when the anchor is via.Dst.
	viaOutbound bool
	checks      []rule.PatternEdge
}

// selectivity ranks nodes for seeding and extension. Labeled nodes beat
// unlabeled ones because the label index bounds their candidates; property
// constraints prune further.
func selectivity(n rule.PatternNode) int {
	s := len(n.Props)
	if n.Label != "" {
		s += 4
	}
	return s
}

// planPattern orders the pattern's nodes most-selective-first, preferring
// nodes reachable from the bound set so candidate enumeration can use
// adjacency instead of scans. prebound names node variables the caller has
// already bound (NAC anchors); edges touching them count as connected.
func planPattern(p rule.GraphPattern, prebound map[string]struct{}) *searchPlan {
	plan := &searchPlan{steps: make([]planStep, 0, len(p.Nodes))}

	bound := make(map[string]struct{}, len(p.Nodes)+len(prebound))
	for v := range prebound {
		bound[v] = struct{}{}
	}
	remaining := make([]rule.PatternNode, len(p.Nodes))
	copy(remaining, p.Nodes)
	usedEdges := make([]bool, len(p.Edges))

	// connectingEdge returns an unused edge linking the candidate variable
	// to the bound set, if any.
	connectingEdge := func(v string) (int, bool) {
		for i, e := range p.Edges {
			if usedEdges[i] {
				continue
			}
			if _, srcBound := bound[e.Src]; srcBound && e.Dst == v {
				return i, true
			}
			if _, dstBound := bound[e.Dst]; dstBound && e.Src == v {
				return i, false
			}
		}
		return -1, false
	}

	for len(remaining) > 0 {
		bestIdx := -1
		bestEdge := -1
		bestOutbound := false
		bestScore := -1
		// Two passes folded into one: connected candidates always win over
		// disconnected ones; ties go to higher selectivity, then to
		// declaration order for determinism.
		for i, n := range remaining {
			edgeIdx, outbound := connectingEdge(n.Var)
			connected := edgeIdx >= 0
			score := selectivity(n)
			if connected {
				score += 100
			}
			if score > bestScore {
				bestIdx, bestEdge, bestOutbound, bestScore = i, edgeIdx, outbound, score
			}
		}

		step := planStep{node: remaining[bestIdx]}
		if bestEdge >= 0 {
			e := p.Edges[bestEdge]
			step.via = &e
			step.viaOutbound = bestOutbound
			usedEdges[bestEdge] = true
		}
		bound[step.node.Var] = struct{}{}
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)

		// Any unused edge whose endpoints are now all bound becomes a
		// constraint check at this step.
		for i, e := range p.Edges {
			if usedEdges[i] {
				continue
			}
			_, srcBound := bound[e.Src]
			_, dstBound := bound[e.Dst]
			if srcBound && dstBound {
				step.checks = append(step.checks, e)
				usedEdges[i] = true
			}
		}
		plan.steps = append(plan.steps, step)
	}

	// With no nodes of its own the pattern may still constrain edges among
	// prebound variables (NACs often do). Attach them as a check-only step.
	var leftover []rule.PatternEdge
	for i, e := range p.Edges {
		if !usedEdges[i] {
			leftover = append(leftover, e)
		}
	}
	if len(leftover) > 0 {
		plan.steps = append(plan.steps, planStep{checks: leftover})
	}

	return plan
}

// rulePlan is the cached per-rule search state: one plan for the LHS and
// one per NAC, with the NAC's LHS anchors marked prebound.
type rulePlan struct {
	lhs  *searchPlan
	nacs []*searchPlan
}

func planRule(r *rule.Rule) *rulePlan {
	anchors := make(map[string]struct{}, len(r.LHS.Nodes))
	for _, n := range r.LHS.Nodes {
		anchors[n.Var] = struct{}{}
	}
	rp := &rulePlan{
		lhs:  planPattern(r.LHS, nil),
		nacs: make([]*searchPlan, len(r.NACs)),
	}
	for i, nac := range r.NACs {
		rp.nacs[i] = planPattern(nac, anchors)
	}
	return rp
}
