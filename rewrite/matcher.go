package rewrite

import (
	"context"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/com-junkawasaki/kotoba-sub011/catalog"
	"github.com/com-junkawasaki/kotoba-sub011/errors"
	"github.com/com-junkawasaki/kotoba-sub011/graph"
	"github.com/com-junkawasaki/kotoba-sub011/metric"
	"github.com/com-junkawasaki/kotoba-sub011/rule"
)

// ctxCheckInterval is how many candidates the search examines between
// context checks.
const ctxCheckInterval = 256

// MatcherConfig bounds one FindMatches call. Zero values take the defaults.
type MatcherConfig struct {
	// MaxMatches caps the number of matches returned per call.
	MaxMatches int `json:"max_matches"`
	// MaxCandidates caps the total candidate vertices the backtracking
	// search may examine per call, NAC sub-searches included. When the
	// budget runs out the matches found so far are returned and a warning
	// is logged.
	MaxCandidates int `json:"max_candidates"`
	// PlanCacheSize is the number of rule search plans kept in the LRU.
	PlanCacheSize int `json:"plan_cache_size"`
	// Timeout bounds one FindMatches call when positive. A tighter caller
	// deadline still wins.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// DefaultMatcherConfig returns the default limits.
func DefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{
		MaxMatches:    1024,
		MaxCandidates: 1 << 20,
		PlanCacheSize: 128,
	}
}

func (c MatcherConfig) withDefaults() MatcherConfig {
	def := DefaultMatcherConfig()
	if c.MaxMatches <= 0 {
		c.MaxMatches = def.MaxMatches
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = def.MaxCandidates
	}
	if c.PlanCacheSize <= 0 {
		c.PlanCacheSize = def.PlanCacheSize
	}
	return c
}

// Matcher finds all embeddings of a rule's LHS in a graph view. It is
// stateless apart from the plan cache and safe for concurrent use.
type Matcher struct {
	guards  *rule.GuardRegistry
	cfg     MatcherConfig
	plans   *lru.Cache[catalog.Ref, *rulePlan]
	logger  *slog.Logger
	metrics *matcherMetrics
}

// MatcherOption configures optional matcher collaborators.
type MatcherOption func(*Matcher)

// WithMatcherMetrics registers the matcher's metrics with the registry.
func WithMatcherMetrics(registry *metric.MetricsRegistry) MatcherOption {
	return func(m *Matcher) {
		metrics, err := newMatcherMetrics(registry)
		if err != nil {
			m.logger.Warn("matcher metrics disabled", "error", err)
			return
		}
		m.metrics = metrics
	}
}

// NewMatcher builds a matcher. A nil guard registry gets a fresh one with
// the built-in guards; a nil logger falls back to slog.Default().
func NewMatcher(guards *rule.GuardRegistry, cfg MatcherConfig, logger *slog.Logger, opts ...MatcherOption) (*Matcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if guards == nil {
		guards = rule.NewGuardRegistry(logger)
	}
	cfg = cfg.withDefaults()
	plans, err := lru.New[catalog.Ref, *rulePlan](cfg.PlanCacheSize)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Matcher", "New", "create plan cache")
	}
	m := &Matcher{
		guards: guards,
		cfg:    cfg,
		plans:  plans,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Guards returns the guard registry the matcher evaluates guards through.
func (m *Matcher) Guards() *rule.GuardRegistry { return m.guards }

// FindMatches returns every embedding of the rule's LHS in the view, in
// deterministic discovery order. Each match satisfies the LHS node and edge
// constraints, extends to no NAC, and passes every guard. No match is an
// empty slice, not an error; only context cancellation errors out.
func (m *Matcher) FindMatches(ctx context.Context, view graph.View, r *rule.Rule) ([]Match, error) {
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}
	timer := m.metrics.startSearch()
	plan := m.planFor(r)
	s := &searcher{
		ctx:    ctx,
		view:   view,
		r:      r,
		plan:   plan,
		guards: m.guards,
		limits: m.cfg,
		nodes:  make(map[string]graph.VertexID, len(r.LHS.Nodes)),
		edges:  make(map[string]graph.EdgeID),
		used:   make(map[graph.VertexID]struct{}, len(r.LHS.Nodes)),
		score:  patternScore(r.LHS),
	}
	s.step(0)
	if s.err != nil {
		m.metrics.recordSearch(timer, r.Name, 0, false)
		return nil, errors.Wrap(s.err, "Matcher", "FindMatches", "enumerate candidates")
	}
	if s.exhausted {
		m.logger.Warn("candidate budget exhausted, returning partial matches",
			"rule", r.Name, "budget", m.cfg.MaxCandidates, "matches", len(s.out))
		m.metrics.recordBudgetExhausted(r.Name)
	}
	m.metrics.recordSearch(timer, r.Name, len(s.out), true)
	return s.out, nil
}

// planFor resolves the cached search plan for a rule, keyed by the rule's
// content-addressed ref so equal rules share a plan across catalogs.
func (m *Matcher) planFor(r *rule.Rule) *rulePlan {
	ref, _, err := catalog.RuleRef(r)
	if err != nil {
		// A rule that cannot be canonicalized still matches; it just pays
		// for a fresh plan on every call.
		m.logger.Warn("rule not canonicalizable, planning without cache", "rule", r.Name, "error", err)
		return planRule(r)
	}
	if plan, ok := m.plans.Get(ref); ok {
		m.metrics.recordPlanCache(true)
		return plan
	}
	m.metrics.recordPlanCache(false)
	plan := planRule(r)
	m.plans.Add(ref, plan)
	return plan
}

// patternScore is the match tie-break: the total selectivity of the LHS,
// so more constrained rules rank above looser ones when matches from
// several rules are pooled.
func patternScore(p rule.GraphPattern) float64 {
	s := float64(len(p.Edges))
	for _, n := range p.Nodes {
		s += float64(selectivity(n))
	}
	return s
}

// searcher is the state of one backtracking search. It binds plan steps in
// order, undoing each binding on backtrack, and collects complete bindings
// that survive NAC and guard filtering.
type searcher struct {
	ctx    context.Context
	view   graph.View
	r      *rule.Rule
	plan   *rulePlan
	guards *rule.GuardRegistry
	limits MatcherConfig

	nodes map[string]graph.VertexID
	edges map[string]graph.EdgeID
	used  map[graph.VertexID]struct{}
	score float64

	out        []Match
	candidates int
	exhausted  bool
	stop       bool
	err        error
}

// budget consumes one candidate from the search budget and reports whether
// the search may continue.
func (s *searcher) budget() bool {
	s.candidates++
	if s.candidates%ctxCheckInterval == 0 {
		if err := s.ctx.Err(); err != nil {
			s.err = err
			s.stop = true
			return false
		}
	}
	if s.candidates > s.limits.MaxCandidates {
		s.exhausted = true
		s.stop = true
		return false
	}
	return true
}

func (s *searcher) step(i int) {
	if s.stop {
		return
	}
	if i == len(s.plan.lhs.steps) {
		s.emit()
		return
	}
	st := s.plan.lhs.steps[i]

	// Check-only step: every node is bound, verify the leftover edges.
	if st.node.Var == "" {
		if undo, ok := s.applyChecks(st.checks); ok {
			s.step(i + 1)
			undo()
		}
		return
	}

	// A variable bound by an outer search (NAC anchors) keeps its image;
	// this step only re-checks the node constraints and its edges against
	// that image. The binding itself must survive backtracking.
	if id, bound := s.nodes[st.node.Var]; bound {
		if !s.budget() {
			return
		}
		v, ok := s.view.Vertex(id)
		if !ok || !nodeConstraintsOK(st.node, v) {
			return
		}
		checks := st.checks
		if st.via != nil {
			checks = append([]rule.PatternEdge{*st.via}, st.checks...)
		}
		if undo, ok := s.applyChecks(checks); ok {
			s.step(i + 1)
			undo()
		}
		return
	}

	s.forEachCandidate(st, func(v *graph.VertexData, via *graph.EdgeData) {
		s.nodes[st.node.Var] = v.ID
		s.used[v.ID] = struct{}{}
		boundVia := false
		if via != nil && st.via.Var != "" {
			s.edges[st.via.Var] = via.ID
			boundVia = true
		}
		if undo, ok := s.applyChecks(st.checks); ok {
			s.step(i + 1)
			undo()
		}
		if boundVia {
			delete(s.edges, st.via.Var)
		}
		delete(s.used, v.ID)
		delete(s.nodes, st.node.Var)
	})
}

// candidateOK applies the node's own constraints plus injectivity.
func (s *searcher) candidateOK(n rule.PatternNode, v *graph.VertexData) bool {
	if _, taken := s.used[v.ID]; taken {
		return false
	}
	return nodeConstraintsOK(n, v)
}

func nodeConstraintsOK(n rule.PatternNode, v *graph.VertexData) bool {
	if n.Label != "" && !v.HasLabel(n.Label) {
		return false
	}
	for key, want := range n.Props {
		got, ok := v.Prop(key)
		if !ok || !graph.ValueEqual(want, got) {
			return false
		}
	}
	return true
}

// forEachCandidate enumerates candidate vertices for a free step in
// deterministic order, de-duplicated per vertex, and invokes fn for each
// acceptable one. Enumeration stops when the search is told to stop.
func (s *searcher) forEachCandidate(st planStep, fn func(v *graph.VertexData, via *graph.EdgeData)) {
	if st.via != nil {
		anchorVar := st.via.Dst
		if st.viaOutbound {
			anchorVar = st.via.Src
		}
		anchorID, ok := s.nodes[anchorVar]
		if !ok {
			// Stale plan against a malformed rule; fail closed to no match.
			return
		}
		seen := make(map[graph.VertexID]struct{})
		scan := func(e *graph.EdgeData) bool {
			if !s.budget() {
				return false
			}
			if st.via.Label != "" && e.Label != st.via.Label {
				return true
			}
			otherID := e.Src
			if st.viaOutbound {
				otherID = e.Dst
			}
			if _, dup := seen[otherID]; dup {
				return true
			}
			seen[otherID] = struct{}{}
			v, ok := s.view.Vertex(otherID)
			if !ok || !s.candidateOK(st.node, v) {
				return true
			}
			fn(v, e)
			return !s.stop
		}
		if st.viaOutbound {
			s.view.OutEdges(anchorID, scan)
		} else {
			s.view.InEdges(anchorID, scan)
		}
		return
	}

	scan := func(v *graph.VertexData) bool {
		if !s.budget() {
			return false
		}
		if !s.candidateOK(st.node, v) {
			return true
		}
		fn(v, nil)
		return !s.stop
	}
	if st.node.Label != "" {
		s.view.VerticesByLabel(st.node.Label, scan)
	} else {
		s.view.Vertices(scan)
	}
}

// applyChecks verifies constraint edges whose endpoints are now bound and
// records the edge bindings for named ones. The returned undo removes
// exactly the bindings this call added; ok is false when any required edge
// is missing.
func (s *searcher) applyChecks(checks []rule.PatternEdge) (undo func(), ok bool) {
	var added []string
	undo = func() {
		for _, v := range added {
			delete(s.edges, v)
		}
	}
	for _, e := range checks {
		src, srcOK := s.nodes[e.Src]
		dst, dstOK := s.nodes[e.Dst]
		if !srcOK || !dstOK {
			undo()
			return nil, false
		}
		var hit *graph.EdgeData
		s.view.EdgesBetween(src, dst, e.Label, func(cand *graph.EdgeData) bool {
			hit = cand
			return false
		})
		if hit == nil {
			undo()
			return nil, false
		}
		if e.Var != "" {
			s.edges[e.Var] = hit.ID
			added = append(added, e.Var)
		}
	}
	return undo, true
}

// emit records the current complete binding as a match if no NAC extends it
// and every guard holds.
func (s *searcher) emit() {
	for i := range s.plan.nacs {
		if s.nacSatisfiable(i) {
			return
		}
		if s.stop {
			return
		}
	}
	for _, g := range s.r.Guards {
		if !s.guards.Evaluate(s.view, g, s.nodes) {
			return
		}
	}
	m := Match{Rule: s.r.Name, Score: s.score, Nodes: make(map[string]graph.VertexID, len(s.nodes))}
	for v, id := range s.nodes {
		m.Nodes[v] = id
	}
	if len(s.edges) > 0 {
		m.Edges = make(map[string]graph.EdgeID, len(s.edges))
		for v, id := range s.edges {
			m.Edges[v] = id
		}
	}
	s.out = append(s.out, m)
	if len(s.out) >= s.limits.MaxMatches {
		s.stop = true
	}
}

// nacSatisfiable runs an existence search for one NAC as an injective
// extension of the current binding. True means the NAC fires and the
// candidate match must be rejected.
func (s *searcher) nacSatisfiable(idx int) bool {
	// The nested search emits raw bindings: the bare rule carries no NACs
	// or guards, so neither runs against a partial NAC extension.
	nested := &searcher{
		ctx:    s.ctx,
		view:   s.view,
		r:      &rule.Rule{Name: s.r.Name},
		plan:   &rulePlan{lhs: s.plan.nacs[idx]},
		guards: s.guards,
		limits: MatcherConfig{MaxMatches: 1, MaxCandidates: s.limits.MaxCandidates - s.candidates},
		nodes:  make(map[string]graph.VertexID, len(s.nodes)+2),
		edges:  make(map[string]graph.EdgeID),
		used:   make(map[graph.VertexID]struct{}, len(s.used)+2),
	}
	for v, id := range s.nodes {
		nested.nodes[v] = id
	}
	for id := range s.used {
		nested.used[id] = struct{}{}
	}
	nested.step(0)

	s.candidates += nested.candidates
	if nested.err != nil {
		s.err = nested.err
		s.stop = true
	}
	if nested.exhausted {
		s.exhausted = true
		s.stop = true
	}
	return len(nested.out) > 0
}
