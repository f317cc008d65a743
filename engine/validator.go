package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/agext/levenshtein"

	"github.com/com-junkawasaki/kotoba-sub011/catalog"
	"github.com/com-junkawasaki/kotoba-sub011/rule"
	"github.com/com-junkawasaki/kotoba-sub011/strategy"
	"github.com/com-junkawasaki/kotoba-sub011/workflow"
)

// Validator pre-flights strategy trees against the catalog and the guard,
// activity and predicate registries. Structural defects that would fail at
// runtime become errors; references the engine cannot resolve yet become
// warnings, since rules and executors may be registered in any order.
type Validator struct {
	catalog    *catalog.Catalog
	guards     *rule.GuardRegistry
	activities *workflow.ActivityRegistry
	predicates *workflow.PredicateRegistry
	maxDepth   int
	logger     *slog.Logger
}

// NewValidator builds a validator over the given registries. maxDepth
// mirrors the runner's nesting limit; zero disables the depth check.
func NewValidator(cat *catalog.Catalog, guards *rule.GuardRegistry,
	activities *workflow.ActivityRegistry, predicates *workflow.PredicateRegistry,
	maxDepth int, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		catalog:    cat,
		guards:     guards,
		activities: activities,
		predicates: predicates,
		maxDepth:   maxDepth,
		logger:     logger,
	}
}

// ValidationResult contains the results of strategy validation.
type ValidationResult struct {
	Status   string            `json:"validation_status"` // "valid", "warnings", "errors"
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`

	// Ops counts the operators visited, Depth the deepest nesting level.
	Ops   int `json:"ops"`
	Depth int `json:"depth"`

	// Rules and Activities list the referenced definitions, resolved or not.
	Rules      []string `json:"rules,omitempty"`
	Activities []string `json:"activities,omitempty"`
}

// ValidationIssue represents a single validation problem.
type ValidationIssue struct {
	Type        string   `json:"type"`     // "unknown_rule", "bad_wait", ...
	Severity    string   `json:"severity"` // "error", "warning"
	Path        string   `json:"path"`     // operator position, e.g. "$.seq[1].saga.main"
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func (r *ValidationResult) addError(typ, path, msg string) {
	r.Errors = append(r.Errors, ValidationIssue{Type: typ, Severity: "error", Path: path, Message: msg})
}

func (r *ValidationResult) addWarning(typ, path, msg string, suggestions ...string) {
	r.Warnings = append(r.Warnings, ValidationIssue{
		Type: typ, Severity: "warning", Path: path, Message: msg, Suggestions: suggestions,
	})
}

func (r *ValidationResult) finish() {
	switch {
	case len(r.Errors) > 0:
		r.Status = "errors"
	case len(r.Warnings) > 0:
		r.Status = "warnings"
	default:
		r.Status = "valid"
	}
}

// ValidateStrategy walks the tree once, expanding registered subworkflows.
// The returned error covers only validator failures; findings live in the
// result.
func (v *Validator) ValidateStrategy(ctx context.Context, op strategy.Op) (*ValidationResult, error) {
	result := &ValidationResult{
		Status:   "valid",
		Errors:   []ValidationIssue{},
		Warnings: []ValidationIssue{},
	}
	w := &walker{
		v:       v,
		ctx:     ctx,
		result:  result,
		rules:   make(map[string]struct{}),
		acts:    make(map[string]struct{}),
		visited: make(map[string]struct{}),
	}
	w.walk(op, "$", 1)

	result.Rules = sortedKeys(w.rules)
	result.Activities = sortedKeys(w.acts)
	result.finish()

	v.logger.Debug("strategy validated",
		"status", result.Status,
		"ops", result.Ops,
		"errors", len(result.Errors),
		"warnings", len(result.Warnings))
	return result, nil
}

// walker carries the per-validation state of one tree traversal.
type walker struct {
	v       *Validator
	ctx     context.Context
	result  *ValidationResult
	rules   map[string]struct{}
	acts    map[string]struct{}
	visited map[string]struct{} // subworkflow targets already expanded
}

func (w *walker) walk(op strategy.Op, path string, depth int) {
	if op == nil {
		w.result.addError("nil_op", path, "operator is nil")
		return
	}
	w.result.Ops++
	if depth > w.result.Depth {
		w.result.Depth = depth
	}
	if w.v.maxDepth > 0 && depth > w.v.maxDepth {
		w.result.addError("max_depth_exceeded", path,
			fmt.Sprintf("nesting depth %d exceeds the runner limit %d", depth, w.v.maxDepth))
		return
	}

	switch o := op.(type) {
	case *strategy.Once:
		w.checkOrder(o.Order, path)
		w.checkRule(o.Rule, path)
	case *strategy.Exhaust:
		w.checkOrder(o.Order, path)
		w.checkIterations(o.MaxIterations, path)
		w.checkRule(o.Rule, path)
	case *strategy.While:
		w.checkOrder(o.Order, path)
		w.checkIterations(o.MaxIterations, path)
		w.checkPredicate(o.Pred, path)
		w.checkRule(o.Rule, path)
	case *strategy.Seq:
		if len(o.Ops) == 0 {
			w.result.addWarning("empty_composite", path, "seq has no sub-strategies and is a no-op")
		}
		for i, sub := range o.Ops {
			w.walk(sub, fmt.Sprintf("%s.seq[%d]", path, i), depth+1)
		}
	case *strategy.Choice:
		if len(o.Ops) == 0 {
			w.result.addWarning("empty_composite", path, "choice has no sub-strategies and is a no-op")
		}
		for i, sub := range o.Ops {
			w.walk(sub, fmt.Sprintf("%s.choice[%d]", path, i), depth+1)
		}
	case *strategy.Priority:
		if len(o.Entries) == 0 {
			w.result.addWarning("empty_composite", path, "priority has no entries and is a no-op")
		}
		for i, entry := range o.Entries {
			w.walk(entry.Op, fmt.Sprintf("%s.priority[%d]", path, i), depth+1)
		}
	case *strategy.Parallel:
		w.checkParallel(o, path)
		for i, b := range o.Branches {
			w.walk(b, fmt.Sprintf("%s.parallel[%d]", path, i), depth+1)
		}
	case *strategy.Decision:
		for i, br := range o.Conditions {
			sub := fmt.Sprintf("%s.decision[%d]", path, i)
			w.checkPredicate(br.Condition, sub)
			w.walk(br.Branch, sub, depth+1)
		}
		if o.Default != nil {
			w.walk(o.Default, path+".decision.default", depth+1)
		}
	case *strategy.Wait:
		w.checkWait(o, path)
	case *strategy.Saga:
		if o.Main == nil {
			w.result.addError("nil_op", path+".saga.main", "saga has no main strategy")
		} else {
			w.walk(o.Main, path+".saga.main", depth+1)
		}
		if o.Compensation == nil {
			w.result.addWarning("no_compensation", path,
				"saga has no compensation and only re-raises failures")
		} else {
			w.walk(o.Compensation, path+".saga.compensation", depth+1)
		}
	case *strategy.Activity:
		w.checkActivity(o, path)
	case *strategy.SubWorkflow:
		w.checkSubWorkflow(o, path, depth)
	default:
		w.result.addError("unknown_op", path, fmt.Sprintf("unsupported operator %T", op))
	}
}

func (w *walker) checkOrder(o strategy.Order, path string) {
	switch o.OrDefault() {
	case strategy.OrderTopDown, strategy.OrderBottomUp, strategy.OrderFair:
	default:
		w.result.addError("bad_order", path, fmt.Sprintf("unknown match order %q", o))
	}
}

func (w *walker) checkIterations(n int, path string) {
	if n < 0 {
		w.result.addError("bad_iterations", path, fmt.Sprintf("max iterations %d is negative", n))
	}
}

func (w *walker) checkParallel(o *strategy.Parallel, path string) {
	if len(o.Branches) == 0 {
		w.result.addWarning("empty_composite", path, "parallel has no branches and is a no-op")
	}
	if o.Completion.Mode != strategy.CompletionAtLeast {
		return
	}
	switch {
	case o.Completion.AtLeast < 1:
		w.result.addError("bad_completion", path,
			fmt.Sprintf("at_least %d must be positive", o.Completion.AtLeast))
	case o.Completion.AtLeast > len(o.Branches):
		w.result.addError("bad_completion", path,
			fmt.Sprintf("at_least %d exceeds the %d branches", o.Completion.AtLeast, len(o.Branches)))
	}
}

func (w *walker) checkRule(ref, path string) {
	if ref == "" {
		w.result.addError("missing_rule", path, "operator names no rule")
		return
	}
	w.rules[ref] = struct{}{}
	r, err := w.v.catalog.ResolveRule(w.ctx, ref)
	if err != nil {
		known, _ := w.v.catalog.RuleNames(w.ctx)
		w.result.addWarning("unknown_rule", path,
			fmt.Sprintf("rule %q is not registered", ref), suggest(ref, known)...)
		return
	}
	w.checkGuards(r, path)
}

// checkGuards flags guards of a resolved rule that the registry does not
// know. Unknown guards fail closed at match time, so the rule would match
// nothing.
func (w *walker) checkGuards(r *rule.Rule, path string) {
	known := w.v.guards.Names()
	set := make(map[string]struct{}, len(known))
	for _, n := range known {
		set[n] = struct{}{}
	}
	for _, g := range r.Guards {
		if _, ok := set[g.Name]; !ok {
			w.result.addWarning("unknown_guard", path,
				fmt.Sprintf("rule %q uses guard %q, which is not registered and fails closed", r.Name, g.Name),
				suggest(g.Name, known)...)
		}
	}
}

func (w *walker) checkPredicate(name, path string) {
	if name == "" {
		w.result.addError("missing_predicate", path, "operator names no predicate")
		return
	}
	known := w.v.predicates.Names()
	for _, n := range known {
		if n == name {
			return
		}
	}
	w.result.addWarning("unknown_predicate", path,
		fmt.Sprintf("predicate %q is not registered and evaluates to false", name),
		suggest(name, known)...)
}

func (w *walker) checkWait(o *strategy.Wait, path string) {
	c := o.Condition
	switch c.Type {
	case strategy.WaitTimer:
		if c.Duration <= 0 {
			w.result.addError("bad_wait", path, "timer wait needs a positive duration")
		}
	case strategy.WaitEvent:
		if c.EventType == "" {
			w.result.addError("bad_wait", path, "event wait needs an event_type")
		}
	case strategy.WaitSignal:
		if c.SignalName == "" {
			w.result.addError("bad_wait", path, "signal wait needs a signal_name")
		}
	default:
		w.result.addError("bad_wait", path, fmt.Sprintf("unknown wait type %q", c.Type))
	}
	if (c.Type == strategy.WaitEvent || c.Type == strategy.WaitSignal) && o.Timeout <= 0 {
		w.result.addWarning("unbounded_wait", path,
			"event or signal wait without timeout blocks until delivery or cancellation")
	}
}

func (w *walker) checkActivity(o *strategy.Activity, path string) {
	if o.Ref == "" {
		w.result.addError("missing_activity", path, "activity names no executor")
		return
	}
	w.acts[o.Ref] = struct{}{}
	known := w.v.activities.Names()
	for _, n := range known {
		if n == o.Ref {
			return
		}
	}
	w.result.addWarning("unknown_activity", path,
		fmt.Sprintf("activity %q is not registered", o.Ref), suggest(o.Ref, known)...)
}

// checkSubWorkflow expands each registered target once. Recursive
// subworkflows are legal; the runner bounds them by depth at runtime.
func (w *walker) checkSubWorkflow(o *strategy.SubWorkflow, path string, depth int) {
	if o.Ref == "" {
		w.result.addError("missing_subworkflow", path, "subworkflow names no strategy")
		return
	}
	if _, seen := w.visited[o.Ref]; seen {
		return
	}
	w.visited[o.Ref] = struct{}{}
	sub, err := w.v.catalog.ResolveStrategy(w.ctx, o.Ref)
	if err != nil {
		known, _ := w.v.catalog.StrategyNames(w.ctx)
		w.result.addWarning("unknown_subworkflow", path,
			fmt.Sprintf("strategy %q is not registered", o.Ref), suggest(o.Ref, known)...)
		return
	}
	w.walk(sub, path+".subworkflow", depth+1)
}

// suggest returns known names within edit distance 3, closest first, capped
// at three entries.
func suggest(name string, known []string) []string {
	type cand struct {
		name string
		dist int
	}
	var cands []cand
	for _, k := range known {
		if d := levenshtein.Distance(name, k, nil); d <= 3 {
			cands = append(cands, cand{name: k, dist: d})
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].name < cands[j].name
	})
	if len(cands) > 3 {
		cands = cands[:3]
	}
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.name
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
