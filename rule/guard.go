package rule

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/agext/levenshtein"

	"github.com/com-junkawasaki/kotoba-sub011/errors"
	"github.com/com-junkawasaki/kotoba-sub011/graph"
)

// Guard attaches a named predicate to a rule. Args are positional strings;
// by convention the first names an LHS variable and the rest are literals.
type Guard struct {
	Name string   `json:"name"`
	Args []string `json:"args,omitempty"`
}

// GuardFunc evaluates one guard against a candidate binding. bindings maps
// LHS node variables to the concrete vertices of the candidate match.
type GuardFunc func(view graph.View, bindings map[string]graph.VertexID, args []string) (bool, error)

// GuardEvaluationError describes a guard that could not be evaluated, either
// because the name is unknown or because the guard function failed. It is
// logged and the guard treated as false; it is never raised to callers.
type GuardEvaluationError struct {
	Guard string
	Err   error
}

func (e *GuardEvaluationError) Error() string {
	return fmt.Sprintf("guard %q: %v", e.Guard, e.Err)
}

func (e *GuardEvaluationError) Unwrap() error { return e.Err }

// GuardRegistry resolves guard names to predicate functions. Unknown guards
// fail closed: the candidate match is rejected and a warning is logged with
// a did-you-mean suggestion, but evaluation never errors out.
type GuardRegistry struct {
	mu     sync.RWMutex
	guards map[string]GuardFunc
	logger *slog.Logger
}

// NewGuardRegistry returns a registry preloaded with the built-in guards
// deg_ge, deg_le, has_prop and prop_eq. A nil logger falls back to
// slog.Default().
func NewGuardRegistry(logger *slog.Logger) *GuardRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &GuardRegistry{
		guards: make(map[string]GuardFunc),
		logger: logger,
	}
	r.guards["deg_ge"] = guardDegreeGE
	r.guards["deg_le"] = guardDegreeLE
	r.guards["has_prop"] = guardHasProp
	r.guards["prop_eq"] = guardPropEq
	return r
}

// Register adds a guard function under the given name.
func (r *GuardRegistry) Register(name string, fn GuardFunc) error {
	if name == "" || fn == nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "GuardRegistry", "Register",
			"register guard with empty name or nil func")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.guards[name]; exists {
		return errors.WrapInvalid(errors.ErrDuplicateName, "GuardRegistry", "Register",
			fmt.Sprintf("register guard %q", name))
	}
	r.guards[name] = fn
	return nil
}

// Names returns the registered guard names in sorted order.
func (r *GuardRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.guards))
	for name := range r.guards {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Evaluate runs one guard against a binding. It returns false for unknown
// guards and for guards that error, logging the failure either way.
func (r *GuardRegistry) Evaluate(view graph.View, g Guard, bindings map[string]graph.VertexID) bool {
	r.mu.RLock()
	fn, ok := r.guards[g.Name]
	r.mu.RUnlock()
	if !ok {
		evalErr := &GuardEvaluationError{Guard: g.Name, Err: errors.ErrNotRegistered}
		attrs := []any{"guard", g.Name, "error", evalErr}
		if s := r.suggest(g.Name); s != "" {
			attrs = append(attrs, "did_you_mean", s)
		}
		r.logger.Warn("unknown guard, rejecting match", attrs...)
		return false
	}
	ok, err := fn(view, bindings, g.Args)
	if err != nil {
		evalErr := &GuardEvaluationError{Guard: g.Name, Err: err}
		r.logger.Warn("guard evaluation failed, rejecting match", "guard", g.Name, "error", evalErr)
		return false
	}
	return ok
}

// suggest returns the closest registered name within edit distance 3, or "".
func (r *GuardRegistry) suggest(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	best, bestDist := "", 4
	for known := range r.guards {
		if d := levenshtein.Distance(name, known, nil); d < bestDist {
			best, bestDist = known, d
		}
	}
	return best
}

func boundVertex(view graph.View, bindings map[string]graph.VertexID, v string) (*graph.VertexData, error) {
	id, ok := bindings[v]
	if !ok {
		return nil, fmt.Errorf("variable %q not bound", v)
	}
	data, ok := view.Vertex(id)
	if !ok {
		return nil, fmt.Errorf("bound vertex %s no longer present", id)
	}
	return data, nil
}

func vertexDegree(view graph.View, id graph.VertexID) int {
	deg := 0
	view.OutEdges(id, func(*graph.EdgeData) bool { deg++; return true })
	view.InEdges(id, func(*graph.EdgeData) bool { deg++; return true })
	return deg
}

func degreeArgs(view graph.View, bindings map[string]graph.VertexID, args []string) (graph.VertexID, int, error) {
	if len(args) != 2 {
		return "", 0, fmt.Errorf("want [var, n] args, got %d", len(args))
	}
	v, err := boundVertex(view, bindings, args[0])
	if err != nil {
		return "", 0, err
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return "", 0, fmt.Errorf("bad degree bound %q: %w", args[1], err)
	}
	return v.ID, n, nil
}

func guardDegreeGE(view graph.View, bindings map[string]graph.VertexID, args []string) (bool, error) {
	id, n, err := degreeArgs(view, bindings, args)
	if err != nil {
		return false, err
	}
	return vertexDegree(view, id) >= n, nil
}

func guardDegreeLE(view graph.View, bindings map[string]graph.VertexID, args []string) (bool, error) {
	id, n, err := degreeArgs(view, bindings, args)
	if err != nil {
		return false, err
	}
	return vertexDegree(view, id) <= n, nil
}

func guardHasProp(view graph.View, bindings map[string]graph.VertexID, args []string) (bool, error) {
	if len(args) != 2 {
		return false, fmt.Errorf("want [var, key] args, got %d", len(args))
	}
	v, err := boundVertex(view, bindings, args[0])
	if err != nil {
		return false, err
	}
	_, has := v.Prop(args[1])
	return has, nil
}

func guardPropEq(view graph.View, bindings map[string]graph.VertexID, args []string) (bool, error) {
	if len(args) != 3 {
		return false, fmt.Errorf("want [var, key, value] args, got %d", len(args))
	}
	v, err := boundVertex(view, bindings, args[0])
	if err != nil {
		return false, err
	}
	val, has := v.Prop(args[1])
	if !has {
		return false, nil
	}
	return graph.ValueEqual(val, parseLiteral(args[2])), nil
}

// parseLiteral decodes a guard argument as JSON when possible, so "2" and
// "true" compare as numbers and booleans; anything else stays a string.
func parseLiteral(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}
