package workflow

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/com-junkawasaki/kotoba-sub011/errors"
	"github.com/com-junkawasaki/kotoba-sub011/graph"
)

// PredFunc decides a named condition over the current graph and the run's
// inputs. While loops and Decision branches consult predicates by name.
type PredFunc func(view graph.View, inputs map[string]any) bool

// PredicateRegistry resolves condition names to predicate functions.
// Unknown names evaluate to false and are logged, never raised: a While
// over an unknown predicate stops, a Decision falls through to its
// default.
type PredicateRegistry struct {
	mu     sync.RWMutex
	preds  map[string]PredFunc
	logger *slog.Logger
}

// NewPredicateRegistry returns an empty registry. A nil logger falls back
// to slog.Default().
func NewPredicateRegistry(logger *slog.Logger) *PredicateRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &PredicateRegistry{
		preds:  make(map[string]PredFunc),
		logger: logger,
	}
}

// Register adds a predicate under the given name.
func (r *PredicateRegistry) Register(name string, fn PredFunc) error {
	if name == "" || fn == nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "PredicateRegistry", "Register",
			"register predicate with empty name or nil func")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.preds[name]; exists {
		return errors.WrapInvalid(errors.ErrDuplicateName, "PredicateRegistry", "Register",
			fmt.Sprintf("register predicate %q", name))
	}
	r.preds[name] = fn
	return nil
}

// Evaluate runs the named predicate. Unknown names are false.
func (r *PredicateRegistry) Evaluate(view graph.View, name string, inputs map[string]any) bool {
	r.mu.RLock()
	fn, ok := r.preds[name]
	r.mu.RUnlock()
	if !ok {
		if s := closestName(name, r.Names()); s != "" {
			r.logger.Warn("unknown predicate", "predicate", name, "suggestion", s)
		} else {
			r.logger.Warn("unknown predicate", "predicate", name)
		}
		return false
	}
	return fn(view, inputs)
}

// Names returns the registered predicate names in sorted order.
func (r *PredicateRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.preds))
	for name := range r.preds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
