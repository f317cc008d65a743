package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/agext/levenshtein"

	"github.com/com-junkawasaki/kotoba-sub011/errors"
)

// ActivityErrorKind classifies failed activity invocations.
type ActivityErrorKind string

const (
	// ActivityNotFound means no executor is registered under the name.
	ActivityNotFound ActivityErrorKind = "not_found"
	// ActivityExecutionFailed means the executor returned an error after
	// retries were exhausted or short-circuited.
	ActivityExecutionFailed ActivityErrorKind = "execution_failed"
	// ActivityTimeout means an attempt exceeded the configured timeout.
	ActivityTimeout ActivityErrorKind = "timeout"
	// ActivityInvalidInput means the input mapping could not be resolved.
	ActivityInvalidInput ActivityErrorKind = "invalid_input"
)

// ActivityError reports a failed activity invocation.
type ActivityError struct {
	Kind     ActivityErrorKind
	Activity string
	Err      error
}

func (e *ActivityError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("activity %q %s", e.Activity, e.Kind)
	}
	return fmt.Sprintf("activity %q %s: %v", e.Activity, e.Kind, e.Err)
}

func (e *ActivityError) Unwrap() error { return e.Err }

// ActivityExecutor runs one side-effecting activity. Implementations must
// honor ctx cancellation and return whatever outputs the workflow should
// accumulate.
type ActivityExecutor interface {
	Execute(ctx context.Context, inputs map[string]any) (map[string]any, error)
}

// ActivityFunc adapts a function to ActivityExecutor.
type ActivityFunc func(ctx context.Context, inputs map[string]any) (map[string]any, error)

// Execute calls the function.
func (f ActivityFunc) Execute(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	return f(ctx, inputs)
}

// ActivityRegistry resolves activity names to executors.
type ActivityRegistry struct {
	mu     sync.RWMutex
	execs  map[string]ActivityExecutor
	logger *slog.Logger
}

// NewActivityRegistry returns an empty registry. A nil logger falls back to
// slog.Default().
func NewActivityRegistry(logger *slog.Logger) *ActivityRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivityRegistry{
		execs:  make(map[string]ActivityExecutor),
		logger: logger,
	}
}

// Register adds an executor under the given name.
func (r *ActivityRegistry) Register(name string, exec ActivityExecutor) error {
	if name == "" || exec == nil {
		return errors.WrapInvalid(errors.ErrInvalidData, "ActivityRegistry", "Register",
			"register activity with empty name or nil executor")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.execs[name]; exists {
		return errors.WrapInvalid(errors.ErrDuplicateName, "ActivityRegistry", "Register",
			fmt.Sprintf("register activity %q", name))
	}
	r.execs[name] = exec
	return nil
}

// RegisterFunc adds a plain function under the given name.
func (r *ActivityRegistry) RegisterFunc(name string, fn ActivityFunc) error {
	return r.Register(name, fn)
}

// Resolve returns the executor for the name. Unknown names yield an
// ActivityError of kind ActivityNotFound; the log carries a did-you-mean
// suggestion when a registered name is close.
func (r *ActivityRegistry) Resolve(name string) (ActivityExecutor, error) {
	r.mu.RLock()
	exec, ok := r.execs[name]
	r.mu.RUnlock()
	if ok {
		return exec, nil
	}
	known := r.Names()
	if s := closestName(name, known); s != "" {
		r.logger.Warn("unknown activity", "activity", name, "suggestion", s)
	} else {
		r.logger.Warn("unknown activity", "activity", name)
	}
	return nil, &ActivityError{Kind: ActivityNotFound, Activity: name, Err: errors.ErrNotRegistered}
}

// Names returns the registered activity names in sorted order.
func (r *ActivityRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.execs))
	for name := range r.execs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// closestName returns the known name within edit distance 3 of name, or
// the empty string.
func closestName(name string, known []string) string {
	best, bestDist := "", 4
	for _, k := range known {
		if d := levenshtein.Distance(name, k, nil); d < bestDist {
			best, bestDist = k, d
		}
	}
	return best
}
