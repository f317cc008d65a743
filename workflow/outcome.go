package workflow

import (
	"fmt"

	"github.com/com-junkawasaki/kotoba-sub011/graph"
)

// Outcome is the result of one strategy evaluation. On failure it still
// carries the progress made before the error: the composed patch of every
// applied step, the snapshot those steps produced, the outputs of completed
// activities and the full event history.
type Outcome struct {
	Success bool        `json:"success"`
	Patch   graph.Patch `json:"patch"`
	// Snapshot is the graph after the run.
	Snapshot *graph.Snapshot `json:"-"`
	Outputs  map[string]any  `json:"outputs,omitempty"`
	Events   []Event         `json:"events,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// CompensationError reports a saga whose compensation also failed. The
// original failure stays primary; the compensation failure rides along so
// operators see both.
type CompensationError struct {
	Original error
	CompErr  error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("saga failed: %v (compensation also failed: %v)", e.Original, e.CompErr)
}

// Unwrap exposes the original failure to errors.Is and errors.As chains.
func (e *CompensationError) Unwrap() error { return e.Original }
