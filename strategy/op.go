package strategy

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind discriminates the strategy operators. Its values double as the "op"
// field of the JSON wire form and as metric label values.
type Kind string

const (
	KindOnce        Kind = "once"
	KindExhaust     Kind = "exhaust"
	KindWhile       Kind = "while"
	KindSeq         Kind = "seq"
	KindChoice      Kind = "choice"
	KindPriority    Kind = "priority"
	KindParallel    Kind = "parallel"
	KindDecision    Kind = "decision"
	KindWait        Kind = "wait"
	KindSaga        Kind = "saga"
	KindActivity    Kind = "activity"
	KindSubWorkflow Kind = "subworkflow"
)

// DefaultMaxIterations caps Exhaust and While loops that do not set their
// own bound.
const DefaultMaxIterations = 1000

// Op is one node of a strategy tree. The union is closed: only the types in
// this package implement it, so interpreters may switch exhaustively.
type Op interface {
	json.Marshaler

	// Kind returns the operator discriminator.
	Kind() Kind

	isOp()
}

// Order selects which discovered match an application step consumes.
type Order string

const (
	// OrderTopDown applies the first match in discovery order.
	OrderTopDown Order = "topdown"
	// OrderBottomUp applies the last match in discovery order.
	OrderBottomUp Order = "bottomup"
	// OrderFair rotates through match positions across iterations.
	OrderFair Order = "fair"
)

// valid reports whether the order is one of the declared values; the empty
// string stands for OrderTopDown.
func (o Order) valid() bool {
	switch o {
	case "", OrderTopDown, OrderBottomUp, OrderFair:
		return true
	}
	return false
}

// OrDefault resolves the empty order to OrderTopDown.
func (o Order) OrDefault() Order {
	if o == "" {
		return OrderTopDown
	}
	return o
}

// Once applies a rule to a single match and stops.
type Once struct {
	Rule  string
	Order Order
}

// Exhaust applies a rule until no match remains or MaxIterations waves have
// run. Measure names an optional well-founded measure and is informational.
type Exhaust struct {
	Rule          string
	Order         Order
	MaxIterations int
	Measure       string
}

// While applies a rule like Exhaust but checks the named predicate before
// every wave and stops as soon as it is false or unknown.
type While struct {
	Rule          string
	Pred          string
	Order         Order
	MaxIterations int
}

// Seq runs sub-strategies in order, each observing the mutations of the
// previous ones.
type Seq struct {
	Ops []Op
}

// Choice runs sub-strategies in order until one produces a non-empty patch.
type Choice struct {
	Ops []Op
}

// PriorityEntry pairs a sub-strategy with its priority; lower runs first.
type PriorityEntry struct {
	Priority int
	Op       Op
}

// Priority is Choice over entries sorted by ascending priority with the
// declaration order breaking ties.
type Priority struct {
	Entries []PriorityEntry
}

// CompletionMode tells Parallel when it is done.
type CompletionMode int

const (
	// CompletionAll waits for every branch.
	CompletionAll CompletionMode = iota
	// CompletionAny finishes after the first branch completes.
	CompletionAny
	// CompletionAtLeast finishes after N branches complete.
	CompletionAtLeast
)

// CompletionCondition is the wire form "all" | "any" | {"at_least": n}.
type CompletionCondition struct {
	Mode    CompletionMode
	AtLeast int
}

// MarshalJSON renders the condition in its wire form.
func (c CompletionCondition) MarshalJSON() ([]byte, error) {
	switch c.Mode {
	case CompletionAll:
		return json.Marshal("all")
	case CompletionAny:
		return json.Marshal("any")
	case CompletionAtLeast:
		return json.Marshal(map[string]int{"at_least": c.AtLeast})
	}
	return nil, fmt.Errorf("unknown completion mode %d", c.Mode)
}

// UnmarshalJSON accepts "all", "any" or {"at_least": n}.
func (c *CompletionCondition) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "all":
			*c = CompletionCondition{Mode: CompletionAll}
			return nil
		case "any":
			*c = CompletionCondition{Mode: CompletionAny}
			return nil
		}
		return fmt.Errorf("unknown completion condition %q", s)
	}
	var obj struct {
		AtLeast *int `json:"at_least"`
	}
	if err := json.Unmarshal(data, &obj); err != nil || obj.AtLeast == nil {
		return fmt.Errorf("completion condition must be \"all\", \"any\" or {\"at_least\": n}")
	}
	if *obj.AtLeast < 1 {
		return fmt.Errorf("at_least must be positive, got %d", *obj.AtLeast)
	}
	*c = CompletionCondition{Mode: CompletionAtLeast, AtLeast: *obj.AtLeast}
	return nil
}

// Parallel evaluates branches concurrently against the same starting state
// and finishes per the completion condition.
type Parallel struct {
	Branches   []Op
	Completion CompletionCondition
}

// DecisionBranch guards a sub-strategy with a named condition.
type DecisionBranch struct {
	Condition string
	Branch    Op
}

// Decision runs the branch of the first true condition, falling back to
// Default when none holds. A nil Default makes the decision a no-op.
type Decision struct {
	Conditions []DecisionBranch
	Default    Op
}

// WaitType discriminates what a Wait suspends on.
type WaitType string

const (
	WaitTimer  WaitType = "timer"
	WaitEvent  WaitType = "event"
	WaitSignal WaitType = "signal"
)

// WaitCondition describes the resumption condition of a Wait.
type WaitCondition struct {
	Type       WaitType       `json:"type"`
	Duration   Duration       `json:"duration,omitempty"`
	EventType  string         `json:"event_type,omitempty"`
	Filter     map[string]any `json:"filter,omitempty"`
	SignalName string         `json:"signal_name,omitempty"`
}

func (c WaitCondition) validate() error {
	switch c.Type {
	case WaitTimer:
		if c.Duration <= 0 {
			return fmt.Errorf("timer wait needs a positive duration")
		}
	case WaitEvent:
		if c.EventType == "" {
			return fmt.Errorf("event wait needs an event_type")
		}
	case WaitSignal:
		if c.SignalName == "" {
			return fmt.Errorf("signal wait needs a signal_name")
		}
	default:
		return fmt.Errorf("unknown wait type %q", c.Type)
	}
	return nil
}

// Wait suspends evaluation until its condition resolves or the timeout
// elapses. A timeout with no delivery resumes evaluation rather than
// failing it.
type Wait struct {
	Condition WaitCondition
	Timeout   Duration
}

// Saga runs Main and, if it fails, runs Compensation before re-raising the
// original failure.
type Saga struct {
	Main         Op
	Compensation Op
}

// RetryPolicy shapes activity retries. Zero fields take the defaults of
// Normalized.
type RetryPolicy struct {
	InitialInterval    Duration `json:"initial_interval,omitempty"`
	BackoffCoefficient float64  `json:"backoff_coefficient,omitempty"`
	MaximumInterval    Duration `json:"maximum_interval,omitempty"`
	MaximumAttempts    int      `json:"maximum_attempts,omitempty"`
	NonRetryableErrors []string `json:"non_retryable_errors,omitempty"`
}

// Normalized fills unset fields with the default policy: 1s initial
// interval doubling up to 5m, three attempts.
func (p RetryPolicy) Normalized() RetryPolicy {
	if p.InitialInterval <= 0 {
		p.InitialInterval = Duration(time.Second)
	}
	if p.BackoffCoefficient <= 0 {
		p.BackoffCoefficient = 2.0
	}
	if p.MaximumInterval <= 0 {
		p.MaximumInterval = Duration(5 * time.Minute)
	}
	if p.MaximumAttempts <= 0 {
		p.MaximumAttempts = 3
	}
	return p
}

// Activity invokes a registered executor with inputs resolved through
// InputMapping and retries per RetryPolicy. Timeout bounds each attempt.
type Activity struct {
	Ref          string
	InputMapping map[string]string
	RetryPolicy  *RetryPolicy
	Timeout      Duration
}

// SubWorkflow recursively evaluates a strategy resolved by catalog ref or
// name, with inputs resolved through InputMapping.
type SubWorkflow struct {
	Ref          string
	InputMapping map[string]string
}

func (*Once) Kind() Kind        { return KindOnce }
func (*Exhaust) Kind() Kind     { return KindExhaust }
func (*While) Kind() Kind       { return KindWhile }
func (*Seq) Kind() Kind         { return KindSeq }
func (*Choice) Kind() Kind      { return KindChoice }
func (*Priority) Kind() Kind    { return KindPriority }
func (*Parallel) Kind() Kind    { return KindParallel }
func (*Decision) Kind() Kind    { return KindDecision }
func (*Wait) Kind() Kind        { return KindWait }
func (*Saga) Kind() Kind        { return KindSaga }
func (*Activity) Kind() Kind    { return KindActivity }
func (*SubWorkflow) Kind() Kind { return KindSubWorkflow }

func (*Once) isOp()        {}
func (*Exhaust) isOp()     {}
func (*While) isOp()       {}
func (*Seq) isOp()         {}
func (*Choice) isOp()      {}
func (*Priority) isOp()    {}
func (*Parallel) isOp()    {}
func (*Decision) isOp()    {}
func (*Wait) isOp()        {}
func (*Saga) isOp()        {}
func (*Activity) isOp()    {}
func (*SubWorkflow) isOp() {}

// Duration wraps time.Duration with the wire form "5s" / "1m30s".
type Duration time.Duration

// Std converts back to a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalJSON renders the duration as a Go duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON parses a Go duration string.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"5s\"")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}
