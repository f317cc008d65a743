package strategy

import (
	"encoding/json"
	"fmt"

	"github.com/com-junkawasaki/kotoba-sub011/errors"
)

// envelope is the one-level wire form shared by all operators. Which fields
// are required depends on the "op" discriminator.
type envelope struct {
	Op                  Kind                 `json:"op"`
	Rule                string               `json:"rule,omitempty"`
	Order               Order                `json:"order,omitempty"`
	MaxIterations       *int                 `json:"max_iterations,omitempty"`
	Measure             string               `json:"measure,omitempty"`
	Pred                string               `json:"pred,omitempty"`
	Strategies          []json.RawMessage    `json:"strategies,omitempty"`
	Priorities          []priorityEnvelope   `json:"priorities,omitempty"`
	Branches            []json.RawMessage    `json:"branches,omitempty"`
	CompletionCondition *CompletionCondition `json:"completion_condition,omitempty"`
	Conditions          []conditionEnvelope  `json:"conditions,omitempty"`
	DefaultBranch       json.RawMessage      `json:"default_branch,omitempty"`
	Condition           *WaitCondition       `json:"condition,omitempty"`
	Timeout             Duration             `json:"timeout,omitempty"`
	MainFlow            json.RawMessage      `json:"main_flow,omitempty"`
	Compensation        json.RawMessage      `json:"compensation,omitempty"`
	ActivityRef         string               `json:"activity_ref,omitempty"`
	WorkflowRef         string               `json:"workflow_ref,omitempty"`
	InputMapping        map[string]string    `json:"input_mapping,omitempty"`
	RetryPolicy         *RetryPolicy         `json:"retry_policy,omitempty"`
}

type priorityEnvelope struct {
	Priority int             `json:"priority"`
	Strategy json.RawMessage `json:"strategy"`
}

type conditionEnvelope struct {
	Condition string          `json:"condition"`
	Branch    json.RawMessage `json:"branch"`
}

// Parse decodes a strategy tree from its JSON wire form. Unknown operators,
// unknown orders and missing required fields are invalid-class errors.
func Parse(data []byte) (Op, error) {
	op, err := parseOp(data)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Strategy", "Parse", "decode strategy json")
	}
	return op, nil
}

func parseOp(data []byte) (Op, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if !env.Order.valid() {
		return nil, fmt.Errorf("unknown order %q", env.Order)
	}

	switch env.Op {
	case KindOnce:
		if env.Rule == "" {
			return nil, fmt.Errorf("once needs a rule")
		}
		return &Once{Rule: env.Rule, Order: env.Order}, nil

	case KindExhaust:
		if env.Rule == "" {
			return nil, fmt.Errorf("exhaust needs a rule")
		}
		iters, err := parseMaxIterations(env.MaxIterations)
		if err != nil {
			return nil, err
		}
		return &Exhaust{Rule: env.Rule, Order: env.Order, MaxIterations: iters, Measure: env.Measure}, nil

	case KindWhile:
		if env.Rule == "" {
			return nil, fmt.Errorf("while needs a rule")
		}
		if env.Pred == "" {
			return nil, fmt.Errorf("while needs a pred")
		}
		iters, err := parseMaxIterations(env.MaxIterations)
		if err != nil {
			return nil, err
		}
		return &While{Rule: env.Rule, Pred: env.Pred, Order: env.Order, MaxIterations: iters}, nil

	case KindSeq:
		if env.Strategies == nil {
			return nil, fmt.Errorf("seq needs strategies")
		}
		ops, err := parseOps(env.Strategies)
		if err != nil {
			return nil, err
		}
		return &Seq{Ops: ops}, nil

	case KindChoice:
		if env.Strategies == nil {
			return nil, fmt.Errorf("choice needs strategies")
		}
		ops, err := parseOps(env.Strategies)
		if err != nil {
			return nil, err
		}
		return &Choice{Ops: ops}, nil

	case KindPriority:
		if env.Priorities == nil {
			return nil, fmt.Errorf("priority needs priorities")
		}
		entries := make([]PriorityEntry, len(env.Priorities))
		for i, pe := range env.Priorities {
			if pe.Strategy == nil {
				return nil, fmt.Errorf("priority entry %d needs a strategy", i)
			}
			sub, err := parseOp(pe.Strategy)
			if err != nil {
				return nil, err
			}
			entries[i] = PriorityEntry{Priority: pe.Priority, Op: sub}
		}
		return &Priority{Entries: entries}, nil

	case KindParallel:
		if env.Branches == nil {
			return nil, fmt.Errorf("parallel needs branches")
		}
		branches, err := parseOps(env.Branches)
		if err != nil {
			return nil, err
		}
		completion := CompletionCondition{Mode: CompletionAll}
		if env.CompletionCondition != nil {
			completion = *env.CompletionCondition
		}
		if completion.Mode == CompletionAtLeast && completion.AtLeast > len(branches) {
			return nil, fmt.Errorf("at_least %d exceeds %d branches", completion.AtLeast, len(branches))
		}
		return &Parallel{Branches: branches, Completion: completion}, nil

	case KindDecision:
		conditions := make([]DecisionBranch, len(env.Conditions))
		for i, ce := range env.Conditions {
			if ce.Condition == "" {
				return nil, fmt.Errorf("decision condition %d needs a name", i)
			}
			if ce.Branch == nil {
				return nil, fmt.Errorf("decision condition %q needs a branch", ce.Condition)
			}
			sub, err := parseOp(ce.Branch)
			if err != nil {
				return nil, err
			}
			conditions[i] = DecisionBranch{Condition: ce.Condition, Branch: sub}
		}
		var def Op
		if env.DefaultBranch != nil {
			sub, err := parseOp(env.DefaultBranch)
			if err != nil {
				return nil, err
			}
			def = sub
		}
		return &Decision{Conditions: conditions, Default: def}, nil

	case KindWait:
		if env.Condition == nil {
			return nil, fmt.Errorf("wait needs a condition")
		}
		if err := env.Condition.validate(); err != nil {
			return nil, err
		}
		return &Wait{Condition: *env.Condition, Timeout: env.Timeout}, nil

	case KindSaga:
		if env.MainFlow == nil {
			return nil, fmt.Errorf("saga needs a main_flow")
		}
		if env.Compensation == nil {
			return nil, fmt.Errorf("saga needs a compensation")
		}
		main, err := parseOp(env.MainFlow)
		if err != nil {
			return nil, err
		}
		comp, err := parseOp(env.Compensation)
		if err != nil {
			return nil, err
		}
		return &Saga{Main: main, Compensation: comp}, nil

	case KindActivity:
		if env.ActivityRef == "" {
			return nil, fmt.Errorf("activity needs an activity_ref")
		}
		return &Activity{
			Ref:          env.ActivityRef,
			InputMapping: env.InputMapping,
			RetryPolicy:  env.RetryPolicy,
			Timeout:      env.Timeout,
		}, nil

	case KindSubWorkflow:
		if env.WorkflowRef == "" {
			return nil, fmt.Errorf("subworkflow needs a workflow_ref")
		}
		return &SubWorkflow{Ref: env.WorkflowRef, InputMapping: env.InputMapping}, nil

	case "":
		return nil, fmt.Errorf("missing op discriminator")
	default:
		return nil, fmt.Errorf("unknown strategy op %q", env.Op)
	}
}

func parseMaxIterations(v *int) (int, error) {
	if v == nil {
		return DefaultMaxIterations, nil
	}
	if *v <= 0 {
		return 0, fmt.Errorf("max_iterations must be positive, got %d", *v)
	}
	return *v, nil
}

func parseOps(raw []json.RawMessage) ([]Op, error) {
	ops := make([]Op, len(raw))
	for i, r := range raw {
		sub, err := parseOp(r)
		if err != nil {
			return nil, err
		}
		ops[i] = sub
	}
	return ops, nil
}

func marshalOps(ops []Op) ([]json.RawMessage, error) {
	raw := make([]json.RawMessage, len(ops))
	for i, op := range ops {
		data, err := json.Marshal(op)
		if err != nil {
			return nil, err
		}
		raw[i] = data
	}
	return raw, nil
}

// MarshalJSON renders the operator in the wire form Parse accepts.
func (o *Once) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{Op: KindOnce, Rule: o.Rule, Order: o.Order})
}

func (o *Exhaust) MarshalJSON() ([]byte, error) {
	env := envelope{Op: KindExhaust, Rule: o.Rule, Order: o.Order, Measure: o.Measure}
	if o.MaxIterations > 0 {
		env.MaxIterations = &o.MaxIterations
	}
	return json.Marshal(env)
}

func (o *While) MarshalJSON() ([]byte, error) {
	env := envelope{Op: KindWhile, Rule: o.Rule, Pred: o.Pred, Order: o.Order}
	if o.MaxIterations > 0 {
		env.MaxIterations = &o.MaxIterations
	}
	return json.Marshal(env)
}

// The collection operators marshal through dedicated structs so their
// required list fields survive even when empty; envelope's omitempty would
// drop them and the result would no longer parse.

func (o *Seq) MarshalJSON() ([]byte, error) {
	raw, err := marshalOps(o.Ops)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Op         Kind              `json:"op"`
		Strategies []json.RawMessage `json:"strategies"`
	}{KindSeq, raw})
}

func (o *Choice) MarshalJSON() ([]byte, error) {
	raw, err := marshalOps(o.Ops)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Op         Kind              `json:"op"`
		Strategies []json.RawMessage `json:"strategies"`
	}{KindChoice, raw})
}

func (o *Priority) MarshalJSON() ([]byte, error) {
	entries := make([]priorityEnvelope, len(o.Entries))
	for i, e := range o.Entries {
		data, err := json.Marshal(e.Op)
		if err != nil {
			return nil, err
		}
		entries[i] = priorityEnvelope{Priority: e.Priority, Strategy: data}
	}
	return json.Marshal(struct {
		Op         Kind               `json:"op"`
		Priorities []priorityEnvelope `json:"priorities"`
	}{KindPriority, entries})
}

func (o *Parallel) MarshalJSON() ([]byte, error) {
	raw, err := marshalOps(o.Branches)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Op         Kind                `json:"op"`
		Branches   []json.RawMessage   `json:"branches"`
		Completion CompletionCondition `json:"completion_condition"`
	}{KindParallel, raw, o.Completion})
}

func (o *Decision) MarshalJSON() ([]byte, error) {
	conditions := make([]conditionEnvelope, len(o.Conditions))
	for i, c := range o.Conditions {
		data, err := json.Marshal(c.Branch)
		if err != nil {
			return nil, err
		}
		conditions[i] = conditionEnvelope{Condition: c.Condition, Branch: data}
	}
	env := envelope{Op: KindDecision, Conditions: conditions}
	if o.Default != nil {
		data, err := json.Marshal(o.Default)
		if err != nil {
			return nil, err
		}
		env.DefaultBranch = data
	}
	return json.Marshal(env)
}

func (o *Wait) MarshalJSON() ([]byte, error) {
	condition := o.Condition
	return json.Marshal(envelope{Op: KindWait, Condition: &condition, Timeout: o.Timeout})
}

func (o *Saga) MarshalJSON() ([]byte, error) {
	main, err := json.Marshal(o.Main)
	if err != nil {
		return nil, err
	}
	comp, err := json.Marshal(o.Compensation)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Op: KindSaga, MainFlow: main, Compensation: comp})
}

func (o *Activity) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{
		Op:           KindActivity,
		ActivityRef:  o.Ref,
		InputMapping: o.InputMapping,
		RetryPolicy:  o.RetryPolicy,
		Timeout:      o.Timeout,
	})
}

func (o *SubWorkflow) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{Op: KindSubWorkflow, WorkflowRef: o.Ref, InputMapping: o.InputMapping})
}

// Walk visits every operator of the tree in pre-order.
func Walk(op Op, fn func(Op)) {
	if op == nil {
		return
	}
	fn(op)
	switch o := op.(type) {
	case *Seq:
		for _, sub := range o.Ops {
			Walk(sub, fn)
		}
	case *Choice:
		for _, sub := range o.Ops {
			Walk(sub, fn)
		}
	case *Priority:
		for _, e := range o.Entries {
			Walk(e.Op, fn)
		}
	case *Parallel:
		for _, sub := range o.Branches {
			Walk(sub, fn)
		}
	case *Decision:
		for _, c := range o.Conditions {
			Walk(c.Branch, fn)
		}
		Walk(o.Default, fn)
	case *Saga:
		Walk(o.Main, fn)
		Walk(o.Compensation, fn)
	}
}

// RuleRefs returns the rule names the tree references, deduplicated in
// first-seen order.
func RuleRefs(op Op) []string {
	var refs []string
	seen := make(map[string]struct{})
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		refs = append(refs, name)
	}
	Walk(op, func(op Op) {
		switch o := op.(type) {
		case *Once:
			add(o.Rule)
		case *Exhaust:
			add(o.Rule)
		case *While:
			add(o.Rule)
		}
	})
	return refs
}
