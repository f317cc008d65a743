package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/com-junkawasaki/kotoba-sub011/errors"
)

const paymentWorkflow = `{
  "op": "saga",
  "main_flow": {
    "op": "seq",
    "strategies": [
      {
        "op": "activity",
        "activity_ref": "charge_card",
        "input_mapping": {"amount": "$.inputs.amount", "currency": "usd"},
        "retry_policy": {
          "initial_interval": "1s",
          "backoff_coefficient": 2.0,
          "maximum_interval": "300s",
          "maximum_attempts": 3,
          "non_retryable_errors": ["card_declined"]
        },
        "timeout": "30s"
      },
      {"op": "exhaust", "rule": "reserve_stock", "order": "bottomup", "max_iterations": 50},
      {
        "op": "wait",
        "condition": {"type": "event", "event_type": "payment_settled", "filter": {"region": "eu"}},
        "timeout": "5m"
      }
    ]
  },
  "compensation": {"op": "activity", "activity_ref": "refund_card"}
}`

func TestParse_PaymentWorkflow(t *testing.T) {
	op, err := Parse([]byte(paymentWorkflow))
	require.NoError(t, err)

	saga, ok := op.(*Saga)
	require.True(t, ok)

	seq, ok := saga.Main.(*Seq)
	require.True(t, ok)
	require.Len(t, seq.Ops, 3)

	charge, ok := seq.Ops[0].(*Activity)
	require.True(t, ok)
	assert.Equal(t, "charge_card", charge.Ref)
	assert.Equal(t, "$.inputs.amount", charge.InputMapping["amount"])
	assert.Equal(t, "usd", charge.InputMapping["currency"])
	assert.Equal(t, Duration(30*time.Second), charge.Timeout)
	require.NotNil(t, charge.RetryPolicy)
	assert.Equal(t, Duration(time.Second), charge.RetryPolicy.InitialInterval)
	assert.Equal(t, 2.0, charge.RetryPolicy.BackoffCoefficient)
	assert.Equal(t, Duration(300*time.Second), charge.RetryPolicy.MaximumInterval)
	assert.Equal(t, 3, charge.RetryPolicy.MaximumAttempts)
	assert.Equal(t, []string{"card_declined"}, charge.RetryPolicy.NonRetryableErrors)

	exhaust, ok := seq.Ops[1].(*Exhaust)
	require.True(t, ok)
	assert.Equal(t, "reserve_stock", exhaust.Rule)
	assert.Equal(t, OrderBottomUp, exhaust.Order)
	assert.Equal(t, 50, exhaust.MaxIterations)

	wait, ok := seq.Ops[2].(*Wait)
	require.True(t, ok)
	assert.Equal(t, WaitEvent, wait.Condition.Type)
	assert.Equal(t, "payment_settled", wait.Condition.EventType)
	assert.Equal(t, "eu", wait.Condition.Filter["region"])
	assert.Equal(t, Duration(5*time.Minute), wait.Timeout)

	refund, ok := saga.Compensation.(*Activity)
	require.True(t, ok)
	assert.Equal(t, "refund_card", refund.Ref)
}

func TestParse_Defaults(t *testing.T) {
	op, err := Parse([]byte(`{"op": "exhaust", "rule": "r"}`))
	require.NoError(t, err)
	exhaust := op.(*Exhaust)
	assert.Equal(t, DefaultMaxIterations, exhaust.MaxIterations)
	assert.Equal(t, OrderTopDown, exhaust.Order.OrDefault())

	op, err = Parse([]byte(`{"op": "parallel", "branches": [{"op": "once", "rule": "a"}]}`))
	require.NoError(t, err)
	assert.Equal(t, CompletionAll, op.(*Parallel).Completion.Mode)
}

func TestParse_RoundTrip(t *testing.T) {
	wires := map[string]string{
		"once":          `{"op": "once", "rule": "r", "order": "fair"}`,
		"while":         `{"op": "while", "rule": "r", "pred": "below_budget", "max_iterations": 10}`,
		"empty seq":     `{"op": "seq", "strategies": []}`,
		"choice":        `{"op": "choice", "strategies": [{"op": "once", "rule": "a"}, {"op": "once", "rule": "b"}]}`,
		"priority":      `{"op": "priority", "priorities": [{"priority": 2, "strategy": {"op": "once", "rule": "low"}}, {"priority": 1, "strategy": {"op": "once", "rule": "high"}}]}`,
		"parallel":      `{"op": "parallel", "branches": [{"op": "once", "rule": "a"}, {"op": "once", "rule": "b"}, {"op": "once", "rule": "c"}], "completion_condition": {"at_least": 2}}`,
		"decision":      `{"op": "decision", "conditions": [{"condition": "is_weekend", "branch": {"op": "once", "rule": "relax"}}], "default_branch": {"op": "once", "rule": "work"}}`,
		"timer wait":    `{"op": "wait", "condition": {"type": "timer", "duration": "5s"}}`,
		"signal wait":   `{"op": "wait", "condition": {"type": "signal", "signal_name": "approval"}, "timeout": "1h"}`,
		"subworkflow":   `{"op": "subworkflow", "workflow_ref": "sha256:abc", "input_mapping": {"x": "$.inputs.x"}}`,
		"saga":          paymentWorkflow,
		"bare activity": `{"op": "activity", "activity_ref": "notify"}`,
	}

	for name, wire := range wires {
		t.Run(name, func(t *testing.T) {
			first, err := Parse([]byte(wire))
			require.NoError(t, err)
			encoded, err := first.MarshalJSON()
			require.NoError(t, err)
			second, err := Parse(encoded)
			require.NoError(t, err)
			assert.Equal(t, first, second)
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown op":              `{"op": "repeat", "rule": "r"}`,
		"missing op":              `{"rule": "r"}`,
		"once without rule":       `{"op": "once"}`,
		"exhaust without rule":    `{"op": "exhaust"}`,
		"while without pred":      `{"op": "while", "rule": "r"}`,
		"bad order":               `{"op": "once", "rule": "r", "order": "sideways"}`,
		"zero max_iterations":     `{"op": "exhaust", "rule": "r", "max_iterations": 0}`,
		"seq without strategies":  `{"op": "seq"}`,
		"priority missing child":  `{"op": "priority", "priorities": [{"priority": 1}]}`,
		"at_least over branches":  `{"op": "parallel", "branches": [{"op": "once", "rule": "a"}], "completion_condition": {"at_least": 2}}`,
		"at_least zero":           `{"op": "parallel", "branches": [{"op": "once", "rule": "a"}], "completion_condition": {"at_least": 0}}`,
		"bad completion":          `{"op": "parallel", "branches": [], "completion_condition": "most"}`,
		"wait without condition":  `{"op": "wait"}`,
		"timer without duration":  `{"op": "wait", "condition": {"type": "timer"}}`,
		"event without type":      `{"op": "wait", "condition": {"type": "event"}}`,
		"signal without name":     `{"op": "wait", "condition": {"type": "signal"}}`,
		"unknown wait type":       `{"op": "wait", "condition": {"type": "lunar_phase"}}`,
		"bad duration":            `{"op": "wait", "condition": {"type": "timer", "duration": "five seconds"}}`,
		"numeric duration":        `{"op": "wait", "condition": {"type": "timer", "duration": 5}}`,
		"saga without comp":       `{"op": "saga", "main_flow": {"op": "once", "rule": "r"}}`,
		"activity without ref":    `{"op": "activity"}`,
		"subworkflow without ref": `{"op": "subworkflow"}`,
		"nested invalid":          `{"op": "seq", "strategies": [{"op": "once"}]}`,
		"truncated json":          `{"op": "seq", "strategies": [`,
	}

	for name, wire := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(wire))
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err), "parse failures carry the invalid class: %v", err)
		})
	}
}

func TestWalk_VisitsWholeTree(t *testing.T) {
	op, err := Parse([]byte(paymentWorkflow))
	require.NoError(t, err)

	var kinds []Kind
	Walk(op, func(op Op) { kinds = append(kinds, op.Kind()) })
	assert.Equal(t, []Kind{KindSaga, KindSeq, KindActivity, KindExhaust, KindWait, KindActivity}, kinds)
}

func TestRuleRefs(t *testing.T) {
	op, err := Parse([]byte(`{
	  "op": "choice",
	  "strategies": [
	    {"op": "once", "rule": "a"},
	    {"op": "seq", "strategies": [
	      {"op": "exhaust", "rule": "b"},
	      {"op": "while", "rule": "a", "pred": "p"}
	    ]}
	  ]
	}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, RuleRefs(op))
}
