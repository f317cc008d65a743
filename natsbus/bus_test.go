package natsbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/com-junkawasaki/kotoba-sub011/errors"
	"github.com/com-junkawasaki/kotoba-sub011/testutil"
	"github.com/com-junkawasaki/kotoba-sub011/workflow"
)

func newDisconnectedBus(t *testing.T, opts ...BusOption) *Bus {
	t.Helper()
	client, err := NewClient("nats://localhost:4222", WithLogger(testutil.QuietLogger()))
	require.NoError(t, err)
	bus, err := NewBus(client, testutil.QuietLogger(), opts...)
	require.NoError(t, err)
	return bus
}

func TestNewBus_RequiresClient(t *testing.T) {
	bus, err := NewBus(nil, testutil.QuietLogger())
	assert.Nil(t, bus)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidData)
}

func TestBusSubject(t *testing.T) {
	bus := newDisconnectedBus(t)

	tests := map[string]struct {
		topic workflow.Topic
		typ   string
		want  string
	}{
		"event type":    {workflow.TopicEvent, "ActivityTaskCompleted", "kotoba.events.ActivityTaskCompleted"},
		"signal name":   {workflow.TopicSignal, "approval", "kotoba.signals.approval"},
		"dotted type":   {workflow.TopicEvent, "shipment.arrived", "kotoba.events.shipment_arrived"},
		"wildcard char": {workflow.TopicEvent, "a>b", "kotoba.events.a_b"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, bus.Subject(tc.topic, tc.typ))
		})
	}
}

func TestBusSubject_CustomPrefix(t *testing.T) {
	bus := newDisconnectedBus(t, WithSubjectPrefix("acme.staging"))
	assert.Equal(t, "acme.staging.signals.go", bus.Subject(workflow.TopicSignal, "go"))
}

func TestSanitizeToken(t *testing.T) {
	tests := map[string]string{
		"ActivityTaskCompleted": "ActivityTaskCompleted",
		"approval-v2":           "approval-v2",
		"shipment.arrived":      "shipment_arrived",
		"with space":            "with_space",
		"a*b>c":                 "a_b_c",
		"":                      "_",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeToken(in), "input %q", in)
	}
}

func TestBusPublish_Validation(t *testing.T) {
	bus := newDisconnectedBus(t)

	err := bus.Publish(context.Background(), workflow.Message{Topic: workflow.TopicEvent})
	assert.ErrorIs(t, err, errors.ErrInvalidData)

	err = bus.Publish(context.Background(), workflow.Message{Type: "orphan"})
	assert.ErrorIs(t, err, errors.ErrInvalidData)
}

func TestBusPublish_WithoutConnection(t *testing.T) {
	bus := newDisconnectedBus(t)

	err := bus.Publish(context.Background(), workflow.Message{
		Topic: workflow.TopicEvent,
		Type:  "shipment_arrived",
	})
	assert.ErrorIs(t, err, errors.ErrNoConnection)
}

func TestBusSubscribe_WithoutConnection(t *testing.T) {
	bus := newDisconnectedBus(t)

	ch, cancel, err := bus.Subscribe(workflow.TopicSignal, "approval", nil)
	assert.Nil(t, ch)
	assert.Nil(t, cancel)
	assert.ErrorIs(t, err, errors.ErrNoConnection)
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestBusClose_Idempotent(t *testing.T) {
	bus := newDisconnectedBus(t)

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestBusSubscription_DeliverAndTeardown(t *testing.T) {
	sub := &busSubscription{ch: make(chan workflow.Message, 1)}

	first := workflow.Message{Topic: workflow.TopicEvent, Type: "one"}
	assert.True(t, sub.deliver(first))
	// Buffer of one is now full.
	assert.False(t, sub.deliver(workflow.Message{Topic: workflow.TopicEvent, Type: "two"}))

	sub.teardown(testutil.QuietLogger())
	sub.teardown(testutil.QuietLogger())
	assert.False(t, sub.deliver(workflow.Message{Topic: workflow.TopicEvent, Type: "three"}))

	got, ok := <-sub.ch
	require.True(t, ok)
	assert.Equal(t, first, got)

	_, ok = <-sub.ch
	assert.False(t, ok, "channel should be closed after teardown")
}
