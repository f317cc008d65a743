//go:build integration

package natsbus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/com-junkawasaki/kotoba-sub011/catalog"
	"github.com/com-junkawasaki/kotoba-sub011/errors"
	"github.com/com-junkawasaki/kotoba-sub011/rule"
	"github.com/com-junkawasaki/kotoba-sub011/testutil"
	"github.com/com-junkawasaki/kotoba-sub011/workflow"
)

func waitForMessage(t *testing.T, ch <-chan workflow.Message) workflow.Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "subscription channel closed early")
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for bus message")
		return workflow.Message{}
	}
}

func TestIntegrationBus_EventRoundTrip(t *testing.T) {
	tc := NewTestClient(t)
	bus, err := NewBus(tc.Client, testutil.QuietLogger())
	require.NoError(t, err)
	defer bus.Close()

	ch, cancel, err := bus.Subscribe(workflow.TopicEvent, "OrderShipped", nil)
	require.NoError(t, err)
	defer cancel()

	err = bus.Publish(context.Background(), workflow.Message{
		Topic: workflow.TopicEvent,
		Type:  "OrderShipped",
		Attrs: map[string]any{"order": "o-17", "items": float64(3)},
	})
	require.NoError(t, err)

	got := waitForMessage(t, ch)
	assert.Equal(t, workflow.TopicEvent, got.Topic)
	assert.Equal(t, "OrderShipped", got.Type)
	assert.Equal(t, "o-17", got.Attrs["order"])
	assert.Equal(t, float64(3), got.Attrs["items"])
	assert.NotZero(t, got.Time)
}

func TestIntegrationBus_CollidingTypesFiltered(t *testing.T) {
	tc := NewTestClient(t)
	bus, err := NewBus(tc.Client, testutil.QuietLogger())
	require.NoError(t, err)
	defer bus.Close()

	// "a.b" and "a_b" sanitize to the same subject token, so both land on
	// the one subscription and only the envelope type tells them apart.
	ch, cancel, err := bus.Subscribe(workflow.TopicEvent, "a_b", nil)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, bus.Publish(context.Background(), workflow.Message{Topic: workflow.TopicEvent, Type: "a.b"}))
	require.NoError(t, bus.Publish(context.Background(), workflow.Message{Topic: workflow.TopicEvent, Type: "a_b"}))

	got := waitForMessage(t, ch)
	assert.Equal(t, "a_b", got.Type)
}

func TestIntegrationBus_SignalAttributeFilter(t *testing.T) {
	tc := NewTestClient(t)
	bus, err := NewBus(tc.Client, testutil.QuietLogger())
	require.NoError(t, err)
	defer bus.Close()

	ch, cancel, err := bus.Subscribe(workflow.TopicSignal, "approval", map[string]any{"order": "o-17"})
	require.NoError(t, err)
	defer cancel()

	err = bus.Publish(context.Background(), workflow.Message{
		Topic: workflow.TopicSignal,
		Type:  "approval",
		Attrs: map[string]any{"order": "o-99"},
	})
	require.NoError(t, err)
	err = bus.Publish(context.Background(), workflow.Message{
		Topic: workflow.TopicSignal,
		Type:  "approval",
		Attrs: map[string]any{"order": "o-17", "approver": "riley"},
	})
	require.NoError(t, err)

	got := waitForMessage(t, ch)
	assert.Equal(t, "o-17", got.Attrs["order"])
	assert.Equal(t, "riley", got.Attrs["approver"])
}

func TestIntegrationBus_WildcardSubscribe(t *testing.T) {
	tc := NewTestClient(t)
	bus, err := NewBus(tc.Client, testutil.QuietLogger())
	require.NoError(t, err)
	defer bus.Close()

	ch, cancel, err := bus.Subscribe(workflow.TopicEvent, "", nil)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, bus.Publish(context.Background(), workflow.Message{Topic: workflow.TopicEvent, Type: "RuleApplied"}))
	require.NoError(t, bus.Publish(context.Background(), workflow.Message{Topic: workflow.TopicEvent, Type: "StepCompleted"}))

	first := waitForMessage(t, ch)
	second := waitForMessage(t, ch)
	assert.ElementsMatch(t, []string{"RuleApplied", "StepCompleted"}, []string{first.Type, second.Type})
}

func TestIntegrationBus_ForeignProducer(t *testing.T) {
	tc := NewTestClient(t)
	bus, err := NewBus(tc.Client, testutil.QuietLogger())
	require.NoError(t, err)
	defer bus.Close()

	ch, cancel, err := bus.Subscribe(workflow.TopicSignal, "approval", nil)
	require.NoError(t, err)
	defer cancel()

	// Undecodable payloads are dropped without killing the subscription.
	require.NoError(t, tc.Client.Publish(context.Background(), "kotoba.signals.approval", []byte("not json")))

	payload, err := json.Marshal(map[string]any{
		"topic": "signals",
		"type":  "approval",
		"attrs": map[string]any{"order": "o-17"},
	})
	require.NoError(t, err)
	require.NoError(t, tc.Client.Publish(context.Background(), "kotoba.signals.approval", payload))

	got := waitForMessage(t, ch)
	assert.Equal(t, workflow.TopicSignal, got.Topic)
	assert.Equal(t, "approval", got.Type)
	assert.Equal(t, "o-17", got.Attrs["order"])
}

func TestIntegrationKVCatalogStore_RoundTrip(t *testing.T) {
	tc := NewTestClient(t, WithJetStream())
	store, err := NewKVCatalogStore(tc.Client, testutil.QuietLogger())
	require.NoError(t, err)

	ctx := context.Background()
	ref := "sha256:59f0ab3fdd68b2e0bbf6b4a3f7dc47bd59f0ab3fdd68b2e0bbf6b4a3f7dc47bd"
	require.NoError(t, store.Put(ctx, catalog.BucketRules, ref, []byte(`{"name":"x"}`)))
	require.NoError(t, store.Put(ctx, catalog.BucketRules, "name/x", []byte(ref)))

	value, err := store.Get(ctx, catalog.BucketRules, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"name":"x"}`), value)

	keys, err := store.Keys(ctx, catalog.BucketRules)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ref, "name/x"}, keys)

	_, err = store.Get(ctx, catalog.BucketRules, "sha256:missing")
	assert.ErrorIs(t, err, errors.ErrKeyNotFound)
}

func TestIntegrationKVCatalogStore_OverwriteKeepsLatest(t *testing.T) {
	tc := NewTestClient(t, WithJetStream())
	store, err := NewKVCatalogStore(tc.Client, testutil.QuietLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, catalog.BucketStrategies, "name/main", []byte("sha256:aa")))
	require.NoError(t, store.Put(ctx, catalog.BucketStrategies, "name/main", []byte("sha256:bb")))

	value, err := store.Get(ctx, catalog.BucketStrategies, "name/main")
	require.NoError(t, err)
	assert.Equal(t, []byte("sha256:bb"), value)

	keys, err := store.Keys(ctx, catalog.BucketStrategies)
	require.NoError(t, err)
	assert.Equal(t, []string{"name/main"}, keys)
}

func TestIntegrationCatalog_SharedKVStore(t *testing.T) {
	tc := NewTestClient(t, WithJetStream())
	store, err := NewKVCatalogStore(tc.Client, testutil.QuietLogger())
	require.NoError(t, err)

	writer := catalog.New(store, testutil.QuietLogger())
	ref, err := writer.PutRule(context.Background(), &rule.Rule{
		Name: "delete_person",
		LHS:  rule.GraphPattern{Nodes: []rule.PatternNode{{Var: "a", Label: "Person"}}},
	})
	require.NoError(t, err)

	// A second catalog over the same bucket sees the rule without any
	// in-memory state shared with the writer.
	reader := catalog.New(store, testutil.QuietLogger())

	byName, err := reader.RuleByName(context.Background(), "delete_person")
	require.NoError(t, err)
	assert.Equal(t, "delete_person", byName.Name)

	byRef, err := reader.RuleByRef(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, byRef.LHS.Nodes, 1)
	assert.Equal(t, "Person", byRef.LHS.Nodes[0].Label)

	names, err := reader.RuleNames(context.Background())
	require.NoError(t, err)
	assert.Contains(t, names, "delete_person")
}
