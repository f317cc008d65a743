package natsbus

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/com-junkawasaki/kotoba-sub011/errors"
	"github.com/com-junkawasaki/kotoba-sub011/testutil"
)

func TestNewClient(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithLogger(testutil.QuietLogger()))
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsHealthy())
	assert.Nil(t, client.Conn())
}

func TestNewClient_RequiresURL(t *testing.T) {
	client, err := NewClient("")
	assert.Nil(t, client)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestClientOptions(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithLogger(testutil.QuietLogger()),
		WithMaxReconnects(3),
		WithReconnectWait(time.Second),
		WithPingInterval(time.Minute),
		WithHealthInterval(0),
		WithCircuitBreakerThreshold(2),
		WithMaxBackoff(5*time.Second),
		WithCredentials("user", "pass"),
		WithName("kotoba-test"),
		WithTimeout(time.Second),
		WithDrainTimeout(time.Second),
		WithCompression(true),
	)
	require.NoError(t, err)

	assert.Equal(t, 3, client.maxReconnects)
	assert.Equal(t, time.Second, client.reconnectWait)
	assert.Equal(t, int32(2), client.circuitThreshold)
	assert.Equal(t, 5*time.Second, client.maxBackoff)
	assert.Equal(t, "kotoba-test", client.clientName)
	assert.True(t, client.compression)
}

func TestClientOptions_Defaults(t *testing.T) {
	// Out-of-range values fall back rather than erroring.
	client, err := NewClient("nats://localhost:4222",
		WithLogger(testutil.QuietLogger()),
		WithCircuitBreakerThreshold(0),
		WithMaxBackoff(time.Millisecond),
	)
	require.NoError(t, err)

	assert.Equal(t, int32(5), client.circuitThreshold)
	assert.Equal(t, time.Minute, client.maxBackoff)
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	client, err := NewClient("nats://invalid:4222", WithLogger(testutil.QuietLogger()))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		client.recordFailure()
	}
	assert.NotEqual(t, StatusCircuitOpen, client.Status())

	client.recordFailure()
	assert.Equal(t, StatusCircuitOpen, client.Status())
	assert.Equal(t, int32(5), client.Failures())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithLogger(testutil.QuietLogger()))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	assert.Equal(t, StatusCircuitOpen, client.Status())

	client.resetCircuit()
	assert.Equal(t, int32(0), client.Failures())
	assert.NotEqual(t, StatusCircuitOpen, client.Status())
	assert.Equal(t, time.Second, client.Backoff())
}

func TestCircuitBreaker_BackoffDoublesAndCaps(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithLogger(testutil.QuietLogger()))
	require.NoError(t, err)

	assert.Equal(t, time.Second, client.Backoff())

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	assert.Equal(t, 2*time.Second, client.Backoff())

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	assert.Equal(t, 4*time.Second, client.Backoff())

	for round := 0; round < 20; round++ {
		for i := 0; i < 5; i++ {
			client.recordFailure()
		}
	}
	assert.LessOrEqual(t, client.Backoff(), time.Minute)
}

func TestClient_OperationsWithoutConnection(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithLogger(testutil.QuietLogger()))
	require.NoError(t, err)

	pubErr := client.Publish(context.Background(), "kotoba.events.test", []byte("{}"))
	assert.ErrorIs(t, pubErr, errors.ErrNoConnection)

	_, subErr := client.Subscribe("kotoba.events.test", func([]byte) {})
	assert.ErrorIs(t, subErr, errors.ErrNoConnection)

	_, rttErr := client.RTT()
	assert.ErrorIs(t, rttErr, errors.ErrNoConnection)

	_, jsErr := client.JetStream()
	assert.ErrorIs(t, jsErr, errors.ErrNoConnection)

	_, bucketErr := client.GetKeyValueBucket(context.Background(), "kotoba-rules")
	assert.ErrorIs(t, bucketErr, errors.ErrNoConnection)
}

func TestClient_ConnectFailsFastWhenCircuitOpen(t *testing.T) {
	client, err := NewClient("nats://localhost:4222", WithLogger(testutil.QuietLogger()))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	require.Equal(t, StatusCircuitOpen, client.Status())

	connectErr := client.Connect(context.Background())
	assert.ErrorIs(t, connectErr, errors.ErrCircuitOpen)
}

func TestConnectionStatus_String(t *testing.T) {
	tests := map[ConnectionStatus]string{
		StatusDisconnected:  "disconnected",
		StatusConnecting:    "connecting",
		StatusConnected:     "connected",
		StatusReconnecting:  "reconnecting",
		StatusCircuitOpen:   "circuit_open",
		ConnectionStatus(9): "unknown",
	}
	for status, want := range tests {
		assert.Equal(t, want, status.String())
	}
}

func TestIsAlreadyExistsError(t *testing.T) {
	tests := map[string]struct {
		err  error
		want bool
	}{
		"nil":           {nil, false},
		"bucket in use":  {stderrors.New("bucket name already in use"), true},
		"already exists": {stderrors.New("stream already exists"), true},
		"stream in use":  {stderrors.New("stream name already in use"), true},
		"unrelated":     {stderrors.New("connection refused"), false},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, isAlreadyExistsError(tc.err))
		})
	}
}
