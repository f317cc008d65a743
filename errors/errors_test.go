package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/com-junkawasaki/kotoba-sub011/pkg/retry"
)

func TestWrapFormat(t *testing.T) {
	cause := errors.New("dangling edge")
	err := Wrap(cause, "Rule", "Validate", "check gluing condition")

	require.Error(t, err)
	assert.Equal(t, "Rule.Validate: check gluing condition failed: dangling edge", err.Error())
	assert.True(t, errors.Is(err, cause))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "C", "M", "a"))
	assert.NoError(t, WrapTransient(nil, "C", "M", "a"))
	assert.NoError(t, WrapInvalid(nil, "C", "M", "a"))
	assert.NoError(t, WrapFatal(nil, "C", "M", "a"))
}

func TestWrapClassified(t *testing.T) {
	tests := []struct {
		name  string
		wrap  func(error, string, string, string) error
		class ErrorClass
	}{
		{"transient", WrapTransient, ErrorTransient},
		{"invalid", WrapInvalid, ErrorInvalid},
		{"fatal", WrapFatal, ErrorFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.wrap(ErrNoConnection, "Bus", "Publish", "send event")

			assert.Equal(t, tt.class, Classify(err))
			assert.True(t, errors.Is(err, ErrNoConnection))
			assert.Equal(t, "Bus.Publish: send event failed: no connection available", err.Error())

			var ce *ClassifiedError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, "Bus", ce.Component)
			assert.Equal(t, "Publish", ce.Operation)
		})
	}
}

func TestClassifyExplicitClassWins(t *testing.T) {
	// The wrapper's class overrides whatever the sentinel would imply.
	err := WrapInvalid(ErrNoConnection, "Catalog", "PutRule", "store definition")
	assert.True(t, IsInvalid(err))
	assert.False(t, IsTransient(err))

	// With nested wrappers the outermost classification is the one the
	// caller sees.
	inner := WrapInvalid(ErrInvalidData, "Rule", "Validate", "check morphism")
	outer := WrapTransient(inner, "Catalog", "PutRule", "store definition")
	assert.True(t, IsTransient(outer))
	assert.False(t, IsInvalid(outer))
}

func TestClassifySentinels(t *testing.T) {
	tests := []struct {
		err   error
		class ErrorClass
	}{
		{ErrNoConnection, ErrorTransient},
		{ErrCircuitOpen, ErrorTransient},
		{ErrShuttingDown, ErrorTransient},
		{ErrInvalidData, ErrorInvalid},
		{ErrNotRegistered, ErrorInvalid},
		{ErrDuplicateName, ErrorInvalid},
		{ErrKeyNotFound, ErrorInvalid},
		{ErrMissingConfig, ErrorFatal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.class, Classify(tt.err))
			// Wrapping without a class keeps the sentinel's class visible.
			assert.Equal(t, tt.class, Classify(fmt.Errorf("outer: %w", tt.err)))
		})
	}
}

func TestClassifyDefaultsToTransient(t *testing.T) {
	assert.Equal(t, ErrorTransient, Classify(errors.New("never seen before")))
	assert.Equal(t, ErrorTransient, Classify(context.Canceled))
	assert.Equal(t, ErrorTransient, Classify(context.DeadlineExceeded))
}

func TestPredicatesRejectNil(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsInvalid(nil))
	assert.False(t, IsFatal(nil))
}

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}

func TestDefaultRetryConfig(t *testing.T) {
	rc := DefaultRetryConfig()
	assert.Equal(t, 3, rc.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, rc.InitialDelay)
	assert.Equal(t, 5*time.Second, rc.MaxDelay)
	assert.Equal(t, 2.0, rc.BackoffFactor)
}

func TestToRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig().ToRetryConfig()

	// MaxRetries counts retries after the first attempt, pkg/retry counts
	// total attempts.
	assert.Equal(t, 4, cfg.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 5*time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
	assert.True(t, cfg.AddJitter)
}

func TestRetryBridgeRetriesTransient(t *testing.T) {
	rc := RetryConfig{MaxRetries: 2, InitialDelay: time.Microsecond, MaxDelay: time.Microsecond, BackoffFactor: 1}

	calls := 0
	err := retry.Do(context.Background(), rc.ToRetryConfig(), func() error {
		calls++
		return WrapTransient(ErrNoConnection, "Bus", "Publish", "send event")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, errors.Is(err, ErrNoConnection))
}

func TestRetryBridgeStopsOnInvalid(t *testing.T) {
	rc := RetryConfig{MaxRetries: 5, InitialDelay: time.Microsecond, MaxDelay: time.Microsecond, BackoffFactor: 1}

	calls := 0
	err := retry.Do(context.Background(), rc.ToRetryConfig(), func() error {
		calls++
		ferr := WrapInvalid(ErrInvalidData, "Rule", "Validate", "check morphism")
		if !IsTransient(ferr) {
			return retry.NonRetryable(ferr)
		}
		return ferr
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, IsInvalid(err))
}
