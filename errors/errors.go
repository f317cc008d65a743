package errors

import (
	"errors"
	"fmt"
	"time"

	"github.com/com-junkawasaki/kotoba-sub011/pkg/retry"
)

// ErrorClass sorts failures by what the caller should do next.
type ErrorClass int

const (
	// ErrorTransient marks failures expected to clear on their own, a bus
	// that is briefly unreachable for example. Retrying is reasonable.
	ErrorTransient ErrorClass = iota
	// ErrorInvalid marks failures caused by the input itself. The same
	// input fails the same way every time, so retrying is pointless.
	ErrorInvalid
	// ErrorFatal marks failures the process cannot work around. Stop and
	// surface the error.
	ErrorFatal
)

func (c ErrorClass) String() string {
	switch c {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Sentinel errors shared across the engine. Callers match them with
// errors.Is and add context with the Wrap helpers.
var (
	// ErrNoConnection reports a bus operation attempted without a live
	// NATS connection.
	ErrNoConnection = errors.New("no connection available")
	// ErrCircuitOpen reports an operation refused because recent failures
	// opened the circuit breaker.
	ErrCircuitOpen = errors.New("circuit breaker open")
	// ErrShuttingDown reports an operation refused because shutdown has
	// already begun.
	ErrShuttingDown = errors.New("component is shutting down")

	// ErrInvalidData reports input that failed validation.
	ErrInvalidData = errors.New("invalid data format")
	// ErrNotRegistered reports a lookup for a name no registry holds.
	ErrNotRegistered = errors.New("definition not registered")
	// ErrDuplicateName reports a registration that would shadow an
	// existing definition.
	ErrDuplicateName = errors.New("definition name already registered")
	// ErrKeyNotFound reports a store lookup for a key that is not there.
	ErrKeyNotFound = errors.New("key not found")

	// ErrMissingConfig reports configuration the component cannot run
	// without.
	ErrMissingConfig = errors.New("missing required configuration")
)

// ClassifiedError records a failure's class and origin alongside the
// underlying error. Build one with WrapTransient, WrapInvalid or
// WrapFatal rather than by hand.
type ClassifiedError struct {
	Class     ErrorClass
	Component string
	Operation string
	Err       error
}

func (e *ClassifiedError) Error() string { return e.Err.Error() }

// Unwrap exposes the wrapped failure to errors.Is and errors.As.
func (e *ClassifiedError) Unwrap() error { return e.Err }

// Classify reports the class of err. An explicit ClassifiedError anywhere
// in the chain wins; otherwise known sentinels carry their natural class,
// and everything else lands on transient so unknown failures stay
// retryable. Context cancellation classifies as transient too: the retry
// loop's own context check is what actually stops it.
func Classify(err error) ErrorClass {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	switch {
	case errors.Is(err, ErrInvalidData),
		errors.Is(err, ErrNotRegistered),
		errors.Is(err, ErrDuplicateName),
		errors.Is(err, ErrKeyNotFound):
		return ErrorInvalid
	case errors.Is(err, ErrMissingConfig):
		return ErrorFatal
	default:
		return ErrorTransient
	}
}

// IsTransient reports whether retrying err is reasonable. A nil error is
// never transient, it is not a failure at all.
func IsTransient(err error) bool {
	return err != nil && Classify(err) == ErrorTransient
}

// IsInvalid reports whether err blames the input.
func IsInvalid(err error) bool {
	return err != nil && Classify(err) == ErrorInvalid
}

// IsFatal reports whether err should stop processing.
func IsFatal(err error) bool {
	return err != nil && Classify(err) == ErrorFatal
}

// Wrap adds origin context in the form "component.method: action failed".
// The class of the result is whatever the chain already carries. A nil
// err stays nil.
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func wrapClass(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{
		Class:     class,
		Component: component,
		Operation: method,
		Err:       Wrap(err, component, method, action),
	}
}

// WrapTransient wraps err with origin context and marks it retryable.
func WrapTransient(err error, component, method, action string) error {
	return wrapClass(ErrorTransient, err, component, method, action)
}

// WrapInvalid wraps err with origin context and pins the blame on the
// input.
func WrapInvalid(err error, component, method, action string) error {
	return wrapClass(ErrorInvalid, err, component, method, action)
}

// WrapFatal wraps err with origin context and marks it unrecoverable.
func WrapFatal(err error, component, method, action string) error {
	return wrapClass(ErrorFatal, err, component, method, action)
}

// RetryConfig states a retry policy in this package's terms: how many
// retries beyond the first attempt, and how the backoff grows between
// them.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig suits short transient outages: three retries with
// backoff that doubles from 100ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// ToRetryConfig translates the policy for pkg/retry, which counts total
// attempts where this package counts retries after the first. Jitter is
// always on so callers hitting the same failing resource spread out.
func (rc RetryConfig) ToRetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  rc.MaxRetries + 1,
		InitialDelay: rc.InitialDelay,
		MaxDelay:     rc.MaxDelay,
		Multiplier:   rc.BackoffFactor,
		AddJitter:    true,
	}
}
