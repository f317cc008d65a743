// Package errors provides standardized error handling patterns for kotoba components.
//
// # Overview
//
// The errors package implements a three-class error classification system for the
// transformation engine: Transient (temporary, retryable), Invalid (bad input,
// non-retryable), and Fatal (unrecoverable, stop processing).
//
// This classification lets components make informed decisions about retries,
// graceful degradation, and failure recovery without hardcoded error string
// matching: activity execution retries transient failures, rule registration
// rejects invalid definitions immediately, and the engine stops on fatal errors.
//
// # Error Classification
//
// Errors are classified by the wrapper that produced them or, failing
// that, by the sentinel in their chain:
//
//   - Transient: connection loss, circuit-open refusals, shutdown races (retry recommended)
//   - Invalid: malformed rule/strategy definitions, validation failures, absent lookups (do not retry)
//   - Fatal: missing required configuration, unrecoverable states (stop processing)
//
// The classification system integrates with Go's standard error handling,
// supporting errors.Is(), errors.As(), and error wrapping chains.
//
// # Quick Start
//
// Use standard error variables for common conditions:
//
//	if !busConnected {
//	    return errors.ErrNoConnection
//	}
//
// Wrap errors with context for debugging:
//
//	if err := rule.Validate(); err != nil {
//	    return errors.WrapInvalid(err, "Catalog", "PutRule", "validate gluing condition")
//	}
//
// Check classification for retry logic:
//
//	if err := executor.Execute(ctx, inputs); err != nil {
//	    if errors.IsTransient(err) {
//	        // retry with exponential backoff
//	    } else if errors.IsFatal(err) {
//	        // stop processing, escalate to operator
//	    }
//	}
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// This format enables consistent log parsing and debugging across the engine.
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Component", "Method", "action")  // For retryable errors
//	errors.WrapInvalid(err, "Component", "Method", "action")    // For validation errors
//	errors.WrapFatal(err, "Component", "Method", "action")      // For unrecoverable errors
//
// Wrap (without classification) applies the format while leaving the class to be
// inferred from the underlying error.
//
// # Retry Integration
//
// RetryConfig bridges classification into the pkg/retry framework:
//
//	cfg := errors.DefaultRetryConfig().ToRetryConfig()
//	err := retry.Do(ctx, cfg, func() error {
//	    err := op()
//	    if err != nil && !errors.IsTransient(err) {
//	        return retry.NonRetryable(err)
//	    }
//	    return err
//	})
//
// Marking non-transient failures with retry.NonRetryable keeps invalid
// and fatal errors from burning the attempt budget. The engine uses this
// pattern for its startup NATS connect.
package errors
