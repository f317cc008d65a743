// Package retry runs an operation with exponential backoff until it
// succeeds, exhausts its attempts, or fails in a way retrying cannot fix.
//
// It backs the activity retry policies of the workflow runner: the policy's
// attempt count, interval growth and cap map directly onto Config, and an
// activity whose error matches a non-retryable name short-circuits the loop
// via NonRetryable.
//
// Retry with a result:
//
//	outputs, err := retry.DoWithResult(ctx, cfg, func() (map[string]any, error) {
//	    return executor.Execute(ctx, inputs)
//	})
//
// Terminal failures stop immediately:
//
//	if invalidInput(err) {
//	    return nil, retry.NonRetryable(err)
//	}
//
// The loop observes context cancellation between attempts and during the
// backoff sleep. The OnRetry hook fires before each sleep, which is where
// the runner appends its attempt-history events.
//
// Deliberately not here: circuit breaking (the NATS client carries its
// own) and metrics (call sites record attempts with their own labels).
package retry
