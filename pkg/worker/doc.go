// Package worker provides a generic worker pool for concurrent task processing.
//
// # Overview
//
// Pool[T] processes work items of any type T with a fixed number of workers and
// a bounded queue. The rewrite scheduler uses it to build patches for a batch of
// independent matches concurrently; any component needing bounded concurrency
// can reuse it.
//
// # Quick Start
//
//	pool := worker.NewPool(4, 256, func(ctx context.Context, task patchTask) error {
//	    return task.build(ctx)
//	})
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Stop(5 * time.Second)
//
//	if err := pool.Submit(task); err != nil {
//	    // ErrQueueFull: queue at capacity, caller decides (drop, block, or run inline)
//	}
//
// # Backpressure
//
// Submit never blocks: a full queue returns ErrQueueFull and the item is counted
// as dropped. Callers that cannot afford drops either size the queue to their
// batch bound or fall back to processing the item inline.
//
// # Lifecycle
//
// Start launches the workers; Stop closes the queue and waits up to the given
// timeout for in-flight work to finish. Submitting before Start or after Stop
// returns a sentinel error. The context passed to Start cancels all workers.
//
// # Metrics
//
// With WithMetricsRegistry the pool registers queue depth and utilization
// gauges, submitted/dropped counters, and a status-labelled task-duration
// histogram under the given prefix.
//
//	pool := worker.NewPool(4, 256, handler,
//	    worker.WithMetricsRegistry[patchTask](registry, "rewrite_patch_pool"))
//
// Stats() returns the traffic counters as a plain struct for logs.
package worker
