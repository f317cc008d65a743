package worker

import "errors"

var (
	// ErrNotStarted rejects a Submit on a pool whose workers are not
	// running yet.
	ErrNotStarted = errors.New("worker: pool not started")

	// ErrStopped rejects Submit and Start after Stop.
	ErrStopped = errors.New("worker: pool stopped")

	// ErrAlreadyStarted rejects a second Start.
	ErrAlreadyStarted = errors.New("worker: pool already started")

	// ErrQueueFull rejects a Submit when the queue is at capacity.
	ErrQueueFull = errors.New("worker: queue full")

	// ErrStopTimeout reports workers still busy when the Stop deadline
	// passed.
	ErrStopTimeout = errors.New("worker: stop timed out")
)
