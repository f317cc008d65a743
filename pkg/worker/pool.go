package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultWorkers  = 4
	defaultCapacity = 256
)

// Pool feeds tasks of type T to a bounded set of workers through a bounded
// queue. Submit never blocks: a full queue rejects the task and the caller
// decides whether to run it inline, drop it, or back off.
type Pool[T any] struct {
	handler  func(context.Context, T) error
	workers  int
	capacity int
	tasks    chan T

	mu    sync.RWMutex
	state poolState
	wg    sync.WaitGroup

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	metrics     *poolMetrics
	registry    registrar
	metricsName string
}

type poolState int

const (
	poolIdle poolState = iota
	poolRunning
	poolStopped
)

// Option configures a pool at construction time.
type Option[T any] func(*Pool[T])

// WithMetricsRegistry registers the pool's metrics under the given name
// prefix. A registration failure leaves the pool unmetered; everything else
// keeps working.
func WithMetricsRegistry[T any](registry registrar, prefix string) Option[T] {
	return func(p *Pool[T]) {
		p.registry = registry
		p.metricsName = prefix
	}
}

// NewPool builds a pool of the given size around the handler. Non-positive
// sizes take the defaults. A nil handler is a programming error and panics.
func NewPool[T any](workers, capacity int, handler func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if handler == nil {
		panic("worker: nil handler")
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	if capacity <= 0 {
		capacity = defaultCapacity
	}

	p := &Pool[T]{
		handler:  handler,
		workers:  workers,
		capacity: capacity,
		tasks:    make(chan T, capacity),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.registry != nil && p.metricsName != "" {
		p.metrics, _ = newPoolMetrics(p.registry, p.metricsName)
	}
	return p
}

// Start launches the workers. They run until the context ends or Stop
// closes the queue.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case poolRunning:
		return ErrAlreadyStarted
	case poolStopped:
		return ErrStopped
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
	p.state = poolRunning
	return nil
}

// Stop closes the queue and waits for the workers to drain it. Stopping an
// idle or already stopped pool is a no-op.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if p.state != poolRunning {
		p.mu.Unlock()
		return nil
	}
	p.state = poolStopped
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Submit queues a task without blocking. It fails with ErrQueueFull when
// the queue is at capacity.
func (p *Pool[T]) Submit(task T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	switch p.state {
	case poolIdle:
		return ErrNotStarted
	case poolStopped:
		return ErrStopped
	}

	select {
	case p.tasks <- task:
		p.submitted.Add(1)
		p.metrics.submit(len(p.tasks), p.capacity)
		return nil
	default:
		p.dropped.Add(1)
		p.metrics.drop()
		return ErrQueueFull
	}
}

// Stats returns a point-in-time view of the pool's counters.
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		QueueSize:  p.capacity,
		QueueDepth: len(p.tasks),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
	}
}

// PoolStats describes a pool's configuration and traffic so far.
type PoolStats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

// run consumes tasks until the context ends or the queue closes. A closed
// queue is drained first, so Stop delivers everything already accepted.
func (p *Pool[T]) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			start := time.Now()
			err := p.handler(ctx, task)
			p.processed.Add(1)
			if err != nil {
				p.failed.Add(1)
			}
			p.metrics.handled(err, time.Since(start), len(p.tasks), p.capacity)
		}
	}
}
