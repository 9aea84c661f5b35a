// Package workerpool runs inference calls on a fixed number of goroutines.
// Submitters beyond the worker count wait in arrival order.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"carbon-capture-ai/internal/apperr"
)

// DefaultWorkers is the pool size used when a non-positive size is requested
const DefaultWorkers = 4

// ErrClosed is returned by Submit after Shutdown has started
var ErrClosed = apperr.New(apperr.KindUnavailable, "workerpool", "worker pool is shut down")

// Pool is a bounded worker pool. The job channel is unbuffered, so a job is
// handed directly to an idle worker and blocked senders are served first come
// first served.
type Pool struct {
	size     int
	jobs     chan func()
	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
	inFlight atomic.Int64
	onChange func(inFlight int64)
	logger   *zap.Logger
}

// Option configures a Pool
type Option func(*Pool)

// WithInFlightHook registers a callback invoked whenever the in-flight count changes
func WithInFlightHook(fn func(inFlight int64)) Option {
	return func(p *Pool) { p.onChange = fn }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New starts a pool with size workers
func New(size int, opts ...Option) *Pool {
	if size <= 0 {
		size = DefaultWorkers
	}
	p := &Pool{
		size:   size,
		jobs:   make(chan func()),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker(i)
	}
	p.logger.Info("Worker pool started", zap.Int("workers", size))
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.track(1)
		job()
		p.track(-1)
	}
	p.logger.Debug("Worker stopped", zap.Int("worker", id))
}

func (p *Pool) track(delta int64) {
	n := p.inFlight.Add(delta)
	if p.onChange != nil {
		p.onChange(n)
	}
}

// Size returns the number of workers
func (p *Pool) Size() int {
	return p.size
}

// InFlight returns the number of jobs currently executing
func (p *Pool) InFlight() int64 {
	return p.inFlight.Load()
}

// Submit hands job to a worker, blocking until one is free. It returns
// ctx.Err() if ctx ends first and ErrClosed once Shutdown has begun.
func (p *Pool) Submit(ctx context.Context, job func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting work and waits for running jobs to finish or ctx to end
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Worker pool stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
	}
}

type result[T any] struct {
	value T
	err   error
}

// Do runs fn on the pool and waits for its result. If ctx ends while fn is
// running, Do returns ctx.Err() and fn keeps its worker until it returns.
func Do[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	out := make(chan result[T], 1)

	err := p.Submit(ctx, func() {
		if err := ctx.Err(); err != nil {
			out <- result[T]{err: err}
			return
		}
		v, err := fn(ctx)
		out <- result[T]{value: v, err: err}
	})
	if err != nil {
		return zero, err
	}

	select {
	case r := <-out:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// DoTimeout is Do with a run deadline that starts once a worker picks fn up.
// Time spent queued counts only against ctx. When the deadline passes
// DoTimeout returns context.DeadlineExceeded.
func DoTimeout[T any](ctx context.Context, p *Pool, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	out := make(chan result[T], 1)
	started := make(chan struct{})

	err := p.Submit(ctx, func() {
		close(started)
		if err := ctx.Err(); err != nil {
			out <- result[T]{err: err}
			return
		}
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		v, err := fn(runCtx)
		out <- result[T]{value: v, err: err}
	})
	if err != nil {
		return zero, err
	}

	select {
	case <-started:
	case r := <-out:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-out:
		return r.value, r.err
	case <-timer.C:
		return zero, context.DeadlineExceeded
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
