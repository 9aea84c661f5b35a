package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbon-capture-ai/internal/apperr"
)

func TestPeakConcurrencyBounded(t *testing.T) {
	const workers = 3
	p := New(workers)
	defer p.Shutdown(context.Background())

	var current, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := Do(context.Background(), p, func(context.Context) (int, error) {
				n := current.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				current.Add(-1)
				return i * 2, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, i*2, v)
		}(i)
	}
	wg.Wait()
	require.NoError(t, p.Shutdown(context.Background()))

	assert.LessOrEqual(t, peak.Load(), int64(workers))
	assert.Equal(t, int64(0), p.InFlight())
}

func TestQueuedJobsRunInArrivalOrder(t *testing.T) {
	p := New(1)
	defer p.Shutdown(context.Background())

	release := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func() { <-release }))

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := p.Submit(context.Background(), func() {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
			})
			assert.NoError(t, err)
		}(i)
		// let submitter i block on the send before the next one arrives
		time.Sleep(20 * time.Millisecond)
	}

	close(release)
	wg.Wait()
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestShutdownWaitsForRunningJobs(t *testing.T) {
	p := New(2)

	var finished atomic.Bool
	started := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func() {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	}))
	<-started

	require.NoError(t, p.Shutdown(context.Background()))
	assert.True(t, finished.Load())

	err := p.Submit(context.Background(), func() {})
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))

	_, err = Do(context.Background(), p, func(context.Context) (int, error) { return 1, nil })
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
}

func TestShutdownHonorsContext(t *testing.T) {
	p := New(1)
	release := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestDoDeadlineWhileQueued(t *testing.T) {
	p := New(1)
	defer p.Shutdown(context.Background())

	release := make(chan struct{})
	defer close(release)
	require.NoError(t, p.Submit(context.Background(), func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := Do(ctx, p, func(context.Context) (string, error) { return "never", nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDoPropagatesError(t *testing.T) {
	p := New(2)
	defer p.Shutdown(context.Background())

	boom := errors.New("boom")
	_, err := Do(context.Background(), p, func(context.Context) (float64, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
}

func TestInFlightHook(t *testing.T) {
	var mu sync.Mutex
	var seen []int64
	p := New(1, WithInFlightHook(func(n int64) {
		mu.Lock()
		seen = append(seen, n)
		mu.Unlock()
	}))

	_, err := Do(context.Background(), p, func(context.Context) (int, error) { return 0, nil })
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{1, 0}, seen)
}

func TestDoTimeoutExcludesQueueWait(t *testing.T) {
	p := New(1)
	defer p.Shutdown(context.Background())

	require.NoError(t, p.Submit(context.Background(), func() { time.Sleep(60 * time.Millisecond) }))

	v, err := DoTimeout(context.Background(), p, 20*time.Millisecond, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestDoTimeoutExpiresWhileRunning(t *testing.T) {
	p := New(1)
	defer p.Shutdown(context.Background())

	release := make(chan struct{})
	defer close(release)
	start := time.Now()
	_, err := DoTimeout(context.Background(), p, 20*time.Millisecond, func(context.Context) (int, error) {
		<-release
		return 0, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
