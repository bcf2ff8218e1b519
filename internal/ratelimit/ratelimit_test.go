package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireUnderCapacity(t *testing.T) {
	l := New(10, time.Second)
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Acquire(context.Background(), 1, time.Second))
	}
	assert.Equal(t, 0, l.AvailableCapacity())
}

func TestAcquireBlocksUntilWindowSlides(t *testing.T) {
	l := New(10, time.Second)

	type result struct {
		elapsed time.Duration
		err     error
	}
	start := time.Now()
	results := make(chan result, 15)

	var wg sync.WaitGroup
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Acquire(context.Background(), 1, 5*time.Second)
			results <- result{elapsed: time.Since(start), err: err}
		}()
	}
	wg.Wait()
	close(results)

	var fast, slow int
	for r := range results {
		require.NoError(t, r.err)
		if r.elapsed < 100*time.Millisecond {
			fast++
		} else if r.elapsed > 900*time.Millisecond {
			slow++
		}
	}
	assert.Equal(t, 10, fast, "first batch should be admitted immediately")
	assert.Equal(t, 5, slow, "overflow should wait for the window to slide")
}

func TestAcquireTimeout(t *testing.T) {
	l := New(2, time.Hour)
	require.NoError(t, l.Acquire(context.Background(), 2, time.Second))

	err := l.Acquire(context.Background(), 1, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrAcquireTimeout)
}

func TestAcquireRespectsContext(t *testing.T) {
	l := New(1, time.Hour)
	require.NoError(t, l.Acquire(context.Background(), 1, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Acquire(ctx, 1, time.Hour) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after context cancellation")
	}
}

func TestAcquireMoreThanWindow(t *testing.T) {
	l := New(5, time.Second)
	err := l.Acquire(context.Background(), 6, time.Second)
	assert.Error(t, err)
}

func TestRecordConsumesCapacity(t *testing.T) {
	l := New(10, time.Second)
	l.Record(4)
	assert.Equal(t, 6, l.AvailableCapacity())
	l.Record(6)
	assert.Equal(t, 0, l.AvailableCapacity())
}
