package queue_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/eventhub/pkg/eventhub/queue"
)

func TestLane_RunsInSubmissionOrder(t *testing.T) {
	lane := queue.NewLane("lane")
	defer lane.Close()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, lane.Submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}

	require.NoError(t, lane.Run(context.Background(), func() {}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestLane_NeverRunsConcurrently(t *testing.T) {
	lane := queue.NewLane("lane")
	defer lane.Close()

	var running, maxRunning atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = lane.Run(context.Background(), func() {
				n := running.Add(1)
				for {
					m := maxRunning.Load()
					if n <= m || maxRunning.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				running.Add(-1)
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxRunning.Load())
}

func TestLane_PanicIsContained(t *testing.T) {
	lane := queue.NewLane("lane")
	defer lane.Close()

	require.NoError(t, lane.Run(context.Background(), func() { panic("boom") }))

	var ran atomic.Bool
	require.NoError(t, lane.Run(context.Background(), func() { ran.Store(true) }))
	assert.True(t, ran.Load())
}

func TestLane_RunRespectsContext(t *testing.T) {
	lane := queue.NewLane("lane")
	defer lane.Close()

	release := make(chan struct{})
	require.NoError(t, lane.Submit(func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := lane.Run(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

func TestLane_Closed(t *testing.T) {
	lane := queue.NewLane("lane")
	lane.Close()

	assert.ErrorIs(t, lane.Submit(func() {}), queue.ErrClosed)
	assert.ErrorIs(t, lane.Run(context.Background(), func() {}), queue.ErrClosed)

	select {
	case <-lane.Done():
	case <-time.After(time.Second):
		t.Fatal("lane goroutine did not exit")
	}
}
