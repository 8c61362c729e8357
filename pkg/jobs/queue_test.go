package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueRejectsBeforeStartAndAfterStop(t *testing.T) {
	q := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{Workers: 1})
	assert.ErrorIs(t, q.Enqueue(Job{ID: "early"}), ErrQueueClosed)

	q.Start(context.Background())
	require.NoError(t, q.Enqueue(Job{ID: "ok"}))
	q.Stop()

	assert.ErrorIs(t, q.Enqueue(Job{ID: "late"}), ErrQueueClosed)
	assert.NotPanics(t, q.Stop)
}

func TestEnqueueReportsFullBufferWithoutBlocking(t *testing.T) {
	release := make(chan struct{})
	q := NewQueue("test", func(ctx context.Context, _ Job) error {
		<-release
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer q.Stop()
	defer close(release)

	require.NoError(t, q.Enqueue(Job{ID: "1"}))
	require.Eventually(t, func() bool { return q.Pending() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, q.Enqueue(Job{ID: "2"}))
	assert.ErrorIs(t, q.Enqueue(Job{ID: "3"}), ErrQueueFull)
}

func TestStopDrainsBufferedJobs(t *testing.T) {
	var handled int32
	gate := make(chan struct{})
	q := NewQueue("test", func(ctx context.Context, _ Job) error {
		<-gate
		atomic.AddInt32(&handled, 1)
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 8, DrainTimeout: time.Second})

	parent, cancel := context.WithCancel(context.Background())
	q.Start(parent)
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(Job{ID: string(rune('a' + i))}))
	}
	cancel()
	close(gate)
	q.Stop()

	assert.Equal(t, int32(5), atomic.LoadInt32(&handled))
}

func TestStopAbandonsJobsAfterDrainTimeout(t *testing.T) {
	var handled int32
	q := NewQueue("test", func(ctx context.Context, _ Job) error {
		atomic.AddInt32(&handled, 1)
		<-ctx.Done()
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 4, DrainTimeout: 20 * time.Millisecond})
	q.Start(context.Background())
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(Job{ID: "slow"}))
	}

	start := time.Now()
	q.Stop()
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&handled))
}

func TestFailedJobsAreRetriedUntilLimit(t *testing.T) {
	var mu sync.Mutex
	attempts := map[string][]int{}
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		attempts[job.ID] = append(attempts[job.ID], job.Attempt)
		if job.ID == "flaky" && job.Attempt < 1 {
			return errors.New("transient")
		}
		if job.ID == "broken" {
			return errors.New("permanent")
		}
		return nil
	}, QueueConfig{Workers: 2, MaxRetries: 2, RetryDelay: time.Millisecond})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(Job{ID: "flaky"}))
	require.NoError(t, q.Enqueue(Job{ID: "broken"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(attempts["flaky"]) == 2 && len(attempts["broken"]) == 3
	}, time.Second, 5*time.Millisecond)
	q.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1}, attempts["flaky"])
	assert.Equal(t, []int{0, 1, 2}, attempts["broken"])
}
