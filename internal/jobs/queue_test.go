package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_FIFO(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, GenerateReport{ReportID: 1}))
	require.NoError(t, q.Enqueue(ctx, GenerateReport{ReportID: 2}))
	assert.Equal(t, 2, q.Len())

	for _, want := range []int64{1, 2} {
		j, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, GenerateReport{ReportID: want}, j)
	}
}

func TestMemoryQueue_DequeueHonoursContext(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryQueue_EnqueueBlocksWhenFull(t *testing.T) {
	q := NewMemoryQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), CollectMetrics{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Enqueue(ctx, CollectMetrics{}), context.DeadlineExceeded)
}

func TestMemoryQueue_Close(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, CollectMetrics{}))
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Enqueue(ctx, CollectMetrics{}), ErrQueueClosed)
	assert.ErrorIs(t, q.Schedule(ctx, CollectMetrics{}, time.Second), ErrQueueClosed)

	// Already queued work is still handed out.
	j, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, CollectMetrics{}, j)

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestMemoryQueue_Schedule(t *testing.T) {
	q := NewMemoryQueue(4)
	defer q.Close()
	ctx := context.Background()

	require.NoError(t, q.Schedule(ctx, GenerateReport{ReportID: 5}, 30*time.Millisecond))
	assert.Equal(t, 0, q.Len())

	dctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	j, err := q.Dequeue(dctx)
	require.NoError(t, err)
	assert.Equal(t, GenerateReport{ReportID: 5}, j)
}

func TestMemoryQueue_DrainFollowsChains(t *testing.T) {
	q := NewMemoryQueue(8)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, ScheduleDailyReports{}))

	var handled []Job
	h := HandlerFunc(func(ctx context.Context, j Job) error {
		handled = append(handled, j)
		if _, ok := j.(ScheduleDailyReports); ok {
			require.NoError(t, q.Enqueue(ctx, GenerateReport{ReportID: 1}))
			require.NoError(t, q.Enqueue(ctx, GenerateReport{ReportID: 2}))
			return nil
		}
		if j.(GenerateReport).ReportID == 2 {
			return errors.New("report 2 failed")
		}
		return nil
	})

	err := q.Drain(ctx, h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report 2 failed")
	assert.Equal(t, []Job{ScheduleDailyReports{}, GenerateReport{ReportID: 1}, GenerateReport{ReportID: 2}}, handled)
	assert.Equal(t, 0, q.Len())
}

func TestMemoryQueue_DrainOverflowsCapacity(t *testing.T) {
	q := NewMemoryQueue(2)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Enqueue(ctx, ScheduleDailyReports{}))

	var handled []Job
	h := HandlerFunc(func(ctx context.Context, j Job) error {
		handled = append(handled, j)
		if _, ok := j.(ScheduleDailyReports); ok {
			for id := range int64(5) {
				require.NoError(t, q.Enqueue(ctx, GenerateReport{ReportID: id + 1}))
			}
			assert.Equal(t, 5, q.Len())
		}
		return nil
	})

	require.NoError(t, q.Drain(ctx, h))
	want := []Job{ScheduleDailyReports{}}
	for id := range int64(5) {
		want = append(want, GenerateReport{ReportID: id + 1})
	}
	assert.Equal(t, want, handled)
	assert.Equal(t, 0, q.Len())
}

func TestMemoryQueue_EnqueueBlocksAgainAfterDrain(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()
	require.NoError(t, q.Drain(ctx, HandlerFunc(func(context.Context, Job) error { return nil })))
	require.NoError(t, q.Enqueue(ctx, CollectMetrics{}))

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Enqueue(short, CollectMetrics{}), context.DeadlineExceeded)
}
