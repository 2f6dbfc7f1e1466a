package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	q := NewRedisQueue(rdb, "test:jobs")
	q.pollInterval = 10 * time.Millisecond
	return q, mr, rdb
}

func TestRedisQueue_FIFO(t *testing.T) {
	q, mr, _ := newRedisQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, GenerateReport{ReportID: 1}))
	require.NoError(t, q.Enqueue(ctx, CollectMetrics{}))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.True(t, mr.Exists("test:jobs:ready"))

	j, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, GenerateReport{ReportID: 1}, j)

	j, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, CollectMetrics{}, j)
}

func TestRedisQueue_SurvivesNewConsumer(t *testing.T) {
	q, _, rdb := newRedisQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, GenerateReport{ReportID: 9}))

	other := NewRedisQueue(rdb, "test:jobs")
	j, err := other.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, GenerateReport{ReportID: 9}, j)
}

func TestRedisQueue_DelayedJobsArePromotedWhenDue(t *testing.T) {
	q, mr, _ := newRedisQueue(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	require.NoError(t, q.Schedule(ctx, GenerateReport{ReportID: 3}, time.Minute))
	require.NoError(t, q.Schedule(ctx, GenerateReport{ReportID: 3}, time.Minute))
	members, err := mr.ZMembers("test:jobs:delayed")
	require.NoError(t, err)
	assert.Len(t, members, 2, "identical jobs stay distinct")

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = q.Dequeue(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	now = now.Add(time.Minute)
	for range 2 {
		j, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, GenerateReport{ReportID: 3}, j)
	}
	assert.False(t, mr.Exists("test:jobs:delayed"))
}

func TestRedisQueue_ScheduleWithoutDelayEnqueues(t *testing.T) {
	q, _, _ := newRedisQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Schedule(ctx, CollectMetrics{}, 0))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisQueue_UndecodablePayload(t *testing.T) {
	q, mr, _ := newRedisQueue(t)
	_, err := mr.Lpush("test:jobs:ready", `{"kind":"format_disks"}`)
	require.NoError(t, err)

	_, err = q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestRedisQueue_Close(t *testing.T) {
	q, _, _ := newRedisQueue(t)
	ctx := context.Background()
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Enqueue(ctx, CollectMetrics{}), ErrQueueClosed)
	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	q, err := DialRedis(ctx, RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, CollectMetrics{}))
	assert.True(t, mr.Exists("fleetmon:jobs:ready"))
	require.NoError(t, q.Close())

	mr.Close()
	_, err = DialRedis(ctx, RedisConfig{Addr: mr.Addr()})
	assert.Error(t, err)
}
