package cache

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

func counter(n *atomic.Int32, v string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		n.Add(1)
		return v, nil
	}
}

func TestGetOrLoad_CachesValue(t *testing.T) {
	c := New(0)
	ctx := context.Background()
	var loads atomic.Int32

	v, err := GetOrLoad(ctx, c, TagLatestMetrics, "all", counter(&loads, "first"))
	require.NoError(t, err)
	assert.Equal(t, "first", v)

	v, err = GetOrLoad(ctx, c, TagLatestMetrics, "all", counter(&loads, "second"))
	require.NoError(t, err)
	assert.Equal(t, "first", v)
	assert.Equal(t, int32(1), loads.Load())
	assert.Equal(t, 1, c.Len())
}

func TestEvictByTag(t *testing.T) {
	c := New(0)
	ctx := context.Background()
	var loads atomic.Int32

	_, err := GetOrLoad(ctx, c, TagLatestMetrics, "a", counter(&loads, "a1"))
	require.NoError(t, err)
	_, err = GetOrLoad(ctx, c, TagLatestMetrics, "b", counter(&loads, "b1"))
	require.NoError(t, err)
	_, err = GetOrLoad(ctx, c, "other", "a", counter(&loads, "o1"))
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len())

	c.EvictByTag(TagLatestMetrics)
	assert.Equal(t, 1, c.Len())

	v, err := GetOrLoad(ctx, c, TagLatestMetrics, "a", counter(&loads, "a2"))
	require.NoError(t, err)
	assert.Equal(t, "a2", v)

	v, err = GetOrLoad(ctx, c, "other", "a", counter(&loads, "o2"))
	require.NoError(t, err)
	assert.Equal(t, "o1", v)
}

func TestEvictByTag_UnknownTag(t *testing.T) {
	c := New(0)
	assert.NotPanics(t, func() { c.EvictByTag("nothing") })
}

func TestGetOrLoad_ErrorNotCached(t *testing.T) {
	c := New(0)
	ctx := context.Background()

	_, err := GetOrLoad(ctx, c, "t", "k", func(context.Context) (int, error) {
		return 0, errors.New("database is locked")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
	assert.Equal(t, 0, c.Len())

	v, err := GetOrLoad(ctx, c, "t", "k", func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestGetOrLoad_Expiry(t *testing.T) {
	c := New(time.Minute)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()
	var loads atomic.Int32

	_, err := GetOrLoad(ctx, c, "t", "k", counter(&loads, "x"))
	require.NoError(t, err)

	now = now.Add(59 * time.Second)
	_, err = GetOrLoad(ctx, c, "t", "k", counter(&loads, "x"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), loads.Load())

	now = now.Add(time.Second)
	_, err = GetOrLoad(ctx, c, "t", "k", counter(&loads, "x"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), loads.Load())
}

func TestGetOrLoad_EvictionDuringLoadIsNotStored(t *testing.T) {
	c := New(0)
	ctx := context.Background()

	v, err := GetOrLoad(ctx, c, "t", "k", func(context.Context) (string, error) {
		c.EvictByTag("t")
		return "stale", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "stale", v)
	assert.Equal(t, 0, c.Len())
}

func TestGetOrLoad_TypeMismatch(t *testing.T) {
	c := New(0)
	ctx := context.Background()

	_, err := GetOrLoad(ctx, c, "t", "k", func(context.Context) (string, error) { return "s", nil })
	require.NoError(t, err)

	// A hit of the wrong type is treated as a miss.
	n, err := GetOrLoad(ctx, c, "t", "k", func(context.Context) (int, error) { return 3, nil })
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestGetOrLoad_Concurrent(t *testing.T) {
	c := New(0)
	ctx := context.Background()
	var loads atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := GetOrLoad(ctx, c, "t", "k", func(context.Context) (int, error) {
				loads.Add(1)
				<-release
				return 42, nil
			})
			assert.NoError(t, err)
			results[i] = v
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, 42, v)
	}
	assert.LessOrEqual(t, loads.Load(), int32(8))
	assert.Equal(t, 1, c.Len())
}
