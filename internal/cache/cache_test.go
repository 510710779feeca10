package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personal-analytics/internal/log"
	"personal-analytics/internal/metrics"
)

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	_, _ = c.Get("a")
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b was least recently used")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Size())
}

func TestLRUCacheExpiry(t *testing.T) {
	now := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("old", "x")
	now = now.Add(30 * time.Second)
	c.Set("new", "y")
	now = now.Add(45 * time.Second)

	_, ok := c.Get("old")
	assert.False(t, ok)
	assert.Equal(t, 0, c.CleanExpired(), "Get already removed the expired entry")

	now = now.Add(time.Minute)
	assert.Equal(t, 1, c.CleanExpired())
	assert.Zero(t, c.Size())
}

func TestLRUCacheClearAndDelete(t *testing.T) {
	c := NewLRUCache[int](4, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Delete("a")
	assert.Equal(t, 1, c.Size())

	assert.Equal(t, 1, c.Clear())
	assert.Zero(t, c.Size())
	c.Set("c", 3)
	assert.Equal(t, 1, c.Size())
}

func TestLoadingSharesConcurrentLoads(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := metrics.NewManager(metrics.WithRegistry(registry))
	l := NewLoading[int](NewLRUCache[int](8, time.Minute), m)

	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := l.GetOrLoad(context.Background(), "summary:7d", load)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []int{42, 42, 42, 42, 42}, results)

	v, err := l.GetOrLoad(context.Background(), "summary:7d", load)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, int32(1), calls.Load(), "second lookup is a hit")

	series, err := testutil.GatherAndCount(registry, "ppa_cache_lookups_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series, "hit and miss")
}

func TestLoadingDoesNotCacheErrors(t *testing.T) {
	l := NewLoading[string](NewLRUCache[string](8, time.Minute), nil)
	boom := errors.New("store closed")

	_, err := l.GetOrLoad(context.Background(), "k", func(context.Context) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)

	v, err := l.GetOrLoad(context.Background(), "k", func(context.Context) (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	assert.Equal(t, 1, l.Invalidate())
}

func TestManagerCleanup(t *testing.T) {
	c := NewLRUCache[int](4, time.Millisecond)
	c.Set("a", 1)

	m := NewManager(log.Discard())
	m.Register(c)
	m.StartCleanup(5 * time.Millisecond)

	assert.Eventually(t, func() bool { return c.Size() == 0 }, time.Second, 5*time.Millisecond)
	m.Stop()
	m.Stop()
	m.StartCleanup(time.Millisecond)
}

func TestManagerStopWithoutStart(t *testing.T) {
	m := NewManager(nil)
	assert.NotPanics(t, m.Stop)
}
