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
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/stacklok/thv-git-api/internal/telemetry"
)

func counting(calls *atomic.Int32, value string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		calls.Add(1)
		return value, nil
	}
}

func TestGetOrCompute_ComputesOncePerKey(t *testing.T) {
	t.Parallel()

	c := New[string]("objects", Options{})
	var calls atomic.Int32

	for range 5 {
		v, err := c.GetOrCompute(context.Background(), "object:demo:abc123", counting(&calls, "content"))
		require.NoError(t, err)
		assert.Equal(t, "content", v)
	}
	assert.Equal(t, int32(1), calls.Load())

	v, err := c.GetOrCompute(context.Background(), "object:demo:def456", counting(&calls, "other"))
	require.NoError(t, err)
	assert.Equal(t, "other", v)
	assert.Equal(t, int32(2), calls.Load(), "a different key computes again")
	assert.Equal(t, 2, c.Len())
}

func TestGetOrCompute_ConcurrentMissesShareOneComputation(t *testing.T) {
	t.Parallel()

	c := New[int]("trees", Options{})
	var calls atomic.Int32
	compute := func(context.Context) (int, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return 42, nil
	}

	const workers = 64
	start := make(chan struct{})
	var wg sync.WaitGroup
	results := make([]int, workers)
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results[i], errs[i] = c.GetOrCompute(context.Background(), "tree:demo:branch:main", compute)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := range workers {
		require.NoError(t, errs[i])
		assert.Equal(t, 42, results[i])
	}
}

func TestGetOrCompute_FailuresAreNotCached(t *testing.T) {
	t.Parallel()

	c := New[string]("logs", Options{})
	boom := errors.New("git log failed")
	var calls atomic.Int32

	_, err := c.GetOrCompute(context.Background(), "log:demo:main", func(context.Context) (string, error) {
		calls.Add(1)
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	v, err := c.GetOrCompute(context.Background(), "log:demo:main", counting(&calls, "ok"))
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetOrCompute_TTLExpiry(t *testing.T) {
	t.Parallel()

	c := New[string]("repositories", Options{TTL: 20 * time.Millisecond})
	var calls atomic.Int32

	_, err := c.GetOrCompute(context.Background(), RepositoriesKey, counting(&calls, "v1"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := c.Get(RepositoriesKey)
		return !ok
	}, time.Second, 5*time.Millisecond)

	_, err = c.GetOrCompute(context.Background(), RepositoriesKey, counting(&calls, "v2"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetOrCompute_CallerCancellation(t *testing.T) {
	t.Parallel()

	c := New[string]("objects", Options{})
	release := make(chan struct{})
	done := make(chan struct{})
	compute := func(ctx context.Context) (string, error) {
		defer close(done)
		<-release
		return "late", ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.GetOrCompute(ctx, "object:demo:abc123", compute)
		errCh <- err
	}()

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	<-done
	require.Eventually(t, func() bool {
		v, ok := c.Get("object:demo:abc123")
		return ok && v == "late"
	}, time.Second, 5*time.Millisecond, "the detached computation still fills the cache")
}

func TestInvalidate_DuringComputationDropsResult(t *testing.T) {
	t.Parallel()

	c := New[string]("trees", Options{})
	started := make(chan struct{})
	release := make(chan struct{})

	resultCh := make(chan string, 1)
	go func() {
		v, _ := c.GetOrCompute(context.Background(), "tree:demo:branch:main", func(context.Context) (string, error) {
			close(started)
			<-release
			return "stale", nil
		})
		resultCh <- v
	}()

	<-started
	c.Invalidate("tree:demo:branch:main")
	close(release)

	assert.Equal(t, "stale", <-resultCh, "the waiting caller still gets its value")
	_, ok := c.Get("tree:demo:branch:main")
	assert.False(t, ok, "a value computed before invalidation must not be stored")
}

func TestInvalidate_UnrelatedKeysKeepComputation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		invalidate func(c *Cache[string])
		wantStored bool
	}{
		{
			name:       "other key",
			invalidate: func(c *Cache[string]) { c.Invalidate("tree:other:branch:main") },
			wantStored: true,
		},
		{
			name:       "other repository prefix",
			invalidate: func(c *Cache[string]) { c.InvalidatePrefix("tree:other:") },
			wantStored: true,
		},
		{
			name:       "matching prefix",
			invalidate: func(c *Cache[string]) { c.InvalidatePrefix("tree:demo:") },
			wantStored: false,
		},
		{
			name:       "purge",
			invalidate: func(c *Cache[string]) { c.Purge() },
			wantStored: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := New[string]("trees", Options{})
			started := make(chan struct{})
			release := make(chan struct{})
			done := make(chan struct{})

			go func() {
				defer close(done)
				_, _ = c.GetOrCompute(context.Background(), "tree:demo:branch:main", func(context.Context) (string, error) {
					close(started)
					<-release
					return "fresh", nil
				})
			}()

			<-started
			tt.invalidate(c)
			close(release)
			<-done

			v, ok := c.Get("tree:demo:branch:main")
			assert.Equal(t, tt.wantStored, ok)
			if tt.wantStored {
				assert.Equal(t, "fresh", v)
			}
		})
	}
}

func TestInvalidatePrefixAndPurge(t *testing.T) {
	t.Parallel()

	c := New[string]("trees", Options{})
	c.Set("tree:demo:branch:main", "a")
	c.Set("tree:demo:branch:dev", "b")
	c.Set("tree:demo:object:abc123", "c")
	c.Set("tree:other:branch:main", "d")

	assert.Equal(t, 2, c.InvalidatePrefix("tree:demo:branch:"))
	_, ok := c.Get("tree:demo:object:abc123")
	assert.True(t, ok, "object keyed entries are immutable and survive")
	_, ok = c.Get("tree:other:branch:main")
	assert.True(t, ok)

	c.Invalidate("tree:other:branch:main")
	assert.Equal(t, 1, c.Len())

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestMaxEntriesEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := New[int]("objects", Options{MaxEntries: 2})
	c.Set("a", 1)
	c.Set("b", 2)
	_, _ = c.Get("a")
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestGetOrCompute_RecordsMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := telemetry.NewCacheMetrics(mp)
	require.NoError(t, err)

	c := New[string]("objects", Options{Metrics: metrics})
	var calls atomic.Int32
	for range 3 {
		_, err := c.GetOrCompute(context.Background(), "k", counting(&calls, "v"))
		require.NoError(t, err)
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	totals := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				totals[m.Name] += dp.Value
			}
		}
	}
	assert.Equal(t, int64(1), totals["thv_git_cache_misses_total"])
	assert.Equal(t, int64(2), totals["thv_git_cache_hits_total"])
}

func TestKeys(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "object:demo:abc123", ObjectKey("demo", "abc123"))
	assert.Equal(t, "tree:demo:branch:feature/x", TreeByBranchKey("demo", "feature/x"))
	assert.Equal(t, "tree:demo:object:abc123", TreeByObjectKey("demo", "abc123"))
	assert.Equal(t, "log:demo:main", CommitLogKey("demo", "main"))
	assert.Equal(t, "path:demo:abc123", ObjectPathKey("demo", "abc123"))
	assert.Equal(t, "repositories", RepositoriesKey)
	assert.ElementsMatch(t, []string{"tree:demo:branch:", "log:demo:", "path:demo:"}, BranchKeysPrefixes("demo"))
}
