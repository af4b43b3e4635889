package cache_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/worthrank/internal/adapters/cache"
	"github.com/okian/worthrank/internal/domain/histogram"
)

// backend is the method set both implementations share.
type backend interface {
	histogram.Backend
	Close() error
}

func newRedisBackend(t *testing.T) (*cache.RedisHistogram, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := cache.Dial(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	h := cache.NewRedisHistogram(client, cache.WithKeyPrefix("test"))
	t.Cleanup(func() { _ = h.Close() })
	return h, mr
}

func backends(t *testing.T) map[string]backend {
	t.Helper()
	r, _ := newRedisBackend(t)
	return map[string]backend{
		"redis":  r,
		"memory": cache.NewMemoryHistogram(),
	}
}

func TestBackendIncrementAndRead(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			total, err := b.Total(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(0), total)

			for _, bucket := range []string{"1.00", "2.50", "2.50", "3.14"} {
				require.NoError(t, b.Increment(ctx, bucket))
			}

			buckets, err := b.Buckets(ctx)
			require.NoError(t, err)
			assert.Equal(t, map[string]int64{"1.00": 1, "2.50": 2, "3.14": 1}, buckets)

			total, err = b.Total(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(4), total)
		})
	}
}

func TestBackendReplace(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, b.Increment(ctx, "9.99"))

			require.NoError(t, b.Replace(ctx, map[string]int64{"1.00": 3, "2.00": 4}, 7))

			buckets, err := b.Buckets(ctx)
			require.NoError(t, err)
			assert.Equal(t, map[string]int64{"1.00": 3, "2.00": 4}, buckets)

			total, err := b.Total(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(7), total)

			require.NoError(t, b.Replace(ctx, map[string]int64{}, 0))
			buckets, err = b.Buckets(ctx)
			require.NoError(t, err)
			assert.Empty(t, buckets)
		})
	}
}

func TestBackendConcurrentIncrements(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			const goroutines = 8
			const perGoroutine = 50

			var wg sync.WaitGroup
			for i := 0; i < goroutines; i++ {
				wg.Add(1)
				go func(id int) {
					defer wg.Done()
					for j := 0; j < perGoroutine; j++ {
						assert.NoError(t, b.Increment(ctx, fmt.Sprintf("%d.00", id)))
					}
				}(i)
			}
			wg.Wait()

			total, err := b.Total(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(goroutines*perGoroutine), total)
		})
	}
}

func TestRedisHistogramKeys(t *testing.T) {
	h, mr := newRedisBackend(t)
	ctx := context.Background()

	dist, count := h.Keys()
	assert.Equal(t, "test:score_distribution", dist)
	assert.Equal(t, "test:score_count", count)

	require.NoError(t, h.Increment(ctx, "2.50"))
	assert.Equal(t, "1", mr.HGet(dist, "2.50"))
	got, err := mr.Get(count)
	require.NoError(t, err)
	assert.Equal(t, "1", got)
}

func TestRedisHistogramDefaultKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	h := cache.NewRedisHistogram(client)
	defer func() { _ = h.Close() }()

	dist, count := h.Keys()
	assert.Equal(t, "worthrank:score_distribution", dist)
	assert.Equal(t, "worthrank:score_count", count)
}

func TestRedisHistogramCorruptBucket(t *testing.T) {
	h, mr := newRedisBackend(t)
	dist, _ := h.Keys()
	mr.HSet(dist, "2.50", "lots")

	_, err := h.Buckets(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, cache.ErrCorrupt))
}

func TestRedisHistogramUnavailable(t *testing.T) {
	h, mr := newRedisBackend(t)
	mr.Close()
	ctx := context.Background()

	err := h.Increment(ctx, "1.00")
	require.Error(t, err)
	assert.True(t, errors.Is(err, cache.ErrUnavailable))

	_, err = h.Buckets(ctx)
	assert.True(t, errors.Is(err, cache.ErrUnavailable))

	_, err = h.Total(ctx)
	assert.True(t, errors.Is(err, cache.ErrUnavailable))
}

func TestDialFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := cache.Dial(context.Background(), addr, "", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, cache.ErrUnavailable))
}

func TestHistogramStoreOverRedis(t *testing.T) {
	h, _ := newRedisBackend(t)
	ctx := context.Background()
	store := histogram.New(h)

	for _, s := range []float64{1, 1, 1, 1, 1, 2, 2, 2} {
		require.NoError(t, store.Increment(ctx, s))
	}

	p := store.PercentileOf(ctx, 2.0)
	assert.True(t, p.OK)
	assert.Equal(t, int64(5), p.LowerCount)
	assert.Equal(t, int64(8), p.TotalCount)
	assert.Equal(t, "62.5", p.Percentile)
}
