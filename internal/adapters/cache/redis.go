// Package cache provides Histogram Store backends: Redis for production and
// an in-memory map for tests and single-process deployments.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis connection defaults.
const (
	defaultKeyPrefix  = "worthrank"
	defaultPoolSize   = 10
	connectionTimeout = 2 * time.Second
)

// Key suffixes under the configured prefix.
const (
	distributionSuffix = ":score_distribution"
	countSuffix        = ":score_count"
)

// RedisHistogram keeps bucket counts in a hash and the global total in a counter.
type RedisHistogram struct {
	client   *redis.Client
	distKey  string
	countKey string
}

// RedisOption configures a RedisHistogram.
type RedisOption func(*RedisHistogram)

// WithKeyPrefix sets the prefix for both keys.
func WithKeyPrefix(prefix string) RedisOption {
	return func(h *RedisHistogram) {
		if prefix != "" {
			h.distKey = prefix + distributionSuffix
			h.countKey = prefix + countSuffix
		}
	}
}

// NewRedisHistogram wraps an existing client.
func NewRedisHistogram(client *redis.Client, opts ...RedisOption) *RedisHistogram {
	h := &RedisHistogram{
		client:   client,
		distKey:  defaultKeyPrefix + distributionSuffix,
		countKey: defaultKeyPrefix + countSuffix,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Dial creates a pooled client and verifies connectivity.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: defaultPoolSize,
	})

	timeoutCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()

	if err := client.Ping(timeoutCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrUnavailable, addr, err)
	}
	return client, nil
}

// Keys returns the distribution hash key and the counter key.
func (h *RedisHistogram) Keys() (distribution, count string) {
	return h.distKey, h.countKey
}

// Increment bumps the bucket and the total in one MULTI/EXEC.
func (h *RedisHistogram) Increment(ctx context.Context, bucket string) error {
	_, err := h.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, h.distKey, bucket, 1)
		pipe.Incr(ctx, h.countKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: increment %s: %w", ErrUnavailable, bucket, err)
	}
	return nil
}

// Buckets reads the whole distribution hash.
func (h *RedisHistogram) Buckets(ctx context.Context) (map[string]int64, error) {
	raw, err := h.client.HGetAll(ctx, h.distKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: read distribution: %w", ErrUnavailable, err)
	}
	out := make(map[string]int64, len(raw))
	for bucket, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bucket %s=%q", ErrCorrupt, bucket, v)
		}
		out[bucket] = n
	}
	return out, nil
}

// Total reads the global counter. A missing key is zero.
func (h *RedisHistogram) Total(ctx context.Context) (int64, error) {
	n, err := h.client.Get(ctx, h.countKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read total: %w", ErrUnavailable, err)
	}
	return n, nil
}

// Replace swaps the hash and the counter in one MULTI/EXEC.
func (h *RedisHistogram) Replace(ctx context.Context, buckets map[string]int64, total int64) error {
	values := make(map[string]interface{}, len(buckets))
	for bucket, n := range buckets {
		values[bucket] = n
	}
	_, err := h.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, h.distKey)
		if len(values) > 0 {
			pipe.HSet(ctx, h.distKey, values)
		}
		pipe.Set(ctx, h.countKey, total, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: replace: %w", ErrUnavailable, err)
	}
	return nil
}

// Close releases the underlying client.
func (h *RedisHistogram) Close() error {
	return h.client.Close()
}
