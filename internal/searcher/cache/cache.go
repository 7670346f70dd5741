// Package cache memoizes search responses in redis, keyed by the normalized
// query terms so that queries differing only in case, stop words or
// inflection share an entry.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/noodle-search/noodle/pkg/metrics"
	pkgredis "github.com/noodle-search/noodle/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "search:"

// defaultComputeTimeout bounds a shared computation once it no longer
// follows the caller's context.
const defaultComputeTimeout = 30 * time.Second

// Store is the subset of *redis.Client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// QueryCache caches values of type T. Concurrent misses for the same key
// compute once.
type QueryCache[T any] struct {
	store          Store
	ttl            time.Duration
	computeTimeout time.Duration
	group          singleflight.Group
	metrics        *metrics.Metrics
	logger         *slog.Logger
	hits           atomic.Int64
	misses         atomic.Int64
}

func New[T any](store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache[T] {
	return &QueryCache[T]{
		store:          store,
		ttl:            ttl,
		computeTimeout: defaultComputeTimeout,
		metrics:        m,
		logger:         slog.Default().With("component", "query-cache"),
	}
}

// Get returns the cached value for terms and limit. Store errors are logged
// and reported as a miss.
func (c *QueryCache[T]) Get(ctx context.Context, terms []string, limit int) (T, bool) {
	var zero T
	key := Key(terms, limit)
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return zero, false
	}
	var v T
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return zero, false
	}
	c.hit()
	return v, true
}

func (c *QueryCache[T]) Set(ctx context.Context, terms []string, limit int, v T) {
	key := Key(terms, limit)
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, string(data), c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached value or computes and stores it. The bool
// reports a cache hit. Errors from compute are not cached.
//
// Concurrent callers for the same key share one compute call. It runs
// detached from any single caller's cancellation, bounded by
// computeTimeout; a caller whose ctx ends first returns ctx.Err() while the
// others still receive the result.
func (c *QueryCache[T]) GetOrCompute(ctx context.Context, terms []string, limit int, compute func(context.Context) (T, error)) (T, bool, error) {
	var zero T
	if v, ok := c.Get(ctx, terms, limit); ok {
		return v, true, nil
	}
	ch := c.group.DoChan(Key(terms, limit), func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.computeTimeout)
		defer cancel()
		v, err := compute(shared)
		if err != nil {
			return v, err
		}
		c.Set(shared, terms, limit, v)
		return v, nil
	})
	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}
		return res.Val.(T), false, nil
	}
}

// Invalidate deletes every cached search, for use after a re-index.
func (c *QueryCache[T]) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache[T]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache[T]) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *QueryCache[T]) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// Key derives the redis key from the normalized terms and the result limit.
func Key(terms []string, limit int) string {
	raw := fmt.Sprintf("%s|limit=%d", strings.Join(terms, "\x00"), limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
