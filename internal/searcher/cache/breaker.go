package cache

import (
	"context"
	"time"

	pkgredis "github.com/noodle-search/noodle/pkg/redis"
	"github.com/noodle-search/noodle/pkg/resilience"
)

// breakerStore rejects Get and Set while the circuit is open.
type breakerStore struct {
	store Store
	cb    *resilience.CircuitBreaker
}

// WithBreaker guards store with cb. A missing key is not a failure.
func WithBreaker(store Store, cb *resilience.CircuitBreaker) Store {
	return &breakerStore{store: store, cb: cb}
}

func (b *breakerStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	var miss error
	err := b.cb.Execute(func() error {
		v, err := b.store.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			miss = err
			return nil
		}
		value = v
		return err
	})
	if err != nil {
		return "", err
	}
	return value, miss
}

func (b *breakerStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return b.cb.Execute(func() error {
		return b.store.Set(ctx, key, value, ttl)
	})
}

// FlushByPattern is not guarded.
func (b *breakerStore) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	return b.store.FlushByPattern(ctx, pattern)
}
