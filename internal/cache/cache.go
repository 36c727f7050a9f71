// Package cache provides a get/set/invalidate store with TTLs. A shared Redis
// backend is used when reachable; otherwise every call degrades to an
// in-process store without surfacing backend errors to callers.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache is the capability every backend provides. Implementations never
// return backend errors; a failed lookup is a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Invalidate(ctx context.Context, key string)
}

var group singleflight.Group

// WithCache returns the cached value for key or computes it with producer and
// stores the result. Concurrent misses for the same key share one producer call,
// and a caller that gives up does not cancel the call for the others.
func WithCache[T any](ctx context.Context, c Cache, key string, ttl time.Duration, producer func(context.Context) (T, error)) (T, error) {
	var zero T
	if raw, ok := c.Get(ctx, key); ok {
		var cached T
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		c.Invalidate(ctx, key)
	}

	// The shared call outlives any single caller; each caller waits on its own ctx.
	shared := context.WithoutCancel(ctx)
	ch := group.DoChan(fmt.Sprintf("%p|%s", c, key), func() (any, error) {
		value, err := producer(shared)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(value); err == nil {
			c.Set(shared, key, raw, ttl)
		}
		return value, nil
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		out, _ := res.Val.(T)
		return out, nil
	}
}
