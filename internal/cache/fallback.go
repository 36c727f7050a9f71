package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Observer receives cache outcome notifications; observability.Metrics implements it.
type Observer interface {
	CacheHit()
	CacheMiss()
	CacheFallback(op string)
}

type nopObserver struct{}

func (nopObserver) CacheHit()            {}
func (nopObserver) CacheMiss()           {}
func (nopObserver) CacheFallback(string) {}

// FallbackOptions tunes the breaker guarding the shared backend.
type FallbackOptions struct {
	FailureThreshold int
	Cooldown         time.Duration
	Observer         Observer
	Now              func() time.Time
}

// Fallback serves from the shared backend and silently degrades to the local
// in-process store whenever the shared backend errors or its breaker is open.
type Fallback struct {
	shared   *Redis
	local    *Memory
	breaker  *breaker
	logger   *zap.Logger
	observer Observer
}

// NewFallback composes a shared backend with a local in-process store.
func NewFallback(shared *Redis, local *Memory, logger *zap.Logger, opts FallbackOptions) *Fallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	if local == nil {
		local = NewMemory()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Fallback{
		shared:   shared,
		local:    local,
		breaker:  newBreaker(opts.FailureThreshold, opts.Cooldown, now),
		logger:   logger,
		observer: observer,
	}
}

// Degraded reports whether the shared backend is currently bypassed.
func (f *Fallback) Degraded() bool {
	return f.shared == nil || f.breaker.isOpen()
}

func (f *Fallback) Get(ctx context.Context, key string) ([]byte, bool) {
	if f.useShared() {
		raw, ok, err := f.shared.Get(ctx, key)
		if err == nil {
			f.succeeded()
			f.observe(ok)
			return raw, ok
		}
		f.failed("get", key, err)
	}
	raw, ok := f.local.Get(ctx, key)
	f.observe(ok)
	return raw, ok
}

func (f *Fallback) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if f.useShared() {
		err := f.shared.Set(ctx, key, value, ttl)
		if err == nil {
			f.succeeded()
			return
		}
		f.failed("set", key, err)
	}
	f.local.Set(ctx, key, value, ttl)
}

// Invalidate always clears the local copy, then the shared one.
func (f *Fallback) Invalidate(ctx context.Context, key string) {
	f.local.Invalidate(ctx, key)
	if !f.useShared() {
		return
	}
	if err := f.shared.Invalidate(ctx, key); err != nil {
		f.failed("invalidate", key, err)
		return
	}
	f.succeeded()
}

func (f *Fallback) useShared() bool {
	return f.shared != nil && f.breaker.allow()
}

func (f *Fallback) succeeded() {
	if f.breaker.recordSuccess() {
		f.logger.Info("shared cache recovered")
	}
}

func (f *Fallback) failed(op, key string, err error) {
	f.observer.CacheFallback(op)
	if f.breaker.recordFailure() {
		f.logger.Warn("shared cache unavailable; using local cache", zap.String("op", op), zap.String("key", key), zap.Error(err))
		return
	}
	f.logger.Debug("shared cache call failed", zap.String("op", op), zap.String("key", key), zap.Error(err))
}

func (f *Fallback) observe(hit bool) {
	if hit {
		f.observer.CacheHit()
		return
	}
	f.observer.CacheMiss()
}
