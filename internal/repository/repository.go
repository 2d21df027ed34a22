// Package repository implements the cache-first read path shared by every domain.
//
// A Get consults the cache first and only calls the remote on a miss. A fresh
// remote result is written back to the cache on a best-effort basis. Failures
// are returned unchanged as domain failures; context cancellation is returned
// as is.
package repository

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/garyellow/campuskit/internal/ctxutil"
	domerrors "github.com/garyellow/campuskit/internal/errors"
	"github.com/garyellow/campuskit/internal/logger"
	"github.com/garyellow/campuskit/internal/metrics"
	"github.com/garyellow/campuskit/internal/sentry"
)

// Cache is a local store for values of type T addressed by K.
// Get reports ok=false for both missing and expired entries.
type Cache[K any, T any] interface {
	Get(ctx context.Context, key K) (value T, ok bool, err error)
	Save(ctx context.Context, key K, value T) error
	Clean(ctx context.Context) error
}

// Remote fetches the authoritative value for key.
type Remote[K any, T any] interface {
	Fetch(ctx context.Context, key K) (T, error)
}

// CacheErrorPolicy decides what a cache read failure does to a Get.
type CacheErrorPolicy int

const (
	// PropagateCacheErrors returns the cache failure to the caller.
	PropagateCacheErrors CacheErrorPolicy = iota
	// BypassCacheErrors logs the cache failure and falls through to the remote.
	BypassCacheErrors
)

func (p CacheErrorPolicy) String() string {
	switch p {
	case PropagateCacheErrors:
		return "propagate"
	case BypassCacheErrors:
		return "bypass"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// Options configures a CacheFirst repository.
type Options struct {
	// Module labels logs, metrics and error reports (e.g. "schedule").
	Module string
	// Policy defaults to PropagateCacheErrors.
	Policy CacheErrorPolicy
	// Metrics is optional.
	Metrics *metrics.Metrics
	// Logger is optional; nil discards logs.
	Logger *logger.Logger
}

// CacheFirst serves reads from cache and falls back to a remote source.
type CacheFirst[K any, T any] struct {
	cache   Cache[K, T]
	remote  Remote[K, T]
	module  string
	policy  CacheErrorPolicy
	metrics *metrics.Metrics
	logger  *logger.Logger
	flight  flightGroup[T]
}

// New creates a CacheFirst repository.
func New[K any, T any](cache Cache[K, T], remote Remote[K, T], opts Options) *CacheFirst[K, T] {
	log := opts.Logger
	if log == nil {
		log = logger.NewWithWriter("error", io.Discard)
	}
	return &CacheFirst[K, T]{
		cache:   cache,
		remote:  remote,
		module:  opts.Module,
		policy:  opts.Policy,
		metrics: opts.Metrics,
		logger:  log.WithModule(opts.Module),
	}
}

// Get returns the cached value for key or fetches it from the remote.
// Concurrent Gets for the same key share one execution.
func (r *CacheFirst[K, T]) Get(ctx context.Context, key K) (T, error) {
	value, shared, err := r.flight.do(ctx, flightKey(key), func(ctx context.Context) (T, error) {
		return r.get(ctx, key)
	})
	if shared {
		r.metrics.RecordSingleflightDedup(r.module)
	}
	return value, err
}

// Refresh skips the cache read, fetches from the remote and stores the result.
func (r *CacheFirst[K, T]) Refresh(ctx context.Context, key K) (T, error) {
	value, _, err := r.flight.do(ctx, "refresh:"+flightKey(key), func(ctx context.Context) (T, error) {
		return r.fetch(ctx, key)
	})
	return value, err
}

// Clean deletes everything the cache holds. Cleaning an empty cache succeeds.
func (r *CacheFirst[K, T]) Clean(ctx context.Context) error {
	if err := r.cache.Clean(ctx); err != nil {
		if canceled(ctx, err) {
			return err
		}
		err = domerrors.MapContextError(ctx, err)
		r.logger.WithError(err).ErrorContext(ctx, "Failed to clean cache")
		return err
	}
	r.metrics.RecordCacheClean(r.module)
	r.logger.DebugContext(ctx, "Cache cleaned")
	return nil
}

func (r *CacheFirst[K, T]) get(ctx context.Context, key K) (T, error) {
	var zero T

	cached, ok, err := r.cache.Get(ctx, key)
	switch {
	case err != nil:
		if canceled(ctx, err) {
			return zero, err
		}
		err = domerrors.MapContextError(ctx, err)
		r.metrics.RecordCache(r.module, metrics.CacheError)
		if r.policy == PropagateCacheErrors {
			r.logger.WithError(err).ErrorContext(ctx, "Cache read failed")
			sentry.CaptureFailure(ctx, r.module, err)
			return zero, err
		}
		r.logger.WithError(err).WarnContext(ctx, "Cache read failed, falling back to remote")
	case ok:
		r.metrics.RecordCache(r.module, metrics.CacheHit)
		return cached, nil
	default:
		r.metrics.RecordCache(r.module, metrics.CacheMiss)
	}

	return r.fetch(ctx, key)
}

func (r *CacheFirst[K, T]) fetch(ctx context.Context, key K) (T, error) {
	var zero T

	start := time.Now()
	value, err := r.remote.Fetch(ctx, key)
	duration := time.Since(start).Seconds()
	if err != nil {
		if canceled(ctx, err) {
			r.metrics.RecordRemote(r.module, metrics.RemoteCancel, duration)
			return zero, err
		}
		err = domerrors.MapContextError(ctx, err)
		r.metrics.RecordRemote(r.module, metrics.RemoteFailure, duration)
		r.logger.WithError(err).
			WithField("kind", domerrors.KindOf(err).String()).
			ErrorContext(ctx, "Remote fetch failed")
		sentry.CaptureFailure(ctx, r.module, err)
		return zero, err
	}
	r.metrics.RecordRemote(r.module, metrics.RemoteSuccess, duration)

	// The fetched value is returned even if persisting it fails.
	if err := r.cache.Save(ctxutil.PreserveTracing(ctx), key, value); err != nil {
		r.logger.WithError(err).WarnContext(ctx, "Cache save failed")
	}
	return value, nil
}

// canceled reports whether err is the caller's own cancellation. A context
// error while ctx is still live is a timeout inside the source, not a cancel.
func canceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil && domerrors.IsCancellation(err)
}

// flightKey identifies a key for flight collapsing. It is never logged.
func flightKey(key any) string {
	return fmt.Sprintf("%#v", key)
}
