package swrcache

import (
	"context"
	"errors"
	"reflect"
)

var errNilFetch = errors.New("swrcache: nil fetch func")

// Get returns the record for key as a V, annotated with staleness.
// ok=false on a miss (or an unservable expired record, which is deleted).
func Get[V any](c *Cache, key string) (Entry[V], bool, error) {
	e, ok := c.Lookup(key)
	if !ok {
		return Entry[V]{}, false, nil
	}
	v, err := cast[V](key, e.Data)
	if err != nil {
		return Entry[V]{}, false, err
	}
	return Entry[V]{Data: v, StoredAt: e.StoredAt, Stale: e.Stale}, true, nil
}

// Set stores v under key with the current time, overwriting any record.
func Set[V any](c *Cache, key string, v V) error {
	return c.store(key, v)
}

// GetOrFetch returns the cached value for key or loads it with fetch.
//
// A fresh record is returned without calling fetch. A stale record is returned
// immediately and refreshed in the background (unless strict policy). Without
// a usable record, concurrent callers share one fetch. WithForceRefresh always
// fetches and supersedes any fetch already in flight.
//
// A fetch result is committed only if no fetch for key was started after it.
// Errors from fetch are returned verbatim.
func GetOrFetch[V any](ctx context.Context, c *Cache, key string, fetch FetchFunc[V], opts ...FetchOption) (Result[V], error) {
	if fetch == nil {
		return Result[V]{}, errNilFetch
	}
	var o fetchOptions
	for _, opt := range opts {
		opt(&o)
	}
	raw, fromCache, err := c.getOrFetch(ctx, key, erase(fetch), o.force)
	if err != nil {
		return Result[V]{}, err
	}
	v, err := cast[V](key, raw)
	if err != nil {
		return Result[V]{}, err
	}
	return Result[V]{Data: v, FromCache: fromCache}, nil
}

// Prefetch warms key without waiting: a no-op on a fresh hit or when a fetch
// is already in flight. Failures are logged, never returned.
func Prefetch[V any](ctx context.Context, c *Cache, key string, fetch FetchFunc[V]) {
	if fetch == nil {
		return
	}
	c.prefetch(ctx, key, erase(fetch))
}

// Typed is a view of a Cache for call sites that agree on one value type.
type Typed[V any] struct {
	c *Cache
}

func For[V any](c *Cache) Typed[V] { return Typed[V]{c: c} }

func (t Typed[V]) Cache() *Cache { return t.c }

func (t Typed[V]) Get(key string) (Entry[V], bool, error) { return Get[V](t.c, key) }

func (t Typed[V]) Set(key string, v V) error { return Set(t.c, key, v) }

func (t Typed[V]) GetOrFetch(ctx context.Context, key string, fetch FetchFunc[V], opts ...FetchOption) (Result[V], error) {
	return GetOrFetch(ctx, t.c, key, fetch, opts...)
}

func (t Typed[V]) Prefetch(ctx context.Context, key string, fetch FetchFunc[V]) {
	Prefetch(ctx, t.c, key, fetch)
}

func erase[V any](fetch FetchFunc[V]) anyFetch {
	return func(ctx context.Context) (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

func cast[V any](key string, v any) (V, error) {
	var zero V
	if v == nil {
		return zero, nil
	}
	tv, ok := v.(V)
	if !ok {
		return zero, &TypeError{Key: key, Want: reflect.TypeOf((*V)(nil)).Elem(), Got: reflect.TypeOf(v)}
	}
	return tv, nil
}
