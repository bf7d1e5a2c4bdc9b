package swrcache

import (
	"context"
	"time"

	pr "github.com/unkn0wn-root/swrcache/provider"
)

// FetchFunc loads the value for one key from the data source.
// It owns transport, auth, retries and timeouts; the cache only schedules it.
type FetchFunc[V any] func(ctx context.Context) (V, error)

// Entry is a stored value annotated on read.
type Entry[V any] struct {
	Data     V
	StoredAt time.Time
	Stale    bool // now - StoredAt > TTL
}

// Result is what GetOrFetch returns.
type Result[V any] struct {
	Data      V
	FromCache bool
}

// Options tune a Cache. The zero value is usable.
type Options struct {
	TTL time.Duration // 0 => 5m

	// Strict policy: an expired record is deleted on read and refetched in
	// the foreground. Default false => stale-while-revalidate.
	DisableStaleWhileRevalidate bool

	// MaxStale bounds how long past TTL a stale record may still be served.
	// 0 => stale records are kept until replaced or invalidated.
	MaxStale time.Duration

	// SweepInterval runs a janitor deleting records that can no longer be
	// served (strict policy or MaxStale > 0). 0 => records are only dropped on read.
	SweepInterval time.Duration

	// BumpOnInvalidate makes Invalidate* revoke the in-flight fetch for the
	// affected keys, so a fetch started before the invalidation cannot commit.
	// Default false: an in-flight fetch may repopulate an invalidated key.
	BumpOnInvalidate bool

	Provider pr.Provider      // nil => memory.New()
	Logger   Logger           // nil => NopLogger
	Hooks    Hooks            // nil => NopHooks
	Now      func() time.Time // nil => time.Now
	Disabled bool             // pass-through: always fetch, never store
}

// FetchOption tweaks a single GetOrFetch call.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	force bool
}

// WithForceRefresh bypasses any cached value, drops it eagerly and always
// contacts the source. The forced fetch supersedes any fetch already in flight.
func WithForceRefresh() FetchOption {
	return func(o *fetchOptions) { o.force = true }
}

// ForceRefresh is WithForceRefresh when force is true and a no-op otherwise.
func ForceRefresh(force bool) FetchOption {
	return func(o *fetchOptions) { o.force = o.force || force }
}

func New(opts Options) (*Cache, error) {
	return newCache(opts)
}
