// Package binding adapts a swrcache.Cache key into a stateful query for UI
// style consumers: a value shown immediately when the cache is warm, loading
// and refreshing flags, and refetch/invalidate actions.
package binding

import (
	"context"
	"sync"

	"github.com/unkn0wn-root/swrcache"
)

type QueryOptions[V any] struct {
	Key   string
	Fetch swrcache.FetchFunc[V]

	// Disabled queries never fetch on their own; Refetch still works.
	Disabled bool

	// OnChange receives a snapshot after every state change. It runs on the
	// goroutine that caused the change and must not block.
	OnChange func(State[V])
}

// State is what a consumer displays.
type State[V any] struct {
	Data         V
	HasData      bool
	FromCache    bool // Data came from the cache rather than a fetch this query waited on
	Stale        bool // Data was stale when seeded from the cache
	IsLoading    bool // no data yet and a load is expected
	IsRefreshing bool // a forced refetch is running while Data is displayed
	Err          error
}

type Query[V any] struct {
	c    *swrcache.Cache
	opts QueryOptions[V]

	mu     sync.Mutex
	st     State[V]
	events uint64 // commits seen through the subscription
	active bool
	unsub  func()
}

// NewQuery seeds the state synchronously from the cache and subscribes to the
// key. Call Start to run the initial load and Close to tear the query down.
func NewQuery[V any](c *swrcache.Cache, opts QueryOptions[V]) *Query[V] {
	q := &Query[V]{c: c, opts: opts, active: true}

	if e, ok, err := swrcache.Get[V](c, opts.Key); err == nil && ok {
		q.st = State[V]{Data: e.Data, HasData: true, FromCache: true, Stale: e.Stale}
	}
	q.st.IsLoading = !q.st.HasData && !opts.Disabled
	q.unsub = c.Subscribe(opts.Key, q.onEvent)
	return q
}

// State returns a snapshot.
func (q *Query[V]) State() State[V] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.st
}

// Start runs the initial load in the background. It is a no-op for disabled
// or closed queries.
func (q *Query[V]) Start(ctx context.Context) {
	if q.opts.Disabled || !q.isActive() {
		return
	}
	go func() { _ = q.load(ctx, false) }()
}

// Refetch loads through the cache and waits for the result. With force the
// cache is bypassed and Data stays displayed while IsRefreshing is set.
func (q *Query[V]) Refetch(ctx context.Context, force bool) error {
	return q.load(ctx, force)
}

// Invalidate drops the key from the cache and clears the displayed data.
func (q *Query[V]) Invalidate() {
	q.c.Invalidate(q.opts.Key)
	q.update(func(st *State[V]) {
		*st = State[V]{}
	})
}

// Close stops all further state updates.
func (q *Query[V]) Close() {
	q.mu.Lock()
	q.active = false
	unsub := q.unsub
	q.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (q *Query[V]) load(ctx context.Context, force bool) error {
	if q.opts.Fetch == nil {
		return nil
	}
	var seen uint64
	q.update(func(st *State[V]) {
		seen = q.events
		if st.HasData {
			st.IsRefreshing = force
		} else {
			st.IsLoading = true
		}
	})

	res, err := swrcache.GetOrFetch(ctx, q.c, q.opts.Key, q.opts.Fetch, swrcache.ForceRefresh(force))
	q.update(func(st *State[V]) {
		st.IsLoading, st.IsRefreshing = false, false
		if err != nil {
			st.Err = err
			return
		}
		if q.events != seen {
			// a commit landed meanwhile; it is at least as new as res
			st.Err = nil
			return
		}
		st.Data, st.HasData, st.FromCache, st.Err = res.Data, true, res.FromCache, nil
		if !res.FromCache {
			st.Stale = false
		}
	})
	return err
}

// onEvent follows commits made by anyone: a background revalidation, a
// Set elsewhere in the process, another query on the same key.
func (q *Query[V]) onEvent(e swrcache.Event) {
	if e.Kind != swrcache.EventSet {
		return
	}
	v, ok := e.Value.(V)
	if !ok && e.Value != nil {
		return
	}
	q.update(func(st *State[V]) {
		q.events++
		st.Data, st.HasData, st.Stale = v, true, false
		st.IsLoading = false
		st.Err = nil
	})
}

// update applies fn if the query is still active and reports the new state.
func (q *Query[V]) update(fn func(*State[V])) {
	q.mu.Lock()
	if !q.active {
		q.mu.Unlock()
		return
	}
	fn(&q.st)
	snap := q.st
	q.mu.Unlock()

	if q.opts.OnChange != nil {
		q.opts.OnChange(snap)
	}
}

func (q *Query[V]) isActive() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}
