// Package asynchook moves hook delivery off the cache's call paths.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    HitEvery: 100, // sample logs: ~every 100th hit
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := swrcache.New(swrcache.Options{
//	    TTL:   30 * time.Second,
//	    Hooks: hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/swrcache"
)

// Hooks queues calls to inner on a bounded channel drained by workers.
// When the queue is full the call is dropped and counted.
type Hooks struct {
	inner   swrcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards closed against concurrent sends
	closed  bool
	dropped atomic.Uint64
}

var _ swrcache.Hooks = (*Hooks)(nil)

func New(inner swrcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}
	if inner == nil {
		inner = swrcache.NopHooks{}
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close stops accepting calls and waits for queued ones to run.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped returns how many calls were discarded on a full queue or after Close.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) Hit(k string, stale bool) { h.try(func() { h.inner.Hit(k, stale) }) }
func (h *Hooks) Miss(k string)            { h.try(func() { h.inner.Miss(k) }) }
func (h *Hooks) Coalesced(k string)       { h.try(func() { h.inner.Coalesced(k) }) }
func (h *Hooks) FetchStarted(k string, v uint64, r string) {
	h.try(func() { h.inner.FetchStarted(k, v, r) })
}
func (h *Hooks) CommitSkipped(k string, v uint64) { h.try(func() { h.inner.CommitSkipped(k, v) }) }
func (h *Hooks) ProviderSetRejected(k string)     { h.try(func() { h.inner.ProviderSetRejected(k) }) }
func (h *Hooks) RevalidateFailed(k string, err error) {
	h.try(func() { h.inner.RevalidateFailed(k, err) })
}
func (h *Hooks) Invalidated(k, r string) { h.try(func() { h.inner.Invalidated(k, r) }) }
