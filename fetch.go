package swrcache

import (
	"context"
	"runtime/debug"

	pr "github.com/unkn0wn-root/swrcache/provider"
)

// call is one in-flight fetch. val and err are written once before done is closed.
type call struct {
	version uint64
	reason  string
	done    chan struct{}
	val     any
	err     error
}

type anyFetch func(ctx context.Context) (any, error)

// getOrFetch implements the read-through decision tree:
//
//	force:            new version, drop record, supersede pending, await
//	fresh hit:        return record
//	stale hit (swr):  return record, revalidate in background unless pending
//	pending:          await the pending fetch (dedup)
//	miss:             new version, fetch, await
func (c *Cache) getOrFetch(ctx context.Context, key string, fetch anyFetch, force bool) (any, bool, error) {
	if !c.enabled {
		v, err := invoke(ctx, key, fetch)
		return v, false, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, false, ErrClosed
	}

	if force {
		cl, evt := c.startLocked(ctx, key, fetch, ReasonForceRefresh)
		c.mu.Unlock()
		c.started(key, cl)
		c.emit(evt...)
		v, err := c.await(ctx, cl)
		return v, false, err
	}

	rec, ok, stale, evt := c.lookupLocked(key)
	if ok {
		if !stale {
			c.mu.Unlock()
			c.hooks.Hit(key, false)
			return rec.Value, true, nil
		}
		var cl *call
		if _, busy := c.pending[key]; !busy {
			cl, _ = c.startLocked(ctx, key, fetch, ReasonRevalidate)
		}
		c.mu.Unlock()
		c.hooks.Hit(key, true)
		c.started(key, cl)
		return rec.Value, true, nil
	}

	if cl, busy := c.pending[key]; busy {
		c.mu.Unlock()
		c.emit(evt...)
		c.hooks.Coalesced(key)
		v, err := c.await(ctx, cl)
		return v, false, err
	}

	cl, _ := c.startLocked(ctx, key, fetch, ReasonMiss)
	c.mu.Unlock()
	c.emit(evt...)
	c.hooks.Miss(key)
	c.started(key, cl)
	v, err := c.await(ctx, cl)
	return v, false, err
}

// prefetch runs the non-forced decision tree without waiting for anything.
func (c *Cache) prefetch(ctx context.Context, key string, fetch anyFetch) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	_, ok, stale, evt := c.lookupLocked(key)
	_, busy := c.pending[key]
	var cl *call
	switch {
	case busy, ok && !stale:
	case ok && stale:
		cl, _ = c.startLocked(ctx, key, fetch, ReasonRevalidate)
	default:
		cl, _ = c.startLocked(ctx, key, fetch, ReasonPrefetch)
	}
	c.mu.Unlock()
	c.emit(evt...)
	c.started(key, cl)
}

// startLocked issues a new version for key, registers the call as the
// pending request (replacing a superseded one) and runs fetch on its own
// goroutine. A forced start also drops the current record.
func (c *Cache) startLocked(ctx context.Context, key string, fetch anyFetch, reason string) (*call, []Event) {
	var evt []Event
	v := c.versions.Begin(key)
	if reason == ReasonForceRefresh && c.provider.Del(key) {
		evt = append(evt, Event{Kind: EventRemoved, Key: key, Reason: ReasonForceRefresh})
	}
	cl := &call{version: v, reason: reason, done: make(chan struct{})}
	c.pending[key] = cl
	c.inflight++

	// the fetch outlives the caller: values flow through, cancellation does not
	go c.run(context.WithoutCancel(ctx), key, cl, fetch)
	return cl, evt
}

// started reports a fetch begun by startLocked; call it after unlocking.
func (c *Cache) started(key string, cl *call) {
	if cl != nil {
		c.hooks.FetchStarted(key, cl.version, cl.reason)
	}
}

func (c *Cache) run(ctx context.Context, key string, cl *call, fetch anyFetch) {
	val, err := invoke(ctx, key, fetch)

	c.mu.Lock()
	at := c.now()
	current := c.versions.IsCurrent(key, cl.version)
	committed := false
	if err == nil && current {
		committed = c.provider.Set(key, pr.Record{Value: val, StoredAt: at})
	}
	if c.pending[key] == cl {
		delete(c.pending, key)
	}
	c.versions.Settle(key, cl.version)
	cl.val, cl.err = val, err
	close(cl.done)
	c.mu.Unlock()

	// Drain must not return before this fetch's notifications went out
	defer c.release()

	switch {
	case err != nil && cl.reason == ReasonRevalidate:
		c.hooks.RevalidateFailed(key, err)
		c.log.Warn("background revalidation failed", Fields{"key": key, "err": err})
	case err != nil && cl.reason == ReasonPrefetch:
		c.log.Warn("prefetch failed", Fields{"key": key, "err": err})
	case err != nil:
		c.log.Debug("fetch failed", Fields{"key": key, "err": err, "reason": cl.reason})
	case committed:
		c.emit(Event{Kind: EventSet, Key: key, Value: val, StoredAt: at, Reason: cl.reason})
	case !current:
		c.hooks.CommitSkipped(key, cl.version)
		c.log.Debug("fetch result discarded (superseded)", Fields{"key": key, "version": cl.version})
	default:
		c.hooks.ProviderSetRejected(key)
		c.log.Debug("commit rejected by provider (pressure)", Fields{"key": key})
	}
}

// release accounts for a finished fetch and wakes Drain waiters once the
// cache is idle.
func (c *Cache) release() {
	c.mu.Lock()
	c.inflight--
	var idle []chan struct{}
	if c.inflight == 0 {
		idle, c.idle = c.idle, nil
	}
	c.mu.Unlock()
	for _, ch := range idle {
		close(ch)
	}
}

func (c *Cache) await(ctx context.Context, cl *call) (any, error) {
	select {
	case <-cl.done:
		return cl.val, cl.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// invoke calls fetch and turns a panic into a *PanicError.
func invoke(ctx context.Context, key string, fetch anyFetch) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, &PanicError{Key: key, Value: r, Stack: debug.Stack()}
		}
	}()
	return fetch(ctx)
}
