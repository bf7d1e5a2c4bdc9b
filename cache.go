package swrcache

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/tidwall/match"

	"github.com/unkn0wn-root/swrcache/internal/version"
	pr "github.com/unkn0wn-root/swrcache/provider"
	"github.com/unkn0wn-root/swrcache/provider/memory"
)

// Cache is a read-through cache with TTL freshness, stale-while-revalidate
// serving, per-key request deduplication and version-guarded commits.
// A Cache is safe for concurrent use. Create it with New.
type Cache struct {
	ttl              time.Duration
	swr              bool
	maxStale         time.Duration
	sweepInterval    time.Duration
	bumpOnInvalidate bool
	enabled          bool
	now              func() time.Time
	log              Logger
	hooks            Hooks

	// mu guards provider, pending, versions, inflight, idle and closed.
	// The version check and the commit it allows happen under one hold.
	mu       sync.Mutex
	provider pr.Provider
	pending  map[string]*call
	versions *version.Guard
	inflight int
	idle     []chan struct{}
	closed   bool

	subs subscribers

	// background cleanup
	ticker    *time.Ticker
	stopCh    chan struct{}
	closeWg   sync.WaitGroup
	closeOnce sync.Once
}

func newCache(opts Options) (*Cache, error) {
	if opts.TTL < 0 {
		return nil, fmt.Errorf("swrcache: negative TTL %v", opts.TTL)
	}
	if opts.MaxStale < 0 {
		return nil, fmt.Errorf("swrcache: negative MaxStale %v", opts.MaxStale)
	}
	if opts.SweepInterval < 0 {
		return nil, fmt.Errorf("swrcache: negative SweepInterval %v", opts.SweepInterval)
	}

	c := &Cache{
		swr:              !opts.DisableStaleWhileRevalidate,
		maxStale:         opts.MaxStale,
		sweepInterval:    opts.SweepInterval,
		bumpOnInvalidate: opts.BumpOnInvalidate,
		enabled:          !opts.Disabled,
		pending:          make(map[string]*call),
		versions:         version.New(),
	}

	// defaults
	c.ttl = coalesce[time.Duration](opts.TTL, defaultTTL)
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	if opts.Now != nil {
		c.now = opts.Now
	} else {
		c.now = time.Now
	}
	if opts.Provider != nil {
		c.provider = opts.Provider
	} else {
		c.provider = memory.New()
	}

	// the janitor only has work when records can become unservable
	if c.enabled && c.sweepInterval > 0 && (!c.swr || c.maxStale > 0) {
		c.ticker = time.NewTicker(c.sweepInterval)
		c.stopCh = make(chan struct{})
		c.closeWg.Add(1)
		go c.cleanupLoop()
	}
	return c, nil
}

func (c *Cache) Enabled() bool { return c.enabled }

// TTL returns the freshness window shared by all keys.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Close stops the janitor, rejects new calls with ErrClosed, waits for
// in-flight fetches (bounded by ctx) and closes the provider.
func (c *Cache) Close(ctx context.Context) error {
	var drainErr error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		if c.stopCh != nil {
			close(c.stopCh)
			c.closeWg.Wait()
			if c.ticker != nil {
				c.ticker.Stop()
			}
		}
		drainErr = c.Drain(ctx)
		if err := c.provider.Close(); err != nil && drainErr == nil {
			drainErr = err
		}
	})
	return drainErr
}

// Drain blocks until no fetch is in flight or ctx is done.
func (c *Cache) Drain(ctx context.Context) error {
	c.mu.Lock()
	if c.inflight == 0 {
		c.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	c.idle = append(c.idle, ch)
	c.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Lookup is the untyped read: the record for key annotated with staleness.
// Under the strict policy (or past MaxStale) an expired record is deleted and
// reported absent.
func (c *Cache) Lookup(key string) (Entry[any], bool) {
	if !c.enabled {
		return Entry[any]{}, false
	}
	c.mu.Lock()
	rec, ok, stale, evt := c.lookupLocked(key)
	c.mu.Unlock()
	c.emit(evt...)
	if !ok {
		return Entry[any]{}, false
	}
	return Entry[any]{Data: rec.Value, StoredAt: rec.StoredAt, Stale: stale}, true
}

// lookupLocked returns the usable record for key. When it deletes an
// unservable record it returns the removal event for the caller to emit
// after unlocking.
func (c *Cache) lookupLocked(key string) (rec pr.Record, ok, stale bool, evt []Event) {
	rec, ok = c.provider.Get(key)
	if !ok {
		return pr.Record{}, false, false, nil
	}
	stale, servable := c.freshness(rec)
	if !servable {
		c.provider.Del(key)
		c.log.Debug("expired record dropped on read", Fields{"key": key})
		return pr.Record{}, false, false, []Event{{Kind: EventRemoved, Key: key, Reason: ReasonExpired}}
	}
	return rec, true, stale, nil
}

// freshness classifies a record: stale past TTL; servable unless the policy
// forbids serving it stale.
func (c *Cache) freshness(rec pr.Record) (stale, servable bool) {
	age := c.now().Sub(rec.StoredAt)
	if age <= c.ttl {
		return false, true
	}
	if !c.swr {
		return true, false
	}
	if c.maxStale > 0 && age > c.ttl+c.maxStale {
		return true, false
	}
	return true, true
}

// store writes {value, now} for key, overwriting any previous record.
func (c *Cache) store(key string, value any) error {
	if !c.enabled {
		return nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	at := c.now()
	ok := c.provider.Set(key, pr.Record{Value: value, StoredAt: at})
	c.mu.Unlock()

	if !ok {
		c.hooks.ProviderSetRejected(key)
		c.log.Debug("Set rejected by provider (pressure)", Fields{"key": key})
		return nil
	}
	c.emit(Event{Kind: EventSet, Key: key, Value: value, StoredAt: at, Reason: ReasonSet})
	return nil
}

// Invalidate deletes the record for key. By default an in-flight fetch for
// key is not affected and may still commit afterwards.
func (c *Cache) Invalidate(key string) bool {
	if !c.enabled {
		return false
	}
	c.mu.Lock()
	removed := c.provider.Del(key)
	if c.bumpOnInvalidate {
		c.revokeLocked(key)
	}
	c.mu.Unlock()

	c.hooks.Invalidated(key, ReasonInvalidate)
	c.log.Debug("invalidated key", Fields{"key": key, "removed": removed})
	if removed {
		c.emit(Event{Kind: EventRemoved, Key: key, Reason: ReasonInvalidate})
	}
	return removed
}

// InvalidatePattern deletes every record whose key matches re.
func (c *Cache) InvalidatePattern(re *regexp.Regexp) int {
	if re == nil {
		return 0
	}
	return c.invalidateWhere(re.MatchString, ReasonPattern, re.String())
}

// InvalidateMatch deletes every record whose key matches the glob pattern
// ('*' any run of characters, '?' one character), e.g. "analyses:*".
func (c *Cache) InvalidateMatch(pattern string) int {
	return c.invalidateWhere(func(k string) bool { return match.Match(k, pattern) }, ReasonPattern, pattern)
}

// InvalidateAll clears every record. In-flight fetches are not affected
// unless BumpOnInvalidate is set.
func (c *Cache) InvalidateAll() int {
	if !c.enabled {
		return 0
	}
	c.mu.Lock()
	keys := c.provider.Keys()
	n := c.provider.Clear()
	if c.bumpOnInvalidate {
		for k := range c.pending {
			c.revokeLocked(k)
		}
	}
	c.mu.Unlock()

	c.hooks.Invalidated("*", ReasonAll)
	c.log.Debug("invalidated all keys", Fields{"removed": n})
	c.emitRemoved(keys, ReasonAll)
	return n
}

// Reset returns the cache to its initial state: records are cleared, in-flight
// fetches are forgotten and their results will be discarded. Meant for test
// isolation between cases sharing one Cache.
func (c *Cache) Reset() {
	c.mu.Lock()
	keys := c.provider.Keys()
	c.provider.Clear()
	c.pending = make(map[string]*call)
	c.versions.Reset()
	c.mu.Unlock()

	c.log.Debug("cache reset", Fields{"removed": len(keys)})
	c.emitRemoved(keys, ReasonReset)
}

// Len returns the number of stored records, stale ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.provider.Len()
}

// Keys returns the stored keys in no particular order.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.provider.Keys()
}

func (c *Cache) invalidateWhere(pred func(string) bool, reason, pattern string) int {
	if !c.enabled {
		return 0
	}
	var removed []string
	c.mu.Lock()
	c.provider.DelFunc(func(k string, _ pr.Record) bool {
		if pred(k) {
			removed = append(removed, k)
			return true
		}
		return false
	})
	if c.bumpOnInvalidate {
		for k := range c.pending {
			if pred(k) {
				c.revokeLocked(k)
			}
		}
	}
	c.mu.Unlock()

	for _, k := range removed {
		c.hooks.Invalidated(k, reason)
	}
	c.log.Debug("invalidated keys by pattern", Fields{"pattern": pattern, "removed": len(removed)})
	c.emitRemoved(removed, reason)
	return len(removed)
}

// revokeLocked makes the in-flight fetch for key unable to commit and stops
// tracking it, so the next caller starts a fresh fetch.
func (c *Cache) revokeLocked(key string) {
	if _, ok := c.pending[key]; ok {
		c.versions.Revoke(key)
		delete(c.pending, key)
	}
}

func (c *Cache) cleanupLoop() {
	defer c.closeWg.Done()
	for {
		select {
		case <-c.ticker.C:
			c.sweep()
		case <-c.stopCh:
			return
		}
	}
}

// sweep deletes records that can no longer be served.
func (c *Cache) sweep() {
	var removed []string
	c.mu.Lock()
	c.provider.DelFunc(func(k string, r pr.Record) bool {
		if _, servable := c.freshness(r); !servable {
			removed = append(removed, k)
			return true
		}
		return false
	})
	c.mu.Unlock()

	if len(removed) > 0 {
		c.log.Debug("sweep removed expired records", Fields{"removed": len(removed)})
		c.emitRemoved(removed, ReasonExpired)
	}
}
