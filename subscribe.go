package swrcache

import (
	"sync"
	"time"
)

type EventKind uint8

const (
	// EventSet: a record was stored (Set or a committed fetch).
	EventSet EventKind = iota + 1
	// EventRemoved: a record was deleted.
	EventRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventSet:
		return "set"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Reasons carried by events and hooks.
const (
	ReasonSet          = "set"
	ReasonMiss         = "miss"
	ReasonForceRefresh = "force_refresh"
	ReasonRevalidate   = "revalidate"
	ReasonPrefetch     = "prefetch"
	ReasonInvalidate   = "invalidate"
	ReasonPattern      = "pattern"
	ReasonAll          = "all"
	ReasonReset        = "reset"
	ReasonExpired      = "expired"
)

// Event describes a change to one key. Value and StoredAt are set for EventSet.
type Event struct {
	Kind     EventKind
	Key      string
	Value    any
	StoredAt time.Time
	Reason   string
}

type subscription struct {
	key string // "" => all keys
	fn  func(Event)
}

type subscribers struct {
	mu   sync.RWMutex
	seq  uint64
	subs map[uint64]subscription
}

// Subscribe registers fn for changes to key and returns a cancel func.
// fn runs synchronously on the goroutine that made the change, outside the
// cache lock; it may call back into the cache but should return quickly.
// Events for different changes may reach fn out of order: re-read with Get
// when ordering matters.
func (c *Cache) Subscribe(key string, fn func(Event)) (cancel func()) {
	return c.subs.add(key, fn)
}

// SubscribeAll registers fn for changes to every key.
func (c *Cache) SubscribeAll(fn func(Event)) (cancel func()) {
	return c.subs.add("", fn)
}

func (s *subscribers) add(key string, fn func(Event)) func() {
	s.mu.Lock()
	if s.subs == nil {
		s.subs = make(map[uint64]subscription)
	}
	s.seq++
	id := s.seq
	s.subs[id] = subscription{key: key, fn: fn}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *subscribers) matching(key string) []func(Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []func(Event)
	for _, sub := range s.subs {
		if sub.key == "" || sub.key == key {
			out = append(out, sub.fn)
		}
	}
	return out
}

// emit delivers events; never call it with c.mu held.
func (c *Cache) emit(events ...Event) {
	for _, e := range events {
		for _, fn := range c.subs.matching(e.Key) {
			fn(e)
		}
	}
}

func (c *Cache) emitRemoved(keys []string, reason string) {
	for _, k := range keys {
		c.emit(Event{Kind: EventRemoved, Key: k, Reason: reason})
	}
}
