package ristretto

import (
	"errors"
	"sync"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/swrcache/provider"
)

// Provider is a cost-bounded store on top of Ristretto. Ristretto's admission
// policy may refuse new keys under pressure; Set reports that as ok=false.
//
// Ristretto cannot enumerate its keys, so the provider keeps a key index that
// eviction and rejection callbacks prune from Ristretto's own goroutine.
type Provider struct {
	c    *rc.Cache
	cost func(key string, r pr.Record) int64

	mu    sync.Mutex
	index map[string]struct{}
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
	// Cost of a record; nil => 1 per record (MaxCost is then a record count).
	Cost func(key string, r pr.Record) int64
}

type slot struct {
	key string
	rec pr.Record
}

func New(cfg Config) (*Provider, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	p := &Provider{
		cost:  cfg.Cost,
		index: make(map[string]struct{}),
	}
	if p.cost == nil {
		p.cost = func(string, pr.Record) int64 { return 1 }
	}
	drop := func(item *rc.Item) {
		if s, ok := item.Value.(*slot); ok {
			p.unindex(s.key)
		}
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters:        cfg.NumCounters,
		MaxCost:            cfg.MaxCost,
		BufferItems:        cfg.BufferItems,
		Metrics:            cfg.Metrics,
		// MaxCost counts the caller's cost only.
		IgnoreInternalCost: true,
		OnEvict:            drop,
		OnReject:           drop,
	})
	if err != nil {
		return nil, err
	}
	p.c = c
	return p, nil
}

func (p *Provider) Get(key string) (pr.Record, bool) {
	v, ok := p.c.Get(key)
	if !ok {
		return pr.Record{}, false
	}
	s, _ := v.(*slot)
	if s == nil {
		// self-heal: drop unexpected entry shape
		p.c.Del(key)
		p.unindex(key)
		return pr.Record{}, false
	}
	return s.rec, true
}

// Set waits for Ristretto's write buffer so the record is visible to the next
// Get, as the cache requires of a committed record.
func (p *Provider) Set(key string, r pr.Record) bool {
	p.mu.Lock()
	p.index[key] = struct{}{}
	p.mu.Unlock()

	ok := p.c.Set(key, &slot{key: key, rec: r}, p.cost(key, r))
	p.c.Wait()
	if !ok {
		p.unindex(key)
		return false
	}
	return p.indexed(key)
}

func (p *Provider) Del(key string) bool {
	_, ok := p.c.Get(key)
	p.c.Del(key)
	p.unindex(key)
	return ok
}

func (p *Provider) DelFunc(match func(string, pr.Record) bool) int {
	n := 0
	for _, k := range p.Keys() {
		r, ok := p.Get(k)
		if ok && match(k, r) {
			p.c.Del(k)
			p.unindex(k)
			n++
		}
	}
	return n
}

func (p *Provider) Clear() int {
	p.mu.Lock()
	n := len(p.index)
	p.index = make(map[string]struct{})
	p.mu.Unlock()
	p.c.Clear()
	return n
}

func (p *Provider) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.index))
	for k := range p.index {
		out = append(out, k)
	}
	return out
}

func (p *Provider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.index)
}

func (p *Provider) Close() error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Helper to expose metrics if desired by the application (not part of provider.Provider).
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }

func (p *Provider) unindex(key string) {
	p.mu.Lock()
	delete(p.index, key)
	p.mu.Unlock()
}

func (p *Provider) indexed(key string) bool {
	p.mu.Lock()
	_, ok := p.index[key]
	p.mu.Unlock()
	return ok
}
