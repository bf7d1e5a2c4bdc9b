// Package lru is a bounded provider backed by hashicorp/golang-lru/v2.
// When MaxEntries is reached the least recently used record is evicted.
package lru

import (
	"errors"

	hlru "github.com/hashicorp/golang-lru/v2"

	pr "github.com/unkn0wn-root/swrcache/provider"
)

var ErrInvalidSize = errors.New("lru provider: MaxEntries must be > 0")

type LRU struct {
	c *hlru.Cache[string, pr.Record]
	// explicit is set while Del/DelFunc/Clear run; golang-lru reports
	// explicit removals through the same callback as evictions.
	explicit bool
}

var _ pr.Provider = (*LRU)(nil)

type Config struct {
	MaxEntries int
	// OnEvict is called for capacity evictions only (not for Del/DelFunc/Clear).
	// It runs with the cache lock held and must not call back into the cache.
	OnEvict func(key string)
}

func New(cfg Config) (*LRU, error) {
	if cfg.MaxEntries <= 0 {
		return nil, ErrInvalidSize
	}
	p := &LRU{}
	var (
		c   *hlru.Cache[string, pr.Record]
		err error
	)
	if cfg.OnEvict != nil {
		onEvict := cfg.OnEvict
		c, err = hlru.NewWithEvict[string, pr.Record](cfg.MaxEntries, func(k string, _ pr.Record) {
			if !p.explicit {
				onEvict(k)
			}
		})
	} else {
		c, err = hlru.New[string, pr.Record](cfg.MaxEntries)
	}
	if err != nil {
		return nil, err
	}
	p.c = c
	return p, nil
}

func (p *LRU) Get(key string) (pr.Record, bool) { return p.c.Get(key) }

func (p *LRU) Set(key string, r pr.Record) bool {
	p.c.Add(key, r)
	return true
}

func (p *LRU) Del(key string) bool {
	p.explicit = true
	defer func() { p.explicit = false }()
	return p.c.Remove(key)
}

func (p *LRU) DelFunc(match func(string, pr.Record) bool) int {
	p.explicit = true
	defer func() { p.explicit = false }()
	n := 0
	for _, k := range p.c.Keys() {
		r, ok := p.c.Peek(k)
		if ok && match(k, r) {
			p.c.Remove(k)
			n++
		}
	}
	return n
}

// Clear drops all records without firing OnEvict.
func (p *LRU) Clear() int {
	p.explicit = true
	defer func() { p.explicit = false }()
	keys := p.c.Keys()
	for _, k := range keys {
		p.c.Remove(k)
	}
	return len(keys)
}

func (p *LRU) Keys() []string { return p.c.Keys() }

func (p *LRU) Len() int { return p.c.Len() }

func (p *LRU) Close() error { return nil }
