// Package memory is the default unbounded provider: a plain map.
// Records are only removed by explicit deletion, never by capacity.
package memory

import (
	pr "github.com/unkn0wn-root/swrcache/provider"
)

type Memory struct {
	m map[string]pr.Record
}

var _ pr.Provider = (*Memory)(nil)

func New() *Memory {
	return &Memory{m: make(map[string]pr.Record)}
}

func (p *Memory) Get(key string) (pr.Record, bool) {
	r, ok := p.m[key]
	return r, ok
}

func (p *Memory) Set(key string, r pr.Record) bool {
	p.m[key] = r
	return true
}

func (p *Memory) Del(key string) bool {
	_, ok := p.m[key]
	delete(p.m, key)
	return ok
}

func (p *Memory) DelFunc(match func(string, pr.Record) bool) int {
	n := 0
	for k, r := range p.m {
		if match(k, r) {
			delete(p.m, k)
			n++
		}
	}
	return n
}

func (p *Memory) Clear() int {
	n := len(p.m)
	p.m = make(map[string]pr.Record)
	return n
}

func (p *Memory) Keys() []string {
	out := make([]string, 0, len(p.m))
	for k := range p.m {
		out = append(out, k)
	}
	return out
}

func (p *Memory) Len() int { return len(p.m) }

func (p *Memory) Close() error { return nil }
