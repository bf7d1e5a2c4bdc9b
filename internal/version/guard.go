// Package version tracks which in-flight fetch is allowed to commit for a key.
//
// Versions are drawn from one monotonically increasing sequence shared by all
// keys, so a key whose entry was pruned can never be handed a version that a
// superseded fetch still holds.
package version

type entry struct {
	current uint64
}

// Guard maps keys to their current (authoritative) version.
// Guard is not safe for concurrent use; the owning cache serializes access.
type Guard struct {
	seq  uint64
	keys map[string]entry
}

func New() *Guard {
	return &Guard{keys: make(map[string]entry)}
}

// Begin issues a new version for key and makes it current.
// Any version previously issued for key stops being current.
func (g *Guard) Begin(key string) uint64 {
	g.seq++
	g.keys[key] = entry{current: g.seq}
	return g.seq
}

// Current returns the current version for key; ok=false if none is tracked.
func (g *Guard) Current(key string) (uint64, bool) {
	e, ok := g.keys[key]
	return e.current, ok
}

// IsCurrent reports whether v is still the authoritative version for key.
func (g *Guard) IsCurrent(key string, v uint64) bool {
	e, ok := g.keys[key]
	return ok && e.current == v
}

// Settle is called when the fetch holding v completes. If v is current the
// key entry is pruned: no other outstanding fetch can be authoritative.
func (g *Guard) Settle(key string, v uint64) {
	if g.IsCurrent(key, v) {
		delete(g.keys, key)
	}
}

// Revoke drops the current version for key so no outstanding fetch can commit.
func (g *Guard) Revoke(key string) {
	delete(g.keys, key)
}

// Reset revokes every key. The sequence keeps counting.
func (g *Guard) Reset() {
	g.keys = make(map[string]entry)
}

// Len returns the number of keys with an outstanding authoritative fetch.
func (g *Guard) Len() int { return len(g.keys) }
