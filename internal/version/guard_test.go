package version

import "testing"

func TestBeginSupersedesEarlierVersion(t *testing.T) {
	g := New()

	v1 := g.Begin("k")
	v2 := g.Begin("k")
	if v2 <= v1 {
		t.Fatalf("versions must increase: v1=%d v2=%d", v1, v2)
	}
	if g.IsCurrent("k", v1) {
		t.Fatalf("v1 should be superseded by v2")
	}
	if !g.IsCurrent("k", v2) {
		t.Fatalf("v2 should be current")
	}
	if cur, ok := g.Current("k"); !ok || cur != v2 {
		t.Fatalf("Current = %d,%v want %d,true", cur, ok, v2)
	}
}

func TestSettlePrunesOnlyCurrent(t *testing.T) {
	g := New()

	v1 := g.Begin("k")
	v2 := g.Begin("k")

	g.Settle("k", v1) // superseded; must not prune
	if !g.IsCurrent("k", v2) {
		t.Fatalf("settling a superseded version pruned the current one")
	}

	g.Settle("k", v2)
	if g.Len() != 0 {
		t.Fatalf("expected key pruned after current settles, len=%d", g.Len())
	}
	if g.IsCurrent("k", v1) || g.IsCurrent("k", v2) {
		t.Fatalf("no version should be current after prune")
	}
}

func TestPrunedKeyNeverReissuesOutstandingVersion(t *testing.T) {
	g := New()

	a := g.Begin("k") // slow fetch, later superseded
	b := g.Begin("k") // forced refresh
	g.Settle("k", b)  // b commits first and prunes the key

	c := g.Begin("k") // a new fetch after pruning
	if c == a {
		t.Fatalf("reissued outstanding version %d", a)
	}
	g.Settle("k", a)
	if !g.IsCurrent("k", c) {
		t.Fatalf("late settle of a superseded version must not affect c")
	}
}

func TestRevokeAndReset(t *testing.T) {
	g := New()

	v := g.Begin("a")
	w := g.Begin("b")
	g.Revoke("a")
	if g.IsCurrent("a", v) {
		t.Fatalf("revoked version still current")
	}
	if !g.IsCurrent("b", w) {
		t.Fatalf("revoke touched another key")
	}

	g.Reset()
	if g.Len() != 0 || g.IsCurrent("b", w) {
		t.Fatalf("reset left versions behind")
	}
	if next := g.Begin("b"); next <= w {
		t.Fatalf("sequence restarted after reset: %d <= %d", next, w)
	}
}
