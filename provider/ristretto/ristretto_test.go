package ristretto

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/swrcache"
	pr "github.com/unkn0wn-root/swrcache/provider"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New(Config{NumCounters: 1000, MaxCost: 100, BufferItems: 64, Metrics: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestSetIsVisibleImmediately(t *testing.T) {
	r := require.New(t)
	p := newTestProvider(t)
	at := time.Unix(42, 0)

	r.True(p.Set("k", pr.Record{Value: "v", StoredAt: at}))
	got, ok := p.Get("k")
	r.True(ok)
	r.Equal("v", got.Value)
	r.Equal(at, got.StoredAt)
	r.Equal([]string{"k"}, p.Keys())
}

func TestDelFuncUsesKeyIndex(t *testing.T) {
	r := require.New(t)
	p := newTestProvider(t)

	for _, k := range []string{"a:1", "a:2", "b:1"} {
		r.True(p.Set(k, pr.Record{Value: k}))
	}
	n := p.DelFunc(func(k string, _ pr.Record) bool { return k[0] == 'a' })
	r.Equal(2, n)
	_, ok := p.Get("a:1")
	r.False(ok)
	_, ok = p.Get("b:1")
	r.True(ok)

	r.True(p.Del("b:1"))
	r.Zero(p.Len())
}

func TestClear(t *testing.T) {
	r := require.New(t)
	p := newTestProvider(t)
	r.True(p.Set("a", pr.Record{Value: 1}))
	r.True(p.Set("b", pr.Record{Value: 2}))

	r.Equal(2, p.Clear())
	_, ok := p.Get("a")
	r.False(ok)
	r.Zero(p.Len())
}

func TestMaxCostIsARecordCount(t *testing.T) {
	r := require.New(t)
	p := newTestProvider(t)

	const n = 50 // below MaxCost 100
	for i := 0; i < n; i++ {
		r.True(p.Set(fmt.Sprintf("k:%d", i), pr.Record{Value: i}))
	}
	r.Equal(n, p.Len())
	for i := 0; i < n; i++ {
		got, ok := p.Get(fmt.Sprintf("k:%d", i))
		r.True(ok, "k:%d evicted", i)
		r.Equal(i, got.Value)
	}
}

func TestBacksACache(t *testing.T) {
	r := require.New(t)
	p, err := New(Config{NumCounters: 1000, MaxCost: 100, BufferItems: 64})
	r.NoError(err)
	c, err := swrcache.New(swrcache.Options{TTL: time.Minute, Provider: p})
	r.NoError(err)
	ctx := context.Background()
	defer c.Close(ctx)

	for _, k := range []string{"analyses:list", "analyses:detail:1", "projects:list"} {
		k := k
		res, err := swrcache.GetOrFetch(ctx, c, k, func(context.Context) (string, error) { return k + "@r1", nil })
		r.NoError(err)
		r.False(res.FromCache)
	}
	r.Equal(3, c.Len())

	res, err := swrcache.GetOrFetch(ctx, c, "analyses:list", func(context.Context) (string, error) {
		return "", fmt.Errorf("fetched a fresh key")
	})
	r.NoError(err)
	r.True(res.FromCache)
	r.Equal("analyses:list@r1", res.Data)

	r.Equal(2, c.InvalidatePattern(regexp.MustCompile(`^analyses:`)))
	r.Equal([]string{"projects:list"}, c.Keys())
	_, ok := c.Lookup("analyses:detail:1")
	r.False(ok)
}
