package memory

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pr "github.com/unkn0wn-root/swrcache/provider"
)

func TestMemorySetOverwritesAndDeletes(t *testing.T) {
	r := require.New(t)
	p := New()
	t0 := time.Unix(100, 0)

	r.True(p.Set("a", pr.Record{Value: 1, StoredAt: t0}))
	r.True(p.Set("a", pr.Record{Value: 2, StoredAt: t0.Add(time.Second)}))

	got, ok := p.Get("a")
	r.True(ok)
	r.Equal(2, got.Value)
	r.Equal(t0.Add(time.Second), got.StoredAt)
	r.Equal(1, p.Len())

	r.True(p.Del("a"))
	r.False(p.Del("a"))
	_, ok = p.Get("a")
	r.False(ok)
}

func TestMemoryDelFuncAndClear(t *testing.T) {
	r := require.New(t)
	p := New()
	for _, k := range []string{"analyses:list", "analyses:detail:1", "projects:list"} {
		p.Set(k, pr.Record{Value: k})
	}

	n := p.DelFunc(func(k string, _ pr.Record) bool { return strings.HasPrefix(k, "analyses:") })
	r.Equal(2, n)

	keys := p.Keys()
	sort.Strings(keys)
	r.Equal([]string{"projects:list"}, keys)

	r.Equal(1, p.Clear())
	r.Zero(p.Len())
	r.NoError(p.Close())
}
