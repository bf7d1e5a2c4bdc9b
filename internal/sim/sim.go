// Package sim drives a swrcache.Cache through the scenarios swrctl demonstrates
// against a simulated data source.
package sim

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/swrcache"
	"github.com/unkn0wn-root/swrcache/bus"
	"github.com/unkn0wn-root/swrcache/keys"
	pr "github.com/unkn0wn-root/swrcache/provider"
)

// Scenarios lists the names Run accepts.
var Scenarios = []string{"dedup", "race", "swr", "invalidate"}

type Config struct {
	Callers int           // concurrent callers; 0 => 16
	Latency time.Duration // source latency; 0 => 20ms
	Base    swrcache.Options

	// NewProvider builds a record store per cache; nil => Base.Provider.
	NewProvider func() (pr.Provider, error)
}

type Report struct {
	Scenario string
	Callers  int
	Fetches  int64
	Elapsed  time.Duration
	Final    string
	Notes    []string
}

func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario:  %s\n", r.Scenario)
	fmt.Fprintf(&b, "callers:   %s\n", humanize.Comma(int64(r.Callers)))
	fmt.Fprintf(&b, "fetches:   %s\n", humanize.Comma(r.Fetches))
	fmt.Fprintf(&b, "elapsed:   %s\n", humanize.SIWithDigits(r.Elapsed.Seconds(), 2, "s"))
	if r.Final != "" {
		fmt.Fprintf(&b, "final:     %s\n", r.Final)
	}
	for _, n := range r.Notes {
		fmt.Fprintf(&b, "  - %s\n", n)
	}
	return b.String()
}

// Source is a simulated remote data source. Every call returns a new
// revision of the key so commits are distinguishable.
type Source struct {
	Latency time.Duration
	calls   atomic.Int64
}

func (s *Source) Calls() int64 { return s.calls.Load() }

// Fetch returns a fetcher for key that answers after latency.
func (s *Source) Fetch(key string, latency time.Duration) swrcache.FetchFunc[string] {
	return func(ctx context.Context) (string, error) {
		n := s.calls.Add(1)
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return fmt.Sprintf("%s@r%d", key, n), nil
	}
}

// clock is the cache's time source; scenarios jump it past the TTL.
type clock struct {
	mu     sync.Mutex
	offset time.Duration
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Add(c.offset)
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.offset += d
	c.mu.Unlock()
}

func Run(ctx context.Context, scenario string, cfg Config) (Report, error) {
	if cfg.Callers <= 0 {
		cfg.Callers = 16
	}
	if cfg.Latency <= 0 {
		cfg.Latency = 20 * time.Millisecond
	}
	var run func(context.Context, Config, *Report) error
	switch scenario {
	case "dedup":
		run = dedup
	case "race":
		run = race
	case "swr":
		run = swr
	case "invalidate":
		run = invalidate
	default:
		return Report{}, fmt.Errorf("unknown scenario %q (want one of %s)", scenario, strings.Join(Scenarios, ", "))
	}
	r := Report{Scenario: scenario, Callers: cfg.Callers}
	start := time.Now()
	err := run(ctx, cfg, &r)
	r.Elapsed = time.Since(start)
	return r, err
}

func newCache(cfg Config, clk *clock) (*swrcache.Cache, error) {
	opts := cfg.Base
	if clk != nil {
		opts.Now = clk.Now
	}
	if cfg.NewProvider != nil {
		p, err := cfg.NewProvider()
		if err != nil {
			return nil, err
		}
		opts.Provider = p
	}
	return swrcache.New(opts)
}

// dedup: concurrent callers for one missing key share a single fetch.
func dedup(ctx context.Context, cfg Config, r *Report) error {
	c, err := newCache(cfg, nil)
	if err != nil {
		return err
	}
	defer c.Close(ctx)

	src := &Source{}
	key := keys.Join("analyses", "list")
	results := make([]string, cfg.Callers)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Callers; i++ {
		i := i
		g.Go(func() error {
			res, err := swrcache.GetOrFetch(gctx, c, key, src.Fetch(key, cfg.Latency))
			results[i] = res.Data
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	distinct := map[string]struct{}{}
	for _, v := range results {
		distinct[v] = struct{}{}
	}
	r.Fetches = src.Calls()
	r.Final = results[0]
	r.Notes = append(r.Notes, fmt.Sprintf("%d distinct result(s) across %d callers", len(distinct), cfg.Callers))
	return nil
}

// race: a slow fetch is superseded by a later forced refresh that finishes
// first; the slow result must not overwrite it.
func race(ctx context.Context, cfg Config, r *Report) error {
	c, err := newCache(cfg, nil)
	if err != nil {
		return err
	}
	defer c.Close(ctx)

	src := &Source{}
	key := keys.Join("dashboard", "stats")
	slowDone := make(chan swrcache.Result[string], 1)
	slowErr := make(chan error, 1)
	go func() {
		res, err := swrcache.GetOrFetch(ctx, c, key, src.Fetch(key, 3*cfg.Latency))
		slowDone <- res
		slowErr <- err
	}()

	// let the slow fetch register before the forced one supersedes it
	for src.Calls() == 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
	forced, err := swrcache.GetOrFetch(ctx, c, key, src.Fetch(key, cfg.Latency), swrcache.WithForceRefresh())
	if err != nil {
		return err
	}
	slow := <-slowDone
	if err := <-slowErr; err != nil {
		return err
	}
	if err := c.Drain(ctx); err != nil {
		return err
	}

	e, _, err := swrcache.Get[string](c, key)
	if err != nil {
		return err
	}
	r.Callers = 2
	r.Fetches = src.Calls()
	r.Final = e.Data
	r.Notes = append(r.Notes,
		"slow caller got   "+slow.Data,
		"forced caller got "+forced.Data,
	)
	if e.Data != forced.Data {
		return fmt.Errorf("superseded result %q was committed over %q", e.Data, forced.Data)
	}
	return nil
}

// swr: a stale record is served immediately to every caller while exactly
// one background revalidation refreshes it.
func swr(ctx context.Context, cfg Config, r *Report) error {
	if cfg.Base.DisableStaleWhileRevalidate {
		return fmt.Errorf("swr scenario needs stale-while-revalidate enabled")
	}
	clk := &clock{}
	c, err := newCache(cfg, clk)
	if err != nil {
		return err
	}
	defer c.Close(ctx)

	src := &Source{}
	key := keys.Join("projects", "list")
	if err := swrcache.Set(c, key, key+"@seed"); err != nil {
		return err
	}
	clk.Advance(c.TTL() + time.Second)

	var stale atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Callers; i++ {
		g.Go(func() error {
			res, err := swrcache.GetOrFetch(gctx, c, key, src.Fetch(key, cfg.Latency))
			if res.FromCache {
				stale.Add(1)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := c.Drain(ctx); err != nil {
		return err
	}

	e, _, err := swrcache.Get[string](c, key)
	if err != nil {
		return err
	}
	r.Fetches = src.Calls()
	r.Final = e.Data
	r.Notes = append(r.Notes, fmt.Sprintf("%d of %d callers served from cache", stale.Load(), cfg.Callers))
	return nil
}

// invalidate: two caches mirrored over an in-process bus; a pattern
// invalidation on one empties the matching keys on both.
func invalidate(ctx context.Context, cfg Config, r *Report) error {
	lb := bus.NewLoopback(0)
	var caches []*swrcache.Cache
	var mirrors []*bus.Mirror
	defer func() {
		for _, m := range mirrors {
			_ = m.Close()
		}
		for _, c := range caches {
			_ = c.Close(ctx)
		}
	}()
	for _, origin := range []string{"node-a", "node-b"} {
		c, err := newCache(cfg, nil)
		if err != nil {
			return err
		}
		caches = append(caches, c)
		m, err := bus.New(c, lb, lb, bus.Options{Origin: origin, Logger: cfg.Base.Logger})
		if err != nil {
			return err
		}
		mirrors = append(mirrors, m)
		if err := m.Start(ctx); err != nil {
			return err
		}
	}

	all := []string{
		keys.Join("analyses", "list"), keys.Join("analyses", "detail", "1"),
		keys.Join("projects", "list"), keys.Join("dashboard", "stats"),
	}
	for _, c := range caches {
		for _, k := range all {
			if err := swrcache.Set(c, k, k); err != nil {
				return err
			}
		}
	}

	n, err := mirrors[0].InvalidatePattern(ctx, keys.Prefix("analyses"))
	if err != nil {
		return err
	}
	remote := caches[1]
	deadline := time.Now().Add(time.Second)
	for remote.Len() != len(all)-n {
		if time.Now().After(deadline) {
			return fmt.Errorf("remote cache still holds %d keys", remote.Len())
		}
		time.Sleep(time.Millisecond)
	}

	r.Callers = len(caches)
	r.Final = strings.Join(sortedKeys(remote), ",")
	r.Notes = append(r.Notes, fmt.Sprintf("pattern %s removed %d key(s) on each node", keys.Prefix("analyses"), n))
	return nil
}

func sortedKeys(c *swrcache.Cache) []string {
	ks := c.Keys()
	sort.Strings(ks)
	return ks
}
