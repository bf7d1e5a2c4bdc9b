// Package swrcache implements a read-through cache with TTL freshness,
// stale-while-revalidate serving and race-safe fetch coordination.
//
// Guarantees:
//   - At most one fetch is in flight per key; concurrent callers for a
//     missing key share it.
//   - Every fetch captures a version when it starts. Its result is committed
//     only if that version is still current when it completes, so a fetch
//     started later (e.g. a forced refresh) always wins over an earlier,
//     slower one, regardless of completion order.
//   - A stale record is served immediately while one background fetch
//     refreshes it; a failed refresh leaves the stale record in place.
//
// Components:
//   - Provider: record store (memory by default, bounded LRU or Ristretto).
//   - version.Guard: per-key authoritative version.
//   - Hooks / Logger: observability, both no-op by default.
//
// Usage:
//
//	c, _ := swrcache.New(swrcache.Options{TTL: time.Minute})
//	res, err := swrcache.GetOrFetch(ctx, c, "analyses:list", func(ctx context.Context) ([]Analysis, error) {
//	    return api.ListAnalyses(ctx)
//	})
//	// after a write elsewhere:
//	c.InvalidatePattern(regexp.MustCompile(`^analyses:`))
//
// The cache never cancels a fetch. A superseded fetch runs to completion and
// its result is dropped. Time-outs and retries belong to the fetch func.
package swrcache
