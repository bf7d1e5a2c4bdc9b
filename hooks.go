package swrcache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths, never with its lock held.
type Hooks interface {
	// A read found a record. stale=true means it was served stale.
	Hit(key string, stale bool)

	// No usable record and no fetch in flight; a fetch was started.
	Miss(key string)

	// A caller joined the fetch already in flight for key.
	Coalesced(key string)

	// A fetch began. reason ∈ {"miss", "force_refresh", "revalidate", "prefetch"}
	FetchStarted(key string, version uint64, reason string)

	// A successful fetch was discarded because a later fetch superseded it.
	CommitSkipped(key string, version uint64)

	// Provider returned ok=false on Set (bounded store under pressure).
	ProviderSetRejected(key string)

	// A background revalidation failed; the stale record was kept.
	RevalidateFailed(key string, err error)

	// Records were invalidated. key is "*" for InvalidateAll.
	// reason ∈ {"invalidate", "pattern", "all"}
	Invalidated(key, reason string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) Hit(string, bool)                    {}
func (NopHooks) Miss(string)                         {}
func (NopHooks) Coalesced(string)                    {}
func (NopHooks) FetchStarted(string, uint64, string) {}
func (NopHooks) CommitSkipped(string, uint64)        {}
func (NopHooks) ProviderSetRejected(string)          {}
func (NopHooks) RevalidateFailed(string, error)      {}
func (NopHooks) Invalidated(string, string)          {}
