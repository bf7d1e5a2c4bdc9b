// Package provider defines the record store behind a swrcache.Cache.
//
// A provider holds {value, storedAt} records keyed by opaque strings. It knows
// nothing about freshness: the cache computes staleness from StoredAt on read.
//
// The cache calls a provider with its own lock held, so implementations need not
// be safe for concurrent use unless they are shared outside the cache (they
// should not be) or mutate state from their own goroutines (eviction callbacks).
package provider

import "time"

// Record is a stored value and the instant it was committed.
type Record struct {
	Value    any
	StoredAt time.Time
}

// Provider is a minimal in-process record store.
type Provider interface {
	// Get returns (record, true) on hit; (Record{}, false) on miss.
	Get(key string) (Record, bool)

	// Set stores r under key, overwriting any previous record.
	// Returns false when a bounded store refused the write.
	Set(key string, r Record) bool

	// Del removes key; reports whether it was present.
	Del(key string) bool

	// DelFunc removes every record for which match returns true and
	// reports how many were removed.
	DelFunc(match func(key string, r Record) bool) int

	// Clear removes everything and reports how many records were removed.
	Clear() int

	// Keys returns the stored keys in no particular order.
	Keys() []string

	// Len returns the number of stored records.
	Len() int

	// Close releases resources.
	Close() error
}
