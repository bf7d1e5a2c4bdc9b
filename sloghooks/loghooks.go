// Package sloghooks logs swrcache hooks through log/slog.
package sloghooks

import (
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/swrcache"
	"github.com/unkn0wn-root/swrcache/keys"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	HitEvery       uint64
	CoalescedEvery uint64
	// Hits, misses and coalesced joins are logged only when set.
	Verbose bool
	// Optional key redactor. Defaults to keys.Fingerprint.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	hitCtr       atomic.Uint64
	coalescedCtr atomic.Uint64
}

var _ swrcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return keys.Fingerprint(k)
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Hit(key string, stale bool) {
	if h.l == nil || !h.opts.Verbose || !sample(h.opts.HitEvery, &h.hitCtr) {
		return
	}
	h.l.Debug("swrcache.hit",
		"key", h.redact(key),
		"stale", stale)
}

func (h *Hooks) Miss(key string) {
	if h.l == nil || !h.opts.Verbose {
		return
	}
	h.l.Debug("swrcache.miss", "key", h.redact(key))
}

func (h *Hooks) Coalesced(key string) {
	if h.l == nil || !h.opts.Verbose || !sample(h.opts.CoalescedEvery, &h.coalescedCtr) {
		return
	}
	h.l.Debug("swrcache.coalesced", "key", h.redact(key))
}

func (h *Hooks) FetchStarted(key string, version uint64, reason string) {
	if h.l == nil {
		return
	}
	h.l.Debug("swrcache.fetch_started",
		"key", h.redact(key),
		"version", version,
		"reason", reason)
}

func (h *Hooks) CommitSkipped(key string, version uint64) {
	if h.l == nil {
		return
	}
	h.l.Info("swrcache.commit_skipped",
		"key", h.redact(key),
		"version", version)
}

func (h *Hooks) ProviderSetRejected(key string) {
	if h.l == nil {
		return
	}
	h.l.Warn("swrcache.provider_set_rejected", "key", h.redact(key))
}

func (h *Hooks) RevalidateFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("swrcache.revalidate_failed",
		"key", h.redact(key),
		"err", err)
}

func (h *Hooks) Invalidated(key, reason string) {
	if h.l == nil {
		return
	}
	if key != "*" {
		key = h.redact(key)
	}
	h.l.Info("swrcache.invalidated",
		"key", key,
		"reason", reason)
}
