package asynchook

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/swrcache"
)

type recorder struct {
	swrcache.NopHooks
	mu    sync.Mutex
	calls []string
	block chan struct{}
}

func (r *recorder) Miss(k string) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.calls = append(r.calls, "miss:"+k)
	r.mu.Unlock()
}

func (r *recorder) Invalidated(k, reason string) {
	r.mu.Lock()
	r.calls = append(r.calls, "invalidated:"+k+":"+reason)
	r.mu.Unlock()
}

func TestDeliversQueuedCallsBeforeClose(t *testing.T) {
	rec := &recorder{}
	h := New(rec, 1, 16)

	h.Miss("a")
	h.Invalidated("a", "invalidate")
	h.Close()

	require.Equal(t, []string{"miss:a", "invalidated:a:invalidate"}, rec.calls)
	require.Zero(t, h.Dropped())
}

func TestDropsWhenQueueFull(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	h := New(rec, 1, 1)

	h.Miss("first") // taken by the worker, which blocks
	require.Eventually(t, func() bool { return len(h.q) == 0 }, 2*time.Second, time.Millisecond)
	h.Miss("queued")
	h.Miss("dropped")
	require.EqualValues(t, 1, h.Dropped())

	close(rec.block)
	h.Close()
	require.Len(t, rec.calls, 2)
}

func TestCallsAfterCloseAreDropped(t *testing.T) {
	h := New(nil, 2, 4)
	h.Close()
	h.Close()
	h.Hit("k", false)
	require.EqualValues(t, 1, h.Dropped())
}
