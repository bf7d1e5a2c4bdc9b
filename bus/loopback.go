package bus

import (
	"context"
	"sync"
)

// Loopback is an in-process transport: every message published reaches every
// open subscription. It wires several caches in one process (tests, the
// swrctl simulator) the way a broker wires several processes.
type Loopback struct {
	mu     sync.RWMutex
	subs   map[*loopSub]struct{}
	buffer int
}

var (
	_ Publisher  = (*Loopback)(nil)
	_ Subscriber = (*Loopback)(nil)
)

func NewLoopback(buffer int) *Loopback {
	if buffer <= 0 {
		buffer = 64
	}
	return &Loopback{subs: make(map[*loopSub]struct{}), buffer: buffer}
}

// Publish blocks while a subscriber's buffer is full, until ctx is done.
func (l *Loopback) Publish(ctx context.Context, msg []byte) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for s := range l.subs {
		b := append([]byte(nil), msg...)
		select {
		case s.ch <- b:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (l *Loopback) Subscribe(context.Context) (Subscription, error) {
	s := &loopSub{l: l, ch: make(chan []byte, l.buffer), done: make(chan struct{})}
	l.mu.Lock()
	l.subs[s] = struct{}{}
	l.mu.Unlock()
	return s, nil
}

type loopSub struct {
	l    *Loopback
	ch   chan []byte
	done chan struct{}
	once sync.Once
}

func (s *loopSub) Messages() <-chan []byte { return s.ch }

// Close detaches the subscription. Messages is never closed: senders may still
// hold it.
func (s *loopSub) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.l.mu.Lock()
		delete(s.l.subs, s)
		s.l.mu.Unlock()
	})
	return nil
}
