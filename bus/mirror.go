package bus

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/swrcache"
	"github.com/unkn0wn-root/swrcache/codec"
	"github.com/unkn0wn-root/swrcache/internal/wire"
)

const defaultMaxMessageBytes = 64 << 10

var ErrStarted = errors.New("swrcache/bus: mirror already started")

type Options struct {
	Origin          string     // "" => random uuid
	Codec           EventCodec // zero => JSON
	MaxMessageBytes int        // per event payload; 0 => 64 KiB
	Logger          swrcache.Logger
	Now             func() time.Time
}

// Mirror applies invalidations to a local cache and publishes them so peers
// apply them too. Remote events are applied with the plain cache operations;
// they are never republished.
type Mirror struct {
	c      *swrcache.Cache
	pub    Publisher
	sub    Subscriber
	origin string
	enc    EventCodec
	max    int
	log    swrcache.Logger
	now    func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a Mirror for c. sub may be nil for a publish-only mirror.
func New(c *swrcache.Cache, pub Publisher, sub Subscriber, opts Options) (*Mirror, error) {
	if c == nil {
		return nil, errors.New("swrcache/bus: nil cache")
	}
	if pub == nil {
		return nil, errors.New("swrcache/bus: nil publisher")
	}
	if opts.MaxMessageBytes < 0 {
		return nil, fmt.Errorf("swrcache/bus: negative MaxMessageBytes %d", opts.MaxMessageBytes)
	}
	m := &Mirror{
		c:      c,
		pub:    pub,
		sub:    sub,
		origin: opts.Origin,
		enc:    opts.Codec,
		max:    opts.MaxMessageBytes,
		log:    opts.Logger,
		now:    opts.Now,
	}
	if m.origin == "" {
		m.origin = uuid.NewString()
	}
	if m.enc.c == nil {
		m.enc = JSON
	}
	if m.max == 0 {
		m.max = defaultMaxMessageBytes
	}
	if m.log == nil {
		m.log = swrcache.NopLogger{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

func (m *Mirror) Origin() string { return m.origin }

// Start subscribes and applies remote events on a goroutine until ctx is done
// or Close is called. The subscription is live when Start returns.
func (m *Mirror) Start(ctx context.Context) error {
	if m.sub == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		return ErrStarted
	}
	s, err := m.sub.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("swrcache/bus: subscribe: %w", err)
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.consume(ctx, s)
	m.log.Info("invalidation mirror started", swrcache.Fields{"origin": m.origin, "codec": m.enc.String()})
	return nil
}

// Close stops consuming and waits for the consumer to exit.
func (m *Mirror) Close() error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (m *Mirror) consume(ctx context.Context, s Subscription) {
	defer close(m.done)
	defer s.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.Messages():
			if !ok {
				m.log.Warn("invalidation subscription closed by transport", swrcache.Fields{"origin": m.origin})
				return
			}
			m.handle(msg)
		}
	}
}

// Invalidate deletes key locally and publishes it. The local delete happens
// even when publishing fails.
func (m *Mirror) Invalidate(ctx context.Context, key string) (bool, error) {
	removed := m.c.Invalidate(key)
	return removed, m.publish(ctx, Event{Op: OpKey, Key: key})
}

// InvalidateKeys deletes keys locally and publishes them in one batch frame.
func (m *Mirror) InvalidateKeys(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n := 0
	evs := make([]Event, 0, len(keys))
	for _, k := range keys {
		if m.c.Invalidate(k) {
			n++
		}
		evs = append(evs, Event{Op: OpKey, Key: k})
	}
	return n, m.publish(ctx, evs...)
}

func (m *Mirror) InvalidatePattern(ctx context.Context, re *regexp.Regexp) (int, error) {
	if re == nil {
		return 0, nil
	}
	n := m.c.InvalidatePattern(re)
	return n, m.publish(ctx, Event{Op: OpPattern, Pattern: re.String()})
}

func (m *Mirror) InvalidateMatch(ctx context.Context, pattern string) (int, error) {
	n := m.c.InvalidateMatch(pattern)
	return n, m.publish(ctx, Event{Op: OpMatch, Pattern: pattern})
}

func (m *Mirror) InvalidateAll(ctx context.Context) (int, error) {
	n := m.c.InvalidateAll()
	return n, m.publish(ctx, Event{Op: OpAll})
}

func (m *Mirror) publish(ctx context.Context, evs ...Event) error {
	at := m.now()
	payloads := make([][]byte, 0, len(evs))
	for _, ev := range evs {
		ev.Origin, ev.At = m.origin, at
		b, err := m.enc.Encode(ev)
		if err != nil {
			return fmt.Errorf("swrcache/bus: encode %s: %w", ev.Op, err)
		}
		if len(b) > m.max {
			return fmt.Errorf("swrcache/bus: event too large: %d > %d", len(b), m.max)
		}
		payloads = append(payloads, b)
	}

	var msg []byte
	if len(payloads) == 1 {
		msg = wire.EncodeSingle(m.enc.ID(), payloads[0])
	} else {
		var err error
		if msg, err = wire.EncodeBatch(m.enc.ID(), payloads); err != nil {
			return err
		}
	}
	if err := m.pub.Publish(ctx, msg); err != nil {
		return fmt.Errorf("swrcache/bus: publish: %w", err)
	}
	return nil
}

// handle decodes one frame and applies its remote events.
func (m *Mirror) handle(msg []byte) {
	kind, err := wire.Kind(msg)
	if err != nil {
		m.log.Warn("dropping malformed invalidation frame", swrcache.Fields{"err": err, "len": len(msg)})
		return
	}

	var id byte
	var payloads [][]byte
	if kind == wire.KindSingle {
		var p []byte
		id, p, err = wire.DecodeSingle(msg)
		payloads = [][]byte{p}
	} else {
		id, payloads, err = wire.DecodeBatch(msg)
	}
	if err != nil {
		m.log.Warn("dropping malformed invalidation frame", swrcache.Fields{"err": err, "len": len(msg)})
		return
	}
	ec, ok := codecByID(id)
	if !ok {
		m.log.Warn("dropping invalidation frame with unknown codec", swrcache.Fields{"codec": id})
		return
	}
	dec := codec.LimitCodec[Event]{Inner: ec, MaxDecode: m.max}

	for _, p := range payloads {
		ev, err := dec.Decode(p)
		if err != nil {
			m.log.Warn("dropping undecodable invalidation event", swrcache.Fields{"err": err, "codec": ec.String()})
			continue
		}
		if ev.Origin == m.origin {
			continue
		}
		m.apply(ev)
	}
}

func (m *Mirror) apply(ev Event) {
	var n int
	switch ev.Op {
	case OpKey:
		if m.c.Invalidate(ev.Key) {
			n = 1
		}
	case OpPattern:
		re, err := regexp.Compile(ev.Pattern)
		if err != nil {
			m.log.Warn("dropping invalidation with bad pattern", swrcache.Fields{"pattern": ev.Pattern, "err": err})
			return
		}
		n = m.c.InvalidatePattern(re)
	case OpMatch:
		n = m.c.InvalidateMatch(ev.Pattern)
	case OpAll:
		n = m.c.InvalidateAll()
	default:
		m.log.Warn("dropping invalidation with unknown op", swrcache.Fields{"op": string(ev.Op)})
		return
	}
	m.log.Debug("applied remote invalidation", swrcache.Fields{
		"op": string(ev.Op), "key": ev.Key, "pattern": ev.Pattern, "origin": ev.Origin, "removed": n,
	})
}
