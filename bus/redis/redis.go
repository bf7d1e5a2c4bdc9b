// Package redis carries bus frames over Redis pub/sub.
package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/swrcache/bus"
)

const DefaultChannel = "swrcache:invalidate"

// Transport publishes to and subscribes on one pub/sub channel.
type Transport struct {
	rdb     redis.UniversalClient
	channel string
	buffer  int
}

var (
	_ bus.Publisher  = (*Transport)(nil)
	_ bus.Subscriber = (*Transport)(nil)
)

// New returns a Transport on channel ("" => DefaultChannel).
func New(client redis.UniversalClient, channel string) *Transport {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Transport{rdb: client, channel: channel, buffer: 100}
}

func (t *Transport) Channel() string { return t.channel }

func (t *Transport) Publish(ctx context.Context, msg []byte) error {
	return t.rdb.Publish(ctx, t.channel, msg).Err()
}

// Subscribe waits for the subscription confirmation before returning, so no
// message published afterwards is missed.
func (t *Transport) Subscribe(ctx context.Context) (bus.Subscription, error) {
	ps := t.rdb.Subscribe(ctx, t.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", t.channel, err)
	}
	s := &subscription{ps: ps, out: make(chan []byte, t.buffer), done: make(chan struct{})}
	go s.pump(ps.Channel(redis.WithChannelSize(t.buffer)))
	return s, nil
}

type subscription struct {
	ps   *redis.PubSub
	out  chan []byte
	done chan struct{}
	once sync.Once
	err  error
}

func (s *subscription) Messages() <-chan []byte { return s.out }

func (s *subscription) pump(in <-chan *redis.Message) {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.out <- []byte(m.Payload):
			case <-s.done:
				return
			}
		}
	}
}

// Close unsubscribes and stops the pump; undelivered messages are dropped.
func (s *subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.err = s.ps.Close()
	})
	return s.err
}
