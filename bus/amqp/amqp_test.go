package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/swrcache"
	"github.com/unkn0wn-root/swrcache/bus"
)

// fakeChannel is an in-memory fanout exchange.
type fakeChannel struct {
	mu        sync.Mutex
	exchanges map[string]string
	bindings  map[string]string // queue -> exchange
	consumers map[string]chan amqp.Delivery
	queues    int
	published []amqp.Publishing
	declErr   error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		exchanges: map[string]string{},
		bindings:  map[string]string{},
		consumers: map[string]chan amqp.Delivery{},
	}
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	if f.declErr != nil {
		return f.declErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges[name] = kind
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues++
	return amqp.Queue{Name: fmt.Sprintf("amq.gen-%d", f.queues)}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.exchanges[exchange]; !ok {
		return errors.New("NOT_FOUND - no exchange")
	}
	f.bindings[name] = exchange
	return nil
}

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan amqp.Delivery, 16)
	f.consumers[consumer] = ch
	return ch, nil
}

func (f *fakeChannel) Cancel(consumer string, noWait bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.consumers[consumer]; ok {
		close(ch)
		delete(f.consumers, consumer)
	}
	return nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, msg)
	for _, ch := range f.consumers {
		ch <- amqp.Delivery{Exchange: exchange, Body: msg.Body, ContentType: msg.ContentType}
	}
	return nil
}

func TestNewDeclaresFanout(t *testing.T) {
	fc := newFakeChannel()
	_, err := New(fc, "")
	require.NoError(t, err)
	require.Equal(t, ExchangeType, fc.exchanges[DefaultExchange])

	fc.declErr = errors.New("ACCESS_REFUSED")
	_, err = New(fc, "x")
	require.ErrorIs(t, err, fc.declErr)

	_, err = New(nil, "")
	require.Error(t, err)
}

func TestPublishSubscribe(t *testing.T) {
	fc := newFakeChannel()
	tr, err := New(fc, "app.invalidate")
	require.NoError(t, err)

	s, err := tr.Subscribe(context.Background())
	require.NoError(t, err)
	require.Equal(t, "app.invalidate", fc.bindings["amq.gen-1"])

	require.NoError(t, tr.Publish(context.Background(), []byte("frame")))
	select {
	case got := <-s.Messages():
		require.Equal(t, []byte("frame"), got)
	case <-time.After(time.Second):
		t.Fatal("no delivery")
	}
	require.Equal(t, ContentType, fc.published[0].ContentType)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, open := <-s.Messages()
	require.False(t, open, "messages close after cancel")
}

func TestMirrorsOverExchange(t *testing.T) {
	fc := newFakeChannel()
	tr, err := New(fc, "")
	require.NoError(t, err)
	ctx := context.Background()

	newPeer := func(origin string) (*swrcache.Cache, *bus.Mirror) {
		c, err := swrcache.New(swrcache.Options{})
		require.NoError(t, err)
		m, err := bus.New(c, tr, tr, bus.Options{Origin: origin, Codec: bus.CBOR})
		require.NoError(t, err)
		require.NoError(t, m.Start(ctx))
		t.Cleanup(func() {
			_ = m.Close()
			_ = c.Close(ctx)
		})
		return c, m
	}
	ca, ma := newPeer("a")
	cb, _ := newPeer("b")

	require.NoError(t, swrcache.Set(ca, "projects:list", 1))
	require.NoError(t, swrcache.Set(cb, "projects:list", 1))

	_, err = ma.InvalidateMatch(ctx, "projects:*")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return cb.Len() == 0 }, time.Second, time.Millisecond)
}

func TestCloseStopsBlockedPump(t *testing.T) {
	fc := newFakeChannel()
	s := &subscription{ch: fc, tag: "t", out: make(chan []byte, 4), done: make(chan struct{})}
	in := make(chan amqp.Delivery, 10)
	for i := 0; i < cap(in); i++ {
		in <- amqp.Delivery{Body: []byte{byte(i)}}
	}

	exited := make(chan struct{})
	go func() {
		s.pump(in)
		close(exited)
	}()
	require.Eventually(t, func() bool { return len(s.out) == cap(s.out) }, time.Second, time.Millisecond)

	// nobody reads Messages and in stays open
	require.NoError(t, s.Close())
	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("pump still blocked after Close")
	}
}
