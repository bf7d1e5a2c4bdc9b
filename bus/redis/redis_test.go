package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/swrcache"
	"github.com/unkn0wn-root/swrcache/bus"
	"github.com/unkn0wn-root/swrcache/internal/wire"
)

func TestPublish(t *testing.T) {
	db, mock := redismock.NewClientMock()
	tr := New(db, "")
	require.Equal(t, DefaultChannel, tr.Channel())

	mock.ExpectPublish(DefaultChannel, []byte("frame")).SetVal(2)
	require.NoError(t, tr.Publish(context.Background(), []byte("frame")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	tr := New(db, "app:invalidate")

	down := errors.New("connection refused")
	mock.ExpectPublish("app:invalidate", []byte("frame")).SetErr(down)
	require.ErrorIs(t, tr.Publish(context.Background(), []byte("frame")), down)
	require.NoError(t, mock.ExpectationsWereMet())
}

// A mirror publishing through redis sends one framed message per operation.
func TestMirrorPublishesThroughRedis(t *testing.T) {
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	frame := func(ev bus.Event) []byte {
		ev.Origin, ev.At = "node-a", at
		b, err := bus.JSON.Encode(ev)
		require.NoError(t, err)
		return wire.EncodeSingle(bus.JSON.ID(), b)
	}

	db, mock := redismock.NewClientMock()
	mock.ExpectPublish("app:invalidate", frame(bus.Event{Op: bus.OpKey, Key: "analyses:list"})).SetVal(1)
	mock.ExpectPublish("app:invalidate", frame(bus.Event{Op: bus.OpAll})).SetVal(1)

	c, err := swrcache.New(swrcache.Options{})
	require.NoError(t, err)
	defer c.Close(context.Background())

	m, err := bus.New(c, New(db, "app:invalidate"), nil, bus.Options{
		Origin: "node-a",
		Now:    func() time.Time { return at },
	})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = m.Invalidate(ctx, "analyses:list")
	require.NoError(t, err)
	_, err = m.InvalidateAll(ctx)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseStopsBlockedPump(t *testing.T) {
	db, _ := redismock.NewClientMock()
	ps := db.Subscribe(context.Background()) // no channels: no connection yet
	s := &subscription{ps: ps, out: make(chan []byte, 4), done: make(chan struct{})}
	in := make(chan *redis.Message, 10)
	for i := 0; i < cap(in); i++ {
		in <- &redis.Message{Channel: DefaultChannel, Payload: "frame"}
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
	_, open := <-s.Messages()
	require.True(t, open, "buffered frames stay readable")
}
