package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/swrcache"
	"github.com/unkn0wn-root/swrcache/bus"
	busamqp "github.com/unkn0wn-root/swrcache/bus/amqp"
	busredis "github.com/unkn0wn-root/swrcache/bus/redis"
)

// Transport constructors; tests swap them for mocks.
var (
	newRedisClient = func(o *redis.Options) redis.UniversalClient { return redis.NewClient(o) }

	dialAMQP = func(ctx context.Context, url string, opts busamqp.DialOptions) (busamqp.Channel, io.Closer, error) {
		conn, ch, err := busamqp.Dial(ctx, url, opts)
		if err != nil {
			return nil, nil, err
		}
		return ch, conn, nil
	}
)

// NewMirror connects the configured transport and returns an unstarted
// mirror for c, plus a func that closes the mirror and the connection.
// It returns a nil mirror when no transport is configured.
func (f *File) NewMirror(ctx context.Context, c *swrcache.Cache, l swrcache.Logger) (*bus.Mirror, func() error, error) {
	ec, err := f.BusCodec()
	if err != nil {
		return nil, nil, err
	}

	var pubsub interface {
		bus.Publisher
		bus.Subscriber
	}
	var conn io.Closer
	switch t := strings.ToLower(f.Bus.Transport); t {
	case "":
		return nil, func() error { return nil }, nil
	case "redis":
		o, err := redisOptions(f.Bus.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("bus: %w", err)
		}
		rdb := newRedisClient(o)
		pubsub, conn = busredis.New(rdb, f.Bus.Channel), rdb
	case "amqp":
		ch, cl, err := dialAMQP(ctx, f.Bus.URL, busamqp.DialOptions{Logger: l})
		if err != nil {
			return nil, nil, fmt.Errorf("bus: %w", err)
		}
		tr, err := busamqp.New(ch, f.Bus.Channel)
		if err != nil {
			_ = cl.Close()
			return nil, nil, fmt.Errorf("bus: %w", err)
		}
		pubsub, conn = tr, cl
	default:
		return nil, nil, fmt.Errorf("bus: unknown transport %q", t)
	}

	m, err := bus.New(c, pubsub, pubsub, bus.Options{
		Codec:           ec,
		MaxMessageBytes: f.Bus.MaxMessageBytes,
		Logger:          l,
	})
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	closeFn := func() error {
		return errors.Join(m.Close(), conn.Close())
	}
	return m, closeFn, nil
}

// redisOptions accepts a redis:// URL or a bare host:port.
func redisOptions(url string) (*redis.Options, error) {
	if strings.Contains(url, "://") {
		return redis.ParseURL(url)
	}
	return &redis.Options{Addr: url}, nil
}
