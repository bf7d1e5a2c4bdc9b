// Package amqp carries bus frames over a RabbitMQ fanout exchange. Each
// subscriber binds its own exclusive auto-delete queue, so every process
// sees every invalidation.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/unkn0wn-root/swrcache"
	"github.com/unkn0wn-root/swrcache/bus"
)

const (
	DefaultExchange = "swrcache.invalidate"
	ExchangeType    = "fanout"
	ContentType     = "application/x-swrcache-frame"
)

// Channel is the subset of *amqp.Channel the transport uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

var _ Channel = (*amqp.Channel)(nil)

type Transport struct {
	ch       Channel
	exchange string
}

var (
	_ bus.Publisher  = (*Transport)(nil)
	_ bus.Subscriber = (*Transport)(nil)
)

// New declares the durable fanout exchange ("" => DefaultExchange).
func New(ch Channel, exchange string) (*Transport, error) {
	if ch == nil {
		return nil, errors.New("amqp: nil channel")
	}
	if exchange == "" {
		exchange = DefaultExchange
	}
	err := ch.ExchangeDeclare(
		exchange,     // name
		ExchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("could not declare exchange: %w", err)
	}
	return &Transport{ch: ch, exchange: exchange}, nil
}

func (t *Transport) Publish(ctx context.Context, msg []byte) error {
	return t.ch.PublishWithContext(ctx,
		t.exchange, // exchange
		"",         // routing key, ignored by fanout
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType: ContentType,
			Timestamp:   time.Now(),
			Body:        msg,
		},
	)
}

func (t *Transport) Subscribe(ctx context.Context) (bus.Subscription, error) {
	q, err := t.ch.QueueDeclare(
		"",    // random name
		false, // non-durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("could not declare queue: %w", err)
	}
	if err := t.ch.QueueBind(q.Name, "", t.exchange, false, nil); err != nil {
		return nil, fmt.Errorf("could not bind queue: %w", err)
	}

	tag := "swrcache-" + uuid.NewString()
	deliveries, err := t.ch.Consume(
		q.Name, // queue
		tag,    // consumer tag
		true,   // auto-ack
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return nil, fmt.Errorf("could not start consume: %w", err)
	}

	s := &subscription{ch: t.ch, tag: tag, out: make(chan []byte, 64), done: make(chan struct{})}
	go s.pump(deliveries)
	return s, nil
}

type subscription struct {
	ch   Channel
	tag  string
	out  chan []byte
	done chan struct{}
	once sync.Once
	err  error
}

func (s *subscription) Messages() <-chan []byte { return s.out }

func (s *subscription) pump(in <-chan amqp.Delivery) {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case d, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.out <- d.Body:
			case <-s.done:
				return
			}
		}
	}
}

// Close cancels the consumer and stops the pump; the broker then deletes
// the queue. Undelivered messages are dropped.
func (s *subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.err = s.ch.Cancel(s.tag, false)
	})
	return s.err
}

type DialOptions struct {
	Attempts int           // 0 => 5
	Backoff  time.Duration // 0 => 2s
	Logger   swrcache.Logger
}

// Dial connects with a simple retry (brokers often start after their
// clients) and opens one channel.
func Dial(ctx context.Context, url string, opts DialOptions) (*amqp.Connection, *amqp.Channel, error) {
	if opts.Attempts <= 0 {
		opts.Attempts = 5
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = swrcache.NopLogger{}
	}

	var conn *amqp.Connection
	var err error
	for i := 0; i < opts.Attempts; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		opts.Logger.Warn("failed to connect to RabbitMQ", swrcache.Fields{"attempt": i + 1, "err": err})
		if i == opts.Attempts-1 {
			break
		}
		select {
		case <-time.After(opts.Backoff):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("could not open channel: %w", err)
	}
	return conn, ch, nil
}
