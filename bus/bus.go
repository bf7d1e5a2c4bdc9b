// Package bus mirrors invalidations between processes that cache the same
// data source. The cache itself stays process-local; only "this key changed"
// travels, never values.
package bus

import (
	"context"
	"time"
)

type Op string

const (
	OpKey     Op = "key"     // Key
	OpPattern Op = "pattern" // Pattern is a regexp
	OpMatch   Op = "match"   // Pattern is a glob
	OpAll     Op = "all"
)

// Event is one invalidation. Origin identifies the publishing mirror so it
// can ignore its own messages.
type Event struct {
	Op      Op        `json:"op" msgpack:"op" cbor:"op"`
	Key     string    `json:"key,omitempty" msgpack:"key,omitempty" cbor:"key,omitempty"`
	Pattern string    `json:"pattern,omitempty" msgpack:"pattern,omitempty" cbor:"pattern,omitempty"`
	Origin  string    `json:"origin" msgpack:"origin" cbor:"origin"`
	At      time.Time `json:"at" msgpack:"at" cbor:"at"`
}

// Publisher sends one framed message to every subscriber of the topic.
type Publisher interface {
	Publish(ctx context.Context, msg []byte) error
}

// Subscriber opens a stream of framed messages. The subscription is
// established when Subscribe returns.
type Subscriber interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription delivers messages until closed. Messages may be closed by the
// transport when the underlying connection goes away.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}
