package bus

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/unkn0wn-root/swrcache/codec"
)

// EventCodec is a codec.Codec[Event] with the id written into each frame.
// Receivers pick the decoder from the frame, so peers may use different codecs.
type EventCodec struct {
	id   byte
	name string
	c    codec.Codec[Event]
}

func (e EventCodec) ID() byte       { return e.id }
func (e EventCodec) String() string { return e.name }

func (e EventCodec) Encode(ev Event) ([]byte, error) { return e.c.Encode(ev) }
func (e EventCodec) Decode(b []byte) (Event, error)  { return e.c.Decode(b) }

var (
	JSON     = EventCodec{id: 1, name: "json", c: codec.JSON[Event]{}}
	Msgpack  = EventCodec{id: 2, name: "msgpack", c: codec.Msgpack[Event]{}}
	CBOR     = EventCodec{id: 3, name: "cbor", c: codec.MustCBOR[Event](true)}
	Protobuf = EventCodec{id: 4, name: "protobuf", c: structCodec{
		pb: codec.NewProtobuf(func() *structpb.Struct { return &structpb.Struct{} }),
	}}
)

var codecs = []EventCodec{JSON, Msgpack, CBOR, Protobuf}

// CodecByName resolves "json", "msgpack", "cbor" or "protobuf".
func CodecByName(name string) (EventCodec, error) {
	for _, c := range codecs {
		if c.name == name {
			return c, nil
		}
	}
	return EventCodec{}, fmt.Errorf("swrcache/bus: unknown codec %q", name)
}

func codecByID(id byte) (EventCodec, bool) {
	for _, c := range codecs {
		if c.id == id {
			return c, true
		}
	}
	return EventCodec{}, false
}

// structCodec carries an Event as a google.protobuf.Struct so no generated
// code is needed.
type structCodec struct {
	pb codec.Protobuf[*structpb.Struct]
}

func (s structCodec) Encode(ev Event) ([]byte, error) {
	st, err := structpb.NewStruct(map[string]any{
		"op":      string(ev.Op),
		"key":     ev.Key,
		"pattern": ev.Pattern,
		"origin":  ev.Origin,
		"at":      ev.At.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}
	return s.pb.Encode(st)
}

func (s structCodec) Decode(b []byte) (Event, error) {
	st, err := s.pb.Decode(b)
	if err != nil {
		return Event{}, err
	}
	f := st.GetFields()
	ev := Event{
		Op:      Op(f["op"].GetStringValue()),
		Key:     f["key"].GetStringValue(),
		Pattern: f["pattern"].GetStringValue(),
		Origin:  f["origin"].GetStringValue(),
	}
	if at := f["at"].GetStringValue(); at != "" {
		if ev.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return Event{}, fmt.Errorf("swrcache/bus: bad timestamp: %w", err)
		}
	}
	return ev, nil
}
