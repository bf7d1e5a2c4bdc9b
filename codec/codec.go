// Package codec converts values to bytes and back. The bus uses it to put
// invalidation events on the wire.
package codec

// Codec encodes/decodes values V to []byte.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
