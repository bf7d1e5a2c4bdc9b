// Package wire frames invalidation events for the bus.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	version byte = 1

	KindSingle byte = 1
	KindBatch  byte = 2
)

var (
	ErrCorrupt = errors.New("swrcache: corrupt bus frame")
	magic4     = [...]byte{'S', 'W', 'R', 'B'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Kind reports whether b is a single or a batch frame.
func Kind(b []byte) (byte, error) {
	if len(b) < 6 || !hasMagic(b) || b[4] != version {
		return 0, ErrCorrupt
	}
	switch b[5] {
	case KindSingle, KindBatch:
		return b[5], nil
	default:
		return 0, ErrCorrupt
	}
}

// Single: magic(4) | ver(1) | kind(1=single) | codec(1) | plen(u32 be) | payload(plen)
func EncodeSingle(codec byte, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 1 + 4 + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(KindSingle)
	buf.WriteByte(codec)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// DecodeSingle returns the codec id and a payload slice aliasing b.
func DecodeSingle(b []byte) (codec byte, payload []byte, err error) {
	const hdr = 4 + 1 + 1 + 1 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != KindSingle {
		return 0, nil, ErrCorrupt
	}
	codec = b[6]
	off := 7

	plen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if plen < 0 || plen != len(b)-off { // exact: no trailing bytes
		return 0, nil, ErrCorrupt
	}
	return codec, b[off : off+plen], nil
}

// Batch:
//
//	magic(4) | ver(1) | kind(2=batch) | codec(1) | n(u32 be)
//	plen(u32 be) | payload(plen) * n
//
// All payloads in a batch share one codec.
func EncodeBatch(codec byte, payloads [][]byte) ([]byte, error) {
	total := 4 + 1 + 1 + 1 + 4
	for i, p := range payloads {
		if len(p) == 0 {
			return nil, fmt.Errorf("swrcache: empty payload at %d in batch", i)
		}
		total += 4 + len(p)
	}

	var buf bytes.Buffer
	buf.Grow(total)

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(KindBatch)
	buf.WriteByte(codec)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(payloads)))
	buf.Write(u4[:])

	for _, p := range payloads {
		binary.BigEndian.PutUint32(u4[:], uint32(len(p)))
		buf.Write(u4[:])
		buf.Write(p)
	}
	return buf.Bytes(), nil
}

// DecodeBatch returns the codec id and payload slices aliasing b.
func DecodeBatch(b []byte) (codec byte, payloads [][]byte, err error) {
	const hdr = 4 + 1 + 1 + 1 + 4
	if len(b) < hdr || !hasMagic(b) || b[4] != version || b[5] != KindBatch {
		return 0, nil, ErrCorrupt
	}
	codec = b[6]
	off := 7

	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	// every item takes at least 5 bytes; reject counts the buffer cannot hold
	if n < 0 || n > (len(b)-off)/5 {
		return 0, nil, ErrCorrupt
	}

	payloads = make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		if off+4 > len(b) {
			return 0, nil, ErrCorrupt
		}
		plen := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if plen <= 0 || plen > len(b)-off {
			return 0, nil, ErrCorrupt
		}
		payloads = append(payloads, b[off:off+plen])
		off += plen
	}
	if off != len(b) {
		return 0, nil, ErrCorrupt
	}
	return codec, payloads, nil
}
