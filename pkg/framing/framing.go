// Package framing splits a TCP byte stream into packets and back.
//
// Two modes exist. Raw mode treats every read as one packet and writes
// packets verbatim; it suits line or request/response protocols where the
// peer defines its own message boundaries. Length mode prefixes every packet
// with a 4 byte big-endian length and reassembles packets across reads.
package framing

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/smallnest/ringbuffer"

	"github.com/irctrakz/sockmgr/pkg/core"
)

// HeaderSize is the length prefix size in length mode.
const HeaderSize = 4

// ErrFrameTooLarge is returned when a length header exceeds the limit.
var ErrFrameTooLarge = errors.New("framing: frame exceeds maximum packet size")

// Codec converts between stream bytes and packets. A Codec is used by a
// single worker goroutine and is not safe for concurrent use.
type Codec interface {
	// Decode consumes stream bytes and returns the complete packets they
	// finish, in stream order.
	Decode(b []byte) ([][]byte, error)

	// Encode returns the wire form of one packet.
	Encode(p []byte) []byte

	// Pending returns the number of buffered bytes not yet part of a packet.
	Pending() int
}

// New returns the codec for mode. maxPacket bounds decoded packets in length
// mode.
func New(mode string, maxPacket int) (Codec, error) {
	switch mode {
	case "", core.FramingRaw:
		return rawCodec{}, nil
	case core.FramingLength:
		if maxPacket <= 0 {
			return nil, fmt.Errorf("framing: invalid maximum packet size %d", maxPacket)
		}
		return newLengthCodec(maxPacket), nil
	}
	return nil, fmt.Errorf("framing: unknown mode %q", mode)
}

type rawCodec struct{}

func (rawCodec) Decode(b []byte) ([][]byte, error) {
	if len(b) == 0 {
		return nil, nil
	}
	return [][]byte{append([]byte(nil), b...)}, nil
}

func (rawCodec) Encode(p []byte) []byte { return p }
func (rawCodec) Pending() int           { return 0 }

// lengthCodec reassembles length-prefixed frames through a ring buffer sized
// to hold one maximal frame.
type lengthCodec struct {
	rb        *ringbuffer.RingBuffer
	maxPacket int
	// need is the payload length of the frame whose header was consumed,
	// or -1 while waiting for a header.
	need int
	hdr  [HeaderSize]byte
}

func newLengthCodec(maxPacket int) *lengthCodec {
	return &lengthCodec{
		rb:        ringbuffer.New(maxPacket + HeaderSize),
		maxPacket: maxPacket,
		need:      -1,
	}
}

func (c *lengthCodec) Decode(b []byte) ([][]byte, error) {
	var out [][]byte
	for {
		if len(b) > 0 && c.rb.Free() > 0 {
			n, err := c.rb.Write(b)
			if err != nil && !errors.Is(err, ringbuffer.ErrTooMuchDataToWrite) && !errors.Is(err, ringbuffer.ErrIsFull) {
				return out, fmt.Errorf("framing: buffer write: %w", err)
			}
			b = b[n:]
		}

		progressed := false
		for {
			p, ok, err := c.next()
			if err != nil {
				return out, err
			}
			if !ok {
				break
			}
			out = append(out, p)
			progressed = true
		}

		if len(b) == 0 {
			return out, nil
		}
		if !progressed && c.rb.Free() == 0 {
			// Unreachable while need <= maxPacket; guards against a stuck loop.
			return out, ErrFrameTooLarge
		}
	}
}

// next extracts one frame if enough bytes are buffered.
func (c *lengthCodec) next() ([]byte, bool, error) {
	if c.need < 0 {
		if c.rb.Length() < HeaderSize {
			return nil, false, nil
		}
		if _, err := c.rb.Read(c.hdr[:]); err != nil {
			return nil, false, fmt.Errorf("framing: header read: %w", err)
		}
		n := binary.BigEndian.Uint32(c.hdr[:])
		if uint64(n) > uint64(c.maxPacket) {
			c.reset()
			return nil, false, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, c.maxPacket)
		}
		c.need = int(n)
	}
	if c.rb.Length() < c.need {
		return nil, false, nil
	}
	p := make([]byte, c.need)
	if c.need > 0 {
		if _, err := c.rb.Read(p); err != nil {
			return nil, false, fmt.Errorf("framing: payload read: %w", err)
		}
	}
	c.need = -1
	return p, true, nil
}

func (c *lengthCodec) Encode(p []byte) []byte {
	out := make([]byte, HeaderSize+len(p))
	binary.BigEndian.PutUint32(out, uint32(len(p)))
	copy(out[HeaderSize:], p)
	return out
}

func (c *lengthCodec) Pending() int {
	n := c.rb.Length()
	if c.need >= 0 {
		n += HeaderSize
	}
	return n
}

func (c *lengthCodec) reset() {
	c.rb.Reset()
	c.need = -1
}
