package netlib

import (
	"github.com/pkg/errors"

	"github.com/Zereker/netlib/wire"
)

// Message is the interface for length-prefixed messages.
type Message interface {
	// Length returns the length of the message body.
	Length() int
	// Body returns the raw message data.
	Body() []byte
}

// Payload is a Message holding its body verbatim.
type Payload []byte

func (p Payload) Length() int  { return len(p) }
func (p Payload) Body() []byte { return p }

// Frame is one complete length-prefixed packet as received, header included.
type Frame struct {
	data  []byte
	width int
}

// Length returns the payload length announced by the header.
func (f Frame) Length() int { return len(f.data) - f.width }

// Body returns the payload without the header.
func (f Frame) Body() []byte { return f.data[f.width:] }

// Bytes returns the whole frame, header included.
func (f Frame) Bytes() []byte { return f.data }

// Framing selects how a reactor hands received bytes to consumers. The zero value is
// StreamFraming.
type Framing struct {
	width int
}

// StreamFraming delivers a plain byte stream gated by watermarks.
var StreamFraming = Framing{}

// LengthPrefixed delivers whole frames, each starting with a big-endian unsigned
// header of width bytes (1, 2, 4 or 8) that gives the payload length.
func LengthPrefixed(width int) Framing {
	return Framing{width: width}
}

// Framed reports whether f is a length-prefixed framing.
func (f Framing) Framed() bool { return f.width != 0 }

// HeaderWidth returns the header width in bytes, 0 for StreamFraming.
func (f Framing) HeaderWidth() int { return f.width }

func (f Framing) validate() error {
	switch f.width {
	case 0, 1, 2, 4, 8:
		return nil
	default:
		return errors.Wrapf(ErrInvalidFraming, "width %d", f.width)
	}
}

// encode prefixes m's body with its length.
func (f Framing) encode(m Message, limit int) ([]byte, error) {
	n, body := m.Length(), m.Body()
	if n < 0 || n > len(body) {
		return nil, errors.Wrapf(ErrFrameTooLarge, "length %d, body of %d bytes", n, len(body))
	}
	if n > limit {
		return nil, errors.Wrapf(ErrFrameTooLarge, "%d bytes, cap %d", n, limit)
	}
	e := wire.NewEncoder()
	if err := e.PutUint(uint64(n), f.width); err != nil {
		return nil, errors.Wrap(ErrFrameTooLarge, err.Error())
	}
	e.PutBytes(body[:n])
	return e.Bytes(), nil
}

// assemble moves every complete frame at the head of buf out of it. Only the reactor
// takes bytes from a framed buffer, so a peeked header stays valid until the take.
func (f Framing) assemble(buf *Buffer, limit int) ([]Frame, error) {
	var frames []Frame
	for {
		head := buf.Peek(f.width)
		if len(head) < f.width {
			return frames, nil
		}
		n, err := wire.NewDecoder(head).Uint(f.width)
		if err != nil {
			return frames, err
		}
		if n > uint64(limit) {
			return frames, errors.Wrapf(ErrFrameTooLarge, "header announces %d bytes, cap %d", n, limit)
		}
		total := f.width + int(n)
		if buf.Len() < total {
			return frames, nil
		}
		p, _ := buf.Take(total)
		frames = append(frames, Frame{data: p, width: f.width})
	}
}
