package wire

import (
	"encoding/binary"
	"math"
	"reflect"
	"sync"

	"github.com/pkg/errors"
)

const (
	// initialSize is the capacity of a fresh encode buffer.
	initialSize = 1024
	// growStep is the increment the encode buffer grows by.
	growStep = 1024
	// maxPooledSize keeps oversized buffers out of the pool.
	maxPooledSize = 64 * 1024
)

// Encoder appends big-endian fields to a growable buffer. The buffer starts at 1024
// bytes and grows in 1024-byte steps whenever the next write would not fit.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty Encoder with the initial capacity.
func NewEncoder() *Encoder {
	return &Encoder{buf: make([]byte, 0, initialSize)}
}

var encoderPool = sync.Pool{
	New: func() any { return NewEncoder() },
}

// AcquireEncoder takes an empty Encoder from the pool.
func AcquireEncoder() *Encoder {
	return encoderPool.Get().(*Encoder)
}

// ReleaseEncoder resets e and returns it to the pool. Bytes previously returned by e
// must not be used afterwards.
func ReleaseEncoder(e *Encoder) {
	if e == nil || cap(e.buf) > maxPooledSize {
		return
	}
	e.Reset()
	encoderPool.Put(e)
}

// Bytes returns the encoded bytes. The slice aliases the encoder's buffer.
func (e *Encoder) Bytes() []byte { return e.buf }

// Len returns the number of encoded bytes.
func (e *Encoder) Len() int { return len(e.buf) }

// Cap returns the current buffer capacity.
func (e *Encoder) Cap() int { return cap(e.buf) }

// Reset discards the encoded bytes and keeps the allocation.
func (e *Encoder) Reset() { e.buf = e.buf[:0] }

// grow extends the buffer by n bytes and returns the new tail.
func (e *Encoder) grow(n int) []byte {
	l := len(e.buf)
	if l+n > cap(e.buf) {
		steps := (l + n - cap(e.buf) + growStep - 1) / growStep
		nb := make([]byte, l, cap(e.buf)+steps*growStep)
		copy(nb, e.buf)
		e.buf = nb
	}
	e.buf = e.buf[:l+n]
	return e.buf[l:]
}

func (e *Encoder) PutUint8(v uint8)   { e.grow(1)[0] = v }
func (e *Encoder) PutUint16(v uint16) { binary.BigEndian.PutUint16(e.grow(2), v) }
func (e *Encoder) PutUint32(v uint32) { binary.BigEndian.PutUint32(e.grow(4), v) }
func (e *Encoder) PutUint64(v uint64) { binary.BigEndian.PutUint64(e.grow(8), v) }

func (e *Encoder) PutInt8(v int8)   { e.PutUint8(uint8(v)) }
func (e *Encoder) PutInt16(v int16) { e.PutUint16(uint16(v)) }
func (e *Encoder) PutInt32(v int32) { e.PutUint32(uint32(v)) }
func (e *Encoder) PutInt64(v int64) { e.PutUint64(uint64(v)) }

// PutFloat32 writes the IEEE-754 bits of v as a big-endian uint32.
func (e *Encoder) PutFloat32(v float32) { e.PutUint32(math.Float32bits(v)) }

// PutFloat64 writes the IEEE-754 bits of v as a big-endian uint64.
func (e *Encoder) PutFloat64(v float64) { e.PutUint64(math.Float64bits(v)) }

func (e *Encoder) PutBool(v bool) {
	if v {
		e.PutUint8(1)
		return
	}
	e.PutUint8(0)
}

// PutBytes copies p verbatim.
func (e *Encoder) PutBytes(p []byte) { copy(e.grow(len(p)), p) }

// PutString copies s verbatim, without a terminator or length.
func (e *Encoder) PutString(s string) { copy(e.grow(len(s)), s) }

// PutUint writes v as a big-endian unsigned integer of the given width.
func (e *Encoder) PutUint(v uint64, width int) error {
	switch width {
	case 1:
		if v > math.MaxUint8 {
			return errors.Wrapf(ErrLength, "%d does not fit in 1 byte", v)
		}
		e.PutUint8(uint8(v))
	case 2:
		if v > math.MaxUint16 {
			return errors.Wrapf(ErrLength, "%d does not fit in 2 bytes", v)
		}
		e.PutUint16(uint16(v))
	case 4:
		if v > math.MaxUint32 {
			return errors.Wrapf(ErrLength, "%d does not fit in 4 bytes", v)
		}
		e.PutUint32(uint32(v))
	case 8:
		e.PutUint64(v)
	default:
		return errors.Wrapf(ErrWidth, "width %d", width)
	}
	return nil
}

// zero appends n zero bytes.
func (e *Encoder) zero(n int) {
	clear(e.grow(n))
}

// Encode appends v. On error nothing is appended.
func (e *Encoder) Encode(v any) error {
	start := len(e.buf)
	var err error
	if m, ok := v.(Marshaler); ok {
		err = m.MarshalWire(e)
	} else {
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				return errors.Wrap(ErrUnsupportedType, "nil pointer")
			}
			rv = rv.Elem()
		}
		err = encodeValue(e, rv, 0)
	}
	if err != nil {
		e.buf = e.buf[:start]
	}
	return err
}

// EncodeAll appends every value in order, like a tuple with no separators.
func (e *Encoder) EncodeAll(vs ...any) error {
	start := len(e.buf)
	for i, v := range vs {
		if err := e.Encode(v); err != nil {
			e.buf = e.buf[:start]
			return errors.Wrapf(err, "field %d", i)
		}
	}
	return nil
}
