package wire

import (
	"encoding/binary"
	"math"
	"reflect"

	"github.com/pkg/errors"
)

// Decoder is a read cursor over an encoded record. Every read either consumes exactly
// the field's width or fails with ErrTruncated and leaves the cursor untouched.
type Decoder struct {
	data     []byte
	consumed int
}

// NewDecoder returns a Decoder positioned at the start of data.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Consumed returns the number of bytes read so far.
func (d *Decoder) Consumed() int { return d.consumed }

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.data) - d.consumed }

func (d *Decoder) next(n int) ([]byte, error) {
	if d.Remaining() < n {
		return nil, errors.Wrapf(ErrTruncated, "need %d bytes, have %d", n, d.Remaining())
	}
	p := d.data[d.consumed : d.consumed+n]
	d.consumed += n
	return p, nil
}

func (d *Decoder) Uint8() (uint8, error) {
	p, err := d.next(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

func (d *Decoder) Uint16() (uint16, error) {
	p, err := d.next(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(p), nil
}

func (d *Decoder) Uint32() (uint32, error) {
	p, err := d.next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(p), nil
}

func (d *Decoder) Uint64() (uint64, error) {
	p, err := d.next(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(p), nil
}

func (d *Decoder) Int8() (int8, error) {
	v, err := d.Uint8()
	return int8(v), err
}

func (d *Decoder) Int16() (int16, error) {
	v, err := d.Uint16()
	return int16(v), err
}

func (d *Decoder) Int32() (int32, error) {
	v, err := d.Uint32()
	return int32(v), err
}

func (d *Decoder) Int64() (int64, error) {
	v, err := d.Uint64()
	return int64(v), err
}

func (d *Decoder) Float32() (float32, error) {
	v, err := d.Uint32()
	return math.Float32frombits(v), err
}

func (d *Decoder) Float64() (float64, error) {
	v, err := d.Uint64()
	return math.Float64frombits(v), err
}

// Bool reads one byte; any non-zero value is true.
func (d *Decoder) Bool() (bool, error) {
	v, err := d.Uint8()
	return v != 0, err
}

// Bytes returns a copy of the next n bytes.
func (d *Decoder) Bytes(n int) ([]byte, error) {
	p, err := d.next(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, p)
	return out, nil
}

// String returns the next n bytes as a string.
func (d *Decoder) String(n int) (string, error) {
	p, err := d.next(n)
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// Uint reads a big-endian unsigned integer of the given width.
func (d *Decoder) Uint(width int) (uint64, error) {
	switch width {
	case 1:
		v, err := d.Uint8()
		return uint64(v), err
	case 2:
		v, err := d.Uint16()
		return uint64(v), err
	case 4:
		v, err := d.Uint32()
		return uint64(v), err
	case 8:
		return d.Uint64()
	default:
		return 0, errors.Wrapf(ErrWidth, "width %d", width)
	}
}

// Decode reads one record into v, which must be a non-nil pointer. Reflection-decoded
// values are assigned only when the whole record decoded; on error the cursor is
// restored.
func (d *Decoder) Decode(v any) error {
	start := d.consumed
	var err error
	if u, ok := v.(Unmarshaler); ok {
		err = u.UnmarshalWire(d)
	} else {
		err = d.decodeReflect(v)
	}
	if err != nil {
		d.consumed = start
	}
	return err
}

func (d *Decoder) decodeReflect(v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.Wrapf(ErrUnsupportedType, "decode target %T is not a non-nil pointer", v)
	}
	tmp := reflect.New(rv.Elem().Type()).Elem()
	tmp.Set(rv.Elem())
	if err := decodeValue(d, tmp, 0); err != nil {
		return err
	}
	rv.Elem().Set(tmp)
	return nil
}

// DecodeAll reads into every pointer in order. On error the cursor is restored.
func (d *Decoder) DecodeAll(ptrs ...any) error {
	start := d.consumed
	for i, p := range ptrs {
		if err := d.Decode(p); err != nil {
			d.consumed = start
			return errors.Wrapf(err, "field %d", i)
		}
	}
	return nil
}
