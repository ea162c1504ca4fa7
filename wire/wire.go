// Package wire encodes and decodes fixed-schema records in a big-endian binary format.
//
// A record is an ordered list of statically typed fields: fixed-width integers, IEEE
// floats, bools, nested structs, fixed-shape arrays and fixed-length byte strings. Fields
// are written back to back with no framing and no length prefixes, so the decoding side
// must already know the shape it is reading. The shape comes from the Go type itself:
// array lengths, the current length of a preallocated slice, or a `wire:"N"` struct tag
// on string and slice fields.
//
// Types can describe their own layout by implementing Marshaler, Unmarshaler and Sizer;
// everything else goes through reflection over exported struct fields in declaration
// order.
package wire

import (
	"reflect"

	"github.com/pkg/errors"
)

// Scalar is the set of fixed-width arithmetic types the codec writes directly.
type Scalar interface {
	~bool | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Marshaler is implemented by records that encode their own fields.
type Marshaler interface {
	MarshalWire(e *Encoder) error
}

// Unmarshaler is implemented by records that decode their own fields.
type Unmarshaler interface {
	UnmarshalWire(d *Decoder) error
}

// Sizer reports the encoded width of a record that cannot be sized by reflection.
type Sizer interface {
	WireSize() int
}

// Put appends a single scalar to e.
func Put[T Scalar](e *Encoder, v T) {
	// Scalars never fail to encode.
	_ = encodeValue(e, reflect.ValueOf(v), 0)
}

// Get reads a single scalar from d. On ErrTruncated the zero value is returned and the
// cursor does not move.
func Get[T Scalar](d *Decoder) (T, error) {
	var v T
	if err := decodeValue(d, reflect.ValueOf(&v).Elem(), 0); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// SizeOf returns the encoded width of the scalar type T.
func SizeOf[T Scalar]() int {
	var v T
	return int(reflect.TypeOf(v).Size())
}

// Size returns the number of bytes v occupies on the wire.
func Size(v any) (int, error) {
	if s, ok := v.(Sizer); ok {
		return s.WireSize(), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return 0, errors.Wrap(ErrUnsupportedType, "nil pointer")
		}
		rv = rv.Elem()
	}
	return sizeOfValue(rv, 0)
}

// Marshal encodes v into a freshly allocated buffer.
func Marshal(v any) ([]byte, error) {
	e := NewEncoder()
	if err := e.Encode(v); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// Unmarshal decodes data into v, which must be a non-nil pointer. Trailing bytes are
// ignored.
func Unmarshal(data []byte, v any) error {
	return NewDecoder(data).Decode(v)
}
