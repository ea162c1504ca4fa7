package wire

import (
	"math"
	"reflect"
	"strconv"

	"github.com/pkg/errors"
)

var (
	marshalerType   = reflect.TypeOf((*Marshaler)(nil)).Elem()
	unmarshalerType = reflect.TypeOf((*Unmarshaler)(nil)).Elem()
	sizerType       = reflect.TypeOf((*Sizer)(nil)).Elem()
	byteType        = reflect.TypeOf(byte(0))
)

// fieldLen parses the `wire` tag of a struct field. It reports skip for `wire:"-"` and
// the declared length otherwise (0 when absent).
func fieldLen(f reflect.StructField) (n int, skip bool, err error) {
	tag, ok := f.Tag.Lookup("wire")
	if !ok || tag == "" {
		return 0, false, nil
	}
	if tag == "-" {
		return 0, true, nil
	}
	n, err = strconv.Atoi(tag)
	if err != nil || n < 0 {
		return 0, false, errors.Errorf("wire: bad tag %q on field %s", tag, f.Name)
	}
	return n, false, nil
}

// visibleFields calls fn for every exported, non-skipped field of the struct value v.
func visibleFields(v reflect.Value, fn func(fv reflect.Value, n int) error) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		n, skip, err := fieldLen(f)
		if err != nil {
			return err
		}
		if skip {
			continue
		}
		if err := fn(v.Field(i), n); err != nil {
			return errors.Wrapf(err, "%s.%s", t.Name(), f.Name)
		}
	}
	return nil
}

func sizeOfValue(v reflect.Value, n int) (int, error) {
	t := v.Type()
	if t.Implements(sizerType) {
		return v.Interface().(Sizer).WireSize(), nil
	}
	if v.CanAddr() && reflect.PointerTo(t).Implements(sizerType) {
		return v.Addr().Interface().(Sizer).WireSize(), nil
	}

	switch t.Kind() {
	case reflect.Bool,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return int(t.Size()), nil
	case reflect.String:
		if n == 0 {
			return 0, ErrUnsized
		}
		return n, nil
	case reflect.Array:
		return sizeOfElems(v, v.Len())
	case reflect.Slice:
		if n == 0 {
			return sizeOfElems(v, v.Len())
		}
		return sizeOfElems(reflect.MakeSlice(t, n, n), n)
	case reflect.Struct:
		total := 0
		err := visibleFields(v, func(fv reflect.Value, fn int) error {
			s, err := sizeOfValue(fv, fn)
			total += s
			return err
		})
		return total, err
	default:
		return 0, errors.Wrapf(ErrUnsupportedType, "%s", t)
	}
}

func sizeOfElems(v reflect.Value, count int) (int, error) {
	if count == 0 {
		return 0, nil
	}
	switch v.Type().Elem().Kind() {
	case reflect.Slice, reflect.Struct, reflect.Array:
		total := 0
		for i := 0; i < count; i++ {
			s, err := sizeOfValue(v.Index(i), 0)
			if err != nil {
				return 0, err
			}
			total += s
		}
		return total, nil
	default:
		s, err := sizeOfValue(v.Index(0), 0)
		return s * count, err
	}
}

func encodeValue(e *Encoder, v reflect.Value, n int) error {
	t := v.Type()
	if t.Implements(marshalerType) {
		return v.Interface().(Marshaler).MarshalWire(e)
	}
	if v.CanAddr() && reflect.PointerTo(t).Implements(marshalerType) {
		return v.Addr().Interface().(Marshaler).MarshalWire(e)
	}

	switch t.Kind() {
	case reflect.Bool:
		e.PutBool(v.Bool())
	case reflect.Int8:
		e.PutInt8(int8(v.Int()))
	case reflect.Int16:
		e.PutInt16(int16(v.Int()))
	case reflect.Int32:
		e.PutInt32(int32(v.Int()))
	case reflect.Int64:
		e.PutInt64(v.Int())
	case reflect.Uint8:
		e.PutUint8(uint8(v.Uint()))
	case reflect.Uint16:
		e.PutUint16(uint16(v.Uint()))
	case reflect.Uint32:
		e.PutUint32(uint32(v.Uint()))
	case reflect.Uint64:
		e.PutUint64(v.Uint())
	case reflect.Float32:
		e.PutUint32(math.Float32bits(float32(v.Float())))
	case reflect.Float64:
		e.PutUint64(math.Float64bits(v.Float()))
	case reflect.String:
		s := v.String()
		if n > 0 && len(s) > n {
			return errors.Wrapf(ErrLength, "string of %d bytes, declared %d", len(s), n)
		}
		e.PutString(s)
		if n > len(s) {
			e.zero(n - len(s))
		}
	case reflect.Array:
		return encodeElems(e, v, v.Len())
	case reflect.Slice:
		count := v.Len()
		if n > 0 && count > n {
			return errors.Wrapf(ErrLength, "slice of %d elements, declared %d", count, n)
		}
		if err := encodeElems(e, v, count); err != nil {
			return err
		}
		if n > count {
			pad, err := sizeOfElems(reflect.MakeSlice(t, n-count, n-count), n-count)
			if err != nil {
				return err
			}
			e.zero(pad)
		}
	case reflect.Struct:
		return visibleFields(v, func(fv reflect.Value, fn int) error {
			return encodeValue(e, fv, fn)
		})
	default:
		return errors.Wrapf(ErrUnsupportedType, "%s", t)
	}
	return nil
}

func encodeElems(e *Encoder, v reflect.Value, count int) error {
	if v.Type().Elem().Kind() == reflect.Uint8 && v.Kind() == reflect.Slice {
		e.PutBytes(v.Bytes())
		return nil
	}
	for i := 0; i < count; i++ {
		if err := encodeValue(e, v.Index(i), 0); err != nil {
			return err
		}
	}
	return nil
}

// decodeValue fills the settable value v.
func decodeValue(d *Decoder, v reflect.Value, n int) error {
	t := v.Type()
	if v.CanAddr() && reflect.PointerTo(t).Implements(unmarshalerType) {
		return v.Addr().Interface().(Unmarshaler).UnmarshalWire(d)
	}

	switch t.Kind() {
	case reflect.Bool:
		b, err := d.Bool()
		if err != nil {
			return err
		}
		v.SetBool(b)
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		u, err := d.Uint(int(t.Size()))
		if err != nil {
			return err
		}
		v.SetInt(signExtend(u, int(t.Size())))
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := d.Uint(int(t.Size()))
		if err != nil {
			return err
		}
		v.SetUint(u)
	case reflect.Float32:
		f, err := d.Float32()
		if err != nil {
			return err
		}
		v.SetFloat(float64(f))
	case reflect.Float64:
		f, err := d.Float64()
		if err != nil {
			return err
		}
		v.SetFloat(f)
	case reflect.String:
		if n == 0 {
			return ErrUnsized
		}
		s, err := d.String(n)
		if err != nil {
			return err
		}
		v.SetString(s)
	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := decodeValue(d, v.Index(i), 0); err != nil {
				return err
			}
		}
	case reflect.Slice:
		count := n
		if count == 0 {
			count = v.Len()
		}
		fresh := reflect.MakeSlice(t, count, count)
		if t.Elem() == byteType {
			p, err := d.next(count)
			if err != nil {
				return err
			}
			reflect.Copy(fresh, reflect.ValueOf(p))
		} else {
			for i := 0; i < count; i++ {
				// Nested slices keep the shape of the element they replace.
				if i < v.Len() {
					fresh.Index(i).Set(v.Index(i))
				}
				if err := decodeValue(d, fresh.Index(i), 0); err != nil {
					return err
				}
			}
		}
		v.Set(fresh)
	case reflect.Struct:
		return visibleFields(v, func(fv reflect.Value, fn int) error {
			return decodeValue(d, fv, fn)
		})
	default:
		return errors.Wrapf(ErrUnsupportedType, "%s", t)
	}
	return nil
}

func signExtend(u uint64, width int) int64 {
	switch width {
	case 1:
		return int64(int8(u))
	case 2:
		return int64(int16(u))
	case 4:
		return int64(int32(u))
	default:
		return int64(u)
	}
}
