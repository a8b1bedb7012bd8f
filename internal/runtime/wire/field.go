package wire

import (
	"fmt"
	"math"

	errspkg "github.com/drblury/reactorflow/internal/runtime/errors"
)

// Kind is the wire representation of a field.
type Kind uint8

const (
	KindInt8 Kind = iota + 1
	KindBool
	KindInt16
	KindChar
	KindInt32
	KindFloat32
	KindInt64
	KindFloat64
	KindText
	KindChars
)

var kindNames = map[Kind]string{
	KindInt8:    "int8",
	KindBool:    "bool",
	KindInt16:   "int16",
	KindChar:    "char",
	KindInt32:   "int32",
	KindFloat32: "float32",
	KindInt64:   "int64",
	KindFloat64: "float64",
	KindText:    "text",
	KindChars:   "chars",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

const (
	boolTrue     = 'T'
	boolFalse    = 'F'
	lengthPrefix = 4
)

// Field describes one payload field of message type M. Fields are built with
// the typed constructors below, which bind an accessor returning a pointer to
// the field inside M.
type Field[M any] struct {
	Name string
	Kind Kind

	size   func(m M) int
	encode func(m M, buf []byte, off int) int
	decode func(m M, buf []byte, off int) (int, error)
	reset  func(m M)
	value  func(m M) any
}

func fixed[M any, V any](name string, kind Kind, width int, ref func(M) *V,
	put func(b []byte, v V), get func(b []byte) (V, error), view func(v V) any) Field[M] {
	return Field[M]{
		Name: name,
		Kind: kind,
		size: func(M) int { return width },
		encode: func(m M, buf []byte, off int) int {
			put(buf[off:off+width], *ref(m))
			return off + width
		},
		decode: func(m M, buf []byte, off int) (int, error) {
			if err := need(buf, off, width); err != nil {
				return off, err
			}
			v, err := get(buf[off : off+width])
			if err != nil {
				return off, err
			}
			*ref(m) = v
			return off + width, nil
		},
		reset: func(m M) {
			var zero V
			*ref(m) = zero
		},
		value: func(m M) any { return view(*ref(m)) },
	}
}

// Int8 declares a 1 byte signed field.
func Int8[M any](name string, ref func(M) *int8) Field[M] {
	return fixed(name, KindInt8, 1, ref,
		func(b []byte, v int8) { b[0] = byte(v) },
		func(b []byte) (int8, error) { return int8(b[0]), nil },
		func(v int8) any { return int64(v) })
}

// Bool declares a 1 byte boolean field written as 'T' or 'F'.
func Bool[M any](name string, ref func(M) *bool) Field[M] {
	return fixed(name, KindBool, 1, ref,
		func(b []byte, v bool) {
			if v {
				b[0] = boolTrue
			} else {
				b[0] = boolFalse
			}
		},
		func(b []byte) (bool, error) {
			switch b[0] {
			case boolTrue:
				return true, nil
			case boolFalse:
				return false, nil
			default:
				return false, fmt.Errorf("%w: 0x%02x", errspkg.ErrInvalidBool, b[0])
			}
		},
		func(v bool) any { return v })
}

// Int16 declares a 2 byte signed field.
func Int16[M any](name string, ref func(M) *int16) Field[M] {
	return fixed(name, KindInt16, 2, ref,
		func(b []byte, v int16) { order.PutUint16(b, uint16(v)) },
		func(b []byte) (int16, error) { return int16(order.Uint16(b)), nil },
		func(v int16) any { return int64(v) })
}

// Char declares a 2 byte field holding one UTF-16 code unit.
func Char[M any](name string, ref func(M) *uint16) Field[M] {
	return fixed(name, KindChar, 2, ref,
		func(b []byte, v uint16) { order.PutUint16(b, v) },
		func(b []byte) (uint16, error) { return order.Uint16(b), nil },
		func(v uint16) any { return int64(v) })
}

// Int32 declares a 4 byte signed field.
func Int32[M any](name string, ref func(M) *int32) Field[M] {
	return fixed(name, KindInt32, 4, ref,
		func(b []byte, v int32) { order.PutUint32(b, uint32(v)) },
		func(b []byte) (int32, error) { return int32(order.Uint32(b)), nil },
		func(v int32) any { return int64(v) })
}

// Float32 declares a 4 byte IEEE-754 field.
func Float32[M any](name string, ref func(M) *float32) Field[M] {
	return fixed(name, KindFloat32, 4, ref,
		func(b []byte, v float32) { order.PutUint32(b, math.Float32bits(v)) },
		func(b []byte) (float32, error) { return math.Float32frombits(order.Uint32(b)), nil },
		func(v float32) any { return float64(v) })
}

// Int64 declares an 8 byte signed field.
func Int64[M any](name string, ref func(M) *int64) Field[M] {
	return fixed(name, KindInt64, 8, ref,
		func(b []byte, v int64) { order.PutUint64(b, uint64(v)) },
		func(b []byte) (int64, error) { return int64(order.Uint64(b)), nil },
		func(v int64) any { return v })
}

// Float64 declares an 8 byte IEEE-754 field.
func Float64[M any](name string, ref func(M) *float64) Field[M] {
	return fixed(name, KindFloat64, 8, ref,
		func(b []byte, v float64) { order.PutUint64(b, math.Float64bits(v)) },
		func(b []byte) (float64, error) { return math.Float64frombits(order.Uint64(b)), nil },
		func(v float64) any { return v })
}

// ByteText declares a byte-counted text field: a 4 byte length in bytes
// followed by the bytes.
func ByteText[M any](name string, ref func(M) *Text) Field[M] {
	return Field[M]{
		Name: name,
		Kind: KindText,
		size: func(m M) int { return lengthPrefix + ref(m).Len() },
		encode: func(m M, buf []byte, off int) int {
			t := ref(m)
			order.PutUint32(buf[off:], uint32(len(t.buf)))
			off += lengthPrefix
			return off + copy(buf[off:], t.buf)
		},
		decode: func(m M, buf []byte, off int) (int, error) {
			n, off, err := readLength(buf, off, 1)
			if err != nil {
				return off, err
			}
			t := ref(m)
			t.buf = append(t.buf[:0], buf[off:off+n]...)
			return off + n, nil
		},
		reset: func(m M) { ref(m).Reset() },
		value: func(m M) any { return ref(m).String() },
	}
}

// CharText declares a char-counted text field: a 4 byte count of UTF-16
// code units followed by two bytes per unit.
func CharText[M any](name string, ref func(M) *Chars) Field[M] {
	return Field[M]{
		Name: name,
		Kind: KindChars,
		size: func(m M) int { return lengthPrefix + 2*ref(m).Len() },
		encode: func(m M, buf []byte, off int) int {
			c := ref(m)
			order.PutUint32(buf[off:], uint32(len(c.units)))
			off += lengthPrefix
			for _, u := range c.units {
				order.PutUint16(buf[off:], u)
				off += 2
			}
			return off
		},
		decode: func(m M, buf []byte, off int) (int, error) {
			n, off, err := readLength(buf, off, 2)
			if err != nil {
				return off, err
			}
			c := ref(m)
			c.units = c.units[:0]
			for i := 0; i < n; i++ {
				c.units = append(c.units, order.Uint16(buf[off:]))
				off += 2
			}
			return off, nil
		},
		reset: func(m M) { ref(m).Reset() },
		value: func(m M) any { return ref(m).String() },
	}
}

// readLength reads a length prefix and checks that n elements of unit bytes
// follow it.
func readLength(buf []byte, off, unit int) (n int, next int, err error) {
	if err := need(buf, off, lengthPrefix); err != nil {
		return 0, off, err
	}
	raw := int32(order.Uint32(buf[off:]))
	if raw < 0 {
		return 0, off, fmt.Errorf("%w: %d", errspkg.ErrNegativeLength, raw)
	}
	n = int(raw)
	next = off + lengthPrefix
	if err := need(buf, next, n*unit); err != nil {
		return 0, off, err
	}
	return n, next, nil
}
