package catalog

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrUnsupported is returned for Go types that have no catalog kind.
var ErrUnsupported = errors.New("unsupported scalar type")

// Codec converts one Go field type to a database parameter and back.
// Codecs are resolved once per mapped field; Encode and Decode do no
// reflection.
type Codec[F any] struct {
	Kind   Kind
	Encode func(F) any
	Decode func(src any) (F, error)
}

// For resolves the codec of F. Char and Enum fields share their Go
// representation with plain integers and are declared with CharCodec
// and EnumCodec instead.
func For[F any]() (Codec[F], error) {
	var zero F
	switch any(zero).(type) {
	case bool:
		return wrap[F](Bool, identity, func(src any) (any, error) { return toBool(src) }), nil
	case uint8:
		return wrap[F](Byte, func(v any) any { return int64(v.(uint8)) }, func(src any) (any, error) {
			n, err := toRange(src, 0, 1<<8-1)
			return uint8(n), err
		}), nil
	case int16:
		return wrap[F](Short, func(v any) any { return int64(v.(int16)) }, func(src any) (any, error) {
			n, err := toRange(src, -1<<15, 1<<15-1)
			return int16(n), err
		}), nil
	case int32:
		return wrap[F](Int, func(v any) any { return int64(v.(int32)) }, func(src any) (any, error) {
			n, err := toRange(src, -1<<31, 1<<31-1)
			return int32(n), err
		}), nil
	case int64:
		return wrap[F](Long, identity, func(src any) (any, error) { return Int64(src) }), nil
	case int:
		return wrap[F](Long, func(v any) any { return int64(v.(int)) }, func(src any) (any, error) {
			n, err := Int64(src)
			return int(n), err
		}), nil
	case float32:
		return wrap[F](Float, func(v any) any { return float64(v.(float32)) }, func(src any) (any, error) {
			f, err := toFloat(src)
			return float32(f), err
		}), nil
	case float64:
		return wrap[F](Double, identity, func(src any) (any, error) { return toFloat(src) }), nil
	case decimal.Decimal:
		return wrap[F](Decimal, func(v any) any { return v.(decimal.Decimal).String() }, func(src any) (any, error) {
			return toDecimal(src)
		}), nil
	case string:
		return wrap[F](String, identity, func(src any) (any, error) { return toString(src) }), nil
	case *string:
		return wrap[F](NullableString, func(v any) any {
			if p := v.(*string); p != nil {
				return *p
			}
			return nil
		}, func(src any) (any, error) {
			if src == nil {
				return (*string)(nil), nil
			}
			s, err := toString(src)
			if err != nil {
				return (*string)(nil), err
			}
			return &s, nil
		}), nil
	case uuid.UUID:
		return wrap[F](Guid, func(v any) any { return v.(uuid.UUID).String() }, func(src any) (any, error) {
			return toUUID(src)
		}), nil
	case []byte:
		return wrap[F](Bytes, func(v any) any {
			if b := v.([]byte); b != nil {
				return b
			}
			return nil
		}, func(src any) (any, error) { return toBytes(src) }), nil
	case time.Time:
		return wrap[F](DateTime, func(v any) any { return v.(time.Time).UTC() }, func(src any) (any, error) {
			return toTime(src)
		}), nil
	}
	return Codec[F]{}, fmt.Errorf("%w: %s", ErrUnsupported, reflect.TypeFor[F]())
}

// CharCodec stores a rune as a one-character string.
func CharCodec() Codec[rune] {
	return Codec[rune]{
		Kind: Char,
		Encode: func(r rune) any {
			if r == 0 {
				return nil
			}
			return string(r)
		},
		Decode: toRune,
	}
}

// Integer is the underlying type set an enum may be declared over.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32
}

// EnumCodec stores an enum as its underlying integer.
func EnumCodec[E Integer]() Codec[E] {
	return Codec[E]{
		Kind:   Enum,
		Encode: func(v E) any { return int64(v) },
		Decode: func(src any) (E, error) {
			n, err := Int64(src)
			return E(n), err
		},
	}
}

func identity(v any) any { return v }

func wrap[F any](k Kind, enc func(any) any, dec func(any) (any, error)) Codec[F] {
	return Codec[F]{
		Kind:   k,
		Encode: func(v F) any { return enc(any(v)) },
		Decode: func(src any) (F, error) {
			var zero F
			v, err := dec(src)
			if err != nil {
				return zero, err
			}
			out, ok := v.(F)
			if !ok {
				return zero, fmt.Errorf("catalog: decoded %T, want %s", v, reflect.TypeFor[F]())
			}
			return out, nil
		},
	}
}
