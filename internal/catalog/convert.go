package catalog

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// drivers hand back different shapes for the same column type:
// database/sql narrows to int64/float64/string/[]byte, pgx keeps int32,
// float32, [16]byte and pgtype values. Decoders accept all of them.

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func unwrap(src any) (any, error) {
	switch src.(type) {
	case nil, string, []byte, time.Time, uuid.UUID, decimal.Decimal:
		return src, nil
	}
	if v, ok := src.(driver.Valuer); ok {
		return v.Value()
	}
	return src, nil
}

// Int64 decodes a whole number from any driver representation.
func Int64(src any) (int64, error) {
	src, err := unwrap(src)
	if err != nil {
		return 0, err
	}
	switch v := src.(type) {
	case nil:
		return 0, nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("catalog: %d overflows int64", v)
		}
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("catalog: %v is not a whole number", v)
		}
		return int64(v), nil
	case float32:
		return Int64(float64(v))
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	}
	return 0, fmt.Errorf("catalog: cannot decode %T as integer", src)
}

func toRange(src any, lo, hi int64) (int64, error) {
	n, err := Int64(src)
	if err != nil {
		return 0, err
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("catalog: %d out of range [%d, %d]", n, lo, hi)
	}
	return n, nil
}

func toBool(src any) (bool, error) {
	src, err := unwrap(src)
	if err != nil {
		return false, err
	}
	switch v := src.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(v)
	case []byte:
		return strconv.ParseBool(string(v))
	}
	n, err := Int64(src)
	if err != nil {
		return false, fmt.Errorf("catalog: cannot decode %T as bool", src)
	}
	return n != 0, nil
}

func toFloat(src any) (float64, error) {
	src, err := unwrap(src)
	if err != nil {
		return 0, err
	}
	switch v := src.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	case []byte:
		return strconv.ParseFloat(string(v), 64)
	}
	n, err := Int64(src)
	if err != nil {
		return 0, fmt.Errorf("catalog: cannot decode %T as float", src)
	}
	return float64(n), nil
}

func toDecimal(src any) (decimal.Decimal, error) {
	src, err := unwrap(src)
	if err != nil {
		return decimal.Zero, err
	}
	switch v := src.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return v, nil
	case string:
		return decimal.NewFromString(v)
	case []byte:
		return decimal.NewFromString(string(v))
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	}
	n, err := Int64(src)
	if err != nil {
		return decimal.Zero, fmt.Errorf("catalog: cannot decode %T as decimal", src)
	}
	return decimal.NewFromInt(n), nil
}

func toString(src any) (string, error) {
	src, err := unwrap(src)
	if err != nil {
		return "", err
	}
	switch v := src.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	return "", fmt.Errorf("catalog: cannot decode %T as string", src)
}

func toRune(src any) (rune, error) {
	switch v := src.(type) {
	case nil:
		return 0, nil
	case string, []byte:
		s, _ := toString(v)
		if s == "" {
			return 0, nil
		}
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size <= 1 {
			return 0, fmt.Errorf("catalog: %q is not valid utf-8", s)
		}
		return r, nil
	}
	n, err := toRange(src, 0, utf8.MaxRune)
	return rune(n), err
}

func toUUID(src any) (uuid.UUID, error) {
	switch v := src.(type) {
	case nil:
		return uuid.Nil, nil
	case uuid.UUID:
		return v, nil
	case [16]byte:
		return uuid.UUID(v), nil
	case string:
		return uuid.Parse(v)
	case []byte:
		if len(v) == 16 {
			return uuid.FromBytes(v)
		}
		return uuid.ParseBytes(v)
	}
	src, err := unwrap(src)
	if err != nil {
		return uuid.Nil, err
	}
	if s, ok := src.(string); ok {
		return uuid.Parse(s)
	}
	return uuid.Nil, fmt.Errorf("catalog: cannot decode %T as uuid", src)
}

func toBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		out := make([]byte, len(v))
		copy(out, v)
		return out, nil
	case string:
		return []byte(v), nil
	}
	return nil, fmt.Errorf("catalog: cannot decode %T as bytes", src)
}

func toTime(src any) (time.Time, error) {
	src, err := unwrap(src)
	if err != nil {
		return time.Time{}, err
	}
	var s string
	switch v := src.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return v.UTC(), nil
	case string:
		s = v
	case []byte:
		s = string(v)
	case int64:
		return time.Unix(v, 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("catalog: cannot decode %T as time", src)
	}
	s = strings.TrimSpace(s)
	if i := strings.Index(s, " m="); i > 0 {
		s = s[:i]
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("catalog: cannot parse time %q", s)
}
