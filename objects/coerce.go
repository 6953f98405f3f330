package objects

import (
	"fmt"
	"math"
	"strconv"
)

// Coercion converts an incoming property value into the property's declared
// type. Values that already have the target type are returned unchanged.
type Coercion func(v interface{}) (interface{}, error)

// CoerceString converts primitives to their string form.
func CoerceString(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case fmt.Stringer:
		return val.String(), nil
	case bool:
		return strconv.FormatBool(val), nil
	}
	if n, ok := toInt64(v); ok {
		return strconv.FormatInt(n, 10), nil
	}
	return nil, fmt.Errorf("cannot convert %T to string", v)
}

// CoerceBool converts strings and integers to bool.
func CoerceBool(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		return strconv.ParseBool(val)
	}
	if n, ok := toInt64(v); ok {
		return n != 0, nil
	}
	return nil, fmt.Errorf("cannot convert %T to bool", v)
}

// CoerceInt32 converts integers, enums and numeric strings to int32.
func CoerceInt32(v interface{}) (interface{}, error) {
	if val, ok := v.(int32); ok {
		return val, nil
	}
	n, err := coerceInteger(v, math.MinInt32, math.MaxInt32)
	if err != nil {
		return nil, err
	}
	return int32(n), nil // #nosec G115 -- bounds checked by coerceInteger
}

// CoerceInt64 converts integers, enums and numeric strings to int64.
func CoerceInt64(v interface{}) (interface{}, error) {
	if val, ok := v.(int64); ok {
		return val, nil
	}
	return coerceInteger(v, math.MinInt64, math.MaxInt64)
}

// CoerceUInt32 converts integers and numeric strings to uint32.
func CoerceUInt32(v interface{}) (interface{}, error) {
	if val, ok := v.(uint32); ok {
		return val, nil
	}
	n, err := coerceInteger(v, 0, math.MaxUint32)
	if err != nil {
		return nil, err
	}
	return uint32(n), nil // #nosec G115 -- bounds checked by coerceInteger
}

// CoerceDouble converts numbers and numeric strings to float64.
func CoerceDouble(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case string:
		return strconv.ParseFloat(val, 64)
	}
	if n, ok := toInt64(v); ok {
		return float64(n), nil
	}
	return nil, fmt.Errorf("cannot convert %T to float64", v)
}

// CoerceEnum returns a coercion that converts integers and labels into
// values of t.
func CoerceEnum(t *EnumType) Coercion {
	return func(v interface{}) (interface{}, error) {
		switch val := v.(type) {
		case Enum:
			if val.Type == t {
				return val, nil
			}
			return t.Of(val.Value), nil
		case *Enum:
			if val == nil {
				return nil, nil
			}
			return t.Of(val.Value), nil
		case string:
			return t.Parse(val)
		case *PSObject:
			// Unregistered enum values arrive as generic objects wrapping
			// their numeric value.
			if n, ok := toInt64(val.BaseObject); ok {
				return t.Of(n), nil
			}
		}
		if n, ok := toInt64(v); ok {
			return t.Of(n), nil
		}
		return nil, fmt.Errorf("cannot convert %T to %s", v, t.Name)
	}
}

func coerceInteger(v interface{}, lo, hi int64) (int64, error) {
	var n int64
	switch val := v.(type) {
	case string:
		parsed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, err
		}
		n = parsed
	case Enum:
		n = val.Value
	default:
		i, ok := toInt64(v)
		if !ok {
			return 0, fmt.Errorf("cannot convert %T to integer", v)
		}
		n = i
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("value %d out of range [%d, %d]", n, lo, hi)
	}
	return n, nil
}

// toInt64 widens the built-in integer kinds. uint64 values above MaxInt64
// are rejected.
func toInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint:
		if uint64(val) > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		if val > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	case Enum:
		return val.Value, true
	}
	return 0, false
}
