package objects

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// EnumValue is one named member of an enum table.
type EnumValue struct {
	Name  string
	Value int64
}

// EnumType is a .NET enum or [Flags] enum declared as a static table.
type EnumType struct {
	// Name is the full .NET type name, e.g. System.Threading.ApartmentState.
	Name  string
	Flags bool
	// Underlying is the wire kind of the numeric value. The zero value
	// means reflect.Int32.
	Underlying reflect.Kind
	// Values are kept in declaration order; flag rendering depends on it.
	Values []EnumValue
}

// Enum is a value of an EnumType.
type Enum struct {
	Type  *EnumType
	Value int64
}

// TypeNames returns the serialized type name chain of the enum.
func (t *EnumType) TypeNames() []string {
	return []string{t.Name, "System.Enum", "System.ValueType", "System.Object"}
}

// Of returns the enum value for n.
func (t *EnumType) Of(n int64) Enum {
	return Enum{Type: t, Value: n}
}

// Parse converts a label, a comma separated flag list, or a decimal string
// into an enum value.
func (t *EnumType) Parse(s string) (Enum, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return t.Of(n), nil
	}
	parts := []string{s}
	if t.Flags {
		parts = strings.Split(s, ",")
	}
	var value int64
	for _, part := range parts {
		label := strings.TrimSpace(part)
		found := false
		for _, v := range t.Values {
			if strings.EqualFold(v.Name, label) {
				value |= v.Value
				found = true
				break
			}
		}
		if !found {
			return Enum{}, fmt.Errorf("%w: %q is not a member of %s", ErrInvalidEnumValue, label, t.Name)
		}
	}
	return t.Of(value), nil
}

// Primitive returns n as the Go integer type matching Underlying.
func (t *EnumType) Primitive(n int64) interface{} {
	switch t.Underlying {
	case reflect.Int8:
		return int8(n) // #nosec G115 -- enum tables declare in-range values
	case reflect.Uint8:
		return uint8(n) // #nosec G115
	case reflect.Int16:
		return int16(n) // #nosec G115
	case reflect.Uint16:
		return uint16(n) // #nosec G115
	case reflect.Uint32:
		return uint32(n) // #nosec G115
	case reflect.Int64:
		return n
	case reflect.Uint64:
		return uint64(n) // #nosec G115
	default:
		return int32(n) // #nosec G115
	}
}

// Descriptor returns the type descriptor used to rehydrate the enum. Its
// FromRemoting hook turns a deserialized object back into an Enum.
func (t *EnumType) Descriptor() *TypeDescriptor {
	return &TypeDescriptor{
		TypeNames: t.TypeNames(),
		Enum:      t,
		ToString: func(o *PSObject) string {
			if n, ok := toInt64(o.BaseObject); ok {
				return t.Of(n).String()
			}
			return ""
		},
		FromRemoting: func(o *PSObject) (interface{}, error) {
			n, ok := toInt64(o.BaseObject)
			if !ok {
				return nil, fmt.Errorf("%w: %s has no numeric value", ErrInvalidEnumValue, t.Name)
			}
			if o.HasProperties() {
				return o, nil
			}
			return t.Of(n), nil
		},
	}
}

// RegisterEnum adds t to the default registry and returns it.
func RegisterEnum(t *EnumType) *EnumType {
	Register(t.Descriptor())
	return t
}

// String renders the value. Plain enums use the matching label or the
// decimal value. Flag enums scan the table in declaration order and take
// every member whose bits are all still set, clearing them as they match;
// leftover bits render the whole value as a number.
func (e Enum) String() string {
	if e.Type == nil {
		return strconv.FormatInt(e.Value, 10)
	}
	if !e.Type.Flags || e.Value == 0 {
		for _, v := range e.Type.Values {
			if v.Value == e.Value {
				return v.Name
			}
		}
		return strconv.FormatInt(e.Value, 10)
	}

	remaining := e.Value
	var labels []string
	for _, v := range e.Type.Values {
		if v.Value == 0 {
			continue
		}
		if remaining&v.Value == v.Value {
			labels = append(labels, v.Name)
			remaining &^= v.Value
		}
	}
	if remaining != 0 || len(labels) == 0 {
		return strconv.FormatInt(e.Value, 10)
	}
	return strings.Join(labels, ", ")
}

// Has reports whether every bit of flag is set.
func (e Enum) Has(flag int64) bool {
	return e.Value&flag == flag
}

// PSObject returns the value as an object carrying the enum's type name
// chain, its label as ToString and the numeric value as base object.
func (e Enum) PSObject() *PSObject {
	if e.Type == nil {
		return &PSObject{BaseObject: int32(e.Value)} // #nosec G115
	}
	return &PSObject{
		TypeNames:  e.Type.TypeNames(),
		ToString:   e.String(),
		BaseObject: e.Type.Primitive(e.Value),
	}
}
