package objects

import (
	"fmt"
	"slices"
)

// Common type name chains.
var (
	customObjectTypeNames = []string{"System.Management.Automation.PSCustomObject", "System.Object"}
)

// PSObject represents a PowerShell object with type information and properties.
//
// Adapted properties are native to the remote type (<Props> on the wire);
// extended properties are added on top of them (<MS>) and shadow an adapted
// property of the same name. BaseObject holds the wrapped primitive of an
// extended primitive or enum, or a container (slice, *Dictionary, *Stack,
// *Queue); it is nil for a plain record.
type PSObject struct {
	// TypeNames is ordered most-derived first.
	TypeNames []string
	// ToString optionally provides a string representation.
	ToString   string
	BaseObject interface{}

	adapted  memberList
	extended memberList
	desc     *TypeDescriptor
}

// NewPSObject creates an empty object. With no type names it is a
// System.Management.Automation.PSCustomObject.
func NewPSObject(typeNames ...string) *PSObject {
	if len(typeNames) == 0 {
		typeNames = customObjectTypeNames
	}
	return &PSObject{TypeNames: slices.Clone(typeNames)}
}

// Descriptor returns the type descriptor the object was built from, or nil.
func (o *PSObject) Descriptor() *TypeDescriptor { return o.desc }

// Adapted returns the adapted properties in declaration order.
func (o *PSObject) Adapted() []*Property { return slices.Clone(o.adapted) }

// Extended returns the extended properties in insertion order.
func (o *PSObject) Extended() []*Property { return slices.Clone(o.extended) }

// Property returns the named property, preferring extended over adapted.
func (o *PSObject) Property(name string) *Property {
	if p := o.extended.find(name); p != nil {
		return p
	}
	return o.adapted.find(name)
}

// Get resolves the named property value.
func (o *PSObject) Get(name string) (interface{}, error) {
	p := o.Property(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPropertyNotFound, name)
	}
	return p.Get(o)
}

// Set assigns the named property, applying its coercion and access rules.
func (o *PSObject) Set(name string, value interface{}) error {
	p := o.Property(name)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrPropertyNotFound, name)
	}
	return p.Set(o, value)
}

// Value is index-style access: it returns the named property value, or nil
// when the property is missing or cannot be resolved.
func (o *PSObject) Value(name string) interface{} {
	v, err := o.Get(name)
	if err != nil {
		return nil
	}
	return v
}

// AddMember adds p as an extended property. Without force it fails when an
// adapted or extended property of the same name exists. A replaced extended
// property keeps its position.
func (o *PSObject) AddMember(p *Property, force bool) error {
	return addMember(o.adapted, &o.extended, p, force)
}

// AddNoteProperty adds or replaces an extended note property.
func (o *PSObject) AddNoteProperty(name string, value interface{}) *PSObject {
	_ = addMember(o.adapted, &o.extended, NewNoteProperty(name, value), true)
	return o
}

// AddAdaptedProperty adds p to the adapted property list.
func (o *PSObject) AddAdaptedProperty(p *Property, force bool) error {
	if err := p.validate(); err != nil {
		return err
	}
	idx := o.adapted.index(p.name)
	if idx >= 0 {
		if !force {
			return fmt.Errorf("%w: %s", ErrPropertyExists, p.name)
		}
		o.adapted[idx] = p
		return nil
	}
	o.adapted = append(o.adapted, p)
	return nil
}

// Restore assigns a property value read back from a serialized object. It
// bypasses coercion and read-only checks: an existing note property of the
// same name in the selected list takes the value, anything else is replaced
// by a note property. An adapted alias or script property is shadowed by an
// extended note instead of being overwritten.
func (o *PSObject) Restore(name string, value interface{}, adapted bool) {
	if adapted {
		if idx := o.adapted.index(name); idx >= 0 {
			if p := o.adapted[idx]; p.kind == KindNote {
				p.value = value
				return
			}
		} else {
			o.adapted = append(o.adapted, NewNoteProperty(name, value))
			return
		}
	}
	if p := o.extended.find(name); p != nil && p.kind == KindNote {
		p.value = value
		return
	}
	_ = addMember(o.adapted, &o.extended, NewNoteProperty(name, value), true)
}

// HasProperties reports whether the object carries any property.
func (o *PSObject) HasProperties() bool {
	return len(o.adapted) > 0 || len(o.extended) > 0
}

// IsEnum reports whether the object represents an enum value.
func (o *PSObject) IsEnum() bool {
	if o.desc != nil && o.desc.Enum != nil {
		return true
	}
	for _, tn := range o.TypeNames {
		if tn == "System.Enum" || tn == "Deserialized.System.Enum" {
			return true
		}
	}
	return false
}

// String returns the display string: ToString when set, otherwise the
// descriptor's default, otherwise the base object's text.
func (o *PSObject) String() string {
	if o.ToString != "" {
		return o.ToString
	}
	if o.desc != nil && o.desc.ToString != nil {
		return o.desc.ToString(o)
	}
	switch base := o.BaseObject.(type) {
	case nil:
		return ""
	case string:
		return base
	case fmt.Stringer:
		return base.String()
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(base)
	}
	return ""
}
