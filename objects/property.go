package objects

import "fmt"

// PropertyKind identifies how a property stores or resolves its value.
type PropertyKind int

const (
	// KindNote holds a value directly.
	KindNote PropertyKind = iota
	// KindAlias forwards reads to another named property of the owner.
	KindAlias
	// KindScript resolves its value through caller supplied accessors.
	KindScript
)

// String returns the PowerShell member type name of the kind.
func (k PropertyKind) String() string {
	switch k {
	case KindNote:
		return "NoteProperty"
	case KindAlias:
		return "AliasProperty"
	case KindScript:
		return "ScriptProperty"
	default:
		return fmt.Sprintf("PropertyKind(%d)", int(k))
	}
}

// Getter reads a script property value from its owner.
type Getter func(owner *PSObject) (interface{}, error)

// Setter writes a script property value on its owner.
type Setter func(owner *PSObject, value interface{}) error

// Property is a single member of a PSObject.
//
// Note properties hold their value, alias properties re-read another member
// of the owner, and script properties call Getter/Setter. A property built
// with one of the constructors always satisfies its kind's invariants; a
// zero Property is a note property with no name.
type Property struct {
	name      string
	kind      PropertyKind
	optional  bool
	mandatory bool
	coerce    Coercion
	target    string
	getter    Getter
	setter    Setter
	value     interface{}
}

// PropertyOption configures a Property at construction time.
type PropertyOption func(*Property)

// Optional marks the property as omitted from serialized output while its
// resolved value is nil.
func Optional() PropertyOption {
	return func(p *Property) {
		p.optional = true
	}
}

// Mandatory marks the property as required by TypeDescriptor.New.
func Mandatory() PropertyOption {
	return func(p *Property) {
		p.mandatory = true
	}
}

// WithCoercion declares the property's target type. Incoming values are
// passed through c before they are stored or returned.
func WithCoercion(c Coercion) PropertyOption {
	return func(p *Property) {
		p.coerce = c
	}
}

// NewNoteProperty creates a property holding value.
func NewNoteProperty(name string, value interface{}, opts ...PropertyOption) *Property {
	p := &Property{name: name, kind: KindNote, value: value}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewAliasProperty creates a read-only property that resolves target on the
// owner each time it is read.
func NewAliasProperty(name, target string, opts ...PropertyOption) *Property {
	p := &Property{name: name, kind: KindAlias, target: target}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewScriptProperty creates a property backed by accessor functions. A nil
// setter makes the property read-only; a nil getter is rejected when the
// property is added to an object or descriptor.
func NewScriptProperty(name string, getter Getter, setter Setter, opts ...PropertyOption) *Property {
	p := &Property{name: name, kind: KindScript, getter: getter, setter: setter}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the property name.
func (p *Property) Name() string { return p.name }

// Kind returns the property kind.
func (p *Property) Kind() PropertyKind { return p.kind }

// IsOptional reports whether the property is omitted when its value is nil.
func (p *Property) IsOptional() bool { return p.optional }

// IsMandatory reports whether the property must be supplied at construction.
func (p *Property) IsMandatory() bool { return p.mandatory }

// IsReadOnly reports whether Set always fails for this property.
func (p *Property) IsReadOnly() bool {
	switch p.kind {
	case KindAlias:
		return true
	case KindScript:
		return p.setter == nil
	default:
		return false
	}
}

// Target returns the aliased member name of an alias property.
func (p *Property) Target() string { return p.target }

// Get resolves the property value for owner.
func (p *Property) Get(owner *PSObject) (interface{}, error) {
	switch p.kind {
	case KindNote:
		return p.coerceValue(p.value)

	case KindAlias:
		if owner == nil {
			return nil, fmt.Errorf("alias %s: %w: no owner", p.name, ErrPropertyNotFound)
		}
		v, err := owner.Get(p.target)
		if err != nil {
			return nil, fmt.Errorf("alias %s: %w", p.name, err)
		}
		return p.coerceValue(v)

	case KindScript:
		if p.getter == nil {
			return nil, fmt.Errorf("%w: script property %s has no getter", ErrInvalidProperty, p.name)
		}
		v, err := p.getter(owner)
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", p.name, err)
		}
		return p.coerceValue(v)
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalidProperty, p.kind)
}

// Set stores value on the property, coercing it to the declared type.
func (p *Property) Set(owner *PSObject, value interface{}) error {
	switch p.kind {
	case KindNote:
		v, err := p.coerceValue(value)
		if err != nil {
			return err
		}
		p.value = v
		return nil

	case KindAlias:
		return fmt.Errorf("%w: alias %s", ErrReadOnlyProperty, p.name)

	case KindScript:
		if p.setter == nil {
			return fmt.Errorf("%w: no setter for %s", ErrReadOnlyProperty, p.name)
		}
		v, err := p.coerceValue(value)
		if err != nil {
			return err
		}
		return p.setter(owner, v)
	}
	return fmt.Errorf("%w: %s", ErrInvalidProperty, p.kind)
}

func (p *Property) coerceValue(v interface{}) (interface{}, error) {
	if p.coerce == nil || v == nil {
		return v, nil
	}
	out, err := p.coerce(v)
	if err != nil {
		return nil, fmt.Errorf("coerce %s: %w", p.name, err)
	}
	return out, nil
}

// Copy returns an independent copy of the property. Note values are copied
// shallowly.
func (p *Property) Copy() *Property {
	c := *p
	return &c
}

func (p *Property) validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil property", ErrInvalidProperty)
	}
	if p.name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidProperty)
	}
	switch p.kind {
	case KindNote:
		if p.getter != nil || p.setter != nil {
			return fmt.Errorf("%w: note property %s has accessors", ErrInvalidProperty, p.name)
		}
	case KindAlias:
		if p.target == "" {
			return fmt.Errorf("%w: alias %s has no target", ErrInvalidProperty, p.name)
		}
		if p.value != nil {
			return fmt.Errorf("%w: alias %s holds a value", ErrInvalidProperty, p.name)
		}
	case KindScript:
		if p.getter == nil {
			return fmt.Errorf("%w: script property %s has no getter", ErrInvalidProperty, p.name)
		}
		if p.value != nil {
			return fmt.Errorf("%w: script property %s holds a value", ErrInvalidProperty, p.name)
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidProperty, p.kind)
	}
	return nil
}

// memberList is an ordered, name-unique property list.
type memberList []*Property

func (l memberList) index(name string) int {
	for i, p := range l {
		if p.name == name {
			return i
		}
	}
	return -1
}

func (l memberList) find(name string) *Property {
	if i := l.index(name); i >= 0 {
		return l[i]
	}
	return nil
}

func (l memberList) clone() memberList {
	if l == nil {
		return nil
	}
	out := make(memberList, len(l))
	for i, p := range l {
		out[i] = p.Copy()
	}
	return out
}

// addMember inserts p into extended. A replaced extended property keeps its
// position; anything else is appended.
func addMember(adapted memberList, extended *memberList, p *Property, force bool) error {
	if err := p.validate(); err != nil {
		return err
	}
	idx := extended.index(p.name)
	if !force && (idx >= 0 || adapted.index(p.name) >= 0) {
		return fmt.Errorf("%w: %s", ErrPropertyExists, p.name)
	}
	if idx >= 0 {
		(*extended)[idx] = p
		return nil
	}
	*extended = append(*extended, p)
	return nil
}
