package objects

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// Factory produces a blank instance for rehydration.
type Factory func() *PSObject

// ContainerKind names the container payload a type carries on the wire.
type ContainerKind int

const (
	// ContainerNone is a plain record or primitive-backed type.
	ContainerNone ContainerKind = iota
	// ContainerList is an ordered list (<LST>).
	ContainerList
	// ContainerStack is a LIFO list (<STK>).
	ContainerStack
	// ContainerQueue is a FIFO queue (<QUE>).
	ContainerQueue
	// ContainerDictionary is a key-unique mapping (<DCT>).
	ContainerDictionary
)

// TypeDescriptor declares a structured type: its type name chain, the
// property templates every instance starts with, and optional hooks used by
// the serializer.
//
// Property templates are copied into each instance, so note values set on an
// instance never leak into the descriptor.
type TypeDescriptor struct {
	// TypeNames is ordered most-derived first and ends with the root type.
	TypeNames []string
	Adapted   []*Property
	Extended  []*Property
	Container ContainerKind
	// Enum is set for enum and flag types.
	Enum *EnumType
	// NoRehydrate keeps the type out of the rehydration catalog.
	NoRehydrate bool

	// ToString renders the default display string of an instance.
	ToString func(o *PSObject) string
	// ToRemoting replaces an instance with the object sent on the wire.
	ToRemoting func(o *PSObject) (*PSObject, error)
	// FromRemoting converts a rehydrated instance into its final value.
	FromRemoting func(o *PSObject) (interface{}, error)

	factory Factory
	mu      sync.RWMutex
}

// Name returns the most-derived type name.
func (d *TypeDescriptor) Name() string {
	if len(d.TypeNames) == 0 {
		return ""
	}
	return d.TypeNames[0]
}

// validate checks every declared property template.
func (d *TypeDescriptor) validate() error {
	if len(d.TypeNames) == 0 {
		return fmt.Errorf("%w: descriptor has no type names", ErrInvalidProperty)
	}
	seen := make(map[string]bool, len(d.Adapted))
	for _, p := range d.Adapted {
		if err := p.validate(); err != nil {
			return fmt.Errorf("%s: %w", d.Name(), err)
		}
		if seen[p.name] {
			return fmt.Errorf("%s: %w: %s", d.Name(), ErrPropertyExists, p.name)
		}
		seen[p.name] = true
	}
	clear(seen)
	for _, p := range d.Extended {
		if err := p.validate(); err != nil {
			return fmt.Errorf("%s: %w", d.Name(), err)
		}
		if seen[p.name] {
			return fmt.Errorf("%s: %w: %s", d.Name(), ErrPropertyExists, p.name)
		}
		seen[p.name] = true
	}
	return nil
}

// Blank returns an instance with the declared properties and their default
// values, skipping mandatory checks and coercion.
func (d *TypeDescriptor) Blank() *PSObject {
	if d.factory != nil {
		obj := d.factory()
		if obj.desc == nil {
			obj.desc = d
		}
		return obj
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return &PSObject{
		TypeNames: slices.Clone(d.TypeNames),
		adapted:   memberList(d.Adapted).clone(),
		extended:  memberList(d.Extended).clone(),
		desc:      d,
	}
}

// New builds a validated instance. Every mandatory property must appear in
// values, each value is coerced to its property's declared type, and names
// that are not declared are rejected.
func (d *TypeDescriptor) New(values map[string]interface{}) (*PSObject, error) {
	obj := d.Blank()
	for _, p := range obj.adapted {
		if p.mandatory {
			if _, ok := values[p.name]; !ok {
				return nil, fmt.Errorf("%s: %w: %s", d.Name(), ErrMandatoryProperty, p.name)
			}
		}
	}
	for _, p := range obj.extended {
		if p.mandatory {
			if _, ok := values[p.name]; !ok {
				return nil, fmt.Errorf("%s: %w: %s", d.Name(), ErrMandatoryProperty, p.name)
			}
		}
	}

	// Apply in declaration order so setters observe a stable sequence.
	applied := 0
	for _, list := range []memberList{obj.adapted, obj.extended} {
		for _, p := range list {
			v, ok := values[p.name]
			if !ok {
				continue
			}
			if obj.Property(p.name) != p {
				// Shadowed adapted property: the extended one takes the value.
				continue
			}
			if err := p.Set(obj, v); err != nil {
				return nil, fmt.Errorf("%s: %w", d.Name(), err)
			}
			applied++
		}
	}
	if applied != len(values) {
		for name := range values {
			if obj.Property(name) == nil {
				return nil, fmt.Errorf("%s: %w: %s", d.Name(), ErrPropertyNotFound, name)
			}
		}
	}
	return obj, nil
}

// AddMember adds an extended property template to the type. Instances
// created afterwards carry it; existing instances are unaffected.
func (d *TypeDescriptor) AddMember(p *Property, force bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ext := memberList(d.Extended)
	if err := addMember(memberList(d.Adapted), &ext, p, force); err != nil {
		return fmt.Errorf("%s: %w", d.Name(), err)
	}
	d.Extended = ext
	return nil
}

// GenericType describes an open generic .NET type such as
// System.Collections.Generic.List`1.
type GenericType struct {
	// Base is the open type name including its arity suffix.
	Base  string
	Arity int
	// Template supplies the shape of every instantiation.
	Template *TypeDescriptor

	cache sync.Map // joined args -> *TypeDescriptor
}

// NewGenericType creates a generic type whose name is base with an arity
// suffix, e.g. NewGenericType("System.Collections.Generic.List", 1, tmpl)
// describes System.Collections.Generic.List`1.
func NewGenericType(base string, arity int, template *TypeDescriptor) *GenericType {
	return &GenericType{
		Base:     base + "`" + strconv.Itoa(arity),
		Arity:    arity,
		Template: template,
	}
}

// Instantiate returns the closed type for args. Results are cached per
// argument tuple.
func (g *GenericType) Instantiate(args ...string) (*TypeDescriptor, error) {
	if len(args) != g.Arity {
		return nil, fmt.Errorf("%s: expected %d type arguments, got %d", g.Base, g.Arity, len(args))
	}
	key := strings.Join(args, "\x00")
	if d, ok := g.cache.Load(key); ok {
		return d.(*TypeDescriptor), nil
	}

	var b strings.Builder
	b.WriteString(g.Base)
	b.WriteByte('[')
	for i, a := range args {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('[')
		b.WriteString(a)
		b.WriteByte(']')
	}
	b.WriteByte(']')

	d := &TypeDescriptor{NoRehydrate: true}
	if t := g.Template; t != nil {
		t.mu.RLock()
		d.TypeNames = slices.Clone(t.TypeNames)
		d.Adapted = memberList(t.Adapted).clone()
		d.Extended = memberList(t.Extended).clone()
		d.Container = t.Container
		d.ToString = t.ToString
		d.ToRemoting = t.ToRemoting
		d.FromRemoting = t.FromRemoting
		t.mu.RUnlock()
	}
	if len(d.TypeNames) == 0 {
		d.TypeNames = []string{b.String(), "System.Object"}
	} else {
		d.TypeNames[0] = b.String()
	}

	actual, _ := g.cache.LoadOrStore(key, d)
	return actual.(*TypeDescriptor), nil
}

// genericBase strips the type argument list from a closed generic name:
// "List`1[[System.String]]" -> "List`1". ok is false for non-generic names.
func genericBase(name string) (string, bool) {
	tick := strings.IndexByte(name, '`')
	if tick < 0 {
		return "", false
	}
	end := strings.IndexByte(name[tick:], '[')
	if end < 0 {
		return "", false
	}
	return name[:tick+end], true
}
