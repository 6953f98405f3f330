package objects

import (
	"slices"
	"sync"
)

// DeserializedPrefix is prepended to every type name of an object whose type
// is not registered locally.
const DeserializedPrefix = "Deserialized."

// Registry maps canonical type names to descriptors used for rehydration,
// and PSRP message type identifiers to their record descriptors.
//
// Registration is first-writer-wins and safe for concurrent use; lookups
// never observe a partially registered entry.
type Registry struct {
	types    sync.Map // string -> *TypeDescriptor
	messages sync.Map // uint32 -> *TypeDescriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry every package-level
// registration writes to.
func DefaultRegistry() *Registry { return defaultRegistry }

// Register adds desc under its most-derived type name and returns the
// descriptor that is registered, which is an earlier registration when one
// exists. Descriptors with NoRehydrate set are returned unregistered.
// Register panics on an invalid descriptor, since descriptors are declared
// at initialization.
func (r *Registry) Register(desc *TypeDescriptor) *TypeDescriptor {
	if err := desc.validate(); err != nil {
		panic("objects: register: " + err.Error())
	}
	if desc.NoRehydrate {
		return desc
	}
	actual, _ := r.types.LoadOrStore(desc.Name(), desc)
	return actual.(*TypeDescriptor)
}

// RegisterFactory registers factory as the blank-instance constructor for
// name. It reports whether the registration took effect.
func (r *Registry) RegisterFactory(name string, factory Factory) bool {
	desc := &TypeDescriptor{TypeNames: []string{name}, factory: factory}
	_, loaded := r.types.LoadOrStore(name, desc)
	return !loaded
}

// Lookup returns the descriptor registered for name. A closed generic name
// falls back to its open base registration.
func (r *Registry) Lookup(name string) (*TypeDescriptor, bool) {
	if d, ok := r.types.Load(name); ok {
		return d.(*TypeDescriptor), true
	}
	if base, ok := genericBase(name); ok {
		if d, ok := r.types.Load(base); ok {
			return d.(*TypeDescriptor), true
		}
	}
	return nil, false
}

// Rehydrate produces a blank instance for a serialized type name chain. When
// the most-derived name is registered the instance comes from its
// descriptor and carries typeNames as given. Otherwise the result is a
// generic object whose chain is every name prefixed with "Deserialized.",
// including names that already carry the prefix.
func (r *Registry) Rehydrate(typeNames []string) *PSObject {
	if len(typeNames) > 0 {
		if d, ok := r.Lookup(typeNames[0]); ok {
			obj := d.Blank()
			obj.TypeNames = slices.Clone(typeNames)
			return obj
		}
	}
	names := make([]string, len(typeNames))
	for i, tn := range typeNames {
		names[i] = DeserializedPrefix + tn
	}
	return &PSObject{TypeNames: names}
}

// RegisterMessage adds desc for a PSRP message type identifier. It reports
// whether the registration took effect.
func (r *Registry) RegisterMessage(id uint32, desc *TypeDescriptor) bool {
	if err := desc.validate(); err != nil {
		panic("objects: register message: " + err.Error())
	}
	_, loaded := r.messages.LoadOrStore(id, desc)
	return !loaded
}

// Message returns the descriptor registered for a message type identifier.
func (r *Registry) Message(id uint32) (*TypeDescriptor, bool) {
	d, ok := r.messages.Load(id)
	if !ok {
		return nil, false
	}
	return d.(*TypeDescriptor), true
}

// Register adds desc to the default registry.
func Register(desc *TypeDescriptor) *TypeDescriptor { return defaultRegistry.Register(desc) }

// RegisterFactory adds a factory to the default registry.
func RegisterFactory(name string, factory Factory) bool {
	return defaultRegistry.RegisterFactory(name, factory)
}

// RegisterMessage adds a message descriptor to the default registry.
func RegisterMessage(id uint32, desc *TypeDescriptor) bool {
	return defaultRegistry.RegisterMessage(id, desc)
}

// Lookup finds a descriptor in the default registry.
func Lookup(name string) (*TypeDescriptor, bool) { return defaultRegistry.Lookup(name) }

// Rehydrate produces a blank instance from the default registry.
func Rehydrate(typeNames []string) *PSObject { return defaultRegistry.Rehydrate(typeNames) }
