// Package serialization implements CLIXML serialization and deserialization.
//
// CLIXML is an XML-based format used by PowerShell to serialize objects for
// transmission over PSRP. This package encodes Go values and objects.PSObject
// graphs into a CLIXML element tree and decodes them back, preserving .NET
// type names, shared references and 100ns temporal precision.
//
// # Supported Types
//
//   - Primitives: string, bool, all fixed width integers, float32/float64,
//     decimal.Decimal, []byte, uuid.UUID, *url.URL, time.Time, time.Duration,
//     objects.Char, objects.Version, objects.XMLDocument, objects.ScriptBlock
//   - Collections: []interface{} and other slices (LST), *objects.Dictionary
//     and maps (DCT), *objects.Stack (STK), *objects.Queue (QUE)
//   - Complex: *objects.PSObject, objects.Enum, objects.RemotingMarshaler,
//     objects.MemberProvider
//   - Special: *objects.SecureString (requires an EncryptionProvider)
//
// # CLIXML Structure
//
// CLIXML documents have the following root structure:
//
//	<Objs Version="1.1.0.1" xmlns="http://schemas.microsoft.com/powershell/2004/04">
//	  <!-- Serialized objects here -->
//	</Objs>
//
// Reference tables (<Ref>, <TNRef>) are scoped to one call: every Serialize
// or Deserialize starts from empty tables, and values passed to one
// SerializeMultipleRaw call share them.
//
// # Type Tags
//
// Common type tags:
//
//	<S>     - String
//	<I32>   - Int32
//	<I64>   - Int64
//	<B>     - Boolean
//	<D>     - Decimal
//	<Db>    - Double
//	<DT>    - DateTime
//	<TS>    - TimeSpan
//	<BA>    - Byte Array (base64)
//	<G>     - GUID
//	<URI>   - URI
//	<SBK>   - ScriptBlock
//	<Nil>   - Null
//	<Obj>   - Complex object
//	<LST>   - List/Array
//	<DCT>   - Dictionary
//	<SS>    - SecureString
//
// # Reference
//
// MS-PSRP Section 2.2.5: https://docs.microsoft.com/en-us/openspecs/windows_protocols/ms-psrp/
package serialization

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sort"
	"strconv"
	"sync"

	"github.com/smnsjas/go-psrpcore/objects"
)

// EncryptionProvider defines the interface for encrypting and decrypting sensitive data.
type EncryptionProvider interface {
	Encrypt(data []byte) ([]byte, error)
	Decrypt(data []byte) ([]byte, error)
}

// Option configures a Serializer or Deserializer.
type Option func(*options)

type options struct {
	cipher   EncryptionProvider
	logger   *slog.Logger
	registry *objects.Registry
	maxDepth int
}

func defaultOptions() options {
	return options{
		logger:   slog.New(slog.DiscardHandler),
		registry: objects.DefaultRegistry(),
		maxDepth: DefaultMaxRecursionDepth,
	}
}

// WithEncryption sets the session cipher used for SecureString values.
func WithEncryption(p EncryptionProvider) Option {
	return func(o *options) {
		o.cipher = p
	}
}

// WithLogger sets the logger for debug records. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRegistry sets the type registry used for rehydration.
func WithRegistry(r *objects.Registry) Option {
	return func(o *options) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithMaxDepth limits the nesting depth accepted by the Deserializer.
func WithMaxDepth(n int) Option {
	return func(o *options) {
		o.maxDepth = n
	}
}

// Serializer encodes Go values to CLIXML.
type Serializer struct {
	opts    options
	buf     bytes.Buffer
	refs    map[interface{}]int // object identity -> RefId
	tnRefs  map[string]int      // most-derived type name -> TN RefId
	nextRef int
}

// pool for serializers
var serializerPool = sync.Pool{
	New: func() interface{} {
		return &Serializer{
			refs:   make(map[interface{}]int, 64),
			tnRefs: make(map[string]int),
		}
	},
}

// NewSerializer creates a new Serializer.
// It retrieves a serializer from the pool. Release it with Close().
func NewSerializer(opts ...Option) *Serializer {
	s := serializerPool.Get().(*Serializer)
	s.Reset()
	for _, opt := range opts {
		opt(&s.opts)
	}
	return s
}

// NewSerializerWithEncryption creates a new Serializer with an encryption provider.
func NewSerializerWithEncryption(encryptor EncryptionProvider) *Serializer {
	return NewSerializer(WithEncryption(encryptor))
}

// Close returns the Serializer to the pool.
func (s *Serializer) Close() {
	if s == nil {
		return
	}
	s.Reset()
	serializerPool.Put(s)
}

// Reset clears the Serializer state for reuse.
func (s *Serializer) Reset() {
	s.buf.Reset()
	s.resetRefs()
	s.opts = defaultOptions()
}

func (s *Serializer) resetRefs() {
	clear(s.refs)
	clear(s.tnRefs)
	s.nextRef = 0
}

// SerializeElement converts a Go value to a CLIXML element tree.
func (s *Serializer) SerializeElement(v interface{}) (*Element, error) {
	s.resetRefs()
	el, err := s.encode(v, "")
	if err != nil {
		return nil, fmt.Errorf("serialize value: %w", err)
	}
	return el, nil
}

// Serialize converts a Go value to CLIXML bytes wrapped in <Objs>.
func (s *Serializer) Serialize(v interface{}) ([]byte, error) {
	el, err := s.SerializeElement(v)
	if err != nil {
		return nil, err
	}
	return s.render(newDocument(el))
}

// SerializeRaw converts a Go value to CLIXML bytes WITHOUT the <Objs> wrapper.
// This is used for PSRP message payloads which expect raw serialized objects.
// Per MS-PSRP, message data contains serialized objects directly, not wrapped in <Objs>.
func (s *Serializer) SerializeRaw(v interface{}) ([]byte, error) {
	el, err := s.SerializeElement(v)
	if err != nil {
		return nil, err
	}
	return s.render(el)
}

// SerializeMultipleRaw serializes multiple values WITHOUT the <Objs> wrapper.
// This is used for PSRP messages that contain multiple sequential objects.
// The values share one set of reference tables.
func (s *Serializer) SerializeMultipleRaw(values ...interface{}) ([]byte, error) {
	s.resetRefs()
	elems := make([]*Element, 0, len(values))
	for i, v := range values {
		el, err := s.encode(v, "")
		if err != nil {
			return nil, fmt.Errorf("serialize value %d: %w", i, err)
		}
		elems = append(elems, el)
	}
	return s.render(elems...)
}

// render writes elements into the pooled buffer and returns a copy, since
// the buffer is reused once the serializer goes back to the pool.
func (s *Serializer) render(elems ...*Element) ([]byte, error) {
	s.buf.Reset()
	for _, el := range elems {
		if err := el.writeTo(&s.buf); err != nil {
			return nil, err
		}
	}
	return append([]byte(nil), s.buf.Bytes()...), nil
}

// isNilReference reports whether v is a typed nil pointer or map, such as a
// nil *objects.SecureString stored in an interface.
func isNilReference(v interface{}) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map:
		return rv.IsNil()
	}
	return false
}

// encode produces the element for v. name, when set, becomes the N attribute.
func (s *Serializer) encode(v interface{}, name string) (*Element, error) {
	if v == nil || isNilReference(v) {
		return named(&Element{Tag: "Nil"}, name), nil
	}

	if ss, ok := v.(*objects.SecureString); ok {
		el, err := s.encodeSecureString(ss)
		if err != nil {
			return nil, err
		}
		return named(el, name), nil
	}
	if tag, text, ok := encodePrimitive(v); ok {
		return named(NewElement(tag, text), name), nil
	}

	key, tracked := identityKey(v)
	if tracked {
		if refID, exists := s.refs[key]; exists {
			el := named(&Element{Tag: "Ref"}, name)
			el.SetAttr("RefId", strconv.Itoa(refID))
			return el, nil
		}
	}

	obj, err := s.toPSObject(v)
	if err != nil {
		return nil, err
	}

	refID := s.nextRef
	s.nextRef++
	if tracked {
		s.refs[key] = refID
	}
	if obj != v {
		s.refs[obj] = refID
	}
	return s.encodeObject(obj, name, refID)
}

func named(el *Element, name string) *Element {
	if name != "" {
		el.SetAttr("N", encodeCLIXMLString(name))
	}
	return el
}

// refKey identifies maps and slices, which are not comparable themselves.
type refKey struct {
	typ reflect.Type
	ptr uintptr
	len int
}

// identityKey returns the key used for reference deduplication. Only values
// with identity (pointers, maps and non-empty slices) are tracked.
func identityKey(v interface{}) (interface{}, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, false
		}
		return v, true
	case reflect.Map:
		if rv.IsNil() {
			return nil, false
		}
		return refKey{typ: rv.Type(), ptr: rv.Pointer()}, true
	case reflect.Slice:
		if rv.Len() == 0 {
			return nil, false
		}
		return refKey{typ: rv.Type(), ptr: rv.Pointer(), len: rv.Len()}, true
	}
	return nil, false
}

// toPSObject normalizes a non-primitive value into the object written on the
// wire, applying the descriptor's to-remoting transform.
func (s *Serializer) toPSObject(v interface{}) (*objects.PSObject, error) {
	var obj *objects.PSObject
	switch val := v.(type) {
	case *objects.PSObject:
		obj = val
	case objects.Enum:
		obj = val.PSObject()
	case *objects.Enum:
		obj = val.PSObject()
	case objects.RemotingMarshaler:
		o, err := val.ToPSObject()
		if err != nil {
			return nil, fmt.Errorf("%T to remoting: %w", v, err)
		}
		obj = o
	case *objects.Dictionary:
		obj = &objects.PSObject{TypeNames: slices.Clone(objects.HashtableTypeNames), BaseObject: val}
	case *objects.Stack:
		obj = &objects.PSObject{TypeNames: slices.Clone(objects.StackTypeNames), BaseObject: val}
	case *objects.Queue:
		obj = &objects.PSObject{TypeNames: slices.Clone(objects.QueueTypeNames), BaseObject: val}
	case []interface{}:
		obj = &objects.PSObject{TypeNames: slices.Clone(objects.ArrayTypeNames), BaseObject: val}
	case objects.MemberProvider:
		obj = objects.NewPSObject()
		for name, value := range val.PSMembers() {
			obj.AddNoteProperty(name, value)
		}
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			obj = &objects.PSObject{TypeNames: slices.Clone(objects.ArrayTypeNames), BaseObject: v}
		case reflect.Map:
			dict, err := mapToDictionary(rv)
			if err != nil {
				return nil, err
			}
			obj = &objects.PSObject{TypeNames: slices.Clone(objects.HashtableTypeNames), BaseObject: dict}
		default:
			return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
		}
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: nil %T", ErrUnsupportedType, v)
	}

	desc := obj.Descriptor()
	if desc == nil || desc.ToRemoting == nil {
		return obj, nil
	}
	out, err := desc.ToRemoting(obj)
	if err != nil {
		return nil, fmt.Errorf("%s to remoting: %w", desc.Name(), err)
	}
	if obj.ToString != "" {
		out.ToString = obj.ToString
	}
	if !slices.Equal(obj.TypeNames, desc.TypeNames) {
		out.TypeNames = slices.Clone(obj.TypeNames)
	}
	return out, nil
}

// mapToDictionary copies a Go map into an ordered dictionary. Keys are
// sorted by their text form so output is deterministic.
func mapToDictionary(rv reflect.Value) (*objects.Dictionary, error) {
	keys := rv.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
	})
	dict := objects.NewDictionary()
	for _, k := range keys {
		if err := dict.Set(k.Interface(), rv.MapIndex(k).Interface()); err != nil {
			return nil, err
		}
	}
	return dict, nil
}

// encodeObject writes an <Obj> element: type names, ToString, the primitive
// or container payload, then adapted (<Props>) and extended (<MS>) members.
func (s *Serializer) encodeObject(obj *objects.PSObject, name string, refID int) (*Element, error) {
	el := named(&Element{Tag: "Obj"}, name)
	el.SetAttr("RefId", strconv.Itoa(refID))

	base := obj.BaseObject
	if e, ok := base.(objects.Enum); ok && e.Type != nil {
		base = e.Type.Primitive(e.Value)
	}
	isEnum := obj.IsEnum()
	kind := objects.ContainerOf(base)
	extendedPrimitive := base != nil && kind == objects.ContainerNone && !isEnum

	if !extendedPrimitive {
		if tn := s.encodeTypeNames(obj.TypeNames); tn != nil {
			el.Append(tn)
		}
		if str := obj.String(); str != "" {
			el.Append(NewElement("ToString", encodeCLIXMLString(str)))
		}
	}

	switch {
	case kind != objects.ContainerNone:
		payload, err := s.encodeContainer(base)
		if err != nil {
			return nil, err
		}
		el.Append(payload)
	case base != nil:
		if !isPrimitive(base) {
			return nil, fmt.Errorf("%w: base object %T", ErrUnsupportedType, base)
		}
		leaf, err := s.encode(base, "")
		if err != nil {
			return nil, err
		}
		el.Append(leaf)
	}

	if err := s.encodeMembers(el, "Props", obj, obj.Adapted()); err != nil {
		return nil, err
	}
	if err := s.encodeMembers(el, "MS", obj, obj.Extended()); err != nil {
		return nil, err
	}
	return el, nil
}

// encodeTypeNames returns <TN> for the first occurrence of a most-derived
// type name in this call and <TNRef> afterwards.
func (s *Serializer) encodeTypeNames(typeNames []string) *Element {
	if len(typeNames) == 0 {
		return nil
	}
	if tnRefID, exists := s.tnRefs[typeNames[0]]; exists {
		return (&Element{Tag: "TNRef"}).SetAttr("RefId", strconv.Itoa(tnRefID))
	}
	tnRefID := len(s.tnRefs)
	s.tnRefs[typeNames[0]] = tnRefID
	tn := (&Element{Tag: "TN"}).SetAttr("RefId", strconv.Itoa(tnRefID))
	for _, name := range typeNames {
		tn.Append(NewElement("T", encodeCLIXMLString(name)))
	}
	return tn
}

func (s *Serializer) encodeMembers(parent *Element, tag string, obj *objects.PSObject, props []*objects.Property) error {
	var block *Element
	for _, p := range props {
		v, err := p.Get(obj)
		if err != nil {
			return fmt.Errorf("serialize property %s: %w", p.Name(), err)
		}
		if v == nil && p.IsOptional() {
			continue
		}
		child, err := s.encode(v, p.Name())
		if err != nil {
			return fmt.Errorf("serialize property %s: %w", p.Name(), err)
		}
		if block == nil {
			block = &Element{Tag: tag}
		}
		block.Append(child)
	}
	if block != nil {
		parent.Append(block)
	}
	return nil
}

// encodeContainer writes the LST, STK, QUE or DCT payload of a container.
func (s *Serializer) encodeContainer(base interface{}) (*Element, error) {
	switch c := base.(type) {
	case *objects.Dictionary:
		dct := &Element{Tag: "DCT"}
		for k, v := range c.All() {
			key, err := s.encode(k, "Key")
			if err != nil {
				return nil, fmt.Errorf("serialize dictionary key: %w", err)
			}
			val, err := s.encode(v, "Value")
			if err != nil {
				return nil, fmt.Errorf("serialize dictionary value for key %v: %w", k, err)
			}
			dct.Append((&Element{Tag: "En"}).Append(key, val))
		}
		return dct, nil

	case *objects.Stack:
		return s.encodeItems("STK", c.Items())

	case *objects.Queue:
		items := c.Drain()
		que, err := s.encodeItems("QUE", items)
		if err != nil {
			c.PushFront(items...)
			return nil, err
		}
		s.opts.logger.Debug("drained queue", "count", len(items))
		return que, nil

	case []interface{}:
		return s.encodeItems("LST", c)
	}

	rv := reflect.ValueOf(base)
	items := make([]interface{}, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return s.encodeItems("LST", items)
}

func (s *Serializer) encodeItems(tag string, items []interface{}) (*Element, error) {
	list := &Element{Tag: tag}
	for i, item := range items {
		el, err := s.encode(item, "")
		if err != nil {
			return nil, fmt.Errorf("serialize %s element %d: %w", tag, i, err)
		}
		list.Append(el)
	}
	return list, nil
}

// encodeSecureString re-encrypts the plaintext (as UTF-16LE) with the
// session cipher.
func (s *Serializer) encodeSecureString(ss *objects.SecureString) (*Element, error) {
	if s.opts.cipher == nil {
		return nil, ErrMissingCipher
	}
	plain, err := ss.Decrypt()
	if err != nil {
		return nil, fmt.Errorf("decrypt secure string: %w", err)
	}
	defer clear(plain)

	wide, err := utf16LE.NewEncoder().Bytes(plain)
	if err != nil {
		return nil, fmt.Errorf("encode secure string: %w", err)
	}
	defer clear(wide)

	data, err := s.opts.cipher.Encrypt(wide)
	if err != nil {
		return nil, fmt.Errorf("encrypt secure string: %w", err)
	}
	return NewElement("SS", base64.StdEncoding.EncodeToString(data)), nil
}
