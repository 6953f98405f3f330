package serialization

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/smnsjas/go-psrpcore/objects"
)

const (
	// DefaultMaxRecursionDepth is the default limit for CLIXML nesting depth
	DefaultMaxRecursionDepth = 100
)

// utf8BOM is stripped from the start of a document.
var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// Deserializer decodes CLIXML to Go values.
type Deserializer struct {
	opts   options
	refs   map[int]interface{} // RefId -> decoded object
	tnRefs map[int][]string    // TN RefId -> type name chain
	depth  int                 // Current recursion depth
}

// pool for deserializers
var deserializerPool = sync.Pool{
	New: func() interface{} {
		return &Deserializer{
			refs:   make(map[int]interface{}, 64),
			tnRefs: make(map[int][]string),
		}
	},
}

// NewDeserializer creates a new Deserializer with default recursion limit.
// It retrieves a deserializer from the pool. Release it with Close().
func NewDeserializer(opts ...Option) *Deserializer {
	d := deserializerPool.Get().(*Deserializer)
	d.Reset()
	for _, opt := range opts {
		opt(&d.opts)
	}
	if d.opts.maxDepth <= 0 {
		d.opts.maxDepth = DefaultMaxRecursionDepth
	}
	return d
}

// NewDeserializerWithEncryption creates a new Deserializer with an encryption provider.
func NewDeserializerWithEncryption(decryptor EncryptionProvider) *Deserializer {
	return NewDeserializer(WithEncryption(decryptor))
}

// NewDeserializerWithMaxDepth creates a new Deserializer with custom recursion limit.
func NewDeserializerWithMaxDepth(maxDepth int) *Deserializer {
	return NewDeserializer(WithMaxDepth(maxDepth))
}

// NewDeserializerWithMaxDepthAndEncryption creates a new Deserializer with custom settings.
func NewDeserializerWithMaxDepthAndEncryption(maxDepth int, decryptor EncryptionProvider) *Deserializer {
	return NewDeserializer(WithMaxDepth(maxDepth), WithEncryption(decryptor))
}

// Close returns the Deserializer to the pool.
func (d *Deserializer) Close() {
	if d == nil {
		return
	}
	d.Reset()
	deserializerPool.Put(d)
}

// Reset clears the Deserializer state.
func (d *Deserializer) Reset() {
	d.resetRefs()
	d.opts = defaultOptions()
}

func (d *Deserializer) resetRefs() {
	clear(d.refs)
	clear(d.tnRefs)
	d.depth = 0
}

// Deserialize converts CLIXML bytes to Go values. An <Objs> root yields one
// value per child, decoded with shared reference tables; any other root
// element is decoded as a single value.
func (d *Deserializer) Deserialize(data []byte) ([]interface{}, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	root, err := ParseElement(data)
	if err != nil {
		return nil, err
	}

	d.resetRefs()
	if root.Tag != "Objs" {
		v, err := d.decode(root)
		if err != nil {
			return nil, err
		}
		return []interface{}{v}, nil
	}

	results := make([]interface{}, 0, len(root.Children))
	for i, child := range root.Children {
		v, err := d.decode(child)
		if err != nil {
			return nil, fmt.Errorf("deserialize object %d: %w", i, err)
		}
		results = append(results, v)
	}
	return results, nil
}

// DeserializeElement decodes one element tree with fresh reference tables.
func (d *Deserializer) DeserializeElement(el *Element) (interface{}, error) {
	if el == nil {
		return nil, fmt.Errorf("%w: nil element", ErrInvalidCLIXML)
	}
	d.resetRefs()
	return d.decode(el)
}

func (d *Deserializer) decode(el *Element) (interface{}, error) {
	// Check recursion depth before processing complex types
	if d.depth >= d.opts.maxDepth {
		return nil, fmt.Errorf("%w: depth %d", ErrMaxRecursionDepth, d.opts.maxDepth)
	}

	switch el.Tag {
	case "Nil":
		return nil, nil

	case "Ref":
		id, ok, err := el.refID()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: <Ref> without RefId", ErrInvalidCLIXML)
		}
		v, exists := d.refs[id]
		if !exists {
			return nil, fmt.Errorf("%w: object RefId %d", ErrUnresolvedReference, id)
		}
		return v, nil

	case "Obj":
		d.depth++
		defer func() { d.depth-- }()
		return d.decodeObject(el)

	case "SS":
		return d.decodeSecureString(el.Text)
	}

	p, ok := primitives[el.Tag]
	if !ok {
		return nil, fmt.Errorf("%w: <%s>", ErrUnknownElement, el.Tag)
	}
	v, err := p.decode(el.Text)
	if err != nil {
		var ve *ValueError
		if errors.As(err, &ve) {
			return nil, err
		}
		return nil, &ValueError{Type: el.Tag, Text: el.Text, Err: err}
	}
	return v, nil
}

// decodeObject rebuilds an <Obj>. Its RefId is recorded before any child is
// decoded so that nested <Ref> elements can point back at it; property
// blocks are applied after the payload.
func (d *Deserializer) decodeObject(el *Element) (interface{}, error) {
	typeNames, err := d.readTypeNames(el)
	if err != nil {
		return nil, err
	}

	obj := d.opts.registry.Rehydrate(typeNames)
	if len(typeNames) > 0 {
		switch desc := obj.Descriptor(); {
		case desc == nil:
			d.opts.logger.Debug("rehydrated unregistered type", "type", typeNames[0])
		case desc.Name() != typeNames[0]:
			d.opts.logger.Debug("degraded generic type", "type", typeNames[0], "base", desc.Name())
		}
	}

	refID, hasRef, err := el.refID()
	if err != nil {
		return nil, err
	}
	if hasRef {
		d.refs[refID] = obj
	}

	var deferred []*Element
	for _, child := range el.Children {
		switch child.Tag {
		case "TN", "TNRef":
			// already read

		case "ToString":
			obj.ToString = decodeCLIXMLString(child.Text)

		case "Props", "MS":
			deferred = append(deferred, child)

		case "LST":
			items, err := d.decodeItems(child)
			if err != nil {
				return nil, err
			}
			obj.BaseObject = items

		case "STK":
			items, err := d.decodeItems(child)
			if err != nil {
				return nil, err
			}
			stack, ok := obj.BaseObject.(*objects.Stack)
			if !ok {
				stack = objects.NewStack()
			}
			for _, item := range items {
				stack.Push(item)
			}
			obj.BaseObject = stack

		case "QUE":
			items, err := d.decodeItems(child)
			if err != nil {
				return nil, err
			}
			queue, ok := obj.BaseObject.(*objects.Queue)
			if !ok {
				queue = objects.NewQueue()
			}
			for _, item := range items {
				queue.Enqueue(item)
			}
			obj.BaseObject = queue

		case "DCT":
			dict, ok := obj.BaseObject.(*objects.Dictionary)
			if !ok {
				dict = objects.NewDictionary()
			}
			if err := d.decodeDictionary(child, dict); err != nil {
				return nil, err
			}
			obj.BaseObject = dict

		default:
			// Extended primitive or enum payload.
			v, err := d.decode(child)
			if err != nil {
				return nil, err
			}
			obj.BaseObject = v
			if len(obj.TypeNames) == 0 {
				if p, ok := primitives[child.Tag]; ok {
					obj.TypeNames = p.typeNames()
				}
			}
		}
	}

	for _, block := range deferred {
		adapted := block.Tag == "Props"
		for _, prop := range block.Children {
			name, ok := prop.AttrValue("N")
			if !ok {
				return nil, fmt.Errorf("%w: <%s> member without N", ErrInvalidCLIXML, prop.Tag)
			}
			name = decodeCLIXMLString(name)
			v, err := d.decode(prop)
			if err != nil {
				return nil, fmt.Errorf("deserialize property %s: %w", name, err)
			}
			obj.Restore(name, v, adapted)
		}
	}

	desc := obj.Descriptor()
	if desc == nil || desc.FromRemoting == nil {
		return obj, nil
	}
	v, err := desc.FromRemoting(obj)
	if err != nil {
		return nil, fmt.Errorf("%s from remoting: %w", desc.Name(), err)
	}
	if hasRef {
		d.refs[refID] = v
	}
	return v, nil
}

// readTypeNames returns the chain named by the object's <TN> or <TNRef>.
// An object with neither has an empty chain.
func (d *Deserializer) readTypeNames(el *Element) ([]string, error) {
	if tn := el.Child("TN"); tn != nil {
		names := make([]string, 0, len(tn.Children))
		for _, t := range tn.Children {
			if t.Tag == "T" {
				names = append(names, decodeCLIXMLString(t.Text))
			}
		}
		id, ok, err := tn.refID()
		if err != nil {
			return nil, err
		}
		if ok {
			d.tnRefs[id] = names
		}
		return names, nil
	}

	if ref := el.Child("TNRef"); ref != nil {
		id, ok, err := ref.refID()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: <TNRef> without RefId", ErrInvalidCLIXML)
		}
		names, exists := d.tnRefs[id]
		if !exists {
			return nil, fmt.Errorf("%w: type name RefId %d", ErrUnresolvedReference, id)
		}
		return append([]string(nil), names...), nil
	}
	return nil, nil
}

func (d *Deserializer) decodeItems(el *Element) ([]interface{}, error) {
	items := make([]interface{}, 0, len(el.Children))
	for i, child := range el.Children {
		v, err := d.decode(child)
		if err != nil {
			return nil, fmt.Errorf("deserialize %s element %d: %w", el.Tag, i, err)
		}
		items = append(items, v)
	}
	return items, nil
}

// decodeDictionary reads <En> entries whose children are named Key and Value.
func (d *Deserializer) decodeDictionary(el *Element, dict *objects.Dictionary) error {
	for i, en := range el.Children {
		if en.Tag != "En" {
			return fmt.Errorf("%w: <%s> in <DCT>", ErrInvalidCLIXML, en.Tag)
		}
		var key, value interface{}
		var hasKey bool
		for _, part := range en.Children {
			n, _ := part.AttrValue("N")
			v, err := d.decode(part)
			if err != nil {
				return fmt.Errorf("deserialize dictionary entry %d: %w", i, err)
			}
			switch n {
			case "Key":
				key, hasKey = v, true
			case "Value":
				value = v
			}
		}
		if !hasKey {
			return fmt.Errorf("%w: dictionary entry %d has no key", ErrInvalidCLIXML, i)
		}
		if err := dict.Set(key, value); err != nil {
			return fmt.Errorf("%w: dictionary entry %d: %w", ErrInvalidCLIXML, i, err)
		}
	}
	return nil
}

// decodeSecureString decrypts an <SS> payload with the session cipher and
// re-protects the UTF-16LE plaintext in memory.
func (d *Deserializer) decodeSecureString(text string) (interface{}, error) {
	if d.opts.cipher == nil {
		return nil, ErrMissingCipher
	}
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, &ValueError{Type: "SS", Text: text, Err: err}
	}
	wide, err := d.opts.cipher.Decrypt(data)
	if err != nil {
		return nil, fmt.Errorf("decrypt secure string: %w", err)
	}
	defer clear(wide)

	plain, err := utf16LE.NewDecoder().Bytes(wide)
	if err != nil {
		return nil, fmt.Errorf("decode secure string: %w", err)
	}
	ss, err := objects.NewSecureStringFromBytes(plain)
	if err != nil {
		return nil, fmt.Errorf("protect secure string: %w", err)
	}
	return ss, nil
}
