package messages

import (
	"errors"
	"fmt"

	"github.com/smnsjas/go-psrpcore/objects"
	"github.com/smnsjas/go-psrpcore/serialization"
)

var (
	// ErrUnknownMessageType is returned for a message type with no registered record.
	ErrUnknownMessageType = errors.New("unknown message type")
	// ErrInvalidMessage is returned when a payload does not hold exactly one
	// record of the expected shape.
	ErrInvalidMessage = errors.New("invalid message payload")
)

// Versions announced in SESSION_CAPABILITY.
var (
	ProtocolVersion      = objects.NewVersion(2, 3)
	PSVersion            = objects.NewVersion(2, 0)
	SerializationVersion = objects.NewVersion(1, 1, 0, 1)
)

// Message-only records are anonymous PSCustomObjects. The chain satisfies the
// registry; Marshal drops it so no <TN> is written.
var recordTypeNames = []string{"System.Management.Automation.PSCustomObject", "System.Object"}

func coerceVersion(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case objects.Version:
		return val, nil
	case *objects.Version:
		if val != nil {
			return *val, nil
		}
	case string:
		return objects.ParseVersion(val)
	}
	return nil, fmt.Errorf("cannot convert %T to version", v)
}

func record(props ...*objects.Property) *objects.TypeDescriptor {
	return &objects.TypeDescriptor{
		TypeNames:   recordTypeNames,
		Extended:    props,
		NoRehydrate: true,
	}
}

// callID is the ci member that pairs a request with its response.
func callID() *objects.Property {
	return objects.NewNoteProperty("ci", nil, objects.Mandatory(), objects.WithCoercion(objects.CoerceInt64))
}

func init() {
	for t, desc := range map[MessageType]*objects.TypeDescriptor{
		MessageTypeSessionCapability: record(
			objects.NewNoteProperty("protocolversion", nil, objects.Mandatory(), objects.WithCoercion(coerceVersion)),
			objects.NewNoteProperty("PSVersion", nil, objects.Mandatory(), objects.WithCoercion(coerceVersion)),
			objects.NewNoteProperty("SerializationVersion", nil, objects.Mandatory(), objects.WithCoercion(coerceVersion)),
			objects.NewNoteProperty("TimeZone", nil, objects.Optional()),
		),
		MessageTypePublicKey: record(
			objects.NewNoteProperty("PublicKey", nil, objects.Mandatory(), objects.WithCoercion(objects.CoerceString)),
		),
		MessageTypeEncryptedSessionKey: record(
			objects.NewNoteProperty("EncryptedSessionKey", nil, objects.Mandatory(), objects.WithCoercion(objects.CoerceString)),
		),
		MessageTypeSetMaxRunspaces: record(
			objects.NewNoteProperty("MaxRunspaces", nil, objects.Mandatory(), objects.WithCoercion(objects.CoerceInt32)),
			callID(),
		),
		MessageTypeSetMinRunspaces: record(
			objects.NewNoteProperty("MinRunspaces", nil, objects.Mandatory(), objects.WithCoercion(objects.CoerceInt32)),
			callID(),
		),
		MessageTypeRunspaceAvailability: record(
			objects.NewNoteProperty("SetMinMaxRunspacesResponse", nil, objects.Mandatory()),
			callID(),
		),
		MessageTypeRunspacePoolState: record(
			objects.NewNoteProperty("RunspaceState", nil, objects.Mandatory(), objects.WithCoercion(objects.CoerceInt32)),
			objects.NewNoteProperty("ExceptionAsErrorRecord", nil, objects.Optional()),
		),
		MessageTypePipelineState: record(
			objects.NewNoteProperty("PipelineState", nil, objects.Mandatory(), objects.WithCoercion(objects.CoerceInt32)),
			objects.NewNoteProperty("ExceptionAsErrorRecord", nil, objects.Optional()),
		),
		MessageTypeProgressRecord: objects.ProgressRecordObjectType,
	} {
		objects.RegisterMessage(uint32(t), desc)
	}
}

// Descriptor returns the record declared for a message type.
func Descriptor(t MessageType) (*objects.TypeDescriptor, bool) {
	return objects.DefaultRegistry().Message(uint32(t))
}

// Marshal builds the record of message type t from values and serializes it
// as a raw message payload. Mandatory members must be present; values are
// coerced to their declared types.
func Marshal(t MessageType, values map[string]interface{}, opts ...serialization.Option) ([]byte, error) {
	desc, ok := Descriptor(t)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, t)
	}
	obj, err := desc.New(values)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", t, err)
	}
	if desc.NoRehydrate {
		obj.TypeNames = nil
	}

	ser := serialization.NewSerializer(opts...)
	defer ser.Close()
	data, err := ser.SerializeRaw(obj)
	if err != nil {
		return nil, fmt.Errorf("serialize %s: %w", t, err)
	}
	return data, nil
}

// Unmarshal decodes the payload of a message of type t. Anonymous records are
// returned as a *objects.PSObject carrying the declared members; registered
// types are returned as their rehydrated value.
func Unmarshal(t MessageType, data []byte, opts ...serialization.Option) (interface{}, error) {
	desc, ok := Descriptor(t)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, t)
	}

	deser := serialization.NewDeserializer(opts...)
	defer deser.Close()
	results, err := deser.Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("deserialize %s: %w", t, err)
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("%w: %s holds %d objects", ErrInvalidMessage, t, len(results))
	}
	if !desc.NoRehydrate {
		return results[0], nil
	}

	src, ok := results[0].(*objects.PSObject)
	if !ok {
		return nil, fmt.Errorf("%w: %s payload is %T", ErrInvalidMessage, t, results[0])
	}
	obj := desc.Blank()
	for _, list := range [][]*objects.Property{src.Adapted(), src.Extended()} {
		for _, p := range list {
			v, err := p.Get(src)
			if err != nil {
				return nil, fmt.Errorf("%s member %s: %w", t, p.Name(), err)
			}
			obj.Restore(p.Name(), v, false)
		}
	}
	for _, p := range obj.Extended() {
		if p.IsMandatory() && src.Property(p.Name()) == nil {
			return nil, fmt.Errorf("%w: %s: %w: %s", ErrInvalidMessage, t, objects.ErrMandatoryProperty, p.Name())
		}
	}
	return obj, nil
}
