package psrp

import (
	"github.com/smnsjas/go-psrpcore/serialization"
)

// Marshal serializes values into one CLIXML document. The values share
// reference tables, so an object reached twice is written once.
func Marshal(values ...interface{}) ([]byte, error) {
	return MarshalWith(nil, values...)
}

// MarshalWith is Marshal with serializer options such as a session cipher.
func MarshalWith(opts []serialization.Option, values ...interface{}) ([]byte, error) {
	ser := serialization.NewSerializer(opts...)
	defer ser.Close()

	if len(values) == 1 {
		return ser.Serialize(values[0])
	}
	raw, err := ser.SerializeMultipleRaw(values...)
	if err != nil {
		return nil, err
	}
	doc := []byte(`<Objs Version="` + serialization.CLIXMLVersion + `" xmlns="` + serialization.CLIXMLNamespace + `">`)
	doc = append(doc, raw...)
	return append(doc, "</Objs>"...), nil
}

// Unmarshal decodes a CLIXML document into its top-level values.
func Unmarshal(data []byte, opts ...serialization.Option) ([]interface{}, error) {
	deser := serialization.NewDeserializer(opts...)
	defer deser.Close()
	return deser.Deserialize(data)
}
