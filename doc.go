// Package psrp provides a pure Go implementation of CLIXML, the object
// serialization format of the PowerShell Remoting Protocol.
//
// This library handles the payload layer only, with no transport, fragment
// or runspace code. Message payloads produced here are carried by whatever
// PSRP transport the consumer provides (WSMan, SSH, OutOfProc, etc.).
//
// # Architecture
//
// The library is organized into layers:
//
//   - objects: PSObject model, type registry, enums, containers, SecureString
//   - serialization: CLIXML serializer and deserializer with reference tables
//   - messages: PSRP message types and the records their payloads carry
//   - sessionkey: AES session cipher used for SecureString values
//
// # Basic Usage
//
//	data, err := psrp.Marshal(map[string]interface{}{"Name": "svc", "Count": 3})
//	if err != nil {
//	    return err
//	}
//
//	values, err := psrp.Unmarshal(data)
//
// # Reference
//
// Protocol specification: https://docs.microsoft.com/en-us/openspecs/windows_protocols/ms-psrp/
package psrp

// Version is the library version.
const Version = "0.1.0-dev"
