// Package objects defines the PowerShell object model used by CLIXML.
//
// Every structured value is a PSObject: an ordered type name chain, adapted
// properties (native to the remote type) and extended properties (added on
// top of them). Types are declared through a TypeDescriptor and registered
// so that the deserializer can rehydrate them from their type name alone.
//
// # Declaring a type
//
//	var fooType = objects.Register(&objects.TypeDescriptor{
//		TypeNames: []string{"My.Foo", "System.Object"},
//		Adapted: []*objects.Property{
//			objects.NewNoteProperty("Name", nil, objects.Mandatory(), objects.WithCoercion(objects.CoerceString)),
//			objects.NewNoteProperty("Comment", nil, objects.Optional()),
//		},
//	})
//
//	foo, err := fooType.New(map[string]interface{}{"Name": "bar"})
//
// # Primitive wrappers
//
// Char, Version, ScriptBlock, XMLDocument and SecureString cover the CLIXML
// primitives that have no direct Go counterpart.
//
// # Reference
//
// MS-PSRP Section 2.2.5: https://docs.microsoft.com/en-us/openspecs/windows_protocols/ms-psrp/
package objects

import (
	"fmt"
	"iter"
	"strconv"
	"strings"
)

// RemotingMarshaler is implemented by Go types that know how to present
// themselves as a PSObject on the wire.
type RemotingMarshaler interface {
	ToPSObject() (*PSObject, error)
}

// MemberProvider is implemented by ad hoc records that expose their members
// for serialization. Members are written as extended properties of a
// PSCustomObject in iteration order.
type MemberProvider interface {
	PSMembers() iter.Seq2[string, interface{}]
}

// Char is a single UTF-16 code unit (System.Char).
type Char uint16

// String returns the character as text.
func (c Char) String() string { return string(rune(c)) }

// Version is a four part System.Version. Unset Build and Revision parts
// are -1.
type Version struct {
	Major    int32
	Minor    int32
	Build    int32
	Revision int32
}

// NewVersion creates a version from two to four parts.
func NewVersion(parts ...int32) Version {
	v := Version{Build: -1, Revision: -1}
	for i, p := range parts {
		switch i {
		case 0:
			v.Major = p
		case 1:
			v.Minor = p
		case 2:
			v.Build = p
		case 3:
			v.Revision = p
		}
	}
	return v
}

// String returns the dotted form, omitting unset trailing parts.
func (v Version) String() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(int(v.Major)))
	b.WriteByte('.')
	b.WriteString(strconv.Itoa(int(v.Minor)))
	if v.Build >= 0 {
		b.WriteByte('.')
		b.WriteString(strconv.Itoa(int(v.Build)))
		if v.Revision >= 0 {
			b.WriteByte('.')
			b.WriteString(strconv.Itoa(int(v.Revision)))
		}
	}
	return b.String()
}

// ParseVersion parses "major.minor[.build[.revision]]".
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 || len(parts) > 4 {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}
	nums := make([]int32, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 32)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("invalid version %q", s)
		}
		nums[i] = int32(n)
	}
	return NewVersion(nums...), nil
}

// ScriptBlock represents a PowerShell ScriptBlock.
// Serialization: <SBK>text</SBK>
type ScriptBlock struct {
	Text string
}

// String returns the script block text.
func (s ScriptBlock) String() string {
	return s.Text
}

// XMLDocument is an XML fragment carried verbatim (<XD>).
type XMLDocument string
