package serialization

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedType is returned for unsupported types.
	ErrUnsupportedType = errors.New("unsupported type")
	// ErrInvalidCLIXML is returned for malformed CLIXML.
	ErrInvalidCLIXML = errors.New("invalid CLIXML")
	// ErrMaxRecursionDepth is returned when recursion depth limit is exceeded.
	ErrMaxRecursionDepth = errors.New("maximum recursion depth exceeded")
	// ErrMissingCipher is returned when a SecureString is encoded or decoded
	// without an EncryptionProvider.
	ErrMissingCipher = errors.New("no cipher configured for secure string")
	// ErrInvalidDuration is returned for TimeSpan text outside the duration grammar.
	ErrInvalidDuration = errors.New("invalid duration")
	// ErrInvalidDateTime is returned for DateTime text that does not parse.
	ErrInvalidDateTime = errors.New("invalid datetime")
	// ErrUnknownElement is returned for an element that is neither a known
	// primitive tag nor Obj/Ref.
	ErrUnknownElement = errors.New("unknown element")
	// ErrUnresolvedReference is returned for a Ref or TNRef whose RefId was
	// never recorded in the current call.
	ErrUnresolvedReference = errors.New("unresolved reference")
)

// ValueError reports primitive text that could not be decoded.
type ValueError struct {
	// Type is the element tag, e.g. "TS" or "I32".
	Type string
	Text string
	Err  error
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("invalid <%s> value %q: %v", e.Type, e.Text, e.Err)
}

func (e *ValueError) Unwrap() error { return e.Err }
