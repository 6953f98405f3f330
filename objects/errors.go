package objects

import "errors"

var (
	// ErrReadOnlyProperty is returned when setting an alias property or a
	// script property without a setter.
	ErrReadOnlyProperty = errors.New("property is read-only")
	// ErrPropertyExists is returned by AddMember when a property of the same
	// name is already present and force was not requested.
	ErrPropertyExists = errors.New("property already exists")
	// ErrPropertyNotFound is returned when a named property does not exist.
	ErrPropertyNotFound = errors.New("property not found")
	// ErrMandatoryProperty is returned when a descriptor builder is missing a
	// mandatory property value.
	ErrMandatoryProperty = errors.New("missing mandatory property")
	// ErrInvalidProperty is returned for a property that violates its kind's
	// construction rules, such as a script property without a getter.
	ErrInvalidProperty = errors.New("invalid property definition")
	// ErrInvalidEnumValue is returned when a label does not belong to an enum.
	ErrInvalidEnumValue = errors.New("invalid enum value")
	// ErrUncomparableKey is returned when a dictionary key cannot be hashed.
	ErrUncomparableKey = errors.New("dictionary key is not comparable")
)
