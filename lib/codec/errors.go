package codec

import (
	"errors"
	"fmt"
)

var errNestingTooDeep = errors.New("value nesting too deep")

// UnsupportedTypeError is returned when a profile is asked to serialize a value
// outside of its representable domain. No bytes are produced in that case.
type UnsupportedTypeError struct {
	Profile string
	Type    string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("codec %s: unsupported type %s", e.Profile, e.Type)
}

// SerializationError wraps a failure of a serializer
type SerializationError struct {
	Profile string
	Err     error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("codec %s: serialization failed: %v", e.Profile, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// DeserializationError wraps a failure of a deserializer (usually malformed bytes)
type DeserializationError struct {
	Profile string
	Err     error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("codec %s: deserialization failed: %v", e.Profile, e.Err)
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}

// unsupported creates an UnsupportedTypeError for the value v
func unsupported(profile string, v any) error {
	return &UnsupportedTypeError{Profile: profile, Type: fmt.Sprintf("%T", v)}
}

// malformed creates a DeserializationError with a formatted message
func malformed(profile string, format string, args ...any) error {
	return &DeserializationError{Profile: profile, Err: fmt.Errorf(format, args...)}
}
