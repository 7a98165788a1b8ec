package codec

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("codec")

const fullName = string(ProfileFull)

// envelope carries the value as an interface so that gob transmits its concrete type
type envelope struct {
	V any
}

func init() {
	// containers and types that are not registered by gob itself
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register(time.Time{})
}

// Register makes a concrete type known to the full-fidelity profile.
// Every custom type stored through the full profile must be registered once
// (typically in an init function), exactly like with encoding/gob.
// Types implementing gob.GobEncoder or encoding.BinaryMarshaler control their own encoding.
func Register(value any) {
	gob.Register(value)
	log.Debugf("registered %T for the full profile", value)
}

// RegisterName is like Register but uses the provided name for the type
func RegisterName(name string, value any) {
	gob.RegisterName(name, value)
	log.Debugf("registered %T as %q for the full profile", value, name)
}

// Full returns the full-fidelity pair. It supports arbitrary object graphs of
// registered types using Go's gob encoding.
//
// Note: the output is deterministic for values without maps. Maps are encoded in
// iteration order, the decoded value is still equivalent. A top-level byte slice
// always decodes non-nil, gob does not distinguish empty from nil slices.
func Full() Pair {
	return Pair{
		Name:        fullName,
		Serialize:   gobSerialize,
		Deserialize: gobDeserialize,
	}
}

// --------------------------------------------------------------------------
// Implementation
// --------------------------------------------------------------------------

func gobSerialize(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(&envelope{V: v}); err != nil {
		return nil, &SerializationError{Profile: fullName, Err: err}
	}
	return buf.Bytes(), nil
}

func gobDeserialize(b []byte) (any, error) {
	var env envelope
	dec := gob.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&env); err != nil {
		return nil, &DeserializationError{Profile: fullName, Err: err}
	}
	if b, ok := env.V.([]byte); ok && b == nil {
		return []byte{}, nil
	}
	return env.V, nil
}
