package codec

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Function Types
// --------------------------------------------------------------------------

// Serializer converts a value into bytes.
// It must be pure and deterministic for a given value.
type Serializer func(v any) ([]byte, error)

// Deserializer converts bytes produced by the matching Serializer back into a value.
type Deserializer func(data []byte) (any, error)

// Pair is a matched serializer/deserializer pair.
// For every value v the pair can represent, Deserialize(Serialize(v)) is equivalent to v.
type Pair struct {
	Name        string // Name used for logging and diagnostics
	Serialize   Serializer
	Deserialize Deserializer
}

// Valid reports whether both functions of the pair are set
func (p Pair) Valid() bool {
	return p.Serialize != nil && p.Deserialize != nil
}

// String returns the name of the pair
func (p Pair) String() string {
	if p.Name == "" {
		return "custom"
	}
	return p.Name
}

// --------------------------------------------------------------------------
// Profiles (built-in pairs)
// --------------------------------------------------------------------------

// Profile identifies one of the built-in codec pairs
type Profile string

const (
	ProfileFull       Profile = "full"       // gob based object graph encoding (default)
	ProfileRestricted Profile = "restricted" // closed set of primitive kinds, compact binary encoding
	ProfileTimestamp  Profile = "timestamp"  // fixed width encoding of a single time.Time
)

// ParseProfile converts a string (e.g. from a flag) to a Profile
func ParseProfile(s string) (Profile, error) {
	switch Profile(strings.ToLower(strings.TrimSpace(s))) {
	case ProfileFull, "":
		return ProfileFull, nil
	case ProfileRestricted:
		return ProfileRestricted, nil
	case ProfileTimestamp:
		return ProfileTimestamp, nil
	default:
		return "", fmt.Errorf("invalid codec profile %q (expected one of: full, restricted, timestamp)", s)
	}
}

// Pair returns the built-in pair of the profile
func (p Profile) Pair() (Pair, error) {
	switch p {
	case ProfileFull:
		return Full(), nil
	case ProfileRestricted:
		return Restricted(), nil
	case ProfileTimestamp:
		return Timestamp(), nil
	default:
		return Pair{}, fmt.Errorf("unknown codec profile %q", string(p))
	}
}

// --------------------------------------------------------------------------
// Config (codecs used by a database)
// --------------------------------------------------------------------------

// Config holds the codec pairs of a database: one for objects (primary values)
// and one for metadata. A Config is immutable once handed to a database.
type Config struct {
	Object   Pair
	Metadata Pair
}

// Default returns the configuration used when no codecs are given:
// the full-fidelity profile for objects and metadata.
func Default() Config {
	return Config{
		Object:   Full(),
		Metadata: Full(),
	}
}

// Shared uses the given serializer and deserializer for both objects and metadata.
func Shared(serializer Serializer, deserializer Deserializer) Config {
	p := Pair{Name: "custom", Serialize: serializer, Deserialize: deserializer}
	return Config{
		Object:   p,
		Metadata: p,
	}
}

// Separate uses independent pairs for objects and metadata.
func Separate(objectSerializer Serializer, objectDeserializer Deserializer,
	metadataSerializer Serializer, metadataDeserializer Deserializer) Config {
	return Config{
		Object:   Pair{Name: "custom", Serialize: objectSerializer, Deserialize: objectDeserializer},
		Metadata: Pair{Name: "custom", Serialize: metadataSerializer, Deserialize: metadataDeserializer},
	}
}

// FromProfiles builds a Config from two built-in profiles
func FromProfiles(object, metadata Profile) (Config, error) {
	objPair, err := object.Pair()
	if err != nil {
		return Config{}, err
	}
	metaPair, err := metadata.Pair()
	if err != nil {
		return Config{}, err
	}
	return Config{Object: objPair, Metadata: metaPair}, nil
}

// Validate checks that every function of the configuration is set.
// A zero Config is not valid, use Default() instead.
func (c Config) Validate() error {
	if !c.Object.Valid() {
		return fmt.Errorf("object codec %s: serializer and deserializer must both be set", c.Object)
	}
	if !c.Metadata.Valid() {
		return fmt.Errorf("metadata codec %s: serializer and deserializer must both be set", c.Metadata)
	}
	return nil
}

// IsZero reports whether no codec function has been configured at all
func (c Config) IsZero() bool {
	return c.Object.Serialize == nil && c.Object.Deserialize == nil &&
		c.Metadata.Serialize == nil && c.Metadata.Deserialize == nil
}
