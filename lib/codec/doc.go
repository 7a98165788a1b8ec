// Package codec provides the serializer/deserializer pairs used by a database
// to turn objects and metadata into bytes and back.
//
// The package focuses on:
//   - Treating serializers as plain function values that can be swapped freely
//   - Offering built-in profiles with different trade-offs
//   - Keeping the round trip law: Deserialize(Serialize(v)) is equivalent to v
//
// Key Components:
//
//   - Pair: A matched Serializer and Deserializer plus a name for diagnostics.
//
//   - Config: The two pairs of a database, one for objects (primary values) and one
//     for metadata. A Config is built in one of three ways, matching the
//     construction forms of a database:
//     1. Default() - the full-fidelity profile for both
//     2. Shared(serializer, deserializer) - one custom pair used for both
//     3. Separate(objSer, objDeser, metaSer, metaDeser) - independent pairs
//     FromProfiles(object, metadata) selects built-in profiles by name.
//
//   - Full: gob based encoding of arbitrary object graphs. Custom types must be
//     registered with Register. Types implementing gob.GobEncoder or
//     encoding.BinaryMarshaler decide how they are encoded.
//
//   - Restricted: compact tagged binary encoding of a closed set of kinds (byte
//     slices, strings, []any, map[string]any, time.Time, bool and numbers). Any
//     other value fails with *UnsupportedTypeError before a single byte is produced.
//
//   - Timestamp: fixed width (12 byte) encoding of a single time.Time. Smaller and
//     faster than Restricted when metadata is always a timestamp.
//
//   - WithCompression: wraps any pair with snappy or lz4 block compression.
//
// Errors:
//
//	Serializers fail with *UnsupportedTypeError (value outside of the profile) or
//	*SerializationError. Deserializers fail with *DeserializationError on malformed
//	input. Use errors.As to inspect them.
//
// Thread Safety:
//
//	All pairs are stateless and safe for concurrent use.
//
// Usage:
//
//	conf, err := codec.FromProfiles(codec.ProfileRestricted, codec.ProfileTimestamp)
//	data, err := conf.Object.Serialize(map[string]any{"name": "maple"})
//	value, err := conf.Object.Deserialize(data)
package codec
