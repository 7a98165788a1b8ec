package core

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Key Space
// --------------------------------------------------------------------------

// The engine key space is split into two namespaces:
//
//	p<collection>\x00<key>   primary records
//	x<extension>\x00<subkey> private storage of an extension
const (
	nsPrimary   byte = 'p'
	nsExtension byte = 'x'
	separator   byte = 0x00
)

// validCollection reports whether collection can be encoded without ambiguity
func validCollection(collection string) bool {
	return strings.IndexByte(collection, separator) < 0
}

// validExtensionName reports whether name can be used as an extension name
func validExtensionName(name string) bool {
	return name != "" && strings.IndexByte(name, separator) < 0
}

// primaryKey encodes collection and key into an engine key
func primaryKey(collection, key string) []byte {
	out := make([]byte, 0, len(collection)+len(key)+2)
	out = append(out, nsPrimary)
	out = append(out, collection...)
	out = append(out, separator)
	return append(out, key...)
}

// collectionPrefix returns the prefix of all primary records of collection
func collectionPrefix(collection string) []byte {
	out := make([]byte, 0, len(collection)+2)
	out = append(out, nsPrimary)
	out = append(out, collection...)
	return append(out, separator)
}

// primaryPrefix returns the prefix of all primary records
func primaryPrefix() []byte {
	return []byte{nsPrimary}
}

// splitPrimaryKey decodes an engine key produced by primaryKey
func splitPrimaryKey(k []byte) (collection, key string, err error) {
	if len(k) < 2 || k[0] != nsPrimary {
		return "", "", fmt.Errorf("%w: key %q is not a primary key", ErrCorruptRecord, k)
	}
	i := bytes.IndexByte(k[1:], separator)
	if i < 0 {
		return "", "", fmt.Errorf("%w: key %q has no separator", ErrCorruptRecord, k)
	}
	return string(k[1 : 1+i]), string(k[2+i:]), nil
}

// extensionPrefix returns the prefix of the private storage of extension name
func extensionPrefix(name string) []byte {
	out := make([]byte, 0, len(name)+2)
	out = append(out, nsExtension)
	out = append(out, name...)
	return append(out, separator)
}

// --------------------------------------------------------------------------
// Record Encoding
// --------------------------------------------------------------------------

// A record is: flags (1 byte) | uvarint object length | object bytes | metadata bytes
const flagHasMetadata byte = 1 << 0

// encodeRecord builds the engine value of a primary record
func encodeRecord(object, metadata []byte, hasMetadata bool) []byte {
	out := make([]byte, 0, 1+binary.MaxVarintLen64+len(object)+len(metadata))
	var flags byte
	if hasMetadata {
		flags |= flagHasMetadata
	}
	out = append(out, flags)
	out = binary.AppendUvarint(out, uint64(len(object)))
	out = append(out, object...)
	if hasMetadata {
		out = append(out, metadata...)
	}
	return out
}

// decodeRecord splits the engine value of a primary record.
// The returned slices alias value.
func decodeRecord(value []byte) (object, metadata []byte, hasMetadata bool, err error) {
	if len(value) < 2 {
		return nil, nil, false, fmt.Errorf("%w: record too short (%d bytes)", ErrCorruptRecord, len(value))
	}
	flags := value[0]
	if flags&^flagHasMetadata != 0 {
		return nil, nil, false, fmt.Errorf("%w: unknown record flags %#x", ErrCorruptRecord, flags)
	}
	n, size := binary.Uvarint(value[1:])
	if size <= 0 {
		return nil, nil, false, fmt.Errorf("%w: invalid object length", ErrCorruptRecord)
	}
	rest := value[1+size:]
	if n > uint64(len(rest)) {
		return nil, nil, false, fmt.Errorf("%w: object length %d exceeds record", ErrCorruptRecord, n)
	}

	object = rest[:n]
	hasMetadata = flags&flagHasMetadata != 0
	if hasMetadata {
		metadata = rest[n:]
	} else if len(rest) != int(n) {
		return nil, nil, false, fmt.Errorf("%w: trailing bytes without metadata flag", ErrCorruptRecord)
	}
	return object, metadata, hasMetadata, nil
}
