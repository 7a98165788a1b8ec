package codec

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies a compression algorithm that can wrap any pair
type Compression string

const (
	CompressionNone   Compression = "none"
	CompressionSnappy Compression = "snappy"
	CompressionLZ4    Compression = "lz4"
)

// lz4 block header: 1 byte mode + uvarint length of the uncompressed data
const (
	lz4ModeStored     byte = 0
	lz4ModeCompressed byte = 1
)

// ParseCompression converts a string (e.g. from a flag) to a Compression
func ParseCompression(s string) (Compression, error) {
	switch Compression(strings.ToLower(strings.TrimSpace(s))) {
	case CompressionNone, "":
		return CompressionNone, nil
	case CompressionSnappy:
		return CompressionSnappy, nil
	case CompressionLZ4:
		return CompressionLZ4, nil
	default:
		return "", fmt.Errorf("invalid compression %q (expected one of: none, snappy, lz4)", s)
	}
}

// WithCompression wraps the pair so that serialized bytes are compressed with c.
// The wrapped pair keeps the round trip law of p. CompressionNone returns p unchanged.
func WithCompression(p Pair, c Compression) Pair {
	switch c {
	case CompressionSnappy:
		return Pair{
			Name: p.String() + "+snappy",
			Serialize: func(v any) ([]byte, error) {
				raw, err := p.Serialize(v)
				if err != nil {
					return nil, err
				}
				return snappy.Encode(nil, raw), nil
			},
			Deserialize: func(data []byte) (any, error) {
				raw, err := snappy.Decode(nil, data)
				if err != nil {
					return nil, &DeserializationError{Profile: p.String() + "+snappy", Err: err}
				}
				return p.Deserialize(raw)
			},
		}
	case CompressionLZ4:
		return Pair{
			Name: p.String() + "+lz4",
			Serialize: func(v any) ([]byte, error) {
				raw, err := p.Serialize(v)
				if err != nil {
					return nil, err
				}
				return lz4Compress(raw, p.String()+"+lz4")
			},
			Deserialize: func(data []byte) (any, error) {
				raw, err := lz4Decompress(data, p.String()+"+lz4")
				if err != nil {
					return nil, err
				}
				return p.Deserialize(raw)
			},
		}
	default:
		return p
	}
}

// CompressObjects returns a copy of the config whose object pair is compressed with c.
// Metadata is usually small and stays uncompressed.
func (c Config) CompressObjects(comp Compression) Config {
	return Config{
		Object:   WithCompression(c.Object, comp),
		Metadata: c.Metadata,
	}
}

// --------------------------------------------------------------------------
// lz4 block helpers
// --------------------------------------------------------------------------

func lz4Compress(raw []byte, name string) ([]byte, error) {
	header := make([]byte, 1, 1+binary.MaxVarintLen64)
	header = binary.AppendUvarint(header, uint64(len(raw)))

	dst := make([]byte, len(header)+lz4.CompressBlockBound(len(raw)))
	n, err := lz4.CompressBlock(raw, dst[len(header):], nil)
	if err != nil {
		return nil, &SerializationError{Profile: name, Err: err}
	}

	// incompressible data is stored as is
	if n == 0 || n >= len(raw) {
		header[0] = lz4ModeStored
		return append(header, raw...), nil
	}

	header[0] = lz4ModeCompressed
	copy(dst, header)
	return dst[:len(header)+n], nil
}

func lz4Decompress(data []byte, name string) ([]byte, error) {
	if len(data) < 2 {
		return nil, malformed(name, "data too short for lz4 header")
	}
	mode := data[0]
	rawLen, size := binary.Uvarint(data[1:])
	if size <= 0 {
		return nil, malformed(name, "invalid lz4 length header")
	}
	payload := data[1+size:]

	switch mode {
	case lz4ModeStored:
		if uint64(len(payload)) != rawLen {
			return nil, malformed(name, "stored length mismatch: header %d, payload %d", rawLen, len(payload))
		}
		return payload, nil
	case lz4ModeCompressed:
		// lz4 cannot expand data by more than a factor of 255
		if rawLen > uint64(len(payload))*255 {
			return nil, malformed(name, "implausible uncompressed length %d", rawLen)
		}
		raw := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(payload, raw)
		if err != nil {
			return nil, &DeserializationError{Profile: name, Err: err}
		}
		if uint64(n) != rawLen {
			return nil, malformed(name, "uncompressed length mismatch: header %d, got %d", rawLen, n)
		}
		return raw, nil
	default:
		return nil, malformed(name, "unknown lz4 mode %d", mode)
	}
}
