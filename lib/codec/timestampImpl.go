package codec

import (
	"encoding/binary"
	"time"
)

const (
	timestampName = string(ProfileTimestamp)
	timestampSize = 12 // 8 bytes unix seconds + 4 bytes nanoseconds
)

// Timestamp returns the timestamp-only pair. It accepts exactly one kind of value,
// a time.Time (or *time.Time, which is dereferenced), and encodes it in a fixed
// width of 12 bytes (big endian unix seconds followed by nanoseconds).
// Use it for metadata that is always a timestamp. Decoded values are in UTC.
func Timestamp() Pair {
	return Pair{
		Name:        timestampName,
		Serialize:   timestampSerialize,
		Deserialize: timestampDeserialize,
	}
}

func timestampSerialize(v any) ([]byte, error) {
	var t time.Time
	switch val := v.(type) {
	case time.Time:
		t = val
	case *time.Time:
		if val == nil {
			return nil, unsupported(timestampName, v)
		}
		t = *val
	default:
		return nil, unsupported(timestampName, v)
	}

	out := make([]byte, timestampSize)
	binary.BigEndian.PutUint64(out[0:8], uint64(t.Unix()))
	binary.BigEndian.PutUint32(out[8:12], uint32(t.Nanosecond()))
	return out, nil
}

func timestampDeserialize(data []byte) (any, error) {
	if len(data) != timestampSize {
		return nil, malformed(timestampName, "expected %d bytes, got %d", timestampSize, len(data))
	}

	sec := int64(binary.BigEndian.Uint64(data[0:8]))
	nsec := binary.BigEndian.Uint32(data[8:12])
	if nsec >= uint32(time.Second) {
		return nil, malformed(timestampName, "invalid nanoseconds %d", nsec)
	}
	return time.Unix(sec, int64(nsec)).UTC(), nil
}
