package codec

import (
	"encoding/binary"
	"math"
	"reflect"
	"sort"
	"time"
)

const restrictedName = string(ProfileRestricted)

// Restricted returns the restricted pair. It only supports a closed set of kinds:
//
//   - []byte
//   - string
//   - []any (ordered sequence, elements restricted as well)
//   - map[string]any (mapping, values restricted as well)
//   - time.Time
//   - bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64
//
// Other slices and arrays are written as sequences and other maps with string keys as
// mappings, so []string or map[string]int are accepted and decode as []any and
// map[string]any. Any other value (including nil) fails with *UnsupportedTypeError. In exchange the
// encoding is denser and faster than the full profile, and it is deterministic
// (map keys are written in sorted order).
//
// Decoded times are in UTC, empty byte slices, sequences and mappings decode as
// empty (non-nil) values.
func Restricted() Pair {
	return Pair{
		Name:        restrictedName,
		Serialize:   restrictedSerialize,
		Deserialize: restrictedDeserialize,
	}
}

// Format version and type tags
const (
	restrictedVersion byte = 1
	maxNestingDepth        = 512
)

const (
	tagBytes byte = iota + 1
	tagString
	tagList
	tagMap
	tagTime
	tagBool
	tagInt
	tagInt8
	tagInt16
	tagInt32
	tagInt64
	tagUint
	tagUint8
	tagUint16
	tagUint32
	tagUint64
	tagFloat32
	tagFloat64
)

// --------------------------------------------------------------------------
// Serialize
// --------------------------------------------------------------------------

func restrictedSerialize(v any) ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = append(buf, restrictedVersion)

	buf, err := appendRestricted(buf, v, 0)
	if err != nil {
		// never hand out partially written bytes
		return nil, err
	}
	return buf, nil
}

// appendRestricted appends the tagged encoding of v to buf
func appendRestricted(buf []byte, v any, depth int) ([]byte, error) {
	if depth > maxNestingDepth {
		return nil, &SerializationError{Profile: restrictedName, Err: errNestingTooDeep}
	}

	switch val := v.(type) {
	case []byte:
		buf = append(buf, tagBytes)
		buf = binary.AppendUvarint(buf, uint64(len(val)))
		return append(buf, val...), nil
	case string:
		buf = append(buf, tagString)
		buf = binary.AppendUvarint(buf, uint64(len(val)))
		return append(buf, val...), nil
	case []any:
		buf = append(buf, tagList)
		buf = binary.AppendUvarint(buf, uint64(len(val)))
		var err error
		for _, elem := range val {
			if buf, err = appendRestricted(buf, elem, depth+1); err != nil {
				return nil, err
			}
		}
		return buf, nil
	case map[string]any:
		buf = append(buf, tagMap)
		buf = binary.AppendUvarint(buf, uint64(len(val)))

		// sorted keys keep the output deterministic
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var err error
		for _, k := range keys {
			buf = binary.AppendUvarint(buf, uint64(len(k)))
			buf = append(buf, k...)
			if buf, err = appendRestricted(buf, val[k], depth+1); err != nil {
				return nil, err
			}
		}
		return buf, nil
	case time.Time:
		buf = append(buf, tagTime)
		buf = binary.AppendVarint(buf, val.Unix())
		return binary.AppendUvarint(buf, uint64(val.Nanosecond())), nil
	case bool:
		if val {
			return append(buf, tagBool, 1), nil
		}
		return append(buf, tagBool, 0), nil
	case int:
		return binary.AppendVarint(append(buf, tagInt), int64(val)), nil
	case int8:
		return binary.AppendVarint(append(buf, tagInt8), int64(val)), nil
	case int16:
		return binary.AppendVarint(append(buf, tagInt16), int64(val)), nil
	case int32:
		return binary.AppendVarint(append(buf, tagInt32), int64(val)), nil
	case int64:
		return binary.AppendVarint(append(buf, tagInt64), val), nil
	case uint:
		return binary.AppendUvarint(append(buf, tagUint), uint64(val)), nil
	case uint8:
		return binary.AppendUvarint(append(buf, tagUint8), uint64(val)), nil
	case uint16:
		return binary.AppendUvarint(append(buf, tagUint16), uint64(val)), nil
	case uint32:
		return binary.AppendUvarint(append(buf, tagUint32), uint64(val)), nil
	case uint64:
		return binary.AppendUvarint(append(buf, tagUint64), val), nil
	case float32:
		return binary.BigEndian.AppendUint32(append(buf, tagFloat32), math.Float32bits(val)), nil
	case float64:
		return binary.BigEndian.AppendUint64(append(buf, tagFloat64), math.Float64bits(val)), nil
	default:
		return appendReflected(buf, v, depth)
	}
}

// appendReflected encodes typed slices, arrays and string keyed maps
func appendReflected(buf []byte, v any, depth int) ([]byte, error) {
	rv := reflect.ValueOf(v)
	var err error

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		buf = append(buf, tagList)
		buf = binary.AppendUvarint(buf, uint64(rv.Len()))
		for i := 0; i < rv.Len(); i++ {
			if buf, err = appendRestricted(buf, rv.Index(i).Interface(), depth+1); err != nil {
				return nil, err
			}
		}
		return buf, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, unsupported(restrictedName, v)
		}
		buf = append(buf, tagMap)
		buf = binary.AppendUvarint(buf, uint64(rv.Len()))

		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		for _, k := range keys {
			buf = binary.AppendUvarint(buf, uint64(len(k.String())))
			buf = append(buf, k.String()...)
			if buf, err = appendRestricted(buf, rv.MapIndex(k).Interface(), depth+1); err != nil {
				return nil, err
			}
		}
		return buf, nil
	default:
		return nil, unsupported(restrictedName, v)
	}
}

// --------------------------------------------------------------------------
// Deserialize
// --------------------------------------------------------------------------

// restrictedDecoder reads tagged values from data
type restrictedDecoder struct {
	data []byte
	pos  int
}

func restrictedDeserialize(data []byte) (any, error) {
	if len(data) < 2 {
		return nil, malformed(restrictedName, "data too short (%d bytes)", len(data))
	}
	if data[0] != restrictedVersion {
		return nil, malformed(restrictedName, "unsupported format version %d (expected %d)", data[0], restrictedVersion)
	}

	d := &restrictedDecoder{data: data, pos: 1}
	v, err := d.value(0)
	if err != nil {
		return nil, err
	}
	if d.pos != len(data) {
		return nil, malformed(restrictedName, "%d trailing bytes", len(data)-d.pos)
	}
	return v, nil
}

func (d *restrictedDecoder) value(depth int) (any, error) {
	if depth > maxNestingDepth {
		return nil, &DeserializationError{Profile: restrictedName, Err: errNestingTooDeep}
	}
	if d.pos >= len(d.data) {
		return nil, malformed(restrictedName, "data too short for type tag")
	}

	tag := d.data[d.pos]
	d.pos++

	switch tag {
	case tagBytes:
		raw, err := d.lengthPrefixed()
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	case tagString:
		raw, err := d.lengthPrefixed()
		if err != nil {
			return nil, err
		}
		return string(raw), nil
	case tagList:
		n, err := d.count()
		if err != nil {
			return nil, err
		}
		list := make([]any, 0, n)
		for i := 0; i < n; i++ {
			elem, err := d.value(depth + 1)
			if err != nil {
				return nil, err
			}
			list = append(list, elem)
		}
		return list, nil
	case tagMap:
		n, err := d.count()
		if err != nil {
			return nil, err
		}
		m := make(map[string]any, n)
		for i := 0; i < n; i++ {
			key, err := d.lengthPrefixed()
			if err != nil {
				return nil, err
			}
			val, err := d.value(depth + 1)
			if err != nil {
				return nil, err
			}
			m[string(key)] = val
		}
		return m, nil
	case tagTime:
		sec, err := d.varint()
		if err != nil {
			return nil, err
		}
		nsec, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		if nsec >= uint64(time.Second) {
			return nil, malformed(restrictedName, "invalid nanoseconds %d", nsec)
		}
		return time.Unix(sec, int64(nsec)).UTC(), nil
	case tagBool:
		if d.pos >= len(d.data) {
			return nil, malformed(restrictedName, "data too short for bool")
		}
		b := d.data[d.pos]
		d.pos++
		if b > 1 {
			return nil, malformed(restrictedName, "invalid bool value %d", b)
		}
		return b == 1, nil
	case tagInt, tagInt8, tagInt16, tagInt32, tagInt64:
		n, err := d.varint()
		if err != nil {
			return nil, err
		}
		return signedOf(tag, n)
	case tagUint, tagUint8, tagUint16, tagUint32, tagUint64:
		n, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		return unsignedOf(tag, n)
	case tagFloat32:
		if d.pos+4 > len(d.data) {
			return nil, malformed(restrictedName, "data too short for float32")
		}
		bits := binary.BigEndian.Uint32(d.data[d.pos : d.pos+4])
		d.pos += 4
		return math.Float32frombits(bits), nil
	case tagFloat64:
		if d.pos+8 > len(d.data) {
			return nil, malformed(restrictedName, "data too short for float64")
		}
		bits := binary.BigEndian.Uint64(d.data[d.pos : d.pos+8])
		d.pos += 8
		return math.Float64frombits(bits), nil
	default:
		return nil, malformed(restrictedName, "unknown type tag %d", tag)
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (d *restrictedDecoder) uvarint() (uint64, error) {
	n, size := binary.Uvarint(d.data[d.pos:])
	if size <= 0 {
		return 0, malformed(restrictedName, "invalid unsigned varint at offset %d", d.pos)
	}
	d.pos += size
	return n, nil
}

func (d *restrictedDecoder) varint() (int64, error) {
	n, size := binary.Varint(d.data[d.pos:])
	if size <= 0 {
		return 0, malformed(restrictedName, "invalid varint at offset %d", d.pos)
	}
	d.pos += size
	return n, nil
}

// count reads an element count and checks it against the remaining bytes
// (every element needs at least one byte)
func (d *restrictedDecoder) count() (int, error) {
	n, err := d.uvarint()
	if err != nil {
		return 0, err
	}
	if n > uint64(len(d.data)-d.pos) {
		return 0, malformed(restrictedName, "element count %d exceeds remaining data", n)
	}
	return int(n), nil
}

// lengthPrefixed reads a uvarint length followed by that many bytes.
// The returned slice aliases the input.
func (d *restrictedDecoder) lengthPrefixed() ([]byte, error) {
	n, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	if n > uint64(len(d.data)-d.pos) {
		return nil, malformed(restrictedName, "data too short for %d bytes at offset %d", n, d.pos)
	}
	raw := d.data[d.pos : d.pos+int(n)]
	d.pos += int(n)
	return raw, nil
}

// signedOf converts a decoded varint back to the signed kind named by tag
func signedOf(tag byte, n int64) (any, error) {
	switch tag {
	case tagInt:
		if n < math.MinInt || n > math.MaxInt {
			return nil, malformed(restrictedName, "int overflow: %d", n)
		}
		return int(n), nil
	case tagInt8:
		if n < math.MinInt8 || n > math.MaxInt8 {
			return nil, malformed(restrictedName, "int8 overflow: %d", n)
		}
		return int8(n), nil
	case tagInt16:
		if n < math.MinInt16 || n > math.MaxInt16 {
			return nil, malformed(restrictedName, "int16 overflow: %d", n)
		}
		return int16(n), nil
	case tagInt32:
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, malformed(restrictedName, "int32 overflow: %d", n)
		}
		return int32(n), nil
	default:
		return n, nil
	}
}

// unsignedOf converts a decoded uvarint back to the unsigned kind named by tag
func unsignedOf(tag byte, n uint64) (any, error) {
	switch tag {
	case tagUint:
		if n > math.MaxUint {
			return nil, malformed(restrictedName, "uint overflow: %d", n)
		}
		return uint(n), nil
	case tagUint8:
		if n > math.MaxUint8 {
			return nil, malformed(restrictedName, "uint8 overflow: %d", n)
		}
		return uint8(n), nil
	case tagUint16:
		if n > math.MaxUint16 {
			return nil, malformed(restrictedName, "uint16 overflow: %d", n)
		}
		return uint16(n), nil
	case tagUint32:
		if n > math.MaxUint32 {
			return nil, malformed(restrictedName, "uint32 overflow: %d", n)
		}
		return uint32(n), nil
	default:
		return n, nil
	}
}
