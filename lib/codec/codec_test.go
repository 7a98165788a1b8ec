package codec

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// testPerson is a custom type used to test the full profile
type testPerson struct {
	Name    string
	Age     int
	Friends []*testPerson
	Tags    map[string]string
}

func init() {
	Register(&testPerson{})
}

var testTime = time.Date(2024, 5, 17, 13, 37, 42, 123456789, time.UTC)

// restrictedValues returns values representable by the restricted profile
func restrictedValues() map[string]any {
	return map[string]any{
		"Bytes":       []byte("raw bytes"),
		"String":      "hello world",
		"EmptyString": "",
		"Unicode":     "grüße 🌍",
		"Time":        testTime,
		"True":        true,
		"False":       false,
		"Int":         -42,
		"Int8":        int8(-8),
		"Int16":       int16(1600),
		"Int32":       int32(-320000),
		"Int64":       int64(1 << 60),
		"Uint":        uint(42),
		"Uint8":       uint8(255),
		"Uint16":      uint16(65535),
		"Uint32":      uint32(1 << 31),
		"Uint64":      uint64(1 << 63),
		"Float32":     float32(3.25),
		"Float64":     3.141592653589793,
		"List":        []any{"a", int64(1), 2.5, []byte{1, 2}},
		"Map": map[string]any{
			"name":    "maple",
			"created": testTime,
			"nested":  map[string]any{"list": []any{true, "x"}},
		},
	}
}

// TestRoundTrip tests the round trip law for all built-in profiles
func TestRoundTrip(t *testing.T) {
	cases := map[string]struct {
		pair   Pair
		values map[string]any
	}{
		"Full": {
			pair: Full(),
			values: map[string]any{
				"String": "hello",
				"Int":    17,
				"Float":  2.5,
				"Bytes":  []byte("bytes"),
				"Time":   testTime,
				"List":   []any{"a", 1, true},
				"Map":    map[string]any{"a": 1, "b": "two"},
				"Struct": &testPerson{
					Name:    "alice",
					Age:     31,
					Friends: []*testPerson{{Name: "bob", Age: 29}},
					Tags:    map[string]string{"role": "admin"},
				},
			},
		},
		"Restricted": {
			pair:   Restricted(),
			values: restrictedValues(),
		},
		"Timestamp": {
			pair: Timestamp(),
			values: map[string]any{
				"Now":       time.Now().UTC(),
				"Fixed":     testTime,
				"Epoch":     time.Unix(0, 0).UTC(),
				"BeforeEra": time.Date(1, 1, 1, 0, 0, 0, 1, time.UTC),
			},
		},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			for valueName, v := range c.values {
				data, err := c.pair.Serialize(v)
				if err != nil {
					t.Errorf("%s: failed to serialize: %v", valueName, err)
					continue
				}

				result, err := c.pair.Deserialize(data)
				if err != nil {
					t.Errorf("%s: failed to deserialize: %v", valueName, err)
					continue
				}

				if diff := cmp.Diff(v, result); diff != "" {
					t.Errorf("%s: value doesn't match after round trip (-want +got):\n%s", valueName, diff)
				}
			}
		})
	}
}

// TestTimestampPointer tests that the timestamp profile accepts *time.Time
func TestTimestampPointer(t *testing.T) {
	ts := testTime
	data, err := Timestamp().Serialize(&ts)
	if err != nil {
		t.Fatalf("Failed to serialize pointer: %v", err)
	}
	if len(data) != timestampSize {
		t.Errorf("Expected %d bytes, got %d", timestampSize, len(data))
	}
	result, err := Timestamp().Deserialize(data)
	if err != nil {
		t.Fatalf("Failed to deserialize: %v", err)
	}
	if !result.(time.Time).Equal(ts) {
		t.Errorf("Expected %v, got %v", ts, result)
	}
}

// TestUnsupportedTypes tests that the restricted and timestamp profiles reject values outside their domain
func TestUnsupportedTypes(t *testing.T) {
	type custom struct{ A int }

	tests := []struct {
		name  string
		pair  Pair
		value any
	}{
		{"Restricted/Struct", Restricted(), custom{A: 1}},
		{"Restricted/Nil", Restricted(), nil},
		{"Restricted/IntKeyMap", Restricted(), map[int]any{1: "a"}},
		{"Restricted/TypedSliceOfStructs", Restricted(), []custom{{A: 1}}},
		{"Restricted/NestedStruct", Restricted(), []any{"ok", custom{A: 2}}},
		{"Restricted/NestedInMap", Restricted(), map[string]any{"a": map[string]any{"b": &custom{}}}},
		{"Restricted/Complex", Restricted(), complex(1, 2)},
		{"Timestamp/String", Timestamp(), "2024-01-01"},
		{"Timestamp/Int", Timestamp(), 1700000000},
		{"Timestamp/NilPointer", Timestamp(), (*time.Time)(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.pair.Serialize(tt.value)
			if data != nil {
				t.Errorf("Expected no bytes, got %d", len(data))
			}

			var unsupportedErr *UnsupportedTypeError
			if !errors.As(err, &unsupportedErr) {
				t.Fatalf("Expected UnsupportedTypeError, got %v", err)
			}
			if unsupportedErr.Profile != tt.pair.Name {
				t.Errorf("Expected profile %s, got %s", tt.pair.Name, unsupportedErr.Profile)
			}
		})
	}
}

// TestRestrictedTypedContainers tests that typed sequences and mappings decode as []any and map[string]any
func TestRestrictedTypedContainers(t *testing.T) {
	type label string

	tests := []struct {
		name  string
		value any
		want  any
	}{
		{"Strings", []string{"a", "b"}, []any{"a", "b"}},
		{"Ints", []int{1, -2, 3}, []any{1, -2, 3}},
		{"EmptySlice", []string{}, []any{}},
		{"Array", [2]float64{1.5, 2.5}, []any{1.5, 2.5}},
		{"StringMap", map[string]string{"b": "2", "a": "1"}, map[string]any{"a": "1", "b": "2"}},
		{"NamedKeys", map[label]int{"x": 1}, map[string]any{"x": 1}},
		{"Nested", map[string][]int{"odd": {1, 3}}, map[string]any{"odd": []any{1, 3}}},
		{"InsideList", []any{[]string{"x"}}, []any{[]any{"x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Restricted().Serialize(tt.value)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}
			result, err := Restricted().Deserialize(data)
			if err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}
			if diff := cmp.Diff(tt.want, result); diff != "" {
				t.Errorf("Unexpected value (-want +got):\n%s", diff)
			}
		})
	}

	// typed and untyped containers share the encoding
	typed, _ := Restricted().Serialize(map[string]string{"k": "v"})
	untyped, _ := Restricted().Serialize(map[string]any{"k": "v"})
	if !bytes.Equal(typed, untyped) {
		t.Errorf("Expected identical encodings, got %x and %x", typed, untyped)
	}
}

// TestFullEmptyBytes tests that an empty byte slice stays non-nil in the full profile
func TestFullEmptyBytes(t *testing.T) {
	data, err := Full().Serialize([]byte{})
	if err != nil {
		t.Fatalf("Failed to serialize: %v", err)
	}
	result, err := Full().Deserialize(data)
	if err != nil {
		t.Fatalf("Failed to deserialize: %v", err)
	}
	b, ok := result.([]byte)
	if !ok || b == nil || len(b) != 0 {
		t.Errorf("Expected []byte{}, got %#v", result)
	}
}

// TestFullUnregisteredType tests that the full profile reports unregistered types as serialization error
func TestFullUnregisteredType(t *testing.T) {
	type unregistered struct{ A int }

	_, err := Full().Serialize(unregistered{A: 1})
	var serErr *SerializationError
	if !errors.As(err, &serErr) {
		t.Fatalf("Expected SerializationError, got %v", err)
	}
}

// TestMalformedInput tests that deserializers reject malformed bytes
func TestMalformedInput(t *testing.T) {
	valid, err := Restricted().Serialize(map[string]any{"key": "value"})
	if err != nil {
		t.Fatalf("Failed to serialize: %v", err)
	}

	tests := []struct {
		name string
		pair Pair
		data []byte
	}{
		{"Full/Garbage", Full(), []byte{0xde, 0xad, 0xbe, 0xef}},
		{"Full/Empty", Full(), nil},
		{"Restricted/Empty", Restricted(), nil},
		{"Restricted/WrongVersion", Restricted(), []byte{99, tagBool, 1}},
		{"Restricted/UnknownTag", Restricted(), []byte{restrictedVersion, 200}},
		{"Restricted/Truncated", Restricted(), valid[:len(valid)-2]},
		{"Restricted/TrailingBytes", Restricted(), append(append([]byte{}, valid...), 0)},
		{"Restricted/InvalidBool", Restricted(), []byte{restrictedVersion, tagBool, 7}},
		{"Restricted/HugeLength", Restricted(), []byte{restrictedVersion, tagString, 0xff, 0xff, 0xff, 0xff, 0x0f}},
		{"Restricted/Int8Overflow", Restricted(), []byte{restrictedVersion, tagInt8, 0x80, 0x04}},
		{"Timestamp/Short", Timestamp(), []byte{1, 2, 3}},
		{"Timestamp/BadNanos", Timestamp(), []byte{0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff, 0xff, 0xff}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.pair.Deserialize(tt.data)
			var deserErr *DeserializationError
			if !errors.As(err, &deserErr) {
				t.Errorf("Expected DeserializationError, got %v", err)
			}
		})
	}
}

// TestDeterministic tests that serializing the same value twice yields the same bytes
func TestDeterministic(t *testing.T) {
	pairs := map[string]Pair{
		"Restricted": Restricted(),
		"Timestamp":  Timestamp(),
	}
	values := map[string]any{
		"Restricted": map[string]any{"z": 1, "a": 2, "m": []any{"x", map[string]any{"k2": 1, "k1": 2}}},
		"Timestamp":  testTime,
	}

	for name, pair := range pairs {
		t.Run(name, func(t *testing.T) {
			first, err := pair.Serialize(values[name])
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}
			for i := 0; i < 20; i++ {
				next, err := pair.Serialize(values[name])
				if err != nil {
					t.Fatalf("Failed to serialize: %v", err)
				}
				if !bytes.Equal(first, next) {
					t.Fatalf("Serialization is not deterministic (run %d)", i)
				}
			}
		})
	}
}

// TestRestrictedIsDenser tests that the restricted and timestamp profiles produce smaller output than the full profile
func TestRestrictedIsDenser(t *testing.T) {
	full, _ := Full().Serialize(testTime)
	restricted, _ := Restricted().Serialize(testTime)
	timestamp, _ := Timestamp().Serialize(testTime)

	if len(restricted) >= len(full) {
		t.Errorf("Expected restricted (%d bytes) to be smaller than full (%d bytes)", len(restricted), len(full))
	}
	if len(timestamp) >= len(full) {
		t.Errorf("Expected timestamp (%d bytes) to be smaller than full (%d bytes)", len(timestamp), len(full))
	}
}

// TestCompression tests that compression wrappers keep the round trip law
func TestCompression(t *testing.T) {
	large := bytes.Repeat([]byte("compress me please "), 512)
	random := []byte{0x01, 0x9a, 0x33, 0xf0, 0x7e}

	for _, comp := range []Compression{CompressionNone, CompressionSnappy, CompressionLZ4} {
		t.Run(string(comp), func(t *testing.T) {
			pair := WithCompression(Restricted(), comp)

			for _, v := range []any{large, random, "short", map[string]any{"data": large}} {
				data, err := pair.Serialize(v)
				if err != nil {
					t.Fatalf("Failed to serialize: %v", err)
				}
				result, err := pair.Deserialize(data)
				if err != nil {
					t.Fatalf("Failed to deserialize: %v", err)
				}
				if diff := cmp.Diff(v, result); diff != "" {
					t.Errorf("Value doesn't match after round trip (-want +got):\n%s", diff)
				}
			}

			if comp != CompressionNone {
				plain, _ := Restricted().Serialize(large)
				compressed, _ := pair.Serialize(large)
				if len(compressed) >= len(plain) {
					t.Errorf("Expected compressed size (%d) < plain size (%d)", len(compressed), len(plain))
				}
			}
		})
	}

	// errors of the inner pair are passed through
	_, err := WithCompression(Restricted(), CompressionLZ4).Serialize(struct{}{})
	var unsupportedErr *UnsupportedTypeError
	if !errors.As(err, &unsupportedErr) {
		t.Errorf("Expected UnsupportedTypeError through the wrapper, got %v", err)
	}

	// corrupt data is reported
	_, err = WithCompression(Restricted(), CompressionSnappy).Deserialize([]byte{0xff, 0xff, 0xff})
	var deserErr *DeserializationError
	if !errors.As(err, &deserErr) {
		t.Errorf("Expected DeserializationError for corrupt snappy data, got %v", err)
	}
}

// TestConfig tests the three construction forms and profile parsing
func TestConfig(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
	if Default().Object.Name != fullName || Default().Metadata.Name != fullName {
		t.Errorf("Default config should use the full profile for objects and metadata")
	}

	shared := Shared(restrictedSerialize, restrictedDeserialize)
	if err := shared.Validate(); err != nil {
		t.Errorf("Shared config should be valid: %v", err)
	}

	separate := Separate(gobSerialize, gobDeserialize, timestampSerialize, timestampDeserialize)
	if err := separate.Validate(); err != nil {
		t.Errorf("Separate config should be valid: %v", err)
	}

	if err := Shared(nil, restrictedDeserialize).Validate(); err == nil {
		t.Errorf("Config with missing serializer should be invalid")
	}
	if err := Separate(gobSerialize, gobDeserialize, timestampSerialize, nil).Validate(); err == nil {
		t.Errorf("Config with missing metadata deserializer should be invalid")
	}
	if !(Config{}).IsZero() {
		t.Errorf("Zero config should report IsZero")
	}

	conf, err := FromProfiles(ProfileRestricted, ProfileTimestamp)
	if err != nil {
		t.Fatalf("Failed to build config from profiles: %v", err)
	}
	if conf.Object.Name != restrictedName || conf.Metadata.Name != timestampName {
		t.Errorf("Unexpected pairs %s/%s", conf.Object, conf.Metadata)
	}

	for _, s := range []string{"full", "Restricted", " timestamp ", ""} {
		if _, err := ParseProfile(s); err != nil {
			t.Errorf("ParseProfile(%q) failed: %v", s, err)
		}
	}
	if _, err := ParseProfile("plist"); err == nil {
		t.Errorf("ParseProfile should reject unknown profiles")
	}
	if _, err := ParseCompression("zstd"); err == nil {
		t.Errorf("ParseCompression should reject unknown algorithms")
	}
}
