package db

import "errors"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMaple  Implementation = "maple"
	ImplPebble Implementation = "pebble"
)

// Feature represents engine features as bit flags
type Feature uint64

const (
	FeatureSnapshot    Feature = 1 << iota // Point-in-time snapshots
	FeatureBatch                           // Atomic write batches with read-your-writes
	FeaturePersistence                     // Data survives Close (requires a path)
	FeatureFlush                           // Explicit Flush of buffered state to durable storage
	FeatureOnDisk                          // Data lives on disk instead of memory
)

func (f Feature) String() string {
	switch f {
	case FeatureSnapshot:
		return "Snapshot"
	case FeatureBatch:
		return "Batch"
	case FeaturePersistence:
		return "Persistence"
	case FeatureFlush:
		return "Flush"
	case FeatureOnDisk:
		return "OnDisk"
	default:
		return "Unknown"
	}
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	DbType            Implementation `json:"db_type"`
	Entries           int            `json:"entries"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// ErrClosed is returned by engine operations after Close
var ErrClosed = errors.New("db: engine is closed")

// ErrBatchDone is returned when a committed or discarded batch is used again
var ErrBatchDone = errors.New("db: batch already committed or discarded")

// --------------------------------------------------------------------------
// Engine Interfaces
// --------------------------------------------------------------------------

// ScanFunc is called for each key/value pair of a scan in ascending key order.
// Returning false stops the scan. A returned error stops the scan and is passed through.
// The key and value are only valid for the duration of the call unless copied.
type ScanFunc func(key, value []byte) (next bool, err error)

// Reader provides read access to a consistent view of the engine
type Reader interface {
	// Get returns a copy of the value stored for key.
	// The boolean return value indicates whether the key exists.
	Get(key []byte) (value []byte, found bool, err error)

	// Scan calls fn for every key that starts with prefix, in ascending key order.
	// An empty prefix scans the whole key space.
	Scan(prefix []byte, fn ScanFunc) error
}

// Snapshot is an immutable point-in-time view of the engine.
// A snapshot never observes writes committed after it was created.
type Snapshot interface {
	Reader

	// Close releases the snapshot. Using a closed snapshot is undefined.
	Close() error
}

// Batch collects writes that are applied atomically on Commit.
// Reads through the batch observe its own pending writes on top of the state at creation.
// Nothing written to a batch is visible to snapshots until Commit returns.
//
// Scan callbacks must not write to the batch that is scanned.
type Batch interface {
	Reader

	// Set stores value for key, overwriting any existing value
	Set(key, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key []byte) error

	// Commit applies all pending writes atomically. The batch can not be used afterwards.
	Commit() error

	// Discard drops all pending writes. Calling Discard after Commit is a no-op.
	Discard()
}

// KVDB defines an interface for key-value storage engines.
// Engines store opaque byte keys and values and provide two primitives
// that higher layers build transactions from: snapshots for readers and
// atomic batches for the (single) writer.
//
// Writers are serialized by the caller: at most one batch is committed at a time.
// Snapshots may be created and read concurrently with a pending batch.
type KVDB interface {

	// NewSnapshot returns a point-in-time view of the committed state
	NewSnapshot() (Snapshot, error)

	// NewBatch returns an empty batch on top of the committed state
	NewBatch() (Batch, error)

	// Flush writes buffered state to durable storage if the engine supports FeatureFlush
	Flush() error

	// SupportsFeature checks if the engine supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the engine
	GetInfo() (info DatabaseInfo)

	// Close releases all resources. Persistent engines write their state before returning.
	Close() (err error)
}

// Factory opens an engine at path. The meaning of path depends on the engine,
// an empty path means the engine keeps no durable state.
type Factory func(path string) (KVDB, error)

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

// PrefixEnd returns the smallest key that is greater than every key starting with prefix.
// It returns nil if no such key exists (prefix is empty or all 0xff).
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// Clone returns a copy of b. A nil slice stays nil.
func Clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
