// Package db provides a standardized interface for key-value storage engines.
// It defines the KVDB interface that the database core builds its transactions on,
// while abstracting the details of the concrete backend.
//
// The package focuses on:
//   - Two primitives instead of a full transaction API: snapshots and batches
//   - Feature discovery through capability flags
//   - Comprehensive metadata reporting
//
// Key Components:
//
//   - KVDB Interface: The interface all engines must satisfy. Engines store opaque
//     byte keys and values in ascending key order.
//
//   - Snapshot: An immutable point-in-time view. Readers of the database core hold
//     exactly one snapshot for the lifetime of a read transaction, so they never
//     observe a partially applied write.
//
//   - Batch: An atomic write set with read-your-writes semantics. The single writer
//     of the database core stages all primary and extension writes of one
//     transaction in a batch. Commit applies them all or nothing, Discard drops them.
//
//   - Feature Flags: The Feature type defines capability flags that engines
//     advertise through the SupportsFeature method (persistence, flush, on-disk).
//
//   - Implementation Identifiers: The Implementation type provides string constants
//     for the backends ("maple", "pebble").
//
//   - Database Information: The DatabaseInfo structure reports size statistics,
//     entry counts, implementation type and implementation-specific metadata.
//     Note: For most implementations size statistics are estimates since a precise
//     calculation can be expensive.
//
// Note on Concurrency:
//   - Snapshots and batches may be used from different goroutines at the same time.
//   - Writers are serialized by the caller. Engines do not detect conflicting batches,
//     the last commit wins.
//   - Values returned by Get are copies owned by the caller. Keys and values passed to
//     a ScanFunc are only valid during the call.
//
// Related Packages:
//
// The engines/maple package (github.com/ValentinKolb/eKV/lib/db/engines/maple) provides
// an in-memory engine based on an immutable radix tree with atomic file persistence.
//
// The engines/pebble package (github.com/ValentinKolb/eKV/lib/db/engines/pebble) provides
// an on-disk engine backed by an LSM tree.
//
// The testing package (github.com/ValentinKolb/eKV/lib/db/testing) provides
// standardized tests and benchmarks for engines that satisfy the db.KVDB interface.
//   - RunKVDBTests: Runs a standardized test suite to validate implementations
//   - RunKVDBBenchmarks: Provides performance benchmarks for comparing implementations
package db
