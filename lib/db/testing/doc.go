// Package testing provides standardised tests and benchmarks for
// storage engines that satisfy the db.KVDB interface.
//
// The package contains:
//   - testing: A test suite for validating conformance to the KVDB contract
//     (snapshot isolation, read-your-writes batches, ordered prefix scans, persistence)
//   - benchmark: Performance tests for measuring throughput of common engine operations
//
// This package is particularly useful for:
//   - Selecting the most appropriate engine based on performance characteristics
//   - Engine developers implementing the KVDB interface
//
// Example usage:
//
//	// Running the standard test suite with the engine's db.Factory
//	dbtesting.RunKVDBTests(t, "MyEngine", myengine.Open)
//
//	// Running performance benchmarks
//	dbtesting.RunKVDBBenchmarks(b, "MyEngine", myengine.Open)
package testing
