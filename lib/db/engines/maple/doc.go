// Package maple implements an in-memory storage engine (db.KVDB) on top of an
// immutable radix tree (github.com/hashicorp/go-immutable-radix).
//
// The package focuses on:
//   - O(1) snapshots through structural sharing of immutable tree roots
//   - Atomic batches built as radix transactions
//   - Optional persistence to a single file that is replaced atomically
//
// Key Components:
//
//   - mapleImpl: The engine. It holds the current committed tree root in an atomic
//     pointer. Readers load the pointer and keep the root for as long as they need it,
//     a commit swaps the pointer to the root produced by the transaction. Readers
//     therefore never block on writers and never observe a partial commit.
//
//   - snapshot: A reference to one tree root. Since roots are never modified, a
//     snapshot is free to create and needs no cleanup besides dropping the reference.
//
//   - batch: A radix Txn on the root that was current at creation. Reads through the
//     batch see its pending writes. Commit publishes the new root, Discard drops it.
//     Concurrent batches are not merged, the caller serializes writers.
//
// Persistence Format:
//
//	If a path is configured, the tree is loaded from it at open and written back on
//	Flush and Close (only if something changed). The file is written to a temporary
//	file and renamed into place (github.com/natefinch/atomic), so a crash never
//	leaves a half written file behind. The format is:
//	1. Magic number "MAPLEDB\x00" to identify the file format
//	2. Version number (currently 4)
//	3. Number of entries
//	4. For each entry in ascending key order: key length, key, value length, value
//	All integers are little endian.
//
// Metrics and Monitoring:
//
//	GetInfo reports the exact entry count and an estimated size based on a sample
//	of entry sizes (github.com/rcrowley/go-metrics histogram).
package maple
