// Package pebble implements an on-disk storage engine (db.KVDB) backed by
// github.com/cockroachdb/pebble, a log-structured merge tree.
//
// Key Components:
//
//   - pebbleImpl: Owns the pebble.DB. Commits use pebble.Sync by default so a
//     committed transaction survives a crash.
//
//   - snapshot: A pebble.Snapshot. It pins the sequence number at creation time, so
//     later commits stay invisible.
//
//   - batch: An indexed pebble.Batch. Reads and scans through the batch merge its
//     pending writes with the committed state.
//
// An empty directory selects an in-memory file system (vfs.NewMem), which is used
// by tests and throwaway databases. Pebble's own log output is forwarded to the
// "pebble" logger.
package pebble
