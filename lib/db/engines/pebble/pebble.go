package pebble

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/ValentinKolb/eKV/lib/db"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("pebble")

// memDirname is the directory used inside the in-memory file system
const memDirname = "ekv"

// --------------------------------------------------------------------------
// Logger Adapter
// --------------------------------------------------------------------------

// pebbleLogger forwards pebble's log output to the "pebble" logger
type pebbleLogger struct{}

func (pebbleLogger) Infof(format string, args ...interface{}) {
	log.Debugf(format, args...)
}

func (pebbleLogger) Errorf(format string, args ...interface{}) {
	log.Errorf(format, args...)
}

func (pebbleLogger) Fatalf(format string, args ...interface{}) {
	log.Panicf(format, args...)
}

// --------------------------------------------------------------------------
// Core Pebble database structure
// --------------------------------------------------------------------------

// pebbleImpl implements db.KVDB on a pebble LSM tree
type pebbleImpl struct {
	db       *pebble.DB
	dir      string
	inMemory bool
	sync     *pebble.WriteOptions
	closed   atomic.Bool
}

// DBOptions configures the pebbleImpl behavior during initialization
type DBOptions struct {
	Dir          string // Data directory ("" = in-memory file system)
	Sync         bool   // fsync every commit
	CacheSize    int64  // Block cache size in bytes (0 = pebble default)
	MemTableSize int    // Memtable size in bytes (0 = pebble default)
}

// DefaultOptions returns the default pebbleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		Sync: true,
	}
}

// NewPebbleDB opens (or creates) a pebble database with the specified options (optional).
//
// Thread-safety: This function is not thread-safe and should only be called once
// during initialization.
func NewPebbleDB(opts *DBOptions) (db.KVDB, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pebbleOpts := &pebble.Options{
		Logger: pebbleLogger{},
	}
	if opts.CacheSize > 0 {
		cache := pebble.NewCache(opts.CacheSize)
		defer cache.Unref()
		pebbleOpts.Cache = cache
	}
	if opts.MemTableSize > 0 {
		pebbleOpts.MemTableSize = opts.MemTableSize
	}

	dir := opts.Dir
	inMemory := dir == ""
	if inMemory {
		pebbleOpts.FS = vfs.NewMem()
		dir = memDirname
	}

	pdb, err := pebble.Open(dir, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("pebble: open %s: %w", dir, err)
	}

	writeOpts := pebble.NoSync
	if opts.Sync {
		writeOpts = pebble.Sync
	}

	log.Infof("opened pebble database (dir=%s, in-memory=%t, sync=%t)", dir, inMemory, opts.Sync)
	return &pebbleImpl{
		db:       pdb,
		dir:      dir,
		inMemory: inMemory,
		sync:     writeOpts,
	}, nil
}

// Open is a db.Factory for pebble. An empty path uses an in-memory file system.
func Open(path string) (db.KVDB, error) {
	opts := DefaultOptions()
	opts.Dir = path
	return NewPebbleDB(opts)
}

// --------------------------------------------------------------------------
// KVDB Interface Methods
// --------------------------------------------------------------------------

// NewSnapshot returns a pebble snapshot of the committed state.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (p *pebbleImpl) NewSnapshot() (db.Snapshot, error) {
	if p.closed.Load() {
		return nil, db.ErrClosed
	}
	return &snapshot{snap: p.db.NewSnapshot()}, nil
}

// NewBatch returns an indexed batch, so reads through the batch see its pending writes.
//
// Thread-safety: This method is thread-safe, callers serialize commits.
func (p *pebbleImpl) NewBatch() (db.Batch, error) {
	if p.closed.Load() {
		return nil, db.ErrClosed
	}
	return &batch{p: p, b: p.db.NewIndexedBatch()}, nil
}

// Flush flushes the memtable to disk
func (p *pebbleImpl) Flush() error {
	if p.closed.Load() {
		return db.ErrClosed
	}
	return p.db.Flush()
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (p *pebbleImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureSnapshot | db.FeatureBatch | db.FeatureFlush
	if !p.inMemory {
		supportedFeatures |= db.FeaturePersistence | db.FeatureOnDisk
	}
	return supportedFeatures&feature == feature
}

// GetInfo returns statistics about the database.
// The entry count requires a full scan and is therefore expensive for large databases.
func (p *pebbleImpl) GetInfo() db.DatabaseInfo {
	entries := 0
	it := p.db.NewIter(nil)
	for valid := it.First(); valid; valid = it.Next() {
		entries++
	}
	_ = it.Close()

	m := p.db.Metrics()
	meta := &struct {
		Dir             string `json:"dir"`
		InMemory        bool   `json:"in_memory"`
		MemTableSize    uint64 `json:"memtable_size"`
		MemTableCount   int64  `json:"memtable_count"`
		WALSize         uint64 `json:"wal_size"`
		CompactionCount int64  `json:"compaction_count"`
		FlushCount      int64  `json:"flush_count"`
		Metrics         string `json:"metrics"`
	}{
		Dir:             p.dir,
		InMemory:        p.inMemory,
		MemTableSize:    m.MemTable.Size,
		MemTableCount:   m.MemTable.Count,
		WALSize:         m.WAL.Size,
		CompactionCount: m.Compact.Count,
		FlushCount:      m.Flush.Count,
		Metrics:         m.String(),
	}

	supportedFeatures := []db.Feature{db.FeatureSnapshot, db.FeatureBatch, db.FeatureFlush}
	if !p.inMemory {
		supportedFeatures = append(supportedFeatures, db.FeaturePersistence, db.FeatureOnDisk)
	}

	return db.DatabaseInfo{
		SizeBytes:         int(m.DiskSpaceUsage()),
		DbType:            db.ImplPebble,
		Entries:           entries,
		SupportedFeatures: supportedFeatures,
		Metadata:          meta,
	}
}

// Close closes the pebble database
func (p *pebbleImpl) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	log.Infof("closing pebble database (dir=%s)", p.dir)
	return p.db.Close()
}

// --------------------------------------------------------------------------
// Snapshot
// --------------------------------------------------------------------------

type snapshot struct {
	snap *pebble.Snapshot
}

func (s *snapshot) Get(key []byte) ([]byte, bool, error) {
	return get(s.snap, key)
}

func (s *snapshot) Scan(prefix []byte, fn db.ScanFunc) error {
	return scan(s.snap.NewIter(prefixOptions(prefix)), fn)
}

func (s *snapshot) Close() error {
	return s.snap.Close()
}

// --------------------------------------------------------------------------
// Batch
// --------------------------------------------------------------------------

type batch struct {
	p    *pebbleImpl
	b    *pebble.Batch
	done bool
}

func (b *batch) Get(key []byte) ([]byte, bool, error) {
	if b.done {
		return nil, false, db.ErrBatchDone
	}
	return get(b.b, key)
}

func (b *batch) Scan(prefix []byte, fn db.ScanFunc) error {
	if b.done {
		return db.ErrBatchDone
	}
	return scan(b.b.NewIter(prefixOptions(prefix)), fn)
}

func (b *batch) Set(key, value []byte) error {
	if b.done {
		return db.ErrBatchDone
	}
	return b.b.Set(key, value, nil)
}

func (b *batch) Delete(key []byte) error {
	if b.done {
		return db.ErrBatchDone
	}
	return b.b.Delete(key, nil)
}

func (b *batch) Commit() error {
	if b.done {
		return db.ErrBatchDone
	}
	if b.p.closed.Load() {
		return db.ErrClosed
	}
	b.done = true
	defer b.b.Close()
	return b.b.Commit(b.p.sync)
}

func (b *batch) Discard() {
	if b.done {
		return
	}
	b.done = true
	_ = b.b.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// getter is implemented by pebble.Snapshot and pebble.Batch
type getter interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

// get copies the value out of pebble's buffer before releasing it
func get(g getter, key []byte) ([]byte, bool, error) {
	val, closer, err := g.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

// prefixOptions bounds an iterator to the keys starting with prefix
func prefixOptions(prefix []byte) *pebble.IterOptions {
	if len(prefix) == 0 {
		return nil
	}
	return &pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: db.PrefixEnd(prefix),
	}
}

// scan iterates it in ascending order and closes it
func scan(it *pebble.Iterator, fn db.ScanFunc) (err error) {
	defer func() {
		if cerr := it.Close(); err == nil {
			err = cerr
		}
	}()
	for valid := it.First(); valid; valid = it.Next() {
		next, err := fn(it.Key(), it.Value())
		if err != nil {
			return err
		}
		if !next {
			return nil
		}
	}
	return it.Error()
}
