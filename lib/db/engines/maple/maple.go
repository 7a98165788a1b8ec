package maple

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/eKV/lib/db"
	"github.com/ValentinKolb/eKV/lib/db/engines/maple/internal"
	iradix "github.com/hashicorp/go-immutable-radix"
	"github.com/lni/dragonboat/v4/logger"
	natomic "github.com/natefinch/atomic"
	gometrics "github.com/rcrowley/go-metrics"
)

var log = logger.GetLogger("maple")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	infoSampleSize = 1024 // Number of entries sampled by GetInfo
	entryOverhead  = 48   // Estimated bytes per radix leaf besides key and value
)

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl implements db.KVDB on an immutable radix tree.
// Every commit produces a new tree root, a snapshot is just a reference to a root.
type mapleImpl struct {
	tree   atomic.Pointer[iradix.Tree] // Current committed tree
	commit sync.Mutex                  // Serializes commits and saves

	path      string // File to load from and save to ("" = memory only)
	dirty     atomic.Bool
	closed    atomic.Bool
	lastSaved atomic.Int64 // Unix nano of the last successful save
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	Path string // File the tree is loaded from and saved to ("" = memory only)
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new MapleDB instance with the specified options (optional).
// If a path is set and the file exists, its content is loaded.
//
// Thread-safety: This function is not thread-safe and should only be called once
// during initialization.
func NewMapleDB(opts *DBOptions) (db.KVDB, error) {

	// Generate default options if not provided
	if opts == nil {
		opts = DefaultOptions()
	}

	maple := &mapleImpl{path: opts.Path}
	maple.tree.Store(iradix.New())

	if opts.Path == "" {
		return maple, nil
	}

	f, err := os.Open(opts.Path)
	if errors.Is(err, os.ErrNotExist) {
		log.Infof("no maple file at %s, starting empty", opts.Path)
		return maple, nil
	}
	if err != nil {
		return nil, fmt.Errorf("maple: open %s: %w", opts.Path, err)
	}
	defer f.Close()

	start := time.Now()
	if err := maple.Load(f); err != nil {
		return nil, fmt.Errorf("maple: load %s: %w", opts.Path, err)
	}
	log.Infof("loaded %d entries from %s in %s", maple.tree.Load().Len(), opts.Path, time.Since(start))

	return maple, nil
}

// Open is a db.Factory for maple. An empty path creates a memory only engine.
func Open(path string) (db.KVDB, error) {
	return NewMapleDB(&DBOptions{Path: path})
}

// --------------------------------------------------------------------------
// KVDB Interface Methods
// --------------------------------------------------------------------------

// NewSnapshot returns a view of the current tree root.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) NewSnapshot() (db.Snapshot, error) {
	if maple.closed.Load() {
		return nil, db.ErrClosed
	}
	return &snapshot{tree: maple.tree.Load()}, nil
}

// NewBatch starts a radix transaction on the current tree root.
//
// Thread-safety: This method is thread-safe, but commits of concurrent batches
// are not merged (the last commit wins). Callers serialize writers.
func (maple *mapleImpl) NewBatch() (db.Batch, error) {
	if maple.closed.Load() {
		return nil, db.ErrClosed
	}
	return &batch{maple: maple, txn: maple.tree.Load().Txn()}, nil
}

// Flush saves the tree to the configured path if it changed since the last save
func (maple *mapleImpl) Flush() error {
	if maple.path == "" || !maple.dirty.Load() {
		return nil
	}
	return maple.saveToPath()
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureSnapshot | db.FeatureBatch
	if maple.path != "" {
		supportedFeatures |= db.FeaturePersistence | db.FeatureFlush
	}
	return supportedFeatures&feature == feature
}

// GetInfo returns statistics about the database. Sizes are estimated from a sample.
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {
	tree := maple.tree.Load()

	// sample the first entries of the tree
	histogram := gometrics.NewHistogram(gometrics.NewUniformSample(infoSampleSize))
	it := tree.Root().Iterator()
	for i := 0; i < infoSampleSize; i++ {
		key, val, ok := it.Next()
		if !ok {
			break
		}
		histogram.Update(int64(len(key) + len(val.([]byte)) + entryOverhead))
	}

	var lastSaved string
	if ts := maple.lastSaved.Load(); ts != 0 {
		lastSaved = time.Unix(0, ts).Format(time.RFC3339)
	}

	meta := &struct {
		Path           string  `json:"path"`
		Dirty          bool    `json:"dirty"`
		LastSaved      string  `json:"last_saved"`
		MedianSize     float64 `json:"median_entry_size"`
		P99Size        float64 `json:"p99_entry_size"`
		SampledEntries int64   `json:"sampled_entries"`
		Info           string  `json:"info"`
	}{
		Path:           maple.path,
		Dirty:          maple.dirty.Load(),
		LastSaved:      lastSaved,
		MedianSize:     histogram.Percentile(0.5),
		P99Size:        histogram.Percentile(0.99),
		SampledEntries: histogram.Count(),
		Info:           "SizeBytes is estimated from a sample of the first entries.",
	}

	supportedFeatures := []db.Feature{db.FeatureSnapshot, db.FeatureBatch}
	if maple.path != "" {
		supportedFeatures = append(supportedFeatures, db.FeaturePersistence, db.FeatureFlush)
	}

	return db.DatabaseInfo{
		SizeBytes:         int(histogram.Mean() * float64(tree.Len())),
		DbType:            db.ImplMaple,
		Entries:           tree.Len(),
		SupportedFeatures: supportedFeatures,
		Metadata:          meta,
	}
}

// Close saves the tree (if a path is configured) and rejects further use
func (maple *mapleImpl) Close() error {
	if !maple.closed.CompareAndSwap(false, true) {
		return nil
	}
	if maple.path == "" || !maple.dirty.Load() {
		return nil
	}
	return maple.saveToPath()
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save writes the committed tree to w in the maple file format.
// The written state is a consistent cut because the tree root is immutable.
//
// Thread-safety: This method allows concurrent reads and commits.
func (maple *mapleImpl) Save(w io.Writer) error {
	tree := maple.tree.Load()

	writer, err := internal.NewWriter(w, uint64(tree.Len()))
	if err != nil {
		return err
	}

	it := tree.Root().Iterator()
	for key, val, ok := it.Next(); ok; key, val, ok = it.Next() {
		if err := writer.Write(key, val.([]byte)); err != nil {
			return err
		}
	}

	return writer.Close()
}

// Load replaces the committed tree with the content read from r.
// Snapshots taken before Load keep their view.
//
// Thread-safety: This method must not run concurrently with a batch commit.
func (maple *mapleImpl) Load(r io.Reader) error {
	txn := iradix.New().Txn()
	if _, err := internal.ReadAll(r, func(e internal.Entry) error {
		txn.Insert(e.Key, e.Value)
		return nil
	}); err != nil {
		return err
	}

	maple.commit.Lock()
	defer maple.commit.Unlock()
	maple.tree.Store(txn.Commit())
	return nil
}

// saveToPath writes the tree atomically to the configured path
func (maple *mapleImpl) saveToPath() error {
	maple.commit.Lock()
	defer maple.commit.Unlock()

	// reset first, commits during the save mark the tree dirty again
	maple.dirty.Store(false)

	var buf bytes.Buffer
	start := time.Now()
	if err := maple.Save(&buf); err != nil {
		maple.dirty.Store(true)
		return fmt.Errorf("maple: save: %w", err)
	}
	size := buf.Len()
	if err := natomic.WriteFile(maple.path, &buf); err != nil {
		maple.dirty.Store(true)
		return fmt.Errorf("maple: write %s: %w", maple.path, err)
	}

	maple.lastSaved.Store(time.Now().UnixNano())
	log.Debugf("saved %d bytes to %s in %s", size, maple.path, time.Since(start))
	return nil
}

// --------------------------------------------------------------------------
// Snapshot
// --------------------------------------------------------------------------

// snapshot is an immutable tree root
type snapshot struct {
	tree *iradix.Tree
}

func (s *snapshot) Get(key []byte) ([]byte, bool, error) {
	val, ok := s.tree.Get(key)
	if !ok {
		return nil, false, nil
	}
	return db.Clone(val.([]byte)), true, nil
}

func (s *snapshot) Scan(prefix []byte, fn db.ScanFunc) error {
	return scanNode(s.tree.Root(), prefix, fn)
}

func (s *snapshot) Close() error {
	s.tree = nil
	return nil
}

// --------------------------------------------------------------------------
// Batch
// --------------------------------------------------------------------------

// batch wraps a radix transaction. Reads see the pending writes of the transaction.
type batch struct {
	maple *mapleImpl
	txn   *iradix.Txn
	done  bool
}

func (b *batch) Get(key []byte) ([]byte, bool, error) {
	if b.done {
		return nil, false, db.ErrBatchDone
	}
	val, ok := b.txn.Get(key)
	if !ok {
		return nil, false, nil
	}
	return db.Clone(val.([]byte)), true, nil
}

func (b *batch) Scan(prefix []byte, fn db.ScanFunc) error {
	if b.done {
		return db.ErrBatchDone
	}
	return scanNode(b.txn.Root(), prefix, fn)
}

func (b *batch) Set(key, value []byte) error {
	if b.done {
		return db.ErrBatchDone
	}
	// an empty value is stored as an empty non-nil slice
	v := make([]byte, len(value))
	copy(v, value)
	b.txn.Insert(key, v)
	return nil
}

func (b *batch) Delete(key []byte) error {
	if b.done {
		return db.ErrBatchDone
	}
	b.txn.Delete(key)
	return nil
}

func (b *batch) Commit() error {
	if b.done {
		return db.ErrBatchDone
	}
	if b.maple.closed.Load() {
		return db.ErrClosed
	}
	b.done = true

	b.maple.commit.Lock()
	defer b.maple.commit.Unlock()
	b.maple.tree.Store(b.txn.Commit())
	b.maple.dirty.Store(true)
	return nil
}

func (b *batch) Discard() {
	b.done = true
	b.txn = nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// scanNode iterates all leaves below root whose key starts with prefix in ascending order
func scanNode(root *iradix.Node, prefix []byte, fn db.ScanFunc) error {
	it := root.Iterator()
	it.SeekPrefix(prefix)
	for key, val, ok := it.Next(); ok; key, val, ok = it.Next() {
		next, err := fn(key, val.([]byte))
		if err != nil {
			return err
		}
		if !next {
			return nil
		}
	}
	return nil
}
