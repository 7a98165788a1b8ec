package core

import (
	"github.com/ValentinKolb/eKV/lib/codec"
	"github.com/ValentinKolb/eKV/lib/db"
)

// --------------------------------------------------------------------------
// Extension Interface
// --------------------------------------------------------------------------

// Extension is a derived structure (index, view, search, graph, ...) that is kept
// transactionally consistent with the primary data of a Database.
//
// Extensions must be comparable (typically a pointer), the registry tracks them by identity.
// A single extension value can be registered with at most one name per database.
type Extension interface {
	// Install is called once inside the exclusive registration transaction.
	// It typically enumerates every primary entry (tx.EnumerateEntries) to build
	// the initial derived state. Returning an error aborts the registration and
	// discards everything written to the private storage.
	Install(tx ExtensionTxn) error

	// OnMutation is called before a write transaction commits, with all mutations
	// of the transaction in order. Returning an error rolls back the whole transaction.
	OnMutation(tx ExtensionTxn, mutations []Mutation) error

	// Detach is called when the extension leaves the database (unregistration or Close).
	// The extension must release resources but must not access the database anymore.
	Detach() error
}

// ExtensionTxn is the view an extension gets inside Install and OnMutation.
// Reads of primary data observe the pending writes of the transaction.
// Only the goroutine running the callback may use it, and only during the call.
type ExtensionTxn interface {
	// Name returns the registration name of the extension
	Name() string

	// Get returns the primary entry stored for collection and key
	Get(collection, key string) (entry Entry, found bool, err error)

	// EnumerateEntries calls fn for every primary entry of all collections,
	// ordered by collection and key. Returning false stops the enumeration.
	// fn may write to Storage while enumerating.
	EnumerateEntries(fn func(entry Entry) (next bool, err error)) error

	// Storage returns the private storage of the extension
	Storage() Storage
}

// ExtensionState is the lifecycle state of an extension within one database
type ExtensionState int

const (
	StateUnregistered ExtensionState = iota // Never registered, or unregistered
	StateRegistering                        // Install is running
	StateActive                             // Registered, receives mutations
	StateFailed                             // The last registration attempt failed
)

func (s ExtensionState) String() string {
	switch s {
	case StateUnregistered:
		return "Unregistered"
	case StateRegistering:
		return "Registering"
	case StateActive:
		return "Active"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Entry is a decoded primary record
type Entry struct {
	Collection string
	Key        string
	Object     any
	Metadata   any // nil if the record has no metadata
}

// --------------------------------------------------------------------------
// Private Storage
// --------------------------------------------------------------------------

// StorageReader gives read access to the private storage of an extension.
// Keys are relative to the extension namespace.
type StorageReader interface {
	Get(key []byte) (value []byte, found bool, err error)
	Scan(prefix []byte, fn db.ScanFunc) error
}

// Storage gives read and write access to the private storage of an extension.
// Writes become durable together with the transaction they were made in.
type Storage interface {
	StorageReader
	Set(key, value []byte) error
	Delete(key []byte) error
}

// storageReader maps extension-relative keys onto an engine reader
type storageReader struct {
	prefix []byte
	r      db.Reader

	// materialize collects scan results before calling back, required
	// when r is a batch the callback may write to
	materialize bool
}

func (s *storageReader) key(k []byte) []byte {
	out := make([]byte, 0, len(s.prefix)+len(k))
	return append(append(out, s.prefix...), k...)
}

func (s *storageReader) Get(key []byte) ([]byte, bool, error) {
	return s.r.Get(s.key(key))
}

func (s *storageReader) Scan(prefix []byte, fn db.ScanFunc) error {
	strip := len(s.prefix)
	if !s.materialize {
		return s.r.Scan(s.key(prefix), func(k, v []byte) (bool, error) {
			return fn(k[strip:], v)
		})
	}

	type pair struct{ k, v []byte }
	var pairs []pair
	err := s.r.Scan(s.key(prefix), func(k, v []byte) (bool, error) {
		pairs = append(pairs, pair{db.Clone(k[strip:]), db.Clone(v)})
		return true, nil
	})
	if err != nil {
		return err
	}
	for _, p := range pairs {
		next, err := fn(p.k, p.v)
		if err != nil || !next {
			return err
		}
	}
	return nil
}

// storage adds writes through the transaction batch
type storage struct {
	storageReader
	b db.Batch
}

func (s *storage) Set(key, value []byte) error {
	return s.b.Set(s.key(key), value)
}

func (s *storage) Delete(key []byte) error {
	return s.b.Delete(s.key(key))
}

// --------------------------------------------------------------------------
// Extension Transaction
// --------------------------------------------------------------------------

// extensionTxn implements ExtensionTxn.
// primary is either the batch of a write transaction or, during Install,
// a snapshot taken at the same state as the registration batch.
type extensionTxn struct {
	name        string
	primary     db.Reader
	materialize bool
	codecs      codec.Config
	storage     *storage
}

func newExtensionTxn(name string, primary db.Reader, b db.Batch, codecs codec.Config) *extensionTxn {
	// scanning the batch while the extension writes to it is not allowed
	materialize := primary == db.Reader(b)
	return &extensionTxn{
		name:        name,
		primary:     primary,
		materialize: materialize,
		codecs:      codecs,
		storage: &storage{
			storageReader: storageReader{prefix: extensionPrefix(name), r: b, materialize: true},
			b:             b,
		},
	}
}

func (t *extensionTxn) Name() string {
	return t.name
}

func (t *extensionTxn) Get(collection, key string) (Entry, bool, error) {
	if !validCollection(collection) {
		return Entry{}, false, ErrInvalidKey
	}
	return getEntry(t.primary, t.codecs, collection, key)
}

func (t *extensionTxn) EnumerateEntries(fn func(entry Entry) (bool, error)) error {
	return enumerate(t.primary, t.codecs, primaryPrefix(), t.materialize, fn)
}

func (t *extensionTxn) Storage() Storage {
	return t.storage
}
