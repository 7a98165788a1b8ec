package kvstore

import (
	"github.com/ValentinKolb/eKV/lib/core"
	"github.com/ValentinKolb/eKV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("store")

// collection is the single collection all keys of a key/value store live in
const collection = ""

// Database is a flat key/value store. It embeds the database core, so codecs,
// extensions and statistics work exactly like on a *core.Database.
type Database struct {
	*core.Database
}

var _ store.IStore = (*Database)(nil)

// Open opens (or creates) a key/value store at path. opts may be nil.
func Open(path string, opts *core.Options) (*Database, error) {
	d, err := core.Open(path, opts)
	if err != nil {
		return nil, err
	}
	log.Infof("opened key/value store at %q", path)
	return &Database{Database: d}, nil
}

// NewConnection creates a connection to the store
func (d *Database) NewConnection() *Connection {
	return &Connection{conn: d.Database.NewConnection()}
}

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

// Connection is a handle used to begin transactions on the store
type Connection struct {
	conn *core.Connection
}

// Core returns the underlying core connection
func (c *Connection) Core() *core.Connection {
	return c.conn
}

// BeginRead starts a read transaction on a snapshot of the store
func (c *Connection) BeginRead() (*ReadTxn, error) {
	tx, err := c.conn.BeginRead()
	if err != nil {
		return nil, store.Wrap(err)
	}
	return &ReadTxn{reader: reader{r: tx}, tx: tx}, nil
}

// BeginReadWrite starts the exclusive write transaction of the store
func (c *Connection) BeginReadWrite() (*ReadWriteTxn, error) {
	tx, err := c.conn.BeginReadWrite()
	if err != nil {
		return nil, store.Wrap(err)
	}
	return &ReadWriteTxn{reader: reader{r: tx}, tx: tx}, nil
}

// Read runs fn in a read transaction
func (c *Connection) Read(fn func(tx *ReadTxn) error) error {
	return store.Wrap(c.conn.Read(func(tx *core.ReadTxn) error {
		return fn(&ReadTxn{reader: reader{r: tx}, tx: tx})
	}))
}

// ReadWrite runs fn in a read-write transaction that is committed if fn returns nil
func (c *Connection) ReadWrite(fn func(tx *ReadWriteTxn) error) error {
	return store.Wrap(c.conn.ReadWrite(func(tx *core.ReadWriteTxn) error {
		return fn(&ReadWriteTxn{reader: reader{r: tx}, tx: tx})
	}))
}

// Close closes the connection
func (c *Connection) Close() error {
	return store.Wrap(c.conn.Close())
}

// --------------------------------------------------------------------------
// Transactions
// --------------------------------------------------------------------------

// ReadTxn is a read-only transaction on a snapshot of the store
type ReadTxn struct {
	reader
	tx *core.ReadTxn
}

// ExtensionStorage returns the private storage of an extension for answering queries
func (t *ReadTxn) ExtensionStorage(name string) (core.StorageReader, bool) {
	return t.tx.ExtensionStorage(name)
}

// Close releases the snapshot
func (t *ReadTxn) Close() error {
	return t.tx.Close()
}

// ReadWriteTxn is the exclusive write transaction of the store.
// Reads observe the writes of the transaction.
type ReadWriteTxn struct {
	reader
	tx *core.ReadWriteTxn
}

// Set stores object for key without metadata (a nil object removes the key)
func (t *ReadWriteTxn) Set(key string, object any) error {
	return t.SetWithMetadata(key, object, nil)
}

// SetWithMetadata stores object and metadata for key
func (t *ReadWriteTxn) SetWithMetadata(key string, object, metadata any) error {
	if err := store.CheckKey(key); err != nil {
		return err
	}
	return store.Wrap(t.tx.Set(collection, key, object, metadata))
}

// SetMetadata replaces the metadata of an existing key. It is a no-op for missing keys.
func (t *ReadWriteTxn) SetMetadata(key string, metadata any) error {
	if err := store.CheckKey(key); err != nil {
		return err
	}
	return store.Wrap(t.tx.SetMetadata(collection, key, metadata))
}

// Remove deletes key
func (t *ReadWriteTxn) Remove(key string) error {
	if err := store.CheckKey(key); err != nil {
		return err
	}
	return store.Wrap(t.tx.Remove(collection, key))
}

// RemoveKeys deletes all given keys
func (t *ReadWriteTxn) RemoveKeys(keys []string) error {
	for _, key := range keys {
		if err := store.CheckKey(key); err != nil {
			return err
		}
	}
	return store.Wrap(t.tx.RemoveKeys(collection, keys))
}

// RemoveAll deletes every key of the store
func (t *ReadWriteTxn) RemoveAll() error {
	return store.Wrap(t.tx.RemoveAll(collection))
}

// ExtensionStorage returns the writable private storage of an extension
func (t *ReadWriteTxn) ExtensionStorage(name string) (core.Storage, bool) {
	return t.tx.ExtensionStorage(name)
}

// Commit runs the extension hooks and applies all writes atomically
func (t *ReadWriteTxn) Commit() error {
	return store.Wrap(t.tx.Commit())
}

// Rollback discards all writes
func (t *ReadWriteTxn) Rollback() error {
	return store.Wrap(t.tx.Rollback())
}

// --------------------------------------------------------------------------
// Shared Read Operations
// --------------------------------------------------------------------------

// coreReader is the read API shared by core.ReadTxn and core.ReadWriteTxn
type coreReader interface {
	Object(collection, key string) (any, bool, error)
	Metadata(collection, key string) (any, bool, error)
	Get(collection, key string) (core.Entry, bool, error)
	Has(collection, key string) (bool, error)
	Count(collection string) (int, error)
	Enumerate(collection string, fn func(entry core.Entry) (bool, error)) error
	EnumerateKeys(collection string, fn func(key string) (bool, error)) error
}

type reader struct {
	r coreReader
}

// Object returns the object stored for key
func (r reader) Object(key string) (any, bool, error) {
	if err := store.CheckKey(key); err != nil {
		return nil, false, err
	}
	obj, found, err := r.r.Object(collection, key)
	return obj, found, store.Wrap(err)
}

// Metadata returns the metadata stored for key (nil if the key has none)
func (r reader) Metadata(key string) (any, bool, error) {
	if err := store.CheckKey(key); err != nil {
		return nil, false, err
	}
	meta, found, err := r.r.Metadata(collection, key)
	return meta, found, store.Wrap(err)
}

// ObjectAndMetadata returns object and metadata stored for key
func (r reader) ObjectAndMetadata(key string) (object, metadata any, found bool, err error) {
	if err := store.CheckKey(key); err != nil {
		return nil, nil, false, err
	}
	entry, found, err := r.r.Get(collection, key)
	return entry.Object, entry.Metadata, found, store.Wrap(err)
}

// Has reports whether key exists
func (r reader) Has(key string) (bool, error) {
	if err := store.CheckKey(key); err != nil {
		return false, err
	}
	found, err := r.r.Has(collection, key)
	return found, store.Wrap(err)
}

// Count returns the number of keys
func (r reader) Count() (int, error) {
	n, err := r.r.Count(collection)
	return n, store.Wrap(err)
}

// EnumerateKeys calls fn for every key in ascending order until fn returns false
func (r reader) EnumerateKeys(fn func(key string) bool) error {
	return store.Wrap(r.r.EnumerateKeys(collection, func(key string) (bool, error) {
		return fn(key), nil
	}))
}

// EnumerateKeysAndObjects calls fn for every key and object in ascending key order
// until fn returns false
func (r reader) EnumerateKeysAndObjects(fn func(key string, object any) bool) error {
	return store.Wrap(r.r.Enumerate(collection, func(entry core.Entry) (bool, error) {
		return fn(entry.Key, entry.Object), nil
	}))
}
