package core

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/eKV/lib/codec"
	"github.com/ValentinKolb/eKV/lib/db"
)

// --------------------------------------------------------------------------
// Shared Read API
// --------------------------------------------------------------------------

// view implements the read API shared by read and read-write transactions
type view struct {
	r        db.Reader
	codecs   codec.Config
	registry *registryState

	// materialize collects scan results before calling back (read-write transactions)
	materialize bool

	// usable returns an error if the transaction can not be used anymore
	usable func() error
}

// Get returns the object and metadata stored for collection and key.
//
// Thread-safety: A transaction must only be used by one goroutine at a time.
func (v *view) Get(collection, key string) (Entry, bool, error) {
	if err := v.usable(); err != nil {
		return Entry{}, false, err
	}
	if !validCollection(collection) {
		return Entry{}, false, ErrInvalidKey
	}
	return getEntry(v.r, v.codecs, collection, key)
}

// Object returns only the object stored for collection and key (metadata is not decoded)
func (v *view) Object(collection, key string) (any, bool, error) {
	raw, found, err := v.raw(collection, key)
	if err != nil || !found {
		return nil, false, err
	}
	obj, _, _, err := decodeRecord(raw)
	if err != nil {
		return nil, false, err
	}
	object, err := v.codecs.Object.Deserialize(obj)
	if err != nil {
		codecErrorsTotal.Inc()
		return nil, false, err
	}
	return object, true, nil
}

// Metadata returns only the metadata stored for collection and key.
// found reports whether the key exists, a key without metadata returns (nil, true, nil).
func (v *view) Metadata(collection, key string) (any, bool, error) {
	raw, found, err := v.raw(collection, key)
	if err != nil || !found {
		return nil, false, err
	}
	_, meta, hasMeta, err := decodeRecord(raw)
	if err != nil || !hasMeta {
		return nil, err == nil, err
	}
	metadata, err := v.codecs.Metadata.Deserialize(meta)
	if err != nil {
		codecErrorsTotal.Inc()
		return nil, false, err
	}
	return metadata, true, nil
}

// Has reports whether collection contains key
func (v *view) Has(collection, key string) (bool, error) {
	_, found, err := v.raw(collection, key)
	return found, err
}

// Count returns the number of keys in collection
func (v *view) Count(collection string) (int, error) {
	if err := v.usable(); err != nil {
		return 0, err
	}
	if !validCollection(collection) {
		return 0, ErrInvalidKey
	}
	return count(v.r, collectionPrefix(collection))
}

// CountAll returns the number of keys in all collections
func (v *view) CountAll() (int, error) {
	if err := v.usable(); err != nil {
		return 0, err
	}
	return count(v.r, primaryPrefix())
}

// Collections returns the names of all non-empty collections in ascending order
func (v *view) Collections() ([]string, error) {
	if err := v.usable(); err != nil {
		return nil, err
	}

	var collections []string
	err := v.r.Scan(primaryPrefix(), func(k, _ []byte) (bool, error) {
		collection, _, err := splitPrimaryKey(k)
		if err != nil {
			return false, err
		}
		if n := len(collections); n == 0 || collections[n-1] != collection {
			collections = append(collections, collection)
		}
		return true, nil
	})
	return collections, err
}

// Enumerate calls fn for every entry of collection in ascending key order.
// Returning false from fn stops the enumeration.
func (v *view) Enumerate(collection string, fn func(entry Entry) (next bool, err error)) error {
	if err := v.usable(); err != nil {
		return err
	}
	if !validCollection(collection) {
		return ErrInvalidKey
	}
	return enumerate(v.r, v.codecs, collectionPrefix(collection), v.materialize, fn)
}

// EnumerateKeys calls fn for every key of collection in ascending order without decoding values
func (v *view) EnumerateKeys(collection string, fn func(key string) (next bool, err error)) error {
	if err := v.usable(); err != nil {
		return err
	}
	if !validCollection(collection) {
		return ErrInvalidKey
	}

	keys, err := collectKeys(v.r, collectionPrefix(collection))
	if err != nil {
		return err
	}
	for _, k := range keys {
		_, key, err := splitPrimaryKey(k)
		if err != nil {
			return err
		}
		next, err := fn(key)
		if err != nil || !next {
			return err
		}
	}
	return nil
}

// RegisteredExtensions returns the extensions that were active when the transaction began
func (v *view) RegisteredExtensions() map[string]Extension {
	return v.registry.snapshot()
}

// raw returns the undecoded record of collection and key
func (v *view) raw(collection, key string) ([]byte, bool, error) {
	if err := v.usable(); err != nil {
		return nil, false, err
	}
	if !validCollection(collection) {
		return nil, false, ErrInvalidKey
	}
	return v.r.Get(primaryKey(collection, key))
}

// --------------------------------------------------------------------------
// Read Transaction
// --------------------------------------------------------------------------

// ReadTxn is a read-only transaction bound to an immutable snapshot of the
// primary data and of the extension registry. It never invokes extension hooks
// and never blocks writers.
type ReadTxn struct {
	*view
	conn *Connection
	snap db.Snapshot
	done bool
}

// ExtensionStorage returns a read-only view of the private storage of an extension
// that was active when the transaction began. Extensions answer their queries from it.
func (tx *ReadTxn) ExtensionStorage(name string) (StorageReader, bool) {
	if tx.done {
		return nil, false
	}
	if _, ok := tx.registry.exts[name]; !ok {
		return nil, false
	}
	return &storageReader{prefix: extensionPrefix(name), r: tx.snap}, true
}

// Close releases the snapshot. Closing twice is a no-op.
func (tx *ReadTxn) Close() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.conn.active.Add(-1)
	return tx.snap.Close()
}

// --------------------------------------------------------------------------
// Read-Write Transaction
// --------------------------------------------------------------------------

// ReadWriteTxn is the exclusive write transaction of a database. Reads observe
// the transaction's own writes. All writes (primary data and extension storage)
// are applied atomically by Commit, after every active extension accepted the
// mutations.
type ReadWriteTxn struct {
	*view
	conn      *Connection
	db        *Database
	batch     db.Batch
	mutations []Mutation
	started   time.Time
	done      bool
	err       error // set if the transaction was aborted by a failed operation
}

// Set stores object (and metadata, nil for none) for collection and key.
// Setting a nil object removes the key.
// If serialization fails the transaction is rolled back and the codec error is returned.
func (tx *ReadWriteTxn) Set(collection, key string, object, metadata any) error {
	if err := tx.usable(); err != nil {
		return err
	}
	if !validCollection(collection) {
		return ErrInvalidKey
	}
	if object == nil {
		return tx.Remove(collection, key)
	}

	objBytes, err := tx.codecs.Object.Serialize(object)
	if err != nil {
		codecErrorsTotal.Inc()
		return tx.abort(err)
	}
	var metaBytes []byte
	if metadata != nil {
		if metaBytes, err = tx.codecs.Metadata.Serialize(metadata); err != nil {
			codecErrorsTotal.Inc()
			return tx.abort(err)
		}
	}

	k := primaryKey(collection, key)
	_, exists, err := tx.batch.Get(k)
	if err != nil {
		return tx.abort(err)
	}
	if err := tx.batch.Set(k, encodeRecord(objBytes, metaBytes, metadata != nil)); err != nil {
		return tx.abort(err)
	}

	kind := MutationInsert
	if exists {
		kind = MutationUpdate
	}
	tx.mutations = append(tx.mutations, Mutation{
		Kind:       kind,
		Collection: collection,
		Key:        key,
		Object:     object,
		Metadata:   metadata,
	})
	return nil
}

// SetMetadata replaces the metadata of an existing key (nil removes it) and keeps
// the object. It is a no-op if the key does not exist.
func (tx *ReadWriteTxn) SetMetadata(collection, key string, metadata any) error {
	raw, found, err := tx.raw(collection, key)
	if err != nil || !found {
		return err
	}
	obj, _, _, err := decodeRecord(raw)
	if err != nil {
		return tx.abort(err)
	}

	var metaBytes []byte
	if metadata != nil {
		if metaBytes, err = tx.codecs.Metadata.Serialize(metadata); err != nil {
			codecErrorsTotal.Inc()
			return tx.abort(err)
		}
	}
	if err := tx.batch.Set(primaryKey(collection, key), encodeRecord(obj, metaBytes, metadata != nil)); err != nil {
		return tx.abort(err)
	}

	tx.mutations = append(tx.mutations, Mutation{
		Kind:       MutationUpdateMetadata,
		Collection: collection,
		Key:        key,
		Metadata:   metadata,
	})
	return nil
}

// Remove deletes key from collection. Removing a missing key is a no-op.
func (tx *ReadWriteTxn) Remove(collection, key string) error {
	_, found, err := tx.raw(collection, key)
	if err != nil || !found {
		return err
	}
	return tx.remove(collection, key)
}

// RemoveKeys deletes the given keys from collection
func (tx *ReadWriteTxn) RemoveKeys(collection string, keys []string) error {
	for _, key := range keys {
		if err := tx.Remove(collection, key); err != nil {
			return err
		}
	}
	return nil
}

// RemoveAll deletes every key of collection
func (tx *ReadWriteTxn) RemoveAll(collection string) error {
	if err := tx.usable(); err != nil {
		return err
	}
	if !validCollection(collection) {
		return ErrInvalidKey
	}
	return tx.removePrefix(collectionPrefix(collection))
}

// RemoveEverything deletes every key of every collection.
// Extension storage is not touched directly, extensions receive the removals.
func (tx *ReadWriteTxn) RemoveEverything() error {
	if err := tx.usable(); err != nil {
		return err
	}
	return tx.removePrefix(primaryPrefix())
}

// Mutations returns a copy of the mutations made so far, in order
func (tx *ReadWriteTxn) Mutations() []Mutation {
	out := make([]Mutation, len(tx.mutations))
	copy(out, tx.mutations)
	return out
}

// ExtensionStorage returns the writable private storage of an active extension
func (tx *ReadWriteTxn) ExtensionStorage(name string) (Storage, bool) {
	if tx.done {
		return nil, false
	}
	if _, ok := tx.registry.exts[name]; !ok {
		return nil, false
	}
	return &storage{
		storageReader: storageReader{prefix: extensionPrefix(name), r: tx.batch, materialize: true},
		b:             tx.batch,
	}, true
}

// Commit hands the mutations to every active extension in registration order and
// applies all writes atomically. If an extension fails, nothing is applied and an
// *ExtensionHookError is returned. The transaction is finished in every case.
func (tx *ReadWriteTxn) Commit() error {
	if err := tx.usable(); err != nil {
		return err
	}

	if len(tx.mutations) > 0 {
		for _, name := range tx.registry.names {
			ext := tx.registry.exts[name]
			if err := tx.db.runHook(name, ext, tx.batch, tx.mutations); err != nil {
				hookFailuresTotal.Inc()
				log.Warningf("extension %q rejected transaction with %d mutations, rolling back: %v", name, len(tx.mutations), err)
				tx.rollback()
				return &ExtensionHookError{Name: name, Err: err}
			}
		}
	}

	err := tx.db.commitBatch(tx.batch, nil)
	tx.finish()
	if err != nil {
		rollbacksTotal.Inc()
		tx.db.metrics.rollbacks.Inc(1)
		return fmt.Errorf("core: commit failed: %w", err)
	}

	commitsTotal.Inc()
	mutationsTotal.Add(len(tx.mutations))
	elapsed := time.Since(tx.started)
	tx.db.metrics.commit.Update(elapsed)
	if threshold := tx.db.opts.SlowCommitThreshold; threshold > 0 && elapsed > threshold {
		log.Infof("Transaction took long to commit. %d mutations, %d extensions, took %.2fms",
			len(tx.mutations), len(tx.registry.names), float64(elapsed)/float64(time.Millisecond))
	}
	return nil
}

// Rollback discards all writes. Rolling back a finished transaction returns ErrTransactionDone.
func (tx *ReadWriteTxn) Rollback() error {
	if tx.done {
		return ErrTransactionDone
	}
	tx.rollback()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (tx *ReadWriteTxn) check() error {
	if tx.err != nil {
		return fmt.Errorf("%w: aborted by earlier error: %v", ErrTransactionDone, tx.err)
	}
	if tx.done {
		return ErrTransactionDone
	}
	return nil
}

// abort rolls back the transaction because of err and returns err
func (tx *ReadWriteTxn) abort(err error) error {
	tx.err = err
	tx.rollback()
	return err
}

func (tx *ReadWriteTxn) rollback() {
	tx.batch.Discard()
	rollbacksTotal.Inc()
	tx.db.metrics.rollbacks.Inc(1)
	tx.finish()
}

// finish releases the write slot
func (tx *ReadWriteTxn) finish() {
	if tx.done {
		return
	}
	tx.done = true
	tx.conn.active.Add(-1)
	tx.db.writeMu.Unlock()
}

func (tx *ReadWriteTxn) remove(collection, key string) error {
	if err := tx.batch.Delete(primaryKey(collection, key)); err != nil {
		return tx.abort(err)
	}
	tx.mutations = append(tx.mutations, Mutation{
		Kind:       MutationRemove,
		Collection: collection,
		Key:        key,
	})
	return nil
}

func (tx *ReadWriteTxn) removePrefix(prefix []byte) error {
	keys, err := collectKeys(tx.batch, prefix)
	if err != nil {
		return tx.abort(err)
	}
	for _, k := range keys {
		collection, key, err := splitPrimaryKey(k)
		if err != nil {
			return tx.abort(err)
		}
		if err := tx.remove(collection, key); err != nil {
			return err
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Decoding Helpers
// --------------------------------------------------------------------------

// getEntry reads and decodes a primary record
func getEntry(r db.Reader, codecs codec.Config, collection, key string) (Entry, bool, error) {
	raw, found, err := r.Get(primaryKey(collection, key))
	if err != nil || !found {
		return Entry{}, false, err
	}
	entry, err := decodeEntry(codecs, collection, key, raw)
	if err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

// decodeEntry deserializes object and metadata of a record
func decodeEntry(codecs codec.Config, collection, key string, raw []byte) (Entry, error) {
	obj, meta, hasMeta, err := decodeRecord(raw)
	if err != nil {
		return Entry{}, fmt.Errorf("%s/%s: %w", collection, key, err)
	}

	entry := Entry{Collection: collection, Key: key}
	if entry.Object, err = codecs.Object.Deserialize(obj); err != nil {
		codecErrorsTotal.Inc()
		return Entry{}, err
	}
	if hasMeta {
		if entry.Metadata, err = codecs.Metadata.Deserialize(meta); err != nil {
			codecErrorsTotal.Inc()
			return Entry{}, err
		}
	}
	return entry, nil
}

// enumerate decodes every record below prefix and calls fn.
// With materialize set, all records are read before the first callback.
func enumerate(r db.Reader, codecs codec.Config, prefix []byte, materialize bool, fn func(Entry) (bool, error)) error {
	visit := func(k, v []byte) (bool, error) {
		collection, key, err := splitPrimaryKey(k)
		if err != nil {
			return false, err
		}
		entry, err := decodeEntry(codecs, collection, key, v)
		if err != nil {
			return false, err
		}
		return fn(entry)
	}

	if !materialize {
		return r.Scan(prefix, visit)
	}

	type record struct{ k, v []byte }
	var records []record
	err := r.Scan(prefix, func(k, v []byte) (bool, error) {
		records = append(records, record{db.Clone(k), db.Clone(v)})
		return true, nil
	})
	if err != nil {
		return err
	}
	for _, rec := range records {
		next, err := visit(rec.k, rec.v)
		if err != nil || !next {
			return err
		}
	}
	return nil
}

// collectKeys returns copies of all engine keys below prefix
func collectKeys(r db.Reader, prefix []byte) ([][]byte, error) {
	var keys [][]byte
	err := r.Scan(prefix, func(k, _ []byte) (bool, error) {
		keys = append(keys, db.Clone(k))
		return true, nil
	})
	return keys, err
}

// count returns the number of engine keys below prefix
func count(r db.Reader, prefix []byte) (int, error) {
	n := 0
	err := r.Scan(prefix, func(_, _ []byte) (bool, error) {
		n++
		return true, nil
	})
	return n, err
}
