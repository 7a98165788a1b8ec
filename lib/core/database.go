package core

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/eKV/lib/codec"
	"github.com/ValentinKolb/eKV/lib/db"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("core")

// --------------------------------------------------------------------------
// Database
// --------------------------------------------------------------------------

// Database is the shared core of the stores. It owns the storage engine at a path,
// the codecs for objects and metadata and the extension registry, and hands out
// connections.
//
// Concurrency model:
//   - Any number of read transactions run in parallel on immutable snapshots.
//   - At most one write transaction (or registration) runs at a time (writeMu).
//   - A commit applies the engine batch and publishes the registry state inside
//     the publication lock. Readers capture snapshot and registry inside the same
//     lock, so a reader never sees an extension without its backfilled storage.
type Database struct {
	path   string
	opts   Options
	codecs codec.Config
	engine db.KVDB

	writeMu  sync.Mutex   // single write slot
	publish  sync.RWMutex // publication critical section
	registry atomic.Pointer[registryState]
	states   *xsync.MapOf[Extension, ExtensionState]

	connMu      sync.Mutex // orders NewConnection against Close
	connections *xsync.MapOf[uuid.UUID, *Connection]
	closed      atomic.Bool
	metrics     *dbMetrics
}

// Open opens (or creates) a database at path. opts may be nil to use DefaultOptions.
// The codecs of the options are fixed for the lifetime of the database.
func Open(path string, opts *Options) (*Database, error) {
	o, err := opts.normalize()
	if err != nil {
		return nil, err
	}

	engine, err := o.Engine(path)
	if err != nil {
		return nil, fmt.Errorf("core: open engine at %q: %w", path, err)
	}

	d := &Database{
		path:        path,
		opts:        o,
		codecs:      o.Codecs,
		engine:      engine,
		states:      newStateTable(),
		connections: xsync.NewMapOf[uuid.UUID, *Connection](),
		metrics:     newDBMetrics(),
	}
	d.registry.Store(emptyRegistry)

	log.Infof("opened database at %q (object codec=%s, metadata codec=%s)",
		path, o.Codecs.Object, o.Codecs.Metadata)
	return d, nil
}

// Path returns the storage path the database was opened with
func (d *Database) Path() string {
	return d.path
}

// ObjectCodec returns the codec pair used for objects
func (d *Database) ObjectCodec() codec.Pair {
	return d.codecs.Object
}

// MetadataCodec returns the codec pair used for metadata
func (d *Database) MetadataCodec() codec.Pair {
	return d.codecs.Metadata
}

// NewConnection creates a connection to the database. Connections are cheap,
// but every connection must be closed before the database can be closed. A
// connection created after Close is not tracked and its transactions fail with
// ErrDatabaseClosed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (d *Database) NewConnection() *Connection {
	c := &Connection{id: uuid.New(), db: d}

	d.connMu.Lock()
	defer d.connMu.Unlock()
	if d.closed.Load() {
		// never registered, every transaction fails with ErrDatabaseClosed
		c.closed.Store(true)
		return c
	}
	d.connections.Store(c.id, c)
	openConnectionsGlobal.Add(1)
	log.Debugf("connection %s opened", c.id)
	return c
}

// Info returns the information of the storage engine
func (d *Database) Info() db.DatabaseInfo {
	return d.engine.GetInfo()
}

// Flush writes buffered engine state to durable storage if the engine supports it
func (d *Database) Flush() error {
	if d.closed.Load() {
		return ErrDatabaseClosed
	}
	if !d.engine.SupportsFeature(db.FeatureFlush) {
		return nil
	}
	return d.engine.Flush()
}

// Stats returns a point-in-time summary of the database
func (d *Database) Stats() Stats {
	names := d.registry.Load().names
	s := Stats{
		Path:            d.path,
		Engine:          string(d.engine.GetInfo().DbType),
		ObjectCodec:     d.codecs.Object.String(),
		MetadataCodec:   d.codecs.Metadata.String(),
		OpenConnections: d.connections.Size(),
		Extensions:      append([]string(nil), names...),
		Commits:         d.metrics.commit.Count(),
		Rollbacks:       d.metrics.rollbacks.Count(),
		CommitMean:      time.Duration(d.metrics.commit.Mean()),
		CommitP99:       time.Duration(d.metrics.commit.Percentile(0.99)),
		Hooks:           make(map[string]HookStats, len(names)),
	}
	for _, name := range names {
		t := d.metrics.hookTimer(name)
		s.Hooks[name] = HookStats{
			Calls:    t.Count(),
			Failures: d.metrics.hookFailures(name).Count(),
			Mean:     time.Duration(t.Mean()),
			P99:      time.Duration(t.Percentile(0.99)),
		}
	}
	return s
}

// Close detaches all extensions (in reverse registration order) and closes the engine.
// It fails with ErrOpenConnections while connections are open.
//
// Thread-safety: Close waits for a running write transaction to finish.
func (d *Database) Close() error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.connMu.Lock()
	if n := d.connections.Size(); n > 0 {
		d.connMu.Unlock()
		return fmt.Errorf("%w (%d)", ErrOpenConnections, n)
	}
	swapped := d.closed.CompareAndSwap(false, true)
	d.connMu.Unlock()
	if !swapped {
		return nil
	}

	reg := d.registry.Load()
	for i := len(reg.names) - 1; i >= 0; i-- {
		name := reg.names[i]
		if err := callDetach(reg.exts[name]); err != nil {
			log.Warningf("detach of extension %q failed: %v", name, err)
		}
		d.states.Delete(reg.exts[name])
	}
	d.registry.Store(emptyRegistry)

	log.Infof("closing database at %q", d.path)
	return d.engine.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// capture returns a snapshot together with the registry state it belongs to
func (d *Database) capture() (db.Snapshot, *registryState, error) {
	d.publish.RLock()
	defer d.publish.RUnlock()

	snap, err := d.engine.NewSnapshot()
	if err != nil {
		return nil, nil, err
	}
	return snap, d.registry.Load(), nil
}

// commitBatch applies batch and, if reg is not nil, publishes reg atomically with it.
// The caller holds the write slot.
func (d *Database) commitBatch(batch db.Batch, reg *registryState) error {
	start := time.Now()
	defer commitDuration.UpdateDuration(start)

	d.publish.Lock()
	defer d.publish.Unlock()

	if err := batch.Commit(); err != nil {
		return err
	}
	if reg != nil {
		d.registry.Store(reg)
	}
	return nil
}
