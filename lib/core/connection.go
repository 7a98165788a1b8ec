package core

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Connection is a handle to a database used to begin transactions.
// A connection may be shared between goroutines, each transaction must not.
type Connection struct {
	id     uuid.UUID
	db     *Database
	active atomic.Int64 // unfinished transactions
	closed atomic.Bool
}

// ID returns the unique identifier of the connection
func (c *Connection) ID() uuid.UUID {
	return c.id
}

// Database returns the database of the connection
func (c *Connection) Database() *Database {
	return c.db
}

// BeginRead starts a read transaction on a snapshot of the current state.
// The transaction must be closed to release the snapshot.
//
// Thread-safety: This method is thread-safe and never blocks on writers
// (apart from the short publication critical section of a commit).
func (c *Connection) BeginRead() (*ReadTxn, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}

	snap, reg, err := c.db.capture()
	if err != nil {
		return nil, fmt.Errorf("core: begin read: %w", err)
	}
	c.active.Add(1)
	readTxnsTotal.Inc()

	tx := &ReadTxn{conn: c, snap: snap}
	tx.view = &view{
		r:        snap,
		codecs:   c.db.codecs,
		registry: reg,
		usable: func() error {
			if tx.done {
				return ErrTransactionDone
			}
			return nil
		},
	}
	return tx, nil
}

// BeginReadWrite starts the exclusive write transaction of the database.
// It blocks until the write slot is free. The transaction must be finished with
// Commit or Rollback.
func (c *Connection) BeginReadWrite() (*ReadWriteTxn, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}

	c.db.writeMu.Lock()
	if c.db.closed.Load() {
		c.db.writeMu.Unlock()
		return nil, ErrDatabaseClosed
	}

	batch, err := c.db.engine.NewBatch()
	if err != nil {
		c.db.writeMu.Unlock()
		return nil, fmt.Errorf("core: begin read-write: %w", err)
	}
	c.active.Add(1)

	// the registry can not change while the write slot is held
	tx := &ReadWriteTxn{
		conn:    c,
		db:      c.db,
		batch:   batch,
		started: time.Now(),
	}
	tx.view = &view{
		r:           batch,
		codecs:      c.db.codecs,
		registry:    c.db.registry.Load(),
		materialize: true,
		usable:      tx.check,
	}
	return tx, nil
}

// Read runs fn in a read transaction that is closed afterwards
func (c *Connection) Read(fn func(tx *ReadTxn) error) error {
	tx, err := c.BeginRead()
	if err != nil {
		return err
	}
	defer tx.Close()
	return fn(tx)
}

// ReadWrite runs fn in a read-write transaction. The transaction is committed if fn
// returns nil and rolled back if fn returns an error or panics (the panic is re-raised).
func (c *Connection) ReadWrite(fn func(tx *ReadWriteTxn) error) (err error) {
	tx, err := c.BeginReadWrite()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			if !tx.done {
				tx.rollback()
			}
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if !tx.done {
			tx.rollback()
		}
		return err
	}
	if tx.done {
		// fn finished the transaction itself, or an operation aborted it
		if tx.err != nil {
			return tx.err
		}
		return nil
	}
	return tx.Commit()
}

// Close closes the connection. It fails with ErrOpenTransactions while
// transactions of the connection are unfinished. Closing twice is a no-op.
func (c *Connection) Close() error {
	if c.active.Load() > 0 {
		return ErrOpenTransactions
	}
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.db.connections.Delete(c.id)
	openConnectionsGlobal.Add(-1)
	log.Debugf("connection %s closed", c.id)
	return nil
}

func (c *Connection) usable() error {
	if c.db.closed.Load() {
		return ErrDatabaseClosed
	}
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	return nil
}
