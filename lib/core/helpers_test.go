package core

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/eKV/lib/db"
	"github.com/ValentinKolb/eKV/lib/db/engines/maple"
	"github.com/ValentinKolb/eKV/lib/db/engines/pebble"
)

// engines are the storage engines every core test runs against (in memory)
var engines = map[string]db.Factory{
	"maple":  maple.Open,
	"pebble": pebble.Open,
}

// forEachEngine runs fn as a subtest for every engine
func forEachEngine(t *testing.T, fn func(t *testing.T, factory db.Factory)) {
	for name, factory := range engines {
		t.Run(name, func(t *testing.T) {
			fn(t, factory)
		})
	}
}

// openTestDB opens an in-memory database that is closed when the test ends
func openTestDB(t *testing.T, factory db.Factory) *Database {
	t.Helper()
	opts := DefaultOptions()
	opts.Engine = factory
	d, err := Open("", opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})
	return d
}

// openConn opens a connection that is closed when the test ends
func openConn(t *testing.T, d *Database) *Connection {
	t.Helper()
	c := d.NewConnection()
	t.Cleanup(func() {
		_ = c.Close()
	})
	return c
}

// put commits key/value pairs (object = value, no metadata) into collection
func put(t *testing.T, c *Connection, collection string, pairs ...string) {
	t.Helper()
	err := c.ReadWrite(func(tx *ReadWriteTxn) error {
		for i := 0; i+1 < len(pairs); i += 2 {
			if err := tx.Set(collection, pairs[i], pairs[i+1], nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

// kv is a raw engine entry
type kv struct {
	key, value []byte
}

// dump returns every raw engine entry of the database
func dump(t *testing.T, d *Database) []kv {
	t.Helper()
	snap, err := d.engine.NewSnapshot()
	if err != nil {
		t.Fatalf("NewSnapshot failed: %v", err)
	}
	defer snap.Close()

	var out []kv
	err = snap.Scan(nil, func(k, v []byte) (bool, error) {
		out = append(out, kv{db.Clone(k), db.Clone(v)})
		return true, nil
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	return out
}

// equalDumps reports whether two engine dumps are byte-identical
func equalDumps(a, b []kv) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i].key, b[i].key) || !bytes.Equal(a[i].value, b[i].value) {
			return false
		}
	}
	return true
}

// storageContents returns the private storage of the extension name as a map
func storageContents(t *testing.T, c *Connection, name string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := c.Read(func(tx *ReadTxn) error {
		s, ok := tx.ExtensionStorage(name)
		if !ok {
			return fmt.Errorf("extension %q not visible", name)
		}
		return s.Scan(nil, func(k, v []byte) (bool, error) {
			out[string(k)] = string(v)
			return true, nil
		})
	})
	if err != nil {
		t.Fatalf("reading storage of %q failed: %v", name, err)
	}
	return out
}

// --------------------------------------------------------------------------
// Test Extension
// --------------------------------------------------------------------------

var errRejected = errors.New("rejected by test extension")

// indexExt maps "<collection>\x00<key>" to the printed object in its private storage
type indexExt struct {
	mu sync.Mutex

	failInstall bool   // Install returns an error
	rejectKey   string // OnMutation fails if a mutation touches this key
	panicKey    string // OnMutation panics if a mutation touches this key
	detachErr   error  // returned by Detach

	installs  int
	hookCalls int
	detaches  int
	seen      []Mutation

	// order is shared between extensions to observe the call order
	order *[]string
	label string
}

func newIndexExt() *indexExt {
	return &indexExt{}
}

func indexKey(collection, key string) []byte {
	return []byte(collection + "\x00" + key)
}

func (e *indexExt) Install(tx ExtensionTxn) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.installs++

	err := tx.EnumerateEntries(func(entry Entry) (bool, error) {
		return true, tx.Storage().Set(indexKey(entry.Collection, entry.Key), []byte(fmt.Sprint(entry.Object)))
	})
	if err != nil {
		return err
	}
	if e.failInstall {
		return errRejected
	}
	return nil
}

func (e *indexExt) OnMutation(tx ExtensionTxn, mutations []Mutation) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hookCalls++
	e.seen = append(e.seen, mutations...)
	if e.order != nil {
		*e.order = append(*e.order, "hook:"+e.label)
	}

	for _, m := range mutations {
		if m.Key == e.panicKey && e.panicKey != "" {
			panic("test extension panic")
		}
		if m.Key == e.rejectKey && e.rejectKey != "" {
			return errRejected
		}

		var err error
		switch m.Kind {
		case MutationInsert, MutationUpdate:
			err = tx.Storage().Set(indexKey(m.Collection, m.Key), []byte(fmt.Sprint(m.Object)))
		case MutationRemove:
			err = tx.Storage().Delete(indexKey(m.Collection, m.Key))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *indexExt) Detach() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detaches++
	if e.order != nil {
		*e.order = append(*e.order, "detach:"+e.label)
	}
	return e.detachErr
}

// rewriteExt overwrites every mutation it receives
type rewriteExt struct{}

func (*rewriteExt) Install(ExtensionTxn) error { return nil }
func (*rewriteExt) Detach() error { return nil }

func (*rewriteExt) OnMutation(_ ExtensionTxn, mutations []Mutation) error {
	for i := range mutations {
		mutations[i].Key = "rewritten"
		mutations[i].Object = "rewritten"
	}
	return nil
}

// sliceExt is not comparable and must be rejected by the registry
type sliceExt []string

func (sliceExt) Install(ExtensionTxn) error { return nil }
func (sliceExt) OnMutation(ExtensionTxn, []Mutation) error { return nil }
func (sliceExt) Detach() error { return nil }
