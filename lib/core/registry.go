package core

import (
	"fmt"
	"reflect"
	"slices"
	"time"

	"github.com/ValentinKolb/eKV/lib/db"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Registry State
// --------------------------------------------------------------------------

// registryState is an immutable view of the active extensions.
// Every change produces a new state that is published together with a commit.
type registryState struct {
	names []string // registration order
	exts  map[string]Extension
}

var emptyRegistry = &registryState{exts: map[string]Extension{}}

// contains reports whether ext is registered under any name
func (r *registryState) contains(ext Extension) bool {
	for _, e := range r.exts {
		if e == ext {
			return true
		}
	}
	return false
}

// with returns a copy of the state with ext appended under name
func (r *registryState) with(name string, ext Extension) *registryState {
	out := &registryState{
		names: make([]string, 0, len(r.names)+1),
		exts:  make(map[string]Extension, len(r.exts)+1),
	}
	out.names = append(append(out.names, r.names...), name)
	for n, e := range r.exts {
		out.exts[n] = e
	}
	out.exts[name] = ext
	return out
}

// without returns a copy of the state without name
func (r *registryState) without(name string) *registryState {
	out := &registryState{exts: make(map[string]Extension, len(r.exts))}
	for _, n := range r.names {
		if n != name {
			out.names = append(out.names, n)
			out.exts[n] = r.exts[n]
		}
	}
	return out
}

// snapshot returns a copy of the name to extension map
func (r *registryState) snapshot() map[string]Extension {
	out := make(map[string]Extension, len(r.exts))
	for n, e := range r.exts {
		out[n] = e
	}
	return out
}

// newStateTable creates the table tracking the lifecycle state of extensions
func newStateTable() *xsync.MapOf[Extension, ExtensionState] {
	return xsync.NewMapOf[Extension, ExtensionState]()
}

// isComparable reports whether ext can be used as a map key without panicking
func isComparable(ext Extension) bool {
	return ext != nil && reflect.TypeOf(ext).Comparable()
}

// --------------------------------------------------------------------------
// Registration
// --------------------------------------------------------------------------

// RegisterExtension registers ext under name and reports whether it succeeded.
// It fails without any state change if the name is empty or taken, if ext is
// already registered, or if ext.Install fails. See TryRegisterExtension for the error.
//
// Thread-safety: Registration holds the single write slot of the database. Concurrent
// readers keep seeing the state before the registration until it commits.
func (d *Database) RegisterExtension(ext Extension, name string) bool {
	return d.TryRegisterExtension(ext, name) == nil
}

// TryRegisterExtension is like RegisterExtension but returns the reason of a failure:
// ErrInvalidExtensionName, ErrExtensionNotComparable, ErrDuplicateExtensionName,
// ErrExtensionAlreadyRegistered, ErrDatabaseClosed or *ExtensionInstallError.
func (d *Database) TryRegisterExtension(ext Extension, name string) (err error) {
	start := time.Now()
	defer func() {
		if err != nil {
			registrationsFailed.Inc()
			log.Warningf("registration of extension %q failed: %v", name, err)
			return
		}
		registrationsOK.Inc()
		registrationDuration.UpdateDuration(start)
		log.Infof("registered extension %q in %s", name, time.Since(start))
	}()

	if !validExtensionName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidExtensionName, name)
	}
	if !isComparable(ext) {
		return ErrExtensionNotComparable
	}

	// exclusive write transaction
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if d.closed.Load() {
		return ErrDatabaseClosed
	}

	reg := d.registry.Load()
	if _, taken := reg.exts[name]; taken {
		return fmt.Errorf("%w: %q", ErrDuplicateExtensionName, name)
	}
	if reg.contains(ext) {
		return ErrExtensionAlreadyRegistered
	}

	d.states.Store(ext, StateRegistering)

	if err := d.install(ext, name, reg); err != nil {
		d.states.Store(ext, StateFailed)
		return err
	}

	d.states.Store(ext, StateActive)
	return nil
}

// install runs ext.Install in a fresh batch and publishes the extended registry with the commit
func (d *Database) install(ext Extension, name string, reg *registryState) error {
	batch, err := d.engine.NewBatch()
	if err != nil {
		return &ExtensionInstallError{Name: name, Err: err}
	}
	snap, err := d.engine.NewSnapshot()
	if err != nil {
		batch.Discard()
		return &ExtensionInstallError{Name: name, Err: err}
	}
	defer snap.Close()

	// the snapshot and the batch share the same base state (the write slot is held),
	// so the backfill can scan the snapshot while writing into the batch
	tx := newExtensionTxn(name, snap, batch, d.codecs)
	if err := callInstall(ext, tx); err != nil {
		batch.Discard()
		return &ExtensionInstallError{Name: name, Err: err}
	}

	if err := d.commitBatch(batch, reg.with(name, ext)); err != nil {
		return &ExtensionInstallError{Name: name, Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

// UnregisterExtension removes the extension registered under name, calls its Detach
// and deletes its private storage, all in one exclusive transaction. It reports
// false if no such extension exists or Detach fails (the extension stays active then).
func (d *Database) UnregisterExtension(name string) bool {
	err := d.TryUnregisterExtension(name)
	if err != nil {
		log.Warningf("unregistration of extension %q failed: %v", name, err)
	}
	return err == nil
}

// TryUnregisterExtension is like UnregisterExtension but returns the reason of a failure
func (d *Database) TryUnregisterExtension(name string) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if d.closed.Load() {
		return ErrDatabaseClosed
	}

	reg := d.registry.Load()
	ext, ok := reg.exts[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrExtensionNotFound, name)
	}

	batch, err := d.engine.NewBatch()
	if err != nil {
		return err
	}
	keys, err := collectKeys(batch, extensionPrefix(name))
	if err != nil {
		batch.Discard()
		return err
	}
	for _, k := range keys {
		if err := batch.Delete(k); err != nil {
			batch.Discard()
			return err
		}
	}

	if err := callDetach(ext); err != nil {
		batch.Discard()
		return fmt.Errorf("detach: %w", err)
	}

	if err := d.commitBatch(batch, reg.without(name)); err != nil {
		return err
	}

	d.states.Delete(ext)
	unregistrationsTotal.Inc()
	log.Infof("unregistered extension %q (%d storage keys removed)", name, len(keys))
	return nil
}

// RegisteredExtension returns the active extension registered under name
func (d *Database) RegisteredExtension(name string) (Extension, bool) {
	ext, ok := d.registry.Load().exts[name]
	return ext, ok
}

// RegisteredExtensions returns a point-in-time copy of all active extensions by name
func (d *Database) RegisteredExtensions() map[string]Extension {
	return d.registry.Load().snapshot()
}

// RegisteredExtensionNames returns the names of all active extensions in registration order
func (d *Database) RegisteredExtensionNames() []string {
	return append([]string(nil), d.registry.Load().names...)
}

// ExtensionState returns the lifecycle state of ext within this database
func (d *Database) ExtensionState(ext Extension) ExtensionState {
	if !isComparable(ext) {
		return StateUnregistered
	}
	state, ok := d.states.Load(ext)
	if !ok {
		return StateUnregistered
	}
	return state
}

// --------------------------------------------------------------------------
// Hooks
// --------------------------------------------------------------------------

// runHook calls ext.OnMutation with the transaction's batch and records its duration.
// Every extension gets its own copy of the mutations.
func (d *Database) runHook(name string, ext Extension, batch db.Batch, mutations []Mutation) error {
	start := time.Now()
	tx := newExtensionTxn(name, batch, batch, d.codecs)
	err := callOnMutation(ext, tx, slices.Clone(mutations))
	d.metrics.hookTimer(name).UpdateSince(start)
	if err != nil {
		d.metrics.hookFailures(name).Inc(1)
	}
	return err
}

// callInstall, callOnMutation and callDetach turn a panic of the extension into an error
func callInstall(ext Extension, tx ExtensionTxn) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(r)
		}
	}()
	return ext.Install(tx)
}

func callOnMutation(ext Extension, tx ExtensionTxn, mutations []Mutation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(r)
		}
	}()
	return ext.OnMutation(tx, mutations)
}

func callDetach(ext Extension) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered(r)
		}
	}()
	return ext.Detach()
}
