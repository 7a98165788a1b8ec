package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ValentinKolb/eKV/lib/db"
	"github.com/google/go-cmp/cmp"
)

func TestRegistrationErrors(t *testing.T) {
	forEachEngine(t, func(t *testing.T, factory db.Factory) {
		d := openTestDB(t, factory)
		a, b := newIndexExt(), newIndexExt()

		if !d.RegisterExtension(a, "idx") {
			t.Fatalf("RegisterExtension(a, idx) = false")
		}

		tests := []struct {
			name    string
			ext     Extension
			extName string
			want    error
		}{
			{"DuplicateName", b, "idx", ErrDuplicateExtensionName},
			{"AlreadyRegistered", a, "other", ErrExtensionAlreadyRegistered},
			{"EmptyName", b, "", ErrInvalidExtensionName},
			{"NulInName", b, "a\x00b", ErrInvalidExtensionName},
			{"NotComparable", sliceExt{"x"}, "slice", ErrExtensionNotComparable},
			{"Nil", nil, "nil", ErrExtensionNotComparable},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if err := d.TryRegisterExtension(tt.ext, tt.extName); !errors.Is(err, tt.want) {
					t.Errorf("TryRegisterExtension = %v, want %v", err, tt.want)
				}
			})
		}

		if diff := cmp.Diff([]string{"idx"}, d.RegisteredExtensionNames()); diff != "" {
			t.Errorf("registry changed by failed registrations (-want +got):\n%s", diff)
		}
		if ext, ok := d.RegisteredExtension("idx"); !ok || ext != Extension(a) {
			t.Errorf("RegisteredExtension(idx) = %v, %v, want a", ext, ok)
		}
		if d.ExtensionState(b) != StateUnregistered {
			t.Errorf("state of b = %s, want Unregistered", d.ExtensionState(b))
		}
		if a.installs != 1 {
			t.Errorf("Install of a called %d times, want 1", a.installs)
		}
	})
}

func TestBackfillMatchesReplay(t *testing.T) {
	forEachEngine(t, func(t *testing.T, factory db.Factory) {
		d := openTestDB(t, factory)
		c := openConn(t, d)

		early := newIndexExt()
		if err := d.TryRegisterExtension(early, "early"); err != nil {
			t.Fatalf("register early: %v", err)
		}

		put(t, c, "users", "alice", "1", "bob", "2", "carol", "3")
		put(t, c, "groups", "admins", "alice")
		put(t, c, "users", "bob", "20")
		_ = c.ReadWrite(func(tx *ReadWriteTxn) error {
			return tx.Remove("users", "carol")
		})

		late := newIndexExt()
		if err := d.TryRegisterExtension(late, "late"); err != nil {
			t.Fatalf("register late: %v", err)
		}
		if late.installs != 1 || late.hookCalls != 0 {
			t.Errorf("late: installs=%d hookCalls=%d, want 1/0", late.installs, late.hookCalls)
		}

		replayed := storageContents(t, c, "early")
		backfilled := storageContents(t, c, "late")
		if diff := cmp.Diff(replayed, backfilled); diff != "" {
			t.Errorf("backfill differs from replay (-replay +backfill):\n%s", diff)
		}
		if len(backfilled) != 3 {
			t.Errorf("backfilled %d entries, want 3", len(backfilled))
		}

		// both receive later mutations
		put(t, c, "users", "dave", "4")
		if diff := cmp.Diff(storageContents(t, c, "early"), storageContents(t, c, "late")); diff != "" {
			t.Errorf("storages diverged after registration (-early +late):\n%s", diff)
		}
	})
}

func TestReaderRegistryConsistency(t *testing.T) {
	forEachEngine(t, func(t *testing.T, factory db.Factory) {
		d := openTestDB(t, factory)
		c := openConn(t, d)
		put(t, c, "c", "k", "v")

		before, err := c.BeginRead()
		if err != nil {
			t.Fatalf("BeginRead failed: %v", err)
		}
		defer before.Close()

		if !d.RegisterExtension(newIndexExt(), "idx") {
			t.Fatalf("registration failed")
		}

		if _, ok := before.RegisteredExtensions()["idx"]; ok {
			t.Errorf("reader started before registration sees the extension")
		}
		if _, ok := before.ExtensionStorage("idx"); ok {
			t.Errorf("reader started before registration gets extension storage")
		}

		_ = c.Read(func(tx *ReadTxn) error {
			if _, ok := tx.RegisteredExtensions()["idx"]; !ok {
				t.Errorf("reader started after registration misses the extension")
			}
			s, ok := tx.ExtensionStorage("idx")
			if !ok {
				t.Fatalf("ExtensionStorage(idx) not available")
			}
			v, found, err := s.Get(indexKey("c", "k"))
			if err != nil || !found || string(v) != "v" {
				t.Errorf("storage Get = %q, %v, %v, want backfilled value", v, found, err)
			}
			return nil
		})
	})
}

func TestHookFailureRollsBack(t *testing.T) {
	for _, mode := range []string{"error", "panic"} {
		t.Run(mode, func(t *testing.T) {
			forEachEngine(t, func(t *testing.T, factory db.Factory) {
				d := openTestDB(t, factory)
				c := openConn(t, d)

				ok, bad := newIndexExt(), newIndexExt()
				if mode == "error" {
					bad.rejectKey = "poison"
				} else {
					bad.panicKey = "poison"
				}
				d.RegisterExtension(ok, "ok")
				d.RegisterExtension(bad, "bad")
				put(t, c, "c", "a", "1")
				before := dump(t, d)

				err := c.ReadWrite(func(tx *ReadWriteTxn) error {
					_ = tx.Set("c", "b", "2", nil)
					_ = tx.Remove("c", "a")
					return tx.Set("c", "poison", "x", nil)
				})

				var hookErr *ExtensionHookError
				if !errors.As(err, &hookErr) {
					t.Fatalf("ReadWrite = %v, want ExtensionHookError", err)
				}
				if hookErr.Name != "bad" {
					t.Errorf("ExtensionHookError.Name = %q, want bad", hookErr.Name)
				}
				if mode == "error" && !errors.Is(err, errRejected) {
					t.Errorf("hook error does not wrap the extension error: %v", err)
				}

				// primary data and the storage written by "ok" are gone
				if !equalDumps(before, dump(t, d)) {
					t.Errorf("engine state changed by rejected transaction")
				}
				if d.ExtensionState(bad) != StateActive {
					t.Errorf("failing extension state = %s, want Active", d.ExtensionState(bad))
				}

				put(t, c, "c", "z", "26")
			})
		})
	}
}

func TestHooksOrderAndMutations(t *testing.T) {
	d := openTestDB(t, engines["maple"])
	c := openConn(t, d)

	var order []string
	first := &indexExt{order: &order, label: "first"}
	second := &indexExt{order: &order, label: "second"}
	d.RegisterExtension(first, "first")
	d.RegisterExtension(second, "second")

	// no mutations, no hooks
	_ = c.ReadWrite(func(tx *ReadWriteTxn) error { return nil })
	if len(order) != 0 {
		t.Errorf("hooks called for a transaction without mutations: %v", order)
	}

	_ = c.ReadWrite(func(tx *ReadWriteTxn) error {
		_ = tx.Set("c", "k", "v", nil)
		_ = tx.SetMetadata("c", "k", "m")
		return tx.Remove("c", "k")
	})
	if diff := cmp.Diff([]string{"hook:first", "hook:second"}, order); diff != "" {
		t.Errorf("hook order mismatch (-want +got):\n%s", diff)
	}
	want := []Mutation{
		{Kind: MutationInsert, Collection: "c", Key: "k", Object: "v"},
		{Kind: MutationUpdateMetadata, Collection: "c", Key: "k", Metadata: "m"},
		{Kind: MutationRemove, Collection: "c", Key: "k"},
	}
	if diff := cmp.Diff(want, second.seen); diff != "" {
		t.Errorf("mutations mismatch (-want +got):\n%s", diff)
	}

	order = nil
	_ = c.Close()
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if diff := cmp.Diff([]string{"detach:second", "detach:first"}, order); diff != "" {
		t.Errorf("detach order mismatch (-want +got):\n%s", diff)
	}
}

func TestHooksGetOwnMutations(t *testing.T) {
	forEachEngine(t, func(t *testing.T, factory db.Factory) {
		d := openTestDB(t, factory)
		c := openConn(t, d)

		recorder := newIndexExt()
		d.RegisterExtension(&rewriteExt{}, "rewrite")
		d.RegisterExtension(recorder, "recorder")

		tx, err := c.BeginReadWrite()
		if err != nil {
			t.Fatalf("BeginReadWrite failed: %v", err)
		}
		_ = tx.Set("c", "real", "v", nil)
		if err := tx.Commit(); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}

		want := []Mutation{{Kind: MutationInsert, Collection: "c", Key: "real", Object: "v"}}
		if diff := cmp.Diff(want, recorder.seen); diff != "" {
			t.Errorf("mutations seen by the second extension (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(want, tx.Mutations()); diff != "" {
			t.Errorf("transaction mutations changed by an extension (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(map[string]string{"c\x00real": "v"}, storageContents(t, c, "recorder")); diff != "" {
			t.Errorf("recorder storage mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestInstallFailure(t *testing.T) {
	forEachEngine(t, func(t *testing.T, factory db.Factory) {
		d := openTestDB(t, factory)
		c := openConn(t, d)
		put(t, c, "c", "a", "1", "b", "2")
		before := dump(t, d)

		ext := newIndexExt()
		ext.failInstall = true
		err := d.TryRegisterExtension(ext, "broken")

		var installErr *ExtensionInstallError
		if !errors.As(err, &installErr) || !errors.Is(err, errRejected) {
			t.Fatalf("TryRegisterExtension = %v, want ExtensionInstallError wrapping the install error", err)
		}
		if d.ExtensionState(ext) != StateFailed {
			t.Errorf("state = %s, want Failed", d.ExtensionState(ext))
		}
		if _, ok := d.RegisteredExtension("broken"); ok {
			t.Errorf("failed extension is registered")
		}
		if !equalDumps(before, dump(t, d)) {
			t.Errorf("backfill writes of a failed install were kept")
		}

		// the name is free again
		ext.failInstall = false
		if err := d.TryRegisterExtension(ext, "broken"); err != nil {
			t.Errorf("second registration failed: %v", err)
		}
		if d.ExtensionState(ext) != StateActive {
			t.Errorf("state = %s, want Active", d.ExtensionState(ext))
		}
	})
}

func TestUnregister(t *testing.T) {
	forEachEngine(t, func(t *testing.T, factory db.Factory) {
		d := openTestDB(t, factory)
		c := openConn(t, d)
		put(t, c, "c", "a", "1")

		ext := newIndexExt()
		d.RegisterExtension(ext, "idx")
		if len(storageContents(t, c, "idx")) != 1 {
			t.Fatalf("storage not backfilled")
		}

		if d.UnregisterExtension("missing") {
			t.Errorf("UnregisterExtension(missing) = true")
		}
		if !d.UnregisterExtension("idx") {
			t.Fatalf("UnregisterExtension(idx) = false")
		}
		if ext.detaches != 1 {
			t.Errorf("Detach called %d times, want 1", ext.detaches)
		}
		if d.ExtensionState(ext) != StateUnregistered {
			t.Errorf("state = %s, want Unregistered", d.ExtensionState(ext))
		}

		put(t, c, "c", "b", "2")
		if ext.hookCalls != 0 {
			t.Errorf("unregistered extension received %d hook calls", ext.hookCalls)
		}
		for _, e := range dump(t, d) {
			if e.key[0] == nsExtension {
				t.Errorf("private storage key %q left after unregistration", e.key)
			}
		}
	})
}

func TestUnregisterDetachFailure(t *testing.T) {
	d := openTestDB(t, engines["maple"])
	ext := newIndexExt()
	ext.detachErr = errRejected
	d.RegisterExtension(ext, "idx")

	if err := d.TryUnregisterExtension("idx"); !errors.Is(err, errRejected) {
		t.Errorf("TryUnregisterExtension = %v, want detach error", err)
	}
	if _, ok := d.RegisteredExtension("idx"); !ok {
		t.Errorf("extension removed although Detach failed")
	}
	ext.detachErr = nil
}

func TestConcurrentRegistrationAndWrites(t *testing.T) {
	forEachEngine(t, func(t *testing.T, factory db.Factory) {
		d := openTestDB(t, factory)
		c := openConn(t, d)
		put(t, c, "c", "seed", "0")

		done := make(chan struct{})
		go func() {
			defer close(done)
			w := d.NewConnection()
			defer w.Close()
			for i := 0; i < 50; i++ {
				key := fmt.Sprintf("k%02d", i)
				err := w.ReadWrite(func(tx *ReadWriteTxn) error {
					return tx.Set("c", key, "x", nil)
				})
				if err != nil {
					t.Errorf("write %s failed: %v", key, err)
					return
				}
			}
		}()

		ext := newIndexExt()
		if err := d.TryRegisterExtension(ext, "idx"); err != nil {
			t.Fatalf("registration failed: %v", err)
		}
		<-done

		var count int
		_ = c.Read(func(tx *ReadTxn) error {
			count, _ = tx.CountAll()
			return nil
		})
		if n := len(storageContents(t, c, "idx")); n != count {
			t.Errorf("extension indexes %d entries, database holds %d", n, count)
		}
	})
}
