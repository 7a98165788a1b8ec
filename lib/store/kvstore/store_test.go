package kvstore

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/eKV/lib/codec"
	"github.com/ValentinKolb/eKV/lib/core"
	"github.com/ValentinKolb/eKV/lib/db/engines/pebble"
	"github.com/ValentinKolb/eKV/lib/store"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, path string, opts *core.Options) (*Database, *Connection) {
	t.Helper()
	d, err := Open(path, opts)
	require.NoError(t, err)
	c := d.NewConnection()
	t.Cleanup(func() {
		_ = c.Close()
		_ = d.Close()
	})
	return d, c
}

func TestSetGetRemove(t *testing.T) {
	_, c := openStore(t, "", nil)

	require.NoError(t, c.ReadWrite(func(tx *ReadWriteTxn) error {
		require.NoError(t, tx.Set("a", "A"))
		require.NoError(t, tx.SetWithMetadata("b", "B", int64(7)))
		require.NoError(t, tx.Set("c", "C"))
		require.NoError(t, tx.SetMetadata("a", "meta-a"))
		return nil
	}))

	require.NoError(t, c.Read(func(tx *ReadTxn) error {
		obj, found, err := tx.Object("a")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "A", obj)

		obj, meta, found, err := tx.ObjectAndMetadata("b")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "B", obj)
		require.Equal(t, int64(7), meta)

		meta, found, err = tx.Metadata("a")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "meta-a", meta)

		n, err := tx.Count()
		require.NoError(t, err)
		require.Equal(t, 3, n)

		var keys []string
		require.NoError(t, tx.EnumerateKeys(func(key string) bool {
			keys = append(keys, key)
			return true
		}))
		require.Equal(t, []string{"a", "b", "c"}, keys)

		objects := map[string]any{}
		require.NoError(t, tx.EnumerateKeysAndObjects(func(key string, object any) bool {
			objects[key] = object
			return key != "b"
		}))
		require.Equal(t, map[string]any{"a": "A", "b": "B"}, objects)
		return nil
	}))

	require.NoError(t, c.ReadWrite(func(tx *ReadWriteTxn) error {
		require.NoError(t, tx.RemoveKeys([]string{"a", "b"}))
		has, err := tx.Has("a")
		require.NoError(t, err)
		require.False(t, has)
		return tx.RemoveAll()
	}))

	require.NoError(t, c.Read(func(tx *ReadTxn) error {
		n, err := tx.Count()
		require.NoError(t, err)
		require.Zero(t, n)
		return nil
	}))
}

func TestInvalidOperations(t *testing.T) {
	_, c := openStore(t, "", nil)

	err := c.ReadWrite(func(tx *ReadWriteTxn) error {
		return tx.Set("", "x")
	})
	var storeErr *store.Error
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, store.RetCInvalidOperation, storeErr.Code)

	tx, err := c.BeginReadWrite()
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	err = tx.Set("k", "v")
	require.ErrorAs(t, err, &storeErr)
	require.ErrorIs(t, err, core.ErrTransactionDone)

	_, _, err = tx.Object("")
	require.ErrorIs(t, err, store.ErrEmptyKey)
}

func TestRestrictedCodecRejectsStructs(t *testing.T) {
	opts := core.DefaultOptions()
	opts.Codecs = codec.Config{Object: codec.Restricted(), Metadata: codec.Restricted()}
	_, c := openStore(t, "", opts)

	type user struct{ Name string }
	err := c.ReadWrite(func(tx *ReadWriteTxn) error {
		require.NoError(t, tx.Set("ok", map[string]any{"n": int64(1)}))
		return tx.Set("bad", user{"x"})
	})
	var unsupported *codec.UnsupportedTypeError
	require.ErrorAs(t, err, &unsupported)

	require.NoError(t, c.Read(func(tx *ReadTxn) error {
		has, err := tx.Has("ok")
		require.NoError(t, err)
		require.False(t, has, "aborted transaction must not be applied")
		return nil
	}))
}

// countExt keeps the number of keys in its private storage
type countExt struct{}

func (e *countExt) Install(tx core.ExtensionTxn) error {
	n := 0
	if err := tx.EnumerateEntries(func(core.Entry) (bool, error) {
		n++
		return true, nil
	}); err != nil {
		return err
	}
	return tx.Storage().Set([]byte("count"), []byte{byte(n)})
}

func (e *countExt) OnMutation(tx core.ExtensionTxn, mutations []core.Mutation) error {
	v, _, err := tx.Storage().Get([]byte("count"))
	if err != nil {
		return err
	}
	n := 0
	if len(v) == 1 {
		n = int(v[0])
	}
	for _, m := range mutations {
		switch m.Kind {
		case core.MutationInsert:
			n++
		case core.MutationRemove:
			n--
		}
	}
	if n < 0 {
		return errors.New("negative count")
	}
	return tx.Storage().Set([]byte("count"), []byte{byte(n)})
}

func (e *countExt) Detach() error { return nil }

func TestExtensionOnPebble(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pebble")
	opts := core.DefaultOptions()
	opts.Engine = pebble.Open
	d, c := openStore(t, path, opts)

	require.NoError(t, c.ReadWrite(func(tx *ReadWriteTxn) error {
		require.NoError(t, tx.Set("a", "1"))
		return tx.Set("b", "2")
	}))
	require.True(t, d.RegisterExtension(&countExt{}, "count"))
	require.NoError(t, c.ReadWrite(func(tx *ReadWriteTxn) error {
		require.NoError(t, tx.Set("c", "3"))
		require.NoError(t, tx.Set("a", "updated"))
		return tx.Remove("b")
	}))

	require.NoError(t, c.Read(func(tx *ReadTxn) error {
		s, ok := tx.ExtensionStorage("count")
		require.True(t, ok)
		v, found, err := s.Get([]byte("count"))
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, []byte{2}, v)
		return nil
	}))
	require.Equal(t, []string{"count"}, d.RegisteredExtensionNames())
}
