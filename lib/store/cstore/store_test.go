package cstore

import (
	"testing"

	"github.com/ValentinKolb/eKV/lib/core"
	"github.com/ValentinKolb/eKV/lib/db/engines/pebble"
	"github.com/ValentinKolb/eKV/lib/store"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, opts *core.Options) (*Database, *Connection) {
	t.Helper()
	d, err := Open("", opts)
	require.NoError(t, err)
	c := d.NewConnection()
	t.Cleanup(func() {
		_ = c.Close()
		_ = d.Close()
	})
	return d, c
}

func seed(t *testing.T, c *Connection) {
	t.Helper()
	require.NoError(t, c.ReadWrite(func(tx *ReadWriteTxn) error {
		require.NoError(t, tx.Set("users", "alice", "Alice"))
		require.NoError(t, tx.Set("users", "bob", "Bob"))
		require.NoError(t, tx.SetWithMetadata("groups", "admins", []any{"alice"}, "since 2024"))
		return tx.Set("", "root", "unnamed collection")
	}))
}

func TestCollections(t *testing.T) {
	engines := map[string]*core.Options{
		"maple":  nil,
		"pebble": {Engine: pebble.Open},
	}
	for name, opts := range engines {
		t.Run(name, func(t *testing.T) {
			_, c := openStore(t, opts)
			seed(t, c)

			require.NoError(t, c.Read(func(tx *ReadTxn) error {
				collections, err := tx.Collections()
				require.NoError(t, err)
				require.Equal(t, []string{"", "groups", "users"}, collections)

				n, err := tx.Count()
				require.NoError(t, err)
				require.Equal(t, 4, n)

				n, err = tx.CountInCollection("users")
				require.NoError(t, err)
				require.Equal(t, 2, n)

				obj, meta, found, err := tx.ObjectAndMetadata("groups", "admins")
				require.NoError(t, err)
				require.True(t, found)
				require.Equal(t, []any{"alice"}, obj)
				require.Equal(t, "since 2024", meta)

				var pairs []string
				require.NoError(t, tx.EnumerateCollectionsAndKeys(func(collection, key string) bool {
					pairs = append(pairs, collection+"/"+key)
					return true
				}))
				require.Equal(t, []string{"/root", "groups/admins", "users/alice", "users/bob"}, pairs)
				return nil
			}))
		})
	}
}

func TestRemoveInCollection(t *testing.T) {
	_, c := openStore(t, nil)
	seed(t, c)

	require.NoError(t, c.ReadWrite(func(tx *ReadWriteTxn) error {
		require.NoError(t, tx.RemoveAllInCollection("users"))
		n, err := tx.CountInCollection("users")
		require.NoError(t, err)
		require.Zero(t, n)

		n, err = tx.Count()
		require.NoError(t, err)
		require.Equal(t, 2, n)
		return nil
	}))

	require.NoError(t, c.ReadWrite(func(tx *ReadWriteTxn) error {
		return tx.RemoveEverything()
	}))
	require.NoError(t, c.Read(func(tx *ReadTxn) error {
		collections, err := tx.Collections()
		require.NoError(t, err)
		require.Empty(t, collections)
		return nil
	}))
}

func TestEnumerateInCollection(t *testing.T) {
	_, c := openStore(t, nil)
	seed(t, c)

	require.NoError(t, c.Read(func(tx *ReadTxn) error {
		var keys []string
		require.NoError(t, tx.EnumerateKeysInCollection("users", func(key string) bool {
			keys = append(keys, key)
			return true
		}))
		require.Equal(t, []string{"alice", "bob"}, keys)

		objects := map[string]any{}
		require.NoError(t, tx.EnumerateKeysAndObjectsInCollection("users", func(key string, object any) bool {
			objects[key] = object
			return false
		}))
		require.Equal(t, map[string]any{"alice": "Alice"}, objects)
		return nil
	}))
}

func TestInvalidCollection(t *testing.T) {
	_, c := openStore(t, nil)

	err := c.ReadWrite(func(tx *ReadWriteTxn) error {
		return tx.Set("bad\x00collection", "k", "v")
	})
	var storeErr *store.Error
	require.ErrorAs(t, err, &storeErr)
	require.ErrorIs(t, err, core.ErrInvalidKey)

	require.NoError(t, c.Read(func(tx *ReadTxn) error {
		_, err := tx.Has("users", "")
		require.ErrorIs(t, err, store.ErrEmptyKey)
		return nil
	}))
}
