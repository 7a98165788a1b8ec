// Package kvstore provides a flat key/value store on top of the eKV database core.
//
// Every value is addressed by a single non-empty key and consists of an object and
// optional metadata. Internally all keys live in the unnamed collection of the core,
// so extensions registered on a kvstore receive mutations with an empty collection.
//
// Example:
//
//	d, _ := kvstore.Open("data.maple", nil)
//	conn := d.NewConnection()
//	_ = conn.ReadWrite(func(tx *kvstore.ReadWriteTxn) error {
//		return tx.SetWithMetadata("alice", "Alice", map[string]any{"role": "admin"})
//	})
//	_ = conn.Read(func(tx *kvstore.ReadTxn) error {
//		obj, found, err := tx.Object("alice")
//		...
//	})
//	_ = conn.Close()
//	_ = d.Close()
package kvstore
