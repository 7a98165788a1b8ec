package stats

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/eKV/lib/core"
	"github.com/ValentinKolb/eKV/lib/store/kvstore"
)

var countKey = []byte("n")

// counter is a small extension that maintains the number of keys of the store
type counter struct{}

var _ core.Extension = (*counter)(nil)

func (c *counter) Install(tx core.ExtensionTxn) error {
	var n int64
	if err := tx.EnumerateEntries(func(core.Entry) (bool, error) {
		n++
		return true, nil
	}); err != nil {
		return err
	}
	return store(tx.Storage(), n)
}

func (c *counter) OnMutation(tx core.ExtensionTxn, mutations []core.Mutation) error {
	n, err := load(tx.Storage())
	if err != nil {
		return err
	}
	for _, m := range mutations {
		switch m.Kind {
		case core.MutationInsert:
			n++
		case core.MutationRemove:
			n--
		}
	}
	return store(tx.Storage(), n)
}

func (c *counter) Detach() error {
	return nil
}

// counted returns the number of keys maintained by the extension
func counted(tx *kvstore.ReadTxn) (int64, error) {
	s, ok := tx.ExtensionStorage("counter")
	if !ok {
		return 0, nil
	}
	return load(s)
}

func load(s core.StorageReader) (int64, error) {
	v, found, err := s.Get(countKey)
	if err != nil || !found {
		return 0, err
	}
	n, size := binary.Varint(v)
	if size <= 0 {
		return 0, fmt.Errorf("counter: malformed count %x", v)
	}
	return n, nil
}

func store(s core.Storage, n int64) error {
	return s.Set(countKey, binary.AppendVarint(nil, n))
}
