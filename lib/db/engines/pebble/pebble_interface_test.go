package pebble

import (
	"testing"

	"github.com/ValentinKolb/eKV/lib/db"
	dbtesting "github.com/ValentinKolb/eKV/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "PebbleDB", Open)
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "PebbleDB", func(path string) (db.KVDB, error) {
		opts := DefaultOptions()
		opts.Dir = path
		opts.Sync = false
		return NewPebbleDB(opts)
	})
}

func TestInMemoryFeatures(t *testing.T) {
	engine, err := Open("")
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	defer engine.Close()

	if engine.SupportsFeature(db.FeatureOnDisk) {
		t.Errorf("In-memory engine should not report FeatureOnDisk")
	}
	if !engine.SupportsFeature(db.FeatureSnapshot | db.FeatureBatch | db.FeatureFlush) {
		t.Errorf("Expected snapshot, batch and flush support")
	}

	info := engine.GetInfo()
	if info.DbType != db.ImplPebble {
		t.Errorf("Expected db type %s, got %s", db.ImplPebble, info.DbType)
	}
}

func TestOnDiskFeatures(t *testing.T) {
	engine, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	defer engine.Close()

	if !engine.SupportsFeature(db.FeatureOnDisk | db.FeaturePersistence) {
		t.Errorf("Expected on-disk persistence")
	}
}
