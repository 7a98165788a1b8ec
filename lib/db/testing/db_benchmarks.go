package testing

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/ValentinKolb/eKV/lib/db"
)

// RunKVDBBenchmarks runs all benchmarks for a key-value database implementations
func RunKVDBBenchmarks(b *testing.B, name string, factory db.Factory) {

	b.Run("Commit", func(b *testing.B) {
		benchmarkCommit(b, mustOpen(b, factory, ""))
	})

	b.Run("CommitBatch100", func(b *testing.B) {
		benchmarkCommitBatch(b, mustOpen(b, factory, ""), 100)
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, mustOpen(b, factory, ""))
	})

	b.Run("Snapshot", func(b *testing.B) {
		benchmarkSnapshot(b, mustOpen(b, factory, ""))
	})

	b.Run("ScanPrefix", func(b *testing.B) {
		benchmarkScanPrefix(b, mustOpen(b, factory, ""))
	})

	b.Run("ParallelGet", func(b *testing.B) {
		benchmarkParallelGet(b, mustOpen(b, factory, ""))
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// fill commits n keys of the form key-<i>
func fill(b *testing.B, database db.KVDB, n int) {
	batch, err := database.NewBatch()
	if err != nil {
		b.Fatalf("Failed to create batch: %v", err)
	}
	for i := 0; i < n; i++ {
		_ = batch.Set([]byte(fmt.Sprintf("key-%d", i)), []byte("benchmark-value"))
	}
	if err := batch.Commit(); err != nil {
		b.Fatalf("Failed to commit: %v", err)
	}
}

// Benchmark for a batch with a single write
func benchmarkCommit(b *testing.B, database db.KVDB) {
	defer database.Close()
	value := []byte("benchmark-value")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		batch, _ := database.NewBatch()
		_ = batch.Set([]byte(fmt.Sprintf("key-%d", i)), value)
		if err := batch.Commit(); err != nil {
			b.Fatalf("Commit failed: %v", err)
		}
	}
}

// Benchmark for batches with size writes each
func benchmarkCommitBatch(b *testing.B, database db.KVDB, size int) {
	defer database.Close()
	value := []byte("benchmark-value")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		batch, _ := database.NewBatch()
		for j := 0; j < size; j++ {
			_ = batch.Set([]byte(fmt.Sprintf("key-%d-%d", i, j)), value)
		}
		if err := batch.Commit(); err != nil {
			b.Fatalf("Commit failed: %v", err)
		}
	}
}

// Benchmark for Get on a snapshot
func benchmarkGet(b *testing.B, database db.KVDB) {
	defer database.Close()
	numKeys := 10000
	fill(b, database, numKeys)

	snap, _ := database.NewSnapshot()
	defer snap.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := snap.Get([]byte(fmt.Sprintf("key-%d", i%numKeys))); err != nil {
			b.Fatalf("Get failed: %v", err)
		}
	}
}

// Benchmark for creating and releasing snapshots
func benchmarkSnapshot(b *testing.B, database db.KVDB) {
	defer database.Close()
	fill(b, database, 1000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		snap, err := database.NewSnapshot()
		if err != nil {
			b.Fatalf("Snapshot failed: %v", err)
		}
		_ = snap.Close()
	}
}

// Benchmark for prefix scans, each prefix matches roughly a ninth of the keys
func benchmarkScanPrefix(b *testing.B, database db.KVDB) {
	defer database.Close()
	fill(b, database, 10000)

	snap, _ := database.NewSnapshot()
	defer snap.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// key-1 matches key-1, key-10..key-19, key-100..key-199 and so on
		prefix := []byte(fmt.Sprintf("key-%d", 1+i%9))
		_ = snap.Scan(prefix, func(_, _ []byte) (bool, error) {
			return true, nil
		})
	}
}

// Benchmark for concurrent readers with one snapshot per goroutine
func benchmarkParallelGet(b *testing.B, database db.KVDB) {
	defer database.Close()
	numKeys := 10000
	fill(b, database, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		snap, _ := database.NewSnapshot()
		defer snap.Close()
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			_, _, _ = snap.Get([]byte(fmt.Sprintf("key-%d", r.Intn(numKeys))))
		}
	})
}
