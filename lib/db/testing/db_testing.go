package testing

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/eKV/lib/db"
)

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
// The factory is called with an empty path for throwaway engines and with a
// path inside a temporary directory for persistence tests.
func RunKVDBTests(t *testing.T, name string, factory db.Factory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, mustOpen(t, factory, ""))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, mustOpen(t, factory, ""))
		})

		t.Run("ReadYourWrites", func(t *testing.T) {
			testReadYourWrites(t, mustOpen(t, factory, ""))
		})

		t.Run("SnapshotIsolation", func(t *testing.T) {
			testSnapshotIsolation(t, mustOpen(t, factory, ""))
		})

		t.Run("Discard", func(t *testing.T) {
			testDiscard(t, mustOpen(t, factory, ""))
		})

		t.Run("BatchDone", func(t *testing.T) {
			testBatchDone(t, mustOpen(t, factory, ""))
		})

		t.Run("ScanPrefix", func(t *testing.T) {
			testScanPrefix(t, mustOpen(t, factory, ""))
		})

		t.Run("ScanStopAndError", func(t *testing.T) {
			testScanStopAndError(t, mustOpen(t, factory, ""))
		})

		t.Run("BatchScanMergesPending", func(t *testing.T) {
			testBatchScanMergesPending(t, mustOpen(t, factory, ""))
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, mustOpen(t, factory, ""))
		})

		t.Run("ConcurrentReaders", func(t *testing.T) {
			testConcurrentReaders(t, mustOpen(t, factory, ""))
		})

		t.Run("Persistence", func(t *testing.T) {
			testPersistence(t, factory)
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, mustOpen(t, factory, ""))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// mustOpen opens an engine or fails the test
func mustOpen(t testing.TB, factory db.Factory, path string) db.KVDB {
	database, err := factory(path)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	return database
}

// write commits the given key/value pairs in one batch. A nil value deletes the key.
func write(t testing.TB, database db.KVDB, kv map[string][]byte) {
	b, err := database.NewBatch()
	if err != nil {
		t.Fatalf("Failed to create batch: %v", err)
	}
	for k, v := range kv {
		if v == nil {
			err = b.Delete([]byte(k))
		} else {
			err = b.Set([]byte(k), v)
		}
		if err != nil {
			t.Fatalf("Failed to write %s: %v", k, err)
		}
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
}

// read returns the value of key in a fresh snapshot
func read(t testing.TB, database db.KVDB, key string) ([]byte, bool) {
	snap, err := database.NewSnapshot()
	if err != nil {
		t.Fatalf("Failed to create snapshot: %v", err)
	}
	defer snap.Close()
	v, found, err := snap.Get([]byte(key))
	if err != nil {
		t.Fatalf("Failed to get %s: %v", key, err)
	}
	return v, found
}

// keys collects the keys of a scan
func keys(t testing.TB, r db.Reader, prefix string) []string {
	var out []string
	err := r.Scan([]byte(prefix), func(key, _ []byte) (bool, error) {
		out = append(out, string(key))
		return true, nil
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	return out
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	write(t, database, map[string][]byte{testKey: testValue1})

	result, exists := read(t, database, testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	write(t, database, map[string][]byte{testKey: testValue2})

	result, exists = read(t, database, testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	if _, exists = read(t, database, "nonexistent-key"); exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	// returned values are copies
	retrievedValue, _ := read(t, database, testKey)
	retrievedValue[0] = 'X'
	result, _ = read(t, database, testKey)
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Modifying a returned value changed the stored value: %s", result)
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	write(t, database, map[string][]byte{"a": []byte("1"), "b": []byte("2")})
	write(t, database, map[string][]byte{"a": nil, "missing": nil})

	if _, exists := read(t, database, "a"); exists {
		t.Errorf("Expected key a to be deleted")
	}
	if _, exists := read(t, database, "b"); !exists {
		t.Errorf("Expected key b to still exist")
	}
}

func testReadYourWrites(t *testing.T, database db.KVDB) {
	defer database.Close()

	write(t, database, map[string][]byte{"committed": []byte("old"), "gone": []byte("x")})

	b, err := database.NewBatch()
	if err != nil {
		t.Fatalf("Failed to create batch: %v", err)
	}
	defer b.Discard()

	_ = b.Set([]byte("committed"), []byte("new"))
	_ = b.Set([]byte("pending"), []byte("p"))
	_ = b.Delete([]byte("gone"))

	tests := []struct {
		key    string
		value  string
		exists bool
	}{
		{"committed", "new", true},
		{"pending", "p", true},
		{"gone", "", false},
	}
	for _, tt := range tests {
		v, found, err := b.Get([]byte(tt.key))
		if err != nil {
			t.Fatalf("Get %s failed: %v", tt.key, err)
		}
		if found != tt.exists || (found && string(v) != tt.value) {
			t.Errorf("Batch get %s: expected (%q, %v), got (%q, %v)", tt.key, tt.value, tt.exists, v, found)
		}
	}

	// nothing is visible outside the batch before commit
	if v, _ := read(t, database, "committed"); string(v) != "old" {
		t.Errorf("Expected committed value to stay old before commit, got %s", v)
	}
	if _, exists := read(t, database, "pending"); exists {
		t.Errorf("Expected pending key to be invisible before commit")
	}
}

func testSnapshotIsolation(t *testing.T, database db.KVDB) {
	defer database.Close()

	write(t, database, map[string][]byte{"k": []byte("v1")})

	before, err := database.NewSnapshot()
	if err != nil {
		t.Fatalf("Failed to create snapshot: %v", err)
	}
	defer before.Close()

	write(t, database, map[string][]byte{"k": []byte("v2"), "new": []byte("n")})

	v, _, _ := before.Get([]byte("k"))
	if string(v) != "v1" {
		t.Errorf("Snapshot observed a later commit: %s", v)
	}
	if _, found, _ := before.Get([]byte("new")); found {
		t.Errorf("Snapshot observed a key inserted later")
	}
	if got := keys(t, before, ""); !equalKeys(got, []string{"k"}) {
		t.Errorf("Snapshot scan observed later commits: %v", got)
	}

	if v, _ := read(t, database, "k"); string(v) != "v2" {
		t.Errorf("New snapshot should observe the commit, got %s", v)
	}
}

func testDiscard(t *testing.T, database db.KVDB) {
	defer database.Close()

	write(t, database, map[string][]byte{"k": []byte("v")})

	b, _ := database.NewBatch()
	_ = b.Set([]byte("k"), []byte("changed"))
	_ = b.Set([]byte("other"), []byte("x"))
	b.Discard()

	if v, _ := read(t, database, "k"); string(v) != "v" {
		t.Errorf("Discard changed committed state: %s", v)
	}
	if _, exists := read(t, database, "other"); exists {
		t.Errorf("Discarded key became visible")
	}
}

func testBatchDone(t *testing.T, database db.KVDB) {
	defer database.Close()

	b, _ := database.NewBatch()
	_ = b.Set([]byte("k"), []byte("v"))
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if err := b.Commit(); !errors.Is(err, db.ErrBatchDone) {
		t.Errorf("Expected ErrBatchDone on second commit, got %v", err)
	}
	if err := b.Set([]byte("k"), []byte("v2")); !errors.Is(err, db.ErrBatchDone) {
		t.Errorf("Expected ErrBatchDone on set after commit, got %v", err)
	}

	// discard after commit is a no-op
	b.Discard()
	if v, _ := read(t, database, "k"); string(v) != "v" {
		t.Errorf("Discard after commit changed state: %s", v)
	}
}

func testScanPrefix(t *testing.T, database db.KVDB) {
	defer database.Close()

	write(t, database, map[string][]byte{
		"p/users\x00bob":   []byte("1"),
		"p/users\x00alice": []byte("2"),
		"p/users2\x00carl": []byte("3"),
		"p/\xff":           []byte("4"),
		"x/index\x00a":     []byte("5"),
		"a":                []byte("6"),
	})

	snap, _ := database.NewSnapshot()
	defer snap.Close()

	tests := []struct {
		prefix   string
		expected []string
	}{
		{"p/users\x00", []string{"p/users\x00alice", "p/users\x00bob"}},
		{"p/users", []string{"p/users\x00alice", "p/users\x00bob", "p/users2\x00carl"}},
		{"p/", []string{"p/users\x00alice", "p/users\x00bob", "p/users2\x00carl", "p/\xff"}},
		{"x/", []string{"x/index\x00a"}},
		{"nothing", nil},
		{"", []string{"a", "p/users\x00alice", "p/users\x00bob", "p/users2\x00carl", "p/\xff", "x/index\x00a"}},
	}

	for _, tt := range tests {
		if got := keys(t, snap, tt.prefix); !equalKeys(got, tt.expected) {
			t.Errorf("Scan(%q): expected %q, got %q", tt.prefix, tt.expected, got)
		}
	}
}

func testScanStopAndError(t *testing.T, database db.KVDB) {
	defer database.Close()

	kv := make(map[string][]byte)
	for i := 0; i < 10; i++ {
		kv[fmt.Sprintf("k%02d", i)] = []byte(strconv.Itoa(i))
	}
	write(t, database, kv)

	snap, _ := database.NewSnapshot()
	defer snap.Close()

	count := 0
	err := snap.Scan([]byte("k"), func(_, _ []byte) (bool, error) {
		count++
		return count < 3, nil
	})
	if err != nil || count != 3 {
		t.Errorf("Expected scan to stop after 3 entries, got %d (err=%v)", count, err)
	}

	stop := errors.New("stop")
	err = snap.Scan([]byte("k"), func(_, _ []byte) (bool, error) {
		return true, stop
	})
	if !errors.Is(err, stop) {
		t.Errorf("Expected callback error to be passed through, got %v", err)
	}
}

func testBatchScanMergesPending(t *testing.T, database db.KVDB) {
	defer database.Close()

	write(t, database, map[string][]byte{"c/1": []byte("1"), "c/2": []byte("2"), "c/3": []byte("3")})

	b, _ := database.NewBatch()
	defer b.Discard()
	_ = b.Delete([]byte("c/2"))
	_ = b.Set([]byte("c/4"), []byte("4"))
	_ = b.Set([]byte("c/0"), []byte("0"))

	expected := []string{"c/0", "c/1", "c/3", "c/4"}
	if got := keys(t, b, "c/"); !equalKeys(got, expected) {
		t.Errorf("Batch scan: expected %v, got %v", expected, got)
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	largeValue := bytes.Repeat([]byte("large"), 200*1024) // 1 MB
	binaryKey := string([]byte{0x00, 0xff, 0x00, 0x01})

	write(t, database, map[string][]byte{
		"empty-value": {},
		binaryKey:     []byte("binary"),
		"large":       largeValue,
	})

	v, exists := read(t, database, "empty-value")
	if !exists || len(v) != 0 {
		t.Errorf("Expected empty value to exist, got exists=%v value=%q", exists, v)
	}

	v, exists = read(t, database, binaryKey)
	if !exists || string(v) != "binary" {
		t.Errorf("Binary key lookup failed: exists=%v value=%q", exists, v)
	}

	v, _ = read(t, database, "large")
	if !bytes.Equal(v, largeValue) {
		t.Errorf("Large value mismatch (%d bytes vs %d bytes)", len(v), len(largeValue))
	}
}

func testConcurrentReaders(t *testing.T, database db.KVDB) {
	defer database.Close()

	// the writer always updates both keys in one batch, readers must see equal values
	write(t, database, map[string][]byte{"left": []byte("0"), "right": []byte("0")})

	var (
		wg       sync.WaitGroup
		done     atomic.Bool
		failures atomic.Int64
	)

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !done.Load() {
				snap, err := database.NewSnapshot()
				if err != nil {
					failures.Add(1)
					return
				}
				left, _, _ := snap.Get([]byte("left"))
				right, _, _ := snap.Get([]byte("right"))
				if !bytes.Equal(left, right) {
					failures.Add(1)
				}
				_ = snap.Close()
			}
		}()
	}

	for i := 1; i <= 200; i++ {
		v := []byte(strconv.Itoa(i))
		write(t, database, map[string][]byte{"left": v, "right": v})
	}
	done.Store(true)
	wg.Wait()

	if n := failures.Load(); n > 0 {
		t.Errorf("Readers observed %d torn commits", n)
	}
}

func testPersistence(t *testing.T, factory db.Factory) {
	path := filepath.Join(t.TempDir(), "db")

	database := mustOpen(t, factory, path)
	requireFeature(t, database, db.FeaturePersistence)

	numEntries := 1000
	kv := make(map[string][]byte, numEntries)
	for i := 0; i < numEntries; i++ {
		kv[fmt.Sprintf("persist-key-%d", i)] = []byte(fmt.Sprintf("persist-value-%d", i))
	}
	write(t, database, kv)
	write(t, database, map[string][]byte{"persist-key-0": nil})

	if err := database.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := mustOpen(t, factory, path)
	defer reopened.Close()

	for key, expectedValue := range kv {
		actualValue, exists := read(t, reopened, key)
		if key == "persist-key-0" {
			if exists {
				t.Errorf("Deleted key %s found after reopen", key)
			}
			continue
		}
		if !exists {
			t.Errorf("Key %s not found after reopen", key)
			continue
		}
		if !bytes.Equal(actualValue, expectedValue) {
			t.Errorf("Value mismatch for key %s: expected %s, got %s", key, expectedValue, actualValue)
		}
	}
}

func testInfo(t *testing.T, database db.KVDB) {
	defer database.Close()

	kv := make(map[string][]byte)
	for i := 0; i < 50; i++ {
		kv[fmt.Sprintf("info-%d", i)] = []byte("value")
	}
	write(t, database, kv)

	info := database.GetInfo()
	if info.Entries != 50 {
		t.Errorf("Expected 50 entries, got %d", info.Entries)
	}
	if info.DbType == "" {
		t.Errorf("Expected db type to be set")
	}
	if len(info.SupportedFeatures) == 0 {
		t.Errorf("Expected supported features to be reported")
	}
}
